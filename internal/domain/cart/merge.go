// internal/domain/cart/merge.go
package cart

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type mergeOutcome struct {
	variantID string
	err       error
}

// MergeGuestCart reconciles a guest cart into the authenticated server cart.
// It snapshots the guest items and clears the guest store BEFORE any network
// call: a second merge attempt racing this one finds nothing to re-submit,
// at the documented cost of losing items if every add below fails. Callers
// enforce the one-shot guard and the non-empty precondition.
//
// The per-item adds run concurrently, each bounded by itemTimeout, so merge
// latency scales with the slowest call rather than the sum. A timed-out or
// failed item is skipped, never a protocol abort.
func MergeGuestCart(ctx context.Context, guest *GuestStore, gateway Gateway, logger *logrus.Logger, sessionID string, itemTimeout time.Duration) (MergeSummary, error) {
	if err := ctx.Err(); err != nil {
		return MergeSummary{}, fmt.Errorf("merge aborted before start: %w", err)
	}

	snapshot := guest.Get(ctx, sessionID).Items
	guest.Clear(ctx, sessionID)

	if len(snapshot) == 0 {
		return MergeSummary{Success: true, Message: "No guest cart items to merge"}, nil
	}

	outcomes := make([]mergeOutcome, len(snapshot))
	var wg sync.WaitGroup

	for i, item := range snapshot {
		wg.Add(1)
		go func(i int, variantID string, quantity int) {
			defer wg.Done()

			callCtx, cancel := context.WithTimeout(ctx, itemTimeout)
			defer cancel()

			err := gateway.AddItem(callCtx, variantID, NormalizeQuantity(quantity))
			outcomes[i] = mergeOutcome{variantID: variantID, err: err}
		}(i, item.ProductVariantID, item.Quantity)
	}
	wg.Wait()

	merged, skipped := 0, 0
	for _, outcome := range outcomes {
		if outcome.err != nil {
			skipped++
			logger.WithError(outcome.err).WithFields(logrus.Fields{
				"session_id": sessionID,
				"variant_id": outcome.variantID,
			}).Warn("Skipped cart item during merge")
			continue
		}
		merged++
	}

	summary := MergeSummary{
		Success:      true,
		MergedItems:  merged,
		SkippedItems: skipped,
	}
	if skipped == 0 {
		summary.Message = fmt.Sprintf("Moved %d item(s) to your cart", merged)
	} else {
		summary.Message = fmt.Sprintf("Moved %d item(s) to your cart, %d could not be added", merged, skipped)
	}

	return summary, nil
}
