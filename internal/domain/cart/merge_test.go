package cart

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/storefront-cart/internal/domain/product"
)

func seedGuestCart(t *testing.T, g *GuestStore, sessionID string, adds ...addCall) {
	t.Helper()
	ctx := context.Background()
	for _, add := range adds {
		_, err := g.Add(ctx, sessionID, add.variantID, add.quantity)
		require.NoError(t, err)
	}
}

func TestMergeGuestCart(t *testing.T) {
	ctx := context.Background()

	variants := map[string]*product.Variant{
		"v1": {ID: "v1", ProductID: "p1", ProductName: "Whey", Price: 10.00},
		"v2": {ID: "v2", ProductID: "p2", ProductName: "Creatine", Price: 5.00},
		"v3": {ID: "v3", ProductID: "p3", ProductName: "BCAA", Price: 7.50},
	}

	t.Run("AllItemsMerge", func(t *testing.T) {
		g, _ := newTestGuestStore(variants)
		seedGuestCart(t, g, "s1", addCall{"v1", 2}, addCall{"v2", 1})
		gw := newFakeGateway()

		summary, err := MergeGuestCart(ctx, g, gw, testLogger(), "s1", time.Second)
		require.NoError(t, err)

		assert.True(t, summary.Success)
		assert.Equal(t, 2, summary.MergedItems)
		assert.Equal(t, 0, summary.SkippedItems)
		assert.Equal(t, 2, gw.addCallCount())
		assert.False(t, g.HasItems(ctx, "s1"), "guest store must be cleared")
	})

	t.Run("GuestStoreClearedBeforeNetworkCalls", func(t *testing.T) {
		g, _ := newTestGuestStore(variants)
		seedGuestCart(t, g, "s1", addCall{"v1", 2})

		gw := newFakeGateway()
		gw.addDelay["v1"] = 50 * time.Millisecond

		done := make(chan MergeSummary, 1)
		go func() {
			summary, _ := MergeGuestCart(ctx, g, gw, testLogger(), "s1", time.Second)
			done <- summary
		}()

		// While the add is still in flight, a second merge finds nothing.
		time.Sleep(10 * time.Millisecond)
		assert.False(t, g.HasItems(ctx, "s1"))

		second, err := MergeGuestCart(ctx, g, gw, testLogger(), "s1", time.Second)
		require.NoError(t, err)
		assert.Zero(t, second.MergedItems)

		first := <-done
		assert.Equal(t, 1, first.MergedItems)
		assert.Equal(t, 1, gw.addCallCount(), "no item may be re-submitted")
	})

	t.Run("TimedOutItemIsSkippedNotFatal", func(t *testing.T) {
		g, _ := newTestGuestStore(variants)
		seedGuestCart(t, g, "s1", addCall{"v1", 2})
		gw := newFakeGateway()
		gw.addDelay["v1"] = 200 * time.Millisecond

		summary, err := MergeGuestCart(ctx, g, gw, testLogger(), "s1", 20*time.Millisecond)
		require.NoError(t, err)

		assert.True(t, summary.Success)
		assert.Equal(t, 0, summary.MergedItems)
		assert.Equal(t, 1, summary.SkippedItems)
		assert.False(t, g.HasItems(ctx, "s1"), "item loss on total failure is the documented trade-off")
	})

	t.Run("PartialFailure", func(t *testing.T) {
		g, _ := newTestGuestStore(variants)
		seedGuestCart(t, g, "s1", addCall{"v1", 1}, addCall{"v2", 1}, addCall{"v3", 1})
		gw := newFakeGateway()
		gw.addErr["v2"] = &HTTPError{Status: 409, Message: "out of stock"}

		summary, err := MergeGuestCart(ctx, g, gw, testLogger(), "s1", time.Second)
		require.NoError(t, err)

		assert.Equal(t, 2, summary.MergedItems)
		assert.Equal(t, 1, summary.SkippedItems)
		assert.Contains(t, summary.Message, "could not be added")
	})

	t.Run("ItemsMergeConcurrently", func(t *testing.T) {
		g, _ := newTestGuestStore(variants)
		seedGuestCart(t, g, "s1", addCall{"v1", 1}, addCall{"v2", 1}, addCall{"v3", 1})
		gw := newFakeGateway()
		for v := range variants {
			gw.addDelay[v] = 80 * time.Millisecond
		}

		start := time.Now()
		summary, err := MergeGuestCart(ctx, g, gw, testLogger(), "s1", time.Second)
		require.NoError(t, err)
		elapsed := time.Since(start)

		assert.Equal(t, 3, summary.MergedItems)
		assert.Less(t, elapsed, 200*time.Millisecond, "merge latency must scale with the slowest call, not the sum")
	})

	t.Run("CancelledContextAborts", func(t *testing.T) {
		g, _ := newTestGuestStore(variants)
		seedGuestCart(t, g, "s1", addCall{"v1", 1})
		gw := newFakeGateway()

		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		_, err := MergeGuestCart(cancelled, g, gw, testLogger(), "s1", time.Second)
		require.Error(t, err)
		assert.Zero(t, gw.addCallCount())
		assert.True(t, g.HasItems(ctx, "s1"), "an aborted merge leaves the guest cart intact")
	})

	t.Run("QuantitiesAreNormalized", func(t *testing.T) {
		g, store := newTestGuestStore(variants)
		// Write a cart with a broken quantity directly; Add would normalize.
		payload := `{"items":[{"id":"guest_x","product_variant_id":"v1","price":10,"quantity":0,"subtotal":"0.00"}],"subtotal":"0.00","item_count":1,"total_quantity":0}`
		require.NoError(t, store.Set(ctx, "cart:guest:s1", payload, time.Hour))

		gw := newFakeGateway()
		summary, err := MergeGuestCart(ctx, g, gw, testLogger(), "s1", time.Second)
		require.NoError(t, err)
		assert.Equal(t, 1, summary.MergedItems)
		require.Equal(t, 1, gw.addCallCount())
		assert.Equal(t, 1, gw.addCalls[0].quantity)
	})
}
