package cart

import (
	"context"
	"sync"
	"time"
)

type addCall struct {
	variantID string
	quantity  int
}

type verifyCall struct {
	code      string
	cartTotal float64
	items     []CouponItem
}

// fakeGateway is an in-memory stand-in for the upstream cart API. Successful
// adds append server-owned lines so a post-merge fetch observes them.
type fakeGateway struct {
	mu sync.Mutex

	serverItems []Item
	prices      map[string]float64

	addDelay map[string]time.Duration
	addErr   map[string]error
	addCalls []addCall

	fetchErr   error
	fetchCalls int

	updateErr   error
	updateCalls []addCall

	removeErr   error
	removeCalls []string

	clearErr   error
	clearCalls int

	verifyResult *CouponVerification
	verifyErr    error
	verifyCalls  []verifyCall

	applyErr   error
	applyCalls []string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		prices:   make(map[string]float64),
		addDelay: make(map[string]time.Duration),
		addErr:   make(map[string]error),
	}
}

func (f *fakeGateway) seedServerItem(id, variantID string, price float64, quantity int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.serverItems = append(f.serverItems, Item{
		ID:               id,
		ProductVariantID: variantID,
		Price:            price,
		Quantity:         quantity,
	})
}

func (f *fakeGateway) FetchCart(ctx context.Context) (Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchCalls++
	if f.fetchErr != nil {
		return Cart{}, f.fetchErr
	}
	items := make([]Item, len(f.serverItems))
	copy(items, f.serverItems)
	return Recompute(items), nil
}

func (f *fakeGateway) AddItem(ctx context.Context, variantID string, quantity int) error {
	f.mu.Lock()
	delay := f.addDelay[variantID]
	err := f.addErr[variantID]
	f.addCalls = append(f.addCalls, addCall{variantID: variantID, quantity: quantity})
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return &NetworkError{Op: "POST /cart/add", Err: ctx.Err()}
		}
	}
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.serverItems {
		if f.serverItems[i].ProductVariantID == variantID {
			f.serverItems[i].Quantity += quantity
			return nil
		}
	}
	f.serverItems = append(f.serverItems, Item{
		ID:               "srv-" + variantID,
		ProductVariantID: variantID,
		Price:            f.prices[variantID],
		Quantity:         quantity,
	})
	return nil
}

func (f *fakeGateway) UpdateItem(ctx context.Context, itemID string, quantity int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateCalls = append(f.updateCalls, addCall{variantID: itemID, quantity: quantity})
	if f.updateErr != nil {
		return f.updateErr
	}
	for i := range f.serverItems {
		if f.serverItems[i].ID == itemID {
			f.serverItems[i].Quantity = quantity
		}
	}
	return nil
}

func (f *fakeGateway) RemoveItem(ctx context.Context, itemID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removeCalls = append(f.removeCalls, itemID)
	if f.removeErr != nil {
		return f.removeErr
	}
	kept := f.serverItems[:0]
	for _, item := range f.serverItems {
		if item.ID != itemID {
			kept = append(kept, item)
		}
	}
	f.serverItems = kept
	return nil
}

func (f *fakeGateway) ClearCart(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clearCalls++
	if f.clearErr != nil {
		return f.clearErr
	}
	f.serverItems = nil
	return nil
}

func (f *fakeGateway) VerifyCoupon(ctx context.Context, code string, cartTotal float64, items []CouponItem) (*CouponVerification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verifyCalls = append(f.verifyCalls, verifyCall{code: code, cartTotal: cartTotal, items: items})
	if f.verifyErr != nil {
		return nil, f.verifyErr
	}
	result := *f.verifyResult
	return &result, nil
}

func (f *fakeGateway) ApplyCoupon(ctx context.Context, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applyCalls = append(f.applyCalls, code)
	return f.applyErr
}

func (f *fakeGateway) addCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.addCalls)
}

func (f *fakeGateway) verifyCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.verifyCalls)
}
