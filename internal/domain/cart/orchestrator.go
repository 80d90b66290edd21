// internal/domain/cart/orchestrator.go
package cart

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/your-org/storefront-cart/internal/config"
	"github.com/your-org/storefront-cart/internal/pkg/apiclient"
	"github.com/your-org/storefront-cart/internal/pkg/debounce"
	"github.com/your-org/storefront-cart/internal/pkg/notify"
)

// State is a point-in-time snapshot of the orchestrator, the view handed to
// storefront clients.
type State struct {
	Cart               Cart            `json:"cart"`
	Loading            bool            `json:"loading"`
	PerItemLoading     map[string]bool `json:"per_item_loading"`
	Error              string          `json:"error,omitempty"`
	Coupon             *Coupon         `json:"coupon,omitempty"`
	CouponLoading      bool            `json:"coupon_loading"`
	MergeStatusMessage string          `json:"merge_status_message,omitempty"`
}

// verifyBasis records the cart composition a coupon was last verified
// against, so no-op changes skip the re-verification round trip.
type verifyBasis struct {
	subtotal  string
	itemCount int
}

// Orchestrator is the stateful cart core for one storefront session. It
// dispatches mutations to the guest store or the upstream gateway depending
// on auth state, runs the merge protocol exactly once per login transition,
// and re-verifies an applied coupon whenever the cart composition changes.
//
// All state is guarded by one mutex; mutations replace the cart object
// whole, and optimistic patches are always derived from the freshest cart
// under the lock, never from a value captured before an await point.
type Orchestrator struct {
	sessionID string
	guest     *GuestStore
	gateway   Gateway
	notifier  notify.Notifier
	logger    *logrus.Logger
	cartCfg   config.CartConfig

	mu             sync.Mutex
	cart           Cart
	loading        bool
	perItemLoading map[string]bool
	lastErr        error
	coupon         *Coupon
	couponLoading  bool
	mergeStatus    string
	authenticated  bool
	hydrated       bool
	merged         bool // one-shot merge guard, reset on logout
	token          string
	verifySeq      uint64
	lastVerified   verifyBasis

	reverify *debounce.Debouncer
	bg       sync.WaitGroup
}

// NewOrchestrator creates the cart orchestrator for one session.
func NewOrchestrator(sessionID string, guest *GuestStore, gateway Gateway, notifier notify.Notifier, logger *logrus.Logger, cartCfg config.CartConfig) *Orchestrator {
	return &Orchestrator{
		sessionID:      sessionID,
		guest:          guest,
		gateway:        gateway,
		notifier:       notifier,
		logger:         logger,
		cartCfg:        cartCfg,
		cart:           EmptyCart(),
		perItemLoading: make(map[string]bool),
		reverify:       debounce.New(cartCfg.CouponDebounce),
	}
}

// Close tears down the orchestrator's timers and waits for background
// reconciliations to finish. Called when the session is evicted.
func (o *Orchestrator) Close() {
	o.reverify.Stop()
	o.bg.Wait()
}

// State returns a snapshot of the orchestrator's visible state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()

	perItem := make(map[string]bool, len(o.perItemLoading))
	for k, v := range o.perItemLoading {
		perItem[k] = v
	}

	state := State{
		Cart:               o.cart.Clone(),
		Loading:            o.loading,
		PerItemLoading:     perItem,
		CouponLoading:      o.couponLoading,
		MergeStatusMessage: o.mergeStatus,
	}
	if o.lastErr != nil {
		state.Error = o.lastErr.Error()
	}
	if o.coupon != nil {
		coupon := *o.coupon
		state.Coupon = &coupon
	}
	return state
}

// Resolve drives the auth-state machine for the current request: it hydrates
// on first touch and performs the guest/auth transitions when the supplied
// auth status differs from the last observed one.
func (o *Orchestrator) Resolve(ctx context.Context, authenticated bool) {
	o.mu.Lock()
	if token, ok := apiclient.TokenFromContext(ctx); ok {
		o.token = token
	}

	if !o.hydrated {
		o.hydrated = true
		o.authenticated = authenticated
		o.mu.Unlock()

		if authenticated {
			o.refreshFromServer(ctx, true)
		} else {
			guestCart := o.guest.Get(ctx, o.sessionID)
			o.mu.Lock()
			o.cart = guestCart
			o.mu.Unlock()
		}
		return
	}

	wasAuthenticated := o.authenticated
	if wasAuthenticated == authenticated {
		o.mu.Unlock()
		return
	}
	o.authenticated = authenticated
	o.mu.Unlock()

	if authenticated {
		o.loginTransition(ctx)
	} else {
		o.logoutTransition(ctx)
	}
}

// loginTransition handles guest -> authenticated: merge once if the guest
// cart has items, otherwise just load the server cart.
func (o *Orchestrator) loginTransition(ctx context.Context) {
	o.mu.Lock()
	shouldMerge := !o.merged && o.guest.HasItems(ctx, o.sessionID)
	if shouldMerge {
		// The guard is set synchronously, before any network work, so a
		// duplicate auth event cannot re-enter the merge mid-flight.
		o.merged = true
		o.perItemLoading = make(map[string]bool)
		o.loading = true
	}
	o.mu.Unlock()

	if !shouldMerge {
		o.refreshFromServer(ctx, true)
		return
	}

	// Show the pre-existing server cart while the merge runs.
	o.refreshFromServer(ctx, false)

	summary, err := MergeGuestCart(ctx, o.guest, o.gateway, o.logger, o.sessionID, o.cartCfg.MergeItemTimeout)
	if err != nil {
		// Expected per-item failures are absorbed inside the protocol; only
		// an abort before it ran lands here. Release the guard so a retry
		// can merge.
		o.mu.Lock()
		o.merged = false
		o.loading = false
		o.mu.Unlock()
		o.logger.WithError(err).WithField("session_id", o.sessionID).Error("Cart merge failed")
		o.notifier.Error("We could not move your cart items. Please try again.")
		o.refreshFromServer(ctx, true)
		return
	}

	o.mu.Lock()
	o.mergeStatus = summary.Message
	o.mu.Unlock()

	if summary.SkippedItems > 0 {
		o.notifier.Info(summary.Message, 5*time.Second)
	} else if summary.MergedItems > 0 {
		o.notifier.Success(summary.Message)
	}

	o.refreshFromServer(ctx, true)
}

// logoutTransition handles authenticated -> guest: a real server cart is
// reset (and the coupon dropped); a cart that still holds guest-prefixed
// items was never replaced by server state and is left untouched. The merge
// guard resets so a future login merges again.
func (o *Orchestrator) logoutTransition(ctx context.Context) {
	o.mu.Lock()
	serverOwned := len(o.cart.Items) > 0 && !IsGuestItemID(o.cart.Items[0].ID)
	if serverOwned || len(o.cart.Items) == 0 {
		o.cart = EmptyCart()
		o.coupon = nil
	}
	o.merged = false
	o.mergeStatus = ""
	o.token = ""
	o.mu.Unlock()

	guestCart := o.guest.Get(ctx, o.sessionID)
	o.mu.Lock()
	o.cart = guestCart
	o.mu.Unlock()
}

// refreshFromServer replaces local cart state with server truth. Read
// failures degrade to an empty cart plus a recorded error; the UI never
// crashes on a failed fetch.
func (o *Orchestrator) refreshFromServer(ctx context.Context, clearLoading bool) {
	serverCart, err := o.gateway.FetchCart(ctx)

	o.mu.Lock()
	defer o.mu.Unlock()
	if err != nil {
		o.logger.WithError(err).WithField("session_id", o.sessionID).Warn("Failed to fetch server cart")
		o.cart = EmptyCart()
		o.lastErr = err
	} else {
		o.cart = serverCart
		o.lastErr = nil
	}
	if clearLoading {
		o.loading = false
	}
}

// backgroundReconcile schedules a non-blocking fetch that replaces the
// optimistic cart with authoritative server state. Its failure stays
// invisible; the optimistic patch remains until the next successful fetch.
func (o *Orchestrator) backgroundReconcile() {
	o.mu.Lock()
	token := o.token
	o.mu.Unlock()

	o.bg.Add(1)
	go func() {
		defer o.bg.Done()

		ctx := context.Background()
		if token != "" {
			ctx = apiclient.WithToken(ctx, token)
		}

		serverCart, err := o.gateway.FetchCart(ctx)
		if err != nil {
			o.logger.WithError(err).WithField("session_id", o.sessionID).Debug("Background cart reconciliation failed")
			return
		}

		o.mu.Lock()
		o.cart = serverCart
		o.mu.Unlock()
	}()
}

// AddToCart adds a variant to the cart through whichever path matches the
// auth state. Failures are recorded, notified and returned.
func (o *Orchestrator) AddToCart(ctx context.Context, variantID string, quantity int) error {
	o.mu.Lock()
	authenticated := o.authenticated
	o.loading = true
	o.mu.Unlock()

	var err error
	if authenticated {
		err = o.gateway.AddItem(ctx, variantID, NormalizeQuantity(quantity))
		if err == nil {
			o.refreshFromServer(ctx, false)
		}
	} else {
		var updated Cart
		updated, err = o.guest.Add(ctx, o.sessionID, variantID, quantity)
		if err == nil {
			o.mu.Lock()
			o.cart = updated
			o.mu.Unlock()
		}
	}

	o.mu.Lock()
	o.loading = false
	if err != nil {
		o.lastErr = err
	} else {
		o.lastErr = nil
	}
	o.mu.Unlock()

	if err != nil {
		o.notifier.Error(UserMessage(err, "Could not add the item to your cart"))
		return err
	}

	o.reverifyCouponIfNeeded()
	return nil
}

// UpdateCartItem changes an item's quantity; zero or below removes it. On
// the authenticated path the cached cart is patched optimistically and a
// background fetch reconciles against server truth.
func (o *Orchestrator) UpdateCartItem(ctx context.Context, itemID string, quantity int) error {
	o.mu.Lock()
	authenticated := o.authenticated
	o.perItemLoading[itemID] = true
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		delete(o.perItemLoading, itemID)
		o.mu.Unlock()
	}()

	if !authenticated {
		updated, err := o.guest.UpdateItem(ctx, o.sessionID, itemID, quantity)
		if err != nil {
			o.recordError(err)
			return err
		}
		o.mu.Lock()
		o.cart = updated
		o.lastErr = nil
		o.mu.Unlock()
		return nil
	}

	// Optimistic patch from the freshest cart, then reconcile.
	o.mu.Lock()
	patched, patchErr := SetItemQuantity(o.cart, itemID, quantity)
	if patchErr == nil {
		o.cart = patched
		if patched.IsEmpty() && o.coupon != nil {
			// Empty cart invalidates the coupon locally, no network call.
			o.coupon = nil
			o.lastVerified = verifyBasis{}
		}
	}
	o.mu.Unlock()

	var err error
	if quantity <= 0 {
		err = o.gateway.RemoveItem(ctx, itemID)
	} else {
		err = o.gateway.UpdateItem(ctx, itemID, quantity)
	}
	if err != nil {
		o.recordError(err)
		// Roll the optimistic patch back to server truth.
		o.backgroundReconcile()
		return err
	}

	o.mu.Lock()
	o.lastErr = nil
	o.mu.Unlock()

	o.backgroundReconcile()
	o.reverifyCouponIfNeeded()
	return nil
}

// RemoveFromCart deletes an item from the cart.
func (o *Orchestrator) RemoveFromCart(ctx context.Context, itemID string) error {
	return o.UpdateCartItem(ctx, itemID, 0)
}

// ClearCart empties the cart on whichever path matches the auth state.
func (o *Orchestrator) ClearCart(ctx context.Context) error {
	o.mu.Lock()
	authenticated := o.authenticated
	o.loading = true
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.loading = false
		o.mu.Unlock()
	}()

	if authenticated {
		if err := o.gateway.ClearCart(ctx); err != nil {
			o.recordError(err)
			return err
		}
	} else {
		o.guest.Clear(ctx, o.sessionID)
	}

	o.mu.Lock()
	o.cart = EmptyCart()
	o.coupon = nil
	o.lastErr = nil
	o.lastVerified = verifyBasis{}
	o.mu.Unlock()
	return nil
}

// couponSnapshot builds the cart-items snapshot sent to coupon verification.
func couponSnapshot(c Cart) []CouponItem {
	items := make([]CouponItem, 0, len(c.Items))
	for _, item := range c.Items {
		items = append(items, CouponItem{
			ProductID:        item.ProductID,
			ProductVariantID: item.ProductVariantID,
			BrandID:          item.BrandID,
			CategoryIDs:      item.CategoryIDs,
			Price:            item.Price,
			Quantity:         item.Quantity,
		})
	}
	return items
}

// ApplyCoupon verifies a coupon against the current cart and stores the
// result for immediate display. Guests get a sign-in notice and nothing
// else. The server-side apply call is fired in the background; its failure
// never rolls back a verification the shopper already saw succeed.
func (o *Orchestrator) ApplyCoupon(ctx context.Context, code string) error {
	o.mu.Lock()
	if !o.authenticated {
		o.mu.Unlock()
		o.notifier.Info("Please sign in to apply a coupon", 4*time.Second)
		return nil
	}
	cartTotal := o.cart.SubtotalValue()
	snapshot := couponSnapshot(o.cart)
	basis := verifyBasis{subtotal: o.cart.Subtotal, itemCount: len(o.cart.Items)}
	o.couponLoading = true
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.couponLoading = false
		o.mu.Unlock()
	}()

	verification, err := o.gateway.VerifyCoupon(ctx, code, cartTotal, snapshot)
	if err != nil {
		o.recordError(err)
		o.notifier.Error(UserMessage(err, "This coupon could not be applied"))
		return err
	}

	coupon := couponFromVerification(verification, cartTotal)

	o.mu.Lock()
	o.coupon = &coupon
	o.lastVerified = basis
	o.lastErr = nil
	o.mu.Unlock()

	if coupon.IsDiscountCapped {
		o.notifier.Info("This coupon covers almost your entire order", 6*time.Second)
	}
	o.notifier.Success("Coupon applied")

	// Fire-and-forget server-side apply.
	o.mu.Lock()
	token := o.token
	o.mu.Unlock()
	o.bg.Add(1)
	go func() {
		defer o.bg.Done()
		applyCtx := context.Background()
		if token != "" {
			applyCtx = apiclient.WithToken(applyCtx, token)
		}
		if err := o.gateway.ApplyCoupon(applyCtx, code); err != nil {
			o.logger.WithError(err).WithField("code", code).Debug("Background coupon apply failed")
		}
	}()

	return nil
}

// couponFromVerification derives the applied-coupon state, flagging fixed
// discounts that swallow 90% or more of the cart total.
func couponFromVerification(v *CouponVerification, cartTotal float64) Coupon {
	coupon := Coupon{
		ID:                 v.ID,
		Code:               v.Code,
		DiscountType:       v.DiscountType,
		DiscountValue:      v.DiscountValue,
		DiscountAmount:     v.DiscountAmount,
		FinalAmount:        v.FinalAmount,
		ApplicableSubtotal: v.ApplicableSubtotal,
		MatchedItems:       v.MatchedItems,
	}
	if cartTotal > 0 {
		discountPercentage := v.DiscountAmount / cartTotal * 100
		coupon.IsDiscountCapped = v.DiscountType == DiscountFixedAmount && discountPercentage >= 90
	}
	return coupon
}

// RemoveCoupon clears the applied coupon and refetches the cart so totals
// reflect the absence of the discount.
func (o *Orchestrator) RemoveCoupon(ctx context.Context) {
	o.mu.Lock()
	o.coupon = nil
	o.lastErr = nil
	o.lastVerified = verifyBasis{}
	o.mu.Unlock()

	o.backgroundReconcile()
}

// reverifyCouponIfNeeded schedules a debounced re-verification when the
// cart composition changed under an applied coupon. An empty cart clears
// the coupon locally instead.
func (o *Orchestrator) reverifyCouponIfNeeded() {
	o.mu.Lock()
	if o.coupon == nil || !o.authenticated {
		o.mu.Unlock()
		return
	}
	if o.cart.IsEmpty() {
		o.coupon = nil
		o.lastVerified = verifyBasis{}
		o.mu.Unlock()
		return
	}
	basis := verifyBasis{subtotal: o.cart.Subtotal, itemCount: len(o.cart.Items)}
	if basis == o.lastVerified {
		o.mu.Unlock()
		return
	}
	o.mu.Unlock()

	o.reverify.Trigger(o.reverifyCoupon)
}

// reverifyCoupon re-runs coupon verification against the current cart.
// Last-write-wins: a result is discarded when a newer verification has
// started since.
func (o *Orchestrator) reverifyCoupon() {
	o.mu.Lock()
	if o.coupon == nil || !o.authenticated {
		o.mu.Unlock()
		return
	}
	if o.cart.IsEmpty() {
		o.coupon = nil
		o.lastVerified = verifyBasis{}
		o.mu.Unlock()
		return
	}
	o.verifySeq++
	seq := o.verifySeq
	code := o.coupon.Code
	cartTotal := o.cart.SubtotalValue()
	snapshot := couponSnapshot(o.cart)
	basis := verifyBasis{subtotal: o.cart.Subtotal, itemCount: len(o.cart.Items)}
	token := o.token
	o.mu.Unlock()

	ctx := context.Background()
	if token != "" {
		ctx = apiclient.WithToken(ctx, token)
	}
	verification, err := o.gateway.VerifyCoupon(ctx, code, cartTotal, snapshot)

	o.mu.Lock()
	if seq != o.verifySeq || o.coupon == nil {
		o.mu.Unlock()
		return
	}
	if err != nil {
		o.coupon = nil
		o.lastVerified = verifyBasis{}
		o.mu.Unlock()
		o.notifier.Info("Your coupon is no longer valid for this cart", 5*time.Second)
		return
	}
	coupon := couponFromVerification(verification, cartTotal)
	o.coupon = &coupon
	o.lastVerified = basis
	o.mu.Unlock()
}

// Totals derives the checkout breakdown from the current cart and coupon.
func (o *Orchestrator) Totals() Totals {
	o.mu.Lock()
	defer o.mu.Unlock()

	subtotal := o.cart.SubtotalValue()
	var discount float64
	if o.coupon != nil {
		discount = o.coupon.DiscountAmount
	}
	shipping := o.cart.ShippingTotal

	return Totals{
		Subtotal: subtotal,
		Discount: discount,
		Shipping: shipping,
		Tax:      0,
		Total:    subtotal - discount + shipping,
	}
}

// ItemCount returns the cart's total quantity: 0 before the first hydration
// (so early reads never disagree with a client's first render), the cached
// cart's quantity when authenticated, and the guest store's otherwise.
func (o *Orchestrator) ItemCount(ctx context.Context) int {
	o.mu.Lock()
	hydrated := o.hydrated
	authenticated := o.authenticated
	total := o.cart.TotalQuantity
	o.mu.Unlock()

	if !hydrated {
		return 0
	}
	if authenticated {
		return total
	}
	return o.guest.ItemCount(ctx, o.sessionID)
}

func (o *Orchestrator) recordError(err error) {
	o.mu.Lock()
	o.lastErr = err
	o.mu.Unlock()
}
