package cart

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/storefront-cart/internal/config"
	"github.com/your-org/storefront-cart/internal/domain/product"
	"github.com/your-org/storefront-cart/internal/pkg/notify"
)

func testCartConfig() config.CartConfig {
	return config.CartConfig{
		StorageBackend:   config.StorageBackendMemory,
		GuestCartTTL:     time.Hour,
		MergeItemTimeout: time.Second,
		CouponDebounce:   20 * time.Millisecond,
		SessionIdleTTL:   time.Hour,
	}
}

func newTestOrchestrator(t *testing.T, variants map[string]*product.Variant, gw *fakeGateway) (*Orchestrator, *GuestStore, *notify.Collector) {
	t.Helper()
	g, _ := newTestGuestStore(variants)
	collector := notify.NewCollector()
	o := NewOrchestrator("s1", g, gw, collector, testLogger(), testCartConfig())
	t.Cleanup(o.Close)
	return o, g, collector
}

func noticeMessages(notices []notify.Notice) []string {
	out := make([]string, 0, len(notices))
	for _, n := range notices {
		out = append(out, n.Message)
	}
	return out
}

func testVariants() map[string]*product.Variant {
	return map[string]*product.Variant{
		"v1": {ID: "v1", ProductID: "p1", ProductName: "Whey", Price: 10.00},
		"v2": {ID: "v2", ProductID: "p2", ProductName: "Creatine", Price: 5.00},
	}
}

func TestOrchestrator_Hydration(t *testing.T) {
	ctx := context.Background()

	t.Run("GuestSessionLoadsLocalCart", func(t *testing.T) {
		gw := newFakeGateway()
		o, g, _ := newTestOrchestrator(t, testVariants(), gw)

		assert.Equal(t, 0, o.ItemCount(ctx), "pre-hydration count must read 0")

		_, err := g.Add(ctx, "s1", "v1", 2)
		require.NoError(t, err)

		o.Resolve(ctx, false)

		state := o.State()
		require.Len(t, state.Cart.Items, 1)
		assert.Equal(t, "20.00", state.Cart.Subtotal)
		assert.Equal(t, 2, o.ItemCount(ctx))
		assert.Zero(t, gw.fetchCalls, "guest hydration must not hit the server")
	})

	t.Run("AuthenticatedSessionLoadsServerCart", func(t *testing.T) {
		gw := newFakeGateway()
		gw.seedServerItem("srv-1", "v2", 5.00, 1)
		o, _, _ := newTestOrchestrator(t, testVariants(), gw)

		o.Resolve(ctx, true)

		state := o.State()
		require.Len(t, state.Cart.Items, 1)
		assert.Equal(t, "srv-1", state.Cart.Items[0].ID)
		assert.Equal(t, "5.00", state.Cart.Subtotal)
	})

	t.Run("FetchFailureDegradesToEmptyCartWithError", func(t *testing.T) {
		gw := newFakeGateway()
		gw.fetchErr = &NetworkError{Op: "GET /cart", Err: context.DeadlineExceeded}
		o, _, _ := newTestOrchestrator(t, testVariants(), gw)

		o.Resolve(ctx, true)

		state := o.State()
		assert.Equal(t, EmptyCart(), state.Cart)
		assert.NotEmpty(t, state.Error)
		assert.False(t, state.Loading)
	})
}

func TestOrchestrator_LoginMerge(t *testing.T) {
	ctx := context.Background()

	t.Run("GuestItemsMergeIntoServerCart", func(t *testing.T) {
		gw := newFakeGateway()
		gw.prices["v1"] = 10.00
		gw.seedServerItem("srv-v2", "v2", 5.00, 1)

		o, g, _ := newTestOrchestrator(t, testVariants(), gw)
		_, err := g.Add(ctx, "s1", "v1", 2)
		require.NoError(t, err)

		o.Resolve(ctx, false)
		o.Resolve(ctx, true)

		require.Equal(t, 1, gw.addCallCount())
		assert.Equal(t, addCall{variantID: "v1", quantity: 2}, gw.addCalls[0])

		state := o.State()
		assert.Len(t, state.Cart.Items, 2, "merged cart holds both the server item and the guest item")
		assert.Equal(t, "25.00", state.Cart.Subtotal)
		assert.NotEmpty(t, state.MergeStatusMessage)
		assert.False(t, g.HasItems(ctx, "s1"))
		assert.False(t, state.Loading)
	})

	t.Run("EmptyGuestCartSkipsMergeEntirely", func(t *testing.T) {
		gw := newFakeGateway()
		o, _, _ := newTestOrchestrator(t, testVariants(), gw)

		o.Resolve(ctx, false)
		o.Resolve(ctx, true)

		assert.Zero(t, gw.addCallCount())
	})

	t.Run("DuplicateAuthEventDoesNotRemerge", func(t *testing.T) {
		gw := newFakeGateway()
		gw.prices["v1"] = 10.00
		o, g, _ := newTestOrchestrator(t, testVariants(), gw)
		_, err := g.Add(ctx, "s1", "v1", 1)
		require.NoError(t, err)

		o.Resolve(ctx, false)
		o.Resolve(ctx, true)
		o.Resolve(ctx, true)

		assert.Equal(t, 1, gw.addCallCount())
	})

	t.Run("GuardResetsOnLogoutSoNextLoginMerges", func(t *testing.T) {
		gw := newFakeGateway()
		gw.prices["v1"] = 10.00
		o, g, _ := newTestOrchestrator(t, testVariants(), gw)

		_, err := g.Add(ctx, "s1", "v1", 1)
		require.NoError(t, err)
		o.Resolve(ctx, false)
		o.Resolve(ctx, true)
		require.Equal(t, 1, gw.addCallCount())

		o.Resolve(ctx, false)
		_, err = g.Add(ctx, "s1", "v2", 1)
		require.NoError(t, err)
		o.Resolve(ctx, true)

		assert.Equal(t, 2, gw.addCallCount())
	})

	t.Run("AllMergeCallsFailingStillCompletesLogin", func(t *testing.T) {
		gw := newFakeGateway()
		gw.addErr["v1"] = &HTTPError{Status: 500, Message: "boom"}
		o, g, collector := newTestOrchestrator(t, testVariants(), gw)

		_, err := g.Add(ctx, "s1", "v1", 2)
		require.NoError(t, err)
		o.Resolve(ctx, false)
		o.Resolve(ctx, true)

		state := o.State()
		assert.False(t, state.Loading)
		assert.False(t, g.HasItems(ctx, "s1"), "guest cart stays cleared even on total failure")
		assert.NotEmpty(t, noticeMessages(collector.Drain()))
	})
}

func TestOrchestrator_Logout(t *testing.T) {
	ctx := context.Background()

	t.Run("ServerCartResetsAndCouponClears", func(t *testing.T) {
		gw := newFakeGateway()
		gw.seedServerItem("srv-v1", "v1", 10.00, 1)
		gw.verifyResult = &CouponVerification{ID: "c1", Code: "SAVE10", DiscountType: DiscountPercentage, DiscountAmount: 1.00}
		o, _, _ := newTestOrchestrator(t, testVariants(), gw)

		o.Resolve(ctx, true)
		require.NoError(t, o.ApplyCoupon(ctx, "SAVE10"))
		require.NotNil(t, o.State().Coupon)

		o.Resolve(ctx, false)

		state := o.State()
		assert.Equal(t, EmptyCart(), state.Cart)
		assert.Nil(t, state.Coupon)
	})

	t.Run("GuestPrefixedCartSurvivesLogout", func(t *testing.T) {
		gw := newFakeGateway()
		o, g, _ := newTestOrchestrator(t, testVariants(), gw)

		// Defensive case: auth flag flips off before the guest cart was ever
		// replaced by server state.
		_, err := g.Add(ctx, "s1", "v1", 2)
		require.NoError(t, err)
		guestCart := g.Get(ctx, "s1")

		o.mu.Lock()
		o.hydrated = true
		o.authenticated = true
		o.cart = guestCart
		o.mu.Unlock()

		o.Resolve(ctx, false)

		state := o.State()
		require.Len(t, state.Cart.Items, 1)
		assert.True(t, IsGuestItemID(state.Cart.Items[0].ID))
	})
}

func TestOrchestrator_Mutations(t *testing.T) {
	ctx := context.Background()

	t.Run("GuestAddAdoptsLocalResult", func(t *testing.T) {
		gw := newFakeGateway()
		o, _, _ := newTestOrchestrator(t, testVariants(), gw)
		o.Resolve(ctx, false)

		require.NoError(t, o.AddToCart(ctx, "v1", 2))

		state := o.State()
		assert.Equal(t, "20.00", state.Cart.Subtotal)
		assert.Zero(t, gw.fetchCalls)
	})

	t.Run("GuestAddFailureNotifiesAndPropagates", func(t *testing.T) {
		gw := newFakeGateway()
		o, _, collector := newTestOrchestrator(t, testVariants(), gw)
		o.Resolve(ctx, false)

		err := o.AddToCart(ctx, "missing", 1)
		require.Error(t, err)
		assert.True(t, IsNotFound(err))
		assert.NotEmpty(t, o.State().Error)

		notices := collector.Drain()
		require.Len(t, notices, 1)
		assert.Equal(t, "error", notices[0].Kind)
	})

	t.Run("AuthenticatedAddRefreshesFromServer", func(t *testing.T) {
		gw := newFakeGateway()
		gw.prices["v1"] = 10.00
		o, _, _ := newTestOrchestrator(t, testVariants(), gw)
		o.Resolve(ctx, true)

		require.NoError(t, o.AddToCart(ctx, "v1", 3))

		state := o.State()
		require.Len(t, state.Cart.Items, 1)
		assert.Equal(t, "srv-v1", state.Cart.Items[0].ID)
		assert.Equal(t, "30.00", state.Cart.Subtotal)
	})

	t.Run("OptimisticRemoveShowsEmptyCartImmediately", func(t *testing.T) {
		gw := newFakeGateway()
		gw.seedServerItem("srv-v1", "v1", 10.00, 1)
		gw.verifyResult = &CouponVerification{ID: "c1", Code: "SAVE", DiscountType: DiscountPercentage, DiscountAmount: 1.00}
		o, _, _ := newTestOrchestrator(t, testVariants(), gw)

		o.Resolve(ctx, true)
		require.NoError(t, o.ApplyCoupon(ctx, "SAVE"))
		verifiesBefore := gw.verifyCallCount()

		require.NoError(t, o.UpdateCartItem(ctx, "srv-v1", 0))

		state := o.State()
		assert.True(t, state.Cart.IsEmpty(), "optimistic patch applies before reconciliation")
		assert.Nil(t, state.Coupon, "empty cart clears the coupon locally")

		o.bg.Wait()
		time.Sleep(5 * testCartConfig().CouponDebounce)
		assert.Equal(t, verifiesBefore, gw.verifyCallCount(), "no re-verification network call for an empty cart")
		assert.Equal(t, []string{"srv-v1"}, gw.removeCalls)
	})

	t.Run("UpdateFailureReconcilesAndPropagates", func(t *testing.T) {
		gw := newFakeGateway()
		gw.seedServerItem("srv-v1", "v1", 10.00, 2)
		gw.updateErr = &HTTPError{Status: 500, Message: "server busy"}
		o, _, _ := newTestOrchestrator(t, testVariants(), gw)
		o.Resolve(ctx, true)

		err := o.UpdateCartItem(ctx, "srv-v1", 5)
		require.Error(t, err)
		assert.NotEmpty(t, o.State().Error)

		// Reconciliation restores server truth over the optimistic patch.
		o.bg.Wait()
		state := o.State()
		require.Len(t, state.Cart.Items, 1)
		assert.Equal(t, 2, state.Cart.Items[0].Quantity)
	})

	t.Run("PerItemLoadingClearsAfterUpdate", func(t *testing.T) {
		gw := newFakeGateway()
		gw.seedServerItem("srv-v1", "v1", 10.00, 2)
		o, _, _ := newTestOrchestrator(t, testVariants(), gw)
		o.Resolve(ctx, true)

		require.NoError(t, o.UpdateCartItem(ctx, "srv-v1", 3))
		assert.Empty(t, o.State().PerItemLoading)
	})

	t.Run("ClearCartEmptiesBothPaths", func(t *testing.T) {
		gw := newFakeGateway()
		gw.seedServerItem("srv-v1", "v1", 10.00, 2)
		o, g, _ := newTestOrchestrator(t, testVariants(), gw)

		o.Resolve(ctx, true)
		require.NoError(t, o.ClearCart(ctx))
		assert.True(t, o.State().Cart.IsEmpty())
		assert.Equal(t, 1, gw.clearCalls)

		o.Resolve(ctx, false)
		_, err := g.Add(ctx, "s1", "v1", 1)
		require.NoError(t, err)
		require.NoError(t, o.ClearCart(ctx))
		assert.False(t, g.HasItems(ctx, "s1"))
	})
}

func TestOrchestrator_Coupons(t *testing.T) {
	ctx := context.Background()

	t.Run("GuestGetsSignInNotice", func(t *testing.T) {
		gw := newFakeGateway()
		o, _, collector := newTestOrchestrator(t, testVariants(), gw)
		o.Resolve(ctx, false)

		require.NoError(t, o.ApplyCoupon(ctx, "SAVE10"))

		assert.Zero(t, gw.verifyCallCount())
		notices := collector.Drain()
		require.Len(t, notices, 1)
		assert.Equal(t, "info", notices[0].Kind)
	})

	t.Run("SuccessfulVerifyStoresCouponAndAppliesInBackground", func(t *testing.T) {
		gw := newFakeGateway()
		gw.seedServerItem("srv-v1", "v1", 50.00, 2)
		gw.verifyResult = &CouponVerification{
			ID: "c1", Code: "SAVE10", DiscountType: DiscountPercentage,
			DiscountValue: 10, DiscountAmount: 10.00, FinalAmount: 90.00,
			ApplicableSubtotal: 100.00, MatchedItems: 1,
		}
		o, _, _ := newTestOrchestrator(t, testVariants(), gw)
		o.Resolve(ctx, true)

		require.NoError(t, o.ApplyCoupon(ctx, "SAVE10"))

		state := o.State()
		require.NotNil(t, state.Coupon)
		assert.Equal(t, "SAVE10", state.Coupon.Code)
		assert.False(t, state.Coupon.IsDiscountCapped)
		assert.False(t, state.CouponLoading)

		require.Equal(t, 1, gw.verifyCallCount())
		assert.InDelta(t, 100.00, gw.verifyCalls[0].cartTotal, 0.001)
		require.Len(t, gw.verifyCalls[0].items, 1)
		assert.Equal(t, "v1", gw.verifyCalls[0].items[0].ProductVariantID)

		o.bg.Wait()
		assert.Equal(t, []string{"SAVE10"}, gw.applyCalls)
	})

	t.Run("FixedDiscountAtNinetyPercentIsCapped", func(t *testing.T) {
		gw := newFakeGateway()
		gw.seedServerItem("srv-v1", "v1", 100.00, 1)
		gw.verifyResult = &CouponVerification{
			ID: "c2", Code: "BIGSAVE", DiscountType: DiscountFixedAmount,
			DiscountValue: 95, DiscountAmount: 95.00, FinalAmount: 5.00,
		}
		o, _, collector := newTestOrchestrator(t, testVariants(), gw)
		o.Resolve(ctx, true)

		require.NoError(t, o.ApplyCoupon(ctx, "BIGSAVE"))

		state := o.State()
		require.NotNil(t, state.Coupon)
		assert.True(t, state.Coupon.IsDiscountCapped)

		infoNotices := 0
		for _, n := range collector.Drain() {
			if n.Kind == "info" {
				infoNotices++
			}
		}
		assert.Equal(t, 1, infoNotices, "capped notice fires exactly once per successful verify")
	})

	t.Run("VerifyFailureNotifiesAndPropagates", func(t *testing.T) {
		gw := newFakeGateway()
		gw.seedServerItem("srv-v1", "v1", 10.00, 1)
		gw.verifyErr = &HTTPError{Status: 400, Message: "Minimum order value not met"}
		o, _, collector := newTestOrchestrator(t, testVariants(), gw)
		o.Resolve(ctx, true)

		err := o.ApplyCoupon(ctx, "SAVE10")
		require.Error(t, err)
		assert.Nil(t, o.State().Coupon)

		notices := noticeMessages(collector.Drain())
		assert.Contains(t, notices, "Minimum order value not met")
	})

	t.Run("BackgroundApplyFailureDoesNotRollBack", func(t *testing.T) {
		gw := newFakeGateway()
		gw.seedServerItem("srv-v1", "v1", 50.00, 1)
		gw.verifyResult = &CouponVerification{ID: "c1", Code: "SAVE10", DiscountType: DiscountPercentage, DiscountAmount: 5.00}
		gw.applyErr = &HTTPError{Status: 500, Message: "flaky"}
		o, _, _ := newTestOrchestrator(t, testVariants(), gw)
		o.Resolve(ctx, true)

		require.NoError(t, o.ApplyCoupon(ctx, "SAVE10"))
		o.bg.Wait()

		assert.NotNil(t, o.State().Coupon)
	})

	t.Run("CartChangeTriggersDebouncedReverify", func(t *testing.T) {
		gw := newFakeGateway()
		gw.seedServerItem("srv-v1", "v1", 10.00, 10)
		gw.verifyResult = &CouponVerification{ID: "c1", Code: "SAVE10", DiscountType: DiscountPercentage, DiscountAmount: 10.00}
		o, _, _ := newTestOrchestrator(t, testVariants(), gw)
		o.Resolve(ctx, true)
		require.NoError(t, o.ApplyCoupon(ctx, "SAVE10"))
		require.Equal(t, 1, gw.verifyCallCount())

		// Two rapid mutations coalesce into a single re-verification.
		require.NoError(t, o.UpdateCartItem(ctx, "srv-v1", 8))
		require.NoError(t, o.UpdateCartItem(ctx, "srv-v1", 5))

		assert.Eventually(t, func() bool {
			return gw.verifyCallCount() == 2
		}, time.Second, 5*time.Millisecond)

		time.Sleep(5 * testCartConfig().CouponDebounce)
		assert.Equal(t, 2, gw.verifyCallCount())
	})

	t.Run("NoopChangeSkipsReverify", func(t *testing.T) {
		gw := newFakeGateway()
		gw.seedServerItem("srv-v1", "v1", 10.00, 5)
		gw.verifyResult = &CouponVerification{ID: "c1", Code: "SAVE10", DiscountType: DiscountPercentage, DiscountAmount: 5.00}
		o, _, _ := newTestOrchestrator(t, testVariants(), gw)
		o.Resolve(ctx, true)
		require.NoError(t, o.ApplyCoupon(ctx, "SAVE10"))

		// Same quantity: subtotal and item count are unchanged.
		require.NoError(t, o.UpdateCartItem(ctx, "srv-v1", 5))

		time.Sleep(5 * testCartConfig().CouponDebounce)
		assert.Equal(t, 1, gw.verifyCallCount())
	})

	t.Run("FailedReverifyClearsCouponWithNotice", func(t *testing.T) {
		gw := newFakeGateway()
		gw.seedServerItem("srv-v1", "v1", 50.00, 2)
		gw.verifyResult = &CouponVerification{ID: "c1", Code: "SAVE95", DiscountType: DiscountFixedAmount, DiscountAmount: 95.00}
		o, _, collector := newTestOrchestrator(t, testVariants(), gw)
		o.Resolve(ctx, true)
		require.NoError(t, o.ApplyCoupon(ctx, "SAVE95"))
		collector.Drain()

		// Cart shrinks below the coupon minimum; the server now rejects it.
		gw.mu.Lock()
		gw.verifyErr = &HTTPError{Status: 400, Message: "Minimum order value not met"}
		gw.mu.Unlock()

		require.NoError(t, o.UpdateCartItem(ctx, "srv-v1", 1))

		assert.Eventually(t, func() bool {
			return o.State().Coupon == nil
		}, time.Second, 5*time.Millisecond)

		notices := collector.Drain()
		require.NotEmpty(t, notices)
		assert.Contains(t, notices[len(notices)-1].Message, "no longer valid")
	})

	t.Run("RemoveCouponClearsStateAndRefetches", func(t *testing.T) {
		gw := newFakeGateway()
		gw.seedServerItem("srv-v1", "v1", 50.00, 1)
		gw.verifyResult = &CouponVerification{ID: "c1", Code: "SAVE10", DiscountType: DiscountPercentage, DiscountAmount: 5.00}
		o, _, _ := newTestOrchestrator(t, testVariants(), gw)
		o.Resolve(ctx, true)
		require.NoError(t, o.ApplyCoupon(ctx, "SAVE10"))

		fetchesBefore := gw.fetchCalls
		o.RemoveCoupon(ctx)
		o.bg.Wait()

		assert.Nil(t, o.State().Coupon)
		assert.Empty(t, o.State().Error)
		assert.Greater(t, gw.fetchCalls, fetchesBefore)
	})
}

func TestOrchestrator_Totals(t *testing.T) {
	ctx := context.Background()

	gw := newFakeGateway()
	gw.seedServerItem("srv-v1", "v1", 50.00, 2)
	gw.verifyResult = &CouponVerification{ID: "c1", Code: "SAVE10", DiscountType: DiscountPercentage, DiscountAmount: 10.00}
	o, _, _ := newTestOrchestrator(t, testVariants(), gw)
	o.Resolve(ctx, true)
	require.NoError(t, o.ApplyCoupon(ctx, "SAVE10"))

	totals := o.Totals()
	assert.InDelta(t, 100.00, totals.Subtotal, 0.001)
	assert.InDelta(t, 10.00, totals.Discount, 0.001)
	assert.Zero(t, totals.Tax)
	assert.InDelta(t, 90.00, totals.Total, 0.001)
}
