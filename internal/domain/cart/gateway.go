// internal/domain/cart/gateway.go
package cart

import (
	"context"
	"net/http"

	"github.com/your-org/storefront-cart/internal/pkg/apiclient"
)

// CouponVerification is the upstream's pricing of a coupon against a cart
// snapshot. The capped-discount flag is derived by the orchestrator, not
// returned by the server.
type CouponVerification struct {
	ID                 string       `json:"id"`
	Code               string       `json:"code"`
	DiscountType       DiscountType `json:"discount_type"`
	DiscountValue      float64      `json:"discount_value"`
	DiscountAmount     float64      `json:"discount_amount"`
	FinalAmount        float64      `json:"final_amount"`
	ApplicableSubtotal float64      `json:"applicable_subtotal"`
	MatchedItems       int          `json:"matched_items"`
}

// Gateway is the contract over the upstream cart endpoints, used only for
// authenticated sessions. All calls fail with *HTTPError on non-2xx and
// *NetworkError on transport failure; recovery policy is the caller's.
type Gateway interface {
	FetchCart(ctx context.Context) (Cart, error)
	AddItem(ctx context.Context, variantID string, quantity int) error
	UpdateItem(ctx context.Context, itemID string, quantity int) error
	RemoveItem(ctx context.Context, itemID string) error
	ClearCart(ctx context.Context) error
	VerifyCoupon(ctx context.Context, code string, cartTotal float64, items []CouponItem) (*CouponVerification, error)
	ApplyCoupon(ctx context.Context, code string) error
}

// serverCartItem is the upstream cart line shape.
type serverCartItem struct {
	ID      string `json:"id"`
	Product struct {
		ID          string   `json:"id"`
		Name        string   `json:"name"`
		Slug        string   `json:"slug"`
		Image       string   `json:"image"`
		BrandID     string   `json:"brand_id"`
		CategoryIDs []string `json:"category_ids"`
	} `json:"product"`
	Variant struct {
		ID     string `json:"id"`
		Name   string `json:"name"`
		SKU    string `json:"sku"`
		Flavor string `json:"flavor"`
		Weight string `json:"weight"`
	} `json:"variant"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
	Subtotal string  `json:"subtotal"`
}

// serverCart is the upstream cart payload.
type serverCart struct {
	Items         []serverCartItem `json:"items"`
	ShippingTotal float64          `json:"shipping_total"`
}

// HTTPGateway implements Gateway against the upstream commerce API.
type HTTPGateway struct {
	api *apiclient.Client
}

// NewHTTPGateway creates a gateway on top of the upstream API client.
func NewHTTPGateway(api *apiclient.Client) *HTTPGateway {
	return &HTTPGateway{api: api}
}

// FetchCart retrieves the authenticated cart and maps it into the unified
// cart shape. Totals are recomputed at this boundary so the derived-field
// invariants hold no matter what the upstream sent.
func (g *HTTPGateway) FetchCart(ctx context.Context) (Cart, error) {
	var payload serverCart
	if err := g.api.Get(ctx, "/cart", &payload); err != nil {
		return Cart{}, err
	}

	items := make([]Item, 0, len(payload.Items))
	for _, line := range payload.Items {
		items = append(items, Item{
			ID:               line.ID,
			ProductVariantID: line.Variant.ID,
			ProductID:        line.Product.ID,
			ProductName:      line.Product.Name,
			ProductSlug:      line.Product.Slug,
			VariantName:      line.Variant.Name,
			Price:            line.Price,
			Quantity:         line.Quantity,
			Image:            line.Product.Image,
			SKU:              line.Variant.SKU,
			Flavor:           line.Variant.Flavor,
			Weight:           line.Variant.Weight,
			BrandID:          line.Product.BrandID,
			CategoryIDs:      line.Product.CategoryIDs,
		})
	}

	cart := Recompute(items)
	cart.ShippingTotal = payload.ShippingTotal
	return cart, nil
}

// AddItem adds a variant to the authenticated cart.
func (g *HTTPGateway) AddItem(ctx context.Context, variantID string, quantity int) error {
	body := map[string]interface{}{
		"productVariantId": variantID,
		"quantity":         quantity,
	}
	return g.api.Post(ctx, "/cart/add", body, nil)
}

// UpdateItem changes an item's quantity on the authenticated cart.
func (g *HTTPGateway) UpdateItem(ctx context.Context, itemID string, quantity int) error {
	body := map[string]interface{}{
		"quantity": quantity,
	}
	return g.api.Request(ctx, http.MethodPatch, "/cart/update/"+itemID, body, nil)
}

// RemoveItem deletes an item from the authenticated cart.
func (g *HTTPGateway) RemoveItem(ctx context.Context, itemID string) error {
	return g.api.Request(ctx, http.MethodDelete, "/cart/remove/"+itemID, nil, nil)
}

// ClearCart empties the authenticated cart.
func (g *HTTPGateway) ClearCart(ctx context.Context) error {
	return g.api.Request(ctx, http.MethodDelete, "/cart/clear", nil, nil)
}

// VerifyCoupon validates and prices a coupon against the cart snapshot.
func (g *HTTPGateway) VerifyCoupon(ctx context.Context, code string, cartTotal float64, items []CouponItem) (*CouponVerification, error) {
	body := map[string]interface{}{
		"code":      code,
		"cartTotal": cartTotal,
		"cartItems": items,
	}

	var verification CouponVerification
	if err := g.api.Post(ctx, "/coupons/verify", body, &verification); err != nil {
		return nil, err
	}
	return &verification, nil
}

// ApplyCoupon persists the applied coupon server-side. Fire-and-forget from
// the orchestrator's perspective.
func (g *HTTPGateway) ApplyCoupon(ctx context.Context, code string) error {
	body := map[string]interface{}{
		"code": code,
	}
	return g.api.Post(ctx, "/coupons/apply", body, nil)
}
