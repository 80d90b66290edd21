// internal/domain/cart/entity.go
package cart

import (
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
)

// GuestItemIDPrefix marks cart item ids generated locally for guest sessions.
// Server-issued ids never carry this prefix, which is how the orchestrator
// tells a logged-out leftover apart from a real server cart.
const GuestItemIDPrefix = "guest_"

// Item represents a single cart line in the unified cart shape consumed by
// storefront clients, regardless of whether it originated locally or upstream.
type Item struct {
	ID               string  `json:"id"`
	ProductVariantID string  `json:"product_variant_id"`
	ProductID        string  `json:"product_id"`
	ProductName      string  `json:"product_name"`
	ProductSlug      string  `json:"product_slug"`
	VariantName      string  `json:"variant_name"`
	Price            float64 `json:"price"`
	Quantity         int     `json:"quantity"`
	Subtotal         string  `json:"subtotal"`
	Image            string  `json:"image"`
	SKU              string  `json:"sku"`
	Flavor           string  `json:"flavor,omitempty"`
	Weight           string  `json:"weight,omitempty"`

	// Carried for coupon verification snapshots when the upstream provides
	// them; empty on guest-originated lines.
	BrandID     string   `json:"brand_id,omitempty"`
	CategoryIDs []string `json:"category_ids,omitempty"`
}

// Cart is the unified cart view. ItemCount, TotalQuantity and Subtotal are
// derived fields and must be recomputed after every mutation.
type Cart struct {
	Items         []Item  `json:"items"`
	Subtotal      string  `json:"subtotal"`
	ItemCount     int     `json:"item_count"`
	TotalQuantity int     `json:"total_quantity"`
	ShippingTotal float64 `json:"shipping_total,omitempty"`
}

// DiscountType enumerates the coupon discount modes returned by the
// verification endpoint.
type DiscountType string

const (
	DiscountPercentage  DiscountType = "PERCENTAGE"
	DiscountFixedAmount DiscountType = "FIXED_AMOUNT"
)

// Coupon is the applied-coupon state held by the orchestrator for an
// authenticated session.
type Coupon struct {
	ID                 string       `json:"id"`
	Code               string       `json:"code"`
	DiscountType       DiscountType `json:"discount_type"`
	DiscountValue      float64      `json:"discount_value"`
	DiscountAmount     float64      `json:"discount_amount"`
	FinalAmount        float64      `json:"final_amount"`
	ApplicableSubtotal float64      `json:"applicable_subtotal"`
	MatchedItems       int          `json:"matched_items"`
	IsDiscountCapped   bool         `json:"is_discount_capped"`
}

// CouponItem is one line of the cart snapshot sent to coupon verification.
type CouponItem struct {
	ProductID        string   `json:"product_id"`
	ProductVariantID string   `json:"product_variant_id"`
	BrandID          string   `json:"brand_id,omitempty"`
	CategoryIDs      []string `json:"category_ids,omitempty"`
	Price            float64  `json:"price"`
	Quantity         int      `json:"quantity"`
}

// Totals is the checkout-facing breakdown derived from the current cart and
// coupon.
type Totals struct {
	Subtotal float64 `json:"subtotal"`
	Discount float64 `json:"discount"`
	Shipping float64 `json:"shipping"`
	Tax      float64 `json:"tax"`
	Total    float64 `json:"total"`
}

// MergeSummary reports the outcome of a guest-to-user cart merge. Success
// means the merge ran, not that every item made it across.
type MergeSummary struct {
	Success      bool   `json:"success"`
	MergedItems  int    `json:"merged_items"`
	SkippedItems int    `json:"skipped_items"`
	Message      string `json:"message"`
}

// EmptyCart returns the canonical empty cart.
func EmptyCart() Cart {
	return Cart{
		Items:         []Item{},
		Subtotal:      "0.00",
		ItemCount:     0,
		TotalQuantity: 0,
	}
}

// NewGuestItemID generates a locally unique, guest-prefixed cart item id.
func NewGuestItemID() string {
	return GuestItemIDPrefix + uuid.New().String()
}

// IsGuestItemID reports whether an item id was generated for a guest session.
func IsGuestItemID(id string) bool {
	return strings.HasPrefix(id, GuestItemIDPrefix)
}

// FormatAmount renders a monetary amount as a fixed 2-decimal string.
func FormatAmount(amount float64) string {
	return fmt.Sprintf("%.2f", amount)
}

// NormalizeQuantity coerces a requested quantity to a positive integer.
// Add paths treat zero and negative requests as 1; update paths check the
// removal threshold before calling this.
func NormalizeQuantity(quantity int) int {
	if quantity < 1 {
		return 1
	}
	return quantity
}

// Recompute returns a cart whose derived fields are recalculated from items.
// Every mutation, local or optimistic, goes through here so the invariants
// itemCount == len(items), totalQuantity == sum(quantity) and
// subtotal == sum(price*quantity) hold after each step.
func Recompute(items []Item) Cart {
	if items == nil {
		items = []Item{}
	}

	var subtotal float64
	totalQuantity := 0
	for i := range items {
		items[i].Subtotal = FormatAmount(items[i].Price * float64(items[i].Quantity))
		totalQuantity += items[i].Quantity
		subtotal += items[i].Price * float64(items[i].Quantity)
	}

	// Guard against negative zero leaking into the formatted subtotal.
	subtotal = math.Max(subtotal, 0)

	return Cart{
		Items:         items,
		Subtotal:      FormatAmount(subtotal),
		ItemCount:     len(items),
		TotalQuantity: totalQuantity,
	}
}

// SubtotalValue parses the cart's formatted subtotal back into a float for
// totals math. A malformed subtotal reads as zero.
func (c Cart) SubtotalValue() float64 {
	var v float64
	if _, err := fmt.Sscanf(c.Subtotal, "%f", &v); err != nil {
		return 0
	}
	return v
}

// IsEmpty reports whether the cart has no items.
func (c Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// Clone returns a deep copy of the cart so optimistic patches never alias the
// item slice held by a previous snapshot.
func (c Cart) Clone() Cart {
	out := c
	out.Items = make([]Item, len(c.Items))
	copy(out.Items, c.Items)
	return out
}

// SetItemQuantity returns a new cart with the item's quantity replaced, or
// the item removed when quantity drops to zero or below. The input cart is
// not modified.
func SetItemQuantity(c Cart, itemID string, quantity int) (Cart, error) {
	items := make([]Item, 0, len(c.Items))
	found := false

	for _, item := range c.Items {
		if item.ID != itemID {
			items = append(items, item)
			continue
		}
		found = true
		if quantity <= 0 {
			continue // removal threshold
		}
		item.Quantity = quantity
		items = append(items, item)
	}

	if !found {
		return c, &NotFoundError{Resource: "cart item", ID: itemID}
	}
	return Recompute(items), nil
}

// RemoveItem returns a new cart without the given item.
func RemoveItem(c Cart, itemID string) (Cart, error) {
	return SetItemQuantity(c, itemID, 0)
}
