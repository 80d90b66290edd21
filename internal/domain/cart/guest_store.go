// internal/domain/cart/guest_store.go
package cart

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/your-org/storefront-cart/internal/domain/product"
	"github.com/your-org/storefront-cart/internal/infrastructure/storage"
)

const guestCartKeyPrefix = "cart:guest:"

// VariantLookup resolves variant pricing and metadata. Satisfied by
// *product.Service.
type VariantLookup interface {
	GetVariant(ctx context.Context, variantID string) (*product.Variant, error)
}

// GuestStore owns the persisted cart of unauthenticated sessions. It has no
// network dependency except the one catalog read needed to price a
// newly-added variant.
type GuestStore struct {
	store    storage.Store
	products VariantLookup
	logger   *logrus.Logger
	ttl      time.Duration
}

// NewGuestStore creates a guest cart store on top of a key-value backend.
func NewGuestStore(store storage.Store, products VariantLookup, logger *logrus.Logger, ttl time.Duration) *GuestStore {
	return &GuestStore{
		store:    store,
		products: products,
		logger:   logger,
		ttl:      ttl,
	}
}

func guestCartKey(sessionID string) string {
	return guestCartKeyPrefix + sessionID
}

// Get reads the persisted guest cart. Missing or corrupt data reads as the
// canonical empty cart; this path never fails.
func (g *GuestStore) Get(ctx context.Context, sessionID string) Cart {
	raw, err := g.store.Get(ctx, guestCartKey(sessionID))
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			g.logger.WithError(err).WithField("session_id", sessionID).
				Warn("Failed to read guest cart, falling back to empty cart")
		}
		return EmptyCart()
	}

	var cart Cart
	if err := json.Unmarshal([]byte(raw), &cart); err != nil {
		g.logger.WithError(err).WithField("session_id", sessionID).
			Warn("Corrupt guest cart payload, falling back to empty cart")
		return EmptyCart()
	}
	if cart.Items == nil {
		cart.Items = []Item{}
	}
	return cart
}

// Save persists the guest cart. Storage failures are logged and swallowed:
// the guest cart is best-effort by design.
func (g *GuestStore) Save(ctx context.Context, sessionID string, cart Cart) {
	payload, err := json.Marshal(cart)
	if err != nil {
		g.logger.WithError(err).WithField("session_id", sessionID).
			Error("Failed to serialize guest cart")
		return
	}

	if err := g.store.Set(ctx, guestCartKey(sessionID), string(payload), g.ttl); err != nil {
		g.logger.WithError(err).WithField("session_id", sessionID).
			Warn("Failed to persist guest cart")
	}
}

// Add puts a variant into the guest cart, incrementing quantity when the
// variant is already present. The variant lookup failing with a 404 surfaces
// as NotFoundError; a transport failure propagates so the caller can tell
// the shopper the add did not happen.
func (g *GuestStore) Add(ctx context.Context, sessionID, variantID string, quantity int) (Cart, error) {
	variant, err := g.products.GetVariant(ctx, variantID)
	if err != nil {
		var httpErr *HTTPError
		if errors.As(err, &httpErr) && httpErr.Status == 404 {
			return Cart{}, &NotFoundError{Resource: "product variant", ID: variantID}
		}
		return Cart{}, err
	}

	quantity = NormalizeQuantity(quantity)
	current := g.Get(ctx, sessionID)

	found := false
	for i := range current.Items {
		if current.Items[i].ProductVariantID == variantID {
			current.Items[i].Quantity += quantity
			found = true
			break
		}
	}

	if !found {
		current.Items = append(current.Items, Item{
			ID:               NewGuestItemID(),
			ProductVariantID: variant.ID,
			ProductID:        variant.ProductID,
			ProductName:      variant.ProductName,
			ProductSlug:      variant.ProductSlug,
			VariantName:      variant.DisplayName(),
			Price:            variant.Price,
			Quantity:         quantity,
			Image:            variant.Image,
			SKU:              variant.SKU,
			Flavor:           variant.Flavor,
			Weight:           variant.Weight,
		})
	}

	updated := Recompute(current.Items)
	g.Save(ctx, sessionID, updated)
	return updated, nil
}

// UpdateItem sets an item's quantity; zero or below removes the item. The
// removal threshold here is deliberately different from Add's floor of 1.
func (g *GuestStore) UpdateItem(ctx context.Context, sessionID, itemID string, quantity int) (Cart, error) {
	current := g.Get(ctx, sessionID)

	updated, err := SetItemQuantity(current, itemID, quantity)
	if err != nil {
		return Cart{}, err
	}

	g.Save(ctx, sessionID, updated)
	return updated, nil
}

// Remove deletes an item from the guest cart.
func (g *GuestStore) Remove(ctx context.Context, sessionID, itemID string) (Cart, error) {
	return g.UpdateItem(ctx, sessionID, itemID, 0)
}

// Clear resets the guest cart to the canonical empty cart and persists it.
func (g *GuestStore) Clear(ctx context.Context, sessionID string) Cart {
	empty := EmptyCart()
	g.Save(ctx, sessionID, empty)
	return empty
}

// HasItems reports whether the guest cart contains at least one item.
func (g *GuestStore) HasItems(ctx context.Context, sessionID string) bool {
	return !g.Get(ctx, sessionID).IsEmpty()
}

// ItemCount returns the guest cart's total quantity, 0 when empty.
func (g *GuestStore) ItemCount(ctx context.Context, sessionID string) int {
	return g.Get(ctx, sessionID).TotalQuantity
}
