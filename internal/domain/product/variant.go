// internal/domain/product/variant.go
package product

import (
	"context"
	"strings"

	"github.com/your-org/storefront-cart/internal/pkg/apiclient"
)

// Variant is the public read model of a purchasable product variant, as
// served by the upstream catalog. It carries everything a guest cart line
// needs so the cart never has to join against the catalog again.
type Variant struct {
	ID          string  `json:"id"`
	ProductID   string  `json:"product_id"`
	ProductName string  `json:"product_name"`
	ProductSlug string  `json:"product_slug"`
	Name        string  `json:"name"`
	Price       float64 `json:"price"`
	SKU         string  `json:"sku"`
	Image       string  `json:"image"`
	Flavor      string  `json:"flavor,omitempty"`
	Weight      string  `json:"weight,omitempty"`
}

// DisplayName derives the storefront label for the variant, "<flavor>
// <weight>" when both are present, otherwise the upstream name.
func (v Variant) DisplayName() string {
	parts := make([]string, 0, 2)
	if v.Flavor != "" {
		parts = append(parts, v.Flavor)
	}
	if v.Weight != "" {
		parts = append(parts, v.Weight)
	}
	if len(parts) == 0 {
		return v.Name
	}
	return strings.Join(parts, " ")
}

// Service resolves variant pricing and metadata from the upstream catalog.
// This is the single network read on the guest add-to-cart path.
type Service struct {
	api *apiclient.Client
}

// NewService creates a variant lookup service.
func NewService(api *apiclient.Client) *Service {
	return &Service{api: api}
}

// GetVariant fetches one variant by id. A 404 surfaces as *apiclient.HTTPError
// with status 404; callers decide whether that is a user-facing not-found.
func (s *Service) GetVariant(ctx context.Context, variantID string) (*Variant, error) {
	var variant Variant
	if err := s.api.Get(ctx, "/public/products/variants/"+variantID, &variant); err != nil {
		return nil, err
	}
	return &variant, nil
}
