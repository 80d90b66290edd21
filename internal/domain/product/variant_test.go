package product

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/storefront-cart/internal/pkg/apiclient"
)

func TestVariantDisplayName(t *testing.T) {
	tests := []struct {
		name    string
		variant Variant
		want    string
	}{
		{"FlavorAndWeight", Variant{Name: "Default", Flavor: "Chocolate", Weight: "1kg"}, "Chocolate 1kg"},
		{"FlavorOnly", Variant{Name: "Default", Flavor: "Vanilla"}, "Vanilla"},
		{"WeightOnly", Variant{Name: "Default", Weight: "500g"}, "500g"},
		{"FallsBackToName", Variant{Name: "Default"}, "Default"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.variant.DisplayName())
		})
	}
}

func TestService_GetVariant(t *testing.T) {
	ctx := context.Background()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	t.Run("FetchesByID", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/public/products/variants/v1", r.URL.Path)
			w.Write([]byte(`{"success":true,"data":{
				"id":"v1","product_id":"p1","product_name":"Whey","price":10.5,
				"flavor":"Chocolate","weight":"1kg"
			}}`))
		}))
		defer server.Close()

		svc := NewService(apiclient.New(server.URL, 5*time.Second, logger))
		variant, err := svc.GetVariant(ctx, "v1")
		require.NoError(t, err)

		assert.Equal(t, "v1", variant.ID)
		assert.InDelta(t, 10.5, variant.Price, 0.001)
		assert.Equal(t, "Chocolate 1kg", variant.DisplayName())
	})

	t.Run("MissingVariantIs404", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"success":false,"message":"Variant not found"}`))
		}))
		defer server.Close()

		svc := NewService(apiclient.New(server.URL, 5*time.Second, logger))
		_, err := svc.GetVariant(ctx, "missing")
		require.Error(t, err)

		var httpErr *apiclient.HTTPError
		require.True(t, errors.As(err, &httpErr))
		assert.Equal(t, http.StatusNotFound, httpErr.Status)
	})
}
