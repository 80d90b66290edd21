// internal/domain/cart/errors.go
package cart

import (
	"errors"
	"fmt"

	"github.com/your-org/storefront-cart/internal/pkg/apiclient"
)

// HTTPError and NetworkError originate at the upstream client boundary and
// are re-exported here so callers deal with one error taxonomy.
type (
	HTTPError    = apiclient.HTTPError
	NetworkError = apiclient.NetworkError
)

// NotFoundError indicates a referenced cart item or product variant does not
// exist. It is propagated to the caller and never retried.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ValidationError indicates a user action that cannot proceed as requested,
// such as applying a coupon without being signed in. It is surfaced as a
// notification rather than corrupting cart state.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// IsNotFound reports whether err is a NotFoundError anywhere in its chain.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// UserMessage extracts a message suitable for display from an error,
// preferring the server-provided text and falling back to a generic string.
func UserMessage(err error, fallback string) string {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) && httpErr.Message != "" {
		return httpErr.Message
	}
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return validationErr.Message
	}
	return fallback
}
