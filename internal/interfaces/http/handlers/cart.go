// internal/interfaces/http/handlers/cart.go
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/your-org/storefront-cart/internal/domain/cart"
	"github.com/your-org/storefront-cart/internal/interfaces/http/middleware"
	"github.com/your-org/storefront-cart/internal/pkg/apiclient"
)

const sessionCookieName = "cart_session"

// CartHandler exposes the cart orchestrator over HTTP
type CartHandler struct {
	sessions *cart.Manager
}

// NewCartHandler creates a new cart handler
func NewCartHandler(sessions *cart.Manager) *CartHandler {
	return &CartHandler{sessions: sessions}
}

// AddToCartRequest represents add to cart request
type AddToCartRequest struct {
	ProductVariantID string `json:"productVariantId" binding:"required"`
	Quantity         int    `json:"quantity"`
}

// UpdateCartItemRequest represents update cart item request
type UpdateCartItemRequest struct {
	Quantity int `json:"quantity"`
}

// ApplyCouponRequest represents a coupon apply request
type ApplyCouponRequest struct {
	Code string `json:"code" binding:"required"`
}

// resolve locates the request's cart session and drives the orchestrator's
// auth-state machine before the operation runs.
func (h *CartHandler) resolve(c *gin.Context) (*cart.Session, context.Context) {
	sessionID := h.getOrCreateSessionID(c)

	ctx := c.Request.Context()
	if token := middleware.AccessTokenFromContext(c); token != "" {
		ctx = apiclient.WithToken(ctx, token)
	}

	session := h.sessions.Get(sessionID)
	session.Orchestrator.Resolve(ctx, middleware.IsAuthenticated(c))
	return session, ctx
}

// GetCart handles GET /cart
func (h *CartHandler) GetCart(c *gin.Context) {
	session, _ := h.resolve(c)

	c.JSON(http.StatusOK, gin.H{
		"message": "Cart retrieved successfully",
		"data":    session.Orchestrator.State(),
		"notices": session.Notices.Drain(),
	})
}

// AddToCart handles POST /cart/add
func (h *CartHandler) AddToCart(c *gin.Context) {
	session, ctx := h.resolve(c)

	var req AddToCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request data",
			"details": err.Error(),
		})
		return
	}

	if err := session.Orchestrator.AddToCart(ctx, req.ProductVariantID, req.Quantity); err != nil {
		h.respondError(c, session, err, "Failed to add item to cart")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Item added to cart successfully",
		"data":    session.Orchestrator.State(),
		"notices": session.Notices.Drain(),
	})
}

// UpdateCartItem handles PATCH /cart/update/:itemId
func (h *CartHandler) UpdateCartItem(c *gin.Context) {
	session, ctx := h.resolve(c)

	var req UpdateCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request data",
			"details": err.Error(),
		})
		return
	}

	if err := session.Orchestrator.UpdateCartItem(ctx, c.Param("itemId"), req.Quantity); err != nil {
		h.respondError(c, session, err, "Failed to update cart item")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Cart item updated successfully",
		"data":    session.Orchestrator.State(),
		"notices": session.Notices.Drain(),
	})
}

// RemoveFromCart handles DELETE /cart/remove/:itemId
func (h *CartHandler) RemoveFromCart(c *gin.Context) {
	session, ctx := h.resolve(c)

	if err := session.Orchestrator.RemoveFromCart(ctx, c.Param("itemId")); err != nil {
		h.respondError(c, session, err, "Failed to remove cart item")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Cart item removed successfully",
		"data":    session.Orchestrator.State(),
		"notices": session.Notices.Drain(),
	})
}

// ClearCart handles DELETE /cart/clear
func (h *CartHandler) ClearCart(c *gin.Context) {
	session, ctx := h.resolve(c)

	if err := session.Orchestrator.ClearCart(ctx); err != nil {
		h.respondError(c, session, err, "Failed to clear cart")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Cart cleared successfully",
		"data":    session.Orchestrator.State(),
		"notices": session.Notices.Drain(),
	})
}

// GetCartItemCount handles GET /cart/count
func (h *CartHandler) GetCartItemCount(c *gin.Context) {
	session, ctx := h.resolve(c)

	c.JSON(http.StatusOK, gin.H{
		"message": "Cart item count retrieved successfully",
		"data": gin.H{
			"count": session.Orchestrator.ItemCount(ctx),
		},
	})
}

// GetCartTotals handles GET /cart/totals
func (h *CartHandler) GetCartTotals(c *gin.Context) {
	session, _ := h.resolve(c)

	c.JSON(http.StatusOK, gin.H{
		"message": "Cart totals retrieved successfully",
		"data":    session.Orchestrator.Totals(),
	})
}

// ApplyCoupon handles POST /coupons/apply
func (h *CartHandler) ApplyCoupon(c *gin.Context) {
	session, ctx := h.resolve(c)

	var req ApplyCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request data",
			"details": err.Error(),
		})
		return
	}

	if err := session.Orchestrator.ApplyCoupon(ctx, req.Code); err != nil {
		h.respondError(c, session, err, "Failed to apply coupon")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Coupon processed",
		"data":    session.Orchestrator.State(),
		"notices": session.Notices.Drain(),
	})
}

// RemoveCoupon handles DELETE /coupons/remove
func (h *CartHandler) RemoveCoupon(c *gin.Context) {
	session, ctx := h.resolve(c)

	session.Orchestrator.RemoveCoupon(ctx)

	c.JSON(http.StatusOK, gin.H{
		"message": "Coupon removed successfully",
		"data":    session.Orchestrator.State(),
		"notices": session.Notices.Drain(),
	})
}

// respondError maps domain errors onto HTTP statuses. The cart state in the
// payload is the last known good cart; it never goes blank on error.
func (h *CartHandler) respondError(c *gin.Context, session *cart.Session, err error, fallback string) {
	status := http.StatusBadGateway

	var notFound *cart.NotFoundError
	var validation *cart.ValidationError
	var httpErr *cart.HTTPError
	var netErr *cart.NetworkError

	switch {
	case errors.As(err, &notFound):
		status = http.StatusNotFound
	case errors.As(err, &validation):
		status = http.StatusBadRequest
	case errors.As(err, &httpErr):
		if httpErr.Status >= 400 && httpErr.Status < 500 {
			status = httpErr.Status
		}
	case errors.As(err, &netErr):
		status = http.StatusBadGateway
	}

	c.JSON(status, gin.H{
		"error":   cart.UserMessage(err, fallback),
		"data":    session.Orchestrator.State(),
		"notices": session.Notices.Drain(),
	})
}

// getOrCreateSessionID reads the cart session cookie, minting one for first
// time visitors.
func (h *CartHandler) getOrCreateSessionID(c *gin.Context) string {
	if sessionID, err := c.Cookie(sessionCookieName); err == nil && sessionID != "" {
		return sessionID
	}

	sessionID := uuid.New().String()
	c.SetCookie(sessionCookieName, sessionID, 60*60*24*30, "/", "", false, true)
	return sessionID
}
