// internal/interfaces/http/routes/routes.go
package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/your-org/storefront-cart/internal/config"
	"github.com/your-org/storefront-cart/internal/domain/cart"
	"github.com/your-org/storefront-cart/internal/interfaces/http/handlers"
	"github.com/your-org/storefront-cart/internal/interfaces/http/middleware"
)

// SetupRoutes wires the cart endpoints. Everything is optional-auth: the
// same routes serve guest and authenticated sessions, and the handler layer
// decides which path the orchestrator takes.
func SetupRoutes(rg *gin.RouterGroup, sessions *cart.Manager, cfg *config.Config) {
	cartHandler := handlers.NewCartHandler(sessions)

	carts := rg.Group("/cart")
	carts.Use(middleware.OptionalAuth(cfg))
	{
		carts.GET("", cartHandler.GetCart)
		carts.GET("/count", cartHandler.GetCartItemCount)
		carts.GET("/totals", cartHandler.GetCartTotals)
		carts.POST("/add", cartHandler.AddToCart)
		carts.PATCH("/update/:itemId", cartHandler.UpdateCartItem)
		carts.DELETE("/remove/:itemId", cartHandler.RemoveFromCart)
		carts.DELETE("/clear", cartHandler.ClearCart)
	}

	coupons := rg.Group("/coupons")
	coupons.Use(middleware.OptionalAuth(cfg))
	{
		coupons.POST("/apply", cartHandler.ApplyCoupon)
		coupons.DELETE("/remove", cartHandler.RemoveCoupon)
	}
}
