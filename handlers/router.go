package handlers

import (
	"flowermarket-svc/middleware"
	"flowermarket-svc/models"

	"github.com/gin-gonic/gin"
)

type Handlers struct {
	Orders        *OrderHandler
	Notifications *NotificationHandler
	Accounts      *AccountHandler
	Products      *ProductHandler
}

// RegisterRoutes mounts the /api tree. auth resolves the caller and must
// run before any role check.
func RegisterRoutes(router gin.IRouter, h Handlers, auth gin.HandlerFunc) {
	api := router.Group("/api")

	authGroup := api.Group("/auth")
	authGroup.POST("/register", h.Accounts.Register)
	authGroup.POST("/exchange", h.Accounts.Exchange)

	api.POST("/market/track-visit", h.Notifications.TrackVisit)
	api.GET("/market/products", h.Products.ListProducts)
	api.GET("/market/products/:id", h.Products.GetProduct)

	market := api.Group("/market", auth)
	market.POST("/orders", h.Orders.CreateOrder)
	market.GET("/my-orders", h.Orders.MyOrders)
	market.PUT("/orders/:id/status", h.Orders.UpdateStatus)

	prestataire := api.Group("/prestataire", auth, middleware.RequireRole(models.RolePrestataire))
	prestataire.GET("/orders", h.Orders.StoreOrders)
	prestataire.PUT("/orders/:id", h.Orders.UpdatePrestataireOrder)
	prestataire.GET("/products", h.Products.StoreProducts)
	prestataire.POST("/products", h.Products.CreateProduct)
	prestataire.PUT("/products/:id", h.Products.UpdateProduct)
	prestataire.DELETE("/products/:id", h.Products.DeleteProduct)

	admin := api.Group("/admin", auth, middleware.RequireRole(models.RoleAdmin))
	admin.PUT("/prestataires/:id/approve", h.Accounts.ApprovePrestataire)

	notifications := api.Group("/notifications", auth)
	notifications.GET("", h.Notifications.List)
	notifications.GET("/unread-count", h.Notifications.UnreadCount)
	notifications.PUT("/:id/read", h.Notifications.MarkRead)
}
