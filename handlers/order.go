package handlers

import (
	"net/http"
	"strconv"

	"flowermarket-svc/middleware"
	"flowermarket-svc/models"
	"flowermarket-svc/orders"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type OrderHandler struct {
	orders *orders.Service
	logger *zap.Logger
}

func NewOrderHandler(svc *orders.Service, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{orders: svc, logger: logger}
}

func (h *OrderHandler) CreateOrder(c *gin.Context) {
	var req models.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	viewer, _ := middleware.ViewerFrom(c)
	order, err := h.orders.CreateOrder(c.Request.Context(), viewer, orders.CreateOrderInput{
		ProductID:       req.ProductID,
		Quantity:        req.Quantity,
		ShippingAddress: req.ShippingAddress,
		Phone:           req.Phone,
		PaymentMethod:   req.PaymentMethod,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Commande créée avec succès", "orderId": order.ID})
}

// UpdateStatus serves the marketplace route used by the admin dashboard.
func (h *OrderHandler) UpdateStatus(c *gin.Context) {
	order, ok := h.updateStatus(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Statut mis à jour", "status": order.Status})
}

// UpdatePrestataireOrder serves the vendor route, which wraps the result
// in the {success, data} envelope.
func (h *OrderHandler) UpdatePrestataireOrder(c *gin.Context) {
	order, ok := h.updateStatus(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    gin.H{"id": order.ID, "status": order.Status},
	})
}

func (h *OrderHandler) updateStatus(c *gin.Context) (*models.Order, bool) {
	orderID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		badRequest(c, "Identifiant de commande invalide")
		return nil, false
	}

	var req models.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return nil, false
	}

	viewer, _ := middleware.ViewerFrom(c)
	order, err := h.orders.UpdateStatus(c.Request.Context(), viewer, orderID, req.Status)
	if err != nil {
		respondError(c, h.logger, err)
		return nil, false
	}
	return order, true
}

func (h *OrderHandler) MyOrders(c *gin.Context) {
	viewer, _ := middleware.ViewerFrom(c)
	views, err := h.orders.ListMyOrders(c.Request.Context(), viewer)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": views})
}

func (h *OrderHandler) StoreOrders(c *gin.Context) {
	viewer, _ := middleware.ViewerFrom(c)
	views, err := h.orders.ListStoreOrders(c.Request.Context(), viewer)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": views})
}
