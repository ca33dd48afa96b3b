package handlers

import (
	"net/http"
	"strconv"

	"flowermarket-svc/catalog"
	"flowermarket-svc/middleware"
	"flowermarket-svc/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ProductHandler struct {
	catalog *catalog.Service
	logger  *zap.Logger
}

func NewProductHandler(svc *catalog.Service, logger *zap.Logger) *ProductHandler {
	return &ProductHandler{catalog: svc, logger: logger}
}

func (h *ProductHandler) CreateProduct(c *gin.Context) {
	var req models.CreateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	viewer, _ := middleware.ViewerFrom(c)
	product, err := h.catalog.CreateProduct(c.Request.Context(), viewer, catalog.CreateProductInput{
		Name:     req.Name,
		Price:    req.Price,
		Stock:    req.Stock,
		IsActive: req.IsActive,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, product)
}

func (h *ProductHandler) GetProduct(c *gin.Context) {
	id, ok := productID(c)
	if !ok {
		return
	}

	product, err := h.catalog.GetProduct(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *ProductHandler) ListProducts(c *gin.Context) {
	products, err := h.catalog.ListProducts(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": products})
}

func (h *ProductHandler) StoreProducts(c *gin.Context) {
	viewer, _ := middleware.ViewerFrom(c)
	products, err := h.catalog.ListStoreProducts(c.Request.Context(), viewer)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": products})
}

func (h *ProductHandler) UpdateProduct(c *gin.Context) {
	id, ok := productID(c)
	if !ok {
		return
	}
	var req models.UpdateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	viewer, _ := middleware.ViewerFrom(c)
	product, err := h.catalog.UpdateProduct(c.Request.Context(), viewer, id, catalog.UpdateProductInput{
		Name:     req.Name,
		Price:    req.Price,
		Stock:    req.Stock,
		IsActive: req.IsActive,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": product})
}

func (h *ProductHandler) DeleteProduct(c *gin.Context) {
	id, ok := productID(c)
	if !ok {
		return
	}

	viewer, _ := middleware.ViewerFrom(c)
	archived, err := h.catalog.DeleteProduct(c.Request.Context(), viewer, id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	message := "Produit supprimé avec succès"
	if archived {
		message = "Le produit a été archivé car il possède des commandes passées."
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "archived": archived, "message": message})
}

func productID(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		badRequest(c, "Identifiant de produit invalide")
		return 0, false
	}
	return id, true
}
