package handlers

import (
	"net/http"
	"strings"

	"flowermarket-svc/accounts"
	"flowermarket-svc/middleware"
	"flowermarket-svc/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type AccountHandler struct {
	accounts *accounts.Service
	logger   *zap.Logger
}

func NewAccountHandler(svc *accounts.Service, logger *zap.Logger) *AccountHandler {
	return &AccountHandler{accounts: svc, logger: logger}
}

// Register expects the external uid in the device header.
func (h *AccountHandler) Register(c *gin.Context) {
	var req models.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	user, err := h.accounts.Register(c.Request.Context(), accounts.RegisterInput{
		UID:      c.GetHeader(middleware.FirebaseHeader),
		FullName: req.FullName,
		Email:    req.Email,
		Role:     req.Role,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	message := "Inscription réussie"
	if !user.IsApproved {
		message = "Demande envoyée. En attente de validation par l'administrateur."
	}
	c.JSON(http.StatusOK, gin.H{"message": message, "user": user})
}

// Exchange accepts the uid from the device header or the JSON body.
func (h *AccountHandler) Exchange(c *gin.Context) {
	uid := strings.TrimSpace(c.GetHeader(middleware.FirebaseHeader))
	if uid == "" {
		var req models.ExchangeRequest
		if err := c.ShouldBindJSON(&req); err == nil {
			uid = req.FirebaseUID
		}
	}

	resp, err := h.accounts.Exchange(c.Request.Context(), uid)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *AccountHandler) ApprovePrestataire(c *gin.Context) {
	viewer, _ := middleware.ViewerFrom(c)
	store, err := h.accounts.ApprovePrestataire(c.Request.Context(), viewer, c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": store})
}
