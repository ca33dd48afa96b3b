package handlers

import (
	"net/http"

	"flowermarket-svc/middleware"
	"flowermarket-svc/notifications"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type NotificationHandler struct {
	notifications *notifications.Service
	logger        *zap.Logger
}

func NewNotificationHandler(svc *notifications.Service, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{notifications: svc, logger: logger}
}

func (h *NotificationHandler) List(c *gin.Context) {
	viewer, _ := middleware.ViewerFrom(c)
	notes, err := h.notifications.ListUnread(c.Request.Context(), viewer)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": notes})
}

func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	viewer, _ := middleware.ViewerFrom(c)
	count, err := h.notifications.UnreadCount(c.Request.Context(), viewer)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": count})
}

func (h *NotificationHandler) MarkRead(c *gin.Context) {
	viewer, _ := middleware.ViewerFrom(c)
	if err := h.notifications.MarkRead(c.Request.Context(), viewer, c.Param("id")); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// TrackVisit is public: the app calls it before sign-in.
func (h *NotificationHandler) TrackVisit(c *gin.Context) {
	if err := h.notifications.TrackVisit(c.Request.Context(), c.DefaultQuery("type", "Client")); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
