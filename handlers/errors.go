package handlers

import (
	"net/http"

	"flowermarket-svc/apperr"
	"flowermarket-svc/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation, apperr.KindConflict:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindUnauthorized:
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}

// respondError writes the {error, code[, stock]} body the app expects.
// Internal failures never leak their cause.
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	e, ok := apperr.As(err)
	if !ok {
		logger.Error("Request failed",
			zap.String("trace_id", middleware.GetTraceID(c.Request.Context())),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur interne du serveur", "code": apperr.KindInternal.String()})
		return
	}

	body := gin.H{"error": e.Message, "code": e.Code}
	if e.Stock != nil {
		body["stock"] = *e.Stock
	}
	c.JSON(statusFor(e.Kind), body)
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": message, "code": apperr.KindValidation.String()})
}
