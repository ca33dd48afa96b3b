package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"flowermarket-svc/models"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const (
	viewerKey      = "viewer"
	FirebaseHeader = "X-Firebase-UID"
)

var ErrInvalidToken = errors.New("invalid token")

// TokenIssuer signs and verifies the HS256 session tokens handed out by the
// exchange endpoint.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

func (i *TokenIssuer) Issue(user *models.User) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": user.ID,
		"role":    string(user.Role),
		"exp":     i.now().Add(i.ttl).Unix(),
	})
	return token.SignedString(i.secret)
}

func (i *TokenIssuer) Parse(raw string) (models.Viewer, error) {
	token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return i.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(i.now))
	if err != nil || !token.Valid {
		return models.Viewer{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return models.Viewer{}, ErrInvalidToken
	}
	userID, _ := claims["user_id"].(string)
	rawRole, _ := claims["role"].(string)
	role, ok := models.ParseRole(rawRole)
	if userID == "" || !ok {
		return models.Viewer{}, ErrInvalidToken
	}
	return models.Viewer{UserID: userID, Role: role}, nil
}

type UserLookup interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
}

// AuthMiddleware resolves the caller from a bearer token, falling back to
// the device header carrying the external uid.
func AuthMiddleware(issuer *TokenIssuer, users UserLookup, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if header := c.GetHeader("Authorization"); strings.HasPrefix(header, "Bearer ") {
			viewer, err := issuer.Parse(strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				abortUnauthorized(c, "Session invalide ou expirée")
				return
			}
			c.Set(viewerKey, viewer)
			c.Next()
			return
		}

		uid := strings.TrimSpace(c.GetHeader(FirebaseHeader))
		if uid == "" {
			abortUnauthorized(c, "Authentification requise")
			return
		}
		user, err := users.GetUser(c.Request.Context(), uid)
		if err != nil {
			logger.Warn("Unknown uid in request header",
				zap.String("trace_id", GetTraceID(c.Request.Context())),
				zap.String("uid", uid),
				zap.Error(err),
			)
			abortUnauthorized(c, "Utilisateur inconnu")
			return
		}
		c.Set(viewerKey, models.Viewer{UserID: user.ID, Role: user.Role})
		c.Next()
	}
}

func RequireRole(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		viewer, ok := ViewerFrom(c)
		if !ok {
			abortUnauthorized(c, "Authentification requise")
			return
		}
		for _, r := range roles {
			if viewer.Role == r {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Accès refusé", "code": "Forbidden"})
	}
}

func ViewerFrom(c *gin.Context) (models.Viewer, bool) {
	v, ok := c.Get(viewerKey)
	if !ok {
		return models.Viewer{}, false
	}
	viewer, ok := v.(models.Viewer)
	return viewer, ok
}

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": message, "code": "Unauthorized"})
}
