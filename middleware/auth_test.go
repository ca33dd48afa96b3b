package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"flowermarket-svc/models"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

type stubUsers map[string]models.User

func (s stubUsers) GetUser(_ context.Context, id string) (*models.User, error) {
	u, ok := s[id]
	if !ok {
		return nil, errors.New("user not found")
	}
	return &u, nil
}

func TestTokenIssuer_RoundTrip(t *testing.T) {
	issuer := NewTokenIssuer("secret", time.Hour)

	token, err := issuer.Issue(&models.User{ID: "u1", Role: models.RolePrestataire})
	if err != nil {
		t.Fatalf("Failed to issue token: %v", err)
	}
	viewer, err := issuer.Parse(token)
	if err != nil {
		t.Fatalf("Failed to parse token: %v", err)
	}
	if viewer.UserID != "u1" || viewer.Role != models.RolePrestataire {
		t.Errorf("Unexpected viewer %+v", viewer)
	}
}

func TestTokenIssuer_Expired(t *testing.T) {
	issuer := NewTokenIssuer("secret", time.Minute)
	issued := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	issuer.now = func() time.Time { return issued }

	token, err := issuer.Issue(&models.User{ID: "u1", Role: models.RoleClient})
	if err != nil {
		t.Fatalf("Failed to issue token: %v", err)
	}
	issuer.now = func() time.Time { return issued.Add(2 * time.Minute) }

	if _, err := issuer.Parse(token); err != ErrInvalidToken {
		t.Errorf("Expected ErrInvalidToken, got %v", err)
	}
}

func TestTokenIssuer_WrongSecret(t *testing.T) {
	token, err := NewTokenIssuer("one", time.Hour).Issue(&models.User{ID: "u1", Role: models.RoleClient})
	if err != nil {
		t.Fatalf("Failed to issue token: %v", err)
	}
	if _, err := NewTokenIssuer("two", time.Hour).Parse(token); err != ErrInvalidToken {
		t.Errorf("Expected ErrInvalidToken, got %v", err)
	}
}

func TestTokenIssuer_RejectsUnknownRole(t *testing.T) {
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": "u1",
		"role":    "Root",
		"exp":     time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}
	if _, err := NewTokenIssuer("secret", time.Hour).Parse(raw); err != ErrInvalidToken {
		t.Errorf("Expected ErrInvalidToken, got %v", err)
	}
}

func setupAuthTest(t *testing.T, roles ...models.Role) (*TokenIssuer, *gin.Engine) {
	t.Helper()
	issuer := NewTokenIssuer("secret", time.Hour)
	users := stubUsers{
		"client-1": {ID: "client-1", Role: models.RoleClient},
		"admin-1":  {ID: "admin-1", Role: models.RoleAdmin},
	}

	gin.SetMode(gin.TestMode)
	router := gin.New()
	handlers := []gin.HandlerFunc{AuthMiddleware(issuer, users, zap.NewNop())}
	if len(roles) > 0 {
		handlers = append(handlers, RequireRole(roles...))
	}
	handlers = append(handlers, func(c *gin.Context) {
		viewer, _ := ViewerFrom(c)
		c.JSON(http.StatusOK, gin.H{"userId": viewer.UserID, "role": viewer.Role})
	})
	router.GET("/whoami", handlers...)
	return issuer, router
}

func TestAuthMiddleware(t *testing.T) {
	issuer, router := setupAuthTest(t)
	token, err := issuer.Issue(&models.User{ID: "client-1", Role: models.RoleClient})
	if err != nil {
		t.Fatalf("Failed to issue token: %v", err)
	}

	tests := []struct {
		name   string
		header map[string]string
		want   int
	}{
		{"bearer", map[string]string{"Authorization": "Bearer " + token}, http.StatusOK},
		{"bad bearer", map[string]string{"Authorization": "Bearer garbage"}, http.StatusUnauthorized},
		{"uid header", map[string]string{FirebaseHeader: "admin-1"}, http.StatusOK},
		{"unknown uid", map[string]string{FirebaseHeader: "ghost"}, http.StatusUnauthorized},
		{"nothing", nil, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.want {
				t.Errorf("Expected status %d, got %d", tt.want, w.Code)
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	_, router := setupAuthTest(t, models.RoleAdmin)

	for uid, want := range map[string]int{"admin-1": http.StatusOK, "client-1": http.StatusForbidden} {
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		req.Header.Set(FirebaseHeader, uid)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != want {
			t.Errorf("%s: expected status %d, got %d", uid, want, w.Code)
		}
	}
}
