package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"flowermarket-svc/accounts"
	"flowermarket-svc/cache"
	"flowermarket-svc/catalog"
	"flowermarket-svc/middleware"
	"flowermarket-svc/models"
	"flowermarket-svc/notifications"
	"flowermarket-svc/orders"
	"flowermarket-svc/repository"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

const (
	clientUID      = "client-1"
	otherClientUID = "client-2"
	vendorUID      = "vendor-1"
	otherVendorUID = "vendor-2"
	adminUID       = "admin-1"
)

type testEnv struct {
	repo      *repository.MemoryRepository
	issuer    *middleware.TokenIssuer
	router    *gin.Engine
	productID int
	storeID   int
}

// setupTest wires the full route tree over an in-memory repository seeded
// with one store holding a single product of stock 10 at 25.00.
func setupTest(t *testing.T) *testEnv {
	t.Helper()

	logger := zaptest.NewLogger(t, zaptest.Level(zap.InfoLevel))
	repo := repository.NewMemoryRepository()
	redisCache := cache.New(nil, logger)
	issuer := middleware.NewTokenIssuer("test-secret", time.Hour)

	env := &testEnv{repo: repo, issuer: issuer}
	err := repo.WithTx(context.Background(), func(tx repository.Tx) error {
		now := time.Now().UTC()
		users := []models.User{
			{ID: clientUID, FullName: "Salma", Email: "salma@example.com", Role: models.RoleClient, IsApproved: true, CreatedAt: now},
			{ID: otherClientUID, FullName: "Omar", Email: "omar@example.com", Role: models.RoleClient, IsApproved: true, CreatedAt: now},
			{ID: vendorUID, FullName: "Nadia", Email: "nadia@example.com", Role: models.RolePrestataire, IsApproved: true, CreatedAt: now},
			{ID: otherVendorUID, FullName: "Karim", Email: "karim@example.com", Role: models.RolePrestataire, IsApproved: true, CreatedAt: now},
			{ID: adminUID, FullName: "Admin", Email: "admin@example.com", Role: models.RoleAdmin, IsApproved: true, CreatedAt: now},
		}
		for i := range users {
			if err := tx.InsertUser(context.Background(), &users[i]); err != nil {
				return err
			}
		}
		store := &models.Store{PrestataireID: vendorUID, Name: "Fleurs de Nadia"}
		if err := tx.InsertStore(context.Background(), store); err != nil {
			return err
		}
		if err := tx.InsertStore(context.Background(), &models.Store{PrestataireID: otherVendorUID, Name: "Karim Roses"}); err != nil {
			return err
		}
		product := &models.Product{
			StoreID:   store.ID,
			Name:      "Bouquet de roses",
			Price:     decimal.RequireFromString("25.00"),
			Stock:     10,
			IsActive:  true,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.InsertProduct(context.Background(), product); err != nil {
			return err
		}
		env.productID = product.ID
		env.storeID = store.ID
		return nil
	})
	if err != nil {
		t.Fatalf("Failed to seed repository: %v", err)
	}

	h := Handlers{
		Orders:        NewOrderHandler(orders.NewService(repo, redisCache, redisCache, logger), logger),
		Notifications: NewNotificationHandler(notifications.NewService(repo, redisCache, redisCache, logger), logger),
		Accounts:      NewAccountHandler(accounts.NewService(repo, issuer, redisCache, logger), logger),
		Products:      NewProductHandler(catalog.NewService(repo, redisCache, logger), logger),
	}

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/health", HealthCheck)
	RegisterRoutes(router, h, middleware.AuthMiddleware(issuer, repo, logger))
	env.router = router
	return env
}

// do sends a JSON request as uid; an empty uid sends no identity.
func (e *testEnv) do(method, path, uid string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if uid != "" {
		req.Header.Set(middleware.FirebaseHeader, uid)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) stock(t *testing.T) int {
	t.Helper()
	p, err := e.repo.GetProduct(context.Background(), e.productID)
	if err != nil {
		t.Fatalf("Failed to load product: %v", err)
	}
	return p.Stock
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode response %q: %v", w.Body.String(), err)
	}
	return body
}

func TestHealthCheck(t *testing.T) {
	env := setupTest(t)

	w := env.do(http.MethodGet, "/health", "", nil)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, w.Code)
	}
	if body := decodeBody(t, w); body["status"] != "healthy" {
		t.Errorf("Expected healthy status, got %v", body["status"])
	}
}

func TestAuth_MissingIdentity(t *testing.T) {
	env := setupTest(t)

	w := env.do(http.MethodGet, "/api/market/my-orders", "", nil)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status %d, got %d", http.StatusUnauthorized, w.Code)
	}
}

func TestAuth_UnknownUID(t *testing.T) {
	env := setupTest(t)

	w := env.do(http.MethodGet, "/api/market/my-orders", "ghost", nil)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status %d, got %d", http.StatusUnauthorized, w.Code)
	}
}

func TestAuth_BearerToken(t *testing.T) {
	env := setupTest(t)
	token, err := env.issuer.Issue(&models.User{ID: clientUID, Role: models.RoleClient})
	if err != nil {
		t.Fatalf("Failed to issue token: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/market/my-orders", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}
}
