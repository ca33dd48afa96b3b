// Package repository persists orders, products, stores, users and
// notifications. Every mutation of the order lifecycle goes through
// Repository.WithTx so that state changes and the notifications they raise
// commit or roll back together.
package repository

import (
	"context"
	"errors"
	"time"

	"flowermarket-svc/models"

	"github.com/google/uuid"
)

var (
	ErrNotFound          = errors.New("record not found")
	ErrDuplicate         = errors.New("record already exists")
	ErrInsufficientStock = errors.New("insufficient stock")
)

// Tx is the unit of work handed to WithTx callbacks.
type Tx interface {
	// LockProduct loads a product and holds its row lock until the
	// transaction ends.
	LockProduct(ctx context.Context, id int) (*models.Product, error)
	GetProduct(ctx context.Context, id int) (*models.Product, error)
	// AdjustStock adds delta to the product stock and returns the new value.
	// It fails with ErrInsufficientStock instead of going below zero.
	AdjustStock(ctx context.Context, productID, delta int) (int, error)
	InsertProduct(ctx context.Context, p *models.Product) error
	UpdateProduct(ctx context.Context, p *models.Product) error
	DeleteProduct(ctx context.Context, id int) error
	ProductHasOrders(ctx context.Context, id int) (bool, error)

	InsertOrder(ctx context.Context, o *models.Order) error
	LockOrder(ctx context.Context, id int) (*models.Order, error)
	UpdateOrderStatus(ctx context.Context, id int, status models.OrderStatus, at time.Time) error

	GetStore(ctx context.Context, id int) (*models.Store, error)
	GetStoreByOwner(ctx context.Context, prestataireID string) (*models.Store, error)
	InsertStore(ctx context.Context, s *models.Store) error

	GetUser(ctx context.Context, id string) (*models.User, error)
	InsertUser(ctx context.Context, u *models.User) error
	SetUserApproved(ctx context.Context, id string) error

	InsertNotification(ctx context.Context, n *models.Notification) error
	HasNotification(ctx context.Context, userID, title string) (bool, error)
}

// Reader holds the queries that run outside a unit of work.
type Reader interface {
	GetProduct(ctx context.Context, id int) (*models.Product, error)
	// ListActiveProducts returns the products on sale, newest first.
	ListActiveProducts(ctx context.Context) ([]models.ProductView, error)
	ListProductsByStore(ctx context.Context, storeID int) ([]models.Product, error)
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetStoreByOwner(ctx context.Context, prestataireID string) (*models.Store, error)

	ListOrdersByUser(ctx context.Context, userID string) ([]models.OrderView, error)
	ListOrdersByStore(ctx context.Context, storeID int) ([]models.OrderView, error)

	ListUnreadNotifications(ctx context.Context, v models.Viewer) ([]models.Notification, error)
	CountUnreadForUser(ctx context.Context, userID string) (int, error)
	CountUnreadBroadcast(ctx context.Context) (int, error)
	// MarkNotificationRead returns ErrNotFound when the notification does
	// not exist or is not visible to v.
	MarkNotificationRead(ctx context.Context, id uuid.UUID, v models.Viewer) error

	ListAdminPushTokens(ctx context.Context) ([]string, error)
}

type Repository interface {
	Reader
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}
