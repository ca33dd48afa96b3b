// Package orders owns the order lifecycle: creation with its stock
// decrement, status transitions, and the listings shown to buyers and
// vendors.
package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"flowermarket-svc/apperr"
	"flowermarket-svc/dispatch"
	"flowermarket-svc/middleware"
	"flowermarket-svc/models"
	"flowermarket-svc/repository"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("orders")

// ProductCache is told when a product's stock moved.
type ProductCache interface {
	InvalidateProduct(ctx context.Context, id int)
}

type Service struct {
	repo     repository.Repository
	sink     dispatch.Sink
	products ProductCache
	logger   *zap.Logger
	now      func() time.Time
}

func NewService(repo repository.Repository, sink dispatch.Sink, products ProductCache, logger *zap.Logger) *Service {
	return &Service{
		repo:     repo,
		sink:     sink,
		products: products,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

type CreateOrderInput struct {
	ProductID       int
	Quantity        int
	ShippingAddress string
	Phone           string
	PaymentMethod   string
}

// CreateOrder reserves stock and records a validated order. The stock
// decrement, the order row and its notifications commit together.
func (s *Service) CreateOrder(ctx context.Context, viewer models.Viewer, in CreateOrderInput) (*models.Order, error) {
	ctx, span := tracer.Start(ctx, "CreateOrder")
	defer span.End()
	span.SetAttributes(attribute.Int("product.id", in.ProductID), attribute.Int("order.quantity", in.Quantity))

	if viewer.UserID == "" {
		return nil, apperr.Unauthorized("Authentification requise")
	}
	if in.Quantity <= 0 {
		return nil, apperr.Validation("La quantité doit être supérieure à zéro")
	}

	var (
		order models.Order
		notes []models.Notification
	)
	err := s.repo.WithTx(ctx, func(tx repository.Tx) error {
		product, err := tx.LockProduct(ctx, in.ProductID)
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.New(apperr.KindNotFound, apperr.CodeProductNotFound, "Produit introuvable")
		}
		if err != nil {
			return fmt.Errorf("lock product: %w", err)
		}
		if !product.IsActive {
			return apperr.New(apperr.KindConflict, apperr.CodeProductInactive, "Ce produit n'est plus disponible")
		}
		if product.Stock < in.Quantity {
			return apperr.InsufficientStock(product.Stock)
		}

		if _, err := tx.AdjustStock(ctx, product.ID, -in.Quantity); err != nil {
			if errors.Is(err, repository.ErrInsufficientStock) {
				return apperr.InsufficientStock(product.Stock)
			}
			return fmt.Errorf("decrement stock: %w", err)
		}

		store, err := tx.GetStore(ctx, product.StoreID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("load store: %w", err)
		}

		now := s.now()
		order = models.Order{
			ProductID:       product.ID,
			StoreID:         product.StoreID,
			UserID:          viewer.UserID,
			Quantity:        in.Quantity,
			TotalPrice:      product.Price.Mul(decimal.NewFromInt(int64(in.Quantity))),
			Status:          models.OrderStatusValidated,
			ShippingAddress: in.ShippingAddress,
			CustomerPhone:   in.Phone,
			PaymentMethod:   in.PaymentMethod,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := tx.InsertOrder(ctx, &order); err != nil {
			return err
		}

		notes = dispatch.OrderCreated(&order, product, store)
		return dispatch.Emit(ctx, tx, notes)
	})
	if err != nil {
		span.RecordError(err)
		middleware.RecordOrderOperation("create", outcome(err))
		return nil, s.internal(ctx, "Failed to create order", err)
	}

	s.invalidateProduct(ctx, order.ProductID)
	dispatch.Deliver(ctx, s.sink, notes)
	middleware.RecordOrderOperation("create", "success")

	span.SetAttributes(attribute.Int("order.id", order.ID))
	s.logger.Info("Order created",
		zap.String("trace_id", middleware.GetTraceID(ctx)),
		zap.Int("order_id", order.ID),
		zap.Int("product_id", order.ProductID),
		zap.Int("quantity", order.Quantity),
		zap.String("user_id", order.UserID),
	)
	return &order, nil
}

// UpdateStatus moves an order along the lifecycle. Checks run in a fixed
// order: role, status value, existence, ownership, no-op, transition.
func (s *Service) UpdateStatus(ctx context.Context, viewer models.Viewer, orderID int, rawStatus string) (*models.Order, error) {
	ctx, span := tracer.Start(ctx, "UpdateOrderStatus")
	defer span.End()
	span.SetAttributes(attribute.Int("order.id", orderID), attribute.String("order.requested_status", rawStatus))

	if viewer.Role != models.RolePrestataire && viewer.Role != models.RoleAdmin {
		return nil, apperr.Forbidden("Seuls les prestataires et les administrateurs peuvent modifier une commande")
	}
	next, ok := models.ParseOrderStatus(rawStatus)
	if !ok {
		return nil, apperr.Validation(fmt.Sprintf("Statut inconnu : %q", rawStatus))
	}

	var (
		order   *models.Order
		changed bool
		notes   []models.Notification
	)
	err := s.repo.WithTx(ctx, func(tx repository.Tx) error {
		var err error
		order, err = tx.LockOrder(ctx, orderID)
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.New(apperr.KindNotFound, apperr.CodeOrderNotFound, "Commande introuvable")
		}
		if err != nil {
			return fmt.Errorf("lock order: %w", err)
		}

		if viewer.Role == models.RolePrestataire {
			store, err := tx.GetStoreByOwner(ctx, viewer.UserID)
			if err != nil && !errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("load store: %w", err)
			}
			if store == nil || store.ID != order.StoreID {
				return apperr.Forbidden("Cette commande n'appartient pas à votre boutique")
			}
		}

		if order.Status == next {
			return nil
		}
		if !order.Status.CanTransitionTo(next) {
			return apperr.InvalidTransition(string(order.Status), string(next))
		}

		now := s.now()
		if err := tx.UpdateOrderStatus(ctx, order.ID, next, now); err != nil {
			return err
		}
		if next == models.OrderStatusCancelled {
			if _, err := tx.AdjustStock(ctx, order.ProductID, order.Quantity); err != nil {
				return fmt.Errorf("restore stock: %w", err)
			}
		}

		productName := ""
		if p, err := tx.GetProduct(ctx, order.ProductID); err == nil {
			productName = p.Name
		} else if !errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("load product: %w", err)
		}

		previous := order.Status
		order.Status = next
		order.UpdatedAt = now
		changed = true
		span.SetAttributes(attribute.String("order.previous_status", string(previous)))

		notes = dispatch.StatusChanged(order, productName, next)
		return dispatch.Emit(ctx, tx, notes)
	})
	if err != nil {
		span.RecordError(err)
		middleware.RecordOrderOperation("update_status", outcome(err))
		return nil, s.internal(ctx, "Failed to update order status", err)
	}

	if !changed {
		middleware.RecordOrderOperation("update_status", "unchanged")
		return order, nil
	}

	if next == models.OrderStatusCancelled {
		s.invalidateProduct(ctx, order.ProductID)
	}
	dispatch.Deliver(ctx, s.sink, notes)
	middleware.RecordOrderOperation("update_status", "success")

	s.logger.Info("Order status updated",
		zap.String("trace_id", middleware.GetTraceID(ctx)),
		zap.Int("order_id", order.ID),
		zap.String("status", string(next)),
		zap.String("by", viewer.UserID),
	)
	return order, nil
}

func (s *Service) ListMyOrders(ctx context.Context, viewer models.Viewer) ([]models.OrderView, error) {
	ctx, span := tracer.Start(ctx, "ListMyOrders")
	defer span.End()

	if viewer.UserID == "" {
		return nil, apperr.Unauthorized("Authentification requise")
	}
	views, err := s.repo.ListOrdersByUser(ctx, viewer.UserID)
	if err != nil {
		span.RecordError(err)
		return nil, s.internal(ctx, "Failed to list orders", err)
	}
	return views, nil
}

// ListStoreOrders returns the orders placed in the caller's store, or an
// empty list while the prestataire has no store yet.
func (s *Service) ListStoreOrders(ctx context.Context, viewer models.Viewer) ([]models.OrderView, error) {
	ctx, span := tracer.Start(ctx, "ListStoreOrders")
	defer span.End()

	if viewer.Role != models.RolePrestataire {
		return nil, apperr.Forbidden("Réservé aux prestataires")
	}
	store, err := s.repo.GetStoreByOwner(ctx, viewer.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return []models.OrderView{}, nil
	}
	if err != nil {
		span.RecordError(err)
		return nil, s.internal(ctx, "Failed to load store", err)
	}

	views, err := s.repo.ListOrdersByStore(ctx, store.ID)
	if err != nil {
		span.RecordError(err)
		return nil, s.internal(ctx, "Failed to list store orders", err)
	}
	return views, nil
}

func (s *Service) invalidateProduct(ctx context.Context, id int) {
	if s.products != nil {
		s.products.InvalidateProduct(ctx, id)
	}
}

// internal logs unexpected failures; business errors pass through untouched.
func (s *Service) internal(ctx context.Context, msg string, err error) error {
	if _, ok := apperr.As(err); ok {
		return err
	}
	s.logger.Error(msg, zap.String("trace_id", middleware.GetTraceID(ctx)), zap.Error(err))
	return err
}

func outcome(err error) string {
	if e, ok := apperr.As(err); ok {
		return e.Code
	}
	return "error"
}
