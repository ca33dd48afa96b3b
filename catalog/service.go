// Package catalog manages a prestataire's products and the market listing
// the order flow sells from.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"flowermarket-svc/apperr"
	"flowermarket-svc/middleware"
	"flowermarket-svc/models"
	"flowermarket-svc/repository"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("catalog")

type ProductCache interface {
	GetProduct(ctx context.Context, id int) (*models.Product, error)
	SetProduct(ctx context.Context, p *models.Product)
	InvalidateProduct(ctx context.Context, id int)
}

type Service struct {
	repo   repository.Repository
	cache  ProductCache
	logger *zap.Logger
	now    func() time.Time
}

func NewService(repo repository.Repository, cache ProductCache, logger *zap.Logger) *Service {
	return &Service{
		repo:   repo,
		cache:  cache,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

type CreateProductInput struct {
	Name     string
	Price    decimal.Decimal
	Stock    int
	IsActive *bool
}

// CreateProduct adds a product to the caller's store.
func (s *Service) CreateProduct(ctx context.Context, viewer models.Viewer, in CreateProductInput) (*models.Product, error) {
	ctx, span := tracer.Start(ctx, "CreateProduct")
	defer span.End()

	if viewer.Role != models.RolePrestataire {
		return nil, apperr.Forbidden("Réservé aux prestataires")
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperr.Validation("Le nom du produit est obligatoire")
	}
	if !in.Price.IsPositive() {
		return nil, apperr.Validation("Le prix doit être supérieur à zéro")
	}
	if in.Stock < 0 {
		return nil, apperr.Validation("Le stock ne peut pas être négatif")
	}
	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}

	var product models.Product
	err := s.repo.WithTx(ctx, func(tx repository.Tx) error {
		store, err := tx.GetStoreByOwner(ctx, viewer.UserID)
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound("Aucune boutique associée à ce compte")
		}
		if err != nil {
			return fmt.Errorf("load store: %w", err)
		}

		now := s.now()
		product = models.Product{
			StoreID:   store.ID,
			Name:      name,
			Price:     in.Price,
			Stock:     in.Stock,
			IsActive:  active,
			CreatedAt: now,
			UpdatedAt: now,
		}
		return tx.InsertProduct(ctx, &product)
	})
	if err != nil {
		span.RecordError(err)
		if _, ok := apperr.As(err); !ok {
			s.logger.Error("Failed to create product", zap.String("trace_id", middleware.GetTraceID(ctx)), zap.Error(err))
		}
		return nil, err
	}

	span.SetAttributes(attribute.Int("product.id", product.ID))
	s.logger.Info("Product created",
		zap.String("trace_id", middleware.GetTraceID(ctx)),
		zap.Int("product_id", product.ID),
		zap.Int("store_id", product.StoreID),
	)
	return &product, nil
}

// GetProduct reads through the cache.
func (s *Service) GetProduct(ctx context.Context, id int) (*models.Product, error) {
	ctx, span := tracer.Start(ctx, "GetProduct")
	defer span.End()
	span.SetAttributes(attribute.Int("product.id", id))

	if s.cache != nil {
		if p, err := s.cache.GetProduct(ctx, id); err == nil {
			span.SetAttributes(attribute.Bool("cache.hit", true))
			return p, nil
		}
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))

	p, err := s.repo.GetProduct(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.New(apperr.KindNotFound, apperr.CodeProductNotFound, "Produit introuvable")
	}
	if err != nil {
		span.RecordError(err)
		s.logger.Error("Failed to fetch product", zap.String("trace_id", middleware.GetTraceID(ctx)), zap.Error(err))
		return nil, fmt.Errorf("get product: %w", err)
	}

	if s.cache != nil {
		s.cache.SetProduct(ctx, p)
	}
	return p, nil
}

// ListProducts returns the products on sale across all stores, newest first.
func (s *Service) ListProducts(ctx context.Context) ([]models.ProductView, error) {
	ctx, span := tracer.Start(ctx, "ListProducts")
	defer span.End()

	products, err := s.repo.ListActiveProducts(ctx)
	if err != nil {
		span.RecordError(err)
		s.logger.Error("Failed to list products", zap.String("trace_id", middleware.GetTraceID(ctx)), zap.Error(err))
		return nil, fmt.Errorf("list products: %w", err)
	}
	span.SetAttributes(attribute.Int("products.count", len(products)))
	return products, nil
}

// ListStoreProducts returns every product of the caller's store, archived
// ones included.
func (s *Service) ListStoreProducts(ctx context.Context, viewer models.Viewer) ([]models.Product, error) {
	ctx, span := tracer.Start(ctx, "ListStoreProducts")
	defer span.End()

	if viewer.Role != models.RolePrestataire {
		return nil, apperr.Forbidden("Réservé aux prestataires")
	}
	store, err := s.repo.GetStoreByOwner(ctx, viewer.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound("Aucune boutique associée à ce compte")
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("load store: %w", err)
	}

	products, err := s.repo.ListProductsByStore(ctx, store.ID)
	if err != nil {
		span.RecordError(err)
		s.logger.Error("Failed to list store products",
			zap.String("trace_id", middleware.GetTraceID(ctx)),
			zap.Int("store_id", store.ID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("list store products: %w", err)
	}
	return products, nil
}

type UpdateProductInput struct {
	Name     *string
	Price    *decimal.Decimal
	Stock    *int
	IsActive *bool
}

func (in UpdateProductInput) validate() error {
	if in.Name != nil && strings.TrimSpace(*in.Name) == "" {
		return apperr.Validation("Le nom du produit est obligatoire")
	}
	if in.Price != nil && !in.Price.IsPositive() {
		return apperr.Validation("Le prix doit être supérieur à zéro")
	}
	if in.Stock != nil && *in.Stock < 0 {
		return apperr.Validation("Le stock ne peut pas être négatif")
	}
	return nil
}

// UpdateProduct changes a product of the caller's store under its row lock,
// so a concurrent order never sees a half-applied edit.
func (s *Service) UpdateProduct(ctx context.Context, viewer models.Viewer, id int, in UpdateProductInput) (*models.Product, error) {
	ctx, span := tracer.Start(ctx, "UpdateProduct")
	defer span.End()
	span.SetAttributes(attribute.Int("product.id", id))

	if viewer.Role != models.RolePrestataire {
		return nil, apperr.Forbidden("Réservé aux prestataires")
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	var product *models.Product
	err := s.repo.WithTx(ctx, func(tx repository.Tx) error {
		p, err := s.ownedProduct(ctx, tx, viewer, id)
		if err != nil {
			return err
		}
		if in.Name != nil {
			p.Name = strings.TrimSpace(*in.Name)
		}
		if in.Price != nil {
			p.Price = *in.Price
		}
		if in.Stock != nil {
			p.Stock = *in.Stock
		}
		if in.IsActive != nil {
			p.IsActive = *in.IsActive
		}
		p.UpdatedAt = s.now()
		if err := tx.UpdateProduct(ctx, p); err != nil {
			return err
		}
		product = p
		return nil
	})
	if err != nil {
		return nil, s.productFailure(ctx, span, "Failed to update product", id, err)
	}
	s.invalidate(ctx, id)

	s.logger.Info("Product updated",
		zap.String("trace_id", middleware.GetTraceID(ctx)),
		zap.Int("product_id", id),
		zap.Int("stock", product.Stock),
		zap.Bool("is_active", product.IsActive),
	)
	return product, nil
}

// DeleteProduct removes a product of the caller's store. A product that
// already has orders is archived instead, and archived reports which
// happened.
func (s *Service) DeleteProduct(ctx context.Context, viewer models.Viewer, id int) (archived bool, err error) {
	ctx, span := tracer.Start(ctx, "DeleteProduct")
	defer span.End()
	span.SetAttributes(attribute.Int("product.id", id))

	if viewer.Role != models.RolePrestataire {
		return false, apperr.Forbidden("Réservé aux prestataires")
	}

	err = s.repo.WithTx(ctx, func(tx repository.Tx) error {
		p, err := s.ownedProduct(ctx, tx, viewer, id)
		if err != nil {
			return err
		}
		hasOrders, err := tx.ProductHasOrders(ctx, id)
		if err != nil {
			return err
		}
		if !hasOrders {
			return tx.DeleteProduct(ctx, id)
		}
		archived = true
		p.IsActive = false
		p.UpdatedAt = s.now()
		return tx.UpdateProduct(ctx, p)
	})
	if err != nil {
		return false, s.productFailure(ctx, span, "Failed to delete product", id, err)
	}
	s.invalidate(ctx, id)

	span.SetAttributes(attribute.Bool("product.archived", archived))
	s.logger.Info("Product removed",
		zap.String("trace_id", middleware.GetTraceID(ctx)),
		zap.Int("product_id", id),
		zap.Bool("archived", archived),
	)
	return archived, nil
}

// ownedProduct locks the product and checks it belongs to the caller's
// store. Someone else's product is reported like a missing one.
func (s *Service) ownedProduct(ctx context.Context, tx repository.Tx, viewer models.Viewer, id int) (*models.Product, error) {
	notOwned := apperr.New(apperr.KindNotFound, apperr.CodeProductNotFound, "Produit introuvable ou accès refusé")

	store, err := tx.GetStoreByOwner(ctx, viewer.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notOwned
	}
	if err != nil {
		return nil, fmt.Errorf("load store: %w", err)
	}
	p, err := tx.LockProduct(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notOwned
	}
	if err != nil {
		return nil, fmt.Errorf("lock product: %w", err)
	}
	if p.StoreID != store.ID {
		return nil, notOwned
	}
	return p, nil
}

func (s *Service) productFailure(ctx context.Context, span trace.Span, msg string, id int, err error) error {
	span.RecordError(err)
	if _, ok := apperr.As(err); ok {
		return err
	}
	s.logger.Error(msg,
		zap.String("trace_id", middleware.GetTraceID(ctx)),
		zap.Int("product_id", id),
		zap.Error(err),
	)
	return err
}

func (s *Service) invalidate(ctx context.Context, id int) {
	if s.cache != nil {
		s.cache.InvalidateProduct(ctx, id)
	}
}
