// Package accounts links external identities to marketplace users: self
// registration, the uid-for-token exchange, and prestataire approval.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"flowermarket-svc/apperr"
	"flowermarket-svc/dispatch"
	"flowermarket-svc/middleware"
	"flowermarket-svc/models"
	"flowermarket-svc/repository"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("accounts")

type TokenIssuer interface {
	Issue(user *models.User) (string, error)
}

type Service struct {
	repo   repository.Repository
	issuer TokenIssuer
	sink   dispatch.Sink
	logger *zap.Logger
	now    func() time.Time
}

func NewService(repo repository.Repository, issuer TokenIssuer, sink dispatch.Sink, logger *zap.Logger) *Service {
	return &Service{
		repo:   repo,
		issuer: issuer,
		sink:   sink,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

type RegisterInput struct {
	UID      string
	FullName string
	Email    string
	Role     string
}

// Register creates the local profile for an identity that the external
// provider already authenticated. Prestataires wait for admin approval.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	ctx, span := tracer.Start(ctx, "Register")
	defer span.End()

	uid := strings.TrimSpace(in.UID)
	if uid == "" {
		return nil, apperr.Unauthorized("Identifiant utilisateur manquant")
	}
	role := models.RoleClient
	if strings.TrimSpace(in.Role) != "" {
		parsed, ok := models.ParseRole(in.Role)
		if !ok || parsed == models.RoleAdmin {
			return nil, apperr.Validation("Rôle invalide")
		}
		role = parsed
	}

	user := &models.User{
		ID:         uid,
		FullName:   strings.TrimSpace(in.FullName),
		Email:      strings.ToLower(strings.TrimSpace(in.Email)),
		Role:       role,
		IsApproved: role == models.RoleClient,
		CreatedAt:  s.now(),
	}
	span.SetAttributes(attribute.String("user.role", string(role)))

	var notes []models.Notification
	if role == models.RolePrestataire {
		notes = dispatch.PrestataireRegistered(user)
	} else {
		notes = dispatch.ClientRegistered(user)
	}

	err := s.repo.WithTx(ctx, func(tx repository.Tx) error {
		if err := tx.InsertUser(ctx, user); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return apperr.New(apperr.KindConflict, apperr.CodeDuplicateAccount, "Un compte existe déjà avec cet identifiant ou cet email")
			}
			return fmt.Errorf("insert user: %w", err)
		}
		return dispatch.Emit(ctx, tx, notes)
	})
	if err != nil {
		span.RecordError(err)
		return nil, s.internal(ctx, "Failed to register user", err)
	}

	dispatch.Deliver(ctx, s.sink, notes)
	s.logger.Info("User registered",
		zap.String("trace_id", middleware.GetTraceID(ctx)),
		zap.String("user_id", user.ID),
		zap.String("role", string(user.Role)),
	)
	return user, nil
}

// Exchange trades an external uid for a session token. A prestataire gets
// the welcome notification on their first successful exchange.
func (s *Service) Exchange(ctx context.Context, uid string) (*models.ExchangeResponse, error) {
	ctx, span := tracer.Start(ctx, "Exchange")
	defer span.End()

	uid = strings.TrimSpace(uid)
	if uid == "" {
		return nil, apperr.Unauthorized("Identifiant utilisateur manquant")
	}

	var (
		user  *models.User
		notes []models.Notification
	)
	err := s.repo.WithTx(ctx, func(tx repository.Tx) error {
		var err error
		user, err = tx.GetUser(ctx, uid)
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound("Utilisateur introuvable")
		}
		if err != nil {
			return fmt.Errorf("load user: %w", err)
		}
		if user.Role != models.RolePrestataire {
			return nil
		}
		if !user.IsApproved {
			return apperr.New(apperr.KindForbidden, apperr.CodePendingApproval, "Votre compte est en attente de validation par l'administrateur")
		}

		welcomed, err := tx.HasNotification(ctx, user.ID, dispatch.TitleWelcome)
		if err != nil {
			return fmt.Errorf("check welcome: %w", err)
		}
		if welcomed {
			return nil
		}
		notes = dispatch.Welcome(user)
		return dispatch.Emit(ctx, tx, notes)
	})
	if err != nil {
		span.RecordError(err)
		return nil, s.internal(ctx, "Failed to exchange identity", err)
	}
	dispatch.Deliver(ctx, s.sink, notes)

	token, err := s.issuer.Issue(user)
	if err != nil {
		span.RecordError(err)
		return nil, s.internal(ctx, "Failed to generate token", err)
	}

	return &models.ExchangeResponse{
		Token:      token,
		Role:       user.Role,
		IsApproved: user.IsApproved,
		UID:        user.ID,
	}, nil
}

// ApprovePrestataire lets an admin activate a vendor and opens their store.
// Approving an already approved vendor changes nothing.
func (s *Service) ApprovePrestataire(ctx context.Context, viewer models.Viewer, userID string) (*models.Store, error) {
	ctx, span := tracer.Start(ctx, "ApprovePrestataire")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	if viewer.Role != models.RoleAdmin {
		return nil, apperr.Forbidden("Réservé aux administrateurs")
	}

	var (
		store *models.Store
		notes []models.Notification
	)
	err := s.repo.WithTx(ctx, func(tx repository.Tx) error {
		user, err := tx.GetUser(ctx, userID)
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound("Prestataire introuvable")
		}
		if err != nil {
			return fmt.Errorf("load user: %w", err)
		}
		if user.Role != models.RolePrestataire {
			return apperr.Validation("Cet utilisateur n'est pas un prestataire")
		}

		store, err = tx.GetStoreByOwner(ctx, user.ID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("load store: %w", err)
		}
		if user.IsApproved && store != nil {
			return nil
		}

		if !user.IsApproved {
			if err := tx.SetUserApproved(ctx, user.ID); err != nil {
				return fmt.Errorf("approve user: %w", err)
			}
			user.IsApproved = true
		}
		if store == nil {
			store = &models.Store{PrestataireID: user.ID, Name: "Boutique de " + user.FullName}
			if err := tx.InsertStore(ctx, store); err != nil {
				return fmt.Errorf("create store: %w", err)
			}
		}

		notes = dispatch.PrestataireApproved(user, store)
		return dispatch.Emit(ctx, tx, notes)
	})
	if err != nil {
		span.RecordError(err)
		return nil, s.internal(ctx, "Failed to approve prestataire", err)
	}

	dispatch.Deliver(ctx, s.sink, notes)
	if len(notes) > 0 {
		s.logger.Info("Prestataire approved",
			zap.String("trace_id", middleware.GetTraceID(ctx)),
			zap.String("user_id", userID),
			zap.Int("store_id", store.ID),
			zap.String("by", viewer.UserID),
		)
	}
	return store, nil
}

func (s *Service) internal(ctx context.Context, msg string, err error) error {
	if _, ok := apperr.As(err); ok {
		return err
	}
	s.logger.Error(msg, zap.String("trace_id", middleware.GetTraceID(ctx)), zap.Error(err))
	return err
}
