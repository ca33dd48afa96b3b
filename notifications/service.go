// Package notifications serves the pull side of the notification feed:
// what a viewer has not read yet, and flipping the read flag.
package notifications

import (
	"context"
	"errors"
	"fmt"

	"flowermarket-svc/apperr"
	"flowermarket-svc/cache"
	"flowermarket-svc/dispatch"
	"flowermarket-svc/middleware"
	"flowermarket-svc/models"
	"flowermarket-svc/repository"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("notifications")

// CountCache memoizes unread counters. A lookup error means "ask the
// database". Every key carries a generation that InvalidateCount bumps;
// SetCount drops a value loaded under an older generation.
type CountCache interface {
	GetCount(ctx context.Context, key string) (count int, gen int64, err error)
	SetCount(ctx context.Context, key string, count int, gen int64)
	InvalidateCount(ctx context.Context, key string)
}

type Service struct {
	repo   repository.Repository
	counts CountCache
	sink   dispatch.Sink
	logger *zap.Logger
}

func NewService(repo repository.Repository, counts CountCache, sink dispatch.Sink, logger *zap.Logger) *Service {
	return &Service{repo: repo, counts: counts, sink: sink, logger: logger}
}

// ListUnread returns the notifications visible to v that are still unread,
// newest first. Admins also see broadcasts.
func (s *Service) ListUnread(ctx context.Context, v models.Viewer) ([]models.Notification, error) {
	ctx, span := tracer.Start(ctx, "ListUnreadNotifications")
	defer span.End()

	if v.UserID == "" {
		return nil, apperr.Unauthorized("Authentification requise")
	}
	notes, err := s.repo.ListUnreadNotifications(ctx, v)
	if err != nil {
		span.RecordError(err)
		s.logger.Error("Failed to list notifications", zap.String("trace_id", middleware.GetTraceID(ctx)), zap.Error(err))
		return nil, err
	}
	span.SetAttributes(attribute.Int("notifications.count", len(notes)))
	return notes, nil
}

// UnreadCount counts the same set ListUnread returns.
func (s *Service) UnreadCount(ctx context.Context, v models.Viewer) (int, error) {
	ctx, span := tracer.Start(ctx, "UnreadNotificationCount")
	defer span.End()

	if v.UserID == "" {
		return 0, apperr.Unauthorized("Authentification requise")
	}

	total, err := s.cachedCount(ctx, cache.UnreadUserKey(v.UserID), func() (int, error) {
		return s.repo.CountUnreadForUser(ctx, v.UserID)
	})
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("count unread: %w", err)
	}
	if v.Role == models.RoleAdmin {
		broadcast, err := s.cachedCount(ctx, cache.UnreadBroadcastKey, func() (int, error) {
			return s.repo.CountUnreadBroadcast(ctx)
		})
		if err != nil {
			span.RecordError(err)
			return 0, fmt.Errorf("count unread broadcast: %w", err)
		}
		total += broadcast
	}
	return total, nil
}

// cachedCount reads the generation before loading from the database, so a
// notification committed in between keeps the loaded value out of the cache.
func (s *Service) cachedCount(ctx context.Context, key string, load func() (int, error)) (int, error) {
	var gen int64
	if s.counts != nil {
		n, g, err := s.counts.GetCount(ctx, key)
		if err == nil {
			return n, nil
		}
		gen = g
	}
	n, err := load()
	if err != nil {
		return 0, err
	}
	if s.counts != nil {
		s.counts.SetCount(ctx, key, n, gen)
	}
	return n, nil
}

// MarkRead flips the read flag. Marking an already read notification
// succeeds again; one the viewer cannot see is reported as missing.
func (s *Service) MarkRead(ctx context.Context, v models.Viewer, rawID string) error {
	ctx, span := tracer.Start(ctx, "MarkNotificationRead")
	defer span.End()
	span.SetAttributes(attribute.String("notification.id", rawID))

	id, err := uuid.Parse(rawID)
	if err != nil {
		return apperr.Validation("Identifiant de notification invalide")
	}

	err = s.repo.MarkNotificationRead(ctx, id, v)
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.NotFound("Notification introuvable")
	}
	if err != nil {
		span.RecordError(err)
		s.logger.Error("Failed to mark notification read",
			zap.String("trace_id", middleware.GetTraceID(ctx)),
			zap.String("notification_id", rawID),
			zap.Error(err),
		)
		return fmt.Errorf("mark read: %w", err)
	}

	if s.counts != nil {
		s.counts.InvalidateCount(ctx, cache.UnreadUserKey(v.UserID))
		if v.Role == models.RoleAdmin {
			s.counts.InvalidateCount(ctx, cache.UnreadBroadcastKey)
		}
	}
	return nil
}

// TrackVisit records an app visit in the admin feed. Anything other than
// "Prestataire" counts as a client visit.
func (s *Service) TrackVisit(ctx context.Context, visitorType string) error {
	ctx, span := tracer.Start(ctx, "TrackVisit")
	defer span.End()

	role, ok := models.ParseRole(visitorType)
	if !ok || role != models.RolePrestataire {
		role = models.RoleClient
	}

	notes := dispatch.VisitTracked(role)
	err := s.repo.WithTx(ctx, func(tx repository.Tx) error {
		return dispatch.Emit(ctx, tx, notes)
	})
	if err != nil {
		span.RecordError(err)
		s.logger.Error("Failed to track visit", zap.String("trace_id", middleware.GetTraceID(ctx)), zap.Error(err))
		return fmt.Errorf("track visit: %w", err)
	}
	dispatch.Deliver(ctx, s.sink, notes)
	return nil
}
