package dispatch

import (
	"context"

	"flowermarket-svc/middleware"
	"flowermarket-svc/models"
	"flowermarket-svc/repository"
)

// Emit stores notes inside tx. Nothing is delivered until the caller has
// committed and calls Deliver.
func Emit(ctx context.Context, tx repository.Tx, notes []models.Notification) error {
	for i := range notes {
		if err := tx.InsertNotification(ctx, &notes[i]); err != nil {
			return err
		}
	}
	return nil
}

// Sink receives notifications once they are durable. Implementations must
// not block the request on slow downstreams.
type Sink interface {
	Deliver(ctx context.Context, notes []models.Notification)
}

// Sinks fans out to several sinks in order.
type Sinks []Sink

func (s Sinks) Deliver(ctx context.Context, notes []models.Notification) {
	for _, sink := range s {
		if sink != nil {
			sink.Deliver(ctx, notes)
		}
	}
}

// Deliver counts committed notes and hands them to sink, which may be nil.
func Deliver(ctx context.Context, sink Sink, notes []models.Notification) {
	for _, n := range notes {
		middleware.RecordNotificationCreated(string(n.Type))
	}
	if sink != nil && len(notes) > 0 {
		sink.Deliver(ctx, notes)
	}
}
