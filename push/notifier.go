package push

import (
	"context"
	"errors"
	"fmt"

	"flowermarket-svc/middleware"
	"flowermarket-svc/models"
	"flowermarket-svc/repository"

	"go.uber.org/zap"
)

type TokenStore interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	ListAdminPushTokens(ctx context.Context) ([]string, error)
}

type Sender interface {
	Send(ctx context.Context, msgs []Message) error
}

// Notifier resolves the devices behind stored notifications and pushes to
// them. Users without a registered token are skipped.
type Notifier struct {
	tokens TokenStore
	sender Sender
	logger *zap.Logger
}

func NewNotifier(tokens TokenStore, sender Sender, logger *zap.Logger) *Notifier {
	return &Notifier{tokens: tokens, sender: sender, logger: logger}
}

func (n *Notifier) Notify(ctx context.Context, notes []models.Notification) error {
	var msgs []Message
	for _, note := range notes {
		tokens, err := n.resolve(ctx, note)
		if err != nil {
			return err
		}
		data := map[string]string{"notificationId": note.ID.String(), "type": string(note.Type)}
		for _, t := range tokens {
			msgs = append(msgs, NewMessage(t, note.Title, note.Message, data))
		}
	}
	if len(msgs) == 0 {
		middleware.RecordPushSent("no_token")
		return nil
	}
	return n.sender.Send(ctx, msgs)
}

// Resend retries messages left over by a failed Notify, typically the
// Messages of an *UnsentError, without resolving tokens again.
func (n *Notifier) Resend(ctx context.Context, msgs []Message) error {
	if len(msgs) == 0 {
		return nil
	}
	return n.sender.Send(ctx, msgs)
}

func (n *Notifier) resolve(ctx context.Context, note models.Notification) ([]string, error) {
	if note.UserID == nil {
		if !note.IsBroadcast() {
			return nil, nil
		}
		tokens, err := n.tokens.ListAdminPushTokens(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load admin tokens: %w", err)
		}
		return tokens, nil
	}

	user, err := n.tokens.GetUser(ctx, *note.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		n.logger.Debug("Push target not found", zap.String("user_id", *note.UserID))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load push target: %w", err)
	}
	if user.ExpoPushToken == "" {
		return nil, nil
	}
	return []string{user.ExpoPushToken}, nil
}
