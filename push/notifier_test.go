package push

import (
	"context"
	"sort"
	"testing"

	"flowermarket-svc/dispatch"
	"flowermarket-svc/models"
	"flowermarket-svc/repository"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type captureSender struct {
	msgs []Message
}

func (c *captureSender) Send(_ context.Context, msgs []Message) error {
	c.msgs = append(c.msgs, msgs...)
	return nil
}

func TestNotifier_ResolvesTokens(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository()
	require.NoError(t, repo.WithTx(ctx, func(tx repository.Tx) error {
		for _, u := range []models.User{
			{ID: "client-1", Email: "c@example.com", Role: models.RoleClient, ExpoPushToken: "ExponentPushToken[client]"},
			{ID: "vendor-1", Email: "v@example.com", Role: models.RolePrestataire},
			{ID: "admin-1", Email: "a1@example.com", Role: models.RoleAdmin, ExpoPushToken: "ExponentPushToken[a1]"},
			{ID: "admin-2", Email: "a2@example.com", Role: models.RoleAdmin, ExpoPushToken: "ExponentPushToken[a2]"},
		} {
			u := u
			if err := tx.InsertUser(ctx, &u); err != nil {
				return err
			}
		}
		return nil
	}))

	sender := &captureSender{}
	notifier := NewNotifier(repo, sender, zaptest.NewLogger(t))

	notes := dispatch.OrderCreated(
		&models.Order{ID: 1, UserID: "client-1", Quantity: 1, TotalPrice: decimal.NewFromInt(10)},
		&models.Product{Name: "Mimosa"},
		&models.Store{ID: 1, PrestataireID: "vendor-1", Name: "Boutique"},
	)
	require.NoError(t, notifier.Notify(ctx, notes))

	var to []string
	for _, m := range sender.msgs {
		to = append(to, m.To)
	}
	sort.Strings(to)
	// The vendor has no token, so only the buyer and both admins get a push.
	assert.Equal(t, []string{"ExponentPushToken[a1]", "ExponentPushToken[a2]", "ExponentPushToken[client]"}, to)
	assert.Equal(t, dispatch.TitleOrderConfirmed, sender.msgs[0].Title)
	assert.Equal(t, notes[0].ID.String(), sender.msgs[0].Data["notificationId"])
}

func TestNotifier_NoTokensSendsNothing(t *testing.T) {
	sender := &captureSender{}
	notifier := NewNotifier(repository.NewMemoryRepository(), sender, zaptest.NewLogger(t))

	notes := dispatch.StatusChanged(&models.Order{ID: 3, UserID: "ghost"}, "Rose", models.OrderStatusShipped)
	require.NoError(t, notifier.Notify(context.Background(), notes))
	assert.Empty(t, sender.msgs)
}

func TestNotifier_ResendSkipsTokenLookup(t *testing.T) {
	sender := &captureSender{}
	// A nil token store would panic if Resend tried to resolve anything.
	notifier := NewNotifier(nil, sender, zaptest.NewLogger(t))

	msgs := []Message{NewMessage("ExponentPushToken[a]", "t", "b", nil)}
	require.NoError(t, notifier.Resend(context.Background(), msgs))
	require.NoError(t, notifier.Resend(context.Background(), nil))
	assert.Equal(t, msgs, sender.msgs)
}
