// Package dispatch turns lifecycle events into the notifications each
// audience should receive. The rules are pure; Emit stores their output
// inside the caller's unit of work.
package dispatch

import (
	"fmt"
	"time"

	"flowermarket-svc/models"

	"github.com/google/uuid"
)

const (
	TitleOrderConfirmed   = "Votre commande est validée"
	TitleNewOrder         = "Nouvelle Commande"
	TitleNewTransaction   = "Nouvelle Transaction"
	TitleOrderUpdated     = "Mise à jour de votre commande"
	TitleNewClient        = "Nouveau Client"
	TitleNewPrestataire   = "Nouveau Prestataire"
	TitleAccountApproved  = "Compte approuvé"
	TitleWelcome          = "Bienvenue !"
	TitleClientVisit      = "Visite client"
	TitlePrestataireVisit = "Visite prestataire"
)

const defaultStoreName = "Une boutique"

// Clock is swapped in tests.
var Clock = func() time.Time { return time.Now().UTC() }

func newNotification(title, message string, typ models.NotificationType, userID *string) models.Notification {
	return models.Notification{
		ID:        uuid.New(),
		Title:     title,
		Message:   message,
		Type:      typ,
		UserID:    userID,
		CreatedAt: Clock(),
	}
}

func addressedTo(userID string) *string {
	return &userID
}

// OrderCreated notifies the buyer, the store owner and every admin. The
// store may be nil or ownerless, in which case the owner is skipped.
func OrderCreated(order *models.Order, product *models.Product, store *models.Store) []models.Notification {
	storeName := defaultStoreName
	if store != nil && store.Name != "" {
		storeName = store.Name
	}
	total := order.TotalPrice.StringFixed(2)

	notes := make([]models.Notification, 0, 3)
	notes = append(notes, newNotification(
		TitleOrderConfirmed,
		fmt.Sprintf("Votre commande pour %s a été enregistrée et validée.", product.Name),
		models.NotificationTypeClient,
		addressedTo(order.UserID),
	))
	if store != nil && store.PrestataireID != "" {
		notes = append(notes, newNotification(
			TitleNewOrder,
			fmt.Sprintf("Commande reçue pour %s. Montant : %s MAD.", storeName, total),
			models.NotificationTypePrestataire,
			addressedTo(store.PrestataireID),
		))
	}
	notes = append(notes, newNotification(
		TitleNewTransaction,
		fmt.Sprintf("Nouvelle commande de %dx %s. Total: %s MAD.", order.Quantity, product.Name, total),
		models.NotificationTypeAdmin,
		nil,
	))
	return notes
}

func StatusChanged(order *models.Order, productName string, status models.OrderStatus) []models.Notification {
	return []models.Notification{newNotification(
		TitleOrderUpdated,
		fmt.Sprintf("Votre commande #%d (%s) est désormais %s.", order.ID, productName, status.Label()),
		models.NotificationTypeClient,
		addressedTo(order.UserID),
	)}
}

func ClientRegistered(user *models.User) []models.Notification {
	return []models.Notification{newNotification(
		TitleNewClient,
		fmt.Sprintf("Le client %s (%s) vient de s'inscrire.", user.FullName, user.Email),
		models.NotificationTypeAdmin,
		nil,
	)}
}

func PrestataireRegistered(user *models.User) []models.Notification {
	return []models.Notification{newNotification(
		TitleNewPrestataire,
		fmt.Sprintf("Le prestataire %s (%s) est en attente de validation.", user.FullName, user.Email),
		models.NotificationTypeAdmin,
		nil,
	)}
}

func PrestataireApproved(user *models.User, store *models.Store) []models.Notification {
	return []models.Notification{newNotification(
		TitleAccountApproved,
		fmt.Sprintf("Votre compte a été validé. Votre boutique %q est prête.", store.Name),
		models.NotificationTypePrestataire,
		addressedTo(user.ID),
	)}
}

func Welcome(user *models.User) []models.Notification {
	typ := models.NotificationTypeClient
	if user.Role == models.RolePrestataire {
		typ = models.NotificationTypePrestataire
	}
	return []models.Notification{newNotification(
		TitleWelcome,
		"Bienvenue sur FlowerMarket ! Vous recevrez ici vos alertes de commande et notifications système.",
		typ,
		addressedTo(user.ID),
	)}
}

// VisitTracked records an anonymous visit for the admin feed.
func VisitTracked(visitor models.Role) []models.Notification {
	title := TitleClientVisit
	if visitor == models.RolePrestataire {
		title = TitlePrestataireVisit
	}
	return []models.Notification{newNotification(title, "Un utilisateur a consulté la plateforme", models.NotificationTypeAdmin, nil)}
}
