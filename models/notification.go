package models

import (
	"time"

	"github.com/google/uuid"
)

// NotificationType decides who may see a notification, not what it says.
type NotificationType string

const (
	NotificationTypeClient      NotificationType = "Client"
	NotificationTypePrestataire NotificationType = "Prestataire"
	NotificationTypeAdmin       NotificationType = "Admin"
)

type Notification struct {
	ID        uuid.UUID        `json:"id"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Type      NotificationType `json:"type"`
	UserID    *string          `json:"userId,omitempty"`
	IsRead    bool             `json:"isRead"`
	CreatedAt time.Time        `json:"createdAt"`
}

// IsBroadcast reports whether every admin viewer sees the notification.
func (n Notification) IsBroadcast() bool {
	return n.UserID == nil && n.Type == NotificationTypeAdmin
}

func (n Notification) VisibleTo(v Viewer) bool {
	if n.UserID != nil {
		return *n.UserID == v.UserID
	}
	return v.Role == RoleAdmin && n.IsBroadcast()
}
