package models

import (
	"strings"
	"time"
)

type Role string

const (
	RoleClient      Role = "Client"
	RolePrestataire Role = "Prestataire"
	RoleAdmin       Role = "Admin"
)

func ParseRole(raw string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "client":
		return RoleClient, true
	case "prestataire":
		return RolePrestataire, true
	case "admin":
		return RoleAdmin, true
	}
	return "", false
}

// Viewer is the authenticated caller of a request.
type Viewer struct {
	UserID string
	Role   Role
}

type User struct {
	ID            string    `json:"id"`
	FullName      string    `json:"fullName"`
	Email         string    `json:"email"`
	Role          Role      `json:"role"`
	IsApproved    bool      `json:"isApproved"`
	ExpoPushToken string    `json:"-"`
	CreatedAt     time.Time `json:"createdAt"`
}

type Store struct {
	ID            int    `json:"id"`
	PrestataireID string `json:"prestataireId"`
	Name          string `json:"name"`
}

type RegisterRequest struct {
	FullName string `json:"fullName" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Role     string `json:"role"`
}

type ExchangeResponse struct {
	Token      string `json:"token"`
	Role       Role   `json:"role"`
	IsApproved bool   `json:"isApproved"`
	UID        string `json:"uid"`
}

type ExchangeRequest struct {
	FirebaseUID string `json:"firebaseUid"`
}
