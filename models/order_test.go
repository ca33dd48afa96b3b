package models

import "testing"

func TestOrderStatus_Transitions(t *testing.T) {
	allowed := map[[2]OrderStatus]bool{
		{OrderStatusPending, OrderStatusValidated}:   true,
		{OrderStatusPending, OrderStatusCancelled}:   true,
		{OrderStatusValidated, OrderStatusShipped}:   true,
		{OrderStatusValidated, OrderStatusCancelled}: true,
		{OrderStatusShipped, OrderStatusDelivered}:   true,
	}

	for _, from := range OrderStatuses {
		for _, to := range OrderStatuses {
			want := allowed[[2]OrderStatus{from, to}]
			if got := from.CanTransitionTo(to); got != want {
				t.Errorf("%s -> %s: expected %v, got %v", from, to, want, got)
			}
		}
	}
}

func TestOrderStatus_Terminal(t *testing.T) {
	for _, s := range OrderStatuses {
		want := s == OrderStatusDelivered || s == OrderStatusCancelled
		if got := s.IsTerminal(); got != want {
			t.Errorf("%s: expected terminal=%v, got %v", s, want, got)
		}
	}
}

func TestParseOrderStatus(t *testing.T) {
	tests := []struct {
		raw  string
		want OrderStatus
		ok   bool
	}{
		{"shipped", OrderStatusShipped, true},
		{"  Delivered ", OrderStatusDelivered, true},
		{"confirmed", OrderStatusValidated, true},
		{"Validée", OrderStatusValidated, true},
		{"annulée", OrderStatusCancelled, true},
		{"canceled", OrderStatusCancelled, true},
		{"En attente", OrderStatusPending, true},
		{"lost", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		got, ok := ParseOrderStatus(tt.raw)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseOrderStatus(%q) = %q, %v; expected %q, %v", tt.raw, got, ok, tt.want, tt.ok)
		}
	}
}

func TestOrderStatus_Label(t *testing.T) {
	if got := OrderStatusShipped.Label(); got != "expédiée et en cours de livraison" {
		t.Errorf("Unexpected shipped label %q", got)
	}
	if got := OrderStatus("weird").Label(); got != "weird" {
		t.Errorf("Expected unknown status to label as itself, got %q", got)
	}
}

func TestParseRole(t *testing.T) {
	if r, ok := ParseRole("prestataire"); !ok || r != RolePrestataire {
		t.Errorf("Expected Prestataire, got %q, %v", r, ok)
	}
	if _, ok := ParseRole("owner"); ok {
		t.Error("Expected unknown role to be rejected")
	}
}

func TestNotification_VisibleTo(t *testing.T) {
	owner := "u1"
	personal := Notification{Type: NotificationTypeClient, UserID: &owner}
	broadcast := Notification{Type: NotificationTypeAdmin}
	orphan := Notification{Type: NotificationTypeClient}

	admin := Viewer{UserID: "a1", Role: RoleAdmin}
	client := Viewer{UserID: owner, Role: RoleClient}

	if !personal.VisibleTo(client) || personal.VisibleTo(admin) {
		t.Error("Personal notification must be visible to its owner only")
	}
	if !broadcast.VisibleTo(admin) || broadcast.VisibleTo(client) {
		t.Error("Broadcast must be visible to admins only")
	}
	if orphan.VisibleTo(admin) || orphan.VisibleTo(client) {
		t.Error("Unaddressed non-admin notification must be visible to nobody")
	}
}
