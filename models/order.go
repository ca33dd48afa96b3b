package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusValidated OrderStatus = "validated"
	OrderStatusShipped   OrderStatus = "shipped"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// OrderStatuses lists every status in lifecycle order.
var OrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusValidated,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:   {OrderStatusValidated, OrderStatusCancelled},
	OrderStatusValidated: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:   {OrderStatusDelivered},
	OrderStatusDelivered: {},
	OrderStatusCancelled: {},
}

// Spellings still sent by older app builds.
var orderStatusAliases = map[string]OrderStatus{
	"enattente":  OrderStatusPending,
	"en attente": OrderStatusPending,
	"confirmed":  OrderStatusValidated,
	"validee":    OrderStatusValidated,
	"validée":    OrderStatusValidated,
	"expediee":   OrderStatusShipped,
	"expédiée":   OrderStatusShipped,
	"livree":     OrderStatusDelivered,
	"livrée":     OrderStatusDelivered,
	"canceled":   OrderStatusCancelled,
	"annulee":    OrderStatusCancelled,
	"annulée":    OrderStatusCancelled,
}

// ParseOrderStatus normalizes a client supplied status. It is the only
// place where free-form status strings enter the system.
func ParseOrderStatus(raw string) (OrderStatus, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if _, ok := orderTransitions[OrderStatus(s)]; ok {
		return OrderStatus(s), true
	}
	if alias, ok := orderStatusAliases[s]; ok {
		return alias, true
	}
	return "", false
}

func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s OrderStatus) IsTerminal() bool {
	return len(orderTransitions[s]) == 0
}

// Label is the French wording shown to clients.
func (s OrderStatus) Label() string {
	switch s {
	case OrderStatusPending:
		return "en attente"
	case OrderStatusValidated:
		return "validée"
	case OrderStatusShipped:
		return "expédiée et en cours de livraison"
	case OrderStatusDelivered:
		return "livrée"
	case OrderStatusCancelled:
		return "annulée"
	}
	return string(s)
}

type Order struct {
	ID              int             `json:"id"`
	ProductID       int             `json:"productId"`
	StoreID         int             `json:"storeId"`
	UserID          string          `json:"userId"`
	Quantity        int             `json:"quantity"`
	TotalPrice      decimal.Decimal `json:"totalPrice"`
	Status          OrderStatus     `json:"status"`
	ShippingAddress string          `json:"shippingAddress,omitempty"`
	CustomerPhone   string          `json:"customerPhone,omitempty"`
	PaymentMethod   string          `json:"paymentMethod,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// OrderView is an order joined with the names the app displays.
type OrderView struct {
	Order
	ProductName string `json:"productName"`
	StoreName   string `json:"storeName"`
}

type CreateOrderRequest struct {
	ProductID       int    `json:"productId" binding:"required"`
	Quantity        int    `json:"quantity"`
	ShippingAddress string `json:"shippingAddress"`
	Phone           string `json:"phone"`
	PaymentMethod   string `json:"paymentMethod"`
}

type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}
