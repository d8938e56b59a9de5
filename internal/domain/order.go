package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderPaid       OrderStatus = "paid"
	OrderProcessing OrderStatus = "processing"
	OrderShipped    OrderStatus = "shipped"
	OrderDelivered  OrderStatus = "delivered"
	OrderCancelled  OrderStatus = "cancelled"
	OrderFailed     OrderStatus = "failed"
	OrderRefunded   OrderStatus = "refunded"
)

// ValidOrderStatus reports whether s is one of the enumerated order statuses.
func ValidOrderStatus(s string) bool {
	switch OrderStatus(s) {
	case OrderPending, OrderPaid, OrderProcessing, OrderShipped,
		OrderDelivered, OrderCancelled, OrderFailed, OrderRefunded:
		return true
	}
	return false
}

// Reserved line-item names injected by the storefront to represent fees.
// They are forwarded to the payment processor but excluded from the
// product subtotal recorded on the Order.
const (
	LineItemShipping     = "Shipping"
	LineItemEstimatedTax = "Estimated Tax"
)

// OrderItem is a single purchasable line in a cart. UnitAmount is in paisa.
type OrderItem struct {
	Name       string `json:"name"`
	UnitAmount int64  `json:"unit_amount"`
	Quantity   int    `json:"quantity"`
	ImageRef   string `json:"image_ref,omitempty"`
}

// IsFeeLine reports whether the item is a synthetic fee line rather than a product.
func (it OrderItem) IsFeeLine() bool {
	return it.Name == LineItemShipping || it.Name == LineItemEstimatedTax
}

type Customer struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone,omitempty"`
}

type Address struct {
	Line1      string `json:"line1,omitempty"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country,omitempty"`
}

type DiscountKind string

const (
	DiscountPercent  DiscountKind = "percent"
	DiscountFixed    DiscountKind = "fixed"
	DiscountShipping DiscountKind = "shipping"
)

type Discount struct {
	Code  string       `json:"code"`
	Kind  DiscountKind `json:"kind"`
	Value int64        `json:"value"`
}

// Order is the store's record of a customer's attempted or completed
// purchase. OrderID is the external-facing identifier; ID is internal.
type Order struct {
	ID                uuid.UUID
	OrderID           string
	ExternalSessionID string
	Items             []OrderItem
	Customer          Customer
	ShippingAddress   *Address
	Discount          *Discount
	Subtotal          decimal.Decimal
	ShippingFee       decimal.Decimal
	Tax               decimal.Decimal
	Total             *decimal.Decimal
	Status            OrderStatus
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// NewOrderID generates a fresh external-facing order identifier.
func NewOrderID() string {
	return fmt.Sprintf("AGK-%s", strings.ToUpper(uuid.NewString()[:18]))
}

// RupeesFromPaisa converts a paisa amount to a two-decimal rupee value.
func RupeesFromPaisa(paisa int64) decimal.Decimal {
	return decimal.New(paisa, -2)
}

// ProductSubtotal sums unit_amount x quantity over items, skipping the
// reserved Shipping / Estimated Tax fee lines. Result is in paisa.
func ProductSubtotal(items []OrderItem) int64 {
	var sum int64
	for _, it := range items {
		if it.IsFeeLine() {
			continue
		}
		sum += it.UnitAmount * int64(it.Quantity)
	}
	return sum
}

// ProductItems returns items with the reserved fee lines filtered out,
// preserving order. This is what gets persisted on the Order.
func ProductItems(items []OrderItem) []OrderItem {
	out := make([]OrderItem, 0, len(items))
	for _, it := range items {
		if it.IsFeeLine() {
			continue
		}
		out = append(out, it)
	}
	return out
}

// HasShippingLine reports whether the caller already supplied a shipping fee line.
func HasShippingLine(items []OrderItem) bool {
	for _, it := range items {
		if it.Name == LineItemShipping {
			return true
		}
	}
	return false
}
