package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentPending           PaymentStatus = "pending"
	PaymentSucceeded         PaymentStatus = "succeeded"
	PaymentFailed            PaymentStatus = "failed"
	PaymentRefunded          PaymentStatus = "refunded"
	PaymentPartiallyRefunded PaymentStatus = "partially_refunded"
)

// Billing holds the payer details the processor collected during checkout.
type Billing struct {
	Name    string   `json:"name,omitempty"`
	Email   string   `json:"email,omitempty"`
	Phone   string   `json:"phone,omitempty"`
	Address *Address `json:"address,omitempty"`
}

// CardDetails carries non-sensitive card metadata only.
type CardDetails struct {
	Brand    string `json:"brand,omitempty"`
	Last4    string `json:"last4,omitempty"`
	ExpMonth int    `json:"exp_month,omitempty"`
	ExpYear  int    `json:"exp_year,omitempty"`
}

type Refund struct {
	Amount     decimal.Decimal `json:"amount"`
	Reason     string          `json:"reason,omitempty"`
	RefundedAt time.Time       `json:"refunded_at"`
}

// Payment is an append-only ledger entry recording a settlement against an
// Order. It references the Order by OrderID; it does not own it. Exactly one
// Payment is written when an Order transitions to paid, keyed on the
// processor's payment reference so replayed webhook deliveries converge.
type Payment struct {
	ID                 uuid.UUID
	PaymentID          string
	OrderID            string
	ExternalPaymentRef string
	Amount             decimal.Decimal
	Currency           string
	Method             string
	Status             PaymentStatus
	Billing            *Billing
	Card               *CardDetails
	Metadata           map[string]string
	Refund             *Refund
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// NewPaymentID generates a fresh external-facing payment identifier.
func NewPaymentID() string {
	return fmt.Sprintf("PAY-%s", strings.ToUpper(uuid.NewString()[:18]))
}
