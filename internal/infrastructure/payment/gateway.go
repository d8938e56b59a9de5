package payment

import (
	"context"
	"encoding/json"
	"fmt"
)

// Gateway is the contract the order core needs from the hosted payment
// processor. Implementations: Client (REST) and the mock in mockGateway.go.
type Gateway interface {
	CreateCheckoutSession(ctx context.Context, params SessionParams) (*Session, error)
	CreateCoupon(ctx context.Context, params CouponParams) (string, error)
	RetrieveSession(ctx context.Context, sessionID string, expand ...string) (*Session, error)
}

// LineItem is a processor-facing cart line. UnitAmount is in the smallest
// currency unit.
type LineItem struct {
	Name       string `json:"name"`
	UnitAmount int64  `json:"unit_amount"`
	Quantity   int    `json:"quantity"`
	ImageURL   string `json:"image_url,omitempty"`
	Currency   string `json:"currency"`
}

// ShippingOption is a flat-fee shipping rate attached to a session.
type ShippingOption struct {
	DisplayName string `json:"display_name"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
}

type CouponParams struct {
	// Kind is "percent" or "fixed".
	Kind     string
	Value    int64
	Currency string
}

type SessionParams struct {
	LineItems       []LineItem
	ShippingOptions []ShippingOption
	ShipCountries   []string
	CustomerEmail   string
	SuccessURL      string
	CancelURL       string
	CouponID        string
	Metadata        map[string]string
}

// CustomerDetails is what the processor collected on the hosted page.
type CustomerDetails struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone,omitempty"`
}

type SessionAddress struct {
	Line1      string `json:"line1,omitempty"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country,omitempty"`
}

type ShippingDetails struct {
	Name    string          `json:"name,omitempty"`
	Address *SessionAddress `json:"address,omitempty"`
}

// PaymentIntent is the expanded intent object attached to a completed session.
type PaymentIntent struct {
	ID                 string      `json:"id"`
	Amount             int64       `json:"amount"`
	Currency           string      `json:"currency"`
	Status             string      `json:"status"`
	PaymentMethodTypes []string    `json:"payment_method_types,omitempty"`
	Card               *IntentCard `json:"card,omitempty"`
}

// IntentCard carries non-sensitive card metadata from the intent.
type IntentCard struct {
	Brand    string `json:"brand,omitempty"`
	Last4    string `json:"last4,omitempty"`
	ExpMonth int    `json:"exp_month,omitempty"`
	ExpYear  int    `json:"exp_year,omitempty"`
}

// PaymentIntentRef is the processor's payment_intent field, which arrives
// either as a bare string id or, when expanded, as the full object. The
// union is resolved once here at unmarshal time so callers never branch on
// runtime shape.
type PaymentIntentRef struct {
	ID     string
	Intent *PaymentIntent
}

func (r *PaymentIntentRef) UnmarshalJSON(b []byte) error {
	if len(b) == 0 || string(b) == "null" {
		*r = PaymentIntentRef{}
		return nil
	}
	if b[0] == '"' {
		var id string
		if err := json.Unmarshal(b, &id); err != nil {
			return err
		}
		*r = PaymentIntentRef{ID: id}
		return nil
	}
	var intent PaymentIntent
	if err := json.Unmarshal(b, &intent); err != nil {
		return err
	}
	*r = PaymentIntentRef{ID: intent.ID, Intent: &intent}
	return nil
}

func (r PaymentIntentRef) MarshalJSON() ([]byte, error) {
	if r.Intent != nil {
		return json.Marshal(r.Intent)
	}
	if r.ID == "" {
		return []byte("null"), nil
	}
	return json.Marshal(r.ID)
}

// Session is the processor's checkout session, possibly expanded with
// customer, shipping and payment-intent detail.
type Session struct {
	ID              string            `json:"id"`
	URL             string            `json:"url,omitempty"`
	AmountTotal     int64             `json:"amount_total"`
	Currency        string            `json:"currency"`
	PaymentStatus   string            `json:"payment_status"`
	CustomerDetails *CustomerDetails  `json:"customer_details,omitempty"`
	ShippingDetails *ShippingDetails  `json:"shipping_details,omitempty"`
	PaymentIntent   PaymentIntentRef  `json:"payment_intent,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// OrderID returns the order reference the session was created with.
func (s *Session) OrderID() string {
	return s.Metadata["order_id"]
}

// Event kinds the webhook path interprets. Anything else is acknowledged
// and ignored.
const (
	EventCheckoutCompleted = "checkout.session.completed"
	EventPaymentFailed     = "payment_intent.payment_failed"
)

// Event is a signed webhook delivery from the processor.
type Event struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// Session decodes the event payload as a checkout session.
func (e *Event) Session() (*Session, error) {
	var s Session
	if err := json.Unmarshal(e.Data.Object, &s); err != nil {
		return nil, fmt.Errorf("decode session payload: %w", err)
	}
	return &s, nil
}

// FailedIntent is the payload of a payment_intent.payment_failed event.
type FailedIntent struct {
	ID               string            `json:"id"`
	Metadata         map[string]string `json:"metadata,omitempty"`
	LastPaymentError struct {
		Message string `json:"message,omitempty"`
	} `json:"last_payment_error,omitempty"`
}

// FailedIntent decodes the event payload as a failed payment intent.
func (e *Event) FailedIntent() (*FailedIntent, error) {
	var fi FailedIntent
	if err := json.Unmarshal(e.Data.Object, &fi); err != nil {
		return nil, fmt.Errorf("decode payment intent payload: %w", err)
	}
	return &fi, nil
}
