package payment

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// MockGateway is an in-memory Gateway used by tests and the local
// simulator. It records every created session and coupon and lets callers
// inject failures and completed-session detail.
type MockGateway struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	coupons  map[string]CouponParams

	FailSessions bool
	FailCoupons  bool
}

func NewMockGateway() *MockGateway {
	return &MockGateway{
		sessions: make(map[string]*Session),
		coupons:  make(map[string]CouponParams),
	}
}

func (m *MockGateway) CreateCheckoutSession(ctx context.Context, params SessionParams) (*Session, error) {
	if m.FailSessions {
		return nil, errors.New("gateway unavailable")
	}

	var total int64
	for _, li := range params.LineItems {
		total += li.UnitAmount * int64(li.Quantity)
	}
	for _, so := range params.ShippingOptions {
		total += so.Amount
	}

	currency := "pkr"
	if len(params.LineItems) > 0 {
		currency = params.LineItems[0].Currency
	}

	sess := &Session{
		ID:            "cs_" + uuid.NewString(),
		URL:           fmt.Sprintf("https://pay.aeglepay.example/c/%s", uuid.NewString()),
		AmountTotal:   total,
		Currency:      currency,
		PaymentStatus: "unpaid",
		Metadata:      params.Metadata,
	}

	m.mu.Lock()
	m.sessions[sess.ID] = sess
	m.mu.Unlock()
	return sess, nil
}

func (m *MockGateway) CreateCoupon(ctx context.Context, params CouponParams) (string, error) {
	if m.FailCoupons {
		return "", errors.New("coupon creation rejected")
	}
	id := "coup_" + uuid.NewString()
	m.mu.Lock()
	m.coupons[id] = params
	m.mu.Unlock()
	return id, nil
}

func (m *MockGateway) RetrieveSession(ctx context.Context, sessionID string, expand ...string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("no such session: %s", sessionID)
	}
	cp := *sess
	return &cp, nil
}

// CompleteSession marks a recorded session paid with the given confirmed
// total and attaches the expanded detail a real processor would return.
func (m *MockGateway) CompleteSession(sessionID string, amountTotal int64, cust *CustomerDetails, ship *ShippingDetails, intent *PaymentIntent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[sessionID]
	if !ok {
		return
	}
	sess.PaymentStatus = "paid"
	sess.AmountTotal = amountTotal
	sess.CustomerDetails = cust
	sess.ShippingDetails = ship
	if intent != nil {
		sess.PaymentIntent = PaymentIntentRef{ID: intent.ID, Intent: intent}
	}
}

// SessionCount reports how many sessions were created.
func (m *MockGateway) SessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// CouponCount reports how many coupons were created.
func (m *MockGateway) CouponCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.coupons)
}
