package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shamtarani05/aeglekart-orders/internal/domain"
	"github.com/shamtarani05/aeglekart-orders/internal/infrastructure/payment"
	"github.com/shamtarani05/aeglekart-orders/internal/notify"
)

type webhookFixture struct {
	svc      WebhookService
	orders   *memOrderRepo
	payments *memPaymentRepo
	gw       *fakeGateway
	notif    *recordingNotifier
}

func newWebhookFixture() *webhookFixture {
	orders := newMemOrderRepo()
	payments := newMemPaymentRepo()
	gw := newFakeGateway()
	notif := &recordingNotifier{}
	svc := NewWebhookService(testDB(), orders, payments, gw, notif, zap.NewNop())
	return &webhookFixture{svc: svc, orders: orders, payments: payments, gw: gw, notif: notif}
}

func (f *webhookFixture) seedPendingOrder(t *testing.T, orderID, sessionID string) *domain.Order {
	t.Helper()
	now := time.Now().UTC()
	order := &domain.Order{
		ID:                uuid.New(),
		OrderID:           orderID,
		ExternalSessionID: sessionID,
		Items:             []domain.OrderItem{{Name: "Cough Syrup", UnitAmount: 16000, Quantity: 1}},
		Customer:          domain.Customer{Email: "shopper@example.com"},
		Subtotal:          decimal.RequireFromString("160.00"),
		ShippingFee:       decimal.RequireFromString("350.00"),
		Status:            domain.OrderPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	require.NoError(t, f.orders.Create(context.Background(), nil, order))
	return order
}

func completedEvent(t *testing.T, sessionID, orderID string) *payment.Event {
	t.Helper()
	return eventOf(t, payment.EventCheckoutCompleted, map[string]any{
		"id":       sessionID,
		"metadata": map[string]string{"order_id": orderID},
	})
}

func failedEvent(t *testing.T, intentID, orderID string) *payment.Event {
	t.Helper()
	return eventOf(t, payment.EventPaymentFailed, map[string]any{
		"id":       intentID,
		"metadata": map[string]string{"order_id": orderID},
		"last_payment_error": map[string]any{
			"message": "card declined",
		},
	})
}

func eventOf(t *testing.T, eventType string, object map[string]any) *payment.Event {
	t.Helper()
	raw, err := json.Marshal(object)
	require.NoError(t, err)
	evt := &payment.Event{ID: "evt_" + uuid.NewString(), Type: eventType}
	evt.Data.Object = raw
	return evt
}

// The expanded session the gateway returns when the handler re-fetches.
func (f *webhookFixture) stageExpandedSession(sessionID, orderID string, amountTotal int64) {
	f.gw.setSession(&payment.Session{
		ID:            sessionID,
		AmountTotal:   amountTotal,
		Currency:      "pkr",
		PaymentStatus: "paid",
		CustomerDetails: &payment.CustomerDetails{
			Email: "shopper@example.com",
			Name:  "Asma Khan",
			Phone: "+92 300 0000000",
		},
		ShippingDetails: &payment.ShippingDetails{
			Name: "Asma Khan",
			Address: &payment.SessionAddress{
				Line1:      "12 Shahrah-e-Faisal",
				City:       "Karachi",
				PostalCode: "75350",
				Country:    "PK",
			},
		},
		PaymentIntent: payment.PaymentIntentRef{
			ID: "pi_123",
			Intent: &payment.PaymentIntent{
				ID:                 "pi_123",
				Amount:             amountTotal,
				Currency:           "pkr",
				Status:             "succeeded",
				PaymentMethodTypes: []string{"card"},
				Card:               &payment.IntentCard{Brand: "visa", Last4: "4242"},
			},
		},
		Metadata: map[string]string{"order_id": orderID},
	})
}

func TestHandleCompleted_TransitionsOrderAndRecordsPayment(t *testing.T) {
	f := newWebhookFixture()
	f.seedPendingOrder(t, "AGK-TEST1", "cs_1")
	f.stageExpandedSession("cs_1", "AGK-TEST1", 51000)

	err := f.svc.HandleEvent(context.Background(), completedEvent(t, "cs_1", "AGK-TEST1"))
	require.NoError(t, err)

	order, _ := f.orders.FindByOrderID(context.Background(), "AGK-TEST1")
	assert.Equal(t, domain.OrderPaid, order.Status)
	require.NotNil(t, order.Total)
	assert.True(t, order.Total.Equal(decimal.RequireFromString("510.00")), "total = %s", order.Total)
	assert.Equal(t, "Asma Khan", order.Customer.Name)
	require.NotNil(t, order.ShippingAddress)
	assert.Equal(t, "Karachi", order.ShippingAddress.City)

	require.Equal(t, 1, f.payments.count())
	pay, _ := f.payments.FindByOrderID(context.Background(), "AGK-TEST1")
	require.NotNil(t, pay)
	assert.Equal(t, domain.PaymentSucceeded, pay.Status)
	assert.True(t, pay.Amount.Equal(decimal.RequireFromString("510.00")))
	assert.Equal(t, "pi_123", pay.ExternalPaymentRef)
	assert.Equal(t, "card", pay.Method)
	require.NotNil(t, pay.Card)
	assert.Equal(t, "4242", pay.Card.Last4)

	require.Len(t, f.notif.events, 1)
	assert.Equal(t, notify.EventOrderPaid, f.notif.events[0].EventType)
}

func TestHandleCompleted_UnknownOrderIsDropped(t *testing.T) {
	f := newWebhookFixture()

	err := f.svc.HandleEvent(context.Background(), completedEvent(t, "cs_ghost", "AGK-GHOST"))
	require.NoError(t, err, "unknown order is acknowledged, not an error")

	assert.Equal(t, 0, f.payments.count())
	assert.Empty(t, f.notif.events)
}

func TestHandleCompleted_ReplayedEventCreatesNoSecondPayment(t *testing.T) {
	f := newWebhookFixture()
	f.seedPendingOrder(t, "AGK-TEST2", "cs_2")
	f.stageExpandedSession("cs_2", "AGK-TEST2", 51000)

	evt := completedEvent(t, "cs_2", "AGK-TEST2")
	require.NoError(t, f.svc.HandleEvent(context.Background(), evt))
	require.NoError(t, f.svc.HandleEvent(context.Background(), evt))

	assert.Equal(t, 1, f.payments.count(), "replay must converge on one ledger row")

	order, _ := f.orders.FindByOrderID(context.Background(), "AGK-TEST2")
	assert.Equal(t, domain.OrderPaid, order.Status)
}

func TestHandleFailed_MarksOrderFailedWithoutPayment(t *testing.T) {
	f := newWebhookFixture()
	f.seedPendingOrder(t, "AGK-TEST3", "cs_3")

	err := f.svc.HandleEvent(context.Background(), failedEvent(t, "pi_fail", "AGK-TEST3"))
	require.NoError(t, err)

	order, _ := f.orders.FindByOrderID(context.Background(), "AGK-TEST3")
	assert.Equal(t, domain.OrderFailed, order.Status)
	assert.Nil(t, order.Total, "total stays null on failure")
	assert.Equal(t, 0, f.payments.count())
}

func TestHandleFailed_DoesNotClobberPaidOrder(t *testing.T) {
	f := newWebhookFixture()
	f.seedPendingOrder(t, "AGK-TEST4", "cs_4")
	f.stageExpandedSession("cs_4", "AGK-TEST4", 51000)

	require.NoError(t, f.svc.HandleEvent(context.Background(), completedEvent(t, "cs_4", "AGK-TEST4")))
	require.NoError(t, f.svc.HandleEvent(context.Background(), failedEvent(t, "pi_late", "AGK-TEST4")))

	order, _ := f.orders.FindByOrderID(context.Background(), "AGK-TEST4")
	assert.Equal(t, domain.OrderPaid, order.Status, "late failure must not undo a settled order")
}

func TestHandleFailed_UnknownOrderIsDropped(t *testing.T) {
	f := newWebhookFixture()
	err := f.svc.HandleEvent(context.Background(), failedEvent(t, "pi_x", "AGK-NOPE"))
	require.NoError(t, err)
}

func TestHandleEvent_IgnoresUnrelatedEventTypes(t *testing.T) {
	f := newWebhookFixture()
	f.seedPendingOrder(t, "AGK-TEST5", "cs_5")

	evt := eventOf(t, "customer.created", map[string]any{"id": "cus_1"})
	require.NoError(t, f.svc.HandleEvent(context.Background(), evt))

	order, _ := f.orders.FindByOrderID(context.Background(), "AGK-TEST5")
	assert.Equal(t, domain.OrderPending, order.Status)
	assert.Equal(t, 0, f.payments.count())
}
