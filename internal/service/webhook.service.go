package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shamtarani05/aeglekart-orders/internal/domain"
	"github.com/shamtarani05/aeglekart-orders/internal/infrastructure/payment"
	"github.com/shamtarani05/aeglekart-orders/internal/metrics"
	"github.com/shamtarani05/aeglekart-orders/internal/notify"
	"github.com/shamtarani05/aeglekart-orders/internal/repo"
)

// WebhookService applies processor events to the order store. Callers have
// already verified the delivery's signature; everything past that point is
// acknowledged to the processor even when the referenced order is unknown,
// since retrying cannot resolve that condition.
type WebhookService interface {
	HandleEvent(ctx context.Context, evt *payment.Event) error
	// SettleFromSession applies the paid transition from an authoritative
	// session. Shared with the reconciliation sweep.
	SettleFromSession(ctx context.Context, order *domain.Order, sess *payment.Session) error
}

type webhookService struct {
	db          *sql.DB
	orderRepo   repo.OrderRepo
	paymentRepo repo.PaymentRepo
	gateway     payment.Gateway
	notifier    notify.Notifier
	logger      *zap.Logger
}

func NewWebhookService(
	db *sql.DB,
	orderRepo repo.OrderRepo,
	paymentRepo repo.PaymentRepo,
	gateway payment.Gateway,
	notifier notify.Notifier,
	logger *zap.Logger,
) WebhookService {
	return &webhookService{
		db:          db,
		orderRepo:   orderRepo,
		paymentRepo: paymentRepo,
		gateway:     gateway,
		notifier:    notifier,
		logger:      logger,
	}
}

func (s *webhookService) HandleEvent(ctx context.Context, evt *payment.Event) error {
	switch evt.Type {
	case payment.EventCheckoutCompleted:
		return s.handleCompleted(ctx, evt)
	case payment.EventPaymentFailed:
		return s.handleFailed(ctx, evt)
	default:
		s.logger.Debug("ignoring webhook event",
			zap.String("event_id", evt.ID),
			zap.String("event_type", evt.Type))
		metrics.WebhookEventsTotal.WithLabelValues(evt.Type, "ignored").Inc()
		return nil
	}
}

func (s *webhookService) handleCompleted(ctx context.Context, evt *payment.Event) error {
	sess, err := evt.Session()
	if err != nil {
		metrics.WebhookEventsTotal.WithLabelValues(evt.Type, "malformed").Inc()
		return err
	}

	order, err := s.orderRepo.FindByOrderID(ctx, sess.OrderID())
	if err != nil {
		metrics.WebhookEventsTotal.WithLabelValues(evt.Type, "error").Inc()
		return fmt.Errorf("order lookup: %w", err)
	}
	if order == nil {
		// Fire-and-forget from the processor's perspective: log and drop.
		s.logger.Warn("completed event references unknown order",
			zap.String("event_id", evt.ID),
			zap.String("order_id", sess.OrderID()),
			zap.String("session_id", sess.ID))
		metrics.WebhookEventsTotal.WithLabelValues(evt.Type, "unknown_order").Inc()
		return nil
	}

	// Re-fetch the full session for authoritative customer, shipping and
	// payment-intent data; the event payload alone may carry an unexpanded
	// intent reference.
	full, err := s.gateway.RetrieveSession(ctx, sess.ID,
		"customer_details", "shipping_details", "payment_intent")
	if err != nil {
		metrics.WebhookEventsTotal.WithLabelValues(evt.Type, "error").Inc()
		return fmt.Errorf("retrieve session %s: %w", sess.ID, err)
	}

	if err := s.SettleFromSession(ctx, order, full); err != nil {
		metrics.WebhookEventsTotal.WithLabelValues(evt.Type, "error").Inc()
		return err
	}
	metrics.WebhookEventsTotal.WithLabelValues(evt.Type, "applied").Inc()
	return nil
}

func (s *webhookService) SettleFromSession(ctx context.Context, order *domain.Order, sess *payment.Session) error {
	now := time.Now().UTC()
	total := domain.RupeesFromPaisa(sess.AmountTotal)

	cust := order.Customer
	if cd := sess.CustomerDetails; cd != nil {
		if cd.Email != "" {
			cust.Email = cd.Email
		}
		cust.Name = cd.Name
		cust.Phone = cd.Phone
	}

	var addr *domain.Address
	if sd := sess.ShippingDetails; sd != nil && sd.Address != nil {
		addr = &domain.Address{
			Line1:      sd.Address.Line1,
			Line2:      sd.Address.Line2,
			City:       sd.Address.City,
			State:      sd.Address.State,
			PostalCode: sd.Address.PostalCode,
			Country:    sd.Address.Country,
		}
	}

	pay := buildPayment(order.OrderID, sess, now)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := s.orderRepo.MarkPaid(ctx, tx, order.OrderID, total, cust, addr, now); err != nil {
		return fmt.Errorf("mark order paid: %w", err)
	}

	created, err := s.paymentRepo.Create(ctx, tx, pay)
	if err != nil {
		return fmt.Errorf("record payment: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	if created {
		metrics.PaymentsRecordedTotal.Inc()
	} else {
		// Replayed delivery; the ledger row for this payment ref already
		// exists and the update above was a no-op rewrite of the same data.
		s.logger.Info("duplicate payment delivery ignored",
			zap.String("order_id", order.OrderID),
			zap.String("payment_ref", pay.ExternalPaymentRef))
	}

	s.logger.Info("order settled",
		zap.String("order_id", order.OrderID),
		zap.String("session_id", sess.ID),
		zap.String("total", total.String()))

	if err := s.notifier.Publish(ctx, notify.OrderEvent{
		EventID:   uuid.NewString(),
		EventType: notify.EventOrderPaid,
		OrderID:   order.OrderID,
		Status:    string(domain.OrderPaid),
		Email:     cust.Email,
		Amount:    total,
		Currency:  sess.Currency,
		Timestamp: now,
	}); err != nil {
		s.logger.Warn("order paid notification failed",
			zap.String("order_id", order.OrderID),
			zap.Error(err))
	}
	return nil
}

func buildPayment(orderID string, sess *payment.Session, now time.Time) *domain.Payment {
	pay := &domain.Payment{
		ID:                 uuid.New(),
		PaymentID:          domain.NewPaymentID(),
		OrderID:            orderID,
		ExternalPaymentRef: sess.PaymentIntent.ID,
		Amount:             domain.RupeesFromPaisa(sess.AmountTotal),
		Currency:           sess.Currency,
		Status:             domain.PaymentSucceeded,
		Metadata:           sess.Metadata,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	// A session without an intent reference can still settle (e.g. a
	// zero-amount order); fall back to the session id as the ledger key.
	if pay.ExternalPaymentRef == "" {
		pay.ExternalPaymentRef = sess.ID
	}

	if cd := sess.CustomerDetails; cd != nil {
		billing := &domain.Billing{Name: cd.Name, Email: cd.Email, Phone: cd.Phone}
		if sd := sess.ShippingDetails; sd != nil && sd.Address != nil {
			billing.Address = &domain.Address{
				Line1:      sd.Address.Line1,
				Line2:      sd.Address.Line2,
				City:       sd.Address.City,
				State:      sd.Address.State,
				PostalCode: sd.Address.PostalCode,
				Country:    sd.Address.Country,
			}
		}
		pay.Billing = billing
	}

	if intent := sess.PaymentIntent.Intent; intent != nil {
		if len(intent.PaymentMethodTypes) > 0 {
			pay.Method = intent.PaymentMethodTypes[0]
		}
		if intent.Card != nil {
			pay.Card = &domain.CardDetails{
				Brand:    intent.Card.Brand,
				Last4:    intent.Card.Last4,
				ExpMonth: intent.Card.ExpMonth,
				ExpYear:  intent.Card.ExpYear,
			}
		}
	}
	return pay
}

func (s *webhookService) handleFailed(ctx context.Context, evt *payment.Event) error {
	intent, err := evt.FailedIntent()
	if err != nil {
		metrics.WebhookEventsTotal.WithLabelValues(evt.Type, "malformed").Inc()
		return err
	}

	orderID := intent.Metadata["order_id"]
	order, err := s.orderRepo.FindByOrderID(ctx, orderID)
	if err != nil {
		metrics.WebhookEventsTotal.WithLabelValues(evt.Type, "error").Inc()
		return fmt.Errorf("order lookup: %w", err)
	}
	if order == nil {
		s.logger.Warn("failed event references unknown order",
			zap.String("event_id", evt.ID),
			zap.String("order_id", orderID))
		metrics.WebhookEventsTotal.WithLabelValues(evt.Type, "unknown_order").Inc()
		return nil
	}

	now := time.Now().UTC()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	flipped, err := s.orderRepo.MarkFailedFromPending(ctx, tx, orderID, now)
	if err != nil {
		metrics.WebhookEventsTotal.WithLabelValues(evt.Type, "error").Inc()
		return fmt.Errorf("mark order failed: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	if !flipped {
		s.logger.Info("failure event skipped, order no longer pending",
			zap.String("order_id", orderID),
			zap.String("status", string(order.Status)))
		metrics.WebhookEventsTotal.WithLabelValues(evt.Type, "stale").Inc()
		return nil
	}

	s.logger.Info("order marked failed",
		zap.String("order_id", orderID),
		zap.String("reason", intent.LastPaymentError.Message))
	metrics.WebhookEventsTotal.WithLabelValues(evt.Type, "applied").Inc()

	if err := s.notifier.Publish(ctx, notify.OrderEvent{
		EventID:   uuid.NewString(),
		EventType: notify.EventOrderFailed,
		OrderID:   orderID,
		Status:    string(domain.OrderFailed),
		Email:     order.Customer.Email,
		Timestamp: now,
	}); err != nil {
		s.logger.Warn("order failed notification failed",
			zap.String("order_id", orderID),
			zap.Error(err))
	}
	return nil
}
