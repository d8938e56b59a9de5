package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/shamtarani05/aeglekart-orders/internal/domain"
	"github.com/shamtarani05/aeglekart-orders/internal/notify"
	"github.com/shamtarani05/aeglekart-orders/internal/repo"
)

// OrderProjection is the read-only view the verification endpoint returns.
type OrderProjection struct {
	OrderID   string           `json:"orderId"`
	Status    string           `json:"status"`
	Total     *decimal.Decimal `json:"total"`
	CreatedAt time.Time        `json:"createdAt"`
}

type PaymentProjection struct {
	PaymentID string          `json:"paymentId"`
	Status    string          `json:"status"`
	Amount    decimal.Decimal `json:"amount"`
	CreatedAt time.Time       `json:"createdAt"`
}

type VerificationResult struct {
	Order   OrderProjection    `json:"order"`
	Payment *PaymentProjection `json:"payment"`
}

type StatusUpdate struct {
	OrderID   string    `json:"orderId"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type OrderService interface {
	// VerifyPayment is the synchronous read the storefront polls after
	// returning from the hosted payment page. No state mutation.
	VerifyPayment(ctx context.Context, orderID string) (*VerificationResult, error)
	Get(ctx context.Context, orderID string) (*domain.Order, error)
	List(ctx context.Context, filter repo.OrderFilter) ([]domain.Order, error)
	UpdateStatus(ctx context.Context, orderID, target string) (*StatusUpdate, error)
}

type orderService struct {
	orderRepo   repo.OrderRepo
	paymentRepo repo.PaymentRepo
	notifier    notify.Notifier
	logger      *zap.Logger
}

func NewOrderService(
	orderRepo repo.OrderRepo,
	paymentRepo repo.PaymentRepo,
	notifier notify.Notifier,
	logger *zap.Logger,
) OrderService {
	return &orderService{
		orderRepo:   orderRepo,
		paymentRepo: paymentRepo,
		notifier:    notifier,
		logger:      logger,
	}
}

func (s *orderService) VerifyPayment(ctx context.Context, orderID string) (*VerificationResult, error) {
	order, err := s.orderRepo.FindByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}

	result := &VerificationResult{
		Order: OrderProjection{
			OrderID:   order.OrderID,
			Status:    string(order.Status),
			Total:     order.Total,
			CreatedAt: order.CreatedAt,
		},
	}

	pay, err := s.paymentRepo.FindByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if pay != nil {
		result.Payment = &PaymentProjection{
			PaymentID: pay.PaymentID,
			Status:    string(pay.Status),
			Amount:    pay.Amount,
			CreatedAt: pay.CreatedAt,
		}
	}
	return result, nil
}

func (s *orderService) Get(ctx context.Context, orderID string) (*domain.Order, error) {
	order, err := s.orderRepo.FindByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	return order, nil
}

func (s *orderService) List(ctx context.Context, filter repo.OrderFilter) ([]domain.Order, error) {
	return s.orderRepo.List(ctx, filter)
}

// UpdateStatus is the administrative transition path. Enum membership is the
// only guard; any enumerated status may follow any other.
func (s *orderService) UpdateStatus(ctx context.Context, orderID, target string) (*StatusUpdate, error) {
	if !domain.ValidOrderStatus(target) {
		return nil, fmt.Errorf("%w: %q is not a valid order status", ErrValidation, target)
	}

	now := time.Now().UTC()
	updated, err := s.orderRepo.UpdateStatus(ctx, orderID, domain.OrderStatus(target), now)
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, ErrOrderNotFound
	}

	s.logger.Info("order status updated",
		zap.String("order_id", orderID),
		zap.String("status", target))

	if err := s.notifier.Publish(ctx, notify.OrderEvent{
		EventID:   uuid.NewString(),
		EventType: notify.EventOrderStatusChanged,
		OrderID:   orderID,
		Status:    target,
		Timestamp: now,
	}); err != nil {
		s.logger.Warn("status change notification failed",
			zap.String("order_id", orderID),
			zap.Error(err))
	}

	return &StatusUpdate{OrderID: orderID, Status: target, UpdatedAt: now}, nil
}
