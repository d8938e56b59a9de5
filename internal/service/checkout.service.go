package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shamtarani05/aeglekart-orders/internal/domain"
	"github.com/shamtarani05/aeglekart-orders/internal/infrastructure/payment"
	"github.com/shamtarani05/aeglekart-orders/internal/metrics"
	"github.com/shamtarani05/aeglekart-orders/internal/repo"
)

// CheckoutConfig carries the store economics the session initiator needs.
// Threshold and fee are in paisa.
type CheckoutConfig struct {
	Currency              string
	FreeShippingThreshold int64
	ShippingFee           int64
	ShipCountries         []string
}

type CheckoutRequest struct {
	Items         []domain.OrderItem
	Discount      *domain.Discount
	CustomerEmail string
	SuccessURL    string
	CancelURL     string
	Metadata      map[string]string
}

type CheckoutResult struct {
	SessionID string `json:"sessionId"`
	OrderID   string `json:"orderId"`
}

type CheckoutService interface {
	CreateSession(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error)
}

type checkoutService struct {
	db        *sql.DB
	orderRepo repo.OrderRepo
	gateway   payment.Gateway
	cfg       CheckoutConfig
	logger    *zap.Logger
}

func NewCheckoutService(
	db *sql.DB,
	orderRepo repo.OrderRepo,
	gateway payment.Gateway,
	cfg CheckoutConfig,
	logger *zap.Logger,
) CheckoutService {
	return &checkoutService{
		db:        db,
		orderRepo: orderRepo,
		gateway:   gateway,
		cfg:       cfg,
		logger:    logger,
	}
}

// CreateSession prices the cart, requests a hosted checkout session from the
// processor and persists a pending Order. The Order write happens only after
// the session call succeeded so no order is ever left pointing at a session
// that does not exist.
func (s *checkoutService) CreateSession(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	if err := validateCheckout(req); err != nil {
		return nil, err
	}

	orderID := domain.NewOrderID()
	subtotalPaisa := domain.ProductSubtotal(req.Items)

	lineItems := make([]payment.LineItem, 0, len(req.Items))
	for _, it := range req.Items {
		lineItems = append(lineItems, payment.LineItem{
			Name:       it.Name,
			UnitAmount: it.UnitAmount,
			Quantity:   it.Quantity,
			ImageURL:   it.ImageRef,
			// All line items settle in the store currency regardless of
			// what the caller supplied.
			Currency: s.cfg.Currency,
		})
	}

	shippingFeePaisa := int64(0)
	var shippingOptions []payment.ShippingOption
	if !domain.HasShippingLine(req.Items) {
		if subtotalPaisa < s.cfg.FreeShippingThreshold {
			shippingFeePaisa = s.cfg.ShippingFee
		}
		shippingOptions = []payment.ShippingOption{{
			DisplayName: "Standard Shipping",
			Amount:      shippingFeePaisa,
			Currency:    s.cfg.Currency,
		}}
	}

	// Coupon creation is best-effort: a processor rejection drops the
	// discount but the checkout still proceeds.
	discount := req.Discount
	couponID := ""
	if discount != nil && discount.Kind != domain.DiscountShipping {
		id, err := s.gateway.CreateCoupon(ctx, payment.CouponParams{
			Kind:     string(discount.Kind),
			Value:    discount.Value,
			Currency: s.cfg.Currency,
		})
		if err != nil {
			s.logger.Warn("coupon creation failed, proceeding without discount",
				zap.String("order_id", orderID),
				zap.String("code", discount.Code),
				zap.Error(err))
			metrics.CouponFailuresTotal.Inc()
			discount = nil
		} else {
			couponID = id
		}
	}

	metadata := make(map[string]string, len(req.Metadata)+1)
	for k, v := range req.Metadata {
		metadata[k] = v
	}
	metadata["order_id"] = orderID

	sess, err := s.gateway.CreateCheckoutSession(ctx, payment.SessionParams{
		LineItems:       lineItems,
		ShippingOptions: shippingOptions,
		ShipCountries:   s.cfg.ShipCountries,
		CustomerEmail:   req.CustomerEmail,
		SuccessURL:      req.SuccessURL,
		CancelURL:       req.CancelURL,
		CouponID:        couponID,
		Metadata:        metadata,
	})
	if err != nil {
		s.logger.Error("checkout session creation failed",
			zap.String("order_id", orderID),
			zap.Error(err))
		metrics.CheckoutSessionsTotal.WithLabelValues("gateway_error").Inc()
		return nil, ErrCheckoutFailed
	}

	now := time.Now().UTC()
	order := &domain.Order{
		ID:                uuid.New(),
		OrderID:           orderID,
		ExternalSessionID: sess.ID,
		Items:             domain.ProductItems(req.Items),
		Customer:          domain.Customer{Email: req.CustomerEmail},
		Discount:          discount,
		Subtotal:          domain.RupeesFromPaisa(subtotalPaisa),
		ShippingFee:       domain.RupeesFromPaisa(shippingFeePaisa),
		Status:            domain.OrderPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		metrics.CheckoutSessionsTotal.WithLabelValues("store_error").Inc()
		return nil, ErrCheckoutFailed
	}
	defer tx.Rollback()

	if err := s.orderRepo.Create(ctx, tx, order); err != nil {
		s.logger.Error("failed to persist pending order",
			zap.String("order_id", orderID),
			zap.String("session_id", sess.ID),
			zap.Error(err))
		metrics.CheckoutSessionsTotal.WithLabelValues("store_error").Inc()
		return nil, ErrCheckoutFailed
	}

	if err := tx.Commit(); err != nil {
		metrics.CheckoutSessionsTotal.WithLabelValues("store_error").Inc()
		return nil, ErrCheckoutFailed
	}

	s.logger.Info("checkout session created",
		zap.String("order_id", orderID),
		zap.String("session_id", sess.ID),
		zap.Int64("subtotal_paisa", subtotalPaisa),
		zap.Int64("shipping_fee_paisa", shippingFeePaisa))
	metrics.CheckoutSessionsTotal.WithLabelValues("created").Inc()

	return &CheckoutResult{SessionID: sess.ID, OrderID: orderID}, nil
}

func validateCheckout(req CheckoutRequest) error {
	if len(req.Items) == 0 {
		return fmt.Errorf("%w: cart has no items", ErrValidation)
	}
	if strings.TrimSpace(req.CustomerEmail) == "" {
		return fmt.Errorf("%w: customer email is required", ErrValidation)
	}
	if req.SuccessURL == "" || req.CancelURL == "" {
		return fmt.Errorf("%w: success and cancel URLs are required", ErrValidation)
	}
	for i, it := range req.Items {
		if it.Name == "" {
			return fmt.Errorf("%w: item %d has no name", ErrValidation, i)
		}
		if it.Quantity < 1 {
			return fmt.Errorf("%w: item %q has quantity < 1", ErrValidation, it.Name)
		}
		if it.UnitAmount < 0 {
			return fmt.Errorf("%w: item %q has negative amount", ErrValidation, it.Name)
		}
	}
	if d := req.Discount; d != nil {
		switch d.Kind {
		case domain.DiscountPercent, domain.DiscountFixed, domain.DiscountShipping:
		default:
			return fmt.Errorf("%w: unknown discount kind %q", ErrValidation, d.Kind)
		}
	}
	return nil
}
