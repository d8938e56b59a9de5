package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/shamtarani05/aeglekart-orders/internal/domain"
)

type PaymentRepo interface {
	// Create inserts the payment ledger row. A conflict on
	// external_payment_ref means the same processor payment was already
	// recorded (replayed webhook); that is reported as created=false, not
	// an error.
	Create(ctx context.Context, tx *sql.Tx, payment *domain.Payment) (created bool, err error)
	FindByOrderID(ctx context.Context, orderID string) (*domain.Payment, error)
}

type paymentRepo struct {
	db *sql.DB
}

func NewPaymentRepo(db *sql.DB) PaymentRepo {
	return &paymentRepo{db: db}
}

const paymentColumns = `id, payment_id, order_id, external_payment_ref, amount, currency,
	method, status, billing, card, metadata, refund, created_at, updated_at`

func (r *paymentRepo) Create(ctx context.Context, tx *sql.Tx, payment *domain.Payment) (bool, error) {
	billing, err := marshalJSONOrNil(payment.Billing)
	if err != nil {
		return false, fmt.Errorf("marshal billing: %w", err)
	}
	card, err := marshalJSONOrNil(payment.Card)
	if err != nil {
		return false, fmt.Errorf("marshal card: %w", err)
	}
	metadata, err := marshalJSONOrNil(payment.Metadata)
	if err != nil {
		return false, fmt.Errorf("marshal metadata: %w", err)
	}
	refund, err := marshalJSONOrNil(payment.Refund)
	if err != nil {
		return false, fmt.Errorf("marshal refund: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO payments (`+paymentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (external_payment_ref) DO NOTHING`,
		payment.ID, payment.PaymentID, payment.OrderID, payment.ExternalPaymentRef,
		payment.Amount, payment.Currency, payment.Method, payment.Status,
		billing, card, metadata, refund, payment.CreatedAt, payment.UpdatedAt,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *paymentRepo) FindByOrderID(ctx context.Context, orderID string) (*domain.Payment, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+paymentColumns+` FROM payments
		WHERE order_id = $1
		ORDER BY created_at DESC
		LIMIT 1`, orderID)

	var (
		p        domain.Payment
		billing  []byte
		card     []byte
		metadata []byte
		refund   []byte
	)
	err := row.Scan(
		&p.ID,
		&p.PaymentID,
		&p.OrderID,
		&p.ExternalPaymentRef,
		&p.Amount,
		&p.Currency,
		&p.Method,
		&p.Status,
		&billing,
		&card,
		&metadata,
		&refund,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil // not found
	}
	if err != nil {
		return nil, err
	}

	if len(billing) > 0 {
		p.Billing = &domain.Billing{}
		if err := json.Unmarshal(billing, p.Billing); err != nil {
			return nil, fmt.Errorf("unmarshal billing: %w", err)
		}
	}
	if len(card) > 0 {
		p.Card = &domain.CardDetails{}
		if err := json.Unmarshal(card, p.Card); err != nil {
			return nil, fmt.Errorf("unmarshal card: %w", err)
		}
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &p.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	if len(refund) > 0 {
		p.Refund = &domain.Refund{}
		if err := json.Unmarshal(refund, p.Refund); err != nil {
			return nil, fmt.Errorf("unmarshal refund: %w", err)
		}
	}
	return &p, nil
}

func marshalJSONOrNil(v any) ([]byte, error) {
	switch x := v.(type) {
	case *domain.Billing:
		if x == nil {
			return nil, nil
		}
	case *domain.CardDetails:
		if x == nil {
			return nil, nil
		}
	case *domain.Refund:
		if x == nil {
			return nil, nil
		}
	case map[string]string:
		if x == nil {
			return nil, nil
		}
	}
	return json.Marshal(v)
}
