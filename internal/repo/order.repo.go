package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shamtarani05/aeglekart-orders/internal/domain"
)

// OrderFilter narrows List queries. Zero values mean "no filter".
type OrderFilter struct {
	Status string
	Email  string
	Limit  int
	Offset int
}

type OrderRepo interface {
	Create(ctx context.Context, tx *sql.Tx, order *domain.Order) error
	FindByOrderID(ctx context.Context, orderID string) (*domain.Order, error)
	// MarkPaid applies the webhook's authoritative overwrite: status=paid,
	// confirmed total, processor-collected customer and shipping data.
	MarkPaid(ctx context.Context, tx *sql.Tx, orderID string, total decimal.Decimal, cust domain.Customer, addr *domain.Address, now time.Time) error
	// MarkFailedFromPending flips pending -> failed only; a paid order is
	// never clobbered by a late failure event.
	MarkFailedFromPending(ctx context.Context, tx *sql.Tx, orderID string, now time.Time) (bool, error)
	UpdateStatus(ctx context.Context, orderID string, status domain.OrderStatus, now time.Time) (bool, error)
	List(ctx context.Context, filter OrderFilter) ([]domain.Order, error)
	FindStuckPending(ctx context.Context, olderThan time.Duration, limit int) ([]domain.Order, error)
}

type orderRepo struct {
	db *sql.DB
}

func NewOrderRepo(db *sql.DB) OrderRepo {
	return &orderRepo{db: db}
}

const orderColumns = `id, order_id, external_session_id, items, customer, shipping_address,
	discount, subtotal, shipping_fee, tax, total, status, created_at, updated_at`

func (r *orderRepo) Create(ctx context.Context, tx *sql.Tx, order *domain.Order) error {
	items, err := json.Marshal(order.Items)
	if err != nil {
		return fmt.Errorf("marshal items: %w", err)
	}
	customer, err := json.Marshal(order.Customer)
	if err != nil {
		return fmt.Errorf("marshal customer: %w", err)
	}
	addr, err := marshalNullable(order.ShippingAddress)
	if err != nil {
		return fmt.Errorf("marshal shipping address: %w", err)
	}
	discount, err := marshalNullable(order.Discount)
	if err != nil {
		return fmt.Errorf("marshal discount: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		order.ID, order.OrderID, order.ExternalSessionID, items, customer, addr,
		discount, order.Subtotal, order.ShippingFee, order.Tax, nullDecimal(order.Total),
		order.Status, order.CreatedAt, order.UpdatedAt,
	)
	return err
}

func (r *orderRepo) FindByOrderID(ctx context.Context, orderID string) (*domain.Order, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE order_id = $1`, orderID)
	order, err := scanOrder(row)
	if err == sql.ErrNoRows {
		return nil, nil // not found
	}
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (r *orderRepo) MarkPaid(ctx context.Context, tx *sql.Tx, orderID string, total decimal.Decimal, cust domain.Customer, addr *domain.Address, now time.Time) error {
	customer, err := json.Marshal(cust)
	if err != nil {
		return fmt.Errorf("marshal customer: %w", err)
	}
	address, err := marshalNullable(addr)
	if err != nil {
		return fmt.Errorf("marshal shipping address: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE orders
		SET status = $2, total = $3, customer = $4, shipping_address = $5, updated_at = $6
		WHERE order_id = $1`,
		orderID, domain.OrderPaid, total, customer, address, now,
	)
	return err
}

func (r *orderRepo) MarkFailedFromPending(ctx context.Context, tx *sql.Tx, orderID string, now time.Time) (bool, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE orders SET status = $2, updated_at = $3
		WHERE order_id = $1 AND status = $4`,
		orderID, domain.OrderFailed, now, domain.OrderPending,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *orderRepo) UpdateStatus(ctx context.Context, orderID string, status domain.OrderStatus, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE orders SET status = $2, updated_at = $3 WHERE order_id = $1`,
		orderID, status, now,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *orderRepo) List(ctx context.Context, filter OrderFilter) ([]domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE 1=1`
	args := []any{}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.Email != "" {
		args = append(args, filter.Email)
		query += fmt.Sprintf(" AND customer->>'email' = $%d", len(args))
	}
	query += " ORDER BY created_at DESC"
	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	args = append(args, limit)
	query += fmt.Sprintf(" LIMIT $%d", len(args))
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *order)
	}
	return orders, rows.Err()
}

func (r *orderRepo) FindStuckPending(ctx context.Context, olderThan time.Duration, limit int) ([]domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE status = $1 AND updated_at < $2
		ORDER BY updated_at ASC
		LIMIT $3`,
		domain.OrderPending, time.Now().Add(-olderThan), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *order)
	}
	return orders, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var (
		order    domain.Order
		items    []byte
		customer []byte
		addr     []byte
		discount []byte
		total    decimal.NullDecimal
	)
	err := row.Scan(
		&order.ID,
		&order.OrderID,
		&order.ExternalSessionID,
		&items,
		&customer,
		&addr,
		&discount,
		&order.Subtotal,
		&order.ShippingFee,
		&order.Tax,
		&total,
		&order.Status,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(items, &order.Items); err != nil {
		return nil, fmt.Errorf("unmarshal items: %w", err)
	}
	if err := json.Unmarshal(customer, &order.Customer); err != nil {
		return nil, fmt.Errorf("unmarshal customer: %w", err)
	}
	if len(addr) > 0 {
		order.ShippingAddress = &domain.Address{}
		if err := json.Unmarshal(addr, order.ShippingAddress); err != nil {
			return nil, fmt.Errorf("unmarshal shipping address: %w", err)
		}
	}
	if len(discount) > 0 {
		order.Discount = &domain.Discount{}
		if err := json.Unmarshal(discount, order.Discount); err != nil {
			return nil, fmt.Errorf("unmarshal discount: %w", err)
		}
	}
	if total.Valid {
		t := total.Decimal
		order.Total = &t
	}
	return &order, nil
}

func marshalNullable(v any) ([]byte, error) {
	switch x := v.(type) {
	case *domain.Address:
		if x == nil {
			return nil, nil
		}
	case *domain.Discount:
		if x == nil {
			return nil, nil
		}
	}
	return json.Marshal(v)
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}
