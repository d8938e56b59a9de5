package database

import (
	"context"
	"database/sql"
)

// Schema is the DDL for the order/payment store. The unique constraints on
// order_id, external_session_id and external_payment_ref are load-bearing:
// duplicate session creation must error and replayed webhook deliveries must
// converge on a single payment row.
const Schema = `
CREATE TABLE IF NOT EXISTS orders (
	id UUID PRIMARY KEY,
	order_id TEXT NOT NULL UNIQUE,
	external_session_id TEXT NOT NULL UNIQUE,
	items JSONB NOT NULL,
	customer JSONB NOT NULL,
	shipping_address JSONB,
	discount JSONB,
	subtotal NUMERIC(12,2) NOT NULL,
	shipping_fee NUMERIC(12,2) NOT NULL DEFAULT 0,
	tax NUMERIC(12,2) NOT NULL DEFAULT 0,
	total NUMERIC(12,2),
	status TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_orders_status ON orders (status);
CREATE INDEX IF NOT EXISTS idx_orders_customer_email ON orders ((customer->>'email'));
CREATE INDEX IF NOT EXISTS idx_orders_created_at ON orders (created_at DESC);

CREATE TABLE IF NOT EXISTS payments (
	id UUID PRIMARY KEY,
	payment_id TEXT NOT NULL UNIQUE,
	order_id TEXT NOT NULL,
	external_payment_ref TEXT NOT NULL UNIQUE,
	amount NUMERIC(12,2) NOT NULL,
	currency TEXT NOT NULL,
	method TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	billing JSONB,
	card JSONB,
	metadata JSONB,
	refund JSONB,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_payments_order_id ON payments (order_id);
`

// Migrate applies the schema. Statements are idempotent.
func Migrate(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, Schema)
	return err
}
