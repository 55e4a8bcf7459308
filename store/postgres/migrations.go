package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the rentledger store.
var Migrations = migrate.NewGroup("rentledger")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_rentledger_profiles",
			Version: "20261001000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS rentledger_profiles (
    tenant_id    TEXT PRIMARY KEY,
    monthly_rent BIGINT,
    currency     TEXT NOT NULL DEFAULT 'inr',
    room_number  TEXT NOT NULL DEFAULT '',
    bed_number   TEXT NOT NULL DEFAULT '',
    joining_date TIMESTAMPTZ,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS rentledger_profiles`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_rentledger_payments",
			Version: "20261001000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS rentledger_payments (
    id              TEXT PRIMARY KEY,
    tenant_id       TEXT NOT NULL,
    amount          BIGINT NOT NULL CHECK (amount > 0),
    currency        TEXT NOT NULL DEFAULT 'inr',
    payment_date    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    payment_method  TEXT NOT NULL,
    period_key      TEXT NOT NULL,
    status          TEXT NOT NULL CHECK (status IN ('pending', 'completed', 'failed')),
    transaction_ref TEXT NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_rentledger_payments_txn ON rentledger_payments (transaction_ref);
CREATE INDEX IF NOT EXISTS idx_rentledger_payments_tenant_period ON rentledger_payments (tenant_id, period_key, status);
CREATE INDEX IF NOT EXISTS idx_rentledger_payments_tenant_date ON rentledger_payments (tenant_id, payment_date DESC);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS rentledger_payments`)
				return err
			},
		},
	)
}
