package db

import (
	"context"

	"github.com/rotisserie/eris"
)

// migration is idempotent so workers can race to apply it at startup.
//
// The UNIQUE constraint on integrations (operator_id, point_id, day) is the
// engine's only conflict-control primitive: first insert wins, later claims
// for the same triple are no-ops.
const migration = `
CREATE TABLE IF NOT EXISTS dossiers (
	id              TEXT PRIMARY KEY,
	tenant          TEXT NOT NULL,
	status          TEXT NOT NULL,
	declarant_email TEXT NOT NULL,
	consolidated_at TIMESTAMPTZ,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS attachments (
	id                TEXT PRIMARY KEY,
	dossier_id        TEXT NOT NULL REFERENCES dossiers(id) ON DELETE CASCADE,
	validation_status TEXT NOT NULL,
	storage_path      TEXT NOT NULL DEFAULT '',
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_attachments_dossier ON attachments(dossier_id);

CREATE TABLE IF NOT EXISTS series (
	id                 TEXT PRIMARY KEY,
	dossier_id         TEXT NOT NULL,
	attachment_id      TEXT NOT NULL REFERENCES attachments(id) ON DELETE CASCADE,
	tenant             TEXT NOT NULL,
	point_id           TEXT NOT NULL,
	parameter          TEXT NOT NULL,
	unit               TEXT NOT NULL DEFAULT '',
	frequency          TEXT NOT NULL DEFAULT '1 day',
	original_frequency TEXT,
	value_type         TEXT NOT NULL,
	min_date           DATE NOT NULL,
	max_date           DATE NOT NULL,
	content_hash       TEXT NOT NULL,
	computed           JSONB NOT NULL DEFAULT '{}',
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_series_attachment ON series(attachment_id);
CREATE INDEX IF NOT EXISTS idx_series_tenant_point ON series(tenant, point_id);

CREATE TABLE IF NOT EXISTS series_values (
	series_id        TEXT NOT NULL REFERENCES series(id) ON DELETE CASCADE,
	day              DATE NOT NULL,
	value            DOUBLE PRECISION,
	remark           TEXT NOT NULL DEFAULT '',
	original_value   DOUBLE PRECISION,
	original_date    DATE,
	original_frequency TEXT,
	days_covered     INT,
	daily_aggregates JSONB,
	sub_daily        JSONB,
	PRIMARY KEY (series_id, day)
);

CREATE TABLE IF NOT EXISTS integrations (
	operator_id   TEXT NOT NULL,
	point_id      TEXT NOT NULL,
	day           DATE NOT NULL,
	dossier_id    TEXT NOT NULL,
	attachment_id TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	CONSTRAINT integrations_owner_key UNIQUE (operator_id, point_id, day)
);
CREATE INDEX IF NOT EXISTS idx_integrations_attachment ON integrations(attachment_id);
`

// Migrate applies the schema. Safe to run concurrently and repeatedly.
func Migrate(ctx context.Context, pool Pool) error {
	if _, err := pool.Exec(ctx, migration); err != nil {
		return eris.Wrap(err, "db: migrate")
	}
	return nil
}
