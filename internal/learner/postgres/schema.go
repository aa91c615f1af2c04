// Package postgres provides a PostgreSQL-backed [learner.Store].
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn)
//	if err != nil { … }
//	defer store.Close()
//
//	profile, err := store.Profile(ctx, "user-42")
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlProfiles = `
CREATE TABLE IF NOT EXISTS learner_profiles (
    user_id        TEXT         PRIMARY KEY,
    level          TEXT         NOT NULL,
    common_errors  TEXT[]       NOT NULL DEFAULT '{}',
    total_sessions INTEGER      NOT NULL DEFAULT 0,
    updated_at     TIMESTAMPTZ  NOT NULL DEFAULT now()
);
`

const ddlUsage = `
CREATE TABLE IF NOT EXISTS tutor_usage (
    id                 BIGSERIAL         PRIMARY KEY,
    session_id         TEXT              NOT NULL,
    user_id            TEXT              NOT NULL DEFAULT '',
    modality           TEXT              NOT NULL,
    model_id           TEXT              NOT NULL DEFAULT '',
    used_stt           BOOLEAN           NOT NULL DEFAULT false,
    used_pronunciation BOOLEAN           NOT NULL DEFAULT false,
    used_tts           BOOLEAN           NOT NULL DEFAULT false,
    confidence         DOUBLE PRECISION  NOT NULL,
    latency_ms         BIGINT            NOT NULL DEFAULT 0,
    grammar_errors     INTEGER           NOT NULL DEFAULT 0,
    explained          BOOLEAN           NOT NULL DEFAULT false,
    created_at         TIMESTAMPTZ       NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_tutor_usage_session_id
    ON tutor_usage (session_id);

CREATE INDEX IF NOT EXISTS idx_tutor_usage_user_created
    ON tutor_usage (user_id, created_at);
`

// Migrate creates the learner tables if they do not exist. It is idempotent
// and safe to call on every start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range []string{ddlProfiles, ddlUsage} {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres migrate: %w", err)
		}
	}
	return nil
}
