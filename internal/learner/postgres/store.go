package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/lingoxa/internal/learner"
	"github.com/MrWong99/lingoxa/pkg/types"
)

var _ learner.Store = (*Store)(nil)

// Store reads learner profiles from learner_profiles and appends to the
// tutor_usage ledger. All methods are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to the database at dsn and runs [Migrate].
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("learner store: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("learner store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("learner store: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("learner store: migrate: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Profile implements [learner.ProfileSource].
func (s *Store) Profile(ctx context.Context, userID string) (*types.LearnerProfile, error) {
	const q = `
		SELECT user_id, level, common_errors, total_sessions
		FROM   learner_profiles
		WHERE  user_id = $1`

	var (
		p     types.LearnerProfile
		level string
	)
	err := s.pool.QueryRow(ctx, q, userID).Scan(&p.UserID, &level, &p.CommonErrors, &p.TotalSessions)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %q", learner.ErrNotFound, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("learner store: get profile: %w", err)
	}
	if p.Level, err = types.ParseLevel(level); err != nil {
		return nil, fmt.Errorf("learner store: profile %q: %w", userID, err)
	}
	return &p, nil
}

// PutProfile inserts or replaces a profile. The tutor never calls it; it
// exists for seeding and administration.
func (s *Store) PutProfile(ctx context.Context, p types.LearnerProfile) error {
	if p.UserID == "" {
		return fmt.Errorf("learner store: user id must not be empty")
	}
	const q = `
		INSERT INTO learner_profiles (user_id, level, common_errors, total_sessions, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (user_id) DO UPDATE SET
		    level          = EXCLUDED.level,
		    common_errors  = EXCLUDED.common_errors,
		    total_sessions = EXCLUDED.total_sessions,
		    updated_at     = now()`

	errs := p.CommonErrors
	if errs == nil {
		errs = []string{}
	}
	if _, err := s.pool.Exec(ctx, q, p.UserID, p.Level.String(), errs, p.TotalSessions); err != nil {
		return fmt.Errorf("learner store: put profile: %w", err)
	}
	return nil
}

// RecordUsage implements [learner.UsageRecorder].
func (s *Store) RecordUsage(ctx context.Context, rec learner.UsageRecord) error {
	const q = `
		INSERT INTO tutor_usage
		    (session_id, user_id, modality, model_id, used_stt, used_pronunciation, used_tts,
		     confidence, latency_ms, grammar_errors, explained, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := s.pool.Exec(ctx, q,
		rec.SessionID,
		rec.UserID,
		rec.Modality,
		rec.Usage.ModelID,
		rec.Usage.UsedSTT,
		rec.Usage.UsedPronunciation,
		rec.Usage.UsedTTS,
		rec.Confidence,
		rec.LatencyMs,
		rec.GrammarErrors,
		rec.Explained,
		rec.At,
	)
	if err != nil {
		return fmt.Errorf("learner store: record usage: %w", err)
	}
	return nil
}

// SessionUsage returns the ledger entries of one session, oldest first.
func (s *Store) SessionUsage(ctx context.Context, sessionID string) ([]learner.UsageRecord, error) {
	const q = `
		SELECT session_id, user_id, modality, model_id, used_stt, used_pronunciation, used_tts,
		       confidence, latency_ms, grammar_errors, explained, created_at
		FROM   tutor_usage
		WHERE  session_id = $1
		ORDER  BY id`

	rows, err := s.pool.Query(ctx, q, sessionID)
	if err != nil {
		return nil, fmt.Errorf("learner store: session usage: %w", err)
	}
	recs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (learner.UsageRecord, error) {
		var r learner.UsageRecord
		err := row.Scan(
			&r.SessionID,
			&r.UserID,
			&r.Modality,
			&r.Usage.ModelID,
			&r.Usage.UsedSTT,
			&r.Usage.UsedPronunciation,
			&r.Usage.UsedTTS,
			&r.Confidence,
			&r.LatencyMs,
			&r.GrammarErrors,
			&r.Explained,
			&r.At,
		)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("learner store: scan usage: %w", err)
	}
	return recs, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}
