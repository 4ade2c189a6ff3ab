package storage

import (
	"context"
	"database/sql"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"

	"coolgate/internal/model"
)

type postgresStore struct {
	baseStore
}

func NewPostgres(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "postgres://localhost:5432/coolgate?sslmode=disable"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &postgresStore{baseStore{db: db}}, nil
}

func (s *postgresStore) Init(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS gate_events (
			id BIGSERIAL PRIMARY KEY,
			ts TIMESTAMPTZ NOT NULL,
			event_type TEXT NOT NULL,
			identity TEXT NOT NULL,
			caller TEXT,
			interval_sec INTEGER NOT NULL,
			expiry BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_gate_events_ts ON gate_events(ts)`,
		`CREATE INDEX IF NOT EXISTS idx_gate_events_identity ON gate_events(identity)`,
		`CREATE TABLE IF NOT EXISTS expiries (
			identity TEXT PRIMARY KEY,
			expiry BIGINT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *postgresStore) SaveEvent(ctx context.Context, ev model.GateEvent) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO gate_events (ts, event_type, identity, caller, interval_sec, expiry)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		ev.Timestamp.UTC(),
		string(ev.Type),
		ev.Identity,
		ev.Caller,
		ev.IntervalSec,
		int64(ev.Expiry),
	)
	return err
}

func (s *postgresStore) SaveExpiry(ctx context.Context, identity string, expiry uint64) error {
	if s.db == nil || identity == "" {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO expiries (identity, expiry, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT (identity) DO UPDATE SET expiry = EXCLUDED.expiry, updated_at = EXCLUDED.updated_at`,
		identity,
		int64(expiry),
		nowUTC(),
	)
	return err
}
