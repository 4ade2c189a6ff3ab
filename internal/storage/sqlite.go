package storage

import (
	"context"
	"database/sql"
	"strings"

	_ "modernc.org/sqlite"

	"coolgate/internal/model"
)

type sqliteStore struct {
	baseStore
}

func NewSQLite(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "file:coolgate.db?_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	return &sqliteStore{baseStore{db: db}}, nil
}

func (s *sqliteStore) Init(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS gate_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts TEXT NOT NULL,
			event_type TEXT NOT NULL,
			identity TEXT NOT NULL,
			caller TEXT,
			interval_sec INTEGER NOT NULL,
			expiry INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_gate_events_ts ON gate_events(ts)`,
		`CREATE INDEX IF NOT EXISTS idx_gate_events_identity ON gate_events(identity)`,
		`CREATE TABLE IF NOT EXISTS expiries (
			identity TEXT PRIMARY KEY,
			expiry INTEGER NOT NULL,
			updated_at TEXT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *sqliteStore) SaveEvent(ctx context.Context, ev model.GateEvent) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO gate_events (ts, event_type, identity, caller, interval_sec, expiry)
		VALUES (?, ?, ?, ?, ?, ?)`,
		ev.Timestamp.UTC(),
		string(ev.Type),
		ev.Identity,
		ev.Caller,
		ev.IntervalSec,
		ev.Expiry,
	)
	return err
}

func (s *sqliteStore) SaveExpiry(ctx context.Context, identity string, expiry uint64) error {
	if s.db == nil || identity == "" {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO expiries (identity, expiry, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(identity) DO UPDATE SET expiry = excluded.expiry, updated_at = excluded.updated_at`,
		identity,
		expiry,
		nowUTC(),
	)
	return err
}
