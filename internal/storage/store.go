package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store wraps the SQLite cycle journal. It is an audit trail only: nothing
// read from it influences evaluation.
type Store struct {
	db *sql.DB
}

// Open initializes a SQLite database and runs minimal schema setup.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := configure(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("store not initialized")
	}
	return s.db.PingContext(ctx)
}

func configure(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	pragmas := []string{
		"PRAGMA foreign_keys = ON;",
		"PRAGMA journal_mode = WAL;",
		"PRAGMA busy_timeout = 5000;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("set pragma %q: %w", p, err)
		}
	}
	return nil
}

func migrate(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	schema := `
CREATE TABLE IF NOT EXISTS cycles (
  id              TEXT PRIMARY KEY,
  started_at      TIMESTAMP NOT NULL,
  status          TEXT NOT NULL,
  contract        TEXT,
  collection_name TEXT,
  sample_count    INTEGER NOT NULL DEFAULT 0,
  price           TEXT,
  method          TEXT,
  gate            TEXT,
  reason          TEXT,
  detail          TEXT,
  txhash          TEXT,
  block_number    INTEGER NOT NULL DEFAULT 0,
  error           TEXT
);

CREATE INDEX IF NOT EXISTS cycles_started_at ON cycles(started_at);

CREATE TABLE IF NOT EXISTS sends (
  cycle_id      TEXT NOT NULL REFERENCES cycles(id),
  sink_id       TEXT NOT NULL,
  status        TEXT NOT NULL,
  error         TEXT,
  created_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
  PRIMARY KEY(cycle_id, sink_id)
);
`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// CycleRecord is one journaled evaluation cycle.
type CycleRecord struct {
	ID             string
	StartedAt      time.Time
	Status         string
	Contract       string
	CollectionName string
	SampleCount    int
	Price          string
	Method         string
	Gate           string
	Reason         string
	Detail         string
	TxHash         string
	BlockNumber    uint64
	Error          string
}

// RecordCycle stores a cycle; the primary key enforces exactly-once insertion.
func (s *Store) RecordCycle(ctx context.Context, c CycleRecord) error {
	if c.ID == "" || c.Status == "" {
		return errors.New("cycle id and status required")
	}
	started := c.StartedAt
	if started.IsZero() {
		started = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO cycles (id, started_at, status, contract, collection_name, sample_count, price, method, gate, reason, detail, txhash, block_number, error)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`, c.ID, started.UTC(), c.Status, c.Contract, c.CollectionName, c.SampleCount, c.Price, c.Method,
		c.Gate, c.Reason, c.Detail, c.TxHash, c.BlockNumber, c.Error)
	if err != nil {
		return fmt.Errorf("insert cycle: %w", err)
	}
	return nil
}

// RecentCycles returns up to limit cycles, newest first.
func (s *Store) RecentCycles(ctx context.Context, limit int) ([]CycleRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, started_at, status, COALESCE(contract, ''), COALESCE(collection_name, ''), sample_count,
       COALESCE(price, ''), COALESCE(method, ''), COALESCE(gate, ''), COALESCE(reason, ''),
       COALESCE(detail, ''), COALESCE(txhash, ''), block_number, COALESCE(error, '')
FROM cycles ORDER BY started_at DESC, rowid DESC LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("query cycles: %w", err)
	}
	defer rows.Close()

	var out []CycleRecord
	for rows.Next() {
		var c CycleRecord
		if err := rows.Scan(&c.ID, &c.StartedAt, &c.Status, &c.Contract, &c.CollectionName, &c.SampleCount,
			&c.Price, &c.Method, &c.Gate, &c.Reason, &c.Detail, &c.TxHash, &c.BlockNumber, &c.Error); err != nil {
			return nil, fmt.Errorf("scan cycle: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cycles: %w", err)
	}
	return out, nil
}

// Send represents a sink delivery record.
type Send struct {
	CycleID   string
	SinkID    string
	Status    string
	Error     string
	CreatedAt time.Time
}

// InsertSend records a sink delivery attempt; primary key enforces exactly-once per cycle/sink.
func (s *Store) InsertSend(ctx context.Context, srec Send) error {
	if srec.CycleID == "" || srec.SinkID == "" || srec.Status == "" {
		return errors.New("cycle_id, sink_id, and status are required")
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO sends (cycle_id, sink_id, status, error, created_at)
VALUES (?, ?, ?, ?, COALESCE(?, CURRENT_TIMESTAMP));
`, srec.CycleID, srec.SinkID, srec.Status, srec.Error, nullTime(srec.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert send: %w", err)
	}
	return nil
}

// SendsForCycle lists the delivery attempts of a cycle.
func (s *Store) SendsForCycle(ctx context.Context, cycleID string) ([]Send, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT cycle_id, sink_id, status, COALESCE(error, ''), created_at FROM sends WHERE cycle_id = ? ORDER BY sink_id;
`, cycleID)
	if err != nil {
		return nil, fmt.Errorf("query sends: %w", err)
	}
	defer rows.Close()

	var out []Send
	for rows.Next() {
		var sr Send
		if err := rows.Scan(&sr.CycleID, &sr.SinkID, &sr.Status, &sr.Error, &sr.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan send: %w", err)
		}
		out = append(out, sr)
	}
	return out, rows.Err()
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}
