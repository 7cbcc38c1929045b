package audit

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresStore persists TunnelRecords to a Postgres table, creating the
// schema on first connect if it doesn't already exist.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore connects to dsn and ensures the tunnels table exists.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("audit: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("audit: ping: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	store := &PostgresStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("audit: init schema: %w", err)
	}
	return store, nil
}

func (s *PostgresStore) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS gateway_tunnels (
		id SERIAL PRIMARY KEY,
		serial VARCHAR(64) NOT NULL,
		realm_id BIGINT NOT NULL,
		opened_at TIMESTAMP NOT NULL,
		closed_at TIMESTAMP NOT NULL,
		bytes_up BIGINT NOT NULL,
		bytes_down BIGINT NOT NULL,
		close_reason VARCHAR(32) NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_gateway_tunnels_serial ON gateway_tunnels(serial);
	CREATE INDEX IF NOT EXISTS idx_gateway_tunnels_opened_at ON gateway_tunnels(opened_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// RecordTunnel inserts rec as a new row.
func (s *PostgresStore) RecordTunnel(rec TunnelRecord) error {
	const stmt = `
	INSERT INTO gateway_tunnels
		(serial, realm_id, opened_at, closed_at, bytes_up, bytes_down, close_reason)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.db.Exec(stmt,
		rec.Serial, rec.RealmID, rec.OpenedAt, rec.ClosedAt,
		rec.BytesUp, rec.BytesDown, rec.CloseReason)
	if err != nil {
		return fmt.Errorf("audit: insert tunnel record: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error { return s.db.Close() }
