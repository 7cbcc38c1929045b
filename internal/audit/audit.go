// Package audit implements an optional persistence layer recording each
// tunnel's lifecycle and byte counters, for fleets that want a durable
// history beyond the structured logs.
package audit

import "time"

// TunnelRecord describes one completed PTCP tunnel opened by the proxy
// loop against a single camera serial: one row per open/close cycle, not
// per process run.
type TunnelRecord struct {
	Serial      string
	RealmID     uint32
	OpenedAt    time.Time
	ClosedAt    time.Time
	BytesUp     uint64
	BytesDown   uint64
	CloseReason string // "client_closed", "shutdown", "error"
}

// Store is implemented by NoopStore and PostgresStore.
type Store interface {
	RecordTunnel(rec TunnelRecord) error
	Close() error
}
