package audit

// NoopStore discards every record. It is the default Store when no audit
// DSN is configured, so the proxy loop never has to special-case a nil
// Store at the call site.
type NoopStore struct{}

func (NoopStore) RecordTunnel(TunnelRecord) error { return nil }
func (NoopStore) Close() error                    { return nil }
