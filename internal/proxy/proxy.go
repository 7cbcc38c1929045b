// Package proxy implements the event loop that multiplexes the accepting
// TCP listener, the PTCP-over-UDP device link, and the single active TCP
// client socket, per spec §4.6 "S13 proxy loop" and §5.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/p2pcam/camgate/internal/audit"
	"github.com/p2pcam/camgate/internal/logging"
	"github.com/p2pcam/camgate/internal/ptcp"
	"github.com/p2pcam/camgate/internal/tunnel"
)

// uplinkRateLimit caps the traffic forwarded toward the device, protecting
// its narrow cellular/DSL uplink from a local client that reads faster than
// the camera's own connection can drain. 2MiB/s with a one-frame burst.
const uplinkRateLimit = 2 << 20

// idlePoll is the listener accept-poll cadence when nothing is ready,
// matching the reference implementation's 100ms select() timeout.
const idlePoll = 100 * time.Millisecond

// clientReadBuffer is the size of each read from the local TCP client,
// matching the reference's recv(4096).
const clientReadBuffer = 4096

// Stats are atomic counters exposed to the diagnostics server.
type Stats struct {
	TunnelsOpened   atomic.Uint64
	TunnelsClosed   atomic.Uint64
	BytesToDevice   atomic.Uint64
	BytesFromDevice atomic.Uint64
	Keepalives      atomic.Uint64
}

// Loop owns the single active tunnel's lifecycle across repeated TCP
// accepts. It is not safe for concurrent use: per spec §5, the PTCP
// counters and tunnel state are mutated only by this one owning loop.
type Loop struct {
	listener net.Listener
	link     *ptcp.Link
	log      *logging.Logger
	stats    Stats
	limiter  *rate.Limiter
	audit    audit.Store
	serial   string
}

// New wraps an already-bound TCP listener and an already-handshaked PTCP
// link into a proxy event loop. serial tags every audit row written to
// store; store may be audit.NoopStore{} when no audit DSN is configured.
func New(listener net.Listener, link *ptcp.Link, log *logging.Logger, serial string, store audit.Store) *Loop {
	if store == nil {
		store = audit.NoopStore{}
	}
	return &Loop{
		listener: listener,
		link:     link,
		log:      log,
		limiter:  rate.NewLimiter(rate.Limit(uplinkRateLimit), clientReadBuffer),
		audit:    store,
		serial:   serial,
	}
}

// Stats returns the loop's live statistics snapshot holder.
func (l *Loop) Stats() *Stats { return &l.stats }

// Run drives the accept/pump cycle until the listener or link is closed
// or stop is observed closed between polls. Exactly one tunnel is
// active at a time, matching spec §1's single-active-tunnel non-goal.
func (l *Loop) Run(stop <-chan struct{}) error {
	for {
		select {
		case <-stop:
			return nil
		default:
		}

		conn, err := l.acceptWithPoll()
		if err != nil {
			if errors.Is(err, errNoConnection) {
				if err := l.pollKeepalive(); err != nil {
					return err
				}
				continue
			}
			return err
		}

		if l.log != nil {
			l.log.Info("accepted local client", logging.Fields{"remote": conn.RemoteAddr().String()})
		}

		if err := l.serveTunnel(conn, stop); err != nil {
			if l.log != nil {
				l.log.Warn("tunnel ended with error", logging.Fields{"error": err.Error()})
			}
		}
		conn.Close()
	}
}

var errNoConnection = errors.New("proxy: no connection ready within poll interval")

// acceptWithPoll waits up to idlePoll for a new TCP client. It returns
// errNoConnection, not an error, when the interval elapses with nothing
// to accept — the caller uses that to fall through to PTCP servicing.
func (l *Loop) acceptWithPoll() (net.Conn, error) {
	type deadliner interface {
		SetDeadline(time.Time) error
	}
	if dl, ok := l.listener.(deadliner); ok {
		if err := dl.SetDeadline(time.Now().Add(idlePoll)); err != nil {
			return nil, fmt.Errorf("proxy: set accept deadline: %w", err)
		}
	}

	conn, err := l.listener.Accept()
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil, errNoConnection
		}
		return nil, fmt.Errorf("proxy: accept: %w", err)
	}
	return conn, nil
}

// pollKeepalive services the PTCP link while no local client is
// connected: empty bodies are ignored, 0x13 keepalives get an empty ack,
// anything else is a nuisance ack per spec §4.5 "Failure semantics".
func (l *Loop) pollKeepalive() error {
	if err := l.link.Conn().SetReadDeadline(time.Now()); err != nil {
		return fmt.Errorf("proxy: set link poll deadline: %w", err)
	}

	frame, err := l.link.Receive()
	if err != nil {
		if isTimeout(err) {
			return nil
		}
		return err
	}

	if len(frame.Body) == 0 {
		return nil
	}
	if frame.Body[0] == ptcp.BodyKeepalive {
		l.stats.Keepalives.Add(1)
		return l.link.Ack()
	}
	return nil
}

// serveTunnel opens a realm against the device, then shuttles bytes
// between conn and the PTCP link until either side closes, tearing the
// tunnel down with the DISC sequence on the way out.
func (l *Loop) serveTunnel(conn net.Conn, stop <-chan struct{}) error {
	realmID := rand.Uint32()
	t := tunnel.New(realmID)

	if err := l.link.Send(tunnel.OpenBody(realmID)); err != nil {
		return fmt.Errorf("proxy: send open-tunnel: %w", err)
	}
	reply, err := l.awaitNonEmpty()
	if err != nil {
		return fmt.Errorf("proxy: await open-tunnel reply: %w", err)
	}
	if len(reply.Body) == 0 || reply.Body[0] != ptcp.BodyTunnelReply {
		return fmt.Errorf("proxy: expected open-tunnel reply (0x12), got %x", reply.Body)
	}
	t.State = tunnel.StateOpen
	t.OpenedAt = time.Now()
	l.stats.TunnelsOpened.Add(1)

	reason := "error"
	defer func() { l.closeTunnel(t, reason) }()

	for {
		select {
		case <-stop:
			reason = "shutdown"
			return nil
		default:
		}

		if err := l.link.Conn().SetReadDeadline(time.Now().Add(idlePoll)); err != nil {
			return fmt.Errorf("proxy: set link deadline: %w", err)
		}
		frame, err := l.link.Receive()
		switch {
		case err == nil:
			if err := l.handleLinkFrame(frame, conn, t); err != nil {
				return err
			}
			continue
		case isTimeout(err):
		default:
			return fmt.Errorf("proxy: link read: %w", err)
		}

		if err := conn.SetReadDeadline(time.Now()); err != nil {
			return fmt.Errorf("proxy: set client deadline: %w", err)
		}
		buf := make([]byte, clientReadBuffer)
		n, err := conn.Read(buf)
		if err != nil {
			if isTimeout(err) {
				continue
			}
			reason = "client_closed"
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return nil // peer reset / EOF: clean teardown, loop continues
		}
		if n == 0 {
			reason = "client_closed"
			return nil
		}

		if err := l.limiter.WaitN(context.Background(), n); err != nil {
			return fmt.Errorf("proxy: uplink rate limiter: %w", err)
		}

		payload := &ptcp.Payload{Realm: realmID, Payload: buf[:n]}
		if err := l.link.Send(payload.Encode()); err != nil {
			return fmt.Errorf("proxy: send payload: %w", err)
		}
		l.stats.BytesToDevice.Add(uint64(n))
		t.BytesUp += uint64(n)
	}
}

// handleLinkFrame processes one frame received while a tunnel is active:
// payload frames are written to the local client and acked, keepalives
// are acked, everything else is a nuisance ack.
func (l *Loop) handleLinkFrame(frame *ptcp.Frame, conn net.Conn, t *tunnel.Tunnel) error {
	if len(frame.Body) == 0 {
		return nil
	}
	if err := l.link.Ack(); err != nil {
		return err
	}

	switch frame.Body[0] {
	case ptcp.BodyPayload:
		payload, err := ptcp.DecodePayload(frame.Body)
		if err != nil {
			return fmt.Errorf("proxy: decode payload: %w", err)
		}
		if _, err := conn.Write(payload.Payload); err != nil {
			return nil // local client gone: fall out to teardown on next accept
		}
		l.stats.BytesFromDevice.Add(uint64(len(payload.Payload)))
		t.BytesDown += uint64(len(payload.Payload))
	case ptcp.BodyKeepalive:
		l.stats.Keepalives.Add(1)
	}
	return nil
}

// awaitNonEmpty reads frames until one carries a non-empty body,
// matching the `while len(res.body) == 0` pattern used throughout the
// handshake and tunnel-open sequences.
func (l *Loop) awaitNonEmpty() (*ptcp.Frame, error) {
	for {
		frame, err := l.link.Receive()
		if err != nil {
			return nil, err
		}
		if len(frame.Body) > 0 {
			return frame, nil
		}
	}
}

// closeTunnel sends the 0x12/DISC teardown and drains replies until the
// device's own close ack arrives, matching the reference's finally block,
// then records one audit row for the tunnel's full lifecycle.
func (l *Loop) closeTunnel(t *tunnel.Tunnel, reason string) {
	t.State = tunnel.StateClosing
	if err := l.link.Send(tunnel.CloseBody(t.RealmID)); err != nil {
		if l.log != nil {
			l.log.Warn("close-tunnel send failed", logging.Fields{"error": err.Error()})
		}
		l.recordTunnel(t, reason)
		return
	}

	for {
		frame, err := l.link.Receive()
		if err != nil {
			if l.log != nil {
				l.log.Warn("close-tunnel drain failed", logging.Fields{"error": err.Error()})
			}
			l.recordTunnel(t, reason)
			return
		}
		if len(frame.Body) == 0 || frame.Body[0] == ptcp.BodyPayload {
			if len(frame.Body) > 0 {
				l.link.Ack()
			}
			continue
		}
		if frame.Body[0] == ptcp.BodyTunnelReply {
			l.link.Ack()
			break
		}
	}

	t.State = tunnel.StateClosed
	l.stats.TunnelsClosed.Add(1)
	l.recordTunnel(t, reason)
}

// recordTunnel writes one audit.TunnelRecord for t's completed lifecycle.
// Failures are logged, not propagated: a broken audit sink must never
// affect the proxy loop's own teardown.
func (l *Loop) recordTunnel(t *tunnel.Tunnel, reason string) {
	err := l.audit.RecordTunnel(audit.TunnelRecord{
		Serial:      l.serial,
		RealmID:     t.RealmID,
		OpenedAt:    t.OpenedAt,
		ClosedAt:    time.Now(),
		BytesUp:     t.BytesUp,
		BytesDown:   t.BytesDown,
		CloseReason: reason,
	})
	if err != nil && l.log != nil {
		l.log.Warn("audit record failed", logging.Fields{"error": err.Error(), "realm_id": t.RealmID})
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
