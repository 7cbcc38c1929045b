package ptcp

import (
	"bytes"
	"fmt"
	"net"

	"github.com/p2pcam/camgate/internal/logging"
)

// Link is a PTCP session bound to a single punched UDP flow. It owns the
// send/receive counter discipline described in spec §4.5; it does not own
// the underlying socket's lifecycle beyond Close.
//
// Link is not safe for concurrent use: the orchestrator and proxy loop are
// the single owners of any one Link, per the cooperative single-threaded
// model this protocol was designed around.
type Link struct {
	conn   *net.UDPConn
	remote *net.UDPAddr
	log    *logging.Logger

	sent  uint64 // ptcp_sent: running total of sent body bytes
	recv  uint64 // ptcp_recv: running total of received body bytes
	count uint32 // ptcp_count: real (non-ack, non-hello) sends
	id    uint32 // ptcp_id: next lmid to send
	rmid  uint32 // last observed peer lmid
}

// NewLink wraps an already-bound UDP socket and a fixed remote address as
// a PTCP link. The socket may already have been used for the hole-punch
// exchange; NewLink does not touch it beyond future Send/Receive calls.
func NewLink(conn *net.UDPConn, remote *net.UDPAddr, log *logging.Logger) *Link {
	return &Link{conn: conn, remote: remote, log: log}
}

// Counters is a read-only snapshot of a Link's PTCP accounting state, for
// diagnostics.
type Counters struct {
	Sent  uint64
	Recv  uint64
	Count uint32
	ID    uint32
	RMID  uint32
}

// Counters returns a snapshot of the link's current send/receive state.
func (l *Link) Counters() Counters {
	return Counters{Sent: l.sent, Recv: l.recv, Count: l.count, ID: l.id, RMID: l.rmid}
}

// Send emits body as a PTCP frame per the send discipline in spec §4.5:
// rlid/llid carry the running recv/sent totals, pid selects the hello
// opener, a data sequence number, or a pure ack depending on body, and
// lmid/rmid carry this link's message ids.
func (l *Link) Send(body []byte) error {
	isHello := bytes.Equal(body, Hello)

	pid := pidDataBase - l.count
	if isHello {
		pid = PIDHello
	}

	f := &Frame{
		RLID: uint32(l.recv),
		LLID: uint32(l.sent),
		PID:  pid,
		LMID: l.id,
		RMID: l.rmid,
		Body: body,
	}

	data := f.Encode()

	if l.log != nil {
		l.log.Debug("ptcp send", logging.Fields{"lmid": f.LMID, "pid": fmt.Sprintf("0x%08x", f.PID), "body_len": len(body)})
	}

	if _, err := l.conn.WriteToUDP(data, l.remote); err != nil {
		return fmt.Errorf("ptcp: send to %s: %w", l.remote, err)
	}

	l.sent += uint64(len(body))
	l.id++
	if len(body) > 0 && !isHello {
		l.count++
	}

	return nil
}

// Ack sends a pure, empty-body acknowledgement frame.
func (l *Link) Ack() error {
	return l.Send(nil)
}

// maxDatagram is large enough for any realistic PTCP datagram; the
// underlying UDP MTU bounds the real maximum far below this.
const maxDatagram = 65536

// Receive reads one datagram from the link, decodes it as a PTCP frame,
// and updates the receive-side accounting (ptcp_recv, rmid) per spec
// §4.5 "Receive discipline".
func (l *Link) Receive() (*Frame, error) {
	buf := make([]byte, maxDatagram)
	n, _, err := l.conn.ReadFromUDP(buf)
	if err != nil {
		return nil, fmt.Errorf("ptcp: receive: %w", err)
	}

	f, err := DecodeFrame(buf[:n])
	if err != nil {
		return nil, err
	}

	l.recv += uint64(len(f.Body))
	l.rmid = f.LMID

	if l.log != nil {
		l.log.Debug("ptcp recv", logging.Fields{"lmid": f.LMID, "pid": fmt.Sprintf("0x%08x", f.PID), "body_len": len(f.Body)})
	}

	return f, nil
}

// Conn exposes the underlying socket, for callers (the hole-punch engine,
// the proxy loop's readiness polling) that need it directly.
func (l *Link) Conn() *net.UDPConn { return l.conn }

// Close releases the underlying socket.
func (l *Link) Close() error { return l.conn.Close() }
