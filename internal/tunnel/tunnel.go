// Package tunnel implements the realm open/close sub-protocol that rides
// on top of a PTCP link, correlating a forwarded TCP stream with a
// PTCPPayload realm id. See spec §4.5 "Application sub-protocol".
package tunnel

import (
	"encoding/binary"
	"time"

	"github.com/p2pcam/camgate/internal/ptcp"
)

// State is a Tunnel's lifecycle state. See spec §3 "Tunnel".
type State int

const (
	StateOpening State = iota
	StateOpen
	StateClosing
	StateClosed
)

// loopbackRTSPPort and loopbackAddr are the fixed forwarding target used
// by the reference client for every open-tunnel request: the device's
// own RTSP port on its loopback interface.
const loopbackRTSPPort = 0x0000022A

var loopbackAddr = [4]byte{0x7F, 0x00, 0x00, 0x01}

// OpenBody builds the body of an 0x11 open-tunnel PTCP frame for realmID.
func OpenBody(realmID uint32) []byte {
	body := make([]byte, 0, 20)
	body = append(body, ptcp.BodyOpenTunnel, 0x00, 0x00, 0x00)
	realm := make([]byte, 4)
	binary.BigEndian.PutUint32(realm, realmID)
	body = append(body, realm...)
	body = append(body, 0x00, 0x00, 0x00, 0x00)
	port := make([]byte, 4)
	binary.BigEndian.PutUint32(port, loopbackRTSPPort)
	body = append(body, port...)
	body = append(body, loopbackAddr[:]...)
	return body
}

// CloseBody builds the body of an 0x12 tunnel-close PTCP frame for
// realmID, carrying the trailing "DISC" marker.
func CloseBody(realmID uint32) []byte {
	body := make([]byte, 0, 16)
	body = append(body, ptcp.BodyTunnelReply, 0x00, 0x00, 0x00)
	realm := make([]byte, 4)
	binary.BigEndian.PutUint32(realm, realmID)
	body = append(body, realm...)
	body = append(body, 0x00, 0x00, 0x00, 0x00)
	body = append(body, 'D', 'I', 'S', 'C')
	return body
}

// Tunnel is a forwarded TCP connection correlated with a PTCPPayload
// realm. At most one is active per PTCP session in this design. OpenedAt
// and the byte counters exist so the proxy loop can hand a complete
// lifecycle record to internal/audit when the tunnel closes.
type Tunnel struct {
	RealmID   uint32
	State     State
	OpenedAt  time.Time
	BytesUp   uint64
	BytesDown uint64
}

// New creates a Tunnel in the opening state for realmID.
func New(realmID uint32) *Tunnel {
	return &Tunnel{RealmID: realmID, State: StateOpening}
}
