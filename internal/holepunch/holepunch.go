// Package holepunch implements the fixed binary datagram exchange used to
// open a direct UDP path to a device behind NAT, per spec §4.4.
package holepunch

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/p2pcam/camgate/internal/logging"
)

// HolePunchTimeout is returned when the device never answers frame A
// within the fixed budget. The orchestrator reports this as "relay-mode
// required" since relay fallback is out of scope for this gateway.
var HolePunchTimeout = errors.New("holepunch: timed out waiting for device response")

// timeout is the fixed budget for the device's first response to frame A.
const timeout = 5 * time.Second

var (
	prefixA = [4]byte{0xFF, 0xFE, 0xFF, 0xE7}
	prefixB = [4]byte{0xFE, 0xFE, 0xFF, 0xE7}
	prefixC = [4]byte{0xFE, 0xFE, 0xFF, 0xF3}

	selectorA = [4]byte{0x7F, 0xD5, 0xFF, 0xF7}
	selectorB = [4]byte{0x7F, 0xD6, 0xFF, 0xF7}

	// midTail separates the identify blob from the trailing six bytes in
	// every frame variant; it never changes.
	midTail = [6]byte{0xFF, 0xFB, 0xFF, 0xF7, 0xFF, 0xFE}

	tailC = [6]byte{0xA8, 0x13, 0x3F, 0x57, 0xFE, 0x37}
)

// complement returns the bytewise 0xFF-complement of b.
func complement(b []byte) []byte {
	out := make([]byte, len(b))
	for i, v := range b {
		out[i] = 0xFF - v
	}
	return out
}

// rawEndpoint packs (port, ipv4) as port_be(2)||ipv4(4), uncomplemented.
func rawEndpoint(addr *net.UDPAddr) ([]byte, error) {
	ip4 := addr.IP.To4()
	if ip4 == nil {
		return nil, fmt.Errorf("holepunch: address %s is not IPv4", addr)
	}
	raw := make([]byte, 6)
	binary.BigEndian.PutUint16(raw[0:2], uint16(addr.Port))
	copy(raw[2:6], ip4)
	return raw, nil
}

func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("holepunch: random bytes: %w", err)
	}
	return b, nil
}

// buildFrame assembles prefix||cookie||transID||selector||aid||midTail||tail.
func buildFrame(prefix [4]byte, cookie, transID []byte, selector [4]byte, aid []byte, tail []byte) []byte {
	buf := make([]byte, 0, 4+len(cookie)+len(transID)+4+len(aid)+6+len(tail))
	buf = append(buf, prefix[:]...)
	buf = append(buf, cookie...)
	buf = append(buf, transID...)
	buf = append(buf, selector[:]...)
	buf = append(buf, aid...)
	buf = append(buf, midTail[:]...)
	buf = append(buf, tail...)
	return buf
}

// Result carries the values the session orchestrator needs after a
// successful punch.
type Result struct {
	Cookie  []byte
	TransID []byte
}

// Punch performs the hole-punch exchange described in spec §4.4 against
// peer, using aid as this client's 8-byte identify blob and localAddr as
// the address advertised to the device (already decrypted by the caller
// when dtype > 0). authenticated selects whether the step-5 frame C
// exchange specific to the authenticated variant is performed.
//
// aid is complemented once, up front, and the complemented form is reused
// unchanged across frames A, B, and C, matching the reference behavior.
func Punch(conn *net.UDPConn, peer *net.UDPAddr, aid []byte, localAddr *net.UDPAddr, authenticated bool, log *logging.Logger) (*Result, error) {
	if len(aid) != 8 {
		return nil, fmt.Errorf("holepunch: aid must be 8 bytes, got %d", len(aid))
	}
	aidComplement := complement(aid)

	cookie, err := randomBytes(4)
	if err != nil {
		return nil, err
	}
	transID, err := randomBytes(12)
	if err != nil {
		return nil, err
	}

	peerEaddr, err := rawEndpoint(peer)
	if err != nil {
		return nil, err
	}
	peerEaddr = complement(peerEaddr)

	frameA := buildFrame(prefixA, cookie, transID, selectorA, aidComplement, peerEaddr)
	if log != nil {
		log.Debug("holepunch: sending frame A", logging.Fields{"peer": peer.String()})
	}
	if _, err := conn.WriteToUDP(frameA, peer); err != nil {
		return nil, fmt.Errorf("holepunch: send frame A: %w", err)
	}

	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, fmt.Errorf("holepunch: set read deadline: %w", err)
	}

	buf := make([]byte, 2048)
	n, _, err := conn.ReadFromUDP(buf)
	if err != nil {
		if isTimeout(err) {
			return nil, HolePunchTimeout
		}
		return nil, fmt.Errorf("holepunch: read response to frame A: %w", err)
	}
	if n < 20 {
		return nil, fmt.Errorf("holepunch: response to frame A too short: %d bytes", n)
	}
	rtransID := append([]byte(nil), buf[8:20]...)

	// Reset the deadline: subsequent reads are part of the bounded
	// authenticated-variant drain below, not frame A's own budget.
	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		return nil, fmt.Errorf("holepunch: clear read deadline: %w", err)
	}

	localEaddr, err := rawEndpoint(localAddr)
	if err != nil {
		return nil, err
	}

	frameB := buildFrame(prefixB, cookie, rtransID, selectorB, aidComplement, localEaddr)
	if log != nil {
		log.Debug("holepunch: sending frame B", logging.Fields{"peer": peer.String()})
	}
	if _, err := conn.WriteToUDP(frameB, peer); err != nil {
		return nil, fmt.Errorf("holepunch: send frame B: %w", err)
	}

	if authenticated {
		if err := drainAndFollowup(conn, peer, cookie, rtransID, aidComplement, log); err != nil {
			return nil, err
		}

		for i := 0; i < 5; i++ {
			if _, _, err := conn.ReadFromUDP(buf); err != nil {
				return nil, fmt.Errorf("holepunch: final drain datagram %d: %w", i, err)
			}
		}
	}

	return &Result{Cookie: cookie, TransID: rtransID}, nil
}

// drainAndFollowup implements spec §4.4 step 5: read one more datagram,
// send five copies of frame C, matching the reference bit-for-bit. Frame
// C has no explicit ack in the reference protocol; this is reproduced as
// fire-and-forget, per the spec's open question.
func drainAndFollowup(conn *net.UDPConn, peer *net.UDPAddr, cookie, transID, aid []byte, log *logging.Logger) error {
	buf := make([]byte, 2048)
	if _, _, err := conn.ReadFromUDP(buf); err != nil {
		return fmt.Errorf("holepunch: read pre-C datagram: %w", err)
	}

	frameC := buildFrame(prefixC, cookie, transID, selectorB, aid, tailC[:])
	for i := 0; i < 5; i++ {
		if _, err := conn.WriteToUDP(frameC, peer); err != nil {
			return fmt.Errorf("holepunch: send frame C copy %d: %w", i, err)
		}
	}

	if log != nil {
		log.Debug("holepunch: sent frame C quintet", logging.Fields{"peer": peer.String()})
	}

	return nil
}

func isTimeout(err error) bool {
	type timeouter interface{ Timeout() bool }
	te, ok := err.(timeouter)
	return ok && te.Timeout()
}
