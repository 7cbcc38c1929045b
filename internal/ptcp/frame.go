// Package ptcp implements the PTCP reliable-datagram framing used to carry
// the DH-P2P application protocol over a punched UDP socket: the base PTCP
// frame, the PTCPPayload application frame nested inside it, and the
// per-link send/receive counter discipline.
package ptcp

import (
	"encoding/binary"
	"fmt"
)

// HeaderSize is the fixed size of a PTCP frame header in bytes.
const HeaderSize = 24

// Magic is the 4-byte marker that opens every PTCP frame.
var Magic = [4]byte{'P', 'T', 'C', 'P'}

// MalformedFrame is returned when a buffer cannot be decoded as a valid
// PTCP or PTCPPayload frame.
type MalformedFrame struct {
	Reason string
}

func (e *MalformedFrame) Error() string {
	return fmt.Sprintf("malformed frame: %s", e.Reason)
}

// Frame is the base PTCP frame: a 24-byte header followed by an opaque
// body. See spec §3 "PTCP frame".
type Frame struct {
	RLID uint32 // body bytes received from the peer so far (ptcp_recv)
	LLID uint32 // body bytes sent by this side so far (ptcp_sent)
	PID  uint32 // frame kind / sequence
	LMID uint32 // local message id, incremented per send
	RMID uint32 // last observed peer lmid, echoed back
	Body []byte
}

// Encode serializes f to its wire representation.
func (f *Frame) Encode() []byte {
	buf := make([]byte, HeaderSize+len(f.Body))
	copy(buf[0:4], Magic[:])
	binary.BigEndian.PutUint32(buf[4:8], f.RLID)
	binary.BigEndian.PutUint32(buf[8:12], f.LLID)
	binary.BigEndian.PutUint32(buf[12:16], f.PID)
	binary.BigEndian.PutUint32(buf[16:20], f.LMID)
	binary.BigEndian.PutUint32(buf[20:24], f.RMID)
	copy(buf[24:], f.Body)
	return buf
}

// DecodeFrame parses a PTCP frame from data. It returns a *MalformedFrame
// when the buffer is too short or the magic doesn't match.
func DecodeFrame(data []byte) (*Frame, error) {
	if len(data) < HeaderSize {
		return nil, &MalformedFrame{Reason: fmt.Sprintf("buffer too short: got %d bytes, need %d", len(data), HeaderSize)}
	}
	if string(data[0:4]) != string(Magic[:]) {
		return nil, &MalformedFrame{Reason: fmt.Sprintf("bad magic: got %q", data[0:4])}
	}

	f := &Frame{
		RLID: binary.BigEndian.Uint32(data[4:8]),
		LLID: binary.BigEndian.Uint32(data[8:12]),
		PID:  binary.BigEndian.Uint32(data[12:16]),
		LMID: binary.BigEndian.Uint32(data[16:20]),
		RMID: binary.BigEndian.Uint32(data[20:24]),
	}

	if len(data) > HeaderSize {
		f.Body = make([]byte, len(data)-HeaderSize)
		copy(f.Body, data[HeaderSize:])
	}

	return f, nil
}

// Hello is the literal 4-byte body that opens a PTCP link.
var Hello = []byte{0x00, 0x03, 0x01, 0x00}

// PID sentinels for the handshake opener and data frame counting, per
// spec §3 and §4.5 "Send discipline".
const (
	PIDHello    uint32 = 0x0002FFFF
	pidDataBase uint32 = 0x0000FFFF
)

// Body leading bytes of the application sub-protocol, per spec §4.5.
const (
	BodyPayload          byte = 0x10
	BodyOpenTunnel       byte = 0x11
	BodyTunnelReply      byte = 0x12
	BodyKeepalive        byte = 0x13
	BodySignRequest      byte = 0x17
	BodySignSubmit       byte = 0x19
	BodySignSubmitReply  byte = 0x1A
	BodyReady            byte = 0x1B
)
