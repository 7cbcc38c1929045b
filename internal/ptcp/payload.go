package ptcp

import (
	"encoding/binary"
	"fmt"
)

// payloadHeaderSize is the fixed size of a PTCPPayload header in bytes.
const payloadHeaderSize = 12

// payloadLengthFlag marks the high bit that distinguishes a PTCPPayload
// body from a control-frame body sharing the same leading byte space.
const payloadLengthFlag = 0x10000000

// Payload is the application-layer frame carried inside a PTCP frame
// whose body begins with BodyPayload (0x10). See spec §3 "PTCPPayload
// frame".
type Payload struct {
	Realm   uint32
	Payload []byte
}

// Encode serializes p to its wire representation, including the leading
// length_and_flag and realm and the zero pad word.
func (p *Payload) Encode() []byte {
	buf := make([]byte, payloadHeaderSize+len(p.Payload))
	binary.BigEndian.PutUint32(buf[0:4], uint32(len(p.Payload))|payloadLengthFlag)
	binary.BigEndian.PutUint32(buf[4:8], p.Realm)
	binary.BigEndian.PutUint32(buf[8:12], 0)
	copy(buf[payloadHeaderSize:], p.Payload)
	return buf
}

// DecodePayload parses a PTCPPayload from data. data is the full PTCP
// frame body (the leading byte of length_and_flag doubles as the 0x10
// body-kind marker the caller already dispatched on).
func DecodePayload(data []byte) (*Payload, error) {
	if len(data) < payloadHeaderSize {
		return nil, &MalformedFrame{Reason: fmt.Sprintf("payload buffer too short: got %d bytes, need %d", len(data), payloadHeaderSize)}
	}

	lengthAndFlag := binary.BigEndian.Uint32(data[0:4])
	realm := binary.BigEndian.Uint32(data[4:8])
	pad := binary.BigEndian.Uint32(data[8:12])

	if pad != 0 {
		return nil, &MalformedFrame{Reason: fmt.Sprintf("nonzero pad: 0x%08x", pad)}
	}

	length := lengthAndFlag & 0xFFFF
	body := data[payloadHeaderSize:]

	if uint32(len(body)) != length {
		return nil, &MalformedFrame{Reason: fmt.Sprintf("declared length %d does not match remaining %d bytes", length, len(body))}
	}

	payload := make([]byte, len(body))
	copy(payload, body)

	return &Payload{Realm: realm, Payload: payload}, nil
}
