package ptcp

import (
	"bytes"
	"encoding/hex"
	"testing"
)

// TestPayloadRoundtrip is scenario S-4 from spec §8.
func TestPayloadRoundtrip(t *testing.T) {
	p := &Payload{Realm: 0xDEADBEEF, Payload: []byte("ABC")}

	want, err := hex.DecodeString("10000003" + "DEADBEEF" + "00000000" + "414243")
	if err != nil {
		t.Fatalf("bad golden hex: %v", err)
	}

	got := p.Encode()
	if !bytes.Equal(got, want) {
		t.Fatalf("Encode() = %x, want %x", got, want)
	}

	decoded, err := DecodePayload(got)
	if err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if decoded.Realm != p.Realm || !bytes.Equal(decoded.Payload, p.Payload) {
		t.Fatalf("DecodePayload roundtrip mismatch: got %+v, want %+v", decoded, p)
	}
}

func TestDecodePayloadRejectsNonzeroPad(t *testing.T) {
	buf, err := hex.DecodeString("10000000" + "00000000" + "00000001")
	if err != nil {
		t.Fatalf("bad hex: %v", err)
	}
	if _, err := DecodePayload(buf); err == nil {
		t.Fatal("expected error for nonzero pad")
	}
}

func TestDecodePayloadRejectsLengthMismatch(t *testing.T) {
	buf, err := hex.DecodeString("10000005" + "00000000" + "00000000" + "4142")
	if err != nil {
		t.Fatalf("bad hex: %v", err)
	}
	if _, err := DecodePayload(buf); err == nil {
		t.Fatal("expected error for declared/actual length mismatch")
	}
}

func TestDecodePayloadRejectsShortBuffer(t *testing.T) {
	if _, err := DecodePayload(make([]byte, payloadHeaderSize-1)); err == nil {
		t.Fatal("expected error for short buffer")
	}
}
