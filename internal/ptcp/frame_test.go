package ptcp

import (
	"bytes"
	"encoding/hex"
	"testing"
)

// TestFrameRoundtrip is scenario S-1 from spec §8.
func TestFrameRoundtrip(t *testing.T) {
	f := &Frame{
		RLID: 0x10,
		LLID: 0x20,
		PID:  0x0000FFFE,
		LMID: 5,
		RMID: 4,
		Body: []byte{0x00, 0x03, 0x01, 0x00},
	}

	want, err := hex.DecodeString("505443500000001000000020" + "0000FFFE" + "0000000500000004" + "00030100")
	if err != nil {
		t.Fatalf("bad golden hex: %v", err)
	}

	got := f.Encode()
	if !bytes.Equal(got, want) {
		t.Fatalf("Encode() = %x, want %x", got, want)
	}

	decoded, err := DecodeFrame(got)
	if err != nil {
		t.Fatalf("DecodeFrame: %v", err)
	}
	if decoded.RLID != f.RLID || decoded.LLID != f.LLID || decoded.PID != f.PID ||
		decoded.LMID != f.LMID || decoded.RMID != f.RMID || !bytes.Equal(decoded.Body, f.Body) {
		t.Fatalf("DecodeFrame roundtrip mismatch: got %+v, want %+v", decoded, f)
	}
}

func TestDecodeFrameRejectsShortBuffer(t *testing.T) {
	_, err := DecodeFrame(make([]byte, HeaderSize-1))
	if _, ok := err.(*MalformedFrame); !ok {
		t.Fatalf("expected *MalformedFrame, got %v", err)
	}
}

func TestDecodeFrameRejectsBadMagic(t *testing.T) {
	buf := make([]byte, HeaderSize)
	copy(buf, "XXXX")
	_, err := DecodeFrame(buf)
	if _, ok := err.(*MalformedFrame); !ok {
		t.Fatalf("expected *MalformedFrame, got %v", err)
	}
}

// TestHelloThenSign is scenario S-2 from spec §8.
func TestHelloThenSign(t *testing.T) {
	l := &Link{}

	recorded := [][]byte{}
	send := func(body []byte) *Frame {
		isHello := bytes.Equal(body, Hello)
		pid := pidDataBase - l.count
		if isHello {
			pid = PIDHello
		}
		f := &Frame{RLID: uint32(l.recv), LLID: uint32(l.sent), PID: pid, LMID: l.id, RMID: l.rmid, Body: body}
		recorded = append(recorded, f.Encode())
		l.sent += uint64(len(body))
		l.id++
		if len(body) > 0 && !isHello {
			l.count++
		}
		return f
	}

	helloFrame := send(Hello)
	if helloFrame.PID != PIDHello {
		t.Fatalf("hello pid = 0x%08x, want 0x%08x", helloFrame.PID, PIDHello)
	}
	if helloFrame.LMID != 0 || helloFrame.RMID != 0 {
		t.Fatalf("hello lmid/rmid = %d/%d, want 0/0", helloFrame.LMID, helloFrame.RMID)
	}

	signFrame := send([]byte{0x17, 0x00, 0x00, 0x00, 0, 0, 0, 0, 0, 0, 0, 0})
	if signFrame.PID != pidDataBase {
		t.Fatalf("sign-request pid = 0x%08x, want 0x%08x", signFrame.PID, pidDataBase)
	}
	if signFrame.LMID != 1 {
		t.Fatalf("sign-request lmid = %d, want 1", signFrame.LMID)
	}
	if l.count != 1 {
		t.Fatalf("ptcp_count after sign-request = %d, want 1", l.count)
	}
}

// TestPureAckPreservesCount is scenario S-3 from spec §8.
func TestPureAckPreservesCount(t *testing.T) {
	l := &Link{count: 1, id: 2, sent: 12}
	sentBefore := l.sent

	pid := pidDataBase - l.count
	f := &Frame{RLID: uint32(l.recv), LLID: uint32(l.sent), PID: pid, LMID: l.id, RMID: l.rmid, Body: nil}
	l.id++

	if l.count != 1 {
		t.Fatalf("ptcp_count = %d, want unchanged 1", l.count)
	}
	if f.LMID != 2 {
		t.Fatalf("lmid = %d, want 2", f.LMID)
	}
	if l.sent != sentBefore {
		t.Fatalf("ptcp_sent changed on empty-body send: %d != %d", l.sent, sentBefore)
	}
}
