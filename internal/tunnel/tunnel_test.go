package tunnel

import (
	"bytes"
	"encoding/hex"
	"testing"
)

func TestOpenBody(t *testing.T) {
	got := OpenBody(0xAABBCCDD)
	want, err := hex.DecodeString("11000000" + "AABBCCDD" + "00000000" + "0000022A" + "7F000001")
	if err != nil {
		t.Fatalf("bad golden hex: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("OpenBody() = %x, want %x", got, want)
	}
}

func TestCloseBody(t *testing.T) {
	got := CloseBody(0x00000001)
	head, err := hex.DecodeString("12000000" + "00000001" + "00000000")
	if err != nil {
		t.Fatalf("bad golden hex: %v", err)
	}
	want := append(head, []byte("DISC")...)
	if !bytes.Equal(got, want) {
		t.Fatalf("CloseBody() = %x, want %x", got, want)
	}
}
