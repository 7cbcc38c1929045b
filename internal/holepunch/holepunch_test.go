package holepunch

import (
	"encoding/binary"
	"net"
	"testing"
)

// TestEaddrComplementRelation is invariant 7 from spec §8.
func TestEaddrComplementRelation(t *testing.T) {
	addr := &net.UDPAddr{IP: net.IPv4(10, 20, 30, 40), Port: 5555}

	raw, err := rawEndpoint(addr)
	if err != nil {
		t.Fatalf("rawEndpoint: %v", err)
	}
	if len(raw) != 6 {
		t.Fatalf("raw endpoint length = %d, want 6", len(raw))
	}
	if got := binary.BigEndian.Uint16(raw[0:2]); got != uint16(addr.Port) {
		t.Fatalf("raw port = %d, want %d", got, addr.Port)
	}

	eaddr := complement(raw)
	for i := range raw {
		if eaddr[i] != 0xFF-raw[i] {
			t.Fatalf("eaddr[%d] = 0x%02x, want 0x%02x", i, eaddr[i], 0xFF-raw[i])
		}
	}
}

func TestComplementInvolution(t *testing.T) {
	b := []byte{0x00, 0x01, 0x7F, 0xFF, 0x10, 0xAB}
	if got := complement(complement(b)); string(got) != string(b) {
		t.Fatalf("complement(complement(b)) = %x, want %x", got, b)
	}
}
