package cache

import (
	"context"
	"testing"
)

func TestMemoryCacheGetSet(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	if _, ok, err := c.Get(ctx, "SN1"); err != nil || ok {
		t.Fatalf("expected miss for unset serial, got ok=%v err=%v", ok, err)
	}

	want := &Resolution{P2PServerHost: "1.2.3.4", P2PServerPort: 9000, RelayHost: "5.6.7.8", RelayPort: 9100}
	if err := c.Set(ctx, "SN1", want); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, ok, err := c.Get(ctx, "SN1")
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if *got != *want {
		t.Fatalf("Get() = %+v, want %+v", got, want)
	}
}
