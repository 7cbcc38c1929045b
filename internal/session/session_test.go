package session

import (
	"testing"

	"github.com/p2pcam/camgate/internal/directory"
)

func TestIdentifyHex(t *testing.T) {
	aid := [8]byte{0x00, 0x0a, 0xff, 0x01, 0x10, 0x7f, 0x80, 0xfe}
	got := identifyHex(aid)
	want := "0 a ff 1 10 7f 80 fe"
	if got != want {
		t.Fatalf("identifyHex() = %q, want %q", got, want)
	}
}

func TestParseEndpoint(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    directory.Endpoint
		wantErr bool
	}{
		{name: "host and port", in: "relay.example.com:9000", want: directory.Endpoint{Host: "relay.example.com", Port: 9000}},
		{name: "ipv4 and port", in: "10.0.0.5:554", want: directory.Endpoint{Host: "10.0.0.5", Port: 554}},
		{name: "missing port", in: "10.0.0.5", wantErr: true},
		{name: "non-numeric port", in: "10.0.0.5:abc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseEndpoint(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseEndpoint(%q) expected error, got none", tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseEndpoint(%q): %v", tt.in, err)
			}
			if got != tt.want {
				t.Fatalf("parseEndpoint(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}

func TestWsseIdentity(t *testing.T) {
	tests := []struct {
		name         string
		dtype        int
		wantUsername string
		wantUserKey  string
	}{
		{name: "anonymous", dtype: 0, wantUsername: directory.AnonymousUsername, wantUserKey: directory.AnonymousUserKey},
		{name: "authenticated", dtype: 1, wantUsername: directory.AuthUsername, wantUserKey: directory.AuthUserKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotUsername, gotUserKey := wsseIdentity(tt.dtype)
			if gotUsername != tt.wantUsername || gotUserKey != tt.wantUserKey {
				t.Fatalf("wsseIdentity(%d) = (%q, %q), want (%q, %q)",
					tt.dtype, gotUsername, gotUserKey, tt.wantUsername, tt.wantUserKey)
			}
		})
	}
}

func TestBodyFieldMissing(t *testing.T) {
	resp := &directory.Response{Body: &directory.Node{Name: "response"}}
	if _, err := bodyField(resp, "US"); err == nil {
		t.Fatal("expected error for missing body field")
	}
}

func TestBodyFieldPresent(t *testing.T) {
	bodyNode := &directory.Node{Name: "body", Children: []*directory.Node{
		{Name: "US", Text: "  1.2.3.4:9000  "},
	}}
	resp := &directory.Response{Body: &directory.Node{Name: "response", Children: []*directory.Node{bodyNode}}}

	got, err := bodyField(resp, "US")
	if err != nil {
		t.Fatalf("bodyField: %v", err)
	}
	if got != "1.2.3.4:9000" {
		t.Fatalf("bodyField() = %q, want trimmed address", got)
	}
}
