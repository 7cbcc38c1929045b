package directory

import (
	"strings"
	"testing"
)

func TestRequestEncodeGet(t *testing.T) {
	req := &Request{Method: DHGET, Path: "/probe/p2psrv", CSeq: 1}
	got := string(req.Encode())

	want := "DHGET /probe/p2psrv HTTP/1.1\r\nCSeq: 1\r\n\r\n"
	if got != want {
		t.Fatalf("Encode() = %q, want %q", got, want)
	}
}

func TestRequestEncodePostWithAuth(t *testing.T) {
	auth := &WsseToken{Username: "P2PClient", Nonce: 42, Created: "2024-01-01T00:00:00Z", Digest: "abc="}
	req := &Request{Method: DHPOST, Path: "/device/SN1/p2p-channel", Body: "<x/>", CSeq: 2, Auth: auth}
	got := string(req.Encode())

	if !strings.HasPrefix(got, "DHPOST /device/SN1/p2p-channel HTTP/1.1\r\nCSeq: 2\r\n") {
		t.Fatalf("unexpected prefix: %q", got)
	}
	if !strings.Contains(got, `X-WSSE: UsernameToken Username="P2PClient", PasswordDigest="abc=", Nonce="42", Created="2024-01-01T00:00:00Z"`) {
		t.Fatalf("missing X-WSSE header: %q", got)
	}
	if !strings.Contains(got, "Content-Length: 4\r\n") {
		t.Fatalf("missing Content-Length: %q", got)
	}
	if !strings.HasSuffix(got, "\r\n\r\n<x/>") {
		t.Fatalf("missing body: %q", got)
	}
}

func TestParseResponseSuccess(t *testing.T) {
	raw := "HTTP/1.1 200 OK\r\nCSeq: 1\r\n\r\n<root><host>1.2.3.4</host><port>8800</port></root>"
	resp, err := ParseResponse([]byte(raw))
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}
	if resp.Code != 200 {
		t.Fatalf("Code = %d, want 200", resp.Code)
	}
	host := resp.Body.Find("host").TrimmedText()
	if host != "1.2.3.4" {
		t.Fatalf("host = %q, want 1.2.3.4", host)
	}
}

func TestParseResponseError(t *testing.T) {
	raw := "HTTP/1.1 404 Not Found\r\n\r\n"
	_, err := ParseResponse([]byte(raw))
	var derr *DirectoryError
	if err == nil {
		t.Fatal("expected error for 404 response")
	}
	if e, ok := err.(*DirectoryError); !ok {
		t.Fatalf("expected *DirectoryError, got %T", err)
	} else {
		derr = e
	}
	if derr.Code != 404 {
		t.Fatalf("Code = %d, want 404", derr.Code)
	}
}

func TestParseResponseProvisional(t *testing.T) {
	raw := "HTTP/1.1 100 Continue\r\n\r\n"
	resp, err := ParseResponse([]byte(raw))
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}
	if !resp.Provisional() {
		t.Fatal("expected Provisional() == true for 100")
	}
}

func TestNewWsseTokenHasDigestAnd31BitNonce(t *testing.T) {
	token, err := NewWsseToken(AnonymousUsername, AnonymousUserKey)
	if err != nil {
		t.Fatalf("NewWsseToken: %v", err)
	}
	if token.Digest == "" {
		t.Fatal("expected non-empty digest")
	}
	if token.Nonce&(1<<31) != 0 {
		t.Fatal("nonce must be 31-bit (sign bit clear)")
	}
}
