package directory

import (
	"net"
	"testing"
	"time"
)

func TestClientRequestFollowsProvisional(t *testing.T) {
	server, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}
	defer server.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		buf := make([]byte, maxDatagram)
		n, addr, err := server.ReadFromUDP(buf)
		if err != nil {
			t.Errorf("server read: %v", err)
			return
		}
		_ = n
		server.WriteToUDP([]byte("HTTP/1.1 100 Continue\r\n\r\n"), addr)
		server.WriteToUDP([]byte("HTTP/1.1 200 OK\r\n\r\n<ok/>"), addr)
	}()

	endpoint := Endpoint{Host: "127.0.0.1", Port: uint16(server.LocalAddr().(*net.UDPAddr).Port)}
	client, err := Dial(endpoint, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	resp, err := client.Request(DHGET, "/probe/p2psrv", "", nil, true)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if resp.Code != 200 {
		t.Fatalf("Code = %d, want 200", resp.Code)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("server goroutine did not finish")
	}
}
