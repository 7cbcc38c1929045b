package directory

import (
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/p2pcam/camgate/internal/logging"
)

// DirectoryTimeout is surfaced when a directory read exceeds ReadTimeout.
var DirectoryTimeout = errors.New("directory: read timed out")

// ReadTimeout bounds directory socket reads. The reference implementation
// blocks indefinitely; this gateway imposes a bound and surfaces
// DirectoryTimeout instead of hanging the orchestrator forever.
const ReadTimeout = 15 * time.Second

const maxDatagram = 8192

// Client is a directory-protocol socket bound once and reused across the
// calls the session orchestrator makes against a sequence of endpoints
// (main server, then relay, then relay agent; or main server, then the
// device's own public address). The socket itself is never re-bound —
// only its remote changes — so a single local port and identity persist
// across an entire session's redirects, matching the reference client's
// behavior of mutating a plain UDP socket's destination in place rather
// than reconnecting. cseq is process-wide monotonic per spec §4.3, so it
// lives on a value shared across every Client a session creates.
type Client struct {
	conn   *net.UDPConn
	remote *net.UDPAddr
	log    *logging.Logger
}

// cseq is the process-wide monotonic directory sequence counter,
// starting at 1 and incrementing per request across every Client.
var cseq uint32

func nextCSeq() uint32 {
	return atomic.AddUint32(&cseq, 1)
}

// Dial binds an ephemeral local UDP socket and points it at endpoint.
// The socket is never connect()'d, so Redirect can later repoint it at a
// different endpoint without losing the local port.
func Dial(endpoint Endpoint, log *logging.Logger) (*Client, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
	if err != nil {
		return nil, fmt.Errorf("directory: bind local socket: %w", err)
	}
	c := &Client{conn: conn, log: log}
	if err := c.Redirect(endpoint); err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}

// Redirect repoints the client at a new endpoint, keeping the same local
// socket and port. Sessions use this to walk a single identity across
// the main server, a relay, and a relay agent (or across the main server
// and a device's own public address) without minting a new local port
// each time.
func (c *Client) Redirect(endpoint Endpoint) error {
	raddr, err := net.ResolveUDPAddr("udp4", endpoint.String())
	if err != nil {
		return fmt.Errorf("directory: resolve %s: %w", endpoint, err)
	}
	c.remote = raddr
	return nil
}

// Close releases the underlying socket.
func (c *Client) Close() error { return c.conn.Close() }

// LocalAddr returns the socket's local address, for building the
// identify blob and advertising this client's own endpoint.
func (c *Client) LocalAddr() *net.UDPAddr { return c.conn.LocalAddr().(*net.UDPAddr) }

// RemoteAddr returns the client's current remote endpoint, for handing
// off to a PTCP Link after the directory phase of a session completes.
func (c *Client) RemoteAddr() *net.UDPAddr { return c.remote }

// Conn exposes the underlying socket so it can be handed off to a PTCP
// Link or the hole-punch engine once the directory phase of a session
// completes — the reference implementation reuses the exact same socket
// for its rendezvous handshake and, for the device leg, for the
// hole-punch exchange that follows.
func (c *Client) Conn() *net.UDPConn { return c.conn }

// Request sends method/path/body (optionally WSSE-authenticated) and, if
// shouldRead is true, reads and parses the reply, following a provisional
// (1xx) status with exactly one additional read per spec §4.3.
func (c *Client) Request(method Method, path, body string, auth *WsseToken, shouldRead bool) (*Response, error) {
	req := &Request{Method: method, Path: path, Body: body, CSeq: nextCSeq(), Auth: auth}
	data := req.Encode()

	if c.log != nil {
		c.log.Debug("directory request", logging.Fields{"method": string(method), "path": path, "cseq": req.CSeq})
	}

	if _, err := c.conn.WriteToUDP(data, c.remote); err != nil {
		return nil, fmt.Errorf("directory: send request: %w", err)
	}

	if !shouldRead {
		return nil, nil
	}
	return c.Read()
}

// Read performs one directory read, transparently following a single
// provisional (1xx) continuation, per spec §4.3.
func (c *Client) Read() (*Response, error) {
	resp, err := c.readOnce()
	if err != nil {
		var derr *DirectoryError
		if errors.As(err, &derr) {
			return resp, err
		}
		return nil, err
	}

	if resp.Provisional() {
		resp, err = c.readOnce()
		if err != nil {
			var derr *DirectoryError
			if errors.As(err, &derr) {
				return resp, err
			}
			return nil, err
		}
	}

	return resp, nil
}

func (c *Client) readOnce() (*Response, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(ReadTimeout)); err != nil {
		return nil, fmt.Errorf("directory: set read deadline: %w", err)
	}

	buf := make([]byte, maxDatagram)
	n, _, err := c.conn.ReadFromUDP(buf)
	if err != nil {
		if te, ok := err.(interface{ Timeout() bool }); ok && te.Timeout() {
			return nil, DirectoryTimeout
		}
		return nil, fmt.Errorf("directory: read response: %w", err)
	}

	resp, err := ParseResponse(buf[:n])
	if c.log != nil && resp != nil {
		c.log.Debug("directory response", logging.Fields{"code": resp.Code, "status": resp.Status})
	}
	return resp, err
}
