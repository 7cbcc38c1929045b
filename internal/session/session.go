// Package session drives the S0-S12 rendezvous and session-establishment
// state machine described in spec §4.6: directory lookups against the
// vendor cloud, the relay-agent handshake, the device's P2P/relay
// channel negotiation, the hole-punch exchange, and the two PTCP
// handshakes. It hands a ready device-leg Link to the caller, which then
// drives the proxy loop (package internal/proxy).
package session

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/p2pcam/camgate/internal/cache"
	"github.com/p2pcam/camgate/internal/dhcrypto"
	"github.com/p2pcam/camgate/internal/directory"
	"github.com/p2pcam/camgate/internal/holepunch"
	"github.com/p2pcam/camgate/internal/logging"
	"github.com/p2pcam/camgate/internal/ptcp"
)

// ErrAuthRequired is returned when the device rejects an anonymous
// (dtype 0) P2P channel request with 403, meaning it needs the
// authenticated variant.
var ErrAuthRequired = errors.New("session: device requires authentication; retry with type=1 and credentials")

// clientVersion is sent in every p2p-channel request, matching the
// reference client's fixed <version> tag.
const clientVersion = "5.0.0"

// Options configures one rendezvous/session-establishment run against a
// single camera serial.
type Options struct {
	Serial   string
	DType    int
	Username string
	Password string

	// Cache, if non-nil, is consulted for a previously resolved P2P
	// server / relay endpoint pair before querying the directory, and
	// populated after a fresh resolution. Per-session tokens and nonces
	// are never cached.
	Cache cache.DirectoryCache

	Log *logging.Logger
}

// Establish runs S0 through S12 and returns a PTCP Link bound to the
// punched device socket, ready to be handed to proxy.New.
func Establish(opts Options) (*ptcp.Link, error) {
	log := opts.Log
	if log != nil {
		log = log.WithSerial(opts.Serial)
	}

	mainEndpoint := directory.Endpoint{Host: directory.MainServer, Port: directory.MainPort}

	mainClient, err := directory.Dial(mainEndpoint, log)
	if err != nil {
		return nil, fmt.Errorf("session: S0: dial main server: %w", err)
	}

	if _, err := request(mainClient, directory.DHGET, "/probe/p2psrv", "", true, opts.DType); err != nil {
		mainClient.Close()
		return nil, fmt.Errorf("session: S0 probe: %w", err)
	}

	p2psrvEndpoint, relayEndpoint, cached := lookupCached(opts)

	if !cached {
		p2psrvEndpoint, err = s1LookupP2PServer(mainClient, opts.Serial, opts.DType)
		if err != nil {
			mainClient.Close()
			return nil, fmt.Errorf("session: S1 lookup p2p server: %w", err)
		}
	}

	if err := s2ProbeDevice(p2psrvEndpoint, opts.Serial, opts.DType, log); err != nil {
		mainClient.Close()
		return nil, fmt.Errorf("session: S2 probe device: %w", err)
	}

	if !cached {
		relayEndpoint, err = s3LookupRelay(mainClient, opts.DType)
		if err != nil {
			mainClient.Close()
			return nil, fmt.Errorf("session: S3 lookup relay: %w", err)
		}
	}

	if !cached && opts.Cache != nil {
		cacheStore(opts, p2psrvEndpoint, relayEndpoint)
	}

	deviceClient, err := directory.Dial(mainEndpoint, log)
	if err != nil {
		mainClient.Close()
		return nil, fmt.Errorf("session: S4: bind device socket: %w", err)
	}

	aid, err := randomAid()
	if err != nil {
		mainClient.Close()
		deviceClient.Close()
		return nil, err
	}

	var loginKey string
	var clientNonce uint32
	if opts.DType > 0 {
		loginKey = dhcrypto.LoginKey(opts.Username, opts.Password, directory.AuthRandSalt)
		clientNonce, err = randomNonce32()
		if err != nil {
			mainClient.Close()
			deviceClient.Close()
			return nil, err
		}
	}

	if err := s4OpenP2PChannel(deviceClient, opts, aid, loginKey, clientNonce); err != nil {
		mainClient.Close()
		deviceClient.Close()
		return nil, fmt.Errorf("session: S4 open p2p channel: %w", err)
	}

	token, agentEndpoint, err := s5RelayAgent(mainClient, relayEndpoint, opts.DType)
	if err != nil {
		mainClient.Close()
		deviceClient.Close()
		return nil, fmt.Errorf("session: S5 relay agent token: %w", err)
	}

	if err := s6StartRelay(mainClient, agentEndpoint, token, opts.DType); err != nil {
		mainClient.Close()
		deviceClient.Close()
		return nil, fmt.Errorf("session: S6 start relay: %w", err)
	}

	chReply, err := s7AwaitChannelReply(deviceClient, opts.DType)
	if err != nil {
		mainClient.Close()
		deviceClient.Close()
		return nil, fmt.Errorf("session: S7 await channel reply: %w", err)
	}

	deviceLocalAddr, deviceNonce, pubAddr, err := decodeChannelReply(chReply, opts.DType, loginKey)
	if err != nil {
		mainClient.Close()
		deviceClient.Close()
		return nil, fmt.Errorf("session: S7 decode channel reply: %w", err)
	}

	if err := s8PublishRelayChannel(mainClient, mainEndpoint, opts, loginKey, deviceNonce, agentEndpoint); err != nil {
		mainClient.Close()
		deviceClient.Close()
		return nil, fmt.Errorf("session: S8 publish relay channel: %w", err)
	}

	if err := s9AwaitAgentAck(mainClient, agentEndpoint); err != nil {
		mainClient.Close()
		deviceClient.Close()
		return nil, fmt.Errorf("session: S9 await agent ack: %w", err)
	}

	mainLink := ptcp.NewLink(mainClient.Conn(), mainClient.RemoteAddr(), log)
	sign, err := mainLink.HandshakeRendezvous()
	if err != nil {
		mainClient.Close()
		deviceClient.Close()
		return nil, fmt.Errorf("session: S10 ptcp handshake (main leg): %w", err)
	}
	mainClient.Close()

	if err := deviceClient.Redirect(pubAddr); err != nil {
		deviceClient.Close()
		return nil, fmt.Errorf("session: S11: redirect to device public address: %w", err)
	}
	localUDPAddr, err := net.ResolveUDPAddr("udp4", deviceLocalAddr)
	if err != nil {
		deviceClient.Close()
		return nil, fmt.Errorf("session: S11: parse decrypted local address %q: %w", deviceLocalAddr, err)
	}

	if _, err := holepunch.Punch(deviceClient.Conn(), deviceClient.RemoteAddr(), aid[:], localUDPAddr, opts.DType > 0, log); err != nil {
		deviceClient.Close()
		return nil, fmt.Errorf("session: S11 hole-punch: %w", err)
	}

	deviceLink := ptcp.NewLink(deviceClient.Conn(), deviceClient.RemoteAddr(), log)
	if err := deviceLink.HandshakeDevice(sign); err != nil {
		deviceClient.Close()
		return nil, fmt.Errorf("session: S12 ptcp handshake (device leg): %w", err)
	}

	return deviceLink, nil
}

func lookupCached(opts Options) (p2psrv, relay directory.Endpoint, ok bool) {
	if opts.Cache == nil {
		return directory.Endpoint{}, directory.Endpoint{}, false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	res, hit, err := opts.Cache.Get(ctx, opts.Serial)
	if err != nil || !hit {
		return directory.Endpoint{}, directory.Endpoint{}, false
	}
	return directory.Endpoint{Host: res.P2PServerHost, Port: res.P2PServerPort},
		directory.Endpoint{Host: res.RelayHost, Port: res.RelayPort}, true
}

func cacheStore(opts Options, p2psrv, relay directory.Endpoint) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = opts.Cache.Set(ctx, opts.Serial, &cache.Resolution{
		P2PServerHost: p2psrv.Host, P2PServerPort: p2psrv.Port,
		RelayHost: relay.Host, RelayPort: relay.Port,
	})
}

func s1LookupP2PServer(mainClient *directory.Client, serial string, dtype int) (directory.Endpoint, error) {
	resp, err := request(mainClient, directory.DHGET, "/online/p2psrv/"+serial, "", true, dtype)
	if err != nil {
		return directory.Endpoint{}, err
	}
	us, err := bodyField(resp, "US")
	if err != nil {
		return directory.Endpoint{}, err
	}
	return parseEndpoint(us)
}

func s2ProbeDevice(p2psrv directory.Endpoint, serial string, dtype int, log *logging.Logger) error {
	p2psrvClient, err := directory.Dial(p2psrv, log)
	if err != nil {
		return fmt.Errorf("dial p2p server: %w", err)
	}
	defer p2psrvClient.Close()

	_, err = request(p2psrvClient, directory.DHGET, "/probe/device/"+serial, "", true, dtype)
	return err
}

func s3LookupRelay(mainClient *directory.Client, dtype int) (directory.Endpoint, error) {
	resp, err := request(mainClient, directory.DHGET, "/online/relay", "", true, dtype)
	if err != nil {
		return directory.Endpoint{}, err
	}
	addr, err := bodyField(resp, "Address")
	if err != nil {
		return directory.Endpoint{}, err
	}
	return parseEndpoint(addr)
}

func s4OpenP2PChannel(deviceClient *directory.Client, opts Options, aid [8]byte, loginKey string, clientNonce uint32) error {
	localAddr := fmt.Sprintf("127.0.0.1:%d", deviceClient.LocalAddr().Port)

	var ipaddr, auth string
	if opts.DType > 0 {
		encLocal, err := dhcrypto.Encrypt(loginKey, clientNonce, localAddr)
		if err != nil {
			return fmt.Errorf("encrypt local address: %w", err)
		}
		ipaddr = fmt.Sprintf("<IpEncrptV2>true</IpEncrptV2><LocalAddr>%s</LocalAddr>", encLocal)
		auth = deviceAuthBlock(loginKey, clientNonce, opts.Username, encLocal)
	} else {
		ipaddr = fmt.Sprintf("<IpEncrpt>true</IpEncrpt><LocalAddr>%s</LocalAddr>", localAddr)
	}

	body := fmt.Sprintf("<body>%s<Identify>%s</Identify>%s<version>%s</version></body>",
		auth, identifyHex(aid), ipaddr, clientVersion)

	_, err := request(deviceClient, directory.DHPOST, "/device/"+opts.Serial+"/p2p-channel", body, false, opts.DType)
	return err
}

func s5RelayAgent(mainClient *directory.Client, relay directory.Endpoint, dtype int) (token string, agent directory.Endpoint, err error) {
	if err := mainClient.Redirect(relay); err != nil {
		return "", directory.Endpoint{}, err
	}
	resp, err := request(mainClient, directory.DHGET, "/relay/agent", "", true, dtype)
	if err != nil {
		return "", directory.Endpoint{}, err
	}
	token, err = bodyField(resp, "Token")
	if err != nil {
		return "", directory.Endpoint{}, err
	}
	agentStr, err := bodyField(resp, "Agent")
	if err != nil {
		return "", directory.Endpoint{}, err
	}
	agent, err = parseEndpoint(agentStr)
	return token, agent, err
}

func s6StartRelay(mainClient *directory.Client, agent directory.Endpoint, token string, dtype int) error {
	if err := mainClient.Redirect(agent); err != nil {
		return err
	}
	_, err := request(mainClient, directory.DHPOST, "/relay/start/"+token, "<body><Client>:0</Client></body>", true, dtype)
	return err
}

func s7AwaitChannelReply(deviceClient *directory.Client, dtype int) (*directory.Response, error) {
	resp, err := deviceClient.Read()
	var derr *directory.DirectoryError
	if errors.As(err, &derr) {
		if dtype == 0 && derr.Code == 403 {
			return nil, ErrAuthRequired
		}
		return nil, err
	}
	return resp, err
}

func decodeChannelReply(resp *directory.Response, dtype int, loginKey string) (localAddr string, nonce uint32, pub directory.Endpoint, err error) {
	localAddr, err = bodyField(resp, "LocalAddr")
	if err != nil {
		return "", 0, directory.Endpoint{}, err
	}

	if dtype > 0 {
		nonceStr, err := bodyField(resp, "Nonce")
		if err != nil {
			return "", 0, directory.Endpoint{}, err
		}
		n, err := strconv.ParseUint(nonceStr, 10, 32)
		if err != nil {
			return "", 0, directory.Endpoint{}, fmt.Errorf("parse device nonce %q: %w", nonceStr, err)
		}
		nonce = uint32(n)

		localAddr, err = dhcrypto.Decrypt(loginKey, nonce, localAddr)
		if err != nil {
			return "", 0, directory.Endpoint{}, fmt.Errorf("decrypt device local address: %w", err)
		}
	}

	pubStr, err := bodyField(resp, "PubAddr")
	if err != nil {
		return "", 0, directory.Endpoint{}, err
	}
	pub, err = parseEndpoint(pubStr)
	return localAddr, nonce, pub, err
}

func s8PublishRelayChannel(mainClient *directory.Client, mainEndpoint directory.Endpoint, opts Options, loginKey string, deviceNonce uint32, agent directory.Endpoint) error {
	if err := mainClient.Redirect(mainEndpoint); err != nil {
		return err
	}

	var auth string
	if opts.DType > 0 {
		auth = deviceAuthBlock(loginKey, deviceNonce, opts.Username, "")
	}

	body := fmt.Sprintf("<body>%s<agentAddr>%s:%d</agentAddr></body>", auth, agent.Host, agent.Port)
	_, err := request(mainClient, directory.DHPOST, "/device/"+opts.Serial+"/relay-channel", body, false, opts.DType)
	return err
}

func s9AwaitAgentAck(mainClient *directory.Client, agent directory.Endpoint) error {
	if err := mainClient.Redirect(agent); err != nil {
		return err
	}
	_, err := mainClient.Read()
	return err
}

// request builds a fresh WSSE token for the directory transport identity
// selected by dtype (distinct from any device-level DevAuth credentials,
// which ride in the XML body rather than the WSSE header) and issues one
// directory call. dtype 0 uses the anonymous variant's baked-in identity;
// dtype>0 uses the authenticated variant's.
func request(client *directory.Client, method directory.Method, path, body string, shouldRead bool, dtype int) (*directory.Response, error) {
	username, userKey := wsseIdentity(dtype)

	token, err := directory.NewWsseToken(username, userKey)
	if err != nil {
		return nil, err
	}
	return client.Request(method, path, body, token, shouldRead)
}

// wsseIdentity selects the baked-in (USERNAME, USERKEY) pair the WSSE
// header is built from: the anonymous variant for dtype 0, the
// authenticated variant for dtype>0.
func wsseIdentity(dtype int) (username, userKey string) {
	if dtype > 0 {
		return directory.AuthUsername, directory.AuthUserKey
	}
	return directory.AnonymousUsername, directory.AnonymousUserKey
}

// bodyField reads a <body><name>...</name></body> leaf from a directory
// response, the shape every field this orchestrator consumes takes.
func bodyField(resp *directory.Response, name string) (string, error) {
	node := resp.Body.Path("body", name)
	if node == nil {
		return "", fmt.Errorf("response missing <%s>", name)
	}
	return node.TrimmedText(), nil
}

func parseEndpoint(hostport string) (directory.Endpoint, error) {
	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		return directory.Endpoint{}, fmt.Errorf("parse endpoint %q: %w", hostport, err)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return directory.Endpoint{}, fmt.Errorf("parse port %q: %w", portStr, err)
	}
	return directory.Endpoint{Host: host, Port: uint16(port)}, nil
}

// deviceAuthBlock renders the <CreateDate><DevAuth><Nonce><RandSalt>
// <UserName> fragment that accompanies every authenticated (dtype > 0)
// device request.
func deviceAuthBlock(loginKey string, nonce uint32, username, payload string) string {
	now := time.Now()
	auth := dhcrypto.DevAuth(loginKey, nonce, now.Unix(), payload)
	createDate := now.UTC().Format("2006-01-02T15:04:05Z")
	return fmt.Sprintf("<CreateDate>%s</CreateDate><DevAuth>%s</DevAuth><Nonce>%d</Nonce><RandSalt>%s</RandSalt><UserName>%s</UserName>",
		createDate, auth, nonce, directory.AuthRandSalt, username)
}

func identifyHex(aid [8]byte) string {
	parts := make([]string, len(aid))
	for i, b := range aid {
		parts[i] = fmt.Sprintf("%x", b)
	}
	return strings.Join(parts, " ")
}

func randomAid() ([8]byte, error) {
	var aid [8]byte
	if _, err := rand.Read(aid[:]); err != nil {
		return aid, fmt.Errorf("session: generate identify blob: %w", err)
	}
	return aid, nil
}

func randomNonce32() (uint32, error) {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, fmt.Errorf("session: generate nonce: %w", err)
	}
	return uint32(buf[0])<<24 | uint32(buf[1])<<16 | uint32(buf[2])<<8 | uint32(buf[3]), nil
}
