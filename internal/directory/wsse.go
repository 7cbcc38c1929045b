package directory

import (
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"time"
)

// WsseToken is a WSSE UsernameToken authentication header value, per spec
// §3 "WsseToken": digest = base64(sha1(nonce || created || "DHP2P:" ||
// username || ":" || userkey)).
type WsseToken struct {
	Username string
	Nonce    uint32
	Created  string
	Digest   string
}

// NewWsseToken builds a fresh token for one request. nonce is a random
// 31-bit value (the reference never sets the sign bit), created is the
// current UTC time rendered as the fixed ISO-8601 layout the directory
// expects.
func NewWsseToken(username, userkey string) (*WsseToken, error) {
	nonce, err := randomNonce31()
	if err != nil {
		return nil, err
	}
	created := time.Now().UTC().Format("2006-01-02T15:04:05Z")

	digestInput := fmt.Sprintf("%d%sDHP2P:%s:%s", nonce, created, username, userkey)
	sum := sha1.Sum([]byte(digestInput))

	return &WsseToken{
		Username: username,
		Nonce:    nonce,
		Created:  created,
		Digest:   base64.StdEncoding.EncodeToString(sum[:]),
	}, nil
}

// Header renders the token's X-WSSE header value.
func (t *WsseToken) Header() string {
	return fmt.Sprintf(`UsernameToken Username="%s", PasswordDigest="%s", Nonce="%d", Created="%s"`,
		t.Username, t.Digest, t.Nonce, t.Created)
}

func randomNonce31() (uint32, error) {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, fmt.Errorf("directory: generate nonce: %w", err)
	}
	return binary.BigEndian.Uint32(buf[:]) &^ (1 << 31), nil
}
