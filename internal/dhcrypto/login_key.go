// Package dhcrypto implements the directory authentication and payload
// protection primitives used by the authenticated (dtype > 0) variant of
// the rendezvous protocol: login-key derivation, per-nonce session-key
// derivation, AES-OFB payload encryption, and the HMAC-SHA256 request
// authenticator.
package dhcrypto

import (
	"crypto/md5"
	"encoding/hex"
	"strconv"
	"strings"
)

// LoginKey derives the stable per-account "login key": the uppercase hex
// digest of md5(username + ":Login to " + randSalt + ":" + password).
// This value never changes for a given (username, randSalt, password)
// triple and is the root key for both session-key derivation and request
// authentication.
func LoginKey(username, password, randSalt string) string {
	var b strings.Builder
	b.WriteString(username)
	b.WriteString(":Login to ")
	b.WriteString(randSalt)
	b.WriteString(":")
	b.WriteString(password)

	sum := md5.Sum([]byte(b.String()))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// decimalNonce renders a nonce the same way the wire protocol does: as
// ASCII decimal digits, no leading zeros, no sign handling beyond what a
// uint32 nonce ever needs.
func decimalNonce(nonce uint32) string {
	return strconv.FormatUint(uint64(nonce), 10)
}
