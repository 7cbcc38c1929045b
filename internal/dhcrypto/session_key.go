package dhcrypto

import (
	"crypto/sha256"

	"golang.org/x/crypto/pbkdf2"
)

// SessionKeyIterations is the fixed PBKDF2 iteration count mandated by the
// directory protocol. It is intentionally low by modern KDF standards
// because the key schedule runs once per nonce, not per stored secret.
const SessionKeyIterations = 20000

// SessionKeySize is the derived key length, sized for AES-256-OFB.
const SessionKeySize = 32

// SessionKey derives the per-nonce encryption key from a login key: PBKDF2
// with HMAC-SHA256, salt = the ASCII decimal rendering of nonce. Two calls
// with the same (loginKey, nonce) pair always produce the same key; a new
// nonce from the device always produces a fresh key, which is why the key
// schedule is safe to run at this iteration count.
func SessionKey(loginKey string, nonce uint32) []byte {
	salt := []byte(decimalNonce(nonce))
	return pbkdf2.Key([]byte(loginKey), salt, SessionKeyIterations, SessionKeySize, sha256.New)
}
