package dhcrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"fmt"
)

// ofbIV is the fixed 16-byte AES-OFB initialization vector baked into the
// protocol. It is public by design: payload confidentiality here rests on
// the per-nonce session key, not on IV secrecy, and the vendor wire format
// is not open to renegotiation.
var ofbIV = []byte("2z52*lk9o6HRyJrf")

// Encrypt AES-OFB-encrypts plaintext under the session key derived from
// loginKey and nonce, returning the standard base64 encoding of the
// ciphertext. OFB is a stream cipher mode: the same transform run twice
// over a buffer (once on plaintext, once on the result) recovers the
// original bytes, so Decrypt is implemented by calling this same
// keystream application a second time.
func Encrypt(loginKey string, nonce uint32, plaintext string) (string, error) {
	out, err := ofbTransform(loginKey, nonce, []byte(plaintext))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt reverses Encrypt: ciphertext is the standard base64 encoding
// produced by Encrypt, under the same (loginKey, nonce) pair.
func Decrypt(loginKey string, nonce uint32, ciphertext string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("dhcrypto: decode ciphertext: %w", err)
	}
	out, err := ofbTransform(loginKey, nonce, raw)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func ofbTransform(loginKey string, nonce uint32, data []byte) ([]byte, error) {
	key := SessionKey(loginKey, nonce)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("dhcrypto: new cipher: %w", err)
	}

	out := make([]byte, len(data))
	stream := cipher.NewOFB(block, ofbIV)
	stream.XORKeyStream(out, data)
	return out, nil
}
