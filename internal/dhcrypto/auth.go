package dhcrypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strconv"
)

// DevAuth computes the DevAuth request authenticator carried in the
// DeviceAuthBlock XML fragment: base64(hmac_sha256(loginKey,
// decimal(nonce) || decimal(unixSeconds) || payload)).
func DevAuth(loginKey string, nonce uint32, unixSeconds int64, payload string) string {
	mac := hmac.New(sha256.New, []byte(loginKey))
	mac.Write([]byte(decimalNonce(nonce)))
	mac.Write([]byte(strconv.FormatInt(unixSeconds, 10)))
	mac.Write([]byte(payload))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
