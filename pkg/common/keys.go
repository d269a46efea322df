package common

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"io"

	"golang.org/x/crypto/hkdf"
)

const keySize = 32

// DeriveKey expands the configured secret into an independent key per
// purpose, so the cookie signer and the CSRF signer never share a key.
func DeriveKey(secret, purpose string) []byte {
	r := hkdf.New(sha256.New, []byte(secret), nil, []byte("authgate:"+purpose))
	key := make([]byte, keySize)
	if _, err := io.ReadFull(r, key); err != nil {
		// hkdf only fails after 255 blocks of output.
		panic("common: hkdf expansion failed: " + err.Error())
	}
	return key
}

// CSRFToken binds a form to one session.
func CSRFToken(key []byte, sessionID string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(sessionID))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func ValidCSRF(key []byte, sessionID, token string) bool {
	if token == "" || sessionID == "" {
		return false
	}
	return hmac.Equal([]byte(CSRFToken(key, sessionID)), []byte(token))
}
