package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"

	"github.com/weararcstarz/arcstar/internal/domain"
)

// SignUnsubscribe returns the token embedded in unsubscribe links.
func SignUnsubscribe(email, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(domain.NormalizeEmail(email)))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// VerifyUnsubscribe compares the encoded token byte for byte, so only the
// exact string SignUnsubscribe produced is accepted.
func VerifyUnsubscribe(email, token, secret string) bool {
	if secret == "" || token == "" {
		return false
	}
	return hmac.Equal([]byte(token), []byte(SignUnsubscribe(email, secret)))
}
