package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	RoleAdmin = "admin"

	// MaxIssuedAtSkew is how far in the future a token's iat may lie.
	MaxIssuedAtSkew = 60 * time.Second

	secretPrefix = "arcstarz-admin-"
)

type Claims struct {
	Role      string `json:"role"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
	Nonce     string `json:"nonce"`
}

func (c Claims) Expiry() time.Time { return time.Unix(c.ExpiresAt, 0).UTC() }

// DeriveTokenSecret turns the configured seed into the HMAC key shared by
// session and unsubscribe tokens. An empty seed yields an empty secret.
func DeriveTokenSecret(seed string) string {
	seed = strings.TrimSpace(seed)
	if seed == "" {
		return ""
	}
	return secretPrefix + seed
}

type Signer struct {
	secret []byte
	ttl    time.Duration
}

func NewSigner(secret string, ttl time.Duration) Signer {
	return Signer{secret: []byte(secret), ttl: ttl}
}

func (s Signer) TTL() time.Duration { return s.ttl }

func (s Signer) Mint(now time.Time) (string, Claims, error) {
	if len(s.secret) == 0 {
		return "", Claims{}, fmt.Errorf("mint token: empty secret")
	}

	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return "", Claims{}, fmt.Errorf("read nonce: %w", err)
	}

	claims := Claims{
		Role:      RoleAdmin,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(s.ttl).Unix(),
		Nonce:     hex.EncodeToString(nonce),
	}
	payload, err := json.Marshal(claims)
	if err != nil {
		return "", Claims{}, fmt.Errorf("marshal claims: %w", err)
	}

	encoded := base64.RawURLEncoding.EncodeToString(payload)
	return encoded + "." + base64.RawURLEncoding.EncodeToString(s.sign(encoded)), claims, nil
}

// Parse returns the claims of a well-formed, correctly signed, unexpired admin
// token. Every failure reports false without saying why.
func (s Signer) Parse(token string, now time.Time) (Claims, bool) {
	if len(s.secret) == 0 || token == "" {
		return Claims{}, false
	}

	payloadB64, sigB64, ok := strings.Cut(token, ".")
	if !ok || payloadB64 == "" || sigB64 == "" || strings.Contains(sigB64, ".") {
		return Claims{}, false
	}

	want := base64.RawURLEncoding.EncodeToString(s.sign(payloadB64))
	if !hmac.Equal([]byte(sigB64), []byte(want)) {
		return Claims{}, false
	}

	payload, err := base64.RawURLEncoding.DecodeString(payloadB64)
	if err != nil {
		return Claims{}, false
	}
	var claims Claims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return Claims{}, false
	}

	if claims.Role != RoleAdmin || claims.ExpiresAt == 0 {
		return Claims{}, false
	}
	nowUnix := now.Unix()
	if nowUnix > claims.ExpiresAt {
		return Claims{}, false
	}
	if claims.IssuedAt > nowUnix+int64(MaxIssuedAtSkew/time.Second) {
		return Claims{}, false
	}

	return claims, true
}

func (s Signer) sign(data string) []byte {
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(data))
	return mac.Sum(nil)
}
