package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/weararcstarz/arcstar/internal/domain"
)

func TestHashPassword_NonDeterministic(t *testing.T) {
	p := "correct horse battery staple"
	h1, err := HashPassword(p)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	h2, err := HashPassword(p)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if h1 == h2 {
		t.Fatalf("expected different hashes for same password")
	}
}

func TestVerifyPassword(t *testing.T) {
	p := "correct horse battery staple"
	h, err := HashPassword(p)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}

	ok, err := VerifyPassword(h, p)
	if err != nil {
		t.Fatalf("VerifyPassword: %v", err)
	}
	if !ok {
		t.Fatalf("expected password to verify")
	}

	ok, err = VerifyPassword(h, "wrong password")
	if err != nil {
		t.Fatalf("VerifyPassword: %v", err)
	}
	if ok {
		t.Fatalf("expected wrong password to fail verification")
	}
}

func TestSecureCompare(t *testing.T) {
	assert.True(t, SecureCompare("hunter2hunter2", "hunter2hunter2"))
	assert.False(t, SecureCompare("hunter2hunter2", "hunter2hunter3"))
	assert.False(t, SecureCompare("short", "shorter"))
	assert.False(t, SecureCompare("", "x"))
	assert.True(t, SecureCompare("", ""))
}

func TestVerifyAdminPassword(t *testing.T) {
	assert.True(t, VerifyAdminPassword("correct horse battery", "correct horse battery"))
	assert.False(t, VerifyAdminPassword("correct horse battery", "correct horse"))
	assert.False(t, VerifyAdminPassword("", ""))

	h, err := HashPassword("correct horse battery")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	assert.True(t, VerifyAdminPassword(h, "correct horse battery"))
	assert.False(t, VerifyAdminPassword(h, "wrong"))
	assert.False(t, VerifyAdminPassword("$argon2id$garbage", "x"))
}

func TestValidateAdminConfig(t *testing.T) {
	secret := DeriveTokenSecret(strings.Repeat("s", 20))

	assert.NoError(t, ValidateAdminConfig("twelve-chars", secret))
	assert.True(t, errors.Is(ValidateAdminConfig("", secret), domain.ErrMisconfigured))
	assert.True(t, errors.Is(ValidateAdminConfig("short", secret), domain.ErrMisconfigured))
	assert.True(t, errors.Is(ValidateAdminConfig("twelve-chars", ""), domain.ErrMisconfigured))
	assert.True(t, errors.Is(ValidateAdminConfig("twelve-chars", DeriveTokenSecret("x")), domain.ErrMisconfigured))
	assert.NoError(t, ValidateAdminConfig("$argon2id$v=19$m=1,t=1,p=1$c2FsdA$a2V5", secret))
}

func TestUnsubscribeToken(t *testing.T) {
	tok := SignUnsubscribe(" Jane@Example.com ", testSecret)
	assert.True(t, VerifyUnsubscribe("jane@example.com", tok, testSecret))
	assert.False(t, VerifyUnsubscribe("john@example.com", tok, testSecret))
	assert.False(t, VerifyUnsubscribe("jane@example.com", tok, DeriveTokenSecret("other")))
	assert.False(t, VerifyUnsubscribe("jane@example.com", "", testSecret))
	assert.False(t, VerifyUnsubscribe("jane@example.com", "%%%", testSecret))
	assert.False(t, VerifyUnsubscribe("jane@example.com", tok, ""))
	assert.False(t, VerifyUnsubscribe("jane@example.com", flipPadBit(t, tok), testSecret))
}

func TestLoginDelay(t *testing.T) {
	d := LoginDelay{Min: 10 * time.Millisecond, Jitter: 5 * time.Millisecond}
	for i := 0; i < 20; i++ {
		got := d.Duration()
		assert.GreaterOrEqual(t, got, 10*time.Millisecond)
		assert.Less(t, got, 15*time.Millisecond)
	}

	assert.Equal(t, time.Duration(0), LoginDelay{}.Duration())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	LoginDelay{Min: time.Hour}.Wait(ctx)
	assert.Less(t, time.Since(start), time.Second)
}
