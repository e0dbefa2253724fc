package domain

import (
	"regexp"
	"strings"
)

const (
	maxEmailLength = 254
	maxLocalLength = 64
)

var emailPattern = regexp.MustCompile("^[a-z0-9.!#$%&'*+/=?^_`{|}~-]+@" +
	`[a-z0-9](?:[a-z0-9-]{0,61}[a-z0-9])?(?:\.[a-z0-9](?:[a-z0-9-]{0,61}[a-z0-9])?)+$`)

func NormalizeEmail(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// IsValidEmail reports whether v, once normalized, is a deliverable-looking
// address. It is deliberately stricter than RFC 5322: no quoted local parts,
// no IP literals and at least one dot in the domain.
func IsValidEmail(v string) bool {
	email := NormalizeEmail(v)
	if email == "" || len(email) > maxEmailLength {
		return false
	}
	if strings.Contains(email, "..") {
		return false
	}
	if strings.Count(email, "@") != 1 {
		return false
	}

	local, domainPart, _ := strings.Cut(email, "@")
	if local == "" || domainPart == "" {
		return false
	}
	if len(local) > maxLocalLength || strings.HasPrefix(local, ".") || strings.HasSuffix(local, ".") {
		return false
	}

	return emailPattern.MatchString(email)
}

func NormalizeName(raw string) string {
	name := strings.TrimSpace(raw)
	if name == "" {
		return DefaultSubscriberName
	}
	return name
}

// RedactEmail keeps the first character of the local part and the domain,
// for log lines.
func RedactEmail(email string) string {
	local, domainPart, ok := strings.Cut(email, "@")
	if !ok || local == "" {
		return "***"
	}
	return local[:1] + "***@" + domainPart
}
