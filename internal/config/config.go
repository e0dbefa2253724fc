package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/weararcstarz/arcstar/internal/auth"
	"github.com/weararcstarz/arcstar/internal/email"
	"github.com/weararcstarz/arcstar/internal/ratelimit"
)

type Config struct {
	Env       string
	Addr      string
	LogLevel  string
	PublicURL *url.URL
	// BaseURLs are the extra origins allowed besides the public URL and the
	// request's own host.
	BaseURLs []string

	DBDSN        string
	WaitlistFile string

	AdminPassword string
	TokenSecret   string
	SessionTTL    time.Duration

	APIRateLimit     int
	APIRateWindow    time.Duration
	SignupRateLimit  int
	SignupRateWindow time.Duration

	LoginMaxAttempts int
	LoginWindow      time.Duration
	LoginLockBase    time.Duration
	LoginLockMax     time.Duration

	// TrustedProxies are the reverse proxies whose X-Forwarded-For is used
	// for rate limiting. Empty means key on the socket peer.
	TrustedProxies ratelimit.ProxyTrust

	Mail             email.Settings
	MailFrom         string
	MailFromName     string
	AdminNotifyEmail string
	BrandName        string

	SentryDSN string
}

// Load reads the .env file named by APP_ENV_FILE (default .env) into the
// process environment, without overriding variables that are already set, and
// then parses the environment.
func Load() (Config, error) {
	path := os.Getenv("APP_ENV_FILE")
	explicit := path != ""
	if !explicit {
		path = ".env"
	}
	if err := loadDotEnvFile(path, os.Setenv, os.Getenv); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("APP_ENV_FILE: %w", err)
		}
	}
	return LoadFromEnv(os.Getenv)
}

func loadDotEnvFile(path string, setenv func(string, string) error, getenv func(string) string) error {
	vars, err := godotenv.Read(path)
	if err != nil {
		return err
	}
	for k, v := range vars {
		if v == "" || getenv(k) != "" {
			continue
		}
		if err := setenv(k, v); err != nil {
			return fmt.Errorf("set %s: %w", k, err)
		}
	}
	return nil
}

func LoadFromEnv(getenv func(string) string) (Config, error) {
	cfg := Config{
		Env:           getenv("APP_ENV"),
		Addr:          getenv("APP_ADDR"),
		LogLevel:      getenv("APP_LOG_LEVEL"),
		DBDSN:         firstNonEmpty(getenv("APP_DB_DSN"), getenv("DATABASE_URL"), getenv("POSTGRES_URL")),
		WaitlistFile:  strings.TrimSpace(getenv("APP_WAITLIST_FILE")),
		AdminPassword: strings.TrimSpace(getenv("APP_ADMIN_PASSWORD")),
		SentryDSN:     strings.TrimSpace(getenv("APP_SENTRY_DSN")),
		BrandName:     strings.TrimSpace(getenv("APP_BRAND_NAME")),
	}

	if cfg.Env == "" {
		cfg.Env = "dev"
	}
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:8080"
	}
	if cfg.WaitlistFile == "" {
		cfg.WaitlistFile = "waitlist.json"
	}
	if cfg.BrandName == "" {
		cfg.BrandName = "ARCSTARZ"
	}

	switch cfg.Env {
	case "dev", "prod", "test":
	default:
		return Config{}, errors.New("APP_ENV: must be one of dev, test, prod")
	}

	publicURLRaw := getenv("APP_PUBLIC_URL")
	if publicURLRaw != "" {
		parsed, err := url.Parse(publicURLRaw)
		if err != nil {
			return Config{}, fmt.Errorf("APP_PUBLIC_URL: %w", err)
		}
		if !parsed.IsAbs() || parsed.Host == "" {
			return Config{}, errors.New("APP_PUBLIC_URL: must be an absolute URL")
		}
		switch parsed.Scheme {
		case "http", "https":
		default:
			return Config{}, errors.New("APP_PUBLIC_URL: scheme must be http or https")
		}
		cfg.PublicURL = parsed
	}
	cfg.BaseURLs = append(parseList(getenv("APP_BASE_URLS")), parseList(getenv("APP_ALLOWED_ORIGINS"))...)

	proxies, err := ratelimit.ParseTrustedProxies(parseList(getenv("APP_TRUSTED_PROXIES")))
	if err != nil {
		return Config{}, fmt.Errorf("APP_TRUSTED_PROXIES: %w", err)
	}
	cfg.TrustedProxies = proxies

	durations := []struct {
		name string
		dst  *time.Duration
		def  time.Duration
	}{
		{"APP_SESSION_TTL", &cfg.SessionTTL, 8 * time.Hour},
		{"APP_API_RATE_WINDOW", &cfg.APIRateWindow, time.Minute},
		{"APP_SIGNUP_RATE_WINDOW", &cfg.SignupRateWindow, 10 * time.Minute},
		{"APP_LOGIN_WINDOW", &cfg.LoginWindow, 15 * time.Minute},
		{"APP_LOGIN_LOCK_BASE", &cfg.LoginLockBase, time.Minute},
		{"APP_LOGIN_LOCK_MAX", &cfg.LoginLockMax, 30 * time.Minute},
	}
	for _, d := range durations {
		if *d.dst, err = parseDuration(getenv, d.name, d.def); err != nil {
			return Config{}, err
		}
	}
	if cfg.LoginLockMax < cfg.LoginLockBase {
		return Config{}, errors.New("APP_LOGIN_LOCK_MAX: must be >= APP_LOGIN_LOCK_BASE")
	}

	ints := []struct {
		name string
		dst  *int
		def  int
	}{
		{"APP_API_RATE_LIMIT", &cfg.APIRateLimit, 60},
		{"APP_SIGNUP_RATE_LIMIT", &cfg.SignupRateLimit, 5},
		{"APP_LOGIN_MAX_ATTEMPTS", &cfg.LoginMaxAttempts, 5},
		{"SMTP_PORT", &cfg.Mail.SMTP.Port, 587},
	}
	for _, n := range ints {
		if *n.dst, err = parsePositiveInt(getenv, n.name, n.def); err != nil {
			return Config{}, err
		}
	}

	cfg.Mail.Transport = strings.ToLower(strings.TrimSpace(getenv("APP_MAIL_TRANSPORT")))
	if cfg.Mail.Transport == "" {
		cfg.Mail.Transport = email.TransportAuto
	}
	switch cfg.Mail.Transport {
	case email.TransportAuto, email.TransportSMTP, email.TransportSES, email.TransportNone:
	default:
		return Config{}, errors.New("APP_MAIL_TRANSPORT: must be one of auto, smtp, ses, none")
	}

	cfg.Mail.SMTP.Host = firstNonEmpty(strings.TrimSpace(getenv("SMTP_HOST")), "smtp.gmail.com")
	cfg.Mail.SMTP.Username = strings.TrimSpace(getenv("SMTP_USERNAME"))
	cfg.Mail.SMTP.Password = getenv("SMTP_PASSWORD")
	cfg.Mail.SMTP.TLSMode = strings.ToLower(firstNonEmpty(strings.TrimSpace(getenv("SMTP_TLS_MODE")), "starttls"))
	switch cfg.Mail.SMTP.TLSMode {
	case "starttls", "tls", "none":
	default:
		return Config{}, errors.New("SMTP_TLS_MODE: must be one of starttls, tls, none")
	}

	cfg.Mail.SES.Region = firstNonEmpty(strings.TrimSpace(getenv("APP_SES_REGION")), "us-east-1")
	cfg.Mail.SES.AccessKey = strings.TrimSpace(getenv("APP_SES_ACCESS_KEY"))
	cfg.Mail.SES.SecretKey = strings.TrimSpace(getenv("APP_SES_SECRET_KEY"))

	cfg.MailFrom = firstNonEmpty(strings.TrimSpace(getenv("APP_MAIL_FROM")), cfg.Mail.SMTP.Username)
	cfg.MailFromName = firstNonEmpty(strings.TrimSpace(getenv("APP_MAIL_FROM_NAME")), cfg.BrandName)
	cfg.AdminNotifyEmail = firstNonEmpty(strings.TrimSpace(getenv("APP_ADMIN_NOTIFY_EMAIL")), cfg.MailFrom)

	// The token secret falls back to the SMTP password so older deployments
	// keep working without a new variable.
	cfg.TokenSecret = auth.DeriveTokenSecret(firstNonEmpty(getenv("APP_ADMIN_TOKEN_SECRET"), cfg.Mail.SMTP.Password))

	if cfg.IsProd() {
		if cfg.PublicURL == nil {
			return Config{}, errors.New("APP_PUBLIC_URL: required in prod")
		}
		if cfg.Mail.ResolveTransport() != email.TransportNone && cfg.MailFrom == "" {
			return Config{}, errors.New("APP_MAIL_FROM: required in prod when mail is enabled")
		}
	}

	return cfg, nil
}

func (c Config) IsProd() bool { return c.Env == "prod" }

func (c Config) CookieSecure() bool {
	if c.PublicURL != nil {
		return c.PublicURL.Scheme == "https"
	}
	return c.IsProd()
}

// AllowedBaseURLs returns the public URL followed by the extra base URLs.
func (c Config) AllowedBaseURLs() []string {
	out := make([]string, 0, len(c.BaseURLs)+1)
	if c.PublicURL != nil {
		out = append(out, c.PublicURL.String())
	}
	return append(out, c.BaseURLs...)
}

func (c Config) PublicURLString() string {
	if c.PublicURL == nil {
		return ""
	}
	return strings.TrimRight(c.PublicURL.String(), "/")
}

func parseDuration(getenv func(string) string, name string, def time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(getenv(name))
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s: must be > 0", name)
	}
	return d, nil
}

func parsePositiveInt(getenv func(string) string, name string, def int) (int, error) {
	raw := strings.TrimSpace(getenv(name))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: must be an integer", name)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%s: must be > 0", name)
	}
	return n, nil
}

func parseList(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	seen := make(map[string]bool, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
