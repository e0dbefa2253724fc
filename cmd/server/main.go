package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/raven-go"

	"github.com/weararcstarz/arcstar/internal/auth"
	"github.com/weararcstarz/arcstar/internal/config"
	"github.com/weararcstarz/arcstar/internal/email"
	"github.com/weararcstarz/arcstar/internal/httpapi"
	"github.com/weararcstarz/arcstar/internal/origin"
	"github.com/weararcstarz/arcstar/internal/ratelimit"
	"github.com/weararcstarz/arcstar/internal/service"
	"github.com/weararcstarz/arcstar/internal/store"
)

func main() {
	hashPassword := flag.String("hash-password", "", "print an argon2id hash for APP_ADMIN_PASSWORD and exit")
	flag.Parse()

	if *hashPassword != "" {
		if err := printPasswordHash(*hashPassword); err != nil {
			_, _ = os.Stderr.WriteString(err.Error() + "\n")
			os.Exit(1)
		}
		return
	}

	cfg, err := config.Load()
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server error", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reportPanics := false
	if cfg.SentryDSN != "" {
		if err := raven.SetDSN(cfg.SentryDSN); err != nil {
			return fmt.Errorf("APP_SENTRY_DSN: %w", err)
		}
		raven.SetEnvironment(cfg.Env)
		reportPanics = true
	}

	if err := auth.ValidateAdminConfig(cfg.AdminPassword, cfg.TokenSecret); err != nil {
		// The admin endpoint answers 500 until this is fixed; signups keep working.
		logger.Warn("admin endpoint disabled", "err", err)
	}

	subscribers, err := store.Open(ctx, store.Options{
		DSN:      cfg.DBDSN,
		FilePath: cfg.WaitlistFile,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer subscribers.Close()

	var dbPing func(context.Context) error
	if cfg.DBDSN != "" {
		dbPing = subscribers.Ping
	}

	notifier, err := newNotifier(ctx, cfg)
	if err != nil {
		return err
	}
	if !notifier.Configured() {
		logger.Warn("mail transport not configured; signup emails and broadcasts are disabled")
	}

	loginGuard := ratelimit.NewLoginGuard(ratelimit.LoginConfig{
		MaxAttempts: cfg.LoginMaxAttempts,
		Window:      cfg.LoginWindow,
		LockBase:    cfg.LoginLockBase,
		LockMax:     cfg.LoginLockMax,
	})
	go loginGuard.Run(ctx, time.Minute)

	router := httpapi.NewRouter(httpapi.RouterOpts{
		Logger:       logger,
		IsProd:       cfg.IsProd(),
		ReportPanics: reportPanics,
		DBPing:       dbPing,
		Waitlist: &service.WaitlistService{
			Store:       subscribers,
			Notifier:    notifier,
			TokenSecret: cfg.TokenSecret,
			Logger:      logger,
		},
		Admin: &service.AdminService{
			Store:    subscribers,
			Notifier: notifier,
			Logger:   logger,
		},
		Origins:       origin.NewGuard(cfg.AllowedBaseURLs()),
		APILimiter:    ratelimit.NewLimiter("api", cfg.APIRateLimit, cfg.APIRateWindow),
		SignupLimiter: ratelimit.NewLimiter("signup", cfg.SignupRateLimit, cfg.SignupRateWindow),
		LoginGuard:    loginGuard,
		LoginDelay:    auth.DefaultLoginDelay,
		Proxies:       cfg.TrustedProxies,
		Signer:        auth.NewSigner(cfg.TokenSecret, cfg.SessionTTL),
		AdminPassword: cfg.AdminPassword,
		TokenSecret:   cfg.TokenSecret,
		CookieSecure:  cfg.CookieSecure(),
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "env", cfg.Env, "addr", cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func newNotifier(ctx context.Context, cfg config.Config) (*service.Notifier, error) {
	sender, err := email.NewSender(ctx, cfg.Mail)
	if err != nil {
		return nil, fmt.Errorf("mail transport: %w", err)
	}
	renderer, err := email.NewRenderer(cfg.BrandName)
	if err != nil {
		return nil, fmt.Errorf("email templates: %w", err)
	}

	n := &service.Notifier{
		Templates:   renderer,
		FromEmail:   cfg.MailFrom,
		FromName:    cfg.MailFromName,
		AdminEmail:  cfg.AdminNotifyEmail,
		PublicURL:   cfg.PublicURLString(),
		TokenSecret: cfg.TokenSecret,
	}
	if sender != nil {
		n.Sender = sender
	}
	return n, nil
}

func printPasswordHash(password string) error {
	if len(password) < auth.MinAdminPasswordLength {
		return fmt.Errorf("password must be at least %d characters", auth.MinAdminPasswordLength)
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	fmt.Println(hash)
	return nil
}

func newLogger(cfg config.Config) *slog.Logger {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "info", "":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.IsProd() {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
