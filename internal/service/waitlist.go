package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/weararcstarz/arcstar/internal/auth"
	"github.com/weararcstarz/arcstar/internal/domain"
)

const minNameLength = 2

type SubscriberStore interface {
	ListSubscribers(ctx context.Context) ([]domain.Subscriber, error)
	FindByEmail(ctx context.Context, email string) (domain.Subscriber, error)
	AddOrResubscribe(ctx context.Context, name, email string) (domain.AddStatus, error)
	MergeSubscribers(ctx context.Context, rows []domain.MergeRow) (int, error)
	UnsubscribeEmail(ctx context.Context, email string) error
}

type SignupNotifier interface {
	SendWelcome(ctx context.Context, name, email string) error
	SendAdminNotification(ctx context.Context, name, email string, status domain.AddStatus) error
}

type WaitlistService struct {
	Store       SubscriberStore
	Notifier    SignupNotifier
	TokenSecret string
	Logger      *slog.Logger

	// Async runs the post-signup emails. Defaults to a new goroutine.
	Async func(func())
}

// Join validates and stores a signup. The returned status is set whenever the
// store was consulted, including on ErrAlreadySubscribed.
func (s *WaitlistService) Join(ctx context.Context, name, addr string) (domain.AddStatus, error) {
	name = SanitizeName(name)
	addr = domain.NormalizeEmail(addr)

	fields := map[string]string{}
	if utf8.RuneCountInString(name) < minNameLength {
		fields["name"] = "Name must be at least 2 characters long"
	}
	if !domain.IsValidEmail(addr) {
		fields["email"] = "Please enter a valid email address"
	}
	if len(fields) > 0 {
		return domain.AddStatusInvalid, domain.NewValidationError(fields)
	}

	status, err := s.Store.AddOrResubscribe(ctx, name, addr)
	if err != nil {
		if errors.Is(err, domain.ErrAlreadySubscribed) {
			return domain.AddStatusDuplicate, err
		}
		return "", fmt.Errorf("add subscriber: %w", err)
	}

	switch status {
	case domain.AddStatusInvalid:
		return status, domain.NewValidationError(map[string]string{"email": "Please enter a valid email address"})
	case domain.AddStatusDuplicate:
		return status, domain.ErrAlreadySubscribed
	}

	logger(s.Logger).Info("waitlist signup", "status", status, "email", domain.RedactEmail(addr))
	s.notify(ctx, name, addr, status)
	return status, nil
}

// notify sends the welcome and admin emails without holding up the response.
// Failures are logged only.
func (s *WaitlistService) notify(ctx context.Context, name, addr string, status domain.AddStatus) {
	if s.Notifier == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	log := logger(s.Logger)

	run := s.Async
	if run == nil {
		run = func(f func()) { go f() }
	}
	run(func() {
		if err := s.Notifier.SendWelcome(ctx, name, addr); err != nil {
			log.Warn("welcome email failed", "email", domain.RedactEmail(addr), "err", err)
		}
		if err := s.Notifier.SendAdminNotification(ctx, name, addr, status); err != nil {
			log.Warn("admin notification failed", "email", domain.RedactEmail(addr), "err", err)
		}
	})
}

func (s *WaitlistService) Unsubscribe(ctx context.Context, addr, token string) error {
	addr = domain.NormalizeEmail(addr)
	if !domain.IsValidEmail(addr) {
		return domain.NewValidationError(map[string]string{"email": "Invalid email"})
	}
	if s.TokenSecret == "" {
		return fmt.Errorf("unsubscribe secret not set: %w", domain.ErrMisconfigured)
	}
	if !auth.VerifyUnsubscribe(addr, strings.TrimSpace(token), s.TokenSecret) {
		return domain.ErrUnauthorized
	}

	if err := s.Store.UnsubscribeEmail(ctx, addr); err != nil {
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrValidation) {
			return err
		}
		return fmt.Errorf("unsubscribe: %w", err)
	}
	logger(s.Logger).Info("unsubscribed", "email", domain.RedactEmail(addr))
	return nil
}

// SanitizeName trims the name and strips angle brackets.
func SanitizeName(raw string) string {
	return strings.TrimSpace(strings.NewReplacer("<", "", ">", "").Replace(raw))
}
