package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/weararcstarz/arcstar/internal/domain"
	"github.com/weararcstarz/arcstar/internal/email"
)

type stubStore struct {
	t *testing.T

	listFunc        func(context.Context) ([]domain.Subscriber, error)
	findFunc        func(context.Context, string) (domain.Subscriber, error)
	addFunc         func(context.Context, string, string) (domain.AddStatus, error)
	mergeFunc       func(context.Context, []domain.MergeRow) (int, error)
	unsubscribeFunc func(context.Context, string) error
}

func (s *stubStore) ListSubscribers(ctx context.Context) ([]domain.Subscriber, error) {
	if s.listFunc != nil {
		return s.listFunc(ctx)
	}
	s.t.Fatalf("ListSubscribers called unexpectedly")
	return nil, errors.New("unexpected call")
}

func (s *stubStore) FindByEmail(ctx context.Context, addr string) (domain.Subscriber, error) {
	if s.findFunc != nil {
		return s.findFunc(ctx, addr)
	}
	s.t.Fatalf("FindByEmail called unexpectedly")
	return domain.Subscriber{}, errors.New("unexpected call")
}

func (s *stubStore) AddOrResubscribe(ctx context.Context, name, addr string) (domain.AddStatus, error) {
	if s.addFunc != nil {
		return s.addFunc(ctx, name, addr)
	}
	s.t.Fatalf("AddOrResubscribe called unexpectedly")
	return "", errors.New("unexpected call")
}

func (s *stubStore) MergeSubscribers(ctx context.Context, rows []domain.MergeRow) (int, error) {
	if s.mergeFunc != nil {
		return s.mergeFunc(ctx, rows)
	}
	s.t.Fatalf("MergeSubscribers called unexpectedly")
	return 0, errors.New("unexpected call")
}

func (s *stubStore) UnsubscribeEmail(ctx context.Context, addr string) error {
	if s.unsubscribeFunc != nil {
		return s.unsubscribeFunc(ctx, addr)
	}
	s.t.Fatalf("UnsubscribeEmail called unexpectedly")
	return errors.New("unexpected call")
}

// recordingMailer captures messages and fails for addresses in failFor.
type recordingMailer struct {
	mu      sync.Mutex
	sent    []email.Message
	failFor map[string]bool
}

func (m *recordingMailer) Send(_ context.Context, msg email.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failFor[msg.ToEmail] {
		return errors.New("mailbox unavailable")
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *recordingMailer) messages() []email.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]email.Message(nil), m.sent...)
}

func newTestNotifier(t *testing.T, mailer Mailer) *Notifier {
	t.Helper()
	r, err := email.NewRenderer("ARCSTARZ")
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	return &Notifier{
		Sender:      mailer,
		Templates:   r,
		FromEmail:   "hello@arcstarz.test",
		FromName:    "ARCSTARZ",
		AdminEmail:  "team@arcstarz.test",
		PublicURL:   "https://arcstarz.test/",
		TokenSecret: "arcstarz-admin-test-secret-value-long-enough",
	}
}
