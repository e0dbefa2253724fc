package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/weararcstarz/arcstar/internal/auth"
	"github.com/weararcstarz/arcstar/internal/email"
	"github.com/weararcstarz/arcstar/internal/origin"
	"github.com/weararcstarz/arcstar/internal/ratelimit"
	"github.com/weararcstarz/arcstar/internal/service"
	"github.com/weararcstarz/arcstar/internal/store/filestore"
)

const (
	testAdminPassword = "correct horse battery staple"
	testPublicURL     = "https://arcstarz.test"
)

var testTokenSecret = auth.DeriveTokenSecret("0123456789abcdef0123456789")

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []email.Message
}

func (m *recordingMailer) Send(_ context.Context, msg email.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

func (m *recordingMailer) withSubject(subject string) []email.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []email.Message
	for _, msg := range m.sent {
		if msg.Subject == subject {
			out = append(out, msg)
		}
	}
	return out
}

type testEnv struct {
	t      *testing.T
	h      http.Handler
	store  *filestore.Store
	mailer *recordingMailer
	guard  *ratelimit.LoginGuard
	clock  *testClock
}

func newTestEnv(t *testing.T, mods ...func(*RouterOpts)) *testEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := &testClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}

	st := filestore.New(filepath.Join(t.TempDir(), "waitlist.json"))
	mailer := &recordingMailer{}
	renderer, err := email.NewRenderer("ARCSTARZ")
	require.NoError(t, err)

	notifier := &service.Notifier{
		Sender:      mailer,
		Templates:   renderer,
		FromEmail:   "hello@arcstarz.test",
		FromName:    "ARCSTARZ",
		AdminEmail:  "team@arcstarz.test",
		PublicURL:   testPublicURL,
		TokenSecret: testTokenSecret,
	}

	guard := ratelimit.NewLoginGuard(ratelimit.LoginConfig{
		MaxAttempts: 3,
		Window:      15 * time.Minute,
		LockBase:    time.Minute,
		LockMax:     10 * time.Minute,
	})
	guard.SetClock(clock.Now)

	opts := RouterOpts{
		Logger: logger,
		DBPing: st.Ping,
		Waitlist: &service.WaitlistService{
			Store:       st,
			Notifier:    notifier,
			TokenSecret: testTokenSecret,
			Logger:      logger,
			Async:       func(f func()) { f() },
		},
		Admin:         &service.AdminService{Store: st, Notifier: notifier, Logger: logger},
		Origins:       origin.NewGuard([]string{testPublicURL}),
		LoginGuard:    guard,
		Signer:        auth.NewSigner(testTokenSecret, time.Hour),
		AdminPassword: testAdminPassword,
		TokenSecret:   testTokenSecret,
		Now:           clock.Now,
	}
	for _, mod := range mods {
		mod(&opts)
	}

	return &testEnv{
		t:      t,
		h:      NewRouter(opts),
		store:  st,
		mailer: mailer,
		guard:  guard,
		clock:  clock,
	}
}

func (e *testEnv) do(method, target, body string, setup ...func(*http.Request)) *httptest.ResponseRecorder {
	e.t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rdr)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, fn := range setup {
		fn(req)
	}
	rec := httptest.NewRecorder()
	e.h.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) join(name, addr string) *httptest.ResponseRecorder {
	e.t.Helper()
	body, err := json.Marshal(map[string]string{"name": name, "email": addr})
	require.NoError(e.t, err)
	return e.do(http.MethodPost, "/join-waitlist", string(body))
}

// login returns the session cookie from a successful admin login.
func (e *testEnv) login() *http.Cookie {
	e.t.Helper()
	rec := e.do(http.MethodPost, "/admin", `{"action":"login","password":"`+testAdminPassword+`"}`)
	require.Equal(e.t, http.StatusOK, rec.Code, rec.Body.String())
	for _, c := range rec.Result().Cookies() {
		if c.Name == auth.SessionCookieName {
			return c
		}
	}
	e.t.Fatalf("no session cookie in login response")
	return nil
}

func withCookie(c *http.Cookie) func(*http.Request) {
	return func(r *http.Request) { r.AddCookie(c) }
}

func withHeader(k, v string) func(*http.Request) {
	return func(r *http.Request) { r.Header.Set(k, v) }
}

func withRemoteAddr(addr string) func(*http.Request) {
	return func(r *http.Request) { r.RemoteAddr = addr }
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}
