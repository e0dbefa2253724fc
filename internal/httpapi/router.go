package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/weararcstarz/arcstar/internal/auth"
	"github.com/weararcstarz/arcstar/internal/origin"
	"github.com/weararcstarz/arcstar/internal/ratelimit"
	"github.com/weararcstarz/arcstar/internal/service"
)

type RateLimiter interface {
	Allow(ctx context.Context, key string) (ratelimit.Decision, error)
}

type RouterOpts struct {
	Logger       *slog.Logger
	IsProd       bool
	ReportPanics bool

	DBPing func(context.Context) error

	Waitlist *service.WaitlistService
	Admin    *service.AdminService

	Origins       *origin.Guard
	APILimiter    RateLimiter
	SignupLimiter RateLimiter
	LoginGuard    *ratelimit.LoginGuard
	LoginDelay    auth.LoginDelay
	// Proxies lists the reverse proxies whose X-Forwarded-For is honoured.
	Proxies ratelimit.ProxyTrust

	Signer        auth.Signer
	AdminPassword string
	TokenSecret   string
	// CookieSecure forces Secure cookies, e.g. when the public URL is https.
	CookieSecure bool

	Now func() time.Time
}

func NewRouter(opts RouterOpts) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	guard := opts.Origins
	if guard == nil {
		guard = origin.NewGuard(nil)
	}

	api := &api{
		logger:        logger,
		isProd:        opts.IsProd,
		dbPing:        opts.DBPing,
		waitlist:      opts.Waitlist,
		admin:         opts.Admin,
		origins:       guard,
		apiLimiter:    opts.APILimiter,
		signupLimiter: opts.SignupLimiter,
		loginGuard:    opts.LoginGuard,
		loginDelay:    opts.LoginDelay,
		proxies:       opts.Proxies,
		signer:        opts.Signer,
		adminPassword: opts.AdminPassword,
		tokenSecret:   opts.TokenSecret,
		cookieSecure:  opts.CookieSecure,
		now:           now,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", api.handleHealthz)
	for _, prefix := range []string{"", "/api"} {
		mux.HandleFunc(prefix+"/join-waitlist", api.handleJoinWaitlist)
		mux.HandleFunc(prefix+"/admin", api.handleAdmin)
		mux.HandleFunc(prefix+"/unsubscribe", api.handleUnsubscribe)
	}

	root := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h, pattern := mux.Handler(r)
		if pattern == "" {
			WriteError(w, http.StatusNotFound, "Not found")
			return
		}
		h.ServeHTTP(w, r)
	})

	var h http.Handler = root
	h = guard.CORS()(h)
	h = RequestLogger(logger)(h)
	h = RequestID()(h)
	h = Recoverer(logger, opts.IsProd, opts.ReportPanics)(h)
	return h
}

type api struct {
	logger *slog.Logger
	isProd bool

	dbPing func(context.Context) error

	waitlist *service.WaitlistService
	admin    *service.AdminService

	origins       *origin.Guard
	apiLimiter    RateLimiter
	signupLimiter RateLimiter
	loginGuard    *ratelimit.LoginGuard
	loginDelay    auth.LoginDelay
	proxies       ratelimit.ProxyTrust

	signer        auth.Signer
	adminPassword string
	tokenSecret   string
	cookieSecure  bool

	now func() time.Time
}

func (a *api) secureCookies(r *http.Request) bool {
	return a.cookieSecure || auth.IsSecureRequest(r)
}

func (a *api) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	if a.dbPing != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 1*time.Second)
		defer cancel()
		if err := a.dbPing(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("db down"))
			return
		}
	}

	_, _ = w.Write([]byte("ok"))
}
