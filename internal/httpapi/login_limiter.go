package httpapi

import (
	"net/http"

	"github.com/weararcstarz/arcstar/internal/domain"
)

// allow applies lim to the client address and writes the 429 itself when the
// request is over the limit. A limiter error lets the request through.
func (a *api) allow(w http.ResponseWriter, r *http.Request, lim RateLimiter) bool {
	if lim == nil {
		return true
	}
	d, err := lim.Allow(r.Context(), a.clientIP(r))
	if err != nil {
		a.logger.Warn("rate limiter failed", "path", r.URL.Path, "err", err)
		return true
	}
	if !d.Allowed {
		WriteDomainError(w, domain.NewRateLimitError(d.RetryAfter))
		return false
	}
	return true
}

func (a *api) loginKey(r *http.Request) string {
	return "login:" + a.clientIP(r)
}

// checkLogin reports whether the client may try a password. A locked client
// gets a 429 with the remaining lock time.
func (a *api) checkLogin(w http.ResponseWriter, r *http.Request) bool {
	if a.loginGuard == nil {
		return true
	}
	ok, retry := a.loginGuard.Check(a.loginKey(r))
	if !ok {
		WriteRateLimited(w, retry, "Too many login attempts. Please try again later.")
	}
	return ok
}

// loginFailed records a bad password, waits out the login delay and writes
// either 401 or, when this failure triggered a lock, 429.
func (a *api) loginFailed(w http.ResponseWriter, r *http.Request) {
	retry := 0
	if a.loginGuard != nil {
		retry = a.loginGuard.NoteFailure(a.loginKey(r))
	}
	a.loginDelay.Wait(r.Context())

	a.logger.Warn("admin login failed", "ip", a.clientIP(r), "locked_for_s", retry)
	if retry > 0 {
		WriteRateLimited(w, retry, "Too many login attempts. Please try again later.")
		return
	}
	WriteError(w, http.StatusUnauthorized, "Invalid password")
}

func (a *api) loginSucceeded(r *http.Request) {
	if a.loginGuard != nil {
		a.loginGuard.Reset(a.loginKey(r))
	}
}
