package httpapi

import (
	"context"
	"net/http"

	"github.com/weararcstarz/arcstar/internal/auth"
	"github.com/weararcstarz/arcstar/internal/domain"
)

type authCtxKey int

const adminClaimsKey authCtxKey = iota

// requireAdmin rejects requests without a valid admin token. Every failure is
// the same 401.
func (a *api) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := a.signer.Parse(auth.TokenFromRequest(r), a.now())
		if !ok {
			WriteDomainError(w, domain.ErrUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), adminClaimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

func CurrentAdmin(ctx context.Context) (auth.Claims, bool) {
	c, ok := ctx.Value(adminClaimsKey).(auth.Claims)
	return c, ok
}

func (a *api) clientIP(r *http.Request) string {
	return a.proxies.ClientIP(r)
}
