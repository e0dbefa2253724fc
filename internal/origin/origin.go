package origin

import (
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/cors"
)

// DevOrigins are always accepted so the site can be developed against a local
// backend.
var DevOrigins = []string{
	"http://localhost:3000",
	"http://localhost:3001",
	"http://localhost:5173",
	"http://localhost:8080",
	"http://127.0.0.1:3000",
	"http://127.0.0.1:5173",
	"http://127.0.0.1:8080",
}

type Guard struct {
	configured []string
}

// NewGuard normalizes the configured base URLs; entries that are not absolute
// http(s) URLs are ignored.
func NewGuard(baseURLs []string) *Guard {
	g := &Guard{}
	for _, raw := range baseURLs {
		if o, ok := Normalize(raw); ok {
			g.configured = append(g.configured, o)
		}
	}
	return g
}

// AllowedOrigins is recomputed per request because the request's own host is
// always part of the set.
func (g *Guard) AllowedOrigins(r *http.Request) map[string]bool {
	set := make(map[string]bool, 4*len(g.configured)+2*len(DevOrigins)+2)
	add := func(o string) {
		for _, v := range withVariants(o) {
			set[v] = true
		}
	}
	for _, o := range g.configured {
		add(o)
	}
	if o, ok := RequestOrigin(r); ok {
		add(o)
	}
	for _, o := range DevOrigins {
		add(o)
	}
	return set
}

func (g *Guard) IsAllowedOrigin(r *http.Request, raw string) bool {
	o, ok := Normalize(raw)
	if !ok {
		return false
	}
	return g.AllowedOrigins(r)[o]
}

// IsAllowedRequest accepts requests without an Origin header, which browsers
// omit for same-origin GETs and non-browser clients never send.
func (g *Guard) IsAllowedRequest(r *http.Request) bool {
	raw := strings.TrimSpace(r.Header.Get("Origin"))
	if raw == "" {
		return true
	}
	return g.IsAllowedOrigin(r, raw)
}

// CORS answers preflight requests and echoes CORS headers only for allowed
// origins. Disallowed origins get no Access-Control-Allow-Origin header.
func (g *Guard) CORS() func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowOriginFunc:  g.IsAllowedOrigin,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           600,
	})
}

// Normalize reduces raw to scheme://host[:port], lowercased.
func Normalize(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", false
	}
	host := strings.ToLower(u.Host)
	if host == "" {
		return "", false
	}
	return scheme + "://" + host, true
}

// RequestOrigin derives the origin the request was addressed to from its Host
// header.
func RequestOrigin(r *http.Request) (string, bool) {
	host := strings.ToLower(strings.TrimSpace(r.Host))
	if host == "" {
		return "", false
	}
	return Normalize(requestScheme(r, host) + "://" + host)
}

func requestScheme(r *http.Request, host string) string {
	if fwd := r.Header.Get("X-Forwarded-Proto"); fwd != "" {
		proto, _, _ := strings.Cut(fwd, ",")
		proto = strings.ToLower(strings.TrimSpace(proto))
		if proto == "http" || proto == "https" {
			return proto
		}
	}
	if r.TLS != nil {
		return "https"
	}
	if isLocalOrIP(hostname(host)) {
		return "http"
	}
	return "https"
}

func withVariants(o string) []string {
	scheme, host, ok := strings.Cut(o, "://")
	if !ok {
		return []string{o}
	}
	name := hostname(host)
	if isLocalOrIP(name) {
		return []string{o}
	}
	if strings.HasPrefix(host, "www.") {
		return []string{o, scheme + "://" + strings.TrimPrefix(host, "www.")}
	}
	return []string{o, scheme + "://www." + host}
}

func hostname(hostport string) string {
	if h, _, err := net.SplitHostPort(hostport); err == nil {
		return strings.Trim(h, "[]")
	}
	return strings.Trim(hostport, "[]")
}

func isLocalOrIP(name string) bool {
	if name == "localhost" || strings.HasSuffix(name, ".localhost") {
		return true
	}
	return net.ParseIP(name) != nil
}
