package middleware

import (
	"net/http"
	"strings"
)

const (
	corsAllowHeaders  = "Authorization, Content-Type, X-Request-ID"
	corsAllowMethods  = "GET, POST, PATCH, OPTIONS"
	corsExposeHeaders = "X-Request-ID, Retry-After"
	corsMaxAgeSeconds = "600"
)

// OriginPolicy decides which browser origins may talk to the chat API and
// the web chat socket. Origins compare without case or a trailing slash.
type OriginPolicy struct {
	anyOrigin bool
	origins   map[string]struct{}
}

// NewOriginPolicy builds a policy from configured origins. "*" admits any
// origin; blank entries are ignored.
func NewOriginPolicy(origins []string) OriginPolicy {
	p := OriginPolicy{origins: make(map[string]struct{}, len(origins))}
	for _, o := range origins {
		o = normalizeOrigin(o)
		switch o {
		case "":
		case "*":
			p.anyOrigin = true
		default:
			p.origins[o] = struct{}{}
		}
	}
	return p
}

// Open reports whether nothing was configured.
func (p OriginPolicy) Open() bool {
	return !p.anyOrigin && len(p.origins) == 0
}

// Allows reports whether origin is listed or the policy admits any origin.
func (p OriginPolicy) Allows(origin string) bool {
	origin = normalizeOrigin(origin)
	if origin == "" {
		return false
	}
	if p.anyOrigin {
		return true
	}
	_, ok := p.origins[origin]
	return ok
}

func normalizeOrigin(o string) string {
	return strings.ToLower(strings.TrimSuffix(strings.TrimSpace(o), "/"))
}

// CORS decorates chat API responses for the listed frontend origins and
// answers their preflights. A preflight from an unlisted origin gets 403
// instead of reaching the route.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	policy := NewOriginPolicy(allowedOrigins)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := strings.TrimSpace(r.Header.Get("Origin"))
			preflight := r.Method == http.MethodOptions && origin != "" &&
				r.Header.Get("Access-Control-Request-Method") != ""

			h := w.Header()
			h.Add("Vary", "Origin")
			allowed := policy.Allows(origin)
			if allowed {
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Expose-Headers", corsExposeHeaders)
			}

			if !preflight {
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			h.Add("Vary", "Access-Control-Request-Method")
			h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
			h.Set("Access-Control-Allow-Methods", corsAllowMethods)
			h.Set("Access-Control-Max-Age", corsMaxAgeSeconds)
			w.WriteHeader(http.StatusNoContent)
		})
	}
}
