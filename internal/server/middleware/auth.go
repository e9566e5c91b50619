package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
)

// Auth guards the API with a shared key, accepted as a Bearer token or an
// X-API-Key header. An empty apiKey disables the check. CORS preflights and
// the paths in public always pass.
func Auth(apiKey string, public ...string) func(http.Handler) http.Handler {
	open := make(map[string]struct{}, len(public))
	for _, p := range public {
		open[p] = struct{}{}
	}
	want := []byte(apiKey)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, isPublic := open[r.URL.Path]
			if apiKey == "" || isPublic || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			switch token := requestToken(r); {
			case token == "":
				deny(w, "missing authentication token")
			case subtle.ConstantTimeCompare([]byte(token), want) != 1:
				deny(w, "invalid authentication token")
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

// requestToken reads the key from Authorization, then X-API-Key. Browsers
// cannot set headers on a WebSocket handshake, so /ws also takes ?token=.
func requestToken(r *http.Request) string {
	if scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " "); ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}
	if key := strings.TrimSpace(r.Header.Get("X-API-Key")); key != "" {
		return key
	}
	if r.URL.Path == "/ws" {
		return strings.TrimSpace(r.URL.Query().Get("token"))
	}
	return ""
}

func deny(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
