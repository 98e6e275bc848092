package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
)

// APIKeyAuth guards the admin API. Ingress endpoints stay public because
// they carry their own authentication (HMAC signatures, shared tokens);
// health, version and the metrics scrape are public by convention.
//
// Keys come from the PIPEWISE_API_KEYS environment variable as a
// comma-separated list. An empty list disables the check, which is the
// single-operator development default.
type APIKeyAuth struct {
	mu   sync.RWMutex
	keys []string
}

// NewAPIKeyAuth builds the middleware from a comma-separated key list.
func NewAPIKeyAuth(keysCSV string) *APIKeyAuth {
	a := &APIKeyAuth{}
	for _, key := range strings.Split(keysCSV, ",") {
		if key = strings.TrimSpace(key); key != "" {
			a.keys = append(a.keys, key)
		}
	}
	return a
}

// Enabled reports whether any key is configured.
func (a *APIKeyAuth) Enabled() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.keys) > 0
}

// Middleware enforces the key on non-public paths.
func (a *APIKeyAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Enabled() || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		key := extractAPIKey(r)
		if key == "" {
			respondUnauthorized(w, "API key required: set Authorization: Bearer <key> or X-API-Key")
			return
		}
		if !a.validate(key) {
			respondUnauthorized(w, "invalid API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *APIKeyAuth) validate(candidate string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	// Constant-time comparison over every key so timing reveals nothing.
	ok := false
	for _, key := range a.keys {
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(key)) == 1 {
			ok = true
		}
	}
	return ok
}

func extractAPIKey(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.Header.Get("X-API-Key")
}

func isPublicPath(path string) bool {
	switch path {
	case "/health", "/version", "/metrics":
		return true
	}
	return strings.HasPrefix(path, "/ingress/")
}

func respondUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="pipewise"`)
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{
		"error":   "unauthorized",
		"message": msg,
	})
}
