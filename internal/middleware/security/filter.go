// Package security provides request filtering and body size limits.
package security

import (
	"encoding/json"
	"net/http"
	"net/url"
	"path"
	"strings"
)

// Config holds the configuration for security middleware
type Config struct {
	FilterEnabled bool
	MaxBodySizeKB int
}

// allowedPrefixes are the only path roots the server answers
var allowedPrefixes = []string{
	"/api/v1/",
}

var allowedExact = map[string]bool{
	"/":                true,
	"/health":          true,
	"/healthz":         true,
	"/readyz":          true,
	"/metrics":         true,
	"/api/v1/sessions": true,
}

// FilterMiddleware rejects requests outside the served path space and requests
// whose path escapes its root after decoding.
func FilterMiddleware(enabled bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !enabled {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if reason := inspect(r.URL); reason != "" {
				writeBlocked(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// inspect returns a non-empty reason when the URL should be blocked
func inspect(u *url.URL) string {
	raw := u.EscapedPath()

	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return "undecodable path"
	}
	// Decode twice to catch %252e style double encoding
	if twice, err := url.PathUnescape(decoded); err == nil {
		decoded = twice
	}

	if strings.ContainsRune(decoded, 0) {
		return "nul byte"
	}
	if strings.Contains(decoded, "\\") {
		return "backslash"
	}
	for _, seg := range strings.Split(decoded, "/") {
		if seg == ".." {
			return "traversal"
		}
	}
	if cleaned := path.Clean(decoded); cleaned != strings.TrimSuffix(decoded, "/") && cleaned != decoded {
		return "unclean path"
	}

	if allowedExact[decoded] {
		return ""
	}
	for _, p := range allowedPrefixes {
		if strings.HasPrefix(decoded, p) {
			return ""
		}
	}
	return "unknown root"
}

// writeBlocked writes a generic 400 that does not say which rule fired
func writeBlocked(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"code":    "BAD_REQUEST",
			"message": "Invalid request",
		},
	})
}
