package security

import (
	"encoding/json"
	"net/http"
)

// MaxBodySizeMiddleware limits request bodies to maxSizeKB kilobytes. Requests
// that declare a larger Content-Length are rejected before the handler runs.
func MaxBodySizeMiddleware(maxSizeKB int) func(http.Handler) http.Handler {
	maxBytes := int64(maxSizeKB) * 1024

	return func(next http.Handler) http.Handler {
		if maxBytes <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusRequestEntityTooLarge)
				json.NewEncoder(w).Encode(map[string]any{
					"error": map[string]any{
						"code":    "PAYLOAD_TOO_LARGE",
						"message": "Request body too large",
					},
				})
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}
