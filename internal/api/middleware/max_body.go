package middleware

import (
	"fmt"
	"net/http"

	"github.com/cloo-solutions/supportdesk/internal/api"
)

// DefaultJSONBodyLimit caps JSON request bodies.
const DefaultJSONBodyLimit = 1 << 20

// MaxBodyBytes rejects declared oversize bodies up front and caps the rest
// while they are read.
func MaxBodyBytes(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limit <= 0 || r.Body == nil || r.Body == http.NoBody {
				next.ServeHTTP(w, r)
				return
			}

			if r.ContentLength > limit {
				api.Error(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("request body exceeds %d bytes", limit))
				return
			}

			r.Body = http.MaxBytesReader(w, r.Body, limit)
			next.ServeHTTP(w, r)
		})
	}
}
