package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/cloo-solutions/supportdesk/internal/logger"
	"github.com/google/uuid"
)

const RequestIDKey contextKey = "request_id"

// RequestID injects a request ID into context and response headers.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" || len(requestID) > 128 {
			requestID = uuid.NewString()
		}

		ctx := context.WithValue(r.Context(), RequestIDKey, requestID)
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID returns the request ID from context.
func GetRequestID(ctx context.Context) string {
	requestID, _ := ctx.Value(RequestIDKey).(string)
	return requestID
}

type responseRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *responseRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

// ownerSlot lets AccessLog read the owner that an inner auth middleware
// resolved, since the inner request context is not visible here.
type ownerSlot struct {
	owner string
}

const ownerSlotKey contextKey = "owner_slot"

// AccessLog emits one structured log line per request.
func AccessLog(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &responseRecorder{ResponseWriter: w}
			slot := &ownerSlot{}

			next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), ownerSlotKey, slot)))

			status := rec.status
			if status == 0 {
				status = http.StatusOK
			}

			kv := []interface{}{
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"bytes", rec.bytes,
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", GetRequestID(r.Context()),
				"remote_addr", clientIP(r),
				"user_agent", r.UserAgent(),
			}
			if slot.owner != "" {
				kv = append(kv, "owner", slot.owner)
			}

			switch {
			case status >= 500:
				log.Error("http request", kv...)
			case status >= 400:
				log.Warn("http request", kv...)
			default:
				log.Info("http request", kv...)
			}
		})
	}
}

// recordOwner publishes the resolved owner to an enclosing AccessLog.
func recordOwner(ctx context.Context, owner string) {
	if slot, ok := ctx.Value(ownerSlotKey).(*ownerSlot); ok {
		slot.owner = owner
	}
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			return strings.TrimSpace(parts[0])
		}
	}

	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
