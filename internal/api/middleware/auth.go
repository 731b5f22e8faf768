package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/cloo-solutions/supportdesk/internal/api"
	"github.com/cloo-solutions/supportdesk/internal/domain"
)

type contextKey string

const OwnerKey contextKey = "owner"

// TokenValidator resolves a bearer token to the owner it acts for.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (string, error)
}

// StaticToken accepts a single configured token.
type StaticToken struct {
	token string
	owner string
}

func NewStaticToken(token, owner string) *StaticToken {
	return &StaticToken{token: token, owner: owner}
}

func (s *StaticToken) ValidateToken(ctx context.Context, token string) (string, error) {
	if s.token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(s.token)) != 1 {
		return "", domain.ErrInvalidAPIToken
	}
	return s.owner, nil
}

func APIKeyAuth(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				api.Error(w, http.StatusUnauthorized, "missing authorization header")
				return
			}

			if !strings.HasPrefix(authHeader, "Bearer ") {
				api.Error(w, http.StatusUnauthorized, "invalid authorization format")
				return
			}

			token := strings.TrimPrefix(authHeader, "Bearer ")

			owner, err := validator.ValidateToken(r.Context(), token)
			if err != nil {
				api.Error(w, http.StatusUnauthorized, "invalid api token")
				return
			}

			recordOwner(r.Context(), owner)
			next.ServeHTTP(w, r.WithContext(WithOwner(r.Context(), owner)))
		})
	}
}

// WithOwner returns a context carrying owner, as APIKeyAuth sets it.
func WithOwner(ctx context.Context, owner string) context.Context {
	return context.WithValue(ctx, OwnerKey, owner)
}

func GetOwner(ctx context.Context) string {
	owner, _ := ctx.Value(OwnerKey).(string)
	return owner
}
