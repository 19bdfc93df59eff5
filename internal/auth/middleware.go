package auth

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"inboxrelay/internal/account"
)

type ctxKey string

const accountIDKey ctxKey = "account_id"

const ExtensionKeyHeader = "X-Extension-Key"

func AccountIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	v := ctx.Value(accountIDKey)
	id, ok := v.(uuid.UUID)
	return id, ok
}

func WithAccountID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, accountIDKey, id)
}

// AccountChecker resolves an account and reports account.ErrInactive when it
// exists but is not active.
type AccountChecker interface {
	Active(ctx context.Context, id uuid.UUID) (*account.Account, error)
}

// RequireAuth admits bearer tokens whose account still exists and is active.
func RequireAuth(jwtSvc *JWT, accounts AccountChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := r.Header.Get("Authorization")
			if h == "" || !strings.HasPrefix(h, "Bearer ") {
				unauthorized(w, "Not authorized, no token")
				return
			}
			token := strings.TrimPrefix(h, "Bearer ")

			id, err := jwtSvc.Verify(token)
			if err != nil {
				unauthorized(w, "Not authorized, token failed")
				return
			}

			if _, err := accounts.Active(r.Context(), id); err != nil {
				switch {
				case errors.Is(err, account.ErrNotFound):
					unauthorized(w, "Not authorized, account not found")
				case errors.Is(err, account.ErrInactive):
					writeError(w, http.StatusForbidden, "Account is not active")
				default:
					writeError(w, http.StatusInternalServerError, "Server error")
				}
				return
			}

			next.ServeHTTP(w, r.WithContext(WithAccountID(r.Context(), id)))
		})
	}
}

// RequireExtensionKey admits requests carrying the shared extension secret.
func RequireExtensionKey(key string) func(http.Handler) http.Handler {
	want := []byte(key)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := []byte(r.Header.Get(ExtensionKeyHeader))
			if len(want) == 0 || subtle.ConstantTimeCompare(got, want) != 1 {
				unauthorized(w, "Invalid extension key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func unauthorized(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusUnauthorized, msg)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "message": msg})
}
