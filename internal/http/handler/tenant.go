package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"inboxrelay/internal/account"
	"inboxrelay/internal/audit"
)

type AccountLookup interface {
	Active(ctx context.Context, id uuid.UUID) (*account.Account, error)
}

type RateLimiter interface {
	Allow(key string) bool
}

// Tenants resolves the accountId an extension call names. Every failure writes
// the response; callers only continue on ok.
type Tenants struct {
	Accounts AccountLookup
	Audit    audit.Recorder
	Limiter  RateLimiter
	Logger   *slog.Logger
}

func (t *Tenants) resolve(w http.ResponseWriter, r *http.Request, raw string) (uuid.UUID, bool) {
	ctx := r.Context()
	raw = strings.TrimSpace(raw)
	if raw == "" {
		writeError(w, http.StatusBadRequest, "accountId is required")
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		t.Audit.Record(ctx, audit.Event{
			Kind:      audit.KindInvalidAccountID,
			AccountID: raw,
			Reason:    "accountId is not a valid id",
		})
		writeError(w, http.StatusBadRequest, "Invalid accountId format")
		return uuid.Nil, false
	}

	if _, err := t.Accounts.Active(ctx, id); err != nil {
		switch {
		case errors.Is(err, account.ErrNotFound):
			writeError(w, http.StatusNotFound, "Account not found")
		case errors.Is(err, account.ErrInactive):
			t.Audit.Record(ctx, audit.Event{
				Kind:         audit.KindUnauthorizedAccess,
				AccountID:    id.String(),
				ResourceType: "Account",
				ResourceID:   id.String(),
				Reason:       "account is not active",
			})
			writeError(w, http.StatusForbidden, "Account is not active")
		default:
			t.Logger.ErrorContext(ctx, "load account", "account_id", id, "err", err)
			writeError(w, http.StatusInternalServerError, "Server error")
		}
		return uuid.Nil, false
	}

	if t.Limiter != nil && !t.Limiter.Allow(id.String()) {
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusTooManyRequests, "Too many requests")
		return uuid.Nil, false
	}
	return id, true
}
