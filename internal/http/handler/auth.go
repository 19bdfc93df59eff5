package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"inboxrelay/internal/account"
	"inboxrelay/internal/auth"
)

type LoginStore interface {
	ByEmail(ctx context.Context, email string) (*account.Account, error)
	TouchLogin(ctx context.Context, id uuid.UUID, at time.Time) error
}

type AuthHandler struct {
	Accounts LoginStore
	JWT      *auth.JWT
	Logger   *slog.Logger
}

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginReq
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Please provide email and password")
		return
	}

	acc, err := h.Accounts.ByEmail(r.Context(), req.Email)
	if err != nil {
		if !errors.Is(err, account.ErrNotFound) {
			h.Logger.ErrorContext(r.Context(), "login lookup", "err", err)
			writeError(w, http.StatusInternalServerError, "Server error")
			return
		}
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	if !auth.ComparePassword(acc.PasswordHash, req.Password) {
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	if !acc.Active() {
		writeError(w, http.StatusForbidden, "Account is not active")
		return
	}

	token, err := h.JWT.Sign(acc.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Server error")
		return
	}
	if err := h.Accounts.TouchLogin(r.Context(), acc.ID, time.Now().UTC()); err != nil {
		h.Logger.WarnContext(r.Context(), "touch login", "account_id", acc.ID, "err", err)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"token":   token,
	})
}
