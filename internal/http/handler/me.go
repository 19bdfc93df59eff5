package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"inboxrelay/internal/account"
	"inboxrelay/internal/auth"
)

type AccountReader interface {
	Get(ctx context.Context, id uuid.UUID) (*account.Account, error)
}

type MeHandler struct {
	Accounts AccountReader
}

type meDTO struct {
	ID          uuid.UUID        `json:"id"`
	Email       string           `json:"email"`
	Username    string           `json:"username"`
	Status      account.Status   `json:"status"`
	Settings    account.Settings `json:"settings"`
	LastLoginAt *time.Time       `json:"lastLoginAt"`
	CreatedAt   time.Time        `json:"createdAt"`
}

func (h *MeHandler) Me(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.AccountIDFromContext(r.Context())
	acc, err := h.Accounts.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Account not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data": meDTO{
			ID:          acc.ID,
			Email:       acc.Email,
			Username:    acc.Username,
			Status:      acc.Status,
			Settings:    acc.Settings,
			LastLoginAt: acc.LastLoginAt,
			CreatedAt:   acc.CreatedAt,
		},
	})
}
