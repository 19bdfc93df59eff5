package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"inboxrelay/internal/action"
)

const InstanceIDHeader = "X-Extension-Instance-Id"

type ActionQueue interface {
	Claim(ctx context.Context, accountID uuid.UUID, owner string) ([]action.Claimed, error)
	Complete(ctx context.Context, accountID, id uuid.UUID, out action.Outcome) (action.Completion, error)
}

type ActionHandler struct {
	Queue   ActionQueue
	Tenants *Tenants
}

type actionDTO struct {
	ID      uuid.UUID       `json:"id"`
	Type    action.Type     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func (h *ActionHandler) Pending(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.Tenants.resolve(w, r, r.URL.Query().Get("accountId"))
	if !ok {
		return
	}

	claimed, err := h.Queue.Claim(r.Context(), accountID, r.Header.Get(InstanceIDHeader))
	if err != nil {
		h.Tenants.Logger.ErrorContext(r.Context(), "claim actions", "account_id", accountID, "err", err)
		writeError(w, http.StatusInternalServerError, "Server error")
		return
	}

	out := make([]actionDTO, 0, len(claimed))
	for _, c := range claimed {
		p := json.RawMessage(c.Payload)
		if len(p) == 0 {
			p = json.RawMessage(`{}`)
		}
		out = append(out, actionDTO{ID: c.ID, Type: c.Type, Payload: p})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    map[string]any{"actions": out},
	})
}

type completeReq struct {
	Success      *bool  `json:"success"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

func (h *ActionHandler) Complete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid action id")
		return
	}
	var req completeReq
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}
	if req.Success == nil {
		writeError(w, http.StatusBadRequest, "success is required")
		return
	}

	accountID, ok := h.Tenants.resolve(w, r, r.URL.Query().Get("accountId"))
	if !ok {
		return
	}

	res, err := h.Queue.Complete(r.Context(), accountID, id, action.Outcome{
		Success:      *req.Success,
		ErrorCode:    req.ErrorCode,
		ErrorMessage: req.ErrorMessage,
	})
	switch {
	case errors.Is(err, action.ErrNotFound):
		writeError(w, http.StatusNotFound, "Action not found")
		return
	case errors.Is(err, action.ErrNotClaimed):
		writeError(w, http.StatusConflict, "Action is not in processing state")
		return
	case err != nil:
		h.Tenants.Logger.ErrorContext(r.Context(), "complete action", "action_id", id, "err", err)
		writeError(w, http.StatusInternalServerError, "Server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"willRetry": res.WillRetry,
	})
}
