package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"inboxrelay/internal/account"
	"inboxrelay/internal/action"
	"inboxrelay/internal/auth"
	"inboxrelay/internal/message"
)

type ActionLister interface {
	List(ctx context.Context, accountID uuid.UUID, f action.ListFilter) ([]action.Action, error)
}

type MessageLister interface {
	List(ctx context.Context, accountID uuid.UUID, f message.ListFilter) ([]message.Message, error)
}

type SettingsStore interface {
	Get(ctx context.Context, id uuid.UUID) (*account.Account, error)
	UpdateSettings(ctx context.Context, id uuid.UUID, s account.Settings) error
}

// OperatorHandler serves the dashboard's read views and settings. The account is
// always the one in the bearer token.
type OperatorHandler struct {
	Actions  ActionLister
	Messages MessageLister
	Settings SettingsStore
	Logger   *slog.Logger
}

type operatorActionDTO struct {
	ID               uuid.UUID       `json:"id"`
	ClientID         uuid.UUID       `json:"clientId"`
	Type             action.Type     `json:"type"`
	Payload          json.RawMessage `json:"payload"`
	Status           action.Status   `json:"status"`
	AttemptCount     int             `json:"attemptCount"`
	LastErrorCode    *string         `json:"lastErrorCode"`
	LastErrorMessage *string         `json:"lastErrorMessage"`
	LockedAt         *time.Time      `json:"lockedAt"`
	NextRunAt        *time.Time      `json:"nextRunAt"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

func (h *OperatorHandler) ListActions(w http.ResponseWriter, r *http.Request) {
	accountID, _ := auth.AccountIDFromContext(r.Context())

	var f action.ListFilter
	for _, s := range splitList(r.URL.Query().Get("status")) {
		st := action.Status(strings.ToLower(s))
		if !st.Valid() {
			writeError(w, http.StatusBadRequest, "invalid status: "+s)
			return
		}
		f.Statuses = append(f.Statuses, st)
	}
	f.Limit = parseLimit(r.URL.Query().Get("limit"), 50, 200)

	rows, err := h.Actions.List(r.Context(), accountID, f)
	if err != nil {
		h.Logger.ErrorContext(r.Context(), "list actions", "err", err)
		writeError(w, http.StatusInternalServerError, "Server error")
		return
	}

	out := make([]operatorActionDTO, 0, len(rows))
	for _, a := range rows {
		out = append(out, operatorActionDTO{
			ID:               a.ID,
			ClientID:         a.ClientID,
			Type:             a.Type,
			Payload:          a.Payload,
			Status:           a.Status,
			AttemptCount:     a.AttemptCount,
			LastErrorCode:    a.LastErrorCode,
			LastErrorMessage: a.LastErrorMessage,
			LockedAt:         a.LockedAt,
			NextRunAt:        a.NextRunAt,
			CreatedAt:        a.CreatedAt,
			UpdatedAt:        a.UpdatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": out})
}

type operatorMessageDTO struct {
	ID             uuid.UUID           `json:"id"`
	ClientID       uuid.UUID           `json:"clientId"`
	ConversationID string              `json:"conversationId"`
	SenderName     string              `json:"senderName"`
	IncomingText   string              `json:"incomingText"`
	ReceivedAt     time.Time           `json:"receivedAt"`
	ReplyText      *string             `json:"replyText"`
	ReplyStatus    message.ReplyStatus `json:"replyStatus"`
	ActionID       *uuid.UUID          `json:"actionId"`
}

func (h *OperatorHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	accountID, _ := auth.AccountIDFromContext(r.Context())

	var f message.ListFilter
	for _, s := range splitList(r.URL.Query().Get("replyStatus")) {
		switch st := message.ReplyStatus(strings.ToLower(s)); st {
		case message.ReplyNone, message.ReplyQueued, message.ReplySent, message.ReplyFailed:
			f.ReplyStatuses = append(f.ReplyStatuses, st)
		default:
			writeError(w, http.StatusBadRequest, "invalid replyStatus: "+s)
			return
		}
	}
	f.ConversationID = strings.TrimSpace(r.URL.Query().Get("conversationId"))
	f.Limit = parseLimit(r.URL.Query().Get("limit"), 50, 200)

	rows, err := h.Messages.List(r.Context(), accountID, f)
	if err != nil {
		h.Logger.ErrorContext(r.Context(), "list messages", "err", err)
		writeError(w, http.StatusInternalServerError, "Server error")
		return
	}

	out := make([]operatorMessageDTO, 0, len(rows))
	for _, m := range rows {
		out = append(out, operatorMessageDTO{
			ID:             m.ID,
			ClientID:       m.ClientID,
			ConversationID: m.ConversationID,
			SenderName:     m.SenderName,
			IncomingText:   m.IncomingText,
			ReceivedAt:     m.ReceivedAt,
			ReplyText:      m.ReplyText,
			ReplyStatus:    m.ReplyStatus,
			ActionID:       m.ActionID,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": out})
}

func (h *OperatorHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	accountID, _ := auth.AccountIDFromContext(r.Context())
	acc, err := h.Settings.Get(r.Context(), accountID)
	if err != nil {
		h.settingsError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": acc.Settings})
}

// PutSettings merges the posted keys over the stored settings. Keys the body
// leaves out keep their value.
func (h *OperatorHandler) PutSettings(w http.ResponseWriter, r *http.Request) {
	accountID, _ := auth.AccountIDFromContext(r.Context())

	var patch map[string]json.RawMessage
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}

	acc, err := h.Settings.Get(r.Context(), accountID)
	if err != nil {
		h.settingsError(w, r, err)
		return
	}
	merged, err := mergeSettings(acc.Settings, patch)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid settings: "+err.Error())
		return
	}
	if merged.ReplyDelaySeconds < 0 || merged.DailyMessageLimit < 0 {
		writeError(w, http.StatusBadRequest, "invalid settings: negative values")
		return
	}
	if err := h.Settings.UpdateSettings(r.Context(), accountID, merged); err != nil {
		h.settingsError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": merged})
}

func mergeSettings(cur account.Settings, patch map[string]json.RawMessage) (account.Settings, error) {
	b, err := json.Marshal(cur)
	if err != nil {
		return cur, err
	}
	base := map[string]json.RawMessage{}
	if err := json.Unmarshal(b, &base); err != nil {
		return cur, err
	}
	for k, v := range patch {
		base[k] = v
	}
	if b, err = json.Marshal(base); err != nil {
		return cur, err
	}
	var out account.Settings
	if err := json.Unmarshal(b, &out); err != nil {
		return cur, err
	}
	return out, nil
}

func (h *OperatorHandler) settingsError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, account.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Account not found")
		return
	}
	h.Logger.ErrorContext(r.Context(), "account settings", "err", err)
	writeError(w, http.StatusInternalServerError, "Server error")
}
