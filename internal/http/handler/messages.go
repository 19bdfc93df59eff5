package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"inboxrelay/internal/message"
)

type Ingester interface {
	Ingest(ctx context.Context, in message.IngestInput) (message.IngestResult, error)
}

type MessageHandler struct {
	Messages Ingester
	Tenants  *Tenants
}

type incomingReq struct {
	AccountID      string `json:"accountId"`
	ClientID       string `json:"clientId"`
	ConversationID string `json:"conversationId"`
	SenderName     string `json:"senderName"`
	IncomingText   string `json:"incomingText"`
	IdempotencyKey string `json:"idempotencyKey"`
}

func (h *MessageHandler) Incoming(w http.ResponseWriter, r *http.Request) {
	var req incomingReq
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}
	if req.ClientID == "" || req.ConversationID == "" || req.SenderName == "" ||
		req.IncomingText == "" || req.IdempotencyKey == "" {
		writeError(w, http.StatusBadRequest,
			"clientId, accountId, conversationId, senderName, incomingText and idempotencyKey are required")
		return
	}
	clientID, err := uuid.Parse(req.ClientID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid clientId format")
		return
	}

	accountID, ok := h.Tenants.resolve(w, r, req.AccountID)
	if !ok {
		return
	}

	res, err := h.Messages.Ingest(r.Context(), message.IngestInput{
		AccountID:      accountID,
		ClientID:       clientID,
		ConversationID: req.ConversationID,
		SenderName:     req.SenderName,
		IncomingText:   req.IncomingText,
		IdempotencyKey: req.IdempotencyKey,
	})
	switch {
	case errors.Is(err, message.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, message.ErrClientNotFound):
		writeError(w, http.StatusNotFound, "Client not found")
		return
	case errors.Is(err, message.ErrAIDisabled):
		writeError(w, http.StatusBadRequest, "AI is disabled for this client")
		return
	case errors.Is(err, message.ErrReplyFailed):
		writeError(w, http.StatusBadGateway, "Failed to generate AI reply")
		return
	case err != nil:
		h.Tenants.Logger.ErrorContext(r.Context(), "ingest message", "account_id", accountID, "err", err)
		writeError(w, http.StatusInternalServerError, "Server error")
		return
	}

	status := http.StatusCreated
	if res.Duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, map[string]any{
		"success": true,
		"data": map[string]any{
			"messageId": res.MessageID,
			"actionId":  res.ActionID,
			"duplicate": res.Duplicate,
		},
	})
}
