package message

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"inboxrelay/internal/account"
	"inboxrelay/internal/action"
	"inboxrelay/internal/audit"
	"inboxrelay/internal/reply"
)

var (
	ErrInvalidInput   = errors.New("invalid message")
	ErrClientNotFound = errors.New("client not found")
	ErrAIDisabled     = errors.New("AI is disabled for this client")
	ErrReplyFailed    = errors.New("failed to generate AI reply")
)

type Clients interface {
	Client(ctx context.Context, accountID, clientID uuid.UUID) (*account.Client, error)
	IncrementReplies(ctx context.Context, accountID, clientID uuid.UUID, n int) error
}

type Replier interface {
	GenerateReply(ctx context.Context, req reply.Request) (string, error)
}

type Repository interface {
	FindByKey(ctx context.Context, accountID uuid.UUID, key string) (*Message, error)
	Create(ctx context.Context, m *Message) error
	AttachReply(ctx context.Context, m *Message, replyText string, a *action.Action) error
	MarkFailed(ctx context.Context, m *Message) error
}

type Service struct {
	Messages Repository
	Clients  Clients
	Replier  Replier
	Audit    audit.Recorder
	Logger   *slog.Logger
	Now      func() time.Time
}

type IngestInput struct {
	AccountID      uuid.UUID
	ClientID       uuid.UUID
	ConversationID string
	SenderName     string
	IncomingText   string
	IdempotencyKey string
}

func (in IngestInput) validate() error {
	var missing []string
	if in.AccountID == uuid.Nil {
		missing = append(missing, "accountId")
	}
	if in.ClientID == uuid.Nil {
		missing = append(missing, "clientId")
	}
	if strings.TrimSpace(in.ConversationID) == "" {
		missing = append(missing, "conversationId")
	}
	if strings.TrimSpace(in.SenderName) == "" {
		missing = append(missing, "senderName")
	}
	if strings.TrimSpace(in.IncomingText) == "" {
		missing = append(missing, "incomingText")
	}
	if strings.TrimSpace(in.IdempotencyKey) == "" {
		missing = append(missing, "idempotencyKey")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidInput, strings.Join(missing, ", "))
	}
	return nil
}

type IngestResult struct {
	MessageID uuid.UUID
	ActionID  *uuid.UUID
	Duplicate bool
}

// Ingest stores an inbound message and queues the generated reply as a
// sendMessage action. Redelivery under the same idempotency key returns the outcome
// of the first delivery and has no side effects.
func (s *Service) Ingest(ctx context.Context, in IngestInput) (IngestResult, error) {
	if err := in.validate(); err != nil {
		return IngestResult{}, err
	}

	client, err := s.Clients.Client(ctx, in.AccountID, in.ClientID)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			s.Audit.Record(ctx, audit.Event{
				Kind:         audit.KindCrossAccountAccess,
				AccountID:    in.AccountID.String(),
				ResourceType: "Client",
				ResourceID:   in.ClientID.String(),
				Reason:       "client not found for account",
			})
			return IngestResult{}, ErrClientNotFound
		}
		return IngestResult{}, fmt.Errorf("load client: %w", err)
	}

	if prior, err := s.Messages.FindByKey(ctx, in.AccountID, in.IdempotencyKey); err == nil {
		return s.duplicate(ctx, prior), nil
	} else if !errors.Is(err, ErrNotFound) {
		return IngestResult{}, fmt.Errorf("find message: %w", err)
	}

	if !client.AIActive {
		return IngestResult{}, ErrAIDisabled
	}

	m := &Message{
		ID:             uuid.New(),
		AccountID:      in.AccountID,
		ClientID:       in.ClientID,
		ConversationID: in.ConversationID,
		SenderName:     in.SenderName,
		IncomingText:   in.IncomingText,
		ReceivedAt:     s.now(),
		ReplyStatus:    ReplyQueued,
		IdempotencyKey: in.IdempotencyKey,
	}
	if err := s.Messages.Create(ctx, m); err != nil {
		if !errors.Is(err, ErrDuplicate) {
			return IngestResult{}, fmt.Errorf("create message: %w", err)
		}
		// a concurrent delivery with the same key won the insert
		prior, ferr := s.Messages.FindByKey(ctx, in.AccountID, in.IdempotencyKey)
		if ferr != nil {
			return IngestResult{}, fmt.Errorf("find message after duplicate: %w", ferr)
		}
		return s.duplicate(ctx, prior), nil
	}

	text, err := s.Replier.GenerateReply(ctx, reply.Request{
		AccountID:    in.AccountID,
		ClientID:     in.ClientID,
		SenderName:   in.SenderName,
		IncomingText: in.IncomingText,
	})
	if err == nil && strings.TrimSpace(text) == "" {
		err = errors.New("empty reply")
	}
	if err != nil {
		s.Logger.ErrorContext(ctx, "generate reply", "message_id", m.ID, "client_id", in.ClientID, "err", err)
		s.markFailed(ctx, m)
		return IngestResult{MessageID: m.ID}, fmt.Errorf("%w: %w", ErrReplyFailed, err)
	}

	a, err := action.NewSendMessage(in.AccountID, in.ClientID, action.SendMessagePayload{
		ConversationID: in.ConversationID,
		MessageText:    text,
	})
	if err != nil {
		return IngestResult{}, fmt.Errorf("build action: %w", err)
	}
	if err := s.Messages.AttachReply(ctx, m, text, a); err != nil {
		s.Logger.ErrorContext(ctx, "queue reply", "message_id", m.ID, "client_id", in.ClientID, "err", err)
		s.markFailed(ctx, m)
		return IngestResult{MessageID: m.ID}, fmt.Errorf("queue reply: %w", err)
	}

	if err := s.Clients.IncrementReplies(ctx, in.AccountID, in.ClientID, 1); err != nil {
		s.Logger.WarnContext(ctx, "increment client replies", "client_id", in.ClientID, "err", err)
	}

	s.Logger.InfoContext(ctx, "reply queued",
		"message_id", m.ID, "action_id", a.ID, "conversation_id", in.ConversationID, "client_id", in.ClientID)
	return IngestResult{MessageID: m.ID, ActionID: &a.ID}, nil
}

// markFailed keeps a message that never got an action out of the queued state.
func (s *Service) markFailed(ctx context.Context, m *Message) {
	if err := s.Messages.MarkFailed(ctx, m); err != nil {
		s.Logger.ErrorContext(ctx, "mark message failed", "message_id", m.ID, "err", err)
	}
}

func (s *Service) duplicate(ctx context.Context, m *Message) IngestResult {
	s.Logger.InfoContext(ctx, "duplicate message", "message_id", m.ID, "idempotency_key", m.IdempotencyKey)
	return IngestResult{MessageID: m.ID, ActionID: m.ActionID, Duplicate: true}
}

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}
