package action

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"inboxrelay/internal/audit"
)

var (
	ErrNotFound    = errors.New("action not found")
	ErrNotClaimed  = errors.New("action is not being processed")
	ErrInvalidType = errors.New("invalid action type")
)

// Store is the durable queue. Claim and Settle must be atomic in the backing
// store; the service never locks in process.
type Store interface {
	Claim(ctx context.Context, accountID uuid.UUID, owner string, now, staleBefore time.Time, limit int) ([]Action, error)
	Get(ctx context.Context, accountID, id uuid.UUID) (*Action, error)
	Settle(ctx context.Context, a *Action, s Settlement, now time.Time) (bool, error)
	Stale(ctx context.Context, staleBefore time.Time, after uuid.UUID, limit int) ([]Action, error)
}

// ReplyTracker mirrors the end state of a sendMessage action onto the queued
// messages of its conversation.
type ReplyTracker interface {
	ResolveReplies(ctx context.Context, accountID, clientID uuid.UUID, conversationID string, sent bool) (int64, error)
}

type Service struct {
	Store   Store
	Replies ReplyTracker
	Audit   audit.Recorder
	Policy  Policy
	Logger  *slog.Logger
	Now     func() time.Time

	metrics *metrics
}

// NewService builds the action queue over store using the given retry policy.
func NewService(store Store, replies ReplyTracker, rec audit.Recorder, policy Policy, logger *slog.Logger) *Service {
	return &Service{
		Store:   store,
		Replies: replies,
		Audit:   rec,
		Policy:  policy,
		Logger:  logger,
		Now:     time.Now,
		metrics: newMetrics(),
	}
}

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

// Claimed is what the extension sees of an action.
type Claimed struct {
	ID      uuid.UUID
	Type    Type
	Payload []byte
}

// Claim locks up to Policy.ClaimBatchSize eligible actions for owner. An empty
// owner gets a generated token. Stale processing rows of this account are
// eligible too, so polling heals crashed claims without waiting for the reaper.
func (s *Service) Claim(ctx context.Context, accountID uuid.UUID, owner string) ([]Claimed, error) {
	if owner == "" {
		owner = "ext_" + uuid.NewString()
	}
	now := s.now()
	rows, err := s.Store.Claim(ctx, accountID, owner, now, now.Add(-s.Policy.StaleLockThreshold), s.Policy.ClaimBatchSize)
	if err != nil {
		return nil, fmt.Errorf("claim actions: %w", err)
	}

	out := make([]Claimed, 0, len(rows))
	for _, a := range rows {
		out = append(out, Claimed{ID: a.ID, Type: a.Type, Payload: a.Payload})
	}
	if len(out) > 0 {
		s.metrics.addClaimed(ctx, len(out))
		s.Logger.InfoContext(ctx, "actions claimed",
			"account_id", accountID, "owner", owner, "count", len(out))
	}
	return out, nil
}

type Completion struct {
	Status    Status
	WillRetry bool
}

// Complete applies the extension's report to a processing action owned by
// accountID. Reports for actions of other accounts are audited and answered with
// ErrNotFound; reports for actions that are no longer processing change nothing
// and return ErrNotClaimed.
func (s *Service) Complete(ctx context.Context, accountID, id uuid.UUID, out Outcome) (Completion, error) {
	a, err := s.Store.Get(ctx, accountID, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.Audit.Record(ctx, audit.Event{
				Kind:         audit.KindCrossAccountAccess,
				AccountID:    accountID.String(),
				ResourceType: "Action",
				ResourceID:   id.String(),
				Reason:       "action not found for account",
			})
		}
		return Completion{}, err
	}
	if a.Status != StatusProcessing {
		return Completion{Status: a.Status}, ErrNotClaimed
	}

	now := s.now()
	next := s.Policy.Decide(a, out, now)
	ok, err := s.Store.Settle(ctx, a, next, now)
	if err != nil {
		return Completion{}, fmt.Errorf("settle action: %w", err)
	}
	if !ok {
		return Completion{}, ErrNotClaimed
	}
	s.metrics.addCompleted(ctx, next.Status)

	attrs := []any{"action_id", a.ID, "account_id", accountID, "status", string(next.Status), "attempt", a.AttemptCount}
	if next.ErrorCode != nil {
		attrs = append(attrs, "error_code", *next.ErrorCode)
	}
	if next.NextRunAt != nil {
		attrs = append(attrs, "next_run_at", next.NextRunAt.Format(time.RFC3339))
	}
	s.Logger.InfoContext(ctx, "action settled", attrs...)

	s.resolveReplies(ctx, a, next.Status)
	return Completion{Status: next.Status, WillRetry: next.Status == StatusPending}, nil
}

// resolveReplies cascades a terminal sendMessage result to its messages. The
// action is already settled, so a failure here is logged rather than returned.
func (s *Service) resolveReplies(ctx context.Context, a *Action, st Status) {
	if s.Replies == nil || !st.Terminal() {
		return
	}
	conv := a.ConversationID()
	if conv == "" {
		return
	}
	n, err := s.Replies.ResolveReplies(ctx, a.AccountID, a.ClientID, conv, st == StatusCompleted)
	if err != nil {
		s.Logger.ErrorContext(ctx, "resolve replies", "action_id", a.ID, "err", err)
		return
	}
	s.Logger.DebugContext(ctx, "replies resolved", "action_id", a.ID, "messages", n)
}
