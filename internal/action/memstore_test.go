package action

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"inboxrelay/internal/audit"
)

// memStore emulates the Postgres statements: claim and settle are conditional and
// applied under one lock, which stands in for row locks.
type memStore struct {
	mu         sync.Mutex
	rows       map[uuid.UUID]*Action
	settleErrs map[uuid.UUID]error
}

func newMemStore(actions ...*Action) *memStore {
	s := &memStore{rows: map[uuid.UUID]*Action{}, settleErrs: map[uuid.UUID]error{}}
	for _, a := range actions {
		s.rows[a.ID] = a
	}
	return s
}

func (s *memStore) Claim(_ context.Context, accountID uuid.UUID, owner string, now, staleBefore time.Time, limit int) ([]Action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var eligible []*Action
	for _, a := range s.rows {
		if a.AccountID != accountID {
			continue
		}
		pending := a.Status == StatusPending && (a.NextRunAt == nil || !a.NextRunAt.After(now))
		stale := a.Status == StatusProcessing && a.LockedAt != nil && !a.LockedAt.After(staleBefore)
		if pending || stale {
			eligible = append(eligible, a)
		}
	}
	sort.Slice(eligible, func(i, j int) bool { return eligible[i].CreatedAt.Before(eligible[j].CreatedAt) })
	if len(eligible) > limit {
		eligible = eligible[:limit]
	}

	out := make([]Action, 0, len(eligible))
	for _, a := range eligible {
		at, o := now, owner
		a.Status = StatusProcessing
		a.LockedAt, a.LockOwner = &at, &o
		a.AttemptCount++
		a.UpdatedAt = now
		out = append(out, *a)
	}
	return out, nil
}

func (s *memStore) Get(_ context.Context, accountID, id uuid.UUID) (*Action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.rows[id]
	if !ok || a.AccountID != accountID {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *memStore) Settle(_ context.Context, a *Action, st Settlement, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.settleErrs[a.ID]; err != nil {
		return false, err
	}
	row, ok := s.rows[a.ID]
	if !ok || row.AccountID != a.AccountID || row.Status != StatusProcessing || row.AttemptCount != a.AttemptCount {
		return false, nil
	}
	row.Status = st.Status
	row.LockedAt, row.LockOwner = nil, nil
	if st.NextRunAt != nil {
		t := *st.NextRunAt
		row.NextRunAt = &t
	}
	if st.ErrorCode != nil {
		c := *st.ErrorCode
		row.LastErrorCode = &c
	}
	if st.ErrorMessage != nil {
		m := *st.ErrorMessage
		row.LastErrorMessage = &m
	}
	row.UpdatedAt = now
	return true, nil
}

func (s *memStore) Stale(_ context.Context, staleBefore time.Time, after uuid.UUID, limit int) ([]Action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Action
	for _, a := range s.rows {
		if a.Status == StatusProcessing && a.LockedAt != nil && !a.LockedAt.After(staleBefore) &&
			bytes.Compare(a.ID[:], after[:]) > 0 {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i].ID[:], out[j].ID[:]) < 0 })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) get(id uuid.UUID) Action {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.rows[id]
}

type resolveCall struct {
	AccountID      uuid.UUID
	ClientID       uuid.UUID
	ConversationID string
	Sent           bool
}

type fakeReplies struct {
	mu    sync.Mutex
	calls []resolveCall
}

func (f *fakeReplies) ResolveReplies(_ context.Context, accountID, clientID uuid.UUID, conv string, sent bool) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, resolveCall{accountID, clientID, conv, sent})
	return 1, nil
}

type fakeAudit struct {
	mu     sync.Mutex
	events []audit.Event
}

func (f *fakeAudit) Record(_ context.Context, ev audit.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
}

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func pendingAction(accountID uuid.UUID, createdAt time.Time) *Action {
	return &Action{
		ID:        uuid.New(),
		AccountID: accountID,
		ClientID:  uuid.New(),
		Type:      TypeRefreshSession,
		Payload:   []byte(`{}`),
		Status:    StatusPending,
		CreatedAt: createdAt,
	}
}

func processingAction(accountID uuid.UUID, lockedAt time.Time, attempts int) *Action {
	a := pendingAction(accountID, lockedAt.Add(-time.Hour))
	owner := "ext_old"
	a.Status = StatusProcessing
	a.LockedAt = &lockedAt
	a.LockOwner = &owner
	a.AttemptCount = attempts
	return a
}
