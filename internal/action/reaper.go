package action

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrStoreUnavailable = errors.New("reaper: store not ready")

// Reaper periodically reclaims actions whose lock outlived the stale threshold,
// across every account. It is the global safety net behind the per-account
// recovery done by Claim.
type Reaper struct {
	Store        Store
	Replies      ReplyTracker
	Policy       Policy
	Logger       *slog.Logger
	Now          func() time.Time
	Interval     time.Duration
	BatchSize    int
	Ready        func(ctx context.Context) error
	ReadyTimeout time.Duration
	ReadyPoll    time.Duration

	metrics *metrics

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewReaper(store Store, replies ReplyTracker, policy Policy, logger *slog.Logger) *Reaper {
	return &Reaper{
		Store:        store,
		Replies:      replies,
		Policy:       policy,
		Logger:       logger,
		Now:          time.Now,
		Interval:     2 * time.Minute,
		BatchSize:    100,
		ReadyTimeout: 30 * time.Second,
		ReadyPoll:    time.Second,
		metrics:      newMetrics(),
	}
}

type ReapResult struct {
	Scanned  int
	Requeued int
	Failed   int
	Skipped  int
	Errors   int
}

// Start blocks until the store is ready (or ReadyTimeout passes), runs one sweep
// and then schedules a sweep every Interval until Stop or ctx is done.
func (r *Reaper) Start(ctx context.Context) error {
	if err := r.waitReady(ctx); err != nil {
		r.Logger.ErrorContext(ctx, "reaper not started", "err", err)
		return err
	}

	r.mu.Lock()
	if r.cancel != nil {
		r.mu.Unlock()
		return errors.New("reaper: already started")
	}
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	r.mu.Unlock()

	go r.loop(runCtx)
	r.Logger.InfoContext(ctx, "reaper started", "interval", r.Interval.String())
	return nil
}

// Stop cancels the schedule and waits for an in-flight sweep to return.
func (r *Reaper) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (r *Reaper) loop(ctx context.Context) {
	defer close(r.done)

	r.sweep(ctx)

	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

func (r *Reaper) sweep(ctx context.Context) {
	res, err := r.RunOnce(ctx)
	if err != nil {
		r.Logger.ErrorContext(ctx, "reaper run", "err", err)
		return
	}
	if res.Scanned > 0 {
		r.Logger.InfoContext(ctx, "reaper run",
			"scanned", res.Scanned, "requeued", res.Requeued, "failed", res.Failed,
			"skipped", res.Skipped, "errors", res.Errors)
	}
}

func (r *Reaper) waitReady(ctx context.Context) error {
	if r.Ready == nil {
		return nil
	}
	if err := r.Ready(ctx); err == nil {
		return nil
	}
	r.Logger.WarnContext(ctx, "reaper waiting for database")

	poll := r.ReadyPoll
	if poll <= 0 {
		poll = time.Second
	}
	deadline := time.NewTimer(r.ReadyTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	var last error
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("%w after %s: %v", ErrStoreUnavailable, r.ReadyTimeout, last)
		case <-ticker.C:
			if last = r.Ready(ctx); last == nil {
				return nil
			}
		}
	}
}

// RunOnce performs a single sweep. An error on one action is logged and counted;
// only a failure to list stale actions aborts the sweep.
func (r *Reaper) RunOnce(ctx context.Context) (ReapResult, error) {
	var res ReapResult
	now := r.now()
	staleBefore := now.Add(-r.Policy.StaleLockThreshold)
	batch := r.BatchSize
	if batch <= 0 {
		batch = 100
	}

	after := uuid.Nil
	for {
		rows, err := r.Store.Stale(ctx, staleBefore, after, batch)
		if err != nil {
			return res, fmt.Errorf("list stale actions: %w", err)
		}
		for i := range rows {
			a := &rows[i]
			res.Scanned++
			r.reclaim(ctx, a, now, &res)
		}
		if len(rows) < batch {
			return res, nil
		}
		after = rows[len(rows)-1].ID
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
	}
}

func (r *Reaper) reclaim(ctx context.Context, a *Action, now time.Time, res *ReapResult) {
	next := r.Policy.Reclaim(a, now)
	ok, err := r.Store.Settle(ctx, a, next, now)
	switch {
	case err != nil:
		res.Errors++
		r.metrics.addReaped(ctx, "error")
		r.Logger.ErrorContext(ctx, "reclaim action", "action_id", a.ID, "err", err)
		return
	case !ok:
		// completed or re-claimed since it was listed
		res.Skipped++
		r.metrics.addReaped(ctx, "skipped")
		return
	}

	if next.Status == StatusFailed {
		res.Failed++
		r.metrics.addReaped(ctx, "failed")
		r.Logger.WarnContext(ctx, "stale action failed", "action_id", a.ID, "account_id", a.AccountID, "attempt", a.AttemptCount)
		r.resolveFailed(ctx, a)
		return
	}
	res.Requeued++
	r.metrics.addReaped(ctx, "requeued")
	r.Logger.InfoContext(ctx, "stale action requeued", "action_id", a.ID, "account_id", a.AccountID,
		"next_run_at", next.NextRunAt.Format(time.RFC3339))
}

func (r *Reaper) resolveFailed(ctx context.Context, a *Action) {
	conv := a.ConversationID()
	if r.Replies == nil || conv == "" {
		return
	}
	if _, err := r.Replies.ResolveReplies(ctx, a.AccountID, a.ClientID, conv, false); err != nil {
		r.Logger.ErrorContext(ctx, "resolve replies", "action_id", a.ID, "err", err)
	}
}

func (r *Reaper) now() time.Time {
	if r.Now == nil {
		return time.Now().UTC()
	}
	return r.Now().UTC()
}
