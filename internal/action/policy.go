package action

import (
	"time"
)

const (
	ErrCodeUnknown               = "UNKNOWN"
	ErrCodeStaleLockMaxAttempts  = "STALE_LOCK_MAX_ATTEMPTS"
	errMessageUnknown            = "Unknown error"
	errMessageStaleLockExhausted = "Action stuck in processing and max attempts exceeded"
)

type ErrorClass int

const (
	ClassUnknown ErrorClass = iota
	ClassRetryable
	ClassNonRetryable
)

// Policy decides retry and lock behaviour for the queue.
type Policy struct {
	MaxAttempts        int
	StaleLockThreshold time.Duration
	ClaimBatchSize     int
	MaxBackoff         time.Duration
	Retryable          map[string]struct{}
	NonRetryable       map[string]struct{}
	UnknownRetryable   bool
}

func DefaultPolicy() Policy {
	return NewPolicy(5, 5*time.Minute, 5, 60*time.Minute,
		[]string{"TEMP_DOM_FAIL", "NETWORK", "RATE_LIMIT"},
		[]string{"AUTH_REQUIRED", "CHECKPOINT", "PERMISSION_DENIED"},
		true)
}

func NewPolicy(maxAttempts int, staleLock time.Duration, batch int, maxBackoff time.Duration, retryable, nonRetryable []string, unknownRetryable bool) Policy {
	p := Policy{
		MaxAttempts:        maxAttempts,
		StaleLockThreshold: staleLock,
		ClaimBatchSize:     batch,
		MaxBackoff:         maxBackoff,
		Retryable:          map[string]struct{}{},
		NonRetryable:       map[string]struct{}{},
		UnknownRetryable:   unknownRetryable,
	}
	for _, c := range retryable {
		p.Retryable[c] = struct{}{}
	}
	for _, c := range nonRetryable {
		p.NonRetryable[c] = struct{}{}
	}
	return p
}

func (p Policy) Classify(code string) ErrorClass {
	if _, ok := p.NonRetryable[code]; ok {
		return ClassNonRetryable
	}
	if _, ok := p.Retryable[code]; ok {
		return ClassRetryable
	}
	return ClassUnknown
}

// Backoff returns min(2^attempt minutes, MaxBackoff). attempt is the post-claim
// attempt count, so the first retry waits two minutes.
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	limit := p.MaxBackoff
	if limit <= 0 {
		limit = 60 * time.Minute
	}
	d := time.Minute
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= limit {
			return limit
		}
	}
	if d > limit {
		return limit
	}
	return d
}

func (p Policy) Exhausted(attempt int) bool { return attempt >= p.MaxAttempts }

// Settlement is the state a processing action is moved to.
type Settlement struct {
	Status       Status
	NextRunAt    *time.Time
	ErrorCode    *string
	ErrorMessage *string
}

// Outcome is what the extension reports for a claimed action.
type Outcome struct {
	Success      bool
	ErrorCode    string
	ErrorMessage string
}

// Decide maps a reported outcome onto the next state of a processing action.
func (p Policy) Decide(a *Action, out Outcome, now time.Time) Settlement {
	if out.Success {
		return Settlement{Status: StatusCompleted}
	}

	code, msg := out.ErrorCode, out.ErrorMessage
	if code == "" {
		code = ErrCodeUnknown
	}
	if msg == "" {
		msg = errMessageUnknown
	}
	s := Settlement{ErrorCode: &code, ErrorMessage: &msg}

	class := p.Classify(code)
	terminal := class == ClassNonRetryable ||
		(class == ClassUnknown && !p.UnknownRetryable) ||
		p.Exhausted(a.AttemptCount)
	if terminal {
		s.Status = StatusFailed
		return s
	}

	next := now.Add(p.Backoff(a.AttemptCount))
	s.Status = StatusPending
	s.NextRunAt = &next
	return s
}

// Reclaim maps a stale lock onto the next state, as if the holder crashed.
func (p Policy) Reclaim(a *Action, now time.Time) Settlement {
	if p.Exhausted(a.AttemptCount) {
		code, msg := ErrCodeStaleLockMaxAttempts, errMessageStaleLockExhausted
		return Settlement{Status: StatusFailed, ErrorCode: &code, ErrorMessage: &msg}
	}
	next := now.Add(p.Backoff(a.AttemptCount))
	return Settlement{Status: StatusPending, NextRunAt: &next}
}
