package action

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicy_Backoff(t *testing.T) {
	p := DefaultPolicy()
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Minute},
		{1, 2 * time.Minute},
		{2, 4 * time.Minute},
		{3, 8 * time.Minute},
		{4, 16 * time.Minute},
		{5, 32 * time.Minute},
		{6, 60 * time.Minute},
		{7, 60 * time.Minute},
		{1000, 60 * time.Minute},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, p.Backoff(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestPolicy_Classify(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, ClassRetryable, p.Classify("NETWORK"))
	assert.Equal(t, ClassRetryable, p.Classify("TEMP_DOM_FAIL"))
	assert.Equal(t, ClassNonRetryable, p.Classify("CHECKPOINT"))
	assert.Equal(t, ClassNonRetryable, p.Classify("AUTH_REQUIRED"))
	assert.Equal(t, ClassUnknown, p.Classify("NETWROK"))
	assert.Equal(t, ClassUnknown, p.Classify(""))
}

func TestPolicy_Decide(t *testing.T) {
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	p := DefaultPolicy()

	tests := []struct {
		name     string
		attempts int
		out      Outcome
		status   Status
		delay    time.Duration
		code     string
	}{
		{"success", 1, Outcome{Success: true}, StatusCompleted, 0, ""},
		{"retryable first attempt", 1, Outcome{ErrorCode: "NETWORK"}, StatusPending, 2 * time.Minute, "NETWORK"},
		{"retryable second attempt", 2, Outcome{ErrorCode: "RATE_LIMIT"}, StatusPending, 4 * time.Minute, "RATE_LIMIT"},
		{"unknown code retries", 3, Outcome{ErrorCode: "SOMETHING"}, StatusPending, 8 * time.Minute, "SOMETHING"},
		{"missing code defaults to unknown", 1, Outcome{}, StatusPending, 2 * time.Minute, ErrCodeUnknown},
		{"non-retryable is terminal", 1, Outcome{ErrorCode: "CHECKPOINT"}, StatusFailed, 0, "CHECKPOINT"},
		{"budget exhausted on retryable", 5, Outcome{ErrorCode: "NETWORK"}, StatusFailed, 0, "NETWORK"},
		{"budget exhausted beyond max", 7, Outcome{ErrorCode: "TEMP_DOM_FAIL"}, StatusFailed, 0, "TEMP_DOM_FAIL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &Action{ID: uuid.New(), Status: StatusProcessing, AttemptCount: tt.attempts}
			s := p.Decide(a, tt.out, now)

			assert.Equal(t, tt.status, s.Status)
			if tt.delay > 0 {
				require.NotNil(t, s.NextRunAt)
				assert.Equal(t, now.Add(tt.delay), *s.NextRunAt)
			} else {
				assert.Nil(t, s.NextRunAt)
			}
			if tt.code == "" {
				assert.Nil(t, s.ErrorCode)
			} else {
				require.NotNil(t, s.ErrorCode)
				assert.Equal(t, tt.code, *s.ErrorCode)
				require.NotNil(t, s.ErrorMessage)
			}
		})
	}
}

func TestPolicy_DecideUnknownTerminalWhenConfigured(t *testing.T) {
	p := DefaultPolicy()
	p.UnknownRetryable = false

	a := &Action{Status: StatusProcessing, AttemptCount: 1}
	s := p.Decide(a, Outcome{ErrorCode: "TYPO"}, time.Now())
	assert.Equal(t, StatusFailed, s.Status)

	s = p.Decide(a, Outcome{ErrorCode: "NETWORK"}, time.Now())
	assert.Equal(t, StatusPending, s.Status)
}

func TestPolicy_Reclaim(t *testing.T) {
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	p := DefaultPolicy()

	s := p.Reclaim(&Action{AttemptCount: 2}, now)
	assert.Equal(t, StatusPending, s.Status)
	require.NotNil(t, s.NextRunAt)
	assert.Equal(t, now.Add(4*time.Minute), *s.NextRunAt)
	assert.Nil(t, s.ErrorCode)

	s = p.Reclaim(&Action{AttemptCount: 5}, now)
	assert.Equal(t, StatusFailed, s.Status)
	require.NotNil(t, s.ErrorCode)
	assert.Equal(t, ErrCodeStaleLockMaxAttempts, *s.ErrorCode)
	assert.Nil(t, s.NextRunAt)
}

func TestStatus_Terminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusProcessing.Terminal())
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.False(t, Status("bogus").Valid())
}

func TestAction_ConversationID(t *testing.T) {
	a, err := NewSendMessage(uuid.New(), uuid.New(), SendMessagePayload{ConversationID: "conv-1", MessageText: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "conv-1", a.ConversationID())
	assert.Equal(t, StatusPending, a.Status)

	refresh := &Action{Type: TypeRefreshSession, Payload: []byte(`{"conversationId":"x"}`)}
	assert.Equal(t, "", refresh.ConversationID())
}
