package action

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newMockRepo(t *testing.T) (*Repo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return &Repo{DB: gdb}, mock
}

var actionColumns = []string{
	"id", "account_id", "client_id", "type", "payload", "status", "attempt_count",
	"last_error_code", "last_error_message", "locked_at", "lock_owner", "next_run_at",
	"created_at", "updated_at",
}

func TestRepo_ClaimIsOneStatementAndSortsFIFO(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	acc := uuid.New()
	older, newer := uuid.New(), uuid.New()

	rows := sqlmock.NewRows(actionColumns).
		AddRow(newer.String(), acc.String(), uuid.NewString(), "sendMessage", []byte(`{"conversationId":"c2"}`), "processing", 1,
			nil, nil, now, "ext_1", nil, now.Add(-time.Minute), now).
		AddRow(older.String(), acc.String(), uuid.NewString(), "refreshSession", []byte(`{}`), "processing", 3,
			"NETWORK", "timeout", now, "ext_1", now.Add(-time.Minute), now.Add(-time.Hour), now)

	mock.ExpectQuery(`(?s)with cte as .*for update skip locked.*update actions.*attempt_count = attempt_count \+ 1.*returning \*`).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), "ext_1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(rows)

	got, err := repo.Claim(context.Background(), acc, "ext_1", now, now.Add(-5*time.Minute), 5)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, older, got[0].ID)
	assert.Equal(t, TypeRefreshSession, got[0].Type)
	assert.Equal(t, 3, got[0].AttemptCount)
	require.NotNil(t, got[0].LastErrorCode)
	assert.Equal(t, "NETWORK", *got[0].LastErrorCode)

	assert.Equal(t, newer, got[1].ID)
	assert.Equal(t, "c2", got[1].ConversationID())
	assert.Equal(t, StatusProcessing, got[1].Status)
	require.NotNil(t, got[1].LockOwner)
	assert.Equal(t, "ext_1", *got[1].LockOwner)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepo_SettleIsConditional(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	a := &Action{ID: uuid.New(), AccountID: uuid.New(), Status: StatusProcessing, AttemptCount: 2}

	update := `UPDATE "actions" SET .*WHERE .*status = .*attempt_count = `
	mock.ExpectExec(update).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(update).WillReturnResult(sqlmock.NewResult(0, 0))

	next := now.Add(4 * time.Minute)
	ok, err := repo.Settle(context.Background(), a, Settlement{Status: StatusPending, NextRunAt: &next}, now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Settle(context.Background(), a, Settlement{Status: StatusCompleted}, now)
	require.NoError(t, err)
	assert.False(t, ok, "row no longer processing")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsert_RejectsUnknownType(t *testing.T) {
	repo, mock := newMockRepo(t)
	err := repo.Enqueue(context.Background(), &Action{Type: "likePost"})
	require.ErrorIs(t, err, ErrInvalidType)
	require.NoError(t, mock.ExpectationsWereMet())
}
