package message

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{
		SkipDefaultTransaction: true,
		TranslateError:         true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return &Store{DB: gdb}, mock
}

func TestStore_CreateReportsDuplicateKey(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`INSERT INTO "messages"`).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "uq_messages_account_idem"})

	err := s.Create(context.Background(), &Message{AccountID: uuid.New(), IdempotencyKey: "k1"})
	require.ErrorIs(t, err, ErrDuplicate)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ResolveRepliesOnlyTouchesQueuedRowsOfOneConversation(t *testing.T) {
	s, mock := newMockStore(t)
	acc, cl := uuid.New(), uuid.New()

	mock.ExpectExec(`UPDATE "messages" SET "reply_status"=\$1,"updated_at"=\$2 WHERE account_id = \$3 AND client_id = \$4 AND conversation_id = \$5 AND reply_status = \$6`).
		WithArgs("sent", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), "conv-9", "queued").
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := s.ResolveReplies(context.Background(), acc, cl, "conv-9", true)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_FindByKeyNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT \* FROM "messages" WHERE account_id = \$1 AND idempotency_key = \$2`).
		WithArgs(sqlmock.AnyArg(), "k1", 1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := s.FindByKey(context.Background(), uuid.New(), "k1")
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_MarkFailedIsScopedToAccount(t *testing.T) {
	s, mock := newMockStore(t)
	m := &Message{ID: uuid.New(), AccountID: uuid.New(), ReplyStatus: ReplyQueued}

	mock.ExpectExec(`UPDATE "messages" SET "reply_status"=\$1,"updated_at"=\$2 WHERE id = \$3 AND account_id = \$4`).
		WithArgs("failed", sqlmock.AnyArg(), m.ID, m.AccountID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.MarkFailed(context.Background(), m))
	assert.Equal(t, ReplyFailed, m.ReplyStatus)
	require.NoError(t, mock.ExpectationsWereMet())
}
