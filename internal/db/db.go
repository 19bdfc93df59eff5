package db

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"inboxrelay/internal/account"
	"inboxrelay/internal/action"
	"inboxrelay/internal/audit"
	"inboxrelay/internal/message"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func Connect(dsn string, log *slog.Logger) (*gorm.DB, error) {
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError:         true,
		SkipDefaultTransaction: true,
		Logger: logger.New(slog.NewLogLogger(log.Handler(), slog.LevelWarn), logger.Config{
			SlowThreshold:             500 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	return gdb, nil
}

// Ready pings the database. It backs /readyz and the reaper start gate.
func Ready(gdb *gorm.DB) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		sqlDB, err := gdb.DB()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		return sqlDB.PingContext(ctx)
	}
}

func AutoMigrateAndIndexes(gdb *gorm.DB) error {
	// Tables
	if err := gdb.AutoMigrate(
		&account.Account{},
		&account.Client{},
		&action.Action{},
		&message.Message{},
		&audit.SecurityEvent{},
	); err != nil {
		return err
	}

	// Ingestion idempotency: one message per account + idempotency key
	if err := gdb.Exec(`
create unique index if not exists uq_messages_account_idem
on messages(account_id, idempotency_key);
`).Error; err != nil {
		return err
	}

	stmts := []string{
		// claim: pending due rows of one account, oldest first
		`create index if not exists idx_actions_claim on actions(account_id, status, next_run_at, created_at);`,
		// reaper and stale recovery
		`create index if not exists idx_actions_lock on actions(status, locked_at);`,
		// reply cascade
		`create index if not exists idx_messages_conv on messages(account_id, client_id, conversation_id, reply_status);`,
		`create index if not exists idx_clients_account on clients(account_id, id);`,
	}
	for _, s := range stmts {
		if err := gdb.Exec(s).Error; err != nil {
			return fmt.Errorf("index exec failed: %w (sql=%s)", err, s)
		}
	}

	return nil
}
