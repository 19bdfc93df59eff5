// Package audit records security-relevant rejections (cross-tenant references,
// inactive tenants, malformed tenant ids) separately from request logs.
package audit

import (
	"context"
	"log/slog"
	"time"

	"gorm.io/gorm"
)

type Kind string

const (
	KindCrossAccountAccess Kind = "CROSS_ACCOUNT_ACCESS"
	KindUnauthorizedAccess Kind = "UNAUTHORIZED_ACCESS"
	KindInvalidAccountID   Kind = "INVALID_ACCOUNT_ID"
)

type Event struct {
	Kind         Kind
	AccountID    string
	ResourceType string
	ResourceID   string
	Reason       string
}

// Recorder is what the domain services depend on.
type Recorder interface {
	Record(ctx context.Context, ev Event)
}

// SecurityEvent is the persisted form of Event.
type SecurityEvent struct {
	ID           uint64    `gorm:"primaryKey"`
	Kind         string    `gorm:"type:text;index;not null"`
	Endpoint     string    `gorm:"type:text;not null;default:''"`
	RequestID    string    `gorm:"type:text;not null;default:''"`
	AccountID    string    `gorm:"type:text;index;not null;default:''"`
	ResourceType string    `gorm:"type:text;not null;default:''"`
	ResourceID   string    `gorm:"type:text;not null;default:''"`
	Reason       string    `gorm:"type:text;not null;default:''"`
	CreatedAt    time.Time `gorm:"index;not null;default:now()"`
}

// Log writes every event to an audit-tagged logger and, when DB is set, to the
// security_events table. A failed insert is logged and never returned.
type Log struct {
	Logger *slog.Logger
	DB     *gorm.DB
}

func NewLog(logger *slog.Logger, db *gorm.DB) *Log {
	return &Log{Logger: logger.With("audit", true), DB: db}
}

func (l *Log) Record(ctx context.Context, ev Event) {
	endpoint := EndpointFromContext(ctx)
	rid := RequestIDFromContext(ctx)

	l.Logger.WarnContext(ctx, "security violation",
		"kind", string(ev.Kind),
		"endpoint", endpoint,
		"request_id", rid,
		"account_id", ev.AccountID,
		"resource_type", ev.ResourceType,
		"resource_id", ev.ResourceID,
		"reason", ev.Reason,
	)

	if l.DB == nil {
		return
	}
	row := SecurityEvent{
		Kind:         string(ev.Kind),
		Endpoint:     endpoint,
		RequestID:    rid,
		AccountID:    ev.AccountID,
		ResourceType: ev.ResourceType,
		ResourceID:   ev.ResourceID,
		Reason:       ev.Reason,
		CreatedAt:    time.Now(),
	}
	if err := l.DB.WithContext(ctx).Create(&row).Error; err != nil {
		l.Logger.ErrorContext(ctx, "persist security event", "err", err, "kind", string(ev.Kind))
	}
}
