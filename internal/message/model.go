package message

import (
	"time"

	"github.com/google/uuid"
)

type ReplyStatus string

const (
	ReplyNone   ReplyStatus = "none"
	ReplyQueued ReplyStatus = "queued"
	ReplySent   ReplyStatus = "sent"
	ReplyFailed ReplyStatus = "failed"
)

// Message is an inbound LinkedIn message. IdempotencyKey is unique per account
// (uq_messages_account_idem) and ActionID points at the one sendMessage action
// created for it, if any.
type Message struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey"`
	AccountID      uuid.UUID `gorm:"type:uuid;index;not null"`
	ClientID       uuid.UUID `gorm:"type:uuid;index;not null"`
	ConversationID string    `gorm:"type:text;index;not null"`
	SenderName     string    `gorm:"type:text;not null"`
	IncomingText   string    `gorm:"type:text;not null"`
	ReceivedAt     time.Time `gorm:"index;not null;default:now()"`

	ReplyText   *string     `gorm:"type:text"`
	ReplyStatus ReplyStatus `gorm:"type:text;index;not null;default:'none'"`
	ActionID    *uuid.UUID  `gorm:"type:uuid"`

	IdempotencyKey string `gorm:"type:text;not null"`

	CreatedAt time.Time `gorm:"not null;default:now()"`
	UpdatedAt time.Time `gorm:"not null;default:now()"`
}
