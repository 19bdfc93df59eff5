package account

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusInactive  Status = "inactive"
)

// Account is the tenant. Every queue row and message is scoped to one.
type Account struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey"`
	Email        string     `gorm:"uniqueIndex;not null"`
	Username     string     `gorm:"uniqueIndex;not null"`
	PasswordHash string     `gorm:"not null"`
	Status       Status     `gorm:"type:text;index;not null;default:'active'"`
	Settings     Settings   `gorm:"type:jsonb;serializer:json;not null;default:'{}'::jsonb"`
	LastLoginAt  *time.Time `gorm:"type:timestamptz"`
	CreatedAt    time.Time  `gorm:"not null;default:now()"`
	UpdatedAt    time.Time  `gorm:"not null;default:now()"`
}

func (a *Account) Active() bool { return a.Status == StatusActive }

type Document struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// Client is a persona the extension acts on behalf of. LinkedIn credentials are
// stored sealed by secret.Box.
type Client struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	AccountID uuid.UUID `gorm:"type:uuid;index;not null"`
	Name      string    `gorm:"not null"`

	AIActive   bool       `gorm:"not null;default:false"`
	AIProvider string     `gorm:"type:text;not null;default:'openai'"`
	Persona    string     `gorm:"type:text;not null;default:''"`
	Documents  []Document `gorm:"type:jsonb;serializer:json;not null;default:'[]'::jsonb"`

	LinkedInPhone    string `gorm:"column:linkedin_phone;type:text;not null;default:''"`
	LinkedInPassword string `gorm:"column:linkedin_password;type:text;not null;default:''"`

	TotalReplies     int64     `gorm:"not null;default:0"`
	Status           string    `gorm:"type:text;not null;default:'active'"` // active/paused/error
	LastMessageCheck time.Time `gorm:"not null;default:now()"`
	CreatedAt        time.Time `gorm:"not null;default:now()"`
	UpdatedAt        time.Time `gorm:"not null;default:now()"`
}
