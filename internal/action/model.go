package action

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

func (s Status) Terminal() bool { return s == StatusCompleted || s == StatusFailed }

type Type string

const (
	TypeSendMessage    Type = "sendMessage"
	TypeRefreshSession Type = "refreshSession"
)

func (t Type) Valid() bool { return t == TypeSendMessage || t == TypeRefreshSession }

// Action is one unit of work for the extension. Lock fields are set iff Status is
// processing. Rows are never deleted.
type Action struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	AccountID uuid.UUID `gorm:"type:uuid;index;not null"`
	ClientID  uuid.UUID `gorm:"type:uuid;index;not null"`

	Type    Type            `gorm:"type:text;index;not null"` // sendMessage/refreshSession
	Payload json.RawMessage `gorm:"type:jsonb;not null;default:'{}'::jsonb"`

	Status       Status `gorm:"type:text;index;not null;default:'pending'"`
	AttemptCount int    `gorm:"not null;default:0"`

	LastErrorCode    *string `gorm:"type:text"`
	LastErrorMessage *string `gorm:"type:text"`

	LockedAt  *time.Time `gorm:"type:timestamptz;index"`
	LockOwner *string    `gorm:"type:text"`
	NextRunAt *time.Time `gorm:"type:timestamptz;index"`

	CreatedAt time.Time `gorm:"not null;default:now()"`
	UpdatedAt time.Time `gorm:"not null;default:now()"`
}

// SendMessagePayload is the payload of a sendMessage action.
type SendMessagePayload struct {
	ConversationID string `json:"conversationId"`
	MessageText    string `json:"messageText"`
}

// ConversationID extracts payload.conversationId for sendMessage actions.
func (a *Action) ConversationID() string {
	if a.Type != TypeSendMessage || len(a.Payload) == 0 {
		return ""
	}
	var p SendMessagePayload
	if err := json.Unmarshal(a.Payload, &p); err != nil {
		return ""
	}
	return p.ConversationID
}

func NewSendMessage(accountID, clientID uuid.UUID, p SendMessagePayload) (*Action, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return &Action{
		ID:        uuid.New(),
		AccountID: accountID,
		ClientID:  clientID,
		Type:      TypeSendMessage,
		Payload:   b,
		Status:    StatusPending,
	}, nil
}
