package message

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"

	"inboxrelay/internal/action"
)

var (
	ErrNotFound  = errors.New("message not found")
	ErrDuplicate = errors.New("duplicate idempotency key")
)

type Store struct {
	DB *gorm.DB
}

func (s *Store) FindByKey(ctx context.Context, accountID uuid.UUID, key string) (*Message, error) {
	var m Message
	if err := s.DB.WithContext(ctx).
		Where("account_id = ? AND idempotency_key = ?", accountID, key).
		First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

// Create inserts m. A collision on (account_id, idempotency_key) is reported as
// ErrDuplicate.
func (s *Store) Create(ctx context.Context, m *Message) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if err := s.DB.WithContext(ctx).Create(m).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// AttachReply enqueues a and records the reply on m in one transaction, so a
// message never points at a missing action and no action exists without its
// message.
func (s *Store) AttachReply(ctx context.Context, m *Message, replyText string, a *action.Action) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := action.Insert(tx, a); err != nil {
			return err
		}
		res := tx.Model(&Message{}).
			Where("id = ? AND account_id = ?", m.ID, m.AccountID).
			Updates(map[string]any{
				"reply_text": replyText,
				"action_id":  a.ID,
				"updated_at": time.Now(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		m.ReplyText = &replyText
		m.ActionID = &a.ID
		return nil
	})
}

// MarkFailed records that no reply will be sent for m.
func (s *Store) MarkFailed(ctx context.Context, m *Message) error {
	err := s.DB.WithContext(ctx).Model(&Message{}).
		Where("id = ? AND account_id = ?", m.ID, m.AccountID).
		Updates(map[string]any{"reply_status": string(ReplyFailed), "updated_at": time.Now()}).Error
	if err == nil {
		m.ReplyStatus = ReplyFailed
	}
	return err
}

// ResolveReplies moves queued messages of one conversation to sent or failed.
// Only rows of the given account and client are touched.
func (s *Store) ResolveReplies(ctx context.Context, accountID, clientID uuid.UUID, conversationID string, sent bool) (int64, error) {
	to := ReplyFailed
	if sent {
		to = ReplySent
	}
	res := s.DB.WithContext(ctx).Model(&Message{}).
		Where("account_id = ? AND client_id = ? AND conversation_id = ? AND reply_status = ?",
			accountID, clientID, conversationID, string(ReplyQueued)).
		Updates(map[string]any{"reply_status": string(to), "updated_at": time.Now()})
	return res.RowsAffected, res.Error
}

type ListFilter struct {
	ReplyStatuses  []ReplyStatus
	ConversationID string
	Limit          int
}

func (s *Store) List(ctx context.Context, accountID uuid.UUID, f ListFilter) ([]Message, error) {
	q := s.DB.WithContext(ctx).Model(&Message{}).Where("account_id = ?", accountID)
	if len(f.ReplyStatuses) > 0 {
		st := make([]string, 0, len(f.ReplyStatuses))
		for _, r := range f.ReplyStatuses {
			st = append(st, string(r))
		}
		q = q.Where("reply_status = any(?)", pq.Array(st))
	}
	if f.ConversationID != "" {
		q = q.Where("conversation_id = ?", f.ConversationID)
	}
	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var rows []Message
	err := q.Order("received_at desc").Limit(limit).Find(&rows).Error
	return rows, err
}
