package account

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrNotFound = errors.New("account not found")
	ErrInactive = errors.New("account is not active")
	ErrExists   = errors.New("account already exists")
)

type Store struct {
	DB *gorm.DB
}

func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Account, error) {
	var a Account
	if err := s.DB.WithContext(ctx).Where("id = ?", id).First(&a).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

// Active returns the account only if it exists and its status is active.
func (s *Store) Active(ctx context.Context, id uuid.UUID) (*Account, error) {
	a, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !a.Active() {
		return a, ErrInactive
	}
	return a, nil
}

func (s *Store) ByEmail(ctx context.Context, email string) (*Account, error) {
	var a Account
	email = strings.TrimSpace(strings.ToLower(email))
	if err := s.DB.WithContext(ctx).Where("email = ?", email).First(&a).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (s *Store) Create(ctx context.Context, a *Account) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.Email = strings.TrimSpace(strings.ToLower(a.Email))
	if a.Status == "" {
		a.Status = StatusActive
	}
	if err := s.DB.WithContext(ctx).Create(a).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrExists
		}
		return err
	}
	return nil
}

func (s *Store) TouchLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	return s.DB.WithContext(ctx).Model(&Account{}).
		Where("id = ?", id).
		Updates(map[string]any{"last_login_at": at, "updated_at": at}).Error
}

func (s *Store) UpdateSettings(ctx context.Context, id uuid.UUID, settings Settings) error {
	res := s.DB.WithContext(ctx).Model(&Account{ID: id}).
		Select("settings", "updated_at").
		Updates(&Account{Settings: settings, UpdatedAt: time.Now()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Client returns the client only when it is owned by accountID. A client that
// exists under another account is reported as ErrNotFound.
func (s *Store) Client(ctx context.Context, accountID, clientID uuid.UUID) (*Client, error) {
	var c Client
	if err := s.DB.WithContext(ctx).
		Where("id = ? AND account_id = ?", clientID, accountID).
		First(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (s *Store) CreateClient(ctx context.Context, c *Client) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.AIProvider == "" {
		c.AIProvider = "openai"
	}
	if c.Status == "" {
		c.Status = "active"
	}
	if c.Documents == nil {
		c.Documents = []Document{}
	}
	return s.DB.WithContext(ctx).Create(c).Error
}

func (s *Store) IncrementReplies(ctx context.Context, accountID, clientID uuid.UUID, n int) error {
	return s.DB.WithContext(ctx).Model(&Client{}).
		Where("id = ? AND account_id = ?", clientID, accountID).
		Updates(map[string]any{
			"total_replies":      gorm.Expr("total_replies + ?", n),
			"last_message_check": time.Now(),
			"updated_at":         time.Now(),
		}).Error
}
