package action

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// Repo is the Postgres-backed Store. All mutual exclusion lives in the statements
// below; nothing in process guards queue rows.
type Repo struct {
	DB *gorm.DB
}

// claimSQL selects and locks eligible rows in one statement. SKIP LOCKED makes a
// concurrent claimer pass over rows another claimer is taking, and the predicate is
// re-evaluated on the latest row version, so a row is handed to at most one caller.
const claimSQL = `
with cte as (
  select id
  from actions
  where account_id = ?
    and (
      (status = 'pending' and (next_run_at is null or next_run_at <= ?))
      or (status = 'processing' and locked_at <= ?)
    )
  order by created_at asc
  for update skip locked
  limit ?
)
update actions
set status = 'processing',
    lock_owner = ?,
    locked_at = ?,
    attempt_count = attempt_count + 1,
    updated_at = ?
where id in (select id from cte)
returning *;
`

func (r *Repo) Claim(ctx context.Context, accountID uuid.UUID, owner string, now, staleBefore time.Time, limit int) ([]Action, error) {
	var rows []Action
	err := r.DB.WithContext(ctx).
		Raw(claimSQL, accountID, now, staleBefore, limit, owner, now, now).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	// returning * does not keep the cte order
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].CreatedAt.Before(rows[j].CreatedAt) })
	return rows, nil
}

// Get loads one action of the account; other tenants' rows read as ErrNotFound.
func (r *Repo) Get(ctx context.Context, accountID, id uuid.UUID) (*Action, error) {
	var a Action
	if err := r.DB.WithContext(ctx).
		Where("id = ? AND account_id = ?", id, accountID).
		First(&a).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

// Settle moves a processing action to s. The write only lands if the row is still
// processing with the attempt count the caller read; otherwise it reports false
// and changes nothing.
func (r *Repo) Settle(ctx context.Context, a *Action, s Settlement, now time.Time) (bool, error) {
	updates := map[string]any{
		"status":     string(s.Status),
		"locked_at":  nil,
		"lock_owner": nil,
		"updated_at": now,
	}
	if s.NextRunAt != nil {
		updates["next_run_at"] = *s.NextRunAt
	}
	if s.ErrorCode != nil {
		updates["last_error_code"] = *s.ErrorCode
	}
	if s.ErrorMessage != nil {
		updates["last_error_message"] = *s.ErrorMessage
	}

	res := r.DB.WithContext(ctx).Model(&Action{}).
		Where("id = ? AND account_id = ? AND status = ? AND attempt_count = ?",
			a.ID, a.AccountID, string(StatusProcessing), a.AttemptCount).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Stale pages through processing actions of every account whose lock is older
// than staleBefore, ordered by id and starting after the given id.
func (r *Repo) Stale(ctx context.Context, staleBefore time.Time, after uuid.UUID, limit int) ([]Action, error) {
	var rows []Action
	err := r.DB.WithContext(ctx).
		Where("status = ? AND locked_at <= ? AND id > ?", string(StatusProcessing), staleBefore, after).
		Order("id asc").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *Repo) Enqueue(ctx context.Context, a *Action) error {
	return Insert(r.DB.WithContext(ctx), a)
}

// Insert validates and creates a pending action using db, which may be a
// transaction owned by another producer.
func Insert(db *gorm.DB, a *Action) error {
	if !a.Type.Valid() {
		return ErrInvalidType
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.Status = StatusPending
	a.LockedAt, a.LockOwner = nil, nil
	if len(a.Payload) == 0 {
		a.Payload = []byte("{}")
	}
	return db.Create(a).Error
}

type ListFilter struct {
	Statuses []Status
	Limit    int
}

// List returns the account's newest actions first. A limit outside 1..200 falls back to 50.
func (r *Repo) List(ctx context.Context, accountID uuid.UUID, f ListFilter) ([]Action, error) {
	q := r.DB.WithContext(ctx).Model(&Action{}).Where("account_id = ?", accountID)
	if len(f.Statuses) > 0 {
		st := make([]string, 0, len(f.Statuses))
		for _, s := range f.Statuses {
			st = append(st, string(s))
		}
		q = q.Where("status = any(?)", pq.Array(st))
	}
	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var rows []Action
	err := q.Order("created_at desc").Limit(limit).Find(&rows).Error
	return rows, err
}
