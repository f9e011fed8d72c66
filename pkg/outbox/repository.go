package outbox

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/reelforge-backend/pkg/db/models"
)

const maxLastErrorLen = 1024

var errTxRequired = errors.New("transaction required")

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Insert(tx *gorm.DB, event models.OutboxEvent) error {
	if tx == nil {
		return errTxRequired
	}
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	return tx.Create(&event).Error
}

// FetchDue returns unpublished rows whose retry time has passed, oldest first.
// On Postgres the rows stay locked until tx ends and concurrent publishers
// skip them. Rows at maxAttempts or beyond belong to the DLQ.
func (r *Repository) FetchDue(tx *gorm.DB, now time.Time, limit, maxAttempts int) ([]models.OutboxEvent, error) {
	if tx == nil {
		return nil, errTxRequired
	}
	q := tx.Where("published_at IS NULL").
		Where("next_attempt_at IS NULL OR next_attempt_at <= ?", now.UTC())
	if maxAttempts > 0 {
		q = q.Where("attempt_count < ?", maxAttempts)
	}
	if tx.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
	}
	var rows []models.OutboxEvent
	err := q.Order("created_at ASC").Order("id ASC").Limit(limit).Find(&rows).Error
	return rows, err
}

// MarkPublishedTx counts the successful attempt too, so every published row
// has attempt_count >= 1.
func (r *Repository) MarkPublishedTx(tx *gorm.DB, id uuid.UUID, at time.Time) error {
	return tx.Model(&models.OutboxEvent{}).
		Where("id = ? AND published_at IS NULL", id).
		Updates(map[string]any{
			"published_at":    at.UTC(),
			"attempt_count":   gorm.Expr("attempt_count + 1"),
			"next_attempt_at": nil,
		}).Error
}

// ScheduleRetryTx counts a failed attempt and keeps the row out of FetchDue until at.
func (r *Repository) ScheduleRetryTx(tx *gorm.DB, id uuid.UUID, cause error, at time.Time) error {
	return tx.Model(&models.OutboxEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"last_error":      truncateError(cause),
			"attempt_count":   gorm.Expr("attempt_count + 1"),
			"next_attempt_at": at.UTC(),
		}).Error
}

// MarkTerminalTx pins attempt_count at terminalAttempts so FetchDue never returns the row again.
func (r *Repository) MarkTerminalTx(tx *gorm.DB, id uuid.UUID, cause error, terminalAttempts int) error {
	return tx.Model(&models.OutboxEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"last_error":      truncateError(cause),
			"attempt_count":   terminalAttempts,
			"next_attempt_at": nil,
		}).Error
}

// DeletePublishedBefore removes up to limit rows published before cutoff, oldest
// first; a non-positive limit removes them all. A positive minAttemptCount limits
// the sweep to rows that needed at least that many tries.
func (r *Repository) DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, minAttemptCount, limit int) (int64, error) {
	if tx == nil {
		tx = r.db
	}
	base := tx.WithContext(ctx)
	expired := base.Model(&models.OutboxEvent{}).Select("id").
		Where("published_at IS NOT NULL AND published_at < ?", cutoff)
	if minAttemptCount > 0 {
		expired = expired.Where("attempt_count >= ?", minAttemptCount)
	}
	if limit > 0 {
		expired = expired.Order("published_at").Limit(limit)
	}
	res := base.Where("id IN (?)", expired).Delete(&models.OutboxEvent{})
	return res.RowsAffected, res.Error
}

func truncateError(err error) string {
	if err == nil {
		return ""
	}
	return truncate(err.Error(), maxLastErrorLen)
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
