package credits

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/reelforge-backend/pkg/db/models"
)

var errNoRows = errors.New("no rows affected")

// Repository manages balances and the append-only credit ledger.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Balance(ctx context.Context, userID uuid.UUID) (int, error)
	Debit(ctx context.Context, userID uuid.UUID, amount int) (int, error)
	CreateEntry(ctx context.Context, entry *models.CreditLedgerEntry) error
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.CreditLedgerEntry, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a credits repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Balance(ctx context.Context, userID uuid.UUID) (int, error) {
	var user models.User
	err := r.db.WithContext(ctx).Select("credits").First(&user, "id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, ErrUserNotFound
	}
	if err != nil {
		return 0, err
	}
	return user.Credits, nil
}

// Debit subtracts amount only while the balance covers it and returns the new balance.
func (r *repository) Debit(ctx context.Context, userID uuid.UUID, amount int) (int, error) {
	res := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ? AND credits >= ?", userID, amount).
		UpdateColumns(map[string]any{
			"credits":    gorm.Expr("credits - ?", amount),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		balance, err := r.Balance(ctx, userID)
		if err != nil {
			return 0, err
		}
		return 0, InsufficientCredits(amount, balance)
	}
	return r.Balance(ctx, userID)
}

func (r *repository) CreateEntry(ctx context.Context, entry *models.CreditLedgerEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.CreditLedgerEntry, error) {
	var entries []models.CreditLedgerEntry
	q := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
