package credits

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/reelforge-backend/pkg/db/models"
	"github.com/angelmondragon/reelforge-backend/pkg/enums"
	"github.com/angelmondragon/reelforge-backend/pkg/logger"
)

// Service meters generation spend against user balances.
type Service interface {
	Balance(ctx context.Context, userID uuid.UUID) (int, error)
	Check(ctx context.Context, userID uuid.UUID, cost int) error
	Debit(ctx context.Context, input DebitInput) (*models.CreditLedgerEntry, error)
	DebitTx(ctx context.Context, tx *gorm.DB, input DebitInput) (*models.CreditLedgerEntry, error)
	History(ctx context.Context, userID uuid.UUID, limit int) ([]models.CreditLedgerEntry, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type service struct {
	repo Repository
	tx   txRunner
	logg *logger.Logger
}

// DebitInput captures one billable generation.
type DebitInput struct {
	UserID  uuid.UUID       `json:"user_id"`
	VideoID *uuid.UUID      `json:"video_id,omitempty"`
	ItemID  *uuid.UUID      `json:"item_id,omitempty"`
	Kind    enums.AssetKind `json:"asset_kind"`
	Amount  int             `json:"amount"`
}

// NewService wires a credits service with the provided repository.
func NewService(repo Repository, tx txRunner, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("credits repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{repo: repo, tx: tx, logg: logg}, nil
}

func (s *service) Balance(ctx context.Context, userID uuid.UUID) (int, error) {
	if userID == uuid.Nil {
		return 0, fmt.Errorf("user id is required")
	}
	return s.repo.Balance(ctx, userID)
}

// Check fails with InsufficientCredits when the balance cannot cover cost.
func (s *service) Check(ctx context.Context, userID uuid.UUID, cost int) error {
	balance, err := s.Balance(ctx, userID)
	if err != nil {
		return err
	}
	if balance < cost {
		return InsufficientCredits(cost, balance)
	}
	return nil
}

func (s *service) Debit(ctx context.Context, input DebitInput) (*models.CreditLedgerEntry, error) {
	var entry *models.CreditLedgerEntry
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		entry, err = s.DebitTx(ctx, tx, input)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// DebitTx performs the conditional debit and appends the ledger row inside tx.
func (s *service) DebitTx(ctx context.Context, tx *gorm.DB, input DebitInput) (*models.CreditLedgerEntry, error) {
	if input.UserID == uuid.Nil {
		return nil, fmt.Errorf("user id is required")
	}
	if input.Amount <= 0 {
		return nil, fmt.Errorf("debit amount must be positive")
	}
	if !input.Kind.IsValid() {
		return nil, fmt.Errorf("invalid asset kind %q", input.Kind)
	}

	repo := s.repo.WithTx(tx)
	balance, err := repo.Debit(ctx, input.UserID, input.Amount)
	if err != nil {
		return nil, err
	}

	entry := &models.CreditLedgerEntry{
		ID:           uuid.New(),
		UserID:       input.UserID,
		VideoID:      input.VideoID,
		ItemID:       input.ItemID,
		AssetKind:    input.Kind,
		Amount:       -input.Amount,
		BalanceAfter: balance,
	}
	if err := repo.CreateEntry(ctx, entry); err != nil {
		return nil, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"user_id":       input.UserID.String(),
			"asset_kind":    input.Kind,
			"amount":        input.Amount,
			"balance_after": balance,
		})
		s.logg.Info(logCtx, "credits.debited")
	}
	return entry, nil
}

func (s *service) History(ctx context.Context, userID uuid.UUID, limit int) ([]models.CreditLedgerEntry, error) {
	if userID == uuid.Nil {
		return nil, fmt.Errorf("user id is required")
	}
	return s.repo.ListByUser(ctx, userID, limit)
}
