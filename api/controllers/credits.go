package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/reelforge-backend/api/responses"
	"github.com/angelmondragon/reelforge-backend/api/validators"
	"github.com/angelmondragon/reelforge-backend/pkg/db/models"
	"github.com/angelmondragon/reelforge-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/reelforge-backend/pkg/errors"
	"github.com/angelmondragon/reelforge-backend/pkg/logger"
)

type creditsReader interface {
	Balance(ctx context.Context, userID uuid.UUID) (int, error)
	History(ctx context.Context, userID uuid.UUID, limit int) ([]models.CreditLedgerEntry, error)
}

type ledgerEntryResponse struct {
	ID           uuid.UUID       `json:"id"`
	VideoID      *uuid.UUID      `json:"video_id,omitempty"`
	ItemID       *uuid.UUID      `json:"item_id,omitempty"`
	AssetKind    enums.AssetKind `json:"asset_kind"`
	Amount       int             `json:"amount"`
	BalanceAfter int             `json:"balance_after"`
	CreatedAt    time.Time       `json:"created_at"`
}

type creditsResponse struct {
	Balance int                   `json:"balance"`
	Recent  []ledgerEntryResponse `json:"recent"`
}

// CreditsBalance returns the caller's balance and most recent ledger entries.
func CreditsBalance(svc creditsReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "credits service unavailable"))
			return
		}
		userID, err := requireUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", 20, 0, 100)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		balance, err := svc.Balance(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		resp := creditsResponse{Balance: balance, Recent: []ledgerEntryResponse{}}
		if limit > 0 {
			entries, err := svc.History(r.Context(), userID, limit)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			for _, e := range entries {
				resp.Recent = append(resp.Recent, ledgerEntryResponse{
					ID:           e.ID,
					VideoID:      e.VideoID,
					ItemID:       e.ItemID,
					AssetKind:    e.AssetKind,
					Amount:       e.Amount,
					BalanceAfter: e.BalanceAfter,
					CreatedAt:    e.CreatedAt,
				})
			}
		}
		responses.WriteSuccess(w, resp)
	}
}
