package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/reelforge-backend/pkg/enums"
)

// CreditLedgerEntry records an immutable change to a user's credit balance.
type CreditLedgerEntry struct {
	ID           uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID       uuid.UUID       `gorm:"column:user_id;type:uuid;not null"`
	VideoID      *uuid.UUID      `gorm:"column:video_id;type:uuid"`
	ItemID       *uuid.UUID      `gorm:"column:item_id;type:uuid"`
	AssetKind    enums.AssetKind `gorm:"column:asset_kind;type:asset_kind_enum;not null"`
	Amount       int             `gorm:"column:amount;not null"`
	BalanceAfter int             `gorm:"column:balance_after;not null"`
	CreatedAt    time.Time       `gorm:"column:created_at;autoCreateTime"`
}
