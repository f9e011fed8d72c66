package dbtest

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/reelforge-backend/pkg/db/models"
)

// SeedUser inserts a user holding credits and returns its id.
func SeedUser(t *testing.T, conn *gorm.DB, credits int) uuid.UUID {
	t.Helper()
	id := uuid.New()
	require.NoError(t, conn.Create(&models.User{ID: id, Email: id.String() + "@example.com", Credits: credits}).Error)
	return id
}
