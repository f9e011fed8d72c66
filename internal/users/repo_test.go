package users

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/reelforge-backend/pkg/db/dbtest"
	pkgerrors "github.com/angelmondragon/reelforge-backend/pkg/errors"
)

func TestRepositoryCreateAndFind(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))
	ctx := context.Background()

	created, err := repo.Create(ctx, CreateUserDTO{Email: " Ava@Example.com ", Credits: 40})
	require.NoError(t, err)
	assert.Equal(t, "ava@example.com", created.Email)

	byID, err := repo.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, 40, byID.Credits)

	byEmail, err := repo.FindByEmail(ctx, "ava@example.com")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byEmail.ID)

	_, err = repo.FindByID(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRepositoryCreateRejectsTakenEmail(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))
	ctx := context.Background()

	_, err := repo.Create(ctx, CreateUserDTO{Email: "ava@example.com"})
	require.NoError(t, err)

	_, err = repo.Create(ctx, CreateUserDTO{Email: "AVA@example.com "})
	assert.ErrorIs(t, err, ErrEmailTaken)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeConflict))
}

func TestRepositoryGrant(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))
	ctx := context.Background()

	created, err := repo.Create(ctx, CreateUserDTO{Email: "milo@example.com"})
	require.NoError(t, err)

	require.NoError(t, repo.Grant(ctx, created.ID, 25))
	user, err := repo.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, 25, user.Credits)

	assert.ErrorIs(t, repo.Grant(ctx, uuid.New(), 5), ErrNotFound)
	assert.Error(t, repo.Grant(ctx, created.ID, 0))
}

func TestFromModelNil(t *testing.T) {
	assert.Nil(t, FromModel(nil))
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "ava@example.com", NormalizeEmail("  AVA@Example.COM\n"))
}
