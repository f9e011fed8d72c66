package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/reelforge-backend/internal/users"
	"github.com/angelmondragon/reelforge-backend/pkg/db/dbtest"
)

func TestRunCreateThenValidate(t *testing.T) {
	dir := t.TempDir()
	var out bytes.Buffer

	require.NoError(t, run(context.Background(), options{cmd: "create", dir: dir, name: "render jobs"}, &out))
	assert.Contains(t, out.String(), "created")

	out.Reset()
	require.NoError(t, run(context.Background(), options{cmd: "validate", dir: dir}, &out))
	assert.Equal(t, "migrations ok\n", out.String())

	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.sql"), []byte("SELECT 1;"), 0o644))
	assert.Error(t, run(context.Background(), options{cmd: "validate", dir: dir}, &out))
}

func TestRunCreateNeedsName(t *testing.T) {
	err := run(context.Background(), options{cmd: "create", dir: t.TempDir()}, &bytes.Buffer{})
	assert.ErrorContains(t, err, "missing -name")
}

func TestSeedUserCreatesThenTopsUp(t *testing.T) {
	repo := users.NewRepository(dbtest.Open(t))
	ctx := context.Background()

	first, err := seedUser(ctx, repo, "Lena@Example.com", 30)
	require.NoError(t, err)
	assert.Equal(t, "lena@example.com", first.Email)
	assert.Equal(t, 30, first.Credits)

	again, err := seedUser(ctx, repo, " lena@example.com", 20)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, 50, again.Credits)

	stored, err := repo.FindByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, 50, stored.Credits)
}
