// Package dbtest opens sqlite databases carrying the application schema for
// repository tests.
package dbtest

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  email TEXT NOT NULL UNIQUE,
  credits INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS credit_ledger_entries (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  video_id TEXT,
  item_id TEXT,
  asset_kind TEXT NOT NULL,
  amount INTEGER NOT NULL,
  balance_after INTEGER NOT NULL,
  created_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS videos (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  prompt TEXT NOT NULL,
  style TEXT NOT NULL,
  music TEXT NOT NULL DEFAULT '',
  voice TEXT NOT NULL DEFAULT '',
  aspect_ratio TEXT NOT NULL,
  duration_seconds INTEGER NOT NULL,
  images_per_prompt INTEGER NOT NULL DEFAULT 1,
  multi_angle INTEGER NOT NULL DEFAULT 0,
  video_model_tier TEXT NOT NULL DEFAULT 'standard',
  dramatic INTEGER NOT NULL DEFAULT 0,
  title TEXT NOT NULL DEFAULT '',
  run_status TEXT NOT NULL DEFAULT 'idle',
  run_error TEXT,
  active_run_id TEXT,
  cancel_requested INTEGER NOT NULL DEFAULT 0,
  render_id TEXT,
  bucket_name TEXT,
  render_status TEXT NOT NULL DEFAULT 'none',
  render_error TEXT,
  render_requested_at DATETIME,
  video_url TEXT,
  version INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS video_characters (
  id TEXT PRIMARY KEY,
  video_id TEXT NOT NULL,
  position INTEGER NOT NULL,
  name TEXT NOT NULL,
  image_prompt TEXT NOT NULL,
  image_storage_id TEXT,
  image_url TEXT,
  in_process INTEGER NOT NULL DEFAULT 0,
  version INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME,
  UNIQUE (video_id, name)
);`,
	`CREATE TABLE IF NOT EXISTS video_scenes (
  id TEXT PRIMARY KEY,
  video_id TEXT NOT NULL,
  position INTEGER NOT NULL,
  characters_in_scene TEXT NOT NULL DEFAULT '[]',
  narration TEXT NOT NULL DEFAULT '',
  image_prompt TEXT NOT NULL,
  video_prompt TEXT NOT NULL,
  image_storage_id TEXT,
  image_url TEXT,
  clip_storage_id TEXT,
  clip_url TEXT,
  audio_storage_id TEXT,
  audio_url TEXT,
  words TEXT NOT NULL DEFAULT '[]',
  image_in_process INTEGER NOT NULL DEFAULT 0,
  video_in_process INTEGER NOT NULL DEFAULT 0,
  audio_in_process INTEGER NOT NULL DEFAULT 0,
  version INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS video_scene_angles (
  id TEXT PRIMARY KEY,
  scene_id TEXT NOT NULL,
  position INTEGER NOT NULL,
  image_prompt TEXT NOT NULL,
  video_prompt TEXT NOT NULL,
  image_storage_id TEXT,
  image_url TEXT,
  clip_storage_id TEXT,
  clip_url TEXT,
  version INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS workflow_runs (
  id TEXT PRIMARY KEY,
  video_id TEXT NOT NULL,
  user_id TEXT NOT NULL,
  status TEXT NOT NULL,
  resume_count INTEGER NOT NULL DEFAULT 0,
  lease_owner TEXT,
  lease_expires_at DATETIME,
  error TEXT,
  credits_spent INTEGER NOT NULL DEFAULT 0,
  started_at DATETIME NOT NULL,
  resumed_at DATETIME,
  finished_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS workflow_steps (
  id TEXT PRIMARY KEY,
  run_id TEXT NOT NULL,
  name TEXT NOT NULL,
  completed_at DATETIME NOT NULL,
  UNIQUE (run_id, name)
);`,
	`CREATE TABLE IF NOT EXISTS outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  next_attempt_at DATETIME,
  last_error TEXT
);`,
	`CREATE TABLE IF NOT EXISTS outbox_dlq (
  id TEXT PRIMARY KEY,
  event_id TEXT NOT NULL UNIQUE,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  topic TEXT NOT NULL DEFAULT '',
  payload_json TEXT NOT NULL,
  error_reason TEXT NOT NULL,
  error_message TEXT,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  failed_at DATETIME,
  created_at DATETIME
);`,
}

// Open returns an isolated in-memory database with every table created.
func Open(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	sqlDB, err := conn.DB()
	require.NoError(t, err)
	// a single connection keeps concurrent writers serialized in sqlite
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		require.NoError(t, conn.Exec(stmt).Error)
	}
	return conn
}
