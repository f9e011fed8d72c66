// Package migrate applies the goose SQL migrations embedded in this package.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strconv"

	"github.com/pressly/goose/v3"
	"github.com/pressly/goose/v3/lock"
)

// DefaultDir is where new migrations are written, relative to the module root.
const DefaultDir = "pkg/migrate/migrations"

//go:embed migrations/*.sql
var embedded embed.FS

// Migrations returns the schema shipped with the binary.
func Migrations() fs.FS {
	sub, err := fs.Sub(embedded, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

type options struct {
	fsys    fs.FS
	dialect goose.Dialect
	locked  bool
}

type Option func(*options)

// WithFS replaces the embedded migrations.
func WithFS(fsys fs.FS) Option {
	return func(o *options) { o.fsys = fsys }
}

// WithDialect overrides Postgres. Only Postgres takes the advisory lock.
func WithDialect(d goose.Dialect) Option {
	return func(o *options) { o.dialect = d }
}

// Migrator moves the database schema between versions.
type Migrator struct {
	provider *goose.Provider
}

// New builds a Migrator over db. Against Postgres every operation holds a session
// advisory lock, so services auto-migrating at the same time apply each file once.
func New(db *sql.DB, opts ...Option) (*Migrator, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	o := options{fsys: Migrations(), dialect: goose.DialectPostgres}
	for _, opt := range opts {
		opt(&o)
	}

	var popts []goose.ProviderOption
	if o.dialect == goose.DialectPostgres {
		locker, err := lock.NewPostgresSessionLocker()
		if err != nil {
			return nil, fmt.Errorf("migration lock: %w", err)
		}
		popts = append(popts, goose.WithSessionLocker(locker))
	}
	provider, err := goose.NewProvider(o.dialect, db, o.fsys, popts...)
	if err != nil {
		return nil, fmt.Errorf("goose provider: %w", err)
	}
	return &Migrator{provider: provider}, nil
}

// Up applies every pending migration.
func (m *Migrator) Up(ctx context.Context) ([]*goose.MigrationResult, error) {
	res, err := m.provider.Up(ctx)
	if err != nil {
		return res, fmt.Errorf("goose up: %w", err)
	}
	return res, nil
}

// Down rolls back the most recent migration.
func (m *Migrator) Down(ctx context.Context) (*goose.MigrationResult, error) {
	res, err := m.provider.Down(ctx)
	if err != nil {
		return res, fmt.Errorf("goose down: %w", err)
	}
	return res, nil
}

// To moves the schema up or down until target is the newest applied version.
func (m *Migrator) To(ctx context.Context, target int64) ([]*goose.MigrationResult, error) {
	current, err := m.provider.GetDBVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("get db version: %w", err)
	}
	switch {
	case current == target:
		return nil, nil
	case current < target:
		res, err := m.provider.UpTo(ctx, target)
		if err != nil {
			return res, fmt.Errorf("goose up-to %d: %w", target, err)
		}
		return res, nil
	default:
		res, err := m.provider.DownTo(ctx, target)
		if err != nil {
			return res, fmt.Errorf("goose down-to %d: %w", target, err)
		}
		return res, nil
	}
}

func (m *Migrator) Status(ctx context.Context) ([]*goose.MigrationStatus, error) {
	return m.provider.Status(ctx)
}

func (m *Migrator) Version(ctx context.Context) (int64, error) {
	return m.provider.GetDBVersion(ctx)
}

// ParseVersion accepts the YYYYMMDDHHMMSS prefix of a migration file.
func ParseVersion(s string) (int64, error) {
	if len(s) != len(versionLayout) {
		return 0, fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS)", s)
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS): %w", s, err)
	}
	return v, nil
}
