package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/pressly/goose/v3"

	"github.com/angelmondragon/reelforge-backend/internal/users"
	"github.com/angelmondragon/reelforge-backend/pkg/config"
	"github.com/angelmondragon/reelforge-backend/pkg/db"
	"github.com/angelmondragon/reelforge-backend/pkg/logger"
	"github.com/angelmondragon/reelforge-backend/pkg/migrate"
)

type options struct {
	cmd     string
	dir     string
	name    string
	version string
	email   string
	userID  string
	credits int
}

func main() {
	_ = godotenv.Load()

	var opts options
	flag.StringVar(&opts.cmd, "cmd", "up", "up|down|status|to|create|validate|seed-user|grant")
	flag.StringVar(&opts.dir, "dir", migrate.DefaultDir, "source migrations directory (create, validate)")
	flag.StringVar(&opts.name, "name", "", "migration name (create)")
	flag.StringVar(&opts.version, "version", "", "target version YYYYMMDDHHMMSS (to)")
	flag.StringVar(&opts.email, "email", "", "user email (seed-user)")
	flag.StringVar(&opts.userID, "user", "", "user id (grant)")
	flag.IntVar(&opts.credits, "credits", 0, "credit amount (seed-user, grant)")
	flag.Parse()

	if err := run(context.Background(), opts, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "migrate %s: %v\n", opts.cmd, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, out io.Writer) error {
	switch opts.cmd {
	case "create":
		if opts.name == "" {
			return errors.New("missing -name")
		}
		path, err := migrate.Create(opts.dir, opts.name, time.Now())
		if err != nil {
			return err
		}
		fmt.Fprintln(out, "created", path)
		return nil
	case "validate":
		if err := migrate.Validate(os.DirFS(opts.dir)); err != nil {
			return err
		}
		fmt.Fprintln(out, "migrations ok")
		return nil
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	logg := logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "cmd": opts.cmd})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer dbClient.Close()

	switch opts.cmd {
	case "seed-user":
		if opts.email == "" {
			return errors.New("missing -email")
		}
		user, err := seedUser(ctx, users.NewRepository(dbClient.DB()), opts.email, opts.credits)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "user %s (%s) has %d credits\n", user.ID, user.Email, user.Credits)
		return nil
	case "grant":
		id, err := uuid.Parse(opts.userID)
		if err != nil {
			return fmt.Errorf("invalid -user %q", opts.userID)
		}
		if err := users.NewRepository(dbClient.DB()).Grant(ctx, id, opts.credits); err != nil {
			return err
		}
		fmt.Fprintf(out, "granted %d credits to %s\n", opts.credits, id)
		return nil
	}

	sqlDB, err := dbClient.DB().DB()
	if err != nil {
		return err
	}
	m, err := migrate.New(sqlDB)
	if err != nil {
		return err
	}
	return schema(ctx, m, logg, opts, out)
}

func schema(ctx context.Context, m *migrate.Migrator, logg *logger.Logger, opts options, out io.Writer) error {
	switch opts.cmd {
	case "up":
		res, err := m.Up(ctx)
		migrate.LogResults(ctx, logg, res)
		return err
	case "down":
		res, err := m.Down(ctx)
		if res != nil {
			migrate.LogResults(ctx, logg, []*goose.MigrationResult{res})
		}
		return err
	case "to":
		target, err := migrate.ParseVersion(opts.version)
		if err != nil {
			return err
		}
		res, err := m.To(ctx, target)
		migrate.LogResults(ctx, logg, res)
		return err
	case "status":
		rows, err := m.Status(ctx)
		if err != nil {
			return err
		}
		for _, s := range rows {
			applied := "-"
			if !s.AppliedAt.IsZero() {
				applied = s.AppliedAt.UTC().Format(time.RFC3339)
			}
			fmt.Fprintf(out, "%-8s %-25s %s\n", s.State, applied, s.Source.Path)
		}
		return nil
	default:
		return fmt.Errorf("unknown command %q", opts.cmd)
	}
}

// seedUser creates the user or tops up an existing one.
func seedUser(ctx context.Context, repo *users.Repository, email string, credits int) (*users.UserDTO, error) {
	existing, err := repo.FindByEmail(ctx, users.NormalizeEmail(email))
	switch {
	case err == nil:
		if credits > 0 {
			if err := repo.Grant(ctx, existing.ID, credits); err != nil {
				return nil, err
			}
			existing.Credits += credits
		}
		return users.FromModel(existing), nil
	case errors.Is(err, users.ErrNotFound):
		created, err := repo.Create(ctx, users.CreateUserDTO{Email: email, Credits: credits})
		if err != nil {
			return nil, err
		}
		return users.FromModel(created), nil
	default:
		return nil, err
	}
}
