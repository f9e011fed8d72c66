package migrate

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

const versionLayout = "20060102150405"

var slugRe = regexp.MustCompile(`[^a-z0-9]+`)

const sqlTemplate = `-- +goose Up
-- +goose StatementBegin
-- %[1]s
-- +goose StatementEnd

-- +goose Down
-- +goose StatementBegin
-- rollback %[1]s
-- +goose StatementEnd
`

// Slug turns a free-form migration name into the file name suffix.
func Slug(name string) string {
	s := slugRe.ReplaceAllString(strings.ToLower(name), "_")
	return strings.Trim(s, "_")
}

// Create writes an empty goose migration named <version>_<slug>.sql into dir, stamped
// with now. The version must sort after every migration already in dir since
// out-of-order files are rejected at apply time.
func Create(dir, name string, now time.Time) (string, error) {
	if dir == "" {
		return "", errors.New("dir is required")
	}
	slug := Slug(name)
	if slug == "" {
		return "", fmt.Errorf("name %q has no usable characters", name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %q: %w", dir, err)
	}

	version := now.UTC().Format(versionLayout)
	latest, err := latestVersion(os.DirFS(dir))
	if err != nil {
		return "", err
	}
	if latest != "" && version <= latest {
		return "", fmt.Errorf("version %s does not sort after the latest migration %s", version, latest)
	}

	full := filepath.Join(dir, version+"_"+slug+".sql")
	f, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create migration: %w", err)
	}
	if _, err := fmt.Fprintf(f, sqlTemplate, slug); err != nil {
		f.Close()
		return "", fmt.Errorf("write migration %q: %w", full, err)
	}
	return full, f.Close()
}
