// Package storage defines the blob abstraction generated assets are written to.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
)

// ErrObjectNotFound is returned by Get when the key does not exist.
var ErrObjectNotFound = errors.New("storage object not found")

// Object describes a stored blob.
type Object struct {
	Key         string
	Bucket      string
	ContentType string
	Size        int64
}

// Blob is implemented by the gcs and s3 drivers.
type Blob interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (Object, error)
	Get(ctx context.Context, key string) ([]byte, error)
	PublicURL(key string) string
	Bucket() string
}

// Pinger is implemented by drivers that can check their bucket is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ObjectKey builds `<prefix>/<videoID>/<kind>/<itemID>-<random>.<ext>` so regenerated
// assets never overwrite the object a previous URL points to.
func ObjectKey(prefix string, videoID uuid.UUID, kind string, itemID uuid.UUID, ext string) string {
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		ext = "bin"
	}
	name := fmt.Sprintf("%s-%s.%s", itemID, uuid.NewString()[:8], ext)
	return path.Join(strings.Trim(prefix, "/"), videoID.String(), kind, name)
}

// JoinURL joins a public base and an object key.
func JoinURL(base, key string) string {
	return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(key, "/")
}
