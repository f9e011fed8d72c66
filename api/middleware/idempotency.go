package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/reelforge-backend/api/responses"
	pkgerrors "github.com/angelmondragon/reelforge-backend/pkg/errors"
	"github.com/angelmondragon/reelforge-backend/pkg/logger"
)

const (
	defaultIdempotencyTTL  = 24 * time.Hour
	criticalIdempotencyTTL = 7 * 24 * time.Hour
)

// assetActions are the POST /videos/{id}/... suffixes that spend credits.
var assetActions = map[string]bool{"render": true, "image": true, "video": true, "audio": true}

// IdempotencyStore is the redis surface Idempotency needs.
type IdempotencyStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

// idempotencyRecord is stored as pending while the first request runs and
// replaced by the captured response once it finishes.
type idempotencyRecord struct {
	RequestHash string `json:"request_hash"`
	Pending     bool   `json:"pending,omitempty"`
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body,omitempty"`
}

// Idempotency makes credit-spending POSTs safe to retry. The first request
// for a key reserves it before the handler runs, so a concurrent duplicate
// gets a conflict instead of a second execution. Server errors release the
// key; anything else is replayed byte for byte until the TTL ends.
func Idempotency(store IdempotencyStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			ttl, ok := routeTTL(r.Method, routePattern(r))
			if !ok || store == nil {
				next.ServeHTTP(w, r)
				return
			}
			id := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
			if id == "" {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required"))
				return
			}
			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			sum := sha256.Sum256(body)
			hash := hex.EncodeToString(sum[:])
			key := store.IdempotencyKey(requestScope(r), id)

			reservation, _ := json.Marshal(idempotencyRecord{RequestHash: hash, Pending: true})
			won, err := store.SetNX(ctx, key, string(reservation), ttl)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve idempotency key"))
				return
			}
			if !won {
				replay(ctx, w, store, key, hash, logg)
				return
			}

			capture := &responseCapture{ResponseWriter: w}
			next.ServeHTTP(capture, r)

			// the client may have gone away; the outcome must still be recorded
			bg := context.WithoutCancel(ctx)
			if capture.code() >= http.StatusInternalServerError {
				if err := store.Del(bg, key); err != nil && logg != nil {
					logg.Error(ctx, "idempotency.release_failed", err)
				}
				return
			}
			done, _ := json.Marshal(idempotencyRecord{
				RequestHash: hash,
				Status:      capture.code(),
				ContentType: capture.Header().Get("Content-Type"),
				Body:        capture.body.Bytes(),
			})
			if err := store.Set(bg, key, string(done), ttl); err != nil && logg != nil {
				logg.Error(ctx, "idempotency.store_failed", err)
			}
		})
	}
}

func replay(ctx context.Context, w http.ResponseWriter, store IdempotencyStore, key, hash string, logg *logger.Logger) {
	stored, err := store.Get(ctx, key)
	if errors.Is(err, redis.Nil) {
		// released by a failed first attempt between our SetNX and Get
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "request with this Idempotency-Key is still in progress"))
		return
	}
	if err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read idempotency record"))
		return
	}
	var rec idempotencyRecord
	if err := json.Unmarshal([]byte(stored), &rec); err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record"))
		return
	}
	switch {
	case rec.RequestHash != hash:
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
	case rec.Pending:
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "request with this Idempotency-Key is still in progress"))
	default:
		if rec.ContentType != "" {
			w.Header().Set("Content-Type", rec.ContentType)
		}
		w.Header().Set("Idempotent-Replayed", "true")
		w.WriteHeader(rec.Status)
		_, _ = w.Write(rec.Body)
	}
}

// requestScope keys records by caller and path so two users can share an
// Idempotency-Key value.
func requestScope(r *http.Request) string {
	return UserIDFromContext(r.Context()) + "|" + r.Method + "|" + r.URL.Path
}

// routePattern prefers the chi pattern. Group middleware runs before the
// subrouter resolves, so a wildcard pattern falls back to the raw path.
func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" && !strings.Contains(p, "*") {
			return p
		}
	}
	return strings.TrimSuffix(r.URL.Path, "/")
}

// routeTTL picks the record lifetime: a week for video creation and a day
// for per-asset generation and render requests.
func routeTTL(method, pattern string) (time.Duration, bool) {
	if method != http.MethodPost {
		return 0, false
	}
	if pattern == "/api/v1/videos" {
		return criticalIdempotencyTTL, true
	}
	rest, ok := strings.CutPrefix(pattern, "/api/v1/videos/")
	if !ok {
		return 0, false
	}
	segments := strings.Split(rest, "/")
	if len(segments) < 2 || !assetActions[segments[len(segments)-1]] {
		return 0, false
	}
	return defaultIdempotencyTTL, true
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (c *responseCapture) WriteHeader(code int) {
	if c.status == 0 {
		c.status = code
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *responseCapture) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

func (c *responseCapture) code() int {
	if c.status == 0 {
		return http.StatusOK
	}
	return c.status
}
