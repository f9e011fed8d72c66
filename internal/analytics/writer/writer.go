// Package writer streams analytics rows into BigQuery.
package writer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	"github.com/sethvargo/go-retry"
	"go.uber.org/multierr"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/reelforge-backend/internal/analytics/types"
	pkgbigquery "github.com/angelmondragon/reelforge-backend/pkg/bigquery"
)

const (
	defaultBatchSize      = 1
	defaultMaxAttempts    = 3
	defaultInitialBackoff = 250 * time.Millisecond
	defaultMaximumBackoff = 2 * time.Second
)

type Config struct {
	GenerationRunsTable string
	RenderEventsTable   string
	// BatchSize above 1 holds rows in memory until the batch fills or Flush runs.
	BatchSize   int
	RetryPolicy RetryPolicy
}

// RetryPolicy bounds retries of transient insert failures.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaximumBackoff time.Duration
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = defaultMaxAttempts
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = defaultInitialBackoff
	}
	if p.MaximumBackoff < p.InitialBackoff {
		p.MaximumBackoff = max(defaultMaximumBackoff, p.InitialBackoff)
	}
	return p
}

func (p RetryPolicy) backoff() retry.Backoff {
	b := retry.WithCappedDuration(p.MaximumBackoff, retry.NewExponential(p.InitialBackoff))
	return retry.WithMaxRetries(uint64(p.MaxAttempts-1), b)
}

type tableInserter interface {
	InsertRows(ctx context.Context, table string, rows []any) error
}

// pending holds the rows waiting for one table.
type pending[T any] struct {
	table string
	rows  []T
}

// BigQueryWriter is safe for concurrent use by Pub/Sub callbacks.
type BigQueryWriter struct {
	client    tableInserter
	batchSize int
	retry     RetryPolicy

	mu      sync.Mutex
	runs    pending[types.GenerationRunRow]
	renders pending[types.RenderEventRow]
}

func New(client *pkgbigquery.Client, cfg Config) (*BigQueryWriter, error) {
	if client == nil {
		return nil, errors.New("bigquery client required")
	}
	runs := strings.TrimSpace(cfg.GenerationRunsTable)
	if runs == "" {
		return nil, errors.New("generation runs table is required")
	}
	renders := strings.TrimSpace(cfg.RenderEventsTable)
	if renders == "" {
		return nil, errors.New("render events table is required")
	}
	return &BigQueryWriter{
		client:    client,
		batchSize: max(cfg.BatchSize, defaultBatchSize),
		retry:     cfg.RetryPolicy.withDefaults(),
		runs:      pending[types.GenerationRunRow]{table: runs},
		renders:   pending[types.RenderEventRow]{table: renders},
	}, nil
}

func (w *BigQueryWriter) InsertGenerationRun(ctx context.Context, row types.GenerationRunRow) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return push(ctx, w, &w.runs, row)
}

func (w *BigQueryWriter) InsertRenderEvent(ctx context.Context, row types.RenderEventRow) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return push(ctx, w, &w.renders, row)
}

// Flush writes every buffered row. Rows whose insert fails stay buffered.
func (w *BigQueryWriter) Flush(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return multierr.Combine(flush(ctx, w, &w.runs), flush(ctx, w, &w.renders))
}

// push queues row and flushes a full batch. On failure the new row is taken
// back out, since its message is nacked and will bring it again; the earlier
// rows belong to acked messages and stay queued for the next flush.
func push[T any](ctx context.Context, w *BigQueryWriter, p *pending[T], row T) error {
	p.rows = append(p.rows, row)
	if len(p.rows) < w.batchSize {
		return nil
	}
	if err := flush(ctx, w, p); err != nil {
		p.rows = p.rows[:len(p.rows)-1]
		return err
	}
	return nil
}

func flush[T any](ctx context.Context, w *BigQueryWriter, p *pending[T]) error {
	if len(p.rows) == 0 {
		return nil
	}
	rows := make([]any, len(p.rows))
	for i := range p.rows {
		rows[i] = &p.rows[i]
	}
	if err := w.insert(ctx, p.table, rows); err != nil {
		return err
	}
	p.rows = nil
	return nil
}

func (w *BigQueryWriter) insert(ctx context.Context, table string, rows []any) error {
	err := retry.Do(ctx, w.retry.backoff(), func(ctx context.Context) error {
		err := w.client.InsertRows(ctx, table, rows)
		if err != nil && transient(err) {
			return retry.RetryableError(err)
		}
		return err
	})
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		return fmt.Errorf("insert %d rows into %s: %w", len(rows), table, err)
	}
}

// transient reports whether every failure inside err is worth retrying. A
// single permanent row error makes the whole insert permanent.
func transient(err error) bool {
	var multi cbigquery.MultiError
	if errors.As(err, &multi) {
		return allTransient(multi)
	}
	var put cbigquery.PutMultiError
	if errors.As(err, &put) {
		errs := make([]error, 0, len(put))
		for _, rowErr := range put {
			errs = append(errs, rowErr.Errors)
		}
		return allTransient(errs)
	}
	var row *cbigquery.RowInsertionError
	if errors.As(err, &row) && row != nil {
		return allTransient(row.Errors)
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusRequestTimeout, http.StatusTooManyRequests, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return false
	}
	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.Aborted, codes.DeadlineExceeded, codes.Internal, codes.ResourceExhausted, codes.Unavailable:
			return true
		}
	}
	return false
}

func allTransient[E error](errs []E) bool {
	if len(errs) == 0 {
		return false
	}
	for _, e := range errs {
		if !transient(e) {
			return false
		}
	}
	return true
}

// EncodeJSON converts a payload for a BigQuery JSON column. Empty input is NULL.
func EncodeJSON(payload any) (cbigquery.NullJSON, error) {
	var raw []byte
	switch v := payload.(type) {
	case nil:
		return cbigquery.NullJSON{}, nil
	case cbigquery.NullJSON:
		return v, nil
	case json.RawMessage:
		raw = v
	case []byte:
		raw = v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return cbigquery.NullJSON{}, fmt.Errorf("marshal json: %w", err)
		}
		raw = b
	}
	if len(raw) == 0 {
		return cbigquery.NullJSON{}, nil
	}
	return cbigquery.NullJSON{Valid: true, JSONVal: string(raw)}, nil
}
