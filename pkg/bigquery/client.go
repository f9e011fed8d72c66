package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/googleapi"

	"github.com/angelmondragon/reelforge-backend/pkg/config"
	"github.com/angelmondragon/reelforge-backend/pkg/logger"
)

const verifyTimeout = 10 * time.Second

var (
	errProjectIDRequired    = errors.New("gcp project id is required")
	errDatasetRequired      = errors.New("bigquery dataset is required")
	errTableNameRequired    = errors.New("bigquery table name is required")
	errClientNotInitialized = errors.New("bigquery client not initialized")
)

// Client is the analytics warehouse: rows are streamed in by the analytics
// worker and read back by the usage endpoint.
type Client struct {
	bq      *bigquery.Client
	dataset *bigquery.Dataset
	project string
	runs    string
	renders string
}

// NewClient connects and fails unless the dataset and both tables exist.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.BigQueryConfig, logg *logger.Logger) (*Client, error) {
	project := strings.TrimSpace(gcp.ProjectID)
	dataset := strings.TrimSpace(cfg.Dataset)
	switch {
	case project == "":
		return nil, errProjectIDRequired
	case dataset == "":
		return nil, errDatasetRequired
	case len(configuredTables(cfg)) == 0:
		return nil, errTableNameRequired
	}
	bq, err := bigquery.NewClient(ctx, project, gcp.ClientOptions()...)
	if err != nil {
		return nil, fmt.Errorf("creating bigquery client: %w", err)
	}
	c := &Client{
		bq:      bq,
		dataset: bq.Dataset(dataset),
		project: project,
		runs:    strings.TrimSpace(cfg.GenerationRunsTable),
		renders: strings.TrimSpace(cfg.RenderEventsTable),
	}
	if err := c.Ping(ctx); err != nil {
		_ = bq.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "dataset", dataset), "bigquery.ready")
	}
	return c, nil
}

func configuredTables(cfg config.BigQueryConfig) []string {
	var tables []string
	for _, name := range []string{cfg.GenerationRunsTable, cfg.RenderEventsTable} {
		if trimmed := strings.TrimSpace(name); trimmed != "" {
			tables = append(tables, trimmed)
		}
	}
	return tables
}

// Ping reads the dataset and table metadata; tables are checked in parallel.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.dataset == nil {
		return errClientNotInitialized
	}
	ctx, cancel := context.WithTimeout(ctx, verifyTimeout)
	defer cancel()

	if _, err := c.dataset.Metadata(ctx); err != nil {
		return metadataError("dataset", c.dataset.DatasetID, err)
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, name := range []string{c.runs, c.renders} {
		if name == "" {
			continue
		}
		g.Go(func() error {
			if _, err := c.dataset.Table(name).Metadata(gctx); err != nil {
				return metadataError("table", name, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func metadataError(kind, name string, err error) error {
	if isNotFound(err) {
		return fmt.Errorf("%s %q does not exist", kind, name)
	}
	return fmt.Errorf("checking %s %q: %w", kind, name, err)
}

// InsertRows streams rows into table. Each row must be a ValueSaver or a
// struct the inserter can infer a schema for.
func (c *Client) InsertRows(ctx context.Context, table string, rows []any) error {
	if c == nil || c.dataset == nil {
		return errClientNotInitialized
	}
	table = strings.TrimSpace(table)
	if table == "" {
		return errTableNameRequired
	}
	if len(rows) == 0 {
		return nil
	}
	return c.dataset.Table(table).Inserter().Put(ctx, rows)
}

func (c *Client) Query(ctx context.Context, sql string, params []bigquery.QueryParameter) (*bigquery.RowIterator, error) {
	if c == nil || c.bq == nil {
		return nil, errClientNotInitialized
	}
	q := c.bq.Query(sql)
	q.Parameters = params
	return q.Read(ctx)
}

func (c *Client) GenerationRunsTable() string {
	if c == nil {
		return ""
	}
	return c.runs
}

func (c *Client) RenderEventsTable() string {
	if c == nil {
		return ""
	}
	return c.renders
}

// TableRef is the backtick quoted project.dataset.table name for SQL.
func (c *Client) TableRef(table string) string {
	if c == nil || c.dataset == nil {
		return ""
	}
	return fmt.Sprintf("`%s.%s.%s`", c.project, c.dataset.DatasetID, strings.TrimSpace(table))
}

func (c *Client) Close() error {
	if c == nil || c.bq == nil {
		return nil
	}
	return c.bq.Close()
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}
