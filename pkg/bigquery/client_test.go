package bigquery

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"

	"github.com/angelmondragon/reelforge-backend/pkg/config"
)

func TestConfiguredTables(t *testing.T) {
	cfg := config.BigQueryConfig{
		GenerationRunsTable: " generation_runs ",
		RenderEventsTable:   "render_events",
	}

	tables := configuredTables(cfg)

	if len(tables) != 2 {
		t.Fatalf("expected 2 tables, got %d", len(tables))
	}
	if tables[0] != "generation_runs" {
		t.Fatalf("expected generation_runs, got %s", tables[0])
	}
	if tables[1] != "render_events" {
		t.Fatalf("expected render_events, got %s", tables[1])
	}
}

func TestConfiguredTablesSkipsBlank(t *testing.T) {
	tables := configuredTables(config.BigQueryConfig{GenerationRunsTable: "generation_runs", RenderEventsTable: "  "})
	if len(tables) != 1 {
		t.Fatalf("expected 1 table, got %d", len(tables))
	}
}

func TestMetadataErrorNamesMissingResource(t *testing.T) {
	err := metadataError("table", "render_events", &googleapi.Error{Code: http.StatusNotFound})
	if err == nil || err.Error() != `table "render_events" does not exist` {
		t.Fatalf("unexpected error %v", err)
	}
	cause := &googleapi.Error{Code: http.StatusForbidden}
	if err := metadataError("dataset", "reelforge", cause); !errors.As(err, new(*googleapi.Error)) {
		t.Fatalf("expected the api error to be wrapped, got %v", err)
	}
}

func TestTableRefQuotesFullName(t *testing.T) {
	c := &Client{project: "rf-prod", dataset: &bigquery.Dataset{ProjectID: "rf-prod", DatasetID: "reelforge"}}
	if got := c.TableRef(" generation_runs "); got != "`rf-prod.reelforge.generation_runs`" {
		t.Fatalf("unexpected table ref %s", got)
	}
}

func TestIsNotFound(t *testing.T) {
	if !isNotFound(&googleapi.Error{Code: http.StatusNotFound}) {
		t.Fatal("expected 404 to be not found")
	}
	if isNotFound(&googleapi.Error{Code: http.StatusForbidden}) {
		t.Fatal("403 should not be not found")
	}
	if isNotFound(errors.New("boom")) {
		t.Fatal("plain errors should not be not found")
	}
}

func TestNilClientGuards(t *testing.T) {
	var c *Client
	if err := c.InsertRows(context.Background(), "generation_runs", []any{1}); !errors.Is(err, errClientNotInitialized) {
		t.Fatalf("expected not initialized, got %v", err)
	}
	if err := c.Ping(context.Background()); !errors.Is(err, errClientNotInitialized) {
		t.Fatalf("expected ping to fail, got %v", err)
	}
	if c.GenerationRunsTable() != "" || c.TableRef("x") != "" {
		t.Fatal("nil client should report no table")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("nil close should be a no-op, got %v", err)
	}
}
