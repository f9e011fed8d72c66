package analytics

import (
	"context"
	"fmt"

	"github.com/angelmondragon/reelforge-backend/internal/analytics/query"
	"github.com/angelmondragon/reelforge-backend/internal/analytics/types"
	"github.com/angelmondragon/reelforge-backend/pkg/bigquery"
)

// Service provides usage reports built from finished generation runs.
type Service interface {
	// Usage returns one user's generation activity for the requested window.
	Usage(ctx context.Context, req types.UsageQueryRequest) (*types.UsageQueryResponse, error)
}

type service struct {
	usage query.UsageService
}

// NewService builds an analytics service backed by BigQuery.
func NewService(client *bigquery.Client) (Service, error) {
	if client == nil {
		return nil, fmt.Errorf("bigquery client required")
	}

	usage, err := query.NewUsageService(client, client.GenerationRunsTable())
	if err != nil {
		return nil, err
	}

	return &service{usage: usage}, nil
}

func (s *service) Usage(ctx context.Context, req types.UsageQueryRequest) (*types.UsageQueryResponse, error) {
	return s.usage.Query(ctx, req)
}
