package query

import (
	"context"
	"errors"
	"fmt"
	"strings"

	cloudbigquery "cloud.google.com/go/bigquery"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"

	"github.com/angelmondragon/reelforge-backend/internal/analytics/types"
	"github.com/angelmondragon/reelforge-backend/pkg/bigquery"
	pkgerrors "github.com/angelmondragon/reelforge-backend/pkg/errors"
)

const (
	runsSeriesSQL = `
SELECT
  FORMAT_DATE('%%F', DATE(finished_at)) AS day,
  COUNT(*) AS value
FROM %s
WHERE user_id = @userID
  AND finished_at BETWEEN @start AND @end
GROUP BY day
ORDER BY day ASC
`

	creditsSeriesSQL = `
SELECT
  FORMAT_DATE('%%F', DATE(finished_at)) AS day,
  SUM(COALESCE(credits_spent, 0)) AS value
FROM %s
WHERE user_id = @userID
  AND finished_at BETWEEN @start AND @end
GROUP BY day
ORDER BY day ASC
`

	byStatusSQL = `
SELECT status AS label, COUNT(*) AS value
FROM %s
WHERE user_id = @userID
  AND finished_at BETWEEN @start AND @end
GROUP BY status
ORDER BY value DESC
`

	summarySQL = `
SELECT
  AVG(duration_ms) AS avg_duration_ms,
  SAFE_DIVIDE(COUNTIF(status = 'succeeded'), COUNT(*)) AS success_rate
FROM %s
WHERE user_id = @userID
  AND finished_at BETWEEN @start AND @end
`
)

// UsageService reports a user's generation activity from the generation_runs table.
type UsageService interface {
	Query(ctx context.Context, req types.UsageQueryRequest) (*types.UsageQueryResponse, error)
}

type rows interface {
	Next(dst any) error
}

type rowReader interface {
	read(ctx context.Context, sql string, params []cloudbigquery.QueryParameter) (rows, error)
}

type clientReader struct {
	client *bigquery.Client
}

func (r clientReader) read(ctx context.Context, sql string, params []cloudbigquery.QueryParameter) (rows, error) {
	it, err := r.client.Query(ctx, sql, params)
	if err != nil {
		return nil, err
	}
	return iteratorRows{it}, nil
}

type iteratorRows struct {
	it *cloudbigquery.RowIterator
}

func (r iteratorRows) Next(dst any) error { return r.it.Next(dst) }

type seriesRow struct {
	Day   string `bigquery:"day"`
	Value int64  `bigquery:"value"`
}

type labelRow struct {
	Label string `bigquery:"label"`
	Value int64  `bigquery:"value"`
}

type summaryRow struct {
	AvgDurationMs cloudbigquery.NullFloat64 `bigquery:"avg_duration_ms"`
	SuccessRate   cloudbigquery.NullFloat64 `bigquery:"success_rate"`
}

type usageService struct {
	reader   rowReader
	tableRef string
}

// NewUsageService builds a service backed by BigQuery.
func NewUsageService(client *bigquery.Client, table string) (UsageService, error) {
	if client == nil {
		return nil, fmt.Errorf("bigquery client required")
	}
	if strings.TrimSpace(table) == "" {
		return nil, fmt.Errorf("generation runs table required")
	}
	return newUsageService(clientReader{client: client}, client.TableRef(table)), nil
}

func newUsageService(reader rowReader, tableRef string) *usageService {
	return &usageService{reader: reader, tableRef: tableRef}
}

func (s *usageService) Query(ctx context.Context, req types.UsageQueryRequest) (*types.UsageQueryResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	params := []cloudbigquery.QueryParameter{
		{Name: "userID", Value: req.UserID.String()},
		{Name: "start", Value: req.Start},
		{Name: "end", Value: req.End},
	}

	runs, err := s.querySeries(ctx, fmt.Sprintf(runsSeriesSQL, s.tableRef), params)
	if err != nil {
		return nil, err
	}
	spent, err := s.querySeries(ctx, fmt.Sprintf(creditsSeriesSQL, s.tableRef), params)
	if err != nil {
		return nil, err
	}
	byStatus, err := s.queryLabels(ctx, fmt.Sprintf(byStatusSQL, s.tableRef), params)
	if err != nil {
		return nil, err
	}
	summary, err := s.querySummary(ctx, fmt.Sprintf(summarySQL, s.tableRef), params)
	if err != nil {
		return nil, err
	}

	resp := &types.UsageQueryResponse{
		RunsSeries:    runs,
		CreditsSeries: spent,
		ByStatus:      byStatus,
	}
	if summary.AvgDurationMs.Valid {
		resp.AvgDurationMs = summary.AvgDurationMs.Float64
	}
	if summary.SuccessRate.Valid {
		resp.SuccessRate = summary.SuccessRate.Float64
	}
	return resp, nil
}

func validateRequest(req types.UsageQueryRequest) error {
	if req.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if req.Start.IsZero() || req.End.IsZero() {
		return pkgerrors.New(pkgerrors.CodeValidation, "start and end are required")
	}
	if req.End.Before(req.Start) {
		return pkgerrors.New(pkgerrors.CodeValidation, "end must be after start")
	}
	return nil
}

func (s *usageService) querySeries(ctx context.Context, sql string, params []cloudbigquery.QueryParameter) ([]types.TimeSeriesPoint, error) {
	it, err := s.reader.read(ctx, sql, params)
	if err != nil {
		return nil, fmt.Errorf("query series: %w", err)
	}
	points := []types.TimeSeriesPoint{}
	for {
		var row seriesRow
		if err := it.Next(&row); err != nil {
			if errors.Is(err, iterator.Done) {
				break
			}
			return nil, fmt.Errorf("reading series row: %w", err)
		}
		points = append(points, types.TimeSeriesPoint{Date: row.Day, Value: row.Value})
	}
	return points, nil
}

func (s *usageService) queryLabels(ctx context.Context, sql string, params []cloudbigquery.QueryParameter) ([]types.LabelValue, error) {
	it, err := s.reader.read(ctx, sql, params)
	if err != nil {
		return nil, fmt.Errorf("query status counts: %w", err)
	}
	result := []types.LabelValue{}
	for {
		var row labelRow
		if err := it.Next(&row); err != nil {
			if errors.Is(err, iterator.Done) {
				break
			}
			return nil, fmt.Errorf("reading status row: %w", err)
		}
		result = append(result, types.LabelValue{Label: row.Label, Value: row.Value})
	}
	return result, nil
}

func (s *usageService) querySummary(ctx context.Context, sql string, params []cloudbigquery.QueryParameter) (summaryRow, error) {
	var row summaryRow
	it, err := s.reader.read(ctx, sql, params)
	if err != nil {
		return row, fmt.Errorf("query summary: %w", err)
	}
	if err := it.Next(&row); err != nil && !errors.Is(err, iterator.Done) {
		return row, fmt.Errorf("reading summary row: %w", err)
	}
	return row, nil
}
