package types

import (
	"time"

	"github.com/google/uuid"
)

// UsageQueryRequest selects one user's finished runs in [Start, End].
type UsageQueryRequest struct {
	UserID uuid.UUID
	Start  time.Time
	End    time.Time
}

// TimeSeriesPoint describes a single date/value pair returned by the query service.
type TimeSeriesPoint struct {
	Date  string `json:"date"`
	Value int64  `json:"value"`
}

// LabelValue is one bucket of a grouped count, such as runs per status.
type LabelValue struct {
	Label string `json:"label"`
	Value int64  `json:"value"`
}

// UsageQueryResponse summarises generation activity for the dashboard.
type UsageQueryResponse struct {
	RunsSeries    []TimeSeriesPoint `json:"runs"`
	CreditsSeries []TimeSeriesPoint `json:"credits"`
	ByStatus      []LabelValue      `json:"by_status"`
	AvgDurationMs float64           `json:"avg_duration_ms"`
	SuccessRate   float64           `json:"success_rate"`
}
