package analytics

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/reelforge-backend/internal/analytics/types"
)

type testAnalyticsService struct {
	last     types.UsageQueryRequest
	response *types.UsageQueryResponse
	err      error
}

func (s *testAnalyticsService) Usage(ctx context.Context, req types.UsageQueryRequest) (*types.UsageQueryResponse, error) {
	s.last = req
	if s.err != nil {
		return nil, s.err
	}
	if s.response == nil {
		s.response = &types.UsageQueryResponse{}
	}
	return s.response, nil
}

func (s *testAnalyticsService) called() bool {
	return s.last.UserID != uuid.Nil
}

func (s *testAnalyticsService) period() time.Duration {
	return s.last.End.Sub(s.last.Start)
}
