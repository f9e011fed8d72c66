package analytics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/reelforge-backend/internal/analytics/types"
)

type fakeUsageService struct {
	lastReq  types.UsageQueryRequest
	response *types.UsageQueryResponse
	err      error
}

func (f *fakeUsageService) Query(ctx context.Context, req types.UsageQueryRequest) (*types.UsageQueryResponse, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	if f.response == nil {
		f.response = &types.UsageQueryResponse{}
	}
	return f.response, nil
}

func TestServiceUsageReturnsResponse(t *testing.T) {
	fake := &fakeUsageService{}
	srv := &service{usage: fake}
	now := time.Now().UTC()
	req := types.UsageQueryRequest{
		UserID: uuid.New(),
		Start:  now,
		End:    now.Add(2 * time.Hour),
	}

	resp, err := srv.Usage(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp != fake.response {
		t.Fatalf("expected response to be forwarded")
	}
	if fake.lastReq.UserID != req.UserID {
		t.Fatalf("unexpected request user id: %s", fake.lastReq.UserID)
	}
	if !fake.lastReq.Start.Equal(req.Start) || !fake.lastReq.End.Equal(req.End) {
		t.Fatalf("unexpected request window: %v - %v", fake.lastReq.Start, fake.lastReq.End)
	}
}

func TestServiceUsagePropagatesError(t *testing.T) {
	want := errors.New("query failed")
	srv := &service{usage: &fakeUsageService{err: want}}
	now := time.Now().UTC()

	resp, err := srv.Usage(context.Background(), types.UsageQueryRequest{UserID: uuid.New(), Start: now, End: now.Add(time.Minute)})
	if err != want {
		t.Fatalf("expected error %v, got %v", want, err)
	}
	if resp != nil {
		t.Fatalf("expected nil response on error")
	}
}

func TestNewServiceRequiresClient(t *testing.T) {
	if _, err := NewService(nil); err == nil {
		t.Fatal("expected error for nil client")
	}
}
