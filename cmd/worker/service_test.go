package main

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/angelmondragon/reelforge-backend/pkg/logger"
)

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

type fakeRunner struct {
	ran bool
	err error
}

func (f *fakeRunner) Run(context.Context) error {
	f.ran = true
	return f.err
}

func testParams(consumer runner) ServiceParams {
	return ServiceParams{
		Logger:   logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		DB:       fakePinger{},
		Redis:    fakePinger{},
		PubSub:   fakePinger{},
		Consumer: consumer,
	}
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	params := testParams(&fakeRunner{})
	params.PubSub = nil
	if _, err := NewService(params); err == nil {
		t.Fatal("expected error without pubsub")
	}
	params = testParams(nil)
	if _, err := NewService(params); err == nil {
		t.Fatal("expected error without consumer")
	}
}

func TestRunStopsOnFailedPing(t *testing.T) {
	consumer := &fakeRunner{}
	params := testParams(consumer)
	params.Storage = fakePinger{err: errors.New("bucket missing")}
	svc, err := NewService(params)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if err := svc.Run(context.Background()); err == nil {
		t.Fatal("expected readiness failure")
	}
	if consumer.ran {
		t.Fatal("consumer should not start before dependencies are ready")
	}
}

func TestRunReturnsConsumerError(t *testing.T) {
	boom := errors.New("subscription deleted")
	consumer := &fakeRunner{err: boom}
	svc, err := NewService(testParams(consumer))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if err := svc.Run(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected consumer error, got %v", err)
	}
}
