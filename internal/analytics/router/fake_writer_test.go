package router

import (
	"context"

	"github.com/angelmondragon/reelforge-backend/internal/analytics/types"
)

type fakeWriter struct {
	runs    []types.GenerationRunRow
	renders []types.RenderEventRow
	err     error
}

func (f *fakeWriter) InsertGenerationRun(_ context.Context, row types.GenerationRunRow) error {
	f.runs = append(f.runs, row)
	return f.err
}

func (f *fakeWriter) InsertRenderEvent(_ context.Context, row types.RenderEventRow) error {
	f.renders = append(f.renders, row)
	return f.err
}
