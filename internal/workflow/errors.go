package workflow

import (
	pkgerrors "github.com/angelmondragon/reelforge-backend/pkg/errors"
)

var (
	ErrRunNotFound = pkgerrors.New(pkgerrors.CodeNotFound, "workflow run not found")
	// ErrLeaseHeld is returned when another worker owns an unexpired lease on the run.
	ErrLeaseHeld   = pkgerrors.New(pkgerrors.CodeConflict, "workflow run is leased by another worker")
	ErrRunFinished = pkgerrors.New(pkgerrors.CodeStateConflict, "workflow run already finished")
)
