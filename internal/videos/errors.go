package videos

import (
	pkgerrors "github.com/angelmondragon/reelforge-backend/pkg/errors"
)

var (
	ErrVideoNotFound       = pkgerrors.New(pkgerrors.CodeNotFound, "video not found")
	ErrItemNotFound        = pkgerrors.New(pkgerrors.CodeNotFound, "video item not found")
	ErrVideoAlreadyRunning = pkgerrors.New(pkgerrors.CodeStateConflict, "video generation already running")
	ErrVideoNotRunning     = pkgerrors.New(pkgerrors.CodeStateConflict, "video generation is not running")
	ErrVersionConflict     = pkgerrors.New(pkgerrors.CodeVersionConflict, "item was modified concurrently")
)
