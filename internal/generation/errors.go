package generation

import (
	"errors"
	"fmt"

	pkgerrors "github.com/angelmondragon/reelforge-backend/pkg/errors"
)

var (
	ErrGenerationFailed = pkgerrors.New(pkgerrors.CodeGenerationFailed, "asset generation failed")
	// ErrNoCandidatesReturned is the GenerationFailed case where the provider answered
	// without a usable payload.
	ErrNoCandidatesReturned = pkgerrors.Wrap(pkgerrors.CodeGenerationFailed, ErrGenerationFailed, "provider returned no candidates")
	ErrStorageFailed        = pkgerrors.New(pkgerrors.CodeStorageFailed, "storing generated asset failed")

	ErrCharacterAlreadyGenerated = pkgerrors.New(pkgerrors.CodeConflict, "character image already generated")
	ErrSceneImageMissing         = pkgerrors.New(pkgerrors.CodeValidation, "scene image must exist before its video")
	ErrNarrationMissing          = pkgerrors.New(pkgerrors.CodeValidation, "scene has no narration to voice")
	ErrUnauthenticated           = pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
)

// generationFailed keeps both the sentinel and the provider cause reachable through errors.Is.
func generationFailed(err error, msg string) error {
	if err == nil {
		return pkgerrors.Wrap(pkgerrors.CodeGenerationFailed, ErrGenerationFailed, msg)
	}
	return pkgerrors.Wrap(pkgerrors.CodeGenerationFailed, errors.Join(ErrGenerationFailed, err), fmt.Sprintf("%s: %v", msg, err))
}

func storageFailed(err error, msg string) error {
	return pkgerrors.Wrap(pkgerrors.CodeStorageFailed, errors.Join(ErrStorageFailed, err), fmt.Sprintf("%s: %v", msg, err))
}

func noCandidates(err error) error {
	return pkgerrors.Wrap(pkgerrors.CodeGenerationFailed, errors.Join(ErrNoCandidatesReturned, err), fmt.Sprintf("provider returned no candidates: %v", err))
}
