package credits

import (
	"fmt"

	pkgerrors "github.com/angelmondragon/reelforge-backend/pkg/errors"
)

var (
	ErrInsufficientCredits = pkgerrors.New(pkgerrors.CodeInsufficientCredits, "insufficient credits")
	ErrUserNotFound        = pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
)

// InsufficientCredits wraps ErrInsufficientCredits with the amounts involved.
func InsufficientCredits(required, available int) error {
	return pkgerrors.Wrap(
		pkgerrors.CodeInsufficientCredits,
		ErrInsufficientCredits,
		fmt.Sprintf("insufficient credits: required %d, available %d", required, available),
	).WithDetails(map[string]int{"required": required, "available": available})
}
