// Package enums holds the string enums stored in Postgres enum columns and
// accepted on the API. Each type lists its members once; validation and
// parsing go through member and parse.
package enums

import (
	"fmt"
	"slices"
)

func member[T ~string](set []T, v T) bool {
	return slices.Contains(set, v)
}

func parse[T ~string](what string, set []T, value string) (T, error) {
	if v := T(value); member(set, v) {
		return v, nil
	}
	var zero T
	return zero, fmt.Errorf("invalid %s %q", what, value)
}
