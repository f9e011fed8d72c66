package dbtypes

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONList stores a slice as a JSON array column (jsonb in Postgres, text in sqlite).
// A NULL column scans to an empty list and an empty list is written as [].
type JSONList[T any] []T

func (l *JSONList[T]) Scan(src any) error {
	if src == nil {
		*l = JSONList[T]{}
		return nil
	}

	var raw []byte
	switch v := src.(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("JSONList: unsupported Scan type %T", src)
	}
	if len(raw) == 0 {
		*l = JSONList[T]{}
		return nil
	}

	var items []T
	if err := json.Unmarshal(raw, &items); err != nil {
		return fmt.Errorf("JSONList: decode: %w", err)
	}
	if items == nil {
		items = []T{}
	}
	*l = items
	return nil
}

func (l JSONList[T]) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	out, err := json.Marshal([]T(l))
	if err != nil {
		return nil, fmt.Errorf("JSONList: encode: %w", err)
	}
	return string(out), nil
}
