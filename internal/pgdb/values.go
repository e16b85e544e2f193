package pgdb

import (
	"fmt"

	"github.com/google/uuid"
)

// AsInt64 coerces an integer value from a collected row.
func AsInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int32:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int:
		return int64(n), nil
	}
	return 0, fmt.Errorf("not an integer: %T", v)
}

// AsString coerces a textual value from a collected row. uuid columns
// are scanned by pgx as raw bytes and are rendered canonically.
func AsString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case [16]byte:
		return uuid.UUID(s).String()
	case fmt.Stringer:
		return s.String()
	}
	return fmt.Sprintf("%v", v)
}
