// Package fixture manages table rows in a throwaway test database. A
// Session connects to a safety-marked database, wipes every table, and
// exposes row insertion with type-based defaults for omitted columns.
// Trackers scope inserted rows to a test function and delete them again,
// in reverse insertion order, when the test finishes.
package fixture

import (
	"errors"
	"fmt"
	"strings"
)

// Row maps column names to values for one table row. An explicit nil value
// is stored as SQL NULL; an absent key is filled with a synthesized default.
type Row map[string]any

// SafetyMarker is the substring a database URL must contain before the
// fixture will touch it. It exists to keep a mistyped connection string
// from wiping a production database.
const SafetyMarker = "__TEST__"

var (
	ErrNoDatabaseURL         = errors.New("no database URL configured")
	ErrUnsafeTarget          = errors.New(`database URL must contain the "` + SafetyMarker + `" safety marker`)
	ErrUnknownTable          = errors.New("unknown table")
	ErrUnknownColumn         = errors.New("unknown column")
	ErrMissingPrimaryKey     = errors.New("missing primary key")
	ErrInvalidColumnValue    = errors.New("invalid column value")
	ErrUnsupportedColumnType = errors.New("unsupported column type")
)

// ValidateTarget checks that url names a test database. It runs before any
// connection attempt is made.
func ValidateTarget(url string) error {
	if url == "" {
		return ErrNoDatabaseURL
	}
	if !strings.Contains(url, SafetyMarker) {
		return fmt.Errorf("%w: %s", ErrUnsafeTarget, url)
	}
	return nil
}
