package fixture

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cleanslate/csl/schema"
)

// Epoch is the value synthesized for omitted date and timestamp columns.
var Epoch = time.Date(1970, time.January, 1, 0, 0, 0, 0, time.UTC)

// Synthesize produces a deterministic value for an omitted column based on
// its declared type: zero for numbers, the empty string for text, false
// for booleans, the Unix epoch for dates and timestamps, midnight for
// times, the nil UUID, empty bytes, and an empty JSON object. The same
// value is reused on every call, so columns under a uniqueness constraint
// should not be left to the synthesizer.
//
// Synthesize is never called for primary key columns or for columns the
// caller supplied, including explicit nils.
func Synthesize(col *schema.Column) (any, error) {
	switch col.Kind {
	case schema.KindInteger:
		return int64(0), nil
	case schema.KindFloat:
		return float64(0), nil
	case schema.KindText:
		return "", nil
	case schema.KindBoolean:
		return false, nil
	case schema.KindDate, schema.KindTimestamp:
		return Epoch, nil
	case schema.KindTime:
		return "00:00:00", nil
	case schema.KindUUID:
		return uuid.Nil, nil
	case schema.KindBytes:
		return []byte{}, nil
	case schema.KindJSON:
		return "{}", nil
	default:
		return nil, fmt.Errorf("%w: cannot synthesize a value for column %q of type %q",
			ErrUnsupportedColumnType, col.Name, col.TypeName)
	}
}
