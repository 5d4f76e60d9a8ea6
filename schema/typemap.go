package schema

import "strings"

// Kind is a coarse classification of a column's declared type, used to pick
// synthesized default values and to validate caller-supplied ones.
type Kind int

const (
	KindUnknown Kind = iota
	KindInteger
	KindFloat
	KindText
	KindBoolean
	KindDate
	KindTime
	KindTimestamp
	KindUUID
	KindBytes
	KindJSON
)

var kindNames = map[Kind]string{
	KindUnknown:   "unknown",
	KindInteger:   "integer",
	KindFloat:     "float",
	KindText:      "text",
	KindBoolean:   "boolean",
	KindDate:      "date",
	KindTime:      "time",
	KindTimestamp: "timestamp",
	KindUUID:      "uuid",
	KindBytes:     "bytes",
	KindJSON:      "json",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// KindOf maps a PostgreSQL type name (from format_type()) to a Kind.
// Unrecognized types map to KindUnknown.
func KindOf(typeName string) Kind {
	// Normalize: strip modifiers like (255), (10,2) for matching.
	base := strings.ToLower(typeName)
	if idx := strings.Index(base, "("); idx > 0 {
		base = strings.TrimSpace(base[:idx])
	}

	switch base {
	case "boolean", "bool":
		return KindBoolean

	case "smallint", "integer", "bigint",
		"int2", "int4", "int8",
		"serial", "bigserial", "smallserial",
		"serial2", "serial4", "serial8",
		"oid":
		return KindInteger

	case "real", "double precision", "float4", "float8",
		"numeric", "decimal", "money":
		return KindFloat

	case "text", "varchar", "character varying", "character", "char",
		"bpchar", "name", "citext":
		return KindText

	case "date":
		return KindDate

	case "time", "timetz",
		"time without time zone", "time with time zone":
		return KindTime

	case "timestamp", "timestamptz",
		"timestamp without time zone", "timestamp with time zone":
		return KindTimestamp

	case "uuid":
		return KindUUID

	case "bytea":
		return KindBytes

	case "json", "jsonb":
		return KindJSON

	default:
		return KindUnknown
	}
}
