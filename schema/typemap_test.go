package schema

import (
	"testing"

	"github.com/cleanslate/csl/internal/testutil"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		typeName string
		want     Kind
	}{
		{"integer", KindInteger},
		{"bigint", KindInteger},
		{"smallint", KindInteger},
		{"serial", KindInteger},
		{"boolean", KindBoolean},
		{"real", KindFloat},
		{"double precision", KindFloat},
		{"numeric(10,2)", KindFloat},
		{"money", KindFloat},
		{"text", KindText},
		{"character varying(255)", KindText},
		{"character(8)", KindText},
		{"date", KindDate},
		{"time without time zone", KindTime},
		{"time with time zone", KindTime},
		{"timestamp without time zone", KindTimestamp},
		{"timestamp with time zone", KindTimestamp},
		{"uuid", KindUUID},
		{"bytea", KindBytes},
		{"json", KindJSON},
		{"jsonb", KindJSON},
		{"tsvector", KindUnknown},
		{"point", KindUnknown},
		{"integer[]", KindUnknown}, // arrays are not synthesizable
		{"", KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.typeName+"->"+tt.want.String(), func(t *testing.T) {
			testutil.Equal(t, KindOf(tt.typeName), tt.want)
		})
	}
}

func TestKindString(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{KindInteger, "integer"},
		{KindText, "text"},
		{KindBoolean, "boolean"},
		{KindUnknown, "unknown"},
		{Kind(999), "unknown"},
	}
	for _, tt := range tests {
		testutil.Equal(t, tt.kind.String(), tt.want)
	}
}
