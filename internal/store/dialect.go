package store

import (
	"strconv"
	"strings"
	"time"

	"parcelsync/internal/schema"
)

// Dialect captures what differs between SQL targets.
type Dialect struct {
	Name string

	// Placeholder returns the bind marker of the n-th argument, from 1.
	Placeholder func(n int) string

	// EncodeTime converts a timestamp into a bind value.
	EncodeTime func(t time.Time) any

	// ColumnType maps a canonical type to a column type.
	ColumnType func(t schema.Type) string

	// GeometryType and KeyType are the SHAPE and GLOBALID column types.
	GeometryType string
	KeyType      string

	// IfNotExists is prepended to CREATE TABLE when supported.
	IfNotExists bool

	// IsUniqueViolation recognises a primary key conflict.
	IsUniqueViolation func(err error) bool

	// IsAlreadyExists recognises a CREATE of an existing table.
	IsAlreadyExists func(err error) bool
}

// SQLite stores timestamps as RFC 3339 text.
var SQLite = Dialect{
	Name:        "sqlite",
	Placeholder: func(int) string { return "?" },
	EncodeTime:  func(t time.Time) any { return t.UTC().Format(time.RFC3339Nano) },
	ColumnType: func(t schema.Type) string {
		switch t {
		case schema.TypeNumber:
			return "REAL"
		case schema.TypeInteger:
			return "INTEGER"
		default:
			return "TEXT"
		}
	},
	GeometryType: "TEXT",
	KeyType:      "TEXT",
	IfNotExists:  true,
	IsUniqueViolation: func(err error) bool {
		return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
	},
	IsAlreadyExists: func(err error) bool {
		return err != nil && strings.Contains(err.Error(), "already exists")
	},
}

// Oracle uses positional :n binds and native timestamps.
var Oracle = Dialect{
	Name:        "oracle",
	Placeholder: func(n int) string { return ":" + strconv.Itoa(n) },
	EncodeTime:  func(t time.Time) any { return t.UTC() },
	ColumnType: func(t schema.Type) string {
		switch t {
		case schema.TypeNumber:
			return "NUMBER"
		case schema.TypeInteger:
			return "NUMBER(19)"
		case schema.TypeTimestamp:
			return "TIMESTAMP(9)"
		default:
			return "VARCHAR2(4000)"
		}
	},
	GeometryType: "CLOB",
	KeyType:      "VARCHAR2(38)",
	IsUniqueViolation: func(err error) bool {
		return err != nil && strings.Contains(err.Error(), "ORA-00001")
	},
	IsAlreadyExists: func(err error) bool {
		return err != nil && strings.Contains(err.Error(), "ORA-00955")
	},
}

// DialectFor returns the dialect of a configured driver name.
func DialectFor(driver string) (Dialect, bool) {
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3":
		return SQLite, true
	case "oracle", "oci":
		return Oracle, true
	}
	return Dialect{}, false
}

// binds returns n comma-separated placeholders starting at from.
func (d Dialect) binds(from, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = d.Placeholder(from + i)
	}
	return strings.Join(parts, ", ")
}
