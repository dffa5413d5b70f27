package database

import (
	"database/sql"
	"time"
)

// Helpers for nullable columns. Timestamps are stored as Unix seconds.

// NullUnix converts an optional time to a nullable Unix timestamp
func NullUnix(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}

// TimeFromNull converts a nullable Unix timestamp to an optional UTC time
func TimeFromNull(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0).UTC()
	return &t
}

// FromUnix converts a Unix timestamp to UTC time
func FromUnix(v int64) time.Time {
	return time.Unix(v, 0).UTC()
}

// NullFloat converts an optional float to a nullable column value
func NullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

// FloatFromNull converts a nullable float column to an optional float
func FloatFromNull(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

// NullString converts an optional string to a nullable column value
func NullString(v *string) sql.NullString {
	if v == nil || *v == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

// StringFromNull converts a nullable string column to an optional string
func StringFromNull(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

// BoolToInt converts a bool to the 0/1 integer SQLite stores
func BoolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Queryer is satisfied by *sql.DB and *sql.Tx
type Queryer interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}

var (
	_ Queryer = (*sql.DB)(nil)
	_ Queryer = (*sql.Tx)(nil)
)
