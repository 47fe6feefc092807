package repository

import (
	"database/sql"
	"time"
)

func nullStr(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullU64(v *uint64) any {
	if v == nil {
		return nil
	}
	return *v
}

func strPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func u64Ptr(ni sql.NullInt64) *uint64 {
	if !ni.Valid {
		return nil
	}
	v := uint64(ni.Int64)
	return &v
}

// utc normalizes times read back from the driver.
func utc(t time.Time) time.Time { return t.UTC() }
