package utils

import "database/sql"

// ToSQLStr creates new sql str instance
func ToSQLStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// PtrToSQLStr treats nil and empty string as absent
func PtrToSQLStr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return ToSQLStr(*s)
}

// FromSQLStr returns string from sql.NullString
func FromSQLStr(sqlStr sql.NullString) string {
	if sqlStr.Valid {
		return sqlStr.String
	}
	return ""
}

// FromSQLStrPtr returns nil for invalid value
func FromSQLStrPtr(sqlStr sql.NullString) *string {
	if sqlStr.Valid {
		res := sqlStr.String
		return &res
	}
	return nil
}
