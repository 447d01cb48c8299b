package db

import "errors"

// Sentinel errors for database operations.
var (
	ErrKeyNotFound = errors.New("db: key not found")
	ErrKeyExists   = errors.New("db: key already exists")
)

// Op constants map to Valkey/Redis command names (or SQL statements) for error context.
const (
	OpDel      = "DEL"
	OpHGetAll  = "HGETALL"
	OpHSet     = "HSET"
	OpExists   = "EXISTS"
	OpScan     = "SCAN"
	OpGet      = "GET"
	OpSet      = "SET"
	OpSetNX    = "SET NX"
	OpSAdd     = "SADD"
	OpSMembers = "SMEMBERS"
	OpZAdd     = "ZADD"
	OpZRange   = "ZRANGE"
	OpInsert   = "INSERT"
	OpSelect   = "SELECT"
	OpUpdate   = "UPDATE"
	OpMigrate  = "MIGRATE"
)

// Error wraps an underlying error with the operation name for diagnostics.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

// IsStoreError reports whether err originated in the persistence layer.
func IsStoreError(err error) bool {
	var dbErr *Error
	return errors.As(err, &dbErr)
}
