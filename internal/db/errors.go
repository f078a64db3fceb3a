package db

import "errors"

// ErrKeyNotFound is returned by Get for a missing key.
var ErrKeyNotFound = errors.New("db: key not found")

// Operation names used in Error.
const (
	OpPing  = "PING"
	OpGet   = "GET"
	OpSet   = "SET"
	OpSetNX = "SET NX"
)

// Error wraps a store failure with the operation and key it concerned.
type Error struct {
	Op  string
	Key string
	Err error
}

func (e *Error) Error() string {
	if e.Key == "" {
		return "db: " + e.Op + ": " + e.Err.Error()
	}
	return "db: " + e.Op + " " + e.Key + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }
