package db

import "errors"

var (
	// ErrKeyNotFound is returned for a missing document or cache entry.
	ErrKeyNotFound = errors.New("db: key not found")
	// ErrIndexNotFound is returned when FT.* names an index that does not exist.
	ErrIndexNotFound = errors.New("db: index not found")
	// ErrIndexExists is returned by CreateIndex for an already provisioned index.
	ErrIndexExists = errors.New("db: index already exists")
)

// Command names carried by Error.
const (
	OpCreateIndex = "FT.CREATE"
	OpDropIndex   = "FT.DROPINDEX"
	OpIndexInfo   = "FT.INFO"
	OpSearch      = "FT.SEARCH"
	OpJSONSet     = "JSON.SET"
	OpJSONGet     = "JSON.GET"
	OpDel         = "DEL"
	OpGet         = "GET"
	OpSet         = "SET"
)

// Error records the failed command and, when there is one, its key or index.
type Error struct {
	Op  string
	Key string
	Err error
}

func (e *Error) Error() string {
	if e.Key == "" {
		return e.Op + ": " + e.Err.Error()
	}
	return e.Op + " " + e.Key + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// IsNotFound reports whether err means a missing key or index.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrKeyNotFound) || errors.Is(err, ErrIndexNotFound)
}
