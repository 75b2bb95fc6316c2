package datasource

import (
	"context"
	"errors"
)

// ErrUnavailable is returned when no database server is configured.
var ErrUnavailable = errors.New("database server not configured")

// SessionFactory opens sessions against a database server.
type SessionFactory interface {
	// Open connects to the named database. An empty name uses the server's
	// default database.
	Open(ctx context.Context, database string) (Session, error)

	// Available reports whether a server is configured at all. Callers use
	// it to choose demo or heuristic fallbacks without attempting a connection.
	Available() bool
}

// UnavailableFactory is the SessionFactory used when no server is configured.
type UnavailableFactory struct{}

// Open always fails with ErrUnavailable.
func (UnavailableFactory) Open(context.Context, string) (Session, error) {
	return nil, ErrUnavailable
}

// Available always returns false.
func (UnavailableFactory) Available() bool { return false }

var _ SessionFactory = UnavailableFactory{}
