package state

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"time"
)

// Record describes a stored session without its payload.
type Record struct {
	ID        string
	UpdatedAt time.Time
	Size      int64
}

// Store is the durable collaborator behind the session store.
// Load returns (nil, nil) when the session does not exist.
type Store interface {
	Save(ctx context.Context, id string, blob []byte) error
	Load(ctx context.Context, id string) ([]byte, error)
}

// Lister enumerates stored sessions.
type Lister interface {
	List(ctx context.Context) ([]Record, error)
}

// Deleter removes stored sessions.
type Deleter interface {
	Delete(ctx context.Context, id string) error
}

// Migrator handles database schema migrations.
type Migrator interface {
	Migrate() error
}

// Backend is a store that can also list, delete, and be closed.
type Backend interface {
	io.Closer
	Store
	Lister
	Deleter
}

// Compile-time verification of the implementations.
var (
	_ Backend  = (*DB)(nil)
	_ Migrator = (*DB)(nil)
	_ Backend  = (*FileStore)(nil)
	_ Backend  = (*MemoryStore)(nil)
	_ Backend  = (*Multi)(nil)
)

var idPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// ValidateID rejects ids that are unsafe as file names.
func ValidateID(id string) error {
	if !idPattern.MatchString(id) {
		return fmt.Errorf("invalid session id %q", id)
	}
	return nil
}
