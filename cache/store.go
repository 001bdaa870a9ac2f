package cache

import (
	"context"
	"time"
)

// Entry is a cached value in its encoded form
type Entry struct {
	Data      []byte
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the entry is stale at now
func (e Entry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// Store is the slower persistent tier behind the in-memory one. Keys arrive
// already prefixed with the manager namespace.
type Store interface {
	Load(ctx context.Context, key string) (Entry, bool, error)
	Save(ctx context.Context, key string, e Entry) error
	Delete(ctx context.Context, key string) error
	DeletePrefix(ctx context.Context, prefix string) error
	Close() error
}
