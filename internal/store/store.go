package store

import (
	"context"
	"fmt"

	"github.com/nhle/inboxsync/internal/model"
)

// Cache is the persisted per-user mirror of synchronized messages, keyed by
// (user, UID). It tolerates being stale relative to the server.
type Cache interface {
	// Upsert inserts msg or fully overwrites the (user, UID) record. An
	// existing record keeps its ID and CreatedAt, and is left untouched when
	// no synchronized field changed.
	Upsert(ctx context.Context, msg model.CachedMessage) error

	// FindByUserAndUID returns the record or an error wrapping
	// model.ErrNotFound.
	FindByUserAndUID(ctx context.Context, user string, uid uint32) (*model.CachedMessage, error)

	// SetSeen updates only the seen flag. It returns the matched count and
	// an error wrapping model.ErrNotFound when nothing matched.
	SetSeen(ctx context.Context, user string, uid uint32, seen bool) (int64, error)

	// DeleteByUserAndUID removes the record. Deleting an absent record is
	// not an error.
	DeleteByUserAndUID(ctx context.Context, user string, uid uint32) error

	// ListByUser returns up to limit records, newest date first. A limit
	// below 1 means no limit.
	ListByUser(ctx context.Context, user string, limit int) ([]model.CachedMessage, error)

	Close() error
}

// Open creates the cache backend selected by cfg.Driver.
func Open(cfg model.DatabaseConfig) (Cache, error) {
	switch cfg.Driver {
	case "", "sqlite":
		return NewSQLiteStore(cfg.Path)
	case "bolt":
		return NewBoltStore(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown cache driver %q", cfg.Driver)
	}
}

func notFound(user string, uid uint32) error {
	return fmt.Errorf("message UID %d for user %s: %w", uid, user, model.ErrNotFound)
}
