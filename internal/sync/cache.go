package sync

import (
	"context"
	"fmt"

	"github.com/nhle/inboxsync/internal/model"
)

// MarkRead marks one cached message as read. It never contacts the server
// and changes no other field.
func (e *Engine) MarkRead(ctx context.Context, user string, uid uint32) error {
	if err := validUID(uid); err != nil {
		return err
	}

	if _, err := e.cache.SetSeen(ctx, user, uid, true); err != nil {
		return fmt.Errorf("marking UID %d read: %w", uid, err)
	}
	logger := e.opLogger("mark-read", user)
	logger.Debug().Uint32("uid", uid).Msg("marked read")
	return nil
}

// List returns the cached messages of user, newest first. A limit of zero
// uses the configured listing size.
func (e *Engine) List(
	ctx context.Context, user string, limit int,
) ([]model.CachedMessage, error) {
	if limit <= 0 {
		limit = e.opts.ListLimit
	}
	return e.cache.ListByUser(ctx, user, limit)
}
