package sync

import (
	"context"
	"errors"
	"fmt"

	"github.com/nhle/inboxsync/internal/model"
	"github.com/nhle/inboxsync/internal/transport"
)

// DeleteResult reports the outcome of a delete. Exactly one of Success and
// Warning is set.
type DeleteResult struct {
	Success     bool   `json:"success,omitempty"`
	Warning     string `json:"warning,omitempty"`
	Message     string `json:"message,omitempty"`
	TrashFolder string `json:"trashFolder,omitempty"`
}

// Delete moves one message to the trash folder and drops its cache row.
//
// A UID the server no longer has is treated as already removed upstream:
// the cache row is dropped and a warning returned without any move. When
// the move is not confirmed the cache row is kept and a
// *transport.MoveFailedError returned.
func (e *Engine) Delete(
	ctx context.Context, user string, uid uint32,
) (*DeleteResult, error) {
	if err := validUID(uid); err != nil {
		return nil, err
	}
	logger := e.opLogger("delete", user).With().Uint32("uid", uid).Logger()

	folder := model.DefaultMailbox
	cached, err := e.cache.FindByUserAndUID(ctx, user, uid)
	switch {
	case err == nil && cached.Mailbox != "":
		folder = cached.Mailbox
	case err != nil && !errors.Is(err, model.ErrNotFound):
		return nil, fmt.Errorf("looking up UID %d: %w", uid, err)
	}

	var result *DeleteResult
	err = e.withSession(ctx, logger, user, func(sess transport.Session) error {
		if _, err := sess.OpenFolder(folder); err != nil {
			return err
		}

		found, err := sess.Search(uid)
		if err != nil {
			return fmt.Errorf("searching UID %d in %s: %w", uid, folder, err)
		}
		if !found.Contains(uid) {
			if err := e.cache.DeleteByUserAndUID(ctx, user, uid); err != nil {
				return err
			}
			logger.Info().Str("folder", folder).Msg("message already gone from server")
			result = &DeleteResult{
				Warning: fmt.Sprintf("UID %d not found on server; removed from local cache only", uid),
			}
			return nil
		}

		folders, err := sess.ListFolders()
		if err != nil {
			return fmt.Errorf("listing folders: %w", err)
		}
		trash := transport.TrashFolder(folders, e.opts.TrashFallback)

		// Listing leaves no folder selected.
		if _, err := sess.OpenFolder(folder); err != nil {
			return err
		}

		moved, err := sess.Move(uid, trash)
		if err != nil {
			return err
		}
		if moved.Empty() {
			return &transport.MoveFailedError{UID: uid, Destination: trash}
		}

		if err := e.cache.DeleteByUserAndUID(ctx, user, uid); err != nil {
			return fmt.Errorf("message moved to %s but cache cleanup failed: %w", trash, err)
		}
		logger.Info().Str("trash", trash).Msg("message moved to trash")
		result = &DeleteResult{
			Success:     true,
			Message:     fmt.Sprintf("Email moved to %s", trash),
			TrashFolder: trash,
		}
		return nil
	})
	if err != nil {
		logger.Error().Err(err).Msg("delete failed")
		return nil, err
	}
	return result, nil
}
