package sync

import (
	"context"
	"fmt"

	"github.com/nhle/inboxsync/internal/model"
	"github.com/nhle/inboxsync/internal/transport"
)

// FetchDetail fetches and decodes one INBOX message straight from the
// server. The folder lock is held from open to the end of the fetch and is
// released before the session is torn down. The cache is not touched.
func (e *Engine) FetchDetail(
	ctx context.Context, user string, uid uint32,
) (*model.MessageDetail, error) {
	if err := validUID(uid); err != nil {
		return nil, err
	}
	logger := e.opLogger("detail", user).With().Uint32("uid", uid).Logger()

	var detail *model.MessageDetail
	err := e.withSession(ctx, logger, user, func(sess transport.Session) error {
		lock := e.folderLock(user, model.DefaultMailbox)
		lock.Lock()
		defer lock.Unlock()

		if _, err := sess.OpenFolder(model.DefaultMailbox); err != nil {
			return err
		}

		messages := sess.Fetch(transport.UIDRange(uid), transport.FetchOptions{
			Flags:        true,
			InternalDate: true,
			Source:       true,
		})
		for remote, err := range messages {
			if err != nil {
				return fmt.Errorf("fetching UID %d: %w", uid, err)
			}
			if remote.UID != uid {
				continue
			}
			decoded := e.decoder.Decode(remote.Source, remote.InternalDate)
			detail = &model.MessageDetail{
				UID:     remote.UID,
				Subject: decoded.Subject,
				From:    decoded.From,
				HTML:    decoded.HTML,
				Text:    decoded.Text,
				Date:    decoded.Date,
				Seen:    remote.Seen(),
			}
			break
		}
		if detail == nil {
			return fmt.Errorf("message UID %d in %s: %w", uid, model.DefaultMailbox, model.ErrNotFound)
		}
		return nil
	})
	if err != nil {
		logger.Debug().Err(err).Msg("detail fetch failed")
		return nil, err
	}
	return detail, nil
}
