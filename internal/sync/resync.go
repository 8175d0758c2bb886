package sync

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/nhle/inboxsync/internal/model"
	"github.com/nhle/inboxsync/internal/transport"
)

// ResyncResult summarizes one resync pass.
type ResyncResult struct {
	Mailbox string `json:"mailbox"`

	// Total is the message count of the folder when it was opened.
	Total uint32 `json:"total"`

	Fetched  int `json:"fetched"`
	Created  int `json:"created"`
	Updated  int `json:"updated"`
	Degraded int `json:"degraded"`
}

// windowStart returns the first sequence number of the last window
// messages of a folder holding total messages.
func windowStart(total uint32, window int) uint32 {
	if uint32(window) >= total {
		return 1
	}
	return total - uint32(window) + 1
}

// Resync refreshes the cache with the most recent INBOX messages of user.
// The cached seen flag never regresses: a message is seen when either the
// cache or the server says so. A fetch error aborts the pass; rows already
// written stay, and the next pass overwrites them.
func (e *Engine) Resync(ctx context.Context, user string) (*ResyncResult, error) {
	logger := e.opLogger("resync", user)
	e.setStatus(user, SyncRunning, nil)

	result := &ResyncResult{Mailbox: model.DefaultMailbox}
	err := e.withSession(ctx, logger, user, func(sess transport.Session) error {
		status, err := sess.OpenFolder(model.DefaultMailbox)
		if err != nil {
			return err
		}
		result.Mailbox = status.Path
		result.Total = status.NumMessages
		if status.NumMessages == 0 {
			logger.Debug().Msg("folder empty, nothing to fetch")
			return nil
		}

		start := windowStart(status.NumMessages, e.opts.Window)
		logger.Debug().
			Uint32("total", status.NumMessages).
			Uint32("start", start).
			Msg("fetching window")

		messages := sess.Fetch(transport.SeqRange(start, 0), transport.FetchOptions{
			Envelope:     true,
			Flags:        true,
			InternalDate: true,
			Source:       true,
		})
		for remote, err := range messages {
			if err != nil {
				return fmt.Errorf("fetching %s: %w", status.Path, err)
			}
			result.Fetched++
			if err := e.reconcile(ctx, logger, user, status.Path, remote, result); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		e.setStatus(user, SyncError, err)
		logger.Error().Err(err).Int("fetched", result.Fetched).Msg("resync failed")
		return nil, err
	}

	e.setStatus(user, SyncIdle, nil)
	logger.Info().
		Uint32("total", result.Total).
		Int("fetched", result.Fetched).
		Int("created", result.Created).
		Int("updated", result.Updated).
		Msg("resync complete")
	return result, nil
}

// reconcile decodes one remote message and upserts it.
func (e *Engine) reconcile(
	ctx context.Context,
	logger zerolog.Logger,
	user, folder string,
	remote *transport.RemoteMessage,
	result *ResyncResult,
) error {
	decoded := e.decoder.Decode(remote.Source, remote.InternalDate)
	if decoded.IsDegraded() {
		result.Degraded++
		logger.Debug().
			Uint32("uid", remote.UID).
			Strs("anomalies", decoded.Degraded).
			Msg("message decoded with defaults")
	}

	existing, err := e.cache.FindByUserAndUID(ctx, user, remote.UID)
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		return fmt.Errorf("looking up UID %d: %w", remote.UID, err)
	}

	msg := model.CachedMessage{
		User:    user,
		UID:     remote.UID,
		Mailbox: folder,
		Subject: decoded.Subject,
		From:    decoded.From,
		HTML:    decoded.HTML,
		Text:    decoded.Text,
		Date:    decoded.Date,
		Seen:    remote.Seen(),
	}
	if existing != nil {
		msg.Seen = msg.Seen || existing.Seen
	}

	if err := e.cache.Upsert(ctx, msg); err != nil {
		return fmt.Errorf("caching UID %d: %w", remote.UID, err)
	}

	switch {
	case existing == nil:
		result.Created++
	case !existing.SameContent(msg):
		result.Updated++
	}
	return nil
}
