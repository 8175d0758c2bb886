package sync

import (
	"context"
	"fmt"
	gosync "sync"

	"github.com/rs/zerolog"

	"github.com/nhle/inboxsync/internal/decode"
	"github.com/nhle/inboxsync/internal/model"
	"github.com/nhle/inboxsync/internal/store"
	"github.com/nhle/inboxsync/internal/transport"
)

// Defaults used when Options leaves a field zero.
const (
	DefaultWindow        = 50
	DefaultListLimit     = 100
	DefaultTrashFallback = "Trash"
)

// CredentialSource resolves an application user to the credential of their
// mailbox.
type CredentialSource interface {
	Credential(ctx context.Context, user string) (model.MailCredential, error)
}

// Options tunes the engine.
type Options struct {
	// Window is how many of the most recent INBOX messages a resync fetches.
	Window int

	// ListLimit is the listing size used when List is called with limit 0.
	ListLimit int

	// TrashFallback is the delete destination when no folder advertises
	// \Trash.
	TrashFallback string
}

// OptionsFromConfig builds Options from the imap config section.
func OptionsFromConfig(cfg model.IMAPConfig) Options {
	return Options{
		Window:        cfg.SyncWindow,
		ListLimit:     cfg.ListLimit,
		TrashFallback: cfg.TrashFallback,
	}
}

func (o Options) withDefaults() Options {
	if o.Window <= 0 {
		o.Window = DefaultWindow
	}
	if o.ListLimit <= 0 {
		o.ListLimit = DefaultListLimit
	}
	if o.TrashFallback == "" {
		o.TrashFallback = DefaultTrashFallback
	}
	return o
}

// Engine reconciles the local cache with each user's INBOX. Every operation
// that talks to the server opens its own session and always tears it down.
type Engine struct {
	cache   store.Cache
	dialer  transport.Dialer
	creds   CredentialSource
	decoder *decode.Decoder
	opts    Options
	logger  zerolog.Logger

	// folderLocks holds one *gosync.Mutex per user and folder, taken by
	// detail fetches.
	folderLocks gosync.Map

	mu       gosync.Mutex
	statuses map[string]*SyncStatus
}

// New creates an Engine.
func New(
	cache store.Cache,
	dialer transport.Dialer,
	creds CredentialSource,
	opts Options,
	logger zerolog.Logger,
) *Engine {
	return &Engine{
		cache:    cache,
		dialer:   dialer,
		creds:    creds,
		decoder:  decode.New(),
		opts:     opts.withDefaults(),
		logger:   logger,
		statuses: make(map[string]*SyncStatus),
	}
}

// opLogger returns the child logger of one operation.
func (e *Engine) opLogger(op, user string) zerolog.Logger {
	return e.logger.With().Str("op", op).Str("user", user).Logger()
}

// withSession dials a session for user, runs fn, and disconnects on every
// path. A teardown failure is logged and never replaces fn's result.
func (e *Engine) withSession(
	ctx context.Context,
	logger zerolog.Logger,
	user string,
	fn func(transport.Session) error,
) error {
	cred, err := e.creds.Credential(ctx, user)
	if err != nil {
		return fmt.Errorf("resolving credential for %s: %w", user, err)
	}

	sess, err := e.dialer.Dial(ctx, cred)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := sess.Disconnect(); cerr != nil {
			logger.Warn().Err(cerr).Msg("session teardown failed")
		}
	}()

	return fn(sess)
}

// folderLock returns the mutex guarding user's folder.
func (e *Engine) folderLock(user, folder string) *gosync.Mutex {
	lock, _ := e.folderLocks.LoadOrStore(user+"\x00"+folder, &gosync.Mutex{})
	return lock.(*gosync.Mutex)
}

func validUID(uid uint32) error {
	if uid == 0 {
		return fmt.Errorf("uid must be positive: %w", model.ErrInvalidArgument)
	}
	return nil
}
