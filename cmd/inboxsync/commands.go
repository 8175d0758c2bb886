package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/nhle/inboxsync/internal/model"
	appsync "github.com/nhle/inboxsync/internal/sync"
)

// withEngine loads config, opens the engine for the resolved user and runs fn.
func (o *rootOptions) withEngine(
	fn func(a *app, engine *appsync.Engine, user string) error,
) error {
	a, err := o.load()
	if err != nil {
		return err
	}
	user, err := o.resolveUser(a.cfg)
	if err != nil {
		return err
	}

	engine, closeFn, err := a.openEngine()
	if err != nil {
		return err
	}
	defer closeFn()

	return fn(a, engine, user)
}

func newResyncCmd(o *rootOptions) *cobra.Command {
	var noProgress bool

	cmd := &cobra.Command{
		Use:   "resync",
		Short: "Refresh the cache with the most recent INBOX messages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withEngine(func(a *app, engine *appsync.Engine, user string) error {
				run := func(ctx context.Context) (*appsync.ResyncResult, error) {
					return engine.Resync(ctx, user)
				}

				var (
					result *appsync.ResyncResult
					err    error
				)
				if !noProgress && isTerminal(o.stderr) {
					result, err = runWithSpinner(cmd.Context(), o.stderr, "Syncing INBOX for "+user, run)
				} else {
					result, err = run(cmd.Context())
				}
				if err != nil {
					return err
				}
				return printResyncResult(o.stdout, user, result)
			})
		},
	}
	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "never show the progress spinner")
	return cmd
}

func newListCmd(o *rootOptions) *cobra.Command {
	var (
		limit  int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cached messages, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withEngine(func(a *app, engine *appsync.Engine, user string) error {
				messages, err := engine.List(cmd.Context(), user, limit)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(o.stdout, messages)
				}
				return renderMessages(o.stdout, messages)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum messages to list (default imap.list_limit)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

func newShowCmd(o *rootOptions) *cobra.Command {
	var uid uint32

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Fetch one message from the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withEngine(func(a *app, engine *appsync.Engine, user string) error {
				detail, err := engine.FetchDetail(cmd.Context(), user, uid)
				if err != nil {
					return err
				}
				return writeJSON(o.stdout, detail)
			})
		},
	}
	cmd.Flags().Uint32Var(&uid, "uid", 0, "message UID")
	_ = cmd.MarkFlagRequired("uid")
	return cmd
}

func newMarkReadCmd(o *rootOptions) *cobra.Command {
	var uid uint32

	cmd := &cobra.Command{
		Use:   "mark-read",
		Short: "Mark a cached message as read (local only)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withEngine(func(a *app, engine *appsync.Engine, user string) error {
				if err := engine.MarkRead(cmd.Context(), user, uid); err != nil {
					return err
				}
				return writeJSON(o.stdout, map[string]bool{"success": true})
			})
		},
	}
	cmd.Flags().Uint32Var(&uid, "uid", 0, "message UID")
	_ = cmd.MarkFlagRequired("uid")
	return cmd
}

func newDeleteCmd(o *rootOptions) *cobra.Command {
	var uid uint32

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Move a message to the trash folder and drop it from the cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withEngine(func(a *app, engine *appsync.Engine, user string) error {
				result, err := engine.Delete(cmd.Context(), user, uid)
				if err != nil {
					return err
				}
				return writeJSON(o.stdout, result)
			})
		},
	}
	cmd.Flags().Uint32Var(&uid, "uid", 0, "message UID")
	_ = cmd.MarkFlagRequired("uid")
	return cmd
}

func newWatchCmd(o *rootOptions) *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Resync every configured account periodically until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := o.load()
			if err != nil {
				return err
			}
			users := watchedUsers(o.user, a.cfg)
			if len(users) == 0 {
				return fmt.Errorf("no accounts configured: %w", model.ErrInvalidArgument)
			}

			engine, closeFn, err := a.openEngine()
			if err != nil {
				return err
			}
			defer closeFn()

			return watch(cmd.Context(), a, engine, users, interval)
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 2*time.Minute, "time between resync rounds")
	return cmd
}

// watchedUsers returns the --user flag or every configured account.
func watchedUsers(flagUser string, cfg *model.AppConfig) []string {
	if flagUser != "" {
		return []string{flagUser}
	}
	users := make([]string, 0, len(cfg.Accounts))
	for _, acc := range cfg.Accounts {
		users = append(users, acc.User)
	}
	return users
}

// logRound reports one watched resync with its counts when it succeeded.
func logRound(
	logger zerolog.Logger,
	status appsync.SyncStatus,
	result *appsync.ResyncResult,
	err error,
) {
	evt := logger.Info()
	if err != nil {
		evt = logger.Warn().Err(err)
	}
	evt = evt.Str("user", status.User).
		Str("state", status.State.String()).
		Time("last_sync", status.LastSync)
	if result != nil {
		evt = evt.Str("mailbox", result.Mailbox).
			Uint32("total", result.Total).
			Int("fetched", result.Fetched).
			Int("created", result.Created).
			Int("updated", result.Updated).
			Int("degraded", result.Degraded)
	}
	evt.Msg("resync round")
}

// watch runs one resync round per tick. A failed round is retried on the
// next tick and never stops the loop.
func watch(
	ctx context.Context,
	a *app,
	engine *appsync.Engine,
	users []string,
	interval time.Duration,
) error {
	if interval <= 0 {
		interval = 2 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		for _, user := range users {
			if ctx.Err() != nil {
				return nil
			}
			result, err := engine.Resync(ctx, user)
			logRound(a.logger, engine.Status(user), result, err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
