// Command inboxsync keeps a local cache of each configured user's INBOX in
// step with their IMAP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	appsync "github.com/nhle/inboxsync/internal/sync"
	"github.com/nhle/inboxsync/internal/theme"
)

// Exit codes.
const (
	exitOK          = 0
	exitFailed      = 1
	exitNotFound    = 2
	exitUnavailable = 3
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(stderr, theme.ErrorStyle.Render("error:"), err)
		return exitCode(err)
	}
	return exitOK
}

// exitCode maps an error onto the process exit status.
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	if errors.Is(err, context.Canceled) {
		return exitFailed
	}
	switch appsync.Classify(err) {
	case appsync.KindNotFound:
		return exitNotFound
	case appsync.KindUnavailable:
		return exitUnavailable
	default:
		return exitFailed
	}
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	o := &rootOptions{stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:           "inboxsync",
		Short:         "Synchronize IMAP inboxes into a local cache",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.PersistentFlags().StringVar(&o.configPath, "config", "", "config file (default ~/.config/inboxsync/config.yaml)")
	root.PersistentFlags().StringVar(&o.logLevel, "log-level", "", "override log.level (trace, debug, info, warn, error)")
	root.PersistentFlags().StringVarP(&o.user, "user", "u", "", "application user; optional with a single configured account")

	root.AddCommand(
		newResyncCmd(o),
		newListCmd(o),
		newShowCmd(o),
		newMarkReadCmd(o),
		newDeleteCmd(o),
		newWatchCmd(o),
		newLoginCmd(o),
	)
	return root
}
