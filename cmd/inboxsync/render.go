package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/nhle/inboxsync/internal/model"
	appsync "github.com/nhle/inboxsync/internal/sync"
	"github.com/nhle/inboxsync/internal/theme"
)

const unreadMarker = "●"

// writeJSON prints v as indented JSON.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}
	return nil
}

// renderMessages prints cached messages as a table; unread rows carry a
// marker in the first column.
func renderMessages(w io.Writer, messages []model.CachedMessage) error {
	if len(messages) == 0 {
		_, err := fmt.Fprintln(w, theme.HelpStyle.Render("No cached messages. Run `inboxsync resync` first."))
		return err
	}

	rows := make([]table.Row, 0, len(messages))
	unread := 0
	for _, m := range messages {
		marker := ""
		if !m.Seen {
			marker = unreadMarker
			unread++
		}
		rows = append(rows, table.Row{
			marker,
			strconv.FormatUint(uint64(m.UID), 10),
			m.Date.Local().Format("2006-01-02 15:04"),
			m.From,
			m.Subject,
		})
	}

	styles := table.DefaultStyles()
	styles.Header = theme.HeaderStyle
	styles.Cell = theme.CellStyle
	styles.Selected = lipgloss.NewStyle()

	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "", Width: 2},
			{Title: "UID", Width: 7},
			{Title: "Date", Width: 16},
			{Title: "From", Width: 28},
			{Title: "Subject", Width: 48},
		}),
		table.WithRows(rows),
		table.WithHeight(len(rows)+1),
		table.WithFocused(false),
		table.WithStyles(styles),
	)

	summary := fmt.Sprintf("%d messages, %d unread", len(messages), unread)
	_, err := fmt.Fprintln(w, lipgloss.JoinVertical(lipgloss.Left,
		theme.BorderStyle.Render(t.View()),
		theme.HelpStyle.Render(summary),
	))
	return err
}

// printResyncResult prints a one-line resync summary.
func printResyncResult(w io.Writer, user string, r *appsync.ResyncResult) error {
	line := fmt.Sprintf("%s: %d of %d messages fetched from %s (%d new, %d updated)",
		user, r.Fetched, r.Total, r.Mailbox, r.Created, r.Updated)
	style := theme.SuccessStyle
	if r.Degraded > 0 {
		line += fmt.Sprintf(", %d decoded with defaults", r.Degraded)
		style = theme.WarningStyle
	}
	_, err := fmt.Fprintln(w, style.Render(line))
	return err
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
