package main

import (
	"context"
	"io"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	appsync "github.com/nhle/inboxsync/internal/sync"
	"github.com/nhle/inboxsync/internal/theme"
)

// resyncDoneMsg is a tea.Msg sent when the resync returns.
type resyncDoneMsg struct {
	result *appsync.ResyncResult
	err    error
}

// spinnerModel shows a spinner until the wrapped resync finishes.
type spinnerModel struct {
	spinner spinner.Model
	label   string
	run     func() (*appsync.ResyncResult, error)
	cancel  context.CancelFunc

	done   bool
	result *appsync.ResyncResult
	err    error
}

func (m spinnerModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, func() tea.Msg {
		result, err := m.run()
		return resyncDoneMsg{result: result, err: err}
	})
}

func (m spinnerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case resyncDoneMsg:
		m.done = true
		m.result, m.err = msg.result, msg.err
		return m, tea.Quit
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			// The resync sees the cancellation and reports back.
			m.cancel()
		}
		return m, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m spinnerModel) View() string {
	if m.done {
		return ""
	}
	return m.spinner.View() + " " + m.label + theme.HelpStyle.Render("  ctrl+c to cancel") + "\n"
}

// runWithSpinner runs fn while a spinner is drawn on out.
func runWithSpinner(
	ctx context.Context,
	out io.Writer,
	label string,
	fn func(context.Context) (*appsync.ResyncResult, error),
) (*appsync.ResyncResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m := spinnerModel{
		spinner: spinner.New(
			spinner.WithSpinner(spinner.Dot),
			spinner.WithStyle(theme.AccentStyle),
		),
		label:  label,
		run:    func() (*appsync.ResyncResult, error) { return fn(ctx) },
		cancel: cancel,
	}

	final, err := tea.NewProgram(m, tea.WithOutput(out)).Run()
	if err != nil {
		return nil, err
	}
	done := final.(spinnerModel)
	return done.result, done.err
}
