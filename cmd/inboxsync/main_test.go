package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/inboxsync/internal/model"
	appsync "github.com/nhle/inboxsync/internal/sync"
	"github.com/nhle/inboxsync/internal/transport"
)

func TestExitCode(t *testing.T) {
	assert.Equal(t, exitOK, exitCode(nil))
	assert.Equal(t, exitNotFound, exitCode(fmt.Errorf("show: %w", model.ErrNotFound)))
	assert.Equal(t, exitUnavailable, exitCode(&transport.AuthError{Username: "a", Err: errors.New("NO")}))
	assert.Equal(t, exitFailed, exitCode(&transport.MoveFailedError{UID: 1, Destination: "Trash"}))
	assert.Equal(t, exitFailed, exitCode(context.Canceled))
}

func TestRenderMessages(t *testing.T) {
	var buf bytes.Buffer
	err := renderMessages(&buf, []model.CachedMessage{
		{UID: 12, Subject: "Quarterly report", From: "Ann", Date: time.Now(), Seen: false},
		{UID: 11, Subject: "Lunch", From: "Bob", Date: time.Now().Add(-time.Hour), Seen: true},
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "Quarterly report")
	assert.Contains(t, out, "Lunch")
	assert.Contains(t, out, unreadMarker)
	assert.Equal(t, 1, strings.Count(out, unreadMarker))
	assert.Contains(t, out, "2 messages, 1 unread")
}

func TestRenderMessagesEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, renderMessages(&buf, nil))
	assert.Contains(t, buf.String(), "No cached messages")
}

func TestWriteJSONDeleteResult(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeJSON(&buf, &appsync.DeleteResult{
		Warning: "UID 4 not found on server; removed from local cache only",
	}))
	assert.JSONEq(t, `{"warning":"UID 4 not found on server; removed from local cache only"}`, buf.String())
}

func TestPrintResyncResult(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printResyncResult(&buf, "alice", &appsync.ResyncResult{
		Mailbox: "INBOX", Total: 120, Fetched: 50, Created: 3, Updated: 1, Degraded: 2,
	}))
	assert.Contains(t, buf.String(), "alice: 50 of 120 messages fetched from INBOX (3 new, 1 updated)")
	assert.Contains(t, buf.String(), "2 decoded with defaults")
}

func TestLogRoundReportsCounts(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	logRound(logger,
		appsync.SyncStatus{User: "alice", State: appsync.SyncIdle, LastSync: time.Now()},
		&appsync.ResyncResult{Mailbox: "INBOX", Total: 40, Fetched: 40, Created: 3, Updated: 2, Degraded: 1},
		nil,
	)

	out := buf.String()
	assert.Contains(t, out, `"level":"info"`)
	assert.Contains(t, out, `"user":"alice"`)
	assert.Contains(t, out, `"fetched":40`)
	assert.Contains(t, out, `"created":3`)
	assert.Contains(t, out, `"updated":2`)
	assert.Contains(t, out, `"degraded":1`)
}

func TestLogRoundFailure(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	logRound(logger,
		appsync.SyncStatus{User: "alice", State: appsync.SyncError},
		nil,
		errors.New("connection refused"),
	)

	out := buf.String()
	assert.Contains(t, out, `"level":"warn"`)
	assert.Contains(t, out, "connection refused")
	assert.NotContains(t, out, "fetched")
}

func TestValidatePort(t *testing.T) {
	assert.NoError(t, validatePort("993"))
	assert.NoError(t, validatePort(" 143 "))
	assert.Error(t, validatePort(""))
	assert.Error(t, validatePort("imap"))
	assert.Error(t, validatePort("0"))
	assert.Error(t, validatePort("70000"))
}

func TestLoginFormAccount(t *testing.T) {
	f := &loginForm{host: " imap.example.com ", port: "143", username: "alice@example.com"}
	account, err := f.account("alice")
	require.NoError(t, err)
	assert.Equal(t, model.AccountConfig{
		User: "alice", Host: "imap.example.com", Port: 143, Username: "alice@example.com",
	}, account)

	f.port = "x"
	_, err = f.account("alice")
	assert.Error(t, err)
}

func TestResolveUser(t *testing.T) {
	single := &model.AppConfig{Accounts: []model.AccountConfig{{User: "alice"}}}
	multi := &model.AppConfig{Accounts: []model.AccountConfig{{User: "alice"}, {User: "bob"}}}

	user, err := (&rootOptions{}).resolveUser(single)
	require.NoError(t, err)
	assert.Equal(t, "alice", user)

	_, err = (&rootOptions{}).resolveUser(multi)
	assert.ErrorIs(t, err, model.ErrInvalidArgument)

	user, err = (&rootOptions{user: "bob"}).resolveUser(multi)
	require.NoError(t, err)
	assert.Equal(t, "bob", user)

	assert.Equal(t, []string{"alice", "bob"}, watchedUsers("", multi))
	assert.Equal(t, []string{"carol"}, watchedUsers("carol", multi))
}

func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := "database:\n  driver: sqlite\n  path: " + filepath.Join(dir, "cache.db") + "\n" +
		"log:\n  level: error\n  format: json\n" +
		"accounts:\n  - user: alice\n    host: imap.example.com\n    username: alice\n    password: pw\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestRunMarkReadNotFoundExitCode(t *testing.T) {
	path := writeTestConfig(t)
	var stdout, stderr bytes.Buffer

	code := run([]string{"--config", path, "mark-read", "--uid", "9"}, &stdout, &stderr)
	assert.Equal(t, exitNotFound, code)
	assert.Contains(t, stderr.String(), "not found")
}

func TestRunListEmptyCache(t *testing.T) {
	path := writeTestConfig(t)
	var stdout, stderr bytes.Buffer

	code := run([]string{"--config", path, "list", "--json"}, &stdout, &stderr)
	assert.Equal(t, exitOK, code, stderr.String())
	assert.JSONEq(t, `[]`, stdout.String())
}
