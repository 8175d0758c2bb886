package transport

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/inboxsync/internal/model"
)

func TestTrashFolder(t *testing.T) {
	folders := []Folder{
		{Path: "INBOX"},
		{Path: "Trash"},
		{Path: "[Gmail]/Bin", SpecialUse: []string{TrashAttr}},
	}
	assert.Equal(t, "[Gmail]/Bin", TrashFolder(folders, "Trash"))
	assert.Equal(t, "Trash", TrashFolder(folders[:2], "Trash"))
	assert.Equal(t, "Deleted", TrashFolder(nil, "Deleted"))
}

func TestFoldersFromList(t *testing.T) {
	folders := foldersFromList([]*imap.ListData{
		{Mailbox: "INBOX"},
		{Mailbox: "Bin", Attrs: []imap.MailboxAttr{imap.MailboxAttrHasNoChildren, imap.MailboxAttrTrash}},
		{Mailbox: "Sent", Attrs: []imap.MailboxAttr{imap.MailboxAttrSent}},
	})

	require.Len(t, folders, 3)
	assert.Empty(t, folders[0].SpecialUse)
	assert.Equal(t, []string{TrashAttr}, folders[1].SpecialUse)
	assert.True(t, folders[1].Is(TrashAttr))
	assert.False(t, folders[2].Is(TrashAttr))
	assert.Equal(t, "Bin", TrashFolder(folders, "Trash"))
}

func TestSearchResult(t *testing.T) {
	r := searchResultFromUIDs([]imap.UID{4, 9})
	assert.True(t, r.Contains(4))
	assert.True(t, r.Contains(9))
	assert.False(t, r.Contains(5))

	var none *SearchResult
	assert.False(t, none.Contains(4))
	assert.False(t, NewSearchResult().Contains(4))
}

func TestMoveResultFromSets(t *testing.T) {
	t.Run("paired", func(t *testing.T) {
		r := moveResultFromSets(imap.UIDSetNum(3, 7), imap.UIDSetNum(101, 102))
		assert.False(t, r.Empty())
		assert.True(t, r.Moved(3))
		assert.True(t, r.Moved(7))
		assert.Equal(t, uint32(102), r.Relocated[7])
	})

	t.Run("missing sets", func(t *testing.T) {
		r := moveResultFromSets(nil, nil)
		assert.True(t, r.Empty())
		assert.False(t, r.Moved(3))
	})

	t.Run("length mismatch", func(t *testing.T) {
		r := moveResultFromSets(imap.UIDSetNum(3, 7), imap.UIDSetNum(101))
		assert.True(t, r.Empty())
	})

	t.Run("sequence sets are not uids", func(t *testing.T) {
		r := moveResultFromSets(imap.SeqSetNum(3), imap.SeqSetNum(1))
		assert.True(t, r.Empty())
	})

	var nilResult *MoveResult
	assert.True(t, nilResult.Empty())
}

func TestFetchRangeNumSet(t *testing.T) {
	seq, ok := SeqRange(71, 0).numSet().(imap.SeqSet)
	require.True(t, ok)
	assert.Equal(t, imap.SeqSet{imap.SeqRange{Start: 71, Stop: 0}}, seq)

	uids, ok := UIDRange(5, 6).numSet().(imap.UIDSet)
	require.True(t, ok)
	nums, ok := uids.Nums()
	require.True(t, ok)
	assert.Equal(t, []imap.UID{5, 6}, nums)

	assert.True(t, UIDRange(1).ByUID())
	assert.False(t, SeqRange(1, 0).ByUID())
}

func TestEnvelopeFromIMAP(t *testing.T) {
	date := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	env := envelopeFromIMAP(&imap.Envelope{
		Subject: "Hello",
		Date:    date,
		From:    []imap.Address{{Name: "Jane Doe", Mailbox: "jane", Host: "example.com"}},
	})
	assert.Equal(t, Envelope{Subject: "Hello", From: "Jane Doe <jane@example.com>", Date: date}, env)

	bare := envelopeFromIMAP(&imap.Envelope{From: []imap.Address{{Mailbox: "bob", Host: "example.com"}}})
	assert.Equal(t, "bob@example.com", bare.From)

	assert.Equal(t, Envelope{}, envelopeFromIMAP(nil))
}

func TestRemoteMessageSeen(t *testing.T) {
	assert.True(t, (&RemoteMessage{Flags: []string{`\Answered`, SeenFlag}}).Seen())
	assert.False(t, (&RemoteMessage{Flags: []string{`\Flagged`}}).Seen())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "disconnected", StateDisconnected.String())
	assert.Equal(t, "folder-selected", StateFolderSelected.String())
	assert.Equal(t, "moving", StateMoving.String())
	assert.Equal(t, "unknown", State(99).String())
}

func TestSessionRejectsCommandsOutOfState(t *testing.T) {
	s := &IMAPSession{state: StateAuthenticated}

	_, err := s.Search(1)
	var stateErr *StateError
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, StateAuthenticated, stateErr.State)

	_, err = s.Move(1, "Trash")
	assert.ErrorAs(t, err, &stateErr)

	for _, err := range s.Fetch(UIDRange(1), FetchOptions{}) {
		assert.ErrorAs(t, err, &stateErr)
	}

	assert.Error(t, s.SetFlag(1, SeenFlag, true))
}

func TestDisconnectIsIdempotent(t *testing.T) {
	s := &IMAPSession{state: StateDisconnected}
	assert.NoError(t, s.Disconnect())
	assert.NoError(t, s.Disconnect())
	assert.Equal(t, StateDisconnected, s.State())
}

func TestDialUnreachableIsConnectionError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().(*net.TCPAddr)
	require.NoError(t, ln.Close())

	d := NewIMAPDialer(Options{DialTimeout: time.Second, Logger: zerolog.Nop()})
	_, err = d.Dial(context.Background(), model.MailCredential{
		Host: "127.0.0.1", Port: addr.Port, Username: "u", Password: "p",
	})
	require.Error(t, err)
	assert.True(t, IsConnectionError(err))
	assert.False(t, IsAuthError(err))
}

func TestDialDeadline(t *testing.T) {
	d := NewIMAPDialer(Options{SessionTimeout: time.Hour})
	assert.WithinDuration(t, time.Now().Add(time.Hour), d.deadline(context.Background()), time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	assert.WithinDuration(t, time.Now().Add(time.Minute), d.deadline(ctx), 10*time.Second)

	assert.True(t, NewIMAPDialer(Options{}).deadline(context.Background()).IsZero())
}

func TestErrorHelpers(t *testing.T) {
	cause := errors.New("NO [NONEXISTENT]")
	wrapped := errors.Join(errors.New("context"), &FolderNotFoundError{Folder: "Gone", Err: cause})

	assert.True(t, IsFolderNotFound(wrapped))
	assert.ErrorIs(t, wrapped, cause)
	assert.False(t, IsMoveFailed(wrapped))

	moveErr := &MoveFailedError{UID: 4, Destination: "Trash"}
	assert.Contains(t, moveErr.Error(), "server confirmed no relocation")
	assert.True(t, IsMoveFailed(moveErr))
}
