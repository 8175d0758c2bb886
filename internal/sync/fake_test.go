package sync

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"
	"strings"
	gosync "sync"
	"time"

	"github.com/nhle/inboxsync/internal/model"
	"github.com/nhle/inboxsync/internal/transport"
)

// fakeServer scripts the mailbox seen by fakeSession.
type fakeServer struct {
	mu gosync.Mutex

	mailboxes map[string][]*transport.RemoteMessage
	folders   []transport.Folder

	dialErr       error
	fetchErrAfter int // fail after yielding this many messages; -1 disables
	fetchErr      error
	moveResult    *transport.MoveResult
	moveErr       error
	disconnectErr error

	// When set, each fetch signals fetchStarted and then waits for
	// fetchGate before yielding anything.
	fetchStarted chan struct{}
	fetchGate    chan struct{}

	dials       int
	disconnects int
	calls       []string
	fetchRanges []transport.FetchRange
}

func newFakeServer() *fakeServer {
	return &fakeServer{
		mailboxes:     map[string][]*transport.RemoteMessage{model.DefaultMailbox: nil},
		fetchErrAfter: -1,
	}
}

func (f *fakeServer) add(folder string, msgs ...*transport.RemoteMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mailboxes[folder] = append(f.mailboxes[folder], msgs...)
}

func (f *fakeServer) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeServer) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

func (f *fakeServer) count(call string) int {
	n := 0
	for _, c := range f.recorded() {
		if c == call {
			n++
		}
	}
	return n
}

func (f *fakeServer) dialCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dials
}

func (f *fakeServer) called(prefix string) bool {
	for _, c := range f.recorded() {
		if strings.HasPrefix(c, prefix) {
			return true
		}
	}
	return false
}

// Dial implements transport.Dialer.
func (f *fakeServer) Dial(_ context.Context, _ model.MailCredential) (transport.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dials++
	if f.dialErr != nil {
		return nil, f.dialErr
	}
	return &fakeSession{server: f, state: transport.StateAuthenticated}, nil
}

type fakeSession struct {
	server   *fakeServer
	state    transport.State
	selected string
}

func (s *fakeSession) State() transport.State { return s.state }

func (s *fakeSession) OpenFolder(path string) (*transport.FolderStatus, error) {
	s.server.record("open " + path)
	s.server.mu.Lock()
	msgs, ok := s.server.mailboxes[path]
	s.server.mu.Unlock()
	if !ok {
		s.state = transport.StateAuthenticated
		return nil, &transport.FolderNotFoundError{Folder: path}
	}
	s.state = transport.StateFolderSelected
	s.selected = path
	return &transport.FolderStatus{Path: path, NumMessages: uint32(len(msgs)), UIDValidity: 1}, nil
}

func (s *fakeSession) ListFolders() ([]transport.Folder, error) {
	s.server.record("list")
	s.state = transport.StateAuthenticated
	s.selected = ""
	return s.server.folders, nil
}

func (s *fakeSession) Search(uids ...uint32) (*transport.SearchResult, error) {
	s.server.record(fmt.Sprintf("search %v", uids))
	if s.state != transport.StateFolderSelected {
		return nil, &transport.StateError{Op: "search", State: s.state}
	}
	var matched []uint32
	for _, m := range s.messages() {
		if slices.Contains(uids, m.UID) {
			matched = append(matched, m.UID)
		}
	}
	return transport.NewSearchResult(matched...), nil
}

func (s *fakeSession) messages() []*transport.RemoteMessage {
	s.server.mu.Lock()
	defer s.server.mu.Unlock()
	return slices.Clone(s.server.mailboxes[s.selected])
}

func (s *fakeSession) Fetch(
	r transport.FetchRange, _ transport.FetchOptions,
) iter.Seq2[*transport.RemoteMessage, error] {
	s.server.record("fetch")
	s.server.mu.Lock()
	s.server.fetchRanges = append(s.server.fetchRanges, r)
	failAfter, failErr := s.server.fetchErrAfter, s.server.fetchErr
	started, gate := s.server.fetchStarted, s.server.fetchGate
	s.server.mu.Unlock()

	return func(yield func(*transport.RemoteMessage, error) bool) {
		if started != nil {
			started <- struct{}{}
		}
		if gate != nil {
			<-gate
		}
		if s.state != transport.StateFolderSelected {
			yield(nil, &transport.StateError{Op: "fetch", State: s.state})
			return
		}
		yielded := 0
		for i, m := range s.messages() {
			seq := uint32(i + 1)
			if r.ByUID() {
				if !slices.Contains(r.UIDs, m.UID) {
					continue
				}
			} else if seq < r.Start || (r.Stop != 0 && seq > r.Stop) {
				continue
			}
			if failAfter >= 0 && yielded == failAfter {
				yield(nil, failErr)
				return
			}
			msg := *m
			msg.Folder = s.selected
			if !yield(&msg, nil) {
				return
			}
			yielded++
		}
	}
}

func (s *fakeSession) Move(uid uint32, dest string) (*transport.MoveResult, error) {
	s.server.record(fmt.Sprintf("move %d %s", uid, dest))
	if s.state != transport.StateFolderSelected {
		return nil, &transport.StateError{Op: "move", State: s.state}
	}
	s.server.mu.Lock()
	defer s.server.mu.Unlock()
	if s.server.moveErr != nil {
		return nil, s.server.moveErr
	}
	if s.server.moveResult != nil {
		return s.server.moveResult, nil
	}

	msgs := s.server.mailboxes[s.selected]
	for i, m := range msgs {
		if m.UID == uid {
			s.server.mailboxes[s.selected] = slices.Delete(msgs, i, i+1)
			s.server.mailboxes[dest] = append(s.server.mailboxes[dest], m)
			return &transport.MoveResult{Relocated: map[uint32]uint32{uid: uid + 1000}}, nil
		}
	}
	return &transport.MoveResult{}, nil
}

func (s *fakeSession) SetFlag(uid uint32, flag string, value bool) error {
	s.server.record(fmt.Sprintf("flag %d %s %t", uid, flag, value))
	return nil
}

func (s *fakeSession) Disconnect() error {
	s.server.mu.Lock()
	defer s.server.mu.Unlock()
	s.server.disconnects++
	s.state = transport.StateDisconnected
	return s.server.disconnectErr
}

// staticCreds resolves every known user to the same credential.
type staticCreds map[string]model.MailCredential

func (c staticCreds) Credential(_ context.Context, user string) (model.MailCredential, error) {
	cred, ok := c[user]
	if !ok {
		return model.MailCredential{}, errors.New("no account for " + user)
	}
	return cred, nil
}

func rawMessage(subject, from string, date time.Time, body string) []byte {
	return []byte("From: " + from + "\r\n" +
		"Subject: " + subject + "\r\n" +
		"Date: " + date.Format(time.RFC1123Z) + "\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"\r\n" +
		body + "\r\n")
}

func remote(uid uint32, subject string, date time.Time, seen bool) *transport.RemoteMessage {
	m := &transport.RemoteMessage{
		UID:          uid,
		InternalDate: date,
		Source:       rawMessage(subject, "Alice <alice@example.com>", date, "body of "+subject),
	}
	if seen {
		m.Flags = []string{transport.SeenFlag}
	}
	return m
}
