package transport

import (
	"context"
	"iter"
	"slices"
	"time"

	"github.com/nhle/inboxsync/internal/model"
)

// State is the lifecycle position of a Session.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateAuthenticated
	StateFolderSelected
	StateSearching
	StateFetching
	StateMoving
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateFolderSelected:
		return "folder-selected"
	case StateSearching:
		return "searching"
	case StateFetching:
		return "fetching"
	case StateMoving:
		return "moving"
	default:
		return "unknown"
	}
}

// SeenFlag is the IMAP system flag for read messages.
const SeenFlag = `\Seen`

// TrashAttr is the special-use attribute advertised by the trash folder.
const TrashAttr = `\Trash`

// FolderStatus is the metadata returned when a folder is opened.
type FolderStatus struct {
	Path        string
	NumMessages uint32
	UIDValidity uint32
}

// Folder is one entry of the server folder tree.
type Folder struct {
	Path string

	// SpecialUse holds special-use attributes such as \Trash or \Sent.
	SpecialUse []string
}

// Is reports whether the folder advertises the given special-use attribute.
func (f Folder) Is(attr string) bool {
	return slices.Contains(f.SpecialUse, attr)
}

// TrashFolder returns the path of the first folder flagged \Trash, or
// fallback when none advertises it.
func TrashFolder(folders []Folder, fallback string) string {
	for _, f := range folders {
		if f.Is(TrashAttr) {
			return f.Path
		}
	}
	return fallback
}

// SearchResult is the set of UIDs matched by a search in the open folder.
type SearchResult struct {
	MatchedUIDs map[uint32]struct{}
}

// NewSearchResult builds a SearchResult from matched UIDs.
func NewSearchResult(uids ...uint32) *SearchResult {
	r := &SearchResult{MatchedUIDs: make(map[uint32]struct{}, len(uids))}
	for _, uid := range uids {
		r.MatchedUIDs[uid] = struct{}{}
	}
	return r
}

// Contains reports whether uid matched.
func (r *SearchResult) Contains(uid uint32) bool {
	if r == nil {
		return false
	}
	_, ok := r.MatchedUIDs[uid]
	return ok
}

// MoveResult maps each relocated source UID to its UID in the destination.
type MoveResult struct {
	Relocated map[uint32]uint32
}

// Empty reports whether the server confirmed no relocation at all.
func (r *MoveResult) Empty() bool {
	return r == nil || len(r.Relocated) == 0
}

// Moved reports whether uid was confirmed relocated.
func (r *MoveResult) Moved(uid uint32) bool {
	if r.Empty() {
		return false
	}
	_, ok := r.Relocated[uid]
	return ok
}

// FetchRange selects the messages of a fetch. A sequence range runs from
// Start to Stop inclusive, with Stop == 0 meaning the end of the folder. A
// UID range lists explicit UIDs instead.
type FetchRange struct {
	Start uint32
	Stop  uint32
	UIDs  []uint32
}

// SeqRange returns the range Start:Stop over sequence numbers.
func SeqRange(start, stop uint32) FetchRange {
	return FetchRange{Start: start, Stop: stop}
}

// UIDRange returns a range over the given UIDs.
func UIDRange(uids ...uint32) FetchRange {
	return FetchRange{UIDs: uids}
}

// ByUID reports whether the range is expressed in UIDs.
func (r FetchRange) ByUID() bool {
	return len(r.UIDs) > 0
}

// FetchOptions chooses the data items requested per message. UID is always
// requested.
type FetchOptions struct {
	Envelope     bool
	Flags        bool
	InternalDate bool
	Source       bool
}

// Envelope is the structured header metadata of a remote message.
type Envelope struct {
	Subject string
	From    string
	Date    time.Time
}

// RemoteMessage is one message as reported by the server inside an active
// session.
type RemoteMessage struct {
	UID          uint32
	Folder       string
	Envelope     Envelope
	Flags        []string
	InternalDate time.Time

	// Source is the full RFC 5322 message when FetchOptions.Source was set.
	Source []byte
}

// Seen reports whether the server carries the \Seen flag.
func (m *RemoteMessage) Seen() bool {
	return slices.Contains(m.Flags, SeenFlag)
}

// Session is one authenticated protocol session. A Session is not safe for
// concurrent use.
type Session interface {
	// State returns the current lifecycle state.
	State() State

	// OpenFolder selects path for subsequent commands.
	OpenFolder(path string) (*FolderStatus, error)

	// ListFolders returns the full folder tree with special-use attributes.
	// The selected folder must be opened again afterwards.
	ListFolders() ([]Folder, error)

	// Search returns which of uids exist in the open folder.
	Search(uids ...uint32) (*SearchResult, error)

	// Fetch lazily yields the messages of r. Iteration stops on the first
	// error.
	Fetch(r FetchRange, opts FetchOptions) iter.Seq2[*RemoteMessage, error]

	// Move relocates uid from the open folder to dest.
	Move(uid uint32, dest string) (*MoveResult, error)

	// SetFlag adds or removes flag on uid in the open folder.
	SetFlag(uid uint32, flag string, value bool) error

	// Disconnect tears the session down. It is safe to call on a partially
	// connected or already closed session; the returned error is for
	// logging only.
	Disconnect() error
}

// Dialer opens authenticated sessions.
type Dialer interface {
	Dial(ctx context.Context, cred model.MailCredential) (Session, error)
}
