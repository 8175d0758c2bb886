package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"iter"
	"net"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/rs/zerolog"

	"github.com/nhle/inboxsync/internal/logging"
	"github.com/nhle/inboxsync/internal/model"
)

// Options configures IMAPDialer.
type Options struct {
	// SessionTimeout bounds a whole session. Zero means no deadline.
	SessionTimeout time.Duration

	// DialTimeout bounds the TCP connect.
	DialTimeout time.Duration

	// RequireStartTLS refuses plaintext sessions on ports other than 993
	// when the server does not offer STARTTLS.
	RequireStartTLS bool

	// TLSConfig is cloned for each session; ServerName defaults to the host.
	TLSConfig *tls.Config

	Logger zerolog.Logger
}

// IMAPDialer opens IMAP sessions with go-imap v2.
type IMAPDialer struct {
	opts Options
}

// NewIMAPDialer creates a dialer.
func NewIMAPDialer(opts Options) *IMAPDialer {
	return &IMAPDialer{opts: opts}
}

// IMAPSession is a Session over one imapclient connection.
type IMAPSession struct {
	client   *imapclient.Client
	conn     net.Conn
	stop     func() bool
	state    State
	selected string
	logger   zerolog.Logger
}

// Dial connects to the server, negotiates TLS and logs in. Port 993 uses
// implicit TLS. Other ports upgrade with STARTTLS when the server offers it
// and stay in plaintext otherwise, unless Options.RequireStartTLS is set.
// Failures are returned as ConnectionError or AuthError; nothing is retried.
func (d *IMAPDialer) Dial(
	ctx context.Context, cred model.MailCredential,
) (Session, error) {
	addr := cred.Addr()
	s := &IMAPSession{
		state:  StateConnecting,
		logger: d.opts.Logger.With().Str("imap_addr", addr).Logger(),
	}

	tlsConfig := d.tlsConfig(cred.Host)
	clientOpts := &imapclient.Options{TLSConfig: tlsConfig}
	if d.opts.Logger.GetLevel() <= zerolog.TraceLevel {
		clientOpts.DebugWriter = logging.NewIMAPDebugWriter(s.logger)
	}

	var err error
	if cred.ImplicitTLS() {
		err = d.connectImplicitTLS(ctx, s, addr, tlsConfig, clientOpts)
	} else {
		err = d.connectOpportunistic(ctx, s, addr, clientOpts)
	}
	if err != nil {
		_ = s.Disconnect()
		return nil, err
	}

	if err := s.client.WaitGreeting(); err != nil {
		_ = s.Disconnect()
		return nil, &ConnectionError{Addr: addr, Err: fmt.Errorf("waiting for greeting: %w", err)}
	}

	if err := s.client.Login(cred.Username, cred.Password).Wait(); err != nil {
		_ = s.Disconnect()
		var imapErr *imap.Error
		if errors.As(err, &imapErr) {
			return nil, &AuthError{Username: cred.Username, Err: err}
		}
		return nil, &ConnectionError{Addr: addr, Err: fmt.Errorf("login: %w", err)}
	}

	s.state = StateAuthenticated
	return s, nil
}

// openConn dials addr and bounds the connection by the session deadline.
// Context cancellation closes it.
func (d *IMAPDialer) openConn(ctx context.Context, s *IMAPSession, addr string) error {
	dialer := &net.Dialer{Timeout: d.opts.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return &ConnectionError{Addr: addr, Err: err}
	}
	s.conn = conn
	s.stop = context.AfterFunc(ctx, func() { _ = conn.Close() })

	if err := conn.SetDeadline(d.deadline(ctx)); err != nil {
		return &ConnectionError{Addr: addr, Err: err}
	}
	return nil
}

func (d *IMAPDialer) connectImplicitTLS(
	ctx context.Context,
	s *IMAPSession,
	addr string,
	tlsConfig *tls.Config,
	clientOpts *imapclient.Options,
) error {
	if err := d.openConn(ctx, s, addr); err != nil {
		return err
	}

	tlsConn := tls.Client(s.conn, tlsConfig)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		return &ConnectionError{Addr: addr, Err: fmt.Errorf("TLS handshake: %w", err)}
	}
	s.conn = tlsConn
	s.client = imapclient.New(tlsConn, clientOpts)
	return nil
}

// connectOpportunistic reads the capabilities on a plaintext connection.
// STARTTLS has to be the first command of a session, so when it is offered
// the connection is replaced by a fresh one that upgrades right away.
func (d *IMAPDialer) connectOpportunistic(
	ctx context.Context,
	s *IMAPSession,
	addr string,
	clientOpts *imapclient.Options,
) error {
	if err := d.openConn(ctx, s, addr); err != nil {
		return err
	}

	s.client = imapclient.New(s.conn, clientOpts)
	if err := s.client.WaitGreeting(); err != nil {
		return &ConnectionError{Addr: addr, Err: fmt.Errorf("waiting for greeting: %w", err)}
	}

	if !s.client.Caps().Has(imap.CapStartTLS) {
		if d.opts.RequireStartTLS {
			return &ConnectionError{Addr: addr, Err: errors.New("server does not offer STARTTLS")}
		}
		s.logger.Warn().Msg("server does not offer STARTTLS, continuing without TLS")
		return nil
	}

	_ = s.client.Close()
	s.client = nil
	s.stop()

	if err := d.openConn(ctx, s, addr); err != nil {
		return err
	}
	client, err := imapclient.NewStartTLS(s.conn, clientOpts)
	if err != nil {
		return &ConnectionError{Addr: addr, Err: fmt.Errorf("STARTTLS: %w", err)}
	}
	s.client = client
	return nil
}

// deadline returns the earlier of the session timeout and the context
// deadline. The zero time disables the deadline.
func (d *IMAPDialer) deadline(ctx context.Context) time.Time {
	var deadline time.Time
	if d.opts.SessionTimeout > 0 {
		deadline = time.Now().Add(d.opts.SessionTimeout)
	}
	if ctxDeadline, ok := ctx.Deadline(); ok {
		if deadline.IsZero() || ctxDeadline.Before(deadline) {
			deadline = ctxDeadline
		}
	}
	return deadline
}

func (d *IMAPDialer) tlsConfig(host string) *tls.Config {
	var cfg *tls.Config
	if d.opts.TLSConfig != nil {
		cfg = d.opts.TLSConfig.Clone()
	} else {
		cfg = &tls.Config{}
	}
	if cfg.ServerName == "" {
		cfg.ServerName = host
	}
	return cfg
}

// State returns the current lifecycle state.
func (s *IMAPSession) State() State {
	return s.state
}

// require fails when the session is not in one of the allowed states.
func (s *IMAPSession) require(op string, allowed ...State) error {
	for _, st := range allowed {
		if s.state == st {
			return nil
		}
	}
	return &StateError{Op: op, State: s.state}
}

// OpenFolder selects path. A NO response is reported as FolderNotFoundError.
func (s *IMAPSession) OpenFolder(path string) (*FolderStatus, error) {
	if err := s.require("open folder", StateAuthenticated, StateFolderSelected); err != nil {
		return nil, err
	}

	data, err := s.client.Select(path, nil).Wait()
	if err != nil {
		s.state = StateAuthenticated
		s.selected = ""
		var imapErr *imap.Error
		if errors.As(err, &imapErr) && imapErr.Type == imap.StatusResponseTypeNo {
			return nil, &FolderNotFoundError{Folder: path, Err: err}
		}
		return nil, fmt.Errorf("selecting %s: %w", path, err)
	}

	s.state = StateFolderSelected
	s.selected = path
	return &FolderStatus{
		Path:        path,
		NumMessages: data.NumMessages,
		UIDValidity: data.UIDValidity,
	}, nil
}

// ListFolders lists every folder with its special-use attributes. The
// session falls back to Authenticated, so callers re-open their folder.
func (s *IMAPSession) ListFolders() ([]Folder, error) {
	if err := s.require("list folders", StateAuthenticated, StateFolderSelected); err != nil {
		return nil, err
	}
	s.state = StateAuthenticated
	s.selected = ""

	var opts *imap.ListOptions
	if s.client.Caps().Has(imap.CapListExtended) {
		opts = &imap.ListOptions{ReturnSpecialUse: true}
	}

	list, err := s.client.List("", "*", opts).Collect()
	if err != nil {
		return nil, fmt.Errorf("listing folders: %w", err)
	}

	return foldersFromList(list), nil
}

// Search reports which of uids are present in the open folder.
func (s *IMAPSession) Search(uids ...uint32) (*SearchResult, error) {
	if err := s.require("search", StateFolderSelected); err != nil {
		return nil, err
	}
	if len(uids) == 0 {
		return NewSearchResult(), nil
	}

	s.state = StateSearching
	defer func() { s.state = StateFolderSelected }()

	criteria := &imap.SearchCriteria{
		UID: []imap.UIDSet{toUIDSet(uids)},
	}
	data, err := s.client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("searching %s: %w", s.selected, err)
	}

	return searchResultFromUIDs(data.AllUIDs()), nil
}

// Fetch lazily yields the messages selected by r from the open folder.
func (s *IMAPSession) Fetch(
	r FetchRange, opts FetchOptions,
) iter.Seq2[*RemoteMessage, error] {
	return func(yield func(*RemoteMessage, error) bool) {
		if err := s.require("fetch", StateFolderSelected); err != nil {
			yield(nil, err)
			return
		}

		s.state = StateFetching
		defer func() { s.state = StateFolderSelected }()

		var section *imap.FetchItemBodySection
		fetchOpts := &imap.FetchOptions{
			UID:          true,
			Envelope:     opts.Envelope,
			Flags:        opts.Flags,
			InternalDate: opts.InternalDate,
		}
		if opts.Source {
			section = &imap.FetchItemBodySection{Peek: true}
			fetchOpts.BodySection = []*imap.FetchItemBodySection{section}
		}

		fetchCmd := s.client.Fetch(r.numSet(), fetchOpts)
		for {
			data := fetchCmd.Next()
			if data == nil {
				break
			}

			buf, err := data.Collect()
			if err != nil {
				_ = fetchCmd.Close()
				yield(nil, fmt.Errorf("collecting message data: %w", err))
				return
			}

			if !yield(s.remoteMessage(buf, section), nil) {
				_ = fetchCmd.Close()
				return
			}
		}

		if err := fetchCmd.Close(); err != nil {
			yield(nil, fmt.Errorf("fetching from %s: %w", s.selected, err))
		}
	}
}

// Move relocates uid to dest. A command error or a response without a
// relocation mapping for uid is a MoveFailedError.
func (s *IMAPSession) Move(uid uint32, dest string) (*MoveResult, error) {
	if err := s.require("move", StateFolderSelected); err != nil {
		return nil, err
	}

	s.state = StateMoving
	defer func() { s.state = StateFolderSelected }()

	data, err := s.client.Move(toUIDSet([]uint32{uid}), dest).Wait()
	if err != nil {
		return nil, &MoveFailedError{UID: uid, Destination: dest, Err: err}
	}

	var src, dst imap.NumSet
	if data != nil {
		src, dst = data.SourceUIDs, data.DestUIDs
	}
	result := moveResultFromSets(src, dst)
	if !result.Moved(uid) {
		return result, &MoveFailedError{UID: uid, Destination: dest}
	}
	return result, nil
}

// SetFlag adds (value true) or removes flag on uid.
func (s *IMAPSession) SetFlag(uid uint32, flag string, value bool) error {
	if err := s.require("set flag", StateFolderSelected); err != nil {
		return err
	}

	op := imap.StoreFlagsAdd
	if !value {
		op = imap.StoreFlagsDel
	}

	storeCmd := s.client.Store(imap.UIDSetNum(imap.UID(uid)), &imap.StoreFlags{
		Op:     op,
		Silent: true,
		Flags:  []imap.Flag{imap.Flag(flag)},
	}, nil)
	if err := storeCmd.Close(); err != nil {
		return fmt.Errorf("storing %s on UID %d: %w", flag, uid, err)
	}
	return nil
}

// Disconnect logs out and closes the connection. It may be called more
// than once.
func (s *IMAPSession) Disconnect() error {
	if s.state == StateDisconnected && s.client == nil && s.conn == nil {
		return nil
	}

	var errs []error
	if s.client != nil {
		if s.state != StateConnecting {
			if err := s.client.Logout().Wait(); err != nil {
				errs = append(errs, fmt.Errorf("logout: %w", err))
			}
		}
		if err := s.client.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, fmt.Errorf("closing client: %w", err))
		}
	} else if s.conn != nil {
		if err := s.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, fmt.Errorf("closing connection: %w", err))
		}
	}
	if s.stop != nil {
		s.stop()
	}

	s.client = nil
	s.conn = nil
	s.selected = ""
	s.state = StateDisconnected
	return errors.Join(errs...)
}

// remoteMessage converts a collected fetch buffer.
func (s *IMAPSession) remoteMessage(
	buf *imapclient.FetchMessageBuffer, section *imap.FetchItemBodySection,
) *RemoteMessage {
	msg := &RemoteMessage{
		UID:          uint32(buf.UID),
		Folder:       s.selected,
		Envelope:     envelopeFromIMAP(buf.Envelope),
		InternalDate: buf.InternalDate,
	}
	for _, flag := range buf.Flags {
		msg.Flags = append(msg.Flags, string(flag))
	}
	if section != nil {
		msg.Source = buf.FindBodySection(section)
	}
	return msg
}

// numSet converts the range into the library's sequence or UID set.
func (r FetchRange) numSet() imap.NumSet {
	if r.ByUID() {
		return toUIDSet(r.UIDs)
	}
	return imap.SeqSet{imap.SeqRange{Start: r.Start, Stop: r.Stop}}
}

func toUIDSet(uids []uint32) imap.UIDSet {
	converted := make([]imap.UID, 0, len(uids))
	for _, uid := range uids {
		converted = append(converted, imap.UID(uid))
	}
	return imap.UIDSetNum(converted...)
}

// envelopeFromIMAP extracts the fields the engine uses from an IMAP envelope.
func envelopeFromIMAP(env *imap.Envelope) Envelope {
	if env == nil {
		return Envelope{}
	}

	out := Envelope{
		Subject: env.Subject,
		Date:    env.Date,
	}
	if len(env.From) > 0 {
		from := env.From[0]
		if from.Name != "" {
			out.From = fmt.Sprintf("%s <%s>", from.Name, from.Addr())
		} else {
			out.From = from.Addr()
		}
	}
	return out
}

func foldersFromList(list []*imap.ListData) []Folder {
	folders := make([]Folder, 0, len(list))
	for _, data := range list {
		f := Folder{Path: data.Mailbox}
		for _, attr := range data.Attrs {
			switch attr {
			case imap.MailboxAttrTrash, imap.MailboxAttrSent, imap.MailboxAttrDrafts,
				imap.MailboxAttrJunk, imap.MailboxAttrArchive:
				f.SpecialUse = append(f.SpecialUse, string(attr))
			}
		}
		folders = append(folders, f)
	}
	return folders
}

func searchResultFromUIDs(uids []imap.UID) *SearchResult {
	matched := make([]uint32, 0, len(uids))
	for _, uid := range uids {
		matched = append(matched, uint32(uid))
	}
	return NewSearchResult(matched...)
}

// moveResultFromSets pairs COPYUID source and destination UIDs in order.
// Sets that are missing, open-ended or of unequal length yield an empty
// result.
func moveResultFromSets(src, dst imap.NumSet) *MoveResult {
	result := &MoveResult{Relocated: map[uint32]uint32{}}

	srcSet, ok := src.(imap.UIDSet)
	if !ok {
		return result
	}
	dstSet, ok := dst.(imap.UIDSet)
	if !ok {
		return result
	}

	srcUIDs, ok := srcSet.Nums()
	if !ok {
		return result
	}
	dstUIDs, ok := dstSet.Nums()
	if !ok || len(srcUIDs) != len(dstUIDs) {
		return result
	}

	for i, uid := range srcUIDs {
		result.Relocated[uint32(uid)] = uint32(dstUIDs[i])
	}
	return result
}

