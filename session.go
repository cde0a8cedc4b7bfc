package yeelight

import (
	"bufio"
	"context"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/juju/errors"
)

// Session owns one TCP connection to a light and the request id sequence
// used on it. Send is synchronous: it writes one request and then reads
// lines until the matching reply arrives or the connection fails.
//
// A Session is safe for use by multiple goroutines, but calls are
// serialised: at most one request is in flight at a time. Close may be
// called while a request is pending and aborts it. A Session that has
// failed fatally stays broken; create a new one with Connect.
//
//	s, err := yeelight.Connect(ctx, "192.168.1.7:55443")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer s.Close()
//
//	reply, err := s.Send(ctx, "set_bright", 50, "smooth", 500)
type Session struct {
	// id identifies the session in log lines.
	id string

	// addr is the device address the session was dialled with.
	addr string

	// conn is the live TCP connection.
	conn net.Conn

	// reader buffers conn for line reads.
	reader *bufio.Reader

	// opts holds the session options.
	opts sessionOptions

	// mu serialises round trips. The fields below are read without it.
	mu sync.Mutex

	// nextID is the id the next request will carry.
	nextID atomic.Uint64

	// broken is set after the first fatal error or Close.
	broken atomic.Bool

	// closed is set by Close.
	closed atomic.Bool

	// skipped counts inbound lines that were read and discarded.
	skipped atomic.Uint64
}

// Connect dials address and returns a ready Session. The request id
// counter starts at 0.
func Connect(ctx context.Context, address string, options ...SessionOption) (*Session, error) {
	opts := defaultSessionOptions()
	for _, opt := range options {
		opt(&opts)
	}

	dialer := net.Dialer{Timeout: opts.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, &SessionError{Kind: ErrConnect, Op: "dial", Addr: address, Err: err}
	}
	s := newSession(conn, address, opts)
	s.logf("connected to %s", address)
	return s, nil
}

// NewSession wraps an already established connection, for transports that
// are not dialled by Connect (net.Pipe in tests, a proxied stream).
func NewSession(conn net.Conn, options ...SessionOption) *Session {
	opts := defaultSessionOptions()
	for _, opt := range options {
		opt(&opts)
	}
	addr := ""
	if ra := conn.RemoteAddr(); ra != nil {
		addr = ra.String()
	}
	return newSession(conn, addr, opts)
}

func newSession(conn net.Conn, addr string, opts sessionOptions) *Session {
	return &Session{
		id:     uuid.New().String(),
		addr:   addr,
		conn:   conn,
		reader: bufio.NewReader(conn),
		opts:   opts,
	}
}

// ID returns the random identifier of this session.
func (s *Session) ID() string {
	return s.id
}

// Addr returns the device address.
func (s *Session) Addr() string {
	return s.addr
}

// NextID returns the id the next request will carry.
func (s *Session) NextID() uint64 {
	return s.nextID.Load()
}

// Broken reports whether the session has failed fatally.
func (s *Session) Broken() bool {
	return s.broken.Load()
}

// Skipped returns how many inbound lines were discarded while waiting for
// replies: notifications, stale replies and stale error replies.
func (s *Session) Skipped() uint64 {
	return s.skipped.Load()
}

// Close closes the connection. A pending Send returns ErrSessionBroken, as
// does every later call.
func (s *Session) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	if s.broken.Swap(true) {
		// fail already closed the connection.
		return nil
	}
	s.logf("closing")
	return s.conn.Close()
}

// Send builds a Command from method and params and executes it.
func (s *Session) Send(ctx context.Context, method string, params ...any) (*Reply, error) {
	cmd, err := NewCommand(Method(method), params...)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return s.Execute(ctx, cmd)
}

// Execute sends cmd and waits for its reply.
//
// The request id is taken from the counter before anything is written, so
// ids are never reused even when the call fails. While waiting, lines that
// are not the reply to this request are skipped. The call returns on:
//
//   - the matching reply;
//   - the matching error reply, as a *DeviceError (the session stays usable);
//   - end of stream (ErrConnectionClosed), an I/O error or deadline
//     (ErrTransportFailure), or a line that is not JSON
//     (ErrProtocolCorruption). These break the session;
//   - Close from another goroutine (ErrSessionBroken).
//
// The protocol has no timeout. Use WithIOTimeout or a ctx deadline to bound
// the wait; cancelling ctx aborts the blocking read and breaks the session,
// because a late reply could no longer be told apart from the next one.
func (s *Session) Execute(ctx context.Context, cmd Command) (*Reply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.broken.Load() {
		return nil, &SessionError{Kind: ErrSessionBroken, Op: "send", Addr: s.addr}
	}

	id := s.nextID.Add(1) - 1

	// Nothing has been written yet, so the session survives.
	if err := ctx.Err(); err != nil {
		return nil, errors.Annotatef(err, "request %d", id)
	}

	line, err := Encode(cmd.Envelope(id))
	if err != nil {
		return nil, errors.Trace(err)
	}

	stop := s.armDeadline(ctx)
	defer stop()

	s.logf("request %d: sending %s", id, line[:len(line)-len(lineTerminator)])
	if _, err := s.conn.Write(line); err != nil {
		return nil, s.fail(ctx, ErrTransportFailure, "write", id, err)
	}

	return s.awaitReply(ctx, id)
}

// awaitReply reads lines until the reply to id arrives or a fatal
// condition ends the session.
func (s *Session) awaitReply(ctx context.Context, id uint64) (*Reply, error) {
	for {
		raw, err := s.reader.ReadBytes('\n')
		if err != nil {
			if err == io.EOF {
				if len(raw) > 0 {
					s.tracef("request %d: stream ended mid-line %q", id, raw)
				}
				return nil, s.fail(ctx, ErrConnectionClosed, "read", id, nil)
			}
			return nil, s.fail(ctx, ErrTransportFailure, "read", id, err)
		}

		in, err := DecodeLine(raw)
		if err != nil {
			return nil, s.fail(ctx, ErrProtocolCorruption, "decode", id, err)
		}

		switch in.Kind {
		case KindReply:
			if in.Reply.ID == id {
				s.logf("request %d: reply %q", id, in.Reply.Result)
				return in.Reply, nil
			}
			s.tracef("request %d: skipping reply to %d", id, in.Reply.ID)
		case KindErrorReply:
			if in.ErrorReply.ID == id {
				s.logf("request %d: rejected: %s", id, in.ErrorReply.Message)
				return nil, &DeviceError{
					RequestID: id,
					Code:      in.ErrorReply.Code,
					Message:   in.ErrorReply.Message,
				}
			}
			s.tracef("request %d: skipping error reply to %d", id, in.ErrorReply.ID)
		default:
			s.tracef("request %d: skipping %s", id, in.Raw)
		}
		s.skipped.Add(1)
	}
}

// armDeadline applies the I/O timeout and ties ctx to the connection
// deadline. The returned func disarms both.
func (s *Session) armDeadline(ctx context.Context) func() {
	var deadline time.Time
	if s.opts.ioTimeout > 0 {
		deadline = time.Now().Add(s.opts.ioTimeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	_ = s.conn.SetDeadline(deadline)

	fired := make(chan struct{})
	stopAfter := context.AfterFunc(ctx, func() {
		defer close(fired)
		// Unblocks a pending Read or Write.
		_ = s.conn.SetDeadline(time.Unix(1, 0))
	})
	return func() {
		if !stopAfter() {
			<-fired
		}
		_ = s.conn.SetDeadline(time.Time{})
	}
}

// fail marks the session broken, closes the connection and builds the
// error for kind. A ctx error takes precedence as the cause of a transport
// failure, since it is what forced the deadline. A request cut short by
// Close fails with ErrSessionBroken.
func (s *Session) fail(ctx context.Context, kind error, op string, id uint64, cause error) error {
	if s.closed.Load() {
		kind = ErrSessionBroken
	} else if kind == ErrTransportFailure {
		if ctx.Err() != nil {
			cause = ctx.Err()
		} else if d, ok := ctx.Deadline(); ok && !time.Now().Before(d) {
			// The connection deadline fired just ahead of the ctx timer.
			cause = context.DeadlineExceeded
		}
	}
	s.broken.Store(true)
	_ = s.conn.Close()
	err := &SessionError{
		Kind:       kind,
		Op:         op,
		Addr:       s.addr,
		RequestID:  id,
		HasRequest: true,
		Err:        cause,
	}
	s.logf("session failed: %v", err)
	return err
}

// ─── Internal Helpers ───────────────────────────────────────────────────────────

// logf writes a debug line tagged with the session id.
func (s *Session) logf(format string, v ...interface{}) {
	s.opts.logger.Debugf("[%s] "+format, append([]interface{}{s.shortID()}, v...)...)
}

// tracef writes a trace line tagged with the session id.
func (s *Session) tracef(format string, v ...interface{}) {
	s.opts.logger.Tracef("[%s] "+format, append([]interface{}{s.shortID()}, v...)...)
}

func (s *Session) shortID() string {
	if len(s.id) > 8 {
		return s.id[:8]
	}
	return s.id
}
