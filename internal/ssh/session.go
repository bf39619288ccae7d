// internal/ssh/session.go
package ssh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"commandForge/internal/apperr"
	"commandForge/internal/logsink"
	"commandForge/internal/models"
	"commandForge/internal/sanitize"

	"github.com/rs/zerolog"
)

// SessionState is the connection state of a Session.
type SessionState int

const (
	StateConnecting SessionState = iota
	StateConnected
	StateDisconnected
	StateReconnecting
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

const (
	DefaultTermType     = "vt100"
	DefaultTermWidth    = 80
	DefaultTermHeight   = 24
	DefaultPollInterval = 100 * time.Millisecond
	DefaultLogsDir      = "logs"

	// ChunkSize is the most the reader takes from the channel per read.
	ChunkSize = 4096

	ConnectionLostNotice = "\nConnection lost. Press Send (or Enter) to reconnect.\n"
	ReconnectedNotice    = "Reconnected.\n"

	lineTerminator = "\r\n"
	interruptByte  = 0x03
)

// Options configures a Session. Zero values fall back to the defaults above;
// a zero KeepAlive disables keepalives.
type Options struct {
	TermType     string
	Width        int
	Height       int
	PollInterval time.Duration
	DialTimeout  time.Duration
	KeepAlive    time.Duration
	LogsDir      string
	Logger       zerolog.Logger
	Now          func() time.Time
}

func (o Options) withDefaults() Options {
	if o.TermType == "" {
		o.TermType = DefaultTermType
	}
	if o.Width <= 0 {
		o.Width = DefaultTermWidth
	}
	if o.Height <= 0 {
		o.Height = DefaultTermHeight
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = DefaultDialTimeout
	}
	if o.LogsDir == "" {
		o.LogsDir = DefaultLogsDir
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// reader tracks one reader goroutine and the channel it is bound to.
type reader struct {
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

func newReader() *reader {
	return &reader{stop: make(chan struct{}), done: make(chan struct{})}
}

func (r *reader) halt() {
	r.once.Do(func() { close(r.stop) })
}

func (r *reader) halted() bool {
	select {
	case <-r.stop:
		return true
	default:
		return false
	}
}

// Session is one interactive shell on a remote host. Output is drained into
// Output() by a background reader; Send reconnects lazily after a loss.
type Session struct {
	dialer   Dialer
	opts     Options
	log      zerolog.Logger
	queue    *OutputQueue
	sink     *logsink.FileSink
	openedAt time.Time

	// opMu serializes Send, Interrupt and Close so a reconnect never races
	// a close or another reconnect.
	opMu sync.Mutex

	mu        sync.RWMutex
	profile   models.ConnectionProfile
	state     SessionState
	transport Transport
	channel   Channel
	reader    *reader
	// cancelDial aborts an in-flight reconnect so Close need not wait for it.
	cancelDial context.CancelFunc
}

// Open dials the profile, starts an interactive shell and its reader, and
// opens the session's transcript file.
func Open(ctx context.Context, dialer Dialer, profile models.ConnectionProfile, opts Options) (*Session, error) {
	opts = opts.withDefaults()
	profile = profile.WithDefaults()

	s := &Session{
		dialer:   dialer,
		opts:     opts,
		log:      opts.Logger.With().Str("host", profile.Address()).Logger(),
		queue:    NewOutputQueue(),
		openedAt: opts.Now(),
		profile:  profile,
		state:    StateConnecting,
	}

	transport, ch, err := s.connect(ctx, profile)
	if err != nil {
		return nil, err
	}

	sink, err := logsink.Open(opts.LogsDir, profile.Host, s.openedAt)
	if err != nil {
		releaseHandles(ch, transport)
		return nil, apperr.New(apperr.SinkError, "failed to open session log", err)
	}
	s.sink = sink

	s.mu.Lock()
	s.startLocked(transport, ch)
	s.mu.Unlock()

	s.log.Info().Str("log", sink.Path()).Msg("session opened")
	return s, nil
}

func (s *Session) connect(ctx context.Context, profile models.ConnectionProfile) (Transport, Channel, error) {
	transport, err := s.dialer.Dial(ctx, profile)
	if err != nil {
		if apperr.IsType(err, apperr.ConnectionError) {
			return nil, nil, err
		}
		return nil, nil, apperr.New(apperr.ConnectionError, "failed to connect", err)
	}

	ch, err := transport.OpenShell(s.opts.TermType, s.opts.Width, s.opts.Height)
	if err != nil {
		transport.Close()
		return nil, nil, apperr.New(apperr.ConnectionError, "failed to open interactive shell", err)
	}
	return transport, ch, nil
}

// startLocked binds fresh handles and starts exactly one reader for them.
// Callers hold s.mu.
func (s *Session) startLocked(transport Transport, ch Channel) {
	r := newReader()
	s.transport = transport
	s.channel = ch
	s.reader = r
	s.state = StateConnected

	go s.readLoop(ch, r)
	if s.opts.KeepAlive > 0 {
		go s.keepAliveLoop(transport, r)
	}
}

func (s *Session) readLoop(ch Channel, r *reader) {
	defer close(r.done)

	err := s.pump(ch, r.stop)
	requested := r.halted()
	r.halt()

	s.mu.Lock()
	if s.state == StateConnected && s.channel == ch {
		s.state = StateDisconnected
	}
	s.mu.Unlock()

	if requested {
		s.log.Debug().Msg("reader stopped")
	} else {
		s.log.Warn().Err(err).Msg("connection lost")
	}
	s.queue.Push(ConnectionLostNotice)
}

// pump moves sanitized output into the queue until the channel closes,
// errors, or stop is closed. Stop is observed at every poll boundary.
func (s *Session) pump(ch Channel, stop <-chan struct{}) error {
	for {
		select {
		case <-stop:
			return nil
		default:
		}

		res := ch.Poll(s.opts.PollInterval)
		if res.Readable {
			data, err := ch.Recv(ChunkSize)
			if err != nil {
				return apperr.New(apperr.ReadError, "failed to read from channel", err)
			}
			if len(data) == 0 {
				return apperr.New(apperr.RemoteClosed, "remote closed the channel", nil)
			}
			if text := sanitize.Sanitize(data); text != "" {
				s.queue.Push(text)
			}
		}
		if res.Errored {
			return apperr.New(apperr.ReadError, "channel reported an error", nil)
		}
	}
}

func (s *Session) keepAliveLoop(transport Transport, r *reader) {
	ticker := time.NewTicker(s.opts.KeepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := transport.KeepAlive(); err != nil {
				s.log.Warn().Err(err).Msg("keepalive failed")
				// Closing the transport wakes the reader, which reports the loss.
				transport.Close()
				return
			}
		case <-r.stop:
			return
		}
	}
}

// errSessionClosed ends a reconnect that Close overtook.
var errSessionClosed = errors.New("session closed")

// Send writes command followed by CRLF. A disconnected session is reconnected
// first; a failed reconnect or write is reported through Output() rather than
// returned. Send never waits for the remote reply.
func (s *Session) Send(command string) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	switch s.State() {
	case StateClosed:
		s.log.Debug().Msg("send on closed session ignored")
		return
	case StateDisconnected:
		if err := s.reconnect(); err != nil {
			if errors.Is(err, errSessionClosed) {
				s.log.Debug().Msg("reconnect abandoned by close")
				return
			}
			s.log.Warn().Err(err).Msg("reconnect failed")
			s.queue.Push(fmt.Sprintf("Reconnect failed: %v\n", err))
			return
		}
	}

	s.mu.RLock()
	ch := s.channel
	s.mu.RUnlock()

	if _, err := ch.Write([]byte(command + lineTerminator)); err != nil {
		s.log.Warn().Err(err).Msg("send failed")
		s.queue.Push(fmt.Sprintf("Send failed: %v\n", err))
	}
}

// reconnect replaces stale handles with new ones. Callers hold s.opMu and
// have observed StateDisconnected, so the old reader is already on its way out.
func (s *Session) reconnect() error {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return errSessionClosed
	}
	old, transport, ch, profile := s.reader, s.transport, s.channel, s.profile
	s.state = StateReconnecting
	s.mu.Unlock()

	if old != nil {
		old.halt()
		<-old.done
	}
	releaseHandles(ch, transport)

	ctx, cancel := context.WithTimeout(context.Background(), s.opts.DialTimeout)
	defer cancel()

	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return errSessionClosed
	}
	s.cancelDial = cancel
	s.mu.Unlock()

	newTransport, newCh, err := s.connect(ctx, profile)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelDial = nil

	if s.state == StateClosed {
		releaseHandles(newCh, newTransport)
		return errSessionClosed
	}
	if err != nil {
		s.transport, s.channel, s.reader = nil, nil, nil
		s.state = StateDisconnected
		return err
	}

	s.queue.Push(ReconnectedNotice)
	s.startLocked(newTransport, newCh)
	s.log.Info().Msg("session reconnected")
	return nil
}

// Interrupt sends Ctrl-C. It does nothing unless the session is connected.
func (s *Session) Interrupt() {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.RLock()
	state, ch := s.state, s.channel
	s.mu.RUnlock()

	if state != StateConnected {
		return
	}
	if _, err := ch.Write([]byte{interruptByte}); err != nil {
		s.log.Debug().Err(err).Msg("interrupt failed")
	}
}

// Close stops the reader, releases the connection and closes the transcript.
// It returns once the reader has exited. Calling it again is a no-op.
func (s *Session) Close() error {
	// Marking the session closed and cancelling a pending dial happen
	// before opMu, which a reconnecting Send holds for the whole dial.
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return nil
	}
	s.state = StateClosed
	if s.cancelDial != nil {
		s.cancelDial()
	}
	s.mu.Unlock()

	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	r, transport, ch := s.reader, s.transport, s.channel
	s.transport, s.channel, s.reader = nil, nil, nil
	s.mu.Unlock()

	if r != nil {
		r.halt()
	}
	releaseHandles(ch, transport)
	if r != nil {
		<-r.done
	}

	s.log.Info().Msg("session closed")
	if err := s.sink.Close(); err != nil {
		return apperr.New(apperr.SinkError, "failed to close session log", err)
	}
	return nil
}

func releaseHandles(ch Channel, transport Transport) {
	if ch != nil {
		ch.Close()
	}
	if transport != nil {
		transport.Close()
	}
}

// SetCredential replaces the stored secret used by the next reconnect.
func (s *Session) SetCredential(secret string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profile.Password = secret
}

func (s *Session) State() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) Connected() bool {
	return s.State() == StateConnected
}

func (s *Session) Profile() models.ConnectionProfile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profile
}

func (s *Session) OpenedAt() time.Time {
	return s.openedAt
}

// Output is the queue of sanitized chunks awaiting dispatch.
func (s *Session) Output() *OutputQueue {
	return s.queue
}

// Log is the session's transcript sink.
func (s *Session) Log() *logsink.FileSink {
	return s.sink
}
