// Package manager tracks live sessions by handle and moves their output to
// display and log sinks.
package manager

import (
	"context"
	"sync"
	"time"

	"commandForge/internal/apperr"
	"commandForge/internal/models"
	"commandForge/internal/ssh"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Handle identifies a registered session.
type Handle string

type entry struct {
	handle  Handle
	session *ssh.Session
	display DisplaySink

	mu      sync.Mutex
	history *History
	input   string
}

// Registry maps handles to sessions, their command history and display.
type Registry struct {
	dialer ssh.Dialer
	opts   ssh.Options
	log    zerolog.Logger
	now    func() time.Time

	mu      sync.RWMutex
	entries map[Handle]*entry
	order   []Handle

	drainMu sync.Mutex

	sinkErrMu   sync.RWMutex
	onSinkError func(Handle, error)
}

// NewRegistry creates a registry whose sessions dial with dialer and
// are configured with opts.
func NewRegistry(dialer ssh.Dialer, opts ssh.Options, logger zerolog.Logger) *Registry {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	opts.Logger = logger
	return &Registry{
		dialer:  dialer,
		opts:    opts,
		log:     logger.With().Str("component", "registry").Logger(),
		now:     now,
		entries: make(map[Handle]*entry),
	}
}

// OnSinkError installs a hook for display or log sink failures reported by
// DrainDue. Connection failures never reach it.
func (r *Registry) OnSinkError(fn func(Handle, error)) {
	r.sinkErrMu.Lock()
	defer r.sinkErrMu.Unlock()
	r.onSinkError = fn
}

// Create opens a session for profile and registers it with a fresh history.
// On failure nothing is registered.
func (r *Registry) Create(ctx context.Context, profile models.ConnectionProfile, display DisplaySink) (Handle, error) {
	if display == nil {
		display = NopSink{}
	}

	handle := Handle(uuid.New().String())
	opts := r.opts
	opts.Logger = r.opts.Logger.With().Str("session", string(handle)).Logger()

	session, err := ssh.Open(ctx, r.dialer, profile, opts)
	if err != nil {
		r.log.Warn().Err(err).Str("host", profile.Address()).Msg("failed to open session")
		return "", err
	}

	r.mu.Lock()
	r.entries[handle] = &entry{
		handle:  handle,
		session: session,
		display: display,
		history: NewHistory(),
	}
	r.order = append(r.order, handle)
	r.mu.Unlock()

	r.log.Info().Str("session", string(handle)).Str("host", profile.Address()).Msg("session registered")
	return handle, nil
}

// Destroy unregisters and closes the session. Unknown handles are ignored.
func (r *Registry) Destroy(handle Handle) error {
	r.mu.Lock()
	e, ok := r.entries[handle]
	if ok {
		delete(r.entries, handle)
		for i, h := range r.order {
			if h == handle {
				r.order = append(r.order[:i], r.order[i+1:]...)
				break
			}
		}
	}
	r.mu.Unlock()

	if !ok {
		return nil
	}
	r.log.Info().Str("session", string(handle)).Msg("session destroyed")
	return e.session.Close()
}

// SendCommand echoes text to the display, records it in history and hands
// it to the session. Empty text is ignored. Delivery problems surface in the
// session's output, so the only error is an unknown handle.
func (r *Registry) SendCommand(handle Handle, text string) error {
	e, err := r.lookup(handle)
	if err != nil {
		return err
	}
	if text == "" {
		return nil
	}

	e.display.Append(Chunk{Time: r.now(), Kind: ChunkSent, Text: text})

	e.mu.Lock()
	e.history.Append(text)
	e.input = ""
	e.mu.Unlock()

	e.session.Send(text)
	return nil
}

// Interrupt sends Ctrl-C to the session.
func (r *Registry) Interrupt(handle Handle) error {
	e, err := r.lookup(handle)
	if err != nil {
		return err
	}
	e.session.Interrupt()
	return nil
}

// RecallPrevious steps back through the session's history and makes the
// result the current input.
func (r *Registry) RecallPrevious(handle Handle) (string, error) {
	return r.recall(handle, (*History).Previous)
}

// RecallNext steps forward through the session's history.
func (r *Registry) RecallNext(handle Handle) (string, error) {
	return r.recall(handle, (*History).Next)
}

func (r *Registry) recall(handle Handle, step func(*History) string) (string, error) {
	e, err := r.lookup(handle)
	if err != nil {
		return "", err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.input = step(e.history)
	return e.input, nil
}

// Input returns the text currently held in the session's input line.
func (r *Registry) Input(handle Handle) (string, error) {
	e, err := r.lookup(handle)
	if err != nil {
		return "", err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.input, nil
}

func (r *Registry) SetInput(handle Handle, text string) error {
	e, err := r.lookup(handle)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.input = text
	e.mu.Unlock()
	return nil
}

// History returns a copy of the commands sent on the session.
func (r *Registry) History(handle Handle) ([]string, error) {
	e, err := r.lookup(handle)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.history.Entries(), nil
}

func (r *Registry) Session(handle Handle) (*ssh.Session, error) {
	e, err := r.lookup(handle)
	if err != nil {
		return nil, err
	}
	return e.session, nil
}

// Display returns the sink the session's output is delivered to.
func (r *Registry) Display(handle Handle) (DisplaySink, error) {
	e, err := r.lookup(handle)
	if err != nil {
		return nil, err
	}
	return e.display, nil
}

// Handles lists registered sessions in creation order.
func (r *Registry) Handles() []Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Handle(nil), r.order...)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Close destroys every registered session.
func (r *Registry) Close() error {
	var firstErr error
	for _, h := range r.Handles() {
		if err := r.Destroy(h); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *Registry) lookup(handle Handle) (*entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[handle]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "unknown session "+string(handle), nil)
	}
	return e, nil
}

// snapshot returns the live entries without holding the lock afterwards.
func (r *Registry) snapshot() []*entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entries := make([]*entry, 0, len(r.order))
	for _, h := range r.order {
		entries = append(entries, r.entries[h])
	}
	return entries
}
