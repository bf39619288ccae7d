package manager

import (
	"context"
	"errors"
	"fmt"
	"time"

	"commandForge/internal/apperr"
	"commandForge/internal/logsink"

	"github.com/rs/zerolog"
)

const DefaultDispatchInterval = 100 * time.Millisecond

// DrainDue empties every registered session's output queue. Each chunk is
// appended to the session's log, then timestamped and shown on its display.
// A failing session never prevents the others from being drained. Calls are
// serialized so each queue has a single consumer.
func (r *Registry) DrainDue() {
	r.drainMu.Lock()
	defer r.drainMu.Unlock()

	for _, e := range r.snapshot() {
		if err := r.drain(e); err != nil {
			r.reportSinkError(e.handle, err)
		}
	}
}

// drain returns the first sink failure of the batch. The log is written
// before the display so a broken display never costs the transcript.
func (r *Registry) drain(e *entry) error {
	chunks := e.session.Output().Drain()
	if len(chunks) == 0 {
		return nil
	}

	var logErr, displayErr error
	for _, text := range chunks {
		if logErr == nil {
			if werr := e.session.Log().Write(text); werr != nil && !errors.Is(werr, logsink.ErrClosed) {
				logErr = apperr.New(apperr.SinkError, "failed to write session log", werr)
			}
		}
		if displayErr == nil {
			displayErr = showChunk(e.display, Chunk{Time: r.now(), Kind: ChunkOutput, Text: text})
		}
	}
	if displayErr == nil {
		displayErr = scrollToEnd(e.display)
	}

	if logErr != nil {
		return logErr
	}
	return displayErr
}

func showChunk(display DisplaySink, c Chunk) (err error) {
	defer recoverDisplay(&err)
	display.Append(c)
	return nil
}

func scrollToEnd(display DisplaySink) (err error) {
	defer recoverDisplay(&err)
	display.ScrollToEnd()
	return nil
}

func recoverDisplay(err *error) {
	if rec := recover(); rec != nil {
		*err = apperr.New(apperr.SinkError, "display sink panicked", fmt.Errorf("%v", rec))
	}
}

func (r *Registry) reportSinkError(handle Handle, err error) {
	r.log.Error().Err(err).Str("session", string(handle)).Msg("sink error")

	r.sinkErrMu.RLock()
	fn := r.onSinkError
	r.sinkErrMu.RUnlock()
	if fn != nil {
		fn(handle, err)
	}
}

// Dispatcher calls DrainDue on a fixed interval.
type Dispatcher struct {
	registry *Registry
	interval time.Duration
	log      zerolog.Logger
}

func NewDispatcher(registry *Registry, interval time.Duration, logger zerolog.Logger) *Dispatcher {
	if interval <= 0 {
		interval = DefaultDispatchInterval
	}
	return &Dispatcher{
		registry: registry,
		interval: interval,
		log:      logger.With().Str("component", "dispatcher").Logger(),
	}
}

// Run drains until ctx is cancelled, then performs one final drain so
// nothing queued before cancellation is lost.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.log.Debug().Dur("interval", d.interval).Msg("dispatcher started")
	for {
		select {
		case <-ctx.Done():
			d.registry.DrainDue()
			d.log.Debug().Msg("dispatcher stopped")
			return
		case <-ticker.C:
			d.registry.DrainDue()
		}
	}
}
