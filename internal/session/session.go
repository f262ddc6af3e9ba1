// Package session implements the per-connection streaming recognition
// session: a state machine that feeds inbound audio chunks to an exclusively
// owned decoder session and emits partial/final transcription events in
// production order.
package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/voxserve/voxserve/internal/engine"
)

var (
	// ErrBufferOverflow is returned by Push when inbound audio arrives
	// faster than the decoder consumes it and the bounded buffer is full.
	// The caller is expected to close the connection; chunks are never
	// dropped silently.
	ErrBufferOverflow = errors.New("stream buffer overflow")

	// ErrMalformedFrame is returned for audio frames that cannot be valid
	// 16-bit PCM (odd byte length).
	ErrMalformedFrame = errors.New("malformed audio frame")
)

// State is the session lifecycle: Open -> Active -> Draining -> Closed.
type State int32

const (
	StateOpen State = iota
	StateActive
	StateDraining
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateActive:
		return "active"
	case StateDraining:
		return "draining"
	default:
		return "closed"
	}
}

// Options tune a streaming session.
type Options struct {
	// BufferFrames bounds the inbound chunk queue. Zero means the default.
	BufferFrames int
}

const defaultBufferFrames = 64

// Manager owns one decoder session for the lifetime of one connection. The
// decoder is touched only by the manager's internal goroutine, so exclusive
// use is enforced by construction rather than locking.
type Manager struct {
	id  string
	dec engine.Session

	in     chan []byte
	events chan engine.Event
	abort  chan struct{}
	done   chan struct{}

	state atomic.Int32

	mu           sync.Mutex
	intakeClosed bool
	abortOnce    sync.Once
}

// New starts a session in the Open state. The caller must consume Events
// until it is closed, and must end the session with Drain or Abort.
func New(dec engine.Session, opts Options) *Manager {
	frames := opts.BufferFrames
	if frames <= 0 {
		frames = defaultBufferFrames
	}
	m := &Manager{
		id:     uuid.NewString(),
		dec:    dec,
		in:     make(chan []byte, frames),
		events: make(chan engine.Event, 16),
		abort:  make(chan struct{}),
		done:   make(chan struct{}),
	}
	go m.run()
	return m
}

func (m *Manager) ID() string { return m.id }

func (m *Manager) State() State { return State(m.state.Load()) }

// Events delivers transcription events in the order the decoder produced
// them. Closed when the session terminates.
func (m *Manager) Events() <-chan engine.Event { return m.events }

// Push enqueues one audio chunk. The first Push moves the session to
// Active. Returns engine.ErrSessionClosed once draining or closed,
// ErrMalformedFrame for odd-length frames, and ErrBufferOverflow when the
// bounded buffer is full.
func (m *Manager) Push(chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}
	if len(chunk)%2 != 0 {
		return ErrMalformedFrame
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.intakeClosed {
		return engine.ErrSessionClosed
	}
	select {
	case m.in <- chunk:
		m.state.CompareAndSwap(int32(StateOpen), int32(StateActive))
		return nil
	default:
		return ErrBufferOverflow
	}
}

// Drain signals explicit end-of-stream: queued chunks are submitted, the
// decoder is finalized and its Final event emitted, then the session closes
// and releases the decoder. Cancelling ctx aborts instead.
func (m *Manager) Drain(ctx context.Context) error {
	m.closeIntake(StateDraining)
	select {
	case <-m.done:
		return nil
	case <-ctx.Done():
		m.Abort()
		return ctx.Err()
	}
}

// Abort closes the session without flushing: queued chunks are discarded
// and no Final event is emitted. Safe to call at any point, any number of
// times; the decoder is released exactly once.
func (m *Manager) Abort() {
	m.closeIntake(StateClosed)
	m.abortOnce.Do(func() { close(m.abort) })
	<-m.done
}

func (m *Manager) closeIntake(next State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.intakeClosed {
		return
	}
	m.intakeClosed = true
	m.state.Store(int32(next))
	close(m.in)
}

// run is the only goroutine that touches the decoder session.
func (m *Manager) run() {
	defer close(m.done)
	defer close(m.events)
	defer func() {
		m.state.Store(int32(StateClosed))
		if err := m.dec.Close(); err != nil {
			log.Warn().Err(err).Str("session", m.id).Msg("decoder close failed")
		}
	}()

	for {
		select {
		case <-m.abort:
			return
		default:
		}
		select {
		case <-m.abort:
			return
		case chunk, ok := <-m.in:
			if !ok {
				// Intake closed by Drain (state Draining) flushes a final;
				// closed by Abort (state Closed) discards everything.
				if m.State() == StateDraining {
					m.finalize()
				}
				return
			}
			ev, err := m.dec.Submit(chunk)
			if err != nil {
				if errors.Is(err, engine.ErrSessionClosed) {
					return
				}
				// Recoverable per-chunk decoder errors: skip and continue.
				log.Warn().Err(err).Str("session", m.id).Msg("chunk submission failed, skipping")
				continue
			}
			if ev != nil {
				m.emit(*ev)
			}
		}
	}
}

func (m *Manager) finalize() {
	ev, err := m.dec.Finalize()
	if err != nil {
		log.Warn().Err(err).Str("session", m.id).Msg("finalize failed")
		return
	}
	m.emit(ev)
}

func (m *Manager) emit(ev engine.Event) {
	select {
	case m.events <- ev:
	case <-m.abort:
	}
}
