package engine

import "errors"

// ErrSessionClosed is returned when Submit or Finalize is called on a
// session that has already been closed.
var ErrSessionClosed = errors.New("decoder session closed")

// Kind distinguishes revisable partial hypotheses from stabilized finals.
type Kind int

const (
	KindPartial Kind = iota
	KindFinal
)

func (k Kind) String() string {
	if k == KindFinal {
		return "final"
	}
	return "partial"
}

// Word carries per-word timing and confidence metadata from the decoder.
// Passed through to clients untouched.
type Word struct {
	Text       string  `json:"word"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Confidence float64 `json:"conf,omitempty"`
}

// Event is one transcription result. A Partial is a best-effort hypothesis
// for the utterance in progress and is superseded by later events; a Final
// is the stabilized transcript for one completed utterance.
type Event struct {
	Kind       Kind
	Text       string
	Confidence float64
	Words      []Word
}

// Model is a loaded decoder model for one language. Immutable after load and
// safe for concurrent use by any number of sessions, each of which keeps its
// decoding state private.
type Model interface {
	// NewSession allocates fresh decoding state bound to this model. Cheap
	// relative to model load.
	NewSession() (Session, error)
	Close() error
}

// Session is one stateful instantiation of the decoder. Not safe for
// concurrent use: at most one in-flight call at a time, chunks in strict
// production order. Callers own exactly one session each.
type Session interface {
	// Submit feeds one chunk of canonical-format PCM. Returns a Partial when
	// the running hypothesis changed, a Final when the decoder detected an
	// utterance endpoint, or nil when the chunk produced no observable
	// change.
	Submit(pcm []byte) (*Event, error)

	// Finalize signals end-of-input and forces a Final for whatever
	// hypothesis exists, even without a natural endpoint. The utterance
	// state resets afterwards; the session remains usable.
	Finalize() (Event, error)

	// Reset clears utterance-level state while keeping the model binding.
	Reset() error

	// Close releases decoding state. Idempotent.
	Close() error
}
