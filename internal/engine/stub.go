//go:build !whisper_cpp

package engine

// Default stub (no cgo) so the project builds without the whisper_cpp tag.
// Sessions accept audio and produce no hypotheses.

type stubModel struct{}

func LoadWhisperModel(dir string) (Model, error) { return &stubModel{}, nil }

func (m *stubModel) NewSession() (Session, error) { return &stubSession{}, nil }
func (m *stubModel) Close() error                 { return nil }

type stubSession struct{ closed bool }

func (s *stubSession) Submit(pcm []byte) (*Event, error) {
	if s.closed {
		return nil, ErrSessionClosed
	}
	return nil, nil
}

func (s *stubSession) Finalize() (Event, error) {
	if s.closed {
		return Event{}, ErrSessionClosed
	}
	return Event{Kind: KindFinal}, nil
}

func (s *stubSession) Reset() error {
	if s.closed {
		return ErrSessionClosed
	}
	return nil
}

func (s *stubSession) Close() error {
	s.closed = true
	return nil
}
