package engine

import (
	"encoding/binary"
	"strings"
	"sync"
)

// MockEndpointSamples is the run of zero-valued samples the mock decoder
// treats as an utterance endpoint.
const MockEndpointSamples = 160

// mockModel is a deterministic in-process decoder used by tests and by the
// server's mock engine mode. It interprets each 16-bit sample's low byte as
// a UTF-8 text byte; runs of zero samples delimit utterances.
type mockModel struct{}

// NewMockModel returns a decoder model that "recognizes" text literally
// encoded into the audio via EncodeText. Deterministic for a given byte
// sequence regardless of chunking.
func NewMockModel() Model { return &mockModel{} }

// LoadMockModel satisfies the registry loader signature. The directory is
// ignored; every load succeeds.
func LoadMockModel(dir string) (Model, error) { return NewMockModel(), nil }

func (m *mockModel) NewSession() (Session, error) { return &mockSession{}, nil }
func (m *mockModel) Close() error                 { return nil }

type mockSession struct {
	mu          sync.Mutex
	dangling    []byte // partial sample split across chunk boundaries
	utterance   []byte
	silenceRun  int
	lastPartial string
	closed      bool
}

func (s *mockSession) Submit(pcm []byte) (*Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionClosed
	}

	buf := append(s.dangling, pcm...)
	var finals []string
	for len(buf) >= 2 {
		sample := int16(binary.LittleEndian.Uint16(buf))
		buf = buf[2:]
		if sample == 0 {
			s.silenceRun++
			if s.silenceRun == MockEndpointSamples && len(s.utterance) > 0 {
				finals = append(finals, string(s.utterance))
				s.utterance = nil
				s.lastPartial = ""
			}
			continue
		}
		s.silenceRun = 0
		s.utterance = append(s.utterance, byte(sample&0xff))
	}
	s.dangling = buf

	if len(finals) > 0 {
		return &Event{Kind: KindFinal, Text: strings.Join(finals, " "), Confidence: 1}, nil
	}
	if text := string(s.utterance); text != "" && text != s.lastPartial {
		s.lastPartial = text
		return &Event{Kind: KindPartial, Text: text}, nil
	}
	return nil, nil
}

func (s *mockSession) Finalize() (Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Event{}, ErrSessionClosed
	}
	ev := Event{Kind: KindFinal, Text: string(s.utterance), Confidence: 1}
	s.resetLocked()
	return ev, nil
}

func (s *mockSession) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.resetLocked()
	return nil
}

func (s *mockSession) resetLocked() {
	s.dangling = nil
	s.utterance = nil
	s.silenceRun = 0
	s.lastPartial = ""
}

func (s *mockSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// EncodeText renders text as canonical PCM the mock decoder transcribes back
// verbatim: one 16-bit little-endian sample per byte.
func EncodeText(text string) []byte {
	out := make([]byte, 2*len(text))
	for i := 0; i < len(text); i++ {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(text[i]))
	}
	return out
}

// EncodeSilence renders n zero-valued samples.
func EncodeSilence(n int) []byte { return make([]byte, 2*n) }
