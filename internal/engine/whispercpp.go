//go:build whisper_cpp

package engine

import (
	"fmt"
	"io"
	"math"
	"path/filepath"
	"runtime"
	"strings"

	whisperpkg "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	"github.com/rs/zerolog/log"
)

const (
	sampleRate = 16000

	// Minimum pending audio before a decode pass, and the trailing window
	// inspected for endpoint detection.
	workWindowSamples     = 8000 // 0.5s
	endpointWindowSamples = 8000 // 0.5s
	silenceRMS            = 0.01

	// whisper.cpp degrades past 30s of context; older audio is dropped.
	maxWindowSamples = 30 * sampleRate
)

type cppModel struct {
	model   whisperpkg.Model
	threads uint
}

// LoadWhisperModel loads the ggml model file found in dir. The directory
// layout is one model file per language directory.
func LoadWhisperModel(dir string) (Model, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.bin"))
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("no ggml model file in %s", dir)
	}
	m, err := whisperpkg.New(matches[0])
	if err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}
	log.Info().Str("model", matches[0]).Msg("whisper model loaded")
	return &cppModel{model: m, threads: uint(runtime.NumCPU())}, nil
}

func (m *cppModel) NewSession() (Session, error) {
	return &cppSession{model: m.model, threads: m.threads}, nil
}

func (m *cppModel) Close() error {
	if m.model != nil {
		m.model.Close()
	}
	return nil
}

// cppSession re-decodes a sliding window of accumulated samples on each
// submission; partials come from hypothesis changes, finals from trailing
// silence. Single-owner by contract, no internal locking.
type cppSession struct {
	model       whisperpkg.Model
	threads     uint
	samples     []float32
	pending     int // samples accumulated since the last decode pass
	lastPartial string
	closed      bool
}

func (s *cppSession) Submit(pcm []byte) (*Event, error) {
	if s.closed {
		return nil, ErrSessionClosed
	}
	if len(pcm)%2 != 0 {
		return nil, fmt.Errorf("pcm chunk not 16-bit aligned (%d bytes)", len(pcm))
	}
	for i := 0; i+1 < len(pcm); i += 2 {
		v := int16(uint16(pcm[i]) | uint16(pcm[i+1])<<8)
		s.samples = append(s.samples, float32(v)/32768.0)
	}
	s.pending += len(pcm) / 2
	if len(s.samples) > maxWindowSamples {
		s.samples = s.samples[len(s.samples)-maxWindowSamples:]
	}
	if s.pending < workWindowSamples {
		return nil, nil
	}
	s.pending = 0

	text, words, err := s.decode()
	if err != nil {
		return nil, err
	}

	if text != "" && trailingRMS(s.samples, endpointWindowSamples) < silenceRMS {
		ev := &Event{Kind: KindFinal, Text: text, Words: words}
		s.samples = s.samples[:0]
		s.lastPartial = ""
		return ev, nil
	}
	if text != "" && text != s.lastPartial {
		s.lastPartial = text
		return &Event{Kind: KindPartial, Text: text}, nil
	}
	return nil, nil
}

func (s *cppSession) Finalize() (Event, error) {
	if s.closed {
		return Event{}, ErrSessionClosed
	}
	ev := Event{Kind: KindFinal}
	// Too little audio produces hallucinated segments; treat as empty.
	if len(s.samples) >= sampleRate/10 {
		text, words, err := s.decode()
		if err != nil {
			return Event{}, err
		}
		ev.Text = text
		ev.Words = words
	}
	s.samples = s.samples[:0]
	s.pending = 0
	s.lastPartial = ""
	return ev, nil
}

func (s *cppSession) Reset() error {
	if s.closed {
		return ErrSessionClosed
	}
	s.samples = s.samples[:0]
	s.pending = 0
	s.lastPartial = ""
	return nil
}

func (s *cppSession) Close() error {
	s.closed = true
	s.samples = nil
	return nil
}

func (s *cppSession) decode() (string, []Word, error) {
	ctx, err := s.model.NewContext()
	if err != nil {
		return "", nil, fmt.Errorf("create context: %w", err)
	}
	ctx.SetThreads(s.threads)
	ctx.SetSplitOnWord(true)
	ctx.SetTokenTimestamps(true)

	if err := ctx.Process(s.samples, nil, nil, nil); err != nil {
		return "", nil, fmt.Errorf("process audio: %w", err)
	}

	var parts []string
	var words []Word
	for {
		seg, err := ctx.NextSegment()
		if err != nil {
			if err == io.EOF {
				break
			}
			log.Warn().Err(err).Msg("whisper: error reading segment")
			break
		}
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		parts = append(parts, text)
		words = append(words, Word{
			Text:  text,
			Start: seg.Start.Seconds(),
			End:   seg.End.Seconds(),
		})
	}
	return strings.TrimSpace(strings.Join(parts, " ")), words, nil
}

func trailingRMS(samples []float32, window int) float64 {
	if len(samples) == 0 {
		return 0
	}
	if window > len(samples) {
		window = len(samples)
	}
	var sum float64
	for _, v := range samples[len(samples)-window:] {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum / float64(window))
}
