// Package batch transcribes complete audio payloads: convert to canonical
// PCM, run a short-lived decoder session over the whole payload, return one
// final transcript.
package batch

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/voxserve/voxserve/internal/audio"
	"github.com/voxserve/voxserve/internal/engine"
	"github.com/voxserve/voxserve/internal/registry"
)

const defaultChunkBytes = 8192

// Result is the single synchronous outcome of a batch request. Text joins
// every utterance final in chronological order.
type Result struct {
	Text       string
	Confidence float64
	Words      []engine.Word
}

type Pipeline struct {
	registry   *registry.Registry
	converter  audio.Converter
	chunkBytes int
}

func New(reg *registry.Registry, conv audio.Converter, chunkBytes int) *Pipeline {
	if chunkBytes <= 0 {
		chunkBytes = defaultChunkBytes
	}
	if chunkBytes%2 != 0 {
		chunkBytes++
	}
	return &Pipeline{registry: reg, converter: conv, chunkBytes: chunkBytes}
}

// Transcribe resolves the language, converts the payload and decodes it.
// The language is resolved before any conversion work so an unknown code
// never spawns the converter. The decoder session lives only for this call.
func (p *Pipeline) Transcribe(ctx context.Context, lang string, payload []byte) (Result, error) {
	model, err := p.registry.Resolve(lang)
	if err != nil {
		return Result{}, err
	}

	pcm, err := p.converter.ToCanonicalPCM(ctx, payload)
	if err != nil {
		return Result{}, err
	}

	sess, err := model.NewSession()
	if err != nil {
		return Result{}, err
	}
	defer sess.Close()

	var (
		finals    []string
		words     []engine.Word
		confSum   float64
		confCount int
	)
	collect := func(ev engine.Event) {
		if ev.Text == "" {
			return
		}
		finals = append(finals, ev.Text)
		words = append(words, ev.Words...)
		if ev.Confidence > 0 {
			confSum += ev.Confidence
			confCount++
		}
	}

	// Chunk boundaries carry no meaning here; the whole payload is known.
	for off := 0; off < len(pcm); off += p.chunkBytes {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		end := off + p.chunkBytes
		if end > len(pcm) {
			end = len(pcm)
		}
		ev, err := sess.Submit(pcm[off:end])
		if err != nil {
			if errors.Is(err, engine.ErrSessionClosed) {
				return Result{}, err
			}
			log.Warn().Err(err).Msg("batch chunk submission failed, skipping")
			continue
		}
		if ev != nil && ev.Kind == engine.KindFinal {
			collect(*ev)
		}
	}

	fin, err := sess.Finalize()
	if err != nil {
		return Result{}, err
	}
	collect(fin)

	res := Result{Text: strings.Join(finals, " "), Words: words}
	if confCount > 0 {
		res.Confidence = confSum / float64(confCount)
	}
	return res, nil
}
