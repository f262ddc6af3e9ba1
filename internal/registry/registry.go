package registry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/voxserve/voxserve/internal/engine"
)

// ErrUnknownLanguage is returned when no model is loaded for the requested
// language code.
var ErrUnknownLanguage = errors.New("unknown language")

// Loader opens one model from a language's model directory. Injected so
// alternate model sources can be substituted without touching session logic.
type Loader func(dir string) (engine.Model, error)

// Registry maps language codes to loaded decoder models. Read-mostly after
// startup; models are shared read-only across all sessions.
type Registry struct {
	loader Loader
	mu     sync.RWMutex
	models map[string]engine.Model
}

func New(loader Loader) *Registry {
	return &Registry{
		loader: loader,
		models: make(map[string]engine.Model),
	}
}

// Resolve returns the shared model for a known language code.
func (r *Registry) Resolve(code string) (engine.Model, error) {
	r.mu.RLock()
	m, ok := r.models[code]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownLanguage, code)
	}
	return m, nil
}

// Load loads the model in dir and registers it under code. Loading an
// already-registered code atomically replaces the handle; a failed load
// never disturbs the existing one. A replaced handle is not closed: sessions
// created against it keep decoding until they finish.
func (r *Registry) Load(code, dir string) error {
	m, err := r.loader(dir)
	if err != nil {
		return fmt.Errorf("load model for %q from %s: %w", code, dir, err)
	}
	r.mu.Lock()
	r.models[code] = m
	r.mu.Unlock()
	return nil
}

// Languages returns the sorted set of currently available language codes.
func (r *Registry) Languages() []string {
	r.mu.RLock()
	codes := make([]string, 0, len(r.models))
	for code := range r.models {
		codes = append(codes, code)
	}
	r.mu.RUnlock()
	sort.Strings(codes)
	return codes
}

// Close releases every loaded model.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for code, m := range r.models {
		_ = m.Close()
		delete(r.models, code)
	}
	return nil
}

// LoadDirectory scans root for per-language model directories using the
// folder-name to language-code mapping and loads each. A missing or corrupt
// model fails that language only; the rest still load. Returns the number of
// languages loaded.
func (r *Registry) LoadDirectory(root string, languages map[string]string) int {
	entries, err := os.ReadDir(root)
	if err != nil {
		log.Error().Err(err).Str("root", root).Msg("models directory not readable")
		return 0
	}
	loaded := 0
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		code, ok := languages[e.Name()]
		if !ok {
			log.Warn().Str("folder", e.Name()).Msg("skipping model folder with no language mapping")
			continue
		}
		dir := filepath.Join(root, e.Name())
		if err := r.Load(code, dir); err != nil {
			log.Error().Err(err).Str("language", code).Str("dir", dir).Msg("model load failed")
			continue
		}
		log.Info().Str("language", code).Str("dir", dir).Msg("model loaded")
		loaded++
	}
	return loaded
}
