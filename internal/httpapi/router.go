// Package httpapi wires the HTTP surface: health, capability discovery, the
// batch transcription endpoint and the streaming WebSocket endpoint.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/voxserve/voxserve/internal/audio"
	"github.com/voxserve/voxserve/internal/batch"
	"github.com/voxserve/voxserve/internal/config"
	"github.com/voxserve/voxserve/internal/registry"
	"github.com/voxserve/voxserve/internal/transcripts"
	"github.com/voxserve/voxserve/internal/ws"
)

type api struct {
	cfg      config.Config
	registry *registry.Registry
	pipeline *batch.Pipeline
	store    *transcripts.Store // nil when persistence is disabled
}

// NewRouter builds the full route table. store may be nil.
func NewRouter(cfg config.Config, reg *registry.Registry, pipeline *batch.Pipeline, store *transcripts.Store) http.Handler {
	a := &api{cfg: cfg, registry: reg, pipeline: pipeline, store: store}
	wss := ws.NewServer(reg, store, cfg.Stream)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", a.handleHealth)
	mux.HandleFunc("GET /languages", a.handleLanguages)
	mux.HandleFunc("POST /stt/{lang}", a.handleBatch)
	mux.HandleFunc("GET /ws/stt/{lang}", wss.Handle)
	if store != nil {
		mux.HandleFunc("GET /transcripts", a.handleTranscripts)
	}
	return mux
}

func (a *api) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (a *api) handleLanguages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"languages": a.registry.Languages()})
}

func (a *api) handleBatch(w http.ResponseWriter, r *http.Request) {
	lang := r.PathValue("lang")

	r.Body = http.MaxBytesReader(w, r.Body, a.cfg.Batch.MaxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, "file_too_large", "file size exceeds the maximum limit")
			return
		}
		writeError(w, http.StatusBadRequest, "missing_file", "multipart field 'file' is required")
		return
	}
	defer file.Close()

	payload, err := io.ReadAll(file)
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, "file_too_large", "file size exceeds the maximum limit")
			return
		}
		writeError(w, http.StatusInternalServerError, "read_failed", "could not read uploaded file")
		return
	}
	if len(payload) == 0 {
		writeError(w, http.StatusBadRequest, "empty_file", "empty audio file received")
		return
	}

	log.Info().Str("language", lang).Str("file", header.Filename).Int("bytes", len(payload)).Msg("batch transcription request")

	res, err := a.pipeline.Transcribe(r.Context(), lang, payload)
	switch {
	case err == nil:
	case errors.Is(err, registry.ErrUnknownLanguage):
		writeError(w, http.StatusBadRequest, "unknown_language", "unsupported language: "+lang)
		return
	case errors.Is(err, audio.ErrConversionFailed):
		writeError(w, http.StatusBadRequest, "conversion_failed", "could not convert audio to the required format")
		return
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusRequestTimeout, "cancelled", "request cancelled")
		return
	default:
		log.Error().Err(err).Str("language", lang).Msg("batch transcription failed")
		writeError(w, http.StatusInternalServerError, "internal", "internal error during recognition")
		return
	}

	a.saveBatch(lang, res)

	payloadOut := map[string]any{"text": res.Text}
	if res.Confidence > 0 {
		payloadOut["confidence"] = res.Confidence
	}
	if len(res.Words) > 0 {
		payloadOut["words"] = res.Words
	}
	writeJSON(w, http.StatusOK, payloadOut)
}

func (a *api) handleTranscripts(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	recs, err := a.store.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "could not query transcripts")
		return
	}
	type entry struct {
		SessionID  string    `json:"session_id"`
		Language   string    `json:"language"`
		Source     string    `json:"source"`
		Text       string    `json:"text"`
		Confidence float64   `json:"confidence,omitempty"`
		CreatedAt  time.Time `json:"created_at"`
	}
	out := make([]entry, 0, len(recs))
	for _, rec := range recs {
		out = append(out, entry{
			SessionID:  rec.SessionID,
			Language:   rec.Language,
			Source:     rec.Source,
			Text:       rec.Text,
			Confidence: rec.Confidence,
			CreatedAt:  rec.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"transcripts": out})
}

func (a *api) saveBatch(lang string, res batch.Result) {
	if a.store == nil || res.Text == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := a.store.Save(ctx, transcripts.Record{
		SessionID:  uuid.NewString(),
		Language:   lang,
		Source:     "batch",
		Text:       res.Text,
		Confidence: res.Confidence,
	})
	if err != nil {
		log.Warn().Err(err).Msg("transcript save failed")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, kind, detail string) {
	writeJSON(w, status, map[string]any{"error": kind, "detail": detail})
}
