// Package ws is the streaming transport adapter: it translates WebSocket
// framing into streaming session calls and session events back into JSON
// messages.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/voxserve/voxserve/internal/config"
	"github.com/voxserve/voxserve/internal/engine"
	"github.com/voxserve/voxserve/internal/registry"
	"github.com/voxserve/voxserve/internal/session"
	"github.com/voxserve/voxserve/internal/transcripts"
)

const drainTimeout = 10 * time.Second

type Server struct {
	upgrader websocket.Upgrader
	registry *registry.Registry
	store    *transcripts.Store // nil when persistence is disabled
	cfg      config.StreamConfig
}

func NewServer(reg *registry.Registry, store *transcripts.Store, cfg config.StreamConfig) *Server {
	return &Server{
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024 * 16,
			WriteBufferSize: 1024 * 16,
		},
		registry: reg,
		store:    store,
		cfg:      cfg,
	}
}

// wsConn serializes writes; the event writer goroutine and the read loop
// both send messages.
type wsConn struct {
	mu sync.Mutex
	c  *websocket.Conn
}

func (w *wsConn) writeJSON(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.c.WriteJSON(v)
}

func (w *wsConn) writeClose(code int, reason string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	msg := websocket.FormatCloseMessage(code, reason)
	_ = w.c.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}

// endOfStream is the in-band end-of-stream marker: {"eof": 1}.
type endOfStream struct {
	EOF int `json:"eof"`
}

// Handle runs one streaming recognition connection. The language code comes
// from the request path; an unknown code is rejected before any audio is
// accepted.
func (s *Server) Handle(w http.ResponseWriter, r *http.Request) {
	lang := r.PathValue("lang")

	raw, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("ws upgrade failed")
		return
	}
	defer raw.Close()
	conn := &wsConn{c: raw}

	model, err := s.registry.Resolve(lang)
	if err != nil {
		log.Warn().Str("language", lang).Str("remote", raw.RemoteAddr().String()).Msg("unsupported language requested")
		conn.writeClose(websocket.ClosePolicyViolation, "unsupported language: "+lang)
		return
	}

	dec, err := model.NewSession()
	if err != nil {
		log.Error().Err(err).Str("language", lang).Msg("decoder session init failed")
		conn.writeClose(websocket.CloseInternalServerErr, "decoder init failed")
		return
	}

	mgr := session.New(dec, session.Options{BufferFrames: s.cfg.BufferFrames})
	log.Info().Str("session", mgr.ID()).Str("language", lang).Str("remote", raw.RemoteAddr().String()).Msg("streaming session opened")

	// Abort is idempotent; every exit path below releases the decoder
	// exactly once through it (Drain closes it on the happy path).
	defer mgr.Abort()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for ev := range mgr.Events() {
			if err := conn.writeJSON(eventPayload(ev)); err != nil {
				log.Warn().Err(err).Str("session", mgr.ID()).Msg("event write failed")
			}
			if ev.Kind == engine.KindFinal {
				s.saveFinal(mgr.ID(), lang, ev)
			}
		}
	}()

	idle := time.Duration(s.cfg.IdleTimeoutMS) * time.Millisecond
	extendDeadline := func() {
		if idle > 0 {
			_ = raw.SetReadDeadline(time.Now().Add(idle))
		}
	}
	extendDeadline()
	raw.SetPongHandler(func(string) error { extendDeadline(); return nil })

	for {
		mt, data, err := raw.ReadMessage()
		if err != nil {
			// Abrupt disconnect or idle timeout: no flush, no final.
			log.Info().Err(err).Str("session", mgr.ID()).Msg("streaming session aborted")
			return
		}
		extendDeadline()

		switch mt {
		case websocket.BinaryMessage:
			switch err := mgr.Push(data); {
			case err == nil:
			case errors.Is(err, session.ErrMalformedFrame):
				_ = conn.writeJSON(errorPayload("malformed_frame", "audio frames must be 16-bit aligned PCM"))
				conn.writeClose(websocket.CloseUnsupportedData, "malformed audio frame")
				return
			case errors.Is(err, session.ErrBufferOverflow):
				_ = conn.writeJSON(errorPayload("buffer_overflow", "audio arriving faster than it can be decoded"))
				conn.writeClose(websocket.CloseTryAgainLater, "buffer overflow")
				return
			default:
				return
			}
		case websocket.TextMessage:
			var eos endOfStream
			if err := json.Unmarshal(data, &eos); err == nil && eos.EOF != 0 {
				ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
				err := mgr.Drain(ctx)
				cancel()
				if err != nil {
					log.Warn().Err(err).Str("session", mgr.ID()).Msg("drain failed")
				}
				<-writerDone
				conn.writeClose(websocket.CloseNormalClosure, "")
				log.Info().Str("session", mgr.ID()).Msg("streaming session drained")
				return
			}
			_ = conn.writeJSON(errorPayload("unknown_message", "expected binary audio or eof marker"))
		}
	}
}

func (s *Server) saveFinal(sessionID, lang string, ev engine.Event) {
	if s.store == nil || ev.Text == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := s.store.Save(ctx, transcripts.Record{
		SessionID:  sessionID,
		Language:   lang,
		Source:     "stream",
		Text:       ev.Text,
		Confidence: ev.Confidence,
	})
	if err != nil {
		log.Warn().Err(err).Str("session", sessionID).Msg("transcript save failed")
	}
}

// eventPayload builds the outbound message: partials are
// {"partial": ...}, finals are {"text": ...} plus decoder metadata.
func eventPayload(ev engine.Event) map[string]any {
	if ev.Kind == engine.KindPartial {
		return map[string]any{"partial": ev.Text}
	}
	payload := map[string]any{"text": ev.Text}
	if ev.Confidence > 0 {
		payload["confidence"] = ev.Confidence
	}
	if len(ev.Words) > 0 {
		payload["words"] = ev.Words
	}
	return payload
}

func errorPayload(kind, detail string) map[string]any {
	return map[string]any{"error": kind, "detail": detail}
}
