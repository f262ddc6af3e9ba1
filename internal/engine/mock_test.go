package engine

import (
	"errors"
	"testing"
)

func TestMockTranscribesEncodedText(t *testing.T) {
	m := NewMockModel()
	s, err := m.NewSession()
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	defer s.Close()

	ev, err := s.Submit(EncodeText("hello world"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if ev == nil || ev.Kind != KindPartial || ev.Text != "hello world" {
		t.Fatalf("expected partial 'hello world', got %+v", ev)
	}

	fin, err := s.Finalize()
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if fin.Kind != KindFinal || fin.Text != "hello world" {
		t.Fatalf("expected final 'hello world', got %+v", fin)
	}
}

func TestMockEndpointOnSilence(t *testing.T) {
	m := NewMockModel()
	s, _ := m.NewSession()
	defer s.Close()

	if _, err := s.Submit(EncodeText("one")); err != nil {
		t.Fatalf("submit: %v", err)
	}
	ev, err := s.Submit(EncodeSilence(MockEndpointSamples))
	if err != nil {
		t.Fatalf("submit silence: %v", err)
	}
	if ev == nil || ev.Kind != KindFinal || ev.Text != "one" {
		t.Fatalf("expected final 'one', got %+v", ev)
	}

	// Utterance state reset: the next utterance starts clean.
	ev, _ = s.Submit(EncodeText("two"))
	if ev == nil || ev.Kind != KindPartial || ev.Text != "two" {
		t.Fatalf("expected partial 'two', got %+v", ev)
	}
}

func TestMockNoEventWithoutChange(t *testing.T) {
	m := NewMockModel()
	s, _ := m.NewSession()
	defer s.Close()

	// Short silence produces no hypothesis at all.
	ev, err := s.Submit(EncodeSilence(4))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if ev != nil {
		t.Fatalf("expected no event, got %+v", ev)
	}
}

func TestMockClosedSession(t *testing.T) {
	m := NewMockModel()
	s, _ := m.NewSession()
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := s.Submit(EncodeText("x")); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed from Submit, got %v", err)
	}
	if _, err := s.Finalize(); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed from Finalize, got %v", err)
	}
	if err := s.Reset(); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed from Reset, got %v", err)
	}
}

func TestMockReset(t *testing.T) {
	m := NewMockModel()
	s, _ := m.NewSession()
	defer s.Close()

	if _, err := s.Submit(EncodeText("discard me")); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := s.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}
	fin, err := s.Finalize()
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if fin.Text != "" {
		t.Fatalf("expected empty final after reset, got %q", fin.Text)
	}
}
