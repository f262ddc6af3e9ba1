package transcripts

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "transcripts.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSaveAndRecent(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	recs := []Record{
		{SessionID: "s1", Language: "en", Source: "stream", Text: "hello world", Confidence: 0.93},
		{SessionID: "s2", Language: "vi", Source: "batch", Text: "xin chào"},
	}
	for _, r := range recs {
		if err := s.Save(ctx, r); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	got, err := s.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}
	// Newest first.
	if got[0].Text != "xin chào" || got[1].Text != "hello world" {
		t.Fatalf("unexpected order: %q, %q", got[0].Text, got[1].Text)
	}
	if got[1].Confidence != 0.93 {
		t.Fatalf("confidence lost: %f", got[1].Confidence)
	}
}

func TestEmptyTextNotStored(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	if err := s.Save(ctx, Record{SessionID: "s1", Language: "en", Source: "stream"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := s.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no records, got %d", len(got))
	}
}

func TestPruneKeepsNewest(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		ts := base.Add(time.Duration(i) * time.Minute)
		s.clock = func() time.Time { return ts }
		if err := s.Save(ctx, Record{SessionID: "s", Language: "en", Source: "stream", Text: "t"}); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	if err := s.Prune(ctx, 2); err != nil {
		t.Fatalf("prune: %v", err)
	}
	got, err := s.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 records after prune, got %d", len(got))
	}
}
