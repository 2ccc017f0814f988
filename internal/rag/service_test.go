package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/missionlens/missionlens/internal/ai"
)

func stubService() *Service {
	return NewService(func() (ai.Embedder, error) {
		return ai.NewStubEmbedder(32), nil
	})
}

func disabledService() *Service {
	return NewService(func() (ai.Embedder, error) {
		return nil, errors.New("no embedding backend")
	})
}

func TestService_LazyInit(t *testing.T) {
	s := stubService()
	if s.State() != StateUninitialized {
		t.Fatalf("state before first use = %v, want uninitialized", s.State())
	}
	s.AddDocument(context.Background(), "First contact. Second thought.", "doc-1")
	if s.State() != StateReady {
		t.Fatalf("state after first use = %v, want ready", s.State())
	}
}

func TestService_AddAndRetrieve(t *testing.T) {
	s := stubService()
	ctx := context.Background()

	text := "The reactor output stabilized overnight. Coolant pressure stayed in the green band. " +
		"A secondary pump was swapped during the morning shift. The swap took forty minutes."
	n := s.AddDocument(ctx, text, "doc-1")
	if n == 0 {
		t.Fatal("expected chunks to be indexed")
	}

	results := s.Retrieve(ctx, "coolant pressure", 3)
	if len(results) == 0 {
		t.Fatal("expected at least one result")
	}
	for i := 1; i < len(results); i++ {
		if results[i].Distance < results[i-1].Distance {
			t.Errorf("results not in ascending distance order: %v then %v",
				results[i-1].Distance, results[i].Distance)
		}
	}
	for _, r := range results {
		if r.Chunk.DocumentID != "doc-1" {
			t.Errorf("chunk carries document id %q, want doc-1", r.Chunk.DocumentID)
		}
		if strings.TrimSpace(r.Chunk.Text) == "" {
			t.Error("retrieved chunk has empty text")
		}
	}
}

func TestService_RetrieveTopKClamped(t *testing.T) {
	s := stubService()
	ctx := context.Background()

	s.AddDocument(ctx, "A single short document", "doc-1")
	results := s.Retrieve(ctx, "document", 10)
	if len(results) != 1 {
		t.Fatalf("expected 1 result for 1 chunk, got %d", len(results))
	}
}

func TestService_DisabledNoOps(t *testing.T) {
	s := disabledService()
	ctx := context.Background()

	if n := s.AddDocument(ctx, "Some text to index", "doc-1"); n != 0 {
		t.Errorf("disabled AddDocument returned %d, want 0", n)
	}
	if s.State() != StateDisabled {
		t.Errorf("state = %v, want disabled", s.State())
	}
	if results := s.Retrieve(ctx, "query", 3); len(results) != 0 {
		t.Errorf("disabled Retrieve returned %d results", len(results))
	}
	if got := s.ContextForAnalysis(ctx, "Some text", 1000); got != "" {
		t.Errorf("disabled ContextForAnalysis = %q, want empty", got)
	}
}

func TestService_EmptyDocument(t *testing.T) {
	s := stubService()
	if n := s.AddDocument(context.Background(), "   ", "doc-1"); n != 0 {
		t.Errorf("whitespace document indexed %d chunks, want 0", n)
	}
}

func TestService_ContextForAnalysis(t *testing.T) {
	s := stubService()
	ctx := context.Background()

	var b strings.Builder
	for i := 0; i < 20; i++ {
		b.WriteString("The field team logged anomalous seismic readings near the eastern ridge station")
		b.WriteString(". ")
	}
	got := s.ContextForAnalysis(ctx, b.String(), 1000)
	if got == "" {
		t.Fatal("expected non-empty context")
	}
	if len(got) > 1000+2*2 { // joiner bytes are not counted against the budget
		t.Errorf("context length %d exceeds budget", len(got))
	}
	for _, part := range strings.Split(got, "\n\n") {
		if strings.TrimSpace(part) == "" {
			t.Error("context contains an empty segment")
		}
	}
}

func TestService_ContextBudgetDropsWholeChunks(t *testing.T) {
	s := stubService()
	ctx := context.Background()

	var b strings.Builder
	for i := 0; i < 20; i++ {
		b.WriteString("Observation entries continue with uniform phrasing across the whole report body")
		b.WriteString(". ")
	}
	// Budget below a single chunk: everything must be dropped whole.
	if got := s.ContextForAnalysis(ctx, b.String(), 10); got != "" {
		t.Errorf("expected empty context under tiny budget, got %d chars", len(got))
	}
}

func TestService_Clear(t *testing.T) {
	s := stubService()
	ctx := context.Background()

	s.AddDocument(ctx, "Keep this around for a moment", "doc-1")
	s.Clear()
	if results := s.Retrieve(ctx, "moment", 3); len(results) != 0 {
		t.Errorf("retrieve after clear returned %d results", len(results))
	}
}
