package rag

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/missionlens/missionlens/internal/ai"
	"github.com/missionlens/missionlens/pkg/models"
)

// State is the lifecycle of the embedding subsystem.
type State int

const (
	StateUninitialized State = iota
	StateReady
	StateDisabled
)

const (
	defaultTopK            = 3
	defaultMaxContextChars = 1000
	contextQueryChars      = 500
)

// Service composes the chunker and vector index into a
// document-indexing and context-retrieval facade. The embedder is
// created lazily on first use; if that fails the service flips to
// Disabled and every operation no-ops instead of erroring, because
// retrieved context is an enhancement, not a correctness requirement
// of the analysis pipeline.
type Service struct {
	mu          sync.Mutex
	state       State
	newEmbedder func() (ai.Embedder, error)
	embedder    ai.Embedder
	index       *Index
	chunks      []models.Chunk

	chunkSize int
	overlap   int
}

// NewService creates a retrieval service. The embedder factory runs on
// first use, not here, to keep idle memory low.
func NewService(newEmbedder func() (ai.Embedder, error)) *Service {
	return &Service{
		newEmbedder: newEmbedder,
		chunkSize:   DefaultChunkSize,
		overlap:     DefaultOverlap,
	}
}

// initLocked transitions Uninitialized to Ready or Disabled. Must be
// called with s.mu held.
func (s *Service) initLocked() {
	if s.state != StateUninitialized {
		return
	}
	emb, err := s.newEmbedder()
	if err != nil {
		log.Warn().Err(err).Msg("embedding subsystem unavailable, context retrieval disabled")
		s.state = StateDisabled
		return
	}
	s.embedder = emb
	s.index = NewIndex(emb.Dim())
	s.state = StateReady
	log.Info().Int("dim", emb.Dim()).Msg("retrieval service initialized")
}

// State returns the current lifecycle state.
func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// AddDocument chunks and indexes text, returning the number of chunks
// added. Chunk records and vectors are appended in lock-step under one
// lock, so the index size always equals the chunk count. Returns 0 when
// the embedding subsystem is disabled.
func (s *Service) AddDocument(ctx context.Context, text, documentID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initLocked()
	if s.state != StateReady {
		return 0
	}

	chunks := Chunk(text, s.chunkSize, s.overlap)
	if len(chunks) == 0 {
		return 0
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		log.Warn().Err(err).Str("document_id", documentID).Msg("embedding failed, document not indexed")
		return 0
	}
	if len(vectors) != len(chunks) {
		log.Warn().Int("chunks", len(chunks)).Int("vectors", len(vectors)).Msg("embedder returned wrong count, document not indexed")
		return 0
	}

	if err := s.index.Add(vectors); err != nil {
		log.Warn().Err(err).Msg("index rejected vectors, document not indexed")
		return 0
	}
	for i := range chunks {
		chunks[i].DocumentID = documentID
		s.chunks = append(s.chunks, chunks[i])
	}

	log.Info().Int("chunks", len(chunks)).Str("document_id", documentID).Msg("document indexed")
	return len(chunks)
}

// Retrieve returns up to topK chunks ranked by ascending distance to
// the query. Empty when the service is disabled or nothing is indexed.
func (s *Service) Retrieve(ctx context.Context, query string, topK int) []models.RetrievedChunk {
	if topK <= 0 {
		topK = defaultTopK
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.initLocked()
	if s.state != StateReady || len(s.chunks) == 0 {
		return nil
	}

	vecs, err := s.embedder.Embed(ctx, []string{query})
	if err != nil || len(vecs) == 0 {
		log.Warn().Err(err).Msg("query embedding failed")
		return nil
	}

	idxs, dists := s.index.Search(vecs[0], topK)
	results := make([]models.RetrievedChunk, 0, len(idxs))
	for i, idx := range idxs {
		if idx < len(s.chunks) {
			results = append(results, models.RetrievedChunk{Chunk: s.chunks[idx], Distance: dists[i]})
		}
	}
	return results
}

// ContextForAnalysis indexes content as a new document, then queries
// with its opening section so the retrieved context comes from the
// document's own other parts. Chunks are concatenated until one would
// push past maxChars; that chunk is dropped whole, never truncated.
// Returns "" on any internal failure.
func (s *Service) ContextForAnalysis(ctx context.Context, content string, maxChars int) string {
	if maxChars <= 0 {
		maxChars = defaultMaxContextChars
	}

	s.AddDocument(ctx, content, "")

	query := content
	if len(query) > contextQueryChars {
		query = query[:contextQueryChars]
	}

	results := s.Retrieve(ctx, query, defaultTopK)

	var parts []string
	total := 0
	for _, r := range results {
		if total+r.Chunk.CharCount > maxChars {
			break
		}
		parts = append(parts, r.Chunk.Text)
		total += r.Chunk.CharCount
	}
	return strings.Join(parts, "\n\n")
}

// Clear drops all indexed chunks and vectors.
func (s *Service) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.index != nil {
		s.index.Reset()
	}
	s.chunks = nil
}
