package rag

import (
	"strings"

	"github.com/missionlens/missionlens/pkg/models"
)

const (
	// DefaultChunkSize is the target characters per chunk.
	DefaultChunkSize = 500
	// DefaultOverlap is the approximate character overlap carried
	// between adjacent chunks.
	DefaultOverlap = 50
)

// Chunk splits text into overlapping, sentence-aware segments.
// Sentences accumulate into a buffer until the next one would push it
// past chunkSize; the buffer is emitted and the next buffer is seeded
// with the tail words of the previous one so context carries across the
// boundary. A single sentence longer than chunkSize is emitted as one
// oversized chunk rather than split mid-sentence. Deterministic,
// side-effect-free, never fails.
func Chunk(text string, chunkSize, overlap int) []models.Chunk {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}

	sentences := strings.Split(strings.ReplaceAll(text, "\n", " "), ". ")

	var chunks []models.Chunk
	current := ""
	id := 0

	for _, sentence := range sentences {
		sentence = strings.TrimSpace(sentence)
		if sentence == "" {
			continue
		}

		if len(current)+len(sentence) < chunkSize {
			current += sentence + ". "
			continue
		}

		if current != "" {
			chunks = append(chunks, newChunk(id, current))
			id++

			if overlap > 0 {
				// Seed the next buffer with the tail of the last one.
				words := strings.Fields(current)
				keep := overlap / 5
				var tail []string
				if len(words) > keep {
					tail = words[len(words)-keep:]
				}
				current = strings.Join(tail, " ") + " " + sentence + ". "
			} else {
				current = sentence + ". "
			}
		} else {
			current = sentence + ". "
		}
	}

	if strings.TrimSpace(current) != "" {
		chunks = append(chunks, newChunk(id, current))
	}

	return chunks
}

func newChunk(id int, buf string) models.Chunk {
	return models.Chunk{
		ID:        id,
		Text:      strings.TrimSpace(buf),
		CharCount: len(buf),
	}
}
