// Package usecases contains application business rules.
// Usecases orchestrate entities and depend only on port interfaces.
package usecases

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/0xcro3dile/neuroscholar/internal/domain/entities"
	"github.com/0xcro3dile/neuroscholar/internal/domain/ports"
)

// IngestStats summarizes one ingested document.
type IngestStats struct {
	Chunks    int
	Dimension int
}

// IngestUseCase turns one document into embedded chunks inside a store.
type IngestUseCase struct {
	chunker ports.Chunker
}

// NewIngestUseCase creates an IngestUseCase with the given chunker.
func NewIngestUseCase(chunker ports.Chunker) *IngestUseCase {
	return &IngestUseCase{chunker: chunker}
}

// Ingest chunks the document, embeds every chunk and stores them.
// Documents with no extractable text are a no-op.
func (uc *IngestUseCase) Ingest(ctx context.Context, embedder ports.EmbeddingService, store ports.VectorStore, doc *entities.Document) (IngestStats, error) {
	chunks := uc.chunkDocument(doc)
	if len(chunks) == 0 {
		return IngestStats{}, nil
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Content
	}

	embeddings, err := embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return IngestStats{}, fmt.Errorf("embedding %s: %w", doc.Name, err)
	}
	if len(embeddings) != len(chunks) {
		return IngestStats{}, fmt.Errorf("embedding %s: got %d vectors for %d chunks", doc.Name, len(embeddings), len(chunks))
	}

	for i := range chunks {
		chunks[i].Embedding = embeddings[i]
	}

	if err := store.Store(ctx, chunks); err != nil {
		return IngestStats{}, fmt.Errorf("storing %s: %w", doc.Name, err)
	}

	return IngestStats{Chunks: len(chunks), Dimension: len(embeddings[0])}, nil
}

func (uc *IngestUseCase) chunkDocument(doc *entities.Document) []entities.Chunk {
	pieces := uc.chunker.Split(doc.Content)
	chunks := make([]entities.Chunk, 0, len(pieces))
	for i, text := range pieces {
		chunks = append(chunks, entities.Chunk{
			ID:         generateChunkID(doc.ID, i),
			DocumentID: doc.ID,
			SourceDoc:  doc.Name,
			Content:    text,
			Index:      i,
		})
	}
	return chunks
}

// generateChunkID creates a deterministic ID for a chunk.
func generateChunkID(docID string, index int) string {
	hash := sha256.Sum256([]byte(docID + ":" + strconv.Itoa(index)))
	return hex.EncodeToString(hash[:8])
}
