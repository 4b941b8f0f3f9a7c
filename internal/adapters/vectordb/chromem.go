package vectordb

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/philippgille/chromem-go"

	"github.com/0xcro3dile/neuroscholar/internal/domain/entities"
)

const chromemCollection = "neuroscholar"

// errNoEmbedder is returned if chromem is ever asked to embed on its own.
// Every chunk and query arrives with a precomputed vector.
var errNoEmbedder = errors.New("chromem store expects precomputed embeddings")

func noEmbedding(ctx context.Context, text string) ([]float32, error) {
	return nil, errNoEmbedder
}

// ChromemStore implements ports.VectorStore on a persistent chromem-go DB
// in dir/chromem.
type ChromemStore struct {
	db  *chromem.DB
	col *chromem.Collection
}

// NewChromemStore opens (or creates) the chromem database under dir.
func NewChromemStore(dir string) (*ChromemStore, error) {
	db, err := chromem.NewPersistentDB(filepath.Join(dir, "chromem"), false)
	if err != nil {
		return nil, fmt.Errorf("opening chromem db: %w", err)
	}

	col, err := db.GetOrCreateCollection(chromemCollection, map[string]string{}, noEmbedding)
	if err != nil {
		return nil, fmt.Errorf("opening collection: %w", err)
	}

	return &ChromemStore{db: db, col: col}, nil
}

// Store saves chunks with their embeddings.
func (s *ChromemStore) Store(ctx context.Context, chunks []entities.Chunk) error {
	docs := make([]chromem.Document, 0, len(chunks))
	for _, c := range chunks {
		docs = append(docs, chromem.Document{
			ID:      c.ID,
			Content: c.Content,
			Metadata: map[string]string{
				"document_id": c.DocumentID,
				"source_doc":  c.SourceDoc,
				"index":       strconv.Itoa(c.Index),
			},
			Embedding: c.Embedding,
		})
	}
	if len(docs) == 0 {
		return nil
	}
	return s.col.AddDocuments(ctx, docs, runtime.NumCPU())
}

// Search finds the most similar chunks to a query embedding.
func (s *ChromemStore) Search(ctx context.Context, embedding []float32, topK int) ([]entities.QueryResult, error) {
	// chromem rejects nResults above the collection size.
	n := min(topK, s.col.Count())
	if n <= 0 {
		return []entities.QueryResult{}, nil
	}

	found, err := s.col.QueryEmbedding(ctx, embedding, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("querying chromem: %w", err)
	}

	results := make([]entities.QueryResult, 0, len(found))
	for _, r := range found {
		idx, _ := strconv.Atoi(r.Metadata["index"])
		results = append(results, entities.QueryResult{
			Chunk: entities.Chunk{
				ID:         r.ID,
				DocumentID: r.Metadata["document_id"],
				SourceDoc:  r.Metadata["source_doc"],
				Content:    r.Content,
				Index:      idx,
				Embedding:  r.Embedding,
			},
			Score:     float64(r.Similarity),
			SourceDoc: r.Metadata["source_doc"],
		})
	}
	return results, nil
}

// Count returns the number of stored chunks.
func (s *ChromemStore) Count(ctx context.Context) (int, error) {
	return s.col.Count(), nil
}

// Close is a no-op: the persistent DB writes each document as it is added.
func (s *ChromemStore) Close() error {
	return nil
}
