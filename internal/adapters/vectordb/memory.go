package vectordb

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/0xcro3dile/neuroscholar/internal/domain/entities"
)

const snapshotFile = "vectors.json"

// MemoryStore keeps chunks in memory and snapshots them to
// dir/vectors.json after every Store.
type MemoryStore struct {
	mu     sync.RWMutex
	path   string
	chunks map[string]entities.Chunk // chunkID -> chunk
}

// NewMemoryStore opens the snapshot in dir, starting empty when there is
// none.
func NewMemoryStore(dir string) (*MemoryStore, error) {
	s := &MemoryStore{
		path:   filepath.Join(dir, snapshotFile),
		chunks: make(map[string]entities.Chunk),
	}

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, err
	}

	var chunks []entities.Chunk
	if err := json.Unmarshal(data, &chunks); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", snapshotFile, err)
	}
	for _, c := range chunks {
		s.chunks[c.ID] = c
	}
	return s, nil
}

// Store saves chunks and rewrites the snapshot.
func (s *MemoryStore) Store(ctx context.Context, chunks []entities.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, chunk := range chunks {
		s.chunks[chunk.ID] = chunk
	}
	return s.flush()
}

// Search finds the most similar chunks to a query embedding.
func (s *MemoryStore) Search(ctx context.Context, embedding []float32, topK int) ([]entities.QueryResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return rankBySimilarity(s.sorted(), embedding, topK), nil
}

// Count returns the number of stored chunks.
func (s *MemoryStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks), nil
}

// Close is a no-op; every Store is already on disk.
func (s *MemoryStore) Close() error {
	return nil
}

// sorted returns chunks in a stable order so ties rank deterministically.
func (s *MemoryStore) sorted() []entities.Chunk {
	chunks := make([]entities.Chunk, 0, len(s.chunks))
	for _, c := range s.chunks {
		chunks = append(chunks, c)
	}
	sort.Slice(chunks, func(i, j int) bool {
		if chunks[i].SourceDoc != chunks[j].SourceDoc {
			return chunks[i].SourceDoc < chunks[j].SourceDoc
		}
		return chunks[i].Index < chunks[j].Index
	})
	return chunks
}

func (s *MemoryStore) flush() error {
	data, err := json.Marshal(s.sorted())
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
