package usecases

import (
	"context"
	"errors"
	"testing"

	"github.com/0xcro3dile/neuroscholar/internal/domain/entities"
)

func TestIngestUseCase_ChunksDocument(t *testing.T) {
	embedder := &mockEmbedder{}
	store := &mockVectorStore{}
	uc := NewIngestUseCase(paragraphChunker{})

	doc := &entities.Document{
		ID:      "doc-1",
		Name:    "methods.txt",
		Content: "First paragraph.\n\nSecond paragraph.\n\nThird paragraph.",
	}

	stats, err := uc.Ingest(context.Background(), embedder, store, doc)
	if err != nil {
		t.Fatalf("ingest failed: %v", err)
	}

	if stats.Chunks != 3 {
		t.Errorf("expected 3 chunks, got %d", stats.Chunks)
	}
	if stats.Dimension != 3 {
		t.Errorf("expected dimension 3, got %d", stats.Dimension)
	}
	if len(store.chunks) != 3 {
		t.Fatalf("expected 3 stored chunks, got %d", len(store.chunks))
	}
	if store.chunks[1].SourceDoc != "methods.txt" || store.chunks[1].Index != 1 {
		t.Errorf("unexpected chunk metadata: %+v", store.chunks[1])
	}
	if store.chunks[0].ID == store.chunks[1].ID {
		t.Error("chunk IDs should be unique")
	}
}

func TestIngestUseCase_EmptyDocument(t *testing.T) {
	embedder := &mockEmbedder{}
	store := &mockVectorStore{}
	uc := NewIngestUseCase(paragraphChunker{})

	stats, err := uc.Ingest(context.Background(), embedder, store, &entities.Document{ID: "empty"})
	if err != nil {
		t.Error("empty doc should not error")
	}
	if stats.Chunks != 0 || len(store.chunks) != 0 {
		t.Error("empty doc should produce no chunks")
	}
	if embedder.Calls() != 0 {
		t.Error("empty doc should not call the embedder")
	}
}

func TestIngestUseCase_EmbeddingError(t *testing.T) {
	embedder := &mockEmbedder{embedFn: func(string) ([]float32, error) {
		return nil, errors.New("quota exceeded")
	}}
	store := &mockVectorStore{}
	uc := NewIngestUseCase(paragraphChunker{})

	_, err := uc.Ingest(context.Background(), embedder, store, &entities.Document{ID: "d", Name: "d.txt", Content: "text"})
	if err == nil {
		t.Fatal("expected error")
	}
	if len(store.chunks) != 0 {
		t.Error("nothing should be stored when embedding fails")
	}
}

func TestGenerateChunkID_Deterministic(t *testing.T) {
	if generateChunkID("doc", 1) != generateChunkID("doc", 1) {
		t.Error("IDs should be deterministic")
	}
	if generateChunkID("doc", 1) == generateChunkID("doc", 2) {
		t.Error("IDs should differ by index")
	}
}
