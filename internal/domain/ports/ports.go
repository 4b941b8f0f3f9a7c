// Package ports defines interfaces for external dependencies.
// Usecases depend on these abstractions; adapters implement them.
package ports

import (
	"context"
	"io"

	"github.com/0xcro3dile/neuroscholar/internal/domain/entities"
)

// EmbeddingService generates vector embeddings for text.
type EmbeddingService interface {
	// Embed generates a vector embedding for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts, in order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Model names the embedding model. Recorded in the index manifest.
	Model() string
}

// LLMService generates chat completions from a language model.
type LLMService interface {
	// Chat sends the whole message list and returns the assistant reply.
	// A leading RoleSystem message carries the instructions.
	Chat(ctx context.Context, messages []entities.ChatMessage) (string, error)

	// Model names the chat model.
	Model() string
}

// Provider is the explicit provider configuration handed to indexing and
// chat calls. It replaces any process-wide settings object.
type Provider struct {
	Name          string // LLM backend, e.g. "gemini"
	EmbeddingName string // Embedding backend, may differ from Name
	LLM           LLMService
	Embedder      EmbeddingService
}

// VectorStore persists and queries document embeddings.
type VectorStore interface {
	// Store saves chunks with their embeddings.
	Store(ctx context.Context, chunks []entities.Chunk) error

	// Search finds the most similar chunks to a query embedding.
	Search(ctx context.Context, embedding []float32, topK int) ([]entities.QueryResult, error)

	// Count returns the number of stored chunks.
	Count(ctx context.Context) (int, error)

	// Close releases files held by the store.
	Close() error
}

// VectorStoreOpener opens (or creates) a persisted store inside a directory.
type VectorStoreOpener interface {
	// Backend is the name written to the index manifest.
	Backend() string

	// Open opens the store rooted at dir, creating it when empty.
	Open(ctx context.Context, dir string) (VectorStore, error)
}

// DocumentLoader reads and parses documents from various formats.
type DocumentLoader interface {
	// Load reads a document from the given path.
	Load(ctx context.Context, path string) (*entities.Document, error)

	// SupportedExtensions returns file extensions this loader handles.
	SupportedExtensions() []string
}

// DocumentParser extracts text from binary document formats.
type DocumentParser interface {
	// Parse extracts text content from document bytes.
	Parse(ctx context.Context, data []byte, filename string) (string, error)

	// SupportedFormats returns formats this parser handles (e.g., "pdf").
	SupportedFormats() []string
}

// Chunker splits document text into embeddable pieces.
type Chunker interface {
	Split(text string) []string
}

// FileStore keeps uploaded documents on local disk.
type FileStore interface {
	// Check validates an upload without writing it and returns a reader
	// over the complete content.
	Check(name string, r io.Reader) (io.Reader, error)

	// Save writes r under name inside the store, replacing any file
	// with the same name, and returns the written path.
	Save(name string, r io.Reader) (string, error)

	// List returns the paths of all stored documents.
	List() ([]string, error)

	// Dir is the directory backing the store.
	Dir() string
}

// FileWatcher monitors a directory for changes.
type FileWatcher interface {
	// Watch starts monitoring the directory and emits events.
	Watch(ctx context.Context, dir string) (<-chan FileEvent, error)

	// Stop stops the watcher.
	Stop() error
}

// FileEvent represents a file system change.
type FileEvent struct {
	Path      string
	Operation FileOperation
}

// FileOperation is the type of file change.
type FileOperation int

const (
	FileCreated FileOperation = iota
	FileModified
	FileDeleted
)

func (op FileOperation) String() string {
	switch op {
	case FileCreated:
		return "created"
	case FileModified:
		return "modified"
	case FileDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}
