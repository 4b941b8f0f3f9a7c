// Package entities contains core business entities.
// These are pure domain objects with no external dependencies.
package entities

import "time"

// Document represents an uploaded paper (PDF or TXT) in the data directory.
// Identity is the filename: re-uploading the same name replaces it.
type Document struct {
	ID        string
	Name      string
	Path      string
	Content   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Chunk represents a piece of a document for embedding.
type Chunk struct {
	ID         string
	DocumentID string
	SourceDoc  string // Filename of the owning document
	Content    string
	Index      int       // Position in document
	Embedding  []float32 // Populated by the embedding adapter
}

// QueryResult represents a retrieved chunk with its relevance.
type QueryResult struct {
	Chunk     Chunk
	Score     float64
	SourceDoc string
}

// Role is the author of a conversation turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatMessage represents a conversation turn.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ChatResponse is the assistant's answer. Sources are the chunks that were
// placed in the context window for this turn.
type ChatResponse struct {
	Answer             string
	StandaloneQuestion string
	Sources            []QueryResult
}

// IndexManifest describes how a persisted index was built. It is stored
// beside the vectors and checked on load.
type IndexManifest struct {
	Backend           string    `json:"backend"`
	EmbeddingProvider string    `json:"embedding_provider"`
	EmbeddingModel    string    `json:"embedding_model"`
	Dimension         int       `json:"dimension"`
	Documents         []string  `json:"documents"`
	Chunks            int       `json:"chunks"`
	BuiltAt           time.Time `json:"built_at"`
}
