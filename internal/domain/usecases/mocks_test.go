package usecases

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/0xcro3dile/neuroscholar/internal/domain/entities"
	"github.com/0xcro3dile/neuroscholar/internal/domain/ports"
)

// mockEmbedder implements ports.EmbeddingService for testing
type mockEmbedder struct {
	mu      sync.Mutex
	model   string
	calls   int
	embedFn func(text string) ([]float32, error)
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.embedFn != nil {
		return m.embedFn(text)
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

func (m *mockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	result := make([][]float32, len(texts))
	for i := range texts {
		emb, err := m.Embed(ctx, texts[i])
		if err != nil {
			return nil, err
		}
		result[i] = emb
	}
	return result, nil
}

func (m *mockEmbedder) Model() string {
	if m.model == "" {
		return "mock-embed"
	}
	return m.model
}

func (m *mockEmbedder) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// mockLLM implements ports.LLMService for testing
type mockLLM struct {
	mu     sync.Mutex
	calls  [][]entities.ChatMessage
	chatFn func(messages []entities.ChatMessage) (string, error)
}

func (m *mockLLM) Chat(ctx context.Context, messages []entities.ChatMessage) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, messages)
	m.mu.Unlock()
	if m.chatFn != nil {
		return m.chatFn(messages)
	}
	return "mocked answer", nil
}

func (m *mockLLM) Model() string { return "mock-llm" }

// mockVectorStore implements ports.VectorStore for testing
type mockVectorStore struct {
	chunks  []entities.Chunk
	storeFn func(chunks []entities.Chunk) error
	closed  bool
}

func (m *mockVectorStore) Store(ctx context.Context, chunks []entities.Chunk) error {
	if m.storeFn != nil {
		return m.storeFn(chunks)
	}
	m.chunks = append(m.chunks, chunks...)
	return nil
}

func (m *mockVectorStore) Search(ctx context.Context, emb []float32, topK int) ([]entities.QueryResult, error) {
	var results []entities.QueryResult
	for i, c := range m.chunks {
		if i >= topK {
			break
		}
		results = append(results, entities.QueryResult{Chunk: c, Score: 0.9, SourceDoc: c.SourceDoc})
	}
	return results, nil
}

func (m *mockVectorStore) Count(ctx context.Context) (int, error) {
	return len(m.chunks), nil
}

func (m *mockVectorStore) Close() error {
	m.closed = true
	return nil
}

// mockOpener keeps one store per directory for as long as the marker file
// it writes there survives, standing in for an on-disk format.
type mockOpener struct {
	stores  map[string]*mockVectorStore
	opens   int
	storeFn func(chunks []entities.Chunk) error
}

func newMockOpener() *mockOpener {
	return &mockOpener{stores: make(map[string]*mockVectorStore)}
}

func (o *mockOpener) Backend() string { return "mock" }

func (o *mockOpener) Open(ctx context.Context, dir string) (ports.VectorStore, error) {
	o.opens++
	marker := filepath.Join(dir, "mock.db")
	if _, err := os.Stat(marker); err == nil {
		if s, ok := o.stores[dir]; ok {
			return s, nil
		}
		return nil, errors.New("corrupt store")
	}
	if err := os.WriteFile(marker, []byte("mock"), 0644); err != nil {
		return nil, err
	}
	s := &mockVectorStore{storeFn: o.storeFn}
	o.stores[dir] = s
	return s, nil
}

// paragraphChunker splits on blank lines.
type paragraphChunker struct{}

func (paragraphChunker) Split(text string) []string {
	var out []string
	for _, p := range strings.Split(text, "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// dirStore is a minimal ports.FileStore over a directory. Names ending in
// .bad fail the check.
type dirStore struct{ dir string }

func (s dirStore) Check(name string, r io.Reader) (io.Reader, error) {
	if strings.HasSuffix(name, ".bad") {
		return nil, errUnsupported
	}
	return r, nil
}

func (s dirStore) Save(name string, r io.Reader) (string, error) {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return "", err
	}
	path := filepath.Join(s.dir, filepath.Base(name))
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return path, os.WriteFile(path, data, 0644)
}

func (s dirStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() {
			out = append(out, filepath.Join(s.dir, e.Name()))
		}
	}
	return out, nil
}

func (s dirStore) Dir() string { return s.dir }

var errUnsupported = errors.New("unsupported file type")

// textLoader reads files verbatim.
type textLoader struct{}

func (textLoader) Load(ctx context.Context, path string) (*entities.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	name := filepath.Base(path)
	return &entities.Document{ID: name, Name: name, Path: path, Content: string(data)}, nil
}

func (textLoader) SupportedExtensions() []string { return []string{".txt"} }

func newProvider(embedder *mockEmbedder, llm *mockLLM) *ports.Provider {
	return &ports.Provider{Name: "mock", EmbeddingName: "mock", LLM: llm, Embedder: embedder}
}
