package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ternarybob/arbor"

	"github.com/0xcro3dile/neuroscholar/internal/adapters/chunker"
	"github.com/0xcro3dile/neuroscholar/internal/adapters/filestore"
	"github.com/0xcro3dile/neuroscholar/internal/adapters/loader"
	"github.com/0xcro3dile/neuroscholar/internal/adapters/parser"
	"github.com/0xcro3dile/neuroscholar/internal/adapters/vectordb"
	"github.com/0xcro3dile/neuroscholar/internal/domain/entities"
	"github.com/0xcro3dile/neuroscholar/internal/domain/ports"
	"github.com/0xcro3dile/neuroscholar/internal/domain/usecases"
)

// letterEmbedder embeds text as letter frequencies.
type letterEmbedder struct{}

func (letterEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	v := make([]float32, 26)
	for _, r := range strings.ToLower(text) {
		if r >= 'a' && r <= 'z' {
			v[r-'a']++
		}
	}
	v[0] += 0.01
	return v, nil
}

func (e letterEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i], _ = e.Embed(ctx, t)
	}
	return out, nil
}

func (letterEmbedder) Model() string { return "letters" }

// contextEchoLLM answers with the system message so tests can see the
// retrieved context.
type contextEchoLLM struct {
	err error
}

func (l *contextEchoLLM) Chat(ctx context.Context, messages []entities.ChatMessage) (string, error) {
	if l.err != nil {
		return "", l.err
	}
	return messages[0].Content, nil
}

func (l *contextEchoLLM) Model() string { return "echo" }

type testEnv struct {
	server  *httptest.Server
	client  *http.Client
	dataDir string
	llm     *contextEchoLLM
}

func newTestEnv(t *testing.T, keyFromConfig bool) *testEnv {
	t.Helper()
	root := t.TempDir()
	dataDir := filepath.Join(root, "data")
	logger := arbor.NewNoOpLogger()

	files := filestore.NewLocalStore(dataDir)
	opener, _ := vectordb.NewOpener(vectordb.BackendMemory)
	indexer := usecases.NewIndexUseCase(
		files,
		loader.NewMultiLoader(parser.NewPDFParser()),
		opener,
		usecases.NewIngestUseCase(chunker.NewSentenceChunker(64, 8, nil)),
		filepath.Join(root, "storage"),
		logger,
	)

	llm := &contextEchoLLM{}
	srv, err := NewServer(Options{
		Library: usecases.NewLibrary(files, indexer, logger),
		Chat:    usecases.NewChatUseCase(usecases.ChatOptions{}, logger),
		NewProvider: func(ctx context.Context, key string) (*ports.Provider, error) {
			if key == "bad" {
				return nil, errors.New("unknown provider")
			}
			return &ports.Provider{Name: "test", EmbeddingName: "test", LLM: llm, Embedder: letterEmbedder{}}, nil
		},
		KeyFromConfig: keyFromConfig,
		Welcome:       usecases.DefaultWelcomeMessage,
		Logger:        logger,
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	jar, _ := cookiejar.New(nil)
	return &testEnv{server: ts, client: &http.Client{Jar: jar}, dataDir: dataDir, llm: llm}
}

func (e *testEnv) postJSON(t *testing.T, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	data, _ := json.Marshal(body)
	resp, err := e.client.Post(e.server.URL+path, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	return resp, decode(t, resp)
}

func (e *testEnv) upload(t *testing.T, files map[string]string) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, content := range files {
		fw, _ := mw.CreateFormFile("files", name)
		io.WriteString(fw, content)
	}
	mw.Close()

	resp, err := e.client.Post(e.server.URL+"/api/process", mw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatal(err)
	}
	return resp, decode(t, resp)
}

func (e *testEnv) get(t *testing.T, path string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := e.client.Get(e.server.URL + path)
	if err != nil {
		t.Fatal(err)
	}
	return resp, decode(t, resp)
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	out := map[string]any{}
	json.NewDecoder(resp.Body).Decode(&out)
	return out
}

func TestServer_IndexPage(t *testing.T) {
	env := newTestEnv(t, false)

	resp, err := env.client.Get(env.server.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "Process / update library") {
		t.Errorf("unexpected page: %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), `id="key-input"`) {
		t.Error("key input should be shown without a configured key")
	}
}

func TestServer_IndexPageHidesKeyInput(t *testing.T) {
	env := newTestEnv(t, true)

	resp, _ := env.client.Get(env.server.URL + "/")
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if strings.Contains(string(body), `id="key-input"`) || !strings.Contains(string(body), msgKeyLoaded) {
		t.Error("configured key should replace the key input")
	}
}

func TestServer_SessionStartsWithWelcome(t *testing.T) {
	env := newTestEnv(t, false)

	resp, body := env.get(t, "/api/session")

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
	if body["has_key"] != false {
		t.Error("new session should have no key")
	}
	history, _ := body["history"].([]any)
	if len(history) != 1 {
		t.Fatalf("expected the welcome message, got %v", history)
	}

	// Same cookie, same session.
	_, again := env.get(t, "/api/session")
	if again["id"] != body["id"] {
		t.Error("session should persist across requests")
	}
}

func TestServer_ProcessRequiresKey(t *testing.T) {
	env := newTestEnv(t, false)

	resp, body := env.upload(t, map[string]string{"a.txt": "alpha"})

	if resp.StatusCode != http.StatusBadRequest || body["error"] != msgMissingKey {
		t.Errorf("expected missing key error, got %d %v", resp.StatusCode, body)
	}
}

func TestServer_ProcessRequiresFiles(t *testing.T) {
	env := newTestEnv(t, false)
	env.postJSON(t, "/api/key", map[string]string{"api_key": "k"})

	resp, body := env.upload(t, nil)

	if resp.StatusCode != http.StatusBadRequest || body["error"] != msgNoUploads {
		t.Errorf("expected no uploads error, got %d %v", resp.StatusCode, body)
	}
}

func TestServer_KeyRejected(t *testing.T) {
	env := newTestEnv(t, false)

	resp, _ := env.postJSON(t, "/api/key", map[string]string{"api_key": "bad"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
	resp, _ = env.postJSON(t, "/api/key", map[string]string{"api_key": "  "})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("blank key: expected 400, got %d", resp.StatusCode)
	}
}

func TestServer_ChatFlow(t *testing.T) {
	env := newTestEnv(t, false)
	env.postJSON(t, "/api/key", map[string]string{"api_key": "k"})

	// No index yet.
	resp, body := env.postJSON(t, "/api/chat", map[string]string{"message": "What frequency?"})
	if resp.StatusCode != http.StatusConflict || body["error"] != msgEmptyIndex {
		t.Fatalf("expected 409 before processing, got %d %v", resp.StatusCode, body)
	}

	resp, body = env.upload(t, map[string]string{
		"protocol.txt": "Optogenetic stimulation frequency: 40Hz for one hour daily.",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("process failed: %d %v", resp.StatusCode, body)
	}
	if body["state"] != "built" || body["message"] != "Processed 1 documents" {
		t.Errorf("unexpected process response: %v", body)
	}
	if _, err := os.Stat(filepath.Join(env.dataDir, "protocol.txt")); err != nil {
		t.Errorf("upload not saved: %v", err)
	}

	resp, body = env.postJSON(t, "/api/chat", map[string]string{"message": "What stimulation frequency was used?"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("chat failed: %d %v", resp.StatusCode, body)
	}
	if answer, _ := body["answer"].(string); !strings.Contains(answer, "40Hz") {
		t.Errorf("answer should carry the retrieved context, got %q", answer)
	}
	sources, _ := body["sources"].([]any)
	if len(sources) == 0 {
		t.Fatal("expected sources")
	}
	if src := sources[0].(map[string]any); src["document"] != "protocol.txt" {
		t.Errorf("unexpected source: %v", src)
	}

	_, session := env.get(t, "/api/session")
	if history, _ := session["history"].([]any); len(history) != 3 {
		t.Errorf("expected welcome + 2 turns, got %d", len(history))
	}
}

func TestServer_ChatFailureKeepsHistory(t *testing.T) {
	env := newTestEnv(t, false)
	env.postJSON(t, "/api/key", map[string]string{"api_key": "k"})
	env.upload(t, map[string]string{"a.txt": "Theta rhythm in CA1."})

	env.llm.err = errors.New("upstream unavailable")
	resp, _ := env.postJSON(t, "/api/chat", map[string]string{"message": "What rhythm?"})

	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", resp.StatusCode)
	}
	_, session := env.get(t, "/api/session")
	if history, _ := session["history"].([]any); len(history) != 1 {
		t.Errorf("failed turn should not be recorded, got %d messages", len(history))
	}
}

func TestServer_ClearKeepsHistory(t *testing.T) {
	env := newTestEnv(t, false)
	env.postJSON(t, "/api/key", map[string]string{"api_key": "k"})
	env.upload(t, map[string]string{"a.txt": "Gamma oscillations."})
	env.postJSON(t, "/api/chat", map[string]string{"message": "Which oscillations?"})

	resp, _ := env.postJSON(t, "/api/clear", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("clear failed: %d", resp.StatusCode)
	}

	_, docs := env.get(t, "/api/documents")
	if list, _ := docs["documents"].([]any); len(list) != 0 {
		t.Errorf("documents should be gone, got %v", list)
	}
	_, session := env.get(t, "/api/session")
	if history, _ := session["history"].([]any); len(history) != 3 {
		t.Errorf("history should survive clear, got %d", len(history))
	}
	resp, _ = env.postJSON(t, "/api/chat", map[string]string{"message": "Again?"})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("expected 409 after clear, got %d", resp.StatusCode)
	}
}

func TestServer_ConfiguredKeyNeedsNoInput(t *testing.T) {
	env := newTestEnv(t, true)

	_, session := env.get(t, "/api/session")
	if session["has_key"] != true || session["key_from_config"] != true {
		t.Errorf("configured key should be active: %v", session)
	}

	resp, _ := env.upload(t, map[string]string{"a.txt": "alpha"})
	if resp.StatusCode != http.StatusOK {
		t.Errorf("process should work with configured key, got %d", resp.StatusCode)
	}
}

func TestServer_RejectsUnsupportedUpload(t *testing.T) {
	env := newTestEnv(t, false)
	env.postJSON(t, "/api/key", map[string]string{"api_key": "k"})

	resp, _ := env.upload(t, map[string]string{"figure.png": "\x89PNG\r\n\x1a\n\x00\x00\x00\x00"})

	if resp.StatusCode != http.StatusUnsupportedMediaType {
		t.Errorf("expected 415, got %d", resp.StatusCode)
	}
}

func TestServer_RejectsMislabelledUploadBatch(t *testing.T) {
	env := newTestEnv(t, false)
	env.postJSON(t, "/api/key", map[string]string{"api_key": "k"})

	resp, _ := env.upload(t, map[string]string{
		"notes.txt": "Place cells in CA1.",
		"fake.pdf":  "not a pdf at all",
	})

	if resp.StatusCode != http.StatusUnsupportedMediaType {
		t.Errorf("expected 415, got %d", resp.StatusCode)
	}
	_, docs := env.get(t, "/api/documents")
	if list, _ := docs["documents"].([]any); len(list) != 0 {
		t.Errorf("no file of a rejected batch should be kept, got %v", list)
	}
}

func TestServer_StatusAndHealth(t *testing.T) {
	env := newTestEnv(t, false)

	resp, body := env.get(t, "/api/health")
	if resp.StatusCode != http.StatusOK || body["status"] != "ok" {
		t.Errorf("unexpected health: %v", body)
	}

	resp, body = env.get(t, "/api/status")
	if resp.StatusCode != http.StatusOK || body["indexed"] != false {
		t.Errorf("unexpected status: %v", body)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	h := recoveryMiddleware(arbor.NewNoOpLogger(), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
}

func TestExcerpt(t *testing.T) {
	if got := excerpt("short", 10); got != "short" {
		t.Errorf("unexpected: %q", got)
	}
	if got := excerpt("ααααα", 2); got != "αα…" {
		t.Errorf("excerpt should cut on runes, got %q", got)
	}
}
