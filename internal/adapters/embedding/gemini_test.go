package embedding

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ternarybob/arbor"
)

func TestGeminiAdapter_Defaults(t *testing.T) {
	adapter, err := NewGeminiAdapter(context.Background(), GeminiConfig{APIKey: "test"}, arbor.NewNoOpLogger())
	if err != nil {
		t.Fatalf("construct failed: %v", err)
	}
	if adapter.Model() != "gemini-embedding-001" {
		t.Errorf("unexpected default model: %s", adapter.Model())
	}
}

func TestGeminiAdapter_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":403,"message":"API key not valid"}}`, http.StatusForbidden)
	}))
	defer server.Close()

	adapter, err := NewGeminiAdapter(context.Background(), GeminiConfig{APIKey: "bad", BaseURL: server.URL}, arbor.NewNoOpLogger())
	if err != nil {
		t.Fatal(err)
	}

	if _, err := adapter.Embed(context.Background(), "x"); err == nil {
		t.Error("invalid key should surface on the first call")
	}
}
