package usecases

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/0xcro3dile/neuroscholar/internal/domain/ports"
)

func newTestLibrary(t *testing.T) (*Library, string) {
	t.Helper()
	indexer, dataDir, _ := newTestIndexer(t, newMockOpener())
	return NewLibrary(dirStore{dir: dataDir}, indexer, arbor.NewNoOpLogger()), dataDir
}

func TestLibrary_ProcessRequiresKeyAndFiles(t *testing.T) {
	lib, _ := newTestLibrary(t)
	ctx := context.Background()

	if _, err := lib.Process(ctx, nil, []Upload{{Name: "a.txt", Body: strings.NewReader("a")}}); !errors.Is(err, ErrMissingKey) {
		t.Errorf("expected ErrMissingKey, got %v", err)
	}
	if _, err := lib.Process(ctx, newProvider(&mockEmbedder{}, &mockLLM{}), nil); !errors.Is(err, ErrNoUploads) {
		t.Errorf("expected ErrNoUploads, got %v", err)
	}
}

func TestLibrary_ProcessBuildsIndex(t *testing.T) {
	lib, _ := newTestLibrary(t)
	p := newProvider(&mockEmbedder{}, &mockLLM{})
	ctx := context.Background()

	report, err := lib.Process(ctx, p, []Upload{
		{Name: "a.txt", Body: strings.NewReader("alpha")},
		{Name: "b.txt", Body: strings.NewReader("beta")},
	})
	if err != nil {
		t.Fatalf("process failed: %v", err)
	}
	if len(report.Files) != 2 || report.Chunks != 2 || report.State != IndexBuilt {
		t.Errorf("unexpected report: %+v", report)
	}

	results, err := lib.Retrieve(ctx, p.Embedder, "alpha", 5)
	if err != nil {
		t.Fatalf("retrieve failed: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("expected 2 results, got %d", len(results))
	}
}

func TestLibrary_ProcessAgainIncludesEarlierFiles(t *testing.T) {
	lib, _ := newTestLibrary(t)
	p := newProvider(&mockEmbedder{}, &mockLLM{})
	ctx := context.Background()

	if _, err := lib.Process(ctx, p, []Upload{{Name: "a.txt", Body: strings.NewReader("alpha")}}); err != nil {
		t.Fatal(err)
	}
	if _, err := lib.Process(ctx, p, []Upload{{Name: "b.txt", Body: strings.NewReader("beta")}}); err != nil {
		t.Fatal(err)
	}

	st, err := lib.Status()
	if err != nil {
		t.Fatal(err)
	}
	if st.Manifest == nil || len(st.Manifest.Documents) != 2 || st.Manifest.Chunks != 2 {
		t.Errorf("expected a full rebuild over both files, got %+v", st.Manifest)
	}
}

func TestLibrary_OpenIsLazyAndCached(t *testing.T) {
	lib, dataDir := newTestLibrary(t)
	embedder := &mockEmbedder{}
	p := newProvider(embedder, &mockLLM{})
	ctx := context.Background()

	if res := lib.Open(ctx, p); res.State != IndexEmpty {
		t.Fatalf("expected empty, got %s", res.State)
	}

	writeDoc(t, dataDir, "a.txt", "alpha")
	if res := lib.Open(ctx, p); res.State != IndexBuilt {
		t.Fatalf("expected built, got %s (%v)", res.State, res.Err)
	}
	calls := embedder.Calls()

	if res := lib.Open(ctx, p); !res.Ready() {
		t.Fatal("expected cached index")
	}
	if embedder.Calls() != calls {
		t.Error("cached open should not embed again")
	}
}

func TestLibrary_ClearDropsIndex(t *testing.T) {
	lib, _ := newTestLibrary(t)
	p := newProvider(&mockEmbedder{}, &mockLLM{})
	ctx := context.Background()

	if _, err := lib.Process(ctx, p, []Upload{{Name: "a.txt", Body: strings.NewReader("alpha")}}); err != nil {
		t.Fatal(err)
	}

	if err := lib.Clear(); err != nil {
		t.Fatalf("clear failed: %v", err)
	}

	if _, err := lib.Retrieve(ctx, p.Embedder, "alpha", 5); !errors.Is(err, ErrNoIndex) {
		t.Errorf("expected ErrNoIndex after clear, got %v", err)
	}
	if res := lib.Open(ctx, p); res.State != IndexEmpty {
		t.Errorf("expected empty after clear, got %s", res.State)
	}
}

func TestLibrary_MarkChangedOnlyReports(t *testing.T) {
	lib, dataDir := newTestLibrary(t)
	p := newProvider(&mockEmbedder{}, &mockLLM{})
	ctx := context.Background()

	if _, err := lib.Process(ctx, p, []Upload{{Name: "a.txt", Body: strings.NewReader("alpha")}}); err != nil {
		t.Fatal(err)
	}

	// Event for a file written during the build is ignored.
	lib.MarkChanged(ports.FileEvent{Path: filepath.Join(dataDir, "a.txt"), Operation: ports.FileCreated})

	time.Sleep(10 * time.Millisecond)
	writeDoc(t, dataDir, "late.txt", "gamma")
	lib.MarkChanged(ports.FileEvent{Path: filepath.Join(dataDir, "late.txt"), Operation: ports.FileCreated})

	st, err := lib.Status()
	if err != nil {
		t.Fatal(err)
	}
	if len(st.ChangedSinceBuild) != 1 || st.ChangedSinceBuild[0] != "late.txt" {
		t.Errorf("unexpected changes: %v", st.ChangedSinceBuild)
	}
	if !st.Loaded || st.Manifest.Chunks != 1 {
		t.Error("index should stay as built")
	}
	if len(st.Documents) != 2 {
		t.Errorf("expected 2 documents on disk, got %v", st.Documents)
	}
}

func TestLibrary_ProcessRejectsBatchBeforeSaving(t *testing.T) {
	lib, dataDir := newTestLibrary(t)
	p := newProvider(&mockEmbedder{}, &mockLLM{})

	_, err := lib.Process(context.Background(), p, []Upload{
		{Name: "good.txt", Body: strings.NewReader("alpha")},
		{Name: "figure.bad", Body: strings.NewReader("beta")},
	})

	if !errors.Is(err, errUnsupported) {
		t.Fatalf("expected the check error, got %v", err)
	}
	if _, statErr := os.Stat(filepath.Join(dataDir, "good.txt")); !os.IsNotExist(statErr) {
		t.Error("no upload should be saved when one of them is rejected")
	}
	if st, _ := lib.Status(); st.Indexed {
		t.Error("rejected batch should not build an index")
	}
}
