package filestore

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLocalStore_SaveCreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	store := NewLocalStore(dir)

	path, err := store.Save("notes.txt", strings.NewReader("gamma oscillations"))
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if path != filepath.Join(dir, "notes.txt") {
		t.Errorf("unexpected path: %s", path)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "gamma oscillations" {
		t.Errorf("unexpected content: %q", data)
	}
}

func TestLocalStore_SaveOverwrites(t *testing.T) {
	store := NewLocalStore(t.TempDir())

	store.Save("a.txt", strings.NewReader("first"))
	path, err := store.Save("a.txt", strings.NewReader("second"))
	if err != nil {
		t.Fatal(err)
	}

	data, _ := os.ReadFile(path)
	if string(data) != "second" {
		t.Errorf("expected overwrite, got %q", data)
	}
	paths, _ := store.List()
	if len(paths) != 1 {
		t.Errorf("expected 1 file, got %v", paths)
	}
}

func TestLocalStore_SaveStripsDirectories(t *testing.T) {
	dir := t.TempDir()
	store := NewLocalStore(filepath.Join(dir, "data"))

	path, err := store.Save("../../escape.txt", strings.NewReader("x"))
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Dir(path) != store.Dir() {
		t.Errorf("upload escaped the store: %s", path)
	}
}

func TestLocalStore_SaveLargeFile(t *testing.T) {
	store := NewLocalStore(t.TempDir())
	body := strings.Repeat("spike train ", 2000)

	path, err := store.Save("big.txt", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	if len(data) != len(body) {
		t.Errorf("expected %d bytes, got %d", len(body), len(data))
	}
}

func TestLocalStore_RejectsBinary(t *testing.T) {
	store := NewLocalStore(t.TempDir())
	png := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0}

	_, err := store.Save("figure.png", bytes.NewReader(png))

	if !errors.Is(err, ErrUnsupportedType) {
		t.Errorf("expected ErrUnsupportedType, got %v", err)
	}
	if paths, _ := store.List(); len(paths) != 0 {
		t.Error("rejected upload should not be written")
	}
}

func TestLocalStore_RejectsHiddenName(t *testing.T) {
	store := NewLocalStore(t.TempDir())

	if _, err := store.Save(".env", strings.NewReader("KEY=1")); err == nil {
		t.Error("hidden names should be rejected")
	}
}

func TestLocalStore_ListSkipsHiddenAndDirs(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "b.txt"), []byte("b"), 0644)
	os.WriteFile(filepath.Join(dir, "a.pdf"), []byte("%PDF-1.4"), 0644)
	os.WriteFile(filepath.Join(dir, ".DS_Store"), []byte("x"), 0644)
	os.Mkdir(filepath.Join(dir, "sub"), 0755)

	paths, err := NewLocalStore(dir).List()
	if err != nil {
		t.Fatal(err)
	}

	if len(paths) != 2 || filepath.Base(paths[0]) != "a.pdf" || filepath.Base(paths[1]) != "b.txt" {
		t.Errorf("unexpected listing: %v", paths)
	}
}

func TestLocalStore_ListMissingDir(t *testing.T) {
	paths, err := NewLocalStore(filepath.Join(t.TempDir(), "missing")).List()

	if err != nil || len(paths) != 0 {
		t.Errorf("missing dir should be empty, got %v, %v", paths, err)
	}
}

func TestSniff_AcceptsPDF(t *testing.T) {
	if err := Sniff("paper.pdf", []byte("%PDF-1.7\n%âãÏÓ\n")); err != nil {
		t.Errorf("pdf rejected: %v", err)
	}
}

func TestLocalStore_RejectsMismatchedContent(t *testing.T) {
	pdf := "%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\n"

	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"pdf named txt", "paper.txt", pdf},
		{"text named pdf", "fake.pdf", "just some notes about theta rhythm"},
		{"html extension", "notes.html", "<html><body>hi</body></html>"},
		{"csv extension", "data.csv", "a,b\n1,2\n"},
		{"no extension", "README", "plain words"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewLocalStore(t.TempDir())

			_, err := store.Save(tt.file, strings.NewReader(tt.content))

			if !errors.Is(err, ErrUnsupportedType) {
				t.Errorf("expected ErrUnsupportedType, got %v", err)
			}
			if paths, _ := store.List(); len(paths) != 0 {
				t.Errorf("rejected upload was written: %v", paths)
			}
		})
	}
}

func TestLocalStore_AcceptsMatchingContent(t *testing.T) {
	store := NewLocalStore(t.TempDir())

	for name, content := range map[string]string{
		"paper.PDF": "%PDF-1.7\n%âãÏÓ\n",
		"notes.txt": "Mice were trained for 5 days.",
		"draft.md":  "# Results\n\nFiring rate doubled.",
	} {
		if _, err := store.Save(name, strings.NewReader(content)); err != nil {
			t.Errorf("%s rejected: %v", name, err)
		}
	}
}

func TestLocalStore_CheckReplaysContent(t *testing.T) {
	store := NewLocalStore(t.TempDir())
	body := strings.Repeat("dendritic spine ", 500)

	r, err := store.Check("spines.txt", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	data, _ := io.ReadAll(r)

	if string(data) != body {
		t.Errorf("checked reader lost content: %d of %d bytes", len(data), len(body))
	}
	if paths, _ := store.List(); len(paths) != 0 {
		t.Error("check should not write anything")
	}
}
