package usecases

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/0xcro3dile/neuroscholar/internal/domain/entities"
	"github.com/0xcro3dile/neuroscholar/internal/domain/ports"
)

var (
	// ErrMissingKey means no provider has been configured yet.
	ErrMissingKey = errors.New("please configure an API key first")
	// ErrNoUploads means the process action got no files.
	ErrNoUploads = errors.New("please choose PDF or TXT files first")
)

// Upload is one file handed to the process action.
type Upload struct {
	Name string
	Body io.Reader
}

// ProcessReport is the outcome of the process action.
type ProcessReport struct {
	Files  []string
	Chunks int
	State  IndexState
}

// LibraryStatus is a snapshot for the UI.
type LibraryStatus struct {
	Documents         []string                `json:"documents"`
	Indexed           bool                    `json:"indexed"`
	Loaded            bool                    `json:"loaded"`
	Manifest          *entities.IndexManifest `json:"manifest,omitempty"`
	ChangedSinceBuild []string                `json:"changed_since_build"`
}

// Library is the shared document library: uploaded files plus the one open
// index handle. Index operations are serialized; retrieval may run
// concurrently with other retrievals.
type Library struct {
	mu      sync.RWMutex
	files   ports.FileStore
	indexer *IndexUseCase
	current *Index
	changed map[string]ports.FileOperation
	logger  arbor.ILogger
}

// NewLibrary creates a Library.
func NewLibrary(files ports.FileStore, indexer *IndexUseCase, logger arbor.ILogger) *Library {
	return &Library{
		files:   files,
		indexer: indexer,
		changed: make(map[string]ports.FileOperation),
		logger:  logger,
	}
}

// Process saves the uploads, discards the previous index and rebuilds it
// from every file in the library.
func (l *Library) Process(ctx context.Context, p *ports.Provider, uploads []Upload) (*ProcessReport, error) {
	if p == nil {
		return nil, ErrMissingKey
	}
	if len(uploads) == 0 {
		return nil, ErrNoUploads
	}

	// Nothing is saved unless every upload is acceptable.
	checked := make([]Upload, len(uploads))
	for i, up := range uploads {
		body, err := l.files.Check(up.Name, up.Body)
		if err != nil {
			return nil, fmt.Errorf("checking %s: %w", up.Name, err)
		}
		checked[i] = Upload{Name: up.Name, Body: body}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	report := &ProcessReport{}
	for _, up := range checked {
		path, err := l.files.Save(up.Name, up.Body)
		if err != nil {
			return nil, fmt.Errorf("saving %s: %w", up.Name, err)
		}
		report.Files = append(report.Files, filepath.Base(path))
	}

	res := l.rebuildLocked(ctx, p)
	report.State = res.State
	if res.Err != nil {
		return report, res.Err
	}
	if res.Index != nil {
		report.Chunks = res.Index.Manifest().Chunks
	}

	l.logger.Info().Strs("files", report.Files).Int("chunks", report.Chunks).Msg("Documents processed")
	return report, nil
}

// Rebuild discards the persisted index and builds a new one from the
// files already in the library.
func (l *Library) Rebuild(ctx context.Context, p *ports.Provider) IndexResult {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rebuildLocked(ctx, p)
}

func (l *Library) rebuildLocked(ctx context.Context, p *ports.Provider) IndexResult {
	l.closeLocked()
	res := l.indexer.Rebuild(ctx, p)
	if res.Ready() {
		l.current = res.Index
		l.changed = make(map[string]ports.FileOperation)
	}
	return res
}

// Open returns the open index, loading or building it on first use.
func (l *Library) Open(ctx context.Context, p *ports.Provider) IndexResult {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.current != nil {
		return IndexResult{State: IndexLoaded, Index: l.current}
	}

	res := l.indexer.Get(ctx, p)
	if res.Ready() {
		l.current = res.Index
		if res.State == IndexBuilt {
			l.changed = make(map[string]ports.FileOperation)
		}
	}
	return res
}

// Retrieve searches the open index. It fails with ErrNoIndex when the
// library has no open index, e.g. after Clear.
func (l *Library) Retrieve(ctx context.Context, embedder ports.EmbeddingService, query string, topK int) ([]entities.QueryResult, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.current == nil {
		return nil, ErrNoIndex
	}
	return l.current.Retrieve(ctx, embedder, query, topK)
}

// Clear closes the index and deletes every document and the persisted index.
func (l *Library) Clear() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.closeLocked()
	l.changed = make(map[string]ports.FileOperation)
	return l.indexer.Clear()
}

// MarkChanged records a change in the data directory since the last build.
// It only feeds Status; the index is never invalidated.
func (l *Library) MarkChanged(ev ports.FileEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.indexer.Exists() {
		return
	}

	name := filepath.Base(ev.Path)
	if l.current != nil {
		m := l.current.Manifest()
		if ev.Operation == ports.FileDeleted {
			if !slices.Contains(m.Documents, name) {
				return
			}
		} else if info, err := os.Stat(ev.Path); err == nil && !info.ModTime().After(m.BuiltAt) {
			return
		}
	}
	l.changed[name] = ev.Operation
}

// Status reports the documents on disk and the index state.
func (l *Library) Status() (LibraryStatus, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	paths, err := l.files.List()
	if err != nil {
		return LibraryStatus{}, err
	}

	st := LibraryStatus{
		Documents:         make([]string, 0, len(paths)),
		Indexed:           l.indexer.Exists(),
		Loaded:            l.current != nil,
		ChangedSinceBuild: make([]string, 0, len(l.changed)),
	}
	for _, p := range paths {
		st.Documents = append(st.Documents, filepath.Base(p))
	}
	if l.current != nil {
		m := l.current.Manifest()
		st.Manifest = &m
	}
	for name := range l.changed {
		st.ChangedSinceBuild = append(st.ChangedSinceBuild, name)
	}
	sort.Strings(st.ChangedSinceBuild)
	return st, nil
}

// Close releases the open index.
func (l *Library) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closeLocked()
}

func (l *Library) closeLocked() error {
	if l.current == nil {
		return nil
	}
	err := l.current.Close()
	l.current = nil
	return err
}
