package usecases

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/0xcro3dile/neuroscholar/internal/domain/entities"
	"github.com/0xcro3dile/neuroscholar/internal/domain/ports"
)

const manifestFile = "manifest.json"

var (
	// ErrIndexLoad wraps every failure to open a persisted index.
	ErrIndexLoad = errors.New("loading persisted index")
	// ErrIndexBuild wraps every failure to build a new index.
	ErrIndexBuild = errors.New("building index")
	// ErrNoIndex means there is no index to query yet.
	ErrNoIndex = errors.New("no index: upload documents and process them first")
	// ErrNoText means the documents produced no chunks at all.
	ErrNoText = errors.New("no extractable text in documents")
)

// IndexState is the outcome of an index request.
type IndexState int

const (
	// IndexEmpty: no persisted index and nothing to index.
	IndexEmpty IndexState = iota
	// IndexLoaded: opened from the storage directory.
	IndexLoaded
	// IndexBuilt: built from the data directory and persisted.
	IndexBuilt
	// IndexFailed: loading or building failed, see Err.
	IndexFailed
)

func (s IndexState) String() string {
	switch s {
	case IndexEmpty:
		return "empty"
	case IndexLoaded:
		return "loaded"
	case IndexBuilt:
		return "built"
	case IndexFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// IndexResult distinguishes "nothing to index yet" from "failed".
type IndexResult struct {
	State IndexState
	Index *Index
	Err   error
}

// Ready reports whether the result carries a usable index.
func (r IndexResult) Ready() bool {
	return r.Index != nil && (r.State == IndexLoaded || r.State == IndexBuilt)
}

// Index is an opened persisted vector index.
type Index struct {
	store    ports.VectorStore
	manifest entities.IndexManifest
}

// Manifest returns the build metadata of the index.
func (i *Index) Manifest() entities.IndexManifest {
	return i.manifest
}

// Retrieve embeds the query and returns the topK most similar chunks.
func (i *Index) Retrieve(ctx context.Context, embedder ports.EmbeddingService, query string, topK int) ([]entities.QueryResult, error) {
	embedding, err := embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	if len(embedding) != i.manifest.Dimension {
		return nil, fmt.Errorf("query embedding has %d dimensions, index has %d", len(embedding), i.manifest.Dimension)
	}

	results, err := i.store.Search(ctx, embedding, topK)
	if err != nil {
		return nil, fmt.Errorf("searching vectors: %w", err)
	}
	return results, nil
}

// Close releases the underlying store.
func (i *Index) Close() error {
	return i.store.Close()
}

// IndexUseCase loads or builds the persisted index. The existence of the
// storage directory is the only signal that an index exists; its contents
// are never compared with the data directory.
type IndexUseCase struct {
	files      ports.FileStore
	loader     ports.DocumentLoader
	opener     ports.VectorStoreOpener
	ingest     *IngestUseCase
	storageDir string
	logger     arbor.ILogger
}

// NewIndexUseCase creates an IndexUseCase.
func NewIndexUseCase(
	files ports.FileStore,
	loader ports.DocumentLoader,
	opener ports.VectorStoreOpener,
	ingest *IngestUseCase,
	storageDir string,
	logger arbor.ILogger,
) *IndexUseCase {
	return &IndexUseCase{
		files:      files,
		loader:     loader,
		opener:     opener,
		ingest:     ingest,
		storageDir: storageDir,
		logger:     logger,
	}
}

// StorageDir is where the index is persisted.
func (uc *IndexUseCase) StorageDir() string {
	return uc.storageDir
}

// Exists reports whether a persisted index is present.
func (uc *IndexUseCase) Exists() bool {
	_, err := os.Stat(uc.storageDir)
	return err == nil
}

// Get loads the persisted index when the storage directory exists, or
// builds one from the data directory otherwise. A failed load is never
// followed by an automatic rebuild.
func (uc *IndexUseCase) Get(ctx context.Context, p *ports.Provider) IndexResult {
	if p == nil {
		return IndexResult{State: IndexFailed, Err: ErrMissingKey}
	}

	if uc.Exists() {
		idx, err := uc.load(ctx, p)
		if err != nil {
			uc.logger.Error().Err(err).Str("dir", uc.storageDir).Msg("Index load failed")
			return IndexResult{State: IndexFailed, Err: fmt.Errorf("%w: %w", ErrIndexLoad, err)}
		}
		uc.logger.Info().Int("chunks", idx.manifest.Chunks).Int("documents", len(idx.manifest.Documents)).Msg("Index loaded from storage")
		return IndexResult{State: IndexLoaded, Index: idx}
	}

	paths, err := uc.files.List()
	if err != nil {
		return IndexResult{State: IndexFailed, Err: fmt.Errorf("%w: listing documents: %w", ErrIndexBuild, err)}
	}
	if len(paths) == 0 {
		uc.logger.Debug().Str("dir", uc.files.Dir()).Msg("Nothing to index")
		return IndexResult{State: IndexEmpty}
	}

	idx, err := uc.build(ctx, p, paths)
	if err != nil {
		uc.logger.Error().Err(err).Msg("Index build failed")
		if rmErr := os.RemoveAll(uc.storageDir); rmErr != nil {
			uc.logger.Warn().Err(rmErr).Msg("Failed to remove partial index")
		}
		return IndexResult{State: IndexFailed, Err: fmt.Errorf("%w: %w", ErrIndexBuild, err)}
	}
	return IndexResult{State: IndexBuilt, Index: idx}
}

// Rebuild discards any persisted index and builds from the current files.
func (uc *IndexUseCase) Rebuild(ctx context.Context, p *ports.Provider) IndexResult {
	if p == nil {
		return IndexResult{State: IndexFailed, Err: ErrMissingKey}
	}
	if err := os.RemoveAll(uc.storageDir); err != nil {
		return IndexResult{State: IndexFailed, Err: fmt.Errorf("%w: removing old index: %w", ErrIndexBuild, err)}
	}
	return uc.Get(ctx, p)
}

// Clear deletes the data and storage directories and recreates an empty
// data directory.
func (uc *IndexUseCase) Clear() error {
	dataDir := uc.files.Dir()
	if err := os.RemoveAll(dataDir); err != nil {
		return fmt.Errorf("removing %s: %w", dataDir, err)
	}
	if err := os.RemoveAll(uc.storageDir); err != nil {
		return fmt.Errorf("removing %s: %w", uc.storageDir, err)
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("recreating %s: %w", dataDir, err)
	}
	uc.logger.Warn().Str("data", dataDir).Str("storage", uc.storageDir).Msg("Library cleared")
	return nil
}

func (uc *IndexUseCase) load(ctx context.Context, p *ports.Provider) (*Index, error) {
	manifest, err := readManifest(uc.storageDir)
	if err != nil {
		return nil, err
	}
	if manifest.Backend != uc.opener.Backend() {
		return nil, fmt.Errorf("index was built with backend %q, configured backend is %q", manifest.Backend, uc.opener.Backend())
	}
	if model := p.Embedder.Model(); manifest.EmbeddingModel != model {
		return nil, fmt.Errorf("index was built with embedding model %q, configured model is %q", manifest.EmbeddingModel, model)
	}

	store, err := uc.opener.Open(ctx, uc.storageDir)
	if err != nil {
		return nil, err
	}
	count, err := store.Count(ctx)
	if err != nil {
		store.Close()
		return nil, err
	}
	if count != manifest.Chunks {
		store.Close()
		return nil, fmt.Errorf("index holds %d chunks, manifest expects %d", count, manifest.Chunks)
	}

	return &Index{store: store, manifest: manifest}, nil
}

func (uc *IndexUseCase) build(ctx context.Context, p *ports.Provider, paths []string) (*Index, error) {
	start := time.Now()
	if err := os.MkdirAll(uc.storageDir, 0755); err != nil {
		return nil, err
	}

	store, err := uc.opener.Open(ctx, uc.storageDir)
	if err != nil {
		return nil, err
	}

	manifest := entities.IndexManifest{
		Backend:           uc.opener.Backend(),
		EmbeddingProvider: p.EmbeddingName,
		EmbeddingModel:    p.Embedder.Model(),
	}

	for _, path := range paths {
		doc, err := uc.loader.Load(ctx, path)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("loading %s: %w", filepath.Base(path), err)
		}

		stats, err := uc.ingest.Ingest(ctx, p.Embedder, store, doc)
		if err != nil {
			store.Close()
			return nil, err
		}
		if stats.Chunks == 0 {
			uc.logger.Warn().Str("document", doc.Name).Msg("Document has no extractable text")
		}
		if manifest.Dimension == 0 {
			manifest.Dimension = stats.Dimension
		}

		manifest.Documents = append(manifest.Documents, doc.Name)
		manifest.Chunks += stats.Chunks
		uc.logger.Debug().Str("document", doc.Name).Int("chunks", stats.Chunks).Msg("Document indexed")
	}

	if manifest.Chunks == 0 {
		store.Close()
		return nil, ErrNoText
	}

	manifest.BuiltAt = time.Now().UTC()
	if err := writeManifest(uc.storageDir, manifest); err != nil {
		store.Close()
		return nil, err
	}

	uc.logger.Info().
		Int("documents", len(manifest.Documents)).
		Int("chunks", manifest.Chunks).
		Str("backend", manifest.Backend).
		Str("elapsed", time.Since(start).Round(time.Millisecond).String()).
		Msg("Index built")

	return &Index{store: store, manifest: manifest}, nil
}

func readManifest(dir string) (entities.IndexManifest, error) {
	var m entities.IndexManifest
	data, err := os.ReadFile(filepath.Join(dir, manifestFile))
	if err != nil {
		return m, fmt.Errorf("reading manifest: %w", err)
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("decoding manifest: %w", err)
	}
	return m, nil
}

func writeManifest(dir string, m entities.IndexManifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, manifestFile), data, 0644)
}
