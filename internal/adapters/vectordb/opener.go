package vectordb

import (
	"context"
	"fmt"

	"github.com/0xcro3dile/neuroscholar/internal/domain/ports"
)

// Backend names, as written to the index manifest.
const (
	BackendSQLite  = "sqlite"
	BackendChromem = "chromem"
	BackendMemory  = "memory"
)

// Opener implements ports.VectorStoreOpener for one backend.
type Opener struct {
	backend string
}

// NewOpener returns the opener for backend. An empty name selects SQLite.
func NewOpener(backend string) (*Opener, error) {
	switch backend {
	case "":
		backend = BackendSQLite
	case BackendSQLite, BackendChromem, BackendMemory:
	default:
		return nil, fmt.Errorf("unknown vector store backend %q", backend)
	}
	return &Opener{backend: backend}, nil
}

// Backend returns the backend name.
func (o *Opener) Backend() string {
	return o.backend
}

// Open opens the store rooted at dir.
func (o *Opener) Open(ctx context.Context, dir string) (ports.VectorStore, error) {
	var (
		store ports.VectorStore
		err   error
	)
	switch o.backend {
	case BackendChromem:
		store, err = NewChromemStore(dir)
	case BackendMemory:
		store, err = NewMemoryStore(dir)
	default:
		store, err = NewSQLiteStore(dir)
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", o.backend, err)
	}
	return store, nil
}
