package main

import (
	"context"
	"errors"

	"github.com/ternarybob/arbor"

	"github.com/0xcro3dile/neuroscholar/internal/adapters/chunker"
	"github.com/0xcro3dile/neuroscholar/internal/adapters/filestore"
	"github.com/0xcro3dile/neuroscholar/internal/adapters/loader"
	"github.com/0xcro3dile/neuroscholar/internal/adapters/parser"
	"github.com/0xcro3dile/neuroscholar/internal/adapters/provider"
	"github.com/0xcro3dile/neuroscholar/internal/adapters/vectordb"
	"github.com/0xcro3dile/neuroscholar/internal/domain/ports"
	"github.com/0xcro3dile/neuroscholar/internal/domain/usecases"
	"github.com/0xcro3dile/neuroscholar/internal/infrastructure/config"
)

var errNoDeploymentKey = errors.New("no API key configured: set llm.api_key, NEUROSCHOLAR_LLM_API_KEY or the provider's key variable")

// app holds the wired components shared by every command.
type app struct {
	cfg     *config.Config
	logger  arbor.ILogger
	loader  *loader.MultiLoader
	library *usecases.Library
	chat    *usecases.ChatUseCase

	// deploymentKey is the key from configuration or environment.
	deploymentKey string
}

func newApp(cfg *config.Config, logger arbor.ILogger) (*app, error) {
	counter, err := chunker.NewCounter(cfg.Chunking.Tokenizer)
	if err != nil {
		return nil, err
	}
	opener, err := vectordb.NewOpener(cfg.Storage.Backend)
	if err != nil {
		return nil, err
	}

	files := filestore.NewLocalStore(cfg.Storage.DataDir)
	docs := loader.NewMultiLoader(parser.NewPDFParser())
	ingest := usecases.NewIngestUseCase(chunker.NewSentenceChunker(cfg.Chunking.Size, cfg.Chunking.Overlap, counter))
	indexer := usecases.NewIndexUseCase(files, docs, opener, ingest, cfg.Storage.StorageDir, logger)

	return &app{
		cfg:     cfg,
		logger:  logger,
		loader:  docs,
		library: usecases.NewLibrary(files, indexer, logger),
		chat: usecases.NewChatUseCase(usecases.ChatOptions{
			SystemPrompt: cfg.Chat.SystemPrompt,
			TopK:         cfg.Chat.TopK,
			MaxHistory:   cfg.Chat.MaxHistory,
		}, logger),
		deploymentKey: config.ResolveAPIKey(cfg.LLM.Provider, cfg.LLM.APIKey),
	}, nil
}

// newProvider builds a provider for key.
func (a *app) newProvider(ctx context.Context, key string) (*ports.Provider, error) {
	return provider.New(ctx, a.cfg.Providers(), key, a.logger)
}

// keyFromConfig reports whether no key has to be entered by the user.
func (a *app) keyFromConfig() bool {
	return a.deploymentKey != "" || !provider.NeedsKey(a.cfg.LLM.Provider)
}

// deploymentProvider is the provider for the command-line tools, which
// have no way to ask for a key.
func (a *app) deploymentProvider(ctx context.Context) (*ports.Provider, error) {
	if !a.keyFromConfig() {
		return nil, errNoDeploymentKey
	}
	return a.newProvider(ctx, a.deploymentKey)
}

func (a *app) welcome() string {
	if a.cfg.Chat.WelcomeMessage != "" {
		return a.cfg.Chat.WelcomeMessage
	}
	return usecases.DefaultWelcomeMessage
}

func (a *app) Close() error {
	return a.library.Close()
}
