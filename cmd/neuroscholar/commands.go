package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/ternarybob/banner"

	"github.com/0xcro3dile/neuroscholar/internal/adapters/filewatcher"
	"github.com/0xcro3dile/neuroscholar/internal/domain/usecases"
	"github.com/0xcro3dile/neuroscholar/internal/infrastructure/http"
	"github.com/0xcro3dile/neuroscholar/internal/infrastructure/tui"
)

func runServe(ctx context.Context, a *app) error {
	banner.PrintSimple("NeuroScholar", version)

	if a.cfg.Watcher.Enabled {
		if err := startWatcher(ctx, a); err != nil {
			a.logger.Warn().Err(err).Msg("File watcher disabled")
		}
	}

	srv, err := http.NewServer(http.Options{
		Addr:           fmt.Sprintf("%s:%d", a.cfg.Server.Host, a.cfg.Server.Port),
		Library:        a.library,
		Chat:           a.chat,
		NewProvider:    a.newProvider,
		KeyFromConfig:  a.keyFromConfig(),
		DeploymentKey:  a.deploymentKey,
		Welcome:        a.welcome(),
		MaxUploadBytes: int64(a.cfg.Server.MaxUploadMB) << 20,
		Logger:         a.logger,
	})
	if err != nil {
		return err
	}

	a.logger.Info().
		Str("url", fmt.Sprintf("http://%s:%d", a.cfg.Server.Host, a.cfg.Server.Port)).
		Bool("key_from_config", a.keyFromConfig()).
		Msg("Server ready - Press Ctrl+C to stop")

	return srv.Start(ctx)
}

// startWatcher feeds data directory changes into the library status.
func startWatcher(ctx context.Context, a *app) error {
	w, err := filewatcher.NewFSNotifyWatcher(a.loader.SupportedExtensions(), a.logger)
	if err != nil {
		return err
	}
	events, err := w.Watch(ctx, a.cfg.Storage.DataDir)
	if err != nil {
		w.Stop()
		return err
	}

	go func() {
		defer w.Stop()
		for ev := range events {
			a.library.MarkChanged(ev)
		}
	}()
	return nil
}

func runIndex(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("index", flag.ContinueOnError)
	rebuild := fs.Bool("rebuild", false, "Discard the persisted index and build a new one")
	if err := fs.Parse(args); err != nil {
		return err
	}

	p, err := a.deploymentProvider(ctx)
	if err != nil {
		return err
	}

	start := time.Now()
	var res usecases.IndexResult
	if *rebuild {
		res = a.library.Rebuild(ctx, p)
	} else {
		res = a.library.Open(ctx, p)
	}

	switch res.State {
	case usecases.IndexEmpty:
		fmt.Printf("Nothing to index: add PDF or TXT files to %s\n", a.cfg.Storage.DataDir)
		return nil
	case usecases.IndexFailed:
		return res.Err
	}

	m := res.Index.Manifest()
	fmt.Printf("Index %s: %d documents, %d chunks (%s)\n", res.State, len(m.Documents), m.Chunks, time.Since(start).Round(time.Millisecond))
	return nil
}

func runAdd(ctx context.Context, a *app, paths []string) error {
	if len(paths) == 0 {
		return usecases.ErrNoUploads
	}
	p, err := a.deploymentProvider(ctx)
	if err != nil {
		return err
	}

	uploads := make([]usecases.Upload, 0, len(paths))
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		uploads = append(uploads, usecases.Upload{Name: filepath.Base(path), Body: f})
	}

	report, err := a.library.Process(ctx, p, uploads)
	if err != nil {
		return err
	}
	fmt.Printf("Processed %d documents, %d chunks\n", len(report.Files), report.Chunks)
	return nil
}

func runClear(a *app) error {
	if err := a.library.Clear(); err != nil {
		return err
	}
	fmt.Println("All documents cleared")
	return nil
}

func runStatus(a *app) error {
	st, err := a.library.Status()
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(st)
}

func runChat(ctx context.Context, a *app) error {
	p, err := a.deploymentProvider(ctx)
	if err != nil {
		return err
	}

	st, err := a.library.Status()
	if err != nil {
		return err
	}
	if len(st.Documents) == 0 && !st.Indexed {
		return tui.ErrEmptyLibrary
	}

	session := &tui.Session{
		Library:      a.library,
		Chat:         a.chat,
		Conversation: usecases.NewConversation(a.welcome()),
		Provider:     p,
	}
	summary := fmt.Sprintf("%d documents in %s, %s via %s", len(st.Documents), a.cfg.Storage.DataDir, p.LLM.Model(), p.Name)

	_, err = tea.NewProgram(tui.New(ctx, session, a.welcome(), summary), tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	return err
}
