// Command neuroscholar is a personal research assistant that answers
// questions over uploaded PDF and text documents.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/ternarybob/arbor"

	"github.com/0xcro3dile/neuroscholar/internal/infrastructure/config"
	"github.com/0xcro3dile/neuroscholar/internal/infrastructure/logging"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// configPaths allows multiple -config flags.
type configPaths []string

func (c *configPaths) String() string {
	return fmt.Sprintf("%v", *c)
}

func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

var (
	configFiles configPaths
	serverHost  = flag.String("host", "", "Server host (overrides config)")
	serverPort  = flag.Int("port", 0, "Server port (overrides config)")
	dataDir     = flag.String("data", "", "Document directory (overrides config)")
	storageDir  = flag.String("storage", "", "Index directory (overrides config)")
	logLevel    = flag.String("log-level", "", "Log level (overrides config)")
	showVersion = flag.Bool("version", false, "Print version information")
)

func init() {
	flag.Var(&configFiles, "config", "Configuration file path (can be repeated, later files override earlier ones)")
	flag.Usage = usage
}

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), `Usage: neuroscholar [flags] [command]

Commands:
  serve              Run the web UI (default)
  index [-rebuild]   Load or build the index; -rebuild discards the old one
  add FILE...        Copy files into the library and rebuild the index
  clear              Delete every document and the index
  status             Print the library status
  chat               Chat in the terminal

Flags:
`)
	flag.PrintDefaults()
}

func main() {
	_ = godotenv.Load()
	flag.Parse()

	if *showVersion {
		fmt.Printf("NeuroScholar version %s\n", version)
		return
	}

	// Load order: defaults -> files -> env -> flags.
	if len(configFiles) == 0 {
		configFiles = append(configFiles, config.DefaultFile)
	}
	cfg, err := config.LoadFromFiles(configFiles...)
	if err != nil {
		arbor.NewLogger().Fatal().Strs("paths", configFiles).Err(err).Msg("Failed to load configuration")
		os.Exit(1)
	}
	config.ApplyFlagOverrides(cfg, config.FlagOverrides{
		Host:       *serverHost,
		Port:       *serverPort,
		DataDir:    *dataDir,
		StorageDir: *storageDir,
		LogLevel:   *logLevel,
	})
	if err := cfg.Validate(); err != nil {
		arbor.NewLogger().Fatal().Err(err).Msg("Invalid configuration")
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging)
	logger.Debug().
		Strs("config_files", configFiles).
		Str("llm", cfg.LLM.Provider).
		Str("embedding", cfg.Embedding.Provider).
		Str("backend", cfg.Storage.Backend).
		Str("data_dir", cfg.Storage.DataDir).
		Str("storage_dir", cfg.Storage.StorageDir).
		Msg("Configuration loaded")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize application")
		os.Exit(1)
	}
	defer a.Close()

	cmd, args := "serve", []string(nil)
	if flag.NArg() > 0 {
		cmd, args = flag.Arg(0), flag.Args()[1:]
	}

	switch cmd {
	case "serve":
		err = runServe(ctx, a)
	case "index":
		err = runIndex(ctx, a, args)
	case "add":
		err = runAdd(ctx, a, args)
	case "clear":
		err = runClear(a)
	case "status":
		err = runStatus(a)
	case "chat":
		err = runChat(ctx, a)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		logger.Error().Str("command", cmd).Err(err).Msg("Command failed")
		a.Close()
		os.Exit(1)
	}
}
