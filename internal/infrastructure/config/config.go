// Package config loads NeuroScholar settings with priority:
// defaults -> config files (TOML or YAML) -> environment -> CLI flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// DefaultFile is the config file read when no -config flag is given.
const DefaultFile = "neuroscholar.toml"

// Config is the application configuration.
type Config struct {
	Server    ServerConfig    `toml:"server" yaml:"server"`
	Storage   StorageConfig   `toml:"storage" yaml:"storage"`
	LLM       LLMConfig       `toml:"llm" yaml:"llm"`
	Embedding EmbeddingConfig `toml:"embedding" yaml:"embedding"`
	Chunking  ChunkingConfig  `toml:"chunking" yaml:"chunking"`
	Chat      ChatConfig      `toml:"chat" yaml:"chat"`
	Logging   LoggingConfig   `toml:"logging" yaml:"logging"`
	Watcher   WatcherConfig   `toml:"watcher" yaml:"watcher"`
}

type ServerConfig struct {
	Host        string `toml:"host" yaml:"host"`
	Port        int    `toml:"port" yaml:"port"`
	MaxUploadMB int    `toml:"max_upload_mb" yaml:"max_upload_mb"`
}

type StorageConfig struct {
	DataDir    string `toml:"data_dir" yaml:"data_dir"`       // Uploaded documents
	StorageDir string `toml:"storage_dir" yaml:"storage_dir"` // Persisted vector index
	Backend    string `toml:"backend" yaml:"backend"`         // sqlite, chromem or memory
}

// LLMConfig selects the chat backend. APIKey is a deployment secret; the
// web UI key overrides it per session.
type LLMConfig struct {
	Provider      string  `toml:"provider" yaml:"provider"` // gemini, moonshot, openai, anthropic, ollama
	Model         string  `toml:"model" yaml:"model"`
	BaseURL       string  `toml:"base_url" yaml:"base_url"`
	APIKey        string  `toml:"api_key" yaml:"api_key"`
	Temperature   float64 `toml:"temperature" yaml:"temperature"`
	MaxTokens     int     `toml:"max_tokens" yaml:"max_tokens"`
	ContextWindow int     `toml:"context_window" yaml:"context_window"`
}

// EmbeddingConfig selects the embedding backend. An empty APIKey reuses
// the LLM key when both use the same provider.
type EmbeddingConfig struct {
	Provider          string  `toml:"provider" yaml:"provider"` // gemini, openai, ollama
	Model             string  `toml:"model" yaml:"model"`
	BaseURL           string  `toml:"base_url" yaml:"base_url"`
	APIKey            string  `toml:"api_key" yaml:"api_key"`
	Dimensions        int     `toml:"dimensions" yaml:"dimensions"`
	RequestsPerSecond float64 `toml:"requests_per_second" yaml:"requests_per_second"`
	Burst             int     `toml:"burst" yaml:"burst"`
}

type ChunkingConfig struct {
	Size      int    `toml:"size" yaml:"size"`
	Overlap   int    `toml:"overlap" yaml:"overlap"`
	Tokenizer string `toml:"tokenizer" yaml:"tokenizer"` // "words" or a tiktoken encoding
}

type ChatConfig struct {
	TopK           int    `toml:"top_k" yaml:"top_k"`
	MaxHistory     int    `toml:"max_history" yaml:"max_history"` // 0 keeps the whole conversation
	SystemPrompt   string `toml:"system_prompt" yaml:"system_prompt"`
	WelcomeMessage string `toml:"welcome_message" yaml:"welcome_message"`
}

type LoggingConfig struct {
	Level  string   `toml:"level" yaml:"level"`
	Output []string `toml:"output" yaml:"output"` // "console", "file"
	File   string   `toml:"file" yaml:"file"`
}

type WatcherConfig struct {
	Enabled bool `toml:"enabled" yaml:"enabled"`
}

// ProviderConfig is the part of the configuration that selects backends.
type ProviderConfig struct {
	LLM       LLMConfig
	Embedding EmbeddingConfig
}

// Providers returns the backend selection.
func (c *Config) Providers() ProviderConfig {
	return ProviderConfig{LLM: c.LLM, Embedding: c.Embedding}
}

// NewDefaultConfig returns the built-in defaults.
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "localhost",
			Port:        8501,
			MaxUploadMB: 32,
		},
		Storage: StorageConfig{
			DataDir:    "./data",
			StorageDir: "./storage",
			Backend:    "sqlite",
		},
		LLM: LLMConfig{
			Provider:      "gemini",
			Temperature:   0.3,
			MaxTokens:     4096,
			ContextWindow: 128000,
		},
		Embedding: EmbeddingConfig{
			Provider:          "gemini",
			RequestsPerSecond: 5,
			Burst:             5,
		},
		Chunking: ChunkingConfig{
			Size:      1024,
			Overlap:   200,
			Tokenizer: "words",
		},
		Chat: ChatConfig{
			TopK: 5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"console"},
			File:   "logs/neuroscholar.log",
		},
		Watcher: WatcherConfig{
			Enabled: true,
		},
	}
}

// LoadFromFiles loads defaults, then each file in order, then environment
// overrides. Later files override earlier ones. A missing DefaultFile is
// skipped; any other missing file is an error.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) && path == DefaultFile {
				continue
			}
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := unmarshal(path, data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// unmarshal decodes YAML for .yaml and .yml files and TOML otherwise.
func unmarshal(path string, data []byte, config *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, config)
	default:
		return toml.Unmarshal(data, config)
	}
}

// applyEnvOverrides applies NEUROSCHOLAR_* environment variables.
func applyEnvOverrides(config *Config) {
	if host := os.Getenv("NEUROSCHOLAR_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if port := os.Getenv("NEUROSCHOLAR_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if dir := os.Getenv("NEUROSCHOLAR_DATA_DIR"); dir != "" {
		config.Storage.DataDir = dir
	}
	if dir := os.Getenv("NEUROSCHOLAR_STORAGE_DIR"); dir != "" {
		config.Storage.StorageDir = dir
	}
	if backend := os.Getenv("NEUROSCHOLAR_STORAGE_BACKEND"); backend != "" {
		config.Storage.Backend = backend
	}

	if p := os.Getenv("NEUROSCHOLAR_LLM_PROVIDER"); p != "" {
		config.LLM.Provider = p
	}
	if m := os.Getenv("NEUROSCHOLAR_LLM_MODEL"); m != "" {
		config.LLM.Model = m
	}
	if u := os.Getenv("NEUROSCHOLAR_LLM_BASE_URL"); u != "" {
		config.LLM.BaseURL = u
	}
	if k := os.Getenv("NEUROSCHOLAR_LLM_API_KEY"); k != "" {
		config.LLM.APIKey = k
	}

	if p := os.Getenv("NEUROSCHOLAR_EMBEDDING_PROVIDER"); p != "" {
		config.Embedding.Provider = p
	}
	if m := os.Getenv("NEUROSCHOLAR_EMBEDDING_MODEL"); m != "" {
		config.Embedding.Model = m
	}
	if k := os.Getenv("NEUROSCHOLAR_EMBEDDING_API_KEY"); k != "" {
		config.Embedding.APIKey = k
	}

	if level := os.Getenv("NEUROSCHOLAR_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("NEUROSCHOLAR_LOG_OUTPUT"); output != "" {
		var outputs []string
		for _, o := range strings.Split(output, ",") {
			if o = strings.TrimSpace(o); o != "" {
				outputs = append(outputs, o)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}
}

// FlagOverrides holds command-line values. Zero values leave the config
// unchanged.
type FlagOverrides struct {
	Host       string
	Port       int
	DataDir    string
	StorageDir string
	LogLevel   string
}

// ApplyFlagOverrides applies command-line flags, the highest priority.
func ApplyFlagOverrides(config *Config, f FlagOverrides) {
	if f.Host != "" {
		config.Server.Host = f.Host
	}
	if f.Port > 0 {
		config.Server.Port = f.Port
	}
	if f.DataDir != "" {
		config.Storage.DataDir = f.DataDir
	}
	if f.StorageDir != "" {
		config.Storage.StorageDir = f.StorageDir
	}
	if f.LogLevel != "" {
		config.Logging.Level = f.LogLevel
	}
}

var (
	llmProviders       = []string{"gemini", "moonshot", "openai", "anthropic", "ollama"}
	embeddingProviders = []string{"gemini", "openai", "ollama"}
	storageBackends    = []string{"sqlite", "chromem", "memory"}
)

// Validate rejects settings no component can run with.
func (c *Config) Validate() error {
	var errs []error

	if !contains(llmProviders, c.LLM.Provider) {
		errs = append(errs, fmt.Errorf("llm.provider %q must be one of %s", c.LLM.Provider, strings.Join(llmProviders, ", ")))
	}
	if !contains(embeddingProviders, c.Embedding.Provider) {
		errs = append(errs, fmt.Errorf("embedding.provider %q must be one of %s", c.Embedding.Provider, strings.Join(embeddingProviders, ", ")))
	}
	if !contains(storageBackends, c.Storage.Backend) {
		errs = append(errs, fmt.Errorf("storage.backend %q must be one of %s", c.Storage.Backend, strings.Join(storageBackends, ", ")))
	}
	if c.Storage.DataDir == "" || c.Storage.StorageDir == "" {
		errs = append(errs, errors.New("storage.data_dir and storage.storage_dir are required"))
	}
	if c.Chunking.Size <= 0 {
		errs = append(errs, fmt.Errorf("chunking.size must be positive, got %d", c.Chunking.Size))
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.Size {
		errs = append(errs, fmt.Errorf("chunking.overlap must be in [0, size), got %d", c.Chunking.Overlap))
	}
	if c.Chat.TopK <= 0 {
		errs = append(errs, fmt.Errorf("chat.top_k must be positive, got %d", c.Chat.TopK))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}

	return errors.Join(errs...)
}

// keyEnv lists the conventional key variables per provider.
var keyEnv = map[string][]string{
	"gemini":    {"GOOGLE_API_KEY", "GEMINI_API_KEY"},
	"moonshot":  {"MOONSHOT_API_KEY"},
	"openai":    {"OPENAI_API_KEY"},
	"anthropic": {"ANTHROPIC_API_KEY"},
}

// ResolveAPIKey returns the deployment key for provider. Resolution order:
// configured value (which already includes NEUROSCHOLAR_LLM_API_KEY) ->
// the provider's conventional environment variables. An empty result means
// the key must come from the UI.
func ResolveAPIKey(provider, configured string) string {
	if configured != "" {
		return configured
	}
	for _, name := range keyEnv[provider] {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
