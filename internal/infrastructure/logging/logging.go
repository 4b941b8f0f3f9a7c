// Package logging builds the arbor logger from configuration.
package logging

import (
	"os"
	"path/filepath"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/arbor/models"

	"github.com/0xcro3dile/neuroscholar/internal/infrastructure/config"
)

func consoleWriter() models.WriterConfiguration {
	return models.WriterConfiguration{
		Type:             models.LogWriterTypeConsole,
		TimeFormat:       "15:04:05",
		TextOutput:       true,
		DisableTimestamp: false,
	}
}

// New returns a logger writing to the configured outputs. Console output
// is used when no output is configured or the log file cannot be created.
func New(cfg config.LoggingConfig) arbor.ILogger {
	logger := arbor.NewLogger()

	var console, file bool
	for _, output := range cfg.Output {
		switch output {
		case "console", "stdout":
			console = true
		case "file":
			file = true
		}
	}

	if file && cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
			console = true
		} else {
			logger = logger.WithFileWriter(models.WriterConfiguration{
				Type:             models.LogWriterTypeFile,
				FileName:         cfg.File,
				TimeFormat:       "15:04:05",
				MaxSize:          10 * 1024 * 1024,
				MaxBackups:       3,
				TextOutput:       true,
				DisableTimestamp: false,
			})
		}
	} else if !console {
		console = true
	}

	if console {
		logger = logger.WithConsoleWriter(consoleWriter())
	}

	return logger.WithLevelFromString(cfg.Level)
}
