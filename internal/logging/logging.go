package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"failguard/internal/config"
)

var (
	fileWriter   io.WriteCloser
	fileWriterMu sync.Mutex
)

// Setup configures the package-level charmbracelet logger. When a log file is
// configured, output goes to stderr and a size-rotated file.
func Setup(cfg config.LoggingConfig) error {
	level := log.InfoLevel
	if cfg.Level != "" {
		parsed, err := log.ParseLevel(strings.ToLower(cfg.Level))
		if err != nil {
			return fmt.Errorf("logging: %w", err)
		}
		level = parsed
	}

	formatter, err := parseFormatter(cfg.Format)
	if err != nil {
		return err
	}

	var out io.Writer = os.Stderr
	if cfg.File != "" {
		writer := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    valueOr(cfg.MaxSizeMB, 10),
			MaxBackups: valueOr(cfg.MaxBackups, 3),
			Compress:   cfg.Compress,
		}
		swapFileWriter(writer)
		out = io.MultiWriter(os.Stderr, writer)
	} else {
		swapFileWriter(nil)
	}

	log.SetOutput(out)
	log.SetLevel(level)
	log.SetFormatter(formatter)
	log.SetReportTimestamp(true)
	return nil
}

// Close flushes and closes the rotating log file, if any.
func Close() error {
	fileWriterMu.Lock()
	defer fileWriterMu.Unlock()
	if fileWriter == nil {
		return nil
	}
	err := fileWriter.Close()
	fileWriter = nil
	return err
}

func swapFileWriter(next io.WriteCloser) {
	fileWriterMu.Lock()
	prev := fileWriter
	fileWriter = next
	fileWriterMu.Unlock()
	if prev != nil {
		_ = prev.Close()
	}
}

func parseFormatter(format string) (log.Formatter, error) {
	switch strings.ToLower(format) {
	case "", "text":
		return log.TextFormatter, nil
	case "json":
		return log.JSONFormatter, nil
	case "logfmt":
		return log.LogfmtFormatter, nil
	default:
		return log.TextFormatter, fmt.Errorf("logging: unknown format %q", format)
	}
}

func valueOr(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}
