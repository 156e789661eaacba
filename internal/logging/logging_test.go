package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"

	"failguard/internal/config"
)

func TestSetupWritesToRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "failguard.log")
	t.Cleanup(func() {
		_ = Close()
		log.SetOutput(os.Stderr)
		log.SetLevel(log.InfoLevel)
		log.SetFormatter(log.TextFormatter)
	})

	if err := Setup(config.LoggingConfig{Level: "debug", Format: "logfmt", File: path}); err != nil {
		t.Fatalf("Setup returned error: %v", err)
	}
	if log.GetLevel() != log.DebugLevel {
		t.Fatalf("level = %s, want debug", log.GetLevel())
	}

	log.Info("ban applied", "address", "203.0.113.7")
	if err := Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "address=203.0.113.7") {
		t.Fatalf("log file missing entry, got %q", string(data))
	}
}

func TestSetupRejectsUnknownValues(t *testing.T) {
	t.Cleanup(func() {
		log.SetLevel(log.InfoLevel)
		log.SetFormatter(log.TextFormatter)
	})

	if err := Setup(config.LoggingConfig{Level: "loud"}); err == nil {
		t.Fatal("expected error for unknown level")
	}
	if err := Setup(config.LoggingConfig{Format: "xml"}); err == nil {
		t.Fatal("expected error for unknown format")
	}
}
