package trace

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/open-scum/peerstation/internal/config"
)

func TestPrintfWritesToConfiguredFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "peerstation.log")

	logger := New(config.LoggingConfig{
		File:      path,
		MaxSizeMB: 1,
	})
	logger.Printf("Channel %02d", 17)
	logger.Printf("+%02d %02d %02d %02d", 17, 22, 15, 5)
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read trace log: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, "Channel 17") {
		t.Errorf("trace log missing channel line: %q", content)
	}
	if !strings.Contains(content, "+17 22 15 05") {
		t.Errorf("trace log missing code line: %q", content)
	}
}
