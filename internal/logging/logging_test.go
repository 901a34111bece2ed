package logging

import (
	"fmt"
	"strings"
	"testing"

	"github.com/codebuildervaibhav/chunked-transcription/internal/config"
)

func TestLogBufferKeepsLastLines(t *testing.T) {
	lb := NewLogBuffer(3)
	for i := 0; i < 5; i++ {
		fmt.Fprintf(lb, "line %d\n", i)
	}

	logs := lb.GetLogs()
	if len(logs) != 3 {
		t.Fatalf("Expected 3 lines, got %d", len(logs))
	}
	if logs[0] != "line 2\n" || logs[2] != "line 4\n" {
		t.Errorf("Unexpected buffer contents: %q", logs)
	}
}

func TestNewWritesToExtraWriters(t *testing.T) {
	lb := NewLogBuffer(10)
	logger := New(config.LoggingConfig{Level: "warn", Format: "text", Output: "stderr"}, lb)

	logger.Info("dropped")
	logger.Error("Chunk 2 failed", "status", 500)

	logs := lb.GetLogs()
	if len(logs) != 1 {
		t.Fatalf("Expected only the error record, got %d: %q", len(logs), logs)
	}
	if !strings.Contains(logs[0], "level=ERROR") || !strings.Contains(logs[0], "status=500") {
		t.Errorf("Unexpected record: %s", logs[0])
	}
}
