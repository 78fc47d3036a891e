package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/harrison/collabgen/internal/models"
)

// TestNewFileLogger verifies the log directory, run file and latest.log symlink
func TestNewFileLogger(t *testing.T) {
	logDir := filepath.Join(t.TempDir(), "logs")

	logger, err := NewFileLogger(logDir, "info")
	if err != nil {
		t.Fatalf("NewFileLogger() error = %v", err)
	}
	defer logger.Close()

	if _, err := os.Stat(filepath.Join(logDir, "runs")); err != nil {
		t.Errorf("runs directory missing: %v", err)
	}
	if !strings.HasPrefix(filepath.Base(logger.Path()), "run-") {
		t.Errorf("Path() = %q, want run-*.log", logger.Path())
	}

	target, err := os.Readlink(filepath.Join(logDir, "latest.log"))
	if err != nil {
		t.Fatalf("Readlink(latest.log) error = %v", err)
	}
	if target != filepath.Base(logger.Path()) {
		t.Errorf("latest.log -> %q, want %q", target, filepath.Base(logger.Path()))
	}
}

func TestFileLogger_LevelFiltering(t *testing.T) {
	logger, err := NewFileLogger(t.TempDir(), "warn")
	if err != nil {
		t.Fatalf("NewFileLogger() error = %v", err)
	}

	logger.LogInfo("info message")
	logger.LogWarn("warn message")
	logger.LogError("error message")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(logger.Path())
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	content := string(data)

	if strings.Contains(content, "info message") {
		t.Error("info message should be filtered at warn level")
	}
	if !strings.Contains(content, "[WARN] warn message") {
		t.Errorf("missing warn message in %q", content)
	}
	if !strings.Contains(content, "[ERROR] error message") {
		t.Errorf("missing error message in %q", content)
	}
}

func TestFileLogger_LogSummaryWritesRunDetail(t *testing.T) {
	logDir := t.TempDir()
	logger, err := NewFileLogger(logDir, "info")
	if err != nil {
		t.Fatalf("NewFileLogger() error = %v", err)
	}
	defer logger.Close()

	r := models.NewPipelineResult("abc", time.Now())
	r.SetStage(models.Completed(models.StageResearch, "research body"))
	r.SetStage(models.Failed(models.StageProduct, "stage timed out"))
	r.Status = models.StatusPartial

	logger.LogStageResult(r.ID, models.Completed(models.StageResearch, "x"), time.Second)
	logger.LogSummary(r)

	detail, err := os.ReadFile(filepath.Join(logDir, "runs", "run-abc.log"))
	if err != nil {
		t.Fatalf("run detail missing: %v", err)
	}
	for _, w := range []string{"=== Run abc ===", "Status: partial", "--- product: failed ---", "Error: stage timed out", "Output: 13 chars"} {
		if !strings.Contains(string(detail), w) {
			t.Errorf("run detail missing %q:\n%s", w, detail)
		}
	}

	main, _ := os.ReadFile(logger.Path())
	if !strings.Contains(string(main), "run abc finished: partial") {
		t.Errorf("run log missing summary line:\n%s", main)
	}
	if !strings.Contains(string(main), "[research] completed") {
		t.Errorf("run log missing stage line:\n%s", main)
	}
}
