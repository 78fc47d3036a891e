package logger

import (
	"bytes"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/harrison/collabgen/internal/models"
)

// TestNewConsoleLogger verifies the constructor creates a ConsoleLogger with the provided writer.
func TestNewConsoleLogger(t *testing.T) {
	t.Run("with valid writer", func(t *testing.T) {
		buf := &bytes.Buffer{}
		logger := NewConsoleLogger(buf, "info")

		if logger.writer != buf {
			t.Error("writer not set correctly")
		}
		if logger.logLevel != "info" {
			t.Errorf("expected log level %q, got %q", "info", logger.logLevel)
		}
		if logger.colorOutput {
			t.Error("color output should be disabled for non-terminal writers")
		}
	})

	t.Run("with nil writer", func(t *testing.T) {
		logger := NewConsoleLogger(nil, "info")
		logger.LogInfo("dropped")
		logger.LogSummary(models.NewPipelineResult("x", time.Now()))
	})
}

func TestConsoleLogger_Format(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewConsoleLogger(buf, "info")

	logger.LogWarn("output failed validation")

	re := regexp.MustCompile(`^\[\d{2}:\d{2}:\d{2}\] \[WARN\] output failed validation\n$`)
	if !re.MatchString(buf.String()) {
		t.Errorf("unexpected format: %q", buf.String())
	}
}

func TestConsoleLogger_LogStageResult(t *testing.T) {
	tests := []struct {
		name   string
		status models.StageStatus
		want   []string
	}{
		{
			name:   "completed",
			status: models.Completed(models.StageResearch, "text"),
			want:   []string{"[research] completed in 1.5s", "(run 12345678)"},
		},
		{
			name:   "failed",
			status: models.Failed(models.StageMarketing, "stage timed out"),
			want:   []string{"[marketing] failed in 1.5s: stage timed out"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			NewConsoleLogger(buf, "info").LogStageResult("1234567890", tt.status, 1500*time.Millisecond)
			for _, w := range tt.want {
				if !strings.Contains(buf.String(), w) {
					t.Errorf("output %q missing %q", buf.String(), w)
				}
			}
		})
	}
}

func TestConsoleLogger_LogSummary(t *testing.T) {
	r := models.NewPipelineResult("run-42", time.Now())
	r.SetStage(models.Completed(models.StageResearch, "text"))
	r.SetStage(models.Failed(models.StageProduct, "stage timed out"))
	r.Status = models.StatusPartial
	r.TokensConsumed = 450
	r.Elapsed = 90 * time.Second

	buf := &bytes.Buffer{}
	NewConsoleLogger(buf, "info").LogSummary(r)
	out := buf.String()

	for _, w := range []string{
		"Run: run-42",
		"Status: PARTIAL (1/3 stages completed)",
		"Tokens: 450",
		"Duration: 1m30s",
		"product: failed (stage timed out)",
	} {
		if !strings.Contains(out, w) {
			t.Errorf("summary missing %q:\n%s", w, out)
		}
	}
	if strings.Contains(out, "research:") {
		t.Errorf("completed stages should not be listed:\n%s", out)
	}
}

func TestConsoleLogger_SummaryFilteredAtWarn(t *testing.T) {
	buf := &bytes.Buffer{}
	NewConsoleLogger(buf, "warn").LogSummary(models.NewPipelineResult("x", time.Now()))
	if buf.Len() != 0 {
		t.Errorf("expected no output at warn level, got %q", buf.String())
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{1500 * time.Millisecond, "1.5s"},
		{150 * time.Second, "2m30s"},
		{62 * time.Minute, "1h2m"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
