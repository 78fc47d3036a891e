package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/harrison/collabgen/internal/models"
)

// ConsoleLogger logs run progress to a writer with timestamps and thread safety.
// All output is prefixed with [HH:MM:SS] timestamps for tracking execution flow.
// Color output is automatically enabled for terminal output (os.Stdout/os.Stderr).
type ConsoleLogger struct {
	writer      io.Writer
	logLevel    string
	mutex       sync.Mutex
	colorOutput bool
}

var _ Logger = (*ConsoleLogger)(nil)

// NewConsoleLogger creates a ConsoleLogger that writes to the provided io.Writer.
// If writer is nil, messages are silently discarded.
// If logLevel is empty or invalid, defaults to "info".
func NewConsoleLogger(writer io.Writer, logLevel string) *ConsoleLogger {
	return &ConsoleLogger{
		writer:      writer,
		logLevel:    normalizeLogLevel(logLevel),
		colorOutput: isTerminal(writer),
	}
}

// isTerminal checks if the writer is a terminal that supports colors.
func isTerminal(w io.Writer) bool {
	if w == nil {
		return false
	}
	if w == os.Stdout || w == os.Stderr {
		// false when NO_COLOR is set or the stream is not a TTY
		return !color.NoColor
	}
	return false
}

// shouldLog returns true if messageLevel >= configured logLevel.
func (cl *ConsoleLogger) shouldLog(messageLevel string) bool {
	return logLevelToInt(messageLevel) >= logLevelToInt(cl.logLevel)
}

// LogTrace logs a trace-level message (most verbose).
func (cl *ConsoleLogger) LogTrace(message string) {
	cl.logWithLevel("TRACE", message)
}

// LogDebug logs a debug-level message.
func (cl *ConsoleLogger) LogDebug(message string) {
	cl.logWithLevel("DEBUG", message)
}

// LogInfo logs an info-level message.
// Format: "[HH:MM:SS] [INFO] <message>"
func (cl *ConsoleLogger) LogInfo(message string) {
	cl.logWithLevel("INFO", message)
}

// LogWarn logs a warning-level message.
func (cl *ConsoleLogger) LogWarn(message string) {
	cl.logWithLevel("WARN", message)
}

// LogError logs an error-level message.
func (cl *ConsoleLogger) LogError(message string) {
	cl.logWithLevel("ERROR", message)
}

func (cl *ConsoleLogger) logWithLevel(level string, message string) {
	if cl.writer == nil {
		return
	}
	if !cl.shouldLog(strings.ToLower(level)) {
		return
	}

	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	ts := timestamp()
	var formatted string
	if cl.colorOutput {
		formatted = fmt.Sprintf("[%s] [%s] %s\n", ts, colorLevel(level), message)
	} else {
		formatted = fmt.Sprintf("[%s] [%s] %s\n", ts, level, message)
	}
	cl.writer.Write([]byte(formatted))
}

func colorLevel(level string) string {
	switch level {
	case "TRACE":
		return color.New(color.FgHiBlack).Sprint(level)
	case "DEBUG":
		return color.New(color.FgCyan).Sprint(level)
	case "INFO":
		return color.New(color.FgBlue).Sprint(level)
	case "WARN":
		return color.New(color.FgYellow).Sprint(level)
	case "ERROR":
		return color.New(color.FgRed).Sprint(level)
	}
	return level
}

// LogStageResult logs how one stage of a run resolved at INFO level.
// Format: "[HH:MM:SS] [research] completed in 12.3s"
func (cl *ConsoleLogger) LogStageResult(runID string, status models.StageStatus, d time.Duration) {
	if cl.writer == nil || !cl.shouldLog("info") {
		return
	}

	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	state := string(status.State)
	if cl.colorOutput {
		state = stateColor(status.State).Sprint(state)
	}

	line := fmt.Sprintf("[%s] [%s] %s in %s", timestamp(), status.Name, state, formatDuration(d))
	if status.Error != "" {
		line += ": " + status.Error
	}
	fmt.Fprintf(cl.writer, "%s (run %s)\n", line, shortID(runID))
}

// LogSummary logs the aggregate outcome of a pipeline run.
func (cl *ConsoleLogger) LogSummary(result *models.PipelineResult) {
	if cl.writer == nil || !cl.shouldLog("info") {
		return
	}

	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	ts := timestamp()
	status := strings.ToUpper(string(result.Status))
	if cl.colorOutput {
		status = statusColor(result.Status).Sprint(status)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] === Pipeline Summary ===\n", ts)
	fmt.Fprintf(&sb, "[%s] Run: %s\n", ts, result.ID)
	fmt.Fprintf(&sb, "[%s] Status: %s (%d/%d stages completed)\n", ts, status, result.CompletedCount(), len(result.Stages))
	fmt.Fprintf(&sb, "[%s] Tokens: %d\n", ts, result.TokensConsumed)
	fmt.Fprintf(&sb, "[%s] Duration: %s\n", ts, formatDuration(result.Elapsed))
	for _, s := range result.Stages {
		if s.IsCompleted() {
			continue
		}
		fmt.Fprintf(&sb, "[%s]   - %s: %s (%s)\n", ts, s.Name, s.State, s.Error)
	}
	cl.writer.Write([]byte(sb.String()))
}

func stateColor(s models.StageState) *color.Color {
	switch s {
	case models.StateCompleted:
		return color.New(color.FgGreen)
	case models.StateFailed:
		return color.New(color.FgRed)
	default:
		return color.New(color.FgYellow)
	}
}

func statusColor(s models.OverallStatus) *color.Color {
	switch s {
	case models.StatusCompleted:
		return color.New(color.FgGreen, color.Bold)
	case models.StatusFailed:
		return color.New(color.FgRed, color.Bold)
	default:
		return color.New(color.FgYellow, color.Bold)
	}
}

// formatDuration formats a duration as "1.5s", "2m30s" or "1h2m".
func formatDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	case d < time.Hour:
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
