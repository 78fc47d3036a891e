// Package logger provides leveled logging implementations for pipeline runs.
//
// Implementations are thread-safe and share the same level names:
// trace, debug, info, warn and error. Unknown levels behave as info.
package logger

import (
	"strings"
	"time"

	"github.com/harrison/collabgen/internal/models"
)

// Logger is the leveled message sink used throughout collabgen.
type Logger interface {
	LogTrace(message string)
	LogDebug(message string)
	LogInfo(message string)
	LogWarn(message string)
	LogError(message string)
}

// RunLogger is implemented by loggers that also render stage and run outcomes.
type RunLogger interface {
	Logger
	LogStageResult(runID string, status models.StageStatus, d time.Duration)
	LogSummary(result *models.PipelineResult)
}

// Log level constants for filtering
const (
	levelTrace int = 0
	levelDebug int = 1
	levelInfo  int = 2
	levelWarn  int = 3
	levelError int = 4
)

// ValidLevels lists accepted level names.
var ValidLevels = []string{"trace", "debug", "info", "warn", "error"}

// Discard returns a Logger that drops every message.
func Discard() Logger {
	return NewConsoleLogger(nil, "error")
}

// OrDiscard returns l, or Discard() when l is nil.
func OrDiscard(l Logger) Logger {
	if l == nil {
		return Discard()
	}
	return l
}

// normalizeLogLevel converts a log level string to lowercase and validates it.
// Returns "info" as default for empty or invalid levels.
func normalizeLogLevel(level string) string {
	normalized := strings.ToLower(strings.TrimSpace(level))
	switch normalized {
	case "trace", "debug", "info", "warn", "error":
		return normalized
	}
	return "info"
}

// logLevelToInt converts a log level string to its numeric value.
func logLevelToInt(level string) int {
	switch level {
	case "trace":
		return levelTrace
	case "debug":
		return levelDebug
	case "info":
		return levelInfo
	case "warn":
		return levelWarn
	case "error":
		return levelError
	default:
		return levelInfo
	}
}

// timestamp returns the current time formatted as "15:04:05" (HH:MM:SS).
func timestamp() string {
	return time.Now().Format("15:04:05")
}

// Multi fans every message out to each logger in order.
type Multi []Logger

var _ RunLogger = Multi(nil)

func (m Multi) LogTrace(message string) {
	for _, l := range m {
		l.LogTrace(message)
	}
}

func (m Multi) LogDebug(message string) {
	for _, l := range m {
		l.LogDebug(message)
	}
}

func (m Multi) LogInfo(message string) {
	for _, l := range m {
		l.LogInfo(message)
	}
}

func (m Multi) LogWarn(message string) {
	for _, l := range m {
		l.LogWarn(message)
	}
}

func (m Multi) LogError(message string) {
	for _, l := range m {
		l.LogError(message)
	}
}

// LogStageResult forwards to every member that is a RunLogger.
func (m Multi) LogStageResult(runID string, status models.StageStatus, d time.Duration) {
	for _, l := range m {
		if rl, ok := l.(RunLogger); ok {
			rl.LogStageResult(runID, status, d)
		}
	}
}

// LogSummary forwards to every member that is a RunLogger.
func (m Multi) LogSummary(result *models.PipelineResult) {
	for _, l := range m {
		if rl, ok := l.(RunLogger); ok {
			rl.LogSummary(result)
		}
	}
}
