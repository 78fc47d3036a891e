package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/harrison/collabgen/internal/models"
)

// FileLogger logs run events to files in the configured log directory.
// It creates a timestamped log file per process invocation, a detailed file
// per pipeline run under runs/, and keeps a latest.log symlink pointing to
// the most recent invocation log.
type FileLogger struct {
	logDir   string
	runLog   *os.File
	runFile  string
	runsDir  string
	logLevel string
	mu       sync.Mutex
}

var _ Logger = (*FileLogger)(nil)

// NewFileLogger creates a FileLogger writing to logDir at level logLevel.
// The directory is created if it doesn't exist.
func NewFileLogger(logDir string, logLevel string) (*FileLogger, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	runsDir := filepath.Join(logDir, "runs")
	if err := os.MkdirAll(runsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create runs directory: %w", err)
	}

	// run-YYYYMMDD-HHMMSS.log
	stamp := time.Now().Format("20060102-150405")
	runFile := filepath.Join(logDir, fmt.Sprintf("run-%s.log", stamp))

	file, err := os.OpenFile(runFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create run log file: %w", err)
	}

	symlinkPath := filepath.Join(logDir, "latest.log")
	if _, err := os.Lstat(symlinkPath); err == nil {
		if err := os.Remove(symlinkPath); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to remove old symlink: %w", err)
		}
	}
	if err := os.Symlink(filepath.Base(runFile), symlinkPath); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to create symlink: %w", err)
	}

	fl := &FileLogger{
		logDir:   logDir,
		runLog:   file,
		runFile:  runFile,
		runsDir:  runsDir,
		logLevel: normalizeLogLevel(logLevel),
	}

	fl.writeRunLog("=== collabgen log ===\n")
	fl.writeRunLog(fmt.Sprintf("Started at: %s\n\n", time.Now().Format(time.RFC3339)))

	return fl, nil
}

// Path returns the file this logger appends to.
func (fl *FileLogger) Path() string {
	return fl.runFile
}

func (fl *FileLogger) shouldLog(messageLevel string) bool {
	return logLevelToInt(messageLevel) >= logLevelToInt(fl.logLevel)
}

func (fl *FileLogger) LogTrace(message string) { fl.logWithLevel("TRACE", message) }
func (fl *FileLogger) LogDebug(message string) { fl.logWithLevel("DEBUG", message) }
func (fl *FileLogger) LogInfo(message string)  { fl.logWithLevel("INFO", message) }
func (fl *FileLogger) LogWarn(message string)  { fl.logWithLevel("WARN", message) }
func (fl *FileLogger) LogError(message string) { fl.logWithLevel("ERROR", message) }

func (fl *FileLogger) logWithLevel(level string, message string) {
	if !fl.shouldLog(strings.ToLower(level)) {
		return
	}
	fl.writeRunLog(fmt.Sprintf("[%s] [%s] %s\n", timestamp(), level, message))
}

// LogStageResult appends one stage resolution to the run log.
func (fl *FileLogger) LogStageResult(runID string, status models.StageStatus, d time.Duration) {
	if !fl.shouldLog("info") {
		return
	}
	line := fmt.Sprintf("[%s] [%s] %s in %s (run %s)", timestamp(), status.Name, status.State, formatDuration(d), runID)
	if status.Error != "" {
		line += ": " + status.Error
	}
	fl.writeRunLog(line + "\n")
}

// LogSummary appends the aggregate outcome to the run log and writes a
// detailed per-run file to runs/run-<id>.log.
func (fl *FileLogger) LogSummary(result *models.PipelineResult) {
	if fl.shouldLog("info") {
		fl.writeRunLog(fmt.Sprintf("[%s] run %s finished: %s (%d/%d stages, %d tokens, %s)\n",
			timestamp(), result.ID, result.Status, result.CompletedCount(), len(result.Stages),
			result.TokensConsumed, formatDuration(result.Elapsed)))
	}
	if err := fl.LogRunDetail(result); err != nil {
		fl.logWithLevel("ERROR", err.Error())
	}
}

// LogRunDetail writes every stage status of result to its own file.
func (fl *FileLogger) LogRunDetail(result *models.PipelineResult) error {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	path := filepath.Join(fl.runsDir, fmt.Sprintf("run-%s.log", result.ID))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create run detail file: %w", err)
	}
	defer file.Close()

	var sb strings.Builder
	fmt.Fprintf(&sb, "=== Run %s ===\n", result.ID)
	fmt.Fprintf(&sb, "Status: %s\n", result.Status)
	fmt.Fprintf(&sb, "Duration: %.1fs\n", result.Elapsed.Seconds())
	fmt.Fprintf(&sb, "Tokens: %d\n\n", result.TokensConsumed)
	for _, s := range result.Stages {
		fmt.Fprintf(&sb, "--- %s: %s ---\n", s.Name, s.State)
		if s.Error != "" {
			fmt.Fprintf(&sb, "Error: %s\n", s.Error)
		}
		if s.Output != "" {
			fmt.Fprintf(&sb, "Output: %d chars\n", len(s.Output))
		}
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "Completed at: %s\n", time.Now().Format(time.RFC3339))

	if _, err := file.WriteString(sb.String()); err != nil {
		return fmt.Errorf("failed to write run detail: %w", err)
	}
	return nil
}

// Close flushes and closes the run log file.
func (fl *FileLogger) Close() error {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	if fl.runLog != nil {
		if err := fl.runLog.Sync(); err != nil {
			return fmt.Errorf("failed to sync run log: %w", err)
		}
		if err := fl.runLog.Close(); err != nil {
			return fmt.Errorf("failed to close run log: %w", err)
		}
		fl.runLog = nil
	}
	return nil
}

func (fl *FileLogger) writeRunLog(message string) {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	if fl.runLog != nil {
		fl.runLog.WriteString(message)
		fl.runLog.Sync()
	}
}
