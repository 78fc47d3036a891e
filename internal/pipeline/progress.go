package pipeline

import (
	"fmt"

	"github.com/harrison/collabgen/internal/models"
)

// EventKind is the kind of a progress event.
type EventKind string

// Progress event kinds
const (
	EventRunStarted    EventKind = "run-started"
	EventStageStarted  EventKind = "stage-started"
	EventStageResolved EventKind = "stage-resolved"
	EventRunFinished   EventKind = "run-finished"
)

// Event describes one step of a pipeline run.
type Event struct {
	RunID   string
	Kind    EventKind
	Stage   models.StageName
	State   models.StageState
	Status  models.OverallStatus
	Message string
}

// ProgressReporter emits progress events through a buffered channel.
type ProgressReporter struct {
	ch chan Event
}

// NewProgressReporter creates a ProgressReporter with a buffered channel of size 64.
func NewProgressReporter() *ProgressReporter {
	return &ProgressReporter{ch: make(chan Event, 64)}
}

// Emit sends an event without blocking. If the channel is full, the event
// is dropped.
func (pr *ProgressReporter) Emit(event Event) {
	select {
	case pr.ch <- event:
	default:
	}
}

// Subscribe returns a read-only channel for consuming progress events.
func (pr *ProgressReporter) Subscribe() <-chan Event {
	return pr.ch
}

// Close closes the event channel. No Emit may follow.
func (pr *ProgressReporter) Close() {
	close(pr.ch)
}

// FormatEvent renders an event as a human-readable status line.
func FormatEvent(e Event) string {
	switch e.Kind {
	case EventRunStarted:
		return fmt.Sprintf("▶ run %s started", e.RunID)
	case EventStageStarted:
		return fmt.Sprintf("  ● %s...", e.Stage)
	case EventStageResolved:
		switch e.State {
		case models.StateCompleted:
			return fmt.Sprintf("  ✓ %s complete", e.Stage)
		case models.StateSkipped:
			return fmt.Sprintf("  ○ %s skipped: %s", e.Stage, e.Message)
		default:
			return fmt.Sprintf("  ✗ %s failed: %s", e.Stage, e.Message)
		}
	case EventRunFinished:
		return fmt.Sprintf("■ run %s finished: %s", e.RunID, e.Status)
	}
	return fmt.Sprintf("  ? %s (unknown event)", e.Kind)
}
