package models

import (
	"fmt"
	"time"
)

// StageName identifies one step of the generation workflow.
type StageName string

// Pipeline and standalone stage names.
const (
	StageResearch  StageName = "research"
	StageProduct   StageName = "product"
	StageMarketing StageName = "marketing"
	StageQuality   StageName = "quality"
)

// PipelineStages is the fixed execution order of a pipeline run.
var PipelineStages = []StageName{StageResearch, StageProduct, StageMarketing}

// ParseStageName converts user input into a StageName.
func ParseStageName(s string) (StageName, error) {
	switch StageName(s) {
	case StageResearch, StageProduct, StageMarketing, StageQuality:
		return StageName(s), nil
	}
	return "", fmt.Errorf("unknown stage %q (valid: research, product, marketing, quality)", s)
}

// StageState is the resolution of a single stage.
type StageState string

// Stage states
const (
	StateCompleted StageState = "completed"
	StateFailed    StageState = "failed"
	StateSkipped   StageState = "skipped"
)

// OverallStatus is the aggregate outcome of a pipeline run.
type OverallStatus string

// Aggregate statuses
const (
	StatusCompleted OverallStatus = "completed"
	StatusPartial   OverallStatus = "partial"
	StatusFailed    OverallStatus = "failed"
)

// StageStatus records how one stage resolved.
// Output is non-empty only when State is StateCompleted and Error is set
// only when it is not.
type StageStatus struct {
	Name   StageName  `json:"name"`
	State  StageState `json:"status"`
	Output string     `json:"content"`
	Error  string     `json:"error,omitempty"`
}

// Completed builds the status of a stage that produced output.
func Completed(name StageName, output string) StageStatus {
	return StageStatus{Name: name, State: StateCompleted, Output: output}
}

// Failed builds the status of a stage that was attempted and did not finish.
func Failed(name StageName, reason string) StageStatus {
	return StageStatus{Name: name, State: StateFailed, Error: reason}
}

// Skipped builds the status of a stage that was never attempted.
func Skipped(name StageName, reason string) StageStatus {
	return StageStatus{Name: name, State: StateSkipped, Error: reason}
}

// IsCompleted reports whether the stage produced usable output.
func (s StageStatus) IsCompleted() bool {
	return s.State == StateCompleted
}

// PipelineResult is the aggregate outcome of one pipeline run.
type PipelineResult struct {
	ID               string        `json:"report_id"`
	Status           OverallStatus `json:"status"`
	CombinedArtifact string        `json:"content"`
	Stages           []StageStatus `json:"sections"`
	TokensConsumed   int64         `json:"tokens_used"`
	Elapsed          time.Duration `json:"-"`
	CreatedAt        time.Time     `json:"created_at"`
}

// NewPipelineResult returns a result with the pessimistic initial statuses:
// the first stage Failed, every later stage Skipped.
func NewPipelineResult(id string, createdAt time.Time) *PipelineResult {
	stages := make([]StageStatus, len(PipelineStages))
	for i, name := range PipelineStages {
		if i == 0 {
			stages[i] = Failed(name, "stage not attempted")
			continue
		}
		stages[i] = Skipped(name, "stage not reached")
	}
	return &PipelineResult{
		ID:        id,
		Status:    StatusFailed,
		Stages:    stages,
		CreatedAt: createdAt,
	}
}

// Stage returns the status recorded for name.
func (r *PipelineResult) Stage(name StageName) (StageStatus, bool) {
	for _, s := range r.Stages {
		if s.Name == name {
			return s, true
		}
	}
	return StageStatus{}, false
}

// SetStage replaces the status recorded for s.Name.
func (r *PipelineResult) SetStage(s StageStatus) {
	for i := range r.Stages {
		if r.Stages[i].Name == s.Name {
			r.Stages[i] = s
			return
		}
	}
	r.Stages = append(r.Stages, s)
}

// CompletedCount returns how many stages produced output.
func (r *PipelineResult) CompletedCount() int {
	n := 0
	for _, s := range r.Stages {
		if s.IsCompleted() {
			n++
		}
	}
	return n
}

// ElapsedMs returns the wall-clock duration in milliseconds.
func (r *PipelineResult) ElapsedMs() int64 {
	return r.Elapsed.Milliseconds()
}

// Clone returns a deep copy so consumers cannot mutate the original stages.
func (r *PipelineResult) Clone() *PipelineResult {
	c := *r
	c.Stages = append([]StageStatus(nil), r.Stages...)
	return &c
}

// AggregateStatus derives the overall status from stage statuses:
// completed when every stage completed, failed when none did, partial otherwise.
func AggregateStatus(stages []StageStatus) OverallStatus {
	completed := 0
	for _, s := range stages {
		if s.IsCompleted() {
			completed++
		}
	}
	switch {
	case len(stages) > 0 && completed == len(stages):
		return StatusCompleted
	case completed == 0:
		return StatusFailed
	default:
		return StatusPartial
	}
}
