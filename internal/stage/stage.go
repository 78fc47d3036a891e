// Package stage defines the generation steps of a pipeline run and the
// runner that executes one step against the resilient executor.
package stage

import (
	"context"
	"errors"
	"fmt"

	"github.com/harrison/collabgen/internal/llm"
	"github.com/harrison/collabgen/internal/logger"
	"github.com/harrison/collabgen/internal/models"
	"github.com/harrison/collabgen/internal/resilience"
)

// Stage is one generation step. Implementations differ only in prompt
// construction and output heuristics; all methods are side-effect free.
type Stage interface {
	Name() models.StageName
	// SystemPreamble is the static instruction text sent with every call.
	SystemPreamble() string
	// BuildInput renders the prompt from run parameters and prior outputs.
	BuildInput(in Input) string
	// ValidateOutput is a soft structural check. A false result is logged
	// and the output is still accepted.
	ValidateOutput(text string) bool
}

// Input carries the run parameters and the outputs accumulated so far.
type Input struct {
	CompanyName    string
	PartnerCompany string
	Domain         string
	Research       string
	Product        string

	// Content and ContentType are read by the quality gate only.
	Content     string
	ContentType string
}

// StageExecutionError wraps any failure of a stage with the stage's name.
type StageExecutionError struct {
	Stage models.StageName
	Cause error
}

// Error implements the error interface for StageExecutionError.
func (e *StageExecutionError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Cause)
}

// Unwrap returns the underlying error for error wrapping support.
func (e *StageExecutionError) Unwrap() error {
	return e.Cause
}

// ErrUnknownStage is wrapped when a stage name has no implementation.
var ErrUnknownStage = errors.New("unknown stage")

// Caller performs one resilient generation call.
type Caller interface {
	Call(ctx context.Context, req llm.GenerateRequest) resilience.Outcome
}

var _ Caller = (*resilience.Executor)(nil)

// RunnerConfig holds the sampling parameters applied to every stage call.
type RunnerConfig struct {
	Temperature float64
	MaxTokens   int
}

// DefaultRunnerConfig returns temperature 0.7 and 4096 output tokens.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{Temperature: 0.7, MaxTokens: 4096}
}

// Runner executes stages. It is safe for concurrent use when its Caller is.
type Runner struct {
	caller Caller
	cfg    RunnerConfig
	log    logger.Logger
}

// NewRunner creates a Runner that sends every stage through caller.
func NewRunner(caller Caller, cfg RunnerConfig, log logger.Logger) *Runner {
	return &Runner{caller: caller, cfg: cfg, log: logger.OrDiscard(log)}
}

// Execute builds the prompt for s, calls the service and soft-validates
// the answer. Any failure is returned as *StageExecutionError.
func (r *Runner) Execute(ctx context.Context, s Stage, in Input) (string, error) {
	prompt := s.BuildInput(in)
	r.log.LogDebug(fmt.Sprintf("[%s] prompt built (%d chars)", s.Name(), len(prompt)))

	out := r.caller.Call(ctx, llm.GenerateRequest{
		Prompt:         prompt,
		SystemPreamble: s.SystemPreamble(),
		Temperature:    r.cfg.Temperature,
		MaxTokens:      r.cfg.MaxTokens,
	})
	if out.Err != nil {
		return "", &StageExecutionError{Stage: s.Name(), Cause: out.Err}
	}

	if !s.ValidateOutput(out.Text) {
		r.log.LogWarn(fmt.Sprintf("[%s] output did not pass validation heuristics (%d chars), accepting anyway",
			s.Name(), len(out.Text)))
	}
	return out.Text, nil
}

// Pipeline returns the three sequential stages in execution order.
func Pipeline() []Stage {
	return []Stage{Research{}, Product{}, Marketing{}}
}

// ByName returns the stage implementation for name.
func ByName(name models.StageName) (Stage, error) {
	switch name {
	case models.StageResearch:
		return Research{}, nil
	case models.StageProduct:
		return Product{}, nil
	case models.StageMarketing:
		return Marketing{}, nil
	case models.StageQuality:
		return QualityGate{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownStage, name)
}
