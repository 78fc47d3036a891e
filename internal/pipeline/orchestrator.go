// Package pipeline sequences the research, product and marketing stages of
// a collaboration report, gating each stage on its predecessor, and turns
// every run into a PipelineResult regardless of how the stages fail.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/harrison/collabgen/internal/logger"
	"github.com/harrison/collabgen/internal/models"
	"github.com/harrison/collabgen/internal/resilience"
	"github.com/harrison/collabgen/internal/stage"
)

// Failure messages recorded on stage statuses.
const (
	msgStageTimedOut = "stage timed out"
	msgRunCancelled  = "run cancelled"
	msgRunTimedOut   = "pipeline timed out"
	msgNoOutput      = "stage produced no output"
)

// StageExecutor runs one stage. *stage.Runner is the production implementation.
type StageExecutor interface {
	Execute(ctx context.Context, s stage.Stage, in stage.Input) (string, error)
}

var _ StageExecutor = (*stage.Runner)(nil)

// ReportSaver persists finalized results.
type ReportSaver interface {
	Save(ctx context.Context, result *models.PipelineResult, req models.Request) (string, error)
}

// Timeouts holds the per-stage limits.
type Timeouts struct {
	Research  time.Duration
	Product   time.Duration
	Marketing time.Duration
	Quality   time.Duration
}

// DefaultTimeouts returns 120s for research and 90s for every other stage.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Research:  120 * time.Second,
		Product:   90 * time.Second,
		Marketing: 90 * time.Second,
		Quality:   90 * time.Second,
	}
}

// For returns the limit for name, or 0 (no limit) for unknown stages.
func (t Timeouts) For(name models.StageName) time.Duration {
	switch name {
	case models.StageResearch:
		return t.Research
	case models.StageProduct:
		return t.Product
	case models.StageMarketing:
		return t.Marketing
	case models.StageQuality:
		return t.Quality
	}
	return 0
}

// Options configures an Orchestrator. Zero values are replaced by defaults;
// a nil Store disables persistence and a nil Progress disables events.
// RunTimeout bounds each call to Run on its own; zero means no limit.
type Options struct {
	Timeouts    Timeouts
	RunTimeout  time.Duration
	Store       ReportSaver
	Logger      logger.Logger
	Progress    *ProgressReporter
	SaveTimeout time.Duration
}

// Orchestrator runs pipelines. One instance serves concurrent runs; all
// shared state lives in the injected executor and store.
type Orchestrator struct {
	runner      StageExecutor
	stages      []stage.Stage
	timeouts    Timeouts
	runTimeout  time.Duration
	store       ReportSaver
	log         logger.Logger
	progress    *ProgressReporter
	saveTimeout time.Duration
	now         func() time.Time
	newID       func() string
}

// New creates an Orchestrator over runner.
func New(runner StageExecutor, opts Options) *Orchestrator {
	if opts.Timeouts == (Timeouts{}) {
		opts.Timeouts = DefaultTimeouts()
	}
	if opts.SaveTimeout <= 0 {
		opts.SaveTimeout = 30 * time.Second
	}
	return &Orchestrator{
		runner:      runner,
		stages:      stage.Pipeline(),
		timeouts:    opts.Timeouts,
		runTimeout:  opts.RunTimeout,
		store:       opts.Store,
		log:         logger.OrDiscard(opts.Logger),
		progress:    opts.Progress,
		saveTimeout: opts.SaveTimeout,
		now:         time.Now,
		newID:       uuid.NewString,
	}
}

// fatalError marks a failure that is not a stage failure, such as a panic
// inside a stage. It aborts the run.
type fatalError struct {
	stage models.StageName
	err   error
}

func (e *fatalError) Error() string {
	return fmt.Sprintf("fatal error in %s stage: %v", e.stage, e.err)
}

func (e *fatalError) Unwrap() error { return e.err }

// Run executes research, product and marketing in order and always returns
// a finalized result. A stage is attempted only if the previous one
// completed; a fatal error skips every remaining stage and fails the run.
func (o *Orchestrator) Run(ctx context.Context, req models.Request) *models.PipelineResult {
	start := o.now()
	result := models.NewPipelineResult(o.newID(), start.UTC())

	ctx, cancel := withOptionalTimeout(ctx, o.runTimeout)
	defer cancel()

	// Per-run meter: the executor is shared, the count is not.
	meter := &resilience.TokenMeter{}
	ctx = resilience.WithTokenMeter(ctx, meter)

	o.log.LogInfo(fmt.Sprintf("pipeline %s started: %s & %s (%s)",
		result.ID, req.CompanyName, req.PartnerCompany, req.Domain))
	o.emit(Event{RunID: result.ID, Kind: EventRunStarted})

	in := stage.Input{
		CompanyName:    req.CompanyName,
		PartnerCompany: req.PartnerCompany,
		Domain:         req.Domain,
	}

	fatal := false
	for i, s := range o.stages {
		if i > 0 {
			prev, _ := result.Stage(o.stages[i-1].Name())
			if !prev.IsCompleted() {
				o.skipFrom(result, i, fmt.Sprintf("%s stage did not complete", prev.Name))
				break
			}
			if err := ctx.Err(); err != nil {
				o.skipFrom(result, i, cancelReason(err))
				break
			}
		}

		stageStart := o.now()
		o.emit(Event{RunID: result.ID, Kind: EventStageStarted, Stage: s.Name()})

		status, err := o.attempt(ctx, s, in)
		result.SetStage(status)
		o.logStage(result.ID, status, o.now().Sub(stageStart))

		if err != nil {
			o.log.LogError(fmt.Sprintf("pipeline %s aborted: %v", result.ID, err))
			o.skipFrom(result, i+1, "run aborted")
			fatal = true
			break
		}

		switch s.Name() {
		case models.StageResearch:
			in.Research = status.Output
		case models.StageProduct:
			in.Product = status.Output
		}
	}

	result.TokensConsumed = meter.Total()
	result.Status = models.AggregateStatus(result.Stages)
	if fatal {
		result.Status = models.StatusFailed
	}
	result.CombinedArtifact = BuildArtifact(result, req)
	result.Elapsed = o.now().Sub(start)

	o.persist(ctx, result, req)

	if rl, ok := o.log.(logger.RunLogger); ok {
		rl.LogSummary(result)
	} else {
		o.log.LogInfo(fmt.Sprintf("pipeline %s finished: %s (%d tokens, %dms)",
			result.ID, result.Status, result.TokensConsumed, result.ElapsedMs()))
	}
	o.emit(Event{RunID: result.ID, Kind: EventRunFinished, Status: result.Status})

	return result
}

// attempt runs one stage under its timeout and maps the outcome to a
// status. The returned error is non-nil only for fatal failures.
func (o *Orchestrator) attempt(ctx context.Context, s stage.Stage, in stage.Input) (models.StageStatus, error) {
	name := s.Name()
	stageCtx, cancel := withOptionalTimeout(ctx, o.timeouts.For(name))
	defer cancel()

	type outcome struct {
		text string
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- outcome{err: &fatalError{stage: name, err: fmt.Errorf("panic: %v", p)}}
			}
		}()
		text, err := o.runner.Execute(stageCtx, s, in)
		done <- outcome{text: text, err: err}
	}()

	var out outcome
	select {
	case out = <-done:
	case <-stageCtx.Done():
		out = outcome{err: stageCtx.Err()}
	}

	if out.err == nil {
		if out.text == "" {
			return models.Failed(name, msgNoOutput), nil
		}
		return models.Completed(name, out.text), nil
	}

	var fe *fatalError
	if errors.As(out.err, &fe) {
		return models.Failed(name, fe.Error()), fe
	}
	if err := ctx.Err(); err != nil {
		return models.Failed(name, cancelReason(err)), nil
	}
	if errors.Is(stageCtx.Err(), context.DeadlineExceeded) {
		return models.Failed(name, msgStageTimedOut), nil
	}
	var se *stage.StageExecutionError
	if errors.As(out.err, &se) {
		return models.Failed(name, se.Error()), nil
	}
	fe = &fatalError{stage: name, err: out.err}
	return models.Failed(name, fe.Error()), fe
}

// RunStage runs a single stage outside the pipeline. Unlike Run, failures
// are returned to the caller, always as *stage.StageExecutionError.
func (o *Orchestrator) RunStage(ctx context.Context, name models.StageName, in stage.Input) (string, error) {
	s, err := stage.ByName(name)
	if err != nil {
		return "", &stage.StageExecutionError{Stage: name, Cause: err}
	}
	if err := stage.CheckInput(name, in); err != nil {
		return "", &stage.StageExecutionError{Stage: name, Cause: err}
	}

	timeout := o.timeouts.For(name)
	stageCtx, cancel := withOptionalTimeout(ctx, timeout)
	defer cancel()

	text, err := o.runner.Execute(stageCtx, s, in)
	if err == nil {
		return text, nil
	}
	if ctx.Err() == nil && errors.Is(stageCtx.Err(), context.DeadlineExceeded) {
		return "", &stage.StageExecutionError{
			Stage: name,
			Cause: resilience.NewTimeoutError(string(name)+" stage", timeout, err),
		}
	}
	var se *stage.StageExecutionError
	if errors.As(err, &se) {
		return "", se
	}
	return "", &stage.StageExecutionError{Stage: name, Cause: err}
}

// Review runs the quality gate over content and parses its verdict.
func (o *Orchestrator) Review(ctx context.Context, content, contentType string) (*stage.Review, error) {
	evaluation, err := o.RunStage(ctx, models.StageQuality, stage.Input{Content: content, ContentType: contentType})
	if err != nil {
		return nil, err
	}
	return stage.ParseReview(evaluation), nil
}

// persist hands result to the store. Failures are logged and never touch
// the result; the save outlives caller cancellation up to saveTimeout.
func (o *Orchestrator) persist(ctx context.Context, result *models.PipelineResult, req models.Request) {
	if o.store == nil {
		return
	}

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.saveTimeout)
	defer cancel()

	defer func() {
		if p := recover(); p != nil {
			o.log.LogError(fmt.Sprintf("failed to save report %s: panic: %v", result.ID, p))
		}
	}()

	id, err := o.store.Save(saveCtx, result.Clone(), req)
	if err != nil {
		o.log.LogError(fmt.Sprintf("failed to save report %s: %v", result.ID, err))
		return
	}
	o.log.LogDebug(fmt.Sprintf("report %s saved", id))
}

// skipFrom marks stages i.. as skipped.
func (o *Orchestrator) skipFrom(result *models.PipelineResult, i int, reason string) {
	for _, s := range o.stages[i:] {
		status := models.Skipped(s.Name(), reason)
		result.SetStage(status)
		o.emit(Event{RunID: result.ID, Kind: EventStageResolved, Stage: s.Name(), State: status.State, Message: reason})
	}
}

func (o *Orchestrator) logStage(runID string, status models.StageStatus, d time.Duration) {
	o.emit(Event{RunID: runID, Kind: EventStageResolved, Stage: status.Name, State: status.State, Message: status.Error})
	if rl, ok := o.log.(logger.RunLogger); ok {
		rl.LogStageResult(runID, status, d)
		return
	}
	if status.IsCompleted() {
		o.log.LogInfo(fmt.Sprintf("[%s] completed in %s", status.Name, d.Round(time.Millisecond)))
		return
	}
	o.log.LogWarn(fmt.Sprintf("[%s] %s: %s", status.Name, status.State, status.Error))
}

func (o *Orchestrator) emit(e Event) {
	if o.progress != nil {
		o.progress.Emit(e)
	}
}

func cancelReason(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return msgRunTimedOut
	}
	return msgRunCancelled
}

func withOptionalTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
