package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrison/collabgen/internal/llm"
	"github.com/harrison/collabgen/internal/models"
	"github.com/harrison/collabgen/internal/resilience"
	"github.com/harrison/collabgen/internal/stage"
)

type stageFunc func(ctx context.Context, in stage.Input) (string, error)

// fakeRunner dispatches on stage name and records the inputs it saw.
type fakeRunner struct {
	mu       sync.Mutex
	handlers map[models.StageName]stageFunc
	calls    []models.StageName
	inputs   map[models.StageName]stage.Input
}

func newFakeRunner(handlers map[models.StageName]stageFunc) *fakeRunner {
	return &fakeRunner{handlers: handlers, inputs: map[models.StageName]stage.Input{}}
}

func (f *fakeRunner) Execute(ctx context.Context, s stage.Stage, in stage.Input) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, s.Name())
	f.inputs[s.Name()] = in
	h := f.handlers[s.Name()]
	f.mu.Unlock()
	if h == nil {
		return string(s.Name()) + " output", nil
	}
	return h(ctx, in)
}

func (f *fakeRunner) Calls() []models.StageName {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.StageName(nil), f.calls...)
}

func output(text string) stageFunc {
	return func(context.Context, stage.Input) (string, error) { return text, nil }
}

func hang() stageFunc {
	return func(ctx context.Context, _ stage.Input) (string, error) {
		<-ctx.Done()
		return "", &stage.StageExecutionError{Stage: "hung", Cause: ctx.Err()}
	}
}

func failWith(err error) stageFunc {
	return func(context.Context, stage.Input) (string, error) { return "", err }
}

type fakeSaver struct {
	mu     sync.Mutex
	err    error
	saved  []*models.PipelineResult
	ctxErr error
}

func (f *fakeSaver) Save(ctx context.Context, result *models.PipelineResult, _ models.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ctxErr = ctx.Err()
	f.saved = append(f.saved, result)
	// Mutating the handed-over copy must not leak back into the caller's result.
	result.Status = "tampered"
	return result.ID, f.err
}

type panicSaver struct{}

func (panicSaver) Save(context.Context, *models.PipelineResult, models.Request) (string, error) {
	panic("disk on fire")
}

func testRequest() models.Request {
	return models.Request{CompanyName: "Acme", PartnerCompany: "Globex", Domain: "Robotics"}
}

func shortTimeouts() Timeouts {
	return Timeouts{
		Research:  50 * time.Millisecond,
		Product:   50 * time.Millisecond,
		Marketing: 50 * time.Millisecond,
		Quality:   50 * time.Millisecond,
	}
}

func stateOf(t *testing.T, r *models.PipelineResult, name models.StageName) models.StageStatus {
	t.Helper()
	s, ok := r.Stage(name)
	require.True(t, ok, "missing stage %s", name)
	return s
}

func TestRun_AllStagesComplete(t *testing.T) {
	runner := newFakeRunner(map[models.StageName]stageFunc{
		models.StageResearch:  output("R"),
		models.StageProduct:   output("P"),
		models.StageMarketing: output("M"),
	})
	o := New(runner, Options{})

	result := o.Run(context.Background(), testRequest())

	assert.Equal(t, models.StatusCompleted, result.Status)
	assert.NotEmpty(t, result.ID)
	for _, name := range models.PipelineStages {
		assert.Equal(t, models.StateCompleted, stateOf(t, result, name).State)
	}

	artifact := result.CombinedArtifact
	iR := strings.Index(artifact, "# Part 1: Research Analysis\n\nR")
	iP := strings.Index(artifact, "# Part 2: Product Strategy\n\nP")
	iM := strings.Index(artifact, "# Part 3: Marketing Strategy\n\nM")
	require.True(t, iR > 0 && iP > iR && iM > iP, artifact)
	assert.Equal(t, 2, strings.Count(artifact, sectionSeparator))

	// Each stage sees the accumulated outputs of its predecessors.
	assert.Equal(t, "R", runner.inputs[models.StageProduct].Research)
	assert.Equal(t, "R", runner.inputs[models.StageMarketing].Research)
	assert.Equal(t, "P", runner.inputs[models.StageMarketing].Product)
}

func TestRun_ResearchTimeoutSkipsEverything(t *testing.T) {
	runner := newFakeRunner(map[models.StageName]stageFunc{
		models.StageResearch: hang(),
	})
	o := New(runner, Options{Timeouts: shortTimeouts()})

	result := o.Run(context.Background(), testRequest())

	assert.Equal(t, models.StatusFailed, result.Status)
	research := stateOf(t, result, models.StageResearch)
	assert.Equal(t, models.StateFailed, research.State)
	assert.Equal(t, "stage timed out", research.Error)

	for _, name := range []models.StageName{models.StageProduct, models.StageMarketing} {
		s := stateOf(t, result, name)
		assert.Equal(t, models.StateSkipped, s.State)
	}
	assert.Equal(t, "research stage did not complete", stateOf(t, result, models.StageProduct).Error)
	assert.Equal(t, []models.StageName{models.StageResearch}, runner.Calls())

	assert.Contains(t, result.CombinedArtifact, "# Collaboration Report: Acme & Globex")
	assert.NotContains(t, result.CombinedArtifact, "# Part")
}

func TestRun_MarketingTimeoutIsPartial(t *testing.T) {
	runner := newFakeRunner(map[models.StageName]stageFunc{
		models.StageResearch:  output("R"),
		models.StageProduct:   output("P"),
		models.StageMarketing: hang(),
	})
	o := New(runner, Options{Timeouts: shortTimeouts()})

	result := o.Run(context.Background(), testRequest())

	assert.Equal(t, models.StatusPartial, result.Status)
	assert.Equal(t, models.StateFailed, stateOf(t, result, models.StageMarketing).State)
	assert.Equal(t, "stage timed out", stateOf(t, result, models.StageMarketing).Error)
	assert.Contains(t, result.CombinedArtifact, "# Part 1: Research Analysis")
	assert.Contains(t, result.CombinedArtifact, "# Part 2: Product Strategy")
	assert.NotContains(t, result.CombinedArtifact, "# Part 3")
	assert.Equal(t, 1, strings.Count(result.CombinedArtifact, sectionSeparator))
}

func TestRun_StageFailureGatesLaterStages(t *testing.T) {
	cause := &stage.StageExecutionError{
		Stage: models.StageProduct,
		Cause: &resilience.ServiceUnavailableError{Reason: resilience.ReasonCircuitOpen},
	}
	runner := newFakeRunner(map[models.StageName]stageFunc{
		models.StageResearch: output("R"),
		models.StageProduct:  failWith(cause),
	})
	o := New(runner, Options{})

	result := o.Run(context.Background(), testRequest())

	assert.Equal(t, models.StatusPartial, result.Status)
	product := stateOf(t, result, models.StageProduct)
	assert.Equal(t, models.StateFailed, product.State)
	assert.Equal(t, cause.Error(), product.Error)

	marketing := stateOf(t, result, models.StageMarketing)
	assert.Equal(t, models.StateSkipped, marketing.State)
	assert.Equal(t, "product stage did not complete", marketing.Error)
	assert.NotContains(t, runner.Calls(), models.StageMarketing)
}

func TestRun_EmptyOutputFailsStage(t *testing.T) {
	runner := newFakeRunner(map[models.StageName]stageFunc{
		models.StageResearch: output(""),
	})
	o := New(runner, Options{})

	result := o.Run(context.Background(), testRequest())

	assert.Equal(t, models.StatusFailed, result.Status)
	assert.Equal(t, "stage produced no output", stateOf(t, result, models.StageResearch).Error)
}

func TestRun_StatusConsistency(t *testing.T) {
	cases := map[string]map[models.StageName]stageFunc{
		"all ok":           {},
		"research fails":   {models.StageResearch: failWith(&stage.StageExecutionError{Stage: models.StageResearch, Cause: errors.New("x")})},
		"product fails":    {models.StageProduct: failWith(&stage.StageExecutionError{Stage: models.StageProduct, Cause: errors.New("x")})},
		"marketing fails":  {models.StageMarketing: failWith(&stage.StageExecutionError{Stage: models.StageMarketing, Cause: errors.New("x")})},
		"research panics":  {models.StageResearch: func(context.Context, stage.Input) (string, error) { panic("boom") }},
		"marketing panics": {models.StageMarketing: func(context.Context, stage.Input) (string, error) { panic("boom") }},
	}

	for name, handlers := range cases {
		t.Run(name, func(t *testing.T) {
			result := New(newFakeRunner(handlers), Options{}).Run(context.Background(), testRequest())

			require.Len(t, result.Stages, len(models.PipelineStages))
			for i, s := range result.Stages {
				assert.Equal(t, models.PipelineStages[i], s.Name)
				if s.IsCompleted() {
					assert.NotEmpty(t, s.Output)
					assert.Empty(t, s.Error)
				} else {
					assert.Empty(t, s.Output)
					assert.NotEmpty(t, s.Error)
				}
				if i > 0 && s.State != models.StateSkipped {
					assert.True(t, result.Stages[i-1].IsCompleted(), "%s attempted after an incomplete stage", s.Name)
				}
			}
			for _, s := range result.Stages {
				if s.IsCompleted() {
					assert.Contains(t, result.CombinedArtifact, s.Output)
				}
			}
		})
	}
}

func TestRun_PanicIsFatal(t *testing.T) {
	runner := newFakeRunner(map[models.StageName]stageFunc{
		models.StageResearch: output("R"),
		models.StageProduct:  func(context.Context, stage.Input) (string, error) { panic("nil map") },
	})
	o := New(runner, Options{})

	result := o.Run(context.Background(), testRequest())

	assert.Equal(t, models.StatusFailed, result.Status, "fatal errors fail the run even with completed stages")
	product := stateOf(t, result, models.StageProduct)
	assert.Equal(t, models.StateFailed, product.State)
	assert.Contains(t, product.Error, "panic: nil map")
	marketing := stateOf(t, result, models.StageMarketing)
	assert.Equal(t, models.StateSkipped, marketing.State)
	assert.Equal(t, "run aborted", marketing.Error)
	assert.Contains(t, result.CombinedArtifact, "# Part 1: Research Analysis\n\nR")
}

func TestRun_UnexpectedErrorIsFatal(t *testing.T) {
	runner := newFakeRunner(map[models.StageName]stageFunc{
		models.StageResearch: failWith(errors.New("unexpected failure")),
	})

	result := New(runner, Options{}).Run(context.Background(), testRequest())

	assert.Equal(t, models.StatusFailed, result.Status)
	assert.Contains(t, stateOf(t, result, models.StageResearch).Error, "fatal error in research stage")
	assert.Equal(t, "run aborted", stateOf(t, result, models.StageProduct).Error)
}

func TestRun_CancellationReturnsBestEffortResult(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runner := newFakeRunner(map[models.StageName]stageFunc{
		models.StageResearch: output("R"),
		models.StageProduct: func(ctx context.Context, _ stage.Input) (string, error) {
			cancel()
			<-ctx.Done()
			return "", &stage.StageExecutionError{Stage: models.StageProduct, Cause: ctx.Err()}
		},
	})
	saver := &fakeSaver{}
	o := New(runner, Options{Store: saver})

	result := o.Run(ctx, testRequest())

	assert.Equal(t, models.StatusPartial, result.Status)
	assert.Equal(t, "run cancelled", stateOf(t, result, models.StageProduct).Error)
	assert.Equal(t, models.StateSkipped, stateOf(t, result, models.StageMarketing).State)
	require.Len(t, saver.saved, 1, "cancelled runs are still saved")
	assert.NoError(t, saver.ctxErr, "save outlives caller cancellation")
}

func TestRun_PipelineDeadlineSkipsRemaining(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	runner := newFakeRunner(map[models.StageName]stageFunc{
		models.StageResearch: hang(),
	})

	result := New(runner, Options{}).Run(ctx, testRequest())

	assert.Equal(t, models.StatusFailed, result.Status)
	assert.Equal(t, "pipeline timed out", stateOf(t, result, models.StageResearch).Error)
}

func TestRun_RunTimeoutOption(t *testing.T) {
	runner := newFakeRunner(map[models.StageName]stageFunc{
		models.StageResearch: hang(),
	})

	result := New(runner, Options{RunTimeout: 30 * time.Millisecond}).Run(context.Background(), testRequest())

	assert.Equal(t, models.StatusFailed, result.Status)
	assert.Equal(t, "pipeline timed out", stateOf(t, result, models.StageResearch).Error)
	assert.Equal(t, models.StateSkipped, stateOf(t, result, models.StageProduct).State)
}

// A hung service keeps every stage busy until its timeout cuts the retry
// loop; those cut-off calls must still open the breaker.
func TestRun_StageTimeoutsOpenBreaker(t *testing.T) {
	gen := llm.NewFakeGenerator(llm.Block())
	breaker := resilience.NewCircuitBreaker(resilience.BreakerConfig{Threshold: 2})
	exec := resilience.NewExecutor(gen, breaker, resilience.Config{
		CallTimeout: 60 * time.Millisecond,
		Retry: resilience.RetryPolicy{
			MaxAttempts:  3,
			InitialDelay: 10 * time.Millisecond,
			MaxDelay:     50 * time.Millisecond,
			Multiplier:   2,
		},
	}, nil)
	o := New(stage.NewRunner(exec, stage.DefaultRunnerConfig(), nil), Options{
		Timeouts: Timeouts{
			Research:  120 * time.Millisecond,
			Product:   90 * time.Millisecond,
			Marketing: 90 * time.Millisecond,
			Quality:   90 * time.Millisecond,
		},
	})

	for i := 0; i < 2; i++ {
		result := o.Run(context.Background(), testRequest())
		assert.Equal(t, models.StatusFailed, result.Status)
		assert.Equal(t, "stage timed out", stateOf(t, result, models.StageResearch).Error)
		assert.Equal(t, models.StateSkipped, stateOf(t, result, models.StageProduct).State)
	}

	require.Eventually(t, breaker.IsOpen, time.Second, 5*time.Millisecond)
	calls := gen.Calls()

	result := o.Run(context.Background(), testRequest())

	research := stateOf(t, result, models.StageResearch)
	assert.Equal(t, models.StateFailed, research.State)
	assert.Contains(t, research.Error, "circuit-open")
	assert.Equal(t, calls, gen.Calls(), "transport must not be reached while open")
}

func TestRun_SaveFailureDoesNotAlterResult(t *testing.T) {
	saver := &fakeSaver{err: errors.New("disk full")}
	o := New(newFakeRunner(nil), Options{Store: saver})

	result := o.Run(context.Background(), testRequest())

	assert.Equal(t, models.StatusCompleted, result.Status)
	require.Len(t, saver.saved, 1)
	assert.Equal(t, result.ID, saver.saved[0].ID)
}

func TestRun_SavePanicIsSwallowed(t *testing.T) {
	o := New(newFakeRunner(nil), Options{Store: panicSaver{}})

	var result *models.PipelineResult
	assert.NotPanics(t, func() { result = o.Run(context.Background(), testRequest()) })
	assert.Equal(t, models.StatusCompleted, result.Status)
}

func TestRun_TokensAreCountedPerRun(t *testing.T) {
	gen := llm.NewFakeGenerator(llm.Sequence(
		llm.Reply("research body", 100),
		llm.Reply("product body", 200),
		llm.Reply("marketing body", 150),
	))
	exec := resilience.NewExecutor(gen, nil, resilience.DefaultConfig(), nil)
	o := New(stage.NewRunner(exec, stage.DefaultRunnerConfig(), nil), Options{})

	first := o.Run(context.Background(), testRequest())
	second := o.Run(context.Background(), testRequest())

	assert.Equal(t, models.StatusCompleted, first.Status)
	assert.Equal(t, int64(450), first.TokensConsumed)
	assert.Equal(t, int64(450), second.TokensConsumed, "second run repeats the last reply three times")
	assert.Equal(t, int64(900), exec.TokensUsed())
}

func TestRun_ConcurrentRunsAreIndependent(t *testing.T) {
	o := New(newFakeRunner(nil), Options{})

	var wg sync.WaitGroup
	results := make([]*models.PipelineResult, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = o.Run(context.Background(), testRequest())
		}(i)
	}
	wg.Wait()

	seen := map[string]bool{}
	for _, r := range results {
		assert.Equal(t, models.StatusCompleted, r.Status)
		assert.False(t, seen[r.ID], "run ids must be unique")
		seen[r.ID] = true
	}
}

func TestRun_EmitsProgressEvents(t *testing.T) {
	progress := NewProgressReporter()
	runner := newFakeRunner(map[models.StageName]stageFunc{
		models.StageProduct: failWith(&stage.StageExecutionError{Stage: models.StageProduct, Cause: errors.New("x")}),
	})
	o := New(runner, Options{Progress: progress})

	result := o.Run(context.Background(), testRequest())
	progress.Close()

	var kinds []EventKind
	var resolved []models.StageState
	for e := range progress.Subscribe() {
		assert.Equal(t, result.ID, e.RunID)
		kinds = append(kinds, e.Kind)
		if e.Kind == EventStageResolved {
			resolved = append(resolved, e.State)
		}
	}

	assert.Equal(t, EventRunStarted, kinds[0])
	assert.Equal(t, EventRunFinished, kinds[len(kinds)-1])
	assert.Equal(t, []models.StageState{models.StateCompleted, models.StateFailed, models.StateSkipped}, resolved)
}

func TestRunStage(t *testing.T) {
	long := strings.Repeat("x", stage.MinReportLength)

	t.Run("success", func(t *testing.T) {
		o := New(newFakeRunner(map[models.StageName]stageFunc{models.StageProduct: output("P")}), Options{})
		out, err := o.RunStage(context.Background(), models.StageProduct,
			stage.Input{CompanyName: "Acme", Domain: "AI", Research: long})
		require.NoError(t, err)
		assert.Equal(t, "P", out)
	})

	t.Run("invalid input", func(t *testing.T) {
		runner := newFakeRunner(nil)
		_, err := New(runner, Options{}).RunStage(context.Background(), models.StageProduct,
			stage.Input{CompanyName: "Acme", Domain: "AI", Research: "short"})
		var se *stage.StageExecutionError
		require.ErrorAs(t, err, &se)
		var ve *models.ValidationError
		assert.ErrorAs(t, err, &ve)
		assert.Empty(t, runner.Calls())
	})

	t.Run("unknown stage", func(t *testing.T) {
		_, err := New(newFakeRunner(nil), Options{}).RunStage(context.Background(), "critic", stage.Input{})
		var se *stage.StageExecutionError
		require.ErrorAs(t, err, &se)
		assert.ErrorIs(t, err, stage.ErrUnknownStage)
	})

	t.Run("timeout", func(t *testing.T) {
		o := New(newFakeRunner(map[models.StageName]stageFunc{models.StageResearch: hang()}),
			Options{Timeouts: shortTimeouts()})
		_, err := o.RunStage(context.Background(), models.StageResearch,
			stage.Input{CompanyName: "Acme", PartnerCompany: "Globex", Domain: "AI"})
		var se *stage.StageExecutionError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, models.StageResearch, se.Stage)
		var te *resilience.TimeoutError
		assert.ErrorAs(t, err, &te)
	})

	t.Run("raw error is wrapped", func(t *testing.T) {
		o := New(newFakeRunner(map[models.StageName]stageFunc{models.StageQuality: failWith(errors.New("raw"))}), Options{})
		_, err := o.RunStage(context.Background(), models.StageQuality, stage.Input{Content: "text"})
		var se *stage.StageExecutionError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, models.StageQuality, se.Stage)
	})
}

func TestReview(t *testing.T) {
	o := New(newFakeRunner(map[models.StageName]stageFunc{
		models.StageQuality: output("#### Overall Quality Score: 8/10\n#### Decision: APPROVED"),
	}), Options{})

	review, err := o.Review(context.Background(), "draft report", "report")

	require.NoError(t, err)
	assert.True(t, review.Approved)
	assert.Equal(t, 8, review.Score)

	_, err = o.Review(context.Background(), "", "report")
	assert.Error(t, err)
}
