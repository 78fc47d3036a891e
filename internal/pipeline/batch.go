package pipeline

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/harrison/collabgen/internal/models"
)

// RunBatch runs every request through Run with at most concurrency runs in
// flight. Results come back in input order. The run timeout applies to each
// run separately, so a run queued behind others keeps its full budget. Runs never fail as a group: a
// failing pipeline is a Failed result, not an error.
func (o *Orchestrator) RunBatch(ctx context.Context, reqs []models.Request, concurrency int) []*models.PipelineResult {
	results := make([]*models.PipelineResult, len(reqs))
	if concurrency < 1 {
		concurrency = 1
	}

	var g errgroup.Group
	g.SetLimit(concurrency)
	for i, req := range reqs {
		g.Go(func() error {
			results[i] = o.Run(ctx, req)
			return nil
		})
	}
	_ = g.Wait()

	return results
}
