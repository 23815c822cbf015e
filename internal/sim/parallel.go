package sim

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Job is one independent run. Build runs on the worker goroutine, so every
// job owns its own model and controller.
type Job struct {
	Name   string
	Build  func() (*Simulator, State, error)
	Config Config
}

type JobResult struct {
	Name   string
	Result *Result
	Err    error
}

// RunBatch runs jobs on at most workers goroutines. A failing job does not
// stop the others; its error is kept in its JobResult.
func RunBatch(ctx context.Context, jobs []Job, workers int) []JobResult {
	results := make([]JobResult, len(jobs))
	g, ctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i, job := range jobs {
		g.Go(func() error {
			results[i].Name = job.Name
			s, x0, err := job.Build()
			if err != nil {
				results[i].Err = err
				return nil
			}
			results[i].Result, results[i].Err = s.Run(ctx, x0, job.Config)
			return nil
		})
	}
	_ = g.Wait()
	return results
}
