package systems

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/hellodog/engine/core"
	"golang.org/x/sync/errgroup"
)

// JobTask is one unit of work. OnComplete runs on the worker after a
// successful Run.
type JobTask struct {
	Name       string
	Run        func(ctx context.Context) error
	OnComplete func()
}

type JobSystem struct {
	numWorkers int
}

var ErrNoWorkers = errors.New("attempting to create worker pool with less than 1 worker")

func NewJobSystem(numWorkers int) (*JobSystem, error) {
	if numWorkers <= 0 {
		return nil, ErrNoWorkers
	}
	return &JobSystem{numWorkers: numWorkers}, nil
}

func (js *JobSystem) Workers() int {
	return js.numWorkers
}

/**
 * @brief Runs every job on at most numWorkers goroutines and waits for them.
 * The first failure cancels the context handed to the remaining jobs and is
 * returned.
 */
func (js *JobSystem) RunAll(ctx context.Context, jobs ...JobTask) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(js.numWorkers)

	for _, job := range jobs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			start := time.Now()
			if err := job.Run(ctx); err != nil {
				return errors.Wrapf(err, "job %s", job.Name)
			}
			core.LogDebug("Job %s finished in %s.", job.Name, time.Since(start))
			if job.OnComplete != nil {
				job.OnComplete()
			}
			return nil
		})
	}
	return g.Wait()
}
