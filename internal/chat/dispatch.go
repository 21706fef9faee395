package chat

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Dispatcher continues an acknowledged turn after the request returns.
type Dispatcher interface {
	Dispatch(ctx context.Context, jobID string) error
}

// JobRunner completes one job; Service.RunJob satisfies it.
type JobRunner func(ctx context.Context, jobID string) error

// LocalDispatcher runs jobs on goroutines of this process. The job
// context is detached from the request so a client disconnect does not
// abort the turn.
type LocalDispatcher struct {
	run    JobRunner
	logger *zap.Logger
	wg     sync.WaitGroup
}

func NewLocalDispatcher(run JobRunner, logger *zap.Logger) *LocalDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LocalDispatcher{run: run, logger: logger.Named("dispatch")}
}

func (d *LocalDispatcher) Dispatch(ctx context.Context, jobID string) error {
	detached := context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.run(detached, jobID); err != nil {
			d.logger.Warn("turn job failed", zap.String("job_id", jobID), zap.Error(err))
		}
	}()
	return nil
}

// Wait blocks until every dispatched job has finished.
func (d *LocalDispatcher) Wait() {
	d.wg.Wait()
}
