package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/vireo-dev/vireo/grab"
	"github.com/vireo-dev/vireo/spider/queue"
)

// Dispatcher classifies each NetworkResult arriving from the network
// pool and routes it: a valid Document goes on to the parser pool, a
// response that fails validation or a transport-layer failure that has
// exhausted its network try budget is requeued as a retry against the
// task try budget, and a failure flagged fatal (or a task whose task try
// budget is spent) becomes a terminal SpiderError. This mirrors
// the source's worker_callback/process_network_result split between
// "was this a usable response" and "was this an error worth retrying".
type Dispatcher struct {
	backend      queue.Backend
	parserOut    chan<- *NetworkResult
	taskTryLimit int
	stats        *Stats
	logger       arbor.ILogger

	// Valid reports whether doc counts as a usable response; nil means
	// any non-error response is accepted. Installed by callers that need
	// e.g. grab.Document.HasValidHTML as their acceptance criterion.
	Valid func(*grab.Document) bool
}

// NewDispatcher builds a Dispatcher. taskTryLimit bounds how many times
// a task may be recycled after a validity failure before it is dropped
// with a SpiderError.
func NewDispatcher(backend queue.Backend, parserOut chan<- *NetworkResult, taskTryLimit int, stats *Stats, logger arbor.ILogger) *Dispatcher {
	return &Dispatcher{backend: backend, parserOut: parserOut, taskTryLimit: taskTryLimit, stats: stats, logger: logger}
}

// Run drains results from in until ctx is cancelled or in is closed.
func (d *Dispatcher) Run(ctx context.Context, in <-chan *NetworkResult) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case res, ok := <-in:
			if !ok {
				return nil
			}
			if err := d.handle(ctx, res); err != nil {
				d.logger.Error().Str("task", res.Task.Name).Err(err).Msg("task dropped")
			}
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, res *NetworkResult) error {
	d.stats.Inc("spider:request", 1)

	if res.Err != nil {
		return d.handleNetworkError(ctx, res)
	}

	if d.Valid != nil && !d.Valid(res.Document) {
		return d.handleInvalid(ctx, res)
	}

	select {
	case d.parserOut <- res:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// handleNetworkError classifies a failed attempt. A grab.FatalError
// (unsupported scheme, malformed URL) is never worth retrying. Anything
// else was already subject to the network pool's own RetryPolicy, so
// arriving here at all means that budget is spent; the dispatcher's own
// task try budget still governs whether to give the task another whole
// pass through the network pool.
func (d *Dispatcher) handleNetworkError(ctx context.Context, res *NetworkResult) error {
	var fatal *grab.FatalError
	if errors.As(res.Err, &fatal) {
		d.stats.Inc("spider:error:fatal", 1)
		return NewSpiderError(res.Task.Name, res.Err)
	}
	return d.retryTask(ctx, res.Task, res.Err)
}

// handleInvalid requeues a task whose response failed the caller's
// validity predicate, corresponding to the source's ResponseNotValid
// branch of process_network_result.
func (d *Dispatcher) handleInvalid(ctx context.Context, res *NetworkResult) error {
	return d.retryTask(ctx, res.Task, grab.NewIntegrityError("response failed validity check"))
}

func (d *Dispatcher) retryTask(ctx context.Context, task *Task, cause error) error {
	task.TaskTryCount++
	if task.TaskTryCount > d.taskTryLimit {
		d.stats.Inc("spider:error:task_try_limit", 1)
		return NewSpiderError(task.Name, fmt.Errorf("task try limit exceeded: %w", cause))
	}
	task.RestoreConfig()
	retry := task.Clone()
	if err := d.backend.Put(ctx, retry, retry.Priority, retry.ScheduleTime); err != nil {
		return fmt.Errorf("requeue task %q: %w", task.Name, err)
	}
	d.stats.Inc("spider:retry", 1)
	return nil
}
