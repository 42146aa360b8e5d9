package service

import (
	"context"

	"github.com/ternarybob/arbor"

	"github.com/vireo-dev/vireo/spider/queue"
)

// ParserPool runs a fixed number of workers that take a NetworkResult
// carrying a valid Document, invoke the task's Handler, and enqueue
// whatever follow-up tasks it returns. A handler error is treated like a
// failed validity check: the task is recycled against its task try
// budget rather than dropped outright, since a transient parse failure
// (malformed-but-probably-temporary page) deserves the same leniency a
// bad HTTP status does.
type ParserPool struct {
	backend      queue.Backend
	taskTryLimit int
	stats        *Stats
	logger       arbor.ILogger
}

// NewParserPool builds a ParserPool.
func NewParserPool(backend queue.Backend, taskTryLimit int, stats *Stats, logger arbor.ILogger) *ParserPool {
	return &ParserPool{backend: backend, taskTryLimit: taskTryLimit, stats: stats, logger: logger}
}

// Run drains results from in until ctx is cancelled or in is closed.
func (pp *ParserPool) Run(ctx context.Context, w *Worker, in <-chan *NetworkResult) error {
	for {
		if err := w.WaitIfPaused(); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case res, ok := <-in:
			if !ok {
				return nil
			}
			pp.process(ctx, res)
		}
	}
}

func (pp *ParserPool) process(ctx context.Context, res *NetworkResult) {
	if res.Task.Handler == nil {
		pp.stats.Inc("spider:parsed", 1)
		return
	}

	followUps, err := res.Task.Handler(res.Document, res.Task)
	if err != nil {
		pp.retryParse(ctx, res.Task, err)
		return
	}
	pp.stats.Inc("spider:parsed", 1)

	for _, next := range followUps {
		if err := pp.backend.Put(ctx, next, next.Priority, next.ScheduleTime); err != nil {
			pp.logger.Error().Str("task", next.Name).Err(err).Msg("failed to enqueue follow-up task")
		}
	}
}

func (pp *ParserPool) retryParse(ctx context.Context, task *Task, cause error) {
	task.TaskTryCount++
	if task.TaskTryCount > pp.taskTryLimit {
		pp.stats.Inc("spider:error:parser", 1)
		pp.logger.Warn().Str("task", task.Name).Err(NewParserError(cause)).Msg("task dropped after parser failures")
		return
	}
	task.RestoreConfig()
	retry := task.Clone()
	if err := pp.backend.Put(ctx, retry, retry.Priority, retry.ScheduleTime); err != nil {
		pp.logger.Error().Str("task", task.Name).Err(err).Msg("failed to requeue task after parser failure")
		return
	}
	pp.stats.Inc("spider:retry:parser", 1)
}
