package service

import (
	"context"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/vireo-dev/vireo/spider/queue"
)

// pollInterval is how long the generator sleeps between checks of the
// queue's size when it is at or above threshold.
const pollInterval = 100 * time.Millisecond

// Source yields the next seed Task, reporting ok=false once exhausted
// (the Go-native equivalent of the source iterator raising
// StopIteration).
type Source interface {
	Next() (task *Task, ok bool, err error)
}

// Generator keeps backend topped up with ready work without loading an
// entire (possibly unbounded) Source into memory at once: it stops
// pulling from Source whenever backend's size reaches threshold, and
// resumes once workers have drained it back down.
type Generator struct {
	backend   queue.Backend
	source    Source
	threshold int
	logger    arbor.ILogger
}

// NewGenerator builds a Generator. threshold should be at least
// max(200, threadNumber*2) so the network pool never starves waiting on
// the generator to notice it has room.
func NewGenerator(backend queue.Backend, source Source, threshold int, logger arbor.ILogger) *Generator {
	if threshold < 1 {
		threshold = 1
	}
	return &Generator{backend: backend, source: source, threshold: threshold, logger: logger}
}

// Threshold returns max(200, threadNumber*2), the default sizing rule.
func Threshold(threadNumber int) int {
	if threadNumber*2 > 200 {
		return threadNumber * 2
	}
	return 200
}

// Run pulls tasks from Source into backend until Source is exhausted or
// ctx is cancelled.
func (g *Generator) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		size, err := g.backend.Size()
		if err != nil {
			return err
		}
		if size >= g.threshold {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(pollInterval):
			}
			continue
		}

		task, ok, err := g.source.Next()
		if err != nil {
			return err
		}
		if !ok {
			g.logger.Debug().Msg("task generator: source exhausted")
			return nil
		}

		if err := g.backend.Put(ctx, task, task.Priority, task.ScheduleTime); err != nil {
			return err
		}
	}
}
