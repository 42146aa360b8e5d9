// Package queue implements the spider's task queue: a priority-ordered
// ready set plus a separate scheduled set for tasks deferred to a future
// time. It is deliberately ignorant of what a "task" is: Backend stores
// and returns opaque payloads, so the spider package can swap in a
// durable Backend without this package importing spider's Task type.
package queue

import (
	"context"
	"errors"
	"time"
)

// ErrClosed is returned by Put/Get once Close has been called.
var ErrClosed = errors.New("queue: backend closed")

// Backend is the contract a queue storage engine implements. Put
// enqueues item at priority, or defers it until scheduleTime if
// non-nil. Get blocks until an item is ready or ctx is done.
type Backend interface {
	Put(ctx context.Context, item any, priority int, scheduleTime *time.Time) error
	Get(ctx context.Context) (any, error)
	Size() (int, error)
	Clear() error
	Close() error
}
