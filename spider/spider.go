// Package spider is the crawl runtime: it wires a queue.Backend, a
// grab.Client, and the service package's Generator/NetworkPool/
// Dispatcher/ParserPool into a running pool of goroutines, and exposes
// the handful of types callers build Tasks and Handlers with.
package spider

import (
	"context"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/vireo-dev/vireo/grab"
	"github.com/vireo-dev/vireo/internal/common"
	"github.com/vireo-dev/vireo/spider/queue"
	"github.com/vireo-dev/vireo/spider/service"
)

// Task, Handler, Worker, Stats, and NetworkResult live in the service
// package (so service itself has no dependency back on this package);
// Spider callers use them through these aliases.
type (
	Task          = service.Task
	Handler       = service.Handler
	Worker        = service.Worker
	Stats         = service.Stats
	NetworkResult = service.NetworkResult
	Source        = service.Source
)

var (
	NewTask   = service.NewTask
	NewStats  = service.NewStats
	NewWorker = service.NewWorker
	Threshold = service.Threshold
)

// SpiderError and ParserErr (service.ParserError) are the terminal,
// non-retryable error kinds a Handler or the dispatcher may surface once a task's retry
// budgets are spent.
type (
	SpiderError = service.SpiderError
	ParserErr   = service.ParserError
)

// Options configures a Spider's worker counts and retry budgets.
type Options struct {
	ThreadNumber    int
	ParserPoolSize  int
	NetworkTryLimit int
	TaskTryLimit    int
	Valid           func(*grab.Document) bool
}

// Spider is a running crawl: a generator feeding a queue.Backend, a
// pool of network workers draining it through a grab.Client, a
// dispatcher routing results, and a pool of parser workers running task
// Handlers on the documents that pass Valid.
type Spider struct {
	opts    Options
	backend queue.Backend
	client  *grab.Client
	stats   *Stats
	logger  arbor.ILogger

	generator  *service.Generator
	dispatcher *service.Dispatcher
	netPool    *service.NetworkPool
	parsePool  *service.ParserPool

	resultCh chan *NetworkResult
	parseCh  chan *NetworkResult

	workers []*Worker
	wg      sync.WaitGroup
	cancel  context.CancelFunc
}

// New builds a Spider from its dependencies. backend and client are
// typically queue.NewMemory() (or queue.OpenBadger) and grab.NewClient();
// backend may be any queue.Backend implementation.
func New(backend queue.Backend, client *grab.Client, source Source, opts Options, logger arbor.ILogger) *Spider {
	if opts.ThreadNumber < 1 {
		opts.ThreadNumber = 1
	}
	if opts.ParserPoolSize < 1 {
		opts.ParserPoolSize = 1
	}

	stats := NewStats()
	resultCh := make(chan *NetworkResult, opts.ThreadNumber*2)
	parseCh := make(chan *NetworkResult, opts.ParserPoolSize*2)

	threshold := Threshold(opts.ThreadNumber)
	generator := service.NewGenerator(backend, source, threshold, logger)
	dispatcher := service.NewDispatcher(backend, parseCh, opts.TaskTryLimit, stats, logger)
	dispatcher.Valid = opts.Valid
	netPool := service.NewNetworkPool(backend, client, service.NewRetryPolicy(opts.NetworkTryLimit), resultCh, logger)
	parsePool := service.NewParserPool(backend, opts.TaskTryLimit, stats, logger)

	return &Spider{
		opts:       opts,
		backend:    backend,
		client:     client,
		stats:      stats,
		logger:     logger,
		generator:  generator,
		dispatcher: dispatcher,
		netPool:    netPool,
		parsePool:  parsePool,
		resultCh:   resultCh,
		parseCh:    parseCh,
	}
}

// Start launches the generator, network pool, dispatcher, and parser
// pool goroutines. Stop (or cancelling parent) tears them all down.
func (s *Spider) Start(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel

	s.spawn("generator", func() error { return s.generator.Run(ctx) })
	s.spawn("dispatcher", func() error { return s.dispatcher.Run(ctx, s.resultCh) })

	for i := 0; i < s.opts.ThreadNumber; i++ {
		w := NewWorker(i, ctx)
		s.workers = append(s.workers, w)
		s.spawn("network-worker", func() error { return s.netPool.Run(ctx, w) })
	}
	for i := 0; i < s.opts.ParserPoolSize; i++ {
		w := NewWorker(s.opts.ThreadNumber+i, ctx)
		s.workers = append(s.workers, w)
		s.spawn("parser-worker", func() error { return s.parsePool.Run(ctx, w, s.parseCh) })
	}
}

func (s *Spider) spawn(name string, fn func() error) {
	s.wg.Add(1)
	common.SafeGo(s.logger, name, func() {
		defer s.wg.Done()
		if err := fn(); err != nil {
			s.logger.Debug().Str("component", name).Err(err).Msg("spider component stopped")
		}
	})
}

// Stop cancels every component and blocks until they've all returned.
func (s *Spider) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// Pause suspends every network and parser worker in place; queued and
// in-flight requests are unaffected, but no new request starts.
func (s *Spider) Pause() {
	for _, w := range s.workers {
		w.Pause()
	}
}

// Resume wakes every paused worker.
func (s *Spider) Resume() {
	for _, w := range s.workers {
		w.Resume()
	}
}

// Stats returns a snapshot of the spider's counters.
func (s *Spider) Stats() map[string]int64 { return s.stats.Snapshot() }
