package service

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/vireo-dev/vireo/grab"
	"github.com/vireo-dev/vireo/spider/queue"
)

// RetryPolicy governs the network worker's own in-process retries for
// a single attempt: transient transport failures and a fixed set of
// retryable status codes get retried with exponential backoff before the
// attempt is reported to the dispatcher as failed. This bounds
// network_try_limit; a task that exhausts it is handed to the
// dispatcher as a failed NetworkResult, which applies its own,
// independent task-level retry budget on top.
type RetryPolicy struct {
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
	RetryableStatus   map[int]bool
}

// NewRetryPolicy returns the default policy: maxAttempts attempts, 1s initial
// backoff doubling up to 30s, retrying on 408/429/500/502/503/504.
func NewRetryPolicy(maxAttempts int) *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:       maxAttempts,
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
		RetryableStatus: map[int]bool{
			http.StatusRequestTimeout:     true,
			http.StatusTooManyRequests:    true,
			http.StatusInternalServerError: true,
			http.StatusBadGateway:         true,
			http.StatusServiceUnavailable: true,
			http.StatusGatewayTimeout:     true,
		},
	}
}

// ShouldRetry reports whether a response with statusCode should be
// retried given attempt (1-based).
func (p *RetryPolicy) ShouldRetry(statusCode, attempt int) bool {
	if attempt >= p.MaxAttempts {
		return false
	}
	return p.RetryableStatus[statusCode]
}

// CalculateBackoff returns the delay before attempt (1-based), with
// +/-25% jitter so a burst of retrying workers doesn't all wake at once.
func (p *RetryPolicy) CalculateBackoff(attempt int) time.Duration {
	backoff := float64(p.InitialBackoff)
	for i := 1; i < attempt; i++ {
		backoff *= p.BackoffMultiplier
		if backoff > float64(p.MaxBackoff) {
			backoff = float64(p.MaxBackoff)
			break
		}
	}
	jitter := backoff * 0.25 * (2*rand.Float64() - 1)
	return time.Duration(backoff + jitter)
}

func isRetryableError(err error) bool {
	var transportErr *grab.TransportError
	return errors.As(err, &transportErr)
}

// ExecuteWithRetry runs fn (one request attempt) up to MaxAttempts
// times, retrying transport errors and RetryableStatus codes with
// CalculateBackoff delays between attempts.
func (p *RetryPolicy) ExecuteWithRetry(ctx context.Context, fn func() (*grab.Document, error)) (*grab.Document, error) {
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		doc, err := fn()
		if err == nil {
			if !p.ShouldRetry(doc.StatusCode, attempt) {
				return doc, nil
			}
			lastErr = grab.NewIntegrityError("retryable status %d", doc.StatusCode)
		} else {
			if !isRetryableError(err) {
				return nil, err
			}
			lastErr = err
		}

		if attempt == p.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(p.CalculateBackoff(attempt)):
		}
	}
	return nil, lastErr
}

// NetworkPool runs a fixed number of workers that pull tasks from a
// queue.Backend, perform the request through a grab.Client, and forward
// the outcome to out. Each worker applies RetryPolicy before giving up
// on a task's network layer entirely.
type NetworkPool struct {
	backend queue.Backend
	client  *grab.Client
	policy  *RetryPolicy
	out     chan<- *NetworkResult
	logger  arbor.ILogger
}

// NewNetworkPool builds a NetworkPool. client is cloned per task so
// cookies from one task's session never leak into another's.
func NewNetworkPool(backend queue.Backend, client *grab.Client, policy *RetryPolicy, out chan<- *NetworkResult, logger arbor.ILogger) *NetworkPool {
	return &NetworkPool{backend: backend, client: client, policy: policy, out: out, logger: logger}
}

// Run drives one worker's loop until ctx is cancelled or w is stopped.
func (np *NetworkPool) Run(ctx context.Context, w *Worker) error {
	for {
		if err := w.WaitIfPaused(); err != nil {
			return err
		}

		item, err := np.backend.Get(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, queue.ErrClosed) {
				return nil
			}
			return err
		}
		task, ok := item.(*Task)
		if !ok {
			np.logger.Warn().Msg("network pool: dequeued item is not a *Task")
			continue
		}

		np.process(ctx, task)
	}
}

func (np *NetworkPool) process(ctx context.Context, task *Task) {
	taskClient := np.client.Clone()
	result := &NetworkResult{Task: task}

	req, err := task.buildRequest()
	if err != nil {
		result.Err = grab.NewFatalError(err)
		select {
		case np.out <- result:
		case <-ctx.Done():
		}
		return
	}

	doc, err := np.policy.ExecuteWithRetry(ctx, func() (*grab.Document, error) {
		return taskClient.Go(ctx, req)
	})
	if err != nil {
		task.NetworkTryCount++
		result.Err = err
	} else {
		result.Document = doc
	}

	select {
	case np.out <- result:
	case <-ctx.Done():
	}
}
