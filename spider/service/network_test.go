package service

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vireo-dev/vireo/grab"
)

func TestRetryPolicyShouldRetryRespectsMaxAttempts(t *testing.T) {
	p := NewRetryPolicy(3)
	assert.True(t, p.ShouldRetry(http.StatusServiceUnavailable, 1))
	assert.True(t, p.ShouldRetry(http.StatusServiceUnavailable, 2))
	assert.False(t, p.ShouldRetry(http.StatusServiceUnavailable, 3))
}

func TestRetryPolicyShouldRetryOnlyRetryableStatus(t *testing.T) {
	p := NewRetryPolicy(3)
	assert.False(t, p.ShouldRetry(http.StatusNotFound, 1))
	assert.True(t, p.ShouldRetry(http.StatusTooManyRequests, 1))
}

func TestRetryPolicyCalculateBackoffGrowsAndCaps(t *testing.T) {
	p := NewRetryPolicy(10)
	p.InitialBackoff = 100 * time.Millisecond
	p.MaxBackoff = 300 * time.Millisecond
	p.BackoffMultiplier = 2.0

	b1 := p.CalculateBackoff(1)
	assert.LessOrEqual(t, b1, p.InitialBackoff+p.InitialBackoff/4)

	b5 := p.CalculateBackoff(5)
	assert.GreaterOrEqual(t, b5, p.MaxBackoff-p.MaxBackoff/4)
	assert.LessOrEqual(t, b5, p.MaxBackoff+p.MaxBackoff/4)
}

func TestExecuteWithRetrySucceedsAfterTransientFailures(t *testing.T) {
	p := NewRetryPolicy(3)
	p.InitialBackoff = time.Millisecond
	p.MaxBackoff = time.Millisecond

	attempts := 0
	doc, err := p.ExecuteWithRetry(context.Background(), func() (*grab.Document, error) {
		attempts++
		if attempts < 3 {
			return nil, grab.NewTransportError("dial", errors.New("connection refused"))
		}
		return &grab.Document{StatusCode: http.StatusOK}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, doc.StatusCode)
	assert.Equal(t, 3, attempts)
}

func TestExecuteWithRetryGivesUpOnFatalError(t *testing.T) {
	p := NewRetryPolicy(5)
	attempts := 0
	_, err := p.ExecuteWithRetry(context.Background(), func() (*grab.Document, error) {
		attempts++
		return nil, grab.NewFatalError(errors.New("unsupported scheme"))
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestExecuteWithRetryReturnsLastResponseAfterAttemptsExhausted(t *testing.T) {
	p := NewRetryPolicy(2)
	p.InitialBackoff = time.Millisecond
	p.MaxBackoff = time.Millisecond

	attempts := 0
	doc, err := p.ExecuteWithRetry(context.Background(), func() (*grab.Document, error) {
		attempts++
		return &grab.Document{StatusCode: http.StatusServiceUnavailable}, nil
	})
	require.NoError(t, err, "once the attempt budget is spent the last response is handed back as-is, not turned into an error")
	assert.Equal(t, http.StatusServiceUnavailable, doc.StatusCode)
	assert.Equal(t, 2, attempts)
}

func TestExecuteWithRetryRespectsContextCancellation(t *testing.T) {
	p := NewRetryPolicy(5)
	p.InitialBackoff = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := p.ExecuteWithRetry(ctx, func() (*grab.Document, error) {
		return nil, grab.NewTransportError("dial", errors.New("refused"))
	})
	require.ErrorIs(t, err, context.Canceled)
}
