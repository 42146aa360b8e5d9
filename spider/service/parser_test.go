package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vireo-dev/vireo/grab"
	"github.com/vireo-dev/vireo/spider/queue"
)

func TestParserPoolEnqueuesFollowUpTasks(t *testing.T) {
	backend := queue.NewMemory()
	stats := NewStats()
	followUp := NewTask("next", "https://example.com/next", nil)

	task := NewTask("t", "https://example.com", func(doc *grab.Document, task *Task) ([]*Task, error) {
		return []*Task{followUp}, nil
	})

	pp := NewParserPool(backend, 3, stats, testLogger())
	w := NewWorker(0, context.Background())
	in := make(chan *NetworkResult, 1)
	in <- &NetworkResult{Task: task, Document: &grab.Document{StatusCode: 200}}
	close(in)

	require.NoError(t, pp.Run(context.Background(), w, in))

	size, err := backend.Size()
	require.NoError(t, err)
	assert.Equal(t, 1, size)
	assert.Equal(t, int64(1), stats.Get("spider:parsed"))
}

func TestParserPoolRetriesOnHandlerError(t *testing.T) {
	backend := queue.NewMemory()
	stats := NewStats()

	task := NewTask("t", "https://example.com", func(doc *grab.Document, task *Task) ([]*Task, error) {
		return nil, errors.New("malformed page")
	})

	pp := NewParserPool(backend, 2, stats, testLogger())
	w := NewWorker(0, context.Background())
	in := make(chan *NetworkResult, 1)
	in <- &NetworkResult{Task: task, Document: &grab.Document{StatusCode: 200}}
	close(in)

	require.NoError(t, pp.Run(context.Background(), w, in))

	size, err := backend.Size()
	require.NoError(t, err)
	assert.Equal(t, 1, size)
	assert.Equal(t, int64(1), stats.Get("spider:retry:parser"))

	requeued, err := backend.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, requeued.(*Task).TaskTryCount)
}

func TestParserPoolDropsTaskAfterTryLimitExceeded(t *testing.T) {
	backend := queue.NewMemory()
	stats := NewStats()

	task := NewTask("t", "https://example.com", func(doc *grab.Document, task *Task) ([]*Task, error) {
		return nil, errors.New("malformed page")
	})
	task.TaskTryCount = 2

	pp := NewParserPool(backend, 2, stats, testLogger())
	w := NewWorker(0, context.Background())
	in := make(chan *NetworkResult, 1)
	in <- &NetworkResult{Task: task, Document: &grab.Document{StatusCode: 200}}
	close(in)

	require.NoError(t, pp.Run(context.Background(), w, in))

	size, err := backend.Size()
	require.NoError(t, err)
	assert.Zero(t, size)
	assert.Equal(t, int64(1), stats.Get("spider:error:parser"))
}

func TestParserPoolNilHandlerJustCountsParsed(t *testing.T) {
	backend := queue.NewMemory()
	stats := NewStats()
	task := NewTask("t", "https://example.com", nil)

	pp := NewParserPool(backend, 2, stats, testLogger())
	w := NewWorker(0, context.Background())
	in := make(chan *NetworkResult, 1)
	in <- &NetworkResult{Task: task, Document: &grab.Document{StatusCode: 200}}
	close(in)

	require.NoError(t, pp.Run(context.Background(), w, in))
	assert.Equal(t, int64(1), stats.Get("spider:parsed"))
}
