package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerWaitIfPausedBlocksUntilResume(t *testing.T) {
	w := NewWorker(0, context.Background())
	w.Pause()
	assert.True(t, w.Paused())

	unblocked := make(chan error, 1)
	go func() { unblocked <- w.WaitIfPaused() }()

	select {
	case <-unblocked:
		t.Fatal("WaitIfPaused returned before Resume was called")
	case <-time.After(20 * time.Millisecond):
	}

	w.Resume()
	select {
	case err := <-unblocked:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("WaitIfPaused did not unblock after Resume")
	}
}

func TestWorkerStopUnblocksPausedWait(t *testing.T) {
	w := NewWorker(0, context.Background())
	w.Pause()

	unblocked := make(chan error, 1)
	go func() { unblocked <- w.WaitIfPaused() }()

	time.Sleep(10 * time.Millisecond)
	w.Stop()

	select {
	case err := <-unblocked:
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("WaitIfPaused did not unblock after Stop")
	}
}

func TestWorkerWaitIfPausedReturnsImmediatelyWhenNotPaused(t *testing.T) {
	w := NewWorker(0, context.Background())
	assert.NoError(t, w.WaitIfPaused())
}
