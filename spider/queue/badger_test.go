package queue

import (
	"context"
	"encoding/gob"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type badgerItem struct {
	Name string
}

func init() {
	gob.Register(&badgerItem{})
}

func openTestBadger(t *testing.T) *Badger {
	t.Helper()
	b, err := OpenBadger(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestBadgerPutAndGetRoundTrips(t *testing.T) {
	b := openTestBadger(t)
	require.NoError(t, b.Put(context.Background(), &badgerItem{Name: "a"}, 1, nil))

	got, err := b.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &badgerItem{Name: "a"}, got)
}

func TestBadgerHigherPrioritySortsFirst(t *testing.T) {
	b := openTestBadger(t)
	ctx := context.Background()
	require.NoError(t, b.Put(ctx, &badgerItem{Name: "low"}, 1, nil))
	require.NoError(t, b.Put(ctx, &badgerItem{Name: "high"}, 10, nil))

	first, err := b.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "high", first.(*badgerItem).Name)
}

func TestBadgerScheduledItemPromotedWhenDue(t *testing.T) {
	b := openTestBadger(t)
	due := time.Now().Add(30 * time.Millisecond)
	require.NoError(t, b.Put(context.Background(), &badgerItem{Name: "later"}, 5, &due))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	got, err := b.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "later", got.(*badgerItem).Name)
}

func TestBadgerSizeCountsReadyAndScheduled(t *testing.T) {
	b := openTestBadger(t)
	ctx := context.Background()
	future := time.Now().Add(time.Hour)
	require.NoError(t, b.Put(ctx, &badgerItem{Name: "ready"}, 1, nil))
	require.NoError(t, b.Put(ctx, &badgerItem{Name: "scheduled"}, 1, &future))

	size, err := b.Size()
	require.NoError(t, err)
	assert.Equal(t, 2, size)
}

func TestBadgerClearEmptiesStore(t *testing.T) {
	b := openTestBadger(t)
	require.NoError(t, b.Put(context.Background(), &badgerItem{Name: "a"}, 1, nil))
	require.NoError(t, b.Clear())

	size, err := b.Size()
	require.NoError(t, err)
	assert.Zero(t, size)
}

func TestBadgerGetUnblocksOnContextCancel(t *testing.T) {
	b := openTestBadger(t)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := b.Get(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
