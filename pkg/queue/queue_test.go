package queue_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/codefang/pkg/message"
	"github.com/Sumatoshi-tech/codefang/pkg/queue"
)

func smallConfig() queue.Config {
	return queue.Config{
		Ceiling:           1024,
		BackoffBase:       time.Millisecond,
		BackoffMultiplier: 2,
		BackoffCeiling:    10 * time.Millisecond,
	}
}

func TestTryEnqueueAcceptsBelowCeiling(t *testing.T) {
	q := queue.New(smallConfig(), nil, nil)

	res, err := q.TryEnqueue(message.NewFileInfo(1, time.Now(), message.FileInfo{Path: "a"}))
	require.NoError(t, err)
	assert.True(t, res.Accepted)
}

func TestDequeueReturnsInOrder(t *testing.T) {
	q := queue.New(smallConfig(), nil, nil)

	for i := uint64(0); i < 3; i++ {
		_, err := q.TryEnqueue(message.NewFileInfo(i, time.Now(), message.FileInfo{Path: "a"}))
		require.NoError(t, err)
	}

	for i := uint64(0); i < 3; i++ {
		msg, ok := q.Dequeue()
		require.True(t, ok)
		assert.Equal(t, i, msg.Header.Seq)
	}
}

func TestCloseDrainsThenReturnsFalse(t *testing.T) {
	q := queue.New(smallConfig(), nil, nil)

	_, err := q.TryEnqueue(message.NewFileInfo(1, time.Now(), message.FileInfo{Path: "a"}))
	require.NoError(t, err)

	q.Close()

	_, ok := q.Dequeue()
	assert.True(t, ok, "drains the remaining entry before closing")

	_, ok = q.Dequeue()
	assert.False(t, ok)
}

func TestTryEnqueueRejectedAfterClose(t *testing.T) {
	q := queue.New(smallConfig(), nil, nil)
	q.Close()

	_, err := q.TryEnqueue(message.NewFileInfo(1, time.Now(), message.FileInfo{Path: "a"}))
	require.ErrorIs(t, err, queue.ErrClosed)
}

func TestInFlightBytesNeverExceedsCeiling(t *testing.T) {
	cfg := smallConfig()
	q := queue.New(cfg, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	for i := uint64(0); i < 50; i++ {
		msg := message.NewFileChange(i, time.Now(), message.FileChange{
			Path: "x.txt", Kind: message.Modified, Insertions: 5, Deletions: 5,
		})

		if err := q.Enqueue(ctx, msg); err != nil {
			break
		}

		assert.LessOrEqual(t, q.InFlightBytes(), cfg.Ceiling+msg.EstimatedBytes())

		if i%5 == 0 {
			q.Dequeue()
		}
	}
}

func TestBackoffDurationSequence(t *testing.T) {
	cfg := queue.Config{BackoffBase: time.Second, BackoffMultiplier: 4, BackoffCeiling: 30 * time.Second}

	assert.Equal(t, time.Duration(0), cfg.BackoffDuration(0))
	assert.Equal(t, time.Second, cfg.BackoffDuration(1))
	assert.Equal(t, 4*time.Second, cfg.BackoffDuration(2))
}
