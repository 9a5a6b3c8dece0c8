package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/aegisedge/daqdriver/internal/telem"
)

func frame(n int) telem.Frame {
	f := telem.NewFrame(1)
	f.Add(telem.ChannelKey(1), telem.NewUint64Series([]uint64{uint64(n)}))
	return f
}

func TestEnqueueDequeueOrder(t *testing.T) {
	q := NewBatchQueue(4)
	assert.True(t, q.Enqueue(frame(1)))
	assert.True(t, q.Enqueue(frame(2)))

	f1, ok := q.Dequeue()
	assert.True(t, ok)
	assert.Equal(t, uint64(1), f1.Series[0].Uint64s[0])

	f2, ok := q.Dequeue()
	assert.True(t, ok)
	assert.Equal(t, uint64(2), f2.Series[0].Uint64s[0])
}

func TestEnqueueBlocksWhenFull(t *testing.T) {
	q := NewBatchQueue(1)
	assert.True(t, q.Enqueue(frame(1)))

	done := make(chan struct{})
	go func() {
		q.Enqueue(frame(2))
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Enqueue returned before space was freed")
	case <-time.After(50 * time.Millisecond):
	}

	q.Dequeue()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Enqueue never unblocked after Dequeue freed space")
	}
}

func TestDequeueTimesOutOnEmptyQueue(t *testing.T) {
	q := NewBatchQueue(1)
	start := time.Now()
	_, ok := q.Dequeue()
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), DequeueWait-50*time.Millisecond)
}

func TestResetDiscardsBufferedFrames(t *testing.T) {
	q := NewBatchQueue(4)
	q.Enqueue(frame(1))
	q.Enqueue(frame(2))
	q.Reset()
	assert.Equal(t, 0, q.Len())
}

func TestCloseUnblocksEnqueueAndDequeue(t *testing.T) {
	q := NewBatchQueue(1)
	q.Enqueue(frame(1))

	blocked := make(chan bool, 1)
	go func() { blocked <- q.Enqueue(frame(2)) }()

	time.Sleep(20 * time.Millisecond)
	q.Close()

	select {
	case ok := <-blocked:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Close did not unblock pending Enqueue")
	}
}
