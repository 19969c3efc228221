package screencast

import (
	"encoding/base64"
	"sync"
	"testing"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingAcker struct {
	mu   sync.Mutex
	acks []int64
}

func (a *recordingAcker) AckFrame(sessionID int64) {
	a.mu.Lock()
	a.acks = append(a.acks, sessionID)
	a.mu.Unlock()
}

func (a *recordingAcker) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.acks)
}

func frameEvent(session int64, data string) *page.EventScreencastFrame {
	return &page.EventScreencastFrame{
		Data:      base64.StdEncoding.EncodeToString([]byte(data)),
		SessionID: session,
		Metadata:  &page.ScreencastFrameMetadata{DeviceWidth: 100, DeviceHeight: 80},
	}
}

func TestPeekLatestReturnsNewestOnly(t *testing.T) {
	acker := &recordingAcker{}
	r := NewRing(acker)

	r.Publish(frameEvent(1, "one"))
	r.Publish(frameEvent(2, "two"))

	h, ok := r.PeekLatest(0)
	require.True(t, ok)
	assert.Equal(t, []byte("two"), h.Frame().Data)
	assert.Equal(t, uint64(2), h.Frame().Generation)
	h.Release()

	// Nothing newer: no frame.
	_, ok = r.PeekLatest(h.Frame().Generation)
	assert.False(t, ok)
}

func TestEveryGenerationAckedExactlyOnce(t *testing.T) {
	acker := &recordingAcker{}
	r := NewRing(acker)

	// Mixed consumption: some frames peeked and released, some displaced
	// unseen, one retained at shutdown.
	for i := int64(1); i <= 10; i++ {
		r.Publish(frameEvent(i, "data"))
		if i%3 == 0 {
			if h, ok := r.PeekLatest(uint64(i - 1)); ok {
				h.Release()
			}
		}
	}
	r.Drain()

	acker.mu.Lock()
	defer acker.mu.Unlock()
	require.Len(t, acker.acks, 10)
	seen := map[int64]int{}
	for _, s := range acker.acks {
		seen[s]++
	}
	for i := int64(1); i <= 10; i++ {
		assert.Equal(t, 1, seen[i], "session %d", i)
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	acker := &recordingAcker{}
	r := NewRing(acker)
	r.Publish(frameEvent(5, "x"))

	h, ok := r.PeekLatest(0)
	require.True(t, ok)
	h.Release()
	h.Release()
	assert.Equal(t, 1, acker.count())
}

func TestGenerationStrictlyIncreases(t *testing.T) {
	r := NewRing(&recordingAcker{})
	var last uint64
	for i := int64(1); i <= 5; i++ {
		r.Publish(frameEvent(i, "d"))
		h, ok := r.PeekLatest(last)
		require.True(t, ok)
		assert.Greater(t, h.Frame().Generation, last)
		last = h.Frame().Generation
		h.Release()
	}
}

func TestSkippedFramesCounted(t *testing.T) {
	r := NewRing(&recordingAcker{})
	for i := int64(1); i <= 5; i++ {
		r.Publish(frameEvent(i, "d"))
	}
	h, ok := r.PeekLatest(0)
	require.True(t, ok)
	h.Release()
	// Generations 1-4 were displaced before rendering.
	assert.Equal(t, uint64(4), r.Skipped())
}

func TestMalformedFrameDroppedButAcked(t *testing.T) {
	acker := &recordingAcker{}
	r := NewRing(acker)

	r.Publish(&page.EventScreencastFrame{SessionID: 42}) // no metadata, no data
	_, ok := r.PeekLatest(0)
	assert.False(t, ok)
	assert.Equal(t, 1, acker.count())
	assert.Equal(t, 1, r.ConsecutiveFailures())

	// Three consecutive failures trigger a restart upstream.
	r.Publish(&page.EventScreencastFrame{SessionID: 43})
	r.Publish(&page.EventScreencastFrame{SessionID: 44})
	assert.Equal(t, 3, r.ConsecutiveFailures())

	// A good frame resets the count.
	r.Publish(frameEvent(45, "ok"))
	assert.Equal(t, 0, r.ConsecutiveFailures())
}

func TestPublishNeverBlocksConsumer(t *testing.T) {
	r := NewRing(&recordingAcker{})
	done := make(chan struct{})
	go func() {
		for i := int64(1); i <= 1000; i++ {
			r.Publish(frameEvent(i, "d"))
		}
		close(done)
	}()
	var last uint64
	for {
		select {
		case <-done:
			return
		default:
		}
		if h, ok := r.PeekLatest(last); ok {
			last = h.Frame().Generation
			h.Release()
		}
		time.Sleep(time.Microsecond)
	}
}
