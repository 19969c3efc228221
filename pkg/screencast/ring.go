// Package screencast buffers Page.screencastFrame events for the viewer:
// a depth-1 ring holding the newest frame, a strictly increasing
// generation counter, and an ack protocol that guarantees Chrome never
// stalls waiting for a frame acknowledgement.
package screencast

import (
	"encoding/base64"
	"sync"
	"sync/atomic"

	"github.com/chromedp/cdproto/page"
)

// Acker acknowledges a screencast frame by its CDP session token.
// Implemented by the CDP client.
type Acker interface {
	AckFrame(sessionID int64)
}

// Frame is one decoded screencast frame. Data holds the image bytes
// (JPEG or PNG, already base64-decoded).
type Frame struct {
	Data       []byte
	Width      int
	Height     int
	SessionID  int64
	Generation uint64

	ackOnce sync.Once
}

// Ring retains only the latest frame. Single producer (the CDP reader),
// single consumer (the viewer render path). Every published frame is
// acked exactly once: either when it is displaced unconsumed, or when
// the consumer releases its handle.
type Ring struct {
	acker Acker

	mu        sync.Mutex
	latest    *Frame
	handedOut bool
	gen       uint64

	skipped    atomic.Uint64
	parsefails int
}

// NewRing creates a ring acking through the given Acker.
func NewRing(acker Acker) *Ring {
	return &Ring{acker: acker}
}

// Publish installs ev as the newest frame. Called on the CDP reader
// goroutine; decodes the base64 payload, then does an O(1) swap and
// never blocks. A malformed event (no metadata, or data that is empty or
// not valid base64) is dropped, but still acked.
func (r *Ring) Publish(ev *page.EventScreencastFrame) {
	var data []byte
	if ev.Metadata != nil {
		if b, err := base64.StdEncoding.DecodeString(ev.Data); err == nil {
			data = b
		}
	}
	if len(data) == 0 {
		r.ack(&Frame{SessionID: ev.SessionID})
		r.mu.Lock()
		r.parsefails++
		r.mu.Unlock()
		return
	}

	r.mu.Lock()
	r.gen++
	old := r.latest
	oldOut := r.handedOut
	r.latest = &Frame{
		Data:       data,
		Width:      int(ev.Metadata.DeviceWidth),
		Height:     int(ev.Metadata.DeviceHeight),
		SessionID:  ev.SessionID,
		Generation: r.gen,
	}
	r.handedOut = false
	r.parsefails = 0
	r.mu.Unlock()

	if old != nil && !oldOut {
		// Displaced before anyone saw it; ack now so Chrome keeps going.
		r.ack(old)
	}
}

// PeekLatest hands out the newest frame if its generation is beyond
// lastRendered. The returned handle must be released (even on error
// paths); release sends the ack. Generations skipped over are counted.
func (r *Ring) PeekLatest(lastRendered uint64) (*Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.latest == nil || r.latest.Generation <= lastRendered {
		return nil, false
	}
	if gap := r.latest.Generation - lastRendered - 1; gap > 0 {
		r.skipped.Add(gap)
	}
	r.handedOut = true
	return &Handle{ring: r, frame: r.latest}, true
}

// HasNewer reports whether a frame beyond gen is waiting, without
// handing it out.
func (r *Ring) HasNewer(gen uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.latest != nil && r.latest.Generation > gen
}

// Skipped returns how many frames the consumer never saw because a
// newer one displaced them.
func (r *Ring) Skipped() uint64 { return r.skipped.Load() }

// ConsecutiveFailures reports malformed frames since the last good one.
// Three in a row signal that the screencast session should restart.
func (r *Ring) ConsecutiveFailures() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.parsefails
}

// Drain acks the retained frame if it was never handed out. Called on
// shutdown so no frame is left unacknowledged.
func (r *Ring) Drain() {
	r.mu.Lock()
	f := r.latest
	out := r.handedOut
	r.latest = nil
	r.mu.Unlock()
	if f != nil && !out {
		r.ack(f)
	}
}

func (r *Ring) ack(f *Frame) {
	f.ackOnce.Do(func() {
		if r.acker != nil {
			r.acker.AckFrame(f.SessionID)
		}
	})
}

// Handle is a borrowed reference to the newest frame. Dropping it via
// Release acknowledges the frame; Release is idempotent.
type Handle struct {
	ring  *Ring
	frame *Frame
}

func (h *Handle) Frame() *Frame { return h.frame }

func (h *Handle) Release() {
	h.ring.ack(h.frame)
}
