package viewer

import (
	"testing"

	"github.com/chromedp/cdproto/input"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teamchong/termweb/pkg/termio"
)

type recordingDispatcher struct {
	sent []*input.DispatchMouseEventParams
	err  error
}

func (d *recordingDispatcher) fn(p *input.DispatchMouseEventParams) error {
	if d.err != nil {
		return d.err
	}
	d.sent = append(d.sent, p)
	return nil
}

func TestMoveCoalescedToLatest(t *testing.T) {
	d := &recordingDispatcher{}
	b := NewBus(d.fn, false)

	for i := 0; i < 5000; i++ {
		b.Record(termio.Mouse{Kind: termio.MouseMove}, i, i*2)
	}
	b.Tick()

	require.Len(t, d.sent, 1)
	assert.Equal(t, input.MouseMoved, d.sent[0].Type)
	assert.Equal(t, float64(4999), d.sent[0].X)
	assert.Equal(t, float64(9998), d.sent[0].Y)
}

func TestWheelAccumulatesWithinTick(t *testing.T) {
	d := &recordingDispatcher{}
	b := NewBus(d.fn, false)

	b.Record(termio.Mouse{Kind: termio.MouseWheel, DY: 1}, 10, 10)
	b.Record(termio.Mouse{Kind: termio.MouseWheel, DY: 1}, 10, 10)
	b.Record(termio.Mouse{Kind: termio.MouseWheel, DY: -1}, 10, 10)
	b.Tick()

	require.Len(t, d.sent, 1)
	assert.Equal(t, input.MouseWheel, d.sent[0].Type)
	assert.Equal(t, float64(wheelStepPx), d.sent[0].DeltaY)
}

func TestNaturalScrollInvertsVerticalDelta(t *testing.T) {
	d := &recordingDispatcher{}
	b := NewBus(d.fn, true)

	b.Record(termio.Mouse{Kind: termio.MouseWheel, DY: 2}, 0, 0)
	b.Tick()

	require.Len(t, d.sent, 1)
	assert.Equal(t, float64(-2*wheelStepPx), d.sent[0].DeltaY)
}

func TestPressReleaseOrderPreserved(t *testing.T) {
	d := &recordingDispatcher{}
	b := NewBus(d.fn, false)

	b.Record(termio.Mouse{Kind: termio.MousePress, Button: termio.MouseLeft}, 5, 5)
	b.Record(termio.Mouse{Kind: termio.MouseMove}, 6, 6)
	b.Record(termio.Mouse{Kind: termio.MouseRelease, Button: termio.MouseLeft}, 7, 7)
	b.Tick()

	require.Len(t, d.sent, 3)
	assert.Equal(t, input.MousePressed, d.sent[0].Type)
	assert.Equal(t, input.MouseReleased, d.sent[1].Type)
	// The move flushes last, after the button queue.
	assert.Equal(t, input.MouseMoved, d.sent[2].Type)
}

func TestButtonsMaskTracksHeldButtons(t *testing.T) {
	d := &recordingDispatcher{}
	b := NewBus(d.fn, false)

	b.Record(termio.Mouse{Kind: termio.MousePress, Button: termio.MouseLeft}, 1, 1)
	b.Tick()
	b.Record(termio.Mouse{Kind: termio.MouseDrag, Button: termio.MouseLeft}, 2, 2)
	b.Tick()
	b.Record(termio.Mouse{Kind: termio.MouseRelease, Button: termio.MouseLeft}, 3, 3)
	b.Tick()

	require.Len(t, d.sent, 3)
	assert.Equal(t, int64(1), d.sent[0].Buttons)
	assert.Equal(t, int64(1), d.sent[1].Buttons, "drag keeps the button held")
	assert.Equal(t, int64(0), d.sent[2].Buttons)
}

func TestBurstYieldsOneMovePerTick(t *testing.T) {
	// 5000 moves across 4 ticks: at most 4 mouseMoved dispatches.
	d := &recordingDispatcher{}
	b := NewBus(d.fn, false)

	for tick := 0; tick < 4; tick++ {
		for i := 0; i < 1250; i++ {
			b.Record(termio.Mouse{Kind: termio.MouseMove}, i, tick)
		}
		b.Tick()
	}

	assert.Len(t, d.sent, 4)
	for _, p := range d.sent {
		assert.Equal(t, input.MouseMoved, p.Type)
	}
}

func TestBlockedWriterSkipsTickButKeepsNothingStale(t *testing.T) {
	d := &recordingDispatcher{err: errors.New("blocked")}
	b := NewBus(d.fn, false)

	b.Record(termio.Mouse{Kind: termio.MousePress, Button: termio.MouseLeft}, 1, 1)
	b.Record(termio.Mouse{Kind: termio.MouseMove}, 2, 2)
	b.Tick()
	assert.Empty(t, d.sent)

	// Writer recovers; the held press is delivered, the stale move is not.
	d.err = nil
	b.Tick()
	require.Len(t, d.sent, 1)
	assert.Equal(t, input.MousePressed, d.sent[0].Type)
}

func TestResetClearsPendingWithoutDispatch(t *testing.T) {
	d := &recordingDispatcher{}
	b := NewBus(d.fn, false)

	b.Record(termio.Mouse{Kind: termio.MousePress, Button: termio.MouseLeft}, 1, 1)
	b.Record(termio.Mouse{Kind: termio.MouseWheel, DY: 3}, 1, 1)
	b.Reset()
	b.Tick()
	assert.Empty(t, d.sent)
}

func TestModifierMaskMatchesCDP(t *testing.T) {
	assert.Equal(t, input.Modifier(1), cdpModifiers(termio.ModAlt))
	assert.Equal(t, input.Modifier(2), cdpModifiers(termio.ModCtrl))
	assert.Equal(t, input.Modifier(4), cdpModifiers(termio.ModMeta))
	assert.Equal(t, input.Modifier(8), cdpModifiers(termio.ModShift))
	assert.Equal(t, input.Modifier(10), cdpModifiers(termio.ModCtrl|termio.ModShift))
}
