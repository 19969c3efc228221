package viewer

import (
	"sync"
	"time"

	"github.com/chromedp/cdproto/input"

	"github.com/teamchong/termweb/pkg/termio"
)

// TickInterval is the mouse bus dispatch cadence.
const TickInterval = time.Second / 30

// wheelStepPx is the pixel delta of one wheel notch.
const wheelStepPx = 40

// MouseDispatcher sends one Input.dispatchMouseEvent. A non-nil error
// means the writer is blocked; the bus ends the tick there. Unsent
// button events are kept for the next tick; the tick's wheel and move
// are dropped and latest-only coalescing absorbs the lag.
type MouseDispatcher func(*input.DispatchMouseEventParams) error

// Bus decouples mouse ingest from CDP dispatch so input bursts never
// saturate the writer. Recording rules:
//
//   - move/drag: only the latest unsent position is kept
//   - wheel: deltas accumulate within the tick window
//   - press/release: queued in order, never dropped
type Bus struct {
	dispatch      MouseDispatcher
	naturalScroll bool

	mu      sync.Mutex
	buttons []*input.DispatchMouseEventParams
	move    *input.DispatchMouseEventParams
	wheel   *input.DispatchMouseEventParams

	// buttonsDown tracks held buttons for the Buttons bitmask on moves.
	buttonsDown int64
}

// NewBus creates a bus dispatching through fn. naturalScroll inverts the
// vertical wheel sign before dispatch.
func NewBus(fn MouseDispatcher, naturalScroll bool) *Bus {
	return &Bus{dispatch: fn, naturalScroll: naturalScroll}
}

// Record ingests one mouse event already mapped to browser coordinates.
func (b *Bus) Record(ev termio.Mouse, bx, by int) {
	mods := cdpModifiers(ev.Mod)
	x, y := float64(bx), float64(by)

	b.mu.Lock()
	defer b.mu.Unlock()

	switch ev.Kind {
	case termio.MousePress:
		b.buttonsDown |= buttonBit(ev.Button)
		p := &input.DispatchMouseEventParams{
			Type: input.MousePressed, X: x, Y: y,
			Button: cdpButton(ev.Button), Buttons: b.buttonsDown,
			ClickCount: 1, Modifiers: mods,
		}
		b.buttons = append(b.buttons, p)
	case termio.MouseRelease:
		b.buttonsDown &^= buttonBit(ev.Button)
		p := &input.DispatchMouseEventParams{
			Type: input.MouseReleased, X: x, Y: y,
			Button: cdpButton(ev.Button), Buttons: b.buttonsDown,
			ClickCount: 1, Modifiers: mods,
		}
		b.buttons = append(b.buttons, p)
	case termio.MouseMove, termio.MouseDrag:
		b.move = &input.DispatchMouseEventParams{
			Type: input.MouseMoved, X: x, Y: y,
			Button: input.None, Buttons: b.buttonsDown,
			Modifiers: mods,
		}
	case termio.MouseWheel:
		dy := float64(ev.DY) * wheelStepPx
		if b.naturalScroll {
			dy = -dy
		}
		if b.wheel == nil {
			b.wheel = &input.DispatchMouseEventParams{
				Type: input.MouseWheel, X: x, Y: y,
				Button: input.None, Modifiers: mods,
			}
		}
		b.wheel.X, b.wheel.Y = x, y
		b.wheel.DeltaX += float64(ev.DX) * wheelStepPx
		b.wheel.DeltaY += dy
	}
}

// Tick flushes the window: queued button events in order, then the
// accumulated wheel delta, then the single latest move.
func (b *Bus) Tick() {
	b.mu.Lock()
	buttons := b.buttons
	wheel := b.wheel
	move := b.move
	b.buttons = nil
	b.wheel = nil
	b.move = nil
	b.mu.Unlock()

	for i, p := range buttons {
		if b.dispatch(p) != nil {
			// Put the unsent buttons back ahead of anything recorded since.
			b.mu.Lock()
			b.buttons = append(append([]*input.DispatchMouseEventParams{}, buttons[i:]...), b.buttons...)
			b.mu.Unlock()
			return
		}
	}
	if wheel != nil && (wheel.DeltaX != 0 || wheel.DeltaY != 0) {
		if b.dispatch(wheel) != nil {
			return
		}
	}
	if move != nil {
		_ = b.dispatch(move)
	}
}

// Reset drops all pending entries without dispatching.
func (b *Bus) Reset() {
	b.mu.Lock()
	b.buttons = nil
	b.wheel = nil
	b.move = nil
	b.mu.Unlock()
}

func cdpButton(btn termio.MouseButton) input.MouseButton {
	switch btn {
	case termio.MouseLeft:
		return input.Left
	case termio.MouseMiddle:
		return input.Middle
	case termio.MouseRight:
		return input.Right
	default:
		return input.None
	}
}

func buttonBit(btn termio.MouseButton) int64 {
	switch btn {
	case termio.MouseLeft:
		return 1
	case termio.MouseRight:
		return 2
	case termio.MouseMiddle:
		return 4
	default:
		return 0
	}
}

// cdpModifiers converts the terminal modifier mask to the CDP mask
// (1=Alt, 2=Ctrl, 4=Meta, 8=Shift).
func cdpModifiers(m termio.Mod) input.Modifier {
	var out input.Modifier
	if m.Contains(termio.ModAlt) {
		out |= input.ModifierAlt
	}
	if m.Contains(termio.ModCtrl) {
		out |= input.ModifierCtrl
	}
	if m.Contains(termio.ModMeta) {
		out |= input.ModifierMeta
	}
	if m.Contains(termio.ModShift) {
		out |= input.ModifierShift
	}
	return out
}
