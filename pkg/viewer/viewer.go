package viewer

import (
	"context"
	"encoding/json"
	"expvar"
	"log/slog"
	"time"

	cdpinput "github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/page"
	"github.com/pkg/errors"

	"github.com/teamchong/termweb/pkg/cdp"
	"github.com/teamchong/termweb/pkg/kitty"
	"github.com/teamchong/termweb/pkg/screencast"
	"github.com/teamchong/termweb/pkg/termio"
)

// Mode is the viewer's interaction mode.
type Mode int

const (
	ModeNormal Mode = iota
	ModeURLPrompt
	ModeForm
	ModeTextInput
	ModeHelp
	ModeDialog
)

// Session is the slice of the CDP client the viewer drives. Narrow
// enough to fake in tests.
type Session interface {
	Navigate(ctx context.Context, url string) error
	Reload(ctx context.Context, ignoreCache bool) error
	StopLoading(ctx context.Context) error
	GoBack(ctx context.Context) error
	GoForward(ctx context.Context) error
	NavigationHistory(ctx context.Context) (cdp.NavHistory, error)
	SetViewport(ctx context.Context, width, height int, dpr float64) error
	StartScreencast(ctx context.Context, opts cdp.ScreencastOptions) error
	StopScreencast(ctx context.Context) error
	DispatchKey(ctx context.Context, params *cdpinput.DispatchKeyEventParams) error
	DispatchMouse(ctx context.Context, params *cdpinput.DispatchMouseEventParams) error
	InsertText(ctx context.Context, text string) error
	Evaluate(ctx context.Context, expr string) (json.RawMessage, error)
	HandleDialog(ctx context.Context, accept bool, promptText string) error
	HandleFileChooser(ctx context.Context, files []string) error
	DrainEvents() []cdp.Event
	TookNavigation() bool
	AckFrame(sessionID int64)
	SetFrameFunc(cdp.FrameFunc)
	Done() <-chan struct{}
}

// Options tunes the viewer.
type Options struct {
	StartURL       string
	FPSCap         int
	Quality        screencast.QualityTier
	NoToolbar      bool
	DisableHotkeys bool
	DisableHints   bool
	NaturalScroll  bool
	AllowedRoots   []string
	DownloadDir    string
	Picker         PickerFunc
	Clipboard      Clipboard
	Log            *slog.Logger
}

// Maximum frame the SHM segment must hold; beyond this the emitter
// falls back to base64.
const (
	maxFrameWidth  = 4096
	maxFrameHeight = 4096
)

// loadingGrace keeps the stop button visible long enough to be usable
// even on instant loads.
const loadingGrace = 300 * time.Millisecond

const tickSleep = 5 * time.Millisecond

// Session counters, served by the optional debug listener.
var (
	statFramesRendered = expvar.NewInt("termweb_frames_rendered")
	statFramesSkipped  = expvar.NewInt("termweb_frames_skipped")
	statInputEvents    = expvar.NewInt("termweb_input_events")
)

// Viewer owns all terminal-side state: the emitter, toolbar, mode
// machine, and the per-tick loop. Everything it touches runs on one
// goroutine; the CDP reader feeds it through the ring and the events
// FIFO.
type Viewer struct {
	term    termio.Terminal
	session Session
	emitter *kitty.Emitter
	ring    *screencast.Ring
	toolbar *Toolbar
	bus     *Bus
	mapper  *Mapper
	bridge  *FSBridge
	clip    Clipboard
	log     *slog.Logger
	opts    Options

	mode    Mode
	running bool
	uiDirty bool

	currentURL string
	isLoading  bool
	loadStart  time.Time
	canBack    bool
	canForward bool

	format      page.ScreencastFormat
	chromeW     int
	chromeH     int
	dpr         float64
	toolbarRows int
	toolbarPx   int

	lastGen     uint64
	lastRender  time.Time
	minInterval time.Duration
	decodeFails int

	contentImg uint32
	cursorImg  uint32
	toolbarImg uint32
	overlayImg uint32

	cursorX, cursorY int // terminal px of the pointer overlay

	dialog *dialogState
	form   *formState

	statusUntil time.Time

	lastBusTick time.Time
}

// New wires a viewer over an open terminal and an attached CDP session.
func New(term termio.Terminal, session Session, opts Options) *Viewer {
	log := opts.Log
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	clip := opts.Clipboard
	if clip == nil {
		clip = SystemClipboard()
	}
	picker := opts.Picker
	if picker == nil {
		picker = OSPicker
	}

	var shm *kitty.SHMBuffer
	format := page.ScreencastFormatPng
	if kitty.SHMAllowed() {
		if b, err := kitty.NewSHMBuffer(maxFrameWidth, maxFrameHeight); err == nil {
			shm = b
			format = page.ScreencastFormatJpeg
		} else {
			log.Debug("shm unavailable, using base64 png path", "err", err)
		}
	}

	v := &Viewer{
		term:    term,
		session: session,
		emitter: kitty.NewEmitter(term, shm),
		clip:    clip,
		log:     log,
		opts:    opts,
		format:  format,
		running: true,
		uiDirty: true,
	}
	v.ring = screencast.NewRing(session)
	session.SetFrameFunc(v.ring.Publish)
	v.bus = NewBus(v.dispatchMouse, opts.NaturalScroll)
	v.bridge = NewFSBridge(opts.AllowedRoots, v.evalAsync, picker, log)
	v.applyGeometry()
	return v
}

// applyGeometry rebuilds everything derived from the terminal size.
func (v *Viewer) applyGeometry() {
	g := v.term.Geometry()
	v.toolbarPx = g.ToolbarHeightPx()
	v.toolbarRows = g.ToolbarRows()
	if v.opts.NoToolbar {
		v.toolbarPx = 0
		v.toolbarRows = 0
	}
	v.dpr = float64(g.DPR)
	v.chromeW = g.WidthPx / g.DPR
	v.chromeH = (g.HeightPx - v.toolbarPx) / g.DPR
	v.mapper = NewMapper(g, v.chromeW, v.chromeH, v.toolbarPx)
	if v.toolbarPx > 0 {
		tb := NewToolbar(g.WidthPx, v.toolbarPx)
		if v.toolbar != nil {
			tb.SetURL(v.currentURL)
			tb.SetNavState(v.canBack, v.canForward, v.isLoading)
		}
		v.toolbar = tb
	} else {
		v.toolbar = nil
	}
	v.minInterval = screencast.MinInterval(g.WidthPx*(g.HeightPx-v.toolbarPx), v.opts.FPSCap)
	v.uiDirty = true
}

// Run drives the session until quit or transport loss. The terminal
// must already be in raw mode; the caller restores it.
func (v *Viewer) Run(ctx context.Context) error {
	defer v.teardown()

	if err := v.configureViewport(ctx); err != nil {
		return err
	}
	if err := v.startScreencast(ctx); err != nil {
		return err
	}
	if v.opts.StartURL != "" {
		v.currentURL = v.opts.StartURL
		if v.toolbar != nil {
			v.toolbar.SetURL(v.opts.StartURL)
		}
	}
	if !v.opts.DisableHints {
		v.setStatus("? for help")
	}

	for v.running {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-v.session.Done():
			return errors.Wrap(cdp.ErrClosed, "browser session ended")
		default:
		}

		if v.term.Resized() {
			if err := v.handleResize(ctx); err != nil {
				v.log.Debug("resize failed", "err", err)
			}
		}

		events, err := v.term.Drain()
		if err != nil {
			return err
		}
		for _, in := range events {
			v.handleInput(ctx, in)
			if !v.running {
				return nil
			}
		}

		if time.Since(v.lastBusTick) >= TickInterval {
			v.bus.Tick()
			v.lastBusTick = time.Now()
		}

		v.maybeRenderFrame(ctx)
		v.pollEvents(ctx)

		if !v.statusUntil.IsZero() && time.Now().After(v.statusUntil) {
			v.statusUntil = time.Time{}
			if v.toolbar != nil {
				v.toolbar.SetStatus("")
			}
		}
		v.redrawUI()

		time.Sleep(tickSleep)
	}
	return nil
}

// teardown deletes live images and stops the screencast, best effort.
// Termios restore belongs to the terminal owner.
func (v *Viewer) teardown() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = v.session.StopScreencast(ctx)
	v.ring.Drain()
	v.emitter.ClearAll()
	_ = v.emitter.Flush()
	v.emitter.DisableSHM()
	v.term.ShowCursor()
}

func (v *Viewer) configureViewport(ctx context.Context) error {
	if err := v.session.SetViewport(ctx, v.chromeW, v.chromeH, v.dpr); err != nil {
		return errors.Wrap(err, "set viewport")
	}
	return nil
}

func (v *Viewer) startScreencast(ctx context.Context) error {
	quality, everyNth := v.opts.Quality.Clamp().Params()
	return v.session.StartScreencast(ctx, cdp.ScreencastOptions{
		Format:    v.format,
		Quality:   quality,
		EveryNth:  everyNth,
		MaxWidth:  int(float64(v.chromeW) * v.dpr),
		MaxHeight: int(float64(v.chromeH) * v.dpr),
	})
}

// handleResize reacts to SIGWINCH: restart the screencast at the new
// size, drop every on-screen image, and wait (bounded) for the first
// frame of the new generation.
func (v *Viewer) handleResize(ctx context.Context) error {
	_ = v.session.StopScreencast(ctx)
	v.ring.Drain()

	v.applyGeometry()

	v.emitter.ClearAll()
	if err := v.emitter.Flush(); err != nil {
		return err
	}
	v.contentImg, v.cursorImg, v.toolbarImg, v.overlayImg = 0, 0, 0, 0

	if err := v.configureViewport(ctx); err != nil {
		return err
	}
	if err := v.startScreencast(ctx); err != nil {
		return err
	}

	// Bounded wait for the first frame so the screen is not left blank.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && !v.ring.HasNewer(v.lastGen) {
		time.Sleep(10 * time.Millisecond)
	}
	v.lastRender = time.Time{}
	return nil
}

// frameVisible reports whether the current mode shows live page frames.
// Overlay modes freeze the content underneath.
func (v *Viewer) frameVisible() bool {
	switch v.mode {
	case ModeNormal, ModeForm, ModeTextInput, ModeURLPrompt:
		return true
	default:
		return false
	}
}

func (v *Viewer) maybeRenderFrame(ctx context.Context) {
	if !v.frameVisible() {
		return
	}
	if time.Since(v.lastRender) < v.minInterval {
		return
	}
	h, ok := v.ring.PeekLatest(v.lastGen)
	if !ok {
		if v.ring.ConsecutiveFailures() >= 3 {
			v.restartScreencast(ctx)
		}
		return
	}
	defer h.Release()
	f := h.Frame()

	g := v.term.Geometry()
	opts := kitty.DisplayOptions{
		Layer:   kitty.LayerContent,
		Row:     v.toolbarRows + 1,
		Col:     1,
		Columns: g.Cols,
		Rows:    g.Rows - v.toolbarRows,
	}

	v.emitter.BeginFrame()
	var id uint32
	if v.format == page.ScreencastFormatPng {
		id = v.emitter.DisplayPNG(f.Data, opts)
	} else {
		var err error
		id, err = v.emitter.DisplayJPEG(f.Data, opts)
		if err != nil {
			v.log.Debug("frame decode failed", "err", err, "generation", f.Generation)
			v.decodeFails++
			v.emitter.AbortFrame()
			v.lastGen = f.Generation
			if v.decodeFails >= 3 {
				v.restartScreencast(ctx)
			}
			return
		}
	}
	v.decodeFails = 0
	// Delete the displaced image in the same flush: bounded terminal
	// memory without a visible gap.
	if v.contentImg != 0 {
		v.emitter.Delete(v.contentImg)
	}
	if err := v.emitter.EndFrame(); err != nil {
		v.running = false
		return
	}
	v.contentImg = id
	v.lastGen = f.Generation
	v.lastRender = time.Now()
	statFramesRendered.Add(1)
	statFramesSkipped.Set(int64(v.ring.Skipped()))

	if v.isLoading && time.Since(v.loadStart) > loadingGrace {
		v.isLoading = false
		v.refreshNavState(ctx)
	}
	v.uiDirty = true
}

func (v *Viewer) restartScreencast(ctx context.Context) {
	v.log.Info("restarting screencast after repeated frame failures")
	v.decodeFails = 0
	_ = v.session.StopScreencast(ctx)
	if err := v.startScreencast(ctx); err != nil {
		v.log.Debug("screencast restart failed", "err", err)
	}
}

// redrawUI repaints the overlay layers (toolbar, cursor) when needed.
func (v *Viewer) redrawUI() {
	if v.toolbar == nil {
		v.uiDirty = false
		return
	}
	dirty := v.toolbar.Dirty() || v.uiDirty
	if !dirty {
		return
	}
	v.uiDirty = false

	data, err := v.toolbar.RenderPNG()
	if err != nil {
		v.log.Debug("toolbar render failed", "err", err)
		return
	}
	v.emitter.BeginFrame()
	id := v.emitter.DisplayPNG(data, kitty.DisplayOptions{
		Layer:   kitty.LayerToolbar,
		Row:     1,
		Col:     1,
		Columns: v.term.Geometry().Cols,
		Rows:    v.toolbarRows,
	})
	if v.toolbarImg != 0 {
		v.emitter.Delete(v.toolbarImg)
	}
	v.drawCursorOverlay()
	if err := v.emitter.EndFrame(); err != nil {
		v.running = false
		return
	}
	v.toolbarImg = id
}

// drawCursorOverlay places the pointer image at the last mouse
// position. Must be called inside an open emitter frame.
func (v *Viewer) drawCursorOverlay() {
	g := v.term.Geometry()
	if v.cursorY < v.toolbarPx {
		if v.cursorImg != 0 {
			v.emitter.Delete(v.cursorImg)
			v.cursorImg = 0
		}
		return
	}
	col := v.cursorX/g.CellWidth + 1
	row := v.cursorY/g.CellHeight + 1
	id := v.emitter.DisplayPNG(cursorPNG(), kitty.DisplayOptions{
		Layer:   kitty.LayerCursor,
		Row:     row,
		Col:     col,
		XOffset: v.cursorX % g.CellWidth,
		YOffset: v.cursorY % g.CellHeight,
	})
	if v.cursorImg != 0 {
		v.emitter.Delete(v.cursorImg)
	}
	v.cursorImg = id
}

func (v *Viewer) setStatus(s string) {
	if v.toolbar == nil {
		return
	}
	v.toolbar.SetStatus(s)
	v.statusUntil = time.Now().Add(3 * time.Second)
}

// shortCtx bounds non-critical CDP calls so a stalled browser never
// freezes the loop for the full command timeout.
func shortCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, 2*time.Second)
}

func (v *Viewer) dispatchMouse(p *cdpinput.DispatchMouseEventParams) error {
	ctx, cancel := shortCtx(context.Background())
	defer cancel()
	return v.session.DispatchMouse(ctx, p)
}

func (v *Viewer) evalAsync(js string) {
	ctx, cancel := shortCtx(context.Background())
	defer cancel()
	if _, err := v.session.Evaluate(ctx, js); err != nil {
		v.log.Debug("bridge reply failed", "err", err)
	}
}

func (v *Viewer) refreshNavState(ctx context.Context) {
	sctx, cancel := shortCtx(ctx)
	defer cancel()
	h, err := v.session.NavigationHistory(sctx)
	if err != nil {
		v.log.Debug("navigation history unavailable", "err", err)
		return
	}
	v.canBack = h.CanGoBack()
	v.canForward = h.CanGoForward()
	if len(h.Entries) > 0 && h.CurrentIndex < len(h.Entries) {
		v.currentURL = h.Entries[h.CurrentIndex].URL
	}
	if v.toolbar != nil {
		v.toolbar.SetNavState(v.canBack, v.canForward, v.isLoading)
		v.toolbar.SetURL(v.currentURL)
	}
}
