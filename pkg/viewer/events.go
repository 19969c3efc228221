package viewer

import (
	"context"
	"encoding/json"

	"github.com/teamchong/termweb/pkg/cdp"
	"github.com/teamchong/termweb/pkg/kitty"
)

// pollEvents drains the CDP event FIFO and the navigation flag once per
// loop iteration.
func (v *Viewer) pollEvents(ctx context.Context) {
	if v.session.TookNavigation() {
		v.markLoading()
		v.refreshNavState(ctx)
		v.uiDirty = true
	}

	for _, ev := range v.session.DrainEvents() {
		switch ev.Method {
		case "Page.javascriptDialogOpening":
			v.onDialogOpening(ev)
		case "Page.javascriptDialogClosed":
			if v.mode == ModeDialog {
				v.dialog = nil
				v.exitOverlay()
			}
		case "Page.fileChooserOpened":
			v.onFileChooser(ctx)
		case "Runtime.consoleAPICalled":
			v.onConsoleMessage(ev)
		case "Browser.downloadWillBegin":
			v.onDownloadBegin(ev)
		case "Browser.downloadProgress":
			v.onDownloadProgress(ev)
		default:
			// Unknown events are never fatal.
		}
	}
}

func (v *Viewer) onDialogOpening(ev cdp.Event) {
	var params struct {
		Message       string `json:"message"`
		Type          string `json:"type"`
		DefaultPrompt string `json:"defaultPrompt"`
	}
	if err := ev.Decode(&params); err != nil {
		v.log.Debug("bad dialog event", "err", err)
		return
	}
	v.dialog = newDialogState(params.Type, params.Message, params.DefaultPrompt)
	v.mode = ModeDialog
	v.showDialogOverlay()
}

func (v *Viewer) answerDialog(ctx context.Context, accept bool) {
	d := v.dialog
	v.dialog = nil
	sctx, cancel := shortCtx(ctx)
	defer cancel()
	var promptText string
	if accept && d != nil {
		promptText = d.PromptText()
	}
	if err := v.session.HandleDialog(sctx, accept, promptText); err != nil {
		v.log.Debug("dialog answer failed", "err", err)
	}
	v.exitOverlay()
}

func (v *Viewer) onFileChooser(ctx context.Context) {
	picker := v.opts.Picker
	if picker == nil {
		picker = OSPicker
	}
	sctx, cancel := shortCtx(ctx)
	defer cancel()
	if path, ok := picker("file"); ok {
		v.bridge.AddRoot(path)
		if err := v.session.HandleFileChooser(sctx, []string{path}); err != nil {
			v.log.Debug("file chooser answer failed", "err", err)
		}
		return
	}
	_ = v.session.HandleFileChooser(sctx, nil)
}

func (v *Viewer) onConsoleMessage(ev cdp.Event) {
	var params struct {
		Type string `json:"type"`
		Args []struct {
			Type  string          `json:"type"`
			Value json.RawMessage `json:"value"`
		} `json:"args"`
	}
	if err := ev.Decode(&params); err != nil || len(params.Args) == 0 {
		return
	}
	if params.Args[0].Type != "string" {
		return
	}
	var text string
	if err := json.Unmarshal(params.Args[0].Value, &text); err != nil {
		return
	}
	v.bridge.HandleConsoleMessage(text)
}

func (v *Viewer) onDownloadBegin(ev cdp.Event) {
	var params struct {
		SuggestedFilename string `json:"suggestedFilename"`
	}
	if ev.Decode(&params) == nil && params.SuggestedFilename != "" {
		v.setStatus("downloading " + params.SuggestedFilename)
	}
}

func (v *Viewer) onDownloadProgress(ev cdp.Event) {
	var params struct {
		State string `json:"state"`
	}
	if ev.Decode(&params) == nil {
		switch params.State {
		case "completed":
			v.setStatus("download complete")
		case "canceled":
			v.setStatus("download canceled")
		}
	}
}

// ── mode transitions ──

func (v *Viewer) enterURLPrompt() {
	if v.toolbar == nil {
		return
	}
	v.mode = ModeURLPrompt
	v.toolbar.FocusURL()
}

func (v *Viewer) exitURLPrompt() {
	if v.toolbar != nil {
		v.toolbar.BlurURL()
	}
	v.mode = ModeNormal
}

func (v *Viewer) enterHelp() {
	v.mode = ModeHelp
	v.showOverlayPanel(helpLines)
}

func (v *Viewer) showDialogOverlay() {
	if v.dialog != nil {
		v.showOverlayPanel(dialogLines(v.dialog))
	}
}

// showOverlayPanel rasterises lines and centers the panel on screen.
func (v *Viewer) showOverlayPanel(lines []string) {
	data, err := RenderPanelPNG(lines)
	if err != nil {
		v.log.Debug("overlay render failed", "err", err)
		return
	}
	g := v.term.Geometry()
	cfg, err := pngDims(data)
	if err != nil {
		return
	}
	cols := (cfg.w + g.CellWidth - 1) / g.CellWidth
	rows := (cfg.h + g.CellHeight - 1) / g.CellHeight
	col := (g.Cols-cols)/2 + 1
	row := (g.Rows-rows)/3 + 1
	if col < 1 {
		col = 1
	}
	if row <= v.toolbarRows {
		row = v.toolbarRows + 1
	}

	v.emitter.BeginFrame()
	id := v.emitter.DisplayPNG(data, kitty.DisplayOptions{
		Layer: kitty.LayerOverlay,
		Row:   row,
		Col:   col,
	})
	if v.overlayImg != 0 {
		v.emitter.Delete(v.overlayImg)
	}
	if err := v.emitter.EndFrame(); err != nil {
		v.running = false
		return
	}
	v.overlayImg = id
}

// exitOverlay clears help/dialog overlays and returns to Normal.
func (v *Viewer) exitOverlay() {
	if v.overlayImg != 0 {
		v.emitter.BeginFrame()
		v.emitter.Delete(v.overlayImg)
		if err := v.emitter.EndFrame(); err != nil {
			v.running = false
		}
		v.overlayImg = 0
	}
	v.mode = ModeNormal
	v.uiDirty = true
}

// ── form mode ──

func (v *Viewer) enterForm(ctx context.Context) {
	sctx, cancel := shortCtx(ctx)
	defer cancel()
	res, err := v.session.Evaluate(sctx, formDiscoverJS)
	if err != nil {
		v.log.Debug("form discovery failed", "err", err)
		v.setStatus("form scan failed")
		return
	}
	var count int
	if err := json.Unmarshal(res, &count); err != nil || count == 0 {
		v.setStatus("no focusable elements")
		return
	}
	v.form = &formState{count: count, index: -1}
	v.mode = ModeForm
	v.setStatus("form: Tab cycles, Enter activates, Esc exits")
	v.focusFormIndex(ctx, v.form.step(+1))
}

func (v *Viewer) exitForm() {
	v.form = nil
	v.mode = ModeNormal
}

func (v *Viewer) focusFormIndex(ctx context.Context, i int) {
	sctx, cancel := shortCtx(ctx)
	defer cancel()
	if _, err := v.session.Evaluate(sctx, formFocusJS(i)); err != nil {
		v.log.Debug("form focus failed", "err", err, "index", i)
	}
}

func (v *Viewer) activateFormElement(ctx context.Context) {
	sctx, cancel := shortCtx(ctx)
	defer cancel()
	res, err := v.session.Evaluate(sctx, formActivateJS)
	if err != nil {
		v.log.Debug("form activate failed", "err", err)
		return
	}
	var kind string
	_ = json.Unmarshal(res, &kind)
	if kind == "text" {
		v.mode = ModeTextInput
		v.setStatus("text input: Enter/Esc returns to form mode")
	}
}
