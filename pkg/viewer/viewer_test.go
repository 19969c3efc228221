package viewer

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	cdpinput "github.com/chromedp/cdproto/input"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teamchong/termweb/pkg/cdp"
	"github.com/teamchong/termweb/pkg/termio"
)

// fakeTerm is an in-memory Terminal with a fixed geometry.
type fakeTerm struct {
	geom   termio.Geometry
	out    strings.Builder
	queued []termio.Input
}

func newFakeTerm() *fakeTerm {
	return &fakeTerm{geom: termio.NewGeometry(80, 24, 800, 480)}
}

func (t *fakeTerm) Geometry() termio.Geometry { return t.geom }
func (t *fakeTerm) Resized() bool { return false }
func (t *fakeTerm) Drain() ([]termio.Input, error) {
	q := t.queued
	t.queued = nil
	return q, nil
}
func (t *fakeTerm) Write(p []byte) (int, error) { return t.out.Write(p) }
func (t *fakeTerm) WriteString(s string) (int, error) { return t.out.WriteString(s) }
func (t *fakeTerm) ShowCursor() {}
func (t *fakeTerm) HideCursor() {}
func (t *fakeTerm) Close() error { return nil }

// fakeSession records the CDP traffic the viewer generates.
type fakeSession struct {
	mu        sync.Mutex
	navigated []string
	navErr    error
	reloads   int
	stops     int
	backs     int
	forwards  int
	keys      []*cdpinput.DispatchKeyEventParams
	mice      []*cdpinput.DispatchMouseEventParams
	inserted  []string
	evals     []string
	evalFn    func(expr string) (json.RawMessage, error)
	dialogs   []struct {
		accept bool
		text   string
	}
	choosers  [][]string
	events    []cdp.Event
	tookNav   bool
	screenOn  int
	screenOff int
	done      chan struct{}
}

func newFakeSession() *fakeSession {
	return &fakeSession{done: make(chan struct{})}
}

func (s *fakeSession) Navigate(_ context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.navErr != nil {
		return s.navErr
	}
	s.navigated = append(s.navigated, url)
	return nil
}

func (s *fakeSession) Reload(context.Context, bool) error {
	s.reloads++
	return nil
}

func (s *fakeSession) StopLoading(context.Context) error { s.stops++; return nil }
func (s *fakeSession) GoBack(context.Context) error { s.backs++; return nil }
func (s *fakeSession) GoForward(context.Context) error { s.forwards++; return nil }

func (s *fakeSession) NavigationHistory(context.Context) (cdp.NavHistory, error) {
	return cdp.NavHistory{}, nil
}

func (s *fakeSession) SetViewport(context.Context, int, int, float64) error { return nil }

func (s *fakeSession) StartScreencast(context.Context, cdp.ScreencastOptions) error {
	s.screenOn++
	return nil
}

func (s *fakeSession) StopScreencast(context.Context) error {
	s.screenOff++
	return nil
}

func (s *fakeSession) DispatchKey(_ context.Context, p *cdpinput.DispatchKeyEventParams) error {
	s.keys = append(s.keys, p)
	return nil
}

func (s *fakeSession) DispatchMouse(_ context.Context, p *cdpinput.DispatchMouseEventParams) error {
	s.mice = append(s.mice, p)
	return nil
}

func (s *fakeSession) InsertText(_ context.Context, text string) error {
	s.inserted = append(s.inserted, text)
	return nil
}

func (s *fakeSession) Evaluate(_ context.Context, expr string) (json.RawMessage, error) {
	s.evals = append(s.evals, expr)
	if s.evalFn != nil {
		return s.evalFn(expr)
	}
	return json.RawMessage(`null`), nil
}

func (s *fakeSession) HandleDialog(_ context.Context, accept bool, text string) error {
	s.dialogs = append(s.dialogs, struct {
		accept bool
		text   string
	}{accept, text})
	return nil
}

func (s *fakeSession) HandleFileChooser(_ context.Context, files []string) error {
	s.choosers = append(s.choosers, files)
	return nil
}

func (s *fakeSession) DrainEvents() []cdp.Event {
	evs := s.events
	s.events = nil
	return evs
}

func (s *fakeSession) TookNavigation() bool {
	t := s.tookNav
	s.tookNav = false
	return t
}

func (s *fakeSession) AckFrame(int64) {}
func (s *fakeSession) SetFrameFunc(cdp.FrameFunc) {}
func (s *fakeSession) Done() <-chan struct{} { return s.done }

func newTestViewer(t *testing.T) (*Viewer, *fakeSession, *fakeTerm) {
	t.Helper()
	term := newFakeTerm()
	session := newFakeSession()
	v := New(term, session, Options{Clipboard: &fakeClipboard{}, Picker: func(string) (string, bool) { return "", false }})
	return v, session, term
}

func keyIn(k termio.Key) termio.Input {
	return termio.Input{Kind: termio.InputKey, Key: k}
}

func TestCtrlQQuitsFromAnyMode(t *testing.T) {
	for _, mode := range []Mode{ModeNormal, ModeURLPrompt, ModeForm, ModeTextInput, ModeHelp, ModeDialog} {
		v, _, _ := newTestViewer(t)
		v.mode = mode
		v.handleInput(context.Background(), keyIn(termio.Key{Code: termio.KeyRune, Rune: 'q', Mod: termio.ModCtrl}))
		assert.False(t, v.running, "mode %d", mode)
	}
}

func TestCtrlLEntersURLPrompt(t *testing.T) {
	v, _, _ := newTestViewer(t)
	v.handleInput(context.Background(), keyIn(termio.Key{Code: termio.KeyRune, Rune: 'l', Mod: termio.ModCtrl}))
	assert.Equal(t, ModeURLPrompt, v.mode)
	assert.True(t, v.toolbar.URL().Focused())
}

func TestURLPromptCommitNavigates(t *testing.T) {
	v, s, _ := newTestViewer(t)
	v.enterURLPrompt()
	for _, r := range "example.com" {
		v.handleInput(context.Background(), keyIn(termio.Key{Code: termio.KeyRune, Rune: r}))
	}
	v.handleInput(context.Background(), keyIn(termio.Key{Code: termio.KeyEnter}))

	require.Len(t, s.navigated, 1)
	assert.Equal(t, "https://example.com", s.navigated[0])
	assert.Equal(t, ModeNormal, v.mode)
	assert.True(t, v.isLoading)
}

func TestURLPromptEscCancels(t *testing.T) {
	v, s, _ := newTestViewer(t)
	v.currentURL = "https://orig.example"
	v.enterURLPrompt()
	v.handleInput(context.Background(), keyIn(termio.Key{Code: termio.KeyRune, Rune: 'x'}))
	v.handleInput(context.Background(), keyIn(termio.Key{Code: termio.KeyEscape}))

	assert.Empty(t, s.navigated)
	assert.Equal(t, ModeNormal, v.mode)
	assert.Equal(t, "https://orig.example", v.toolbar.URL().Value())
}

func TestNormalKeyProducesExactlyOneDispatch(t *testing.T) {
	v, s, _ := newTestViewer(t)
	v.handleInput(context.Background(), keyIn(termio.Key{Code: termio.KeyRune, Rune: 'x'}))
	require.Len(t, s.keys, 1)
	assert.Equal(t, "x", s.keys[0].Text)
}

func TestEscInNormalGoesBack(t *testing.T) {
	v, s, _ := newTestViewer(t)
	v.handleInput(context.Background(), keyIn(termio.Key{Code: termio.KeyEscape}))
	assert.Equal(t, 1, s.backs)
	assert.Empty(t, s.keys)
}

func TestCtrlBracketGoesForward(t *testing.T) {
	v, s, _ := newTestViewer(t)
	v.handleInput(context.Background(), keyIn(termio.Key{Code: termio.KeyRune, Rune: ']', Mod: termio.ModCtrl}))
	assert.Equal(t, 1, s.forwards)
}

func TestDialogFlow(t *testing.T) {
	v, s, _ := newTestViewer(t)
	s.events = []cdp.Event{{
		Method: "Page.javascriptDialogOpening",
		Params: json.RawMessage(`{"type":"prompt","message":"hi","defaultPrompt":"abc"}`),
	}}
	v.pollEvents(context.Background())
	require.Equal(t, ModeDialog, v.mode)

	// Enter accepts with the default prompt text.
	v.handleInput(context.Background(), keyIn(termio.Key{Code: termio.KeyEnter}))
	require.Len(t, s.dialogs, 1)
	assert.True(t, s.dialogs[0].accept)
	assert.Equal(t, "abc", s.dialogs[0].text)
	assert.Equal(t, ModeNormal, v.mode)
}

func TestDialogEscDismisses(t *testing.T) {
	v, s, _ := newTestViewer(t)
	s.events = []cdp.Event{{
		Method: "Page.javascriptDialogOpening",
		Params: json.RawMessage(`{"type":"confirm","message":"sure?"}`),
	}}
	v.pollEvents(context.Background())
	v.handleInput(context.Background(), keyIn(termio.Key{Code: termio.KeyEscape}))
	require.Len(t, s.dialogs, 1)
	assert.False(t, s.dialogs[0].accept)
	assert.Empty(t, s.dialogs[0].text)
}

func TestFormModeFlow(t *testing.T) {
	v, s, _ := newTestViewer(t)
	s.evalFn = func(expr string) (json.RawMessage, error) {
		switch {
		case strings.Contains(expr, "__termwebForm = els"):
			return json.RawMessage(`3`), nil
		case strings.Contains(expr, "el.focus()"):
			return json.RawMessage(`"a"`), nil
		case strings.Contains(expr, "activeElement"):
			return json.RawMessage(`"text"`), nil
		}
		return json.RawMessage(`null`), nil
	}

	v.handleInput(context.Background(), keyIn(termio.Key{Code: termio.KeyRune, Rune: 'f'}))
	require.Equal(t, ModeForm, v.mode)

	v.handleInput(context.Background(), keyIn(termio.Key{Code: termio.KeyTab}))
	v.handleInput(context.Background(), keyIn(termio.Key{Code: termio.KeyEnter}))
	assert.Equal(t, ModeTextInput, v.mode)

	// Keys in TextInput go to the page.
	v.handleInput(context.Background(), keyIn(termio.Key{Code: termio.KeyRune, Rune: 'h'}))
	require.Len(t, s.keys, 1)

	// Esc returns to form mode, another Esc exits to Normal.
	v.handleInput(context.Background(), keyIn(termio.Key{Code: termio.KeyEscape}))
	assert.Equal(t, ModeForm, v.mode)
	v.handleInput(context.Background(), keyIn(termio.Key{Code: termio.KeyEscape}))
	assert.Equal(t, ModeNormal, v.mode)
}

func TestFormModeWithNoElementsStaysNormal(t *testing.T) {
	v, s, _ := newTestViewer(t)
	s.evalFn = func(string) (json.RawMessage, error) {
		return json.RawMessage(`0`), nil
	}
	v.handleInput(context.Background(), keyIn(termio.Key{Code: termio.KeyRune, Rune: 'f'}))
	assert.Equal(t, ModeNormal, v.mode)
}

func TestHelpOverlayToggle(t *testing.T) {
	v, _, _ := newTestViewer(t)
	v.handleInput(context.Background(), keyIn(termio.Key{Code: termio.KeyRune, Rune: '?'}))
	assert.Equal(t, ModeHelp, v.mode)
	assert.NotZero(t, v.overlayImg)

	v.handleInput(context.Background(), keyIn(termio.Key{Code: termio.KeyEscape}))
	assert.Equal(t, ModeNormal, v.mode)
	assert.Zero(t, v.overlayImg)
}

func TestConsoleFSRequestAnsweredViaEvaluate(t *testing.T) {
	v, s, _ := newTestViewer(t)
	s.events = []cdp.Event{{
		Method: "Runtime.consoleAPICalled",
		Params: json.RawMessage(`{"type":"log","args":[{"type":"string","value":"__TERMWEB_FS__:7:readdir:/not/allowed"}]}`),
	}}
	v.pollEvents(context.Background())

	require.Len(t, s.evals, 1)
	assert.Equal(t, `window.__termwebFSResponse(7, false, "Path not allowed")`, s.evals[0])
}

func TestNavigateFailureSurfacesInStatusAndStaysResponsive(t *testing.T) {
	v, s, _ := newTestViewer(t)
	s.navErr = errors.New("cdp: command timed out")
	v.navigateTo(context.Background(), "https://slow.example")

	assert.False(t, v.isLoading)
	assert.True(t, v.running)
	assert.Contains(t, v.toolbar.status, "navigation failed")
}

func TestMouseClickInContentReachesBus(t *testing.T) {
	v, s, _ := newTestViewer(t)
	// Press below the toolbar band, in pixel coordinates.
	v.mapper.pixelStream = true
	v.handleInput(context.Background(), termio.Input{Kind: termio.InputMouse, Mouse: termio.Mouse{
		Kind: termio.MousePress, Button: termio.MouseLeft, X: 400, Y: 300,
	}})
	v.bus.Tick()
	require.Len(t, s.mice, 1)
	assert.Equal(t, cdpinput.MousePressed, s.mice[0].Type)
}

func TestToolbarClickDoesNotReachPage(t *testing.T) {
	v, s, _ := newTestViewer(t)
	v.mapper.pixelStream = true
	box := v.toolbar.boxes[ButtonBack]
	cx := (box.Min.X + box.Max.X) / 2
	cy := (box.Min.Y + box.Max.Y) / 2
	v.handleInput(context.Background(), termio.Input{Kind: termio.InputMouse, Mouse: termio.Mouse{
		Kind: termio.MousePress, Button: termio.MouseLeft, X: cx, Y: cy,
	}})
	v.handleInput(context.Background(), termio.Input{Kind: termio.InputMouse, Mouse: termio.Mouse{
		Kind: termio.MouseRelease, Button: termio.MouseLeft, X: cx, Y: cy,
	}})
	v.bus.Tick()
	assert.Empty(t, s.mice, "toolbar clicks stay local")
	assert.Equal(t, 1, s.backs)
}

func TestPasteOutsidePromptInsertsText(t *testing.T) {
	v, s, _ := newTestViewer(t)
	v.handleInput(context.Background(), termio.Input{Kind: termio.InputPaste, Paste: "hello"})
	require.Len(t, s.inserted, 1)
	assert.Equal(t, "hello", s.inserted[0])
}

func TestNormalizeURL(t *testing.T) {
	assert.Equal(t, "https://example.com", normalizeURL("example.com"))
	assert.Equal(t, "http://already.example", normalizeURL("http://already.example"))
	assert.Equal(t, "about:blank", normalizeURL("about:blank"))
	assert.Contains(t, normalizeURL("kitty graphics"), "duckduckgo.com/?q=")
	assert.Equal(t, "", normalizeURL("  "))
}
