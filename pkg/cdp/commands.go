package cdp

import (
	"context"
	"encoding/json"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/pkg/errors"
)

// Navigate loads the given URL in the attached page.
func (c *Client) Navigate(ctx context.Context, url string) error {
	_, err := c.Send(ctx, "Page.navigate", page.Navigate(url))
	return err
}

// Reload reloads the current page.
func (c *Client) Reload(ctx context.Context, ignoreCache bool) error {
	params := page.Reload()
	if ignoreCache {
		params = params.WithIgnoreCache(true)
	}
	_, err := c.Send(ctx, "Page.reload", params)
	return err
}

// StopLoading cancels the in-flight navigation.
func (c *Client) StopLoading(ctx context.Context) error {
	_, err := c.Send(ctx, "Page.stopLoading", nil)
	return err
}

// NavHistory is the subset of Page.getNavigationHistory the viewer
// needs to know where it stands and move through history.
type NavHistory struct {
	CurrentIndex int `json:"currentIndex"`
	Entries      []struct {
		ID  int64  `json:"id"`
		URL string `json:"url"`
	} `json:"entries"`
}

func (h NavHistory) CanGoBack() bool    { return h.CurrentIndex > 0 }
func (h NavHistory) CanGoForward() bool { return h.CurrentIndex < len(h.Entries)-1 }

// NavigationHistory fetches the current session history.
func (c *Client) NavigationHistory(ctx context.Context) (NavHistory, error) {
	var h NavHistory
	res, err := c.Send(ctx, "Page.getNavigationHistory", nil)
	if err != nil {
		return h, err
	}
	if err := json.Unmarshal(res, &h); err != nil {
		return h, errors.Wrap(err, "parse navigation history")
	}
	return h, nil
}

// GoBack moves one entry back in history, if possible.
func (c *Client) GoBack(ctx context.Context) error {
	return c.stepHistory(ctx, -1)
}

// GoForward moves one entry forward in history, if possible.
func (c *Client) GoForward(ctx context.Context) error {
	return c.stepHistory(ctx, +1)
}

func (c *Client) stepHistory(ctx context.Context, delta int) error {
	h, err := c.NavigationHistory(ctx)
	if err != nil {
		return err
	}
	idx := h.CurrentIndex + delta
	if idx < 0 || idx >= len(h.Entries) {
		return nil
	}
	_, err = c.Send(ctx, "Page.navigateToHistoryEntry",
		page.NavigateToHistoryEntry(h.Entries[idx].ID))
	return err
}

// SetViewport applies the device metrics matching the terminal's content
// area.
func (c *Client) SetViewport(ctx context.Context, width, height int, dpr float64) error {
	_, err := c.Send(ctx, "Emulation.setDeviceMetricsOverride",
		emulation.SetDeviceMetricsOverride(int64(width), int64(height), dpr, false))
	return err
}

// ScreencastOptions selects the frame format and throttling for
// Page.startScreencast.
type ScreencastOptions struct {
	Format    page.ScreencastFormat
	Quality   int
	EveryNth  int
	MaxWidth  int
	MaxHeight int
}

// StartScreencast begins the frame stream.
func (c *Client) StartScreencast(ctx context.Context, opts ScreencastOptions) error {
	params := page.StartScreencast().
		WithFormat(opts.Format).
		WithEveryNthFrame(int64(opts.EveryNth)).
		WithMaxWidth(int64(opts.MaxWidth)).
		WithMaxHeight(int64(opts.MaxHeight))
	if opts.Format == page.ScreencastFormatJpeg {
		params = params.WithQuality(int64(opts.Quality))
	}
	_, err := c.Send(ctx, "Page.startScreencast", params)
	return err
}

// StopScreencast halts the frame stream. Best effort on teardown paths.
func (c *Client) StopScreencast(ctx context.Context) error {
	_, err := c.Send(ctx, "Page.stopScreencast", nil)
	return err
}

// AckFrame acknowledges a screencast frame so Chrome keeps sending.
// Fired without waiting for the reply.
func (c *Client) AckFrame(sessionID int64) {
	_ = c.SendAsync("Page.screencastFrameAck", page.ScreencastFrameAck(sessionID))
}

// DispatchKey sends one Input.dispatchKeyEvent.
func (c *Client) DispatchKey(ctx context.Context, params *input.DispatchKeyEventParams) error {
	_, err := c.Send(ctx, "Input.dispatchKeyEvent", params)
	return err
}

// DispatchMouse sends one Input.dispatchMouseEvent.
func (c *Client) DispatchMouse(ctx context.Context, params *input.DispatchMouseEventParams) error {
	_, err := c.Send(ctx, "Input.dispatchMouseEvent", params)
	return err
}

// InsertText types a string into the focused element in one shot, the
// way a paste does.
func (c *Client) InsertText(ctx context.Context, text string) error {
	_, err := c.Send(ctx, "Input.insertText", input.InsertText(text))
	return err
}

// Evaluate runs an expression in the page and returns its by-value
// result, when any.
func (c *Client) Evaluate(ctx context.Context, expr string) (json.RawMessage, error) {
	res, err := c.Send(ctx, "Runtime.evaluate",
		runtime.Evaluate(expr).WithReturnByValue(true))
	if err != nil {
		return nil, err
	}
	var out struct {
		Result struct {
			Value json.RawMessage `json:"value"`
		} `json:"result"`
	}
	if err := json.Unmarshal(res, &out); err != nil {
		return nil, errors.Wrap(err, "parse evaluate result")
	}
	return out.Result.Value, nil
}

// HandleDialog answers the open JavaScript dialog.
func (c *Client) HandleDialog(ctx context.Context, accept bool, promptText string) error {
	params := page.HandleJavaScriptDialog(accept)
	if promptText != "" {
		params = params.WithPromptText(promptText)
	}
	_, err := c.Send(ctx, "Page.handleJavaScriptDialog", params)
	return err
}

// HandleFileChooser answers an intercepted file chooser with the chosen
// paths (empty to cancel).
func (c *Client) HandleFileChooser(ctx context.Context, files []string) error {
	if files == nil {
		files = []string{}
	}
	_, err := c.Send(ctx, "Page.handleFileChooser", map[string]any{
		"action": "accept",
		"files":  files,
	})
	return err
}

// EnableDomains turns on the event domains the viewer listens to.
func (c *Client) EnableDomains(ctx context.Context) error {
	for _, method := range []string{"Page.enable", "Runtime.enable", "DOM.enable"} {
		if _, err := c.Send(ctx, method, nil); err != nil {
			return err
		}
	}
	_, err := c.Send(ctx, "Page.setInterceptFileChooserDialog", map[string]any{"enabled": true})
	if err != nil {
		// Older builds: non-fatal, the OS dialog pops in the browser.
		c.log.Debug("file chooser interception unavailable", "err", err)
	}
	return nil
}

// SetDownloadBehavior stages downloads into dir and enables progress
// events.
func (c *Client) SetDownloadBehavior(ctx context.Context, dir string) error {
	params := browser.SetDownloadBehavior(browser.SetDownloadBehaviorBehaviorAllowAndName).
		WithDownloadPath(dir).
		WithEventsEnabled(true)
	_, err := c.Send(ctx, "Browser.setDownloadBehavior", params)
	return err
}
