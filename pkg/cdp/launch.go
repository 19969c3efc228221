package cdp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"regexp"
	"runtime"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// ErrBrowserNotFound means no Chromium-family binary could be located.
var ErrBrowserNotFound = errors.New("cdp: no chromium browser found")

// LaunchOptions configures the spawned browser.
type LaunchOptions struct {
	// URL opened in the initial tab.
	URL string
	// Width/Height of the initial window in CSS pixels.
	Width, Height int
	Headless      bool
	// UsePipe selects fd 3/4 debugging; otherwise a WebSocket on an
	// ephemeral debug port is used.
	UsePipe bool
	// UserDataDir for the browser profile; a temp dir when empty.
	UserDataDir string
	Log         *slog.Logger
}

// Browser owns the spawned Chromium process and the attached Client.
type Browser struct {
	Client *Client

	cmd     *exec.Cmd
	group   *errgroup.Group
	exited  chan struct{}
	tempDir string
	log     *slog.Logger
}

// browserCandidates, tried in order after CHROME_BIN.
func browserCandidates() []string {
	if runtime.GOOS == "darwin" {
		return []string{
			"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
			"/Applications/Chromium.app/Contents/MacOS/Chromium",
			"/Applications/Microsoft Edge.app/Contents/MacOS/Microsoft Edge",
		}
	}
	return []string{
		"google-chrome",
		"google-chrome-stable",
		"chromium",
		"chromium-browser",
		"chromium-headless-shell",
		"microsoft-edge",
	}
}

// FindBrowser resolves the browser binary: CHROME_BIN first, then the
// platform candidate list via PATH.
func FindBrowser() (string, error) {
	if bin := os.Getenv("CHROME_BIN"); bin != "" {
		if _, err := os.Stat(bin); err == nil {
			return bin, nil
		}
		if path, err := exec.LookPath(bin); err == nil {
			return path, nil
		}
		return "", errors.Wrapf(ErrBrowserNotFound, "CHROME_BIN=%s", bin)
	}
	for _, cand := range browserCandidates() {
		if strings.ContainsRune(cand, '/') {
			if _, err := os.Stat(cand); err == nil {
				return cand, nil
			}
			continue
		}
		if path, err := exec.LookPath(cand); err == nil {
			return path, nil
		}
	}
	return "", ErrBrowserNotFound
}

// Launch spawns Chromium with remote debugging enabled, connects the
// transport, attaches to the first page target, and enables the event
// domains the viewer needs.
func Launch(ctx context.Context, opts LaunchOptions) (*Browser, error) {
	bin, err := FindBrowser()
	if err != nil {
		return nil, err
	}
	log := opts.Log
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	b := &Browser{log: log}
	if opts.UserDataDir == "" {
		dir, err := os.MkdirTemp("", "termweb-profile-*")
		if err != nil {
			return nil, errors.Wrap(err, "create profile dir")
		}
		b.tempDir = dir
		opts.UserDataDir = dir
	}

	args := []string{
		"--no-first-run",
		"--no-default-browser-check",
		"--disable-background-networking",
		"--disable-sync",
		"--disable-infobars",
		"--disable-session-crashed-bubble",
		"--hide-crash-restore-bubble",
		fmt.Sprintf("--user-data-dir=%s", opts.UserDataDir),
		fmt.Sprintf("--window-size=%d,%d", opts.Width, opts.Height),
	}
	if opts.Headless {
		args = append(args, "--headless=new", "--disable-gpu")
	}

	var transport Transport
	if opts.UsePipe {
		args = append(args, "--remote-debugging-pipe")
	} else {
		args = append(args, "--remote-debugging-port=0")
	}
	if opts.URL != "" {
		args = append(args, "about:blank")
	}

	cmd := exec.CommandContext(ctx, bin, args...)
	b.cmd = cmd

	if opts.UsePipe {
		// Browser reads commands on its fd 3 and writes on its fd 4.
		cmdR, cmdW, err := os.Pipe()
		if err != nil {
			return nil, errors.Wrap(err, "create command pipe")
		}
		outR, outW, err := os.Pipe()
		if err != nil {
			return nil, errors.Wrap(err, "create output pipe")
		}
		cmd.ExtraFiles = []*os.File{cmdR, outW}
		if err := cmd.Start(); err != nil {
			return nil, errors.Wrap(err, "start browser")
		}
		// Child holds its own copies now.
		cmdR.Close()
		outW.Close()
		transport = NewPipeTransport(cmdW, outR)
	} else {
		stderrPipe, err := cmd.StderrPipe()
		if err != nil {
			return nil, errors.Wrap(err, "stderr pipe")
		}
		if err := cmd.Start(); err != nil {
			return nil, errors.Wrap(err, "start browser")
		}
		wsURL, err := waitForDevToolsURL(ctx, bufio.NewReader(stderrPipe))
		if err != nil {
			_ = cmd.Process.Kill()
			return nil, err
		}
		transport, err = NewWebSocketTransport(wsURL)
		if err != nil {
			_ = cmd.Process.Kill()
			return nil, err
		}
	}

	b.exited = make(chan struct{})
	b.group = &errgroup.Group{}
	b.group.Go(func() error {
		err := cmd.Wait()
		close(b.exited)
		log.Debug("browser exited", "err", err)
		return nil
	})

	b.Client = NewClient(transport, log)
	b.Client.Start()

	if err := b.attach(ctx, opts.URL); err != nil {
		b.Close()
		return nil, err
	}
	return b, nil
}

var devtoolsURLRe = regexp.MustCompile(`DevTools listening on (ws://\S+)`)

// waitForDevToolsURL scans browser stderr for the advertised WebSocket
// endpoint.
func waitForDevToolsURL(ctx context.Context, r *bufio.Reader) (string, error) {
	deadline := time.Now().Add(20 * time.Second)
	for {
		if time.Now().After(deadline) {
			return "", errors.New("cdp: timed out waiting for DevTools endpoint")
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}
		line, err := r.ReadString('\n')
		if m := devtoolsURLRe.FindStringSubmatch(line); m != nil {
			return m[1], nil
		}
		if err != nil {
			return "", errors.Wrap(err, "browser stderr closed before DevTools endpoint")
		}
	}
}

type targetInfo struct {
	TargetID string `json:"targetId"`
	Type     string `json:"type"`
	Attached bool   `json:"attached"`
	URL      string `json:"url"`
}

// attach finds the first page target, attaches a flattened session, and
// enables events. The initial navigation happens here so the caller sees
// a page that is already loading.
func (b *Browser) attach(ctx context.Context, url string) error {
	targetID, err := b.waitForPageTarget(ctx)
	if err != nil {
		return err
	}
	res, err := b.Client.Send(ctx, "Target.attachToTarget", map[string]any{
		"targetId": targetID,
		"flatten":  true,
	})
	if err != nil {
		return errors.Wrap(err, "attach to target")
	}
	var attached struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.Unmarshal(res, &attached); err != nil {
		return errors.Wrap(err, "parse attach result")
	}
	b.Client.SetSessionID(attached.SessionID)

	if err := b.Client.EnableDomains(ctx); err != nil {
		return err
	}
	if url != "" {
		if err := b.Client.Navigate(ctx, url); err != nil {
			return err
		}
	}
	return nil
}

func (b *Browser) waitForPageTarget(ctx context.Context) (string, error) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	deadline := time.Now().Add(20 * time.Second)
	var lastErr error
	for {
		if time.Now().After(deadline) {
			if lastErr == nil {
				lastErr = errors.New("no page target appeared")
			}
			return "", lastErr
		}
		res, err := b.Client.Send(ctx, "Target.getTargets", nil)
		if err != nil {
			lastErr = err
		} else {
			var out struct {
				TargetInfos []targetInfo `json:"targetInfos"`
			}
			if err := json.Unmarshal(res, &out); err != nil {
				lastErr = err
			} else {
				for _, t := range out.TargetInfos {
					if t.Type == "page" {
						return t.TargetID, nil
					}
				}
				lastErr = errors.New("no page target yet")
			}
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
}

// Close shuts the client down and terminates the browser. The child is
// asked politely first; a process that lingers is killed.
func (b *Browser) Close() {
	if b.Client != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		_, _ = b.Client.Send(ctx, "Browser.close", nil)
		cancel()
		b.Client.Close()
	}
	if b.cmd != nil && b.cmd.Process != nil && b.exited != nil {
		select {
		case <-b.exited:
		case <-time.After(2 * time.Second):
			_ = b.cmd.Process.Kill()
		}
	}
	if b.group != nil {
		_ = b.group.Wait()
	}
	if b.tempDir != "" {
		_ = os.RemoveAll(b.tempDir)
	}
}
