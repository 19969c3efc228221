// Package termio owns the controlling terminal: raw mode with guaranteed
// restore, size queries including pixel dimensions, SIGWINCH tracking,
// and the escape-sequence input parser.
package termio

import (
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/charmbracelet/x/ansi"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// ErrClosed is returned when the terminal has been closed or the read
// side reports a hard I/O error.
var ErrClosed = errors.New("terminal closed")

// MaxEventsPerDrain bounds how many input events a single Drain call
// yields, as backpressure against input floods.
const MaxEventsPerDrain = 100

// Terminal wraps the process tty. All output goes through Write; input
// is polled with a short timeout so the viewer loop never blocks.
type Terminal interface {
	Geometry() Geometry
	// Resized reports and clears the SIGWINCH flag.
	Resized() bool
	// Drain reads whatever input is available and returns up to
	// MaxEventsPerDrain decoded events.
	Drain() ([]Input, error)
	Write(p []byte) (int, error)
	WriteString(s string) (int, error)
	ShowCursor()
	HideCursor()
	Close() error
}

// modes enabled for the session: SGR mouse reporting (button motion,
// SGR encoding, pixel encoding) and bracketed paste, on the alternate
// screen.
const (
	enterSeq = "\x1b[?1049h\x1b[?25l\x1b[?1002h\x1b[?1006h\x1b[?1016h\x1b[?2004h"
	leaveSeq = "\x1b[?2004l\x1b[?1016l\x1b[?1006l\x1b[?1002l\x1b[?25h\x1b[0m\x1b[?1049l"
)

// Tty is the real-terminal implementation backed by stdin/stdout.
type Tty struct {
	in, out *os.File

	origTermios *unix.Termios
	parser      Parser
	readBuf     []byte

	resized atomic.Bool
	sigCh   chan os.Signal
	done    chan struct{}

	sizeMu sync.RWMutex
	geom   Geometry

	closeOnce sync.Once
}

// Open puts the tty into raw mode, enables mouse/paste modes, switches
// to the alternate screen, and installs the SIGWINCH handler.
func Open() (*Tty, error) {
	t := &Tty{
		in:      os.Stdin,
		out:     os.Stdout,
		readBuf: make([]byte, 4096),
		done:    make(chan struct{}),
	}

	fd := int(t.in.Fd())
	orig, err := unix.IoctlGetTermios(fd, ioctlReadTermios)
	if err != nil {
		return nil, errors.Wrap(err, "get termios")
	}
	t.origTermios = orig

	raw := *orig
	raw.Iflag &^= unix.BRKINT | unix.ICRNL | unix.INPCK | unix.ISTRIP | unix.IXON
	raw.Oflag &^= unix.OPOST
	raw.Cflag |= unix.CS8
	raw.Lflag &^= unix.ECHO | unix.ICANON | unix.IEXTEN | unix.ISIG
	raw.Cc[unix.VMIN] = 0
	raw.Cc[unix.VTIME] = 0
	if err := unix.IoctlSetTermios(fd, ioctlWriteTermios, &raw); err != nil {
		return nil, errors.Wrap(err, "set raw mode")
	}

	t.refreshGeometry()
	_, _ = t.WriteString(enterSeq)

	// Kitty keyboard protocol, disambiguate mode: modified keys like
	// Ctrl+. arrive as distinct CSI u sequences instead of nothing.
	_, _ = t.WriteString(ansi.KittyKeyboard(ansi.KittyDisambiguateEscapeCodes, 1))

	t.sigCh = make(chan os.Signal, 1)
	signal.Notify(t.sigCh, syscall.SIGWINCH)
	go func() {
		for {
			select {
			case <-t.sigCh:
				t.refreshGeometry()
				t.resized.Store(true)
			case <-t.done:
				return
			}
		}
	}()

	return t, nil
}

// Close restores every terminal mode changed by Open. Safe to call more
// than once and from deferred teardown paths.
func (t *Tty) Close() error {
	t.closeOnce.Do(func() {
		close(t.done)
		if t.sigCh != nil {
			signal.Stop(t.sigCh)
		}
		_, _ = t.WriteString(ansi.KittyKeyboard(0, 1))
		_, _ = t.WriteString(leaveSeq)
		if t.origTermios != nil {
			fd := int(t.in.Fd())
			_ = unix.IoctlSetTermios(fd, ioctlWriteTermios, t.origTermios)
		}
	})
	return nil
}

func (t *Tty) Geometry() Geometry {
	t.sizeMu.RLock()
	defer t.sizeMu.RUnlock()
	return t.geom
}

func (t *Tty) Resized() bool {
	return t.resized.Swap(false)
}

// refreshGeometry queries TIOCGWINSZ, which reports pixel dimensions on
// terminals that support them (Kitty, Ghostty, WezTerm).
func (t *Tty) refreshGeometry() {
	ws, err := unix.IoctlGetWinsize(int(t.out.Fd()), unix.TIOCGWINSZ)
	if err != nil {
		return
	}
	g := NewGeometry(int(ws.Col), int(ws.Row), int(ws.Xpixel), int(ws.Ypixel))
	t.sizeMu.Lock()
	t.geom = g
	t.sizeMu.Unlock()
}

// Drain polls stdin for up to 5 ms, feeds whatever arrived to the
// parser, and returns the decoded events. A zero-byte read means no
// input; EINTR from poll ends the wait, EINTR from read is retried; any
// other error is fatal.
func (t *Tty) Drain() ([]Input, error) {
	fd := int(t.in.Fd())
	for {
		fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
		n, err := unix.Poll(fds, 5)
		if err == unix.EINTR {
			break // a signal (likely SIGWINCH) counts as a wakeup
		}
		if err != nil {
			return nil, errors.Wrap(ErrClosed, err.Error())
		}
		if n == 0 {
			break
		}
		nr, err := unix.Read(fd, t.readBuf)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return nil, errors.Wrap(ErrClosed, err.Error())
		}
		if nr <= 0 {
			break
		}
		t.parser.Feed(t.readBuf[:nr])
		if nr < len(t.readBuf) {
			break
		}
		// Buffer was full; there may be more queued.
	}

	var events []Input
	for len(events) < MaxEventsPerDrain {
		in := t.parser.Next()
		if in.Kind == InputNone {
			break
		}
		events = append(events, in)
	}
	return events, nil
}

func (t *Tty) Write(p []byte) (int, error)       { return t.out.Write(p) }
func (t *Tty) WriteString(s string) (int, error) { return t.out.WriteString(s) }

func (t *Tty) ShowCursor() { _, _ = t.WriteString("\x1b[?25h") }
func (t *Tty) HideCursor() { _, _ = t.WriteString("\x1b[?25l") }
