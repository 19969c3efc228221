package cdp

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/pkg/errors"
)

var (
	// ErrClosed reports a broken or closed transport; the session cannot
	// continue.
	ErrClosed = errors.New("cdp: transport closed")
	// ErrTimeout reports that a command got no reply within its deadline.
	ErrTimeout = errors.New("cdp: command timed out")
)

// DefaultCommandTimeout bounds every Send that has no earlier context
// deadline.
const DefaultCommandTimeout = 10 * time.Second

// FrameFunc receives each Page.screencastFrame event on the reader
// goroutine. It must not block; the screencast ring buffer satisfies
// that by doing an O(1) swap.
type FrameFunc func(*page.EventScreencastFrame)

// Client is the CDP session driver. One reader goroutine decodes
// incoming frames and classifies them: replies wake the waiter with the
// matching id, screencast frames go to the frame hook, everything else
// lands in the events FIFO drained by the viewer loop.
//
// Multiple goroutines may call Send concurrently; writes are serialised
// by a short mutex and ids are allocated atomically. The reader never
// takes the write lock.
type Client struct {
	transport Transport
	log       *slog.Logger

	writeMu sync.Mutex
	nextID  atomic.Int64

	sessionMu sync.RWMutex
	sessionID string

	waitersMu sync.Mutex
	waiters   map[int64]chan *Message

	eventsMu sync.Mutex
	events   []Event

	navigated atomic.Bool

	frameMu sync.RWMutex
	frameFn FrameFunc

	closed    chan struct{}
	closeOnce sync.Once
}

// NewClient wraps a connected transport. Call Start to begin reading.
func NewClient(t Transport, log *slog.Logger) *Client {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Client{
		transport: t,
		log:       log,
		waiters:   make(map[int64]chan *Message),
		closed:    make(chan struct{}),
	}
}

// Start launches the reader goroutine.
func (c *Client) Start() {
	go c.readLoop()
}

// SetSessionID attaches all subsequent commands to a flattened target
// session.
func (c *Client) SetSessionID(id string) {
	c.sessionMu.Lock()
	c.sessionID = id
	c.sessionMu.Unlock()
}

// SetFrameFunc installs the screencast frame hook.
func (c *Client) SetFrameFunc(fn FrameFunc) {
	c.frameMu.Lock()
	c.frameFn = fn
	c.frameMu.Unlock()
}

// TookNavigation reports and clears the navigation flag, set whenever
// the page navigated for any reason (link click, redirect, history
// move). This is how the UI learns about implicit navigations.
func (c *Client) TookNavigation() bool {
	return c.navigated.Swap(false)
}

// DrainEvents removes and returns all queued events.
func (c *Client) DrainEvents() []Event {
	c.eventsMu.Lock()
	evs := c.events
	c.events = nil
	c.eventsMu.Unlock()
	return evs
}

// Send issues a command and blocks until its reply, the context
// deadline, or the default 10 s timeout. On timeout the waiter is
// removed; a late reply is discarded by the reader.
func (c *Client) Send(ctx context.Context, method string, params any) (json.RawMessage, error) {
	var raw json.RawMessage
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return nil, errors.Wrapf(err, "marshal %s params", method)
		}
		raw = b
	}

	id := c.nextID.Add(1)
	ch := make(chan *Message, 1)
	c.waitersMu.Lock()
	c.waiters[id] = ch
	c.waitersMu.Unlock()

	if err := c.write(Message{ID: id, SessionID: c.currentSession(), Method: method, Params: raw}); err != nil {
		c.removeWaiter(id)
		return nil, err
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultCommandTimeout)
		defer cancel()
	}

	select {
	case m := <-ch:
		if m == nil {
			return nil, errors.Wrapf(ErrClosed, "%s", method)
		}
		if m.Error != nil {
			return nil, errors.Wrapf(m.Error, "%s", method)
		}
		return m.Result, nil
	case <-ctx.Done():
		c.removeWaiter(id)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, errors.Wrapf(ErrTimeout, "%s", method)
		}
		return nil, ctx.Err()
	case <-c.closed:
		c.removeWaiter(id)
		return nil, errors.Wrapf(ErrClosed, "%s", method)
	}
}

// SendAsync issues a command without waiting for its reply; the reply is
// discarded by the reader. Used for frame acks, where stalling the
// caller would defeat the purpose.
func (c *Client) SendAsync(method string, params any) error {
	var raw json.RawMessage
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return errors.Wrapf(err, "marshal %s params", method)
		}
		raw = b
	}
	id := c.nextID.Add(1)
	return c.write(Message{ID: id, SessionID: c.currentSession(), Method: method, Params: raw})
}

func (c *Client) currentSession() string {
	c.sessionMu.RLock()
	defer c.sessionMu.RUnlock()
	return c.sessionID
}

func (c *Client) write(m Message) error {
	b, err := json.Marshal(m)
	if err != nil {
		return errors.Wrap(err, "marshal message")
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	select {
	case <-c.closed:
		return errors.Wrap(ErrClosed, m.Method)
	default:
	}
	if err := c.transport.WriteMessage(b); err != nil {
		return errors.Wrap(ErrClosed, err.Error())
	}
	return nil
}

func (c *Client) removeWaiter(id int64) {
	c.waitersMu.Lock()
	delete(c.waiters, id)
	c.waitersMu.Unlock()
}

// Close signals the reader to terminate, wakes every outstanding waiter
// with an error, and releases the transport. Idempotent.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.transport.Close()
		// Waiters wake via the closed channel in Send's select; dropping
		// them here just prevents a late reply from finding a home.
		c.waitersMu.Lock()
		c.waiters = make(map[int64]chan *Message)
		c.waitersMu.Unlock()
	})
}

// Done is closed once the client shuts down.
func (c *Client) Done() <-chan struct{} { return c.closed }

func (c *Client) readLoop() {
	defer c.Close()
	for {
		b, err := c.transport.ReadMessage()
		if err != nil {
			select {
			case <-c.closed:
			default:
				c.log.Debug("cdp read failed", "err", err)
			}
			return
		}
		m := &Message{}
		if err := json.Unmarshal(b, m); err != nil {
			// Malformed frames are a protocol nuisance, never fatal.
			c.log.Debug("dropping malformed cdp frame", "err", err, "bytes", len(b))
			continue
		}
		if m.Method == "" {
			c.deliverReply(m)
			continue
		}
		c.handleEvent(m)
	}
}

func (c *Client) deliverReply(m *Message) {
	c.waitersMu.Lock()
	ch, ok := c.waiters[m.ID]
	if ok {
		delete(c.waiters, m.ID)
	}
	c.waitersMu.Unlock()
	if ok {
		ch <- m
	}
	// No waiter: a timed-out or async command; discard.
}

func (c *Client) handleEvent(m *Message) {
	switch m.Method {
	case "Page.screencastFrame":
		ev := &page.EventScreencastFrame{}
		if err := json.Unmarshal(m.Params, ev); err != nil {
			c.log.Debug("bad screencast frame", "err", err)
			return
		}
		c.frameMu.RLock()
		fn := c.frameFn
		c.frameMu.RUnlock()
		if fn != nil {
			fn(ev)
			return
		}
		// Nobody consuming: ack immediately so Chrome never stalls.
		_ = c.SendAsync("Page.screencastFrameAck", page.ScreencastFrameAck(ev.SessionID))
		return
	case "Page.frameNavigated", "Page.navigatedWithinDocument":
		c.navigated.Store(true)
	}
	c.eventsMu.Lock()
	c.events = append(c.events, Event{Method: m.Method, Params: m.Params})
	c.eventsMu.Unlock()
}
