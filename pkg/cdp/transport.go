package cdp

import (
	"bufio"
	"bytes"
	"os"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

// Transport frames CDP messages over some duplex byte stream. Reads and
// writes may happen on different goroutines; implementations serialise
// internally only as much as their medium requires.
type Transport interface {
	// ReadMessage returns the next complete JSON message.
	ReadMessage() ([]byte, error)
	// WriteMessage sends one complete JSON message.
	WriteMessage([]byte) error
	Close() error
}

// pipeTransport speaks the --remote-debugging-pipe framing: each JSON
// message is terminated by a NUL byte. The browser reads commands on its
// fd 3 and writes replies and events on its fd 4.
type pipeTransport struct {
	w       *os.File
	r       *os.File
	scanner *bufio.Scanner
}

// NewPipeTransport wraps the parent ends of the two debugging pipes.
func NewPipeTransport(w, r *os.File) Transport {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 256*1024*1024) // screencast frames are large
	scanner.Split(scanNullTerminated)
	return &pipeTransport{w: w, r: r, scanner: scanner}
}

// scanNullTerminated splits on NUL, after bufio.ScanLines.
func scanNullTerminated(data []byte, atEOF bool) (int, []byte, error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexByte(data, '\000'); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

func (t *pipeTransport) ReadMessage() ([]byte, error) {
	if !t.scanner.Scan() {
		if err := t.scanner.Err(); err != nil {
			return nil, err
		}
		return nil, errors.Wrap(ErrClosed, "pipe EOF")
	}
	return t.scanner.Bytes(), nil
}

func (t *pipeTransport) WriteMessage(b []byte) error {
	if _, err := t.w.Write(b); err != nil {
		return errors.Wrap(err, "pipe write")
	}
	if _, err := t.w.Write([]byte{0}); err != nil {
		return errors.Wrap(err, "pipe write terminator")
	}
	return nil
}

func (t *pipeTransport) Close() error {
	werr := t.w.Close()
	rerr := t.r.Close()
	if werr != nil {
		return werr
	}
	return rerr
}

// wsTransport speaks the discovered-debug-port mode: one JSON text frame
// per message.
type wsTransport struct {
	conn *websocket.Conn
}

// NewWebSocketTransport dials the browser's DevTools WebSocket URL.
func NewWebSocketTransport(url string) (Transport, error) {
	dialer := websocket.Dialer{
		// Screencast frames regularly exceed the default buffer sizes.
		ReadBufferSize:  1 << 20,
		WriteBufferSize: 1 << 20,
	}
	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "dial devtools websocket %s", url)
	}
	conn.SetReadLimit(256 << 20)
	return &wsTransport{conn: conn}, nil
}

func (t *wsTransport) ReadMessage() ([]byte, error) {
	for {
		typ, b, err := t.conn.ReadMessage()
		if err != nil {
			return nil, errors.Wrap(err, "websocket read")
		}
		if typ == websocket.TextMessage {
			return b, nil
		}
	}
}

func (t *wsTransport) WriteMessage(b []byte) error {
	return t.conn.WriteMessage(websocket.TextMessage, b)
}

func (t *wsTransport) Close() error {
	return t.conn.Close()
}
