package viewer

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// Wire markers printed by the browser-side shim. Everything after the
// marker is colon-separated: id, op, path, and (for writes) base64 data.
const (
	fsMarker     = "__TERMWEB_FS__:"
	pickerMarker = "__TERMWEB_PICKER__:"
)

// MaxReadFileSize caps readfile responses.
const MaxReadFileSize = 100 << 20

// ReplyFunc posts a JavaScript expression back into the page.
type ReplyFunc func(js string)

// PickerFunc shows a native file/directory picker and returns the chosen
// absolute path. It blocks the viewer; the page is paused by design
// while a picker is up. ok=false means the user cancelled.
type PickerFunc func(kind string) (path string, ok bool)

// FSBridge services filesystem requests from the page. Every request
// path must be a prefix-child of an allow-listed root and must not
// contain "..". Every request gets exactly one reply, including
// denials, so the browser promise always settles.
type FSBridge struct {
	reply  ReplyFunc
	picker PickerFunc
	log    *slog.Logger

	mu    sync.Mutex
	roots []string
}

// NewFSBridge creates a bridge with an initial allow-list.
func NewFSBridge(roots []string, reply ReplyFunc, picker PickerFunc, log *slog.Logger) *FSBridge {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	b := &FSBridge{reply: reply, picker: picker, log: log}
	for _, r := range roots {
		b.AddRoot(r)
	}
	return b
}

// AddRoot allow-lists a subtree. Relative and unclean paths are
// normalised first.
func (b *FSBridge) AddRoot(root string) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return
	}
	abs = filepath.Clean(abs)
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, r := range b.roots {
		if r == abs {
			return
		}
	}
	b.roots = append(b.roots, abs)
}

// Roots returns a copy of the allow-list.
func (b *FSBridge) Roots() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.roots...)
}

// allowed checks the path against the allow-list.
func (b *FSBridge) allowed(path string) bool {
	if strings.Contains(path, "..") {
		return false
	}
	if !filepath.IsAbs(path) {
		return false
	}
	clean := filepath.Clean(path)
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, root := range b.roots {
		if clean == root || strings.HasPrefix(clean, root+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// HandleConsoleMessage inspects one console-message text. Returns true
// when it was a bridge marker (and was fully handled).
func (b *FSBridge) HandleConsoleMessage(text string) bool {
	switch {
	case strings.HasPrefix(text, fsMarker):
		b.handleFS(strings.TrimPrefix(text, fsMarker))
		return true
	case strings.HasPrefix(text, pickerMarker):
		b.handlePicker(strings.TrimPrefix(text, pickerMarker))
		return true
	}
	return false
}

func (b *FSBridge) handleFS(rest string) {
	parts := strings.SplitN(rest, ":", 3)
	if len(parts) < 3 {
		b.log.Debug("malformed fs marker", "rest", rest)
		return
	}
	id, err := strconv.Atoi(parts[0])
	if err != nil {
		b.log.Debug("malformed fs request id", "id", parts[0])
		return
	}
	op := parts[1]
	path := parts[2]
	var data []byte

	if op == "writefile" {
		// Base64 contains no colon; the final segment is the payload.
		if i := strings.LastIndexByte(path, ':'); i >= 0 {
			var derr error
			data, derr = base64.StdEncoding.DecodeString(path[i+1:])
			if derr != nil {
				b.respond(id, false, "invalid data encoding")
				return
			}
			path = path[:i]
		}
	}

	if !b.allowed(path) {
		b.log.Info("fs request denied", "op", op, "path", path)
		b.respond(id, false, "Path not allowed")
		return
	}

	payload, err := b.perform(op, path, data)
	if err != nil {
		b.respond(id, false, err.Error())
		return
	}
	b.respond(id, true, payload)
}

func (b *FSBridge) perform(op, path string, data []byte) (any, error) {
	switch op {
	case "readdir":
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, err
		}
		type entry struct {
			Name  string `json:"name"`
			IsDir bool   `json:"isDir"`
			Size  int64  `json:"size"`
		}
		out := make([]entry, 0, len(entries))
		for _, e := range entries {
			var size int64
			if info, err := e.Info(); err == nil {
				size = info.Size()
			}
			out = append(out, entry{Name: e.Name(), IsDir: e.IsDir(), Size: size})
		}
		return out, nil

	case "readfile":
		info, err := os.Stat(path)
		if err != nil {
			return nil, err
		}
		if info.Size() > MaxReadFileSize {
			return nil, errors.Errorf("file exceeds %d byte limit", MaxReadFileSize)
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return base64.StdEncoding.EncodeToString(raw), nil

	case "writefile":
		return nil, os.WriteFile(path, data, 0644)

	case "createfile":
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0644)
		if err != nil {
			return nil, err
		}
		return nil, f.Close()

	case "stat":
		info, err := os.Stat(path)
		if os.IsNotExist(err) {
			return map[string]any{"exists": false}, nil
		}
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"exists": true,
			"isDir":  info.IsDir(),
			"size":   info.Size(),
			"mtime":  info.ModTime().UnixMilli(),
		}, nil

	case "mkdir":
		return nil, os.MkdirAll(path, 0755)

	case "remove":
		return nil, os.RemoveAll(path)

	default:
		return nil, errors.Errorf("unknown operation %q", op)
	}
}

// respond settles the browser-side promise. The payload is JSON so the
// shim can hand it straight to the caller.
func (b *FSBridge) respond(id int, ok bool, payload any) {
	pb, err := json.Marshal(payload)
	if err != nil {
		pb = []byte(`"internal error"`)
		ok = false
	}
	b.reply(fmt.Sprintf("window.__termwebFSResponse(%d, %t, %s)", id, ok, pb))
}

func (b *FSBridge) handlePicker(kind string) {
	switch kind {
	case "file", "directory", "save":
	default:
		b.log.Debug("unknown picker kind", "kind", kind)
		return
	}
	if b.picker == nil {
		b.reply("window.__termwebPickerResult(false)")
		return
	}
	path, ok := b.picker(kind)
	if !ok {
		b.reply("window.__termwebPickerResult(false)")
		return
	}
	// The chosen path becomes readable/writable before the page hears
	// about it, so follow-up FS requests succeed immediately.
	b.AddRoot(path)
	isDir := false
	if info, err := os.Stat(path); err == nil {
		isDir = info.IsDir()
	}
	nb, _ := json.Marshal(filepath.Base(path))
	pb, _ := json.Marshal(path)
	b.reply(fmt.Sprintf("window.__termwebPickerResult(true, %s, %s, %t)", pb, nb, isDir))
}
