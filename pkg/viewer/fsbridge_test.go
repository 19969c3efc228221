package viewer

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gtassert "gotest.tools/v3/assert"
)

type replyRecorder struct {
	replies []string
}

func (r *replyRecorder) fn(js string) { r.replies = append(r.replies, js) }

func newTestBridge(t *testing.T, roots []string) (*FSBridge, *replyRecorder) {
	t.Helper()
	rec := &replyRecorder{}
	return NewFSBridge(roots, rec.fn, nil, nil), rec
}

func TestDeniedPathGetsExplicitFailureReply(t *testing.T) {
	b, rec := newTestBridge(t, nil)

	handled := b.HandleConsoleMessage("__TERMWEB_FS__:7:readdir:/not/allowed")
	assert.True(t, handled)
	require.Len(t, rec.replies, 1)
	assert.Equal(t, `window.__termwebFSResponse(7, false, "Path not allowed")`, rec.replies[0])
}

func TestDotDotRejectedEvenUnderRoot(t *testing.T) {
	dir := t.TempDir()
	b, rec := newTestBridge(t, []string{dir})

	b.HandleConsoleMessage(fmt.Sprintf("__TERMWEB_FS__:1:readdir:%s/sub/../..", dir))
	require.Len(t, rec.replies, 1)
	assert.Contains(t, rec.replies[0], "false")
}

func TestReaddirUnderAllowedRoot(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hi"), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0755))

	b, rec := newTestBridge(t, []string{dir})
	b.HandleConsoleMessage("__TERMWEB_FS__:3:readdir:" + dir)

	require.Len(t, rec.replies, 1)
	reply := rec.replies[0]
	assert.True(t, strings.HasPrefix(reply, "window.__termwebFSResponse(3, true, "))
	assert.Contains(t, reply, `"a.txt"`)
	assert.Contains(t, reply, `"sub"`)
}

func TestReadfileReturnsBase64(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.bin")
	require.NoError(t, os.WriteFile(path, []byte("payload"), 0644))

	b, rec := newTestBridge(t, []string{dir})
	b.HandleConsoleMessage("__TERMWEB_FS__:4:readfile:" + path)

	require.Len(t, rec.replies, 1)
	encoded := base64.StdEncoding.EncodeToString([]byte("payload"))
	gtassert.Equal(t, rec.replies[0],
		fmt.Sprintf(`window.__termwebFSResponse(4, true, %q)`, encoded))
}

func TestWritefileDecodesPayload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.txt")

	b, rec := newTestBridge(t, []string{dir})
	data := base64.StdEncoding.EncodeToString([]byte("written"))
	b.HandleConsoleMessage(fmt.Sprintf("__TERMWEB_FS__:5:writefile:%s:%s", path, data))

	require.Len(t, rec.replies, 1)
	assert.Contains(t, rec.replies[0], "true")
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "written", string(content))
}

func TestStatMkdirRemove(t *testing.T) {
	dir := t.TempDir()
	b, rec := newTestBridge(t, []string{dir})

	sub := filepath.Join(dir, "newdir")
	b.HandleConsoleMessage("__TERMWEB_FS__:1:mkdir:" + sub)
	assert.DirExists(t, sub)

	b.HandleConsoleMessage("__TERMWEB_FS__:2:stat:" + sub)
	assert.Contains(t, rec.replies[1], `"isDir":true`)

	b.HandleConsoleMessage("__TERMWEB_FS__:3:remove:" + sub)
	assert.NoDirExists(t, sub)

	b.HandleConsoleMessage("__TERMWEB_FS__:4:stat:" + sub)
	assert.Contains(t, rec.replies[3], `"exists":false`)

	// One reply per request, ids echoed back.
	require.Len(t, rec.replies, 4)
	for i, want := range []string{"(1,", "(2,", "(3,", "(4,"} {
		assert.Contains(t, rec.replies[i], want)
	}
}

func TestEveryRequestGetsExactlyOneReply(t *testing.T) {
	dir := t.TempDir()
	b, rec := newTestBridge(t, []string{dir})

	msgs := []string{
		"__TERMWEB_FS__:10:readdir:" + dir,
		"__TERMWEB_FS__:11:readdir:/denied",
		"__TERMWEB_FS__:12:readfile:" + filepath.Join(dir, "missing.txt"),
		"__TERMWEB_FS__:13:bogusop:" + dir,
	}
	for _, m := range msgs {
		b.HandleConsoleMessage(m)
	}
	require.Len(t, rec.replies, len(msgs))
	for i, id := range []int{10, 11, 12, 13} {
		assert.True(t, strings.HasPrefix(rec.replies[i], fmt.Sprintf("window.__termwebFSResponse(%d, ", id)))
	}
}

func TestNonMarkerMessagesIgnored(t *testing.T) {
	b, rec := newTestBridge(t, nil)
	assert.False(t, b.HandleConsoleMessage("console noise"))
	assert.False(t, b.HandleConsoleMessage("__TERMWEB_FS_:1:readdir:/x"))
	assert.Empty(t, rec.replies)
}

func TestMalformedMarkerProducesNoReply(t *testing.T) {
	b, rec := newTestBridge(t, nil)
	assert.True(t, b.HandleConsoleMessage("__TERMWEB_FS__:notanid:readdir:/x"))
	assert.Empty(t, rec.replies, "no id to reply to")
}

func TestPickerAddsRootAndReplies(t *testing.T) {
	dir := t.TempDir()
	rec := &replyRecorder{}
	picker := func(kind string) (string, bool) {
		assert.Equal(t, "directory", kind)
		return dir, true
	}
	b := NewFSBridge(nil, rec.fn, picker, nil)

	b.HandleConsoleMessage("__TERMWEB_PICKER__:directory")
	require.Len(t, rec.replies, 1)
	assert.Contains(t, rec.replies[0], "window.__termwebPickerResult(true, ")
	assert.Contains(t, rec.replies[0], "true)") // isDir

	// The picked directory is now allow-listed.
	b.HandleConsoleMessage("__TERMWEB_FS__:1:readdir:" + dir)
	assert.Contains(t, rec.replies[1], "true")
}

func TestPickerCancelReplies(t *testing.T) {
	rec := &replyRecorder{}
	b := NewFSBridge(nil, rec.fn, func(string) (string, bool) { return "", false }, nil)
	b.HandleConsoleMessage("__TERMWEB_PICKER__:file")
	require.Len(t, rec.replies, 1)
	assert.Equal(t, "window.__termwebPickerResult(false)", rec.replies[0])
}

func TestRootPrefixIsPathAware(t *testing.T) {
	dir := t.TempDir()
	b, rec := newTestBridge(t, []string{dir})

	// A sibling whose name shares the prefix must be denied.
	b.HandleConsoleMessage("__TERMWEB_FS__:9:readdir:" + dir + "evil")
	require.Len(t, rec.replies, 1)
	assert.Contains(t, rec.replies[0], "Path not allowed")
}
