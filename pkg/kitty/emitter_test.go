package kitty

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisplayPNGAssignsMonotonicIDs(t *testing.T) {
	var out bytes.Buffer
	e := NewEmitter(&out, nil)
	e.BeginFrame()
	id1 := e.DisplayPNG([]byte("fake-png"), DisplayOptions{Layer: LayerContent})
	id2 := e.DisplayPNG([]byte("fake-png"), DisplayOptions{Layer: LayerContent})
	require.NoError(t, e.EndFrame())
	assert.Greater(t, id2, id1)
}

func TestDisplayPNGChunksAt4096(t *testing.T) {
	var out bytes.Buffer
	e := NewEmitter(&out, nil)

	// Enough payload that the base64 encoding spans several chunks.
	data := bytes.Repeat([]byte{0xAB}, 10000)
	e.BeginFrame()
	e.DisplayPNG(data, DisplayOptions{Layer: LayerContent})
	require.NoError(t, e.EndFrame())

	s := out.String()
	encoded := base64.StdEncoding.EncodeToString(data)
	wantChunks := (len(encoded) + chunkSize - 1) / chunkSize
	assert.Equal(t, wantChunks, strings.Count(s, "\x1b_G"))
	// Every chunk except the last sets m=1; the last sets m=0.
	assert.Equal(t, wantChunks-1, strings.Count(s, "m=1;"))
	assert.Equal(t, 1, strings.Count(s, "m=0;"))

	// No escape payload may exceed the protocol's chunk limit.
	for _, part := range strings.Split(s, "\x1b\\") {
		gi := strings.LastIndex(part, "\x1b_G")
		if gi < 0 {
			continue
		}
		cmd := part[gi:]
		if i := strings.IndexByte(cmd, ';'); i >= 0 {
			assert.LessOrEqual(t, len(cmd)-i-1, chunkSize)
		}
	}
}

func TestLayerTuplesInPlacement(t *testing.T) {
	var out bytes.Buffer
	e := NewEmitter(&out, nil)
	e.BeginFrame()
	e.DisplayPNG([]byte("x"), DisplayOptions{Layer: LayerToolbar})
	require.NoError(t, e.EndFrame())
	assert.Contains(t, out.String(), "p=3,z=20")
}

func TestDeleteFreesImageData(t *testing.T) {
	var out bytes.Buffer
	e := NewEmitter(&out, nil)
	e.BeginFrame()
	id := e.DisplayPNG([]byte("x"), DisplayOptions{Layer: LayerContent})
	e.Delete(id)
	require.NoError(t, e.EndFrame())
	assert.Contains(t, out.String(), fmt.Sprintf("a=d,d=I,q=2,i=%d", id))
}

func TestFrameIsSynchronized(t *testing.T) {
	var out bytes.Buffer
	e := NewEmitter(&out, nil)
	e.BeginFrame()
	e.DisplayPNG([]byte("x"), DisplayOptions{Layer: LayerContent})
	require.NoError(t, e.EndFrame())
	s := out.String()
	assert.True(t, strings.HasPrefix(s, "\x1b[?2026h"))
	assert.True(t, strings.HasSuffix(s, "\x1b[?2026l"))
}

func TestDisplayRGBAWithoutSHMUsesRawBase64(t *testing.T) {
	var out bytes.Buffer
	e := NewEmitter(&out, nil)
	img := image.NewRGBA(image.Rect(0, 0, 4, 2))
	e.BeginFrame()
	e.DisplayRGBA(img, DisplayOptions{Layer: LayerContent})
	require.NoError(t, e.EndFrame())
	assert.Contains(t, out.String(), "f=32,s=4,v=2")
}

func TestNothingWrittenBeforeEndFrame(t *testing.T) {
	var out bytes.Buffer
	e := NewEmitter(&out, nil)
	e.BeginFrame()
	e.DisplayPNG([]byte("x"), DisplayOptions{Layer: LayerContent})
	assert.Zero(t, out.Len())
	require.NoError(t, e.EndFrame())
	assert.NotZero(t, out.Len())
}
