//go:build !linux

package kitty

import (
	"image"

	"github.com/pkg/errors"
)

// SHMBuffer is unavailable off Linux; the emitter uses the base64 path.
type SHMBuffer struct{}

func NewSHMBuffer(maxWidth, maxHeight int) (*SHMBuffer, error) {
	return nil, errors.New("shm: not supported on this platform")
}

func (b *SHMBuffer) Store(img *image.RGBA) (string, error) {
	return "", errors.New("shm: not supported on this platform")
}

func (b *SHMBuffer) Close() {}
