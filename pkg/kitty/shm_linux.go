package kitty

import (
	"fmt"
	"image"
	"os"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// shmDir is where Linux exposes POSIX shared-memory objects as files.
const shmDir = "/dev/shm"

// SHMBuffer is a fixed-capacity POSIX shared-memory segment used to
// hand raw RGBA frames to the terminal without base64-encoding them
// over the tty. The segment is sized once for the maximum geometry and
// never resized while a placement may still reference it.
type SHMBuffer struct {
	name string // object name, with leading slash, as Kitty expects
	path string
	size int
	file *os.File
	mem  []byte
}

// NewSHMBuffer creates a segment able to hold maxWidth x maxHeight RGBA
// pixels. Returns an error when the OS refuses; callers fall back to
// the base64 path.
func NewSHMBuffer(maxWidth, maxHeight int) (*SHMBuffer, error) {
	if maxWidth <= 0 || maxHeight <= 0 {
		return nil, errors.New("shm: zero-sized segment")
	}
	b := &SHMBuffer{
		name: fmt.Sprintf("/termweb-%d", os.Getpid()),
		size: maxWidth * maxHeight * 4,
	}
	b.path = shmDir + b.name
	if err := b.create(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *SHMBuffer) create() error {
	f, err := os.OpenFile(b.path, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return errors.Wrap(err, "shm: open")
	}
	if err := f.Truncate(int64(b.size)); err != nil {
		f.Close()
		return errors.Wrap(err, "shm: truncate")
	}
	mem, err := unix.Mmap(int(f.Fd()), 0, b.size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return errors.Wrap(err, "shm: mmap")
	}
	b.file = f
	b.mem = mem
	return nil
}

// Store copies the image's pixels into the segment and returns the
// object name to pass in the t=s transmission. Terminals unlink the
// object after reading it, so a vanished file is recreated first.
func (b *SHMBuffer) Store(img *image.RGBA) (string, error) {
	need := img.Rect.Dx() * img.Rect.Dy() * 4
	if need > b.size {
		return "", errors.Errorf("shm: frame %d bytes exceeds segment %d", need, b.size)
	}
	if _, err := os.Stat(b.path); err != nil {
		b.release()
		if err := b.create(); err != nil {
			return "", err
		}
	}
	if img.Stride == img.Rect.Dx()*4 {
		copy(b.mem, img.Pix[:need])
	} else {
		w4 := img.Rect.Dx() * 4
		for y := 0; y < img.Rect.Dy(); y++ {
			copy(b.mem[y*w4:], img.Pix[y*img.Stride:y*img.Stride+w4])
		}
	}
	return b.name, nil
}

// Close unmaps and unlinks the segment. Safe on teardown paths where
// the terminal already unlinked it.
func (b *SHMBuffer) Close() {
	b.release()
	_ = os.Remove(b.path)
}

func (b *SHMBuffer) release() {
	if b.mem != nil {
		_ = unix.Munmap(b.mem)
		b.mem = nil
	}
	if b.file != nil {
		_ = b.file.Close()
		b.file = nil
	}
}
