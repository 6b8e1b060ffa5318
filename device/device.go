// Package device adapts a byte-addressed backing store to the
// [vfat.BlockDevice] contract the fat engine consumes: dev_read and
// dev_write. The card initialization handshake, CRC generation, and
// actual sector I/O of a real storage medium are out of scope; this
// package only wraps whatever already implements Go's io.ReadWriteSeeker,
// such as an os.File or, in tests and tools, an in-memory image wrapped
// with bytesextra.NewReadWriteSeeker.
package device

import (
	"io"

	"github.com/corrinth/vfat"
)

// Adapter wraps an io.ReadWriteSeeker as a [vfat.BlockDevice] by seeking to
// the requested offset before each transfer. Calls are not safe for
// concurrent use, matching the single-threaded, totally-ordered model the
// fat engine assumes.
type Adapter struct {
	stream io.ReadWriteSeeker
}

var _ vfat.BlockDevice = (*Adapter)(nil)

// New wraps stream as a BlockDevice.
func New(stream io.ReadWriteSeeker) *Adapter {
	return &Adapter{stream: stream}
}

// ReadAt reads exactly len(buf) bytes starting at byteOffset.
func (a *Adapter) ReadAt(buf []byte, byteOffset int64) (int, error) {
	if _, err := a.stream.Seek(byteOffset, io.SeekStart); err != nil {
		return 0, err
	}
	return io.ReadFull(a.stream, buf)
}

// WriteAt writes exactly len(buf) bytes starting at byteOffset.
func (a *Adapter) WriteAt(buf []byte, byteOffset int64) (int, error) {
	if _, err := a.stream.Seek(byteOffset, io.SeekStart); err != nil {
		return 0, err
	}
	return a.stream.Write(buf)
}
