package testing

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/corrinth/vfat"
)

// BoundedDevice is a [vfat.BlockDevice] over an in-memory image that fails
// the test, and also returns [vfat.ErrDeviceFailure] to the caller, on an
// out-of-bounds access or a write to a read-only image, checking bounds and
// permissions the way a block cache's fetch/flush callbacks would.
type BoundedDevice struct {
	t        *testing.T
	backing  []byte
	writable bool
}

var _ vfat.BlockDevice = (*BoundedDevice)(nil)

// NewBoundedDevice wraps backing as a bounds-checked BlockDevice. If
// backing is nil, bytesPerSector*totalSectors bytes of random data are
// generated for it.
func NewBoundedDevice(
	bytesPerSector, totalSectors uint, writable bool, backing []byte, t *testing.T,
) *BoundedDevice {
	if backing == nil {
		backing = CreateRandomImage(bytesPerSector, totalSectors, t)
	}
	assert.EqualValues(t, bytesPerSector*totalSectors, len(backing), "backing image is the wrong size")
	return &BoundedDevice{t: t, backing: backing, writable: writable}
}

// ReadAt reads len(buf) bytes from byteOffset, failing the test if the
// request falls outside the image.
func (d *BoundedDevice) ReadAt(buf []byte, byteOffset int64) (int, error) {
	if byteOffset < 0 || int(byteOffset)+len(buf) > len(d.backing) {
		message := fmt.Sprintf(
			"attempted to read outside bounds: [%d, %d) not in [0, %d)",
			byteOffset, int(byteOffset)+len(buf), len(d.backing))
		d.t.Error(message)
		return 0, vfat.ErrDeviceFailure
	}
	return copy(buf, d.backing[byteOffset:int(byteOffset)+len(buf)]), nil
}

// WriteAt writes len(buf) bytes at byteOffset, failing the test on an
// out-of-bounds write or a write to a read-only image.
func (d *BoundedDevice) WriteAt(buf []byte, byteOffset int64) (int, error) {
	if !d.writable {
		message := fmt.Sprintf("attempted to write %d bytes to a read-only image", len(buf))
		d.t.Error(message)
		return 0, vfat.ErrDeviceFailure
	}
	if byteOffset < 0 || int(byteOffset)+len(buf) > len(d.backing) {
		message := fmt.Sprintf(
			"attempted to write outside bounds: [%d, %d) not in [0, %d)",
			byteOffset, int(byteOffset)+len(buf), len(d.backing))
		d.t.Error(message)
		return 0, vfat.ErrDeviceFailure
	}
	return copy(d.backing[byteOffset:int(byteOffset)+len(buf)], buf), nil
}
