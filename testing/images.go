// Package testing carries fixture helpers shared across this module's own
// tests: compressed canned disk images and an in-memory block device.
package testing

import (
	"bytes"
	"crypto/rand"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/bytesextra"

	"github.com/corrinth/vfat/device"
	"github.com/corrinth/vfat/utilities/compression"
)

// LoadDiskImage takes a compressed disk image and returns a stream to access
// the uncompressed data.
//
//   - Writes to the stream do not affect compressedImageBytes.
//   - While the stream can be written to, its size is fixed to
//     sectorSize * totalSectors. Attempting to write past the end of this
//     buffer will trigger an error.
func LoadDiskImage(
	t *testing.T, compressedImageBytes []byte, sectorSize, totalSectors uint,
) io.ReadWriteSeeker {
	compressedBuf := bytes.NewBuffer(compressedImageBytes)
	require.Greater(t, len(compressedImageBytes), 0, "compressed image is empty")

	imageBytes, err := compression.DecompressImageToBytes(compressedBuf)
	require.NoError(t, err)

	require.Equal(
		t,
		totalSectors*sectorSize,
		uint(len(imageBytes)),
		"uncompressed image is wrong size",
	)
	return bytesextra.NewReadWriteSeeker(imageBytes)
}

// NewDevice wraps a raw disk image as a [device.Adapter], ready to hand to
// fat.Mount.
func NewDevice(image []byte) *device.Adapter {
	return device.New(bytesextra.NewReadWriteSeeker(image))
}

// CreateRandomImage returns an image with the given number of sectors and
// bytes per sector, filled with random bytes. It is guaranteed to either
// return a valid slice or fail the test and abort.
func CreateRandomImage(bytesPerSector, totalSectors uint, t *testing.T) []byte {
	backingData := make([]byte, bytesPerSector*totalSectors)

	_, err := rand.Read(backingData)
	require.NoErrorf(
		t,
		err,
		"failed to initialize %d sectors of size %d with random bytes",
		totalSectors,
		bytesPerSector,
	)
	return backingData
}
