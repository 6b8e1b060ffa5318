// Package vfat implements a stripped-down FAT16/FAT32 filesystem engine over
// a block-oriented storage device: on-disk layout parsing and mount, a
// single-sector write-back cache, cluster-chain allocation, directory
// iteration and long-filename reassembly, and the POSIX-style file lifecycle
// (open, read, write, seek, unlink).
//
// The underlying block device, any line-editing input layer, USB transport,
// and the surrounding CLI shell are out of scope; this package only needs a
// [BlockDevice] to read and write sectors by byte offset.
package vfat

import (
	"math"
	"time"
)

// BlockDevice is the two-primitive contract this package consumes from the
// underlying storage medium: byte-addressed read and write, full length
// expected on success. Card initialization, CRC generation, and the sector
// I/O itself belong to the concrete implementation, not here.
type BlockDevice interface {
	// ReadAt reads exactly len(buf) bytes starting at byteOffset.
	ReadAt(buf []byte, byteOffset int64) (int, error)
	// WriteAt writes exactly len(buf) bytes starting at byteOffset.
	WriteAt(buf []byte, byteOffset int64) (int, error)
}

// UndefinedTimestamp is used in place of a FAT timestamp that can't be
// represented.
var UndefinedTimestamp = time.UnixMicro(math.MaxInt64)

// FSStat reports aggregate information about a mounted volume, gathered by
// scanning the FAT.
type FSStat struct {
	// BytesPerCluster is the size of a single allocation unit, in bytes.
	BytesPerCluster int64
	// TotalClusters is the number of data clusters on the volume.
	TotalClusters uint64
	// FreeClusters is the number of clusters with a free (0) FAT entry.
	FreeClusters uint64
	// AllocatedClusters is TotalClusters - FreeClusters.
	AllocatedClusters uint64
}
