package fat

import (
	"encoding/binary"
	"log"

	"github.com/corrinth/vfat"
)

// fatEntryLocation finds the sector and intra-sector byte offset of the
// entry for cluster, within FAT copy copyIndex (0 is the primary copy).
func (v *Volume) fatEntryLocation(cluster ClusterID, copyIndex uint32) (SectorID, uint32) {
	width := entryWidthBytes(v.variant)
	byteOffset := uint64(cluster) * uint64(width)
	sectorsIntoFAT := uint32(byteOffset / uint64(v.bytesPerSector))
	withinSector := uint32(byteOffset % uint64(v.bytesPerSector))

	copyBase := v.firstFATSector + SectorID(copyIndex*v.numFATSectors)
	return copyBase + SectorID(sectorsIntoFAT), withinSector
}

func (v *Volume) readRawEntry(cluster ClusterID, copyIndex uint32) (uint32, error) {
	sector, offset := v.fatEntryLocation(cluster, copyIndex)
	buf, err := v.cache.read(sector)
	if err != nil {
		return 0, err
	}

	if entryWidthBytes(v.variant) == 4 {
		return binary.LittleEndian.Uint32(buf[offset : offset+4]), nil
	}
	return uint32(binary.LittleEndian.Uint16(buf[offset : offset+2])), nil
}

// getEntry reads the next-cluster pointer for cluster from the primary FAT,
// normalized to this volume's canonical end-of-chain sentinel.
func (v *Volume) getEntry(cluster ClusterID) (ClusterID, error) {
	raw, err := v.readRawEntry(cluster, 0)
	if err != nil {
		return 0, err
	}
	return normalizeEntry(raw, v.variant), nil
}

// getFATEntryCopy reads a cluster's entry from a specific FAT mirror,
// without normalizing free entries away. Used only by Stats() to cross
// check mirrors against each other.
func (v *Volume) getFATEntryCopy(cluster ClusterID, copyIndex uint32) (ClusterID, error) {
	raw, err := v.readRawEntry(cluster, copyIndex)
	if err != nil {
		return 0, err
	}
	return normalizeEntry(raw, v.variant), nil
}

// getEntryChecked behaves like getEntry, but if the entry on disk is free
// (0) it surfaces a diagnostic and returns the canonical end-of-chain
// sentinel instead of 0 - a free cluster found mid-chain means the chain is
// corrupt.
func (v *Volume) getEntryChecked(cluster ClusterID) (ClusterID, error) {
	next, err := v.getEntry(cluster)
	if err != nil {
		return 0, err
	}
	if next == clusterFree {
		log.Printf("vfat: corrupt chain: cluster %d's successor is free", cluster)
		return eocCanonical, nil
	}
	return next, nil
}

// setEntry overwrites cluster's entry in every FAT copy, keeping the
// mirrors in step with the primary so a later Stats() cross-check (or
// another implementation reading the second copy) sees consistent tables.
func (v *Volume) setEntry(cluster ClusterID, value ClusterID) error {
	for copyIdx := uint32(0); copyIdx < v.numFATs; copyIdx++ {
		sector, offset := v.fatEntryLocation(cluster, copyIdx)
		buf, err := v.cache.read(sector)
		if err != nil {
			return err
		}

		if entryWidthBytes(v.variant) == 4 {
			existing := binary.LittleEndian.Uint32(buf[offset : offset+4])
			// Preserve the reserved top 4 bits of a FAT32 entry.
			patched := (existing &^ mask32) | (uint32(value) & mask32)
			binary.LittleEndian.PutUint32(buf[offset:offset+4], patched)
		} else {
			binary.LittleEndian.PutUint16(buf[offset:offset+2], uint16(value))
		}

		if err := v.cache.write(sector); err != nil {
			return err
		}
	}
	return nil
}

// findFree scans cluster indices [start, numClusters+2) for the first free
// entry, returning 0 if none exists. No FSInfo-style free-cluster hint is
// maintained between calls, so every call rescans from start.
func (v *Volume) findFree(start ClusterID) (ClusterID, error) {
	if start < clusterFirst {
		start = clusterFirst
	}
	for i := uint32(start); i < v.numClusters+2; i++ {
		entry, err := v.getEntry(ClusterID(i))
		if err != nil {
			return 0, err
		}
		if entry == clusterFree {
			return ClusterID(i), nil
		}
	}
	return 0, nil
}

// appendToChain overwrites last's entry with newCluster. The caller must
// have already marked newCluster end-of-chain.
func (v *Volume) appendToChain(last, newCluster ClusterID) error {
	return v.setEntry(last, newCluster)
}

// allocateClusters allocates enough clusters to hold size bytes (at least
// one cluster, even for size == 0) and chains them together, returning the
// first cluster. Returns 0, ErrOutOfSpace if allocation can't be completed;
// no partial chain is left dangling in that case.
func (v *Volume) allocateClusters(size int64) (ClusterID, error) {
	count := (size + int64(v.bytesPerCluster) - 1) / int64(v.bytesPerCluster)
	if count < 1 {
		count = 1
	}

	var first, prev ClusterID
	searchFrom := clusterFirst

	for i := int64(0); i < count; i++ {
		next, err := v.findFree(searchFrom)
		if err != nil {
			return 0, err
		}
		if next == 0 {
			if first != 0 {
				if freeErr := v.freeChain(first); freeErr != nil {
					return 0, freeErr
				}
			}
			return 0, vfat.ErrOutOfSpace
		}

		if err := v.setEntry(next, eocCanonical); err != nil {
			return 0, err
		}
		if prev != 0 {
			if err := v.appendToChain(prev, next); err != nil {
				return 0, err
			}
		} else {
			first = next
		}
		prev = next
		searchFrom = next + 1
	}

	if err := v.cache.flush(); err != nil {
		return 0, err
	}
	return first, nil
}

// freeChain walks the chain starting at start, clearing every link to free
// (0), stopping at end-of-chain. A link pointing outside the data area
// (free, reserved, or a bad-cluster marker) also stops the walk rather than
// clobbering a reserved FAT entry.
func (v *Volume) freeChain(start ClusterID) error {
	current := start
	for !IsEndOfChain(current) && IsValidDataCluster(current, v.numClusters) {
		next, err := v.getEntryChecked(current)
		if err != nil {
			return err
		}
		if err := v.setEntry(current, clusterFree); err != nil {
			return err
		}
		current = next
	}
	return v.cache.flush()
}
