package fat

import "github.com/corrinth/vfat"

// dirIterator performs linear 32-byte-slot iteration across the sectors of
// a directory, transparently following the cluster chain and extending it
// when the scan overruns the last allocated sector.
type dirIterator struct {
	vol *Volume

	startCluster   ClusterID // 0 on FAT16 root
	currentCluster ClusterID
	currentSector  SectorID
	sectorIndex    uint32 // index of currentSector within the current chunk
	chunkSectors   uint32 // dirSectorCount(currentCluster)
	byteOffset     uint32 // offset within the cached sector buffer

	// dirSector is the absolute sector of the slot last returned by first()
	// or next(), recorded so callers can note a slot's on-disk location.
	dirSector SectorID
}

// newDirIterator returns an iterator positioned before the first slot of
// dirCluster. Call next() (or first()) to read a slot.
func newDirIterator(vol *Volume, dirCluster ClusterID) *dirIterator {
	return &dirIterator{
		vol:            vol,
		startCluster:   dirCluster,
		currentCluster: dirCluster,
		chunkSectors:   vol.dirSectorCount(dirCluster),
	}
}

// first reads the first slot of the directory and returns it.
func (it *dirIterator) first() ([]byte, error) {
	it.currentSector = it.vol.sectorOfCluster(it.currentCluster)
	it.sectorIndex = 0
	it.byteOffset = 0
	it.dirSector = it.currentSector

	buf, err := it.vol.cache.read(it.currentSector)
	if err != nil {
		return nil, err
	}
	return buf[it.byteOffset : it.byteOffset+DirentSize], nil
}

// current returns the slot at the iterator's present position without
// advancing, re-reading the sector into the cache if something else has
// since evicted it; pointers into the cache buffer only last across a
// single operation.
func (it *dirIterator) current() ([]byte, error) {
	buf, err := it.vol.cache.read(it.currentSector)
	if err != nil {
		return nil, err
	}
	return buf[it.byteOffset : it.byteOffset+DirentSize], nil
}

// next advances to the following slot, crossing sector and cluster
// boundaries as needed, and extends the chain with one fresh zeroed cluster
// if the directory runs out of room.
func (it *dirIterator) next() ([]byte, error) {
	it.byteOffset += DirentSize
	if it.byteOffset < it.vol.bytesPerSector {
		it.dirSector = it.currentSector
		return it.current()
	}

	it.byteOffset = 0
	it.sectorIndex++

	if it.sectorIndex < it.chunkSectors {
		it.currentSector++
		it.dirSector = it.currentSector
		buf, err := it.vol.cache.read(it.currentSector)
		if err != nil {
			return nil, err
		}
		return buf[:DirentSize], nil
	}

	// Exhausted this chunk; follow the FAT chain to the next cluster.
	if it.vol.variant == FAT16 && it.currentCluster == it.vol.rootDirCluster && it.startCluster == 0 {
		// The FAT16 fixed root region has no chain to follow and cannot be
		// extended.
		return nil, nil
	}

	next, err := it.vol.getEntry(it.currentCluster)
	if err != nil {
		return nil, err
	}

	if IsEndOfChain(next) {
		return it.extendChain()
	}

	it.currentCluster = next
	it.chunkSectors = it.vol.dirSectorCount(next)
	it.currentSector = it.vol.sectorOfCluster(next)
	it.sectorIndex = 0
	it.dirSector = it.currentSector

	buf, err := it.vol.cache.read(it.currentSector)
	if err != nil {
		return nil, err
	}
	return buf[:DirentSize], nil
}

// extendChain allocates one fresh cluster, appends it to the directory's
// chain, zero-fills its first sector in the cache, marks the first slot's
// name byte as "never used", and continues iteration there.
func (it *dirIterator) extendChain() ([]byte, error) {
	newCluster, err := it.vol.findFree(clusterFirst)
	if err != nil {
		return nil, err
	}
	if newCluster == 0 {
		return nil, vfat.ErrOutOfSpace
	}
	if err := it.vol.setEntry(newCluster, eocCanonical); err != nil {
		return nil, err
	}
	if err := it.vol.appendToChain(it.currentCluster, newCluster); err != nil {
		return nil, err
	}

	it.currentCluster = newCluster
	it.chunkSectors = it.vol.dirSectorCount(newCluster)
	it.sectorIndex = 0
	it.currentSector = it.vol.sectorOfCluster(newCluster)
	it.dirSector = it.currentSector

	buf := it.vol.cache.writeZeroed(it.currentSector)
	buf[0] = direntNameFree
	if err := it.vol.cache.flush(); err != nil {
		return nil, err
	}

	slot, err := it.vol.cache.read(it.currentSector)
	if err != nil {
		return nil, err
	}
	return slot[:DirentSize], nil
}

// isLastSlot reports whether slot terminates the directory scan.
func isLastSlot(slot []byte) bool {
	return slot == nil || slot[0] == direntNameFree
}

// isFreeSlot reports whether slot was deleted and is available for reuse.
func isFreeSlot(slot []byte) bool {
	return slot[0] == direntNameDeleted
}
