package fat

import (
	"log"
	"syscall"
	"time"

	"github.com/corrinth/vfat"
)

// File bundles a start cluster, current cluster/offset cursor, size, access
// mode, and a back-pointer to the directory slot describing it. It holds
// a non-owning reference to its Volume and must not outlive it.
type File struct {
	vol  *Volume
	mode vfat.OpenFlags
	path string

	startCluster   ClusterID
	currentCluster ClusterID
	clusterStart   int64 // byte offset of currentCluster's first byte
	offset         int64
	size           int64

	// Location of this file's short directory entry, so writes can update
	// size in place and unlink can find it again.
	dirSector SectorID
	dirOffset uint32
}

// Open resolves path against vol and returns a ready File handle.
//
//   - If the path resolves to a directory, fails with ErrIsDirectory.
//   - If it resolves to a file and O_TRUNC is set with a writable mode, the
//     file's size is reset to 0 on disk immediately.
//   - If it resolves to a file and O_APPEND is set, the cursor starts at the
//     end; otherwise it starts at 0.
//   - If the path doesn't resolve and O_CREAT is set, the file is created
//     with create(). Otherwise fails with ErrNoSuchFile.
func (v *Volume) Open(path string, mode vfat.OpenFlags) (*File, error) {
	if !v.flags.CanRead() {
		return nil, vfat.ErrInvalidMode
	}
	if mode.Writable() && !v.flags.CanWrite() {
		return nil, vfat.ErrInvalidMode
	}

	result, err := v.resolvePath(path)
	if err != nil {
		return nil, err
	}

	if !result.found {
		if mode&vfat.O_CREAT == 0 {
			return nil, vfat.ErrNoSuchFile
		}
		if !v.flags.CanCreate() {
			return nil, vfat.ErrInvalidMode
		}
		if !result.parentClusterSet {
			return nil, vfat.ErrNoSuchFile
		}
		return v.create(path, result.parentCluster, mode)
	}

	if result.isDir {
		return nil, vfat.ErrIsDirectory
	}

	f := &File{
		vol:            v,
		mode:           mode,
		path:           path,
		startCluster:   result.cluster,
		currentCluster: result.cluster,
		size:           int64(result.entry.size),
		dirSector:      result.dirSector,
		dirOffset:      result.dirOffset,
	}

	if mode&vfat.O_TRUNC != 0 && mode.Writable() {
		if err := f.truncateToZero(); err != nil {
			return nil, err
		}
	}

	if mode&vfat.O_APPEND != 0 {
		if _, err := f.Seek(0, vfat.SeekEnd); err != nil {
			return nil, err
		}
	}

	return f, nil
}

// create allocates one cluster (even for a zero-size file), finds the
// final path component, scans the parent directory for a reusable slot,
// and writes a short-form entry for it.
func (v *Volume) create(path string, parentCluster ClusterID, mode vfat.OpenFlags) (*File, error) {
	parts := splitPath(path)
	component := parts[len(parts)-1]

	startCluster, err := v.allocateClusters(0)
	if err != nil {
		return nil, err
	}

	base, ext, needsLFN := splitShortName(component)
	if needsLFN {
		log.Printf("vfat: %q needs a long filename entry, writing short name %s.%s only", component, base, ext)
	}

	it := newDirIterator(v, parentCluster)
	slot, err := it.first()
	if err != nil {
		return nil, err
	}
	for slot != nil && !isLastSlot(slot) && !isFreeSlot(slot) {
		slot, err = it.next()
		if err != nil {
			return nil, err
		}
	}
	if slot == nil {
		// The FAT16 root region is full and has no chain to extend.
		if freeErr := v.freeChain(startCluster); freeErr != nil {
			return nil, freeErr
		}
		return nil, vfat.ErrOutOfSpace
	}

	entry := newShortDirent(base, ext, AttrArchive, startCluster, 0)
	entry.encode(slot)
	if err := v.cache.write(it.dirSector); err != nil {
		return nil, err
	}
	if err := v.cache.flush(); err != nil {
		return nil, err
	}

	return &File{
		vol:            v,
		mode:           mode,
		path:           path,
		startCluster:   startCluster,
		currentCluster: startCluster,
		size:           0,
		dirSector:      it.dirSector,
		dirOffset:      it.byteOffset,
	}, nil
}

// Read clamps n to the remaining bytes, then transfers directly to/from
// the device (bypassing the sector cache, so a file's data never evicts
// the FAT/directory sector an iterator holds).
func (f *File) Read(buf []byte) (int, error) {
	if !f.mode.Readable() {
		return 0, vfat.ErrInvalidMode
	}

	remaining := f.size - f.offset
	n := int64(len(buf))
	if n > remaining {
		n = remaining
	}
	if n <= 0 {
		return 0, nil
	}

	v := f.vol
	var delivered int64
	for delivered < n {
		// Resync the cluster cursor to the cluster holding f.offset; a
		// previous operation may have left it one cluster behind when it
		// stopped exactly on a boundary.
		for f.offset >= f.clusterStart+int64(v.bytesPerCluster) {
			next, err := v.getEntryChecked(f.currentCluster)
			if err != nil {
				return int(delivered), err
			}
			if IsEndOfChain(next) {
				return int(delivered), nil
			}
			f.currentCluster = next
			f.clusterStart += int64(v.bytesPerCluster)
		}

		sectorInCluster := uint32((f.offset - f.clusterStart) / int64(v.bytesPerSector))
		byteInSector := uint32(f.offset % int64(v.bytesPerSector))

		sector := v.sectorOfCluster(f.currentCluster) + SectorID(sectorInCluster)
		chunk := n - delivered
		if room := int64(v.bytesPerSector) - int64(byteInSector); chunk > room {
			chunk = room
		}

		if _, err := v.device.ReadAt(buf[delivered:delivered+chunk], int64(sector)*int64(v.bytesPerSector)+int64(byteInSector)); err != nil {
			return int(delivered), vfat.NewDriverErrorWithMessage(syscall.EIO, err.Error())
		}

		delivered += chunk
		f.offset += chunk
	}

	return int(delivered), nil
}

// Write uses the same per-sector geometry as Read, but allocates a new
// cluster at each boundary and splices it onto the chain, returning short
// on out-of-space. Afterward the directory entry's size field is updated
// in place.
func (f *File) Write(buf []byte) (int, error) {
	if !f.mode.Writable() {
		return 0, vfat.ErrInvalidMode
	}

	v := f.vol
	n := int64(len(buf))
	var written int64

outer:
	for written < n {
		// Resync the cluster cursor to the cluster holding f.offset,
		// allocating and splicing on a fresh cluster wherever the chain
		// ends short of it.
		for f.offset >= f.clusterStart+int64(v.bytesPerCluster) {
			next, err := v.getEntry(f.currentCluster)
			if err != nil {
				return int(written), err
			}
			if IsEndOfChain(next) {
				newCluster, err := v.findFree(clusterFirst)
				if err != nil {
					return int(written), err
				}
				if newCluster == 0 {
					break outer
				}
				if err := v.setEntry(newCluster, eocCanonical); err != nil {
					return int(written), err
				}
				if err := v.appendToChain(f.currentCluster, newCluster); err != nil {
					return int(written), err
				}
				next = newCluster
			}
			f.currentCluster = next
			f.clusterStart += int64(v.bytesPerCluster)
		}

		sectorInCluster := uint32((f.offset - f.clusterStart) / int64(v.bytesPerSector))
		byteInSector := uint32(f.offset % int64(v.bytesPerSector))

		sector := v.sectorOfCluster(f.currentCluster) + SectorID(sectorInCluster)
		chunk := n - written
		if room := int64(v.bytesPerSector) - int64(byteInSector); chunk > room {
			chunk = room
		}

		if _, err := v.device.WriteAt(buf[written:written+chunk], int64(sector)*int64(v.bytesPerSector)+int64(byteInSector)); err != nil {
			return int(written), vfat.NewDriverErrorWithMessage(syscall.EIO, err.Error())
		}

		written += chunk
		f.offset += chunk
	}

	if f.offset > f.size {
		f.size = f.offset
	}
	if err := f.persistSize(); err != nil {
		return int(written), err
	}
	return int(written), nil
}

// persistSize patches this file's on-disk directory entry's size field to
// match f.size.
func (f *File) persistSize() error {
	buf, err := f.vol.cache.read(f.dirSector)
	if err != nil {
		return err
	}
	raw := decodeRawDirent(buf[f.dirOffset : f.dirOffset+DirentSize])
	raw.size = uint32(f.size)
	raw.encode(buf[f.dirOffset : f.dirOffset+DirentSize])
	if err := f.vol.cache.write(f.dirSector); err != nil {
		return err
	}
	return f.vol.cache.flush()
}

// truncateToZero frees the file's cluster chain (all but its first
// cluster conceptually; the whole chain is released and a fresh single
// cluster takes its place so an immediate write has somewhere to go),
// resets size to 0, and persists the change.
func (f *File) truncateToZero() error {
	if err := f.vol.freeChain(f.startCluster); err != nil {
		return err
	}
	newCluster, err := f.vol.allocateClusters(0)
	if err != nil {
		return err
	}
	f.startCluster = newCluster
	f.currentCluster = newCluster
	f.clusterStart = 0
	f.size = 0
	f.offset = 0

	buf, err := f.vol.cache.read(f.dirSector)
	if err != nil {
		return err
	}
	raw := decodeRawDirent(buf[f.dirOffset : f.dirOffset+DirentSize])
	raw.size = 0
	raw.clusterHi = uint16(newCluster >> 16)
	raw.clusterLo = uint16(newCluster & 0xFFFF)
	raw.encode(buf[f.dirOffset : f.dirOffset+DirentSize])
	if err := f.vol.cache.write(f.dirSector); err != nil {
		return err
	}
	return f.vol.cache.flush()
}

// Seek clamps the new absolute offset into [0, size], then resyncs the
// current-cluster cursor by walking the chain from the start.
func (f *File) Seek(off int64, whence vfat.SeekWhence) (int64, error) {
	var newOffset int64
	switch whence {
	case vfat.SeekSet:
		newOffset = off
	case vfat.SeekCur:
		newOffset = f.offset + off
	case vfat.SeekEnd:
		newOffset = f.size + off
	}

	if newOffset < 0 {
		newOffset = 0
	}
	if newOffset > f.size {
		newOffset = f.size
	}

	steps := newOffset / int64(f.vol.bytesPerCluster)
	cluster := f.startCluster
	clusterStart := int64(0)
	for i := int64(0); i < steps; i++ {
		next, err := f.vol.getEntryChecked(cluster)
		if err != nil {
			return 0, err
		}
		if IsEndOfChain(next) {
			break
		}
		cluster = next
		clusterStart += int64(f.vol.bytesPerCluster)
	}

	f.offset = newOffset
	f.currentCluster = cluster
	f.clusterStart = clusterStart
	return f.offset, nil
}

// Close releases the file object. Dirty state is flushed eagerly by Write
// and truncateToZero, so Close itself does no I/O.
func (f *File) Close() error { return nil }

// Size returns the file's current length in bytes, as recorded in its
// directory entry.
func (f *File) Size() int64 { return f.size }

// Unlink resolves path, refuses a directory or a missing file, frees the
// cluster chain, then re-scans the parent to mark the short entry and
// every preceding long-name fragment deleted.
func (v *Volume) Unlink(path string) error {
	if !v.flags.CanDelete() {
		return vfat.ErrInvalidMode
	}

	result, err := v.resolvePath(path)
	if err != nil {
		return err
	}
	if !result.found {
		return vfat.ErrNoSuchFile
	}
	if result.isDir {
		return vfat.ErrIsDirectory
	}

	if err := v.freeChain(result.cluster); err != nil {
		return err
	}

	parts := splitPath(path)
	parentCluster := v.rootDirCluster
	if len(parts) > 1 {
		parentResult, err := v.resolvePath("/" + joinPath(parts[:len(parts)-1]))
		if err != nil {
			return err
		}
		if parentResult.found {
			parentCluster = parentResult.cluster
		}
	}

	return v.markEntryDeleted(parentCluster, result.dirSector, result.dirOffset)
}

// markEntryDeleted re-scans dirCluster with the iterator until it reaches
// the slot at (targetSector, targetOffset), marking that short entry and
// every long-name fragment immediately preceding it (still accumulated in
// the staging window) deleted (0xE5).
func (v *Volume) markEntryDeleted(dirCluster ClusterID, targetSector SectorID, targetOffset uint32) error {
	it := newDirIterator(v, dirCluster)
	slot, err := it.first()
	if err != nil {
		return err
	}

	var pendingLFNSlots []struct {
		sector SectorID
		offset uint32
	}

	for !isLastSlot(slot) {
		raw := decodeRawDirent(slot)
		if raw.isLongName() && !isFreeSlot(slot) {
			pendingLFNSlots = append(pendingLFNSlots, struct {
				sector SectorID
				offset uint32
			}{it.dirSector, it.byteOffset})
		} else if it.dirSector == targetSector && it.byteOffset == targetOffset {
			slot[0] = direntNameDeleted
			if err := v.cache.write(it.dirSector); err != nil {
				return err
			}
			for _, pending := range pendingLFNSlots {
				pbuf, err := v.cache.read(pending.sector)
				if err != nil {
					return err
				}
				pbuf[pending.offset] = direntNameDeleted
				if err := v.cache.write(pending.sector); err != nil {
					return err
				}
			}
			return v.cache.flush()
		} else if !isFreeSlot(slot) {
			pendingLFNSlots = pendingLFNSlots[:0]
		}

		slot, err = it.next()
		if err != nil {
			return err
		}
	}
	return v.cache.flush()
}

// joinPath rejoins path components with '/', the inverse of splitPath.
func joinPath(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += "/"
		}
		out += p
	}
	return out
}

// ReadDirEntry is one resolved entry of a directory listing, as returned by
// ReadDir.
type ReadDirEntry struct {
	Name       string
	IsDir      bool
	Size       int64
	Cluster    ClusterID
	ModifiedAt time.Time
}

// ReadDir lists a directory's entries, reassembling long names where
// present. This is a read-only convenience layered over the iterator and
// name-matching primitives Open already uses; writing long names is
// still out of scope.
func (v *Volume) ReadDir(path string) ([]ReadDirEntry, error) {
	result, err := v.resolvePath(path)
	if err != nil {
		return nil, err
	}
	if !result.found {
		return nil, vfat.ErrNoSuchFile
	}
	if path != "/" && path != "" && !result.isDir {
		return nil, vfat.NewDriverErrorWithMessage(syscall.ENOTDIR, path)
	}

	it := newDirIterator(v, result.cluster)
	slot, err := it.first()
	if err != nil {
		return nil, err
	}

	var staging lfnStaging
	staging.reset()
	var entries []ReadDirEntry

	for !isLastSlot(slot) {
		if !isFreeSlot(slot) {
			raw := decodeRawDirent(slot)
			if raw.isLongName() {
				staging.absorb(decodeLongDirent(slot))
			} else if !raw.isVolumeID() {
				name := raw.shortDisplayName()
				if staging.valid {
					if long := staging.decode(); long != "" {
						name = long
					}
				}
				staging.reset()
				if name != "." && name != ".." {
					entries = append(entries, ReadDirEntry{
						Name:       name,
						IsDir:      raw.isDir(),
						Size:       int64(raw.size),
						Cluster:    raw.cluster(),
						ModifiedAt: raw.modifiedTime(),
					})
				}
			}
		}
		slot, err = it.next()
		if err != nil {
			return nil, err
		}
	}
	return entries, nil
}
