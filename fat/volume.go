package fat

import (
	"fmt"

	"github.com/boljen/go-bitmap"
	"github.com/hashicorp/go-multierror"

	"github.com/corrinth/vfat"
)

// Volume is one mounted FAT16/FAT32 filesystem: the layout constants derived
// from the BPB, the single-slot sector cache, and the device it reads and
// writes through. It owns the cache and all FAT/directory sector bytes; file
// objects hold a non-owning reference back to it and must not outlive it.
type Volume struct {
	device vfat.BlockDevice

	bytesPerSector    uint32
	sectorsPerCluster uint32
	bytesPerCluster   uint32

	firstFATSector  SectorID
	numFATSectors   uint32
	numFATs         uint32
	firstDataSector SectorID
	firstDirSector  SectorID // FAT16 root region only

	rootDirSectors uint32    // FAT16 only
	rootDirCluster ClusterID // FAT32 only; 0 sentinel on FAT16

	numClusters uint32
	variant     Variant

	partitionStart SectorID

	cache *sectorCache
	flags vfat.MountFlags
}

// newVolumeFromBPB derives the layout constants from a parsed BPB and
// wires up the sector cache.
func newVolumeFromBPB(dev vfat.BlockDevice, b bpb, variant Variant, partitionStart SectorID) (*Volume, error) {
	bytesPerSector := uint32(b.bytesPerSector)
	sectorsPerCluster := uint32(b.sectorsPerCluster)
	bytesPerCluster := bytesPerSector * sectorsPerCluster

	if bytesPerSector == 0 || bytesPerCluster == 0 {
		return nil, vfat.ErrBadVolume.WithMessage("corrupt BPB: bytes-per-sector or bytes-per-cluster is zero")
	}

	numFATSectors := uint32(b.fatSecs16)
	if numFATSectors == 0 {
		numFATSectors = b.fatSecs32
	}

	rootDirSectors := uint32(0)
	if variant == FAT16 {
		rootDirSectors = (uint32(b.rootEntryCount)*32 + bytesPerSector - 1) / bytesPerSector
	}

	firstDataSector := SectorID(uint32(b.reservedSectors) +
		uint32(b.numFATs)*numFATSectors + rootDirSectors + uint32(partitionStart))
	firstFATSector := SectorID(uint32(b.reservedSectors) + uint32(partitionStart))

	var firstDirSector SectorID
	var rootDirCluster ClusterID
	if variant == FAT16 {
		firstDirSector = SectorID(uint32(b.reservedSectors) +
			uint32(b.numFATs)*uint32(b.fatSecs16) + uint32(partitionStart))
	} else {
		rootDirCluster = ClusterID(b.rootCluster)
	}

	totalSectors := uint32(b.sectors16)
	if totalSectors == 0 {
		totalSectors = b.sectors32
	}

	var numClusters uint32
	if totalSectors > uint32(firstDataSector) && sectorsPerCluster > 0 {
		numClusters = (totalSectors - uint32(firstDataSector)) / sectorsPerCluster
	}

	vol := &Volume{
		device:            dev,
		bytesPerSector:    bytesPerSector,
		sectorsPerCluster: sectorsPerCluster,
		bytesPerCluster:   bytesPerCluster,
		firstFATSector:    firstFATSector,
		numFATSectors:     numFATSectors,
		numFATs:           uint32(b.numFATs),
		firstDataSector:   firstDataSector,
		firstDirSector:    firstDirSector,
		rootDirSectors:    rootDirSectors,
		rootDirCluster:    rootDirCluster,
		numClusters:       numClusters,
		variant:           variant,
		partitionStart:    partitionStart,
	}
	vol.cache = newSectorCache(dev, bytesPerSector)
	return vol, nil
}

// Variant reports whether this is a FAT16 or FAT32 volume.
func (v *Volume) Variant() Variant { return v.variant }

// BytesPerCluster returns the size, in bytes, of one allocation unit.
func (v *Volume) BytesPerCluster() uint32 { return v.bytesPerCluster }

// sectorOfCluster: cluster 0 denotes the FAT16 root directory region,
// not cluster 0 of the data area.
func (v *Volume) sectorOfCluster(cluster ClusterID) SectorID {
	if cluster == 0 {
		return v.firstDirSector
	}
	return v.firstDataSector + SectorID(uint32(cluster-2)*v.sectorsPerCluster)
}

// dirSectorCount is the number of sectors belonging to one "chunk" of a
// directory: the fixed FAT16 root region, or one cluster otherwise.
func (v *Volume) dirSectorCount(cluster ClusterID) uint32 {
	if v.variant == FAT16 && cluster == v.rootDirCluster {
		return v.rootDirSectors
	}
	return v.sectorsPerCluster
}

// Stats scans the FAT once and reports aggregate cluster usage. It also
// cross-checks every FAT mirror when num_fats > 1, accumulating every
// mismatch found rather than stopping at the first.
func (v *Volume) Stats() (vfat.FSStat, error) {
	allocated := bitmap.New(int(v.numClusters) + 2)

	var mismatches *multierror.Error
	var free uint64

	for i := uint32(clusterFirst); i < v.numClusters+2; i++ {
		entry, err := v.getFATEntryCopy(ClusterID(i), 0)
		if err != nil {
			mismatches = multierror.Append(mismatches, err)
			continue
		}
		if entry == clusterFree {
			free++
		} else {
			allocated.Set(int(i), true)
		}

		for copyIdx := uint32(1); copyIdx < v.numFATs; copyIdx++ {
			mirrorEntry, err := v.getFATEntryCopy(ClusterID(i), copyIdx)
			if err != nil {
				mismatches = multierror.Append(mismatches, err)
				continue
			}
			if mirrorEntry != entry {
				mismatches = multierror.Append(mismatches, vfat.ErrCorruptChain.WithMessage(fmt.Sprintf(
					"cluster %d disagrees between FAT copy 0 (%s) and FAT copy %d (%s)",
					i, fmtHex(uint32(entry)), copyIdx, fmtHex(uint32(mirrorEntry)))))
			}
		}
	}

	var allocatedCount uint64
	for i := uint32(clusterFirst); i < v.numClusters+2; i++ {
		if allocated.Get(int(i)) {
			allocatedCount++
		}
	}

	stat := vfat.FSStat{
		BytesPerCluster:   int64(v.bytesPerCluster),
		TotalClusters:     uint64(v.numClusters),
		FreeClusters:      free,
		AllocatedClusters: allocatedCount,
	}
	if mismatches.ErrorOrNil() != nil {
		return stat, mismatches
	}
	return stat, nil
}
