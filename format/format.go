package format

import (
	"encoding/binary"

	"github.com/noxer/bytewriter"

	"github.com/corrinth/vfat"
)

// mbrLBASectorSize is the fixed 512-byte unit MBR partition records use for
// LBA addressing, independent of the volume's own BytesPerSector (mirrors
// fat.Mount's hardcoded 512 when it locates the partition's boot sector).
const mbrLBASectorSize = 512

// VolumeParams describes everything FormatVolume needs to write a fresh
// MBR + BPB + FAT copies + root directory, the write-side mirror of what
// fat.Mount parses.
type VolumeParams struct {
	BytesPerSector    uint
	SectorsPerCluster uint
	TotalSectors      uint
	ReservedSectors   uint
	NumFATs           uint
	RootEntryCount    uint // FAT16 only; ignored (and should be 0) for FAT32
	IsFAT32           bool
	RootCluster       uint32 // FAT32 only
}

// FromGeometry builds VolumeParams from a named predefined Geometry.
func FromGeometry(g Geometry) VolumeParams {
	rootCluster := uint32(0)
	if g.IsFAT32 {
		rootCluster = 2
	}
	return VolumeParams{
		BytesPerSector:    g.BytesPerSector,
		SectorsPerCluster: g.SectorsPerCluster,
		TotalSectors:      g.TotalSectors,
		ReservedSectors:   g.ReservedSectors,
		NumFATs:           g.NumFATs,
		RootEntryCount:    g.RootEntryCount,
		IsFAT32:           g.IsFAT32,
		RootCluster:       rootCluster,
	}
}

func (p VolumeParams) rootDirSectors() uint {
	if p.IsFAT32 {
		return 0
	}
	return (p.RootEntryCount*32 + p.BytesPerSector - 1) / p.BytesPerSector
}

func (p VolumeParams) sectorsPerFAT() uint {
	dataSectors := p.TotalSectors - p.ReservedSectors - p.rootDirSectors()
	numClusters := dataSectors / p.SectorsPerCluster
	entryWidth := uint(2)
	if p.IsFAT32 {
		entryWidth = 4
	}
	bytesNeeded := (numClusters + 2) * entryWidth
	return (bytesNeeded + p.BytesPerSector - 1) / p.BytesPerSector
}

// FormatVolume writes a single-partition MBR at sector 0, a BPB-bearing boot
// sector, zeroed FAT copies (with the first two reserved entries seeded per
// the FAT layout), and an empty root directory, to dev. It is the mirror
// image of fat.Mount and not part of the core engine, but ambient tooling
// a FAT driver repo carries alongside its mount path.
func FormatVolume(dev vfat.BlockDevice, params VolumeParams) error {
	sectorsPerFAT := params.sectorsPerFAT()
	rootDirSectors := params.rootDirSectors()

	if err := writeMBR(dev, params); err != nil {
		return err
	}
	if err := writeBootSector(dev, params, sectorsPerFAT); err != nil {
		return err
	}
	if err := zeroFATsAndRoot(dev, params, sectorsPerFAT, rootDirSectors); err != nil {
		return err
	}
	return nil
}

func writeMBR(dev vfat.BlockDevice, params VolumeParams) error {
	sector := make([]byte, params.BytesPerSector)
	partType := byte(0x06)
	if params.IsFAT32 {
		partType = 0x0C
	}

	totalLBASectors := params.TotalSectors * params.BytesPerSector / mbrLBASectorSize

	record := sector[446:462]
	record[4] = partType
	binary.LittleEndian.PutUint32(record[8:12], 1) // start LBA: partition begins right after the MBR
	binary.LittleEndian.PutUint32(record[12:16], uint32(totalLBASectors-1))

	sector[510] = 0x55
	sector[511] = 0xAA

	_, err := dev.WriteAt(sector, 0)
	return err
}

func writeBootSector(dev vfat.BlockDevice, params VolumeParams, sectorsPerFAT uint) error {
	sector := make([]byte, params.BytesPerSector)
	writer := bytewriter.New(sector)

	writer.Write([]byte{0xEB, 0x00, 0x90}) // jmpBoot, kept inert
	writer.Write(make([]byte, 8))          // OEM name, left blank

	bpb := sector[11:]
	binary.LittleEndian.PutUint16(bpb[0:2], uint16(params.BytesPerSector))
	bpb[2] = byte(params.SectorsPerCluster)
	binary.LittleEndian.PutUint16(bpb[3:5], uint16(params.ReservedSectors))
	bpb[5] = byte(params.NumFATs)
	binary.LittleEndian.PutUint16(bpb[6:8], uint16(params.RootEntryCount))

	if params.TotalSectors < 0x10000 {
		binary.LittleEndian.PutUint16(bpb[8:10], uint16(params.TotalSectors))
	}
	bpb[10] = 0xF8 // media: fixed disk

	if !params.IsFAT32 {
		binary.LittleEndian.PutUint16(bpb[11:13], uint16(sectorsPerFAT))
	}

	binary.LittleEndian.PutUint32(bpb[21:25], uint32(params.TotalSectors))

	if params.IsFAT32 {
		binary.LittleEndian.PutUint32(bpb[25:29], uint32(sectorsPerFAT))
		binary.LittleEndian.PutUint32(bpb[33:37], params.RootCluster)
	}

	sector[510] = 0x55
	sector[511] = 0xAA

	_, err := dev.WriteAt(sector, mbrLBASectorSize) // partition starts right after the MBR
	return err
}

// zeroFATsAndRoot zero-fills every FAT copy (after seeding the two reserved
// entries every FAT begins with) and the root directory region/cluster.
func zeroFATsAndRoot(dev vfat.BlockDevice, params VolumeParams, sectorsPerFAT, rootDirSectors uint) error {
	partitionStart := mbrLBASectorSize / params.BytesPerSector
	firstFATSector := partitionStart + params.ReservedSectors

	zeroSector := make([]byte, params.BytesPerSector)
	entryWidth := uint(2)
	if params.IsFAT32 {
		entryWidth = 4
	}

	// The root directory's own cluster must be marked allocated in the FAT
	// before any file is created, or the allocator would hand it straight
	// back out as "free" and clobber the root directory.
	rootEntryByteOffset := uint(0)
	if params.IsFAT32 {
		rootEntryByteOffset = uint(params.RootCluster) * entryWidth
	}

	for copyIdx := uint(0); copyIdx < params.NumFATs; copyIdx++ {
		base := firstFATSector + copyIdx*sectorsPerFAT
		for s := uint(0); s < sectorsPerFAT; s++ {
			buf := zeroSector
			if s == 0 {
				buf = make([]byte, params.BytesPerSector)
				if entryWidth == 4 {
					binary.LittleEndian.PutUint32(buf[0:4], 0x0FFFFFF8)
					binary.LittleEndian.PutUint32(buf[4:8], 0xFFFFFFFF)
				} else {
					binary.LittleEndian.PutUint16(buf[0:2], 0xFFF8)
					binary.LittleEndian.PutUint16(buf[2:4], 0xFFFF)
				}
			}
			if params.IsFAT32 && rootEntryByteOffset/params.BytesPerSector == s {
				if s == 0 {
					// buf already holds this sector's own copy (the
					// reserved-entry seeding above).
				} else {
					buf = make([]byte, params.BytesPerSector)
				}
				off := rootEntryByteOffset % params.BytesPerSector
				binary.LittleEndian.PutUint32(buf[off:off+4], 0x0FFFFFFF)
			}
			if _, err := dev.WriteAt(buf, int64(base+s)*int64(params.BytesPerSector)); err != nil {
				return err
			}
		}
	}

	var rootSectors uint
	var firstRootSector uint
	if params.IsFAT32 {
		firstDataSector := firstFATSector + params.NumFATs*sectorsPerFAT
		rootSectors = params.SectorsPerCluster
		firstRootSector = firstDataSector + (uint(params.RootCluster)-2)*params.SectorsPerCluster
	} else {
		rootSectors = rootDirSectors
		firstRootSector = firstFATSector + params.NumFATs*sectorsPerFAT
	}

	for s := uint(0); s < rootSectors; s++ {
		if _, err := dev.WriteAt(zeroSector, int64(firstRootSector+s)*int64(params.BytesPerSector)); err != nil {
			return err
		}
	}
	return nil
}
