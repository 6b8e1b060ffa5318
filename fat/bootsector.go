package fat

import (
	"encoding/binary"
	"fmt"

	"github.com/corrinth/vfat"
)

// Recognized MBR partition type bytes. 0x0B and 0x0C select FAT32; the other
// two are FAT16.
const (
	partTypeFAT16      = 0x06
	partTypeFAT32      = 0x0B
	partTypeFAT32LBA   = 0x0C
	partTypeFAT16LBA16 = 0x0E
)

const (
	mbrBootSignatureOffset = 510
	mbrPartitionTableStart = 446
	mbrPartitionRecordSize = 16
	bpbOffset              = 11
)

// partitionRecord is one 16-byte entry of the MBR partition table.
type partitionRecord struct {
	Active       uint8
	StartHead    uint8
	StartCylSect uint16
	Type         uint8
	EndHead      uint8
	EndCylSect   uint16
	StartLBA     uint32
	SizeSectors  uint32
}

func parsePartitionRecord(data []byte) partitionRecord {
	return partitionRecord{
		Active:       data[0],
		StartHead:    data[1],
		StartCylSect: binary.LittleEndian.Uint16(data[2:4]),
		Type:         data[4],
		EndHead:      data[5],
		EndCylSect:   binary.LittleEndian.Uint16(data[6:8]),
		StartLBA:     binary.LittleEndian.Uint32(data[8:12]),
		SizeSectors:  binary.LittleEndian.Uint32(data[12:16]),
	}
}

func (p partitionRecord) isFAT32() bool {
	return p.Type == partTypeFAT32 || p.Type == partTypeFAT32LBA
}

func (p partitionRecord) isRecognized() bool {
	switch p.Type {
	case partTypeFAT16, partTypeFAT32, partTypeFAT32LBA, partTypeFAT16LBA16:
		return true
	default:
		return false
	}
}

// bpb holds the BIOS Parameter Block fields read from the boot sector,
// decoded with explicit little-endian accessors rather than an overlaid
// struct, per the packed-struct design note: alignment of a memcpy'd struct
// isn't portable, and the FAT32-only tail (fatSecs32 onward) doesn't exist in
// a FAT16 BPB at all.
type bpb struct {
	bytesPerSector    uint16
	sectorsPerCluster uint8
	reservedSectors   uint16
	numFATs           uint8
	rootEntryCount    uint16
	sectors16         uint16
	media             uint8
	fatSecs16         uint16
	sectorsPerTrack   uint16
	heads             uint16
	hiddenSectors     uint32
	sectors32         uint32

	// FAT32 only.
	fatSecs32   uint32
	extFlags    uint16
	fsVersion   uint16
	rootCluster uint32
	fsInfoSec   uint16
	backupBoot  uint16
}

// parseBPB decodes the BIOS Parameter Block starting at offset 11 of a boot
// sector. sector must hold at least 52 bytes past that offset (63 bytes in
// all, enough to cover the FAT32 tail); callers reading a FAT16 volume simply
// leave those fields unused.
func parseBPB(sector []byte) (bpb, error) {
	if len(sector) < bpbOffset+52 {
		return bpb{}, vfat.ErrBadVolume.WithMessage("boot sector too short to contain a BPB")
	}

	b := sector[bpbOffset:]
	out := bpb{
		bytesPerSector:    binary.LittleEndian.Uint16(b[0:2]),
		sectorsPerCluster: b[2],
		reservedSectors:   binary.LittleEndian.Uint16(b[3:5]),
		numFATs:           b[5],
		rootEntryCount:    binary.LittleEndian.Uint16(b[6:8]),
		sectors16:         binary.LittleEndian.Uint16(b[8:10]),
		media:             b[10],
		fatSecs16:         binary.LittleEndian.Uint16(b[11:13]),
		sectorsPerTrack:   binary.LittleEndian.Uint16(b[13:15]),
		heads:             binary.LittleEndian.Uint16(b[15:17]),
		hiddenSectors:     binary.LittleEndian.Uint32(b[17:21]),
		sectors32:         binary.LittleEndian.Uint32(b[21:25]),
		fatSecs32:         binary.LittleEndian.Uint32(b[25:29]),
		extFlags:          binary.LittleEndian.Uint16(b[29:31]),
		fsVersion:         binary.LittleEndian.Uint16(b[31:33]),
		rootCluster:       binary.LittleEndian.Uint32(b[33:37]),
		fsInfoSec:         binary.LittleEndian.Uint16(b[37:39]),
		backupBoot:        binary.LittleEndian.Uint16(b[39:41]),
	}
	return out, nil
}

// Mount parses the MBR partition table and boot sector BPB of dev and
// returns a ready-to-use Volume opened with full read/write/create/delete
// permissions. A sector 0 whose first byte is 0xE9 or 0xEB looks like an
// unpartitioned FAT boot sector already, and mount refuses it rather than
// guessing.
func Mount(dev vfat.BlockDevice) (*Volume, error) {
	return MountWithFlags(dev, vfat.MountFlagsAllowAll)
}

// MountWithFlags is [Mount], but lets the caller restrict what the returned
// Volume permits, e.g. mounting read-only media without
// MountFlagsAllowWrite|MountFlagsAllowCreate|MountFlagsAllowDelete.
func MountWithFlags(dev vfat.BlockDevice, flags vfat.MountFlags) (*Volume, error) {
	sector0 := make([]byte, 512)
	if _, err := dev.ReadAt(sector0, 0); err != nil {
		return nil, vfat.ErrDeviceFailure.WithMessage(err.Error())
	}

	if sector0[0] == 0xE9 || sector0[0] == 0xEB {
		return nil, vfat.ErrBadVolume.WithMessage("sector 0 is already a boot sector, not an MBR")
	}

	if sector0[mbrBootSignatureOffset] != 0x55 || sector0[mbrBootSignatureOffset+1] != 0xAA {
		return nil, vfat.ErrBadVolume.WithMessage("missing MBR boot signature")
	}

	record := parsePartitionRecord(sector0[mbrPartitionTableStart : mbrPartitionTableStart+mbrPartitionRecordSize])
	if !record.isRecognized() {
		return nil, vfat.ErrBadVolume.WithMessage(fmt.Sprintf("unrecognized partition type %#x", record.Type))
	}

	partitionStart := SectorID(record.StartLBA)

	bootSector := make([]byte, 512)
	if _, err := dev.ReadAt(bootSector, int64(partitionStart)*512); err != nil {
		return nil, vfat.ErrDeviceFailure.WithMessage(err.Error())
	}

	parsed, err := parseBPB(bootSector)
	if err != nil {
		return nil, err
	}

	variant := FAT16
	if record.isFAT32() {
		variant = FAT32
	}

	vol, err := newVolumeFromBPB(dev, parsed, variant, partitionStart)
	if err != nil {
		return nil, err
	}
	vol.flags = flags
	return vol, nil
}
