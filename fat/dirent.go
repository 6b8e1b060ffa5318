package fat

import (
	"bytes"
	"encoding/binary"
	"strings"
	"time"
	"unicode/utf16"

	"github.com/corrinth/vfat"
)

// DirentSize is the size of one 32-byte directory entry slot, whether it
// holds a short entry or one fragment of a long name.
const DirentSize = 32

// Attribute bits for the byte at offset 11 of a directory slot.
const (
	AttrReadOnly  = 0x01
	AttrHidden    = 0x02
	AttrSystem    = 0x04
	AttrVolumeID  = 0x08
	AttrLongName  = 0x0F
	AttrDirectory = 0x10
	AttrArchive   = 0x20
)

const (
	direntNameFree      = 0x00 // first name byte: slot never used, scan ends here
	direntNameDeleted   = 0xE5 // first name byte: slot was deleted
	direntNameLiteralE5 = 0x05 // first name byte: real first byte of name is 0xE5
)

// epoch1980 is the fixed creation/access/modification timestamp every file
// this package creates is stamped with; real timestamps are not tracked.
var epoch1980 = time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC)

// rawDirent is the 32-byte on-disk layout of a short directory entry,
// decoded with explicit little-endian accessors rather than an overlaid
// struct, to avoid alignment pitfalls on strict platforms.
type rawDirent struct {
	name      [8]byte
	ext       [3]byte
	attr      uint8
	reserved  uint8
	createdAt uint32 // time(2) | date(2), not separately interpreted here
	accessed  uint16 // date only
	clusterHi uint16
	modified  uint32 // time(2) | date(2)
	clusterLo uint16
	size      uint32
}

func decodeRawDirent(slot []byte) rawDirent {
	var r rawDirent
	copy(r.name[:], slot[0:8])
	copy(r.ext[:], slot[8:11])
	r.attr = slot[11]
	r.reserved = slot[12]
	r.createdAt = binary.LittleEndian.Uint32(slot[14:18])
	r.accessed = binary.LittleEndian.Uint16(slot[18:20])
	r.clusterHi = binary.LittleEndian.Uint16(slot[20:22])
	r.modified = binary.LittleEndian.Uint32(slot[22:26])
	r.clusterLo = binary.LittleEndian.Uint16(slot[26:28])
	r.size = binary.LittleEndian.Uint32(slot[28:32])
	return r
}

func fatDate(t time.Time) uint16 {
	return uint16(t.Year()-1980)<<9 | uint16(t.Month())<<5 | uint16(t.Day())
}

func fatTime(t time.Time) uint16 {
	return uint16(t.Hour())<<11 | uint16(t.Minute())<<5 | uint16(t.Second()/2)
}

func (r rawDirent) encode(slot []byte) {
	for i := range slot {
		slot[i] = 0
	}
	copy(slot[0:8], r.name[:])
	copy(slot[8:11], r.ext[:])
	slot[11] = r.attr
	slot[12] = r.reserved
	binary.LittleEndian.PutUint32(slot[14:18], r.createdAt)
	binary.LittleEndian.PutUint16(slot[18:20], r.accessed)
	binary.LittleEndian.PutUint16(slot[20:22], r.clusterHi)
	binary.LittleEndian.PutUint32(slot[22:26], r.modified)
	binary.LittleEndian.PutUint16(slot[26:28], r.clusterLo)
	binary.LittleEndian.PutUint32(slot[28:32], r.size)
}

func (r rawDirent) cluster() ClusterID {
	return ClusterID(uint32(r.clusterHi)<<16 | uint32(r.clusterLo))
}

// modifiedTime reconstructs this entry's last-modified timestamp from its
// packed FAT date/time fields. A zero date field means the entry predates
// this package's writer (which always stamps epoch1980) or was hand-built by
// another tool without a valid date, so there's nothing to reconstruct;
// vfat.UndefinedTimestamp reports that rather than a bogus zero time.Time.
func (r rawDirent) modifiedTime() time.Time {
	date := uint16(r.modified >> 16)
	timeOfDay := uint16(r.modified & 0xFFFF)
	if date == 0 {
		return vfat.UndefinedTimestamp
	}

	year := 1980 + int(date>>9)
	month := time.Month((date >> 5) & 0x0F)
	day := int(date & 0x1F)
	hour := int(timeOfDay >> 11)
	minute := int((timeOfDay >> 5) & 0x3F)
	second := int((timeOfDay & 0x1F) * 2)

	return time.Date(year, month, day, hour, minute, second, 0, time.UTC)
}

func (r rawDirent) isDir() bool      { return r.attr&AttrDirectory != 0 }
func (r rawDirent) isVolumeID() bool { return r.attr&AttrVolumeID != 0 }
func (r rawDirent) isLongName() bool { return r.attr&0x3F == AttrLongName }

// shortDisplayName reconstructs "NAME.EXT" from the space-padded 8.3 fields,
// handling the 0x05-means-literal-0xE5 escape.
func (r rawDirent) shortDisplayName() string {
	name := make([]byte, 8)
	copy(name, r.name[:])
	if name[0] == direntNameLiteralE5 {
		name[0] = 0xE5
	}
	base := strings.TrimRight(string(name), " ")
	ext := strings.TrimRight(string(r.ext[:]), " ")
	if ext == "" {
		return base
	}
	return base + "." + ext
}

// newShortDirent builds a short-form entry for a freshly created file: the
// name split into padded 8.3 fields, the given attribute byte, and every
// timestamp pinned at the 1980 epoch.
func newShortDirent(base, ext string, attr uint8, cluster ClusterID, size uint32) rawDirent {
	var r rawDirent
	copy(r.name[:], bytes.Repeat([]byte(" "), 8))
	copy(r.ext[:], bytes.Repeat([]byte(" "), 3))
	copy(r.name[:], strings.ToUpper(base))
	copy(r.ext[:], strings.ToUpper(ext))
	r.attr = attr
	d, t := fatDate(epoch1980), fatTime(epoch1980)
	r.createdAt = uint32(d)<<16 | uint32(t)
	r.modified = r.createdAt
	r.accessed = d
	r.clusterHi = uint16(cluster >> 16)
	r.clusterLo = uint16(cluster & 0xFFFF)
	r.size = size
	return r
}

// longDirent is one 13-character fragment of a long filename. Fragments
// are numbered 1-based and stored on disk with the last fragment first.
type longDirent struct {
	seq      uint8 // 1-based; ordSeqLastMask set on the fragment written first
	chars    [13]uint16
	checksum uint8
}

const ordSeqLastMask = 0x40

func decodeLongDirent(slot []byte) longDirent {
	var l longDirent
	l.seq = slot[0]
	l.checksum = slot[13]
	for i := 0; i < 5; i++ {
		l.chars[i] = binary.LittleEndian.Uint16(slot[1+2*i:])
	}
	for i := 0; i < 6; i++ {
		l.chars[5+i] = binary.LittleEndian.Uint16(slot[14+2*i:])
	}
	l.chars[11] = binary.LittleEndian.Uint16(slot[28:])
	l.chars[12] = binary.LittleEndian.Uint16(slot[30:])
	return l
}

func (l longDirent) sequenceNumber() int  { return int(l.seq & 0x3F) }
func (l longDirent) isLastFragment() bool { return l.seq&ordSeqLastMask != 0 }

// encode writes this fragment's 32-byte on-disk form into slot, mirroring
// decodeLongDirent's field layout.
func (l longDirent) encode(slot []byte) {
	slot[0] = l.seq
	for i := 0; i < 5; i++ {
		binary.LittleEndian.PutUint16(slot[1+2*i:], l.chars[i])
	}
	slot[11] = AttrLongName
	slot[12] = 0
	slot[13] = l.checksum
	for i := 0; i < 6; i++ {
		binary.LittleEndian.PutUint16(slot[14+2*i:], l.chars[5+i])
	}
	binary.LittleEndian.PutUint16(slot[26:], 0)
	binary.LittleEndian.PutUint16(slot[28:], l.chars[11])
	binary.LittleEndian.PutUint16(slot[30:], l.chars[12])
}

// newLongDirentFragments splits name into 13-UCS2-unit fragments, numbered
// 1-based from the start of the name, with fragment 1 written last on disk
// and the LAST bit set on the highest-numbered fragment.
func newLongDirentFragments(name string) []longDirent {
	units := utf16.Encode([]rune(name))
	var padded []uint16
	padded = append(padded, units...)
	padded = append(padded, 0x0000)
	for len(padded)%13 != 0 {
		padded = append(padded, 0xFFFF)
	}

	total := len(padded) / 13
	frags := make([]longDirent, total)
	for i := 0; i < total; i++ {
		var l longDirent
		l.seq = uint8(i + 1)
		if i == total-1 {
			l.seq |= ordSeqLastMask
		}
		copy(l.chars[:], padded[i*13:(i+1)*13])
		frags[i] = l
	}
	return frags
}
