package vfat

// OpenFlags controls how open() resolves and positions a file handle. These
// mirror POSIX's O_* flags, scaled down to what this engine's Open actually
// recognizes.
type OpenFlags int

const (
	// O_RDONLY opens a file for reading only.
	O_RDONLY = OpenFlags(1 << iota)
	// O_WRONLY opens a file for writing only.
	O_WRONLY = OpenFlags(1 << iota)
	// O_CREAT creates the file if it doesn't already exist.
	O_CREAT = OpenFlags(1 << iota)
	// O_TRUNC truncates an existing file to zero length on open, provided
	// the mode is writable.
	O_TRUNC = OpenFlags(1 << iota)
	// O_APPEND positions the file offset at the end of the file on open.
	// Writes after an intervening Seek are not re-positioned to the end.
	O_APPEND = OpenFlags(1 << iota)
	// O_EXCL is accepted for compatibility but not honored: opening an
	// existing file with both O_CREAT and O_EXCL set does not fail.
	O_EXCL = OpenFlags(1 << iota)
)

// O_RDWR opens a file for both reading and writing.
const O_RDWR = O_RDONLY | O_WRONLY

func (f OpenFlags) Readable() bool { return f&O_RDONLY != 0 }
func (f OpenFlags) Writable() bool { return f&O_WRONLY != 0 }

// SeekWhence selects the reference point for lseek().
type SeekWhence int

const (
	// SeekSet measures the new offset from the beginning of the file.
	SeekSet SeekWhence = iota
	// SeekCur measures the new offset from the current position.
	SeekCur
	// SeekEnd measures the new offset from the end of the file.
	SeekEnd
)

// MountFlags controls the permissions a mounted volume is opened with,
// narrowed to what a single-writer FAT engine actually enforces.
type MountFlags int

const (
	// MountFlagsAllowRead permits read operations against the volume.
	MountFlagsAllowRead = MountFlags(1 << iota)
	// MountFlagsAllowWrite permits modifying existing files' contents.
	MountFlagsAllowWrite = MountFlags(1 << iota)
	// MountFlagsAllowCreate permits creating new files.
	MountFlagsAllowCreate = MountFlags(1 << iota)
	// MountFlagsAllowDelete permits unlinking files.
	MountFlagsAllowDelete = MountFlags(1 << iota)
)

const MountFlagsAllowAll = MountFlagsAllowRead | MountFlagsAllowWrite |
	MountFlagsAllowCreate | MountFlagsAllowDelete

func (flags MountFlags) CanRead() bool   { return flags&MountFlagsAllowRead != 0 }
func (flags MountFlags) CanWrite() bool  { return flags&MountFlagsAllowWrite != 0 }
func (flags MountFlags) CanCreate() bool { return flags&MountFlagsAllowCreate != 0 }
func (flags MountFlags) CanDelete() bool { return flags&MountFlagsAllowDelete != 0 }
