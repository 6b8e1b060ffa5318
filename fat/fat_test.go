package fat_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corrinth/vfat"
	"github.com/corrinth/vfat/device"
	"github.com/corrinth/vfat/fat"
	"github.com/corrinth/vfat/format"
	vfattesting "github.com/corrinth/vfat/testing"
	"github.com/corrinth/vfat/utilities/compression"
)

func formatAndMount(t *testing.T, geometrySlug string) (*fat.Volume, []byte) {
	geometry, err := format.PredefinedGeometry(geometrySlug)
	require.NoError(t, err)

	image := make([]byte, geometry.TotalSizeBytes())
	dev := vfattesting.NewDevice(image)

	require.NoError(t, format.FormatVolume(dev, format.FromGeometry(geometry)))

	vol, err := fat.Mount(dev)
	require.NoError(t, err)
	return vol, image
}

func TestCreateSmallFile(t *testing.T) {
	vol, _ := formatAndMount(t, "fat16-1.44mb")

	f, err := vol.Open("/hi.txt", vfat.O_CREAT|vfat.O_RDWR)
	require.NoError(t, err)

	n, err := f.Write([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	require.NoError(t, f.Close())

	f2, err := vol.Open("/hi.txt", vfat.O_RDONLY)
	require.NoError(t, err)
	buf := make([]byte, 5)
	n, err = f2.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "hello", string(buf))

	end, err := f2.Seek(0, vfat.SeekEnd)
	require.NoError(t, err)
	assert.EqualValues(t, 5, end)
}

func TestCrossClusterWrite(t *testing.T) {
	// 4096-byte clusters, so 5000 bytes must span a two-cluster chain.
	vol, _ := formatAndMount(t, "fat16-sd-16mb")
	require.EqualValues(t, 4096, vol.BytesPerCluster())

	pattern := make([]byte, 5000)
	for i := range pattern {
		pattern[i] = byte(i % 251)
	}

	f, err := vol.Open("/big", vfat.O_CREAT|vfat.O_RDWR)
	require.NoError(t, err)
	n, err := f.Write(pattern)
	require.NoError(t, err)
	assert.Equal(t, 5000, n)
	require.NoError(t, f.Close())

	f2, err := vol.Open("/big", vfat.O_RDONLY)
	require.NoError(t, err)
	assert.EqualValues(t, 5000, f2.Size())

	readBack := make([]byte, 5000)
	n, err = f2.Read(readBack)
	require.NoError(t, err)
	assert.Equal(t, 5000, n)
	assert.True(t, bytes.Equal(pattern, readBack))

	stat, err := vol.Stats()
	require.NoError(t, err)
	assert.EqualValues(t, 2, stat.AllocatedClusters)
}

func TestAppend(t *testing.T) {
	vol, _ := formatAndMount(t, "fat16-1.44mb")

	f, err := vol.Open("/hi.txt", vfat.O_CREAT|vfat.O_RDWR)
	require.NoError(t, err)
	_, err = f.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	f2, err := vol.Open("/hi.txt", vfat.O_WRONLY|vfat.O_APPEND)
	require.NoError(t, err)
	_, err = f2.Write([]byte(" world"))
	require.NoError(t, err)
	require.NoError(t, f2.Close())

	f3, err := vol.Open("/hi.txt", vfat.O_RDONLY)
	require.NoError(t, err)
	buf := make([]byte, 11)
	n, err := f3.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 11, n)
	assert.Equal(t, "hello world", string(buf))
}

func TestTruncate(t *testing.T) {
	vol, _ := formatAndMount(t, "fat16-1.44mb")

	f, err := vol.Open("/hi.txt", vfat.O_CREAT|vfat.O_RDWR)
	require.NoError(t, err)
	_, err = f.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	f2, err := vol.Open("/hi.txt", vfat.O_WRONLY|vfat.O_TRUNC)
	require.NoError(t, err)
	require.NoError(t, f2.Close())

	f3, err := vol.Open("/hi.txt", vfat.O_RDONLY)
	require.NoError(t, err)
	end, err := f3.Seek(0, vfat.SeekEnd)
	require.NoError(t, err)
	assert.EqualValues(t, 0, end)
}

func TestUnlinkFreesChain(t *testing.T) {
	vol, _ := formatAndMount(t, "fat32-cf-128mb")

	f, err := vol.Open("/a", vfat.O_CREAT|vfat.O_RDWR)
	require.NoError(t, err)
	_, err = f.Write(make([]byte, 3*int(vol.BytesPerCluster())))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	before, err := vol.Stats()
	require.NoError(t, err)

	require.NoError(t, vol.Unlink("/a"))

	after, err := vol.Stats()
	require.NoError(t, err)
	assert.Equal(t, before.FreeClusters+3, after.FreeClusters)

	_, err = vol.Open("/a", vfat.O_RDONLY)
	assert.ErrorIs(t, err, vfat.ErrNoSuchFile)
}

func TestAllocatedClustersMatchFileSizes(t *testing.T) {
	// The FAT16 root directory lives in a fixed region outside the data
	// area, so every allocated cluster on this volume belongs to a file:
	// allocated == sum of ceil(size / bytes_per_cluster).
	vol, _ := formatAndMount(t, "fat16-sd-16mb")
	bpc := int(vol.BytesPerCluster())

	sizes := []int{1, bpc, bpc + 1}
	names := []string{"/one.bin", "/two.bin", "/three.bin"}
	expected := uint64(0)
	for i, size := range sizes {
		f, err := vol.Open(names[i], vfat.O_CREAT|vfat.O_RDWR)
		require.NoError(t, err)
		_, err = f.Write(make([]byte, size))
		require.NoError(t, err)
		require.NoError(t, f.Close())
		expected += uint64((size + bpc - 1) / bpc)
	}

	stat, err := vol.Stats()
	require.NoError(t, err)
	assert.Equal(t, expected, stat.AllocatedClusters)
	assert.Equal(t, stat.TotalClusters-expected, stat.FreeClusters)
}

func TestSeekSetThenRead(t *testing.T) {
	vol, _ := formatAndMount(t, "fat32-cf-128mb")

	pattern := make([]byte, 9000)
	for i := range pattern {
		pattern[i] = byte(i % 256)
	}

	f, err := vol.Open("/p", vfat.O_CREAT|vfat.O_RDWR)
	require.NoError(t, err)
	_, err = f.Write(pattern)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	f2, err := vol.Open("/p", vfat.O_RDONLY)
	require.NoError(t, err)

	off, err := f2.Seek(4096, vfat.SeekSet)
	require.NoError(t, err)
	assert.EqualValues(t, 4096, off)

	buf := make([]byte, 100)
	n, err := f2.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 100, n)
	assert.True(t, bytes.Equal(pattern[4096:4196], buf))
}

func TestRemount(t *testing.T) {
	geometry, err := format.PredefinedGeometry("fat16-1.44mb")
	require.NoError(t, err)
	image := make([]byte, geometry.TotalSizeBytes())
	dev := vfattesting.NewDevice(image)
	require.NoError(t, format.FormatVolume(dev, format.FromGeometry(geometry)))

	vol1, err := fat.Mount(dev)
	require.NoError(t, err)
	f, err := vol1.Open("/hi.txt", vfat.O_CREAT|vfat.O_RDWR)
	require.NoError(t, err)
	_, err = f.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	vol2, err := fat.Mount(dev)
	require.NoError(t, err)
	f2, err := vol2.Open("/hi.txt", vfat.O_RDONLY)
	require.NoError(t, err)
	buf := make([]byte, 5)
	_, err = f2.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf))
}

func TestOpenDirectoryFails(t *testing.T) {
	vol, _ := formatAndMount(t, "fat16-1.44mb")
	_, err := vol.Open("/", vfat.O_RDONLY)
	assert.ErrorIs(t, err, vfat.ErrIsDirectory)
}

func TestOpenMissingWithoutCreateFails(t *testing.T) {
	vol, _ := formatAndMount(t, "fat16-1.44mb")
	_, err := vol.Open("/nope.txt", vfat.O_RDONLY)
	assert.ErrorIs(t, err, vfat.ErrNoSuchFile)
}

func TestWriteOnReadOnlyHandleFails(t *testing.T) {
	vol, _ := formatAndMount(t, "fat16-1.44mb")
	f, err := vol.Open("/hi.txt", vfat.O_CREAT|vfat.O_RDWR)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	f2, err := vol.Open("/hi.txt", vfat.O_RDONLY)
	require.NoError(t, err)
	_, err = f2.Write([]byte("x"))
	assert.ErrorIs(t, err, vfat.ErrInvalidMode)
}

func TestReadOnWriteOnlyHandleFails(t *testing.T) {
	vol, _ := formatAndMount(t, "fat16-1.44mb")
	f, err := vol.Open("/hi.txt", vfat.O_CREAT|vfat.O_RDWR)
	require.NoError(t, err)
	_, err = f.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	f2, err := vol.Open("/hi.txt", vfat.O_WRONLY)
	require.NoError(t, err)
	buf := make([]byte, 5)
	_, err = f2.Read(buf)
	assert.ErrorIs(t, err, vfat.ErrInvalidMode)
}

func TestMountReadOnlyRejectsWriteAndCreate(t *testing.T) {
	geometry, err := format.PredefinedGeometry("fat16-1.44mb")
	require.NoError(t, err)
	image := make([]byte, geometry.TotalSizeBytes())
	dev := vfattesting.NewDevice(image)
	require.NoError(t, format.FormatVolume(dev, format.FromGeometry(geometry)))

	rw, err := fat.Mount(dev)
	require.NoError(t, err)
	f, err := rw.Open("/hi.txt", vfat.O_CREAT|vfat.O_RDWR)
	require.NoError(t, err)
	_, err = f.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	ro, err := fat.MountWithFlags(dev, vfat.MountFlagsAllowRead)
	require.NoError(t, err)

	_, err = ro.Open("/new.txt", vfat.O_CREAT|vfat.O_RDWR)
	assert.ErrorIs(t, err, vfat.ErrInvalidMode)

	_, err = ro.Open("/hi.txt", vfat.O_RDWR)
	assert.ErrorIs(t, err, vfat.ErrInvalidMode)

	f2, err := ro.Open("/hi.txt", vfat.O_RDONLY)
	require.NoError(t, err)
	buf := make([]byte, 5)
	_, err = f2.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf))

	err = ro.Unlink("/hi.txt")
	assert.ErrorIs(t, err, vfat.ErrInvalidMode)
}

func TestStatsFATMirrorsAgreeOnFreshVolume(t *testing.T) {
	// Every FAT mirror should agree. FormatVolume
	// seeds every copy identically, so a freshly formatted, untouched volume
	// must report zero mismatches.
	vol, _ := formatAndMount(t, "fat16-1.44mb")

	stat, err := vol.Stats()
	require.NoError(t, err)
	assert.Equal(t, stat.TotalClusters, stat.FreeClusters)
}

func TestMountThroughBoundedDeviceStaysInRange(t *testing.T) {
	geometry, err := format.PredefinedGeometry("fat16-1.44mb")
	require.NoError(t, err)

	totalSectors := uint(geometry.TotalSectors)
	backing := make([]byte, uint(geometry.BytesPerSector)*totalSectors)
	dev := vfattesting.NewBoundedDevice(uint(geometry.BytesPerSector), totalSectors, true, backing, t)

	require.NoError(t, format.FormatVolume(dev, format.FromGeometry(geometry)))

	vol, err := fat.Mount(dev)
	require.NoError(t, err)

	f, err := vol.Open("/hi.txt", vfat.O_CREAT|vfat.O_RDWR)
	require.NoError(t, err)
	_, err = f.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	f2, err := vol.Open("/hi.txt", vfat.O_RDONLY)
	require.NoError(t, err)
	buf := make([]byte, 5)
	_, err = f2.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf))
}

func TestCompressedImageFixtureRoundTrip(t *testing.T) {
	geometry, err := format.PredefinedGeometry("fat16-1.44mb")
	require.NoError(t, err)
	image := make([]byte, geometry.TotalSizeBytes())
	dev := vfattesting.NewDevice(image)
	require.NoError(t, format.FormatVolume(dev, format.FromGeometry(geometry)))

	vol, err := fat.Mount(dev)
	require.NoError(t, err)
	f, err := vol.Open("/canned.txt", vfat.O_CREAT|vfat.O_RDWR)
	require.NoError(t, err)
	_, err = f.Write([]byte("fixture payload"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	// Store the image the way canned fixtures are stored, then pull it back
	// through the fixture loader and mount the result.
	var compressed bytes.Buffer
	_, err = compression.CompressImage(bytes.NewReader(image), &compressed)
	require.NoError(t, err)

	stream := vfattesting.LoadDiskImage(
		t, compressed.Bytes(), geometry.BytesPerSector, geometry.TotalSectors)
	vol2, err := fat.Mount(device.New(stream))
	require.NoError(t, err)

	f2, err := vol2.Open("/canned.txt", vfat.O_RDONLY)
	require.NoError(t, err)
	buf := make([]byte, 32)
	n, err := f2.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "fixture payload", string(buf[:n]))
}

func TestMountWithoutDeleteRejectsUnlink(t *testing.T) {
	geometry, err := format.PredefinedGeometry("fat16-1.44mb")
	require.NoError(t, err)
	image := make([]byte, geometry.TotalSizeBytes())
	dev := vfattesting.NewDevice(image)
	require.NoError(t, format.FormatVolume(dev, format.FromGeometry(geometry)))

	noDelete, err := fat.MountWithFlags(dev, vfat.MountFlagsAllowRead|vfat.MountFlagsAllowWrite|vfat.MountFlagsAllowCreate)
	require.NoError(t, err)

	f, err := noDelete.Open("/keep.txt", vfat.O_CREAT|vfat.O_RDWR)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	err = noDelete.Unlink("/keep.txt")
	assert.ErrorIs(t, err, vfat.ErrInvalidMode)
}
