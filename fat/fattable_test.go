package fat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestVolume(t *testing.T, variant Variant, numClusters uint32) *Volume {
	bytesPerSector := uint32(512)
	width := entryWidthBytes(variant)
	fatBytes := uint32(numClusters+2) * uint32(width)
	numFATSectors := (fatBytes + bytesPerSector - 1) / bytesPerSector

	backing := make([]byte, bytesPerSector*(numFATSectors+numClusters+8))
	dev := &countingDevice{backing: backing}

	vol := &Volume{
		device:            dev,
		bytesPerSector:    bytesPerSector,
		sectorsPerCluster: 1,
		bytesPerCluster:   bytesPerSector,
		firstFATSector:    0,
		numFATSectors:     numFATSectors,
		numFATs:           1,
		firstDataSector:   SectorID(numFATSectors),
		numClusters:       numClusters,
		variant:           variant,
	}
	vol.cache = newSectorCache(dev, bytesPerSector)
	return vol
}

func TestFindFreeSkipsAllocated(t *testing.T) {
	vol := newTestVolume(t, FAT32, 16)

	require.NoError(t, vol.setEntry(2, eocCanonical))
	require.NoError(t, vol.setEntry(3, eocCanonical))

	free, err := vol.findFree(clusterFirst)
	require.NoError(t, err)
	assert.Equal(t, ClusterID(4), free)
}

func TestFindFreeReturnsZeroWhenFull(t *testing.T) {
	vol := newTestVolume(t, FAT32, 2)

	require.NoError(t, vol.setEntry(2, eocCanonical))
	require.NoError(t, vol.setEntry(3, eocCanonical))

	free, err := vol.findFree(clusterFirst)
	require.NoError(t, err)
	assert.Equal(t, ClusterID(0), free)
}

func TestAllocateClustersChainsSequentially(t *testing.T) {
	vol := newTestVolume(t, FAT32, 16)

	first, err := vol.allocateClusters(int64(vol.bytesPerCluster)*3 - 1)
	require.NoError(t, err)
	assert.Equal(t, ClusterID(2), first)

	second, err := vol.getEntry(first)
	require.NoError(t, err)
	assert.Equal(t, ClusterID(3), second)

	third, err := vol.getEntry(second)
	require.NoError(t, err)
	assert.Equal(t, ClusterID(4), third)

	final, err := vol.getEntry(third)
	require.NoError(t, err)
	assert.True(t, IsEndOfChain(final))
}

func TestFreeChainClearsEveryLink(t *testing.T) {
	vol := newTestVolume(t, FAT32, 16)

	first, err := vol.allocateClusters(int64(vol.bytesPerCluster) * 3)
	require.NoError(t, err)

	require.NoError(t, vol.freeChain(first))

	for i := uint32(clusterFirst); i < vol.numClusters+2; i++ {
		entry, err := vol.getEntry(ClusterID(i))
		require.NoError(t, err)
		assert.Equal(t, ClusterID(clusterFree), entry, "cluster %d should be free", i)
	}
}

func TestGetEntryCheckedDiagnosesCorruptChain(t *testing.T) {
	vol := newTestVolume(t, FAT16, 16)

	// cluster 2 points at cluster 3, which is (incorrectly) free. Walking
	// from 2 reaches 3; checking 3's own free entry ends the chain.
	require.NoError(t, vol.setEntry(2, 3))

	next, err := vol.getEntryChecked(2)
	require.NoError(t, err)
	require.Equal(t, ClusterID(3), next)

	next, err = vol.getEntryChecked(next)
	require.NoError(t, err)
	assert.True(t, IsEndOfChain(next))
}

func TestIsValidDataCluster(t *testing.T) {
	assert.False(t, IsValidDataCluster(0, 16))
	assert.False(t, IsValidDataCluster(1, 16))
	assert.True(t, IsValidDataCluster(2, 16))
	assert.True(t, IsValidDataCluster(17, 16))
	assert.False(t, IsValidDataCluster(18, 16))
	assert.False(t, IsValidDataCluster(eocCanonical, 16))
}

func TestNormalizeEntryMasksAndCollapsesEOC(t *testing.T) {
	assert.Equal(t, eocCanonical, normalizeEntry(0xFFFFFFFF, FAT32))
	assert.Equal(t, eocCanonical, normalizeEntry(0x0FFFFFF8, FAT32))
	assert.Equal(t, eocCanonical, normalizeEntry(0xFFF8, FAT16))
	assert.Equal(t, ClusterID(5), normalizeEntry(5, FAT16))
	assert.Equal(t, ClusterID(5), normalizeEntry(0xF0000005, FAT32))
}
