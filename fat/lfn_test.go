package fat

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchWildcardExact(t *testing.T) {
	assert.True(t, matchWildcard("README.TXT", "readme.txt"))
	assert.False(t, matchWildcard("README.TXT", "readme.md"))
}

func TestMatchWildcardStar(t *testing.T) {
	assert.True(t, matchWildcard("*.TXT", "readme.txt"))
	assert.True(t, matchWildcard("*.TXT", ".txt"))
	assert.True(t, matchWildcard("A*B", "AB"))
	assert.True(t, matchWildcard("A*B", "AxyzB"))
	assert.False(t, matchWildcard("A*B", "AxyzC"))
}

func TestMatchWildcardQuestionMark(t *testing.T) {
	assert.True(t, matchWildcard("FILE???.TXT", "FILE001.TXT"))
	assert.False(t, matchWildcard("FILE?.TXT", "FILE.TXT"))
}

func TestLFNStagingReassemblesInOrder(t *testing.T) {
	var s lfnStaging
	s.reset()

	// "ABCDEFGHIJKLMNOP" split into two fragments (13 + 3 chars), last
	// fragment (seq=2) appears first on disk.
	frag2 := longDirent{seq: 2 | ordSeqLastMask}
	copy(frag2.chars[:], []uint16{'N', 'O', 'P', 0, 0xFFFF, 0xFFFF, 0xFFFF, 0xFFFF, 0xFFFF, 0xFFFF, 0xFFFF, 0xFFFF, 0xFFFF})

	frag1 := longDirent{seq: 1}
	copy(frag1.chars[:], []uint16{'A', 'B', 'C', 'D', 'E', 'F', 'G', 'H', 'I', 'J', 'K', 'L', 'M'})

	s.absorb(frag2)
	s.absorb(frag1)

	assert.Equal(t, "ABCDEFGHIJKLMNOP", s.staged())
}

func TestLFNStagingMaxLengthName(t *testing.T) {
	// A 255-character name needs all 20 fragments; absorbing the seq-20
	// LAST fragment must stay inside the staging buffer.
	name := strings.Repeat("a", 255)
	frags := newLongDirentFragments(name)
	require.Len(t, frags, lfnMaxFragments)

	var s lfnStaging
	s.reset()
	for i := len(frags) - 1; i >= 0; i-- {
		s.absorb(frags[i])
	}
	assert.Equal(t, name, s.staged())
}

func TestLFNStagingResetsOnLastFragment(t *testing.T) {
	var s lfnStaging
	s.reset()

	stale := longDirent{seq: 1}
	copy(stale.chars[:], []uint16{'X', 'X', 0, 0xFFFF, 0xFFFF, 0xFFFF, 0xFFFF, 0xFFFF, 0xFFFF, 0xFFFF, 0xFFFF, 0xFFFF, 0xFFFF})
	s.absorb(stale)

	fresh := longDirent{seq: 1 | ordSeqLastMask}
	copy(fresh.chars[:], []uint16{'Y', 'Y', 0, 0xFFFF, 0xFFFF, 0xFFFF, 0xFFFF, 0xFFFF, 0xFFFF, 0xFFFF, 0xFFFF, 0xFFFF, 0xFFFF})
	s.absorb(fresh)

	assert.Equal(t, "YY", s.staged())
}
