package fat

import (
	"strings"
	"unicode/utf16"
)

// lfnMaxFragments is the highest sequence number a long-name fragment can
// carry (6 bits, minus the LAST marker); 20 fragments of 13 UCS-2 units
// cover the 255-character name ceiling.
const (
	lfnMaxFragments = 20
	lfnMaxUnits     = lfnMaxFragments * 13
)

// lfnStaging accumulates the UCS-2 low bytes of preceding long-name
// fragments while a directory scan walks forward. The reassembled bytes are
// matched with the low byte of each UCS-2 code unit only; [lfnStaging.decode]
// separately offers a real UTF-16 decode for display.
type lfnStaging struct {
	raw   [lfnMaxUnits]byte
	units [lfnMaxUnits]uint16
	valid bool
}

func (s *lfnStaging) reset() {
	s.valid = true
	for i := range s.raw {
		s.raw[i] = 0
		s.units[i] = 0
	}
}

// absorb folds one long-name fragment into the staging buffer at its
// sequence-ordered position. If the fragment is marked LAST, the buffer is
// cleared first, since the LAST fragment starts a fresh name on disk.
func (s *lfnStaging) absorb(frag longDirent) {
	if frag.isLastFragment() {
		s.reset()
	}
	if !s.valid {
		return
	}

	seq := frag.sequenceNumber()
	if seq < 1 || seq > lfnMaxFragments {
		s.valid = false
		return
	}
	base := (seq - 1) * 13
	for i, unit := range frag.chars {
		s.units[base+i] = unit
		s.raw[base+i] = byte(unit)
	}
}

// staged returns the reassembled name as raw low-bytes, trimmed at the
// first terminator/padding unit (0x0000 or 0xFFFF).
func (s *lfnStaging) staged() string {
	n := 0
	for n < len(s.units) {
		u := s.units[n]
		if u == 0x0000 || u == 0xFFFF {
			break
		}
		n++
	}
	return string(s.raw[:n])
}

// decode reassembles the same buffer as real UTF-16 and returns valid UTF-8,
// for callers that want the actual Unicode name rather than the low-byte
// staging form used internally for matching.
func (s *lfnStaging) decode() string {
	n := 0
	for n < len(s.units) {
		u := s.units[n]
		if u == 0x0000 || u == 0xFFFF {
			break
		}
		n++
	}
	return string(utf16.Decode(s.units[:n]))
}

// matchWildcard implements DOS-style wildcard matching: '*' matches any
// run including empty, '?' matches any single character except '.', and
// comparison is case-insensitive.
func matchWildcard(pattern, name string) bool {
	return matchWildcardFold(strings.ToUpper(pattern), strings.ToUpper(name))
}

func matchWildcardFold(pattern, name string) bool {
	if pattern == "" {
		return name == ""
	}
	switch pattern[0] {
	case '*':
		if matchWildcardFold(pattern[1:], name) {
			return true
		}
		for i := 0; i < len(name); i++ {
			if matchWildcardFold(pattern[1:], name[i+1:]) {
				return true
			}
		}
		return false
	case '?':
		if len(name) == 0 || name[0] == '.' {
			return false
		}
		return matchWildcardFold(pattern[1:], name[1:])
	default:
		if len(name) == 0 || pattern[0] != name[0] {
			return false
		}
		return matchWildcardFold(pattern[1:], name[1:])
	}
}
