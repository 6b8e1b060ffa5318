package compression

import (
	"bufio"
	"errors"
	"io"
	"math"
)

// ByteRun is a single run of one byte value.
type ByteRun struct {
	// Byte is the value the run consists of.
	Byte byte
	// RunLength is how many times Byte occurs. A valid run always has a
	// length of at least 1; anything less means EOF or an error.
	RunLength int
}

// InvalidRLERun is the sentinel [RLEGrouper.GetNextRun] returns on EOF or
// error.
var InvalidRLERun = ByteRun{0, 0}

// An RLEGrouper reads a byte stream as a sequence of [ByteRun] values,
// collapsing consecutive identical bytes the way `uniq -c` collapses lines.
type RLEGrouper struct {
	rd io.ByteScanner
}

// NewRLEGrouperFromReader wraps an [io.Reader] in an [RLEGrouper].
func NewRLEGrouperFromReader(rd io.Reader) RLEGrouper {
	return NewRLEGrouperFromByteScanner(bufio.NewReader(rd))
}

// NewRLEGrouperFromByteScanner wraps an [io.ByteScanner] in an [RLEGrouper].
func NewRLEGrouperFromByteScanner(rd io.ByteScanner) RLEGrouper {
	return RLEGrouper{rd: rd}
}

// GetNextRun returns the next run of identical bytes in the stream. The
// error contract matches [io.Reader.Read]: with a non-zero run length the
// error is nil or [io.EOF]; with a zero length it is [io.EOF] or a real
// error.
func (grouper RLEGrouper) GetNextRun() (ByteRun, error) {
	firstByte, err := grouper.rd.ReadByte()
	if err != nil {
		return InvalidRLERun, err
	}

	runLength := 1
	for ; runLength < math.MaxInt; runLength++ {
		currentByte, err := grouper.rd.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				// The byte read before EOF was still part of this run, so
				// there's nothing to unread.
				return ByteRun{Byte: firstByte, RunLength: runLength}, io.EOF
			}
			return InvalidRLERun, err
		}

		if currentByte != firstByte {
			grouper.rd.UnreadByte()
			return ByteRun{Byte: firstByte, RunLength: runLength}, nil
		}
	}

	// Return early if the run somehow reaches the maximum signed int, to
	// avoid overflowing the counter.
	return ByteRun{Byte: firstByte, RunLength: runLength}, nil
}
