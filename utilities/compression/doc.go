// Package compression shrinks disk images for storage as test fixtures.
//
// A filesystem image is mostly dead space: the emptier the volume, the more
// of its sectors are all zero bytes. Run-length encoding the raw image and
// then gzipping the result collapses that dead space almost entirely: a
// mostly-empty image of a few hundred kilobytes routinely compresses below
// a hundred bytes, which is small enough to embed in the repository.
//
// The run-length scheme here is RLE8, the one the Microsoft BMP format
// uses: a byte that occurs N >= 2 times is written twice, followed by an
// unsigned byte giving the number of additional occurrences. For example:
//
//	WXXXXXXXXXXXXXXXYZZ
//	W XX 13 Y ZZ 0
//
// A three-byte group can therefore represent a run of up to 257 bytes;
// longer runs are split into separate groups, so 300 "X" bytes become
// `XX 255 XX 41`. The cost of using a byte as its own escape is that a byte
// occurring exactly twice takes three bytes to store, since the pair must
// be followed by a zero repeat count.
package compression
