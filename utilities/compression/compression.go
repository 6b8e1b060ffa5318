package compression

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
)

// CompressImage compresses a disk image with RLE8 followed by gzip, and
// reports how many bytes reached the output stream. The count is undefined
// when an error is returned.
func CompressImage(input io.Reader, output io.Writer) (int64, error) {
	// io.Writer gives no way to ask how much was written, so count it here.
	writer := countingWriter{Writer: output}

	// Highest gzip level. The images are small enough that the speed
	// difference against the default level doesn't matter.
	gzWriter, err := gzip.NewWriterLevel(&writer, gzip.BestCompression)
	if err != nil {
		return 0, fmt.Errorf("failed to create gzip writer: %w", err)
	}

	_, err = CompressRLE8(input, gzWriter)
	closeErr := gzWriter.Close()
	if err != nil {
		err = fmt.Errorf("RLE8 compression error: %w", err)
	} else if closeErr != nil {
		err = fmt.Errorf("gzip compression error: %w", closeErr)
	}
	return writer.BytesWritten, err
}

// DecompressImage reverses [CompressImage]: it gunzips input and expands the
// RLE8 stream inside, writing the original image to output. The returned
// count is the decompressed size, undefined when an error is returned.
func DecompressImage(input io.Reader, output io.Writer) (int64, error) {
	gzReader, err := gzip.NewReader(input)
	if err != nil {
		return 0, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gzReader.Close()
	return DecompressRLE8(gzReader, output)
}

// DecompressImageToBytes is [DecompressImage] into a freshly allocated byte
// slice, which is the convenient form for embedded test data.
func DecompressImageToBytes(input io.Reader) ([]byte, error) {
	buffer := bytes.Buffer{}
	writer := bufio.NewWriter(&buffer)
	_, err := DecompressImage(input, writer)
	if err != nil {
		return nil, err
	}

	writer.Flush()

	outputSlice := make([]byte, buffer.Len())
	copy(outputSlice, buffer.Bytes())
	return outputSlice, nil
}

// countingWriter wraps an io.Writer and tracks how many bytes were
// successfully written through it.
type countingWriter struct {
	Writer io.Writer

	// BytesWritten is the total number of bytes successfully written to Writer.
	BytesWritten int64
}

func (w *countingWriter) Write(b []byte) (int, error) {
	n, err := w.Writer.Write(b)
	if err == nil {
		w.BytesWritten += int64(n)
	}
	return n, err
}
