// Package compress provides the deflate(level, in) -> bytes primitive used
// to shrink chunk payloads before upload, backed by klauspost/compress/flate
// rather than the standard library's compress/flate: its flate writer is
// measurably faster at the low compression levels this tool uses.
package compress

import (
	"bytes"

	"github.com/klauspost/compress/flate"
)

// Deflate compresses data at the given flate compression level (1..9). Any
// internal writer failure is surfaced as an error, never a partial result.
func Deflate(level int, data []byte) ([]byte, error) {
	var buf bytes.Buffer
	// size the buffer generously up front; flate.Writer grows it as
	// needed, but this avoids repeated reallocation for the common case.
	buf.Grow(len(data)/2 + 64)

	w, err := flate.NewWriter(&buf, level)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
