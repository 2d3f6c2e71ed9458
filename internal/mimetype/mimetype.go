// Package mimetype sniffs a local file's content type and decides whether
// it is already compressed.
package mimetype

import (
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Detect sniffs the content type of the file at path.
func Detect(path string) (string, error) {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return "", err
	}
	return mtype.String(), nil
}

// compressedPrefixes are MIME types (or prefixes of one) already considered
// compressed, so a second pass of deflate on upload would waste CPU for no
// benefit.
var compressedPrefixes = []string{
	"application/gzip",
	"application/x-gzip",
	"application/zip",
	"application/x-bzip2",
	"application/x-xz",
	"application/x-7z-compressed",
	"application/x-rar-compressed",
	"application/zstd",
}

// IsCompressed reports whether mimeType names a format that is already
// compressed, in which case the caller should not also ask the Chunk to
// deflate it.
func IsCompressed(mimeType string) bool {
	for _, prefix := range compressedPrefixes {
		if strings.HasPrefix(mimeType, prefix) {
			return true
		}
	}
	return false
}
