package remotefile

import (
	"fmt"
	"path/filepath"
)

// BuildSignature renders the resume signature string stored on the remote
// file object: "<size> <mtime> <to_compress:0|1> <chunk_size> <basename>",
// space-separated decimal integers, no trailing newline. The compress flag
// is always literal "0"/"1", never "true"/"false", so the string compares
// byte-for-byte across runs regardless of locale.
func BuildSignature(size, mtimeEpochSeconds int64, toCompress bool, chunkSize int64, localPath string) string {
	compressFlag := 0
	if toCompress {
		compressFlag = 1
	}
	return fmt.Sprintf("%d %d %d %d %s", size, mtimeEpochSeconds, compressFlag, chunkSize, filepath.Base(localPath))
}

// numberOfCompletedParts counts parts whose state is "complete".
func numberOfCompletedParts(parts map[string]partState) int {
	n := 0
	for _, p := range parts {
		if p.State == "complete" {
			n++
		}
	}
	return n
}

// partState is the minimal shape percentageComplete needs from a remote
// part entry; file.go adapts rpcclient.Part into this.
type partState struct {
	State string
}

// percentageComplete estimates, from the remote's per-part completion map,
// the total file size, and the configured chunk size, how much of the file
// (by bytes, inferred from completed parts) is already uploaded. The last
// part's size is size mod chunkSize, or a full chunkSize when size divides
// evenly -- a zero-length last part would otherwise undercount it as absent.
func percentageComplete(parts map[string]partState, size, chunkSize int64) float64 {
	if size == 0 {
		return 100.0
	}
	completed := numberOfCompletedParts(parts)

	lastPartIndex := size / chunkSize
	if size%chunkSize != 0 {
		lastPartIndex++
	}

	lastPartDone := false
	if p, ok := parts[fmt.Sprintf("%d", lastPartIndex)]; ok && p.State == "complete" {
		lastPartDone = true
	}

	lastPartSize := size % chunkSize
	if lastPartSize == 0 {
		lastPartSize = chunkSize
	}
	var bytesUploaded int64
	if lastPartDone {
		bytesUploaded = (int64(completed)-1)*chunkSize + lastPartSize
	} else {
		bytesUploaded = int64(completed) * chunkSize
	}
	return (float64(bytesUploaded) / float64(size)) * 100.0
}
