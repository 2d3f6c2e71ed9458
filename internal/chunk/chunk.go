// Package chunk implements the atomic, retryable unit of upload work: one
// part of one file.
package chunk

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/objectvault/upload-agent/internal/common"
	"github.com/objectvault/upload-agent/internal/compress"
)

// MinPartSize is the remote's floor on non-terminal part size, in bytes.
const MinPartSize = 5 * 1024 * 1024

// URLProvider is the slice of the Remote Client façade a Chunk needs: a
// fresh, single-use presigned URL for one part. Kept narrow and local so
// this package does not need to import the full façade.
type URLProvider interface {
	FileUpload(ctx context.Context, fileID string, index int) (url string, err error)
}

// Owner is the slice of remotefile.File a Chunk/dispatcher needs, kept
// narrow and local (in this package, not remotefile's) so the dependency
// runs chunk <- remotefile, never the reverse. It lets the dispatcher
// implement cooperative cancellation and part-accounting: a worker checks
// Failed() after taking a chunk and before uploading it, and reports
// completion back through OnChunkSuccess/OnChunkFailure.
type Owner interface {
	Failed() bool
	OnChunkSuccess(bytesUploaded int64)
	OnChunkFailure(err error)
}

// Chunk is one contiguous byte range of a local file, uploaded as one part.
type Chunk struct {
	LocalPath        string
	FileID           string
	Index            int // zero-based; wire part number is Index+1
	Start, End       int64
	ToCompress       bool
	IsLast           bool
	OwningFileIndex  int
	TriesLeft        int
	Owner            Owner

	data         []byte
	uploadOffset int64

	log    common.Logger
	window *Window
}

// New constructs a Chunk. window and logger may be nil; a nil window simply
// disables throughput accounting, a nil logger disables logging.
func New(localPath, fileID string, index int, start, end int64, toCompress, isLast bool, owningFileIndex, tries int, owner Owner, window *Window, logger common.Logger) *Chunk {
	return &Chunk{
		LocalPath:       localPath,
		FileID:          fileID,
		Index:           index,
		Start:           start,
		End:             end,
		ToCompress:      toCompress,
		IsLast:          isLast,
		OwningFileIndex: owningFileIndex,
		TriesLeft:       tries,
		Owner:           owner,
		window:          window,
		log:             logger,
	}
}

// Size is the byte length of this part's range in the local (uncompressed)
// file — what the owning File's bytesUploaded counter advances by on
// success.
func (c *Chunk) Size() int64 { return c.End - c.Start }

func (c *Chunk) String() string {
	return fmt.Sprintf("[%s:%d-%d -> %s[%d], tries=%d, data.size=%d, compress=%v]",
		c.LocalPath, c.Start, c.End, c.FileID, c.Index, c.TriesLeft, len(c.data), c.ToCompress)
}

// Read opens the local file, seeks to Start, and reads exactly End-Start
// bytes into data.
func (c *Chunk) Read() error {
	length := c.End - c.Start
	buf := make([]byte, length)

	f, err := os.Open(c.LocalPath)
	if err != nil {
		return common.NewLocalIOError(c.LocalPath, err)
	}
	defer f.Close()

	if _, err := io.ReadFull(io.NewSectionReader(f, c.Start, length), buf); err != nil {
		return common.NewLocalIOError(c.LocalPath, fmt.Errorf("readData failed on chunk %s: %w", c, err))
	}
	c.data = buf
	return nil
}

// Compress feeds data through deflate at level 3. If the result is below
// MinPartSize on a non-last chunk it retries at level 1, and if that's
// still undersized it proceeds anyway after logging a warning (the
// eventual close will fail and surface that as the file's terminal error).
func (c *Chunk) Compress() error {
	out, err := compress.Deflate(3, c.data)
	if err != nil {
		return common.NewCompressError("level 3", err)
	}

	if !c.IsLast && int64(len(out)) < MinPartSize {
		common.Logf(c.log, common.LogWarning,
			"chunk %d of %s: level-3 compression produced %d bytes; retrying at level 1 (cannot upload <5MiB except the last part)",
			c.Index, c.FileID, len(out))

		out, err = compress.Deflate(1, c.data)
		if err != nil {
			return common.NewCompressError("level 1", err)
		}
		if int64(len(out)) < MinPartSize {
			common.Logf(c.log, common.LogWarning,
				"chunk %d of %s: level-1 compression still produced only %d bytes; proceeding anyway, the close of this file will likely fail",
				c.Index, c.FileID, len(out))
		}
	}

	c.data = out
	return nil
}

// pullReader is an io.Reader over the chunk's payload that advances
// uploadOffset as bytes are copied out, so Upload can stream the part body
// without buffering it a second time.
type pullReader struct {
	c *Chunk
}

func (r *pullReader) Read(p []byte) (int, error) {
	c := r.c
	left := int64(len(c.data)) - c.uploadOffset
	if left <= 0 {
		return 0, io.EOF
	}
	n := copy(p, c.data[c.uploadOffset:])
	c.uploadOffset += int64(n)
	return n, nil
}

// meteringReader wraps pullReader and, on every Read, appends the delta of
// newly-sent bytes to the shared throughput window. It holds the window's
// mutex only for the bounded O(1) update inside Window.Add, never across a
// blocked send.
type meteringReader struct {
	inner    io.Reader
	window   *Window
	lastSent int64
	mu       sync.Mutex
}

func (r *meteringReader) Read(p []byte) (int, error) {
	n, err := r.inner.Read(p)
	if n > 0 && r.window != nil {
		r.mu.Lock()
		r.lastSent += int64(n)
		r.mu.Unlock()
		r.window.Add(int64(n))
	}
	return n, err
}

// Upload requests a fresh per-part URL and POSTs the (possibly compressed)
// payload to it, with Content-Length set explicitly and success defined as
// any 2xx status.
func (c *Chunk) Upload(ctx context.Context, httpClient *http.Client, urls URLProvider) error {
	url, err := c.UploadURL(ctx, urls)
	if err != nil {
		return err
	}
	common.Logf(c.log, common.LogDebug, "chunk %d of %s: upload URL %s", c.Index, c.FileID, url)

	c.uploadOffset = 0
	body := &meteringReader{inner: &pullReader{c: c}, window: c.window}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return &common.HTTPError{Transport: err}
	}
	req.ContentLength = int64(len(c.data))
	req.Header.Set("Content-Length", fmt.Sprintf("%d", len(c.data)))

	common.Logf(c.log, common.LogDebug, "chunk %d of %s: starting upload of %d bytes", c.Index, c.FileID, len(c.data))
	started := time.Now()
	resp, err := httpClient.Do(req)
	if err != nil {
		return &common.HTTPError{Transport: err}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	common.Logf(c.log, common.LogDebug, "chunk %d of %s: upload returned status %d in %s", c.Index, c.FileID, resp.StatusCode, time.Since(started))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &common.HTTPError{Status: resp.StatusCode}
	}
	return nil
}

// Clear deterministically releases the in-memory payload.
func (c *Chunk) Clear() {
	c.data = nil
	c.uploadOffset = 0
}

// UploadURL requests a fresh presigned URL for this part. Part numbers are
// 1-based on the wire; this is the single boundary where that conversion
// happens.
func (c *Chunk) UploadURL(ctx context.Context, urls URLProvider) (string, error) {
	url, err := urls.FileUpload(ctx, c.FileID, c.Index+1)
	if err != nil {
		return "", common.NewRPCError("file_upload", err)
	}
	return url, nil
}

// DataLen reports the current in-memory payload size without exposing the
// buffer itself; used by tests.
func (c *Chunk) DataLen() int64 { return int64(len(c.data)) }

// HasData reports whether data is currently non-empty (between Read and
// Clear).
func (c *Chunk) HasData() bool { return len(c.data) > 0 }
