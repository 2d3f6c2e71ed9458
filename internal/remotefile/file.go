// Package remotefile implements one local->remote upload: resume detection,
// part enumeration, remote open/close, and part accounting.
package remotefile

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/objectvault/upload-agent/internal/chunk"
	"github.com/objectvault/upload-agent/internal/common"
	"github.com/objectvault/upload-agent/internal/rpcclient"
)

// Config is the construction-time input for one local->remote transfer:
// (local_path, project_spec, folder, name, to_compress, try_resume, mime,
// chunk_size, file_index).
type Config struct {
	LocalPath   string
	ProjectSpec string
	Folder      string
	Name        string
	ToCompress  bool
	TryResume   bool
	MimeType    string
	ChunkSize   int64
	FileIndex   int
	Tries       int // tries_left seeded onto every Chunk this File creates
}

// File owns one local->remote transfer.
type File struct {
	cfg Config

	rpc rpcclient.Client
	log common.Logger

	size  int64
	mtime int64

	projectID    string
	remoteName   string
	fileID       string
	signature    string

	bytesUploaded    int64 // atomic
	partsOutstanding int64 // atomic

	mu           sync.Mutex
	failed       bool
	isRemoteOpen bool
	closed       bool
}

// New performs construction in order: resolve project, ensure folder, stat
// the local file, compute the remote name and signature, attempt resume (if
// requested), and otherwise create a fresh remote file object.
func New(ctx context.Context, cfg Config, rpc rpcclient.Client, logger common.Logger) (*File, error) {
	f := &File{cfg: cfg, rpc: rpc, log: logger}

	projectID, err := rpc.ResolveProject(ctx, cfg.ProjectSpec)
	if err != nil {
		return nil, err
	}
	f.projectID = projectID

	if err := rpc.CreateFolder(ctx, projectID, cfg.Folder); err != nil {
		return nil, err
	}

	info, err := os.Stat(cfg.LocalPath)
	if err != nil {
		return nil, common.NewLocalIOError(cfg.LocalPath, fmt.Errorf("local file %s does not exist: %w", cfg.LocalPath, err))
	}
	f.size = info.Size()
	f.mtime = info.ModTime().Unix()

	f.remoteName = cfg.Name
	if cfg.ToCompress {
		f.remoteName += ".gz"
	}

	f.signature = BuildSignature(f.size, f.mtime, cfg.ToCompress, cfg.ChunkSize, cfg.LocalPath)

	if cfg.TryResume {
		candidates, err := rpc.FindResumable(ctx, projectID, f.signature)
		if err != nil {
			return nil, err
		}
		switch len(candidates) {
		case 0:
			// fall through to create
		case 1:
			f.adoptResumeCandidate(candidates[0])
			return f, nil
		default:
			f.mu.Lock()
			f.failed = true
			f.mu.Unlock()
			common.Logf(f.log, common.LogError, "more than one resumable target for local file %q found:", cfg.LocalPath)
			for i, c := range candidates {
				common.Logf(f.log, common.LogError, "\t%d. %s (%s)", i+1, c.Describe.Name, c.ID)
			}
			common.Logf(f.log, common.LogError, "won't upload %q; clean up the candidates above or disable resume", cfg.LocalPath)
			return f, common.ErrResumeAmbiguous
		}
	}

	fileID, err := rpc.CreateFile(ctx, projectID, cfg.Folder, f.remoteName, cfg.MimeType, map[string]string{
		rpcclient.FileSignatureProperty: f.signature,
	})
	if err != nil {
		return nil, err
	}
	f.fileID = fileID
	f.isRemoteOpen = true
	common.Logf(f.log, common.LogInfo, "uploading %s to new file object %s", cfg.LocalPath, fileID)
	return f, nil
}

func (f *File) adoptResumeCandidate(candidate rpcclient.ResumeCandidate) {
	f.fileID = candidate.ID
	state := candidate.Describe.State

	if state == "closing" || state == "closed" {
		f.isRemoteOpen = false
		atomic.StoreInt64(&f.bytesUploaded, f.size)
		if state == "closing" {
			common.Logf(f.log, common.LogInfo,
				"remote resume target %s for %s is still closing; treating as resumed-complete", f.fileID, f.cfg.LocalPath)
		} else {
			common.Logf(f.log, common.LogInfo,
				"remote resume target %s for %s is already closed; nothing to upload", f.fileID, f.cfg.LocalPath)
		}
		return
	}

	parts := make(map[string]partState, len(candidate.Describe.Parts))
	for idx, p := range candidate.Describe.Parts {
		parts[idx] = partState{State: p.State}
	}
	pct := percentageComplete(parts, f.size, f.cfg.ChunkSize)
	f.isRemoteOpen = true
	common.Logf(f.log, common.LogInfo,
		"signature of %s matches remote file %s (%s), %.1f%% complete; resuming", f.cfg.LocalPath, candidate.Describe.Name, f.fileID, pct)
}

// FileID returns the remote file object id this File is uploading to.
func (f *File) FileID() string { return f.fileID }

// Size returns the local file's size in bytes.
func (f *File) Size() int64 { return f.size }

// Signature returns the resume signature computed for this File.
func (f *File) Signature() string { return f.signature }

// Failed reports whether this File has entered a terminal failure state.
// Implements chunk.Owner.
func (f *File) Failed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failed
}

func (f *File) setFailed() {
	f.mu.Lock()
	f.failed = true
	f.mu.Unlock()
}

// OnChunkSuccess implements chunk.Owner: records bytesUploaded and
// decrements the outstanding-parts counter.
func (f *File) OnChunkSuccess(bytesUploaded int64) {
	atomic.AddInt64(&f.bytesUploaded, bytesUploaded)
	atomic.AddInt64(&f.partsOutstanding, -1)
}

// OnChunkFailure implements chunk.Owner: marks this File failed. A
// File-level error never cascades to other Files in the same session.
func (f *File) OnChunkFailure(err error) {
	common.Logf(f.log, common.LogError, "file %s (%s): chunk failed permanently: %v", f.cfg.LocalPath, f.fileID, err)
	f.setFailed()
	atomic.AddInt64(&f.partsOutstanding, -1)
}

// BytesUploaded returns the running total of bytes this File has
// successfully uploaded (or already had marked complete on resume).
func (f *File) BytesUploaded() int64 { return atomic.LoadInt64(&f.bytesUploaded) }

// PartsOutstanding returns the number of parts still in flight or queued.
func (f *File) PartsOutstanding() int64 { return atomic.LoadInt64(&f.partsOutstanding) }

// Queue is the slice of dispatcher.Dispatcher that CreateChunks needs:
// somewhere to hand off newly-built chunks. Kept narrow and local, mirroring
// chunk.URLProvider/chunk.Owner, so remotefile doesn't need to import
// dispatcher just to enqueue into it.
type Queue interface {
	Enqueue(ctx context.Context, c *chunk.Chunk) error
}

// CreateChunks fetches the remote description, asserts it is open, and
// walks the file's parts in order. Parts already reported "complete" by the
// remote (the resume case) are counted into bytesUploaded and never
// enqueued; every other part becomes a Chunk and is handed to queue. It
// returns the number of chunks actually enqueued.
func (f *File) CreateChunks(ctx context.Context, queue Queue, window *chunk.Window, logger common.Logger) (int, error) {
	if f.Failed() || !f.isRemoteOpen {
		// Either multiple resumable targets existed (and resume wasn't
		// disabled), or the resume target is already closing/closed.
		return 0, nil
	}

	desc, err := f.rpc.FileDescribe(ctx, f.fileID)
	if err != nil {
		return 0, err
	}
	if desc.State != "open" {
		return 0, fmt.Errorf("file %s: expected state \"open\", got %q", f.fileID, desc.State)
	}

	enqueued := 0
	index := 0
	for start := int64(0); start < f.size; start += f.cfg.ChunkSize {
		partIndex := fmt.Sprintf("%d", index+1) // wire part numbers are 1-based
		end := start + f.cfg.ChunkSize
		if end > f.size {
			end = f.size
		}

		if part, ok := desc.Parts[partIndex]; ok && part.State == "complete" {
			common.Logf(logger, common.LogDebug, "part %s of file %s is already complete; skipping", partIndex, f.fileID)
			atomic.AddInt64(&f.bytesUploaded, end-start)
		} else {
			isLast := end >= f.size
			c := chunk.New(f.cfg.LocalPath, f.fileID, index, start, end, f.cfg.ToCompress, isLast, f.cfg.FileIndex, f.cfg.Tries, f, window, logger)
			atomic.AddInt64(&f.partsOutstanding, 1)
			if err := queue.Enqueue(ctx, c); err != nil {
				return enqueued, err
			}
			enqueued++
		}
		index++
	}
	return enqueued, nil
}

// Close issues the remote close RPC. Idempotent at the remote.
func (f *File) Close(ctx context.Context) error {
	if err := f.rpc.CloseFile(ctx, f.fileID); err != nil {
		return err
	}
	f.mu.Lock()
	f.isRemoteOpen = false
	f.mu.Unlock()
	return nil
}

// UpdateStateUntilClosed polls get_file_state until the remote reports
// "closed" or "close_failed", pollEvery elapses between attempts, or
// timeout/ctx expires. Bounding the wait keeps a stuck remote from spinning
// this forever; past the deadline it surfaces ErrCloseTimeout instead.
//
// "close_failed" is how the remote rejects an object whose parts don't
// satisfy its own minimum-part-size rule (see chunk.Compress's
// undersized-non-last-chunk warning): the close RPC itself still returns
// success -- the remote only notices the violation once it tries to
// assemble the closed object -- so the failure only ever surfaces here.
func (f *File) UpdateStateUntilClosed(ctx context.Context, pollEvery, timeout time.Duration) error {
	if pollEvery <= 0 {
		pollEvery = time.Millisecond
	}
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(pollEvery)
	defer ticker.Stop()

	for {
		state, err := f.rpc.GetFileState(ctx, f.fileID)
		if err != nil {
			return err
		}
		if state == "closed" {
			f.mu.Lock()
			f.closed = true
			f.mu.Unlock()
			return nil
		}
		if state == "close_failed" {
			f.setFailed()
			return common.ErrCloseFailed
		}
		if time.Now().After(deadline) {
			return common.ErrCloseTimeout
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Closed reports whether this File's remote object has reached the
// "closed" state.
func (f *File) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// IsRemoteOpen reports whether this File believes its remote object is
// still open for part uploads.
func (f *File) IsRemoteOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.isRemoteOpen
}

var _ chunk.Owner = (*File)(nil)
