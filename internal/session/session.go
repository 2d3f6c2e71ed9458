// Package session owns the dispatcher and rpc client for one invocation of
// the upload agent: it constructs one remotefile.File per local path, drives
// part creation, close, and close-polling, and aggregates a per-file outcome
// list for the caller.
package session

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/objectvault/upload-agent/internal/chunk"
	"github.com/objectvault/upload-agent/internal/common"
	"github.com/objectvault/upload-agent/internal/dispatcher"
	"github.com/objectvault/upload-agent/internal/mimetype"
	"github.com/objectvault/upload-agent/internal/remotefile"
	"github.com/objectvault/upload-agent/internal/rpcclient"
)

// FileSpec is one local->remote transfer request, as the enclosing CLI
// parses it out of its arguments.
type FileSpec struct {
	LocalPath   string
	ProjectSpec string
	Folder      string
	Name        string // defaults to the local path's basename when empty
	ToCompress  bool
}

// Config tunes the session-wide knobs: chunk size, worker count, retry
// budget, and the close-poll schedule.
type Config struct {
	ChunkSize      int64
	Workers        int
	Tries          int
	TryResume      bool
	ClosePollEvery time.Duration
	CloseTimeout   time.Duration
}

// DefaultConfig returns sane production defaults: a concurrency-derived
// worker count, three retries per chunk, a 5-minute close timeout.
func DefaultConfig() Config {
	return Config{
		ChunkSize:      100 * 1024 * 1024,
		Workers:        common.ComputeConcurrencyValue(runtime.NumCPU()),
		Tries:          3,
		TryResume:      true,
		ClosePollEvery: 5 * time.Second,
		CloseTimeout:   5 * time.Minute,
	}
}

// Outcome is the terminal result of one FileSpec's upload.
type Outcome struct {
	LocalPath string
	FileID    string
	Failed    bool
	Err       error
}

// Session drives one invocation's worth of uploads.
type Session struct {
	cfg    Config
	rpc    rpcclient.Client
	http   *http.Client
	window *chunk.Window
	log    common.Logger
}

// New builds a Session around an already-constructed Remote Client façade.
func New(cfg Config, rpc rpcclient.Client, httpClient *http.Client, logger common.Logger) *Session {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Minute}
	}
	return &Session{cfg: cfg, rpc: rpc, http: httpClient, log: logger, window: chunk.NewWindow()}
}

// Upload runs every FileSpec to completion (success or terminal failure)
// and returns one Outcome per spec, in input order. A failure on one File
// never aborts the others.
func (s *Session) Upload(ctx context.Context, specs []FileSpec) ([]Outcome, error) {
	d := dispatcher.New(dispatcher.Config{Workers: s.cfg.Workers, QueueSize: s.cfg.Workers * 4}, s.rpc, s.http, s.window, s.log)

	files := make([]*remotefile.File, len(specs))
	outcomes := make([]Outcome, len(specs))

	for i, spec := range specs {
		name := spec.Name
		if name == "" {
			name = baseName(spec.LocalPath)
		}
		mime, err := mimetype.Detect(spec.LocalPath)
		if err != nil {
			outcomes[i] = Outcome{LocalPath: spec.LocalPath, Failed: true, Err: err}
			continue
		}
		toCompress := spec.ToCompress && !mimetype.IsCompressed(mime)

		f, err := remotefile.New(ctx, remotefile.Config{
			LocalPath:   spec.LocalPath,
			ProjectSpec: spec.ProjectSpec,
			Folder:      spec.Folder,
			Name:        name,
			ToCompress:  toCompress,
			TryResume:   s.cfg.TryResume,
			MimeType:    mime,
			ChunkSize:   s.cfg.ChunkSize,
			FileIndex:   i,
			Tries:       s.cfg.Tries,
		}, s.rpc, s.log)
		if err != nil {
			outcomes[i] = Outcome{LocalPath: spec.LocalPath, Failed: true, Err: err}
			continue
		}
		files[i] = f
	}

	// Producers run concurrently with the dispatcher's workers: each
	// File.CreateChunks blocks on Enqueue only when the bounded queue is
	// full, so it must not run on the same goroutine that drains the queue.
	enqueueDone := make(chan struct{})
	go func() {
		defer close(enqueueDone)
		for i, f := range files {
			if f == nil {
				continue
			}
			if _, err := f.CreateChunks(ctx, d, s.window, s.log); err != nil {
				outcomes[i] = Outcome{LocalPath: specs[i].LocalPath, FileID: f.FileID(), Failed: true, Err: err}
			}
		}
		d.Close()
	}()

	runErr := d.Run(ctx)
	<-enqueueDone

	for i, f := range files {
		if f == nil {
			continue // already recorded as a construction-time failure
		}
		if outcomes[i].Err != nil {
			continue // already recorded as a chunk-creation failure
		}
		outcomes[i] = s.finishFile(ctx, specs[i].LocalPath, f)
	}

	return outcomes, runErr
}

// finishFile closes the File and polls it until the remote confirms
// closure. It is called only after the dispatcher has drained every queued
// part, so it does not wait on parts_outstanding itself.
func (s *Session) finishFile(ctx context.Context, localPath string, f *remotefile.File) Outcome {
	if f.Failed() {
		return Outcome{LocalPath: localPath, FileID: f.FileID(), Failed: true, Err: fmt.Errorf("one or more parts of %s failed permanently", localPath)}
	}
	if !f.IsRemoteOpen() {
		// Resumed onto an already closing/closed object: nothing left to
		// do but confirm.
		if err := f.UpdateStateUntilClosed(ctx, s.cfg.ClosePollEvery, s.cfg.CloseTimeout); err != nil {
			return Outcome{LocalPath: localPath, FileID: f.FileID(), Failed: true, Err: err}
		}
		return Outcome{LocalPath: localPath, FileID: f.FileID()}
	}
	if err := f.Close(ctx); err != nil {
		return Outcome{LocalPath: localPath, FileID: f.FileID(), Failed: true, Err: err}
	}
	if err := f.UpdateStateUntilClosed(ctx, s.cfg.ClosePollEvery, s.cfg.CloseTimeout); err != nil {
		return Outcome{LocalPath: localPath, FileID: f.FileID(), Failed: true, Err: err}
	}
	return Outcome{LocalPath: localPath, FileID: f.FileID()}
}

func baseName(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[i+1:]
		}
	}
	return path
}
