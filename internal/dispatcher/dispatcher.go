// Package dispatcher implements a bounded multi-producer, multi-consumer
// work queue and fixed worker pool: per-chunk retry/backoff plus a shared
// throughput meter, built around a Go channel and golang.org/x/sync/errgroup.
package dispatcher

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jpillora/backoff"

	"github.com/objectvault/upload-agent/internal/chunk"
	"github.com/objectvault/upload-agent/internal/common"
)

// Config tunes the dispatcher's worker count and queue depth.
type Config struct {
	Workers   int
	QueueSize int
}

// Dispatcher is a bounded channel of *chunk.Chunk serviced by Config.Workers
// goroutines. Producers (File.CreateChunks) block on Enqueue when the queue
// is full; workers block on receive when it's empty — both fall out of
// unbuffered/buffered channel semantics directly.
type Dispatcher struct {
	cfg    Config
	queue  chan *chunk.Chunk
	urls   chunk.URLProvider
	http   *http.Client
	window *chunk.Window
	log    common.Logger
}

// New constructs a Dispatcher. window may be nil to disable throughput
// reporting (mainly for tests).
func New(cfg Config, urls chunk.URLProvider, httpClient *http.Client, window *chunk.Window, logger common.Logger) *Dispatcher {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = cfg.Workers
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Minute}
	}
	return &Dispatcher{
		cfg:    cfg,
		queue:  make(chan *chunk.Chunk, cfg.QueueSize),
		urls:   urls,
		http:   httpClient,
		window: window,
		log:    logger,
	}
}

// Enqueue blocks until there is room in the bounded queue or ctx is done.
func (d *Dispatcher) Enqueue(ctx context.Context, c *chunk.Chunk) error {
	select {
	case d.queue <- c:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close signals that no more chunks will be enqueued; workers drain the
// remaining queue and then exit.
func (d *Dispatcher) Close() { close(d.queue) }

// Run starts Config.Workers worker goroutines plus one throughput-reporting
// goroutine, and blocks until all workers exit (i.e. the queue has been
// closed and drained) or ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if d.window != nil {
		// The reporter runs outside the errgroup and is stopped when Run
		// returns, so it never keeps Run waiting after the workers exit.
		reportCtx, stopReporting := context.WithCancel(ctx)
		defer stopReporting()
		go d.reportThroughput(reportCtx)
	}

	for i := 0; i < d.cfg.Workers; i++ {
		g.Go(func() error {
			d.worker(ctx)
			return nil
		})
	}

	return g.Wait()
}

// reportThroughput logs the window's instantaneous rate once a second until
// ctx is cancelled.
func (d *Dispatcher) reportThroughput(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rate := d.window.Rate()
			common.Logf(d.log, common.LogInfo, "throughput: %s (window: %d samples, %s total)",
				common.RateToString(rate), d.window.Len(), common.ByteSizeToString(d.window.Sum()))
		}
	}
}

// worker repeatedly pops a chunk and executes read -> compress -> upload ->
// clear, in strict per-chunk order. On failure it requeues at the tail
// while TriesLeft > 0, with a short jittered sleep so a storm of failing
// chunks cannot spin the CPU; otherwise it marks the chunk (and its owning
// File) permanently failed.
func (d *Dispatcher) worker(ctx context.Context) {
	retryDelay := &backoff.Backoff{Min: 50 * time.Millisecond, Max: 5 * time.Second, Factor: 2, Jitter: true}

	for {
		var c *chunk.Chunk
		var ok bool
		select {
		case c, ok = <-d.queue:
			if !ok {
				return
			}
		case <-ctx.Done():
			return
		}

		if c.Owner != nil && c.Owner.Failed() {
			// Cooperative cancellation: the owning File has already
			// failed, drop this chunk without uploading it.
			c.Clear()
			continue
		}

		if err := d.attempt(ctx, c); err != nil {
			if d.shouldRetry(c, err) {
				c.TriesLeft--
				c.Clear()
				select {
				case <-time.After(retryDelay.Duration()):
				case <-ctx.Done():
					return
				}
				if err := d.Enqueue(ctx, c); err != nil {
					return
				}
				continue
			}
			common.Logf(d.log, common.LogError, "chunk %d of %s: permanently failed: %v", c.Index, c.FileID, err)
			c.Clear()
			if c.Owner != nil {
				c.Owner.OnChunkFailure(err)
			}
			continue
		}

		retryDelay.Reset()
		size := c.Size()
		c.Clear()
		if c.Owner != nil {
			c.Owner.OnChunkSuccess(size)
		}
	}
}

// shouldRetry applies the tries_left budget together with the HTTP 4xx
// retry policy.
func (d *Dispatcher) shouldRetry(c *chunk.Chunk, err error) bool {
	if c.TriesLeft <= 0 {
		return false
	}
	if httpErr, ok := err.(*common.HTTPError); ok {
		return httpErr.Retryable()
	}
	return true
}

func (d *Dispatcher) attempt(ctx context.Context, c *chunk.Chunk) error {
	if err := c.Read(); err != nil {
		return err
	}
	if c.ToCompress {
		if err := c.Compress(); err != nil {
			return err
		}
	}
	return c.Upload(ctx, d.http, d.urls)
}
