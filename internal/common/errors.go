package common

import (
	"fmt"

	"github.com/pkg/errors"
)

// LocalIOError wraps a failure reading the local source file: it is fatal
// to the owning File but never touches other Files.
type LocalIOError struct {
	Path string
	Err  error
}

func (e *LocalIOError) Error() string {
	return fmt.Sprintf("local I/O error on %s: %v", e.Path, e.Err)
}

func (e *LocalIOError) Unwrap() error { return e.Err }

// NewLocalIOError wraps err with a stack trace via pkg/errors and tags it as
// a LocalIOError.
func NewLocalIOError(path string, err error) error {
	return &LocalIOError{Path: path, Err: errors.WithStack(err)}
}

// CompressError reports a non-success return from the compressor. Chunk
// level: retried up to tries_left by the dispatcher.
type CompressError struct {
	Reason string
	Err    error
}

func (e *CompressError) Error() string {
	return fmt.Sprintf("compression failed: %s", e.Reason)
}

func (e *CompressError) Unwrap() error { return e.Err }

func NewCompressError(reason string, err error) error {
	return &CompressError{Reason: reason, Err: errors.WithStack(err)}
}

// HTTPError reports a non-2xx response or a transport-level failure on a
// part upload. Chunk level: retried up to tries_left, subject to the 4xx
// policy in Retryable.
type HTTPError struct {
	Status    int   // 0 when the failure never reached a response (transport error)
	Transport error // non-nil for dial/TLS/timeout failures
}

func (e *HTTPError) Error() string {
	if e.Transport != nil {
		return fmt.Sprintf("http transport error: %v", e.Transport)
	}
	return fmt.Sprintf("http request failed with status %d", e.Status)
}

func (e *HTTPError) Unwrap() error { return e.Transport }

// Retryable reports whether the dispatcher should spend one of tries_left
// re-attempting this chunk: retry on transport errors, 408, 429, and any
// 5xx; treat every other 4xx as immediately fatal.
func (e *HTTPError) Retryable() bool {
	if e.Transport != nil {
		return true
	}
	if e.Status == 408 || e.Status == 429 {
		return true
	}
	if e.Status >= 500 {
		return true
	}
	return false
}

// RPCError reports a malformed or failed call against the Remote Client
// façade. Retried at the call site with bounded backoff; fatal to the
// owning File after exhaustion.
type RPCError struct {
	Op  string
	Err error
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc %s failed: %v", e.Op, e.Err)
}

func (e *RPCError) Unwrap() error { return e.Err }

func NewRPCError(op string, err error) error {
	return &RPCError{Op: op, Err: errors.WithStack(err)}
}

// Sentinel, File-level terminal errors. These are compared with errors.Is,
// not type-asserted, since they carry no per-instance payload beyond what's
// already logged at the point they're raised.
var (
	// ErrResumeAmbiguous: more than one remote object matches this File's
	// signature. Fatal to that File; other Files proceed.
	ErrResumeAmbiguous = errors.New("more than one resumable remote file matches this local file's signature")

	// ErrCloseFailed: the remote reported a closure failure (e.g.
	// undersized parts). Fatal to that File.
	ErrCloseFailed = errors.New("remote file object failed to close")

	// ErrCloseTimeout: update_state polling exceeded its deadline without
	// observing the "closed" state.
	ErrCloseTimeout = errors.New("timed out waiting for remote file object to close")
)
