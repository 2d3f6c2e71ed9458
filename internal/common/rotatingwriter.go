package common

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// defaultFilePerm is the permission used for newly created log files.
const defaultFilePerm = os.FileMode(0644)

// rotatingWriter is an io.WriteCloser over a single log file path that
// renames the current file aside and opens a fresh one once maxSize bytes
// have been written, so a long-running upload session never produces an
// unbounded log file.
//
// Every call is serialized through mu. The only caller in this module,
// Logger, already holds its own mutex across a full Write, so there is
// nothing to gain from a reader/writer split here: one plain Mutex held for
// the whole check-rotate-write sequence is simpler and needs no atomics.
type rotatingWriter struct {
	mu            sync.Mutex
	filePath      string
	file          *os.File
	currentSuffix int
	currentSize   uint64
	maxSize       uint64
}

// NewRotatingWriter opens (or creates) filePath for appending and rotates it
// once it exceeds maxSize bytes.
func NewRotatingWriter(filePath string, maxSize uint64) (io.WriteCloser, error) {
	f, err := os.OpenFile(filePath, os.O_RDWR|os.O_CREATE|os.O_APPEND, defaultFilePerm)
	if err != nil {
		return nil, err
	}
	return &rotatingWriter{file: f, filePath: filePath, maxSize: maxSize}, nil
}

func (w *rotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.maxSize > 0 && w.currentSize+uint64(len(p)) > w.maxSize {
		if err := w.rotate(); err != nil {
			return 0, err
		}
	}
	n, err := w.file.Write(p)
	w.currentSize += uint64(n)
	return n, err
}

// rotate closes the current file, renames it aside as filePath minus its
// ".log" suffix plus ".<N>.log", and reopens filePath fresh. Must be called
// with mu held.
func (w *rotatingWriter) rotate() error {
	if err := w.file.Close(); err != nil {
		return err
	}
	rotated := strings.TrimSuffix(w.filePath, ".log") + fmt.Sprintf(".%d.log", w.currentSuffix)
	if err := os.Rename(w.filePath, rotated); err != nil {
		return err
	}
	w.currentSuffix++
	w.currentSize = 0

	f, err := os.OpenFile(w.filePath, os.O_RDWR|os.O_CREATE|os.O_APPEND, defaultFilePerm)
	if err != nil {
		return err
	}
	w.file = f
	return nil
}

func (w *rotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}
