// Package storage writes media recordings to disk.
package storage

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// TempSuffix marks in-progress recordings.
const TempSuffix = ".tmp"

// ErrRecordingClosed is returned when writing to a finished recording.
var ErrRecordingClosed = errors.New("recording closed")

// Recording writes to a hidden temporary file next to the target and renames
// it into place on Close, so the target path only ever holds a finished file.
type Recording struct {
	mu       sync.Mutex
	target   string
	tempPath string
	file     *os.File
	written  int64
	closed   bool
}

// CreateRecording starts a recording that will be published at path.
func CreateRecording(path string) (*Recording, error) {
	if path == "" {
		return nil, errors.New("recording path is empty")
	}
	target, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving recording path: %w", err)
	}

	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("creating recording directory: %w", err)
	}

	tempPath := filepath.Join(dir, TempName(filepath.Base(target)))
	file, err := os.OpenFile(tempPath, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0640)
	if err != nil {
		return nil, fmt.Errorf("creating temporary recording: %w", err)
	}

	return &Recording{target: target, tempPath: tempPath, file: file}, nil
}

// TempName returns the hidden temporary name used while recording base.
func TempName(base string) string {
	return fmt.Sprintf(".%s.%s%s", base, randomHex(8), TempSuffix)
}

// IsTempName reports whether name looks like an in-progress recording.
func IsTempName(name string) bool {
	return strings.HasPrefix(name, ".") && strings.HasSuffix(name, TempSuffix)
}

// Path returns the final recording path.
func (r *Recording) Path() string {
	return r.target
}

// Written returns the number of bytes recorded so far.
func (r *Recording) Written() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.written
}

// Write appends p to the recording.
func (r *Recording) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0, ErrRecordingClosed
	}
	n, err := r.file.Write(p)
	r.written += int64(n)
	if err != nil {
		return n, fmt.Errorf("writing recording: %w", err)
	}
	return n, nil
}

// Close flushes the temporary file and renames it to the target path.
func (r *Recording) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true

	syncErr := r.file.Sync()
	closeErr := r.file.Close()
	if err := errors.Join(syncErr, closeErr); err != nil {
		os.Remove(r.tempPath)
		return fmt.Errorf("finishing recording: %w", err)
	}

	if err := os.Rename(r.tempPath, r.target); err != nil {
		os.Remove(r.tempPath)
		return fmt.Errorf("publishing recording: %w", err)
	}
	return nil
}

// Abort discards the recording without publishing it.
func (r *Recording) Abort() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true

	closeErr := r.file.Close()
	if err := os.Remove(r.tempPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing temporary recording: %w", err)
	}
	return closeErr
}

func randomHex(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%x", os.Getpid())
	}
	return hex.EncodeToString(b)
}
