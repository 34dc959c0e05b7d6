// Package archive packages build outputs into the zip artifacts that are
// uploaded to the control plane.
package archive

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zip"
)

// ErrFinalized is returned when entries are appended after Finalize.
var ErrFinalized = errors.New("archive: already finalized")

// Archiver accumulates named byte streams into a single zip file.
//
// Append may be called any number of times before Finalize. Abort releases the
// file handle and removes the partial archive; it is a no-op after a successful
// Finalize so callers can always defer it.
type Archiver struct {
	path string

	mu        sync.Mutex
	file      *os.File
	zw        *zip.Writer
	size      int64
	names     map[string]struct{}
	finalized bool
	aborted   bool
}

// New creates the archive file at path, creating parent directories as needed.
func New(path string) (*Archiver, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("archive: create directory for %s: %w", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("archive: create %s: %w", path, err)
	}
	return &Archiver{
		path:  path,
		file:  f,
		zw:    zip.NewWriter(f),
		names: make(map[string]struct{}),
	}, nil
}

// Path returns the location of the archive on disk.
func (a *Archiver) Path() string {
	return a.path
}

// Append copies r into the archive under name. Names use forward slashes; a
// name that was already appended is rejected.
func (a *Archiver) Append(r io.Reader, name string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.finalized || a.aborted {
		return ErrFinalized
	}

	name = path.Clean(filepath.ToSlash(name))
	for len(name) > 0 && name[0] == '/' {
		name = name[1:]
	}
	if name == "" || name == "." {
		return fmt.Errorf("archive: empty entry name")
	}
	if _, dup := a.names[name]; dup {
		return fmt.Errorf("archive: duplicate entry %q", name)
	}

	w, err := a.zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate})
	if err != nil {
		return fmt.Errorf("archive: add %q: %w", name, err)
	}
	n, err := io.Copy(w, r)
	if err != nil {
		return fmt.Errorf("archive: write %q: %w", name, err)
	}

	a.names[name] = struct{}{}
	a.size += n
	return nil
}

// AppendFile appends the file at src under name.
func (a *Archiver) AppendFile(src, name string) error {
	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("archive: open %s: %w", src, err)
	}
	defer f.Close()
	return a.Append(f, name)
}

// Has reports whether an entry with the given name was appended.
func (a *Archiver) Has(name string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.names[path.Clean(filepath.ToSlash(name))]
	return ok
}

// Finalize flushes the archive to disk and returns the total number of
// uncompressed bytes appended.
func (a *Archiver) Finalize() (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.finalized {
		return a.size, nil
	}
	if a.aborted {
		return 0, ErrFinalized
	}

	if err := a.zw.Close(); err != nil {
		a.abortLocked()
		return 0, fmt.Errorf("archive: finalize %s: %w", a.path, err)
	}
	if err := a.file.Close(); err != nil {
		a.abortLocked()
		return 0, fmt.Errorf("archive: close %s: %w", a.path, err)
	}

	a.finalized = true
	return a.size, nil
}

// Abort discards an unfinished archive.
func (a *Archiver) Abort() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.finalized || a.aborted {
		return
	}
	a.abortLocked()
}

func (a *Archiver) abortLocked() {
	a.aborted = true
	_ = a.file.Close()
	_ = os.Remove(a.path)
}
