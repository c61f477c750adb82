package snapshot

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
)

// pendingFile is an output written under a temporary name next to its
// destination and renamed into place by commit. Until then the
// destination path is never touched.
type pendingFile struct {
	path string
	f    *os.File
	w    *bufio.Writer

	closed bool
	done   bool
}

func createPending(path string) (*pendingFile, error) {
	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	f, err := os.CreateTemp(dir, "."+base+".*.pending")
	if err != nil {
		return nil, &IOError{Op: "open", Path: path, Err: err}
	}
	return &pendingFile{path: path, f: f, w: bufio.NewWriterSize(f, 64<<10)}, nil
}

// writer exposes the buffered writer for formatted output.
func (p *pendingFile) writer() io.Writer {
	return p.w
}

// writeAll writes data and fails with ErrShortWrite if fewer bytes were
// accepted.
func (p *pendingFile) writeAll(data []byte) error {
	n, err := p.w.Write(data)
	if err != nil {
		return &IOError{Op: "write", Path: p.path, Err: err}
	}
	if n != len(data) {
		return &IOError{Op: "write", Path: p.path, Err: ErrShortWrite}
	}
	return nil
}

// finish flushes, syncs and closes the temporary file without moving
// it.
func (p *pendingFile) finish() error {
	if p.closed {
		return nil
	}
	if err := p.w.Flush(); err != nil {
		return &IOError{Op: "write", Path: p.path, Err: err}
	}
	if err := p.f.Sync(); err != nil {
		return &IOError{Op: "sync", Path: p.path, Err: err}
	}
	if err := p.f.Close(); err != nil {
		return &IOError{Op: "close", Path: p.path, Err: err}
	}
	p.closed = true
	if err := os.Chmod(p.f.Name(), 0o644); err != nil {
		return &IOError{Op: "chmod", Path: p.path, Err: err}
	}
	return nil
}

// commit renames the finished file into place.
func (p *pendingFile) commit() error {
	if p.done {
		return nil
	}
	if err := p.finish(); err != nil {
		return err
	}
	if err := os.Rename(p.f.Name(), p.path); err != nil {
		return &IOError{Op: "rename", Path: p.path, Err: err}
	}
	p.done = true
	return nil
}

// retract removes a committed file from its destination.
func (p *pendingFile) retract() {
	if p.done {
		os.Remove(p.path)
	}
}

// discard closes and removes the temporary file. It is a no-op after
// commit.
func (p *pendingFile) discard() {
	if p.done {
		return
	}
	p.done = true
	if !p.closed {
		p.closed = true
		p.f.Close()
	}
	os.Remove(p.f.Name())
}
