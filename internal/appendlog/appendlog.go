// Package appendlog implements the append-only log file that records are
// written to.
package appendlog

import (
	"os"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"libdb.so/serlog/serialline"
)

// DefaultPerm is the permission used when the log file has to be created.
const DefaultPerm os.FileMode = 0644

// maxTail is the number of bytes at the end of the file LastRecord looks at.
const maxTail = 4096

// Options are the options for opening a log file.
type Options struct {
	// Sync makes every write wait until the record reaches stable storage.
	// Without it, records are handed to the operating system immediately but
	// may not survive a power loss.
	Sync bool
	// Perm is the permission used when creating the file. If zero,
	// DefaultPerm is used.
	Perm os.FileMode
}

// File is a log file opened in append mode. Existing content is never
// truncated or overwritten. It is safe for concurrent use.
type File struct {
	mu     sync.Mutex
	f      *os.File
	opts   Options
	buf    []byte
	closed bool
}

// Open opens the log file at the given path for appending, creating it if it
// does not exist.
func Open(path string, opts Options) (*File, error) {
	if opts.Perm == 0 {
		opts.Perm = DefaultPerm
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, opts.Perm)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open log file")
	}

	return &File{f: f, opts: opts}, nil
}

// Name returns the path of the log file.
func (f *File) Name() string {
	return f.f.Name()
}

// WriteRecord appends a record to the file. The record is written in a
// single write so it lands at the end of the file as a whole.
func (f *File) WriteRecord(rec serialline.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.buf = rec.AppendTo(f.buf[:0])
	if _, err := f.f.Write(f.buf); err != nil {
		return errors.Wrap(err, "failed to append record")
	}

	if f.opts.Sync {
		if err := f.f.Sync(); err != nil {
			return errors.Wrap(err, "failed to sync log file")
		}
	}

	return nil
}

// Size returns the current size of the log file in bytes.
func (f *File) Size() (int64, error) {
	s, err := f.f.Stat()
	if err != nil {
		return 0, err
	}
	return s.Size(), nil
}

// LastRecord returns the last record in the file. ok is false if the file
// holds no records.
func (f *File) LastRecord() (rec serialline.Record, ok bool, err error) {
	r, err := os.Open(f.Name())
	if err != nil {
		return rec, false, errors.Wrap(err, "failed to open log file for reading")
	}
	defer r.Close()

	s, err := r.Stat()
	if err != nil {
		return rec, false, errors.Wrap(err, "failed to stat log file")
	}

	off := s.Size() - maxTail
	if off < 0 {
		off = 0
	}

	buf := make([]byte, s.Size()-off)
	if _, err := r.ReadAt(buf, off); err != nil {
		return rec, false, errors.Wrap(err, "failed to read log file")
	}

	tail := strings.TrimRight(string(buf), "\n")
	if tail == "" {
		return rec, false, nil
	}

	if i := strings.LastIndexByte(tail, '\n'); i >= 0 {
		tail = tail[i+1:]
	} else if off > 0 {
		return rec, false, errors.Errorf("last record is longer than %d bytes", maxTail)
	}

	rec, err = serialline.ParseRecord(tail)
	if err != nil {
		return rec, false, errors.Wrap(err, "invalid last record")
	}

	return rec, true, nil
}

// Close closes the file. Closing an already closed file is a no-op.
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil
	}

	f.closed = true
	return f.f.Close()
}
