package sink

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fryguy04/evtx-to-json/internal/config"
	"github.com/fryguy04/evtx-to-json/internal/model"
)

// Option configures a File.
type Option func(*File)

// WithMaxSize sets the file size (bytes) at which rotation triggers.
// 0 (default) disables rotation. Ignored for the array format.
func WithMaxSize(bytes int64) Option {
	return func(f *File) { f.maxSize = bytes }
}

// WithMaxFiles caps how many rotated files are kept next to the live one.
func WithMaxFiles(n int) Option {
	return func(f *File) { f.maxFiles = n }
}

// File appends events to a destination file. Each Write issues a single
// write of one record with no buffering in between.
//
// Formats:
//   - concat: compact objects back to back with no separator. Prior contents
//     are kept, so re-running accumulates.
//   - jsonl: one compact object per line, appended.
//   - array: one JSON array, closed on Close. The file is truncated on open.
type File struct {
	mu       sync.Mutex
	path     string
	format   string
	f        *os.File
	maxSize  int64
	maxFiles int
	written  int64
	records  int
}

// NewFile opens path for the given format ("" means concat).
func NewFile(path, format string, opts ...Option) (*File, error) {
	if format == "" {
		format = config.FormatConcat
	}
	switch format {
	case config.FormatConcat, config.FormatJSONL, config.FormatArray:
	default:
		return nil, fmt.Errorf("%w: unknown format %q", ErrOpenSink, format)
	}

	f := &File{path: path, format: format, maxFiles: 5}
	for _, opt := range opts {
		opt(f)
	}
	if format == config.FormatArray {
		f.maxSize = 0
	}
	if err := f.open(); err != nil {
		return nil, err
	}
	return f, nil
}

// Path returns the live destination path.
func (f *File) Path() string {
	return f.path
}

// Write serializes e compactly and writes it out.
func (f *File) Write(e *model.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.f == nil {
		return fmt.Errorf("%w: %s is closed", ErrWriteSink, f.path)
	}

	// Not json.Marshal: it would re-escape '&', '<' and '>'.
	data, err := e.MarshalJSON()
	if err != nil {
		return fmt.Errorf("%w: marshal record %d: %v", ErrWriteSink, e.Handle.Index, err)
	}

	switch f.format {
	case config.FormatJSONL:
		data = append(data, '\n')
	case config.FormatArray:
		sep := byte(',')
		if f.records == 0 {
			sep = '['
		}
		data = append([]byte{sep}, data...)
	}

	if f.maxSize > 0 && f.written > 0 && f.written+int64(len(data)) > f.maxSize {
		if err := f.rotate(); err != nil {
			return err
		}
	}

	n, err := f.f.Write(data)
	f.written += int64(n)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrWriteSink, f.path, err)
	}
	f.records++
	return nil
}

// Close terminates an array document and closes the file.
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.f == nil {
		return nil
	}
	if f.format == config.FormatArray {
		tail := "]\n"
		if f.records == 0 {
			tail = "[]\n"
		}
		if _, err := f.f.WriteString(tail); err != nil {
			f.f.Close()
			f.f = nil
			return fmt.Errorf("%w: %s: %v", ErrWriteSink, f.path, err)
		}
	}
	err := f.f.Close()
	f.f = nil
	if err != nil {
		return fmt.Errorf("%w: close %s: %v", ErrWriteSink, f.path, err)
	}
	return nil
}

func (f *File) open() error {
	if dir := filepath.Dir(f.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("%w: %v", ErrOpenSink, err)
		}
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_APPEND
	if f.format == config.FormatArray {
		flags = os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	}
	fh, err := os.OpenFile(f.path, flags, 0o644)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrOpenSink, err)
	}
	info, err := fh.Stat()
	if err != nil {
		fh.Close()
		return fmt.Errorf("%w: stat %s: %v", ErrOpenSink, f.path, err)
	}
	f.f = fh
	f.written = info.Size()
	return nil
}
