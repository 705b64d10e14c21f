// Package io provides file access for CrocoLake databases on local disk
// and S3-compatible object storage.
package io

import (
	"context"
	"fmt"
	"io"
)

// FileIO is the interface the loader and engine use to reach a database
// root, wherever it lives.
type FileIO interface {
	// Open opens a file for reading.
	Open(ctx context.Context, path string) (InputFile, error)

	// Create creates a new file for writing. The loader itself never
	// writes data files; this exists for the dataset metadata sidecar.
	Create(ctx context.Context, path string) (OutputFile, error)

	// Exists checks if a file or directory exists.
	Exists(ctx context.Context, path string) (bool, error)

	// ListFiles lists files under a prefix, non-recursively.
	ListFiles(ctx context.Context, prefix string) ([]string, error)

	// ListDirs lists immediate sub-directories under a prefix. On object
	// storage these are the common prefixes one level down.
	ListDirs(ctx context.Context, prefix string) ([]string, error)

	// Join joins path elements using the backend's separator convention.
	Join(elem ...string) string

	// Properties returns the properties of this FileIO.
	Properties() map[string]string
}

// InputFile represents a readable file.
type InputFile interface {
	// Location returns the file location.
	Location() string

	// Length returns the file length in bytes.
	Length(ctx context.Context) (int64, error)

	// Open opens the file for sequential reading.
	Open(ctx context.Context) (io.ReadCloser, error)

	// OpenRange opens a byte range of the file for reading.
	OpenRange(ctx context.Context, offset, length int64) (io.ReadCloser, error)
}

// OutputFile represents a writable file.
type OutputFile interface {
	// Location returns the file location.
	Location() string

	// CreateOverwrite creates or overwrites the file.
	CreateOverwrite(ctx context.Context) (io.WriteCloser, error)
}

// ReaderAtSeeker is the access pattern the Parquet reader requires.
type ReaderAtSeeker interface {
	io.ReaderAt
	io.Seeker
	io.Closer
}

// NewReaderAt adapts an InputFile into a ReaderAtSeeker by issuing ranged
// reads. Local files short-circuit this through the OS file handle; remote
// files turn each ReadAt into a ranged request.
func NewReaderAt(ctx context.Context, in InputFile) (ReaderAtSeeker, error) {
	if ra, ok := in.(interface {
		ReaderAt(ctx context.Context) (ReaderAtSeeker, error)
	}); ok {
		return ra.ReaderAt(ctx)
	}

	size, err := in.Length(ctx)
	if err != nil {
		return nil, err
	}
	return &rangeReader{ctx: ctx, in: in, size: size}, nil
}

// rangeReader satisfies ReaderAtSeeker over InputFile.OpenRange.
type rangeReader struct {
	ctx  context.Context
	in   InputFile
	size int64
	pos  int64
}

func (r *rangeReader) ReadAt(p []byte, off int64) (int, error) {
	if off >= r.size {
		return 0, io.EOF
	}
	n := int64(len(p))
	if off+n > r.size {
		n = r.size - off
	}
	rc, err := r.in.OpenRange(r.ctx, off, n)
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	read, err := io.ReadFull(rc, p[:n])
	if err != nil {
		return read, err
	}
	if int64(read) < int64(len(p)) {
		return read, io.EOF
	}
	return read, nil
}

func (r *rangeReader) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		r.pos = offset
	case io.SeekCurrent:
		r.pos += offset
	case io.SeekEnd:
		r.pos = r.size + offset
	default:
		return 0, fmt.Errorf("invalid seek whence %d", whence)
	}
	if r.pos < 0 {
		return 0, fmt.Errorf("negative seek position %d", r.pos)
	}
	return r.pos, nil
}

func (r *rangeReader) Close() error { return nil }
