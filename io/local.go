package io

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LocalFileIO implements FileIO for the local filesystem.
type LocalFileIO struct {
	properties map[string]string
}

// NewLocalFileIO creates a new local file I/O handler.
func NewLocalFileIO() *LocalFileIO {
	return &LocalFileIO{
		properties: make(map[string]string),
	}
}

// Open opens a file for reading.
func (l *LocalFileIO) Open(ctx context.Context, path string) (InputFile, error) {
	return &localInputFile{path: normalizePath(path)}, nil
}

// Create creates a new file for writing.
func (l *LocalFileIO) Create(ctx context.Context, path string) (OutputFile, error) {
	return &localOutputFile{path: normalizePath(path)}, nil
}

// Exists checks if a file or directory exists.
func (l *LocalFileIO) Exists(ctx context.Context, path string) (bool, error) {
	_, err := os.Stat(normalizePath(path))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// ListFiles lists regular files directly under prefix.
func (l *LocalFileIO) ListFiles(ctx context.Context, prefix string) ([]string, error) {
	prefix = normalizePath(prefix)
	entries, err := os.ReadDir(prefix)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() {
			files = append(files, filepath.Join(prefix, e.Name()))
		}
	}
	return files, nil
}

// ListDirs lists directories directly under prefix.
func (l *LocalFileIO) ListDirs(ctx context.Context, prefix string) ([]string, error) {
	prefix = normalizePath(prefix)
	entries, err := os.ReadDir(prefix)
	if err != nil {
		return nil, err
	}

	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, filepath.Join(prefix, e.Name()))
		}
	}
	return dirs, nil
}

// Join joins path elements with the OS separator.
func (l *LocalFileIO) Join(elem ...string) string {
	return filepath.Join(elem...)
}

// Properties returns the properties of this FileIO.
func (l *LocalFileIO) Properties() map[string]string {
	return l.properties
}

// normalizePath removes a file:// prefix if present.
func normalizePath(path string) string {
	return strings.TrimPrefix(path, "file://")
}

// localInputFile implements InputFile for the local filesystem.
type localInputFile struct {
	path string
}

func (f *localInputFile) Location() string {
	return f.path
}

func (f *localInputFile) Length(ctx context.Context) (int64, error) {
	info, err := os.Stat(f.path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func (f *localInputFile) Open(ctx context.Context) (io.ReadCloser, error) {
	return os.Open(f.path)
}

func (f *localInputFile) OpenRange(ctx context.Context, offset, length int64) (io.ReadCloser, error) {
	file, err := os.Open(f.path)
	if err != nil {
		return nil, err
	}

	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		file.Close()
		return nil, err
	}

	return &limitedReadCloser{
		Reader: io.LimitReader(file, length),
		Closer: file,
	}, nil
}

// ReaderAt hands the OS file handle straight to the Parquet reader instead
// of going through ranged reads.
func (f *localInputFile) ReaderAt(ctx context.Context) (ReaderAtSeeker, error) {
	return os.Open(f.path)
}

// localOutputFile implements OutputFile for the local filesystem.
type localOutputFile struct {
	path string
}

func (f *localOutputFile) Location() string {
	return f.path
}

func (f *localOutputFile) CreateOverwrite(ctx context.Context) (io.WriteCloser, error) {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	return os.Create(f.path)
}

// limitedReadCloser wraps a limited reader with a closer.
type limitedReadCloser struct {
	io.Reader
	io.Closer
}
