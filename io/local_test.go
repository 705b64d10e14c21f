package io

import (
	"context"
	stdio "io"
	"os"
	"path/filepath"
	"testing"
)

func TestLocalRoundTrip(t *testing.T) {
	ctx := context.Background()
	fio := NewLocalFileIO()
	path := filepath.Join(t.TempDir(), "sub", "data.bin")

	out, err := fio.Create(ctx, path)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	w, err := out.CreateOverwrite(ctx)
	if err != nil {
		t.Fatalf("CreateOverwrite failed: %v", err)
	}
	content := []byte("0123456789abcdef")
	if _, err := w.Write(content); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	in, err := fio.Open(ctx, path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if in.Location() != path {
		t.Errorf("Location = %q, want %q", in.Location(), path)
	}

	n, err := in.Length(ctx)
	if err != nil {
		t.Fatalf("Length failed: %v", err)
	}
	if n != int64(len(content)) {
		t.Errorf("Length = %d, want %d", n, len(content))
	}

	r, err := in.Open(ctx)
	if err != nil {
		t.Fatalf("Open reader failed: %v", err)
	}
	got, err := stdio.ReadAll(r)
	r.Close()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("read %q, want %q", got, content)
	}
}

func TestLocalOpenRange(t *testing.T) {
	ctx := context.Background()
	fio := NewLocalFileIO()
	path := filepath.Join(t.TempDir(), "data.bin")
	if err := os.WriteFile(path, []byte("0123456789"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	in, err := fio.Open(ctx, path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	r, err := in.OpenRange(ctx, 3, 4)
	if err != nil {
		t.Fatalf("OpenRange failed: %v", err)
	}
	defer r.Close()
	got, err := stdio.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if string(got) != "3456" {
		t.Errorf("range read %q, want %q", got, "3456")
	}
}

func TestLocalExists(t *testing.T) {
	ctx := context.Background()
	fio := NewLocalFileIO()
	dir := t.TempDir()

	ok, err := fio.Exists(ctx, dir)
	if err != nil || !ok {
		t.Errorf("Exists(%q) = %v, %v", dir, ok, err)
	}
	ok, err = fio.Exists(ctx, filepath.Join(dir, "missing"))
	if err != nil || ok {
		t.Errorf("Exists(missing) = %v, %v", ok, err)
	}

	// file:// prefix is accepted.
	ok, err = fio.Exists(ctx, "file://"+dir)
	if err != nil || !ok {
		t.Errorf("Exists(file://) = %v, %v", ok, err)
	}
}

func TestLocalListing(t *testing.T) {
	ctx := context.Background()
	fio := NewLocalFileIO()
	dir := t.TempDir()

	for _, name := range []string{"a.parquet", "b.parquet", "_common_metadata"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644); err != nil {
			t.Fatalf("WriteFile failed: %v", err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "0001_PHY_ARGO"), 0755); err != nil {
		t.Fatalf("Mkdir failed: %v", err)
	}

	files, err := fio.ListFiles(ctx, dir)
	if err != nil {
		t.Fatalf("ListFiles failed: %v", err)
	}
	if len(files) != 3 {
		t.Errorf("ListFiles returned %d entries: %v", len(files), files)
	}

	dirs, err := fio.ListDirs(ctx, dir)
	if err != nil {
		t.Fatalf("ListDirs failed: %v", err)
	}
	if len(dirs) != 1 || filepath.Base(dirs[0]) != "0001_PHY_ARGO" {
		t.Errorf("ListDirs returned %v", dirs)
	}

	if _, err := fio.ListFiles(ctx, filepath.Join(dir, "nope")); err == nil {
		t.Errorf("expected error listing missing directory")
	}
}

func TestNewReaderAt(t *testing.T) {
	ctx := context.Background()
	fio := NewLocalFileIO()
	path := filepath.Join(t.TempDir(), "data.bin")
	if err := os.WriteFile(path, []byte("0123456789"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	in, err := fio.Open(ctx, path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	ra, err := NewReaderAt(ctx, in)
	if err != nil {
		t.Fatalf("NewReaderAt failed: %v", err)
	}
	defer ra.Close()

	buf := make([]byte, 4)
	if _, err := ra.ReadAt(buf, 5); err != nil {
		t.Fatalf("ReadAt failed: %v", err)
	}
	if string(buf) != "5678" {
		t.Errorf("ReadAt got %q, want %q", buf, "5678")
	}

	end, err := ra.Seek(0, stdio.SeekEnd)
	if err != nil {
		t.Fatalf("Seek failed: %v", err)
	}
	if end != 10 {
		t.Errorf("Seek to end = %d, want 10", end)
	}
}
