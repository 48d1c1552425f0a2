// Package filesystem implements domain.FileSink against the local disk.
package filesystem

import (
	"os"

	"tgspider/internal/domain"
)

// LocalFileSystem is the crawler's only write target: it never re-scans
// what it has already written, since the scheduler's checkpoint is the
// sole source of truth for what has been downloaded.
type LocalFileSystem struct{}

func NewLocalFileSystem() *LocalFileSystem {
	return &LocalFileSystem{}
}

func (l *LocalFileSystem) EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}

func (l *LocalFileSystem) Create(destPath string) (domain.OrderedWriter, error) {
	f, err := os.Create(destPath)
	if err != nil {
		return nil, err
	}
	return &orderedFile{f: f, path: destPath}, nil
}

// orderedFile implements domain.OrderedWriter directly on an *os.File:
// os.File.WriteAt already supports arbitrary offsets, so the cursor
// discipline lives entirely in the downloader.
type orderedFile struct {
	f    *os.File
	path string
}

func (o *orderedFile) WriteAt(offset int64, data []byte) error {
	_, err := o.f.WriteAt(data, offset)
	return err
}

func (o *orderedFile) Close() error {
	return o.f.Close()
}

// Abort discards the partially written file; a failed download's partial
// bytes are not load-bearing, so this is best-effort cleanup.
func (o *orderedFile) Abort() {
	_ = o.f.Close()
	_ = os.Remove(o.path)
}
