package attachment

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// File is a user-selected file handle
type File interface {
	Name() string
	Size() int64
	Open() (io.ReadCloser, error)
}

type memFile struct {
	name string
	data []byte
}

// NewFile wraps an in-memory payload as a File
func NewFile(name string, data []byte) File {
	return &memFile{name: name, data: data}
}

func (f *memFile) Name() string { return f.name }
func (f *memFile) Size() int64  { return int64(len(f.data)) }

func (f *memFile) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(f.data)), nil
}

type localFile struct {
	path string
	size int64
}

// OpenLocal returns a File backed by a path on disk. The content is read
// only when the file is validated or encoded.
func OpenLocal(path string) (File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	return &localFile{path: path, size: info.Size()}, nil
}

func (f *localFile) Name() string { return filepath.Base(f.path) }
func (f *localFile) Size() int64  { return f.size }

func (f *localFile) Open() (io.ReadCloser, error) {
	return os.Open(f.path)
}
