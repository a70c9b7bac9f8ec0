package upload

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// File is a selected video held by a session. Release is called exactly
// once, when the session lets go of the handle.
type File interface {
	Name() string
	Open() (io.ReadCloser, error)
	Release() error
}

// SpooledFile is a File backed by a temporary copy on disk.
type SpooledFile struct {
	name string
	path string
	size int64
}

// Spool copies r into a temporary file under dir. An empty dir uses os.TempDir.
func Spool(dir, name string, r io.Reader) (*SpooledFile, error) {
	tmp, err := os.CreateTemp(dir, "console-upload-*"+filepath.Ext(name))
	if err != nil {
		return nil, fmt.Errorf("create spool file: %w", err)
	}

	n, err := io.Copy(tmp, r)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("spool %s: %w", name, err)
	}

	return &SpooledFile{name: filepath.Base(name), path: tmp.Name(), size: n}, nil
}

func (f *SpooledFile) Name() string { return f.name }

func (f *SpooledFile) Size() int64 { return f.size }

func (f *SpooledFile) Path() string { return f.path }

func (f *SpooledFile) Open() (io.ReadCloser, error) {
	return os.Open(f.path)
}

// Release removes the spool file. Readers opened before Release keep working
// on platforms that allow unlinking open files.
func (f *SpooledFile) Release() error {
	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
