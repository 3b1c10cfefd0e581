package snapshot

import (
	"io"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// FileSnapshotter copies the dat file to another path on this host. The
// same atomic-rename discipline as the primary file applies: a failed
// save never leaves a partial target.
type FileSnapshotter struct {
	file string
}

func NewFileSnapshotter(path string) (*FileSnapshotter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil && !os.IsExist(err) {
		return nil, errors.Wrapf(err, "cannot create snapshot directory: %#v", filepath.Dir(path))
	}
	return &FileSnapshotter{file: path}, nil
}

func (fs *FileSnapshotter) Load() (io.ReadCloser, error) {
	return os.Open(fs.file)
}

func (fs *FileSnapshotter) Save(r io.ReadCloser) error {
	defer r.Close()
	tmp, err := ioutil.TempFile(filepath.Dir(fs.file), filepath.Base(fs.file)+".tmp")
	if err != nil {
		return errors.Wrapf(err, "cannot create temp file for: %#v", fs.file)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), fs.file)
}
