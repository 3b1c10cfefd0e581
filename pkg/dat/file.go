package dat

import (
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/fleetops/butterfly/pkg/rumor"
)

// renameFile is swappable so tests can fail the final step of a write.
var renameFile = os.Rename

// DatFile reads and writes the rumor snapshot at a fixed path.
type DatFile struct {
	path string
}

func New(path string) (*DatFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil && !os.IsExist(err) {
		return nil, errors.Wrapf(err, "cannot create dat file directory: %#v", filepath.Dir(path))
	}
	return &DatFile{path: path}, nil
}

func (f *DatFile) Path() string { return f.path }

// Read loads and parses the file. A missing file is not an error; it
// returns empty contents so a first boot starts clean.
func (f *DatFile) Read() (*Contents, error) {
	data, err := ioutil.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Contents{}, nil
		}
		return nil, errors.Wrapf(err, "cannot read dat file: %#v", f.path)
	}
	return Unmarshal(data)
}

// Write persists the state with atomic-rename discipline: the bytes go
// to a sibling temp file which is fsynced and renamed over the target.
// On any failure the target keeps its prior contents.
func (f *DatFile) Write(st *rumor.State) error {
	data, err := Marshal(st)
	if err != nil {
		return err
	}
	return f.WriteBytes(data)
}

// WriteBytes persists already-marshaled state with the same atomicity as
// Write.
func (f *DatFile) WriteBytes(data []byte) error {
	tmp, err := ioutil.TempFile(filepath.Dir(f.path), filepath.Base(f.path)+".tmp")
	if err != nil {
		return errors.Wrapf(err, "cannot create temp file for: %#v", f.path)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "cannot write temp file: %#v", tmp.Name())
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "cannot sync temp file: %#v", tmp.Name())
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "cannot close temp file: %#v", tmp.Name())
	}
	if err := renameFile(tmp.Name(), f.path); err != nil {
		return errors.Wrapf(err, "cannot rename temp file over: %#v", f.path)
	}
	return nil
}
