// Package snapshot ships the dat file to a backup location and restores
// it at cold start. Backends implement Snapshotter; which one is used is
// selected by URL.
package snapshot

import (
	"io"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

type Snapshotter interface {
	Load() (io.ReadCloser, error)
	Save(io.ReadCloser) error
}

var schemes = []string{
	"file://",
	"s3://",
}

func hasValidScheme(url string) bool {
	for _, s := range schemes {
		if strings.HasPrefix(url, s) {
			return true
		}
	}
	return false
}

type Type int

const (
	FileType Type = iota
	S3Type
)

type URL struct {
	Type   Type
	Bucket string
	Path   string
}

var (
	ErrInvalidScheme  = errors.New("invalid scheme")
	ErrCannotParseURL = errors.New("cannot parse url")
)

// ParseSnapshotBackupURL deconstructs a uri into a type, a bucket and a
// path. Example inputs and outputs:
//   file://file            -> FileType, path "file"
//   s3://bucket            -> S3Type, bucket "bucket", path "butterfly.dat"
//   s3://bucket/a/b.dat    -> S3Type, bucket "bucket", path "a/b.dat"
func ParseSnapshotBackupURL(s string) (*URL, error) {
	if !hasValidScheme(s) {
		return nil, errors.Wrapf(ErrInvalidScheme, "url does not specify valid scheme: %#v", s)
	}
	u, err := url.Parse(s)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(u.Scheme) {
	case "file":
		return &URL{
			Type: FileType,
			Path: filepath.Join(u.Host, u.Path),
		}, nil
	case "s3":
		if u.Path == "" {
			u.Path = "butterfly.dat"
		}
		return &URL{
			Type:   S3Type,
			Bucket: u.Host,
			Path:   strings.TrimPrefix(u.Path, "/"),
		}, nil
	}
	return nil, errors.Wrap(ErrCannotParseURL, s)
}

// New returns the snapshotter for a backup URL.
func New(s string) (Snapshotter, error) {
	u, err := ParseSnapshotBackupURL(s)
	if err != nil {
		return nil, err
	}
	switch u.Type {
	case FileType:
		return NewFileSnapshotter(u.Path)
	case S3Type:
		return NewAmazonSnapshotter(&AmazonConfig{
			Bucket: u.Bucket,
			Key:    u.Path,
		})
	}
	return nil, errors.Errorf("unsupported snapshot url format: %#v", s)
}
