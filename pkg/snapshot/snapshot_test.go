package snapshot

import (
	"bytes"
	"io/ioutil"
	"path/filepath"
	"reflect"
	"testing"
)

func TestParseSnapshotBackupURL(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    *URL
		wantErr bool
	}{
		{
			name:    "empty",
			in:      "",
			wantErr: true,
		},
		{
			name: "file (empty)",
			in:   "file://",
			want: &URL{Type: FileType, Path: ""},
		},
		{
			name: "file",
			in:   "file://abc",
			want: &URL{Type: FileType, Path: "abc"},
		},
		{
			name: "file absolute",
			in:   "file:///var/lib/butterfly/butterfly.dat",
			want: &URL{Type: FileType, Path: "/var/lib/butterfly/butterfly.dat"},
		},
		{
			name: "s3 bucket only",
			in:   "s3://abc",
			want: &URL{Type: S3Type, Bucket: "abc", Path: "butterfly.dat"},
		},
		{
			name: "s3 bucket and key",
			in:   "s3://abc/cluster1/state.dat",
			want: &URL{Type: S3Type, Bucket: "abc", Path: "cluster1/state.dat"},
		},
		{
			name:    "unknown scheme",
			in:      "gs://abc",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSnapshotBackupURL(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseSnapshotBackupURL() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseSnapshotBackupURL() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestFileSnapshotterSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backup", "butterfly.dat")
	fs, err := NewFileSnapshotter(path)
	if err != nil {
		t.Fatal(err)
	}
	want := []byte("snapshot-bytes")
	if err := fs.Save(ioutil.NopCloser(bytes.NewReader(want))); err != nil {
		t.Fatal(err)
	}
	r, err := fs.Load()
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	got, err := ioutil.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(want, got) {
		t.Fatalf("unexpected snapshot contents: %q", got)
	}
}

func TestFileSnapshotterOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "butterfly.dat")
	fs, err := NewFileSnapshotter(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, contents := range []string{"first", "second"} {
		if err := fs.Save(ioutil.NopCloser(bytes.NewReader([]byte(contents)))); err != nil {
			t.Fatal(err)
		}
	}
	data, err := ioutil.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "second" {
		t.Fatalf("unexpected snapshot contents: %q", data)
	}
}
