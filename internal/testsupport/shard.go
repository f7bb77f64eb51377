package testsupport

import (
	"archive/tar"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
)

// Shard builds a tar archive member by member, mirroring how the dataset
// shards list a directory entry before the files inside it.
type Shard struct {
	t    testing.TB
	file *os.File
	gz   *gzip.Writer
	tw   *tar.Writer
}

// NewShard creates a shard at path, gzip-compressed when compress is set.
func NewShard(t testing.TB, path string, compress bool) *Shard {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for shard: %v", err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create shard: %v", err)
	}
	s := &Shard{t: t, file: f}
	var w io.Writer = f
	if compress {
		s.gz = gzip.NewWriter(f)
		w = s.gz
	}
	s.tw = tar.NewWriter(w)
	return s
}

// Dir appends a directory member.
func (s *Shard) Dir(name string) *Shard {
	s.t.Helper()
	hdr := &tar.Header{Name: name + "/", Typeflag: tar.TypeDir, Mode: 0o755, ModTime: time.Unix(0, 0)}
	if err := s.tw.WriteHeader(hdr); err != nil {
		s.t.Fatalf("write dir header %s: %v", name, err)
	}
	return s
}

// File appends a regular file member.
func (s *Shard) File(name string, data []byte) *Shard {
	s.t.Helper()
	hdr := &tar.Header{Name: name, Typeflag: tar.TypeReg, Mode: 0o644, Size: int64(len(data)), ModTime: time.Unix(0, 0)}
	if err := s.tw.WriteHeader(hdr); err != nil {
		s.t.Fatalf("write file header %s: %v", name, err)
	}
	if _, err := s.tw.Write(data); err != nil {
		s.t.Fatalf("write file body %s: %v", name, err)
	}
	return s
}

// Close flushes the archive.
func (s *Shard) Close() {
	s.t.Helper()
	if err := s.tw.Close(); err != nil {
		s.t.Fatalf("close tar: %v", err)
	}
	if s.gz != nil {
		if err := s.gz.Close(); err != nil {
			s.t.Fatalf("close gzip: %v", err)
		}
	}
	if err := s.file.Close(); err != nil {
		s.t.Fatalf("close shard: %v", err)
	}
}
