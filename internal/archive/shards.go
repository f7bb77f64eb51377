package archive

import (
	"archive/tar"
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// DiscoverShards returns the regular files under root matching pattern,
// sorted by file name.
func DiscoverShards(root, pattern string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("discover shards: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("discover shards: %s is not a directory", root)
	}
	matches, err := filepath.Glob(filepath.Join(root, pattern))
	if err != nil {
		return nil, fmt.Errorf("discover shards: %w", err)
	}
	shards := matches[:0]
	for _, m := range matches {
		if fi, err := os.Stat(m); err == nil && fi.Mode().IsRegular() {
			shards = append(shards, m)
		}
	}
	slices.SortFunc(shards, func(a, b string) int {
		if c := strings.Compare(filepath.Base(a), filepath.Base(b)); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	})
	return shards, nil
}

// shardReader is an open tar stream over one shard, gzip or plain.
type shardReader struct {
	file *os.File
	zr   *gzip.Reader
	tr   *tar.Reader
	// next is the ordinal of the header the following Next call returns.
	next int
}

func openShard(path string) (*shardReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	br := bufio.NewReaderSize(f, 64*1024)
	var src io.Reader = br
	sr := &shardReader{file: f}
	if magic, err := br.Peek(2); err == nil && magic[0] == 0x1f && magic[1] == 0x8b {
		zr, err := gzip.NewReader(br)
		if err != nil {
			f.Close()
			return nil, err
		}
		sr.zr = zr
		src = zr
	}
	sr.tr = tar.NewReader(src)
	return sr, nil
}

func (s *shardReader) Next() (*tar.Header, error) {
	hdr, err := s.tr.Next()
	if err == nil {
		s.next++
	}
	return hdr, err
}

func (s *shardReader) Close() error {
	if s == nil {
		return nil
	}
	if s.zr != nil {
		s.zr.Close()
	}
	return s.file.Close()
}
