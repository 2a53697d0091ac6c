package assets

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// zstdExt marks files stored zstd-compressed; they are served under their
// name without the extension.
const zstdExt = ".zst"

// entry locates one file within a source.
type entry struct {
	path       string // filesystem path or archive member name
	compressed bool
}

// index maps normalized relative paths and base names to entries.
type index struct {
	paths map[string]entry
	bases map[string]entry
}

func newIndex() *index {
	return &index{
		paths: make(map[string]entry),
		bases: make(map[string]entry),
	}
}

// add registers a file under its relative name. The first file registered
// for a base name wins, except that an uncompressed copy replaces the
// compressed entry for the same key in both maps.
func (ix *index) add(rel, path string) {
	key := NormalizeKey(rel)
	e := entry{path: path}
	if strings.HasSuffix(key, zstdExt) {
		key = strings.TrimSuffix(key, zstdExt)
		e.compressed = true
	}
	prev, exists := ix.paths[key]
	if exists && e.compressed {
		return
	}
	ix.paths[key] = e
	base := baseKey(key)
	if b, ok := ix.bases[base]; !ok || (exists && b == prev) {
		ix.bases[base] = e
	}
}

func (ix *index) lookup(key string) (entry, bool) {
	if e, ok := ix.paths[key]; ok {
		return e, true
	}
	e, ok := ix.bases[key]
	return e, ok
}

func (ix *index) keys() []string {
	keys := make([]string, 0, len(ix.paths))
	for k := range ix.paths {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// DirSource serves files from a directory tree.
type DirSource struct {
	root string
	ix   *index
}

// OpenDir indexes the directory tree rooted at root.
func OpenDir(root string) (*DirSource, error) {
	ix := newIndex()
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		ix.add(filepath.ToSlash(rel), path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("indexing %s: %w", root, err)
	}
	return &DirSource{root: root, ix: ix}, nil
}

// Name returns the directory path.
func (s *DirSource) Name() string { return s.root }

// Keys returns the indexed file keys.
func (s *DirSource) Keys() []string { return s.ix.keys() }

// Read reads and, if needed, decompresses a file.
func (s *DirSource) Read(key string) ([]byte, bool, error) {
	e, ok := s.ix.lookup(key)
	if !ok {
		return nil, false, nil
	}
	data, err := os.ReadFile(e.path)
	if err != nil {
		return nil, false, err
	}
	if e.compressed {
		if data, err = decompress(data); err != nil {
			return nil, false, fmt.Errorf("%s: %w", e.path, err)
		}
	}
	return data, true, nil
}

// Close is a no-op for directories.
func (s *DirSource) Close() error { return nil }

// ZipSource serves files from a zip archive.
type ZipSource struct {
	path  string
	r     *zip.ReadCloser
	files map[string]*zip.File
	ix    *index
}

// OpenZip opens and indexes a zip archive.
func OpenZip(path string) (*ZipSource, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, err
	}

	s := &ZipSource{
		path:  path,
		r:     r,
		files: make(map[string]*zip.File, len(r.File)),
		ix:    newIndex(),
	}
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		s.files[f.Name] = f
		s.ix.add(f.Name, f.Name)
	}
	return s, nil
}

// Name returns the archive path.
func (s *ZipSource) Name() string { return s.path }

// Keys returns the indexed file keys.
func (s *ZipSource) Keys() []string { return s.ix.keys() }

// Read extracts and, if needed, decompresses a member.
func (s *ZipSource) Read(key string) ([]byte, bool, error) {
	e, ok := s.ix.lookup(key)
	if !ok {
		return nil, false, nil
	}
	rc, err := s.files[e.path].Open()
	if err != nil {
		return nil, false, fmt.Errorf("open %s: %w", e.path, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, false, fmt.Errorf("read %s: %w", e.path, err)
	}
	if e.compressed {
		if data, err = decompress(data); err != nil {
			return nil, false, fmt.Errorf("%s: %w", e.path, err)
		}
	}
	return data, true, nil
}

// Close closes the archive.
func (s *ZipSource) Close() error {
	return s.r.Close()
}

// decompress inflates a zstd stream.
func decompress(data []byte) ([]byte, error) {
	decoder, err := zstd.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("zstd decoder init: %w", err)
	}
	defer decoder.Close()

	out, err := io.ReadAll(decoder)
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	return out, nil
}
