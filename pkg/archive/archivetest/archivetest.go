// Package archivetest builds small archives for tests.
package archivetest

import (
	"archive/tar"
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// Compression selects the tar compression used by WriteTar.
type Compression int

const (
	None Compression = iota
	Gzip
	Xz
	Zstd
)

// Entry is one archive member. Directories and symlinks carry no content.
type Entry struct {
	Name    string
	Content string
	Symlink string // when set, the entry is a symlink to this target
	Dir     bool
}

// Files converts a name→content map into sorted entries.
func Files(files map[string]string) []Entry {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	entries := make([]Entry, 0, len(names))
	for _, name := range names {
		entries = append(entries, Entry{Name: name, Content: files[name]})
	}
	return entries
}

// WriteZip writes a zip archive at path.
func WriteZip(t testing.TB, path string, entries []Entry) {
	t.Helper()
	mkdirFor(t, path)

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating %s: %v", path, err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	for _, e := range entries {
		hdr := &zip.FileHeader{Name: e.Name, Method: zip.Deflate}
		switch {
		case e.Dir:
			hdr.Name = e.Name + "/"
			hdr.SetMode(os.ModeDir | 0o755)
		case e.Symlink != "":
			hdr.SetMode(os.ModeSymlink | 0o777)
		default:
			hdr.SetMode(0o644)
		}
		w, err := zw.CreateHeader(hdr)
		if err != nil {
			t.Fatalf("adding %s: %v", e.Name, err)
		}
		body := e.Content
		if e.Symlink != "" {
			body = e.Symlink
		}
		if !e.Dir {
			if _, err := io.WriteString(w, body); err != nil {
				t.Fatalf("writing %s: %v", e.Name, err)
			}
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("closing zip: %v", err)
	}
}

// WriteTar writes a tar archive at path with the given compression.
func WriteTar(t testing.TB, path string, c Compression, entries []Entry) {
	t.Helper()
	mkdirFor(t, path)

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating %s: %v", path, err)
	}
	defer f.Close()

	var w io.WriteCloser
	switch c {
	case Gzip:
		w = gzip.NewWriter(f)
	case Xz:
		xw, err := xz.NewWriter(f)
		if err != nil {
			t.Fatalf("xz writer: %v", err)
		}
		w = xw
	case Zstd:
		zw, err := zstd.NewWriter(f)
		if err != nil {
			t.Fatalf("zstd writer: %v", err)
		}
		w = zw
	default:
		w = nopCloser{f}
	}

	tw := tar.NewWriter(w)
	for _, e := range entries {
		hdr := &tar.Header{Name: e.Name, Mode: 0o644, Size: int64(len(e.Content)), Typeflag: tar.TypeReg}
		switch {
		case e.Dir:
			hdr = &tar.Header{Name: e.Name + "/", Mode: 0o755, Typeflag: tar.TypeDir}
		case e.Symlink != "":
			hdr = &tar.Header{Name: e.Name, Mode: 0o777, Typeflag: tar.TypeSymlink, Linkname: e.Symlink}
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("tar header %s: %v", e.Name, err)
		}
		if hdr.Typeflag == tar.TypeReg {
			if _, err := io.WriteString(tw, e.Content); err != nil {
				t.Fatalf("tar body %s: %v", e.Name, err)
			}
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("closing tar: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("closing compressor: %v", err)
	}
}

// WriteCorrupt writes bytes that no archive decoder accepts.
func WriteCorrupt(t testing.TB, path string) {
	t.Helper()
	mkdirFor(t, path)
	if err := os.WriteFile(path, []byte("this is not an archive\x00\x01\x02"), 0o644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

// Lines returns n newline-terminated lines of Python-ish text, 60 bytes each.
func Lines(n int) string {
	var b []byte
	for i := 0; i < n; i++ {
		b = append(b, "value_"...)
		b = append(b, byte('a'+i%26))
		b = append(b, " = "...)
		b = append(b, byte('0'+i%10))
		b = append(b, "  # padding to keep files above the minimum size\n"...)
	}
	return string(b)
}

func mkdirFor(t testing.TB, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }
