package archive

import (
	"archive/tar"
	"bufio"
	"bytes"
	"compress/bzip2"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"

	"github.com/praetorian-inc/shardex/pkg/types"
)

// codec is the compression layer wrapped around a tar stream.
type codec string

const (
	codecNone  codec = "none"
	codecGzip  codec = "gzip"
	codecBzip2 codec = "bzip2"
	codecXz    codec = "xz"
	codecZstd  codec = "zstd"
)

var magics = []struct {
	prefix []byte
	codec  codec
}{
	{[]byte{0x1f, 0x8b}, codecGzip},
	{[]byte("BZh"), codecBzip2},
	{[]byte{0xfd, '7', 'z', 'X', 'Z', 0x00}, codecXz},
	{[]byte{0x28, 0xb5, 0x2f, 0xfd}, codecZstd},
}

// sniffCodec picks the decompressor from the stream's magic bytes, so a
// mislabelled ".tar" that is really gzip still opens.
func sniffCodec(head []byte) codec {
	for _, m := range magics {
		if bytes.HasPrefix(head, m.prefix) {
			return m.codec
		}
	}
	return codecNone
}

// tarReader reads sdists and other tar-family archives. Tar streams have no
// central directory, so Open rescans the stream up to the requested member.
type tarReader struct {
	desc  types.ArchiveDescriptor
	codec codec
	index *memberIndex[struct{}]
}

func openTar(desc types.ArchiveDescriptor) (Reader, error) {
	t := &tarReader{desc: desc, index: newMemberIndex[struct{}]()}

	stream, err := t.stream()
	if err != nil {
		return nil, unreadable(desc, err)
	}
	defer stream.Close()

	tr := tar.NewReader(stream)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, unreadable(desc, err)
		}
		if hdr.Typeflag == tar.TypeDir || hdr.FileInfo().IsDir() {
			continue
		}
		// PAX/GNU metadata records are consumed by archive/tar; anything
		// else that is not a plain file is reported as non-regular.
		t.index.add(types.MemberEntry{
			Archive:   desc.RelPath,
			Path:      types.NormalizeMemberPath(hdr.Name),
			Size:      hdr.Size,
			IsRegular: hdr.Typeflag == tar.TypeReg,
		}, struct{}{})
	}

	return t, nil
}

func (t *tarReader) Members() ([]types.MemberEntry, error) {
	return t.index.members(), nil
}

func (t *tarReader) Open(member types.MemberEntry) (io.ReadCloser, error) {
	if _, ok := t.index.entries[member.Path]; !ok {
		return nil, fmt.Errorf("member not found in %s: %s", t.desc.RelPath, member.Path)
	}

	stream, err := t.stream()
	if err != nil {
		return nil, fmt.Errorf("reopening %s: %w", t.desc.RelPath, err)
	}

	tr := tar.NewReader(stream)
	for {
		hdr, err := tr.Next()
		if err != nil {
			stream.Close()
			if errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("member vanished from %s: %s", t.desc.RelPath, member.Path)
			}
			return nil, fmt.Errorf("scanning %s: %w", t.desc.RelPath, err)
		}
		if types.NormalizeMemberPath(hdr.Name) == member.Path && hdr.Typeflag != tar.TypeDir {
			return &tarMember{Reader: tr, stream: stream}, nil
		}
	}
}

// Close is a no-op: the reader holds no handle between calls.
func (t *tarReader) Close() error {
	return nil
}

// tarMember ties a member's reader to the stream it was found in.
type tarMember struct {
	io.Reader
	stream io.Closer
}

func (m *tarMember) Close() error {
	return m.stream.Close()
}

// decompressedStream owns the archive file and its decompressor.
type decompressedStream struct {
	io.Reader
	closers []func() error
}

func (d *decompressedStream) Close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// stream opens the archive file and wraps it in the detected decompressor.
func (t *tarReader) stream() (*decompressedStream, error) {
	f, err := os.Open(t.desc.Path)
	if err != nil {
		return nil, err
	}
	br := bufio.NewReader(f)
	s := &decompressedStream{closers: []func() error{f.Close}}

	if t.codec == "" {
		head, _ := br.Peek(6)
		t.codec = sniffCodec(head)
	}

	switch t.codec {
	case codecGzip:
		zr, err := gzip.NewReader(br)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("gzip: %w", err)
		}
		s.Reader = zr
		s.closers = append(s.closers, zr.Close)
	case codecBzip2:
		s.Reader = bzip2.NewReader(br)
	case codecXz:
		xr, err := xz.NewReader(br)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("xz: %w", err)
		}
		s.Reader = xr
	case codecZstd:
		zr, err := zstd.NewReader(br)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("zstd: %w", err)
		}
		s.Reader = zr
		s.closers = append(s.closers, func() error { zr.Close(); return nil })
	default:
		s.Reader = br
	}

	return s, nil
}
