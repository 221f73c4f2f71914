package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"strings"

	"github.com/praetorian-inc/shardex/pkg/types"
)

// zipReader reads wheels and plain zip archives.
type zipReader struct {
	desc  types.ArchiveDescriptor
	rc    *zip.ReadCloser
	index *memberIndex[*zip.File]
}

func openZip(desc types.ArchiveDescriptor) (Reader, error) {
	rc, err := zip.OpenReader(desc.Path)
	if err != nil {
		return nil, unreadable(desc, err)
	}

	index := newMemberIndex[*zip.File]()
	for _, f := range rc.File {
		info := f.FileInfo()
		if info.IsDir() || strings.HasSuffix(f.Name, "/") {
			continue
		}
		index.add(types.MemberEntry{
			Archive:   desc.RelPath,
			Path:      types.NormalizeMemberPath(f.Name),
			Size:      int64(f.UncompressedSize64),
			IsRegular: info.Mode().IsRegular(),
		}, f)
	}

	return &zipReader{desc: desc, rc: rc, index: index}, nil
}

func (z *zipReader) Members() ([]types.MemberEntry, error) {
	return z.index.members(), nil
}

func (z *zipReader) Open(member types.MemberEntry) (io.ReadCloser, error) {
	f, ok := z.index.entries[member.Path]
	if !ok {
		return nil, fmt.Errorf("member not found in %s: %s", z.desc.RelPath, member.Path)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("opening %s in %s: %w", member.Path, z.desc.RelPath, err)
	}
	return rc, nil
}

func (z *zipReader) Close() error {
	return z.rc.Close()
}
