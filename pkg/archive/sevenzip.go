package archive

import (
	"fmt"
	"io"

	"github.com/bodgit/sevenzip"

	"github.com/praetorian-inc/shardex/pkg/types"
)

type sevenZipReader struct {
	desc  types.ArchiveDescriptor
	rc    *sevenzip.ReadCloser
	index *memberIndex[*sevenzip.File]
}

func openSevenZip(desc types.ArchiveDescriptor) (Reader, error) {
	rc, err := sevenzip.OpenReader(desc.Path)
	if err != nil {
		return nil, unreadable(desc, err)
	}

	index := newMemberIndex[*sevenzip.File]()
	for _, f := range rc.File {
		info := f.FileInfo()
		if info.IsDir() {
			continue
		}
		index.add(types.MemberEntry{
			Archive:   desc.RelPath,
			Path:      types.NormalizeMemberPath(f.Name),
			Size:      info.Size(),
			IsRegular: info.Mode().IsRegular(),
		}, f)
	}

	return &sevenZipReader{desc: desc, rc: rc, index: index}, nil
}

func (s *sevenZipReader) Members() ([]types.MemberEntry, error) {
	return s.index.members(), nil
}

func (s *sevenZipReader) Open(member types.MemberEntry) (io.ReadCloser, error) {
	f, ok := s.index.entries[member.Path]
	if !ok {
		return nil, fmt.Errorf("member not found in %s: %s", s.desc.RelPath, member.Path)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("opening %s in %s: %w", member.Path, s.desc.RelPath, err)
	}
	return rc, nil
}

func (s *sevenZipReader) Close() error {
	return s.rc.Close()
}
