package types

import (
	"path"
	"strings"
)

// ArchiveKind identifies the container format of a distribution archive.
type ArchiveKind string

const (
	KindZip      ArchiveKind = "zip"
	KindTar      ArchiveKind = "tar"
	KindSevenZip ArchiveKind = "7z"
)

// archiveSuffixes maps recognised filename suffixes to archive kinds.
// Longer suffixes must be checked first (".tar.gz" before ".gz" style clashes).
var archiveSuffixes = []struct {
	suffix string
	kind   ArchiveKind
}{
	{".tar.gz", KindTar},
	{".tar.bz2", KindTar},
	{".tar.xz", KindTar},
	{".tar.zst", KindTar},
	{".tgz", KindTar},
	{".txz", KindTar},
	{".tar", KindTar},
	{".whl", KindZip},
	{".zip", KindZip},
	{".7z", KindSevenZip},
}

// ArchiveDescriptor describes one distribution archive found by an enumerator.
type ArchiveDescriptor struct {
	Path             string      // local path, or object key for remote sources
	RelPath          string      // slash-separated path relative to the enumeration root
	Kind             ArchiveKind
	DistributionHint string // advisory, derived from the filename
	Size             int64
}

// Basename returns the archive's file name.
func (d ArchiveDescriptor) Basename() string {
	return path.Base(strings.ReplaceAll(d.RelPath, "\\", "/"))
}

// ArchiveKindOf returns the archive kind for a filename, or false when the
// suffix is not a recognised archive format.
func ArchiveKindOf(name string) (ArchiveKind, bool) {
	_, kind, ok := splitArchiveSuffix(name)
	return kind, ok
}

// ArchiveSuffix returns the recognised archive suffix of name (e.g. ".tar.gz").
func ArchiveSuffix(name string) string {
	suffix, _, _ := splitArchiveSuffix(name)
	return suffix
}

func splitArchiveSuffix(name string) (string, ArchiveKind, bool) {
	lower := strings.ToLower(name)
	for _, s := range archiveSuffixes {
		if strings.HasSuffix(lower, s.suffix) && len(lower) > len(s.suffix) {
			return s.suffix, s.kind, true
		}
	}
	return "", "", false
}

// DistributionHint derives the advisory "name-version" hint from an archive
// filename. Wheels encode name and version as the first two dash-separated
// fields; sdists and plain zips use the whole stem.
func DistributionHint(name string) string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	suffix := ArchiveSuffix(base)
	stem := base[:len(base)-len(suffix)]

	if strings.EqualFold(suffix, ".whl") {
		parts := strings.SplitN(stem, "-", 3)
		if len(parts) >= 2 {
			return parts[0] + "-" + parts[1]
		}
	}
	return stem
}

// MemberEntry is a single entry inside an archive as recorded by the archive.
type MemberEntry struct {
	Archive   string // ArchiveDescriptor.RelPath of the owning archive
	Path      string // forward slashes, no leading slash
	Size      int64
	IsRegular bool
}

// NormalizeMemberPath converts a recorded member name to forward slashes and
// drops leading "./" and "/" segments.
func NormalizeMemberPath(name string) string {
	p := strings.ReplaceAll(name, "\\", "/")
	for {
		switch {
		case strings.HasPrefix(p, "./"):
			p = p[2:]
		case strings.HasPrefix(p, "/"):
			p = p[1:]
		default:
			return p
		}
	}
}
