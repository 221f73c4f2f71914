package types

import "fmt"

// ArchiveProvenance tracks which archive member a unit was extracted from.
type ArchiveProvenance struct {
	ArchivePath string `json:"archive"` // archive path relative to the enumeration root
	MemberPath  string `json:"member"`  // path within the archive (e.g., "pkg/util.py")
}

// Kind returns "archive".
func (a ArchiveProvenance) Kind() string {
	return "archive"
}

// Path returns the archive path with member path.
func (a ArchiveProvenance) Path() string {
	return fmt.Sprintf("%s:%s", a.ArchivePath, a.MemberPath)
}
