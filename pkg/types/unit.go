package types

// DecodeStatus reports how an extracted member's bytes became text.
type DecodeStatus string

const (
	DecodeOK       DecodeStatus = "ok"
	DecodeReplaced DecodeStatus = "replaced"
	DecodeSkipped  DecodeStatus = "skipped"
)

// Emittable reports whether the emitter writes units with this status.
func (s DecodeStatus) Emittable() bool {
	return s == DecodeOK || s == DecodeReplaced
}

// ExtractedUnit is the decoded text of one admitted member.
// It is written once and consumed exactly once by the emitter.
type ExtractedUnit struct {
	EmitPath  string
	Text      []byte // UTF-8
	LineCount int
	Status    DecodeStatus
}

// UnitRecord describes an emitted unit in the run manifest.
type UnitRecord struct {
	EmitPath string            `json:"path"`
	Source   ArchiveProvenance `json:"source"`
	Lines    int               `json:"lines"` // includes the delimiter line
	Status   DecodeStatus      `json:"decode_status"`
	BlobID   BlobID            `json:"blob_id"`
}
