package types

// RunManifest summarises what a run emitted and what it rejected.
// Counters are updated only by the run controller.
type RunManifest struct {
	RunID               string         `json:"run_id,omitempty"`
	ArchivesSeen        int            `json:"archives_seen"`
	ArchivesEmittedFrom int            `json:"archives_emitted_from"`
	MembersEmitted      int            `json:"members_emitted"`
	TotalLinesEmitted   int            `json:"total_lines_emitted"`
	Truncated           bool           `json:"truncated"`
	Rejections          map[Reason]int `json:"rejections"`
	ArchiveErrors       map[Reason]int `json:"archive_errors"`
	DecodeReplaced      int            `json:"decode_replaced"`
	Candidates          int            `json:"candidates_considered"`
	Units               []UnitRecord   `json:"units"`
	Error               string         `json:"error,omitempty"`
}

// NewRunManifest returns an empty manifest with initialised maps so that an
// empty run still serialises every field.
func NewRunManifest(runID string) *RunManifest {
	return &RunManifest{
		RunID:         runID,
		Rejections:    make(map[Reason]int),
		ArchiveErrors: make(map[Reason]int),
		Units:         []UnitRecord{},
	}
}

// Reject counts a considered member under reason.
func (m *RunManifest) Reject(reason Reason) {
	m.Candidates++
	m.Rejections[reason]++
}

// ArchiveFailed counts an archive-level failure.
func (m *RunManifest) ArchiveFailed(reason Reason) {
	m.ArchiveErrors[reason]++
}

// Emitted records an emitted unit. lines includes the delimiter line.
func (m *RunManifest) Emitted(rec UnitRecord, lines int) {
	m.Candidates++
	m.MembersEmitted++
	m.TotalLinesEmitted += lines
	if rec.Status == DecodeReplaced {
		m.DecodeReplaced++
	}
	m.Units = append(m.Units, rec)
}

// RejectionTotal sums all member rejections.
func (m *RunManifest) RejectionTotal() int {
	total := 0
	for _, n := range m.Rejections {
		total += n
	}
	return total
}

// Balanced reports whether every considered member is accounted for as
// either emitted or rejected.
func (m *RunManifest) Balanced() bool {
	return m.RejectionTotal()+m.MembersEmitted == m.Candidates
}

// EmitPaths returns the set of unit paths recorded in the manifest.
func (m *RunManifest) EmitPaths() map[string]struct{} {
	paths := make(map[string]struct{}, len(m.Units))
	for _, u := range m.Units {
		paths[u.EmitPath] = struct{}{}
	}
	return paths
}
