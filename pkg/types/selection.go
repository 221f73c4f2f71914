package types

// Reason explains why a member was admitted or rejected.
type Reason string

// Admission reason.
const ReasonTopLevelSource Reason = "top_level_source"

// Member rejection reasons. Each considered member is emitted or counted
// under exactly one of these.
const (
	ReasonNotRegular     Reason = "not_regular"
	ReasonUnsafePath     Reason = "unsafe_path"
	ReasonTooDeep        Reason = "too_deep"
	ReasonWrongSuffix    Reason = "wrong_suffix"
	ReasonExcluded       Reason = "excluded"
	ReasonTooSmall       Reason = "too_small"
	ReasonTooLarge       Reason = "too_large"
	ReasonFiltered       Reason = "filtered"
	ReasonDuplicatePath  Reason = "duplicate_path"
	ReasonOverCap        Reason = "over_cap"
	ReasonBudget         Reason = "budget"
	ReasonCancelled      Reason = "cancelled"
	ReasonReadError      Reason = "read_error"
	ReasonDecodeSkipped  Reason = "decode_skipped"
	ReasonAlreadyIndexed Reason = "already_indexed"
)

// Archive-level failure reasons.
const ReasonArchiveUnreadable Reason = "archive_unreadable"

// SelectedMember is a member that passed selection, annotated with the path
// the emitter prints after "===".
type SelectedMember struct {
	MemberEntry
	Reason   Reason
	EmitPath string
}

// Rejection pairs a member with the reason it was not emitted.
type Rejection struct {
	Member MemberEntry
	Reason Reason
}
