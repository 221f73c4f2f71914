// Package selector decides which archive members count as top-level sources.
package selector

import (
	"fmt"
	"path"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"

	"github.com/praetorian-inc/shardex/pkg/types"
)

// Default size window, inclusive on both ends.
const (
	DefaultMinBytes int64 = 64
	DefaultMaxBytes int64 = 64 * 1024
)

// DefaultSuffixes is the source suffix set used when none is configured.
var DefaultSuffixes = []string{".py"}

// Config controls member selection.
type Config struct {
	MinBytes int64
	MaxBytes int64

	// Suffixes admitted as sources, compared case-sensitively.
	Suffixes []string

	// Include and Exclude are gitignore-style patterns matched against the
	// post-strip member path. With Include set, only matching members pass.
	Include []string
	Exclude []string

	// Allow, when non-nil, restricts admission to these emit paths.
	Allow map[string]struct{}
}

// Selector applies the selection rule to one archive at a time.
type Selector struct {
	config  Config
	include *gitignore.GitIgnore
	exclude *gitignore.GitIgnore
}

// New validates cfg and compiles its patterns.
func New(cfg Config) (*Selector, error) {
	if cfg.MinBytes < 0 || cfg.MaxBytes < 0 {
		return nil, fmt.Errorf("%w: size bounds must be non-negative", types.ErrInvalidConfig)
	}
	if cfg.MaxBytes < cfg.MinBytes {
		return nil, fmt.Errorf("%w: max bytes %d below min bytes %d", types.ErrInvalidConfig, cfg.MaxBytes, cfg.MinBytes)
	}
	if len(cfg.Suffixes) == 0 {
		cfg.Suffixes = DefaultSuffixes
	}

	s := &Selector{config: cfg}
	if len(cfg.Include) > 0 {
		s.include = gitignore.CompileIgnoreLines(cfg.Include...)
	}
	if len(cfg.Exclude) > 0 {
		s.exclude = gitignore.CompileIgnoreLines(cfg.Exclude...)
	}
	return s, nil
}

// Result is the outcome of selecting over one archive's members.
type Result struct {
	Prefix     string // stripped distribution root, empty when not stripped
	Selected   []types.SelectedMember
	Rejections []types.Rejection
}

// Select classifies every member of the archive described by desc.
func (s *Selector) Select(desc types.ArchiveDescriptor, members []types.MemberEntry) Result {
	res := Result{Prefix: DistributionRoot(desc, members)}

	for _, m := range members {
		rel := StripRoot(m.Path, res.Prefix)
		emitPath := EmitPath(desc, rel)

		if reason, ok := s.reject(m, rel, emitPath); ok {
			res.Rejections = append(res.Rejections, types.Rejection{Member: m, Reason: reason})
			continue
		}
		res.Selected = append(res.Selected, types.SelectedMember{
			MemberEntry: m,
			Reason:      types.ReasonTopLevelSource,
			EmitPath:    emitPath,
		})
	}
	return res
}

// reject returns the first failing rule for a member, in documented order.
func (s *Selector) reject(m types.MemberEntry, rel, emitPath string) (types.Reason, bool) {
	switch {
	case !m.IsRegular:
		return types.ReasonNotRegular, true
	case !safePath(rel):
		return types.ReasonUnsafePath, true
	case strings.Count(rel, "/") > 1:
		return types.ReasonTooDeep, true
	case !s.hasSourceSuffix(rel):
		return types.ReasonWrongSuffix, true
	case s.include != nil && !s.include.MatchesPath(rel):
		return types.ReasonExcluded, true
	case s.exclude != nil && s.exclude.MatchesPath(rel):
		return types.ReasonExcluded, true
	case m.Size < s.config.MinBytes:
		return types.ReasonTooSmall, true
	case m.Size > s.config.MaxBytes:
		return types.ReasonTooLarge, true
	}
	if s.config.Allow != nil {
		if _, ok := s.config.Allow[emitPath]; !ok {
			return types.ReasonFiltered, true
		}
	}
	return "", false
}

// safePath rejects names that would corrupt a delimiter line or climb out of
// the archive when a stream is split back into files.
func safePath(rel string) bool {
	if rel == "" || strings.ContainsAny(rel, "\r\n") {
		return false
	}
	for _, seg := range strings.Split(rel, "/") {
		if seg == ".." || seg == "." || seg == "" {
			return false
		}
	}
	return true
}

func (s *Selector) hasSourceSuffix(rel string) bool {
	ext := path.Ext(rel)
	for _, suffix := range s.config.Suffixes {
		if ext == suffix {
			return true
		}
	}
	return false
}

// MaxBytes is the configured upper size bound.
func (s *Selector) MaxBytes() int64 {
	return s.config.MaxBytes
}

// CommonRoot returns the first path segment shared by every member, or ""
// when any member sits at the top level or the first segments differ.
func CommonRoot(members []types.MemberEntry) string {
	if len(members) == 0 {
		return ""
	}
	var root string
	for i, m := range members {
		first, _, found := strings.Cut(m.Path, "/")
		if !found || first == "" {
			return ""
		}
		if i == 0 {
			root = first
		} else if first != root {
			return ""
		}
	}
	return root
}

// DistributionRoot returns the prefix to strip from desc's members: the
// common first segment, but only when it names the distribution itself
// (sdists unpack into "<name>-<version>/"). Wheels keep their import roots.
func DistributionRoot(desc types.ArchiveDescriptor, members []types.MemberEntry) string {
	root := CommonRoot(members)
	if root == "" {
		return ""
	}
	hint := desc.DistributionHint
	if hint == "" {
		hint = types.DistributionHint(desc.Basename())
	}
	if !strings.EqualFold(root, hint) {
		return ""
	}
	return root
}

// StripRoot removes prefix and its separator from p.
func StripRoot(p, prefix string) string {
	if prefix == "" {
		return p
	}
	return strings.TrimPrefix(p, prefix+"/")
}

// EmitPath builds the provenance-preserving path printed by the emitter.
func EmitPath(desc types.ArchiveDescriptor, rel string) string {
	return "packages/" + desc.Basename() + "/" + rel
}
