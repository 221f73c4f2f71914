// Package sampler caps how many selected members each archive contributes.
package sampler

import (
	"fmt"
	"sort"

	"github.com/praetorian-inc/shardex/pkg/types"
)

// DefaultPerArchive is the per-archive cap used when none is configured.
const DefaultPerArchive = 1

// Sampler admits members deterministically. It remembers every emit path it
// has admitted during a run, so one Sampler must not be shared across runs.
type Sampler struct {
	perArchive int
	admitted   map[string]struct{}
}

// New returns a Sampler admitting at most perArchive members from each
// archive. Zero means no per-archive cap.
func New(perArchive int) (*Sampler, error) {
	if perArchive < 0 {
		return nil, fmt.Errorf("%w: per-archive cap must be >= 0, got %d", types.ErrInvalidConfig, perArchive)
	}
	return &Sampler{
		perArchive: perArchive,
		admitted:   make(map[string]struct{}),
	}, nil
}

// Sample orders selected by emit path and splits it into admitted members and
// rejections (duplicate_path, then over_cap). The input slice is not modified.
func (s *Sampler) Sample(selected []types.SelectedMember) ([]types.SelectedMember, []types.Rejection) {
	ordered := make([]types.SelectedMember, len(selected))
	copy(ordered, selected)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].EmitPath < ordered[j].EmitPath
	})

	var admitted []types.SelectedMember
	var rejected []types.Rejection
	for _, m := range ordered {
		if _, dup := s.admitted[m.EmitPath]; dup {
			rejected = append(rejected, types.Rejection{Member: m.MemberEntry, Reason: types.ReasonDuplicatePath})
			continue
		}
		if s.perArchive > 0 && len(admitted) >= s.perArchive {
			rejected = append(rejected, types.Rejection{Member: m.MemberEntry, Reason: types.ReasonOverCap})
			continue
		}
		s.admitted[m.EmitPath] = struct{}{}
		admitted = append(admitted, m)
	}
	return admitted, rejected
}

// Release forgets an admitted path whose unit was never emitted, so that a
// later archive may still supply it.
func (s *Sampler) Release(emitPath string) {
	delete(s.admitted, emitPath)
}
