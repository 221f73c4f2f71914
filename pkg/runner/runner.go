// Package runner drives one extraction run: enumerate archives, select and
// sample their members, decode the admitted ones and emit them as a stream.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/praetorian-inc/shardex/pkg/archive"
	"github.com/praetorian-inc/shardex/pkg/decode"
	"github.com/praetorian-inc/shardex/pkg/emit"
	"github.com/praetorian-inc/shardex/pkg/enum"
	"github.com/praetorian-inc/shardex/pkg/sampler"
	"github.com/praetorian-inc/shardex/pkg/selector"
	"github.com/praetorian-inc/shardex/pkg/store"
	"github.com/praetorian-inc/shardex/pkg/types"
)

// Index persists emitted units beyond the stream.
// *datastore.Datastore implements it.
type Index interface {
	AddRun(run *store.Run) error
	AddUnit(runID string, seq int, rec types.UnitRecord, text []byte) error
	UnitExists(id types.BlobID, exceptRun string) (bool, error)
}

// errStop ends enumeration once a budget stopped a further unit.
var errStop = errors.New("budget exhausted")

// Run executes one extraction run and writes the unit stream to out.
//
// The manifest is returned whenever the run started, including on failure:
// fatal errors (input, output, index) and cancellation come back alongside a
// manifest with Truncated set and, for fatal errors, Error filled in. That
// includes roots whose enumerator cannot be built.
// Invalid configuration returns a nil manifest.
func Run(ctx context.Context, cfg Config, out io.Writer) (*types.RunManifest, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	sel, err := selector.New(cfg.Selector)
	if err != nil {
		return nil, err
	}
	smp, err := sampler.New(cfg.PerArchive)
	if err != nil {
		return nil, err
	}

	log := cfg.Logger
	if log == nil {
		log = nopLogger{}
	}

	runID := cfg.RunID
	if runID == "" && cfg.Index != nil {
		runID = uuid.NewString()
	}

	r := &run{
		cfg:      cfg,
		log:      log,
		selector: sel,
		sampler:  smp,
		writer:   emit.NewWriter(out),
		manifest: types.NewRunManifest(runID),
		record: &store.Run{
			ID:        runID,
			StartedAt: time.Now().UTC(),
			Root:      cfg.Enum.Root,
		},
	}

	enumerator, err := r.enumerator()
	if err != nil {
		return r.fail(err)
	}
	return r.execute(ctx, enumerator)
}

type run struct {
	cfg      Config
	log      Logger
	selector *selector.Selector
	sampler  *sampler.Sampler
	writer   *emit.Writer
	manifest *types.RunManifest
	record   *store.Run
	seq      int
}

// enumerator builds the archive source: cfg.Enumerator, every entry of
// cfg.Roots combined in order, or cfg.Enum.
func (r *run) enumerator() (enum.Enumerator, error) {
	if r.cfg.Enumerator != nil {
		return r.cfg.Enumerator, nil
	}
	roots := r.cfg.Roots
	if len(roots) == 0 {
		roots = []enum.Config{r.cfg.Enum}
	}

	enumerators := make([]enum.Enumerator, 0, len(roots))
	for _, ec := range roots {
		if ec.OnSkip == nil {
			ec.OnSkip = func(path string, err error) {
				r.log.Warnf("skipping %s: %v", path, err)
			}
		}
		e, err := enum.New(ec)
		if err != nil {
			return nil, fmt.Errorf("root %s: %w", ec.Root, err)
		}
		enumerators = append(enumerators, e)
	}
	if len(enumerators) == 1 {
		return enumerators[0], nil
	}
	return enum.NewCombinedEnumerator(enumerators...), nil
}

func (r *run) execute(ctx context.Context, enumerator enum.Enumerator) (*types.RunManifest, error) {
	if r.cfg.Index != nil {
		r.record.Manifest = types.NewRunManifest(r.record.ID)
		if err := r.cfg.Index.AddRun(r.record); err != nil {
			return r.fail(fmt.Errorf("indexing run: %w", err))
		}
	}

	err := enumerator.Enumerate(ctx, func(desc types.ArchiveDescriptor) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if r.cfg.MaxArchives > 0 && r.manifest.ArchivesSeen >= r.cfg.MaxArchives {
			r.log.Debugf("archive budget reached before %s", desc.RelPath)
			r.manifest.Truncated = true
			return errStop
		}
		r.manifest.ArchivesSeen++
		return r.processArchive(ctx, desc)
	})

	if flushErr := r.writer.Flush(); flushErr != nil && err == nil {
		err = flushErr
	}

	switch {
	case err == nil, errors.Is(err, errStop):
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		r.manifest.Truncated = true
		if indexErr := r.finishIndex(); indexErr != nil {
			r.log.Warnf("indexing cancelled run: %v", indexErr)
		}
		return r.manifest, err
	default:
		return r.fail(err)
	}

	if err := r.finishIndex(); err != nil {
		return r.fail(fmt.Errorf("indexing run: %w", err))
	}

	r.log.Infof("emitted %d members (%d lines) from %d of %d archives",
		r.manifest.MembersEmitted, r.manifest.TotalLinesEmitted,
		r.manifest.ArchivesEmittedFrom, r.manifest.ArchivesSeen)
	return r.manifest, nil
}

// fail marks the manifest as aborted and records the run best-effort.
func (r *run) fail(err error) (*types.RunManifest, error) {
	r.manifest.Truncated = true
	r.manifest.Error = err.Error()
	if indexErr := r.finishIndex(); indexErr != nil {
		r.log.Warnf("indexing failed run: %v", indexErr)
	}
	return r.manifest, err
}

func (r *run) finishIndex() error {
	if r.cfg.Index == nil {
		return nil
	}
	r.record.Manifest = r.manifest
	return r.cfg.Index.AddRun(r.record)
}

// exhausted reports whether the line or member budget forbids another unit.
func (r *run) exhausted() bool {
	if r.cfg.MaxLines > 0 && r.writer.Lines() >= r.cfg.MaxLines {
		return true
	}
	if r.cfg.MaxMembers > 0 && r.manifest.MembersEmitted >= r.cfg.MaxMembers {
		return true
	}
	return false
}

func (r *run) processArchive(ctx context.Context, desc types.ArchiveDescriptor) error {
	reader, err := archive.Open(desc)
	if err != nil {
		r.archiveFailed(err)
		return nil
	}
	defer reader.Close()

	members, err := reader.Members()
	if err != nil {
		r.archiveFailed(err)
		return nil
	}

	res := r.selector.Select(desc, members)
	for _, rej := range res.Rejections {
		r.manifest.Reject(rej.Reason)
	}

	admitted, rejected := r.sampler.Sample(res.Selected)
	for _, rej := range rejected {
		r.manifest.Reject(rej.Reason)
	}
	r.log.Debugf("%s: %d members, %d selected, %d admitted", desc.RelPath, len(members), len(res.Selected), len(admitted))

	emitted := 0
	for i, sm := range admitted {
		if err := ctx.Err(); err != nil {
			r.rejectRest(admitted[i:], types.ReasonCancelled)
			return err
		}
		if r.exhausted() {
			r.rejectRest(admitted[i:], types.ReasonBudget)
			r.manifest.Truncated = true
			return errStop
		}

		ok, err := r.extract(desc, reader, sm)
		if err != nil {
			return err
		}
		if ok {
			emitted++
		}
	}
	if emitted > 0 {
		r.manifest.ArchivesEmittedFrom++
	}
	return nil
}

func (r *run) archiveFailed(err error) {
	r.log.Warnf("%v", err)
	r.manifest.ArchiveFailed(types.ReasonArchiveUnreadable)
}

func (r *run) rejectRest(members []types.SelectedMember, reason types.Reason) {
	for _, sm := range members {
		r.sampler.Release(sm.EmitPath)
		r.manifest.Reject(reason)
	}
}

func (r *run) reject(sm types.SelectedMember, reason types.Reason) {
	r.sampler.Release(sm.EmitPath)
	r.manifest.Reject(reason)
}

// extract reads, decodes and emits one admitted member. It reports whether
// the member was emitted; errors are fatal to the run.
func (r *run) extract(desc types.ArchiveDescriptor, reader archive.Reader, sm types.SelectedMember) (bool, error) {
	rc, err := reader.Open(sm.MemberEntry)
	if err != nil {
		r.log.Warnf("%s: %v", sm.EmitPath, err)
		r.reject(sm, types.ReasonReadError)
		return false, nil
	}
	raw, err := decode.ReadLimited(rc, r.selector.MaxBytes())
	rc.Close()
	switch {
	case errors.Is(err, decode.ErrTooLarge):
		r.reject(sm, types.ReasonTooLarge)
		return false, nil
	case err != nil:
		r.log.Warnf("%s: %v", sm.EmitPath, err)
		r.reject(sm, types.ReasonReadError)
		return false, nil
	}

	unit := decode.Decode(sm.EmitPath, raw)
	if !unit.Status.Emittable() {
		r.log.Debugf("%s: binary content, skipped", sm.EmitPath)
		r.reject(sm, types.ReasonDecodeSkipped)
		return false, nil
	}

	blobID := types.ComputeBlobID(unit.Text)
	if r.cfg.Incremental {
		exists, err := r.cfg.Index.UnitExists(blobID, r.record.ID)
		if err != nil {
			return false, fmt.Errorf("checking index: %w", err)
		}
		if exists {
			r.reject(sm, types.ReasonAlreadyIndexed)
			return false, nil
		}
	}

	lines, err := r.writer.WriteUnit(unit.EmitPath, unit.Text)
	if err != nil {
		return false, err
	}

	rec := types.UnitRecord{
		EmitPath: unit.EmitPath,
		Source:   types.ArchiveProvenance{ArchivePath: desc.RelPath, MemberPath: sm.Path},
		Lines:    lines,
		Status:   unit.Status,
		BlobID:   blobID,
	}
	r.manifest.Emitted(rec, lines)

	if r.cfg.Index != nil {
		if err := r.cfg.Index.AddUnit(r.record.ID, r.seq, rec, unit.Text); err != nil {
			return false, fmt.Errorf("indexing unit %s: %w", unit.EmitPath, err)
		}
	}
	r.seq++
	return true, nil
}
