package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praetorian-inc/shardex/pkg/archive/archivetest"
	"github.com/praetorian-inc/shardex/pkg/emit"
	"github.com/praetorian-inc/shardex/pkg/enum"
	"github.com/praetorian-inc/shardex/pkg/store"
	"github.com/praetorian-inc/shardex/pkg/types"
)

// source returns a Python-looking file of exactly n bytes ending in a newline.
func source(n int) string {
	if n < 2 {
		return strings.Repeat("\n", n)
	}
	return "#" + strings.Repeat("x", n-2) + "\n"
}

func runWith(t *testing.T, cfg Config) (*types.RunManifest, string) {
	t.Helper()
	var out bytes.Buffer
	m, err := Run(context.Background(), cfg, &out)
	require.NoError(t, err)
	require.True(t, m.Balanced(), "every candidate must be emitted or rejected: %+v", m)
	return m, out.String()
}

func TestRun_PerArchiveCapTakesFirstPath(t *testing.T) {
	root := t.TempDir()
	archivetest.WriteZip(t, filepath.Join(root, "pkg-1.0-py3-none-any.whl"), archivetest.Files(map[string]string{
		"pkg/__init__.py": source(200),
		"pkg/util.py":     source(500),
	}))

	m, out := runWith(t, DefaultConfig(root))

	records, err := emit.ReadAll(strings.NewReader(out))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "packages/pkg-1.0-py3-none-any.whl/pkg/__init__.py", records[0].Path)
	assert.Equal(t, source(200), string(records[0].Text))

	assert.Equal(t, 1, m.MembersEmitted)
	assert.Equal(t, 1, m.Rejections[types.ReasonOverCap])
	assert.Equal(t, 1, m.ArchivesSeen)
	assert.Equal(t, 1, m.ArchivesEmittedFrom)
	assert.False(t, m.Truncated)
	assert.Empty(t, m.RunID, "runs without an index have no ID")
}

func TestRun_LineBudgetCompletesUnitThenStops(t *testing.T) {
	root := t.TempDir()
	archivetest.WriteZip(t, filepath.Join(root, "a-1.0-py3-none-any.whl"), archivetest.Files(map[string]string{
		"a/mod.py": archivetest.Lines(10),
	}))
	archivetest.WriteZip(t, filepath.Join(root, "b-1.0-py3-none-any.whl"), archivetest.Files(map[string]string{
		"b/mod.py": archivetest.Lines(10),
	}))

	cfg := DefaultConfig(root)
	cfg.MaxLines = 5
	m, out := runWith(t, cfg)

	assert.True(t, strings.HasPrefix(out, "=== packages/a-1.0-py3-none-any.whl/a/mod.py ===\n"))
	assert.NotContains(t, out, "b-1.0")
	assert.True(t, m.Truncated)
	assert.Equal(t, 11, m.TotalLinesEmitted)
	assert.Equal(t, 1, m.MembersEmitted)
	assert.Equal(t, 1, m.Rejections[types.ReasonBudget])
	assert.Equal(t, 2, m.ArchivesSeen)
}

func TestRun_BudgetReachedOnLastUnitIsNotTruncated(t *testing.T) {
	root := t.TempDir()
	archivetest.WriteZip(t, filepath.Join(root, "a-1.0-py3-none-any.whl"), archivetest.Files(map[string]string{
		"a/mod.py": archivetest.Lines(10),
	}))

	cfg := DefaultConfig(root)
	cfg.MaxLines = 5
	m, _ := runWith(t, cfg)

	assert.False(t, m.Truncated)
	assert.Equal(t, 11, m.TotalLinesEmitted)
}

func TestRun_InvalidUTF8IsReplaced(t *testing.T) {
	root := t.TempDir()
	content := source(100) + "author = 'Andr\xe9'\n"
	archivetest.WriteZip(t, filepath.Join(root, "w-1.0-py3-none-any.whl"), archivetest.Files(map[string]string{
		"w/meta.py": content,
	}))

	m, out := runWith(t, DefaultConfig(root))

	assert.Contains(t, out, "author = 'André'\n")
	require.Len(t, m.Units, 1)
	assert.Equal(t, types.DecodeReplaced, m.Units[0].Status)
	assert.Equal(t, 1, m.DecodeReplaced)
}

func TestRun_TooDeepOnly(t *testing.T) {
	root := t.TempDir()
	archivetest.WriteZip(t, filepath.Join(root, "fix-1.0-py3-none-any.whl"), archivetest.Files(map[string]string{
		"tests/deep/fixture.py": source(200),
	}))

	m, out := runWith(t, DefaultConfig(root))

	assert.Empty(t, out)
	assert.Equal(t, 0, m.MembersEmitted)
	assert.Equal(t, 1, m.Rejections[types.ReasonTooDeep])
	assert.Equal(t, 1, m.ArchivesSeen)
	assert.Equal(t, 0, m.ArchivesEmittedFrom)
}

func TestRun_CorruptArchiveIsRecorded(t *testing.T) {
	root := t.TempDir()
	archivetest.WriteCorrupt(t, filepath.Join(root, "bad-1.0.zip"))
	archivetest.WriteTar(t, filepath.Join(root, "good-1.0.tar.gz"), archivetest.Gzip, archivetest.Files(map[string]string{
		"good-1.0/setup.py": source(300),
	}))

	m, out := runWith(t, DefaultConfig(root))

	assert.Equal(t, 1, m.ArchiveErrors[types.ReasonArchiveUnreadable])
	assert.Equal(t, 2, m.ArchivesSeen)
	assert.Contains(t, out, "=== packages/good-1.0.tar.gz/setup.py ===\n")
}

func TestRun_Deterministic(t *testing.T) {
	root := t.TempDir()
	archivetest.WriteZip(t, filepath.Join(root, "x", "x-1.0-py3-none-any.whl"), archivetest.Files(map[string]string{
		"x/__init__.py": source(120),
		"x/core.py":     source(400),
		"x/sub/deep.py": source(400),
		"README.md":     source(100),
	}))
	archivetest.WriteTar(t, filepath.Join(root, "y", "y-2.0.tar.gz"), archivetest.Gzip, archivetest.Files(map[string]string{
		"y-2.0/setup.py":  source(250),
		"y-2.0/y/util.py": source(250),
	}))

	cfg := DefaultConfig(root)
	cfg.PerArchive = 0

	m1, out1 := runWith(t, cfg)
	m2, out2 := runWith(t, cfg)

	assert.Equal(t, out1, out2)
	j1, err := json.Marshal(m1)
	require.NoError(t, err)
	j2, err := json.Marshal(m2)
	require.NoError(t, err)
	assert.JSONEq(t, string(j1), string(j2))
	assert.Equal(t, 4, m1.MembersEmitted)
}

func TestRun_EmptyRoot(t *testing.T) {
	m, out := runWith(t, DefaultConfig(t.TempDir()))

	assert.Empty(t, out)
	assert.Zero(t, m.ArchivesSeen)
	assert.Zero(t, m.Candidates)
	assert.False(t, m.Truncated)
	assert.NotNil(t, m.Rejections)
	assert.NotNil(t, m.Units)
}

func TestRun_MissingRootIsFatal(t *testing.T) {
	var out bytes.Buffer
	m, err := Run(context.Background(), DefaultConfig(filepath.Join(t.TempDir(), "nope")), &out)

	assert.ErrorIs(t, err, types.ErrInputNotFound)
	require.NotNil(t, m)
	assert.True(t, m.Truncated)
	assert.NotEmpty(t, m.Error)
}

func TestRun_UnbuildableRootStillReturnsManifest(t *testing.T) {
	cfg := DefaultConfig("s3://bucket/prefix")
	cfg.Enum.Remote = enum.RemoteConfig{}

	var out bytes.Buffer
	m, err := Run(context.Background(), cfg, &out)
	assert.ErrorIs(t, err, types.ErrInputNotReadable)
	require.NotNil(t, m)
	assert.True(t, m.Truncated)
	assert.Contains(t, m.Error, "access key")
	assert.Empty(t, out.String())
}

func TestRun_MultipleRoots(t *testing.T) {
	first := t.TempDir()
	second := t.TempDir()
	archivetest.WriteZip(t, filepath.Join(first, "a-1.0-py3-none-any.whl"), archivetest.Files(map[string]string{
		"a/m.py": source(100),
	}))
	archivetest.WriteZip(t, filepath.Join(second, "b-1.0-py3-none-any.whl"), archivetest.Files(map[string]string{
		"b/m.py": source(100),
	}))

	cfg := DefaultConfig("")
	cfg.Roots = []enum.Config{{Root: first}, {Root: second}}
	m, out := runWith(t, cfg)

	assert.Equal(t, 2, m.MembersEmitted)
	assert.Less(t, strings.Index(out, "a-1.0"), strings.Index(out, "b-1.0"))
}

func TestRun_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig(t.TempDir())
	cfg.MaxLines = -1
	m, err := Run(context.Background(), cfg, &bytes.Buffer{})
	assert.ErrorIs(t, err, types.ErrInvalidConfig)
	assert.Nil(t, m)

	cfg = DefaultConfig(t.TempDir())
	cfg.Incremental = true
	_, err = Run(context.Background(), cfg, &bytes.Buffer{})
	assert.ErrorIs(t, err, types.ErrInvalidConfig)
}

func TestRun_ManifestFilterReproducesOutput(t *testing.T) {
	root := t.TempDir()
	archivetest.WriteZip(t, filepath.Join(root, "a-1.0-py3-none-any.whl"), archivetest.Files(map[string]string{
		"a/__init__.py": source(100),
		"a/b.py":        source(100),
		"a/c.py":        source(100),
	}))
	archivetest.WriteZip(t, filepath.Join(root, "d-1.0-py3-none-any.whl"), archivetest.Files(map[string]string{
		"d/e.py": source(100),
	}))

	cfg := DefaultConfig(root)
	cfg.PerArchive = 2
	first, out1 := runWith(t, cfg)

	path := filepath.Join(t.TempDir(), "first.manifest.json")
	require.NoError(t, SaveManifest(path, first))
	loaded, err := LoadManifest(path)
	require.NoError(t, err)

	cfg.Selector.Allow = loaded.EmitPaths()
	second, out2 := runWith(t, cfg)

	assert.Equal(t, out1, out2)
	assert.Equal(t, first.MembersEmitted, second.MembersEmitted)
	assert.Equal(t, 1, second.Rejections[types.ReasonFiltered])
}

func TestRun_BinaryAndOversizedMembers(t *testing.T) {
	root := t.TempDir()
	archivetest.WriteZip(t, filepath.Join(root, "w-1.0-py3-none-any.whl"), archivetest.Files(map[string]string{
		"w/blob.py": source(100) + "\x00\x01",
		"w/ok.py":   source(100),
		"w/tiny.py": "x=1\n",
	}))

	cfg := DefaultConfig(root)
	cfg.PerArchive = 0
	m, out := runWith(t, cfg)

	assert.Equal(t, 1, m.Rejections[types.ReasonDecodeSkipped])
	assert.Equal(t, 1, m.Rejections[types.ReasonTooSmall])
	assert.Equal(t, 1, m.MembersEmitted)
	assert.NotContains(t, out, "blob.py")
}

func TestRun_MaxMembersAndArchives(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"a", "b", "c"} {
		archivetest.WriteZip(t, filepath.Join(root, name+"-1.0-py3-none-any.whl"), archivetest.Files(map[string]string{
			name + "/m.py": source(100),
		}))
	}

	cfg := DefaultConfig(root)
	cfg.MaxMembers = 2
	m, _ := runWith(t, cfg)
	assert.Equal(t, 2, m.MembersEmitted)
	assert.True(t, m.Truncated)

	cfg = DefaultConfig(root)
	cfg.MaxArchives = 1
	m, _ = runWith(t, cfg)
	assert.Equal(t, 1, m.ArchivesSeen)
	assert.Equal(t, 1, m.MembersEmitted)
	assert.True(t, m.Truncated)
}

func TestRun_DuplicateEmitPathAcrossRoots(t *testing.T) {
	rootA := t.TempDir()
	rootB := t.TempDir()
	archivetest.WriteZip(t, filepath.Join(rootA, "one", "p-1.0-py3-none-any.whl"), archivetest.Files(map[string]string{
		"p/m.py": source(100),
	}))
	archivetest.WriteZip(t, filepath.Join(rootB, "two", "p-1.0-py3-none-any.whl"), archivetest.Files(map[string]string{
		"p/m.py": source(100),
	}))

	cfg := DefaultConfig(rootA)
	cfg.Enumerator = enum.NewCombinedEnumerator(
		enum.NewFilesystemEnumerator(enum.Config{Root: rootA}),
		enum.NewFilesystemEnumerator(enum.Config{Root: rootB}),
	)
	m, _ := runWith(t, cfg)

	assert.Equal(t, 1, m.MembersEmitted)
	assert.Equal(t, 1, m.Rejections[types.ReasonDuplicatePath])
}

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) { return 0, errors.New("broken pipe") }

func TestRun_OutputErrorIsFatal(t *testing.T) {
	root := t.TempDir()
	archivetest.WriteZip(t, filepath.Join(root, "a-1.0-py3-none-any.whl"), archivetest.Files(map[string]string{
		"a/m.py": source(100),
	}))

	m, err := Run(context.Background(), DefaultConfig(root), failingWriter{})
	assert.ErrorIs(t, err, types.ErrOutputWrite)
	require.NotNil(t, m)
	assert.True(t, m.Truncated)
	assert.Contains(t, m.Error, "broken pipe")
}

// memIndex is an Index backed by a MemoryStore that can run a hook per unit.
type memIndex struct {
	mu     sync.Mutex
	store  *store.MemoryStore
	texts  map[types.BlobID][]byte
	onUnit func()
}

func newMemIndex() *memIndex {
	return &memIndex{store: store.NewMemory(), texts: make(map[types.BlobID][]byte)}
}

func (x *memIndex) AddRun(run *store.Run) error { return x.store.AddRun(run) }

func (x *memIndex) AddUnit(runID string, seq int, rec types.UnitRecord, text []byte) error {
	x.mu.Lock()
	x.texts[rec.BlobID] = text
	x.mu.Unlock()
	if x.onUnit != nil {
		x.onUnit()
	}
	return x.store.AddUnit(runID, seq, rec)
}

func (x *memIndex) UnitExists(id types.BlobID, exceptRun string) (bool, error) {
	return x.store.UnitExists(id, exceptRun)
}

func TestRun_IndexAndIncremental(t *testing.T) {
	root := t.TempDir()
	archivetest.WriteZip(t, filepath.Join(root, "a-1.0-py3-none-any.whl"), archivetest.Files(map[string]string{
		"a/m.py": source(100),
	}))

	idx := newMemIndex()
	cfg := DefaultConfig(root)
	cfg.Index = idx

	first, out := runWith(t, cfg)
	require.NotEmpty(t, first.RunID)
	assert.NotEmpty(t, out)

	stored, err := idx.store.GetRun(first.RunID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Manifest.MembersEmitted)
	units, err := idx.store.GetUnits(first.RunID)
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.Equal(t, source(100), string(idx.texts[units[0].BlobID]))

	// A second incremental run finds nothing new.
	archivetest.WriteZip(t, filepath.Join(root, "b-1.0-py3-none-any.whl"), archivetest.Files(map[string]string{
		"b/n.py": source(150),
	}))
	cfg.Incremental = true
	second, out := runWith(t, cfg)

	assert.NotEqual(t, first.RunID, second.RunID)
	assert.Equal(t, 1, second.Rejections[types.ReasonAlreadyIndexed])
	assert.Equal(t, 1, second.MembersEmitted)
	assert.Contains(t, out, "b-1.0-py3-none-any.whl/b/n.py")
	assert.NotContains(t, out, "a/m.py")
}

func TestRun_IncrementalKeepsRepeatsWithinRun(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"a-1.0-py3-none-any.whl", "b-1.0-py3-none-any.whl"} {
		pkg := strings.SplitN(name, "-", 2)[0]
		archivetest.WriteZip(t, filepath.Join(root, name), archivetest.Files(map[string]string{
			pkg + "/__init__.py": source(100),
		}))
	}

	cfg := DefaultConfig(root)
	cfg.Index = newMemIndex()
	cfg.Incremental = true

	first, _ := runWith(t, cfg)
	assert.Equal(t, 2, first.MembersEmitted)
	assert.Zero(t, first.Rejections[types.ReasonAlreadyIndexed])

	second, out := runWith(t, cfg)
	assert.Zero(t, second.MembersEmitted)
	assert.Equal(t, 2, second.Rejections[types.ReasonAlreadyIndexed])
	assert.Empty(t, out)
}

func TestRun_CancelFinishesCurrentUnit(t *testing.T) {
	root := t.TempDir()
	archivetest.WriteZip(t, filepath.Join(root, "a-1.0-py3-none-any.whl"), archivetest.Files(map[string]string{
		"a/one.py":   source(100),
		"a/two.py":   source(100),
		"a/three.py": source(100),
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	idx := newMemIndex()
	idx.onUnit = cancel

	cfg := DefaultConfig(root)
	cfg.PerArchive = 0
	cfg.Index = idx

	var out bytes.Buffer
	m, err := Run(ctx, cfg, &out)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, m)

	assert.True(t, m.Truncated)
	assert.Equal(t, 1, m.MembersEmitted)
	assert.Equal(t, 2, m.Rejections[types.ReasonCancelled])
	assert.True(t, m.Balanced())

	records, err := emit.ReadAll(&out)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, source(100), string(records[0].Text))
}

func TestManifestPath(t *testing.T) {
	assert.Equal(t, "out/corpus.manifest.json", ManifestPath("out/corpus.txt"))
	assert.Equal(t, "corpus.manifest.json", ManifestPath("corpus"))
	assert.Equal(t, filepath.Join("a.d", "corpus.manifest.json"), ManifestPath(filepath.Join("a.d", "corpus")))
}

func TestLoadManifest_Errors(t *testing.T) {
	_, err := LoadManifest(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorIs(t, err, types.ErrInputNotFound)

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0o644))
	_, err = LoadManifest(bad)
	assert.ErrorIs(t, err, types.ErrInputNotReadable)
}

func TestWriteManifest_ZeroRun(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteManifest(&buf, types.NewRunManifest("")))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	for _, field := range []string{"archives_seen", "members_emitted", "total_lines_emitted", "truncated", "rejections", "units"} {
		assert.Contains(t, decoded, field)
	}
	assert.NotContains(t, decoded, "run_id")
	assert.NotContains(t, decoded, "error")
	assert.True(t, strings.HasSuffix(buf.String(), "}\n"))
}
