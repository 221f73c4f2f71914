package emit

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praetorian-inc/shardex/pkg/types"
)

func TestWriter_Format(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	n, err := w.WriteUnit("packages/a.whl/a.py", []byte("import os\nprint(os.sep)\n"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = w.WriteUnit("packages/b.tar.gz/b.py", []byte("x = 1"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, w.Flush())

	want := "=== packages/a.whl/a.py ===\n" +
		"import os\nprint(os.sep)\n" +
		"=== packages/b.tar.gz/b.py ===\n" +
		"x = 1\n"
	assert.Equal(t, want, buf.String())
	assert.Equal(t, 5, w.Lines())
	assert.Equal(t, 2, w.Units())
}

func TestWriter_EmptyText(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	n, err := w.WriteUnit("p/empty.py", nil)
	require.NoError(t, err)
	require.NoError(t, w.Flush())

	assert.Equal(t, 1, n)
	assert.Equal(t, "=== p/empty.py ===\n", buf.String())
}

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) { return 0, errors.New("disk full") }

func TestWriter_ErrorsWrapOutputWrite(t *testing.T) {
	w := NewWriter(failingWriter{})

	// Small units sit in the buffer; the failure surfaces on flush.
	_, err := w.WriteUnit("p", []byte("x\n"))
	require.NoError(t, err)
	assert.ErrorIs(t, w.Flush(), types.ErrOutputWrite)

	_, err = w.WriteUnit("p", bytes.Repeat([]byte("y"), 8192))
	assert.ErrorIs(t, err, types.ErrOutputWrite)
}

func TestReadAll_RoundTrip(t *testing.T) {
	units := []Record{
		{Path: "packages/a.whl/a.py", Text: []byte("a = 1\n\n\n")},
		{Path: "packages/a.whl/b.py", Text: []byte("")},
		{Path: "packages/c.zip/c.py", Text: []byte("# === not a delimiter ===\nc = 3\n")},
	}

	var buf bytes.Buffer
	w := NewWriter(&buf)
	for _, u := range units {
		_, err := w.WriteUnit(u.Path, u.Text)
		require.NoError(t, err)
	}
	require.NoError(t, w.Flush())

	got, err := ReadAll(&buf)
	require.NoError(t, err)
	require.Len(t, got, len(units))
	for i := range units {
		assert.Equal(t, units[i].Path, got[i].Path)
		assert.Equal(t, string(units[i].Text), string(got[i].Text))
	}
}

func TestReadAll_AppendedNewlineIsKept(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	_, err := w.WriteUnit("p.py", []byte("no newline"))
	require.NoError(t, err)
	require.NoError(t, w.Flush())

	got, err := ReadAll(&buf)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "no newline\n", string(got[0].Text))
}

func TestReadAll_Empty(t *testing.T) {
	got, err := ReadAll(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestReadAll_Malformed(t *testing.T) {
	_, err := ReadAll(strings.NewReader("stray text\n=== a ===\n"))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestParseDelimiter(t *testing.T) {
	tests := []struct {
		line string
		path string
		ok   bool
	}{
		{"=== a/b.py ===\n", "a/b.py", true},
		{"=== a/b.py ===", "", false},
		{"=== ===\n", "", false},
		{"==== a ===\n", "", false},
		{" === a ===\n", "", false},
	}
	for _, tt := range tests {
		path, ok := parseDelimiter(tt.line)
		assert.Equal(t, tt.ok, ok, "%q", tt.line)
		assert.Equal(t, tt.path, path, "%q", tt.line)
	}
}

func writeUnits(t *testing.T, units []Record) ([]byte, []types.UnitRecord) {
	t.Helper()
	var buf bytes.Buffer
	w := NewWriter(&buf)
	var recs []types.UnitRecord
	for _, u := range units {
		n, err := w.WriteUnit(u.Path, u.Text)
		require.NoError(t, err)
		recs = append(recs, types.UnitRecord{EmitPath: u.Path, Lines: n})
	}
	require.NoError(t, w.Flush())
	return buf.Bytes(), recs
}

func TestReadUnits_DelimiterInsideContent(t *testing.T) {
	units := []Record{
		{Path: "packages/a.whl/a/__init__.py", Text: []byte("'''\n=== Usage ===\n'''\n")},
		{Path: "packages/a.whl/a/empty.py", Text: []byte("")},
		{Path: "packages/a.whl/a/tail.py", Text: []byte("x = 1\n=== packages/a.whl/a/fake.py ===")},
	}
	stream, recs := writeUnits(t, units)

	naive, err := ReadAll(bytes.NewReader(stream))
	require.NoError(t, err)
	assert.Len(t, naive, 5)

	got, err := ReadUnits(bytes.NewReader(stream), recs)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "'''\n=== Usage ===\n'''\n", string(got[0].Text))
	assert.Empty(t, got[1].Text)
	assert.Equal(t, "x = 1\n=== packages/a.whl/a/fake.py ===\n", string(got[2].Text))
}

func TestReadUnits_Mismatch(t *testing.T) {
	stream, recs := writeUnits(t, []Record{
		{Path: "a.py", Text: []byte("a = 1\n")},
		{Path: "b.py", Text: []byte("b = 2\n")},
	})

	t.Run("wrong path", func(t *testing.T) {
		bad := append([]types.UnitRecord(nil), recs...)
		bad[1].EmitPath = "c.py"
		_, err := ReadUnits(bytes.NewReader(stream), bad)
		assert.ErrorIs(t, err, ErrMalformed)
	})

	t.Run("stream too short", func(t *testing.T) {
		bad := append([]types.UnitRecord(nil), recs...)
		bad[1].Lines = 5
		_, err := ReadUnits(bytes.NewReader(stream), bad)
		assert.ErrorIs(t, err, ErrMalformed)
	})

	t.Run("unlisted trailing unit", func(t *testing.T) {
		got, err := ReadUnits(bytes.NewReader(stream), recs[:1])
		assert.ErrorIs(t, err, ErrMalformed)
		assert.Len(t, got, 1)
	})
}
