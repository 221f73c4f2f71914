// Package emit writes and parses the delimited unit stream.
//
// Every unit is a delimiter line "=== <path> ===" followed by the unit's
// text. A newline is appended when the text does not already end in one, so
// every stream ends with a newline.
package emit

import (
	"bufio"
	"fmt"
	"io"

	"github.com/praetorian-inc/shardex/pkg/types"
)

const (
	delimOpen  = "=== "
	delimClose = " ==="
)

// Writer appends units to a sink and counts the lines it has written.
type Writer struct {
	bw    *bufio.Writer
	lines int
	units int
}

// NewWriter wraps w. Callers must Flush before closing w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{bw: bufio.NewWriter(w)}
}

// WriteUnit writes one delimited unit and returns the number of lines it
// added, including the delimiter line.
func (w *Writer) WriteUnit(path string, text []byte) (int, error) {
	if _, err := w.bw.WriteString(Delimiter(path) + "\n"); err != nil {
		return 0, fmt.Errorf("%w: %w", types.ErrOutputWrite, err)
	}
	if _, err := w.bw.Write(text); err != nil {
		return 0, fmt.Errorf("%w: %w", types.ErrOutputWrite, err)
	}
	if len(text) > 0 && text[len(text)-1] != '\n' {
		if err := w.bw.WriteByte('\n'); err != nil {
			return 0, fmt.Errorf("%w: %w", types.ErrOutputWrite, err)
		}
	}

	n := 1 + types.CountLines(text)
	w.lines += n
	w.units++
	return n, nil
}

// Flush writes any buffered data to the sink.
func (w *Writer) Flush() error {
	if err := w.bw.Flush(); err != nil {
		return fmt.Errorf("%w: %w", types.ErrOutputWrite, err)
	}
	return nil
}

// Lines returns the number of lines written so far.
func (w *Writer) Lines() int { return w.lines }

// Units returns the number of units written so far.
func (w *Writer) Units() int { return w.units }

// Delimiter formats the delimiter line for path, without its newline.
func Delimiter(path string) string {
	return delimOpen + path + delimClose
}
