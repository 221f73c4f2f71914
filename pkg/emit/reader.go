package emit

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/praetorian-inc/shardex/pkg/types"
)

// ErrMalformed is returned when a stream does not start with a delimiter line.
var ErrMalformed = errors.New("malformed unit stream")

// Record is one unit parsed back from a stream. Text includes the newline
// the writer may have appended.
type Record struct {
	Path string
	Text []byte
}

// Reader parses a unit stream record by record.
type Reader struct {
	br   *bufio.Reader
	next string // path of the delimiter already consumed
	eof  bool
	line int
}

// NewReader returns a Reader over r.
func NewReader(r io.Reader) *Reader {
	return &Reader{br: bufio.NewReader(r)}
}

// Next returns the next record, or io.EOF once the stream is exhausted.
func (r *Reader) Next() (Record, error) {
	if r.next == "" {
		if r.eof {
			return Record{}, io.EOF
		}
		line, err := r.readLine()
		if err == io.EOF && line == "" {
			return Record{}, io.EOF
		}
		if err != nil && err != io.EOF {
			return Record{}, err
		}
		path, ok := parseDelimiter(line)
		if !ok {
			return Record{}, fmt.Errorf("%w: line %d is not a delimiter", ErrMalformed, r.line)
		}
		r.next = path
	}

	rec := Record{Path: r.next}
	r.next = ""

	var buf bytes.Buffer
	for !r.eof {
		line, err := r.readLine()
		if err != nil && err != io.EOF {
			return Record{}, err
		}
		if path, ok := parseDelimiter(line); ok {
			r.next = path
			break
		}
		buf.WriteString(line)
	}
	rec.Text = buf.Bytes()
	return rec, nil
}

func (r *Reader) readLine() (string, error) {
	line, err := r.br.ReadString('\n')
	if err == io.EOF {
		r.eof = true
	}
	if line != "" {
		r.line++
	}
	return line, err
}

// parseDelimiter recognises a complete "=== <path> ===\n" line.
func parseDelimiter(line string) (string, bool) {
	body, ok := strings.CutSuffix(line, "\n")
	if !ok {
		return "", false
	}
	if len(body) <= len(delimOpen)+len(delimClose) {
		return "", false
	}
	if !strings.HasPrefix(body, delimOpen) || !strings.HasSuffix(body, delimClose) {
		return "", false
	}
	return body[len(delimOpen) : len(body)-len(delimClose)], true
}

// ReadAll parses every record in r.
func ReadAll(r io.Reader) ([]Record, error) {
	reader := NewReader(r)
	var records []Record
	for {
		rec, err := reader.Next()
		if err == io.EOF {
			return records, nil
		}
		if err != nil {
			return records, err
		}
		records = append(records, rec)
	}
}

// ReadUnits parses r using the line counts recorded for each unit, so content
// lines that look like delimiters stay inside their unit. The stream must hold
// exactly the units listed, in order.
func ReadUnits(r io.Reader, units []types.UnitRecord) ([]Record, error) {
	reader := NewReader(r)
	records := make([]Record, 0, len(units))
	for _, u := range units {
		head, err := reader.readLine()
		if err != nil && (err != io.EOF || head == "") {
			return records, readUnitErr(u, err)
		}
		path, ok := parseDelimiter(head)
		if !ok || path != u.EmitPath {
			return records, fmt.Errorf("%w: line %d is not the delimiter for %s", ErrMalformed, reader.line, u.EmitPath)
		}
		if u.Lines < 1 {
			return records, fmt.Errorf("%w: unit %s records %d lines", ErrMalformed, u.EmitPath, u.Lines)
		}

		var buf bytes.Buffer
		for i := 1; i < u.Lines; i++ {
			line, err := reader.readLine()
			if err != nil && (err != io.EOF || line == "") {
				return records, readUnitErr(u, err)
			}
			buf.WriteString(line)
		}
		records = append(records, Record{Path: path, Text: buf.Bytes()})
	}

	if rest, _ := reader.readLine(); rest != "" {
		return records, fmt.Errorf("%w: line %d follows the last listed unit", ErrMalformed, reader.line)
	}
	return records, nil
}

func readUnitErr(u types.UnitRecord, err error) error {
	if err == io.EOF {
		return fmt.Errorf("%w: stream ends inside %s", ErrMalformed, u.EmitPath)
	}
	return err
}
