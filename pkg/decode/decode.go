// Package decode turns raw member bytes into UTF-8 text.
package decode

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/praetorian-inc/shardex/pkg/types"
)

const (
	// sniffLen is how much of a member the binary heuristic inspects.
	sniffLen = 4096
	// controlPermille is the control-byte threshold, in tenths of a percent.
	controlPermille = 10
)

// ErrTooLarge is returned by ReadLimited when a member holds more bytes than
// its limit, whatever the archive header claimed.
var ErrTooLarge = errors.New("member exceeds size limit")

// ReadLimited reads at most limit bytes from r. It returns ErrTooLarge when r
// holds more.
func ReadLimited(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("reading member: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, limit)
	}
	return data, nil
}

// Decode classifies raw and converts it to UTF-8.
//
// Binary content is returned with DecodeSkipped and no text. Valid UTF-8 is
// passed through unchanged. Anything else is read as ISO-8859-1, which maps
// every byte to a code point, and marked DecodeReplaced.
func Decode(emitPath string, raw []byte) types.ExtractedUnit {
	unit := types.ExtractedUnit{EmitPath: emitPath}

	if IsBinary(raw) {
		unit.Status = types.DecodeSkipped
		return unit
	}

	if utf8.Valid(raw) {
		unit.Text = raw
		unit.Status = types.DecodeOK
	} else {
		text, err := charmap.ISO8859_1.NewDecoder().Bytes(raw)
		if err != nil {
			unit.Status = types.DecodeSkipped
			return unit
		}
		unit.Text = text
		unit.Status = types.DecodeReplaced
	}
	unit.LineCount = types.CountLines(unit.Text)
	return unit
}

// IsBinary reports whether raw looks like binary data: it contains a NUL
// byte, or more than 1% of its first 4 KiB are control characters.
func IsBinary(raw []byte) bool {
	if bytes.IndexByte(raw, 0) >= 0 {
		return true
	}
	head := raw
	if len(head) > sniffLen {
		head = head[:sniffLen]
	}
	if len(head) == 0 {
		return false
	}

	control := 0
	for _, b := range head {
		if isControl(b) {
			control++
		}
	}
	return control*1000 > len(head)*controlPermille
}

// isControl treats bytes >= 0x80 as printable so Latin-1 and UTF-8 text pass.
func isControl(b byte) bool {
	switch b {
	case '\t', '\n', '\r', '\f', '\v':
		return false
	}
	return b < 0x20 || b == 0x7f
}
