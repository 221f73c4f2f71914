package types

import "bytes"

// CountLines returns the number of lines in content: one per '\n', plus one
// for a final line without a trailing newline.
func CountLines(content []byte) int {
	n := bytes.Count(content, []byte{'\n'})
	if len(content) > 0 && content[len(content)-1] != '\n' {
		n++
	}
	return n
}
