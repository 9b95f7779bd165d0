package csvio

import (
	"bytes"

	"github.com/cmdrvl/rvl/pkg/textutil"
)

// SepScan is the result of scanning the head of a file for a sep= directive.
type SepScan struct {
	// Directive is true when the first non-blank line is a valid directive.
	Directive bool
	Delimiter byte
	LineIndex int
}

// ScanSepDirective inspects the first non-blank line (ASCII spaces/tabs
// only count as blank) for an exact `sep=<byte>` directive. A single
// trailing CR is ignored for CRLF files. Returns Directive == false when the
// first non-blank line is anything else or no non-blank line exists.
func ScanSepDirective(input []byte) SepScan {
	idx := 0
	for _, line := range bytes.Split(input, []byte{'\n'}) {
		trimmed := textutil.StripTrailingCR(line)
		if textutil.IsBlankSlice(trimmed) {
			idx++
			continue
		}
		if delimiter, ok := ParseSepDirective(trimmed); ok {
			return SepScan{Directive: true, Delimiter: delimiter, LineIndex: idx}
		}
		return SepScan{LineIndex: idx}
	}
	return SepScan{LineIndex: idx}
}

// ParseSepDirective parses one line as a sep= directive: exactly
// `sep=<byte>` with no quotes or surrounding whitespace, where the byte is a
// legal delimiter.
func ParseSepDirective(line []byte) (byte, bool) {
	if len(line) != 5 || !bytes.Equal(line[:4], []byte("sep=")) {
		return 0, false
	}
	delimiter := line[4]
	if IsValidDelimiter(delimiter) {
		return delimiter, true
	}
	return 0, false
}

// IsValidDelimiter reports whether a byte may serve as a delimiter: a single
// ASCII byte 0x01..=0x7F excluding '"', CR, and LF.
func IsValidDelimiter(delimiter byte) bool {
	return delimiter >= 0x01 && delimiter <= 0x7F &&
		delimiter != '"' && delimiter != '\r' && delimiter != '\n'
}
