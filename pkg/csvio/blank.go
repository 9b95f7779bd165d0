package csvio

import "github.com/cmdrvl/rvl/pkg/textutil"

// IsBlankLine reports whether a line (without its trailing '\n') is blank
// after ASCII-trim, ignoring a single trailing carriage return.
func IsBlankLine(line []byte) bool {
	return textutil.IsBlankSlice(textutil.StripTrailingCR(line))
}

// IsBlankRecord reports whether every field is empty after ASCII-trim.
//
// The header record is never skipped even if blank; callers apply this to
// data records only.
func IsBlankRecord(fields [][]byte) bool {
	for _, field := range fields {
		if !textutil.IsBlankSlice(field) {
			return false
		}
	}
	return true
}
