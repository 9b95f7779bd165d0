// Package textutil provides byte-oriented text helpers shared across the
// rvl pipeline. All identifier and field comparisons operate on raw bytes;
// the only whitespace rule is the ASCII trim defined here.
package textutil

// ASCIITrim strips ASCII spaces (0x20) and tabs (0x09) from both ends.
// No Unicode whitespace is trimmed.
func ASCIITrim(input []byte) []byte {
	start := 0
	end := len(input)
	for start < end && IsASCIIBlank(input[start]) {
		start++
	}
	for end > start && IsASCIIBlank(input[end-1]) {
		end--
	}
	return input[start:end]
}

// IsASCIIBlank reports whether the byte is an ASCII space or tab.
func IsASCIIBlank(b byte) bool {
	return b == ' ' || b == '\t'
}

// IsBlankSlice reports whether the slice is empty after ASCII-trimming.
func IsBlankSlice(input []byte) bool {
	return len(ASCIITrim(input)) == 0
}

// StripTrailingCR strips a single trailing carriage return if present.
// Intended for line slices produced by splitting on '\n'.
func StripTrailingCR(line []byte) []byte {
	if len(line) > 0 && line[len(line)-1] == '\r' {
		return line[:len(line)-1]
	}
	return line
}
