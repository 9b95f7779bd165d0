// Package numeric classifies raw CSV field bytes as missing, finite numbers,
// or non-numeric tokens, using a finance-friendly value grammar.
package numeric

import (
	"bytes"

	"github.com/cmdrvl/rvl/pkg/textutil"
)

var missingTokens = [][]byte{
	[]byte("NA"),
	[]byte("N/A"),
	[]byte("NULL"),
	[]byte("NAN"),
	[]byte("NONE"),
}

// IsMissing reports whether the input is a missing token after ASCII-trim.
//
// Missing tokens (letters compared case-insensitively):
// empty string, "-", "NA", "N/A", "NULL", "NAN", "NONE".
func IsMissing(input []byte) bool {
	trimmed := textutil.ASCIITrim(input)
	if len(trimmed) == 0 {
		return true
	}
	if len(trimmed) == 1 && trimmed[0] == '-' {
		return true
	}
	for _, token := range missingTokens {
		if bytes.EqualFold(trimmed, token) {
			return true
		}
	}
	return false
}
