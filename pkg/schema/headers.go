// Package schema models the header row and the column typing derived from
// it: name normalization, uniqueness, the column intersection between the
// two files, and numeric-column inference over aligned rows.
package schema

import (
	"fmt"

	"github.com/cmdrvl/rvl/pkg/textutil"
)

// DuplicateHeaderError reports a duplicate normalized header name.
type DuplicateHeaderError struct {
	Name []byte
	// 1-based column indexes of the first and second occurrence.
	FirstIndex  int
	SecondIndex int
}

// NormalizeHeaders normalizes a header record: ASCII-trim each name, number
// empty names as __rvl_col_<n> (1-based), and enforce byte-exact uniqueness.
func NormalizeHeaders(headers [][]byte) ([][]byte, *DuplicateHeaderError) {
	normalized := make([][]byte, 0, len(headers))
	seen := make(map[string]int, len(headers))

	for idx, header := range headers {
		name := NormalizeHeaderName(header, idx+1)
		key := string(name)
		if first, dup := seen[key]; dup {
			return nil, &DuplicateHeaderError{
				Name:        name,
				FirstIndex:  first,
				SecondIndex: idx + 1,
			}
		}
		seen[key] = idx + 1
		normalized = append(normalized, name)
	}
	return normalized, nil
}

// NormalizeHeaderName normalizes one header name. index is 1-based.
func NormalizeHeaderName(header []byte, index int) []byte {
	trimmed := textutil.ASCIITrim(header)
	if len(trimmed) == 0 {
		return []byte(fmt.Sprintf("__rvl_col_%d", index))
	}
	out := make([]byte, len(trimmed))
	copy(out, trimmed)
	return out
}
