package csvio

import "github.com/cmdrvl/rvl/pkg/textutil"

// WidthError reports a record with non-empty fields past the header width.
type WidthError struct {
	RecordNumber    uint64
	FirstExtraIndex int
}

// NormalizeWidth normalizes a record to the header width: short records are
// padded with empty fields, trailing empty-after-trim extras are dropped,
// and non-empty extras are an error.
//
// The returned fields alias the input record where possible.
func NormalizeWidth(fields [][]byte, headerLen int, recordNumber uint64) ([][]byte, *WidthError) {
	if len(fields) > headerLen {
		for idx := headerLen; idx < len(fields); idx++ {
			if !textutil.IsBlankSlice(fields[idx]) {
				return nil, &WidthError{RecordNumber: recordNumber, FirstExtraIndex: idx}
			}
		}
		return fields[:headerLen], nil
	}
	if len(fields) == headerLen {
		return fields, nil
	}
	padded := make([][]byte, headerLen)
	copy(padded, fields)
	for idx := len(fields); idx < headerLen; idx++ {
		padded[idx] = nil
	}
	return padded, nil
}

// CopyRecord deep-copies a record so it survives reader buffer reuse.
func CopyRecord(fields [][]byte) [][]byte {
	out := make([][]byte, len(fields))
	for i, field := range fields {
		if len(field) == 0 {
			continue
		}
		out[i] = append([]byte(nil), field...)
	}
	return out
}

// Field returns the field at index, or nil when padded past the record.
func Field(fields [][]byte, index int) []byte {
	if index < 0 || index >= len(fields) {
		return nil
	}
	return fields[index]
}
