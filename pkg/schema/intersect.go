package schema

import "bytes"

// CommonColumn is a column present in both files after normalization.
type CommonColumn struct {
	Name     []byte
	OldIndex int
	NewIndex int
}

// Intersection is the header set comparison, excluding the key column when
// one is configured.
type Intersection struct {
	Common  []CommonColumn
	OldOnly [][]byte
	NewOnly [][]byte
}

// IntersectHeaders computes common, old-only, and new-only columns by byte
// equality. The key column, when non-nil, is excluded from all three sets.
func IntersectHeaders(oldHeaders, newHeaders [][]byte, key []byte) Intersection {
	newIndex := make(map[string]int, len(newHeaders))
	for idx, name := range newHeaders {
		if key != nil && bytes.Equal(name, key) {
			continue
		}
		newIndex[string(name)] = idx
	}

	var out Intersection
	oldSeen := make(map[string]struct{}, len(oldHeaders))

	for idx, name := range oldHeaders {
		if key != nil && bytes.Equal(name, key) {
			continue
		}
		oldSeen[string(name)] = struct{}{}
		if newIdx, ok := newIndex[string(name)]; ok {
			out.Common = append(out.Common, CommonColumn{Name: name, OldIndex: idx, NewIndex: newIdx})
		} else {
			out.OldOnly = append(out.OldOnly, name)
		}
	}

	for _, name := range newHeaders {
		if key != nil && bytes.Equal(name, key) {
			continue
		}
		if _, ok := oldSeen[string(name)]; !ok {
			out.NewOnly = append(out.NewOnly, name)
		}
	}
	return out
}

// CountColumns counts header names minus the key column when present.
func CountColumns(headers [][]byte, key []byte) uint64 {
	count := uint64(len(headers))
	if key == nil {
		return count
	}
	for _, name := range headers {
		if bytes.Equal(name, key) {
			return count - 1
		}
	}
	return count
}
