// Package diff accumulates the streaming diff metrics: the L1 total change,
// the maximum absolute delta, and a bounded top-K contributor selection with
// deterministic ordering.
package diff

import (
	"bytes"
	"sort"
	"strconv"
)

// RowID identifies an aligned row: a 1-based data-record index in row-order
// mode, or the raw key bytes in key mode.
type RowID struct {
	Index uint64
	Key   []byte
	IsKey bool
}

// RowIndexID builds a row-order row ID.
func RowIndexID(index uint64) RowID {
	return RowID{Index: index}
}

// KeyID builds a key-mode row ID.
func KeyID(key []byte) RowID {
	return RowID{Key: key, IsKey: true}
}

// Bytes returns the row ID in its identifier-byte form.
func (r RowID) Bytes() []byte {
	if r.IsKey {
		return r.Key
	}
	return []byte(strconv.FormatUint(r.Index, 10))
}

// Compare orders row IDs: numeric indexes compare numerically, keys compare
// as raw bytes. Within one run the two variants never mix.
func (r RowID) Compare(other RowID) int {
	if !r.IsKey && !other.IsKey {
		switch {
		case r.Index < other.Index:
			return -1
		case r.Index > other.Index:
			return 1
		default:
			return 0
		}
	}
	if r.IsKey && other.IsKey {
		return bytes.Compare(r.Key, other.Key)
	}
	if !r.IsKey {
		return -1
	}
	return 1
}

// CellID identifies a single numeric cell deterministically.
type CellID struct {
	Row    RowID
	Column []byte
}

// Compare orders cells by row then column bytes.
func (c CellID) Compare(other CellID) int {
	if cmp := c.Row.Compare(other.Row); cmp != 0 {
		return cmp
	}
	return bytes.Compare(c.Column, other.Column)
}

// Equal reports byte-exact cell identity.
func (c CellID) Equal(other CellID) bool {
	return c.Compare(other) == 0
}

// SortContributors sorts into display order: contribution descending, then
// row ID ascending, then column bytes ascending.
func SortContributors(items []Contributor) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Contribution != items[j].Contribution {
			return items[i].Contribution > items[j].Contribution
		}
		return items[i].ID.Compare(items[j].ID) < 0
	})
}

// SortAndTruncateBytes sorts byte slices ascending and truncates to limit.
func SortAndTruncateBytes(items [][]byte, limit int) [][]byte {
	sort.Slice(items, func(i, j int) bool {
		return bytes.Compare(items[i], items[j]) < 0
	})
	if len(items) > limit {
		items = items[:limit]
	}
	return items
}
