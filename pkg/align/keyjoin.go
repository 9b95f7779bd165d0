package align

import (
	"sort"

	"github.com/cmdrvl/rvl/pkg/diff"
	"github.com/cmdrvl/rvl/pkg/textutil"
)

// RowRef locates an aligned row for refusal examples: the per-file data
// record numbers, plus the key bytes in key mode.
type RowRef struct {
	OldRecord uint64
	NewRecord uint64
	Key       []byte
}

// AlignedRow is one pair of width-normalized records.
type AlignedRow struct {
	Ref RowRef
	Old [][]byte
	New [][]byte
}

// KeyEntry is one record indexed by its trimmed key bytes.
type KeyEntry struct {
	RecordNumber uint64
	Fields       [][]byte
}

// KeyMap indexes one side's records by key.
type KeyMap struct {
	Entries map[string]KeyEntry
}

// KeyJoinErrorKind classifies key-mode alignment failures.
type KeyJoinErrorKind int

const (
	// KeyEmptyError: a non-blank record has an empty key after trim.
	KeyEmptyError KeyJoinErrorKind = iota
	// KeyDupError: a key value repeats within one file.
	KeyDupError
	// KeyMismatchError: the key sets differ between files.
	KeyMismatchError
)

// KeyJoinError reports why the keyed join failed.
type KeyJoinError struct {
	Kind KeyJoinErrorKind
	// RecordNumber cites the offending record (empty key) or the second
	// occurrence (duplicate).
	RecordNumber uint64
	Key          []byte
	// Mismatch details: counts plus byte-sorted samples capped at 10.
	MissingCount   int
	ExtraCount     int
	MissingSamples [][]byte
	ExtraSamples   [][]byte
}

const maxMismatchSamples = 10

// BuildKeyMap indexes data records (header excluded, already normalized to
// header width) by the ASCII-trimmed key bytes at keyIndex. Blank records
// are skipped. Record numbering is the caller's 1-based data index.
func BuildKeyMap(records [][][]byte, keyIndex int) (*KeyMap, *KeyJoinError) {
	entries := make(map[string]KeyEntry, len(records))

	for idx, record := range records {
		recordNumber := uint64(idx + 1)
		if isBlankRecord(record) {
			continue
		}
		var raw []byte
		if keyIndex < len(record) {
			raw = record[keyIndex]
		}
		key := textutil.ASCIITrim(raw)
		if len(key) == 0 {
			return nil, &KeyJoinError{Kind: KeyEmptyError, RecordNumber: recordNumber}
		}
		keyStr := string(key)
		if _, exists := entries[keyStr]; exists {
			return nil, &KeyJoinError{
				Kind:         KeyDupError,
				RecordNumber: recordNumber,
				Key:          append([]byte(nil), key...),
			}
		}
		entries[keyStr] = KeyEntry{RecordNumber: recordNumber, Fields: record}
	}

	return &KeyMap{Entries: entries}, nil
}

// JoinKeyMaps pairs the two maps by exact key, refusing on any symmetric
// difference. The result is ordered by key bytes ascending.
func JoinKeyMaps(old, new *KeyMap) ([]AlignedRow, *KeyJoinError) {
	if err := compareKeySets(old, new); err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(old.Entries))
	for key := range old.Entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	aligned := make([]AlignedRow, 0, len(keys))
	for _, key := range keys {
		oldEntry := old.Entries[key]
		newEntry := new.Entries[key]
		aligned = append(aligned, AlignedRow{
			Ref: RowRef{
				OldRecord: oldEntry.RecordNumber,
				NewRecord: newEntry.RecordNumber,
				Key:       []byte(key),
			},
			Old: oldEntry.Fields,
			New: newEntry.Fields,
		})
	}
	return aligned, nil
}

func compareKeySets(old, new *KeyMap) *KeyJoinError {
	var missing, extra [][]byte
	for key := range old.Entries {
		if _, ok := new.Entries[key]; !ok {
			missing = append(missing, []byte(key))
		}
	}
	for key := range new.Entries {
		if _, ok := old.Entries[key]; !ok {
			extra = append(extra, []byte(key))
		}
	}
	if len(missing) == 0 && len(extra) == 0 {
		return nil
	}

	missingCount := len(missing)
	extraCount := len(extra)
	missing = diff.SortAndTruncateBytes(missing, maxMismatchSamples)
	extra = diff.SortAndTruncateBytes(extra, maxMismatchSamples)

	return &KeyJoinError{
		Kind:           KeyMismatchError,
		MissingCount:   missingCount,
		ExtraCount:     extraCount,
		MissingSamples: missing,
		ExtraSamples:   extra,
	}
}

func isBlankRecord(record [][]byte) bool {
	for _, field := range record {
		if !textutil.IsBlankSlice(field) {
			return false
		}
	}
	return true
}
