package align

import (
	"bytes"

	"github.com/cmdrvl/rvl/pkg/textutil"
)

// CandidateKind distinguishes key candidate quality.
type CandidateKind int

const (
	// PerfectCandidate: joinable with byte-identical key sets across files.
	PerfectCandidate CandidateKind = iota
	// JoinableCandidate: non-empty and unique in both files.
	JoinableCandidate
)

// KeyCandidate is a column suitable to propose as a --key.
type KeyCandidate struct {
	Name     []byte
	OldIndex int
	NewIndex int
	Kind     CandidateKind
}

type columnStats struct {
	values   map[string]struct{}
	hasEmpty bool
	hasDup   bool
}

func newColumnStats() *columnStats {
	return &columnStats{values: make(map[string]struct{})}
}

func (s *columnStats) observe(raw []byte) {
	trimmed := textutil.ASCIITrim(raw)
	if len(trimmed) == 0 {
		s.hasEmpty = true
		return
	}
	key := string(trimmed)
	if _, seen := s.values[key]; seen {
		s.hasDup = true
		return
	}
	s.values[key] = struct{}{}
}

func (s *columnStats) joinable() bool {
	return !s.hasEmpty && !s.hasDup
}

func (s *columnStats) equalValues(other *columnStats) bool {
	if len(s.values) != len(other.values) {
		return false
	}
	for value := range s.values {
		if _, ok := other.values[value]; !ok {
			return false
		}
	}
	return true
}

type candidateWork struct {
	name     []byte
	oldIndex int
	newIndex int
	oldStats *columnStats
	newStats *columnStats
}

// DiscoverKeyCandidates finds candidate key columns shared by both files.
// Rows must exclude blank records. The returned list has perfect candidates
// first (header order), then remaining joinable candidates (header order);
// non-joinable columns are excluded.
func DiscoverKeyCandidates(oldHeaders, newHeaders [][]byte, oldRows, newRows [][][]byte) []KeyCandidate {
	var work []candidateWork
	for oldIdx, name := range oldHeaders {
		newIdx := indexOfHeader(newHeaders, name)
		if newIdx < 0 {
			continue
		}
		work = append(work, candidateWork{
			name:     name,
			oldIndex: oldIdx,
			newIndex: newIdx,
			oldStats: newColumnStats(),
			newStats: newColumnStats(),
		})
	}
	if len(work) == 0 {
		return nil
	}

	for _, row := range oldRows {
		for _, candidate := range work {
			candidate.oldStats.observe(fieldAt(row, candidate.oldIndex))
		}
	}
	for _, row := range newRows {
		for _, candidate := range work {
			candidate.newStats.observe(fieldAt(row, candidate.newIndex))
		}
	}

	var perfect, joinable []KeyCandidate
	for _, candidate := range work {
		if !candidate.oldStats.joinable() || !candidate.newStats.joinable() {
			continue
		}
		kind := JoinableCandidate
		if candidate.oldStats.equalValues(candidate.newStats) {
			kind = PerfectCandidate
		}
		out := KeyCandidate{
			Name:     candidate.name,
			OldIndex: candidate.oldIndex,
			NewIndex: candidate.newIndex,
			Kind:     kind,
		}
		if kind == PerfectCandidate {
			perfect = append(perfect, out)
		} else {
			joinable = append(joinable, out)
		}
	}
	return append(perfect, joinable...)
}

func indexOfHeader(headers [][]byte, name []byte) int {
	for idx, header := range headers {
		if bytes.Equal(header, name) {
			return idx
		}
	}
	return -1
}

func fieldAt(record [][]byte, index int) []byte {
	if index < 0 || index >= len(record) {
		return nil
	}
	return record[index]
}
