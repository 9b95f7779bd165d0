package align

import (
	"bytes"

	"github.com/cmdrvl/rvl/pkg/textutil"
)

// ShuffleDetection is the advisory outcome of reorder detection in
// row-order mode.
type ShuffleDetection struct {
	// Reordered is true when some perfect key candidate has the same key set
	// in a different sequence across the files.
	Reordered bool
	// SuggestedKeys lists up to 3 candidate names, perfect first.
	SuggestedKeys [][]byte
}

const maxSuggestedKeys = 3

// DetectShuffle tests every perfect key candidate for a sequence mismatch.
// Rows must exclude blank records. Callers run this only when the diff pass
// observed a non-zero total change.
func DetectShuffle(oldHeaders, newHeaders [][]byte, oldRows, newRows [][][]byte) ShuffleDetection {
	candidates := DiscoverKeyCandidates(oldHeaders, newHeaders, oldRows, newRows)

	suggested := make([][]byte, 0, maxSuggestedKeys)
	for _, candidate := range candidates {
		if len(suggested) == maxSuggestedKeys {
			break
		}
		suggested = append(suggested, candidate.Name)
	}

	for _, candidate := range candidates {
		if candidate.Kind != PerfectCandidate {
			continue
		}
		if hasReorder(candidate, oldRows, newRows) {
			return ShuffleDetection{Reordered: true, SuggestedKeys: suggested}
		}
	}
	return ShuffleDetection{SuggestedKeys: suggested}
}

func hasReorder(candidate KeyCandidate, oldRows, newRows [][][]byte) bool {
	if len(oldRows) != len(newRows) {
		return true
	}
	for i := range oldRows {
		oldKey := textutil.ASCIITrim(fieldAt(oldRows[i], candidate.OldIndex))
		newKey := textutil.ASCIITrim(fieldAt(newRows[i], candidate.NewIndex))
		if !bytes.Equal(oldKey, newKey) {
			return true
		}
	}
	return false
}
