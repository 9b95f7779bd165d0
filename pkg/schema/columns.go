package schema

import (
	"github.com/cmdrvl/rvl/pkg/align"
	"github.com/cmdrvl/rvl/pkg/numeric"
)

// Side names the file a typing violation was observed in.
type Side int

const (
	OldSide Side = iota
	NewSide
)

// TypingErrorKind classifies column typing refusal triggers.
type TypingErrorKind int

const (
	// MixedTypesError: a column mixes numeric and non-numeric tokens.
	MixedTypesError TypingErrorKind = iota
	// MissingnessError: one side is missing while the other is numeric.
	MissingnessError
)

// TypingError is the first typing violation found in a column.
type TypingError struct {
	Kind   TypingErrorKind
	Row    align.RowRef
	Column []byte
	// Side is the file holding the offending value (mixed types) or the
	// present numeric value (missingness).
	Side  Side
	Value []byte
}

type nonNumericMark struct {
	row   align.RowRef
	side  Side
	value []byte
}

type columnState struct {
	column     CommonColumn
	sawNumeric bool
	firstText  *nonNumericMark
}

// DetectNumericColumns runs the column typing pass over aligned rows and
// returns the columns where every aligned pair is (missing, missing) or
// (number, number) with at least one numeric pair. Columns with no numbers
// are dropped silently; mixed and missingness violations stop the pass.
func DetectNumericColumns(columns []CommonColumn, rows []align.AlignedRow) ([]CommonColumn, *TypingError) {
	states := make([]columnState, len(columns))
	for i, column := range columns {
		states[i] = columnState{column: column}
	}

	for _, row := range rows {
		for i := range states {
			state := &states[i]
			oldRaw := fieldAt(row.Old, state.column.OldIndex)
			newRaw := fieldAt(row.New, state.column.NewIndex)

			oldMissing := numeric.IsMissing(oldRaw)
			newMissing := numeric.IsMissing(newRaw)

			if oldMissing && newMissing {
				continue
			}

			if oldMissing || newMissing {
				presentRaw, presentSide := newRaw, NewSide
				if newMissing {
					presentRaw, presentSide = oldRaw, OldSide
				}
				if _, ok := numeric.Parse(presentRaw); ok {
					return nil, &TypingError{
						Kind:   MissingnessError,
						Row:    row.Ref,
						Column: state.column.Name,
						Side:   presentSide,
						Value:  copyBytes(presentRaw),
					}
				}
				if state.sawNumeric {
					return nil, &TypingError{
						Kind:   MixedTypesError,
						Row:    row.Ref,
						Column: state.column.Name,
						Side:   presentSide,
						Value:  copyBytes(presentRaw),
					}
				}
				state.markText(row.Ref, presentSide, presentRaw)
				continue
			}

			_, oldOK := numeric.Parse(oldRaw)
			_, newOK := numeric.Parse(newRaw)

			switch {
			case oldOK && newOK:
				if mark := state.firstText; mark != nil {
					return nil, &TypingError{
						Kind:   MixedTypesError,
						Row:    mark.row,
						Column: state.column.Name,
						Side:   mark.side,
						Value:  mark.value,
					}
				}
				state.sawNumeric = true
			case oldOK || newOK:
				textRaw, textSide := newRaw, NewSide
				if newOK {
					textRaw, textSide = oldRaw, OldSide
				}
				if mark := state.firstText; mark != nil {
					return nil, &TypingError{
						Kind:   MixedTypesError,
						Row:    mark.row,
						Column: state.column.Name,
						Side:   mark.side,
						Value:  mark.value,
					}
				}
				return nil, &TypingError{
					Kind:   MixedTypesError,
					Row:    row.Ref,
					Column: state.column.Name,
					Side:   textSide,
					Value:  copyBytes(textRaw),
				}
			default:
				if state.sawNumeric {
					return nil, &TypingError{
						Kind:   MixedTypesError,
						Row:    row.Ref,
						Column: state.column.Name,
						Side:   OldSide,
						Value:  copyBytes(oldRaw),
					}
				}
				state.markText(row.Ref, OldSide, oldRaw)
			}
		}
	}

	var out []CommonColumn
	for _, state := range states {
		if state.sawNumeric {
			out = append(out, state.column)
		}
	}
	return out, nil
}

func (s *columnState) markText(row align.RowRef, side Side, value []byte) {
	if s.firstText == nil {
		s.firstText = &nonNumericMark{row: row, side: side, value: copyBytes(value)}
	}
}

func fieldAt(record [][]byte, index int) []byte {
	if index < 0 || index >= len(record) {
		return nil
	}
	return record[index]
}

func copyBytes(value []byte) []byte {
	if value == nil {
		return nil
	}
	return append([]byte(nil), value...)
}
