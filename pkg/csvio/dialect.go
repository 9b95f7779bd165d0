package csvio

import (
	"bytes"
	"io"

	"github.com/cmdrvl/rvl/pkg/textutil"
)

// CandidateDelimiters lists the auto-detection candidates in priority order.
var CandidateDelimiters = []byte{',', '\t', ';', '|', '^'}

const (
	maxSampleDataRecords = 200
	maxSampleBytes       = 64 * 1024
)

// Score is the lexicographic scoring tuple for a delimiter candidate.
type Score struct {
	RecordsParsed uint64
	ModeCount     uint64
	ModeFields    int
}

func (s Score) less(other Score) bool {
	if s.RecordsParsed != other.RecordsParsed {
		return s.RecordsParsed < other.RecordsParsed
	}
	if s.ModeCount != other.ModeCount {
		return s.ModeCount < other.ModeCount
	}
	return s.ModeFields < other.ModeFields
}

// Dialect is the detected parsing dialect for one file.
type Dialect struct {
	Delimiter    byte
	Quote        byte
	Escape       EscapeMode
	HeaderFields int
	Score        Score
}

// DetectErrorKind classifies auto-detection failures.
type DetectErrorKind int

const (
	// DetectNoHeader: no non-blank line found.
	DetectNoHeader DetectErrorKind = iota
	// DetectParseFailed: no candidate could parse the header.
	DetectParseFailed
	// DetectAmbiguous: tied candidates with differing samples.
	DetectAmbiguous
	// DetectSingleColumn: the auto-detected winner has a one-field header.
	DetectSingleColumn
)

// DetectError reports why auto-detection could not fix a dialect.
type DetectError struct {
	Kind DetectErrorKind
	// Tied lists the tied delimiters (DetectAmbiguous), in candidate order.
	Tied []byte
	// Delimiter is the winning delimiter (DetectSingleColumn).
	Delimiter byte
	// Line is the first parse error line, when known (DetectParseFailed).
	Line    uint64
	HasLine bool
}

func (e *DetectError) Error() string {
	switch e.Kind {
	case DetectNoHeader:
		return "no header line found"
	case DetectParseFailed:
		return "no delimiter candidate could parse the header"
	case DetectAmbiguous:
		return "ambiguous delimiter"
	default:
		return "single-column header under auto-detection"
	}
}

type candidateSample struct {
	delimiter    byte
	escape       EscapeMode
	headerFields int
	score        Score
	records      [][][]byte
}

type sampleParse struct {
	escape       EscapeMode
	headerFields int
	score        Score
	records      [][][]byte
	err          *ParseError
}

// AutoDetect scores every candidate delimiter over a bounded sample and
// picks the best dialect, refusing when the choice would be ambiguous or
// the winner looks single-column.
func AutoDetect(input []byte) (*Dialect, *DetectError) {
	trimmed := skipLeadingBlankLines(input)
	if len(trimmed) == 0 {
		return nil, &DetectError{Kind: DetectNoHeader}
	}

	var candidates []candidateSample
	var firstErr *ParseError

	for _, delimiter := range CandidateDelimiters {
		if sample, ok := scoreDelimiter(trimmed, delimiter, &firstErr); ok {
			candidates = append(candidates, sample)
		}
	}

	if len(candidates) == 0 {
		detect := &DetectError{Kind: DetectParseFailed}
		if firstErr != nil && firstErr.HasLine {
			detect.Line = firstErr.Line
			detect.HasLine = true
		}
		return nil, detect
	}

	best := candidates[0].score
	for _, candidate := range candidates[1:] {
		if best.less(candidate.score) {
			best = candidate.score
		}
	}

	var tied []candidateSample
	for _, candidate := range candidates {
		if candidate.score == best {
			tied = append(tied, candidate)
		}
	}

	chosen := tied[0]
	if len(tied) > 1 {
		if !samplesIdentical(tied) {
			delimiters := make([]byte, len(tied))
			for i, candidate := range tied {
				delimiters[i] = candidate.delimiter
			}
			return nil, &DetectError{Kind: DetectAmbiguous, Tied: delimiters}
		}
		// Byte-identical samples break deterministically by candidate order;
		// tied preserves it.
	}

	if chosen.headerFields == 1 {
		return nil, &DetectError{Kind: DetectSingleColumn, Delimiter: chosen.delimiter}
	}

	return &Dialect{
		Delimiter:    chosen.delimiter,
		Quote:        '"',
		Escape:       chosen.escape,
		HeaderFields: chosen.headerFields,
		Score:        chosen.score,
	}, nil
}

func scoreDelimiter(input []byte, delimiter byte, firstErr **ParseError) (candidateSample, bool) {
	rfc := sampleWithEscape(input, delimiter, EscapeNone)
	rfcFailed := rfc.err != nil
	if rfc.err != nil && *firstErr == nil {
		*firstErr = rfc.err
	}

	chosen := rfc
	if rfcFailed {
		backslash := sampleWithEscape(input, delimiter, EscapeBackslash)
		if backslash.err != nil && *firstErr == nil {
			*firstErr = backslash.err
		}
		if rfc.score.less(backslash.score) {
			chosen = backslash
		}
	}

	if chosen.score.RecordsParsed == 0 {
		return candidateSample{}, false
	}

	return candidateSample{
		delimiter:    delimiter,
		escape:       chosen.escape,
		headerFields: chosen.headerFields,
		score:        chosen.score,
		records:      chosen.records,
	}, true
}

func sampleWithEscape(input []byte, delimiter byte, escape EscapeMode) sampleParse {
	if err := ValidateQuotes(input, delimiter, escape); err != nil {
		return sampleParse{escape: escape, err: err}
	}

	reader := NewReader(input, delimiter, escape)
	histogram := make(map[int]uint64)
	out := sampleParse{escape: escape}
	seenHeader := false
	dataRecords := 0

	for {
		fields, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			out.err = err.(*ParseError)
			break
		}

		if !seenHeader {
			seenHeader = true
			out.headerFields = len(fields)
			out.score.RecordsParsed++
			histogram[effectiveFieldCount(fields, out.headerFields)]++
			out.records = append(out.records, normalizeForCompare(fields, out.headerFields))
		} else {
			if !IsBlankRecord(fields) {
				dataRecords++
				if dataRecords > maxSampleDataRecords {
					break
				}
			}
			out.score.RecordsParsed++
			histogram[effectiveFieldCount(fields, out.headerFields)]++
			out.records = append(out.records, normalizeForCompare(fields, out.headerFields))
		}

		if reader.Offset() >= maxSampleBytes {
			break
		}
	}

	out.score.ModeCount, out.score.ModeFields = computeMode(histogram)
	return out
}

func computeMode(histogram map[int]uint64) (uint64, int) {
	var modeCount uint64
	modeFields := 0
	for fields, count := range histogram {
		if count > modeCount || (count == modeCount && fields > modeFields) {
			modeCount = count
			modeFields = fields
		}
	}
	return modeCount, modeFields
}

// effectiveFieldCount counts a short record, or one whose extras are all
// blank, as the header width for histogram purposes.
func effectiveFieldCount(fields [][]byte, headerFields int) int {
	if len(fields) <= headerFields {
		return headerFields
	}
	for _, field := range fields[headerFields:] {
		if !textutil.IsBlankSlice(field) {
			return len(fields)
		}
	}
	return headerFields
}

func normalizeForCompare(fields [][]byte, headerFields int) [][]byte {
	normalized := CopyRecord(fields)
	if len(normalized) < headerFields {
		for len(normalized) < headerFields {
			normalized = append(normalized, nil)
		}
		return normalized
	}
	for len(normalized) > headerFields {
		if !textutil.IsBlankSlice(normalized[len(normalized)-1]) {
			break
		}
		normalized = normalized[:len(normalized)-1]
	}
	return normalized
}

func samplesIdentical(candidates []candidateSample) bool {
	first := candidates[0].records
	for _, candidate := range candidates[1:] {
		if !recordsEqual(first, candidate.records) {
			return false
		}
	}
	return true
}

func recordsEqual(a, b [][][]byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if len(a[i]) != len(b[i]) {
			return false
		}
		for j := range a[i] {
			if !bytes.Equal(a[i][j], b[i][j]) {
				return false
			}
		}
	}
	return true
}

func skipLeadingBlankLines(input []byte) []byte {
	offset := 0
	for _, line := range bytes.Split(input, []byte{'\n'}) {
		if IsBlankLine(line) {
			offset += len(line) + 1
			continue
		}
		if offset > len(input) {
			return nil
		}
		return input[offset:]
	}
	return nil
}
