package pipeline

import (
	"io"

	"go.uber.org/zap"

	"github.com/cmdrvl/rvl/pkg/csvio"
	"github.com/cmdrvl/rvl/pkg/logger"
	"github.com/cmdrvl/rvl/pkg/refusal"
	"github.com/cmdrvl/rvl/pkg/schema"
)

// parsedCSV is one fully-read input: dialect plus normalized header and
// width-normalized data records (blank records skipped).
type parsedCSV struct {
	delimiter byte
	escape    csvio.EscapeMode
	headers   [][]byte
	records   [][][]byte
}

// parseFile runs C1-C4 for one input: bytes, encoding guard, sep= scan,
// dialect selection, record iteration, header normalization, and width
// normalization. Any failure comes back as a refusal payload.
func parseFile(path string, side refusal.FileSide, forced *byte, paths refusal.RerunPaths) (*parsedCSV, *refusal.Payload) {
	raw, err := csvio.ReadInput(path)
	if err != nil {
		payload := refusal.New(refusal.IO{File: side, Err: err.Error()}, paths)
		return nil, &payload
	}

	guarded, issue := csvio.GuardBytes(raw)
	if issue != nil {
		payload := refusal.New(refusal.Encoding{File: side, Issue: mapEncodingIssue(*issue)}, paths)
		return nil, &payload
	}

	sep := csvio.ScanSepDirective(guarded)

	delimiter, escape, payload := chooseDialect(guarded, side, forced, sep, paths)
	if payload != nil {
		return nil, payload
	}

	logger.Get().Debug("dialect fixed",
		zap.String("file", side.String()),
		zap.Uint8("delimiter", delimiter),
		zap.String("escape", escape.Display()))

	reader := csvio.NewReader(guarded, delimiter, escape)
	var headers [][]byte
	var records [][][]byte
	dataIndex := uint64(0)
	sepConsumed := !sep.Directive

	for {
		fields, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			parseErr := err.(*csvio.ParseError)
			payload := refusal.New(refusal.CSVParse{
				File:    side,
				Line:    parseErr.Line,
				HasLine: parseErr.HasLine,
			}, paths)
			return nil, &payload
		}

		if headers == nil {
			if csvio.IsBlankRecord(fields) && len(fields) == 1 {
				continue
			}
			if !sepConsumed {
				sepConsumed = true
				continue
			}
			normalized, dupErr := schema.NormalizeHeaders(csvio.CopyRecord(fields))
			if dupErr != nil {
				payload := refusal.New(refusal.DuplicateHeader{File: side, Name: dupErr.Name}, paths)
				return nil, &payload
			}
			headers = normalized
			continue
		}

		if csvio.IsBlankRecord(fields) {
			continue
		}

		dataIndex++
		normalized, widthErr := csvio.NormalizeWidth(fields, len(headers), dataIndex)
		if widthErr != nil {
			payload := refusal.New(refusal.ExtraFields{File: side, Record: widthErr.RecordNumber}, paths)
			return nil, &payload
		}
		records = append(records, csvio.CopyRecord(normalized))
	}

	if headers == nil {
		payload := refusal.New(refusal.MissingHeader{File: side}, paths)
		return nil, &payload
	}

	return &parsedCSV{
		delimiter: delimiter,
		escape:    escape,
		headers:   headers,
		records:   records,
	}, nil
}

// chooseDialect applies the delimiter precedence: --delimiter over sep=
// over auto-detection.
func chooseDialect(input []byte, side refusal.FileSide, forced *byte, sep csvio.SepScan, paths refusal.RerunPaths) (byte, csvio.EscapeMode, *refusal.Payload) {
	fixed := func(delimiter byte) (byte, csvio.EscapeMode, *refusal.Payload) {
		escape, err := csvio.DetectEscapeMode(input, delimiter)
		if err != nil {
			payload := refusal.New(refusal.CSVParse{
				File:    side,
				Line:    err.Line,
				HasLine: err.HasLine,
			}, paths)
			return 0, csvio.EscapeNone, &payload
		}
		return delimiter, escape, nil
	}

	if forced != nil {
		return fixed(*forced)
	}
	if sep.Directive {
		return fixed(sep.Delimiter)
	}

	dialect, detectErr := csvio.AutoDetect(input)
	if detectErr != nil {
		payload := mapDetectError(detectErr, side, paths)
		return 0, csvio.EscapeNone, &payload
	}
	return dialect.Delimiter, dialect.Escape, nil
}

func mapDetectError(err *csvio.DetectError, side refusal.FileSide, paths refusal.RerunPaths) refusal.Payload {
	switch err.Kind {
	case csvio.DetectNoHeader:
		return refusal.New(refusal.MissingHeader{File: side}, paths)
	case csvio.DetectParseFailed:
		return refusal.New(refusal.CSVParse{File: side, Line: err.Line, HasLine: err.HasLine}, paths)
	case csvio.DetectAmbiguous:
		suggested := byte(',')
		if len(err.Tied) > 0 {
			suggested = err.Tied[0]
		}
		return refusal.New(refusal.Dialect{
			File:           side,
			TiedDelimiters: err.Tied,
			SuggestSep:     true,
			Suggested:      suggested,
		}, paths)
	default:
		return refusal.New(refusal.Dialect{
			File:           side,
			TiedDelimiters: []byte{err.Delimiter},
			Suggested:      err.Delimiter,
		}, paths)
	}
}

func mapEncodingIssue(issue csvio.EncodingIssue) refusal.EncodingIssue {
	switch issue {
	case csvio.IssueUTF16BOM:
		return refusal.IssueUTF16
	case csvio.IssueUTF32BOM:
		return refusal.IssueUTF32
	default:
		return refusal.IssueNulByte
	}
}
