package refusal

import (
	"fmt"

	"github.com/cmdrvl/rvl/pkg/format"
)

// FileSide names which input file a refusal example refers to.
type FileSide int

const (
	OldFile FileSide = iota
	NewFile
)

func (s FileSide) String() string {
	if s == NewFile {
		return "new"
	}
	return "old"
}

// EncodingIssue distinguishes the encoding guard failures.
type EncodingIssue int

const (
	IssueUTF16 EncodingIssue = iota
	IssueUTF32
	IssueNulByte
)

// RerunPaths carries the operator's file arguments for rerun suggestions.
type RerunPaths struct {
	Old string
	New string
}

// Kind is a code-specific refusal payload. Each kind knows its code, its
// default Next remediation, and its JSON detail shape.
type Kind interface {
	Code() Code
	DefaultNext(paths RerunPaths) string
	JSONDetail() map[string]any
}

// Payload is a complete refusal: code plus detail plus Next guidance.
type Payload struct {
	Code Code
	Kind Kind
	// Next-step remediation or rerun guidance (without the "Next:" prefix).
	Next string
}

// New builds a payload with the kind's default Next guidance.
func New(kind Kind, paths RerunPaths) Payload {
	return Payload{Code: kind.Code(), Kind: kind, Next: kind.DefaultNext(paths)}
}

// WithNext builds a payload with explicit Next guidance.
func WithNext(kind Kind, next string) Payload {
	return Payload{Code: kind.Code(), Kind: kind, Next: next}
}

// IO reports a file read failure.
type IO struct {
	File FileSide
	Err  string
}

func (IO) Code() Code { return CodeIO }

func (IO) DefaultNext(RerunPaths) string {
	return "check file paths/permissions and rerun"
}

func (k IO) JSONDetail() map[string]any {
	return map[string]any{"file": k.File.String(), "error": k.Err}
}

// Encoding reports a refused input encoding.
type Encoding struct {
	File  FileSide
	Issue EncodingIssue
}

func (Encoding) Code() Code { return CodeEncoding }

func (Encoding) DefaultNext(RerunPaths) string {
	return "convert/re-export both files as UTF-8 CSV and rerun"
}

func (k Encoding) JSONDetail() map[string]any {
	issue := "nul_byte"
	switch k.Issue {
	case IssueUTF16:
		issue = "utf16"
	case IssueUTF32:
		issue = "utf32"
	}
	return map[string]any{"file": k.File.String(), "issue": issue}
}

// IssueLabel renders the encoding issue for the human example line.
func (k Encoding) IssueLabel() string {
	switch k.Issue {
	case IssueUTF16:
		return "a UTF-16 BOM"
	case IssueUTF32:
		return "a UTF-32 BOM"
	default:
		return "a NUL byte in the first 8KB"
	}
}

// CSVParse reports a hard parse failure under every escape mode.
type CSVParse struct {
	File FileSide
	// Line is the 1-based line of the first failure, when known.
	Line    uint64
	HasLine bool
}

func (CSVParse) Code() Code { return CodeCSVParse }

func (CSVParse) DefaultNext(RerunPaths) string {
	return "re-export as standard CSV (RFC4180 quoting) and rerun"
}

func (k CSVParse) JSONDetail() map[string]any {
	detail := map[string]any{"file": k.File.String(), "line": nil, "column": nil}
	if k.HasLine {
		detail["line"] = k.Line
	}
	return detail
}

// MissingHeader reports a file with no header record.
type MissingHeader struct {
	File FileSide
}

func (MissingHeader) Code() Code { return CodeHeaders }

func (MissingHeader) DefaultNext(RerunPaths) string {
	return "ensure the file has a header row and rerun"
}

func (k MissingHeader) JSONDetail() map[string]any {
	return map[string]any{"file": k.File.String(), "issue": "missing_header"}
}

// DuplicateHeader reports a duplicate normalized header name.
type DuplicateHeader struct {
	File FileSide
	Name []byte
}

func (DuplicateHeader) Code() Code { return CodeHeaders }

func (DuplicateHeader) DefaultNext(RerunPaths) string {
	return "make header names unique and rerun"
}

func (k DuplicateHeader) JSONDetail() map[string]any {
	return map[string]any{
		"file":  k.File.String(),
		"issue": "duplicate",
		"name":  format.JSONIdentifier(k.Name),
	}
}

// ExtraFields reports a data record with non-empty fields past the header width.
type ExtraFields struct {
	File   FileSide
	Record uint64
}

func (ExtraFields) Code() Code { return CodeHeaders }

func (ExtraFields) DefaultNext(RerunPaths) string {
	return "remove extra columns or re-export with consistent headers, then rerun"
}

func (k ExtraFields) JSONDetail() map[string]any {
	return map[string]any{
		"file":   k.File.String(),
		"issue":  "extra_fields",
		"record": k.Record,
	}
}

// NoKey reports a --key column absent from one or both files.
type NoKey struct {
	KeyColumn []byte
}

func (NoKey) Code() Code { return CodeNoKey }

func (k NoKey) DefaultNext(paths RerunPaths) string {
	return fmt.Sprintf("rvl %s %s --key %s", paths.Old, paths.New, format.JSONIdentifier(k.KeyColumn))
}

func (k NoKey) JSONDetail() map[string]any {
	return map[string]any{"key_column": format.JSONIdentifier(k.KeyColumn)}
}

// KeyEmpty reports an empty key value in a non-blank record.
type KeyEmpty struct {
	File      FileSide
	Record    uint64
	KeyColumn []byte
}

func (KeyEmpty) Code() Code { return CodeKeyEmpty }

func (KeyEmpty) DefaultNext(RerunPaths) string {
	return "choose a key column with no empty values (or fill missing keys), then rerun"
}

func (k KeyEmpty) JSONDetail() map[string]any {
	return map[string]any{
		"file":   k.File.String(),
		"record": k.Record,
		"column": format.JSONIdentifier(k.KeyColumn),
	}
}

// KeyDup reports the first duplicated key value within a file.
type KeyDup struct {
	File     FileSide
	Record   uint64
	KeyValue []byte
}

func (KeyDup) Code() Code { return CodeKeyDup }

func (KeyDup) DefaultNext(RerunPaths) string {
	return "choose a unique key column or dedupe the data, then rerun"
}

func (k KeyDup) JSONDetail() map[string]any {
	return map[string]any{
		"file":   k.File.String(),
		"record": k.Record,
		"key":    format.JSONIdentifier(k.KeyValue),
	}
}

// KeyMismatch reports a symmetric difference between the two key sets.
type KeyMismatch struct {
	MissingInNew   int
	ExtraInNew     int
	MissingSamples [][]byte
	ExtraSamples   [][]byte
}

func (KeyMismatch) Code() Code { return CodeKeyMismatch }

func (KeyMismatch) DefaultNext(RerunPaths) string {
	return "export comparable scopes or fix the join key, then rerun"
}

func (k KeyMismatch) JSONDetail() map[string]any {
	return map[string]any{
		"missing_in_new":  k.MissingInNew,
		"extra_in_new":    k.ExtraInNew,
		"missing_samples": encodeIdentifiers(k.MissingSamples),
		"extra_samples":   encodeIdentifiers(k.ExtraSamples),
	}
}

// RowCount reports a row-order count mismatch after blank skipping.
type RowCount struct {
	RowsOld       uint64
	RowsNew       uint64
	SuggestedKeys [][]byte
}

func (RowCount) Code() Code { return CodeRowCount }

func (k RowCount) DefaultNext(paths RerunPaths) string {
	if len(k.SuggestedKeys) > 0 {
		return fmt.Sprintf(
			"rvl %s %s --key %s to get a missing/extra-keys report (or export comparable scopes)",
			paths.Old, paths.New, format.JSONIdentifier(k.SuggestedKeys[0]))
	}
	return "export comparable scopes or rerun with --key <column>"
}

func (k RowCount) JSONDetail() map[string]any {
	return map[string]any{
		"rows_old":       k.RowsOld,
		"rows_new":       k.RowsNew,
		"suggested_keys": encodeIdentifiers(k.SuggestedKeys),
	}
}

// NeedKey reports a detected reorder under a perfect key candidate.
type NeedKey struct {
	SuggestedKeys [][]byte
}

func (NeedKey) Code() Code { return CodeNeedKey }

func (k NeedKey) DefaultNext(paths RerunPaths) string {
	if len(k.SuggestedKeys) > 0 {
		return fmt.Sprintf("rvl %s %s --key %s", paths.Old, paths.New, format.JSONIdentifier(k.SuggestedKeys[0]))
	}
	return "rerun with --key <column>"
}

func (k NeedKey) JSONDetail() map[string]any {
	return map[string]any{"suggested_keys": encodeIdentifiers(k.SuggestedKeys)}
}

// Dialect reports an ambiguous or undetectable delimiter.
type Dialect struct {
	File           FileSide
	TiedDelimiters []byte
	// SuggestSep proposes adding a sep= directive instead of a flag rerun.
	SuggestSep bool
	Suggested  byte
}

func (Dialect) Code() Code { return CodeDialect }

func (k Dialect) DefaultNext(paths RerunPaths) string {
	if k.SuggestSep {
		if sep, ok := sepDirective(k.Suggested); ok {
			return fmt.Sprintf("add `%s` as the first non-blank line of the %s file (no whitespace), then rerun",
				sep, k.File)
		}
	}
	return fmt.Sprintf("rvl %s %s --delimiter %s", paths.Old, paths.New, DelimiterHint(k.Suggested))
}

func (k Dialect) JSONDetail() map[string]any {
	tied := make([]string, len(k.TiedDelimiters))
	for i, b := range k.TiedDelimiters {
		tied[i] = string(rune(b))
	}
	suggestion := "--delimiter " + DelimiterHint(k.Suggested)
	if k.SuggestSep {
		suggestion = "sep=" + string(rune(k.Suggested))
	}
	return map[string]any{
		"file":            k.File.String(),
		"tied_delimiters": tied,
		"suggestion":      suggestion,
	}
}

// MixedTypes reports a column with numeric and non-numeric values.
type MixedTypes struct {
	File   FileSide
	Record uint64
	Column []byte
	Value  []byte
	// KeyValue is set in key mode so the example cites the key, not the record.
	KeyValue []byte
}

func (MixedTypes) Code() Code { return CodeMixedTypes }

func (MixedTypes) DefaultNext(RerunPaths) string {
	return "normalize column values to numeric (or exclude the column) and rerun"
}

func (k MixedTypes) JSONDetail() map[string]any {
	detail := map[string]any{
		"file":   k.File.String(),
		"record": k.Record,
		"column": format.JSONIdentifier(k.Column),
		"value":  format.JSONIdentifier(k.Value),
	}
	if k.KeyValue != nil {
		detail["key"] = format.JSONIdentifier(k.KeyValue)
	}
	return detail
}

// NoNumeric reports that no common column is numeric.
type NoNumeric struct{}

func (NoNumeric) Code() Code { return CodeNoNumeric }

func (NoNumeric) DefaultNext(RerunPaths) string {
	return "ensure common numeric columns exist (or adjust inputs) and rerun"
}

func (NoNumeric) JSONDetail() map[string]any {
	return map[string]any{}
}

// Missingness reports a missing-vs-numeric pair in a column.
type Missingness struct {
	File     FileSide
	Record   uint64
	Column   []byte
	Value    []byte
	KeyValue []byte
}

func (Missingness) Code() Code { return CodeMissingness }

func (Missingness) DefaultNext(RerunPaths) string {
	return "fill missing values or remove the column, then rerun"
}

func (k Missingness) JSONDetail() map[string]any {
	detail := map[string]any{
		"file":   k.File.String(),
		"record": k.Record,
		"column": format.JSONIdentifier(k.Column),
		"value":  format.JSONIdentifier(k.Value),
	}
	if k.KeyValue != nil {
		detail["key"] = format.JSONIdentifier(k.KeyValue)
	}
	return detail
}

// Diffuse reports top-K coverage below the threshold.
type Diffuse struct {
	TopKCoverage float64
	Threshold    float64
}

func (Diffuse) Code() Code { return CodeDiffuse }

func (Diffuse) DefaultNext(paths RerunPaths) string {
	return fmt.Sprintf("rvl %s %s --threshold 0.80", paths.Old, paths.New)
}

func (k Diffuse) JSONDetail() map[string]any {
	return map[string]any{
		"top_k_coverage": k.TopKCoverage,
		"threshold":      k.Threshold,
	}
}

// DelimiterHint renders a delimiter byte for a --delimiter suggestion:
// the well-known names, or 0xNN for anything else.
func DelimiterHint(delimiter byte) string {
	switch delimiter {
	case ',':
		return "comma"
	case '\t':
		return "tab"
	case ';':
		return "semicolon"
	case '|':
		return "pipe"
	case '^':
		return "caret"
	default:
		return fmt.Sprintf("0x%02X", delimiter)
	}
}

// DelimiterName renders a delimiter byte for tied-delimiter lists.
func DelimiterName(delimiter byte) string {
	return DelimiterHint(delimiter)
}

func sepDirective(delimiter byte) (string, bool) {
	if delimiter == '"' || delimiter == '\r' || delimiter == '\n' {
		return "", false
	}
	if delimiter >= 0x21 && delimiter <= 0x7e {
		return "sep=" + string(rune(delimiter)), true
	}
	return "", false
}

func encodeIdentifiers(values [][]byte) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = format.JSONIdentifier(v)
	}
	return out
}
