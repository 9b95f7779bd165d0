package output

import (
	json "github.com/goccy/go-json"

	"github.com/cmdrvl/rvl/pkg/diff"
	"github.com/cmdrvl/rvl/pkg/refusal"
)

// SchemaVersion is the stable JSON schema identifier.
const SchemaVersion = "rvl.v0"

// Outcome values for the JSON object.
const (
	OutcomeRealChange   = "REAL_CHANGE"
	OutcomeNoRealChange = "NO_REAL_CHANGE"
	OutcomeRefusal      = "REFUSAL"
)

// Files names the two compared inputs.
type Files struct {
	Old string `json:"old"`
	New string `json:"new"`
}

// JSONAlignment is the alignment block.
type JSONAlignment struct {
	Mode string `json:"mode"`
	// KeyColumn uses the JSON identifier encoding; null in row-order mode.
	KeyColumn *string `json:"key_column"`
}

// KeyAlignment builds a key-mode alignment block.
func KeyAlignment(encodedKeyColumn string) JSONAlignment {
	return JSONAlignment{Mode: "key", KeyColumn: &encodedKeyColumn}
}

// RowOrderAlignment builds a row-order alignment block.
func RowOrderAlignment() JSONAlignment {
	return JSONAlignment{Mode: "row_order"}
}

// JSONDialectSide is one file's dialect with byte values as one-character
// strings (tab = "\t", backslash escape = "\\").
type JSONDialectSide struct {
	Delimiter string  `json:"delimiter"`
	Quote     string  `json:"quote"`
	Escape    *string `json:"escape"`
}

// NewJSONDialectSide converts a dialect receipt into its JSON form.
func NewJSONDialectSide(delimiter, quote byte, escape *byte) JSONDialectSide {
	side := JSONDialectSide{
		Delimiter: string(rune(delimiter)),
		Quote:     string(rune(quote)),
	}
	if escape != nil {
		s := string(rune(*escape))
		side.Escape = &s
	}
	return side
}

// JSONDialect pairs both files' dialects; sides are null when unknown.
type JSONDialect struct {
	Old *JSONDialectSide `json:"old"`
	New *JSONDialectSide `json:"new"`
}

// Counts carries the row/column tallies. Fields are null when a refusal
// fired before they were computed.
type Counts struct {
	RowsOld             *uint64 `json:"rows_old"`
	RowsNew             *uint64 `json:"rows_new"`
	RowsAligned         *uint64 `json:"rows_aligned"`
	ColumnsOld          *uint64 `json:"columns_old"`
	ColumnsNew          *uint64 `json:"columns_new"`
	ColumnsCommon       *uint64 `json:"columns_common"`
	ColumnsOldOnly      *uint64 `json:"columns_old_only"`
	ColumnsNewOnly      *uint64 `json:"columns_new_only"`
	NumericColumns      *uint64 `json:"numeric_columns"`
	NumericCellsChecked *uint64 `json:"numeric_cells_checked"`
	NumericCellsChanged *uint64 `json:"numeric_cells_changed"`
}

// Metrics carries the diff totals; null when not computed.
type Metrics struct {
	TotalChange  *float64 `json:"total_change"`
	MaxAbsDelta  *float64 `json:"max_abs_delta"`
	TopKCoverage *float64 `json:"top_k_coverage"`
}

// Limits documents the bounded top-K size.
type Limits struct {
	MaxContributors uint64 `json:"max_contributors"`
}

// JSONContributor is one ranked contributor.
type JSONContributor struct {
	RowID           string  `json:"row_id"`
	Column          string  `json:"column"`
	Old             float64 `json:"old"`
	New             float64 `json:"new"`
	Delta           float64 `json:"delta"`
	Contribution    float64 `json:"contribution"`
	Share           float64 `json:"share"`
	CumulativeShare float64 `json:"cumulative_share"`
}

// JSONRefusal is the refusal block.
type JSONRefusal struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Detail  map[string]any `json:"detail"`
}

// Object is the single JSON output object (schema rvl.v0).
type Object struct {
	Version      string            `json:"version"`
	Outcome      string            `json:"outcome"`
	Files        Files             `json:"files"`
	Alignment    JSONAlignment     `json:"alignment"`
	Dialect      JSONDialect       `json:"dialect"`
	Threshold    float64           `json:"threshold"`
	Tolerance    float64           `json:"tolerance"`
	Counts       Counts            `json:"counts"`
	Metrics      Metrics           `json:"metrics"`
	Limits       Limits            `json:"limits"`
	Contributors []JSONContributor `json:"contributors"`
	Refusal      *JSONRefusal      `json:"refusal"`
}

// Context groups the fields shared by all three outcomes.
type Context struct {
	Files     Files
	Alignment JSONAlignment
	Dialect   JSONDialect
	Threshold float64
	Tolerance float64
	Counts    Counts
	Metrics   Metrics
}

// RealChangeObject assembles a REAL_CHANGE object.
func RealChangeObject(ctx Context, contributors []JSONContributor) Object {
	return newObject(ctx, OutcomeRealChange, contributors, nil)
}

// NoRealChangeObject assembles a NO_REAL_CHANGE object.
func NoRealChangeObject(ctx Context) Object {
	return newObject(ctx, OutcomeNoRealChange, []JSONContributor{}, nil)
}

// RefusalObject assembles a REFUSAL object.
func RefusalObject(ctx Context, payload refusal.Payload) Object {
	block := &JSONRefusal{
		Code:    payload.Code.String(),
		Message: payload.Code.Reason(),
		Detail:  payload.Kind.JSONDetail(),
	}
	return newObject(ctx, OutcomeRefusal, []JSONContributor{}, block)
}

func newObject(ctx Context, outcome string, contributors []JSONContributor, block *JSONRefusal) Object {
	return Object{
		Version:      SchemaVersion,
		Outcome:      outcome,
		Files:        ctx.Files,
		Alignment:    ctx.Alignment,
		Dialect:      ctx.Dialect,
		Threshold:    ctx.Threshold,
		Tolerance:    ctx.Tolerance,
		Counts:       ctx.Counts,
		Metrics:      ctx.Metrics,
		Limits:       Limits{MaxContributors: diff.MaxContributors},
		Contributors: contributors,
		Refusal:      block,
	}
}

// Render serializes the object as a single JSON document.
func (o Object) Render() (string, error) {
	data, err := json.Marshal(o)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// U64 returns a pointer to v, for nullable count fields.
func U64(v uint64) *uint64 { return &v }

// F64 returns a pointer to v, for nullable metric fields.
func F64(v float64) *float64 { return &v }
