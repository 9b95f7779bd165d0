// Package output renders the verdict receipts: the fixed human header
// block with per-outcome bodies, and the stable JSON object.
package output

import (
	"fmt"
	"strings"

	"github.com/cmdrvl/rvl/pkg/format"
	"github.com/cmdrvl/rvl/pkg/refusal"
)

// Alignment is the display form of the alignment mode.
type Alignment struct {
	// KeyLabel is the human-rendered key column; empty means row-order.
	KeyLabel string
	Keyed    bool
}

func (a Alignment) render() string {
	if a.Keyed {
		return "key=" + a.KeyLabel
	}
	return "row-order (no key)"
}

// ColumnCounts feeds the Columns header line.
type ColumnCounts struct {
	Common  uint64
	OldOnly uint64
	NewOnly uint64
}

// CheckedCounts feeds the Checked header line.
type CheckedCounts struct {
	Rows           uint64
	NumericColumns uint64
	Cells          uint64
}

// DialectReceipt is the printable dialect triple for one file.
type DialectReceipt struct {
	Delimiter byte
	Quote     byte
	// Escape is nil for RFC4180 quoting.
	Escape *byte
}

// Settings feeds the Settings header line.
type Settings struct {
	Threshold float64
	Tolerance float64
}

// VerdictHeader is the full header block for REAL / NO REAL CHANGE.
type VerdictHeader struct {
	OldName    string
	NewName    string
	Alignment  Alignment
	Columns    ColumnCounts
	Checked    CheckedCounts
	DialectOld DialectReceipt
	DialectNew DialectReceipt
	Settings   Settings
}

// RefusalHeader is the reduced header block for refusals. Dialect lines are
// printed only when both dialects are known.
type RefusalHeader struct {
	OldName    string
	NewName    string
	Alignment  Alignment
	DialectOld *DialectReceipt
	DialectNew *DialectReceipt
	Settings   Settings
}

// RenderVerdictHeader renders the eight fixed header lines.
func RenderVerdictHeader(ctx VerdictHeader) []string {
	return []string{
		fmt.Sprintf("Compared: %s -> %s", ctx.OldName, ctx.NewName),
		"Alignment: " + ctx.Alignment.render(),
		fmt.Sprintf("Columns: common=%s old_only=%s new_only=%s",
			formatCount(ctx.Columns.Common),
			formatCount(ctx.Columns.OldOnly),
			formatCount(ctx.Columns.NewOnly)),
		fmt.Sprintf("Checked: %s rows, %s numeric columns (%s cells)",
			formatCount(ctx.Checked.Rows),
			formatCount(ctx.Checked.NumericColumns),
			formatCount(ctx.Checked.Cells)),
		"Dialect(old): " + renderDialect(ctx.DialectOld),
		"Dialect(new): " + renderDialect(ctx.DialectNew),
		"Ranking: abs(delta) (unscaled)",
		fmt.Sprintf("Settings: threshold=%s tolerance=%s",
			format.PercentOneDecimal(ctx.Settings.Threshold),
			format.FloatShortest(ctx.Settings.Tolerance)),
	}
}

// RenderRefusalHeader renders the header block for refusals.
func RenderRefusalHeader(ctx RefusalHeader) []string {
	lines := make([]string, 0, 5)
	lines = append(lines, fmt.Sprintf("Compared: %s -> %s", ctx.OldName, ctx.NewName))
	lines = append(lines, "Alignment: "+ctx.Alignment.render())
	if ctx.DialectOld != nil && ctx.DialectNew != nil {
		lines = append(lines, "Dialect(old): "+renderDialect(*ctx.DialectOld))
		lines = append(lines, "Dialect(new): "+renderDialect(*ctx.DialectNew))
	}
	lines = append(lines, fmt.Sprintf("Settings: threshold=%s tolerance=%s",
		format.PercentOneDecimal(ctx.Settings.Threshold),
		format.FloatShortest(ctx.Settings.Tolerance)))
	return lines
}

// HumanContributor is one rendered contributor line.
type HumanContributor struct {
	Label string
	Old   float64
	New   float64
	Delta float64
}

// RenderRealChangeBody renders the contributor listing.
func RenderRealChangeBody(contributors []HumanContributor, coverage, threshold float64) []string {
	cellsWord := "cells"
	if len(contributors) == 1 {
		cellsWord = "cell"
	}
	lines := make([]string, 0, len(contributors)+4)
	lines = append(lines, fmt.Sprintf("%d %s explain %s of total numeric change (threshold %s):",
		len(contributors), cellsWord,
		format.PercentOneDecimal(coverage),
		format.PercentOneDecimal(threshold)))
	lines = append(lines, "")
	for idx, contributor := range contributors {
		lines = append(lines, fmt.Sprintf("%d. %s  %s  (%s -> %s)",
			idx+1,
			contributor.Label,
			format.Delta(contributor.Delta),
			format.Value(contributor.Old),
			format.Value(contributor.New)))
	}
	lines = append(lines, "")
	lines = append(lines, "Everything else in common numeric columns is <= tolerance or in the tail (not required to reach threshold).")
	return lines
}

// RenderNoRealBody renders the NO REAL CHANGE body.
func RenderNoRealBody(maxAbsDelta, tolerance float64) []string {
	return []string{
		fmt.Sprintf("Max abs delta: %s (<= tolerance %s).",
			format.FloatShortest(maxAbsDelta),
			format.FloatShortest(tolerance)),
		"No numeric deltas above tolerance in common numeric columns.",
	}
}

// RenderRefusalBody renders the reason, first example, and Next lines.
func RenderRefusalBody(payload refusal.Payload, oldName, newName string) []string {
	return []string{
		"Cannot produce a verdict.",
		fmt.Sprintf("Reason (%s): %s.", payload.Code, payload.Code.Reason()),
		renderExampleLine(payload.Kind, oldName, newName),
		"Next: " + payload.Next,
	}
}

func renderExampleLine(kind refusal.Kind, oldName, newName string) string {
	fileLabel := func(side refusal.FileSide) string {
		if side == refusal.NewFile {
			return newName
		}
		return oldName
	}

	switch k := kind.(type) {
	case refusal.IO:
		return fmt.Sprintf("Example: %s file error: %s.", fileLabel(k.File), k.Err)
	case refusal.Encoding:
		return fmt.Sprintf("Example: %s contains %s.", fileLabel(k.File), k.IssueLabel())
	case refusal.CSVParse:
		if k.HasLine {
			return fmt.Sprintf("Example: %s parse error at line %s.", fileLabel(k.File), formatCount(k.Line))
		}
		return fmt.Sprintf("Example: %s parse error (line unknown).", fileLabel(k.File))
	case refusal.MissingHeader:
		return fmt.Sprintf("Example: %s has no header row.", fileLabel(k.File))
	case refusal.DuplicateHeader:
		return fmt.Sprintf("Example: %s has duplicate header \"%s\".", fileLabel(k.File), format.HumanIdentifier(k.Name))
	case refusal.ExtraFields:
		return fmt.Sprintf("Example: %s data record %s has non-empty extra fields.",
			fileLabel(k.File), formatCount(k.Record))
	case refusal.NoKey:
		return fmt.Sprintf("Example: key column \"%s\" not found in one or both files.",
			format.HumanIdentifier(k.KeyColumn))
	case refusal.KeyEmpty:
		return fmt.Sprintf("Example: %s data record %s has empty key in column \"%s\".",
			fileLabel(k.File), formatCount(k.Record), format.HumanIdentifier(k.KeyColumn))
	case refusal.KeyDup:
		return fmt.Sprintf("Example: %s data record %s duplicates key \"%s\".",
			fileLabel(k.File), formatCount(k.Record), format.HumanIdentifier(k.KeyValue))
	case refusal.KeyMismatch:
		line := fmt.Sprintf("Example: missing_in_new=%s extra_in_new=%s.",
			formatCount(uint64(k.MissingInNew)), formatCount(uint64(k.ExtraInNew)))
		if samples := renderSamples(k.MissingSamples); samples != "" {
			line += fmt.Sprintf(" missing samples: [%s].", samples)
		}
		if samples := renderSamples(k.ExtraSamples); samples != "" {
			line += fmt.Sprintf(" extra samples: [%s].", samples)
		}
		return line
	case refusal.RowCount:
		line := fmt.Sprintf("Example: row count mismatch (old=%s, new=%s).",
			formatCount(k.RowsOld), formatCount(k.RowsNew))
		if keys := renderSamples(k.SuggestedKeys); keys != "" {
			line += fmt.Sprintf(" suggested keys: [%s].", keys)
		}
		return line
	case refusal.NeedKey:
		if keys := renderSamples(k.SuggestedKeys); keys != "" {
			return fmt.Sprintf("Example: suggested key candidates: [%s].", keys)
		}
		return "Example: detected a reorder under a perfect key candidate."
	case refusal.Dialect:
		names := make([]string, len(k.TiedDelimiters))
		for i, b := range k.TiedDelimiters {
			names[i] = refusal.DelimiterName(b)
		}
		return fmt.Sprintf("Example: %s delimiter ambiguous among [%s].",
			fileLabel(k.File), strings.Join(names, ", "))
	case refusal.MixedTypes:
		column := format.HumanIdentifier(k.Column)
		value := format.HumanIdentifier(k.Value)
		if k.KeyValue != nil {
			return fmt.Sprintf("Example: key \"%s\" column \"%s\" has non-numeric value \"%s\".",
				format.HumanIdentifier(k.KeyValue), column, value)
		}
		return fmt.Sprintf("Example: %s data record %s column \"%s\" has non-numeric value \"%s\".",
			fileLabel(k.File), formatCount(k.Record), column, value)
	case refusal.NoNumeric:
		return "Example: no numeric columns in common."
	case refusal.Missingness:
		column := format.HumanIdentifier(k.Column)
		value := format.HumanIdentifier(k.Value)
		if k.KeyValue != nil {
			return fmt.Sprintf("Example: key \"%s\" column \"%s\" has numeric value \"%s\" while the other side is missing.",
				format.HumanIdentifier(k.KeyValue), column, value)
		}
		return fmt.Sprintf("Example: %s data record %s column \"%s\" has numeric value \"%s\" while the other side is missing.",
			fileLabel(k.File), formatCount(k.Record), column, value)
	case refusal.Diffuse:
		return fmt.Sprintf("Example: top_k_coverage=%s threshold=%s.",
			format.PercentOneDecimal(k.TopKCoverage),
			format.PercentOneDecimal(k.Threshold))
	default:
		return "Example: unavailable."
	}
}

func renderSamples(samples [][]byte) string {
	if len(samples) == 0 {
		return ""
	}
	out := make([]string, len(samples))
	for i, sample := range samples {
		out[i] = format.HumanIdentifier(sample)
	}
	return strings.Join(out, ", ")
}

func renderDialect(dialect DialectReceipt) string {
	return fmt.Sprintf("delimiter=%s quote=%s escape=%s",
		formatDelimiter(dialect.Delimiter),
		formatQuote(dialect.Quote),
		formatEscape(dialect.Escape))
}

func formatDelimiter(delimiter byte) string {
	if delimiter == '\t' {
		return "TAB"
	}
	if isVisibleASCII(delimiter) {
		return string(rune(delimiter))
	}
	return fmt.Sprintf("0x%02X", delimiter)
}

func formatQuote(quote byte) string {
	if isVisibleASCII(quote) {
		return string(rune(quote))
	}
	return fmt.Sprintf("0x%02X", quote)
}

func formatEscape(escape *byte) string {
	switch {
	case escape == nil:
		return "none"
	case *escape == '\\':
		return `\\`
	case isVisibleASCII(*escape):
		return string(rune(*escape))
	default:
		return fmt.Sprintf("0x%02X", *escape)
	}
}

func isVisibleASCII(b byte) bool {
	return b >= 0x21 && b <= 0x7e
}

func formatCount(value uint64) string {
	return format.IntWithCommas(int64(value))
}
