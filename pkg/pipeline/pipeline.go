// Package pipeline orchestrates one comparison: parse both inputs, align
// rows, run the streaming diff, select the verdict, and render the receipt.
package pipeline

import (
	"bytes"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/cmdrvl/rvl/pkg/align"
	"github.com/cmdrvl/rvl/pkg/config"
	"github.com/cmdrvl/rvl/pkg/diff"
	"github.com/cmdrvl/rvl/pkg/format"
	"github.com/cmdrvl/rvl/pkg/logger"
	"github.com/cmdrvl/rvl/pkg/numeric"
	"github.com/cmdrvl/rvl/pkg/output"
	"github.com/cmdrvl/rvl/pkg/refusal"
	"github.com/cmdrvl/rvl/pkg/schema"
)

// Request is one comparison to run.
type Request struct {
	OldPath  string
	NewPath  string
	Settings config.Settings
}

// Result is the rendered outcome.
type Result struct {
	Outcome Outcome
	Output  string
}

type alignmentContext struct {
	keyed   bool
	key     []byte
	rows    []align.AlignedRow
	rowsOld uint64
	rowsNew uint64
}

type refusalContext struct {
	key        []byte
	dialectOld *output.DialectReceipt
	dialectNew *output.DialectReceipt
	alignment  output.JSONAlignment
	counts     output.Counts
	metrics    output.Metrics
}

// Run executes the pipeline. The returned error is process-level only (an
// undecodable --key); every domain failure renders as a refusal result.
func Run(req Request) (Result, error) {
	paths := refusal.RerunPaths{Old: req.OldPath, New: req.NewPath}

	var key []byte
	if req.Settings.Key != "" {
		decoded, err := align.ParseKeyIdentifier(req.Settings.Key)
		if err != nil {
			return Result{}, err
		}
		key = decoded
	}

	var forced *byte
	if req.Settings.HasDelimiter {
		delimiter := req.Settings.Delimiter
		forced = &delimiter
	}

	old, payload := parseFile(req.OldPath, refusal.OldFile, forced, paths)
	if payload != nil {
		return renderRefusal(req, *payload, refusalContext{
			key:       key,
			alignment: alignmentBlock(key),
		}), nil
	}

	new, payload := parseFile(req.NewPath, refusal.NewFile, forced, paths)
	if payload != nil {
		return renderRefusal(req, *payload, refusalContext{
			key:        key,
			dialectOld: dialectReceipt(old),
			alignment:  alignmentBlock(key),
		}), nil
	}

	dialectOld := dialectReceipt(old)
	dialectNew := dialectReceipt(new)

	if key != nil {
		return runKeyMode(req, key, old, new, dialectOld, dialectNew, paths), nil
	}
	return runRowOrder(req, old, new, dialectOld, dialectNew, paths), nil
}

func runKeyMode(req Request, key []byte, old, new *parsedCSV, dialectOld, dialectNew *output.DialectReceipt, paths refusal.RerunPaths) Result {
	base := refusalContext{
		key:        key,
		dialectOld: dialectOld,
		dialectNew: dialectNew,
		alignment:  alignmentBlock(key),
	}

	oldKeyIndex := indexOfHeader(old.headers, key)
	newKeyIndex := indexOfHeader(new.headers, key)
	if oldKeyIndex < 0 || newKeyIndex < 0 {
		payload := refusal.New(refusal.NoKey{KeyColumn: key}, paths)
		return renderRefusal(req, payload, base)
	}

	rowsOld := uint64(len(old.records))
	rowsNew := uint64(len(new.records))

	oldMap, joinErr := align.BuildKeyMap(old.records, oldKeyIndex)
	if joinErr != nil {
		return renderRefusal(req, mapKeyJoinError(joinErr, refusal.OldFile, key, paths), base)
	}
	newMap, joinErr := align.BuildKeyMap(new.records, newKeyIndex)
	if joinErr != nil {
		return renderRefusal(req, mapKeyJoinError(joinErr, refusal.NewFile, key, paths), base)
	}

	aligned, joinErr := align.JoinKeyMaps(oldMap, newMap)
	if joinErr != nil {
		return renderRefusal(req, mapKeyJoinError(joinErr, refusal.NewFile, key, paths), base)
	}

	return runDiff(req, alignmentContext{
		keyed:   true,
		key:     key,
		rows:    aligned,
		rowsOld: rowsOld,
		rowsNew: rowsNew,
	}, old, new, dialectOld, dialectNew, paths)
}

func runRowOrder(req Request, old, new *parsedCSV, dialectOld, dialectNew *output.DialectReceipt, paths refusal.RerunPaths) Result {
	if len(old.records) != len(new.records) {
		candidates := align.DiscoverKeyCandidates(old.headers, new.headers, old.records, new.records)
		suggested := make([][]byte, 0, 3)
		for _, candidate := range candidates {
			if len(suggested) == 3 {
				break
			}
			suggested = append(suggested, candidate.Name)
		}

		payload := refusal.New(refusal.RowCount{
			RowsOld:       uint64(len(old.records)),
			RowsNew:       uint64(len(new.records)),
			SuggestedKeys: suggested,
		}, paths)

		intersection := schema.IntersectHeaders(old.headers, new.headers, nil)
		counts := output.Counts{
			RowsOld:        output.U64(uint64(len(old.records))),
			RowsNew:        output.U64(uint64(len(new.records))),
			ColumnsOld:     output.U64(schema.CountColumns(old.headers, nil)),
			ColumnsNew:     output.U64(schema.CountColumns(new.headers, nil)),
			ColumnsCommon:  output.U64(uint64(len(intersection.Common))),
			ColumnsOldOnly: output.U64(uint64(len(intersection.OldOnly))),
			ColumnsNewOnly: output.U64(uint64(len(intersection.NewOnly))),
		}
		return renderRefusal(req, payload, refusalContext{
			dialectOld: dialectOld,
			dialectNew: dialectNew,
			alignment:  output.RowOrderAlignment(),
			counts:     counts,
		})
	}

	rows := make([]align.AlignedRow, len(old.records))
	for idx := range old.records {
		record := uint64(idx + 1)
		rows[idx] = align.AlignedRow{
			Ref: align.RowRef{OldRecord: record, NewRecord: record},
			Old: old.records[idx],
			New: new.records[idx],
		}
	}

	return runDiff(req, alignmentContext{
		rows:    rows,
		rowsOld: uint64(len(old.records)),
		rowsNew: uint64(len(new.records)),
	}, old, new, dialectOld, dialectNew, paths)
}

func runDiff(req Request, alignCtx alignmentContext, old, new *parsedCSV, dialectOld, dialectNew *output.DialectReceipt, paths refusal.RerunPaths) Result {
	intersection := schema.IntersectHeaders(old.headers, new.headers, alignCtx.key)
	rowsAligned := uint64(len(alignCtx.rows))

	base := refusalContext{
		key:        alignCtx.key,
		dialectOld: dialectOld,
		dialectNew: dialectNew,
		alignment:  alignmentBlock(alignCtx.key),
	}

	numericColumns, typingErr := schema.DetectNumericColumns(intersection.Common, alignCtx.rows)
	if typingErr != nil {
		return renderRefusal(req, mapTypingError(typingErr, paths), base)
	}

	counts := output.Counts{
		RowsOld:             output.U64(alignCtx.rowsOld),
		RowsNew:             output.U64(alignCtx.rowsNew),
		RowsAligned:         output.U64(rowsAligned),
		ColumnsOld:          output.U64(schema.CountColumns(old.headers, alignCtx.key)),
		ColumnsNew:          output.U64(schema.CountColumns(new.headers, alignCtx.key)),
		ColumnsCommon:       output.U64(uint64(len(intersection.Common))),
		ColumnsOldOnly:      output.U64(uint64(len(intersection.OldOnly))),
		ColumnsNewOnly:      output.U64(uint64(len(intersection.NewOnly))),
		NumericColumns:      output.U64(uint64(len(numericColumns))),
		NumericCellsChecked: output.U64(rowsAligned * uint64(len(numericColumns))),
	}

	if len(numericColumns) == 0 {
		counts.NumericCellsChecked = output.U64(0)
		counts.NumericCellsChanged = output.U64(0)
		payload := refusal.New(refusal.NoNumeric{}, paths)
		base.counts = counts
		return renderRefusal(req, payload, base)
	}

	accumulator := diff.NewDefaultAccumulator()
	tolerance := diff.NewTolerance(req.Settings.Tolerance)
	numericCellsChanged := uint64(0)

	for _, row := range alignCtx.rows {
		rowID := rowIDFor(alignCtx, row)
		for _, column := range numericColumns {
			oldRaw := fieldAt(row.Old, column.OldIndex)
			newRaw := fieldAt(row.New, column.NewIndex)
			if numeric.IsMissing(oldRaw) && numeric.IsMissing(newRaw) {
				continue
			}
			oldVal, oldOK := numeric.Parse(oldRaw)
			newVal, newOK := numeric.Parse(newRaw)
			if !oldOK || !newOK {
				continue
			}
			delta, contribution := tolerance.Apply(oldVal, newVal)
			if contribution > 0 {
				numericCellsChanged++
			}
			accumulator.Observe(diff.CellID{Row: rowID, Column: column.Name}, oldVal, newVal, delta, contribution)
		}
	}

	counts.NumericCellsChanged = output.U64(numericCellsChanged)

	top := accumulator.Top()
	contributions := make([]float64, len(top))
	for i, contributor := range top {
		contributions[i] = contributor.Contribution
	}

	metrics := output.Metrics{
		TotalChange: output.F64(accumulator.TotalChange),
		MaxAbsDelta: output.F64(accumulator.MaxAbsDelta),
	}
	if accumulator.TotalChange > 0 {
		sum := 0.0
		for _, c := range contributions {
			sum += c
		}
		metrics.TopKCoverage = output.F64(sum / accumulator.TotalChange)
	}

	logger.Get().Debug("diff pass complete",
		zap.Float64("total_change", accumulator.TotalChange),
		zap.Float64("max_abs_delta", accumulator.MaxAbsDelta),
		zap.Uint64("numeric_cells_changed", numericCellsChanged))

	if !alignCtx.keyed && accumulator.TotalChange > 0 {
		detection := align.DetectShuffle(old.headers, new.headers, oldRecordsOf(alignCtx), newRecordsOf(alignCtx))
		if detection.Reordered {
			payload := refusal.New(refusal.NeedKey{SuggestedKeys: detection.SuggestedKeys}, paths)
			needKeyCounts := counts
			needKeyCounts.NumericCellsChecked = nil
			needKeyCounts.NumericCellsChanged = nil
			base.counts = needKeyCounts
			return renderRefusal(req, payload, base)
		}
	}

	coverage := diff.EvaluateCoverage(contributions, accumulator.TotalChange, req.Settings.Threshold)

	ctx := output.Context{
		Files:     output.Files{Old: req.OldPath, New: req.NewPath},
		Alignment: alignmentBlock(alignCtx.key),
		Dialect:   jsonDialect(dialectOld, dialectNew),
		Threshold: req.Settings.Threshold,
		Tolerance: req.Settings.Tolerance,
		Counts:    counts,
		Metrics:   metrics,
	}

	switch coverage.Decision {
	case diff.NoChange:
		return renderNoRealChange(req, ctx)
	case diff.Diffuse:
		payload := refusal.New(refusal.Diffuse{
			TopKCoverage: coverage.Achieved,
			Threshold:    req.Settings.Threshold,
		}, paths)
		base.counts = counts
		base.metrics = metrics
		return renderRefusal(req, payload, base)
	default:
		return renderRealChange(req, ctx, top[:coverage.Cutoff], accumulator.TotalChange, coverage.Achieved)
	}
}

func rowIDFor(alignCtx alignmentContext, row align.AlignedRow) diff.RowID {
	if alignCtx.keyed {
		return diff.KeyID(row.Ref.Key)
	}
	return diff.RowIndexID(row.Ref.OldRecord)
}

func oldRecordsOf(alignCtx alignmentContext) [][][]byte {
	out := make([][][]byte, len(alignCtx.rows))
	for i, row := range alignCtx.rows {
		out[i] = row.Old
	}
	return out
}

func newRecordsOf(alignCtx alignmentContext) [][][]byte {
	out := make([][][]byte, len(alignCtx.rows))
	for i, row := range alignCtx.rows {
		out[i] = row.New
	}
	return out
}

func mapKeyJoinError(err *align.KeyJoinError, file refusal.FileSide, key []byte, paths refusal.RerunPaths) refusal.Payload {
	switch err.Kind {
	case align.KeyEmptyError:
		return refusal.New(refusal.KeyEmpty{
			File:      file,
			Record:    err.RecordNumber,
			KeyColumn: key,
		}, paths)
	case align.KeyDupError:
		return refusal.New(refusal.KeyDup{
			File:     file,
			Record:   err.RecordNumber,
			KeyValue: err.Key,
		}, paths)
	default:
		return refusal.New(refusal.KeyMismatch{
			MissingInNew:   err.MissingCount,
			ExtraInNew:     err.ExtraCount,
			MissingSamples: err.MissingSamples,
			ExtraSamples:   err.ExtraSamples,
		}, paths)
	}
}

func mapTypingError(err *schema.TypingError, paths refusal.RerunPaths) refusal.Payload {
	file := refusal.OldFile
	record := err.Row.OldRecord
	if err.Side == schema.NewSide {
		file = refusal.NewFile
		record = err.Row.NewRecord
	}

	if err.Kind == schema.MissingnessError {
		return refusal.New(refusal.Missingness{
			File:     file,
			Record:   record,
			Column:   err.Column,
			Value:    err.Value,
			KeyValue: err.Row.Key,
		}, paths)
	}
	return refusal.New(refusal.MixedTypes{
		File:     file,
		Record:   record,
		Column:   err.Column,
		Value:    err.Value,
		KeyValue: err.Row.Key,
	}, paths)
}

func renderRefusal(req Request, payload refusal.Payload, ctx refusalContext) Result {
	oldDisplay := displayName(req.OldPath)
	newDisplay := displayName(req.NewPath)

	if req.Settings.JSON {
		jsonCtx := output.Context{
			Files:     output.Files{Old: req.OldPath, New: req.NewPath},
			Alignment: ctx.alignment,
			Dialect:   jsonDialect(ctx.dialectOld, ctx.dialectNew),
			Threshold: req.Settings.Threshold,
			Tolerance: req.Settings.Tolerance,
			Counts:    ctx.counts,
			Metrics:   ctx.metrics,
		}
		text, err := output.RefusalObject(jsonCtx, payload).Render()
		if err != nil {
			text = "{}"
		}
		return Result{Outcome: Refused, Output: text}
	}

	lines := []string{"RVL ERROR (" + payload.Code.String() + ")", ""}
	header := output.RefusalHeader{
		OldName:    oldDisplay,
		NewName:    newDisplay,
		Alignment:  humanAlignment(ctx.key),
		DialectOld: ctx.dialectOld,
		DialectNew: ctx.dialectNew,
		Settings: output.Settings{
			Threshold: req.Settings.Threshold,
			Tolerance: req.Settings.Tolerance,
		},
	}
	lines = append(lines, output.RenderRefusalHeader(header)...)
	lines = append(lines, "")
	lines = append(lines, output.RenderRefusalBody(payload, oldDisplay, newDisplay)...)
	return Result{Outcome: Refused, Output: strings.Join(lines, "\n")}
}

func renderNoRealChange(req Request, ctx output.Context) Result {
	if req.Settings.JSON {
		text, err := output.NoRealChangeObject(ctx).Render()
		if err != nil {
			text = "{}"
		}
		return Result{Outcome: NoRealChange, Output: text}
	}

	lines := []string{"RVL", "", "NO REAL CHANGE", ""}
	lines = append(lines, verdictHeaderLines(req, ctx)...)
	lines = append(lines, "")
	maxAbsDelta := 0.0
	if ctx.Metrics.MaxAbsDelta != nil {
		maxAbsDelta = *ctx.Metrics.MaxAbsDelta
	}
	lines = append(lines, output.RenderNoRealBody(maxAbsDelta, req.Settings.Tolerance)...)
	return Result{Outcome: NoRealChange, Output: strings.Join(lines, "\n")}
}

func renderRealChange(req Request, ctx output.Context, prefix []diff.Contributor, totalChange, coverage float64) Result {
	if req.Settings.JSON {
		contributors := make([]output.JSONContributor, 0, len(prefix))
		cumulative := 0.0
		for _, contributor := range prefix {
			share := 0.0
			if totalChange > 0 {
				share = contributor.Contribution / totalChange
			}
			cumulative += share
			contributors = append(contributors, output.JSONContributor{
				RowID:           format.JSONIdentifier(contributor.ID.Row.Bytes()),
				Column:          format.JSONIdentifier(contributor.ID.Column),
				Old:             contributor.Old,
				New:             contributor.New,
				Delta:           contributor.Delta,
				Contribution:    contributor.Contribution,
				Share:           share,
				CumulativeShare: cumulative,
			})
		}
		text, err := output.RealChangeObject(ctx, contributors).Render()
		if err != nil {
			text = "{}"
		}
		return Result{Outcome: RealChange, Output: text}
	}

	lines := []string{"RVL", "", "REAL CHANGE", ""}
	lines = append(lines, verdictHeaderLines(req, ctx)...)
	lines = append(lines, "")

	contributors := make([]output.HumanContributor, 0, len(prefix))
	for _, contributor := range prefix {
		contributors = append(contributors, output.HumanContributor{
			Label: cellLabel(contributor.ID),
			Old:   contributor.Old,
			New:   contributor.New,
			Delta: contributor.Delta,
		})
	}
	lines = append(lines, output.RenderRealChangeBody(contributors, coverage, req.Settings.Threshold)...)
	return Result{Outcome: RealChange, Output: strings.Join(lines, "\n")}
}

func verdictHeaderLines(req Request, ctx output.Context) []string {
	header := output.VerdictHeader{
		OldName:   displayName(req.OldPath),
		NewName:   displayName(req.NewPath),
		Alignment: humanAlignmentFromJSON(ctx.Alignment),
		Columns: output.ColumnCounts{
			Common:  deref(ctx.Counts.ColumnsCommon),
			OldOnly: deref(ctx.Counts.ColumnsOldOnly),
			NewOnly: deref(ctx.Counts.ColumnsNewOnly),
		},
		Checked: output.CheckedCounts{
			Rows:           deref(ctx.Counts.RowsAligned),
			NumericColumns: deref(ctx.Counts.NumericColumns),
			Cells:          deref(ctx.Counts.NumericCellsChecked),
		},
		DialectOld: receiptFromJSON(ctx.Dialect.Old),
		DialectNew: receiptFromJSON(ctx.Dialect.New),
		Settings: output.Settings{
			Threshold: req.Settings.Threshold,
			Tolerance: req.Settings.Tolerance,
		},
	}
	return output.RenderVerdictHeader(header)
}

func cellLabel(id diff.CellID) string {
	var rowLabel string
	if id.Row.IsKey {
		rowLabel = format.HumanIdentifier(id.Row.Key)
	} else {
		rowLabel = string(id.Row.Bytes())
	}
	return rowLabel + "." + format.HumanIdentifier(id.Column)
}

func alignmentBlock(key []byte) output.JSONAlignment {
	if key != nil {
		return output.KeyAlignment(format.JSONIdentifier(key))
	}
	return output.RowOrderAlignment()
}

func humanAlignment(key []byte) output.Alignment {
	if key != nil {
		return output.Alignment{Keyed: true, KeyLabel: format.HumanIdentifier(key)}
	}
	return output.Alignment{}
}

func humanAlignmentFromJSON(alignment output.JSONAlignment) output.Alignment {
	if alignment.Mode == "key" && alignment.KeyColumn != nil {
		label := *alignment.KeyColumn
		if decoded, err := align.ParseKeyIdentifier(label); err == nil {
			label = format.HumanIdentifier(decoded)
		}
		return output.Alignment{Keyed: true, KeyLabel: label}
	}
	return output.Alignment{}
}

func dialectReceipt(parsed *parsedCSV) *output.DialectReceipt {
	receipt := output.DialectReceipt{Delimiter: parsed.delimiter, Quote: '"'}
	if escape, ok := parsed.escape.Byte(); ok {
		receipt.Escape = &escape
	}
	return &receipt
}

func jsonDialect(old, new *output.DialectReceipt) output.JSONDialect {
	var dialect output.JSONDialect
	if old != nil {
		side := output.NewJSONDialectSide(old.Delimiter, old.Quote, old.Escape)
		dialect.Old = &side
	}
	if new != nil {
		side := output.NewJSONDialectSide(new.Delimiter, new.Quote, new.Escape)
		dialect.New = &side
	}
	return dialect
}

func receiptFromJSON(side *output.JSONDialectSide) output.DialectReceipt {
	if side == nil {
		return output.DialectReceipt{Delimiter: ',', Quote: '"'}
	}
	receipt := output.DialectReceipt{
		Delimiter: side.Delimiter[0],
		Quote:     side.Quote[0],
	}
	if side.Escape != nil {
		escape := (*side.Escape)[0]
		receipt.Escape = &escape
	}
	return receipt
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

func deref(value *uint64) uint64 {
	if value == nil {
		return 0
	}
	return *value
}

func displayName(path string) string {
	base := filepath.Base(path)
	if base == "." || base == string(filepath.Separator) {
		return path
	}
	return base
}
