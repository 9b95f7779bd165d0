package pipeline

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cmdrvl/rvl/pkg/config"
)

func writeFiles(t *testing.T, old, new string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	oldPath := filepath.Join(dir, "old.csv")
	newPath := filepath.Join(dir, "new.csv")
	require.NoError(t, os.WriteFile(oldPath, []byte(old), 0o644))
	require.NoError(t, os.WriteFile(newPath, []byte(new), 0o644))
	return oldPath, newPath
}

func runPipeline(t *testing.T, old, new string, mutate func(*config.Settings)) Result {
	t.Helper()
	oldPath, newPath := writeFiles(t, old, new)
	settings := config.NewSettings()
	if mutate != nil {
		mutate(&settings)
	}
	result, err := Run(Request{OldPath: oldPath, NewPath: newPath, Settings: settings})
	require.NoError(t, err)
	return result
}

func decodeJSON(t *testing.T, result Result) map[string]any {
	t.Helper()
	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(result.Output), &decoded))
	return decoded
}

func TestSingleCellRealChange(t *testing.T) {
	result := runPipeline(t, "a,b\n1,10\n2,20\n", "a,b\n1,10\n2,25\n", nil)

	assert.Equal(t, RealChange, result.Outcome)
	assert.Equal(t, 1, ExitCode(result.Outcome))
	assert.True(t, strings.HasPrefix(result.Output, "RVL\n\nREAL CHANGE\n"))
	assert.Contains(t, result.Output, "1 cell explain 100.0% of total numeric change (threshold 95.0%):")
	assert.Contains(t, result.Output, "1. 2.b  +5  (20 -> 25)")
}

func TestSingleCellRealChangeJSON(t *testing.T) {
	result := runPipeline(t, "a,b\n1,10\n2,20\n", "a,b\n1,10\n2,25\n",
		func(s *config.Settings) { s.JSON = true })

	assert.Equal(t, RealChange, result.Outcome)
	decoded := decodeJSON(t, result)
	assert.Equal(t, "REAL_CHANGE", decoded["outcome"])

	contributors := decoded["contributors"].([]any)
	require.Len(t, contributors, 1)
	first := contributors[0].(map[string]any)
	assert.Equal(t, "u8:2", first["row_id"])
	assert.Equal(t, "u8:b", first["column"])
	assert.Equal(t, float64(20), first["old"])
	assert.Equal(t, float64(25), first["new"])
	assert.Equal(t, float64(5), first["delta"])
	assert.Equal(t, float64(1), first["share"])
	assert.Equal(t, float64(1), first["cumulative_share"])

	counts := decoded["counts"].(map[string]any)
	assert.Equal(t, float64(2), counts["rows_aligned"])
	assert.Equal(t, float64(2), counts["numeric_columns"])
	assert.Equal(t, float64(4), counts["numeric_cells_checked"])
	assert.Equal(t, float64(1), counts["numeric_cells_changed"])
}

func TestNoRealChangeWithinTolerance(t *testing.T) {
	result := runPipeline(t,
		"id,x\nA,3.14159265358979\n",
		"id,x\nA,3.14159265358980\n", nil)

	assert.Equal(t, NoRealChange, result.Outcome)
	assert.Equal(t, 0, ExitCode(result.Outcome))
	assert.True(t, strings.HasPrefix(result.Output, "RVL\n\nNO REAL CHANGE\n"))
	assert.Contains(t, result.Output, "No numeric deltas above tolerance in common numeric columns.")
}

func TestNeedKeyOnShuffle(t *testing.T) {
	result := runPipeline(t,
		"id,x\nA,1\nB,2\nC,3\n",
		"id,x\nC,3\nA,1\nB,2\n", nil)

	assert.Equal(t, Refused, result.Outcome)
	assert.Equal(t, 2, ExitCode(result.Outcome))
	assert.True(t, strings.HasPrefix(result.Output, "RVL ERROR (E_NEED_KEY)\n"))
	assert.Contains(t, result.Output, "Reason (E_NEED_KEY): cannot deterministically align without a key.")
	assert.Contains(t, result.Output, "Next: rvl ")
	assert.Contains(t, result.Output, "--key u8:id")
}

func TestNeedKeyJSONNullsMetrics(t *testing.T) {
	result := runPipeline(t,
		"id,x\nA,1\nB,2\nC,3\n",
		"id,x\nC,3\nA,1\nB,2\n",
		func(s *config.Settings) { s.JSON = true })

	decoded := decodeJSON(t, result)
	assert.Equal(t, "REFUSAL", decoded["outcome"])
	assert.Equal(t, "E_NEED_KEY", decoded["refusal"].(map[string]any)["code"])

	metrics := decoded["metrics"].(map[string]any)
	assert.Nil(t, metrics["total_change"])
	assert.Nil(t, metrics["max_abs_delta"])
	assert.Nil(t, metrics["top_k_coverage"])

	counts := decoded["counts"].(map[string]any)
	assert.Nil(t, counts["numeric_cells_checked"])
	assert.Nil(t, counts["numeric_cells_changed"])
	assert.Equal(t, float64(3), counts["rows_aligned"])
}

func TestShuffleResolvedWithKey(t *testing.T) {
	result := runPipeline(t,
		"id,x\nA,1\nB,2\nC,3\n",
		"id,x\nC,3\nA,1\nB,2\n",
		func(s *config.Settings) { s.Key = "id" })

	assert.Equal(t, NoRealChange, result.Outcome)
	assert.Contains(t, result.Output, "Alignment: key=id")
}

func TestDiffuseChange(t *testing.T) {
	var old, new strings.Builder
	old.WriteString("x\n")
	new.WriteString("x\n")
	for i := 0; i < 100; i++ {
		fmt.Fprintf(&old, "%d\n", i)
		fmt.Fprintf(&new, "%d\n", i+1)
	}

	// Single-column inputs need a forced delimiter to bypass the guardrail.
	result := runPipeline(t, old.String(), new.String(), func(s *config.Settings) {
		s.Delimiter = ','
		s.HasDelimiter = true
		s.JSON = true
	})

	assert.Equal(t, Refused, result.Outcome)
	decoded := decodeJSON(t, result)
	assert.Equal(t, "E_DIFFUSE", decoded["refusal"].(map[string]any)["code"])
	coverage := decoded["metrics"].(map[string]any)["top_k_coverage"].(float64)
	assert.InDelta(t, 0.25, coverage, 1e-9)
}

func TestMixedTypesCitesRow(t *testing.T) {
	result := runPipeline(t,
		"id,amount\n1,10\n2,20\n3,30\n",
		"id,amount\n1,10\n2,pending\n3,30\n", nil)

	assert.Equal(t, Refused, result.Outcome)
	assert.True(t, strings.HasPrefix(result.Output, "RVL ERROR (E_MIXED_TYPES)\n"))
	assert.Contains(t, result.Output, `data record 2 column "amount" has non-numeric value "pending".`)
}

func TestAccountingAndCurrency(t *testing.T) {
	result := runPipeline(t,
		"id,amount\nA,\"$1,000.00\"\n",
		"id,amount\nA,\"($1,234.56)\"\n", nil)

	assert.Equal(t, RealChange, result.Outcome)
	assert.Contains(t, result.Output, "1. 1.amount  -2234.56  (1,000 -> -1234.56)")
}

func TestRowCountMismatch(t *testing.T) {
	result := runPipeline(t,
		"id,x\nA,1\nB,2\n",
		"id,x\nA,1\n", nil)

	assert.Equal(t, Refused, result.Outcome)
	assert.Contains(t, result.Output, "RVL ERROR (E_ROWCOUNT)")
	assert.Contains(t, result.Output, "Example: row count mismatch (old=2, new=1).")
	assert.Contains(t, result.Output, "suggested keys: [id")
}

func TestKeyMismatch(t *testing.T) {
	result := runPipeline(t,
		"id,x\nA,1\nB,2\n",
		"id,x\nA,1\nC,2\n",
		func(s *config.Settings) { s.Key = "id" })

	assert.Equal(t, Refused, result.Outcome)
	assert.Contains(t, result.Output, "RVL ERROR (E_KEY_MISMATCH)")
	assert.Contains(t, result.Output, "Example: missing_in_new=1 extra_in_new=1. missing samples: [B]. extra samples: [C].")
}

func TestKeyModeVerdictUsesKeyRowIDs(t *testing.T) {
	result := runPipeline(t,
		"id,value\nA,1\nB,2\n",
		"id,value\nB,2\nA,6\n",
		func(s *config.Settings) { s.Key = "id" })

	assert.Equal(t, RealChange, result.Outcome)
	assert.Contains(t, result.Output, "1. A.value  +5  (1 -> 6)")
}

func TestNoKeyRefusal(t *testing.T) {
	result := runPipeline(t,
		"id,x\nA,1\n",
		"id,x\nA,1\n",
		func(s *config.Settings) { s.Key = "nope" })

	assert.Equal(t, Refused, result.Outcome)
	assert.Contains(t, result.Output, "RVL ERROR (E_NO_KEY)")
	assert.Contains(t, result.Output, `Example: key column "nope" not found in one or both files.`)
}

func TestEncodingRefusal(t *testing.T) {
	oldPath, newPath := writeFiles(t, "\xFE\xFFa,b\n1,2\n", "a,b\n1,2\n")
	result, err := Run(Request{OldPath: oldPath, NewPath: newPath, Settings: config.NewSettings()})
	require.NoError(t, err)

	assert.Equal(t, Refused, result.Outcome)
	assert.Contains(t, result.Output, "RVL ERROR (E_ENCODING)")
	assert.Contains(t, result.Output, "contains a UTF-16 BOM.")
	assert.Contains(t, result.Output, "Next: convert/re-export both files as UTF-8 CSV and rerun")
}

func TestNulByteRefusal(t *testing.T) {
	result := runPipeline(t, "a,b\n1,\x002\n", "a,b\n1,2\n", nil)
	assert.Equal(t, Refused, result.Outcome)
	assert.Contains(t, result.Output, "contains a NUL byte in the first 8KB.")
}

func TestMissingnessRefusal(t *testing.T) {
	result := runPipeline(t,
		"id,x\nA,1\nB,2\n",
		"id,x\nA,1\nB,\n", nil)

	assert.Equal(t, Refused, result.Outcome)
	assert.Contains(t, result.Output, "RVL ERROR (E_MISSINGNESS)")
	assert.Contains(t, result.Output, `data record 2 column "x" has numeric value "2" while the other side is missing.`)
}

func TestNoNumericRefusal(t *testing.T) {
	result := runPipeline(t,
		"a,b\nfoo,bar\n",
		"a,b\nbaz,qux\n", nil)

	assert.Equal(t, Refused, result.Outcome)
	assert.Contains(t, result.Output, "RVL ERROR (E_NO_NUMERIC)")
	assert.Contains(t, result.Output, "Example: no numeric columns in common.")
}

func TestDuplicateHeaderRefusal(t *testing.T) {
	result := runPipeline(t,
		"a, a \n1,2\n",
		"a,b\n1,2\n", nil)

	assert.Equal(t, Refused, result.Outcome)
	assert.Contains(t, result.Output, "RVL ERROR (E_HEADERS)")
	assert.Contains(t, result.Output, `has duplicate header "a".`)
}

func TestSepDirectiveHonored(t *testing.T) {
	result := runPipeline(t,
		"sep=;\na;b\n1;2\n",
		"sep=;\na;b\n1;3\n", nil)

	assert.Equal(t, RealChange, result.Outcome)
	assert.Contains(t, result.Output, "Dialect(old): delimiter=; quote=\" escape=none")
	assert.Contains(t, result.Output, "1. 1.b  +1  (2 -> 3)")
}

func TestBlankRecordsSkipped(t *testing.T) {
	result := runPipeline(t,
		"a,b\n1,10\n , \n2,20\n",
		"a,b\n\n1,10\n2,25\n", nil)

	assert.Equal(t, RealChange, result.Outcome)
	assert.Contains(t, result.Output, "1. 2.b  +5  (20 -> 25)")
}

func TestDialectsDetectedIndependently(t *testing.T) {
	result := runPipeline(t,
		"a,b\n1,10\n2,20\n",
		"a;b\n1;10\n2;25\n", nil)

	assert.Equal(t, RealChange, result.Outcome)
	assert.Contains(t, result.Output, "Dialect(old): delimiter=, quote=\" escape=none")
	assert.Contains(t, result.Output, "Dialect(new): delimiter=; quote=\" escape=none")
}

func TestThresholdOneRequiresFullCoverage(t *testing.T) {
	// 30 changed cells exceed the 25 retained contributors, so full
	// coverage is unreachable.
	var old, new strings.Builder
	old.WriteString("id,x\n")
	new.WriteString("id,x\n")
	for i := 0; i < 30; i++ {
		fmt.Fprintf(&old, "r%d,%d\n", i, i)
		fmt.Fprintf(&new, "r%d,%d\n", i, i+1+i%3)
	}

	result := runPipeline(t, old.String(), new.String(), func(s *config.Settings) {
		s.Threshold = 1.0
	})

	assert.Equal(t, Refused, result.Outcome)
	assert.Contains(t, result.Output, "RVL ERROR (E_DIFFUSE)")
}

func TestToleranceZeroCountsAnyDelta(t *testing.T) {
	result := runPipeline(t,
		"x,y\n1,1e-12\n",
		"x,y\n1,2e-12\n",
		func(s *config.Settings) { s.Tolerance = 0 })

	assert.Equal(t, RealChange, result.Outcome)
}

func TestGzipInput(t *testing.T) {
	dir := t.TempDir()
	oldPath := filepath.Join(dir, "old.csv")
	newPath := filepath.Join(dir, "new.csv.gz")
	require.NoError(t, os.WriteFile(oldPath, []byte("a,b\n1,10\n"), 0o644))
	require.NoError(t, os.WriteFile(newPath, gzipBytes(t, "a,b\n1,15\n"), 0o644))

	result, err := Run(Request{OldPath: oldPath, NewPath: newPath, Settings: config.NewSettings()})
	require.NoError(t, err)
	assert.Equal(t, RealChange, result.Outcome)
	assert.Contains(t, result.Output, "1. 1.b  +5  (10 -> 15)")
}

func gzipBytes(t *testing.T, content string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestMissingFileIsIORefusal(t *testing.T) {
	dir := t.TempDir()
	oldPath := filepath.Join(dir, "absent.csv")
	newPath := filepath.Join(dir, "new.csv")
	require.NoError(t, os.WriteFile(newPath, []byte("a,b\n1,2\n"), 0o644))

	result, err := Run(Request{OldPath: oldPath, NewPath: newPath, Settings: config.NewSettings()})
	require.NoError(t, err)
	assert.Equal(t, Refused, result.Outcome)
	assert.Contains(t, result.Output, "RVL ERROR (E_IO)")
	assert.Contains(t, result.Output, "Next: check file paths/permissions and rerun")
}

func TestInvalidKeyIdentifierIsProcessError(t *testing.T) {
	oldPath, newPath := writeFiles(t, "a,b\n1,2\n", "a,b\n1,2\n")
	settings := config.NewSettings()
	settings.Key = "hex:zz"
	_, err := Run(Request{OldPath: oldPath, NewPath: newPath, Settings: settings})
	require.Error(t, err)
}

func TestExitCodesAndStreams(t *testing.T) {
	assert.Equal(t, 0, ExitCode(NoRealChange))
	assert.Equal(t, 1, ExitCode(RealChange))
	assert.Equal(t, 2, ExitCode(Refused))

	assert.Equal(t, Stdout, OutputStream(NoRealChange, false))
	assert.Equal(t, Stdout, OutputStream(RealChange, false))
	assert.Equal(t, Stderr, OutputStream(Refused, false))
	assert.Equal(t, Stdout, OutputStream(Refused, true))
}
