package output

import (
	"strings"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cmdrvl/rvl/pkg/refusal"
)

func TestVerdictHeaderLines(t *testing.T) {
	ctx := VerdictHeader{
		OldName:    "old.csv",
		NewName:    "new.csv",
		Alignment:  Alignment{Keyed: true, KeyLabel: "id"},
		Columns:    ColumnCounts{Common: 15, OldOnly: 2, NewOnly: 1},
		Checked:    CheckedCounts{Rows: 4183, NumericColumns: 12, Cells: 50196},
		DialectOld: DialectReceipt{Delimiter: ',', Quote: '"'},
		DialectNew: DialectReceipt{Delimiter: ',', Quote: '"'},
		Settings:   Settings{Threshold: 0.95, Tolerance: 1e-9},
	}

	lines := RenderVerdictHeader(ctx)
	require.Len(t, lines, 8)
	assert.Equal(t, "Compared: old.csv -> new.csv", lines[0])
	assert.Equal(t, "Alignment: key=id", lines[1])
	assert.Equal(t, "Columns: common=15 old_only=2 new_only=1", lines[2])
	assert.Equal(t, "Checked: 4,183 rows, 12 numeric columns (50,196 cells)", lines[3])
	assert.Equal(t, `Dialect(old): delimiter=, quote=" escape=none`, lines[4])
	assert.Equal(t, `Dialect(new): delimiter=, quote=" escape=none`, lines[5])
	assert.Equal(t, "Ranking: abs(delta) (unscaled)", lines[6])
	assert.Equal(t, "Settings: threshold=95.0% tolerance=1e-9", lines[7])
}

func TestRefusalHeaderOmitsUnknownDialects(t *testing.T) {
	ctx := RefusalHeader{
		OldName:   "old.csv",
		NewName:   "new.csv",
		Alignment: Alignment{},
		Settings:  Settings{Threshold: 0.95, Tolerance: 1e-9},
	}
	lines := RenderRefusalHeader(ctx)
	require.Len(t, lines, 3)
	assert.Equal(t, "Compared: old.csv -> new.csv", lines[0])
	assert.Equal(t, "Alignment: row-order (no key)", lines[1])
	assert.Equal(t, "Settings: threshold=95.0% tolerance=1e-9", lines[2])
}

func TestDialectFormatting(t *testing.T) {
	backslash := byte('\\')
	tab := DialectReceipt{Delimiter: '\t', Quote: '"', Escape: &backslash}
	assert.Equal(t, `delimiter=TAB quote=" escape=\\`, renderDialect(tab))

	unit := DialectReceipt{Delimiter: 0x1f, Quote: '"'}
	assert.Equal(t, `delimiter=0x1F quote=" escape=none`, renderDialect(unit))

	space := DialectReceipt{Delimiter: ' ', Quote: '"'}
	assert.Equal(t, `delimiter=0x20 quote=" escape=none`, renderDialect(space))
}

func TestRealChangeBody(t *testing.T) {
	lines := RenderRealChangeBody([]HumanContributor{
		{Label: "NVDA.market_value", Old: 123, New: 1842223, Delta: 1842100},
	}, 0.952, 0.95)

	require.Len(t, lines, 5)
	assert.Equal(t, "1 cell explain 95.2% of total numeric change (threshold 95.0%):", lines[0])
	assert.Equal(t, "", lines[1])
	assert.Equal(t, "1. NVDA.market_value  +1842100  (123 -> 1,842,223)", lines[2])
	assert.Equal(t, "", lines[3])
	assert.Equal(t, "Everything else in common numeric columns is <= tolerance or in the tail (not required to reach threshold).", lines[4])
}

func TestNoRealBody(t *testing.T) {
	lines := RenderNoRealBody(7e-10, 1e-9)
	require.Len(t, lines, 2)
	assert.Equal(t, "Max abs delta: 7e-10 (<= tolerance 1e-9).", lines[0])
	assert.Equal(t, "No numeric deltas above tolerance in common numeric columns.", lines[1])
}

func TestRefusalBodyKeyDup(t *testing.T) {
	payload := refusal.New(refusal.KeyDup{
		File:     refusal.OldFile,
		Record:   184,
		KeyValue: []byte("A123"),
	}, refusal.RerunPaths{Old: "old.csv", New: "new.csv"})

	lines := RenderRefusalBody(payload, "old.csv", "new.csv")
	require.Len(t, lines, 4)
	assert.Equal(t, "Cannot produce a verdict.", lines[0])
	assert.Equal(t, "Reason (E_KEY_DUP): duplicate key values.", lines[1])
	assert.Equal(t, `Example: old.csv data record 184 duplicates key "A123".`, lines[2])
	assert.True(t, strings.HasPrefix(lines[3], "Next:"))
}

func TestRefusalBodyDiffuse(t *testing.T) {
	payload := refusal.New(refusal.Diffuse{TopKCoverage: 0.8, Threshold: 0.95},
		refusal.RerunPaths{Old: "old.csv", New: "new.csv"})

	lines := RenderRefusalBody(payload, "old.csv", "new.csv")
	assert.Equal(t, "Reason (E_DIFFUSE): diffuse change below coverage threshold.", lines[1])
	assert.Equal(t, "Example: top_k_coverage=80.0% threshold=95.0%.", lines[2])
	assert.Equal(t, "Next: rvl old.csv new.csv --threshold 0.80", lines[3])
}

func TestRefusalBodyDialectTies(t *testing.T) {
	payload := refusal.New(refusal.Dialect{
		File:           refusal.OldFile,
		TiedDelimiters: []byte{',', '\t'},
		Suggested:      ',',
	}, refusal.RerunPaths{Old: "old.csv", New: "new.csv"})

	lines := RenderRefusalBody(payload, "old.csv", "new.csv")
	assert.Equal(t, "Example: old.csv delimiter ambiguous among [comma, tab].", lines[2])
}

func TestJSONObjectRealChange(t *testing.T) {
	keyColumn := "u8:id"
	side := NewJSONDialectSide(',', '"', nil)
	ctx := Context{
		Files:     Files{Old: "old.csv", New: "new.csv"},
		Alignment: KeyAlignment(keyColumn),
		Dialect:   JSONDialect{Old: &side, New: &side},
		Threshold: 0.95,
		Tolerance: 1e-9,
		Counts: Counts{
			RowsOld: U64(10), RowsNew: U64(10), RowsAligned: U64(10),
			ColumnsOld: U64(3), ColumnsNew: U64(3), ColumnsCommon: U64(3),
			ColumnsOldOnly: U64(0), ColumnsNewOnly: U64(0),
			NumericColumns: U64(2), NumericCellsChecked: U64(20), NumericCellsChanged: U64(3),
		},
		Metrics: Metrics{TotalChange: F64(10), MaxAbsDelta: F64(5), TopKCoverage: F64(0.95)},
	}

	object := RealChangeObject(ctx, []JSONContributor{{
		RowID: "u8:row1", Column: "u8:value",
		Old: 1, New: 2, Delta: 1, Contribution: 1, Share: 0.1, CumulativeShare: 0.1,
	}})

	text, err := object.Render()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(text), &decoded))
	assert.Equal(t, "rvl.v0", decoded["version"])
	assert.Equal(t, "REAL_CHANGE", decoded["outcome"])
	assert.Equal(t, "old.csv", decoded["files"].(map[string]any)["old"])
	assert.Equal(t, "key", decoded["alignment"].(map[string]any)["mode"])
	assert.Equal(t, ",", decoded["dialect"].(map[string]any)["old"].(map[string]any)["delimiter"])
	assert.Equal(t, float64(25), decoded["limits"].(map[string]any)["max_contributors"])
	assert.Len(t, decoded["contributors"].([]any), 1)
	assert.Nil(t, decoded["refusal"])
}

func TestJSONObjectRefusal(t *testing.T) {
	ctx := Context{
		Files:     Files{Old: "old.csv", New: "new.csv"},
		Alignment: RowOrderAlignment(),
		Threshold: 0.95,
		Tolerance: 1e-9,
	}
	payload := refusal.New(refusal.RowCount{RowsOld: 10, RowsNew: 11},
		refusal.RerunPaths{Old: "old.csv", New: "new.csv"})

	text, err := RefusalObject(ctx, payload).Render()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(text), &decoded))
	assert.Equal(t, "REFUSAL", decoded["outcome"])

	block := decoded["refusal"].(map[string]any)
	assert.Equal(t, "E_ROWCOUNT", block["code"])
	assert.Equal(t, "row count mismatch", block["message"])
	assert.Equal(t, float64(10), block["detail"].(map[string]any)["rows_old"])

	// Uncomputed fields are null on refusal.
	counts := decoded["counts"].(map[string]any)
	assert.Nil(t, counts["rows_aligned"])
	metrics := decoded["metrics"].(map[string]any)
	assert.Nil(t, metrics["total_change"])
}

func TestJSONObjectNoRealChangeHasEmptyContributors(t *testing.T) {
	ctx := Context{
		Files:     Files{Old: "old.csv", New: "new.csv"},
		Alignment: RowOrderAlignment(),
	}
	text, err := NoRealChangeObject(ctx).Render()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(text), &decoded))
	assert.Equal(t, "NO_REAL_CHANGE", decoded["outcome"])
	assert.Empty(t, decoded["contributors"].([]any))
}

func TestJSONDialectSideTabAndBackslash(t *testing.T) {
	backslash := byte('\\')
	side := NewJSONDialectSide('\t', '"', &backslash)
	assert.Equal(t, "\t", side.Delimiter)
	assert.Equal(t, `"`, side.Quote)
	require.NotNil(t, side.Escape)
	assert.Equal(t, `\`, *side.Escape)
}
