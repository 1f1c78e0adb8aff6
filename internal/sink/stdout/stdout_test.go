package stdout

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/argus-xyz/argus/common"
	"github.com/argus-xyz/argus/core/report"
)

func sampleReport() report.Report {
	return report.Report{
		Summary: report.BlockSummary{Block: 9, TxCount: 5, TouchedEntriesCount: 3, TotalConflicts: 1},
		Conflicts: []report.ConflictRow{
			{Block: 9, Address: common.BytesToAddress([]byte{1}), EarlierTx: 0, LaterTx: 1, Hazard: common.WAW},
		},
		Contentions: []report.ContentionRow{
			{Block: 9, Address: common.BytesToAddress([]byte{1}), Label: "WETH", ConflictCount: 1, Severity: common.Low},
		},
	}
}

func TestWriteTableContainsKeyFields(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sampleReport(), false))
	out := buf.String()
	require.Contains(t, out, "block 9:")
	require.Contains(t, out, "WAW")
	require.Contains(t, out, "WETH")
}

func TestWriteJSONEmitsConflictGraphOnly(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sampleReport(), true))

	var decoded []report.ConflictRow
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 1)
	require.Equal(t, common.WAW, decoded[0].Hazard)
	require.NotContains(t, buf.String(), "tx_count")
}

func TestWriteJSONEmptyConflictsIsEmptyArray(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, report.Report{Summary: report.BlockSummary{Block: 1}}, true))
	require.JSONEq(t, "[]", buf.String())
}

func TestWriteSkipsEmptySections(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, report.Report{Summary: report.BlockSummary{Block: 1}}, false))
	require.False(t, strings.Contains(buf.String(), "conflicts:"))
}
