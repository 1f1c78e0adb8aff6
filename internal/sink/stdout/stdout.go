// Package stdout renders a Report as human-readable tables
// (text/tabwriter), or emits just the conflict graph as JSON for the
// --json variant.
package stdout

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/argus-xyz/argus/core/report"
)

// Write renders r to w. When jsonOutput is true it emits only the
// conflict graph (the block's conflict rows) as a single pretty JSON
// document; otherwise it renders a summary line followed by the conflicts
// and contention-hotspots tables, each table omitted when it has no rows.
func Write(w io.Writer, r report.Report, jsonOutput bool) error {
	if jsonOutput {
		conflicts := r.Conflicts
		if conflicts == nil {
			conflicts = []report.ConflictRow{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(conflicts)
	}
	writeSummary(w, r.Summary)
	writeConflicts(w, r.Conflicts)
	writeContentions(w, r.Contentions)
	return nil
}

func newTabwriter(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

func writeSummary(w io.Writer, s report.BlockSummary) {
	fmt.Fprintf(w, "block %d: %d txs, %d touched entries, %d conflicts\n",
		s.Block, s.TxCount, s.TouchedEntriesCount, s.TotalConflicts)
}

func writeConflicts(w io.Writer, rows []report.ConflictRow) {
	if len(rows) == 0 {
		return
	}
	fmt.Fprintln(w, "\nconflicts:")
	tw := newTabwriter(w)
	fmt.Fprintln(tw, "ADDRESS\tSLOT\tEARLIER_TX\tLATER_TX\tHAZARD")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n", r.Address.Hex(), r.Slot.Hex(), r.EarlierTx, r.LaterTx, r.Hazard)
	}
	tw.Flush()
}

func writeContentions(w io.Writer, rows []report.ContentionRow) {
	if len(rows) == 0 {
		return
	}
	fmt.Fprintln(w, "\ncontention hotspots:")
	tw := newTabwriter(w)
	fmt.Fprintln(tw, "ADDRESS\tLABEL\tCONFLICTS\tAFFECTED_TXS\tDENSITY\tSEVERITY\tHAZARD")
	for _, r := range rows {
		label := r.Label
		if label == "" {
			label = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%.2f\t%s\t%s\n",
			r.Address.Hex(), label, r.ConflictCount, r.AffectedTxCount, r.Density, r.Severity, r.DominantHazard)
	}
	tw.Flush()
}
