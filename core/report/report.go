// Package report converts analyzer output into the three row shapes the
// sinks consume (BlockSummary, ConflictRow, ContentionRow), preserving
// the analyzer's deterministic ordering. A thin assembler with no I/O
// policy of its own; the sink decides where rows go.
package report

import (
	"github.com/argus-xyz/argus/common"
	"github.com/argus-xyz/argus/core/analyzer"
	"github.com/argus-xyz/argus/internal/labels"
)

// BlockSummary is the per-block aggregate row. Field tags match the NDJSON
// wire schema: { kind: "block", block, tx_count, touched_entries,
// touched_txs, total_conflicts }.
type BlockSummary struct {
	Block                  uint64 `json:"block"`
	TxCount                int    `json:"tx_count"`
	TouchedEntriesCount    int    `json:"touched_entries"`
	DistinctTouchedTxCount int    `json:"touched_txs"`
	TotalConflicts         int    `json:"total_conflicts"`
}

// ConflictRow is one materialized Conflict, block-qualified for the sink:
// { kind: "conflict", block, address, slot_hex, earlier_tx, later_tx,
// hazard }.
type ConflictRow struct {
	Block     uint64             `json:"block"`
	Address   common.Address     `json:"address"`
	Slot      common.SlotKey     `json:"slot_hex"`
	EarlierTx common.TxIndex     `json:"earlier_tx"`
	LaterTx   common.TxIndex     `json:"later_tx"`
	Hazard    common.HazardKind  `json:"hazard"`
}

// ContentionRow is one ContentionEvent, block-qualified and labeled:
// { kind: "contention", block, address, label, conflict_count,
// affected_tx_count, density, severity, dominant_hazard }.
type ContentionRow struct {
	Block           uint64            `json:"block"`
	Address         common.Address    `json:"address"`
	Label           string            `json:"label"` // empty if unknown
	ConflictCount   int               `json:"conflict_count"`
	AffectedTxCount int               `json:"affected_tx_count"`
	Density         float64           `json:"density"`
	Severity        common.Severity   `json:"severity"`
	DominantHazard  common.HazardKind `json:"dominant_hazard"`
}

// Report is the complete assembled output for one block.
type Report struct {
	Summary     BlockSummary
	Conflicts   []ConflictRow
	Contentions []ContentionRow
}

// TouchedEntry is one (address, slot) pair observed by some transaction in
// the block, used only to compute BlockSummary.TouchedEntriesCount and
// BlockSummary.DistinctTouchedTxCount.
type TouchedEntry struct {
	Key common.StorageKey
	Tx  common.TxIndex
}

// Assemble builds a Report for block from the driver's per-tx access sets
// and the analyzer's output. touched enumerates every (key, tx) pair
// observed during execution; reads and writes both count toward the
// summary's touched-entry totals.
func Assemble(block uint64, txCount int, touched []TouchedEntry, conflicts []analyzer.Conflict, events []analyzer.ContentionEvent) Report {
	distinctEntries := make(map[common.StorageKey]struct{})
	distinctTxs := make(map[common.TxIndex]struct{})
	for _, t := range touched {
		distinctEntries[t.Key] = struct{}{}
		distinctTxs[t.Tx] = struct{}{}
	}

	summary := BlockSummary{
		Block:                  block,
		TxCount:                txCount,
		TouchedEntriesCount:    len(distinctEntries),
		DistinctTouchedTxCount: len(distinctTxs),
		TotalConflicts:         len(conflicts),
	}

	rows := make([]ConflictRow, len(conflicts))
	for i, c := range conflicts {
		rows[i] = ConflictRow{
			Block:     block,
			Address:   c.Slot.Address,
			Slot:      c.Slot.Slot,
			EarlierTx: c.Earlier,
			LaterTx:   c.Later,
			Hazard:    c.Kind,
		}
	}

	contentions := make([]ContentionRow, len(events))
	for i, e := range events {
		lbl, _ := labels.Lookup(e.Address)
		contentions[i] = ContentionRow{
			Block:           block,
			Address:         e.Address,
			Label:           lbl,
			ConflictCount:   e.ConflictCount,
			AffectedTxCount: e.AffectedTxCount,
			Density:         e.Density,
			Severity:        e.Severity,
			DominantHazard:  e.DominantHazard,
		}
	}

	return Report{Summary: summary, Conflicts: rows, Contentions: contentions}
}
