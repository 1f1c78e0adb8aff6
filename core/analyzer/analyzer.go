// Package analyzer turns a block's per-transaction access sets into the
// conflict list and per-contract ContentionEvents: an inverted slot index
// over the block, pairwise hazard classification per slot, and a
// per-contract aggregation pass.
package analyzer

import (
	"sort"

	"github.com/argus-xyz/argus/common"
	"github.com/argus-xyz/argus/internal/access"
)

// TxAccess is one transaction's frozen, normalized access set, with its
// position in block order.
type TxAccess struct {
	Index common.TxIndex
	Set   access.Set
}

// Conflict is one hazard between two transactions on one slot. Invariant:
// Earlier < Later (enforced by construction, checked defensively).
type Conflict struct {
	Slot    common.StorageKey
	Earlier common.TxIndex
	Later   common.TxIndex
	Kind    common.HazardKind
}

// ContentionEvent is the per-contract conflict aggregate.
type ContentionEvent struct {
	Address         common.Address
	ConflictCount   int
	AffectedTxCount int
	Density         float64
	Severity        common.Severity
	DominantHazard  common.HazardKind
}

// flags records, for one (tx, slot) pair, whether the tx read and/or wrote
// the slot: the payload of the inverted index's per-slot list.
type flags struct {
	tx    common.TxIndex
	read  bool
	write bool
}

// Analyze runs the full pipeline over a block's access sets, which must
// already be in ascending TxIndex order (the execution driver guarantees
// this). Conflicts and events come back in a deterministic order, so two
// runs over the same block produce byte-identical reports.
func Analyze(txs []TxAccess) ([]Conflict, []ContentionEvent, error) {
	index := buildSlotIndex(txs)

	var conflicts []Conflict
	for slot, list := range index {
		if len(list) < 2 {
			continue
		}
		sort.Slice(list, func(i, j int) bool { return list[i].tx < list[j].tx })
		pairConflicts, err := conflictsForSlot(slot, list)
		if err != nil {
			return nil, nil, err
		}
		conflicts = append(conflicts, pairConflicts...)
	}

	events := aggregate(conflicts)
	sortConflicts(conflicts)
	return conflicts, events, nil
}

func buildSlotIndex(txs []TxAccess) map[common.StorageKey][]flags {
	index := make(map[common.StorageKey][]flags)
	for _, tx := range txs {
		seen := make(map[common.StorageKey]*flags)
		for key := range tx.Set.Reads {
			f := seen[key]
			if f == nil {
				f = &flags{tx: tx.Index}
				seen[key] = f
			}
			f.read = true
		}
		for key := range tx.Set.Writes {
			f := seen[key]
			if f == nil {
				f = &flags{tx: tx.Index}
				seen[key] = f
			}
			f.write = true
		}
		for key, f := range seen {
			index[key] = append(index[key], *f)
		}
	}
	return index
}

// conflictsForSlot emits, for every ordered pair (i<j) touching slot, the
// applicable subset of {RAW, WAW, WAR}. Quadratic in the number of
// transactions touching this slot; hot-slot k is small in practice, so the
// block-wide cost stays dominated by the linear scan.
func conflictsForSlot(slot common.StorageKey, list []flags) ([]Conflict, error) {
	var out []Conflict
	for i := 0; i < len(list); i++ {
		for j := i + 1; j < len(list); j++ {
			earlier, later := list[i], list[j]
			if earlier.tx >= later.tx {
				return nil, &invariantError{slot: slot, earlier: earlier.tx, later: later.tx}
			}
			if earlier.write && later.read {
				out = append(out, Conflict{Slot: slot, Earlier: earlier.tx, Later: later.tx, Kind: common.RAW})
			}
			if earlier.write && later.write {
				out = append(out, Conflict{Slot: slot, Earlier: earlier.tx, Later: later.tx, Kind: common.WAW})
			}
			if earlier.read && later.write {
				out = append(out, Conflict{Slot: slot, Earlier: earlier.tx, Later: later.tx, Kind: common.WAR})
			}
		}
	}
	return out, nil
}

type invariantError struct {
	slot           common.StorageKey
	earlier, later common.TxIndex
}

func (e *invariantError) Error() string {
	return "analyzer: invariant violation: earlier >= later for slot " + e.slot.String()
}

// aggregate groups conflicts by contract address and computes density,
// severity and dominant hazard. Tie-break order for dominant hazard is
// WAW > RAW > WAR.
func aggregate(conflicts []Conflict) []ContentionEvent {
	type acc struct {
		count       int
		affected    map[common.TxIndex]struct{}
		hazardCount map[common.HazardKind]int
	}
	byAddr := make(map[common.Address]*acc)

	for _, c := range conflicts {
		a := byAddr[c.Slot.Address]
		if a == nil {
			a = &acc{affected: make(map[common.TxIndex]struct{}), hazardCount: make(map[common.HazardKind]int)}
			byAddr[c.Slot.Address] = a
		}
		a.count++
		a.affected[c.Earlier] = struct{}{}
		a.affected[c.Later] = struct{}{}
		a.hazardCount[c.Kind]++
	}

	events := make([]ContentionEvent, 0, len(byAddr))
	for address, a := range byAddr {
		affected := len(a.affected)
		denom := affected
		if denom < 1 {
			denom = 1
		}
		density := float64(a.count) / float64(denom)
		events = append(events, ContentionEvent{
			Address:         address,
			ConflictCount:   a.count,
			AffectedTxCount: affected,
			Density:         density,
			Severity:        common.SeverityFromDensity(density),
			DominantHazard:  dominantHazard(a.hazardCount),
		})
	}

	sort.Slice(events, func(i, j int) bool {
		ei, ej := events[i], events[j]
		if ei.Severity != ej.Severity {
			return ei.Severity > ej.Severity
		}
		if ei.Density != ej.Density {
			return ei.Density > ej.Density
		}
		if ei.ConflictCount != ej.ConflictCount {
			return ei.ConflictCount > ej.ConflictCount
		}
		return lessAddressBytes(ei.Address, ej.Address)
	})
	return events
}

// dominantHazard breaks ties WAW > RAW > WAR: WAW most severely defeats
// parallel execution.
func dominantHazard(counts map[common.HazardKind]int) common.HazardKind {
	order := []common.HazardKind{common.WAW, common.RAW, common.WAR}
	best := order[0]
	bestCount := -1
	for _, k := range order {
		if counts[k] > bestCount {
			bestCount = counts[k]
			best = k
		}
	}
	return best
}

func sortConflicts(conflicts []Conflict) {
	sort.Slice(conflicts, func(i, j int) bool {
		ci, cj := conflicts[i], conflicts[j]
		if ci.Earlier != cj.Earlier {
			return ci.Earlier < cj.Earlier
		}
		if ci.Later != cj.Later {
			return ci.Later < cj.Later
		}
		if ci.Slot.Address != cj.Slot.Address {
			return lessAddressBytes(ci.Slot.Address, cj.Slot.Address)
		}
		if ci.Slot.Slot != cj.Slot.Slot {
			return lessHashBytes(ci.Slot.Slot, cj.Slot.Slot)
		}
		return ci.Kind < cj.Kind
	})
}

func lessAddressBytes(a, b common.Address) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

func lessHashBytes(a, b common.Hash) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}
