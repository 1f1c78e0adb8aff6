// Package access implements the per-transaction access log: the small
// buffer the inspector appends to during execution, and the normalization
// step that turns it into the frozen reads/writes sets the conflict
// analyzer consumes.
package access

import (
	"sort"

	"github.com/argus-xyz/argus/common"
)

// inlineCap sizes the inline storage: a transaction recording at most this
// many storage accesses (repeats included) fits without a heap allocation
// for the backing array.
const inlineCap = 16

// Record is one observed SLOAD or SSTORE.
type Record struct {
	Key  common.StorageKey
	Kind common.AccessKind
}

// Buffer accumulates Records for a single in-flight transaction. The zero
// value is ready to use; Buffer owns its backing array until Normalize is
// called, at which point it is frozen into a Set.
type Buffer struct {
	records [inlineCap]Record // inline storage for the common case
	spill   []Record          // used only once len(records) is exceeded
	n       int
}

// NewBuffer returns a ready-to-use Buffer. It exists mainly so callers can
// express intent; the zero value works identically.
func NewBuffer() *Buffer { return &Buffer{} }

func (b *Buffer) Append(r Record) {
	if b.n < inlineCap {
		b.records[b.n] = r
		b.n++
		return
	}
	if b.spill == nil {
		b.spill = make([]Record, 0, inlineCap*2)
	}
	b.spill = append(b.spill, r)
	b.n++
}

func (b *Buffer) Read(addr common.Address, slot common.SlotKey) {
	b.Append(Record{Key: common.StorageKey{Address: addr, Slot: slot}, Kind: common.Read})
}

func (b *Buffer) Write(addr common.Address, slot common.SlotKey) {
	b.Append(Record{Key: common.StorageKey{Address: addr, Slot: slot}, Kind: common.Write})
}

func (b *Buffer) Len() int { return b.n }

// all returns every appended Record in append order, inline records first.
func (b *Buffer) all() []Record {
	out := make([]Record, 0, b.n)
	limit := b.n
	if limit > inlineCap {
		limit = inlineCap
	}
	out = append(out, b.records[:limit]...)
	out = append(out, b.spill...)
	return out
}

// Set is a transaction's frozen, normalized access set: reads and writes,
// each deduplicated. A slot that was both read and written appears in both
// sets; the conflict classifier works on set membership, not first or
// last wins.
type Set struct {
	Reads  map[common.StorageKey]struct{}
	Writes map[common.StorageKey]struct{}
}

func newSet() Set {
	return Set{
		Reads:  make(map[common.StorageKey]struct{}),
		Writes: make(map[common.StorageKey]struct{}),
	}
}

// Normalize sorts stably by (address, slot, kind), deduplicates adjacent
// equal records, and splits the result into Reads/Writes.
//
// If reverted is true, writes are discarded entirely (the EVM rolled them
// back, so they cannot feed a downstream hazard); reads are kept
// unconditionally. A top-level revert discards all writes regardless of
// which nested frame actually reverted.
func (b *Buffer) Normalize(reverted bool) Set {
	records := b.all()
	sort.SliceStable(records, func(i, j int) bool {
		ri, rj := records[i], records[j]
		if ri.Key.Address != rj.Key.Address {
			return lessAddress(ri.Key.Address, rj.Key.Address)
		}
		if ri.Key.Slot != rj.Key.Slot {
			return lessHash(ri.Key.Slot, rj.Key.Slot)
		}
		return ri.Kind < rj.Kind
	})

	set := newSet()
	var prev *Record
	for i := range records {
		r := records[i]
		if prev != nil && *prev == r {
			continue
		}
		switch r.Kind {
		case common.Read:
			set.Reads[r.Key] = struct{}{}
		case common.Write:
			if !reverted {
				set.Writes[r.Key] = struct{}{}
			}
		}
		prev = &records[i]
	}
	return set
}

func lessAddress(a, b common.Address) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

func lessHash(a, b common.Hash) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}
