// Package testutil builds synthetic per-transaction access sets for
// exercising core/analyzer without replaying anything through the EVM.
package testutil

import (
	"github.com/argus-xyz/argus/common"
	"github.com/argus-xyz/argus/core/analyzer"
	"github.com/argus-xyz/argus/internal/access"
)

// Addr and Slot are the fixed (address, slot) pair every scenario below
// contends on.
var (
	Addr = common.BytesToAddress(repeat(0xAA, common.AddressLength))
	Slot = common.BytesToHash(append(make([]byte, common.HashLength-1), 0x01))
)

func repeat(b byte, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = b
	}
	return out
}

func key() common.StorageKey {
	return common.StorageKey{Address: Addr, Slot: Slot}
}

func reads(keys ...common.StorageKey) map[common.StorageKey]struct{} {
	m := make(map[common.StorageKey]struct{}, len(keys))
	for _, k := range keys {
		m[k] = struct{}{}
	}
	return m
}

func emptySet() map[common.StorageKey]struct{} { return map[common.StorageKey]struct{}{} }

func tx(idx int, set access.Set) analyzer.TxAccess {
	return analyzer.TxAccess{Index: common.TxIndex(idx), Set: set}
}

// WAWPair: two transactions writing the same slot produce
// one WAW conflict.
func WAWPair() []analyzer.TxAccess {
	k := key()
	return []analyzer.TxAccess{
		tx(0, access.Set{Reads: emptySet(), Writes: reads(k)}),
		tx(1, access.Set{Reads: emptySet(), Writes: reads(k)}),
	}
}

// RAWChain: one writer followed by two independent readers
// of the same slot produces two RAW conflicts and no conflict between the
// readers themselves.
func RAWChain() []analyzer.TxAccess {
	k := key()
	return []analyzer.TxAccess{
		tx(0, access.Set{Reads: emptySet(), Writes: reads(k)}),
		tx(1, access.Set{Reads: reads(k), Writes: emptySet()}),
		tx(2, access.Set{Reads: reads(k), Writes: emptySet()}),
	}
}

// MixedHazards: tx0 both reads and writes the slot, tx1
// writes it, producing both a WAW and a WAR conflict on the same pair.
func MixedHazards() []analyzer.TxAccess {
	k := key()
	return []analyzer.TxAccess{
		tx(0, access.Set{Reads: reads(k), Writes: reads(k)}),
		tx(1, access.Set{Reads: emptySet(), Writes: reads(k)}),
	}
}

// CriticalHotspot: n transactions all writing the same
// slot, producing C(n,2) WAW conflicts and one ContentionEvent whose
// density drives its severity to Critical once n is large enough.
func CriticalHotspot(n int) []analyzer.TxAccess {
	k := key()
	txs := make([]analyzer.TxAccess, n)
	for i := range txs {
		txs[i] = tx(i, access.Set{Reads: emptySet(), Writes: reads(k)})
	}
	return txs
}

// RevertSuppressesWAW: tx0's write is discarded because it
// reverted (access.Set already reflects post-normalization state, so its
// Writes set is empty here, as Normalize would have produced), leaving no
// conflict against tx1's write of the same slot.
func RevertSuppressesWAW() []analyzer.TxAccess {
	k := key()
	return []analyzer.TxAccess{
		tx(0, access.Set{Reads: emptySet(), Writes: emptySet()}),
		tx(1, access.Set{Reads: emptySet(), Writes: reads(k)}),
	}
}

// DisjointSlots is the negative control: two transactions touching
// different slots on the same contract never conflict.
func DisjointSlots() []analyzer.TxAccess {
	other := common.StorageKey{Address: Addr, Slot: common.BytesToHash([]byte{0x02})}
	return []analyzer.TxAccess{
		tx(0, access.Set{Reads: emptySet(), Writes: reads(key())}),
		tx(1, access.Set{Reads: emptySet(), Writes: reads(other)}),
	}
}
