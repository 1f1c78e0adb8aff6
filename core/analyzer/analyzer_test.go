package analyzer

import (
	"testing"

	"github.com/argus-xyz/argus/common"
	"github.com/argus-xyz/argus/internal/access"
	"github.com/stretchr/testify/require"
)

var (
	testAddr = common.BytesToAddress([]byte{0xAA})
	testSlot = common.BytesToHash([]byte{0x01})
)

func set(reads, writes []common.StorageKey) access.Set {
	s := access.Set{Reads: map[common.StorageKey]struct{}{}, Writes: map[common.StorageKey]struct{}{}}
	for _, k := range reads {
		s.Reads[k] = struct{}{}
	}
	for _, k := range writes {
		s.Writes[k] = struct{}{}
	}
	return s
}

func key(addr common.Address, slot common.SlotKey) common.StorageKey {
	return common.StorageKey{Address: addr, Slot: slot}
}

func TestWAWPair(t *testing.T) {
	k := key(testAddr, testSlot)
	txs := []TxAccess{
		{Index: 0, Set: set(nil, []common.StorageKey{k})},
		{Index: 1, Set: set(nil, []common.StorageKey{k})},
	}
	conflicts, events, err := Analyze(txs)
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	require.Equal(t, common.WAW, conflicts[0].Kind)
	require.Equal(t, common.TxIndex(0), conflicts[0].Earlier)
	require.Equal(t, common.TxIndex(1), conflicts[0].Later)

	require.Len(t, events, 1)
	require.Equal(t, 1, events[0].ConflictCount)
	require.Equal(t, 2, events[0].AffectedTxCount)
	require.InDelta(t, 0.5, events[0].Density, 1e-9)
	require.Equal(t, common.Low, events[0].Severity)
	require.Equal(t, common.WAW, events[0].DominantHazard)
}

func TestRAWChain(t *testing.T) {
	k := key(testAddr, testSlot)
	txs := []TxAccess{
		{Index: 0, Set: set(nil, []common.StorageKey{k})},
		{Index: 1, Set: set([]common.StorageKey{k}, nil)},
		{Index: 2, Set: set([]common.StorageKey{k}, nil)},
	}
	conflicts, events, err := Analyze(txs)
	require.NoError(t, err)
	require.Len(t, conflicts, 2)
	for _, c := range conflicts {
		require.Equal(t, common.RAW, c.Kind)
	}
	require.InDelta(t, 2.0/3.0, events[0].Density, 1e-9)
	require.Equal(t, common.Low, events[0].Severity)
}

func TestMixedHazards(t *testing.T) {
	k := key(testAddr, testSlot)
	txs := []TxAccess{
		{Index: 0, Set: set([]common.StorageKey{k}, []common.StorageKey{k})},
		{Index: 1, Set: set(nil, []common.StorageKey{k})},
	}
	conflicts, events, err := Analyze(txs)
	require.NoError(t, err)
	require.Len(t, conflicts, 2)
	require.Len(t, events, 1)
	require.Equal(t, 2, events[0].ConflictCount)
	require.Equal(t, 2, events[0].AffectedTxCount)
	require.InDelta(t, 1.0, events[0].Density, 1e-9)
	require.Equal(t, common.Medium, events[0].Severity)
	require.Equal(t, common.WAW, events[0].DominantHazard)
}

func TestCriticalHotspot(t *testing.T) {
	k := key(testAddr, testSlot)
	txs := make([]TxAccess, 12)
	for i := range txs {
		txs[i] = TxAccess{Index: common.TxIndex(i), Set: set(nil, []common.StorageKey{k})}
	}
	conflicts, events, err := Analyze(txs)
	require.NoError(t, err)
	require.Len(t, conflicts, 66) // C(12,2)
	require.Len(t, events, 1)
	require.Equal(t, 66, events[0].ConflictCount)
	require.Equal(t, 12, events[0].AffectedTxCount)
	require.InDelta(t, 5.5, events[0].Density, 1e-9)
	require.Equal(t, common.Critical, events[0].Severity)
}

func TestRevertSuppressesWAW(t *testing.T) {
	// tx0's writes were discarded by normalization before reaching the
	// analyzer, so its TxAccess carries no write for the slot.
	k := key(testAddr, testSlot)
	txs := []TxAccess{
		{Index: 0, Set: set(nil, nil)},
		{Index: 1, Set: set(nil, []common.StorageKey{k})},
	}
	conflicts, _, err := Analyze(txs)
	require.NoError(t, err)
	require.Empty(t, conflicts)
}

func TestDisjointSlots(t *testing.T) {
	s0 := common.BytesToHash([]byte{0x01})
	s1 := common.BytesToHash([]byte{0x02})
	txs := []TxAccess{
		{Index: 0, Set: set(nil, []common.StorageKey{key(testAddr, s0)})},
		{Index: 1, Set: set(nil, []common.StorageKey{key(testAddr, s1)})},
	}
	conflicts, _, err := Analyze(txs)
	require.NoError(t, err)
	require.Empty(t, conflicts)
}

func TestAllReadNoConflicts(t *testing.T) {
	k := key(testAddr, testSlot)
	txs := []TxAccess{
		{Index: 0, Set: set([]common.StorageKey{k}, nil)},
		{Index: 1, Set: set([]common.StorageKey{k}, nil)},
		{Index: 2, Set: set([]common.StorageKey{k}, nil)},
	}
	conflicts, events, err := Analyze(txs)
	require.NoError(t, err)
	require.Empty(t, conflicts)
	require.Empty(t, events)
}

func TestEmptyBlock(t *testing.T) {
	conflicts, events, err := Analyze(nil)
	require.NoError(t, err)
	require.Empty(t, conflicts)
	require.Empty(t, events)
}

func TestSingleTransactionNoConflicts(t *testing.T) {
	k := key(testAddr, testSlot)
	txs := []TxAccess{
		{Index: 0, Set: set([]common.StorageKey{k}, []common.StorageKey{k})},
	}
	conflicts, events, err := Analyze(txs)
	require.NoError(t, err)
	require.Empty(t, conflicts)
	require.Empty(t, events)
}

func TestDeterministicOrdering(t *testing.T) {
	k := key(testAddr, testSlot)
	txs := []TxAccess{
		{Index: 0, Set: set(nil, []common.StorageKey{k})},
		{Index: 1, Set: set(nil, []common.StorageKey{k})},
		{Index: 2, Set: set([]common.StorageKey{k}, nil)},
	}
	c1, e1, err1 := Analyze(txs)
	c2, e2, err2 := Analyze(txs)
	require.NoError(t, err1)
	require.NoError(t, err2)
	require.Equal(t, c1, c2)
	require.Equal(t, e1, e2)
}

func TestGraphDependents(t *testing.T) {
	k := key(testAddr, testSlot)
	txs := []TxAccess{
		{Index: 0, Set: set(nil, []common.StorageKey{k})},
		{Index: 1, Set: set([]common.StorageKey{k}, nil)},
		{Index: 2, Set: set([]common.StorageKey{k}, nil)},
	}
	conflicts, _, err := Analyze(txs)
	require.NoError(t, err)
	g := BuildGraph(conflicts)
	require.ElementsMatch(t, []common.TxIndex{1, 2}, g.DependentsOf(0))
}
