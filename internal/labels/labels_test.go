package labels

import (
	"testing"

	"github.com/argus-xyz/argus/common"
	"github.com/stretchr/testify/require"
)

func TestTableHasAtLeast45Entries(t *testing.T) {
	require.GreaterOrEqual(t, Count(), 45)
}

func TestLookupKnown(t *testing.T) {
	lbl, ok := Lookup(addr("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"))
	require.True(t, ok)
	require.Equal(t, "WETH", lbl)
}

func TestLookupUnknown(t *testing.T) {
	_, ok := Lookup(common.Address{})
	require.False(t, ok)
}

func TestHotSlotsForRecognizedToken(t *testing.T) {
	hot, ok := HotSlotsFor(addr("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"))
	require.True(t, ok)
	require.Equal(t, []uint8{3}, hot.BalanceBases)

	_, ok = HotSlotsFor(common.Address{})
	require.False(t, ok)
}

func TestHotSlotsFixedSlotsForPool(t *testing.T) {
	hot, ok := HotSlotsFor(addr("0xbEbc44782C7dB0a1A60Cb6fe97d0b483032FF1C7"))
	require.True(t, ok)
	require.Empty(t, hot.BalanceBases)
	require.Len(t, hot.Fixed, 3)
}
