package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/argus-xyz/argus/common"
	"github.com/argus-xyz/argus/core/analyzer"
)

func TestCriticalHotspotMatchesCombinatorialCount(t *testing.T) {
	conflicts, events, err := analyzer.Analyze(CriticalHotspot(12))
	require.NoError(t, err)
	require.Len(t, conflicts, 66) // C(12,2)
	require.Len(t, events, 1)
	require.Equal(t, common.Critical, events[0].Severity)
	require.Equal(t, common.WAW, events[0].DominantHazard)
}

func TestRevertSuppressesWAWFixtureHasNoConflict(t *testing.T) {
	conflicts, _, err := analyzer.Analyze(RevertSuppressesWAW())
	require.NoError(t, err)
	require.Empty(t, conflicts)
}

func TestDisjointSlotsFixtureHasNoConflict(t *testing.T) {
	conflicts, _, err := analyzer.Analyze(DisjointSlots())
	require.NoError(t, err)
	require.Empty(t, conflicts)
}
