package evmexec

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/params"
	"github.com/stretchr/testify/require"

	"github.com/argus-xyz/argus/common"
	"github.com/argus-xyz/argus/internal/evmstate"
)

func testBlockEnv() BlockEnv {
	return BlockEnv{
		Number:     100,
		Time:       1_700_000_000,
		GasLimit:   30_000_000,
		BaseFee:    big.NewInt(1_000_000_000),
		Difficulty: big.NewInt(0),
	}
}

func TestRunSetupFailureYieldsEmptyAccessSetNotAbort(t *testing.T) {
	d := New(params.MainnetChainConfig, evmstate.New())

	txs := []Tx{
		{Index: 0, Raw: nil}, // no decoded transaction: setup failure
	}

	results, err := d.Run(context.Background(), testBlockEnv(), txs)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, common.TxIndex(0), results[0].Tx)
	require.Empty(t, results[0].Access.Reads)
	require.Empty(t, results[0].Access.Writes)
	require.False(t, results[0].Reverted)
}

func TestRunAbortsOnCancelledContext(t *testing.T) {
	d := New(params.MainnetChainConfig, evmstate.New())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := d.Run(ctx, testBlockEnv(), []Tx{{Index: 0, Raw: nil}})
	require.Error(t, err)
}

func TestRunPreservesTxOrderAcrossMultipleSetupFailures(t *testing.T) {
	d := New(params.MainnetChainConfig, evmstate.New())

	txs := []Tx{
		{Index: 0, Raw: nil},
		{Index: 1, Raw: nil},
		{Index: 2, Raw: nil},
	}
	results, err := d.Run(context.Background(), testBlockEnv(), txs)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for i, r := range results {
		require.Equal(t, common.TxIndex(i), r.Tx)
	}
}
