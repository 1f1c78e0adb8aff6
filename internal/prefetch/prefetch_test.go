package prefetch

import (
	"context"
	"math/big"
	"sync"
	"testing"

	gethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"github.com/argus-xyz/argus/common"
	"github.com/argus-xyz/argus/internal/evmstate"
)

type fakeFetcher struct {
	mu           sync.Mutex
	accountCalls int
	storageCalls int
	codeByAddr   map[common.Address][]byte
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{codeByAddr: make(map[common.Address][]byte)}
}

func (f *fakeFetcher) BlockByNumber(ctx context.Context, number uint64) (*types.Block, error) {
	return nil, nil
}

func (f *fakeFetcher) NonceAt(ctx context.Context, addr common.Address, blockNumber uint64) (uint64, error) {
	f.mu.Lock()
	f.accountCalls++
	f.mu.Unlock()
	return 7, nil
}

func (f *fakeFetcher) BalanceAt(ctx context.Context, addr common.Address, blockNumber uint64) (*gethcommon.Hash, error) {
	h := gethcommon.BigToHash(big.NewInt(0))
	return &h, nil
}

func (f *fakeFetcher) CodeAt(ctx context.Context, addr common.Address, blockNumber uint64) ([]byte, error) {
	return f.codeByAddr[addr], nil
}

func (f *fakeFetcher) StorageAt(ctx context.Context, addr common.Address, slot common.SlotKey, blockNumber uint64) (common.Hash, error) {
	f.mu.Lock()
	f.storageCalls++
	f.mu.Unlock()
	return common.BytesToHash([]byte{0x42}), nil
}

func TestWarmFetchesSenderAndRecipient(t *testing.T) {
	fetcher := newFakeFetcher()
	p := New(fetcher, Options{Parallelism: 4})
	state := evmstate.New()

	from := common.BytesToAddress([]byte{1})
	to := common.BytesToAddress([]byte{2})

	err := p.Warm(context.Background(), 100, state, []TxSeed{{Index: 0, From: from, To: &to}})
	require.NoError(t, err)
	require.Equal(t, 2, fetcher.accountCalls)
}

func TestWarmDeduplicatesRepeatedAddress(t *testing.T) {
	fetcher := newFakeFetcher()
	p := New(fetcher, Options{Parallelism: 4})
	state := evmstate.New()

	shared := common.BytesToAddress([]byte{9})
	txs := []TxSeed{
		{Index: 0, From: shared, To: &shared},
		{Index: 1, From: shared, To: &shared},
	}

	err := p.Warm(context.Background(), 100, state, txs)
	require.NoError(t, err)
	require.Equal(t, 1, fetcher.accountCalls)
}

func TestWarmSeedsAccessListSlots(t *testing.T) {
	fetcher := newFakeFetcher()
	p := New(fetcher, Options{Parallelism: 4})
	state := evmstate.New()

	addr := common.BytesToAddress([]byte{3})
	slot := common.BytesToHash([]byte{1})
	txs := []TxSeed{{
		Index:      0,
		From:       common.BytesToAddress([]byte{4}),
		AccessList: []AccessTuple{{Address: addr, Slots: []common.SlotKey{slot}}},
	}}

	err := p.Warm(context.Background(), 100, state, txs)
	require.NoError(t, err)
	require.Equal(t, 1, fetcher.storageCalls)

	gaddr := addr.ToGeth()
	gslot := slot.ToGeth()
	require.Equal(t, gethcommon.Hash{31: 0x42}, state.GetState(gaddr, gslot))
}

func TestWarmDerivesBalanceSlotForRecognizedToken(t *testing.T) {
	fetcher := newFakeFetcher()
	p := New(fetcher, Options{Parallelism: 4})
	state := evmstate.New()

	weth := common.AddressFromGeth(gethcommon.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"))
	from := common.BytesToAddress([]byte{7})

	err := p.Warm(context.Background(), 1, state, []TxSeed{{Index: 0, From: from, To: &weth}})
	require.NoError(t, err)
	require.Equal(t, 1, fetcher.storageCalls)

	// The warmed key must be the derived balances[from] slot, not the raw
	// mapping base.
	want := mappingSlot(from, 3)
	require.Equal(t, gethcommon.Hash{31: 0x42}, state.GetState(weth.ToGeth(), want.ToGeth()))
	require.Equal(t, uint64(0), state.MissCount())
}

func TestWarmDeduplicatesDerivedSlots(t *testing.T) {
	fetcher := newFakeFetcher()
	p := New(fetcher, Options{Parallelism: 4})
	state := evmstate.New()

	weth := common.AddressFromGeth(gethcommon.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"))
	from := common.BytesToAddress([]byte{7})

	txs := []TxSeed{
		{Index: 0, From: from, To: &weth},
		{Index: 1, From: from, To: &weth},
	}
	err := p.Warm(context.Background(), 1, state, txs)
	require.NoError(t, err)
	require.Equal(t, 1, fetcher.storageCalls)
}

func TestERC20PartiesParsesTransferCalldata(t *testing.T) {
	recipient := common.BytesToAddress([]byte{0xBB})
	data := make([]byte, 36)
	copy(data[:4], selTransfer[:])
	copy(data[16:36], recipient.Bytes())

	parties := erc20Parties(TxSeed{From: common.BytesToAddress([]byte{0xAA}), Input: data})
	require.Len(t, parties, 2)
	require.Equal(t, recipient, parties[1])
}

func TestERC20PartiesParsesTransferFromCalldata(t *testing.T) {
	src := common.BytesToAddress([]byte{0xCC})
	dst := common.BytesToAddress([]byte{0xDD})
	data := make([]byte, 68)
	copy(data[:4], selTransferFrom[:])
	copy(data[16:36], src.Bytes())
	copy(data[48:68], dst.Bytes())

	parties := erc20Parties(TxSeed{From: common.BytesToAddress([]byte{0xAA}), Input: data})
	require.Len(t, parties, 3)
	require.Equal(t, src, parties[1])
	require.Equal(t, dst, parties[2])
}

func TestERC20PartiesIgnoresUnrelatedCalldata(t *testing.T) {
	from := common.BytesToAddress([]byte{0xAA})
	parties := erc20Parties(TxSeed{From: from, Input: []byte{0xde, 0xad, 0xbe, 0xef}})
	require.Equal(t, []common.Address{from}, parties)
}
