// Package prefetch fetches everything the execution driver needs for one
// block, ahead of running any transaction, with bounded parallelism
// against the upstream RPC endpoint.
//
// Three categories of state are warmed:
//  1. the block header and its transactions (fetched by the caller);
//  2. each transaction's sender/recipient account state and code;
//  3. speculative hot-slot seeding, both from each transaction's own
//     EIP-2930 access list and from internal/labels' well-known-contract
//     table.
package prefetch

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/argus-xyz/argus/common"
	"github.com/argus-xyz/argus/internal/errs"
	"github.com/argus-xyz/argus/internal/evmstate"
	"github.com/argus-xyz/argus/internal/labels"
	"github.com/argus-xyz/argus/internal/rpcclient"
)

// Options tunes fan-out width and request rate, sourced from
// internal/config.Config.Parallelism.
type Options struct {
	Parallelism int
	// RequestsPerSecond bounds the steady-state call rate against the
	// upstream endpoint; 0 means unbounded.
	RequestsPerSecond float64
	Burst             int
}

// Prefetcher drives the fan-out described above against a StateFetcher
// and seeds an evmstate.StateDB.
type Prefetcher struct {
	fetcher   rpcclient.StateFetcher
	opts      Options
	limiter   *rate.Limiter
	codeCache *evmstate.CodeCache

	addrHashMu sync.Mutex
	addrHash   map[common.Address]common.Hash
}

// codeCacheSize bounds the bytecode cache shared across every block a
// single Prefetcher warms; a handful of hot contracts account for most
// calls, so this stays small relative to typical block sizes.
const codeCacheSize = 256

func New(fetcher rpcclient.StateFetcher, opts Options) *Prefetcher {
	p := &Prefetcher{fetcher: fetcher, opts: opts}
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		p.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	// NewCodeCache only fails for a non-positive size, which codeCacheSize
	// never is; a cache miss just means every Warm call fetches over RPC.
	p.codeCache, _ = evmstate.NewCodeCache(codeCacheSize)
	return p
}

// TxSeed is one transaction's sender/recipient/access-list/calldata,
// extracted by the caller from the already-fetched block body. The
// prefetcher never re-derives a sender itself, since that requires
// signature recovery that belongs with block decoding, not with cache
// warming.
type TxSeed struct {
	Index      common.TxIndex
	From       common.Address
	To         *common.Address
	Input      []byte // calldata, consulted only for its ERC-20 selector prefix
	AccessList []AccessTuple
}

// AccessTuple mirrors an EIP-2930 access list entry.
type AccessTuple struct {
	Address common.Address
	Slots   []common.SlotKey
}

// Warm fetches and loads every account, code blob, and storage slot the
// given transactions are expected to touch into state, ahead of
// execution. blockNumber identifies the point-in-time state to read:
// always the block being analyzed, never "latest".
func (p *Prefetcher) Warm(ctx context.Context, blockNumber uint64, state *evmstate.StateDB, txs []TxSeed) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.parallelism())

	accounts := newAddrSet()
	slots := newSlotSet()

	warmSlotOnce := func(addr common.Address, slot common.SlotKey) {
		if !slots.addIfNew(common.StorageKey{Address: addr, Slot: slot}) {
			return
		}
		g.Go(func() error { return p.warmSlot(gctx, blockNumber, state, addr, slot) })
	}

	for _, tx := range txs {
		tx := tx
		if accounts.addIfNew(tx.From) {
			g.Go(func() error { return p.warmAccountAndCode(gctx, blockNumber, state, tx.From) })
		}
		if tx.To != nil && accounts.addIfNew(*tx.To) {
			to := *tx.To
			g.Go(func() error { return p.warmAccountAndCode(gctx, blockNumber, state, to) })
		}
		for _, entry := range tx.AccessList {
			entry := entry
			if accounts.addIfNew(entry.Address) {
				g.Go(func() error { return p.warmAccountAndCode(gctx, blockNumber, state, entry.Address) })
			}
			for _, slot := range entry.Slots {
				warmSlotOnce(entry.Address, slot)
			}
			seedHotSlots(entry.Address, tx, warmSlotOnce)
		}
		if tx.To != nil {
			seedHotSlots(*tx.To, tx, warmSlotOnce)
		}
	}

	return g.Wait()
}

// seedHotSlots warms the speculative slots for contract, when it is a
// recognized DeFi primitive: ERC-20 balance-mapping slots derived for the
// accounts this transaction moves tokens between, plus any fixed slots
// (AMM reserves) the label table pins.
func seedHotSlots(contract common.Address, tx TxSeed, warm func(common.Address, common.SlotKey)) {
	hot, ok := labels.HotSlotsFor(contract)
	if !ok {
		return
	}
	for _, base := range hot.BalanceBases {
		for _, account := range erc20Parties(tx) {
			warm(contract, mappingSlot(account, base))
		}
	}
	for _, slot := range hot.Fixed {
		warm(contract, slot)
	}
}

// ERC-20 calldata selectors whose arguments name the accounts a token
// transfer touches.
var (
	selTransfer     = [4]byte{0xa9, 0x05, 0x9c, 0xbb} // transfer(address,uint256)
	selTransferFrom = [4]byte{0x23, 0xb8, 0x72, 0xdd} // transferFrom(address,address,uint256)
)

// erc20Parties lists the accounts whose token balances this transaction
// plausibly touches: always the sender, plus the recipient (and source)
// parsed from a transfer/transferFrom calldata prefix.
func erc20Parties(tx TxSeed) []common.Address {
	parties := []common.Address{tx.From}
	data := tx.Input
	if len(data) < 4+32 {
		return parties
	}
	var sel [4]byte
	copy(sel[:], data[:4])
	switch sel {
	case selTransfer:
		parties = append(parties, wordToAddress(data[4:36]))
	case selTransferFrom:
		parties = append(parties, wordToAddress(data[4:36]))
		if len(data) >= 4+64 {
			parties = append(parties, wordToAddress(data[36:68]))
		}
	}
	return parties
}

func wordToAddress(word []byte) common.Address {
	return common.BytesToAddress(word[12:])
}

// mappingSlot derives the storage slot holding mapping[account] for a
// Solidity mapping rooted at base: keccak256(pad32(account) ++
// pad32(base)).
func mappingSlot(account common.Address, base uint8) common.SlotKey {
	var buf [64]byte
	copy(buf[12:32], account[:])
	buf[63] = base
	return common.HashFromGeth(crypto.Keccak256Hash(buf[:]))
}

func (p *Prefetcher) parallelism() int {
	if p.opts.Parallelism <= 0 {
		return 8
	}
	return p.opts.Parallelism
}

func (p *Prefetcher) wait(ctx context.Context) error {
	if p.limiter == nil {
		return nil
	}
	return p.limiter.Wait(ctx)
}

func (p *Prefetcher) warmAccount(ctx context.Context, block uint64, state *evmstate.StateDB, addr common.Address) error {
	if err := p.wait(ctx); err != nil {
		return err
	}
	nonce, err := p.fetcher.NonceAt(ctx, addr, block)
	if err != nil {
		return err
	}
	balanceHash, err := p.fetcher.BalanceAt(ctx, addr, block)
	if err != nil {
		return err
	}
	balance := new(uint256.Int)
	if balanceHash != nil {
		balance.SetBytes32(balanceHash[:])
	}
	state.LoadAccount(addr, evmstate.AccountInfo{Balance: balance, Nonce: nonce})
	return nil
}

func (p *Prefetcher) warmAccountAndCode(ctx context.Context, block uint64, state *evmstate.StateDB, addr common.Address) error {
	if err := p.warmAccount(ctx, block, state, addr); err != nil {
		return err
	}

	code, hash, err := p.codeFor(ctx, block, addr)
	if err != nil {
		return err
	}
	if len(code) == 0 {
		return nil
	}
	state.LoadCode(hash, code)
	// LoadAccount replaces the whole AccountInfo, so re-read what
	// warmAccount just stored instead of clobbering balance/nonce.
	prev := state.AccountSnapshot(addr)
	prev.CodeHash = hash
	state.LoadAccount(addr, prev)
	return nil
}

// codeFor resolves addr's bytecode, consulting the Prefetcher's
// address->hash index and the shared CodeCache before falling back to an
// RPC round trip. The index lets a Prefetcher reused across several
// blocks (a batch run) skip re-fetching a contract it has already seen,
// even though within a single Warm call addrSet already guarantees each
// address is only looked up once.
func (p *Prefetcher) codeFor(ctx context.Context, block uint64, addr common.Address) ([]byte, common.Hash, error) {
	if hash, ok := p.knownCodeHash(addr); ok {
		if code, ok := p.codeCache.Get(hash); ok {
			return code, hash, nil
		}
	}

	if err := p.wait(ctx); err != nil {
		return nil, common.Hash{}, err
	}
	code, err := p.fetcher.CodeAt(ctx, addr, block)
	if err != nil {
		return nil, common.Hash{}, err
	}
	if len(code) == 0 {
		return nil, common.Hash{}, nil
	}
	hash := common.HashFromGeth(crypto.Keccak256Hash(code))
	p.codeCache.Add(hash, code)
	p.rememberCodeHash(addr, hash)
	return code, hash, nil
}

func (p *Prefetcher) knownCodeHash(addr common.Address) (common.Hash, bool) {
	p.addrHashMu.Lock()
	defer p.addrHashMu.Unlock()
	hash, ok := p.addrHash[addr]
	return hash, ok
}

func (p *Prefetcher) rememberCodeHash(addr common.Address, hash common.Hash) {
	p.addrHashMu.Lock()
	defer p.addrHashMu.Unlock()
	if p.addrHash == nil {
		p.addrHash = make(map[common.Address]common.Hash)
	}
	p.addrHash[addr] = hash
}

func (p *Prefetcher) warmSlot(ctx context.Context, block uint64, state *evmstate.StateDB, addr common.Address, slot common.SlotKey) error {
	if err := p.wait(ctx); err != nil {
		return err
	}
	value, err := p.fetcher.StorageAt(ctx, addr, slot, block)
	if err != nil {
		return err
	}
	state.LoadStorage(addr, slot, value)
	return nil
}

// addrSet and slotSet deduplicate fetches across the transactions Warm
// fans out, so a contract referenced by several senders and access lists
// (or a hot slot derived for the same account twice) is only fetched
// once.
type addrSet struct {
	mu   sync.Mutex
	seen map[common.Address]struct{}
}

func newAddrSet() *addrSet {
	return &addrSet{seen: make(map[common.Address]struct{})}
}

func (s *addrSet) addIfNew(a common.Address) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[a]; ok {
		return false
	}
	s.seen[a] = struct{}{}
	return true
}

type slotSet struct {
	mu   sync.Mutex
	seen map[common.StorageKey]struct{}
}

func newSlotSet() *slotSet {
	return &slotSet{seen: make(map[common.StorageKey]struct{})}
}

func (s *slotSet) addIfNew(k common.StorageKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[k]; ok {
		return false
	}
	s.seen[k] = struct{}{}
	return true
}

// WarmErr wraps a prefetch failure as a transport error, since everything
// Warm does is RPC I/O.
func WarmErr(block uint64, err error) error {
	if err == nil {
		return nil
	}
	return errs.New(errs.KindTransport, block, err)
}
