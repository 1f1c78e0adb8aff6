// Package evmstate is the block-scoped state cache: a go-ethereum
// vm.StateDB implementation backed by flat maps instead of a trie, so a
// prefetched block can be replayed against the real core/vm.EVM
// interpreter without touching a database. It doubles as the access
// inspector's interception point: every GetState/SetState call is
// recorded into the active transaction's access.Buffer before it answers
// from the cache.
package evmstate

import (
	"sync"

	gethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/state"
	"github.com/ethereum/go-ethereum/core/stateless"
	"github.com/ethereum/go-ethereum/core/tracing"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/params"
	"github.com/ethereum/go-ethereum/trie/utils"
	"github.com/holiman/uint256"

	"github.com/argus-xyz/argus/common"
	"github.com/argus-xyz/argus/internal/access"
)

// AccountInfo is the subset of account state the cache holds.
type AccountInfo struct {
	Balance  *uint256.Int
	Nonce    uint64
	CodeHash common.Hash
	Exists   bool
}

func emptyAccount() AccountInfo {
	return AccountInfo{Balance: new(uint256.Int), Exists: false}
}

// journalEntry undoes one mutation on RevertToSnapshot. StateDB keeps a
// flat list rather than go-ethereum's typed journal because the cache only
// needs to roll back the handful of fields it actually tracks.
type journalEntry func(s *StateDB)

// StateDB is the flat-map, snapshot-rollback-capable cache. One instance
// is built per block and reused across that block's transactions, so
// later transactions observe earlier ones' committed writes. An absent
// key reads as the EVM zero value and bumps the miss counter; the cache
// never initiates network I/O itself.
type StateDB struct {
	mu sync.Mutex // guards the maps below during the concurrent prefetch phase

	accounts    map[common.Address]AccountInfo
	code        map[common.Hash][]byte // keyed by code hash, not address
	storage     map[common.StorageKey]common.Hash
	blockHashes map[uint64]common.Hash

	transient map[common.StorageKey]common.Hash

	accessListAddrs map[common.Address]struct{}
	accessListSlots map[common.StorageKey]struct{}

	selfDestructed map[common.Address]struct{}
	logs           []*types.Log
	preimages      map[common.Hash][]byte
	refund         uint64

	journal  []journalEntry
	snapshot int

	miss uint64 // absent-key lookups answered with the zero value

	// inspector is the active transaction's access buffer. SetInspector
	// swaps it in before replaying each transaction and swaps it back out
	// to nil once the tx is done; while it is nil, GetState/SetState record
	// nothing, so accesses outside a transaction are never attributed to
	// one.
	inspector *access.Buffer
}

// New returns an empty StateDB. Callers seed it via LoadAccount/LoadCode/
// LoadStorage/LoadBlockHash before running any transaction against it.
func New() *StateDB {
	return &StateDB{
		accounts:        make(map[common.Address]AccountInfo),
		code:            make(map[common.Hash][]byte),
		storage:         make(map[common.StorageKey]common.Hash),
		blockHashes:     make(map[uint64]common.Hash),
		transient:       make(map[common.StorageKey]common.Hash),
		accessListAddrs: make(map[common.Address]struct{}),
		accessListSlots: make(map[common.StorageKey]struct{}),
		selfDestructed:  make(map[common.Address]struct{}),
		preimages:       make(map[common.Hash][]byte),
	}
}

// --- seeding, called by internal/prefetch before execution ---

func (s *StateDB) LoadAccount(addr common.Address, info AccountInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	info.Exists = true
	s.accounts[addr] = info
}

func (s *StateDB) LoadCode(hash common.Hash, code []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.code[hash] = code
}

func (s *StateDB) LoadStorage(addr common.Address, slot common.SlotKey, value common.Hash) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.storage[common.StorageKey{Address: addr, Slot: slot}] = value
}

func (s *StateDB) LoadBlockHash(number uint64, hash common.Hash) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blockHashes[number] = hash
}

// AccountSnapshot returns the currently cached AccountInfo for addr, for
// callers (internal/prefetch) that need to merge a new field into an
// already-seeded account without clobbering the rest.
func (s *StateDB) AccountSnapshot(addr common.Address) AccountInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.account(addr)
}

// MissCount reports how many lookups fell through to the absent-key zero
// value, for the cache-miss metric.
func (s *StateDB) MissCount() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.miss
}

// SetInspector installs the access.Buffer that GetState/SetState append to
// for the transaction about to run. Call with nil to detach once the
// driver has normalized the buffer; with no inspector installed, a stray
// call between transactions is not recorded in any tx's access set.
func (s *StateDB) SetInspector(buf *access.Buffer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inspector = buf
}

func (s *StateDB) account(addr common.Address) AccountInfo {
	info, ok := s.accounts[addr]
	if !ok {
		s.miss++
		return emptyAccount()
	}
	return info
}

// --- vm.StateDB: account lifecycle ---

func (s *StateDB) CreateAccount(addr gethcommon.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := common.AddressFromGeth(addr)
	prev := s.account(a)
	s.journal = append(s.journal, func(s *StateDB) { s.accounts[a] = prev })
	info := prev
	info.Exists = true
	s.accounts[a] = info
}

// CreateContract is a no-op on the flat cache: contract-vs-EOA
// distinction is handled by code presence, not a separate flag, matching
// every "new contract address" path go-ethereum's EVM already routes
// through CreateAccount first.
func (s *StateDB) CreateContract(addr gethcommon.Address) {}

func (s *StateDB) Exist(addr gethcommon.Address) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.account(common.AddressFromGeth(addr)).Exists
}

func (s *StateDB) Empty(addr gethcommon.Address) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	info := s.account(common.AddressFromGeth(addr))
	return !info.Exists || (info.Balance.IsZero() && info.Nonce == 0 && info.CodeHash == common.Hash{})
}

// --- balances / nonce ---

func (s *StateDB) GetBalance(addr gethcommon.Address) *uint256.Int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return new(uint256.Int).Set(s.account(common.AddressFromGeth(addr)).Balance)
}

func (s *StateDB) setBalance(a common.Address, amount *uint256.Int) {
	info := s.account(a)
	prev := info
	s.journal = append(s.journal, func(s *StateDB) { s.accounts[a] = prev })
	info.Balance = amount
	info.Exists = true
	s.accounts[a] = info
}

func (s *StateDB) AddBalance(addr gethcommon.Address, amount *uint256.Int, _ tracing.BalanceChangeReason) uint256.Int {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := common.AddressFromGeth(addr)
	prev := new(uint256.Int).Set(s.account(a).Balance)
	s.setBalance(a, new(uint256.Int).Add(prev, amount))
	return *prev
}

func (s *StateDB) SubBalance(addr gethcommon.Address, amount *uint256.Int, _ tracing.BalanceChangeReason) uint256.Int {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := common.AddressFromGeth(addr)
	prev := new(uint256.Int).Set(s.account(a).Balance)
	s.setBalance(a, new(uint256.Int).Sub(prev, amount))
	return *prev
}

func (s *StateDB) GetNonce(addr gethcommon.Address) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.account(common.AddressFromGeth(addr)).Nonce
}

func (s *StateDB) SetNonce(addr gethcommon.Address, nonce uint64, _ tracing.NonceChangeReason) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := common.AddressFromGeth(addr)
	info := s.account(a)
	prev := info
	s.journal = append(s.journal, func(s *StateDB) { s.accounts[a] = prev })
	info.Nonce = nonce
	info.Exists = true
	s.accounts[a] = info
}

// --- code ---

func (s *StateDB) GetCodeHash(addr gethcommon.Address) gethcommon.Hash {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.account(common.AddressFromGeth(addr)).CodeHash.ToGeth()
}

func (s *StateDB) GetCode(addr gethcommon.Address) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	hash := s.account(common.AddressFromGeth(addr)).CodeHash
	code, ok := s.code[hash]
	if !ok {
		s.miss++
	}
	return code
}

func (s *StateDB) GetCodeSize(addr gethcommon.Address) int {
	return len(s.GetCode(addr))
}

func (s *StateDB) SetCode(addr gethcommon.Address, code []byte) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := common.AddressFromGeth(addr)
	info := s.account(a)
	prev := info
	s.journal = append(s.journal, func(s *StateDB) { s.accounts[a] = prev })
	hash := codeHash(code)
	s.code[hash] = code
	info.CodeHash = hash
	info.Exists = true
	s.accounts[a] = info
	return s.code[prev.CodeHash]
}

// --- storage: the Access Inspector's interception point ---

func (s *StateDB) GetState(addr gethcommon.Address, slot gethcommon.Hash) gethcommon.Hash {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, k := common.AddressFromGeth(addr), common.HashFromGeth(slot)
	if s.inspector != nil {
		s.inspector.Read(a, k)
	}
	v, ok := s.storage[common.StorageKey{Address: a, Slot: k}]
	if !ok {
		s.miss++
	}
	return v.ToGeth()
}

// GetCommittedState returns the value as of the start of the transaction.
// The flat cache keeps no per-tx origin snapshot, so this answers with the
// current value. Close enough, since go-ethereum only consults it to
// compute storage-refund gas, never to decide program behavior. It does
// not count as an access for the inspector for the same reason.
func (s *StateDB) GetCommittedState(addr gethcommon.Address, slot gethcommon.Hash) gethcommon.Hash {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, k := common.AddressFromGeth(addr), common.HashFromGeth(slot)
	v, ok := s.storage[common.StorageKey{Address: a, Slot: k}]
	if !ok {
		s.miss++
	}
	return v.ToGeth()
}

func (s *StateDB) SetState(addr gethcommon.Address, slot, value gethcommon.Hash) gethcommon.Hash {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, k, v := common.AddressFromGeth(addr), common.HashFromGeth(slot), common.HashFromGeth(value)
	if s.inspector != nil {
		s.inspector.Write(a, k)
	}
	key := common.StorageKey{Address: a, Slot: k}
	prev := s.storage[key]
	s.journal = append(s.journal, func(s *StateDB) { s.storage[key] = prev })
	s.storage[key] = v
	return prev.ToGeth()
}

func (s *StateDB) GetStorageRoot(addr gethcommon.Address) gethcommon.Hash {
	return gethcommon.Hash{} // no trie backing; callers only use this for diagnostics
}

// --- EIP-1153 transient storage ---

func (s *StateDB) GetTransientState(addr gethcommon.Address, slot gethcommon.Hash) gethcommon.Hash {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := common.StorageKey{Address: common.AddressFromGeth(addr), Slot: common.HashFromGeth(slot)}
	return s.transient[key].ToGeth()
}

func (s *StateDB) SetTransientState(addr gethcommon.Address, slot, value gethcommon.Hash) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := common.StorageKey{Address: common.AddressFromGeth(addr), Slot: common.HashFromGeth(slot)}
	prev := s.transient[key]
	s.journal = append(s.journal, func(s *StateDB) { s.transient[key] = prev })
	s.transient[key] = common.HashFromGeth(value)
}

// --- self-destruct ---

func (s *StateDB) SelfDestruct(addr gethcommon.Address) uint256.Int {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := common.AddressFromGeth(addr)
	prev := new(uint256.Int).Set(s.account(a).Balance)
	s.journal = append(s.journal, func(s *StateDB) { delete(s.selfDestructed, a) })
	s.selfDestructed[a] = struct{}{}
	s.setBalance(a, new(uint256.Int))
	return *prev
}

// SelfDestruct6780 is the EIP-6780 variant: only destroys the account if
// it was created earlier in the same transaction. The cache keeps no
// per-tx creation tracking, so every call is treated like SelfDestruct.
// The distinction never affects which storage slots a transaction
// touches, only whether the account's balance and code survive, which
// conflict detection doesn't care about.
func (s *StateDB) SelfDestruct6780(addr gethcommon.Address) (uint256.Int, bool) {
	prev := s.SelfDestruct(addr)
	return prev, true
}

func (s *StateDB) HasSelfDestructed(addr gethcommon.Address) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.selfDestructed[common.AddressFromGeth(addr)]
	return ok
}

// --- access list (EIP-2929/2930) ---

// Prepare resets the per-transaction access list and transient storage
// and pre-warms it per EIP-2929/3651: sender, destination, precompiles,
// the tx's own EIP-2930 entries, and (post-Shanghai) the coinbase. Called
// by core.ApplyMessage before each transaction runs.
func (s *StateDB) Prepare(rules params.Rules, sender, coinbase gethcommon.Address, dest *gethcommon.Address, precompiles []gethcommon.Address, txAccesses types.AccessList) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Per-tx reset: successful transactions keep their mutations, so the
	// journal entries and refund counter of a finished tx must not leak
	// into the next one.
	s.journal = s.journal[:0]
	s.refund = 0

	if rules.IsCancun {
		s.transient = make(map[common.StorageKey]common.Hash)
	}
	if !rules.IsBerlin {
		return
	}

	s.accessListAddrs = make(map[common.Address]struct{})
	s.accessListSlots = make(map[common.StorageKey]struct{})

	s.accessListAddrs[common.AddressFromGeth(sender)] = struct{}{}
	if dest != nil {
		s.accessListAddrs[common.AddressFromGeth(*dest)] = struct{}{}
	}
	for _, p := range precompiles {
		s.accessListAddrs[common.AddressFromGeth(p)] = struct{}{}
	}
	for _, entry := range txAccesses {
		a := common.AddressFromGeth(entry.Address)
		s.accessListAddrs[a] = struct{}{}
		for _, slot := range entry.StorageKeys {
			s.accessListSlots[common.StorageKey{Address: a, Slot: common.HashFromGeth(slot)}] = struct{}{}
		}
	}
	if rules.IsShanghai {
		s.accessListAddrs[common.AddressFromGeth(coinbase)] = struct{}{}
	}
}

func (s *StateDB) AddressInAccessList(addr gethcommon.Address) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.accessListAddrs[common.AddressFromGeth(addr)]
	return ok
}

func (s *StateDB) SlotInAccessList(addr gethcommon.Address, slot gethcommon.Hash) (addrOk, slotOk bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := common.AddressFromGeth(addr)
	_, addrOk = s.accessListAddrs[a]
	_, slotOk = s.accessListSlots[common.StorageKey{Address: a, Slot: common.HashFromGeth(slot)}]
	return addrOk, slotOk
}

func (s *StateDB) AddAddressToAccessList(addr gethcommon.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := common.AddressFromGeth(addr)
	if _, ok := s.accessListAddrs[a]; ok {
		return
	}
	s.journal = append(s.journal, func(s *StateDB) { delete(s.accessListAddrs, a) })
	s.accessListAddrs[a] = struct{}{}
}

func (s *StateDB) AddSlotToAccessList(addr gethcommon.Address, slot gethcommon.Hash) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := common.AddressFromGeth(addr)
	key := common.StorageKey{Address: a, Slot: common.HashFromGeth(slot)}
	if _, ok := s.accessListSlots[key]; ok {
		return
	}
	s.journal = append(s.journal, func(s *StateDB) { delete(s.accessListSlots, key) })
	s.accessListSlots[key] = struct{}{}
	if _, ok := s.accessListAddrs[a]; !ok {
		s.journal = append(s.journal, func(s *StateDB) { delete(s.accessListAddrs, a) })
		s.accessListAddrs[a] = struct{}{}
	}
}

// --- logs / preimages / refund ---

func (s *StateDB) AddLog(log *types.Log) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, log)
}

func (s *StateDB) AddPreimage(hash gethcommon.Hash, preimage []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.preimages[common.HashFromGeth(hash)] = append([]byte(nil), preimage...)
}

func (s *StateDB) AddRefund(gas uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.refund
	s.journal = append(s.journal, func(s *StateDB) { s.refund = prev })
	s.refund += gas
}

func (s *StateDB) SubRefund(gas uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.refund
	s.journal = append(s.journal, func(s *StateDB) { s.refund = prev })
	s.refund -= gas
}

func (s *StateDB) GetRefund() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refund
}

// --- snapshot / revert ---

func (s *StateDB) Snapshot() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot++
	return len(s.journal)<<16 | s.snapshot&0xffff
}

func (s *StateDB) RevertToSnapshot(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	mark := id >> 16
	for i := len(s.journal) - 1; i >= mark; i-- {
		s.journal[i](s)
	}
	s.journal = s.journal[:mark]
}

// --- misc plumbing the interpreter calls but this cache does not model ---

func (s *StateDB) GetBlockHash(number uint64) (common.Hash, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.blockHashes[number]
	if !ok {
		s.miss++
	}
	return h, ok
}

func (s *StateDB) Finalise(bool)                         {}
func (s *StateDB) IntermediateRoot(bool) gethcommon.Hash { return gethcommon.Hash{} }

// Witness, AccessEvents and PointCache exist only to satisfy vm.StateDB;
// the cache collects no stateless witness and never runs in verkle mode,
// and go-ethereum treats a nil return from each as "feature off".
func (s *StateDB) Witness() *stateless.Witness       { return nil }
func (s *StateDB) AccessEvents() *state.AccessEvents { return nil }
func (s *StateDB) PointCache() *utils.PointCache     { return nil }

func codeHash(code []byte) common.Hash {
	if len(code) == 0 {
		return common.HashFromGeth(types.EmptyCodeHash)
	}
	return common.HashFromGeth(crypto.Keccak256Hash(code))
}
