// Package evmexec is the execution driver: it orders a block's
// transactions, builds the per-transaction EVM environment, and drives
// go-ethereum's core/vm.EVM (treated as a black-box interpreter) against
// the evmstate.StateDB cache, capturing a normalized access.Set per
// transaction for the analyzer.
package evmexec

import (
	"context"
	"fmt"
	"math/big"

	gethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/params"

	"github.com/argus-xyz/argus/common"
	"github.com/argus-xyz/argus/internal/access"
	"github.com/argus-xyz/argus/internal/errs"
	"github.com/argus-xyz/argus/internal/evmstate"
)

// BlockEnv is the subset of block-header fields the EVM's BlockContext
// needs, resolved by the caller (cmd/argus) from the fetched header.
type BlockEnv struct {
	Number      uint64
	Time        uint64
	GasLimit    uint64
	BaseFee     *big.Int
	BlobBaseFee *big.Int // nil pre-Cancun
	Coinbase    common.Address
	Difficulty  *big.Int
	Random      *common.Hash // post-merge PREVRANDAO, nil pre-merge
}

// Tx is one transaction to replay, decoded enough to build a
// core.Message: the EVM interpreter itself never sees anything beyond
// what go-ethereum's own types.Transaction already models.
type Tx struct {
	Index    common.TxIndex
	Hash     common.Hash
	Raw      *types.Transaction
	From     common.Address
	GasLimit uint64
}

// Result is one transaction's outcome: its normalized access set plus
// whether the top-level call reverted (a revert discards writes, keeps
// reads).
type Result struct {
	Tx       common.TxIndex
	Access   access.Set
	Reverted bool
	GasUsed  uint64
}

// Driver replays a block's transactions in order against a single
// evmstate.StateDB (one StateDB per block, not per tx) so later
// transactions see earlier ones' committed state.
type Driver struct {
	chainConfig *params.ChainConfig
	state       *evmstate.StateDB
}

// New builds a Driver for one block. state must already be seeded by
// internal/prefetch before Run is called.
func New(chainConfig *params.ChainConfig, state *evmstate.StateDB) *Driver {
	return &Driver{chainConfig: chainConfig, state: state}
}

// Run replays every transaction in order, returning one Result per
// transaction in the same order. A transaction whose message conversion
// or interpreter setup fails outright contributes an empty access set
// rather than aborting the block: one malformed transaction should not
// blind the analyzer to the rest of the block's conflicts.
func (d *Driver) Run(ctx context.Context, block BlockEnv, txs []Tx) ([]Result, error) {
	results := make([]Result, len(txs))
	blockCtx := d.blockContext(block)

	for i, tx := range txs {
		if err := ctx.Err(); err != nil {
			return nil, errs.New(errs.KindExecution, block.Number, err).WithTx(int(tx.Index))
		}

		buf := access.NewBuffer()
		d.state.SetInspector(buf)

		reverted, gasUsed, err := d.runOne(blockCtx, block, tx)

		d.state.SetInspector(nil)

		if err != nil {
			// Setup failure before any opcode ran: no accesses to report,
			// but the transaction still occupies its slot in the block.
			results[i] = Result{Tx: tx.Index, Access: access.Set{Reads: map[common.StorageKey]struct{}{}, Writes: map[common.StorageKey]struct{}{}}}
			continue
		}

		results[i] = Result{
			Tx:       tx.Index,
			Access:   buf.Normalize(reverted),
			Reverted: reverted,
			GasUsed:  gasUsed,
		}
	}
	return results, nil
}

func (d *Driver) runOne(blockCtx vm.BlockContext, block BlockEnv, tx Tx) (reverted bool, gasUsed uint64, err error) {
	msg, err := messageFromTx(tx)
	if err != nil {
		return false, 0, err
	}

	evm := vm.NewEVM(blockCtx, d.state, d.chainConfig, vm.Config{})
	txCtx := core.NewEVMTxContext(msg)
	evm.SetTxContext(txCtx)

	pool := new(core.GasPool).AddGas(block.GasLimit)
	res, err := core.ApplyMessage(evm, msg, pool)
	if err != nil {
		// A failure here means the message itself never reached the
		// interpreter (e.g. insufficient balance for intrinsic gas);
		// treat it as a setup failure, not a normal revert.
		return false, 0, err
	}
	return res.Failed(), res.UsedGas, nil
}

func messageFromTx(tx Tx) (*core.Message, error) {
	if tx.Raw == nil {
		return nil, fmt.Errorf("evmexec: tx %d has no decoded transaction", tx.Index)
	}
	msg, err := core.TransactionToMessage(tx.Raw, types.LatestSignerForChainID(tx.Raw.ChainId()), nil)
	if err != nil {
		return nil, fmt.Errorf("evmexec: tx %d: %w", tx.Index, err)
	}
	// The sender was already recovered by the caller when it built the Tx
	// (EIP-155/2718 signature recovery is out of scope for the analyzer
	// itself); use it as the message sender, and skip the nonce check since replaying
	// historical transactions against a cache with no prior-tx nonce
	// bookkeeping would otherwise spuriously fail.
	msg.From = tx.From.ToGeth()
	msg.SkipNonceChecks = true
	msg.GasLimit = tx.GasLimit
	return msg, nil
}

func (d *Driver) blockContext(b BlockEnv) vm.BlockContext {
	ctx := vm.BlockContext{
		CanTransfer: core.CanTransfer,
		Transfer:    core.Transfer,
		GetHash:     d.getHash,
		Coinbase:    b.Coinbase.ToGeth(),
		BlockNumber: new(big.Int).SetUint64(b.Number),
		Time:        b.Time,
		Difficulty:  b.Difficulty,
		GasLimit:    b.GasLimit,
		BaseFee:     b.BaseFee,
		BlobBaseFee: b.BlobBaseFee,
	}
	if b.Random != nil {
		h := b.Random.ToGeth()
		ctx.Random = &h
	}
	return ctx
}

func (d *Driver) getHash(number uint64) gethcommon.Hash {
	h, ok := d.state.GetBlockHash(number)
	if !ok {
		return gethcommon.Hash{}
	}
	return h.ToGeth()
}
