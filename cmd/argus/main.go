// Command argus profiles storage contention in historical Ethereum
// blocks: the `analyze` subcommand fetches one block over JSON-RPC,
// replays its transactions against a prefetched state cache, runs the
// conflict analyzer, and writes the resulting report to the chosen sink.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/erigontech/erigon-lib/log/v3"
	"github.com/ethereum/go-ethereum/consensus/misc/eip4844"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/params"
	"github.com/spf13/afero"
	"github.com/urfave/cli/v2"

	"github.com/argus-xyz/argus/common"
	"github.com/argus-xyz/argus/core/analyzer"
	"github.com/argus-xyz/argus/core/report"
	"github.com/argus-xyz/argus/internal/config"
	"github.com/argus-xyz/argus/internal/errs"
	"github.com/argus-xyz/argus/internal/evmexec"
	"github.com/argus-xyz/argus/internal/evmstate"
	"github.com/argus-xyz/argus/internal/prefetch"
	"github.com/argus-xyz/argus/internal/rpcclient"
	"github.com/argus-xyz/argus/internal/sink/ndjson"
	"github.com/argus-xyz/argus/internal/sink/starrocks"
	"github.com/argus-xyz/argus/internal/sink/stdout"
	"github.com/argus-xyz/argus/internal/telemetry"
)

var (
	rpcURLFlag = &cli.StringFlag{
		Name:  "rpc-url",
		Usage: fmt.Sprintf("JSON-RPC endpoint to read block state from (or set %s)", config.RPCURLEnvVar()),
	}
	blockFlag = &cli.Uint64Flag{
		Name:     "block",
		Usage:    "block number to analyze",
		Required: true,
	}
	sinkFlag = &cli.StringFlag{
		Name:  "sink",
		Usage: "stdout (default), ndjson:<path>, or starrocks:<config>",
		Value: "stdout",
	}
	jsonFlag = &cli.BoolFlag{
		Name:  "json",
		Usage: "emit the conflict graph as JSON instead of the table",
	}
	dryRunFlag = &cli.BoolFlag{
		Name:  "dry-run",
		Usage: "skip prefetch and execute against an empty state cache",
	}
	parallelismFlag = &cli.IntFlag{
		Name:  "parallelism",
		Usage: "bounded fan-out width for the prefetch pass",
		Value: config.DefaultParallelism,
	}
)

func main() {
	log.Root().SetHandler(log.LvlFilterHandler(log.LvlInfo, log.StderrHandler))

	app := &cli.App{
		Name:  "argus",
		Usage: "offline storage-conflict profiler for historical Ethereum blocks",
		Commands: []*cli.Command{
			{
				Name:   "analyze",
				Usage:  "analyze one block for storage access conflicts",
				Flags:  []cli.Flag{rpcURLFlag, blockFlag, sinkFlag, jsonFlag, dryRunFlag, parallelismFlag},
				Action: runAnalyze,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Error("argus: run failed", "err", err)
		os.Exit(exitCodeFor(err))
	}
}

func exitCodeFor(err error) int {
	var e *errs.Error
	if errors.As(err, &e) {
		return e.Kind.ExitCode()
	}
	return 1
}

func runAnalyze(cliCtx *cli.Context) error {
	ctx := cliCtx.Context
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.Resolve(config.Options{
		RPCURL:      cliCtx.String(rpcURLFlag.Name),
		RPCURLEnv:   os.Getenv(config.RPCURLEnvVar()),
		Block:       cliCtx.Uint64(blockFlag.Name),
		HasBlock:    cliCtx.IsSet(blockFlag.Name),
		Sink:        cliCtx.String(sinkFlag.Name),
		JSON:        cliCtx.Bool(jsonFlag.Name),
		DryRun:      cliCtx.Bool(dryRunFlag.Name),
		Parallelism: cliCtx.Int(parallelismFlag.Name),
	})
	if err != nil {
		return err
	}

	log.Info("argus: analyzing block", "block", cfg.Block, "sink", cfg.Sink, "dryRun", cfg.DryRun)

	state := evmstate.New()

	var (
		txs []evmexec.Tx
		env = evmexec.BlockEnv{Number: cfg.Block}
	)

	if cfg.RPCURL == "" {
		// Only reachable with --dry-run: no endpoint means nothing to
		// fetch, so the replay sees an empty block. The execute, analyze,
		// and sink stages still run.
		log.Info("argus: dry-run with no RPC endpoint, replaying an empty block")
	} else {
		client, err := rpcclient.Dial(ctx, cfg.RPCURL, rpcclient.Config{
			BackoffBase:    time.Duration(config.DefaultBackoffBase) * time.Millisecond,
			MaxRetries:     config.DefaultMaxRetries,
			RequestTimeout: time.Duration(config.DefaultRequestTimeoutMillis) * time.Millisecond,
		})
		if err != nil {
			return err
		}
		defer client.Close()

		blk, err := client.BlockByNumber(ctx, cfg.Block)
		if err != nil {
			return err
		}

		if cfg.DryRun {
			log.Info("argus: dry-run, skipping prefetch; executing against an empty state cache")
		} else {
			seeds := txSeeds(blk)
			pf := prefetch.New(client, prefetch.Options{Parallelism: cfg.Parallelism})
			if err := pf.Warm(ctx, cfg.Block, state, seeds); err != nil {
				return prefetch.WarmErr(cfg.Block, err)
			}
		}

		txs, env = buildExecInputs(blk)
	}

	driver := evmexec.New(params.MainnetChainConfig, state)
	results, err := driver.Run(ctx, env, txs)
	if err != nil {
		return err
	}

	misses := state.MissCount()
	if misses > 0 {
		log.Warn("argus: state cache absorbed absent-key lookups", "block", cfg.Block, "misses", misses)
	}
	telemetry.StateCacheMisses.WithLabelValues(fmt.Sprintf("%d", cfg.Block)).Set(float64(misses))

	txAccess := make([]analyzer.TxAccess, len(results))
	for i, r := range results {
		txAccess[i] = analyzer.TxAccess{Index: r.Tx, Set: r.Access}
	}

	var touched []report.TouchedEntry
	for _, t := range txAccess {
		for key := range t.Set.Reads {
			touched = append(touched, report.TouchedEntry{Key: key, Tx: t.Index})
		}
		for key := range t.Set.Writes {
			touched = append(touched, report.TouchedEntry{Key: key, Tx: t.Index})
		}
	}

	conflicts, events, err := analyzer.Analyze(txAccess)
	if err != nil {
		return errs.New(errs.KindInvariant, cfg.Block, err)
	}
	telemetry.ConflictsPerBlock.Observe(float64(len(conflicts)))
	for _, e := range events {
		telemetry.ContentionDensity.Observe(e.Density)
	}

	rep := report.Assemble(cfg.Block, len(txAccess), touched, conflicts, events)

	return writeToSink(ctx, cfg, rep)
}

func writeToSink(ctx context.Context, cfg config.Config, rep report.Report) error {
	switch cfg.Sink {
	case config.SinkNDJSON:
		return ndjson.New(afero.NewOsFs(), cfg.SinkPath).Write(rep)
	case config.SinkStarRocks:
		srCfg, err := starrocks.ParseConfig(cfg.SinkPath)
		if err != nil {
			return err
		}
		return starrocks.New(srCfg).Write(ctx, rep)
	default:
		return stdout.Write(os.Stdout, rep, cfg.JSON)
	}
}

// txSeeds extracts the sender/recipient/access-list hints the prefetcher
// needs from an already-decoded block, without re-deriving anything the
// block itself doesn't already carry.
func txSeeds(blk *types.Block) []prefetch.TxSeed {
	txs := blk.Transactions()
	seeds := make([]prefetch.TxSeed, len(txs))
	for i, tx := range txs {
		seeds[i] = seedFromTx(common.TxIndex(i), tx)
	}
	return seeds
}

func seedFromTx(idx common.TxIndex, tx *types.Transaction) prefetch.TxSeed {
	from, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx)
	if err != nil {
		from = [20]byte{}
	}
	seed := prefetch.TxSeed{Index: idx, From: common.AddressFromGeth(from), Input: tx.Data()}
	if to := tx.To(); to != nil {
		addr := common.AddressFromGeth(*to)
		seed.To = &addr
	}
	for _, entry := range tx.AccessList() {
		tuple := prefetch.AccessTuple{Address: common.AddressFromGeth(entry.Address)}
		for _, slot := range entry.StorageKeys {
			tuple.Slots = append(tuple.Slots, common.HashFromGeth(slot))
		}
		seed.AccessList = append(seed.AccessList, tuple)
	}
	return seed
}

func buildExecInputs(blk *types.Block) ([]evmexec.Tx, evmexec.BlockEnv) {
	header := blk.Header()

	rawTxs := blk.Transactions()
	txs := make([]evmexec.Tx, len(rawTxs))
	for i, tx := range rawTxs {
		from, _ := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx)
		txs[i] = evmexec.Tx{
			Index:    common.TxIndex(i),
			Hash:     common.HashFromGeth(tx.Hash()),
			Raw:      tx,
			From:     common.AddressFromGeth(from),
			GasLimit: tx.Gas(),
		}
	}

	env := evmexec.BlockEnv{
		Number:     header.Number.Uint64(),
		Time:       header.Time,
		GasLimit:   header.GasLimit,
		BaseFee:    header.BaseFee,
		Coinbase:   common.AddressFromGeth(header.Coinbase),
		Difficulty: header.Difficulty,
	}
	if header.ExcessBlobGas != nil {
		env.BlobBaseFee = eip4844.CalcBlobFee(params.MainnetChainConfig, header)
	}
	if header.Difficulty != nil && header.Difficulty.Sign() == 0 {
		rand := common.HashFromGeth(header.MixDigest)
		env.Random = &rand
	}
	return txs, env
}
