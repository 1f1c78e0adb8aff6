// Package rpcclient is the StateFetcher boundary: a thin, retrying
// wrapper around go-ethereum's JSON-RPC client. Every call distinguishes
// a transient failure (rate limiting, timeout, connection reset) from a
// fatal one (bad block number, malformed response), so its retry loop can
// retry the former and fail fast on the latter.
package rpcclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"
	gethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/argus-xyz/argus/common"
	"github.com/argus-xyz/argus/internal/errs"
	"github.com/argus-xyz/argus/internal/telemetry"
)

// AccountState is the subset of eth_getProof / eth_getBalance /
// eth_getTransactionCount a prefetch seed needs.
type AccountState struct {
	Balance  gethcommon.Hash // big-endian 256-bit balance, converted by the caller
	Nonce    uint64
	CodeHash common.Hash
}

// StateFetcher is the interface internal/prefetch depends on, so tests
// can substitute a fixture-backed fake without dialing anything.
type StateFetcher interface {
	BlockByNumber(ctx context.Context, number uint64) (*types.Block, error)
	NonceAt(ctx context.Context, addr common.Address, blockNumber uint64) (uint64, error)
	BalanceAt(ctx context.Context, addr common.Address, blockNumber uint64) (*gethcommon.Hash, error)
	CodeAt(ctx context.Context, addr common.Address, blockNumber uint64) ([]byte, error)
	StorageAt(ctx context.Context, addr common.Address, slot common.SlotKey, blockNumber uint64) (common.Hash, error)
}

// Config tunes the retry policy. Defaults come from internal/config's
// DefaultBackoffBase/DefaultMaxRetries/DefaultRequestTimeoutMillis.
type Config struct {
	BackoffBase    time.Duration
	MaxRetries     uint64
	RequestTimeout time.Duration
}

// Client is the concrete StateFetcher, backed by a single *rpc.Client.
type Client struct {
	rpc *rpc.Client
	cfg Config
}

// Dial connects to url (http(s):// or ws(s)://) and returns a ready
// Client. The dial itself is not retried: a bad URL or unreachable
// endpoint at startup is a configuration error, not a transient one.
func Dial(ctx context.Context, url string, cfg Config) (*Client, error) {
	c, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, errs.New(errs.KindConfiguration, 0, fmt.Errorf("rpcclient: dial %s: %w", url, err))
	}
	return &Client{rpc: c, cfg: cfg}, nil
}

func (c *Client) Close() { c.rpc.Close() }

// withRetry runs op under an exponential backoff policy, retrying only
// transient failures (per isTransientRPCError) up to cfg.MaxRetries times.
// method is the JSON-RPC method being called, used only to label the
// internal/telemetry retry counter.
func (c *Client) withRetry(ctx context.Context, method string, op func(ctx context.Context) error) error {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(c.backoffPolicy(), c.cfg.MaxRetries),
		ctx,
	)
	first := true
	return backoff.Retry(func() error {
		if !first {
			telemetry.RPCRetries.WithLabelValues(method).Inc()
		}
		first = false

		callCtx, cancel := context.WithTimeout(ctx, c.requestTimeout())
		defer cancel()

		err := op(callCtx)
		if err == nil {
			return nil
		}
		if isTransientRPCError(err) {
			return errs.MarkTransient(err)
		}
		return backoff.Permanent(err)
	}, policy)
}

func (c *Client) backoffPolicy() backoff.BackOff {
	base := c.cfg.BackoffBase
	if base <= 0 {
		base = 200 * time.Millisecond
	}
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = base
	return eb
}

func (c *Client) requestTimeout() time.Duration {
	if c.cfg.RequestTimeout <= 0 {
		return 10 * time.Second
	}
	return c.cfg.RequestTimeout
}

// isTransientRPCError classifies network-level failures (timeouts,
// connection resets, DNS flakes) and JSON-RPC rate-limit responses as
// retryable; everything else (bad params, missing block, decode failures)
// is fatal.
func isTransientRPCError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout() || netErr.Temporary()
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		// -32005 is the de facto "rate limited, try again" code most
		// providers (Infura, Alchemy) use; everything else in the
		// JSON-RPC error space reflects a malformed or rejected request.
		return rpcErr.ErrorCode() == -32005
	}
	return false
}

func (c *Client) BlockByNumber(ctx context.Context, number uint64) (*types.Block, error) {
	var raw map[string]any
	err := c.withRetry(ctx, "eth_getBlockByNumber", func(ctx context.Context) error {
		return c.rpc.CallContext(ctx, &raw, "eth_getBlockByNumber", hexUint(number), true)
	})
	if err != nil {
		return nil, wrapTransport(number, "eth_getBlockByNumber", err)
	}
	if raw == nil {
		return nil, errs.New(errs.KindDecoding, number, fmt.Errorf("rpcclient: block %d not found", number))
	}
	block, err := decodeBlock(raw)
	if err != nil {
		return nil, errs.New(errs.KindDecoding, number, fmt.Errorf("rpcclient: decode block %d: %w", number, err))
	}
	return block, nil
}

func (c *Client) NonceAt(ctx context.Context, addr common.Address, blockNumber uint64) (uint64, error) {
	var raw string
	err := c.withRetry(ctx, "eth_getTransactionCount", func(ctx context.Context) error {
		return c.rpc.CallContext(ctx, &raw, "eth_getTransactionCount", addr.ToGeth(), hexUint(blockNumber))
	})
	if err != nil {
		return 0, wrapTransport(blockNumber, "eth_getTransactionCount", err)
	}
	n, err := parseHexUint(raw)
	if err != nil {
		return 0, errs.New(errs.KindDecoding, blockNumber, err).WithAddress(addr.Bytes())
	}
	return n, nil
}

func (c *Client) BalanceAt(ctx context.Context, addr common.Address, blockNumber uint64) (*gethcommon.Hash, error) {
	var raw string
	err := c.withRetry(ctx, "eth_getBalance", func(ctx context.Context) error {
		return c.rpc.CallContext(ctx, &raw, "eth_getBalance", addr.ToGeth(), hexUint(blockNumber))
	})
	if err != nil {
		return nil, wrapTransport(blockNumber, "eth_getBalance", err)
	}
	h, err := parseHexHash(raw)
	if err != nil {
		return nil, errs.New(errs.KindDecoding, blockNumber, err).WithAddress(addr.Bytes())
	}
	return &h, nil
}

func (c *Client) CodeAt(ctx context.Context, addr common.Address, blockNumber uint64) ([]byte, error) {
	var raw string
	err := c.withRetry(ctx, "eth_getCode", func(ctx context.Context) error {
		return c.rpc.CallContext(ctx, &raw, "eth_getCode", addr.ToGeth(), hexUint(blockNumber))
	})
	if err != nil {
		return nil, wrapTransport(blockNumber, "eth_getCode", err)
	}
	return parseHexBytes(raw)
}

func (c *Client) StorageAt(ctx context.Context, addr common.Address, slot common.SlotKey, blockNumber uint64) (common.Hash, error) {
	var raw string
	err := c.withRetry(ctx, "eth_getStorageAt", func(ctx context.Context) error {
		return c.rpc.CallContext(ctx, &raw, "eth_getStorageAt", addr.ToGeth(), slot.ToGeth(), hexUint(blockNumber))
	})
	if err != nil {
		return common.Hash{}, wrapTransport(blockNumber, "eth_getStorageAt", err)
	}
	h, err := parseHexHash(raw)
	if err != nil {
		return common.Hash{}, errs.New(errs.KindDecoding, blockNumber, err).WithAddress(addr.Bytes())
	}
	return common.HashFromGeth(h), nil
}

// wrapTransport reports a call that exhausted its retries (or failed
// fatally) as a transport error. The transient/fatal distinction only
// matters inside withRetry's own loop; by the time it surfaces here the
// retry budget is spent either way.
func wrapTransport(block uint64, method string, err error) error {
	return errs.New(errs.KindTransport, block, fmt.Errorf("rpcclient: %s: %w", method, err))
}

func hexUint(n uint64) string {
	return fmt.Sprintf("0x%x", n)
}
