// Package config resolves the CLI surface into a validated Config,
// applying the environment-variable fallback for --rpc-url and the
// defaults for parallelism, backoff and timeouts. A plain struct
// populated once at startup and passed down, rather than a global flag
// registry consulted throughout the call stack.
package config

import (
	"fmt"
	"strings"

	"github.com/argus-xyz/argus/internal/errs"
)

const rpcURLEnvVar = "ARGUS_RPC_URL"

// SinkKind discriminates the --sink flag.
type SinkKind int

const (
	SinkStdout SinkKind = iota
	SinkNDJSON
	SinkStarRocks
)

// Defaults for the prefetch pass: fan-out width kept small to respect
// rate-limited public RPC endpoints, with retry/timeout knobs that suit
// them.
const (
	DefaultParallelism          = 8
	DefaultBackoffBase          = 200 // milliseconds
	DefaultMaxRetries           = 5
	DefaultRequestTimeoutMillis = 10_000
)

// Config is the fully resolved, validated configuration for one `analyze`
// invocation.
type Config struct {
	RPCURL      string
	Block       uint64
	Sink        SinkKind
	SinkPath    string // ndjson:<path> payload, or starrocks:<config> payload
	JSON        bool
	DryRun      bool
	Parallelism int
}

// Options are the raw, unvalidated inputs straight from CLI flags/env,
// passed through as-is so the CLI layer (cmd/argus) doesn't need to know
// anything about validation rules.
type Options struct {
	RPCURL      string
	RPCURLEnv   string // value of ARGUS_RPC_URL, supplied by the caller for testability
	Block       uint64
	HasBlock    bool
	Sink        string
	JSON        bool
	DryRun      bool
	Parallelism int
}

// Resolve validates Options into a Config, or returns a *errs.Error with
// Kind == KindConfiguration describing the first problem found.
func Resolve(o Options) (Config, error) {
	cfg := Config{
		JSON:        o.JSON,
		DryRun:      o.DryRun,
		Parallelism: DefaultParallelism,
	}

	if !o.HasBlock {
		return Config{}, configErr("missing required --block")
	}
	cfg.Block = o.Block

	rpcURL := o.RPCURL
	if rpcURL == "" {
		rpcURL = o.RPCURLEnv
	}
	if rpcURL == "" && !o.DryRun {
		return Config{}, configErr("--rpc-url is required unless --dry-run is set (or set %s)", rpcURLEnvVar)
	}
	cfg.RPCURL = rpcURL

	switch {
	case o.Parallelism > 0:
		cfg.Parallelism = o.Parallelism
	case o.Parallelism < 0:
		return Config{}, configErr("--parallelism must be >= 1, got %d", o.Parallelism)
	}

	sink, path, err := parseSink(o.Sink)
	if err != nil {
		return Config{}, err
	}
	cfg.Sink = sink
	cfg.SinkPath = path

	return cfg, nil
}

func parseSink(raw string) (SinkKind, string, error) {
	if raw == "" || raw == "stdout" {
		return SinkStdout, "", nil
	}
	if path, ok := strings.CutPrefix(raw, "ndjson:"); ok {
		if path == "" {
			return 0, "", configErr("ndjson sink requires a path: --sink ndjson:<path>")
		}
		return SinkNDJSON, path, nil
	}
	if path, ok := strings.CutPrefix(raw, "starrocks:"); ok {
		if path == "" {
			return 0, "", configErr("starrocks sink requires a config: --sink starrocks:<config>")
		}
		return SinkStarRocks, path, nil
	}
	return 0, "", configErr("unrecognized --sink %q: want stdout, ndjson:<path>, or starrocks:<config>", raw)
}

func configErr(format string, args ...any) error {
	return errs.New(errs.KindConfiguration, 0, fmt.Errorf(format, args...))
}

// RPCURLEnvVar is exported for cmd/argus to read the actual process
// environment without this package importing "os" directly; keeps
// Resolve pure and unit-testable.
func RPCURLEnvVar() string { return rpcURLEnvVar }
