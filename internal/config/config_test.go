package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveRequiresBlock(t *testing.T) {
	_, err := Resolve(Options{RPCURL: "http://x", DryRun: true})
	require.Error(t, err)
}

func TestResolveRequiresRPCURLUnlessDryRun(t *testing.T) {
	_, err := Resolve(Options{HasBlock: true, Block: 1})
	require.Error(t, err)
}

func TestResolveDryRunSkipsRPCURL(t *testing.T) {
	cfg, err := Resolve(Options{HasBlock: true, Block: 1, DryRun: true})
	require.NoError(t, err)
	require.Equal(t, uint64(1), cfg.Block)
	require.Equal(t, DefaultParallelism, cfg.Parallelism)
}

func TestResolveEnvFallback(t *testing.T) {
	cfg, err := Resolve(Options{HasBlock: true, Block: 5, RPCURLEnv: "http://from-env"})
	require.NoError(t, err)
	require.Equal(t, "http://from-env", cfg.RPCURL)
}

func TestResolveExplicitBeatsEnv(t *testing.T) {
	cfg, err := Resolve(Options{HasBlock: true, Block: 5, RPCURL: "http://flag", RPCURLEnv: "http://env"})
	require.NoError(t, err)
	require.Equal(t, "http://flag", cfg.RPCURL)
}

func TestResolveSinkVariants(t *testing.T) {
	cases := []struct {
		raw      string
		wantKind SinkKind
		wantPath string
	}{
		{"", SinkStdout, ""},
		{"stdout", SinkStdout, ""},
		{"ndjson:/tmp/out.ndjson", SinkNDJSON, "/tmp/out.ndjson"},
		{"starrocks:load01.example.internal/db/table", SinkStarRocks, "load01.example.internal/db/table"},
	}
	for _, c := range cases {
		cfg, err := Resolve(Options{HasBlock: true, Block: 1, DryRun: true, Sink: c.raw})
		require.NoError(t, err)
		require.Equal(t, c.wantKind, cfg.Sink)
		require.Equal(t, c.wantPath, cfg.SinkPath)
	}
}

func TestResolveRejectsBadSink(t *testing.T) {
	_, err := Resolve(Options{HasBlock: true, Block: 1, DryRun: true, Sink: "kafka:topic"})
	require.Error(t, err)
}

func TestResolveRejectsNegativeParallelism(t *testing.T) {
	_, err := Resolve(Options{HasBlock: true, Block: 1, DryRun: true, Parallelism: -1})
	require.Error(t, err)
}
