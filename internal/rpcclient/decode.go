package rpcclient

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	gethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

func parseHexUint(s string) (uint64, error) {
	s = strings.TrimPrefix(s, "0x")
	if s == "" {
		return 0, nil
	}
	return strconv.ParseUint(s, 16, 64)
}

func parseHexHash(s string) (gethcommon.Hash, error) {
	s = strings.TrimPrefix(s, "0x")
	b, err := parseHexBytesRaw(s)
	if err != nil {
		return gethcommon.Hash{}, err
	}
	return gethcommon.BytesToHash(b), nil
}

func parseHexBytes(s string) ([]byte, error) {
	s = strings.TrimPrefix(s, "0x")
	return parseHexBytesRaw(s)
}

func parseHexBytesRaw(s string) ([]byte, error) {
	if len(s)%2 != 0 {
		s = "0" + s
	}
	out := make([]byte, len(s)/2)
	for i := range out {
		b, err := strconv.ParseUint(s[i*2:i*2+2], 16, 8)
		if err != nil {
			return nil, fmt.Errorf("rpcclient: malformed hex %q: %w", s, err)
		}
		out[i] = byte(b)
	}
	return out, nil
}

// decodeBlock re-marshals the raw eth_getBlockByNumber response through
// go-ethereum's own types.Header/types.Transactions JSON tags, rather
// than hand-rolling a parallel struct: the wire format is exactly the
// one go-ethereum's RPC server itself produces.
func decodeBlock(raw map[string]any) (*types.Block, error) {
	buf, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}

	var header types.Header
	if err := json.Unmarshal(buf, &header); err != nil {
		return nil, fmt.Errorf("header: %w", err)
	}

	var body struct {
		Transactions []*types.Transaction `json:"transactions"`
	}
	if err := json.Unmarshal(buf, &body); err != nil {
		return nil, fmt.Errorf("transactions: %w", err)
	}

	return types.NewBlockWithHeader(&header).WithBody(types.Body{Transactions: body.Transactions}), nil
}
