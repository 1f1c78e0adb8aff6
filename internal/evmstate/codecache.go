package evmstate

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/argus-xyz/argus/common"
)

// CodeCache is a small bounded LRU over code-hash -> bytecode. Contract
// bytecode rarely changes within the blocks a single run touches, so the
// cache spares repeated blocks from re-fetching the same hot contracts'
// code over RPC.
type CodeCache struct {
	lru *lru.Cache[common.Hash, []byte]
}

// NewCodeCache builds a cache holding up to size distinct code hashes.
func NewCodeCache(size int) (*CodeCache, error) {
	c, err := lru.New[common.Hash, []byte](size)
	if err != nil {
		return nil, err
	}
	return &CodeCache{lru: c}, nil
}

func (c *CodeCache) Get(hash common.Hash) ([]byte, bool) {
	return c.lru.Get(hash)
}

func (c *CodeCache) Add(hash common.Hash, code []byte) {
	c.lru.Add(hash, code)
}

// Len reports the number of distinct code hashes currently cached.
func (c *CodeCache) Len() int { return c.lru.Len() }
