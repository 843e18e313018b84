// Package storagenode models the passive archive storage unit spec
// §4.10 describes: it holds a contiguous range of already-finalized
// blocks, decodes on query, and never originates a mutation. The real
// host would spin one of these up as its own canister/process per
// archive/controller.go's auto-scaling strategy; this package is the
// in-process stand-in used by tests and single-process embeddings.
package storagenode

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"dftledger/core"
)

// Node is one archive storage unit: a contiguous, immutable slice of
// encoded blocks starting at StartHeight, plus a bounded decode cache —
// archived blocks never change once written, so caching BlockByHeight's
// decoded result is always safe and saves re-decoding the same
// recently-queried heights, a concern the reference
// dft_tx_storage/src/storage.rs does not have (it keeps a stable_structures
// map instead of re-decoding a byte slice).
type Node struct {
	mu sync.RWMutex

	ID          string
	TokenID     core.Principal
	StartHeight uint64
	blocks      []core.EncodedBlock
	maxBytes    int64
	totalBytes  int64

	cache *lru.Cache[uint64, core.Block]
	log   *logrus.Entry
}

// New constructs an empty node ready to receive an Init call.
func New(id string, tokenID core.Principal, maxBytes int64, cacheCapacity int) (*Node, error) {
	cache, err := lru.New[uint64, core.Block](cacheCapacity)
	if err != nil {
		return nil, fmt.Errorf("build block cache: %w", err)
	}
	return &Node{
		ID:       id,
		TokenID:  tokenID,
		maxBytes: maxBytes,
		cache:    cache,
		log:      logrus.WithFields(logrus.Fields{"node": id}),
	}, nil
}

// Init seeds the node with its first batch of migrated blocks, the
// "install" half of archive/controller.go's CreateNode+InstallNode pair.
func (n *Node) Init(startHeight uint64, blocks []core.EncodedBlock) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.blocks) != 0 {
		return fmt.Errorf("node %s already initialized", n.ID)
	}
	n.StartHeight = startHeight
	return n.appendLocked(blocks)
}

// BatchAppend receives a further prefix of blocks migrated from the
// ledger once this node is already serving a range — a ledger may keep
// shipping older blocks to the same node across several auto-scaling
// cycles until MAX_NODE_BYTES is reached.
func (n *Node) BatchAppend(blocks []core.EncodedBlock) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.appendLocked(blocks)
}

func (n *Node) appendLocked(blocks []core.EncodedBlock) error {
	added := int64(0)
	for _, b := range blocks {
		added += int64(b.Size())
	}
	if n.maxBytes > 0 && n.totalBytes+added > n.maxBytes {
		return fmt.Errorf("batch of %d bytes exceeds node capacity (%d/%d used)", added, n.totalBytes, n.maxBytes)
	}
	n.blocks = append(n.blocks, blocks...)
	n.totalBytes += added
	n.log.WithFields(logrus.Fields{"added": len(blocks), "total_bytes": n.totalBytes}).Info("blocks appended")
	return nil
}

// EndHeight is the exclusive upper bound of the heights this node holds
// (StartHeight+len(blocks)); the last held height is EndHeight()-1.
func (n *Node) EndHeight() uint64 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.StartHeight + uint64(len(n.blocks))
}

// BlockByHeight decodes and returns the block at absolute height h,
// ok=false if h falls outside this node's range.
func (n *Node) BlockByHeight(h uint64) (core.Block, bool, error) {
	if blk, ok := n.cache.Get(h); ok {
		return blk, true, nil
	}

	n.mu.RLock()
	if h < n.StartHeight || h >= n.StartHeight+uint64(len(n.blocks)) {
		n.mu.RUnlock()
		return core.Block{}, false, nil
	}
	enc := n.blocks[h-n.StartHeight]
	n.mu.RUnlock()

	blk, err := core.DecodeBlock(enc)
	if err != nil {
		return core.Block{}, true, fmt.Errorf("decode block at height %d: %w", h, err)
	}
	n.cache.Add(h, blk)
	return blk, true, nil
}

// BlocksByQuery returns up to maxBlocks decoded blocks starting at
// start, truncated to whatever range this node actually holds.
func (n *Node) BlocksByQuery(start uint64, count, maxBlocks int) ([]core.Block, error) {
	if count > maxBlocks {
		count = maxBlocks
	}
	if count <= 0 {
		return nil, nil
	}
	out := make([]core.Block, 0, count)
	for h := start; h < start+uint64(count); h++ {
		blk, ok, err := n.BlockByHeight(h)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		out = append(out, blk)
	}
	return out, nil
}

// Info is the storage_info() query result spec §4.10 describes.
type Info struct {
	StartHeight uint64
	EndHeight   uint64
	NumBlocks   int
	TotalBytes  int64
	MaxBytes    int64
}

func (n *Node) StorageInfo() Info {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return Info{
		StartHeight: n.StartHeight,
		EndHeight:   n.StartHeight + uint64(len(n.blocks)),
		NumBlocks:   len(n.blocks),
		TotalBytes:  n.totalBytes,
		MaxBytes:    n.maxBytes,
	}
}
