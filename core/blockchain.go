package core

import (
	"sort"
	"sync"
)

// ArchiveRange records that local block heights [From, To] were migrated
// to NodeID. Ranges must form a contiguous, gap-free, overlap-free cover
// of [0, num_archived_blocks) per spec §3 invariant 6.
type ArchiveRange struct {
	From, To uint64
	NodeID   string
}

// Blockchain is the append-only list of encoded blocks spec §3/§4.6-§4.7
// describes: parent-hash linkage, monotonic timestamps, a replay window,
// and the archive range index used to forward queries for heights that
// have already migrated off this instance.
type Blockchain struct {
	tokenID Principal

	mu            sync.RWMutex
	blocks        []EncodedBlock // locally resident, starting at height numArchived
	numArchived   uint64
	lastHash      Hash
	hasLastHash   bool
	lastTimestamp uint64

	window *TransactionWindow

	ranges              []ArchiveRange
	archivingInProgress bool
}

// NewBlockchain constructs an empty chain for tokenID, backed by window
// for replay prevention.
func NewBlockchain(tokenID Principal, window *TransactionWindow) *Blockchain {
	return &Blockchain{tokenID: tokenID, window: window}
}

// TokenID returns the token identity this chain was constructed for.
func (bc *Blockchain) TokenID() Principal { return bc.tokenID }

// ChainLength is num_archived_blocks + len(blocks), invariant 1.
func (bc *Blockchain) ChainLength() uint64 {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.numArchived + uint64(len(bc.blocks))
}

// NumArchived returns the count of blocks already offloaded.
func (bc *Blockchain) NumArchived() uint64 {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.numArchived
}

// UnarchivedLen returns the number of blocks still resident locally.
func (bc *Blockchain) UnarchivedLen() int {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return len(bc.blocks)
}

// AddTxToBlock implements spec §4.6's add_tx_to_block: duplicate check,
// parent-hash/timestamp linkage, append, and replay-window bookkeeping.
func (bc *Blockchain) AddTxToBlock(tx Transaction, now uint64) (height uint64, blockHash Hash, txHash Hash, err error) {
	txHash, err = TransactionHash(bc.tokenID, tx)
	if err != nil {
		return 0, Hash{}, Hash{}, WrapError(CodeUnknown, err)
	}

	bc.mu.Lock()
	defer bc.mu.Unlock()

	if bc.window.Contains(txHash) {
		return 0, Hash{}, Hash{}, NewError(CodeTxDuplicate, "transaction already recorded")
	}

	parent := bc.genesisOrLastHashLocked()
	if now < bc.lastTimestamp {
		return 0, Hash{}, Hash{}, NewError(CodeInvalidTimestamp, "block timestamp %d precedes previous block timestamp %d", now, bc.lastTimestamp)
	}

	blk := Block{ParentHash: parent, Transaction: tx, Timestamp: now}
	enc, err := EncodeBlock(blk)
	if err != nil {
		return 0, Hash{}, Hash{}, WrapError(CodeUnknown, err)
	}
	if bc.hasLastHash && blk.ParentHash != bc.lastHash {
		return 0, Hash{}, Hash{}, NewError(CodeParentHashMismatch, "parent hash does not match chain tip")
	}

	height = bc.numArchived + uint64(len(bc.blocks))
	bc.blocks = append(bc.blocks, enc)
	blockHash = BlockHash(bc.tokenID, enc)
	bc.lastHash = blockHash
	bc.hasLastHash = true
	bc.lastTimestamp = now

	bc.window.Push(height, TransactionInfo{BlockTimestamp: now, TxHash: txHash})

	return height, blockHash, txHash, nil
}

func (bc *Blockchain) genesisOrLastHashLocked() Hash {
	if bc.hasLastHash {
		return bc.lastHash
	}
	return GenesisParentHash(bc.tokenID)
}

// PurgeOldTransactions and ThrottleCheck delegate to the embedded replay
// window; the state machine calls these before AddTxToBlock per spec
// §4.7's purge-then-throttle sequence.
func (bc *Blockchain) PurgeOldTransactions(now uint64) int {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return bc.window.PurgeOldTransactions(now)
}

func (bc *Blockchain) ThrottleCheck(now uint64) error {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.window.ThrottleCheck(now)
}

// LocalBlockAt decodes the block resident at absolute height h, ok=false
// if h is out of the locally-resident range.
func (bc *Blockchain) LocalBlockAt(h uint64) (Block, bool, error) {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	if h < bc.numArchived || h >= bc.numArchived+uint64(len(bc.blocks)) {
		return Block{}, false, nil
	}
	enc := bc.blocks[h-bc.numArchived]
	blk, err := DecodeBlock(enc)
	if err != nil {
		return Block{}, true, err
	}
	return blk, true, nil
}

// TryAcquireArchiveLock implements the single-flight lock spec §4.9/§5
// require: a concurrent attempt is a no-op success, never a blocking wait.
func (bc *Blockchain) TryAcquireArchiveLock() bool {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	if bc.archivingInProgress {
		return false
	}
	bc.archivingInProgress = true
	return true
}

// ReleaseArchiveLock must be called on every exit path from an archive
// attempt, including errors.
func (bc *Blockchain) ReleaseArchiveLock() {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	bc.archivingInProgress = false
}

// PrefixForArchive returns up to n encoded blocks starting at the local
// prefix, along with the absolute starting height, for the archive
// controller to ship off. It does not mutate local state.
func (bc *Blockchain) PrefixForArchive(n int) (startHeight uint64, blocks []EncodedBlock) {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	if n > len(bc.blocks) {
		n = len(bc.blocks)
	}
	out := make([]EncodedBlock, n)
	copy(out, bc.blocks[:n])
	return bc.numArchived, out
}

// CommitArchive drops the leading count blocks from local storage,
// advances num_archived_blocks, and records the migrated range against
// nodeID. It is the caller's responsibility to have actually shipped
// those blocks to nodeID first.
func (bc *Blockchain) CommitArchive(nodeID string, count int) {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	if count <= 0 || count > len(bc.blocks) {
		return
	}
	from := bc.numArchived
	to := bc.numArchived + uint64(count) - 1
	bc.ranges = append(bc.ranges, ArchiveRange{From: from, To: to, NodeID: nodeID})
	bc.blocks = bc.blocks[count:]
	bc.numArchived += uint64(count)
}

// RangeForHeight binary-searches the archive index for the node holding
// height h, per spec §4.11.
func (bc *Blockchain) RangeForHeight(h uint64) (nodeID string, ok bool) {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	i := sort.Search(len(bc.ranges), func(i int) bool { return bc.ranges[i].To >= h })
	if i < len(bc.ranges) && bc.ranges[i].From <= h && h <= bc.ranges[i].To {
		return bc.ranges[i].NodeID, true
	}
	return "", false
}

// RangesSnapshot returns a copy of the archive index, for persistence
// and tests.
func (bc *Blockchain) RangesSnapshot() []ArchiveRange {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	out := make([]ArchiveRange, len(bc.ranges))
	copy(out, bc.ranges)
	return out
}

// LastTimestamp returns the timestamp of the most recently appended
// block, or zero if the chain is empty.
func (bc *Blockchain) LastTimestamp() uint64 {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.lastTimestamp
}

// LastHash returns the chain tip's block hash, ok=false for an empty
// chain.
func (bc *Blockchain) LastHash() (Hash, bool) {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.lastHash, bc.hasLastHash
}

// BlocksSnapshot returns a copy of the locally-resident encoded blocks,
// for persistence.
func (bc *Blockchain) BlocksSnapshot() []EncodedBlock {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	out := make([]EncodedBlock, len(bc.blocks))
	copy(out, bc.blocks)
	return out
}

// RebuildWindow replays every locally-resident block into the replay
// window, used after restoreState since the window itself is not part
// of the persisted blob (spec §6.6's "single stable blob" covers chain
// state; window entries that should have aged out are cleaned up by the
// first PurgeOldTransactions call a caller makes against the real clock).
func (bc *Blockchain) RebuildWindow() error {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	for i, enc := range bc.blocks {
		blk, err := DecodeBlock(enc)
		if err != nil {
			return err
		}
		txHash, err := TransactionHash(bc.tokenID, blk.Transaction)
		if err != nil {
			return err
		}
		height := bc.numArchived + uint64(i)
		bc.window.Push(height, TransactionInfo{BlockTimestamp: blk.Timestamp, TxHash: txHash})
	}
	return nil
}

// restoreState replaces the chain's contents wholesale, used when
// loading a persisted blob. It does not touch the replay window, which
// is rebuilt separately from the restored blocks by the caller.
func (bc *Blockchain) restoreState(blocks []EncodedBlock, numArchived uint64, lastHash Hash, hasLastHash bool, lastTimestamp uint64, ranges []ArchiveRange) {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	bc.blocks = blocks
	bc.numArchived = numArchived
	bc.lastHash = lastHash
	bc.hasLastHash = hasLastHash
	bc.lastTimestamp = lastTimestamp
	bc.ranges = ranges
}
