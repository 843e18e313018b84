package core

// ArchivedRange is the result shape for a height range that has already
// migrated off this ledger instance — the caller forwards to NodeID.
type ArchivedRange struct {
	From, To uint64
	NodeID   string
}

// BlockByHeight implements spec §4.11's block_by_height: a block still
// resident locally is returned directly; a block that has migrated to
// archive storage is reported as a forward (forwardTo non-empty) rather
// than fetched here — the Ledger has no transport to reach a storage
// node, only the index recording which one holds it.
func (l *Ledger) BlockByHeight(h uint64) (blk Block, forwardTo string, err error) {
	blk, ok, err := l.chain.LocalBlockAt(h)
	if err != nil {
		return Block{}, "", WrapError(CodeUnknown, err)
	}
	if ok {
		return blk, "", nil
	}
	nodeID, found := l.chain.RangeForHeight(h)
	if !found {
		return Block{}, "", NewError(CodeNonExistentBlockHeight, "no block at height %d", h)
	}
	return Block{}, nodeID, nil
}

// BlocksByQueryResult partitions a [start, start+count) height range
// into the blocks this instance can answer locally and the archived
// sub-ranges a caller must forward elsewhere.
type BlocksByQueryResult struct {
	Local    []Block
	Archived []ArchivedRange
}

// BlocksByQuery implements spec §4.11's blocks_by_query, capping the
// response to maxBlocks per call (the MAX_BLOCKS_PER_REQUEST the
// original enforces to bound message size).
func (l *Ledger) BlocksByQuery(start uint64, count int, maxBlocks int) (BlocksByQueryResult, error) {
	if count > maxBlocks {
		count = maxBlocks
	}
	if count <= 0 {
		return BlocksByQueryResult{}, nil
	}
	end := start + uint64(count) // exclusive

	var result BlocksByQueryResult
	for h := start; h < end; h++ {
		blk, ok, err := l.chain.LocalBlockAt(h)
		if err != nil {
			return BlocksByQueryResult{}, WrapError(CodeUnknown, err)
		}
		if ok {
			result.Local = append(result.Local, blk)
			continue
		}
		nodeID, found := l.chain.RangeForHeight(h)
		if !found {
			break // past the chain tip
		}
		if n := len(result.Archived); n > 0 && result.Archived[n-1].NodeID == nodeID && result.Archived[n-1].To == h-1 {
			result.Archived[n-1].To = h
			continue
		}
		result.Archived = append(result.Archived, ArchivedRange{From: h, To: h, NodeID: nodeID})
	}
	return result, nil
}

// TransactionByHeight decodes the txID's embedded height and returns the
// containing block — TransactionId is a derived pointer into the block
// list, never an independent store (Open Question #2).
func (l *Ledger) TransactionByHeight(txID string) (Block, string, error) {
	_, height, err := DecodeTxID(txID)
	if err != nil {
		return Block{}, "", err
	}
	return l.BlockByHeight(height)
}

// LastTransactions returns up to n of the most recently appended local
// blocks, newest first — the flat convenience view some source versions
// expose, computed on demand rather than tracked separately.
func (l *Ledger) LastTransactions(n int) []Block {
	length := l.chain.ChainLength()
	archived := l.chain.NumArchived()
	if length <= archived {
		return nil
	}
	out := make([]Block, 0, n)
	for h := length; h > archived && len(out) < n; h-- {
		blk, ok, err := l.chain.LocalBlockAt(h - 1)
		if err != nil || !ok {
			break
		}
		out = append(out, blk)
	}
	return out
}
