package core

import "container/list"

const nanosPerSecond = 1_000_000_000

// TransactionInfo is one replay-window entry: the hash that identifies
// the transaction and the timestamp of the block it landed in.
type TransactionInfo struct {
	BlockTimestamp uint64
	TxHash         Hash
}

// TransactionWindow is the replay-prevention structure spec §4.7
// describes: a map keyed by tx-hash for O(1) duplicate lookup and a
// parallel deque ordered by append height/timestamp for bounded purge,
// restoring original_source/src/dft_types/src/
// token_transaction_window.rs's purge/throttle split exactly — purge
// runs first, throttle is only consulted when nothing was purged.
type TransactionWindow struct {
	maxInWindow     int
	windowNanos     uint64
	driftNanos      uint64
	maxPurgePerCall int

	byHash  map[Hash]uint64 // tx_hash -> block height
	byOrder *list.List      // of TransactionInfo, oldest first
}

// NewTransactionWindow constructs a window with the given tunables.
func NewTransactionWindow(maxInWindow int, windowNanos, driftNanos uint64, maxPurgePerCall int) *TransactionWindow {
	return &TransactionWindow{
		maxInWindow:     maxInWindow,
		windowNanos:     windowNanos,
		driftNanos:      driftNanos,
		maxPurgePerCall: maxPurgePerCall,
		byHash:          make(map[Hash]uint64),
		byOrder:         list.New(),
	}
}

// Contains reports whether txHash was already seen within the window —
// the independent-of-created_at duplicate check spec §4.7 requires.
func (w *TransactionWindow) Contains(txHash Hash) bool {
	_, ok := w.byHash[txHash]
	return ok
}

// Len returns the number of entries currently held.
func (w *TransactionWindow) Len() int { return w.byOrder.Len() }

// Push records a newly appended transaction at height.
func (w *TransactionWindow) Push(height uint64, info TransactionInfo) {
	w.byHash[info.TxHash] = height
	w.byOrder.PushBack(info)
}

// PurgeOldTransactions drops up to maxPurgePerCall entries whose
// block_timestamp + window + drift < now, returning the count removed.
func (w *TransactionWindow) PurgeOldTransactions(now uint64) int {
	purged := 0
	for purged < w.maxPurgePerCall {
		front := w.byOrder.Front()
		if front == nil {
			break
		}
		info := front.Value.(TransactionInfo)
		if info.BlockTimestamp+w.windowNanos+w.driftNanos >= now {
			break
		}
		delete(w.byHash, info.TxHash)
		w.byOrder.Remove(front)
		purged++
	}
	return purged
}

// ThrottleCheck enforces the burst limit once the window holds at
// least half its capacity: a per-second rate of
// ceil(0.5 * maxInWindow / windowSeconds).
func (w *TransactionWindow) ThrottleCheck(now uint64) error {
	numInWindow := w.byOrder.Len()
	if numInWindow < w.maxInWindow/2 {
		return nil
	}
	windowSeconds := float64(w.windowNanos) / nanosPerSecond
	if windowSeconds <= 0 {
		windowSeconds = 1
	}
	maxRate := int(ceilDiv(0.5*float64(w.maxInWindow), windowSeconds))
	if maxRate < 1 {
		maxRate = 1
	}

	idx := numInWindow - maxRate
	if idx < 0 {
		idx = 0
	}
	elem := nthElement(w.byOrder, idx)
	var ts uint64
	if elem != nil {
		ts = elem.Value.(TransactionInfo).BlockTimestamp
	}
	if ts+nanosPerSecond > now {
		return NewError(CodeTooManyInWindow, "too many transactions in replay prevention window")
	}
	return nil
}

func ceilDiv(num, den float64) float64 {
	q := num / den
	if q == float64(int64(q)) {
		return q
	}
	if q < 0 {
		return float64(int64(q))
	}
	return float64(int64(q) + 1)
}

func nthElement(l *list.List, n int) *list.Element {
	e := l.Front()
	for i := 0; i < n && e != nil; i++ {
		e = e.Next()
	}
	return e
}
