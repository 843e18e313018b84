package core

import "sync"

// BalanceLedger maps holder to balance with a running total-supply
// counter, generalizing a single-currency map[Address]uint64 balance
// table to arbitrary-precision amounts and the holder sum type.
type BalanceLedger struct {
	mu          sync.RWMutex
	balances    map[TokenHolder]TokenAmount
	totalSupply TokenAmount
}

// NewBalanceLedger returns an empty balance ledger.
func NewBalanceLedger() *BalanceLedger {
	return &BalanceLedger{
		balances:    make(map[TokenHolder]TokenAmount),
		totalSupply: ZeroAmount(),
	}
}

// BalanceOf returns the holder's balance, defaulting to zero.
func (b *BalanceLedger) BalanceOf(h TokenHolder) TokenAmount {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if v, ok := b.balances[h]; ok {
		return v
	}
	return ZeroAmount()
}

// TotalSupply returns the running total-supply counter.
func (b *BalanceLedger) TotalSupply() TokenAmount {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.totalSupply
}

// Credit adds v to h's balance and to total supply.
func (b *BalanceLedger) Credit(h TokenHolder, v TokenAmount) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balances[h] = b.balances[h].Add(v)
	b.totalSupply = b.totalSupply.Add(v)
}

// Debit subtracts v from h's balance and total supply. It fails if the
// balance is insufficient; on success a zero resulting balance removes
// the map entry, per spec §4.2's "iteration yields non-zero entries only".
func (b *BalanceLedger) Debit(h TokenHolder, v TokenAmount) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	cur := b.balances[h]
	next, ok := cur.Sub(v)
	if !ok {
		return NewError(CodeInsufficientBalance, "balance %s is less than %s", cur, v)
	}
	if next.IsZero() {
		delete(b.balances, h)
	} else {
		b.balances[h] = next
	}
	b.totalSupply, _ = b.totalSupply.Sub(v)
	return nil
}

// Holders returns every holder with a non-zero balance. Order is
// undefined; callers that need determinism (snapshots, queries) sort
// the result themselves.
func (b *BalanceLedger) Holders() []TokenHolder {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]TokenHolder, 0, len(b.balances))
	for h := range b.balances {
		out = append(out, h)
	}
	return out
}

// snapshot returns a copy of the balance map and total supply for
// persistence (core/persistence.go).
func (b *BalanceLedger) snapshot() (map[TokenHolder]TokenAmount, TokenAmount) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[TokenHolder]TokenAmount, len(b.balances))
	for k, v := range b.balances {
		out[k] = v
	}
	return out, b.totalSupply
}

// restore replaces the ledger's contents wholesale, used when loading a
// persisted blob.
func (b *BalanceLedger) restore(balances map[TokenHolder]TokenAmount, total TokenAmount) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balances = balances
	b.totalSupply = total
}
