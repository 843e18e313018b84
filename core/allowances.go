package core

import "sync"

// AllowanceLedger is a two-level mapping owner -> spender -> amount,
// generalizing BalanceLedger one level deeper. It restores the
// allowances_of enumeration original_source/src/dft_types/src/
// token_allowances.rs exposes but spec.md's data model only implies.
type AllowanceLedger struct {
	mu         sync.RWMutex
	allowances map[TokenHolder]map[TokenHolder]TokenAmount
}

// NewAllowanceLedger returns an empty allowance ledger.
func NewAllowanceLedger() *AllowanceLedger {
	return &AllowanceLedger{allowances: make(map[TokenHolder]map[TokenHolder]TokenAmount)}
}

// Allowance returns the amount spender may draw from owner, defaulting
// to zero.
func (a *AllowanceLedger) Allowance(owner, spender TokenHolder) TokenAmount {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if inner, ok := a.allowances[owner]; ok {
		if v, ok := inner[spender]; ok {
			return v
		}
	}
	return ZeroAmount()
}

// AllowancesOf returns every (spender, amount) pair owner has granted.
func (a *AllowanceLedger) AllowancesOf(owner TokenHolder) []SpenderAllowance {
	a.mu.RLock()
	defer a.mu.RUnlock()
	inner, ok := a.allowances[owner]
	if !ok {
		return nil
	}
	out := make([]SpenderAllowance, 0, len(inner))
	for spender, v := range inner {
		out = append(out, SpenderAllowance{Spender: spender, Amount: v})
	}
	return out
}

// SpenderAllowance is one entry of AllowancesOf's result.
type SpenderAllowance struct {
	Spender TokenHolder
	Amount  TokenAmount
}

// Credit sets the allowance to the absolute value v (approve is not
// additive — spec §4.3/§4.8). v=0 removes the (owner,spender) entry;
// if it was the last entry for owner, the outer entry disappears too.
func (a *AllowanceLedger) Credit(owner, spender TokenHolder, v TokenAmount) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if v.IsZero() {
		a.removeLocked(owner, spender)
		return
	}
	inner, ok := a.allowances[owner]
	if !ok {
		inner = make(map[TokenHolder]TokenAmount)
		a.allowances[owner] = inner
	}
	inner[spender] = v
}

// Debit subtracts v from the (owner,spender) allowance, failing
// InsufficientAllowance if current < v, then applies the same
// empty-cleanup rule as Credit.
func (a *AllowanceLedger) Debit(owner, spender TokenHolder, v TokenAmount) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	inner := a.allowances[owner]
	cur := ZeroAmount()
	if inner != nil {
		cur = inner[spender]
	}
	next, ok := cur.Sub(v)
	if !ok {
		return NewError(CodeInsufficientAllowance, "allowance %s is less than %s", cur, v)
	}
	if next.IsZero() {
		a.removeLocked(owner, spender)
		return nil
	}
	if inner == nil {
		inner = make(map[TokenHolder]TokenAmount)
		a.allowances[owner] = inner
	}
	inner[spender] = next
	return nil
}

func (a *AllowanceLedger) removeLocked(owner, spender TokenHolder) {
	inner, ok := a.allowances[owner]
	if !ok {
		return
	}
	delete(inner, spender)
	if len(inner) == 0 {
		delete(a.allowances, owner)
	}
}

func (a *AllowanceLedger) snapshot() map[TokenHolder]map[TokenHolder]TokenAmount {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[TokenHolder]map[TokenHolder]TokenAmount, len(a.allowances))
	for owner, inner := range a.allowances {
		innerCopy := make(map[TokenHolder]TokenAmount, len(inner))
		for spender, v := range inner {
			innerCopy[spender] = v
		}
		out[owner] = innerCopy
	}
	return out
}

func (a *AllowanceLedger) restore(data map[TokenHolder]map[TokenHolder]TokenAmount) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.allowances = data
}
