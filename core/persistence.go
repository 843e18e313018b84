package core

import (
	"encoding/json"
	"fmt"

	"dftledger/host"
)

// persistedState is the single stable blob spec §6.6 describes: enough
// to reconstruct a Ledger exactly, JSON-encoded rather than an
// append-only WAL, since there is no notion of replaying a log of
// blocks here — blocks are already durable in Blockchain.blocks/archive
// nodes, so a whole-blob snapshot is the closer match to "single stable
// blob".
type persistedState struct {
	TokenID []byte `json:"token_id"`

	Name        string        `json:"name"`
	Symbol      string        `json:"symbol"`
	Decimals    uint8         `json:"decimals"`
	Owner       rlpHolder     `json:"owner"`
	Minters     []rlpHolder   `json:"minters"`
	Fee         rlpFee        `json:"fee"`
	FeeTo       rlpHolder     `json:"fee_to"`
	Description string        `json:"description"`
	Logo        []byte        `json:"logo,omitempty"`

	Balances   []persistedBalance   `json:"balances"`
	Allowances []persistedAllowance `json:"allowances"`

	Blocks        [][]byte           `json:"blocks"`
	NumArchived   uint64             `json:"num_archived"`
	LastHash      []byte             `json:"last_hash,omitempty"`
	HasLastHash   bool               `json:"has_last_hash"`
	LastTimestamp uint64             `json:"last_timestamp"`
	Ranges        []persistedRange   `json:"ranges"`
}

type persistedBalance struct {
	Holder rlpHolder `json:"holder"`
	Amount []byte    `json:"amount"`
}

type persistedAllowance struct {
	Owner   rlpHolder `json:"owner"`
	Spender rlpHolder `json:"spender"`
	Amount  []byte    `json:"amount"`
}

type persistedRange struct {
	From   uint64 `json:"from"`
	To     uint64 `json:"to"`
	NodeID string `json:"node_id"`
}

// Snapshot serializes the ledger's entire state to a single JSON blob.
func (l *Ledger) Snapshot() ([]byte, error) {
	l.mu.RLock()
	settings := *l.settings
	l.mu.RUnlock()

	minters := settings.MinterList()
	minterWire := make([]rlpHolder, 0, len(minters))
	for _, m := range minters {
		minterWire = append(minterWire, toRLPHolder(m))
	}

	balanceMap, _ := l.balances.snapshot()
	balances := make([]persistedBalance, 0, len(balanceMap))
	for h, amt := range balanceMap {
		balances = append(balances, persistedBalance{Holder: toRLPHolder(h), Amount: amt.Bytes()})
	}

	allowanceMap := l.allowances.snapshot()
	var allowances []persistedAllowance
	for owner, inner := range allowanceMap {
		for spender, amt := range inner {
			allowances = append(allowances, persistedAllowance{
				Owner: toRLPHolder(owner), Spender: toRLPHolder(spender), Amount: amt.Bytes(),
			})
		}
	}

	blocks := l.chain.BlocksSnapshot()
	blocksOut := make([][]byte, len(blocks))
	for i, b := range blocks {
		blocksOut[i] = b
	}
	lastHash, hasLastHash := l.chain.LastHash()

	state := persistedState{
		TokenID:       append([]byte{}, l.tokenID...),
		Name:          settings.Name,
		Symbol:        settings.Symbol,
		Decimals:      settings.Decimals,
		Owner:         toRLPHolder(settings.Owner),
		Minters:       minterWire,
		Fee:           toRLPFee(settings.Fee),
		FeeTo:         toRLPHolder(settings.FeeTo),
		Description:   settings.Description,
		Logo:          settings.Logo,
		Balances:      balances,
		Allowances:    allowances,
		Blocks:        blocksOut,
		NumArchived:   l.chain.NumArchived(),
		LastHash:      lastHash.Bytes(),
		HasLastHash:   hasLastHash,
		LastTimestamp: l.chain.LastTimestamp(),
		Ranges:        toPersistedRanges(l.chain.RangesSnapshot()),
	}

	return json.Marshal(state)
}

// Restore reconstructs a Ledger from a blob produced by Snapshot.
func Restore(data []byte, cfg LedgerConfig, clock host.Clock, notify host.Notifier) (*Ledger, error) {
	var state persistedState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("unmarshal persisted state: %w", err)
	}

	owner, err := fromRLPHolder(state.Owner)
	if err != nil {
		return nil, fmt.Errorf("decode owner: %w", err)
	}
	feeTo, err := fromRLPHolder(state.FeeTo)
	if err != nil {
		return nil, fmt.Errorf("decode fee_to: %w", err)
	}

	settings := &Settings{
		Name:        state.Name,
		Symbol:      state.Symbol,
		Decimals:    state.Decimals,
		Owner:       owner,
		Minters:     make(map[string]TokenHolder, len(state.Minters)),
		Fee:         fromRLPFee(state.Fee),
		FeeTo:       feeTo,
		Description: state.Description,
		Logo:        append([]byte{}, state.Logo...),
	}
	for _, w := range state.Minters {
		h, err := fromRLPHolder(w)
		if err != nil {
			return nil, fmt.Errorf("decode minter: %w", err)
		}
		settings.Minters[h.String()] = h
	}

	balances := NewBalanceLedger()
	balanceMap := make(map[TokenHolder]TokenAmount, len(state.Balances))
	total := ZeroAmount()
	for _, pb := range state.Balances {
		h, err := fromRLPHolder(pb.Holder)
		if err != nil {
			return nil, fmt.Errorf("decode balance holder: %w", err)
		}
		amt := AmountFromBytes(pb.Amount)
		balanceMap[h] = amt
		total = total.Add(amt)
	}
	balances.restore(balanceMap, total)

	allowances := NewAllowanceLedger()
	allowanceMap := make(map[TokenHolder]map[TokenHolder]TokenAmount)
	for _, pa := range state.Allowances {
		owner, err := fromRLPHolder(pa.Owner)
		if err != nil {
			return nil, fmt.Errorf("decode allowance owner: %w", err)
		}
		spender, err := fromRLPHolder(pa.Spender)
		if err != nil {
			return nil, fmt.Errorf("decode allowance spender: %w", err)
		}
		inner, ok := allowanceMap[owner]
		if !ok {
			inner = make(map[TokenHolder]TokenAmount)
			allowanceMap[owner] = inner
		}
		inner[spender] = AmountFromBytes(pa.Amount)
	}
	allowances.restore(allowanceMap)

	tokenID := Principal(state.TokenID)
	window := NewTransactionWindow(cfg.MaxInWindow, cfg.TransactionWindowNanos, cfg.PermittedDriftNanos, cfg.MaxPurgePerCall)
	chain := NewBlockchain(tokenID, window)

	blocks := make([]EncodedBlock, len(state.Blocks))
	for i, b := range state.Blocks {
		blocks[i] = EncodedBlock(b)
	}
	var lastHash Hash
	copy(lastHash[:], state.LastHash)
	chain.restoreState(blocks, state.NumArchived, lastHash, state.HasLastHash, state.LastTimestamp, fromPersistedRanges(state.Ranges))
	if err := chain.RebuildWindow(); err != nil {
		return nil, fmt.Errorf("rebuild replay window: %w", err)
	}

	l := &Ledger{
		tokenID:    tokenID,
		settings:   settings,
		balances:   balances,
		allowances: allowances,
		chain:      chain,
		cfg:        cfg,
		clock:      clock,
		notify:     notify,
		log:        newLedgerLogger(cfg.Symbol, tokenID),
	}
	return l, nil
}

func toPersistedRanges(ranges []ArchiveRange) []persistedRange {
	out := make([]persistedRange, len(ranges))
	for i, r := range ranges {
		out[i] = persistedRange{From: r.From, To: r.To, NodeID: r.NodeID}
	}
	return out
}

func fromPersistedRanges(ranges []persistedRange) []ArchiveRange {
	out := make([]ArchiveRange, len(ranges))
	for i, r := range ranges {
		out[i] = ArchiveRange{From: r.From, To: r.To, NodeID: r.NodeID}
	}
	return out
}
