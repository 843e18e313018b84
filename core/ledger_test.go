package core_test

import (
	"context"
	"testing"
	"time"

	"dftledger/core"
	"dftledger/host"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) Now() time.Time { return f.t }

func testConfig() core.LedgerConfig {
	cfg := core.DefaultLedgerConfig("Test Token", "TST")
	cfg.Fee = core.TokenFee{Minimum: core.NewAmount(2), Rate: 0, RateDecimals: 8}
	return cfg
}

func mustHolder(t *testing.T, p host.Principal) core.TokenHolder {
	t.Helper()
	h, err := core.NewPrincipalHolder(p)
	if err != nil {
		t.Fatalf("NewPrincipalHolder: %v", err)
	}
	return h
}

// S1 — initial mint.
func TestLedger_S1_InitialMint(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	tokenID := host.Principal{0xAA}
	p1 := host.Principal{0x01}

	l, err := core.NewLedger(tokenID, p1, core.NewAmount(100000), testConfig(), clock, nil)
	if err != nil {
		t.Fatalf("NewLedger: %v", err)
	}

	owner := mustHolder(t, p1)
	if got := l.BalanceOf(owner).String(); got != "100000" {
		t.Errorf("balance[P1] = %s, want 100000", got)
	}
	if got := l.TotalSupply().String(); got != "100000" {
		t.Errorf("total_supply = %s, want 100000", got)
	}
	if got := l.ChainLength(); got != 1 {
		t.Errorf("chain_length = %d, want 1", got)
	}

	blk, forward, err := l.BlockByHeight(0)
	if err != nil || forward != "" {
		t.Fatalf("BlockByHeight(0) = %+v, %q, %v", blk, forward, err)
	}
	if !blk.Transaction.Operation.From.IsNone() {
		t.Errorf("block 0 from should be None")
	}
	if blk.Transaction.Operation.To != owner {
		t.Errorf("block 0 to = %v, want owner", blk.Transaction.Operation.To)
	}
	if blk.Transaction.Operation.Value.String() != "100000" {
		t.Errorf("block 0 value = %s, want 100000", blk.Transaction.Operation.Value.String())
	}
	if !blk.Transaction.Operation.Fee.IsZero() {
		t.Errorf("block 0 fee should be zero")
	}
}

// S2 — transfer with minimum fee, fee_to = P1 (self).
func TestLedger_S2_TransferWithFee(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	tokenID := host.Principal{0xAA}
	p1 := host.Principal{0x01}
	p2 := host.Principal{0x02}

	l, err := core.NewLedger(tokenID, p1, core.NewAmount(100000), testConfig(), clock, nil)
	if err != nil {
		t.Fatalf("NewLedger: %v", err)
	}

	to := mustHolder(t, p2)
	height, _, _, err := l.Transfer(context.Background(), p1, nil, to, core.NewAmount(1000), nil)
	if err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if height != 1 {
		t.Errorf("height = %d, want 1", height)
	}

	// fee_to defaults to the owner, and the owner is also the sender here,
	// so the debited fee is credited straight back to P1 — only the
	// transferred value actually leaves P1's balance.
	owner := mustHolder(t, p1)
	if got := l.BalanceOf(owner).String(); got != "99000" {
		t.Errorf("balance[P1] = %s, want 99000", got)
	}
	if got := l.BalanceOf(to).String(); got != "1000" {
		t.Errorf("balance[P2] = %s, want 1000", got)
	}
	if got := l.TotalSupply().String(); got != "100000" {
		t.Errorf("total_supply = %s, want 100000", got)
	}
	if got := l.ChainLength(); got != 2 {
		t.Errorf("chain_length = %d, want 2", got)
	}
}

// S3 — approve then transfer_from.
func TestLedger_S3_ApproveTransferFrom(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	tokenID := host.Principal{0xAA}
	p1 := host.Principal{0x01}
	p2 := host.Principal{0x02}
	p3 := host.Principal{0x03}

	l, err := core.NewLedger(tokenID, p1, core.NewAmount(100000), testConfig(), clock, nil)
	if err != nil {
		t.Fatalf("NewLedger: %v", err)
	}

	owner := mustHolder(t, p1)
	spender := mustHolder(t, p3)
	to := mustHolder(t, p2)

	if _, _, _, err := l.Approve(context.Background(), p1, nil, spender, core.NewAmount(1010), nil); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	// fee_to defaults to the owner, and P1 is both the approver and the
	// fee recipient here, so the approve fee nets to zero on P1's balance.
	if got := l.BalanceOf(owner).String(); got != "100000" {
		t.Errorf("balance[P1] after approve = %s, want 100000", got)
	}
	if got := l.Allowance(owner, spender).String(); got != "1010" {
		t.Errorf("allowance = %s, want 1010", got)
	}

	height, _, _, err := l.TransferFrom(context.Background(), p3, nil, owner, to, core.NewAmount(1000), nil)
	if err != nil {
		t.Fatalf("TransferFrom: %v", err)
	}
	if height != 2 {
		t.Errorf("height = %d, want 2", height)
	}
	if got := l.BalanceOf(owner).String(); got != "99000" {
		t.Errorf("balance[P1] = %s, want 99000", got)
	}
	if got := l.BalanceOf(to).String(); got != "1000" {
		t.Errorf("balance[P2] = %s, want 1000", got)
	}
	if got := l.Allowance(owner, spender).String(); got != "8" {
		t.Errorf("allowance after transfer_from = %s, want 8", got)
	}
	if got := l.ChainLength(); got != 3 {
		t.Errorf("chain_length = %d, want 3", got)
	}
}

// S4 — duplicate replay.
func TestLedger_S4_DuplicateReplay(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	tokenID := host.Principal{0xAA}
	p1 := host.Principal{0x01}
	p2 := host.Principal{0x02}

	l, err := core.NewLedger(tokenID, p1, core.NewAmount(100000), testConfig(), clock, nil)
	if err != nil {
		t.Fatalf("NewLedger: %v", err)
	}

	to := mustHolder(t, p2)
	createdAt := uint64(clock.t.UnixNano())

	height, _, _, err := l.Transfer(context.Background(), p1, nil, to, core.NewAmount(1000), &createdAt)
	if err != nil {
		t.Fatalf("first transfer: %v", err)
	}
	if height != 1 {
		t.Fatalf("height = %d, want 1", height)
	}
	supplyBefore := l.TotalSupply()

	_, _, _, err = l.Transfer(context.Background(), p1, nil, to, core.NewAmount(1000), &createdAt)
	le := core.AsLedgerError(err)
	if le == nil || le.Code != core.CodeTxDuplicate {
		t.Fatalf("second transfer error = %v, want TxDuplicate", err)
	}
	if l.TotalSupply().Cmp(supplyBefore) != 0 {
		t.Errorf("total_supply changed on duplicate rejection")
	}
}

// S5 — burn.
func TestLedger_S5_Burn(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	tokenID := host.Principal{0xAA}
	p1 := host.Principal{0x01}

	l, err := core.NewLedger(tokenID, p1, core.NewAmount(100000), testConfig(), clock, nil)
	if err != nil {
		t.Fatalf("NewLedger: %v", err)
	}

	_, _, txHash, err := l.Burn(context.Background(), p1, nil, core.NewAmount(500), nil)
	if err != nil {
		t.Fatalf("Burn: %v", err)
	}
	if txHash.IsZero() {
		t.Errorf("expected a non-zero tx hash")
	}

	owner := mustHolder(t, p1)
	if got := l.BalanceOf(owner).String(); got != "99500" {
		t.Errorf("balance[P1] = %s, want 99500", got)
	}
	if got := l.TotalSupply().String(); got != "99500" {
		t.Errorf("total_supply = %s, want 99500", got)
	}

	blk, _, err := l.BlockByHeight(1)
	if err != nil {
		t.Fatalf("BlockByHeight(1): %v", err)
	}
	if !blk.Transaction.Operation.To.IsNone() {
		t.Errorf("burn block should have To=None")
	}
	if !blk.Transaction.Operation.Fee.IsZero() {
		t.Errorf("burn should be feeless")
	}
}

// Boundary: burn below fee minimum.
func TestLedger_BurnValueTooSmall(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	tokenID := host.Principal{0xAA}
	p1 := host.Principal{0x01}

	l, err := core.NewLedger(tokenID, p1, core.NewAmount(100000), testConfig(), clock, nil)
	if err != nil {
		t.Fatalf("NewLedger: %v", err)
	}

	_, _, _, err = l.Burn(context.Background(), p1, nil, core.NewAmount(1), nil)
	le := core.AsLedgerError(err)
	if le == nil || le.Code != core.CodeBurnValueTooSmall {
		t.Fatalf("err = %v, want BurnValueTooSmall", err)
	}
}

// Boundary: transfer value+fee exceeding balance leaves no block appended.
func TestLedger_TransferInsufficientBalance(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	tokenID := host.Principal{0xAA}
	p1 := host.Principal{0x01}
	p2 := host.Principal{0x02}

	l, err := core.NewLedger(tokenID, p1, core.NewAmount(10), testConfig(), clock, nil)
	if err != nil {
		t.Fatalf("NewLedger: %v", err)
	}

	to := mustHolder(t, p2)
	before := l.ChainLength()
	_, _, _, err = l.Transfer(context.Background(), p1, nil, to, core.NewAmount(100), nil)
	le := core.AsLedgerError(err)
	if le == nil || le.Code != core.CodeInsufficientBalance {
		t.Fatalf("err = %v, want InsufficientBalance", err)
	}
	if l.ChainLength() != before {
		t.Errorf("chain_length changed on rejected transfer")
	}
}

// Boundary: anonymous caller on any mutator.
func TestLedger_AnonymousCallerRejected(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	tokenID := host.Principal{0xAA}
	p1 := host.Principal{0x01}
	p2 := host.Principal{0x02}

	l, err := core.NewLedger(tokenID, p1, core.NewAmount(100), testConfig(), clock, nil)
	if err != nil {
		t.Fatalf("NewLedger: %v", err)
	}

	to := mustHolder(t, p2)
	_, _, _, err = l.Transfer(context.Background(), host.Principal{}, nil, to, core.NewAmount(1), nil)
	le := core.AsLedgerError(err)
	if le == nil || le.Code != core.CodeNotAllowAnonymous {
		t.Fatalf("err = %v, want NotAllowAnonymous", err)
	}
}

// Boundary: created_at older than the transaction window.
func TestLedger_TxTooOld(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	tokenID := host.Principal{0xAA}
	p1 := host.Principal{0x01}
	p2 := host.Principal{0x02}

	cfg := testConfig()
	l, err := core.NewLedger(tokenID, p1, core.NewAmount(100), cfg, clock, nil)
	if err != nil {
		t.Fatalf("NewLedger: %v", err)
	}

	to := mustHolder(t, p2)
	tooOld := uint64(clock.t.UnixNano()) - cfg.TransactionWindowNanos - uint64(time.Second)
	_, _, _, err = l.Transfer(context.Background(), p1, nil, to, core.NewAmount(1), &tooOld)
	le := core.AsLedgerError(err)
	if le == nil || le.Code != core.CodeTxTooOld {
		t.Fatalf("err = %v, want TxTooOld", err)
	}
}

// Boundary: created_at beyond permitted drift into the future.
func TestLedger_TxCreatedInFuture(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	tokenID := host.Principal{0xAA}
	p1 := host.Principal{0x01}
	p2 := host.Principal{0x02}

	cfg := testConfig()
	l, err := core.NewLedger(tokenID, p1, core.NewAmount(100), cfg, clock, nil)
	if err != nil {
		t.Fatalf("NewLedger: %v", err)
	}

	to := mustHolder(t, p2)
	future := uint64(clock.t.UnixNano()) + cfg.PermittedDriftNanos + uint64(time.Second)
	_, _, _, err = l.Transfer(context.Background(), p1, nil, to, core.NewAmount(1), &future)
	le := core.AsLedgerError(err)
	if le == nil || le.Code != core.CodeTxCreatedInFuture {
		t.Fatalf("err = %v, want TxCreatedInFuture", err)
	}
}

// Boundary: approve with value=0 removes the (owner,spender) entry.
func TestLedger_ApproveZeroRemovesEntry(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	tokenID := host.Principal{0xAA}
	p1 := host.Principal{0x01}
	p3 := host.Principal{0x03}

	l, err := core.NewLedger(tokenID, p1, core.NewAmount(100000), testConfig(), clock, nil)
	if err != nil {
		t.Fatalf("NewLedger: %v", err)
	}

	owner := mustHolder(t, p1)
	spender := mustHolder(t, p3)

	if _, _, _, err := l.Approve(context.Background(), p1, nil, spender, core.NewAmount(500), nil); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if _, _, _, err := l.Approve(context.Background(), p1, nil, spender, core.ZeroAmount(), nil); err != nil {
		t.Fatalf("Approve(0): %v", err)
	}
	if got := l.Allowance(owner, spender); !got.IsZero() {
		t.Errorf("allowance after zero-approve = %s, want 0", got.String())
	}
	if entries := l.AllowancesOf(owner); len(entries) != 0 {
		t.Errorf("AllowancesOf(owner) = %v, want empty", entries)
	}
}

// Boundary: transfer_from with allowance below value+fee.
func TestLedger_TransferFromInsufficientAllowance(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	tokenID := host.Principal{0xAA}
	p1 := host.Principal{0x01}
	p2 := host.Principal{0x02}
	p3 := host.Principal{0x03}

	l, err := core.NewLedger(tokenID, p1, core.NewAmount(100000), testConfig(), clock, nil)
	if err != nil {
		t.Fatalf("NewLedger: %v", err)
	}

	owner := mustHolder(t, p1)
	spender := mustHolder(t, p3)
	to := mustHolder(t, p2)

	if _, _, _, err := l.Approve(context.Background(), p1, nil, spender, core.NewAmount(500), nil); err != nil {
		t.Fatalf("Approve: %v", err)
	}

	before := l.ChainLength()
	_, _, _, err = l.TransferFrom(context.Background(), p3, nil, owner, to, core.NewAmount(500), nil)
	le := core.AsLedgerError(err)
	if le == nil || le.Code != core.CodeInsufficientAllowance {
		t.Fatalf("err = %v, want InsufficientAllowance", err)
	}
	if l.ChainLength() != before {
		t.Errorf("chain_length changed on rejected transfer_from")
	}
}

// Boundary: burn value exceeding the caller's own balance.
func TestLedger_BurnInsufficientBalance(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	tokenID := host.Principal{0xAA}
	p1 := host.Principal{0x01}

	l, err := core.NewLedger(tokenID, p1, core.NewAmount(100), testConfig(), clock, nil)
	if err != nil {
		t.Fatalf("NewLedger: %v", err)
	}

	before := l.ChainLength()
	_, _, _, err = l.Burn(context.Background(), p1, nil, core.NewAmount(1000), nil)
	le := core.AsLedgerError(err)
	if le == nil || le.Code != core.CodeInsufficientBalance {
		t.Fatalf("err = %v, want InsufficientBalance", err)
	}
	if l.ChainLength() != before {
		t.Errorf("chain_length changed on rejected burn")
	}
}

// Boundary: burn_from with allowance below the burn value.
func TestLedger_BurnFromInsufficientAllowance(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	tokenID := host.Principal{0xAA}
	p1 := host.Principal{0x01}
	p3 := host.Principal{0x03}

	l, err := core.NewLedger(tokenID, p1, core.NewAmount(100000), testConfig(), clock, nil)
	if err != nil {
		t.Fatalf("NewLedger: %v", err)
	}

	owner := mustHolder(t, p1)
	spender := mustHolder(t, p3)

	if _, _, _, err := l.Approve(context.Background(), p1, nil, spender, core.NewAmount(100), nil); err != nil {
		t.Fatalf("Approve: %v", err)
	}

	before := l.ChainLength()
	_, _, _, err = l.BurnFrom(context.Background(), p3, nil, owner, core.NewAmount(500), nil)
	le := core.AsLedgerError(err)
	if le == nil || le.Code != core.CodeInsufficientAllowance {
		t.Fatalf("err = %v, want InsufficientAllowance", err)
	}
	if l.ChainLength() != before {
		t.Errorf("chain_length changed on rejected burn_from")
	}
}

// Snapshot/Restore round-trips the full ledger state.
func TestLedger_SnapshotRestoreRoundTrip(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	tokenID := host.Principal{0xAA}
	p1 := host.Principal{0x01}
	p2 := host.Principal{0x02}

	cfg := testConfig()
	l, err := core.NewLedger(tokenID, p1, core.NewAmount(100000), cfg, clock, nil)
	if err != nil {
		t.Fatalf("NewLedger: %v", err)
	}
	to := mustHolder(t, p2)
	if _, _, _, err := l.Transfer(context.Background(), p1, nil, to, core.NewAmount(1000), nil); err != nil {
		t.Fatalf("Transfer: %v", err)
	}

	blob, err := l.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	restored, err := core.Restore(blob, cfg, clock, nil)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}

	owner := mustHolder(t, p1)
	if got, want := restored.BalanceOf(owner).String(), l.BalanceOf(owner).String(); got != want {
		t.Errorf("restored balance[P1] = %s, want %s", got, want)
	}
	if got, want := restored.BalanceOf(to).String(), l.BalanceOf(to).String(); got != want {
		t.Errorf("restored balance[P2] = %s, want %s", got, want)
	}
	if got, want := restored.TotalSupply().String(), l.TotalSupply().String(); got != want {
		t.Errorf("restored total_supply = %s, want %s", got, want)
	}
	if got, want := restored.ChainLength(), l.ChainLength(); got != want {
		t.Errorf("restored chain_length = %d, want %d", got, want)
	}
}
