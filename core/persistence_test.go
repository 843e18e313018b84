package core_test

import (
	"context"
	"testing"
	"time"

	"dftledger/core"
	"dftledger/host"
	"dftledger/internal/testutil"
)

// Snapshot/Restore round-trips through an on-disk blob, not just an
// in-memory byte slice — the shape a real host persists to stable
// storage between upgrades.
func TestLedger_SnapshotRestoreRoundTripOnDisk(t *testing.T) {
	sandbox, err := testutil.NewSandbox()
	if err != nil {
		t.Fatalf("NewSandbox: %v", err)
	}
	defer func() {
		if err := sandbox.Cleanup(); err != nil {
			t.Errorf("Cleanup: %v", err)
		}
	}()

	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	tokenID := host.Principal{0xAA}
	p1 := host.Principal{0x01}
	p2 := host.Principal{0x02}
	p3 := host.Principal{0x03}

	cfg := testConfig()
	l, err := core.NewLedger(tokenID, p1, core.NewAmount(100000), cfg, clock, nil)
	if err != nil {
		t.Fatalf("NewLedger: %v", err)
	}

	to := mustHolder(t, p2)
	if _, _, _, err := l.Transfer(context.Background(), p1, nil, to, core.NewAmount(1000), nil); err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	spender := mustHolder(t, p3)
	if _, _, _, err := l.Approve(context.Background(), p1, nil, spender, core.NewAmount(250), nil); err != nil {
		t.Fatalf("Approve: %v", err)
	}

	blob, err := l.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if err := sandbox.WriteFile("ledger.snapshot", blob, 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	onDisk, err := sandbox.ReadFile("ledger.snapshot")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	restored, err := core.Restore(onDisk, cfg, clock, nil)
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
	if got, want := restored.Allowance(owner, spender).String(), l.Allowance(owner, spender).String(); got != want {
		t.Errorf("restored allowance = %s, want %s", got, want)
	}
	if got, want := restored.TotalSupply().String(), l.TotalSupply().String(); got != want {
		t.Errorf("restored total_supply = %s, want %s", got, want)
	}
	if got, want := restored.ChainLength(), l.ChainLength(); got != want {
		t.Errorf("restored chain_length = %d, want %d", got, want)
	}
}
