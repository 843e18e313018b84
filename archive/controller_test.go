package archive_test

import (
	"context"
	"testing"
	"time"

	"dftledger/archive"
	"dftledger/core"
	"dftledger/host"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) Now() time.Time { return f.t }

// S6 — archive rollover: once the unarchived prefix crosses the trigger
// threshold, the oldest blocks migrate to a storage node and later
// queries for those heights forward to it instead of resolving locally.
func TestController_S6_ArchiveRollover(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	tokenID := host.Principal{0xAA}
	p1 := host.Principal{0x01}
	p2 := host.Principal{0x02}

	cfg := core.DefaultLedgerConfig("Test Token", "TST")
	cfg.Fee = core.TokenFee{Minimum: core.NewAmount(2), Rate: 0, RateDecimals: 8}

	l, err := core.NewLedger(tokenID, p1, core.NewAmount(1_000_000), cfg, clock, nil)
	if err != nil {
		t.Fatalf("NewLedger: %v", err)
	}
	to := mustHolder(t, p2)
	for i := 0; i < 3; i++ {
		// Each transfer carries a distinct value so its transaction hash
		// differs from its predecessors' — identical operations at the
		// same instant would otherwise collide in the replay window.
		if _, _, _, err := l.Transfer(context.Background(), p1, nil, to, core.NewAmount(uint64(10+i)), nil); err != nil {
			t.Fatalf("Transfer[%d]: %v", i, err)
		}
	}
	// height 0 (mint) + 3 transfers = 4 resident blocks.
	if got := l.ChainLength(); got != 4 {
		t.Fatalf("chain_length = %d, want 4", got)
	}

	nodes := archive.NewDefaultNodeManager(1<<20, 16)
	ctrl := archive.NewController(archive.Config{
		TriggerThreshold: 3,
		NumToArchive:     2,
		MaxNodeBytes:     1 << 20,
		MaxMessageBytes:  0,
	}, nodes, nodes)

	if err := ctrl.ExecAutoScalingStrategy(context.Background(), l.Chain()); err != nil {
		t.Fatalf("ExecAutoScalingStrategy: %v", err)
	}

	if got := l.Chain().NumArchived(); got != 2 {
		t.Fatalf("num_archived = %d, want 2", got)
	}
	if got := l.Chain().UnarchivedLen(); got != 2 {
		t.Fatalf("unarchived_len = %d, want 2", got)
	}

	for h := uint64(0); h < 2; h++ {
		blk, forward, err := l.BlockByHeight(h)
		if err != nil {
			t.Fatalf("BlockByHeight(%d): %v", h, err)
		}
		if forward == "" {
			t.Fatalf("BlockByHeight(%d) = %+v, want a forwarding node id", h, blk)
		}
		node, ok := nodes.Node(archive.NodeID(forward))
		if !ok {
			t.Fatalf("node %s not found", forward)
		}
		archived, ok, err := node.BlockByHeight(h)
		if err != nil || !ok {
			t.Fatalf("node.BlockByHeight(%d) = %v, %v, %v", h, archived, ok, err)
		}
	}

	for h := uint64(2); h < 4; h++ {
		blk, forward, err := l.BlockByHeight(h)
		if err != nil || forward != "" {
			t.Fatalf("BlockByHeight(%d) = %+v, %q, %v — want local", h, blk, forward, err)
		}
	}

	// Below the trigger threshold again; a second call is a no-op.
	if err := ctrl.ExecAutoScalingStrategy(context.Background(), l.Chain()); err != nil {
		t.Fatalf("ExecAutoScalingStrategy (second call): %v", err)
	}
	if got := l.Chain().NumArchived(); got != 2 {
		t.Fatalf("num_archived after second call = %d, want 2 (unchanged)", got)
	}
}

// Boundary: a batch whose total encoded size exceeds MaxMessageBytes is
// rejected outright rather than silently chunked.
func TestController_BatchExceedsMaxMessageBytes(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	tokenID := host.Principal{0xAA}
	p1 := host.Principal{0x01}
	p2 := host.Principal{0x02}

	cfg := core.DefaultLedgerConfig("Test Token", "TST")
	cfg.Fee = core.TokenFee{Minimum: core.NewAmount(2), Rate: 0, RateDecimals: 8}

	l, err := core.NewLedger(tokenID, p1, core.NewAmount(1_000_000), cfg, clock, nil)
	if err != nil {
		t.Fatalf("NewLedger: %v", err)
	}
	to := mustHolder(t, p2)
	for i := 0; i < 3; i++ {
		if _, _, _, err := l.Transfer(context.Background(), p1, nil, to, core.NewAmount(uint64(10+i)), nil); err != nil {
			t.Fatalf("Transfer[%d]: %v", i, err)
		}
	}

	_, blocks := l.Chain().PrefixForArchive(2)
	var totalBytes int64
	for _, b := range blocks {
		totalBytes += int64(b.Size())
	}

	nodes := archive.NewDefaultNodeManager(1<<20, 16)
	ctrl := archive.NewController(archive.Config{
		TriggerThreshold: 3,
		NumToArchive:     2,
		MaxNodeBytes:     1 << 20,
		MaxMessageBytes:  int(totalBytes) - 1,
	}, nodes, nodes)

	err = ctrl.ExecAutoScalingStrategy(context.Background(), l.Chain())
	le := core.AsLedgerError(err)
	if le == nil || le.Code != core.CodeRequestTooLarge {
		t.Fatalf("err = %v, want RequestTooLarge", err)
	}
	if got := l.Chain().NumArchived(); got != 0 {
		t.Fatalf("num_archived = %d, want 0 (rejected batch must not commit)", got)
	}
}

func mustHolder(t *testing.T, p host.Principal) core.TokenHolder {
	t.Helper()
	h, err := core.NewPrincipalHolder(p)
	if err != nil {
		t.Fatalf("NewPrincipalHolder: %v", err)
	}
	return h
}
