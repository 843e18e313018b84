package core

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"dftledger/host"
)

// Ledger is the single owned state value: one struct orchestrating
// settings, balances, allowances and the block chain behind a state
// machine that is the only path allowed to mutate any of them. Built
// around token semantics (balances/allowances/fees) rather than
// UTXO/contract semantics, with a single sync.RWMutex and a logrus
// entry logging every mutation.
type Ledger struct {
	mu sync.RWMutex

	tokenID    Principal
	settings   *Settings
	balances   *BalanceLedger
	allowances *AllowanceLedger
	chain      *Blockchain

	cfg    LedgerConfig
	clock  host.Clock
	notify host.Notifier

	log *logrus.Entry
}

// NewLedger initializes a ledger for tokenID, minting initialSupply to
// owner as block 0 — S1 in the testable-properties scenarios. owner is
// also the initial fee recipient.
func NewLedger(tokenID Principal, owner Principal, initialSupply TokenAmount, cfg LedgerConfig, clock host.Clock, notify host.Notifier) (*Ledger, error) {
	ownerHolder, err := NewPrincipalHolder(owner)
	if err != nil {
		return nil, fmt.Errorf("owner principal: %w", err)
	}

	window := NewTransactionWindow(cfg.MaxInWindow, cfg.TransactionWindowNanos, cfg.PermittedDriftNanos, cfg.MaxPurgePerCall)
	l := &Ledger{
		tokenID:    tokenID,
		settings:   NewSettings(cfg.Name, cfg.Symbol, cfg.Decimals, ownerHolder, cfg.Fee),
		balances:   NewBalanceLedger(),
		allowances: NewAllowanceLedger(),
		chain:      NewBlockchain(tokenID, window),
		cfg:        cfg,
		clock:      clock,
		notify:     notify,
		log:        newLedgerLogger(cfg.Symbol, tokenID),
	}

	if !initialSupply.IsZero() {
		op := Operation{Kind: OpTransfer, Caller: owner, From: NoneHolder(), To: ownerHolder, Value: initialSupply, Fee: ZeroAmount()}
		now := l.nowNanos()
		tx := Transaction{Operation: op, CreatedAt: now}
		height, blockHash, txHash, err := l.chain.AddTxToBlock(tx, now)
		if err != nil {
			return nil, fmt.Errorf("mint genesis supply: %w", err)
		}
		l.balances.Credit(ownerHolder, initialSupply)
		l.log.WithFields(logrus.Fields{
			"height": height, "block": blockHash, "tx": txHash, "supply": initialSupply,
		}).Info("ledger initialized")
	}

	return l, nil
}

func newLedgerLogger(symbol string, tokenID Principal) *logrus.Entry {
	return logrus.WithFields(logrus.Fields{
		"token":  symbol,
		"ledger": tokenID.String(),
	})
}

func (l *Ledger) nowNanos() uint64 { return uint64(l.clock.Now().UnixNano()) }

// TokenID returns this instance's token/self identity.
func (l *Ledger) TokenID() Principal { return l.tokenID }

// preamble runs the shared validation every mutator shares per spec
// §4.8: not_allow_anonymous, verified_created_at, and the replay
// window's purge-then-throttle sequence. It returns the call time and
// the transaction's effective created_at.
func (l *Ledger) preamble(caller Principal, createdAt *uint64) (now, effectiveCreatedAt uint64, err error) {
	if caller.IsAnonymous() {
		return 0, 0, NewError(CodeNotAllowAnonymous, "anonymous principal may not call a mutating method")
	}
	now = l.nowNanos()
	effectiveCreatedAt = now
	if createdAt != nil {
		ts := *createdAt
		if ts+l.cfg.TransactionWindowNanos < now {
			return 0, 0, NewError(CodeTxTooOld, "created_at %d is older than the transaction window", ts)
		}
		if ts > now+l.cfg.PermittedDriftNanos {
			return 0, 0, NewError(CodeTxCreatedInFuture, "created_at %d is beyond permitted drift", ts)
		}
		effectiveCreatedAt = ts
	}

	if purged := l.chain.PurgeOldTransactions(now); purged == 0 {
		if err := l.chain.ThrottleCheck(now); err != nil {
			return 0, 0, err
		}
	}
	return now, effectiveCreatedAt, nil
}

// Approve implements spec §4.8's approve: the caller sets spender's
// allowance over its own (ownerSub) account to the absolute value, and
// pays the flat approve fee out of that same account.
func (l *Ledger) Approve(ctx context.Context, caller Principal, ownerSub *Subaccount, spender TokenHolder, value TokenAmount, createdAt *uint64) (height uint64, blockHash, txHash Hash, err error) {
	now, ts, err := l.preamble(caller, createdAt)
	if err != nil {
		return 0, Hash{}, Hash{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	owner, _ := NewHolder(caller, ownerSub)
	fee := l.settings.Fee.ApproveFee()
	feeTo := l.settings.FeeTo

	if l.balances.BalanceOf(owner).LessThan(fee) {
		return 0, Hash{}, Hash{}, NewError(CodeInsufficientBalance, "balance insufficient to cover approve fee")
	}

	op := Operation{Kind: OpApprove, Caller: caller, Owner: owner, Spender: spender, Value: value, Fee: fee}
	tx := Transaction{Operation: op, CreatedAt: ts}
	height, blockHash, txHash, err = l.chain.AddTxToBlock(tx, now)
	if err != nil {
		return 0, Hash{}, Hash{}, err
	}

	l.allowances.Credit(owner, spender, value)
	if err := l.balances.Debit(owner, fee); err != nil {
		l.log.WithError(err).Error("approve fee debit failed after block append")
		return 0, Hash{}, Hash{}, err
	}
	l.balances.Credit(feeTo, fee)

	l.log.WithFields(logrus.Fields{
		"owner": owner, "spender": spender, "value": value, "height": height,
	}).Info("approve")
	return height, blockHash, txHash, nil
}

// Transfer implements spec §4.8's transfer: moves value from the
// caller's own (fromSub) account to to, charging transfer_fee(value).
func (l *Ledger) Transfer(ctx context.Context, caller Principal, fromSub *Subaccount, to TokenHolder, value TokenAmount, createdAt *uint64) (height uint64, blockHash, txHash Hash, err error) {
	from, _ := NewHolder(caller, fromSub)
	return l.transferCore(ctx, caller, from, to, value, createdAt)
}

// TransferFrom implements spec §4.8's transfer_from: spender (the
// caller's own spenderSub account) draws from from's allowance.
func (l *Ledger) TransferFrom(ctx context.Context, caller Principal, spenderSub *Subaccount, from, to TokenHolder, value TokenAmount, createdAt *uint64) (height uint64, blockHash, txHash Hash, err error) {
	spender, _ := NewHolder(caller, spenderSub)
	fee := l.settings.Fee.TransferFee(value)
	required := value.Add(fee)

	l.mu.RLock()
	allowed := l.allowances.Allowance(from, spender)
	l.mu.RUnlock()
	if allowed.LessThan(required) {
		return 0, Hash{}, Hash{}, NewError(CodeInsufficientAllowance, "allowance %s is less than required %s", allowed, required)
	}

	height, blockHash, txHash, err = l.transferCore(ctx, caller, from, to, value, createdAt)
	if err != nil {
		return 0, Hash{}, Hash{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.allowances.Debit(from, spender, required); err != nil {
		l.log.WithError(err).Error("allowance debit failed after transfer committed")
		return height, blockHash, txHash, err
	}
	return height, blockHash, txHash, nil
}

// transferCore appends a Transfer block and moves value + fee between
// balances. Mint (from=NoneHolder()) and burn (to=NoneHolder(), fee
// zero) do not come through here: Mint and burnCore below build their
// own feeless Transfer blocks.
func (l *Ledger) transferCore(ctx context.Context, caller Principal, from, to TokenHolder, value TokenAmount, createdAt *uint64) (height uint64, blockHash, txHash Hash, err error) {
	now, ts, err := l.preamble(caller, createdAt)
	if err != nil {
		return 0, Hash{}, Hash{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	fee := l.settings.Fee.TransferFee(value)
	feeTo := l.settings.FeeTo
	required := value.Add(fee)
	if l.balances.BalanceOf(from).LessThan(required) {
		return 0, Hash{}, Hash{}, NewError(CodeInsufficientBalance, "balance insufficient for value %s plus fee %s", value, fee)
	}

	op := Operation{Kind: OpTransfer, Caller: caller, From: from, To: to, Value: value, Fee: fee}
	tx := Transaction{Operation: op, CreatedAt: ts}
	height, blockHash, txHash, err = l.chain.AddTxToBlock(tx, now)
	if err != nil {
		return 0, Hash{}, Hash{}, err
	}

	if err := l.balances.Debit(from, value); err != nil {
		l.log.WithError(err).Error("transfer debit failed after block append")
		return 0, Hash{}, Hash{}, err
	}
	l.balances.Credit(to, value)
	if !fee.IsZero() {
		if err := l.balances.Debit(from, fee); err != nil {
			l.log.WithError(err).Error("transfer fee debit failed after block append")
			return 0, Hash{}, Hash{}, err
		}
		l.balances.Credit(feeTo, fee)
	}

	l.log.WithFields(logrus.Fields{
		"from": from, "to": to, "value": value, "fee": fee, "height": height,
	}).Info("transfer")

	if p := to.Principal(); p != nil {
		l.notifyBestEffort(ctx, "received", p, value)
	}
	if p := from.Principal(); p != nil {
		l.notifyBestEffort(ctx, "sending", p, value)
	}
	return height, blockHash, txHash, nil
}

// Mint implements spec §4.8's mint: only_minter, feeless, total_supply
// increases.
func (l *Ledger) Mint(ctx context.Context, caller Principal, to TokenHolder, value TokenAmount, createdAt *uint64) (height uint64, blockHash, txHash Hash, err error) {
	l.mu.RLock()
	authErr := l.settings.OnlyMinter(caller)
	l.mu.RUnlock()
	if authErr != nil {
		return 0, Hash{}, Hash{}, authErr
	}

	now, ts, err := l.preamble(caller, createdAt)
	if err != nil {
		return 0, Hash{}, Hash{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	op := Operation{Kind: OpTransfer, Caller: caller, From: NoneHolder(), To: to, Value: value, Fee: ZeroAmount()}
	tx := Transaction{Operation: op, CreatedAt: ts}
	height, blockHash, txHash, err = l.chain.AddTxToBlock(tx, now)
	if err != nil {
		return 0, Hash{}, Hash{}, err
	}
	l.balances.Credit(to, value)

	l.log.WithFields(logrus.Fields{"to": to, "value": value, "height": height}).Info("mint")
	if p := to.Principal(); p != nil {
		l.notifyBestEffort(ctx, "received", p, value)
	}
	return height, blockHash, txHash, nil
}

// Burn implements spec §4.8's burn: feeless, value must meet the fee
// minimum, total_supply decreases.
func (l *Ledger) Burn(ctx context.Context, caller Principal, fromSub *Subaccount, value TokenAmount, createdAt *uint64) (height uint64, blockHash, txHash Hash, err error) {
	from, _ := NewHolder(caller, fromSub)
	return l.burnCore(ctx, caller, from, value, createdAt, nil)
}

// BurnFrom implements spec §4.8's burn_from: callerSub's own account
// draws down owner's allowance by value (feeless — no fee component is
// added to the allowance debit).
func (l *Ledger) BurnFrom(ctx context.Context, caller Principal, callerSub *Subaccount, owner TokenHolder, value TokenAmount, createdAt *uint64) (height uint64, blockHash, txHash Hash, err error) {
	spender, _ := NewHolder(caller, callerSub)
	return l.burnCore(ctx, caller, owner, value, createdAt, &spender)
}

func (l *Ledger) burnCore(ctx context.Context, caller Principal, from TokenHolder, value TokenAmount, createdAt *uint64, spender *TokenHolder) (height uint64, blockHash, txHash Hash, err error) {
	l.mu.RLock()
	minimum := l.settings.Fee.Minimum
	l.mu.RUnlock()
	if value.LessThan(minimum) {
		return 0, Hash{}, Hash{}, NewError(CodeBurnValueTooSmall, "burn value %s is below fee minimum %s", value, minimum)
	}

	if spender != nil {
		l.mu.RLock()
		allowed := l.allowances.Allowance(from, *spender)
		l.mu.RUnlock()
		if allowed.LessThan(value) {
			return 0, Hash{}, Hash{}, NewError(CodeInsufficientAllowance, "allowance %s is less than burn value %s", allowed, value)
		}
	}

	now, ts, err := l.preamble(caller, createdAt)
	if err != nil {
		return 0, Hash{}, Hash{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.balances.BalanceOf(from).LessThan(value) {
		return 0, Hash{}, Hash{}, NewError(CodeInsufficientBalance, "balance %s is less than burn value %s", l.balances.BalanceOf(from), value)
	}

	op := Operation{Kind: OpTransfer, Caller: caller, From: from, To: NoneHolder(), Value: value, Fee: ZeroAmount()}
	tx := Transaction{Operation: op, CreatedAt: ts}
	height, blockHash, txHash, err = l.chain.AddTxToBlock(tx, now)
	if err != nil {
		return 0, Hash{}, Hash{}, err
	}

	if err := l.balances.Debit(from, value); err != nil {
		l.log.WithError(err).Error("burn debit failed after block append")
		return 0, Hash{}, Hash{}, err
	}
	if spender != nil {
		if err := l.allowances.Debit(from, *spender, value); err != nil {
			l.log.WithError(err).Error("burn_from allowance debit failed after block append")
			return height, blockHash, txHash, err
		}
	}

	l.log.WithFields(logrus.Fields{"from": from, "value": value, "height": height}).Info("burn")
	if p := from.Principal(); p != nil {
		l.notifyBestEffort(ctx, "sending", p, value)
	}
	return height, blockHash, txHash, nil
}

// --- Admin mutations (spec §4.8) ---

func (l *Ledger) adminPreamble(caller Principal, createdAt *uint64) (now, ts uint64, err error) {
	l.mu.RLock()
	authErr := l.settings.OnlyOwner(caller)
	l.mu.RUnlock()
	if authErr != nil {
		return 0, 0, authErr
	}
	return l.preamble(caller, createdAt)
}

func (l *Ledger) SetOwner(caller Principal, newOwner TokenHolder, createdAt *uint64) (height uint64, blockHash, txHash Hash, err error) {
	now, ts, err := l.adminPreamble(caller, createdAt)
	if err != nil {
		return 0, Hash{}, Hash{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	op := Operation{Kind: OpOwnerModify, Caller: caller, NewOwner: newOwner}
	height, blockHash, txHash, err = l.chain.AddTxToBlock(Transaction{Operation: op, CreatedAt: ts}, now)
	if err != nil {
		return 0, Hash{}, Hash{}, err
	}
	l.settings.SetOwner(newOwner)
	l.log.WithField("new_owner", newOwner).Info("set_owner")
	return height, blockHash, txHash, nil
}

func (l *Ledger) SetFee(caller Principal, fee TokenFee, createdAt *uint64) (height uint64, blockHash, txHash Hash, err error) {
	now, ts, err := l.adminPreamble(caller, createdAt)
	if err != nil {
		return 0, Hash{}, Hash{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	op := Operation{Kind: OpFeeModify, Caller: caller, NewFee: fee}
	height, blockHash, txHash, err = l.chain.AddTxToBlock(Transaction{Operation: op, CreatedAt: ts}, now)
	if err != nil {
		return 0, Hash{}, Hash{}, err
	}
	l.settings.SetFee(fee)
	l.log.WithField("new_fee", fee).Info("set_fee")
	return height, blockHash, txHash, nil
}

func (l *Ledger) SetFeeTo(caller Principal, feeTo TokenHolder, createdAt *uint64) (height uint64, blockHash, txHash Hash, err error) {
	if feeTo.IsNone() {
		return 0, Hash{}, Hash{}, NewError(CodeInvalidFeeTo, "fee_to must not be the none holder")
	}
	now, ts, err := l.adminPreamble(caller, createdAt)
	if err != nil {
		return 0, Hash{}, Hash{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	op := Operation{Kind: OpFeeToModify, Caller: caller, NewFeeTo: feeTo}
	height, blockHash, txHash, err = l.chain.AddTxToBlock(Transaction{Operation: op, CreatedAt: ts}, now)
	if err != nil {
		return 0, Hash{}, Hash{}, err
	}
	l.settings.SetFeeTo(feeTo)
	l.log.WithField("new_fee_to", feeTo).Info("set_fee_to")
	return height, blockHash, txHash, nil
}

func (l *Ledger) AddMinter(caller Principal, minter Principal, createdAt *uint64) (height uint64, blockHash, txHash Hash, err error) {
	now, ts, err := l.adminPreamble(caller, createdAt)
	if err != nil {
		return 0, Hash{}, Hash{}, err
	}
	minterHolder, herr := NewPrincipalHolder(minter)
	if herr != nil {
		return 0, Hash{}, Hash{}, fmt.Errorf("minter principal: %w", herr)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	op := Operation{Kind: OpAddMinter, Caller: caller, Minter: minterHolder}
	height, blockHash, txHash, err = l.chain.AddTxToBlock(Transaction{Operation: op, CreatedAt: ts}, now)
	if err != nil {
		return 0, Hash{}, Hash{}, err
	}
	l.settings.AddMinter(minter)
	l.log.WithField("minter", minterHolder).Info("add_minter")
	return height, blockHash, txHash, nil
}

func (l *Ledger) RemoveMinter(caller Principal, minter Principal, createdAt *uint64) (height uint64, blockHash, txHash Hash, err error) {
	now, ts, err := l.adminPreamble(caller, createdAt)
	if err != nil {
		return 0, Hash{}, Hash{}, err
	}
	minterHolder, herr := NewPrincipalHolder(minter)
	if herr != nil {
		return 0, Hash{}, Hash{}, fmt.Errorf("minter principal: %w", herr)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	op := Operation{Kind: OpRemoveMinter, Caller: caller, Minter: minterHolder}
	height, blockHash, txHash, err = l.chain.AddTxToBlock(Transaction{Operation: op, CreatedAt: ts}, now)
	if err != nil {
		return 0, Hash{}, Hash{}, err
	}
	l.settings.RemoveMinter(minter)
	l.log.WithField("minter", minterHolder).Info("remove_minter")
	return height, blockHash, txHash, nil
}

// SetLogo and SetDesc mutate presentation metadata only; per the Open
// Question resolution (SPEC_FULL.md) neither appends a chain block.
func (l *Ledger) SetLogo(caller Principal, logo []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.settings.OnlyOwner(caller); err != nil {
		return err
	}
	l.settings.SetLogo(logo)
	return nil
}

func (l *Ledger) SetDesc(caller Principal, desc string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.settings.OnlyOwner(caller); err != nil {
		return err
	}
	l.settings.SetDescription(desc)
	return nil
}

// --- Queries ---

func (l *Ledger) BalanceOf(h TokenHolder) TokenAmount {
	return l.balances.BalanceOf(h)
}

func (l *Ledger) TotalSupply() TokenAmount { return l.balances.TotalSupply() }

// ChainLength is the ledger's current block count (archived + resident).
func (l *Ledger) ChainLength() uint64 { return l.chain.ChainLength() }

// Chain exposes the underlying Blockchain for archive/query wiring
// (archive.Controller.ExecAutoScalingStrategy, core.query.go's cross-node
// forwarding) — both live outside this file but need the same instance
// this Ledger mutates.
func (l *Ledger) Chain() *Blockchain { return l.chain }

func (l *Ledger) Allowance(owner, spender TokenHolder) TokenAmount {
	return l.allowances.Allowance(owner, spender)
}

func (l *Ledger) AllowancesOf(owner TokenHolder) []SpenderAllowance {
	return l.allowances.AllowancesOf(owner)
}

func (l *Ledger) Owner() TokenHolder {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.settings.Owner
}

func (l *Ledger) Fee() TokenFee {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.settings.Fee
}

func (l *Ledger) FeeTo() TokenHolder {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.settings.FeeTo
}

func (l *Ledger) Minters() []TokenHolder {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.settings.MinterList()
}

func (l *Ledger) Meta() (name, symbol string, decimals uint8) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.settings.Name, l.settings.Symbol, l.settings.Decimals
}

func (l *Ledger) Description() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.settings.Description
}

func (l *Ledger) Logo() []byte {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]byte{}, l.settings.Logo...)
}

// notifyBestEffort invokes the optional on_token_received / on_token_sending
// hooks: a failure is logged and swallowed, never converted into the
// originating operation's error.
func (l *Ledger) notifyBestEffort(ctx context.Context, kind string, who Principal, amount TokenAmount) {
	if l.notify == nil {
		return
	}
	var err error
	switch kind {
	case "received":
		err = l.notify.NotifyReceived(ctx, who, amount.String())
	case "sending":
		err = l.notify.NotifySending(ctx, who, amount.String())
	}
	if err != nil {
		l.log.WithError(err).Warn("notification failed")
	}
}
