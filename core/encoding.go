package core

import (
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"
)

// Canonical encoding of transactions and blocks uses RLP
// (github.com/ethereum/go-ethereum/rlp): a deterministic,
// length-prefixed byte layout well suited to hashing and
// content-addressed storage, used here as the one canonical
// hash/encode path for every block and transaction.
//
// TokenHolder, TokenAmount and TokenFee carry unexported fields for
// comparability/precision, so each gets a small flattened wire form
// here rather than being RLP-tagged directly.

type rlpHolder struct {
	Kind uint8
	Data []byte
}

func toRLPHolder(h TokenHolder) rlpHolder {
	switch h.Kind {
	case HolderPrincipal:
		return rlpHolder{Kind: uint8(HolderPrincipal), Data: append([]byte{}, h.Principal()...)}
	case HolderAccount:
		acct := h.Account()
		return rlpHolder{Kind: uint8(HolderAccount), Data: append([]byte{}, acct[:]...)}
	default:
		return rlpHolder{Kind: uint8(HolderNone)}
	}
}

func fromRLPHolder(w rlpHolder) (TokenHolder, error) {
	switch HolderKind(w.Kind) {
	case HolderPrincipal:
		return NewPrincipalHolder(Principal(w.Data))
	case HolderAccount:
		if len(w.Data) != 28 {
			return TokenHolder{}, fmt.Errorf("encoded account identifier has %d bytes, want 28", len(w.Data))
		}
		var acct AccountIdentifier
		copy(acct[:], w.Data)
		return TokenHolder{Kind: HolderAccount, account: acct}, nil
	case HolderNone:
		return NoneHolder(), nil
	default:
		return TokenHolder{}, fmt.Errorf("unknown holder kind %d", w.Kind)
	}
}

type rlpFee struct {
	Minimum      []byte
	Rate         uint32
	RateDecimals uint8
}

func toRLPFee(f TokenFee) rlpFee {
	return rlpFee{Minimum: f.Minimum.Bytes(), Rate: f.Rate, RateDecimals: f.RateDecimals}
}

func fromRLPFee(w rlpFee) TokenFee {
	return TokenFee{Minimum: AmountFromBytes(w.Minimum), Rate: w.Rate, RateDecimals: w.RateDecimals}
}

type rlpOperation struct {
	Kind     uint8
	Caller   []byte
	Owner    rlpHolder
	Spender  rlpHolder
	From     rlpHolder
	To       rlpHolder
	Value    []byte
	Fee      []byte
	NewFee   rlpFee
	NewOwner rlpHolder
	NewFeeTo rlpHolder
	Minter   rlpHolder
}

type rlpTransaction struct {
	Op        rlpOperation
	CreatedAt uint64
}

func toRLPTransaction(tx Transaction) rlpTransaction {
	op := tx.Operation
	return rlpTransaction{
		Op: rlpOperation{
			Kind:     uint8(op.Kind),
			Caller:   append([]byte{}, op.Caller...),
			Owner:    toRLPHolder(op.Owner),
			Spender:  toRLPHolder(op.Spender),
			From:     toRLPHolder(op.From),
			To:       toRLPHolder(op.To),
			Value:    op.Value.Bytes(),
			Fee:      op.Fee.Bytes(),
			NewFee:   toRLPFee(op.NewFee),
			NewOwner: toRLPHolder(op.NewOwner),
			NewFeeTo: toRLPHolder(op.NewFeeTo),
			Minter:   toRLPHolder(op.Minter),
		},
		CreatedAt: tx.CreatedAt,
	}
}

func fromRLPTransaction(w rlpTransaction) (Transaction, error) {
	owner, err := fromRLPHolder(w.Op.Owner)
	if err != nil {
		return Transaction{}, err
	}
	spender, err := fromRLPHolder(w.Op.Spender)
	if err != nil {
		return Transaction{}, err
	}
	from, err := fromRLPHolder(w.Op.From)
	if err != nil {
		return Transaction{}, err
	}
	to, err := fromRLPHolder(w.Op.To)
	if err != nil {
		return Transaction{}, err
	}
	newOwner, err := fromRLPHolder(w.Op.NewOwner)
	if err != nil {
		return Transaction{}, err
	}
	newFeeTo, err := fromRLPHolder(w.Op.NewFeeTo)
	if err != nil {
		return Transaction{}, err
	}
	minter, err := fromRLPHolder(w.Op.Minter)
	if err != nil {
		return Transaction{}, err
	}
	return Transaction{
		Operation: Operation{
			Kind:     OperationKind(w.Op.Kind),
			Caller:   Principal(w.Op.Caller),
			Owner:    owner,
			Spender:  spender,
			From:     from,
			To:       to,
			Value:    AmountFromBytes(w.Op.Value),
			Fee:      AmountFromBytes(w.Op.Fee),
			NewFee:   fromRLPFee(w.Op.NewFee),
			NewOwner: newOwner,
			NewFeeTo: newFeeTo,
			Minter:   minter,
		},
		CreatedAt: w.CreatedAt,
	}, nil
}

// EncodeTransaction produces the canonical byte encoding used for
// hashing and persistence.
func EncodeTransaction(tx Transaction) ([]byte, error) {
	return rlp.EncodeToBytes(toRLPTransaction(tx))
}

// DecodeTransaction is the inverse of EncodeTransaction.
func DecodeTransaction(data []byte) (Transaction, error) {
	var w rlpTransaction
	if err := rlp.DecodeBytes(data, &w); err != nil {
		return Transaction{}, fmt.Errorf("decode transaction: %w", err)
	}
	return fromRLPTransaction(w)
}

// TransactionHash is SHA-256(token_id ‖ canonical_encoding(tx)), mixing
// token_id so identical transactions across two ledgers hash differently.
func TransactionHash(tokenID Principal, tx Transaction) (Hash, error) {
	enc, err := EncodeTransaction(tx)
	if err != nil {
		return Hash{}, err
	}
	return sumSHA256(tokenID, enc), nil
}
