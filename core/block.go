package core

import (
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"
)

// Block is {parent_hash, transaction, timestamp} per spec §3. Blocks are
// immutable once appended; they can only migrate wholesale to an
// archive node (core/persistence.go, archive/controller.go).
type Block struct {
	ParentHash  Hash
	Transaction Transaction
	Timestamp   uint64
}

type rlpBlock struct {
	ParentHash []byte
	Tx         rlpTransaction
	Timestamp  uint64
}

// EncodedBlock is the canonical byte encoding of a Block, the unit the
// blockchain stores, hashes, and ships to archive nodes.
type EncodedBlock []byte

// Size reports the byte length counted against MAX_NODE_BYTES /
// MAX_MESSAGE_BYTES when deciding whether to archive.
func (b EncodedBlock) Size() int { return len(b) }

// EncodeBlock produces the canonical encoding of blk.
func EncodeBlock(blk Block) (EncodedBlock, error) {
	w := rlpBlock{
		ParentHash: blk.ParentHash.Bytes(),
		Tx:         toRLPTransaction(blk.Transaction),
		Timestamp:  blk.Timestamp,
	}
	out, err := rlp.EncodeToBytes(w)
	if err != nil {
		return nil, fmt.Errorf("encode block: %w", err)
	}
	return EncodedBlock(out), nil
}

// DecodeBlock is the inverse of EncodeBlock.
func DecodeBlock(enc EncodedBlock) (Block, error) {
	var w rlpBlock
	if err := rlp.DecodeBytes(enc, &w); err != nil {
		return Block{}, fmt.Errorf("decode block: %w", err)
	}
	tx, err := fromRLPTransaction(w.Tx)
	if err != nil {
		return Block{}, err
	}
	var parent Hash
	copy(parent[:], w.ParentHash)
	return Block{ParentHash: parent, Transaction: tx, Timestamp: w.Timestamp}, nil
}

// BlockHash is SHA-256(token_id ‖ encoded_block), mixing token_id
// identically to TransactionHash.
func BlockHash(tokenID Principal, enc EncodedBlock) Hash {
	return sumSHA256(tokenID, enc)
}

// GenesisParentHash is SHA-256(token_id), the parent hash of block 0.
func GenesisParentHash(tokenID Principal) Hash {
	return sumSHA256(tokenID)
}
