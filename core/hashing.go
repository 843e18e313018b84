package core

import (
	"crypto/sha256"
	"encoding/hex"
	"hash/crc32"
)

// Hash is a SHA-256 digest, used for both transaction and block hashes.
// SHA-224 is used nowhere except inside AccountIdentifier derivation
// (core/holder.go), and CRC-32 (IEEE) only for checksum prefixes —
// centralizing both here so no other call site reaches for a different
// digest by accident.
type Hash [32]byte

// ZeroHash is the all-zero digest, distinguished from "no hash yet" by
// callers via a separate bool/pointer, never inferred from value alone.
var ZeroHash Hash

func (h Hash) String() string { return hex.EncodeToString(h[:]) }

// Bytes returns a copy of the underlying digest bytes.
func (h Hash) Bytes() []byte {
	out := make([]byte, len(h))
	copy(out, h[:])
	return out
}

func (h Hash) IsZero() bool { return h == ZeroHash }

// sumSHA256 hashes the concatenation of parts with a single SHA-256
// digest, the "token_id ‖ encoded_payload" mixing both transaction and
// block hashes require.
func sumSHA256(parts ...[]byte) Hash {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

// crc32IEEE computes the checksum used by both the AccountIdentifier
// canonical form and the tx-id codec.
func crc32IEEE(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}
