package core

import (
	"encoding/base32"
	"encoding/binary"
	"strings"
)

// txDomainSeparator is the 9-byte tag "\x0DFT-tx-id" (byte 0x0D followed
// by the 8 ASCII bytes "FT-tx-id"), mixed into every tx-id exactly as the
// reference tx_id.rs does.
var txDomainSeparator = append([]byte{0x0D}, []byte("FT-tx-id")...)

// canisterIDLen is the fixed principal length a tx-id payload carries.
const canisterIDLen = 10

var base32NoPad = base32.StdEncoding.WithPadding(base32.NoPadding)

// EncodeTxID encodes (tokenID, txIndex) as base32(crc32_be(payload) ‖
// payload) where payload = domain_separator ‖ canonicalPrincipalBytes(tokenID)
// ‖ big_endian_minimal(txIndex). The principal part is always 10 bytes:
// a shorter tokenID is left-padded with zeros and a longer one keeps only
// its last 10 bytes.
func EncodeTxID(tokenID Principal, txIndex uint64) string {
	idBytes := canonicalPrincipalBytes(tokenID)

	payload := make([]byte, 0, len(txDomainSeparator)+canisterIDLen+8)
	payload = append(payload, txDomainSeparator...)
	payload = append(payload, idBytes...)
	payload = append(payload, minimalBigEndian(txIndex)...)

	checksum := crc32IEEE(payload)
	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], checksum)

	full := append(append([]byte{}, prefix[:]...), payload...)
	return strings.ToLower(base32NoPad.EncodeToString(full))
}

// DecodeTxID decodes a string produced by EncodeTxID, verifying the
// domain separator and CRC and extracting exactly 10 bytes of canonical
// principal.
func DecodeTxID(txID string) (Principal, uint64, error) {
	s := strings.ToUpper(strings.ReplaceAll(txID, "-", ""))
	raw, err := base32NoPad.DecodeString(s)
	if err != nil {
		return nil, 0, NewError(CodeInvalidTxId, "not valid base32: %v", err)
	}
	if len(raw) < 4+len(txDomainSeparator)+canisterIDLen {
		return nil, 0, NewError(CodeInvalidTxId, "tx id too short")
	}
	wantChecksum := binary.BigEndian.Uint32(raw[:4])
	payload := raw[4:]

	gotChecksum := crc32IEEE(payload)
	if wantChecksum != gotChecksum {
		return nil, 0, NewError(CodeInvalidTxId, "checksum mismatch: expected %08x, found %08x", gotChecksum, wantChecksum)
	}

	sep := payload[:len(txDomainSeparator)]
	for i := range txDomainSeparator {
		if sep[i] != txDomainSeparator[i] {
			return nil, 0, NewError(CodeInvalidTxId, "domain separator mismatch")
		}
	}

	idStart := len(txDomainSeparator)
	idEnd := idStart + canisterIDLen
	tokenID := append([]byte{}, payload[idStart:idEnd]...)
	txIndexBytes := payload[idEnd:]

	var txIndex uint64
	for _, b := range txIndexBytes {
		txIndex = txIndex<<8 | uint64(b)
	}
	return Principal(tokenID), txIndex, nil
}

// minimalBigEndian renders v in the minimal number of big-endian bytes
// (no leading zero bytes), matching BigUint::to_bytes_be's output for
// small tx indices.
func minimalBigEndian(v uint64) []byte {
	if v == 0 {
		return []byte{0}
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	i := 0
	for i < len(buf)-1 && buf[i] == 0 {
		i++
	}
	return buf[i:]
}

// canonicalPrincipalBytes left-pads or truncates p to exactly 10 bytes,
// the fixed canister-id length the tx-id codec carries.
func canonicalPrincipalBytes(p Principal) []byte {
	out := make([]byte, canisterIDLen)
	if len(p) >= canisterIDLen {
		copy(out, p[len(p)-canisterIDLen:])
		return out
	}
	copy(out[canisterIDLen-len(p):], p)
	return out
}
