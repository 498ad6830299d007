package jobbuilder

import (
	"encoding"
	"fmt"

	sha256simd "github.com/minio/sha256-simd"
)

// midstateMagicLen is where the running hash state begins in the byte slice
// produced by (hash.Hash).(encoding.BinaryMarshaler).MarshalBinary: a fixed
// magic prefix of that length precedes the eight big-endian uint32 state
// words, midstateLen bytes in all. Writing
// exactly one 64-byte block before marshaling captures the state after
// absorbing that block, with no padding or finalization applied.
const (
	midstateMagicLen = 4
	midstateLen      = 32
)

// Midstate computes the SHA-256 internal state after absorbing exactly one
// 64-byte block, then reverses it byte for byte (spec §4.4).
func Midstate(block64 []byte) ([32]byte, error) {
	var out [32]byte
	if len(block64) != 64 {
		return out, fmt.Errorf("jobbuilder: midstate block must be 64 bytes, got %d", len(block64))
	}

	h := sha256simd.New()
	if _, err := h.Write(block64); err != nil {
		return out, err
	}

	marshaler, ok := h.(encoding.BinaryMarshaler)
	if !ok {
		return out, fmt.Errorf("jobbuilder: sha256 implementation does not support state marshaling")
	}
	state, err := marshaler.MarshalBinary()
	if err != nil {
		return out, err
	}
	if len(state) < midstateMagicLen+midstateLen {
		return out, fmt.Errorf("jobbuilder: unexpected marshaled state length %d", len(state))
	}

	copy(out[:], state[midstateMagicLen:midstateMagicLen+midstateLen])
	reverse32(&out)
	return out, nil
}

// IncrementBitmask adds 1 to the bits of v selected by mask, with carries
// confined to masked positions (spec §4.4, §8 scenario 3): the classic
// "next subset with a fixed superset of bits" trick, here used as a plain
// increment rather than subset enumeration.
func IncrementBitmask(v, mask uint32) uint32 {
	return (v &^ mask) | (((v | ^mask) + 1) & mask)
}

func reverse32(b *[32]byte) {
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
}

func reverse32Copy(b [32]byte) [32]byte {
	reverse32(&b)
	return b
}
