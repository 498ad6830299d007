package jobbuilder

import (
	"math/big"

	"github.com/btcsuite/btcd/blockchain"
)

// diff1NBits is nBits for network difficulty 1.0; CompactToBig on it gives
// truediffone's target (D1), numerically matching btcd's own difficulty-1
// reference (spec §4.4, §GLOSSARY).
const diff1NBits = 0x1d00ffff

var diff1Target = blockchain.CompactToBig(diff1NBits)

// NetworkDifficulty returns the difficulty implied by a block's compact
// nbits value (spec §4.4, §8 scenario 6).
func NetworkDifficulty(nbits uint32) float64 {
	target := blockchain.CompactToBig(nbits)
	if target.Sign() <= 0 {
		return 0
	}
	ratio := new(big.Rat).SetFrac(diff1Target, target)
	f, _ := ratio.Float64()
	return f
}

// ShareDifficulty converts a double-SHA-256 digest into its difficulty
// relative to D1. The digest is interpreted as a little-endian 256-bit
// integer (spec §4.4): SetBytes wants big-endian input, so the digest is
// reversed first.
func ShareDifficulty(digest [32]byte) float64 {
	be := reverse32Copy(digest)
	h := new(big.Int).SetBytes(be[:])
	if h.Sign() <= 0 {
		return 0
	}
	ratio := new(big.Rat).SetFrac(diff1Target, h)
	f, _ := ratio.Float64()
	return f
}

// TestNonce rebuilds the full 80-byte header for (rolledVersion, nonce,
// ntime), double-SHA-256s it, and reports share/block status against pool
// and network difficulty (spec §4.4 "test_nonce").
func TestNonce(prevBlockHashBE, merkleRootBE [32]byte, nbits, ntime, rolledVersion, nonce uint32, poolDifficulty float64) (shareDiff float64, shareValid, blockFound bool) {
	header := make([]byte, 80)

	putLE32(header[0:4], rolledVersion)

	prevLE := reverse32Copy(prevBlockHashBE)
	copy(header[4:36], prevLE[:])

	merkleLE := reverse32Copy(merkleRootBE)
	copy(header[36:68], merkleLE[:])

	putLE32(header[68:72], ntime)
	putLE32(header[72:76], nbits)
	putLE32(header[76:80], nonce)

	digest := dsha256(header)
	shareDiff = ShareDifficulty(digest)

	networkDiff := NetworkDifficulty(nbits)
	shareValid = shareDiff >= poolDifficulty
	blockFound = shareDiff >= networkDiff
	return
}

func putLE32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}
