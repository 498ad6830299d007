// Package jobbuilder turns a pool's mining.notify parameters into
// ASIC-ready job records: coinbase assembly, Merkle root, SHA-256
// midstates (with version-rolling fan-out), and nonce/difficulty
// validation.
package jobbuilder

import sha256simd "github.com/minio/sha256-simd"

func dsha256(b []byte) [32]byte {
	h1 := sha256simd.Sum256(b)
	return sha256simd.Sum256(h1[:])
}

// BuildCoinbase concatenates coinbase_1 || extranonce_1 || extranonce_2 ||
// coinbase_2 (spec §4.4).
func BuildCoinbase(coinb1, extraNonce1, extraNonce2, coinb2 []byte) []byte {
	out := make([]byte, 0, len(coinb1)+len(extraNonce1)+len(extraNonce2)+len(coinb2))
	out = append(out, coinb1...)
	out = append(out, extraNonce1...)
	out = append(out, extraNonce2...)
	out = append(out, coinb2...)
	return out
}

// MerkleRoot folds the coinbase's double-SHA-256 with each branch hash in
// order (spec §4.4).
func MerkleRoot(coinbase []byte, branches [][]byte) [32]byte {
	h := dsha256(coinbase)
	for _, b := range branches {
		buf := make([]byte, 0, 64)
		buf = append(buf, h[:]...)
		buf = append(buf, b...)
		h = dsha256(buf)
	}
	return h
}
