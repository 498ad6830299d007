package jobbuilder

import (
	"math"
	"testing"
)

func TestNetworkDifficulty_Diff1(t *testing.T) {
	d := NetworkDifficulty(0x1d00ffff)
	if math.Abs(d-1.0) > 1e-9 {
		t.Fatalf("NetworkDifficulty(0x1d00ffff) = %v, want ~1.0", d)
	}
}

func TestShareDifficulty_AtTrueDiffOne(t *testing.T) {
	be := diff1Target.FillBytes(make([]byte, 32))
	var digest [32]byte
	for i, b := range be {
		digest[31-i] = b
	}
	d := ShareDifficulty(digest)
	if math.Abs(d-1.0) > 1e-9 {
		t.Fatalf("ShareDifficulty at truediffone = %v, want 1.0", d)
	}
}

func TestShareDifficulty_HalfTargetIsDoubleDifficulty(t *testing.T) {
	be := diff1Target.FillBytes(make([]byte, 32))
	var digest [32]byte
	for i, b := range be {
		digest[31-i] = b
	}
	// Halving the target (clearing the top bit of its most significant
	// nonzero byte, digest[27] in little-endian order) roughly doubles
	// difficulty.
	digest[27] &^= 0x80
	got := ShareDifficulty(digest)
	if got < 1.9 || got > 2.1 {
		t.Fatalf("ShareDifficulty after halving target = %v, want ~2.0", got)
	}
}
