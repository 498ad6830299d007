package jobbuilder

import (
	"bytes"
	"encoding"
	"testing"

	sha256simd "github.com/minio/sha256-simd"
)

func TestIncrementBitmask_Scenario3(t *testing.T) {
	mask := uint32(0x1FFFE000)
	got := IncrementBitmask(0x20000000, mask)
	want := uint32(0x20002000)
	if got != want {
		t.Fatalf("IncrementBitmask = %#x, want %#x", got, want)
	}
}

func TestIncrementBitmask_OnlyTouchesMaskedBits(t *testing.T) {
	mask := uint32(0x00FF00FF)
	v := uint32(0x12345678)
	got := IncrementBitmask(v, mask)
	if got & ^mask != v & ^mask {
		t.Fatalf("unmasked bits changed: got %#x from v %#x mask %#x", got, v, mask)
	}
}

func TestIncrementBitmask_EnumeratesWithoutCollision(t *testing.T) {
	mask := uint32(0x00000007) // popcount 3 -> 8 distinct masked values
	seen := map[uint32]bool{}
	v := uint32(0)
	for i := 0; i < 8; i++ {
		seen[v&mask] = true
		v = IncrementBitmask(v, mask)
	}
	if len(seen) != 8 {
		t.Fatalf("got %d distinct masked values in one cycle, want 8", len(seen))
	}
	if v&mask != 0 {
		t.Fatalf("after 8 increments masked bits = %#x, want wraparound to 0", v&mask)
	}
}

func TestMidstate_Deterministic(t *testing.T) {
	block := make([]byte, 64)
	for i := range block {
		block[i] = byte(i)
	}
	m1, err := Midstate(block)
	if err != nil {
		t.Fatalf("Midstate: %v", err)
	}
	m2, err := Midstate(block)
	if err != nil {
		t.Fatalf("Midstate: %v", err)
	}
	if m1 != m2 {
		t.Fatalf("Midstate not deterministic: %x vs %x", m1, m2)
	}
}

func TestMidstate_RejectsWrongSize(t *testing.T) {
	if _, err := Midstate(make([]byte, 63)); err == nil {
		t.Fatal("expected error for non-64-byte block")
	}
}

// TestMidstate_ResumeEqualsFullHash grounds the spec's round-trip
// invariant: a SHA-256 state marshaled after one 64-byte block, then
// unmarshaled and fed the remaining bytes, must hash identically to
// hashing the whole input in one pass. Midstate's extraction depends on
// this holding for the sha256-simd implementation in use.
func TestMidstate_ResumeEqualsFullHash(t *testing.T) {
	header := make([]byte, 80)
	for i := range header {
		header[i] = byte(i * 7)
	}

	full := sha256simd.Sum256(header)

	h := sha256simd.New()
	if _, err := h.Write(header[:64]); err != nil {
		t.Fatalf("write: %v", err)
	}
	state, err := h.(encoding.BinaryMarshaler).MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}

	resumed := sha256simd.New()
	if err := resumed.(encoding.BinaryUnmarshaler).UnmarshalBinary(state); err != nil {
		t.Fatalf("UnmarshalBinary: %v", err)
	}
	if _, err := resumed.Write(header[64:]); err != nil {
		t.Fatalf("write remainder: %v", err)
	}

	if got := resumed.Sum(nil); !bytes.Equal(full[:], got) {
		t.Fatalf("resumed hash %x != full hash %x", got, full)
	}
}
