package asic

import "testing"

func TestLargestPowerOfTwoMinusOne(t *testing.T) {
	tests := []struct {
		d    uint64
		want uint32
	}{
		{1, 0},
		{2, 1},
		{3, 1},
		{255, 127},
		{256, 255},
		{257, 255},
		{1024, 1023},
	}
	for _, tt := range tests {
		if got := LargestPowerOfTwoMinusOne(tt.d); got != tt.want {
			t.Errorf("LargestPowerOfTwoMinusOne(%d) = %d, want %d", tt.d, got, tt.want)
		}
	}
}

func TestDifficultyMaskPayload_Length(t *testing.T) {
	payload := DifficultyMaskPayload(0x00, 256)
	if len(payload) != 6 {
		t.Fatalf("got payload length %d, want 6 (spec §9 on-wire width)", len(payload))
	}
	if payload[1] != ticketMaskReg {
		t.Fatalf("got register %#x, want %#x", payload[1], ticketMaskReg)
	}
}
