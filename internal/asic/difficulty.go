package asic

import "math/bits"

// ticketMaskReg is the ASIC register address the difficulty mask is
// written to.
const ticketMaskReg = 0x14

// LargestPowerOfTwoMinusOne returns 2^k - 1 for the largest k such that
// 2^k <= d (spec §4.2 "Difficulty mask"). d=0 is treated as d=1.
func LargestPowerOfTwoMinusOne(d uint64) uint32 {
	if d < 1 {
		d = 1
	}
	k := bits.Len64(d) - 1
	return uint32(1)<<uint(k) - 1
}

// DifficultyMaskPayload builds the 6-byte CMD WRITE payload that programs
// the ticket-mask register for chipAddr: [chipAddr, reg, m0, m1, m2, m3],
// where each mask byte has its bits reversed individually.
//
// The original firmware's buffer literal for this command is 9 bytes, but
// only the first 6 are ever put on the wire (spec §9 Open Question); this
// builds the 6-byte form directly rather than truncating a larger one.
func DifficultyMaskPayload(chipAddr byte, difficulty uint64) []byte {
	m := LargestPowerOfTwoMinusOne(difficulty)

	mb := [4]byte{
		byte(m >> 24),
		byte(m >> 16),
		byte(m >> 8),
		byte(m),
	}
	for i := range mb {
		mb[i] = bits.Reverse8(mb[i])
	}

	return []byte{chipAddr, ticketMaskReg, mb[0], mb[1], mb[2], mb[3]}
}
