package jobbuilder

import "math/rand"

// StartingNonce returns 0 under the simple policy, or a uniformly chosen
// subrange origin aligned to subrangeSize under the random policy (spec
// §4.4 "Starting nonce policy").
func StartingNonce(random bool, subrangeSize uint32) uint32 {
	if !random || subrangeSize == 0 {
		return 0
	}
	numSubranges := (uint64(0xffffffff) + 1) / uint64(subrangeSize)
	if numSubranges == 0 {
		return 0
	}
	idx := uint32(rand.Int63n(int64(numSubranges)))
	return idx * subrangeSize
}
