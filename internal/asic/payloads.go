package asic

import "encoding/binary"

// These payload builders encode the fixed command sequences spec §4.2
// names by intent ("fixed enumeration probe", "two fixed misc WRITE
// frames", per-chip clock-domain init) rather than literal register maps —
// the exact register layout is chip-family firmware detail the settings
// collaborator's asic_model selects, not something this core re-derives.

const (
	regVersionMask  = 0x4C
	regMiscFirst    = 0x10
	regMiscSecond   = 0x18
	regEnumProbe    = 0x00
	regDiagnostic   = 0x2C
	regClockCount   = 0x3C
	regClockDomain  = 0x20
	regMiscChip     = 0x28
	regPLLClock     = 0x08
)

func versionMaskPayload(mask uint32) []byte {
	b := make([]byte, 6)
	b[0] = regVersionMask
	binary.BigEndian.PutUint32(b[1:5], mask)
	return b
}

func enumerationProbePayload() []byte {
	return []byte{regEnumProbe, 0x00}
}

func miscInitPayloads() [][]byte {
	return [][]byte{
		{regMiscFirst, 0x00, 0x00, 0x00},
		{regMiscSecond, 0x00, 0x00, 0x00},
	}
}

func diagnosticGroupPayloads() [][]byte {
	return [][]byte{
		{regDiagnostic, 0x00, 0x00, 0x00},
	}
}

func clockCountingPayload() []byte {
	return []byte{regClockCount, 0x00, 0x00, 0x00}
}

func clockDomainPayloads() [][]byte {
	return [][]byte{
		{regClockDomain, 0x00, 0x00},
		{regClockDomain, 0x01, 0x00},
		{regClockDomain, 0x02, 0x00},
	}
}

func miscChipPayload() []byte {
	return []byte{regMiscChip, 0x00, 0x00}
}

func pllPayload(p PLLParams) []byte {
	b := make([]byte, 5)
	b[0] = regPLLClock
	b[1] = byte(p.FB)
	b[2] = byte(p.Ref)<<4 | byte(p.Post1)
	b[3] = byte(p.Post2)
	if p.HighVco {
		b[3] |= 0x80
	}
	return b
}

// jobPayload serializes a Job into the JOB frame payload: local_job_id,
// num_midstates, starting_nonce, version, nbits, ntime, prev_block_hash_be,
// merkle_root_be, and the active midstates in order.
func jobPayload(j Job) []byte {
	payload := make([]byte, 0, 1+1+4+4+4+4+32+32+j.NumMidstates*32)

	payload = append(payload, j.LocalJobID, byte(j.NumMidstates))

	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], j.StartingNonce)
	payload = append(payload, tmp[:]...)
	binary.BigEndian.PutUint32(tmp[:], j.Version)
	payload = append(payload, tmp[:]...)
	binary.BigEndian.PutUint32(tmp[:], j.NBits)
	payload = append(payload, tmp[:]...)
	binary.BigEndian.PutUint32(tmp[:], j.NTime)
	payload = append(payload, tmp[:]...)

	payload = append(payload, j.PrevBlockHashBE[:]...)
	payload = append(payload, j.MerkleRootBE[:]...)

	for i := 0; i < j.NumMidstates; i++ {
		payload = append(payload, j.Midstate[i][:]...)
	}

	return payload
}
