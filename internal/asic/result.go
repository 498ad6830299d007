package asic

import (
	"fmt"
	"math/bits"
	"time"

	"github.com/404-Panda/ESP-Miner-Matrix/internal/wire"
)

// Result is a decoded, registry-matched ASIC result (spec §4.2 "Result
// receive").
type Result struct {
	JobIDHi       uint8
	SmallCore     uint8
	CoreID        uint8
	Nonce         uint32
	RolledVersion uint32

	NotificationJobID string
	ExtraNonce2       []byte
	NTime             uint32
	NBits             uint32
	PrevBlockHashBE   [32]byte
	MerkleRootBE      [32]byte
	PoolDifficulty    float64
	Epoch             uint64

	ReceivedAt time.Time
}

// DecodeResult turns a raw wire.ResultFrame into a Result by consulting the
// registry for the originating job's base version and context. It returns
// errSlotNotValid if the frame's job id has no valid, installed job.
func DecodeResult(frame wire.ResultFrame, reg *Registry) (Result, error) {
	jobIDHi := frame.JobID & 0xF8
	smallCore := frame.JobID & 0x07

	job, ok := reg.Lookup(jobIDHi)
	if !ok {
		return Result{}, fmt.Errorf("%w: job id %#x", errSlotNotValid, jobIDHi)
	}

	coreID := uint8((bits.Reverse32(frame.Nonce) >> 25) & 0x7F)

	// The wire version word only carries 13 significant bits (the chip's
	// rolling counter); the top 3 bits are reserved and always zero. Reverse
	// the full 16 bits, then shift out the 3 reserved bits before placing the
	// remaining 13 into the general-purpose mask position (spec §4.2 result
	// receive, §8 scenario 4: raw 0x0001 -> rolled_version contribution
	// 0x02000000).
	versionBits := (uint32(bits.Reverse16(frame.Version)) >> 3) << 13
	rolledVersion := job.Version | versionBits

	return Result{
		JobIDHi:            jobIDHi,
		SmallCore:          smallCore,
		CoreID:             coreID,
		Nonce:              frame.Nonce,
		RolledVersion:      rolledVersion,
		NotificationJobID:  job.NotificationJobID,
		ExtraNonce2:        job.ExtraNonce2,
		NTime:              job.NTime,
		NBits:              job.NBits,
		PrevBlockHashBE:    job.PrevBlockHashBE,
		MerkleRootBE:       job.MerkleRootBE,
		PoolDifficulty:     job.PoolDifficulty,
		Epoch:              job.Epoch,
		ReceivedAt:         time.Now(),
	}, nil
}
