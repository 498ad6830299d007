package jobbuilder

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/remeh/sizedwaitgroup"

	"github.com/404-Panda/ESP-Miner-Matrix/internal/asic"
	"github.com/404-Panda/ESP-Miner-Matrix/internal/stratum"
)

// Config tunes the Builder's starting-nonce policy and midstate count (spec
// §4.4).
type Config struct {
	SubrangeSize        uint32
	RandomStartingNonce  bool
	// MaxMidstates is 1 (no version rolling) or 4.
	MaxMidstates int
}

// Builder converts a stratum.MiningNotification, together with negotiated
// SessionParams, into asic.Job values ready for the ASIC driver.
type Builder struct {
	cfg Config

	mu           sync.Mutex
	extraNonce2Counter uint32
}

// NewBuilder returns a Builder applying cfg's policies.
func NewBuilder(cfg Config) *Builder {
	if cfg.MaxMidstates != 1 && cfg.MaxMidstates != 4 {
		cfg.MaxMidstates = 1
	}
	return &Builder{cfg: cfg}
}

// nextExtraNonce2 hands out sequential extranonce2 values sized per the
// negotiated width, wrapping on overflow.
func (b *Builder) nextExtraNonce2(size uint) []byte {
	b.mu.Lock()
	v := b.extraNonce2Counter
	b.extraNonce2Counter++
	b.mu.Unlock()

	buf := make([]byte, size)
	full := make([]byte, 4)
	binary.BigEndian.PutUint32(full, v)
	if size >= 4 {
		copy(buf[size-4:], full)
	} else {
		copy(buf, full[4-size:])
	}
	return buf
}

// Build assembles one asic.Job from notification n under session params,
// stamping it with epoch for abandonment tracking (spec §4.4, §4.5).
func (b *Builder) Build(n stratum.MiningNotification, params stratum.SessionParams, epoch uint64) (*asic.Job, error) {
	coinb1, err := hex.DecodeString(n.Coinbase1)
	if err != nil {
		return nil, fmt.Errorf("jobbuilder: decode coinbase_1: %w", err)
	}
	coinb2, err := hex.DecodeString(n.Coinbase2)
	if err != nil {
		return nil, fmt.Errorf("jobbuilder: decode coinbase_2: %w", err)
	}

	branches := make([][]byte, 0, len(n.MerkleBranches))
	for _, mb := range n.MerkleBranches {
		b, err := hex.DecodeString(mb)
		if err != nil {
			return nil, fmt.Errorf("jobbuilder: decode merkle branch: %w", err)
		}
		branches = append(branches, b)
	}

	rawPrevHash, err := hex.DecodeString(n.PrevHash)
	if err != nil || len(rawPrevHash) != 32 {
		return nil, fmt.Errorf("jobbuilder: decode prev_block_hash: %w", err)
	}
	prevHashBE := restorePrevHashByteOrder(rawPrevHash)
	var prevHashBEArr [32]byte
	copy(prevHashBEArr[:], prevHashBE)
	prevHashLE := reverse32Copy(prevHashBEArr)

	baseVersion, err := parseHexU32LE(n.Version)
	if err != nil {
		return nil, fmt.Errorf("jobbuilder: decode version: %w", err)
	}
	nbits, err := parseHexU32LE(n.NBits)
	if err != nil {
		return nil, fmt.Errorf("jobbuilder: decode nbits: %w", err)
	}
	ntime, err := parseHexU32LE(n.NTime)
	if err != nil {
		return nil, fmt.Errorf("jobbuilder: decode ntime: %w", err)
	}

	extraNonce2Size := params.ExtraNonce2Size
	if extraNonce2Size == 0 {
		extraNonce2Size = 4
	}
	extraNonce2 := b.nextExtraNonce2(extraNonce2Size)

	coinbase := BuildCoinbase(coinb1, params.ExtraNonce1, extraNonce2, coinb2)
	merkleRootLE := MerkleRoot(coinbase, branches)
	merkleRootBE := reverse32Copy(merkleRootLE)

	numMidstates := 1
	if params.VersionRolling && params.VersionMask != 0 && b.cfg.MaxMidstates == 4 {
		numMidstates = 4
	}

	versions := make([]uint32, numMidstates)
	versions[0] = baseVersion
	for i := 1; i < numMidstates; i++ {
		versions[i] = IncrementBitmask(versions[i-1], params.VersionMask)
	}

	midstates, err := computeMidstates(versions, prevHashLE, merkleRootLE)
	if err != nil {
		return nil, err
	}

	job := &asic.Job{
		StartingNonce:     StartingNonce(b.cfg.RandomStartingNonce, b.cfg.SubrangeSize),
		NBits:             nbits,
		NTime:             ntime,
		Version:           baseVersion,
		MerkleRootBE:      merkleRootBE,
		PrevBlockHashBE:   prevHashBEArr,
		NumMidstates:      numMidstates,
		Epoch:             epoch,
		NotificationJobID: n.JobID,
		ExtraNonce2:       extraNonce2,
		PoolDifficulty:    params.PoolDifficulty,
	}
	for i, m := range midstates {
		job.Midstate[i] = m
	}
	return job, nil
}

// computeMidstates fans the midstate hashing for each candidate version out
// across a bounded worker pool (spec §4.4 "three additional midstates").
func computeMidstates(versions []uint32, prevHashLE, merkleRootLE [32]byte) ([][32]byte, error) {
	out := make([][32]byte, len(versions))
	errs := make([]error, len(versions))

	swg := sizedwaitgroup.New(4)
	for i, v := range versions {
		swg.Add()
		go func(i int, version uint32) {
			defer swg.Done()

			block64 := make([]byte, 64)
			putLE32(block64[0:4], version)
			copy(block64[4:36], prevHashLE[:])
			copy(block64[36:64], merkleRootLE[:28])

			m, err := Midstate(block64)
			out[i] = m
			errs[i] = err
		}(i, v)
	}
	swg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func parseHexU32LE(s string) (uint32, error) {
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != 4 {
		return 0, fmt.Errorf("expected 4 hex bytes, got %d", len(raw))
	}
	rev := []byte{raw[3], raw[2], raw[1], raw[0]}
	return binary.LittleEndian.Uint32(rev), nil
}

// restorePrevHashByteOrder undoes the pool's 4-byte-word swap on
// prev_block_hash.
func restorePrevHashByteOrder(prevHash []byte) []byte {
	restored := make([]byte, len(prevHash))
	for i := 0; i < len(prevHash); i += 4 {
		copy(restored[len(prevHash)-i-4:len(prevHash)-i], prevHash[i:i+4])
	}
	return restored
}
