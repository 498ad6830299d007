package stratum

import (
	"fmt"

	"github.com/404-Panda/ESP-Miner-Matrix/internal/errkind"
)

// MiningNotification is the parsed form of a mining.notify call (spec §3).
// Fields stay as hex strings at this layer; the Job Builder owns decoding
// and byte-order restoration, mirroring how the teacher's job.go kept
// parsing (jobParams) separate from binary assembly (job).
type MiningNotification struct {
	JobID          string
	PrevHash       string
	Coinbase1      string
	Coinbase2      string
	MerkleBranches []string
	Version        string
	NBits          string
	NTime          string
	CleanJobs      bool

	// Epoch is stamped by the caller (StratumReader) from the session's
	// abandonment generation at arrival time (spec §4.5).
	Epoch uint64
}

// parseNotify decodes mining.notify's 9 positional params (spec §4.3).
func parseNotify(params []interface{}) (MiningNotification, error) {
	var n MiningNotification

	if len(params) != 9 {
		return n, errkind.New(errkind.StratumProtocol,
			fmt.Errorf("mining.notify: expected 9 params, got %d", len(params)))
	}

	var ok bool

	if n.JobID, ok = params[0].(string); !ok {
		return n, badParam("job_id")
	}
	if n.PrevHash, ok = params[1].(string); !ok {
		return n, badParam("prev_block_hash")
	}
	if n.Coinbase1, ok = params[2].(string); !ok {
		return n, badParam("coinbase_1")
	}
	if n.Coinbase2, ok = params[3].(string); !ok {
		return n, badParam("coinbase_2")
	}

	branches, ok := params[4].([]interface{})
	if !ok {
		return n, badParam("merkle_branches")
	}
	for _, b := range branches {
		s, ok := b.(string)
		if !ok {
			return n, badParam("merkle_branch")
		}
		n.MerkleBranches = append(n.MerkleBranches, s)
	}

	if n.Version, ok = params[5].(string); !ok {
		return n, badParam("version")
	}
	if n.NBits, ok = params[6].(string); !ok {
		return n, badParam("nbits")
	}
	if n.NTime, ok = params[7].(string); !ok {
		return n, badParam("ntime")
	}
	if n.CleanJobs, ok = params[8].(bool); !ok {
		return n, badParam("clean_jobs")
	}

	return n, nil
}

func badParam(name string) error {
	return errkind.New(errkind.StratumProtocol, fmt.Errorf("mining.notify: failed to cast %s", name))
}
