package asic

import "errors"

var (
	errInvalidLocalJobID    = errors.New("asic: local_job_id must be a multiple of 8 in [0,128)")
	errInvalidMidstateCount = errors.New("asic: num_midstates must be 1 or 4")
	errSlotNotValid         = errors.New("asic: result references an invalid or stale job slot")
)
