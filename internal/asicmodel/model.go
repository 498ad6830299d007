// Package asicmodel carries the per-ASIC-family constants and capability
// differences as a tagged variant, replacing the original firmware's
// function-pointer dispatch table (spec Design Notes).
package asicmodel

import "fmt"

// Model names an ASIC chip family found on bitaxe-class boards.
type Model string

const (
	BM1366 Model = "BM1366"
	BM1368 Model = "BM1368"
	BM1370 Model = "BM1370"
	BM1397 Model = "BM1397"
)

// Spec carries the constants that vary by chip family: core count, default
// job difficulty, default ASIC clock in MHz, and default job cadence in
// milliseconds. The per-chip address step used during address assignment
// (addr(i) = i * (256/N)) is not stored here; AddressStep computes it.
type Spec struct {
	Model             Model
	CoreCount         int
	DefaultDifficulty uint64
	DefaultFreqMHz    float64
	JobFrequencyMs    int
}

var specs = map[Model]Spec{
	BM1366: {Model: BM1366, CoreCount: 894, DefaultDifficulty: 256, DefaultFreqMHz: 485.0, JobFrequencyMs: 500},
	BM1368: {Model: BM1368, CoreCount: 702, DefaultDifficulty: 256, DefaultFreqMHz: 490.0, JobFrequencyMs: 500},
	BM1370: {Model: BM1370, CoreCount: 1276, DefaultDifficulty: 256, DefaultFreqMHz: 600.0, JobFrequencyMs: 500},
	BM1397: {Model: BM1397, CoreCount: 672, DefaultDifficulty: 256, DefaultFreqMHz: 425.0, JobFrequencyMs: 500},
}

// Lookup resolves a Model to its Spec, failing for anything outside the
// fixed {BM1366, BM1368, BM1370, BM1397} variant.
func Lookup(m Model) (Spec, error) {
	s, ok := specs[m]
	if !ok {
		return Spec{}, fmt.Errorf("asicmodel: unknown model %q", m)
	}
	return s, nil
}

// DefaultBaud returns the initial UART baud rate this core programs the
// chain to before the high-baud reprogram step (spec §6).
//
// The original firmware's BM1366_set_default_baud returns 115_749, while
// the divider it actually writes (DIV=26 into 25_000_000/((DIV+1)*8))
// computes to 115_740. Both values are real: 115_749 is what the firmware
// reports as the configured baud, 115_740 is what the hardware divider
// produces. This returns 115_749 — the value callers use to open the port
// — and callers should not be surprised if the measured rate is the
// slightly lower, divider-exact figure.
func (s Spec) DefaultBaud() int {
	return 115_749
}

// HighBaud is the baud rate negotiated after chain bring-up completes.
func (s Spec) HighBaud() int {
	return 1_000_000
}

// AddressStep returns the per-chip address increment for a chain of n
// chips: addr(i) = i * AddressStep(n).
func AddressStep(n int) int {
	if n <= 0 {
		return 0
	}
	return 256 / n
}
