package asic

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/404-Panda/ESP-Miner-Matrix/internal/asicmodel"
	"github.com/404-Panda/ESP-Miner-Matrix/internal/errkind"
	"github.com/404-Panda/ESP-Miner-Matrix/internal/wire"
)

// TimeoutThreshold is the number of consecutive serial read timeouts that
// escalate to AsicNotResponding (spec §4.2, §7).
const TimeoutThreshold = 3

// These are vars rather than consts so tests can shrink bring-up timing
// instead of waiting out real hardware delays.
var (
	resultReadTimeout   = 10 * time.Second
	enumerationQuiet    = 1 * time.Second
	resetAssertDuration = 100 * time.Millisecond
	freqSettleDelay     = 100 * time.Millisecond
)

// ResetFunc toggles the hardware reset line; held by the power-management
// collaborator, out of scope here (spec §1).
type ResetFunc func(asserted bool) error

// Driver drives one daisy-chained ASIC chain over a Port.
type Driver struct {
	port  Port
	model asicmodel.Spec
	reg   *Registry
	log   *logrus.Entry

	chainLength int
	freqCurrent float64

	// timeoutCounter is module-scoped (spec §9 Open Question): the
	// original firmware reset it inside the same call that incremented
	// it, making the threshold unreachable. Here it lives on the Driver
	// and only resets on a successful result frame.
	mu             sync.Mutex
	timeoutCounter int
	nextLocalJobID uint8
}

// NewDriver constructs a Driver bound to port for the given chip model.
func NewDriver(port Port, model asicmodel.Spec, log *logrus.Entry) *Driver {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Driver{
		port:  port,
		model: model,
		reg:   NewRegistry(),
		log:   log,
	}
}

// Registry exposes the ActiveJobRegistry so the Orchestrator can share it
// with the stratum/submit path.
func (d *Driver) Registry() *Registry {
	return d.reg
}

func (d *Driver) writeCmd(group wire.Group, cmd wire.Cmd, payload []byte) error {
	frame := wire.EncodeCmd(group, cmd, payload)
	_, err := d.port.Write(frame)
	return err
}

func (d *Driver) writeJob(group wire.Group, cmd wire.Cmd, payload []byte) error {
	frame := wire.EncodeJob(group, cmd, payload)
	_, err := d.port.Write(frame)
	return err
}

// BringUp performs the chain bring-up sequence of spec §4.2. reset toggles
// the hardware reset line; versionMask is the negotiated BIP-310 mask
// broadcast at the start of the sequence and again at its end, before the
// switch to the high baud rate.
func (d *Driver) BringUp(ctx context.Context, reset ResetFunc, versionMask uint32, targetMHz float64, difficulty uint64) (int, error) {
	if err := reset(true); err != nil {
		return 0, fmt.Errorf("asic: reset assert: %w", err)
	}
	time.Sleep(resetAssertDuration)
	if err := reset(false); err != nil {
		return 0, fmt.Errorf("asic: reset deassert: %w", err)
	}
	time.Sleep(resetAssertDuration)

	if err := d.port.SetBaud(d.model.DefaultBaud()); err != nil {
		return 0, fmt.Errorf("asic: set default baud: %w", err)
	}

	versionMaskPayload := versionMaskPayload(versionMask)
	for i := 0; i < 3; i++ {
		if err := d.writeCmd(wire.GroupAll, wire.CmdWrite, versionMaskPayload); err != nil {
			return 0, fmt.Errorf("asic: broadcast version mask: %w", err)
		}
	}

	n, err := d.enumerate(ctx)
	if err != nil {
		return 0, err
	}
	d.chainLength = n
	d.log.WithFields(logrus.Fields{"observed": n}).Info("asic chain enumerated")

	for _, p := range miscInitPayloads() {
		if err := d.writeCmd(wire.GroupAll, wire.CmdWrite, p); err != nil {
			return 0, fmt.Errorf("asic: broadcast misc init: %w", err)
		}
	}
	if err := d.writeCmd(wire.GroupAll, wire.CmdInactive, nil); err != nil {
		return 0, fmt.Errorf("asic: broadcast inactive: %w", err)
	}

	step := asicmodel.AddressStep(n)
	for i := 0; i < n; i++ {
		addr := byte(i * step)
		if err := d.writeCmd(wire.GroupSingle, wire.CmdSetAddress, []byte{addr}); err != nil {
			return 0, fmt.Errorf("asic: set address %d: %w", i, err)
		}
	}

	if err := d.writeCmd(wire.GroupAll, wire.CmdWrite, DifficultyMaskPayload(0x00, difficulty)); err != nil {
		return 0, fmt.Errorf("asic: broadcast difficulty mask: %w", err)
	}
	for _, p := range diagnosticGroupPayloads() {
		if err := d.writeCmd(wire.GroupAll, wire.CmdWrite, p); err != nil {
			return 0, fmt.Errorf("asic: broadcast diagnostics: %w", err)
		}
	}
	if err := d.writeCmd(wire.GroupAll, wire.CmdWrite, clockCountingPayload()); err != nil {
		return 0, fmt.Errorf("asic: broadcast clock counting: %w", err)
	}

	for i := 0; i < n; i++ {
		addr := byte(i * step)
		for _, p := range clockDomainPayloads() {
			if err := d.writeCmd(wire.GroupSingle, wire.CmdWrite, append([]byte{addr}, p...)); err != nil {
				return 0, fmt.Errorf("asic: chip %d clock domain init: %w", i, err)
			}
		}
		if err := d.writeCmd(wire.GroupSingle, wire.CmdWrite, append([]byte{addr}, miscChipPayload()...)); err != nil {
			return 0, fmt.Errorf("asic: chip %d misc init: %w", i, err)
		}
	}

	if err := d.RampFrequency(targetMHz); err != nil {
		return 0, fmt.Errorf("asic: frequency ramp: %w", err)
	}

	if err := d.writeCmd(wire.GroupAll, wire.CmdWrite, versionMaskPayload); err != nil {
		return 0, fmt.Errorf("asic: re-broadcast version mask: %w", err)
	}
	if err := d.port.SetBaud(d.model.HighBaud()); err != nil {
		return 0, fmt.Errorf("asic: set high baud: %w", err)
	}

	return n, nil
}

// enumerate broadcasts the enumeration probe and counts response frames
// arriving within a 1s per-frame quiet timeout (spec §4.2 step 2).
func (d *Driver) enumerate(ctx context.Context) (int, error) {
	if err := d.writeCmd(wire.GroupAll, wire.CmdRead, enumerationProbePayload()); err != nil {
		return 0, err
	}
	if err := d.port.SetReadTimeout(enumerationQuiet); err != nil {
		return 0, err
	}

	count := 0
	buf := make([]byte, wire.ResultFrameSize)
	for {
		select {
		case <-ctx.Done():
			return count, ctx.Err()
		default:
		}

		n, err := readFull(d.port, buf)
		if err != nil || n < len(buf) {
			break
		}
		count++
	}
	return count, nil
}

// RampFrequency walks from the current setpoint to targetMHz in 6.25 MHz
// steps with a 100ms settle between them (spec §4.2 "Ramp").
func (d *Driver) RampFrequency(targetMHz float64) error {
	for _, step := range RampSteps(d.freqCurrent, targetMHz) {
		pll := SearchPLL(step)
		if err := d.writeCmd(wire.GroupAll, wire.CmdWrite, pllPayload(pll)); err != nil {
			return err
		}
		d.freqCurrent = step
		time.Sleep(freqSettleDelay)
	}
	return nil
}

// nextJobID assigns local_job_id = (prev+8) mod 128 (spec §4.2 "Job send").
func (d *Driver) nextJobID() uint8 {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.nextLocalJobID
	d.nextLocalJobID = (d.nextLocalJobID + 8) % 128
	return id
}

// SendJob assigns a local_job_id, installs the job in the registry, and
// transmits it to the chain (spec §4.2 "Job send").
func (d *Driver) SendJob(job *Job) error {
	job.LocalJobID = d.nextJobID()
	if err := job.Validate(); err != nil {
		return err
	}

	d.reg.Install(job)

	payload := jobPayload(*job)
	if err := d.writeJob(wire.GroupSingle, wire.CmdWrite, payload); err != nil {
		return fmt.Errorf("asic: send job: %w", err)
	}
	return nil
}

// ReceiveOne reads exactly one 11-byte result frame with a 10s soft
// timeout, validates and decodes it, and resolves it against the registry
// (spec §4.2 "Result receive", §7 failure semantics).
func (d *Driver) ReceiveOne() (Result, error) {
	if err := d.port.SetReadTimeout(resultReadTimeout); err != nil {
		return Result{}, err
	}

	buf := make([]byte, wire.ResultFrameSize)
	n, err := readFull(d.port, buf)
	if err != nil {
		return Result{}, err
	}
	if n < len(buf) {
		d.mu.Lock()
		d.timeoutCounter++
		count := d.timeoutCounter
		d.mu.Unlock()

		if count >= TimeoutThreshold {
			d.log.WithField("consecutive_timeouts", count).
				Error("asic not responding")
			return Result{}, errkind.New(errkind.AsicNotResponding, fmt.Errorf("%d consecutive timeouts", count))
		}
		return Result{}, errkind.New(errkind.WireTimeout, fmt.Errorf("short read: %d/%d bytes", n, len(buf)))
	}

	frame, err := wire.DecodeResult(buf)
	if err != nil {
		// CRC/preamble mismatch: flush and resynchronize on the next
		// preamble rather than treating this as a hard failure.
		d.flushAndResync()
		return Result{}, errkind.New(errkind.WireCrcMismatch, err)
	}

	d.mu.Lock()
	d.timeoutCounter = 0
	d.mu.Unlock()

	res, err := DecodeResult(frame, d.reg)
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

// flushAndResync discards buffered bytes until the next preamble byte,
// per spec §4.1/§7.
func (d *Driver) flushAndResync() {
	one := make([]byte, 1)
	for i := 0; i < wire.ResultFrameSize; i++ {
		n, err := d.port.Read(one)
		if err != nil || n == 0 {
			return
		}
		if one[0] == 0xAA {
			return
		}
	}
}

func readFull(r Port, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			break
		}
	}
	return total, nil
}
