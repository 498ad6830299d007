// Package pipeline wires the Stratum client, Job Builder and ASIC driver
// into the four cooperating tasks of spec §4.5: StratumReader, JobCreator,
// AsicSender and AsicReceiver, connected by two bounded queues and the
// ASIC driver's ActiveJobRegistry, with epoch-based work abandonment and
// share accounting.
package pipeline

import (
	"context"
	"encoding/hex"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/404-Panda/ESP-Miner-Matrix/internal/asic"
	"github.com/404-Panda/ESP-Miner-Matrix/internal/errkind"
	"github.com/404-Panda/ESP-Miner-Matrix/internal/jobbuilder"
	"github.com/404-Panda/ESP-Miner-Matrix/internal/metrics"
	"github.com/404-Panda/ESP-Miner-Matrix/internal/settings"
	"github.com/404-Panda/ESP-Miner-Matrix/internal/stratum"
)

// Config tunes queue capacities and task cadence (spec §5).
type Config struct {
	// NotifyQueueCapacity bounds the notify_queue between StratumReader
	// and JobCreator. Spec §5 names 4 as a representative size.
	NotifyQueueCapacity int

	// AsicJobQueueCapacity bounds asic_job_queue, tuned to roughly one
	// notification's worth of jobs.
	AsicJobQueueCapacity int

	// AsicJobFrequency is the cadence JobCreator manufactures a fresh
	// AsicJob from the current notification (spec §4.5
	// asic_job_frequency_ms).
	AsicJobFrequency time.Duration

	// ReconnectBackoff is the delay between a failed Client.Serve call
	// and the next dial attempt.
	ReconnectBackoff time.Duration

	// PoolLabel tags metrics emitted for this pool connection.
	PoolLabel string
}

// DefaultConfig returns the spec's representative queue sizes and a
// 500ms job cadence.
func DefaultConfig() Config {
	return Config{
		NotifyQueueCapacity:  4,
		AsicJobQueueCapacity: 8,
		AsicJobFrequency:     500 * time.Millisecond,
		ReconnectBackoff:     3 * time.Second,
		PoolLabel:            "primary",
	}
}

// Orchestrator runs the four pipeline tasks over a shared Stratum client,
// Job Builder and ASIC driver (spec §4.5).
type Orchestrator struct {
	cfg     Config
	client  *stratum.Client
	builder *jobbuilder.Builder
	driver  *asic.Driver
	metrics *metrics.Miner
	store   settings.Store
	log     *logrus.Entry

	// epoch is the abandonment generation (spec §4.5, §5): bumped on
	// clean_jobs or a pool reconnect. Results and jobs stamped with an
	// older epoch are discarded before reaching test_nonce or the wire.
	epoch uint64

	notifyQueue  chan stratum.MiningNotification
	asicJobQueue chan *asic.Job

	currentMu    sync.Mutex
	current      *stratum.MiningNotification
	currentEpoch uint64

	hashMu         sync.Mutex
	windowStart    time.Time
	windowDiffSum  float64
}

// New constructs an Orchestrator. cfg's zero value is not ready to use;
// pass DefaultConfig() or override its fields.
func New(cfg Config, client *stratum.Client, builder *jobbuilder.Builder, driver *asic.Driver, m *metrics.Miner, store settings.Store, log *logrus.Entry) *Orchestrator {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if cfg.NotifyQueueCapacity <= 0 {
		cfg.NotifyQueueCapacity = 4
	}
	if cfg.AsicJobQueueCapacity <= 0 {
		cfg.AsicJobQueueCapacity = 8
	}
	return &Orchestrator{
		cfg:          cfg,
		client:       client,
		builder:      builder,
		driver:       driver,
		metrics:      m,
		store:        store,
		log:          log,
		notifyQueue:  make(chan stratum.MiningNotification, cfg.NotifyQueueCapacity),
		asicJobQueue: make(chan *asic.Job, cfg.AsicJobQueueCapacity),
		windowStart:  time.Now(),
	}
}

// Run starts the four tasks, plus the dial loop that keeps the Stratum
// session up, and blocks until ctx is cancelled. Each task
// is a long-lived loop; cancellation is observed via ctx, not a polled
// flag (spec §9 Design Notes "task cancellation").
func (o *Orchestrator) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(5)

	go func() { defer wg.Done(); o.dialLoop(ctx) }()
	go func() { defer wg.Done(); o.stratumReaderLoop(ctx) }()
	go func() { defer wg.Done(); o.jobCreatorLoop(ctx) }()
	go func() { defer wg.Done(); o.asicSenderLoop(ctx) }()
	go func() { defer wg.Done(); o.asicReceiverLoop(ctx) }()

	wg.Wait()
}

func (o *Orchestrator) bumpEpoch() uint64 {
	e := atomic.AddUint64(&o.epoch, 1)
	o.driver.Registry().InvalidateEpochBefore(e)
	return e
}

func (o *Orchestrator) currentEpochValue() uint64 {
	return atomic.LoadUint64(&o.epoch)
}

// dialLoop keeps the Stratum connection up, reconnecting with a fixed
// backoff on failure. Every reconnect bumps the abandonment epoch — a
// torn-down session cannot be trusted to still own the ASIC's in-flight
// jobs (spec §4.3, §4.5).
func (o *Orchestrator) dialLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		err := o.client.Serve(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			var kerr *errkind.Error
			if asErrkind(err, &kerr) && kerr.Kind == errkind.StratumAuthFailed {
				o.log.WithError(err).Error("stratum authorize rejected, halting mining loop")
				return
			}
			o.log.WithError(err).Warn("stratum session ended, reconnecting")
		}
		o.metrics.RecordReconnect()

		select {
		case <-ctx.Done():
			return
		case <-time.After(o.cfg.ReconnectBackoff):
		}
	}
}

func asErrkind(err error, target **errkind.Error) bool {
	for err != nil {
		if k, ok := err.(*errkind.Error); ok {
			*target = k
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// stratumReaderLoop drains the Client's parsed notifications and submit
// results, applying the notify_queue's bounded drop-oldest/latest-wins
// semantics and share-accounting side effects (spec §4.5 "StratumReader").
func (o *Orchestrator) stratumReaderLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case n := <-o.client.Notifications():
			n.Epoch = o.currentEpochValue()
			o.enqueueNotify(n)

		case <-o.client.Reconnects():
			o.bumpEpoch()
			o.drainAsicJobQueue()
			o.recordNewSession()

		case res := <-o.client.SubmitResults():
			if res.Ok {
				o.metrics.RecordShare(o.cfg.PoolLabel, true, "", 0)
			} else {
				reason := res.Reason
				if reason == "" {
					reason = "rejected"
				}
				o.metrics.RecordShare(o.cfg.PoolLabel, false, reason, 0)
			}
		}
	}
}

// enqueueNotify pushes n onto notify_queue. clean_jobs drains the queue
// first so every prior, now-abandoned notification is superseded at once
// (spec §4.3 "Notification contract", §4.5). A non-clean_jobs overflow
// drops the oldest entry rather than blocking the reader — the queue is
// sized for flow control, not backpressure on the socket.
func (o *Orchestrator) enqueueNotify(n stratum.MiningNotification) {
	if n.CleanJobs {
		o.drainNotifyQueue()
		o.bumpEpoch()
		n.Epoch = o.currentEpochValue()
	}

	select {
	case o.notifyQueue <- n:
		return
	default:
	}
	select {
	case <-o.notifyQueue:
	default:
	}
	select {
	case o.notifyQueue <- n:
	default:
	}
}

// jobCreatorLoop owns the "current notification" — the most recent
// arrival from notify_queue — and manufactures a fresh AsicJob from it at
// cfg.AsicJobFrequency, choosing a new extranonce_2 each time (spec §4.4,
// §4.5 "JobCreator").
func (o *Orchestrator) jobCreatorLoop(ctx context.Context) {
	ticker := time.NewTicker(o.cfg.AsicJobFrequency)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case n := <-o.notifyQueue:
			if n.CleanJobs {
				o.drainAsicJobQueue()
			}
			nCopy := n
			o.currentMu.Lock()
			o.current = &nCopy
			o.currentEpoch = n.Epoch
			o.currentMu.Unlock()

		case <-ticker.C:
			o.currentMu.Lock()
			n := o.current
			epoch := o.currentEpoch
			o.currentMu.Unlock()
			if n == nil {
				continue
			}

			job, err := o.builder.Build(*n, o.client.Session().Params(), epoch)
			if err != nil {
				o.log.WithError(err).Error("job builder failed")
				continue
			}

			select {
			case o.asicJobQueue <- job:
			default:
				o.log.Warn("asic_job_queue full, dropping oldest")
				select {
				case <-o.asicJobQueue:
				default:
				}
				select {
				case o.asicJobQueue <- job:
				default:
				}
			}
		}
	}
}

// recordNewSession resets the best-session-difficulty counter and persists
// which pool endpoint just came up, once per confirmed Stratum session
// (spec §4.2 "best_session_difficulty", §6 "pool connection state").
func (o *Orchestrator) recordNewSession() {
	if o.store == nil {
		return
	}
	if err := settings.ResetSessionDifficulty(o.store); err != nil {
		o.log.WithError(err).Warn("settings: reset session difficulty failed")
	}
	endpoint, usedFallback := o.client.CurrentEndpoint()
	if err := settings.RecordPoolConnection(o.store, endpoint.Host, endpoint.Port, usedFallback); err != nil {
		o.log.WithError(err).Warn("settings: record pool connection failed")
	}
}

func (o *Orchestrator) drainNotifyQueue() {
	for {
		select {
		case <-o.notifyQueue:
		default:
			return
		}
	}
}

func (o *Orchestrator) drainAsicJobQueue() {
	for {
		select {
		case <-o.asicJobQueue:
		default:
			return
		}
	}
}

// asicSenderLoop dequeues AsicJobs, installing and transmitting each over
// the wire (spec §4.2 "Job send", §4.5 "AsicSender").
func (o *Orchestrator) asicSenderLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-o.asicJobQueue:
			if job.Epoch < o.currentEpochValue() {
				// Built under an abandoned epoch: never reaches the wire.
				continue
			}
			if err := o.driver.SendJob(job); err != nil {
				o.log.WithError(err).Error("asic: send job failed")
			}
		}
	}
}

// asicReceiverLoop decodes result frames, discards stale-epoch results,
// validates nonces at pool/network difficulty, submits qualifying shares,
// and tracks best-session/best-all-time difficulty and rolling hashrate
// (spec §4.4 "test_nonce", §4.5 "AsicReceiver"). Hashrate history is owned
// exclusively by this task (spec §5).
func (o *Orchestrator) asicReceiverLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		res, err := o.driver.ReceiveOne()
		if err != nil {
			o.logReceiveError(err)
			continue
		}

		if res.Epoch < o.currentEpochValue() {
			// Stale-epoch result: a clean_jobs barrier fired after this
			// job was dispatched. Discarded before test_nonce (spec §5
			// "clean_jobs is a memory-order barrier").
			continue
		}

		shareDiff, shareValid, blockFound := jobbuilder.TestNonce(
			res.PrevBlockHashBE, res.MerkleRootBE, res.NBits, res.NTime,
			res.RolledVersion, res.Nonce, res.PoolDifficulty)

		o.recordHashContribution(shareDiff)

		o.log.WithFields(logrus.Fields{
			"job_id":         res.JobIDHi,
			"core_id":        res.CoreID,
			"small_core":     res.SmallCore,
			"nonce":          res.Nonce,
			"rolled_version": res.RolledVersion,
			"share_diff":     shareDiff,
		}).Info("asic result")

		if !shareValid {
			continue
		}

		o.metrics.SetBestDifficultyIfHigher(shareDiff)
		if o.store != nil {
			if err := settings.RecordShareDifficulty(o.store, shareDiff); err != nil {
				o.log.WithError(err).Warn("settings: persist best difficulty failed")
			}
		}

		if blockFound {
			o.metrics.RecordBlockFound()
			o.log.WithField("share_diff", shareDiff).Warn("block found")
		}

		extraNonce2Hex := hex.EncodeToString(res.ExtraNonce2)
		ntimeHex := hexU32BE(res.NTime)
		nonceHex := hexU32BE(res.Nonce)
		versionHex := hexU32BE(res.RolledVersion)

		if err := o.client.Submit(res.NotificationJobID, extraNonce2Hex, ntimeHex, nonceHex, versionHex); err != nil {
			o.log.WithError(err).Error("stratum: submit failed")
		}
	}
}

func (o *Orchestrator) logReceiveError(err error) {
	var kerr *errkind.Error
	if !asErrkind(err, &kerr) {
		o.log.WithError(err).Error("asic: receive error")
		return
	}
	switch kerr.Kind {
	case errkind.WireTimeout:
		// Individual timeouts are routine; the Driver escalates to
		// AsicNotResponding after TimeoutThreshold consecutive ones.
	case errkind.AsicNotResponding:
		o.log.WithError(err).Error("asic chain not responding")
	case errkind.WireCrcMismatch:
		o.log.WithError(err).Debug("asic: result frame crc mismatch, resynchronizing")
	default:
		o.log.WithError(err).Error("asic: receive error")
	}
}

// hashrateLogInterval is how often the rolling hashrate estimate is
// recomputed and published (spec §6 "rolling hashrate").
const hashrateLogInterval = 10 * time.Second

// recordHashContribution accumulates shareDiff into the current window
// and, once hashrateLogInterval has elapsed, converts the windowed
// difficulty sum into an estimated hashrate using the standard
// difficulty-to-hashes relation (difficulty * 2^32 hashes per share),
// mirroring the teacher's own periodic-ticker metricsLogger shape.
func (o *Orchestrator) recordHashContribution(shareDiff float64) {
	o.hashMu.Lock()
	defer o.hashMu.Unlock()

	o.windowDiffSum += shareDiff
	elapsed := time.Since(o.windowStart)
	if elapsed < hashrateLogInterval {
		return
	}

	const hashesPerDiff1 = 4294967296.0 // 2^32
	hashes := o.windowDiffSum * hashesPerDiff1
	ghs := hashes / elapsed.Seconds() / 1e9
	o.metrics.SetHashrate(ghs)

	o.windowDiffSum = 0
	o.windowStart = time.Now()
}

func hexU32BE(v uint32) string {
	b := []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
	return hex.EncodeToString(b)
}
