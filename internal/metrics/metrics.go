// Package metrics exposes the miner's Prometheus instrumentation: shares
// accepted/rejected by reject reason, blocks found, and a rolling hashrate
// gauge (spec §4.5 share accounting, ambient-stack scope). Registration
// only — no HTTP exposition surface is built here.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Miner holds all miner-related Prometheus metrics, registered once on
// construction.
type Miner struct {
	SharesAccepted *prometheus.CounterVec
	SharesRejected *prometheus.CounterVec
	BlocksFound    prometheus.Counter
	HashrateGHs    prometheus.Gauge
	BestDifficulty prometheus.Gauge
	AsicFrequency  *prometheus.GaugeVec
	PoolReconnects prometheus.Counter

	mu        sync.Mutex
	bestSoFar float64
}

// New creates and registers a Miner's metrics on reg under namespace.
func New(namespace string, reg prometheus.Registerer) *Miner {
	m := &Miner{
		SharesAccepted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "stratum",
				Name:      "shares_accepted_total",
				Help:      "Total number of shares accepted by the pool.",
			},
			[]string{"pool"},
		),
		SharesRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "stratum",
				Name:      "shares_rejected_total",
				Help:      "Total number of shares rejected by the pool, by reason.",
			},
			[]string{"pool", "reason"},
		),
		BlocksFound: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "stratum",
				Name:      "blocks_found_total",
				Help:      "Total number of shares meeting full network difficulty.",
			},
		),
		HashrateGHs: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "asic",
				Name:      "hashrate_ghs",
				Help:      "Rolling estimated hashrate in GH/s.",
			},
		),
		BestDifficulty: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "stratum",
				Name:      "best_share_difficulty",
				Help:      "Highest share difficulty seen this session.",
			},
		),
		AsicFrequency: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "asic",
				Name:      "frequency_mhz",
				Help:      "Configured PLL frequency per chip, in MHz.",
			},
			[]string{"chip_address"},
		),
		PoolReconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "stratum",
				Name:      "pool_reconnects_total",
				Help:      "Total number of pool (re)connections, including fallback failover.",
			},
		),
	}

	reg.MustRegister(
		m.SharesAccepted,
		m.SharesRejected,
		m.BlocksFound,
		m.HashrateGHs,
		m.BestDifficulty,
		m.AsicFrequency,
		m.PoolReconnects,
	)

	return m
}

// RecordShare updates accept/reject counters and the best-difficulty gauge
// for one submitted share.
func (m *Miner) RecordShare(pool string, accepted bool, reason string, shareDiff float64) {
	if accepted {
		m.SharesAccepted.WithLabelValues(pool).Inc()
	} else {
		m.SharesRejected.WithLabelValues(pool, reason).Inc()
	}
	m.mu.Lock()
	if shareDiff > m.bestSoFar {
		m.bestSoFar = shareDiff
		m.BestDifficulty.Set(shareDiff)
	}
	m.mu.Unlock()
}

// SetBestDifficultyIfHigher updates the best-share-difficulty gauge when
// diff improves on the highest value seen this session. Unlike RecordShare,
// this is called from the ASIC-result path directly, since a submit
// response correlates only to a job id, not to the specific share that
// produced it (spec §4.5 "best_session_difficulty").
func (m *Miner) SetBestDifficultyIfHigher(diff float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if diff > m.bestSoFar {
		m.bestSoFar = diff
		m.BestDifficulty.Set(diff)
	}
}

// RecordBlockFound increments the block-found counter.
func (m *Miner) RecordBlockFound() {
	m.BlocksFound.Inc()
}

// SetHashrate updates the rolling hashrate gauge.
func (m *Miner) SetHashrate(ghs float64) {
	m.HashrateGHs.Set(ghs)
}

// SetChipFrequency records the configured PLL frequency for one chip
// address.
func (m *Miner) SetChipFrequency(chipAddress int, mhz float64) {
	m.AsicFrequency.WithLabelValues(itoa(chipAddress)).Set(mhz)
}

// RecordReconnect increments the pool-reconnect counter.
func (m *Miner) RecordReconnect() {
	m.PoolReconnects.Inc()
}

func itoa(v int) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var buf [12]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
