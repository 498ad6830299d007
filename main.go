// Command esp-miner-matrix is the mining-pipeline core: it loads the
// on-disk config, brings up the ASIC chain, dials the Stratum pool, and
// runs the four-task Orchestrator until interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/404-Panda/ESP-Miner-Matrix/internal/asic"
	"github.com/404-Panda/ESP-Miner-Matrix/internal/asicmodel"
	"github.com/404-Panda/ESP-Miner-Matrix/internal/config"
	"github.com/404-Panda/ESP-Miner-Matrix/internal/jobbuilder"
	"github.com/404-Panda/ESP-Miner-Matrix/internal/metrics"
	"github.com/404-Panda/ESP-Miner-Matrix/internal/pipeline"
	"github.com/404-Panda/ESP-Miner-Matrix/internal/settings"
	"github.com/404-Panda/ESP-Miner-Matrix/internal/stratum"

	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	configPathFlag := flag.String("config", "miner-config.toml", "path to the TOML config file")
	logLevelFlag := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	log := logrus.New()
	if level, err := logrus.ParseLevel(*logLevelFlag); err == nil {
		log.SetLevel(level)
	}
	entry := logrus.NewEntry(log)

	if err := run(*configPathFlag, entry); err != nil {
		entry.WithError(err).Fatal("miner exited")
	}
}

func run(configPath string, log *logrus.Entry) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	store, err := settings.Open(cfg.SettingsDBPath)
	if err != nil {
		return fmt.Errorf("open settings store: %w", err)
	}
	defer store.Close()

	model, err := asicmodel.Lookup(asicmodel.Model(cfg.AsicModel))
	if err != nil {
		return fmt.Errorf("resolve asic model: %w", err)
	}

	port, err := asic.OpenSerialPort(cfg.SerialPort, model.DefaultBaud())
	if err != nil {
		return fmt.Errorf("open asic serial port: %w", err)
	}
	defer port.Close()

	driver := asic.NewDriver(port, model, log.WithField("component", "asic"))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// reset is the seam into the power-management collaborator that owns
	// the ASIC chain's hardware reset line (spec §1); out of scope here.
	reset := func(asserted bool) error {
		log.WithField("asserted", asserted).Debug("asic reset line (stub: no power-management collaborator wired)")
		return nil
	}

	versionMask := uint32(0xffffffff)
	n, err := driver.BringUp(ctx, reset, versionMask, cfg.TargetFrequencyMHz, model.DefaultDifficulty)
	if err != nil {
		return fmt.Errorf("asic bring-up: %w", err)
	}
	log.WithField("chain_length", n).Info("asic chain ready")

	client := stratum.NewClient(stratum.ClientParams{
		Primary:             stratum.Endpoint{Host: cfg.Primary.Host, Port: uint16(cfg.Primary.Port)},
		Fallback:            stratum.Endpoint{Host: cfg.Fallback.Host, Port: uint16(cfg.Fallback.Port)},
		User:                cfg.Primary.User,
		Pass:                cfg.Primary.Pass,
		UserAgent:           cfg.UserAgent,
		SuggestedDifficulty: cfg.SuggestedDifficulty,
	}, log.WithField("component", "stratum"))

	builder := jobbuilder.NewBuilder(jobbuilder.Config{
		SubrangeSize:        cfg.SubrangeSize,
		RandomStartingNonce: cfg.RandomStartingNonce,
		MaxMidstates:        cfg.MaxMidstates,
	})

	m := metrics.New("esp_miner_matrix", prometheus.DefaultRegisterer)

	pcfg := pipeline.DefaultConfig()
	pcfg.AsicJobFrequency = time.Duration(model.JobFrequencyMs) * time.Millisecond
	pcfg.PoolLabel = cfg.Primary.Host

	orch := pipeline.New(pcfg, client, builder, driver, m, store, log.WithField("component", "pipeline"))
	orch.Run(ctx)

	return nil
}
