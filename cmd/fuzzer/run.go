package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/networkservicemesh/dnsdiffuzz/internal/config"
	"github.com/networkservicemesh/dnsdiffuzz/internal/corpus"
	"github.com/networkservicemesh/dnsdiffuzz/internal/differ"
	"github.com/networkservicemesh/dnsdiffuzz/internal/harness"
	"github.com/networkservicemesh/dnsdiffuzz/internal/metrics"
	"github.com/networkservicemesh/dnsdiffuzz/internal/scheduler"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// runLoop implements the default "fuzzer" invocation: the main fuzzing
// loop, running rounds until interrupted (spec §6).
func runLoop(args []string) int {
	fs := flag.NewFlagSet("fuzzer", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to the authoritative config TOML file (optional)")
	dumpDiffs := fs.String("dump-diffs", "", "directory to persist diffs and stats under (empty disables persistence)")
	resetState := fs.Bool("reset-state", false, "wipe dump-diffs's corpus/coverage/diffs/stats before starting")
	batchSize := fs.Int("batch-size", 8, "initial number of cases per round")
	seed := fs.Uint64("seed", 1, "PRNG seed for case generation and mutation")
	metricsAddr := fs.String("metrics-addr", "", "address to serve Prometheus metrics on (empty disables it)")
	var resolvers resolverListFlag
	fs.Var(&resolvers, "resolvers", "id=path[,arg,...], repeatable, one per resolver under test")
	if err := fs.Parse(args); err != nil {
		return exitConfigError
	}

	if len(resolvers.specs) == 0 {
		log.Error("no --resolvers given")
		return exitNoResolvers
	}

	var auths []config.AuthConfig
	if *configPath != "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			log.WithError(err).Error("failed to load config")
			return exitConfigError
		}
		logrus.SetLevel(cfg.Common.LogLevel.Logrus())
		auths = cfg.Auth
	}

	if *dumpDiffs != "" && *resetState {
		if err := resetDumpState(*dumpDiffs); err != nil {
			log.WithError(err).Error("failed to reset persisted state")
			return exitIOError
		}
	}

	var archiver *scheduler.Archiver
	if *dumpDiffs != "" {
		a, err := scheduler.NewArchiver(*dumpDiffs)
		if err != nil {
			log.WithError(err).Error("failed to prepare dump-diffs directory")
			return exitIOError
		}
		archiver = a
	}

	if *metricsAddr != "" {
		serveMetrics(*metricsAddr)
	}

	sched := scheduler.New(resolvers.specs, *batchSize, *seed, archiver, auths)
	defer sched.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	for ctx.Err() == nil {
		roundStart := time.Now()
		stats, err := sched.RunRound(ctx)
		if err != nil {
			if errors.Is(err, scheduler.ErrNoResolvers) {
				log.Error("every resolver has been disabled, stopping")
				return exitNoResolvers
			}
			log.WithError(err).Warn("round failed")
			time.Sleep(time.Second)
			continue
		}
		log.WithField("cases", stats.CasesRun).
			WithField("new_corpus_hits", stats.NewCorpusHits).
			WithField("divergences", stats.Divergences).
			WithField("duration", stats.Duration).
			Info("round complete")

		if *dumpDiffs != "" {
			if err := scheduler.WriteStats(*dumpDiffs, scheduler.RecordOf(roundStart, stats)); err != nil {
				log.WithError(err).Warn("failed to persist round stats")
			}
		}
	}
	return exitNormal
}

func resetDumpState(dir string) error {
	for _, sub := range []string{"diffs", "stats", "corpus", "coverage"} {
		if err := os.RemoveAll(filepath.Join(dir, sub)); err != nil {
			return err
		}
	}
	return nil
}

func serveMetrics(addr string) {
	metrics.MustRegisterAll(prometheus.DefaultRegisterer,
		harness.QueryCount, harness.RunDuration, harness.ResolverDisabledCount,
		differ.DivergenceCount, corpus.NoveltyScore, scheduler.RoundDuration,
	)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.WithError(err).Warn("metrics server stopped")
		}
	}()
}
