package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/networkservicemesh/dnsdiffuzz/internal/authns"
	"github.com/networkservicemesh/dnsdiffuzz/internal/fuzzcase"
	"github.com/networkservicemesh/dnsdiffuzz/internal/harness"
)

// runSpawn implements "fuzzer spawn SUITE FUZZEE": brings up one
// resolver's sandbox, runs the suite's first case to force it to connect,
// then blocks until interrupted, leaving the process and its
// authoritative stack live for interactive inspection (spec §6).
func runSpawn(args []string) int {
	fs := flag.NewFlagSet("spawn", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return exitConfigError
	}
	rest := fs.Args()
	if len(rest) != 2 {
		log.Error("usage: fuzzer spawn SUITE FUZZEE")
		return exitConfigError
	}
	suitePath, fuzzee := rest[0], rest[1]

	raw, err := os.ReadFile(suitePath)
	if err != nil {
		log.WithError(err).Error("failed to read suite")
		return exitIOError
	}
	suite, err := fuzzcase.Decode(raw)
	if err != nil {
		log.WithError(err).Error("failed to decode suite")
		return exitConfigError
	}

	var specs resolverListFlag
	if err := specs.Set(fuzzee); err != nil {
		log.WithError(err).Error("invalid fuzzee")
		return exitConfigError
	}
	spec := specs.specs[0]

	stack := authns.NewStack(nil)
	if err := stack.ListenAndServe(); err != nil {
		log.WithError(err).Error("failed to bind authoritative stack")
		return exitNoResolvers
	}
	defer stack.Shutdown()

	h := harness.New(spec, stack)
	defer h.Close()

	if len(suite.Cases) > 0 {
		if _, err := h.Run(context.Background(), 0, suite.Cases[0]); err != nil {
			log.WithError(err).Warn("initial case run reported a failure; resolver may still be usable")
		}
	}

	log.WithField("resolver", spec.ID).WithField("control_addr", spec.ControlAddr).
		Info("resolver spawned, press Ctrl-C to tear down")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	return exitNormal
}
