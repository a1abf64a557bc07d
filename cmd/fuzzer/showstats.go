package main

import (
	"flag"
	"fmt"
	"time"

	"github.com/networkservicemesh/dnsdiffuzz/internal/scheduler"
)

// runShowStats implements "fuzzer show-stats PATH": renders every
// persisted stats/<timestamp>.json record under PATH (spec §6).
func runShowStats(args []string) int {
	fs := flag.NewFlagSet("show-stats", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return exitConfigError
	}
	rest := fs.Args()
	if len(rest) != 1 {
		log.Error("usage: fuzzer show-stats PATH")
		return exitConfigError
	}

	records, err := scheduler.ReadStats(rest[0])
	if err != nil {
		log.WithError(err).Error("failed to read stats")
		return exitIOError
	}
	if len(records) == 0 {
		fmt.Println("no stats recorded")
		return exitNormal
	}

	var totalCases, totalCorpusHits, totalDivergences int
	fmt.Printf("%-20s %10s %10s %12s %12s\n", "timestamp", "cases", "corpus+", "divergences", "duration_ms")
	for _, r := range records {
		ts := time.Unix(r.Timestamp, 0).UTC().Format(time.RFC3339)
		fmt.Printf("%-20s %10d %10d %12d %12d\n", ts, r.CasesRun, r.NewCorpusHits, r.Divergences, r.DurationMS)
		totalCases += r.CasesRun
		totalCorpusHits += r.NewCorpusHits
		totalDivergences += r.Divergences
	}
	fmt.Printf("\n%d rounds, %d cases, %d corpus hits, %d divergences\n",
		len(records), totalCases, totalCorpusHits, totalDivergences)
	return exitNormal
}
