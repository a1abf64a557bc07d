package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/networkservicemesh/dnsdiffuzz/internal/authns"
	"github.com/networkservicemesh/dnsdiffuzz/internal/differ"
	"github.com/networkservicemesh/dnsdiffuzz/internal/fuzzcase"
	"github.com/networkservicemesh/dnsdiffuzz/internal/harness"
)

// runSingle implements "fuzzer single SUITE FUZZEES...": replays a
// persisted suite against one or more resolver binaries and prints every
// pairwise divergence, for reproducing an archived diff (spec §6). The
// resolvers run one after another against one shared authoritative stack.
func runSingle(args []string) int {
	fs := flag.NewFlagSet("single", flag.ContinueOnError)
	keep := fs.Bool("keep", false, "leave every resolver process running after the suite completes")
	if err := fs.Parse(args); err != nil {
		return exitConfigError
	}
	rest := fs.Args()
	if len(rest) < 2 {
		log.Error("usage: fuzzer single SUITE FUZZEES...")
		return exitConfigError
	}
	suitePath, fuzzees := rest[0], rest[1:]

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
	for _, f := range fuzzees {
		if err := specs.Set(f); err != nil {
			log.WithError(err).Error("invalid fuzzee")
			return exitConfigError
		}
	}

	type resolverRun struct {
		spec    harness.ResolverSpec
		harness *harness.Harness
		results []*harness.Result
	}
	stack := authns.NewStack(nil)
	if err := stack.ListenAndServe(); err != nil {
		log.WithError(err).Error("failed to bind authoritative stack")
		return exitNoResolvers
	}
	runs := make([]*resolverRun, 0, len(specs.specs))
	for _, spec := range specs.specs {
		runs = append(runs, &resolverRun{spec: spec, harness: harness.New(spec, stack)})
	}
	if !*keep {
		defer func() {
			for _, r := range runs {
				r.harness.Close()
			}
		}()
	}

	ctx := context.Background()
	for _, r := range runs {
		for i, c := range suite.Cases {
			res, err := r.harness.Run(ctx, i, c)
			if err != nil {
				log.WithError(err).WithField("resolver", r.spec.ID).WithField("case", i).Warn("case run failed")
			}
			r.results = append(r.results, res)
		}
	}

	divergences := 0
	for ai := 0; ai < len(runs); ai++ {
		for bi := ai + 1; bi < len(runs); bi++ {
			a, b := runs[ai], runs[bi]
			for i := range suite.Cases {
				if i >= len(a.results) || i >= len(b.results) || a.results[i] == nil || b.results[i] == nil {
					continue
				}
				items, err := differ.Diff(a.results[i], b.results[i])
				if err != nil {
					continue
				}
				if !differ.HasDivergence(items) {
					continue
				}
				divergences++
				fmt.Printf("case %d: %s vs %s\n", i, a.spec.ID, b.spec.ID)
				for _, it := range items {
					fmt.Printf("  [%s] %s\n    a: %s\n    b: %s\n", it.Category, it.Path, it.ValueA, it.ValueB)
				}
			}
		}
	}
	log.WithField("divergences", divergences).Info("single run complete")
	return exitNormal
}
