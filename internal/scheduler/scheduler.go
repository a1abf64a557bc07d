// Package scheduler drives the fuzzing round loop of spec §4.6: batch
// assembly, parallel dispatch to every enabled resolver, corpus/coverage
// feedback, and pairwise differ dispatch. Grounded on the teacher's
// fanout.go ServeDNS loop, generalized from "race N upstream clients for
// one client datagram" to "run N resolvers through one fuzz suite".
package scheduler

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/networkservicemesh/dnsdiffuzz/internal/config"
	"github.com/networkservicemesh/dnsdiffuzz/internal/corpus"
	"github.com/networkservicemesh/dnsdiffuzz/internal/coverage"
	"github.com/networkservicemesh/dnsdiffuzz/internal/differ"
	"github.com/networkservicemesh/dnsdiffuzz/internal/dnsutil"
	"github.com/networkservicemesh/dnsdiffuzz/internal/fuzzcase"
	"github.com/networkservicemesh/dnsdiffuzz/internal/harness"
	"github.com/networkservicemesh/dnsdiffuzz/internal/mutate"
	"github.com/networkservicemesh/dnsdiffuzz/internal/selector"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

var log = dnsutil.NewLogger("scheduler")

// pNew is the probability a round slot is a freshly generated case
// rather than a mutated parent (spec §4.6 step 2).
const pNew = 0.2

// pSplice is the probability a non-fresh slot grafts a section from a
// second corpus parent instead of running the single-case catalog (spec
// §4.6: Splice is part of "the catalog below" alongside the in-place
// mutations, not a rare special case).
const pSplice = 0.15

// pMinimizeAttempt gates how often one round tries to shrink a ranked
// corpus entry per resolver via mutate.Minimize (spec §4.6).
const pMinimizeAttempt = 0.1

// maxConsecutiveFailures disables a resolver after this many consecutive
// ResolverCrash/ControlProtocol results (spec §7: "two consecutive
// ResolverCrash/ControlProtocol disable that resolver for the run").
const maxConsecutiveFailures = 2

// targetCaseWallclock is the per-case duration the adaptive batch-size
// policy aims to stay under (spec §5: "adapts batch size downward if
// wallclock per case exceeds a target").
const targetCaseWallclock = 250 * time.Millisecond

// resolverState is the scheduler's bookkeeping for one resolver across
// rounds: its harness, its own corpus and coverage frontier (spec §4.5:
// "ranked per resolver"), and the consecutive-failure counter that can
// disable it.
type resolverState struct {
	mu                  sync.Mutex
	h                   *harness.Harness
	corpus              *corpus.Corpus
	frontier            *coverage.Frontier
	consecutiveFailures int
	disabled            bool
	sem                 *semaphore.Weighted
}

// Scheduler owns every enabled resolver's state and runs rounds against
// them, feeding results back into each resolver's corpus and coverage
// frontier and every unordered pair into the differ (spec §4.6).
type Scheduler struct {
	mu         sync.Mutex
	resolvers  map[string]*resolverState
	order      []string
	batchSize  int
	rng        *rand.Rand
	archiver   *Archiver
	seen       map[string]bool
}

// New builds a scheduler for specs, one resolver per harness.ResolverSpec,
// each resolver's authoritative stack seeded with auths (spec §6's
// [[auth]] blocks). archiver may be nil to skip dumping diffs and stats
// (spec §6's persisted-state layout is optional, gated on the CLI's
// --dump-diffs flag).
func New(specs []harness.ResolverSpec, batchSize int, seed uint64, archiver *Archiver, auths []config.AuthConfig) *Scheduler {
	s := &Scheduler{
		resolvers: make(map[string]*resolverState, len(specs)),
		batchSize: batchSize,
		rng:       rand.New(rand.NewSource(int64(seed))),
		archiver:  archiver,
		seen:      make(map[string]bool),
	}
	for _, spec := range specs {
		stack := newResolverStack(auths)
		s.resolvers[spec.ID] = &resolverState{
			h:        harness.New(spec, stack),
			corpus:   corpus.NewNamed(spec.ID),
			frontier: coverage.NewFrontier(0),
			sem:      semaphore.NewWeighted(1),
		}
		s.order = append(s.order, spec.ID)
	}
	return s
}

// enabledIDs returns the resolver IDs that have not been disabled.
func (s *Scheduler) enabledIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, id := range s.order {
		if !s.resolvers[id].disabled {
			out = append(out, id)
		}
	}
	return out
}

// Close tears down every resolver's harness.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rs := range s.resolvers {
		rs.h.Close()
	}
}

// RoundStats summarizes one RunRound call for the CLI's stats output
// (spec §6: "fuzzer show-stats").
type RoundStats struct {
	CasesRun      int
	NewCorpusHits int
	Divergences   int
	Duration      time.Duration
}

// RunRound executes one fuzzing round: assembles a suite, dispatches it
// to every enabled resolver in parallel, folds results into corpus and
// coverage state, and runs the differ over every unordered resolver pair
// (spec §4.6 steps 1-5).
func (s *Scheduler) RunRound(ctx context.Context) (RoundStats, error) {
	start := time.Now()
	enabled := s.enabledIDs()
	if len(enabled) == 0 {
		return RoundStats{}, ErrNoResolvers
	}

	suite := s.assembleSuite()
	results := make(map[string][]*harness.Result, len(enabled))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(len(enabled))
	for _, id := range enabled {
		id := id
		g.Go(func() error {
			res := s.runSuiteAgainst(gctx, id, suite)
			mu.Lock()
			results[id] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	stats := RoundStats{CasesRun: len(suite.Cases) * len(enabled), Duration: 0}
	stats.NewCorpusHits = s.feedCorpus(enabled, suite, results)
	stats.Divergences = s.diffPairs(enabled, suite, results)
	s.minimizeRound(ctx, enabled)
	stats.Duration = time.Since(start)

	RoundDuration.Observe(stats.Duration.Seconds())
	if len(suite.Cases) > 0 {
		perCase := stats.Duration / time.Duration(len(suite.Cases))
		if perCase > targetCaseWallclock && s.batchSize > 1 {
			s.mu.Lock()
			s.batchSize = max(1, s.batchSize/2)
			s.mu.Unlock()
			log.WithField("new_batch_size", s.batchSize).Debug("adapting batch size downward")
		}
	}
	return stats, nil
}

// assembleSuite builds one round's FuzzSuite (spec §4.6 steps 1-2). The
// slot order is drawn from a selector.Simple queue, which yields the slot
// indices in order; each slot then draws whether it is fresh or mutated. A
// fraction of mutated slots graft a section from a second corpus parent
// via mutate.Splice rather than running the single-case catalog, so
// Splice is reachable from the live round loop rather than only from its
// own unit tests.
func (s *Scheduler) assembleSuite() *fuzzcase.Suite {
	s.mu.Lock()
	n := s.batchSize
	s.mu.Unlock()

	suite := &fuzzcase.Suite{SchemaVersion: fuzzcase.SchemaVersion}
	var corpora []*corpus.Corpus
	for _, id := range s.order {
		corpora = append(corpora, s.resolvers[id].corpus)
	}

	slots := make([]int, n)
	for i := range slots {
		slots[i] = i
	}
	slotOrder := selector.NewSimpleSelector(slots)

	for range slots {
		i := slotOrder.Pick()
		if s.rng.Float64() < pNew || len(corpora) == 0 {
			suite.Cases = append(suite.Cases, freshCase(s.rng, i))
			continue
		}

		if s.rng.Float64() < pSplice {
			if child, ok := s.spliceChild(corpora); ok {
				suite.Cases = append(suite.Cases, child)
				continue
			}
		}

		parent, err := corpus.SelectParent(corpora...)
		if err != nil {
			suite.Cases = append(suite.Cases, freshCase(s.rng, i))
			continue
		}
		child, err := mutate.Apply(s.rng, parent)
		if err != nil {
			child = freshCase(s.rng, i)
		}
		suite.Cases = append(suite.Cases, child)
	}
	return suite
}

// spliceChild draws two independent parents from corpora and grafts one
// section of the second onto a clone of the first (spec §4.6). It
// reports false if there are not yet enough admitted cases to draw two
// parents from, leaving the caller to fall back to the single-case
// catalog.
func (s *Scheduler) spliceChild(corpora []*corpus.Corpus) (*fuzzcase.Case, bool) {
	base, err := corpus.SelectParent(corpora...)
	if err != nil {
		return nil, false
	}
	donor, err := corpus.SelectParent(corpora...)
	if err != nil {
		return nil, false
	}
	child, err := mutate.Splice(s.rng, base, donor)
	if err != nil {
		return nil, false
	}
	return child, true
}

// runSuiteAgainst runs every case of suite against resolver id in order,
// bounding in-flight suites for that resolver to 1 (spec §5) and
// enforcing the mandatory-respawn rule: a case that issued a cache check
// or crashed the resolver forces a teardown before the next case, since
// reusing the process would leak cache state across cases (spec §5). A
// crash is archived and the same case retried once against the
// respawned process; a second crash on the retry leaves the failure
// counted and lets trackFailure's consecutive-failure rule disable the
// resolver (spec §7).
func (s *Scheduler) runSuiteAgainst(ctx context.Context, id string, suite *fuzzcase.Suite) []*harness.Result {
	rs := s.resolvers[id]
	if err := rs.sem.Acquire(ctx, 1); err != nil {
		return nil
	}
	defer rs.sem.Release(1)

	out := make([]*harness.Result, len(suite.Cases))
	for i, c := range suite.Cases {
		res, err := rs.h.Run(ctx, i, c)
		out[i] = res
		s.trackFailure(rs, id, res, err)

		if res != nil && res.FailureKind == harness.FailureResolverCrash {
			s.archiveCrash(id, c, res)
			rs.h.Close()
			if !rs.disabled {
				retryRes, retryErr := rs.h.Run(ctx, i, c)
				out[i] = retryRes
				s.trackFailure(rs, id, retryRes, retryErr)
				if retryRes != nil && retryRes.FailureKind == harness.FailureResolverCrash {
					s.archiveCrash(id, c, retryRes)
					rs.h.Close()
				}
			}
		} else if len(c.CacheChecks) > 0 {
			rs.h.Close()
		}
		if rs.disabled {
			break
		}
	}
	return out
}

func (s *Scheduler) archiveCrash(id string, c *fuzzcase.Case, res *harness.Result) {
	if s.archiver == nil {
		return
	}
	if err := s.archiver.ArchiveCrash(id, c, res); err != nil {
		log.WithError(err).Warn("failed to archive crash")
	}
}

func (s *Scheduler) trackFailure(rs *resolverState, id string, res *harness.Result, err error) {
	persistent := err != nil && res != nil &&
		(res.FailureKind == harness.FailureResolverCrash || res.FailureKind == harness.FailureControlProtocol)

	rs.mu.Lock()
	defer rs.mu.Unlock()
	if persistent {
		rs.consecutiveFailures++
		if rs.consecutiveFailures >= maxConsecutiveFailures && !rs.disabled {
			rs.disabled = true
			harness.ResolverDisabledCount.WithLabelValues(id).Inc()
			log.WithField("resolver", id).Warn("disabling resolver after consecutive failures")
		}
		return
	}
	rs.consecutiveFailures = 0
}

// feedCorpus folds every result's coverage delta into its resolver's
// frontier and admits corpus-worthy cases (spec §4.5, §4.6 step 4). A
// result is only eligible once Completed reports clean termination or a
// response deadline; crashed runs are filed separately as crash
// artifacts and must never enter the corpus (spec §3).
func (s *Scheduler) feedCorpus(enabled []string, suite *fuzzcase.Suite, results map[string][]*harness.Result) int {
	admitted := 0
	for _, id := range enabled {
		rs := s.resolvers[id]
		rlist := results[id]
		for i, c := range suite.Cases {
			if i >= len(rlist) || rlist[i] == nil || !rlist[i].Completed() {
				continue
			}
			rs.mu.Lock()
			merge := rs.frontier.Merge(rlist[i].CoverageDelta)
			rs.mu.Unlock()
			if rs.corpus.Admit(c, merge, rlist[i].CoverageDelta) {
				admitted++
			}
		}
	}
	return admitted
}

// resolverPair is one unordered pair of enabled resolver IDs to diff.
type resolverPair struct {
	a, b string
}

// buildResolverPairs enumerates every unordered pair of ids, ai < bi in
// ids' own order, so the walk below is reproducible across rounds.
func buildResolverPairs(ids []string) []resolverPair {
	var pairs []resolverPair
	for ai := 0; ai < len(ids); ai++ {
		for bi := ai + 1; bi < len(ids); bi++ {
			pairs = append(pairs, resolverPair{a: ids[ai], b: ids[bi]})
		}
	}
	return pairs
}

// diffPairs runs the differ over every unordered pair of enabled
// resolvers for every case, archiving any new-fingerprint divergence
// (spec §4.6 steps 4-5). The pair order is drawn from a
// selector.Sequential queue rather than nested raw loops, walking the
// enabled-resolver list in a fixed order when assembling the unordered
// differ pairs. Both sides of a pair must have completed cleanly
// (Completed): a crashed resolver's nil/partial response is otherwise
// indistinguishable from a genuine structural difference, and crashes
// are already filed as their own artifact rather than a diff (spec
// §4.3, §7).
func (s *Scheduler) diffPairs(enabled []string, suite *fuzzcase.Suite, results map[string][]*harness.Result) int {
	count := 0
	pairs := buildResolverPairs(enabled)
	pairOrder := selector.NewSequentialSelector(pairs)
	for range pairs {
		p := pairOrder.Pick()
		ra, rb := results[p.a], results[p.b]
		for i, c := range suite.Cases {
			if i >= len(ra) || i >= len(rb) || ra[i] == nil || rb[i] == nil {
				continue
			}
			if !ra[i].Completed() || !rb[i].Completed() {
				continue
			}
			items, err := differ.Diff(ra[i], rb[i])
			if err != nil {
				log.WithError(err).Debug("differ failed")
				continue
			}
			if !differ.HasDivergence(items) {
				continue
			}
			count++
			fp := differ.Fingerprint(items)
			s.mu.Lock()
			isNew := !s.seen[fp]
			s.seen[fp] = true
			s.mu.Unlock()
			if isNew && s.archiver != nil {
				if err := s.archiver.Archive(fp, c, items); err != nil {
					log.WithError(err).Warn("failed to archive diff")
				}
			}
		}
	}
	return count
}

// minimizeRound gives each enabled resolver a pMinimizeAttempt chance to
// shrink its own top-ranked corpus entry: mutate.Minimize drafts the
// smaller candidate, one extra harness run replays it, and the candidate
// replaces the original only if that replay still hits every guard the
// original's admission recorded (spec §4.6: "keep the child only if
// coverage is preserved"). A candidate that regresses coverage, crashes,
// or times out is simply discarded; the original entry is untouched.
func (s *Scheduler) minimizeRound(ctx context.Context, enabled []string) {
	for _, id := range enabled {
		if s.rng.Float64() >= pMinimizeAttempt {
			continue
		}
		rs := s.resolvers[id]
		ranked := rs.corpus.Ranked()
		if len(ranked) == 0 {
			continue
		}
		entry := ranked[0]

		candidate, err := mutate.Minimize(s.rng, entry.Case)
		if err != nil {
			continue
		}

		if err := rs.sem.Acquire(ctx, 1); err != nil {
			continue
		}
		res, runErr := rs.h.Run(ctx, 0, candidate)
		if len(candidate.CacheChecks) > 0 {
			rs.h.Close()
		}
		rs.sem.Release(1)
		s.trackFailure(rs, id, res, runErr)

		if res == nil || !res.Completed() {
			continue
		}
		if !coveragePreserved(entry.Delta, res.CoverageDelta) {
			continue
		}

		rs.mu.Lock()
		rs.frontier.Merge(res.CoverageDelta)
		rs.mu.Unlock()
		if rs.corpus.Replace(entry.Case.UUID, candidate, res.CoverageDelta) {
			log.WithField("resolver", id).WithField("case", candidate.UUID).Debug("minimized corpus entry, coverage preserved")
		}
	}
}

// coveragePreserved reports whether every guard parent hit with a
// nonzero counter is still hit (any nonzero counter) in candidate, the
// acceptance test mutate.Minimize's own doc comment defers to its caller
// (spec §4.6).
func coveragePreserved(parent, candidate coverage.Delta) bool {
	hit := make(map[int]bool, len(candidate.Indices))
	for i, idx := range candidate.Indices {
		if candidate.Values[i] > 0 {
			hit[idx] = true
		}
	}
	for i, idx := range parent.Indices {
		if parent.Values[i] > 0 && !hit[idx] {
			return false
		}
	}
	return true
}
