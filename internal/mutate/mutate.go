// Package mutate implements the fuzz-case mutation catalog that the
// scheduler draws from when a round slot is not a fresh generation
// (spec §4.6). Apply runs the entries on a fuzzcase.Case.Clone of the
// parent, so the parent is never modified, and retries each on a
// codec-limit violation before the caller falls back to fresh
// generation, mirroring the catalog comment at the top of
// original_source/fuzzer/src/mutations.rs.
package mutate

import (
	"math/rand"

	"github.com/networkservicemesh/dnsdiffuzz/internal/dnsutil"
	"github.com/networkservicemesh/dnsdiffuzz/internal/fuzzcase"
	"github.com/pkg/errors"
)

// ErrCodecLimit is returned by a Mutation whose draft would exceed a wire
// size or name/label length cap (spec §4.6: "stay inside codec limits").
var ErrCodecLimit = errors.New("mutate: draft exceeds codec limit")

// Wire-format caps a Mutation must respect (RFC 1035 §3.1, §2.3.4). These
// are protocol constants kept as local values rather than taken from
// miekg/dns.
const (
	maxLabelLength = 63
	maxNameLength  = 255
	maxMsgSize     = 65535
)

// Mutation drafts a child case by editing the case it is given and
// returning it, or reports ErrCodecLimit if the draft would violate a
// wire-format cap. Catalog entries do not clone; Apply hands them a
// clone of the parent, so the parent is never edited (spec §4.6: "cases
// are copy-on-write").
type Mutation func(r *rand.Rand, parent *fuzzcase.Case) (*fuzzcase.Case, error)

// Catalog holds every mutation with the uniform single-case signature.
// Splice needs a second donor case and Minimize's accept/reject decision
// belongs to whoever can measure coverage, so both live outside this
// table; the scheduler invokes them directly instead.
var Catalog = []Mutation{
	HeaderBitFlip,
	RcodeRotate,
	QuestionRewrite,
	RecordInsertion,
	RecordClassScramble,
	RecordNameShuffle,
	ScriptReorder,
	ScriptDrop,
	CacheCheckAdd,
	CacheCheckRemove,
}

// maxAttempts bounds the codec-limit retry budget per mutation step
// (spec §4.6: "rejected and retried up to a small budget").
const maxAttempts = 4

// Apply drafts a child of parent by running 1-4 randomly chosen
// catalog mutations in sequence, each retried up to maxAttempts times on
// ErrCodecLimit. It reports ErrCodecLimit itself if a step never
// produces an in-budget draft, so the caller can fall back to fresh
// generation (spec §4.6's closing paragraph).
func Apply(r *rand.Rand, parent *fuzzcase.Case) (*fuzzcase.Case, error) {
	n := 1 + r.Intn(4)
	child := parent.Clone()
	for i := 0; i < n; i++ {
		m := Catalog[r.Intn(len(Catalog))]
		var err error
		var next *fuzzcase.Case
		for attempt := 0; attempt < maxAttempts; attempt++ {
			next, err = m(r, child)
			if err == nil {
				break
			}
			if err != ErrCodecLimit {
				return nil, err
			}
		}
		if err != nil {
			return nil, err
		}
		child = next
	}
	return child, nil
}

// wireSlot lets a mutation read and replace one *dnsutil.WireMessage
// slot uniformly, whether it backs the client query or a scripted
// response. WireMessage's internals are unexported outside dnsutil, so a
// mutation must build a new value via dnsutil.NewWireMessage and
// reassign the pointer rather than edit one in place.
type wireSlot struct {
	get func() *dnsutil.WireMessage
	set func(*dnsutil.WireMessage)
}

// wireSlots enumerates every mutable message slot in c: the client
// query, plus each scripted response that isn't a Drop entry (a Drop
// entry has no Response to mutate).
func wireSlots(c *fuzzcase.Case) []wireSlot {
	slots := []wireSlot{{
		get: func() *dnsutil.WireMessage { return c.ClientQuery },
		set: func(w *dnsutil.WireMessage) { c.ClientQuery = w },
	}}
	for i := range c.ServerResponses {
		i := i
		if c.ServerResponses[i].Response == nil {
			continue
		}
		slots = append(slots, wireSlot{
			get: func() *dnsutil.WireMessage { return c.ServerResponses[i].Response },
			set: func(w *dnsutil.WireMessage) { c.ServerResponses[i].Response = w },
		})
	}
	return slots
}
