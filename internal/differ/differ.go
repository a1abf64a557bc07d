package differ

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/networkservicemesh/dnsdiffuzz/internal/harness"
	"github.com/pkg/errors"
)

// Diff compares a and b, two resolvers' results for the same fuzz case,
// returning every divergence the rule table recognizes plus a catch-all
// StructuralDifference for anything it doesn't (spec §4.4). Output order
// is fixed: ResolverName, then an optional DnsId note, then the rule
// table in table order, then the catch-all.
func Diff(a, b *harness.Result) ([]DiffItem, error) {
	pa, err := project(a)
	if err != nil {
		return nil, errors.Wrap(err, "projecting resolver a")
	}
	pb, err := project(b)
	if err != nil {
		return nil, errors.Wrap(err, "projecting resolver b")
	}

	items := []DiffItem{{
		Path:     ".resolver_pair",
		ValueA:   a.ResolverID,
		ValueB:   b.ResolverID,
		Category: CategoryResolverName,
	}}

	if pa.id != pb.id {
		items = append(items, DiffItem{
			Path:     ".fuzz_result.fuzzee_response.header.id",
			ValueA:   fmt.Sprint(pa.id),
			ValueB:   fmt.Sprint(pb.id),
			Category: CategoryDnsId,
		})
	}

	before := len(items)
	for _, rule := range rules {
		found, err := rule.Check(pa, pb)
		if err != nil {
			return nil, errors.Wrapf(err, "rule %s", rule.Category)
		}
		items = append(items, found...)
	}
	ruleFired := len(items) > before

	if !ruleFired && !structurallyEqual(pa, pb) {
		items = append(items, structuralDifference(pa, pb))
	}

	recordDiff(items)
	return items, nil
}

// HasDivergence reports whether items carries anything beyond the
// bookkeeping ResolverName entry Diff always leads with; an identical
// pair of responses still produces that one entry (spec §4.4's "always
// the first item" note).
func HasDivergence(items []DiffItem) bool {
	for _, it := range items {
		if it.Category != CategoryResolverName {
			return true
		}
	}
	return false
}

func structurallyEqual(a, b projection) bool {
	return a.rcode == b.rcode &&
		equalStrings(sortedCopy(orderedStrings(a.answer)), sortedCopy(orderedStrings(b.answer))) &&
		equalStrings(sortedCopy(orderedStrings(a.ns)), sortedCopy(orderedStrings(b.ns))) &&
		equalStrings(sortedCopy(orderedStrings(a.extra)), sortedCopy(orderedStrings(b.extra))) &&
		a.hasEDNS == b.hasEDNS
}

// structuralDifference builds the catch-all StructuralDifference item for
// a pair no specific rule claimed. When the rcode itself diverges, the
// path drills into the field that actually differs
// (`.fuzz_result.fuzzee_response.header.response_code`, spec §4.4's own
// path example) rather than the coarse whole-response path, so a
// rcode-only divergence (e.g. one resolver ServFails on a case the other
// answers, with no specific rule matching) is reported precisely. Any
// other kind of structural mismatch still falls back to the coarse path
// plus a summary of both sides.
func structuralDifference(a, b projection) DiffItem {
	if a.rcode != b.rcode {
		return DiffItem{
			Path:     ".fuzz_result.fuzzee_response.header.response_code",
			ValueA:   rcodeString(a.rcode),
			ValueB:   rcodeString(b.rcode),
			Category: CategoryStructuralDifference,
		}
	}
	return DiffItem{
		Path:     ".fuzz_result.fuzzee_response",
		ValueA:   summarize(a),
		ValueB:   summarize(b),
		Category: CategoryStructuralDifference,
	}
}

func summarize(p projection) string {
	return fmt.Sprintf("rcode=%s answer=%d authority=%d additional=%d edns=%v",
		rcodeString(p.rcode), len(p.answer), len(p.ns), len(p.extra), p.hasEDNS)
}

// Fingerprint hashes an ordered diff list to a stable identifier the
// scheduler uses to dedupe archived reports (spec §4.4, §6
// "diffs/<fingerprint>/").
func Fingerprint(items []DiffItem) string {
	h := sha256.New()
	for _, it := range items {
		if it.Category == CategoryDnsId {
			// header.id is retained for display but carries no
			// dedup-relevant signal (spec §4.4: "non-meaningful").
			fmt.Fprintf(h, "%s\x00%s\x00", it.Path, it.Category)
			continue
		}
		fmt.Fprintf(h, "%s\x00%s\x00%s\x00%s\x00", it.Path, it.Category, it.ValueA, it.ValueB)
	}
	return hex.EncodeToString(h.Sum(nil))
}
