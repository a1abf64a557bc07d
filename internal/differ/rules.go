package differ

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/miekg/dns"
)

// Rule is one entry in the fixed-order category table. Each rule is
// independent: several may fire for the same pair of results, and order
// in the table is the order they appear in Diff's output (spec §4.4:
// "deterministic ... same output ordering").
type Rule struct {
	Category Category
	Check    func(a, b projection) ([]DiffItem, error)
}

var rules = []Rule{
	{CategoryErrorClientNoRrInAnswer, checkNoRrInAnswer},
	{CategoryResolvedServFailOnNoData, checkServFailOnNoData},
	{CategoryRrsetOrder, checkRrsetOrder},
	{CategoryNoEdnsSupport, checkEdnsSupport},
	{CategoryTrailingRetransmissions, checkTrailingRetransmissions},
}

// checkNoRrInAnswer recognizes one resolver returning zero records across
// every section while the other returned at least one (spec §4.4). A
// ServFail on the empty side is excluded: that is a meaningful DNS
// response in its own right, not the "client got nothing back" failure
// this category names, and it is better reported through the rcode-
// specific path the catch-all (or checkServFailOnNoData) already
// produces for it (spec §8 scenario 3: a ServFail-vs-answer pair is a
// `StructuralDifference` on the response code, not this category).
func checkNoRrInAnswer(a, b projection) ([]DiffItem, error) {
	totalA := len(a.answer) + len(a.ns) + len(a.extra)
	totalB := len(b.answer) + len(b.ns) + len(b.extra)
	if (totalA == 0) == (totalB == 0) {
		return nil, nil
	}
	if totalA == 0 && a.rcode == dns.RcodeServerFailure {
		return nil, nil
	}
	if totalB == 0 && b.rcode == dns.RcodeServerFailure {
		return nil, nil
	}
	return []DiffItem{{
		Path:     ".fuzz_result.fuzzee_response",
		ValueA:   fmt.Sprintf("%d records", totalA),
		ValueB:   fmt.Sprintf("%d records", totalB),
		Category: CategoryErrorClientNoRrInAnswer,
	}}, nil
}

func isNoData(p projection) bool {
	return p.rcode == dns.RcodeSuccess && len(p.answer) == 0
}

// checkServFailOnNoData recognizes one resolver answering ServFail where
// the other answered NoError with an empty answer section, a classic
// overreaction to upstream NODATA (spec §4.4).
func checkServFailOnNoData(a, b projection) ([]DiffItem, error) {
	switch {
	case a.rcode == dns.RcodeServerFailure && isNoData(b):
		return []DiffItem{rcodeDiff(a, b)}, nil
	case b.rcode == dns.RcodeServerFailure && isNoData(a):
		return []DiffItem{rcodeDiff(a, b)}, nil
	}
	return nil, nil
}

func rcodeDiff(a, b projection) DiffItem {
	return DiffItem{
		Path:     ".fuzz_result.fuzzee_response.header.response_code",
		ValueA:   rcodeString(a.rcode),
		ValueB:   rcodeString(b.rcode),
		Category: CategoryResolvedServFailOnNoData,
	}
}

func rcodeString(rcode int) string {
	if rcode == noResponseRcode {
		return "no_response"
	}
	if s, ok := dns.RcodeToString[rcode]; ok {
		return s
	}
	return fmt.Sprint(rcode)
}

// checkRrsetOrder recognizes two sections holding the same records in a
// different order; resolvers are free to reorder, so this is reported
// separately from a hard structural mismatch (spec §4.4).
func checkRrsetOrder(a, b projection) ([]DiffItem, error) {
	var items []DiffItem
	sections := []struct {
		name string
		x, y []dns.RR
	}{
		{"answer", a.answer, b.answer},
		{"authority", a.ns, b.ns},
		{"additional", a.extra, b.extra},
	}
	for _, s := range sections {
		xo, yo := orderedStrings(s.x), orderedStrings(s.y)
		if equalStrings(xo, yo) {
			continue
		}
		if !equalStrings(sortedCopy(xo), sortedCopy(yo)) {
			continue // not a pure reorder, leave for the catch-all
		}
		items = append(items, DiffItem{
			Path:     fmt.Sprintf(".fuzz_result.fuzzee_response.%s", s.name),
			ValueA:   strings.Join(xo, ","),
			ValueB:   strings.Join(yo, ","),
			Category: CategoryRrsetOrder,
		})
	}
	return items, nil
}

// checkEdnsSupport recognizes an EDNS OPT record present in one response
// and absent in the other (spec §4.4).
func checkEdnsSupport(a, b projection) ([]DiffItem, error) {
	if a.hasEDNS == b.hasEDNS {
		return nil, nil
	}
	return []DiffItem{{
		Path:     ".fuzz_result.fuzzee_response.edns",
		ValueA:   fmt.Sprint(a.hasEDNS),
		ValueB:   fmt.Sprint(b.hasEDNS),
		Category: CategoryNoEdnsSupport,
	}}, nil
}

// checkTrailingRetransmissions recognizes one side's outbound query log
// being an exact prefix of the other's, i.e. extra retries rather than a
// genuine behavioral difference (spec §4.4).
func checkTrailingRetransmissions(a, b projection) ([]DiffItem, error) {
	n := len(a.queries)
	if len(b.queries) < n {
		n = len(b.queries)
	}
	if len(a.queries) == len(b.queries) {
		return nil, nil
	}
	for i := 0; i < n; i++ {
		if !bytes.Equal(a.queries[i].Message.Bytes(), b.queries[i].Message.Bytes()) {
			return nil, nil
		}
	}
	return []DiffItem{{
		Path:     ".fuzz_result.fuzzee_queries",
		ValueA:   fmt.Sprint(len(a.queries)),
		ValueB:   fmt.Sprint(len(b.queries)),
		Category: CategoryTrailingRetransmissions,
	}}, nil
}

func orderedStrings(rrs []dns.RR) []string {
	out := make([]string, len(rrs))
	for i, rr := range rrs {
		out[i] = rr.String()
	}
	return out
}

func sortedCopy(ss []string) []string {
	out := make([]string, len(ss))
	copy(out, ss)
	sort.Strings(out)
	return out
}

func equalStrings(x, y []string) bool {
	if len(x) != len(y) {
		return false
	}
	for i := range x {
		if x[i] != y[i] {
			return false
		}
	}
	return true
}
