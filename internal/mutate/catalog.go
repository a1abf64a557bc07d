package mutate

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/miekg/dns"
	"github.com/networkservicemesh/dnsdiffuzz/internal/dnsutil"
	"github.com/networkservicemesh/dnsdiffuzz/internal/fuzzcase"
)

// parseableSlots returns the subset of wireSlots(c) whose current
// message parses, since a header/record mutation needs the structured
// view to draft a new message (spec §4.1: a malformed message can still
// be the starting point of a case, but a mutation working on it would
// just be re-corrupting noise).
func parseableSlots(c *fuzzcase.Case) []wireSlot {
	var out []wireSlot
	for _, s := range wireSlots(c) {
		if _, err := s.get().Parse(); err == nil {
			out = append(out, s)
		}
	}
	return out
}

func repack(slot wireSlot, m *dns.Msg) error {
	raw, err := m.Pack()
	if err != nil {
		return ErrCodecLimit
	}
	if len(raw) > maxMsgSize {
		return ErrCodecLimit
	}
	slot.set(dnsutil.NewWireMessage(raw))
	return nil
}

// HeaderBitFlip flips one random header flag bit on the client query or
// a scripted response (spec §4.6).
func HeaderBitFlip(r *rand.Rand, c *fuzzcase.Case) (*fuzzcase.Case, error) {
	slots := parseableSlots(c)
	if len(slots) == 0 {
		return c, nil
	}
	slot := slots[r.Intn(len(slots))]
	m, _ := slot.get().Parse()
	m = m.Copy()

	flip := r.Intn(7)
	switch flip {
	case 0:
		m.Response = !m.Response
	case 1:
		m.Authoritative = !m.Authoritative
	case 2:
		m.Truncated = !m.Truncated
	case 3:
		m.RecursionDesired = !m.RecursionDesired
	case 4:
		m.RecursionAvailable = !m.RecursionAvailable
	case 5:
		m.AuthenticatedData = !m.AuthenticatedData
	case 6:
		m.CheckingDisabled = !m.CheckingDisabled
	}
	if err := repack(slot, m); err != nil {
		return nil, err
	}
	return c, nil
}

// rcodeChoices are rcodes a resolver is plausibly asked to handle
// without needing an EDNS OPT record to round-trip through Pack/Unpack.
// RcodeRotate adds extended rcodes (BADVERS, BADCOOKIE) only for a
// message that already carries an OPT record, which holds the upper bits
// (spec §4.6).
var rcodeChoices = []int{
	dns.RcodeSuccess, dns.RcodeFormatError, dns.RcodeServerFailure,
	dns.RcodeNameError, dns.RcodeNotImplemented, dns.RcodeRefused,
	dns.RcodeYXDomain, dns.RcodeNotAuth,
}

// RcodeRotate swaps a message's rcode for a different one drawn from
// rcodeChoices, plus the extended rcodes when the message carries an OPT
// record (spec §4.6).
func RcodeRotate(r *rand.Rand, c *fuzzcase.Case) (*fuzzcase.Case, error) {
	slots := parseableSlots(c)
	if len(slots) == 0 {
		return c, nil
	}
	slot := slots[r.Intn(len(slots))]
	m, _ := slot.get().Parse()
	m = m.Copy()

	choices := rcodeChoices
	if m.IsEdns0() != nil {
		choices = append(append([]int(nil), rcodeChoices...), dns.RcodeBadVers, dns.RcodeBadCookie)
	}
	next := choices[r.Intn(len(choices))]
	for next == m.Rcode {
		next = choices[r.Intn(len(choices))]
	}
	m.Rcode = next
	if err := repack(slot, m); err != nil {
		return nil, err
	}
	return c, nil
}

// QuestionRewrite changes the qtype, qclass or qname of a message's
// sole question (spec §4.6: "random label edit, 0-byte injection,
// length extension up to limits").
func QuestionRewrite(r *rand.Rand, c *fuzzcase.Case) (*fuzzcase.Case, error) {
	slots := parseableSlots(c)
	if len(slots) == 0 {
		return c, nil
	}
	slot := slots[r.Intn(len(slots))]
	m, _ := slot.get().Parse()
	m = m.Copy()
	if len(m.Question) == 0 {
		return c, nil
	}
	q := &m.Question[0]

	switch r.Intn(3) {
	case 0:
		q.Qtype = randomQtype(r)
	case 1:
		q.Qclass = randomQclass(r)
	case 2:
		next, err := mutateName(r, q.Name)
		if err != nil {
			return nil, err
		}
		q.Name = next
	}
	if err := repack(slot, m); err != nil {
		return nil, err
	}
	return c, nil
}

func randomQtype(r *rand.Rand) uint16 {
	choices := []uint16{dns.TypeA, dns.TypeAAAA, dns.TypeCNAME, dns.TypeNS, dns.TypeSOA, dns.TypeMX, dns.TypeTXT, dns.TypeANY, dns.TypeDNAME}
	return choices[r.Intn(len(choices))]
}

func randomQclass(r *rand.Rand) uint16 {
	choices := []uint16{dns.ClassINET, dns.ClassCHAOS, dns.ClassHESIOD, dns.ClassANY}
	return choices[r.Intn(len(choices))]
}

// mutateName applies one label edit, a zero-byte injection, or extends
// name up to the codec's domain-name length cap, reporting
// ErrCodecLimit if the draft would overflow it.
func mutateName(r *rand.Rand, name string) (string, error) {
	labels := dns.SplitDomainName(name)
	if len(labels) == 0 {
		labels = []string{"a"}
	}
	idx := r.Intn(len(labels))

	switch r.Intn(3) {
	case 0:
		labels[idx] = labels[idx] + string(byte('a'+r.Intn(26)))
	case 1:
		labels[idx] = labels[idx] + "\x00"
	case 2:
		labels[idx] = strings.Repeat("a", maxLabelLength)
	}

	next := dns.Fqdn(strings.Join(labels, "."))
	if len(labels[idx]) > maxLabelLength || len(next) > maxNameLength {
		return "", ErrCodecLimit
	}
	return next, nil
}

// insertableTypes is the biased distribution spec §4.6 calls for: CNAME,
// DNAME, NS, A and SOA weighted heavily, with a sprinkling of private-use
// "unknown" types to probe unrecognized-RR handling.
var insertableTypes = []uint16{
	dns.TypeCNAME, dns.TypeCNAME, dns.TypeDNAME, dns.TypeDNAME,
	dns.TypeNS, dns.TypeNS, dns.TypeA, dns.TypeA, dns.TypeA,
	dns.TypeSOA, 65280, 65281,
}

// RecordInsertion appends a record of a biased-random type into a
// randomly chosen section of a message (spec §4.6).
func RecordInsertion(r *rand.Rand, c *fuzzcase.Case) (*fuzzcase.Case, error) {
	slots := parseableSlots(c)
	if len(slots) == 0 {
		return c, nil
	}
	slot := slots[r.Intn(len(slots))]
	m, _ := slot.get().Parse()
	m = m.Copy()

	owner := "fuzz."
	if len(m.Question) > 0 {
		owner = m.Question[0].Name
	}
	rr := syntheticRR(owner, insertableTypes[r.Intn(len(insertableTypes))])

	switch r.Intn(3) {
	case 0:
		m.Answer = append(m.Answer, rr)
	case 1:
		m.Ns = append(m.Ns, rr)
	case 2:
		m.Extra = append(m.Extra, rr)
	}
	if err := repack(slot, m); err != nil {
		return nil, err
	}
	return c, nil
}

func syntheticRR(owner string, rrtype uint16) dns.RR {
	switch rrtype {
	case dns.TypeCNAME:
		return &dns.CNAME{Hdr: rrHeader(owner, dns.TypeCNAME), Target: "target." + owner}
	case dns.TypeDNAME:
		return &dns.DNAME{Hdr: rrHeader(owner, dns.TypeDNAME), Target: "alias." + owner}
	case dns.TypeNS:
		return &dns.NS{Hdr: rrHeader(owner, dns.TypeNS), Ns: "ns1." + owner}
	case dns.TypeSOA:
		return &dns.SOA{
			Hdr: rrHeader(owner, dns.TypeSOA), Ns: "ns1." + owner, Mbox: "hostmaster." + owner,
			Serial: 1, Refresh: 3600, Retry: 600, Expire: 86400, Minttl: 60,
		}
	case dns.TypeA:
		return &dns.A{Hdr: rrHeader(owner, dns.TypeA), A: []byte{127, 97, 1, 1}}
	default:
		return &dns.RFC3597{Hdr: rrHeader(owner, rrtype), Rdata: "beef"}
	}
}

func rrHeader(owner string, rrtype uint16) dns.RR_Header {
	return dns.RR_Header{Name: dns.Fqdn(owner), Rrtype: rrtype, Class: dns.ClassINET, Ttl: 300}
}

// RecordClassScramble sets the class of a random subset of a message's
// records to CH, HS or ANY, probing class-confusion handling (spec §4.6).
func RecordClassScramble(r *rand.Rand, c *fuzzcase.Case) (*fuzzcase.Case, error) {
	slots := parseableSlots(c)
	if len(slots) == 0 {
		return c, nil
	}
	slot := slots[r.Intn(len(slots))]
	m, _ := slot.get().Parse()
	m = m.Copy()

	all := allRecords(m)
	if len(all) == 0 {
		return c, nil
	}
	classes := []uint16{dns.ClassCHAOS, dns.ClassHESIOD, dns.ClassANY}
	for _, rr := range all {
		if r.Float64() < 0.5 {
			rr.Header().Class = classes[r.Intn(len(classes))]
		}
	}
	if err := repack(slot, m); err != nil {
		return nil, err
	}
	return c, nil
}

func allRecords(m *dns.Msg) []dns.RR {
	all := make([]dns.RR, 0, len(m.Answer)+len(m.Ns)+len(m.Extra))
	all = append(all, m.Answer...)
	all = append(all, m.Ns...)
	all = append(all, m.Extra...)
	return all
}

// RecordNameShuffle repoints a CNAME/DNAME's target to create a
// self-loop or to extend the label chain by one hop (spec §4.6).
func RecordNameShuffle(r *rand.Rand, c *fuzzcase.Case) (*fuzzcase.Case, error) {
	slots := parseableSlots(c)
	if len(slots) == 0 {
		return c, nil
	}
	slot := slots[r.Intn(len(slots))]
	m, _ := slot.get().Parse()
	m = m.Copy()

	var aliases []dns.RR
	for _, rr := range allRecords(m) {
		switch rr.(type) {
		case *dns.CNAME, *dns.DNAME:
			aliases = append(aliases, rr)
		}
	}
	if len(aliases) == 0 {
		return c, nil
	}
	rr := aliases[r.Intn(len(aliases))]

	var target string
	if r.Float64() < 0.5 {
		target = rr.Header().Name // self-loop
	} else {
		target = dns.Fqdn(fmt.Sprintf("hop%d.%s", r.Intn(1000), rr.Header().Name))
	}
	if len(target) > maxNameLength {
		return nil, ErrCodecLimit
	}

	switch v := rr.(type) {
	case *dns.CNAME:
		v.Target = target
	case *dns.DNAME:
		v.Target = target
	}
	if err := repack(slot, m); err != nil {
		return nil, err
	}
	return c, nil
}

// ScriptReorder shuffles the order of the scripted response script
// (spec §4.6). Order matters: the authoritative stack consumes scripted
// responses in sequence (spec §5), so a fresh shuffle changes which
// response answers which resolver-side query.
func ScriptReorder(r *rand.Rand, c *fuzzcase.Case) (*fuzzcase.Case, error) {
	if len(c.ServerResponses) < 2 {
		return c, nil
	}
	r.Shuffle(len(c.ServerResponses), func(i, j int) {
		c.ServerResponses[i], c.ServerResponses[j] = c.ServerResponses[j], c.ServerResponses[i]
	})
	return c, nil
}

// ScriptDrop removes one scripted response entry (spec §4.6).
func ScriptDrop(r *rand.Rand, c *fuzzcase.Case) (*fuzzcase.Case, error) {
	if len(c.ServerResponses) == 0 {
		return c, nil
	}
	idx := r.Intn(len(c.ServerResponses))
	c.ServerResponses = append(c.ServerResponses[:idx], c.ServerResponses[idx+1:]...)
	return c, nil
}

// CacheCheckAdd appends a follow-up cache-probe query derived from the
// client query's question, so the harness's CACHE_CHECKS phase can
// detect leaked upstream data (spec §4.6, §4.3).
func CacheCheckAdd(r *rand.Rand, c *fuzzcase.Case) (*fuzzcase.Case, error) {
	m, err := c.ClientQuery.Parse()
	if err != nil || len(m.Question) == 0 {
		return c, nil
	}
	probe := new(dns.Msg)
	probe.Id = uint16(r.Intn(65536))
	probe.RecursionDesired = true
	probe.SetQuestion(m.Question[0].Name, m.Question[0].Qtype)

	raw, err := probe.Pack()
	if err != nil || len(raw) > maxMsgSize {
		return nil, ErrCodecLimit
	}
	c.CacheChecks = append(c.CacheChecks, dnsutil.NewWireMessage(raw))
	return c, nil
}

// CacheCheckRemove removes one cache-check query (spec §4.6).
func CacheCheckRemove(r *rand.Rand, c *fuzzcase.Case) (*fuzzcase.Case, error) {
	if len(c.CacheChecks) == 0 {
		return c, nil
	}
	idx := r.Intn(len(c.CacheChecks))
	c.CacheChecks = append(c.CacheChecks[:idx], c.CacheChecks[idx+1:]...)
	return c, nil
}
