package scheduler

import (
	"math/rand"

	"github.com/google/uuid"
	"github.com/miekg/dns"
	"github.com/networkservicemesh/dnsdiffuzz/internal/authns"
	"github.com/networkservicemesh/dnsdiffuzz/internal/dnsutil"
	"github.com/networkservicemesh/dnsdiffuzz/internal/fuzzcase"
)

// qtypeChoices biases fresh generation toward the same record types the
// mutation catalog favors (spec §4.6's record-insertion distribution),
// so fresh cases and mutated cases exercise similar ground.
var qtypeChoices = []uint16{
	dns.TypeA, dns.TypeA, dns.TypeA,
	dns.TypeAAAA, dns.TypeCNAME, dns.TypeNS, dns.TypeSOA, dns.TypeANY, dns.TypeTXT,
}

// freshCase generates a new case whose client query targets the
// NNNN.fuzz. delegation installed for index (spec §4.2), so the
// resolver's resolution path exercises the overlay the scheduler is
// about to install at that slot.
func freshCase(r *rand.Rand, index int) *fuzzcase.Case {
	name := authns.CaseName(index)
	qtype := qtypeChoices[r.Intn(len(qtypeChoices))]

	q := new(dns.Msg)
	q.Id = uint16(r.Intn(65536))
	q.RecursionDesired = true
	q.SetQuestion(name, qtype)

	c := &fuzzcase.Case{
		UUID:        uuid.New(),
		ClientQuery: dnsutil.FromMsg(q),
	}

	resp := new(dns.Msg)
	resp.SetReply(q)
	resp.Authoritative = true
	resp.Answer = []dns.RR{&dns.A{
		Hdr: dns.RR_Header{Name: name, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 300},
		A:   []byte{127, 97, 1, byte(1 + r.Intn(250))},
	}}
	c.ServerResponses = []fuzzcase.ScriptedResponse{{Response: dnsutil.FromMsg(resp)}}

	if r.Float64() < 0.3 {
		probe := new(dns.Msg)
		probe.Id = uint16(r.Intn(65536))
		probe.RecursionDesired = true
		probe.SetQuestion(name, qtype)
		c.CacheChecks = append(c.CacheChecks, dnsutil.FromMsg(probe))
	}

	return c
}
