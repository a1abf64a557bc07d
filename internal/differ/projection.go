package differ

import (
	"github.com/miekg/dns"
	"github.com/networkservicemesh/dnsdiffuzz/internal/dnsutil"
	"github.com/networkservicemesh/dnsdiffuzz/internal/harness"
)

// projection is the normalized view of a harness.Result the rule table
// compares: the id is kept but tagged non-meaningful everywhere except
// its own DiffItem, EDNS is split out of the additional section, and
// fuzzee_queries is reduced to just the resolver's outbound queries to
// the authoritative stack (spec §4.4).
type projection struct {
	resolverID string
	rcode      int
	id         uint16
	answer     []dns.RR
	ns         []dns.RR
	extra      []dns.RR
	hasEDNS    bool
	queries    []dnsutil.Exchange
}

// noResponseRcode marks a projection whose resolver produced no reply at
// all (timeout), distinct from any real RCODE value (0-15, plus extended
// RCODEs from OPT) so the rule table never mistakes silence for ServFail.
const noResponseRcode = -1

func project(r *harness.Result) (projection, error) {
	p := projection{resolverID: r.ResolverID, rcode: noResponseRcode}
	if r.ClientResponse != nil {
		msg, err := r.ClientResponse.Parse()
		if err != nil {
			return p, err
		}
		p.rcode = msg.Rcode
		p.id = msg.Id
		p.answer = msg.Answer
		for _, rr := range msg.Extra {
			if rr.Header().Rrtype == dns.TypeOPT {
				p.hasEDNS = true
				continue
			}
			p.extra = append(p.extra, rr)
		}
		p.ns = msg.Ns
	}
	for _, e := range r.Exchanges {
		if e.IsQuery {
			p.queries = append(p.queries, e)
		}
	}
	return p, nil
}
