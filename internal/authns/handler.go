package authns

import (
	"github.com/miekg/dns"
)

// handler answers queries against the zone bound to one physical
// address, plus the fuzz. overlay when that address is fuzzLeafAddr
// (spec §4.2).
type handler struct {
	stack *Stack
	addr  string
}

// result is what the stack sends back for one incoming datagram: a
// well-formed message, verbatim raw bytes (for a deliberately
// malformed scripted response), or neither if the script says drop.
type result struct {
	msg  *dns.Msg
	raw  []byte
	drop bool
}

// answer resolves r against h's zone.
func (h *handler) answer(r *dns.Msg) result {
	reply := new(dns.Msg)
	reply.SetReply(r)
	reply.Authoritative = true

	if len(r.Question) != 1 {
		reply.Rcode = dns.RcodeFormatError
		return result{msg: reply}
	}
	q := r.Question[0]
	name := dns.CanonicalName(q.Name)

	if h.stack.refusingAll() {
		reply.Rcode = dns.RcodeRefused
		return result{msg: reply}
	}

	if h.addr == fuzzLeafAddr {
		return h.answerOverlay(reply, name, q.Qtype, q.Qclass)
	}

	z := h.stack.zoneAt(h.addr)
	if z == nil {
		reply.Rcode = dns.RcodeServerFailure
		return result{msg: reply}
	}
	answerStatic(reply, z, name, q.Qtype)
	return result{msg: reply}
}

// answerOverlay answers against whatever case Overlay is installed,
// falling back to the static negative-response rule when nothing
// matches (spec §4.2: "fall back to a default answer").
func (h *handler) answerOverlay(reply *dns.Msg, name string, qtype, qclass uint16) result {
	overlay := h.stack.currentOverlay()
	if overlay == nil || !overlay.scopedName(name) {
		reply.Rcode = dns.RcodeRefused
		return result{msg: reply}
	}

	sr, matched := overlay.match(name, qtype, qclass)
	if matched {
		if sr.Drop {
			return result{drop: true}
		}
		if sr.Response != nil {
			if msg, err := sr.Response.Parse(); err == nil {
				out := msg.Copy()
				out.Id = reply.Id
				out.Response = true
				return result{msg: out}
			}
			// Malformed scripted bytes: the stack still emits exactly one
			// reply datagram, just not a structurally valid one (spec
			// §4.1: "the script may instruct the stack to emit junk").
			return result{raw: sr.Response.Bytes()}
		}
	}

	reply.Ns = append(reply.Ns, soaRecord("fuzz.", baseSerial))
	if overlay.hasDescendant(name) {
		// Empty non-terminal: NODATA, not NXDOMAIN (spec §4.2).
		return result{msg: reply}
	}
	reply.Rcode = dns.RcodeNameError
	return result{msg: reply}
}

// answerStatic implements the exact-match / NODATA / NXDOMAIN /
// referral rule used by every non-overlay zone. Within one zone
// object an owner name is either a delegation cut (NS present) or
// ordinary data, never both, so an NS hit always means "refer". A
// delegation cut can sit anywhere between the zone apex and qname
// (e.g. root knows "net." but not "victim.net." directly), so referral
// detection walks up from qname to the apex before falling through to
// exact-match data lookup at qname itself.
func answerStatic(reply *dns.Msg, z *zone, name string, qtype uint16) {
	for cur, ok := name, true; ok; cur, ok = parentOf(cur, z.apex) {
		ns := z.lookup(cur, dns.TypeNS)
		if len(ns) == 0 {
			continue
		}
		reply.Ns = append(reply.Ns, ns...)
		for _, rr := range ns {
			if nsRR, ok := rr.(*dns.NS); ok {
				reply.Extra = append(reply.Extra, z.lookup(nsRR.Ns, dns.TypeA)...)
			}
		}
		return
	}

	if cname := z.lookup(name, dns.TypeCNAME); len(cname) > 0 && qtype != dns.TypeCNAME {
		reply.Answer = append(reply.Answer, cname...)
		return
	}

	if rrs := z.lookup(name, qtype); len(rrs) > 0 {
		reply.Answer = append(reply.Answer, rrs...)
		return
	}

	if z.nodeExists(name) {
		// NODATA: name is a real node, just not of the queried type.
		reply.Ns = append(reply.Ns, z.lookup(z.apex, dns.TypeSOA)...)
		return
	}

	if z.hasDescendant(name) {
		// Empty non-terminal: NODATA, not NXDOMAIN (spec §4.2).
		reply.Ns = append(reply.Ns, z.lookup(z.apex, dns.TypeSOA)...)
		return
	}

	reply.Rcode = dns.RcodeNameError
	reply.Ns = append(reply.Ns, z.lookup(z.apex, dns.TypeSOA)...)
}
