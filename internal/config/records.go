package config

import (
	"net"

	"github.com/miekg/dns"
	"github.com/pkg/errors"
)

// ToRR converts a, the data records of one [[auth]] block, into
// github.com/miekg/dns records the authoritative stack can seed a zone
// with (authns.SeedExtra).
func (a AuthConfig) ToRR() ([]dns.RR, error) {
	out := make([]dns.RR, 0, len(a.Data))
	for _, rec := range a.Data {
		rr, err := rec.toRR(a.TTL)
		if err != nil {
			return nil, errors.Wrapf(err, "auth %s record %s", a.Zone, rec.Name)
		}
		out = append(out, rr)
	}
	return out, nil
}

func (rec Record) toRR(ttl uint32) (dns.RR, error) {
	name := dns.Fqdn(rec.Name)
	switch rec.Type {
	case RecordTypeA:
		ip := net.ParseIP(rec.Rdata).To4()
		if ip == nil {
			return nil, errors.Errorf("invalid A rdata %q", rec.Rdata)
		}
		return &dns.A{
			Hdr: dns.RR_Header{Name: name, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: ttl},
			A:   ip,
		}, nil
	case RecordTypeNS:
		return &dns.NS{
			Hdr: dns.RR_Header{Name: name, Rrtype: dns.TypeNS, Class: dns.ClassINET, Ttl: ttl},
			Ns:  dns.Fqdn(rec.Rdata),
		}, nil
	case RecordTypeSOA:
		soa, err := parseSOA(name, ttl, rec.Rdata)
		if err != nil {
			return nil, err
		}
		return soa, nil
	default:
		return nil, errors.Errorf("unsupported record type %q", rec.Type)
	}
}

// parseSOA parses the space-separated "mname rname serial refresh retry
// expire minimum" form the original Rust source's SOA::from_str used
// (original_source/dnsauth/src/config.rs), reused here as the TOML
// rdata string format for an SOA record.
func parseSOA(name string, ttl uint32, rdata string) (*dns.SOA, error) {
	rr, err := dns.NewRR(name + " " + itoa(ttl) + " IN SOA " + rdata)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing SOA rdata %q", rdata)
	}
	soa, ok := rr.(*dns.SOA)
	if !ok {
		return nil, errors.Errorf("parsed record for %q is not an SOA", name)
	}
	return soa, nil
}

func itoa(v uint32) string {
	if v == 0 {
		return "0"
	}
	var buf [10]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}
