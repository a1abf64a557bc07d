package authns

import (
	"fmt"
	"sync"

	"github.com/miekg/dns"
	"github.com/networkservicemesh/dnsdiffuzz/internal/fuzzcase"
)

// Overlay is the per-case mutable state layered over the fuzz. zone
// (spec §4.2): the NNNN.fuzz. delegation installed at fuzzAddr plus
// the ordered, consume-on-use ScriptedResponse list served at
// fuzzLeafAddr, the glue target of that delegation.
//
// Consumption is tracked per-entry rather than via a hashed lookup
// because match patterns may be wildcards and order is semantic
// (spec §5, "Script consume-on-use with order").
type Overlay struct {
	mu       sync.Mutex
	index    int
	scripts  []fuzzcase.ScriptedResponse
	consumed []bool
}

// sldName returns the NNNN.fuzz. owner name for the given case index.
func sldName(index int) string {
	return fmt.Sprintf("%04d.fuzz.", index)
}

// nsName returns the ns-NNNN.ns. delegation target for the given index.
func nsName(index int) string {
	return fmt.Sprintf("ns-%04d.ns.", index)
}

// CaseName returns the NNNN.fuzz. owner name a fresh case's client query
// should target for index, so the resolver's resolution of that name
// lands on this index's overlay once InstallCase runs (spec §4.2).
func CaseName(index int) string { return sldName(index) }

// NewOverlay builds the overlay for one fuzz case.
func NewOverlay(index int, scripts []fuzzcase.ScriptedResponse) *Overlay {
	return &Overlay{index: index, scripts: scripts, consumed: make([]bool, len(scripts))}
}

// delegationRRs returns the NS + glue A record pair for NNNN.fuzz.,
// installed at fuzzAddr so a referral chain resolves to fuzzLeafAddr
// where the actual scripted data lives.
func (o *Overlay) delegationRRs() []dns.RR {
	sld := sldName(o.index)
	ns := nsName(o.index)
	return []dns.RR{
		nsRecord(sld, ns),
		aRecord(ns, fuzzLeafAddr),
	}
}

// match scans the script in order, returning the first unconsumed
// entry whose pattern matches (name, qtype, qclass). Sticky entries
// are left marked unconsumed so repeat queries reuse them.
func (o *Overlay) match(name string, qtype, qclass uint16) (fuzzcase.ScriptedResponse, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i, s := range o.scripts {
		if o.consumed[i] {
			continue
		}
		if !s.Match.Matches(name, qtype, qclass) {
			continue
		}
		if !s.Sticky {
			o.consumed[i] = true
		}
		return s, true
	}
	return fuzzcase.ScriptedResponse{}, false
}

// scopedName reports whether name falls under this overlay's NNNN.fuzz.
func (o *Overlay) scopedName(name string) bool {
	sld := sldName(o.index)
	return name == sld || dns.IsSubDomain(sld, name)
}

// hasDescendant reports whether some scripted response's exact owner
// name sits strictly below name, i.e. name is an empty non-terminal
// within this case's namespace rather than truly nonexistent. Mirrors
// zone.hasDescendant for the static zones (spec §4.2).
func (o *Overlay) hasDescendant(name string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	cname := dns.CanonicalName(name)
	for _, s := range o.scripts {
		if s.Match.Name == nil {
			continue
		}
		owner := dns.CanonicalName(*s.Match.Name)
		if owner != cname && dns.IsSubDomain(cname, owner) {
			return true
		}
	}
	return false
}
