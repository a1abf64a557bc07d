// Copyright (c) 2020 Doc.ai and/or its affiliates.
//
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at:
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package authns implements the in-process authoritative nameserver
// stack (spec §4.2): a fixed base zone tree served statically, one
// authoritative role per loopback address, plus a per-case overlay
// delegated out of "fuzz.". Grounded on the consume-on-use scripted
// responder of original_source/dnsauth/src/authns/dynamic.rs and the
// static in-memory authority of .../fixed.rs, reimplemented against
// github.com/miekg/dns instead of trust-dns, and on the teacher's
// dns.Server/dns.HandlerFunc wiring (fanout_test.go's newServer).
package authns

import (
	"strings"

	"github.com/miekg/dns"
)

// Addrs are the fixed loopback addresses the stack binds, one
// authoritative role per address (spec §4.2).
var Addrs = []string{
	rootAddr,
	netAddr,
	victimAddr,
	comTestAddr,
	fuzzAddr,
	fuzzLeafAddr,
	"127.193.1.1",
	"127.193.2.1",
}

const (
	rootAddr     = "127.64.1.1"
	netAddr      = "127.96.1.1"
	victimAddr   = "127.97.1.1"
	comTestAddr  = "127.98.1.1"
	fuzzAddr     = "127.128.1.1"
	fuzzLeafAddr = "127.192.1.1"
)

const baseTTL = 3600

// baseSerial is frozen per suite (spec §4.2: "serials frozen per suite")
// so zone transfers/comparisons are deterministic across a run.
const baseSerial = 2020010100

// rrKey identifies an exact owner name + type combination within a zone.
type rrKey struct {
	name  string // lowercased, fully-qualified
	rtype uint16
}

// zone is a flat, in-memory RRset map for everything one physical
// address is authoritative for. Unlike a multi-hop authority this
// never needs to walk across other zones: each address already knows
// exactly the handful of names it owns, plus any NS+glue referral
// records for names it delegates away (spec §4.2's one-role-per-address
// rule removes the need for fixed.rs's RFC 6672 walk).
type zone struct {
	apex    string
	records map[rrKey][]dns.RR
}

func newZone(apex string) *zone {
	return &zone{apex: dns.Fqdn(apex), records: make(map[rrKey][]dns.RR)}
}

func (z *zone) add(rr dns.RR) {
	k := rrKey{name: dns.CanonicalName(rr.Header().Name), rtype: rr.Header().Rrtype}
	z.records[k] = append(z.records[k], rr)
}

func (z *zone) lookup(name string, rtype uint16) []dns.RR {
	return z.records[rrKey{name: dns.CanonicalName(name), rtype: rtype}]
}

// nodeExists reports whether name itself owns any record.
func (z *zone) nodeExists(name string) bool {
	cname := dns.CanonicalName(name)
	for k := range z.records {
		if k.name == cname {
			return true
		}
	}
	return false
}

// hasDescendant reports whether some owned name is strictly below name,
// i.e. name is an empty non-terminal rather than truly nonexistent.
func (z *zone) hasDescendant(name string) bool {
	cname := dns.CanonicalName(name)
	for k := range z.records {
		if k.name != cname && dns.IsSubDomain(cname, k.name) {
			return true
		}
	}
	return false
}

// parentOf walks one label up from cur toward apex. It reports ok=false
// once cur has reached apex, so a caller ranging cur from qname up to
// apex visits every ancestor exactly once including apex itself.
func parentOf(cur, apex string) (string, bool) {
	if cur == apex {
		return "", false
	}
	labels := dns.SplitDomainName(cur)
	if len(labels) <= 1 {
		return apex, true
	}
	return dns.Fqdn(strings.Join(labels[1:], ".")), true
}

func soaRecord(origin string, serial uint32) *dns.SOA {
	return &dns.SOA{
		Hdr:     dns.RR_Header{Name: dns.Fqdn(origin), Rrtype: dns.TypeSOA, Class: dns.ClassINET, Ttl: baseTTL},
		Ns:      "ns." + dns.Fqdn(origin),
		Mbox:    "hostmaster." + dns.Fqdn(origin),
		Serial:  serial,
		Refresh: 1800,
		Retry:   900,
		Expire:  604800,
		Minttl:  1800,
	}
}

func aRecord(name, ip string) *dns.A {
	return &dns.A{Hdr: dns.RR_Header{Name: dns.Fqdn(name), Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: baseTTL}, A: mustParseIP(ip)}
}

func nsRecord(owner, target string) *dns.NS {
	return &dns.NS{Hdr: dns.RR_Header{Name: dns.Fqdn(owner), Rrtype: dns.TypeNS, Class: dns.ClassINET, Ttl: baseTTL}, Ns: dns.Fqdn(target)}
}

// SeedExtra adds rrs to the zone bound at addr, creating an empty zone
// rooted at apex first if none is bound there yet. This is how a parsed
// [[auth]] config block (spec §6) layers extra authoritative data onto
// the fixed base tree without this package depending on the config
// package for it.
func SeedExtra(zones map[string]*zone, addr, apex string, rrs []dns.RR) {
	z, ok := zones[addr]
	if !ok {
		z = newZone(apex)
		zones[addr] = z
	}
	for _, rr := range rrs {
		z.add(rr)
	}
}

// NewBaseTree builds one zone object per authoritative address (spec
// §4.2): root+ns. colocated at rootAddr referring out to the other
// zones, net.+victim.net. colocated at netAddr, com.+test. colocated
// at comTestAddr, and an empty fuzz. apex at fuzzAddr that InstallCase
// populates with per-case delegation.
func NewBaseTree() map[string]*zone {
	zones := make(map[string]*zone)

	root := newZone(".")
	root.add(soaRecord(".", baseSerial))
	root.add(nsRecord("fuzz.", "ns.fuzz."))
	root.add(aRecord("ns.fuzz.", fuzzAddr))
	root.add(nsRecord("com.", "ns.com."))
	root.add(aRecord("ns.com.", comTestAddr))
	root.add(nsRecord("test.", "ns.test."))
	root.add(aRecord("ns.test.", comTestAddr))
	root.add(nsRecord("net.", "ns.net."))
	root.add(aRecord("ns.net.", netAddr))
	root.add(soaRecord("ns.", baseSerial))
	root.add(aRecord("ns.ns.", rootAddr))
	zones[rootAddr] = root

	net := newZone("net.")
	net.add(soaRecord("net.", baseSerial))
	net.add(soaRecord("victim.net.", baseSerial))
	net.add(aRecord("victim.net.", victimAddr))
	zones[netAddr] = net

	// victimAddr is bound passively (spec §4.2 lists it among the fixed
	// addresses) and answers the same victim.net. data directly in case
	// a resolver queries it without following the net. referral first.
	victim := newZone("victim.net.")
	victim.add(soaRecord("victim.net.", baseSerial))
	victim.add(aRecord("victim.net.", victimAddr))
	zones[victimAddr] = victim

	comTest := newZone("com.")
	comTest.add(soaRecord("com.", baseSerial))
	comTest.add(soaRecord("test.", baseSerial))
	zones[comTestAddr] = comTest

	fuzz := newZone("fuzz.")
	fuzz.add(soaRecord("fuzz.", baseSerial))
	zones[fuzzAddr] = fuzz

	fuzzLeaf := newZone("fuzz.")
	zones[fuzzLeafAddr] = fuzzLeaf

	return zones
}
