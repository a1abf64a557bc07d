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

// Package fuzzcase holds the data model and binary codec for a single
// fuzz case and a fuzz suite (spec §3, §4.1, §6).
package fuzzcase

import (
	"github.com/google/uuid"
	"github.com/networkservicemesh/dnsdiffuzz/internal/dnsutil"
)

// QuestionPattern matches an incoming query. A nil field matches any value.
type QuestionPattern struct {
	Name   *string
	Qtype  *uint16
	Qclass *uint16
}

// Matches reports whether q matches the pattern.
func (p QuestionPattern) Matches(name string, qtype, qclass uint16) bool {
	if p.Name != nil && *p.Name != name {
		return false
	}
	if p.Qtype != nil && *p.Qtype != qtype {
		return false
	}
	if p.Qclass != nil && *p.Qclass != qclass {
		return false
	}
	return true
}

// ScriptedResponse is one entry in a case's authoritative response script.
// Entries are scanned in order and consumed on first use unless Sticky is
// set (spec §3, §9; Sticky is under-specified upstream, see DESIGN.md).
type ScriptedResponse struct {
	Match    QuestionPattern
	Response *dnsutil.WireMessage
	Drop     bool
	Sticky   bool
}

// Case is a single fuzz case: a client query plus a script of
// authoritative responses and a set of cache-check queries (spec §3).
type Case struct {
	UUID            uuid.UUID
	ParentUUID      uuid.UUID // zero value if this case has no parent (fresh generation)
	ClientQuery     *dnsutil.WireMessage
	ServerResponses []ScriptedResponse
	CacheChecks     []*dnsutil.WireMessage
}

// Clone deep-copies a case so mutations never alias an admitted, immutable
// corpus entry (spec §3: "immutable once admitted"; spec §4.6: "copy-on-write").
func (c *Case) Clone() *Case {
	clone := &Case{
		UUID:        uuid.New(),
		ParentUUID:  c.UUID,
		ClientQuery: c.ClientQuery.Clone(),
	}
	clone.ServerResponses = make([]ScriptedResponse, len(c.ServerResponses))
	for i, sr := range c.ServerResponses {
		clone.ServerResponses[i] = sr
		if sr.Response != nil {
			clone.ServerResponses[i].Response = sr.Response.Clone()
		}
	}
	clone.CacheChecks = make([]*dnsutil.WireMessage, len(c.CacheChecks))
	for i, cc := range c.CacheChecks {
		clone.CacheChecks[i] = cc.Clone()
	}
	return clone
}

// WireSize is the total packed size across client query, scripted
// responses and cache checks, used as the corpus minimization tiebreaker
// (spec §4.5: "ascending wire size as a tiebreaker").
func (c *Case) WireSize() int {
	size := len(c.ClientQuery.Bytes())
	for _, sr := range c.ServerResponses {
		if sr.Response != nil {
			size += len(sr.Response.Bytes())
		}
	}
	for _, cc := range c.CacheChecks {
		size += len(cc.Bytes())
	}
	return size
}

// Suite is an ordered collection of cases executed in one session, plus
// the metadata needed for reproducibility (spec §3).
type Suite struct {
	Seed          uint64
	SchemaVersion uint16
	Cases         []*Case
}
