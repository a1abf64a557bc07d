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

// Package harness runs one resolver process through one fuzz case: it
// dials the resolver's coverage control socket, sends the case's client
// query against 127.0.0.1:53, lets the authoritative stack answer in the
// background, then issues the case's cache-check queries and reads back
// the coverage delta (spec §4.3). Grounded on the teacher's
// transport.go/client.go dns.Conn dial-write-read loop, generalized from
// one upstream request to this state machine.
package harness

// state is one node of the per-resolver, per-case execution state
// machine.
type state int

const (
	stateIdle state = iota
	stateControlConnected
	stateCoverageReset
	stateReady
	stateClientQuerySent
	stateAwaitingResolverQueries
	stateAnsweringResolverQueries
	stateClientResponseReceived
	stateTimeout
	stateCacheChecks
	stateCoverageRead
	stateDone
)

func (s state) String() string {
	switch s {
	case stateIdle:
		return "IDLE"
	case stateControlConnected:
		return "CONTROL_CONNECTED"
	case stateCoverageReset:
		return "COVERAGE_RESET"
	case stateReady:
		return "READY"
	case stateClientQuerySent:
		return "CLIENT_QUERY_SENT"
	case stateAwaitingResolverQueries:
		return "AWAITING_RESOLVER_QUERIES"
	case stateAnsweringResolverQueries:
		return "ANSWERING_RESOLVER_QUERIES"
	case stateClientResponseReceived:
		return "CLIENT_RESPONSE_RECEIVED"
	case stateTimeout:
		return "TIMEOUT"
	case stateCacheChecks:
		return "CACHE_CHECKS"
	case stateCoverageRead:
		return "COVERAGE_READ"
	case stateDone:
		return "DONE"
	default:
		return "UNKNOWN"
	}
}
