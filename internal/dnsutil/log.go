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

// Package dnsutil holds small helpers shared by the fuzzer packages: a
// lazily-parsed DNS message wrapper, a per-run exchange log and a
// package-scoped logger constructor.
package dnsutil

import "github.com/sirupsen/logrus"

// NewLogger returns a package-scoped logger, mirroring the teacher's
// single package-level `var log = clog.NewWithPlugin("fanout")` idiom but
// backed by logrus since this binary does not run inside CoreDNS.
func NewLogger(component string) *logrus.Entry {
	return logrus.StandardLogger().WithField("component", component)
}
