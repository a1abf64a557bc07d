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

// Package fuzzproto implements the coverage control protocol (spec §6):
// a TCP, little-endian, length-prefixed command/response protocol between
// the coordinator and the coverage shim linked into each resolver. The
// shim's internals are an external collaborator (spec §1); only the wire
// protocol lives here, grounded on the command set of
// original_source/fuzzer-protocol/src/cmds.rs (there expressed as
// newline-delimited JSON; spec §6 mandates binary length-prefixed framing,
// which this package follows as the source of truth).
package fuzzproto

import "encoding/binary"

// Opcode identifies a control-protocol command or response.
type Opcode uint8

const (
	OpHello Opcode = iota + 1
	OpReset
	OpSnapshot
	OpPing
	OpPong
	OpAck
	OpBitmap
)

// HelloReply is the server's answer to HELLO: the number of counters in
// its coverage bitmap and the shim's protocol version (spec §6).
type HelloReply struct {
	BitmapSize  uint32
	ShimVersion uint16
}

// MarshalFrame encodes op plus payload as a length-prefixed frame:
// len(u32) | op(u8) | payload.
func MarshalFrame(op Opcode, payload []byte) []byte {
	frame := make([]byte, 4+1+len(payload))
	binary.LittleEndian.PutUint32(frame, uint32(1+len(payload)))
	frame[4] = byte(op)
	copy(frame[5:], payload)
	return frame
}

// MarshalHelloReply encodes a HelloReply payload (bitmap_size, shim_version).
func MarshalHelloReply(r HelloReply) []byte {
	buf := make([]byte, 6)
	binary.LittleEndian.PutUint32(buf[0:4], r.BitmapSize)
	binary.LittleEndian.PutUint16(buf[4:6], r.ShimVersion)
	return buf
}

// UnmarshalHelloReply parses a HelloReply payload.
func UnmarshalHelloReply(payload []byte) (HelloReply, error) {
	if len(payload) < 6 {
		return HelloReply{}, errShortPayload
	}
	return HelloReply{
		BitmapSize:  binary.LittleEndian.Uint32(payload[0:4]),
		ShimVersion: binary.LittleEndian.Uint16(payload[4:6]),
	}, nil
}
