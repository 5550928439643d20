/*
 * Copyright 2024 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package message

import (
	"encoding/binary"
	"errors"
)

// WireSize is the encoded length of a Message, matching the layout
// documented in the package comment.
const WireSize = 5 + 4 + 4 + 8

var errShortBuffer = errors.New("message: buffer shorter than WireSize")

// Encode lays m out into buf (which must have len(buf) >= WireSize) and
// returns the number of bytes written. It never allocates, mirroring
// protocol/thrift's BinaryProtocol.WriteX methods: one fixed-width field
// per step.
func Encode(buf []byte, m Message) int {
	_ = buf[:WireSize] // bounds check hint, same idiom as BinaryProtocol writers
	buf[0] = m.SenderHost
	buf[1] = m.SenderTask
	buf[2] = m.RecipientHost
	buf[3] = m.RecipientTask
	buf[4] = byte(m.Type)
	binary.BigEndian.PutUint32(buf[5:], m.Primary)
	binary.BigEndian.PutUint32(buf[9:], m.Secondary)
	binary.BigEndian.PutUint64(buf[13:], m.Timestamp)
	return WireSize
}

// Decode parses a Message out of buf's first WireSize bytes.
func Decode(buf []byte) (Message, error) {
	if len(buf) < WireSize {
		return Message{}, errShortBuffer
	}
	return Message{
		SenderHost:    buf[0],
		SenderTask:    buf[1],
		RecipientHost: buf[2],
		RecipientTask: buf[3],
		Type:          Type(buf[4]),
		Primary:       binary.BigEndian.Uint32(buf[5:]),
		Secondary:     binary.BigEndian.Uint32(buf[9:]),
		Timestamp:     binary.BigEndian.Uint64(buf[13:]),
	}, nil
}
