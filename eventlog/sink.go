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

package eventlog

import (
	"io"

	"github.com/bytedance/gopkg/lang/mcache"
)

// Sink is the single writer for one level (normal or error). A record is
// Malloc'd from mcache, written, and Freed in one call, since there is
// structurally only ever one goroutine (the Event Log task itself)
// producing records for a given Sink, so there is no concurrent-write
// hazard to guard against the way a general-purpose buffered writer would
// need to.
type Sink struct {
	w io.Writer
}

// NewSink wraps w; every WriteRecord call writes and flushes immediately.
func NewSink(w io.Writer) *Sink {
	return &Sink{w: w}
}

// WriteRecord writes data followed by a newline in a single underlying
// Write call.
func (s *Sink) WriteRecord(data []byte) error {
	buf := mcache.Malloc(len(data) + 1)
	defer mcache.Free(buf)
	copy(buf, data)
	buf[len(data)] = '\n'
	_, err := s.w.Write(buf)
	return err
}
