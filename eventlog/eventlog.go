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

// Package eventlog collects formatted log records as messages and writes
// them through a single sink per level. Other tasks never touch a Sink
// directly; they call Log, which formats into a pooled buffer and sends it
// through the caller's outbound queue, from which Postman delivers it to the
// Event Log task's mailbox.
package eventlog

import (
	"fmt"

	"github.com/cloudwego/rtcore/message"
	"github.com/cloudwego/rtcore/rterr"
	"github.com/cloudwego/rtcore/task"
)

var (
	defaultPool  = newBytePool()
	defaultTable = newHandleTable()
)

// Log formats a record and enqueues it to eventLogID at the given level
// (message.TypeLogNotify or message.TypeLogError). The Event Log task owns
// releasing the pooled buffer once it has written the record.
func Log(meta *task.Metadata, eventLogID task.ID, level message.Type, format string, args ...interface{}) error {
	text := fmt.Sprintf(format, args...)
	buf := defaultPool.Malloc(len(text))
	copy(buf, text)
	handle := defaultTable.Store(buf)
	if err := meta.Send(meta.HostID, eventLogID, level, handle, uint32(len(text))); err != nil {
		// Delivery never happened; reclaim immediately rather than leaking
		// the handle.
		if b, ok := defaultTable.Release(handle); ok {
			defaultPool.Free(b)
		}
		return err
	}
	return nil
}

// EventLog is the system task's state: one Sink per level.
type EventLog struct {
	normal *Sink
	error  *Sink
}

// New constructs an EventLog writing normal-level records to normalSink and
// error-level records to errorSink.
func New(normalSink, errorSink *Sink) *EventLog {
	return &EventLog{normal: normalSink, error: errorSink}
}

// Run drains the mailbox, writing each accepted record to the
// level-appropriate sink and releasing its pooled payload. Cross-host
// records are rejected (never accepted) since a handle is a local-process
// table index, not a portable pointer (§4.I).
func (e *EventLog) Run(meta *task.Metadata) (rterr.Kind, error) {
	for {
		msg, ok := meta.Inbox.Peek()
		if !ok {
			return rterr.Ok, nil
		}
		meta.Inbox.Pop()

		if task.HandlePing(meta, msg) {
			continue
		}
		if msg.Type != message.TypeLogNotify && msg.Type != message.TypeLogError {
			continue
		}
		if msg.SenderHost != meta.HostID {
			continue // cross-host payload handle: not ours to dereference
		}
		buf, ok := defaultTable.Release(msg.Primary)
		if !ok {
			continue
		}
		n := int(msg.Secondary)
		if n > len(buf) {
			n = len(buf)
		}
		sink := e.normal
		if msg.Type == message.TypeLogError {
			sink = e.error
		}
		_ = sink.WriteRecord(buf[:n])
		defaultPool.Free(buf)
	}
}
