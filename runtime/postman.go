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

package runtime

import (
	"github.com/cloudwego/rtcore/eventlog"
	"github.com/cloudwego/rtcore/message"
	"github.com/cloudwego/rtcore/ringbuf"
	"github.com/cloudwego/rtcore/rterr"
	"github.com/cloudwego/rtcore/task"
)

// Postman drains both per-core outbound queues into recipient mailboxes
// and marks which recipients need waking. It is a pre-registered system
// task ("$postman"), invoked only via the scheduler's bypass path — never
// through the normal priority traversal — and serialized across both
// cores by System's postman lock so at most one drain runs at a time.
type Postman struct {
	outbound      [numCores]*ringbuf.Ring[message.Message]
	registry      *task.Registry
	taskManagerID task.ID
	irqDemuxID    task.ID
	eventLogID    task.ID
	drainCap      int

	pendingWake []task.ID
}

// NewPostman constructs a Postman draining both cores' outbound queues.
func NewPostman(outbound [numCores]*ringbuf.Ring[message.Message], registry *task.Registry, taskManagerID, irqDemuxID, eventLogID task.ID, drainCap int) *Postman {
	return &Postman{
		outbound:      outbound,
		registry:      registry,
		taskManagerID: taskManagerID,
		irqDemuxID:    irqDemuxID,
		eventLogID:    eventLogID,
		drainCap:      drainCap,
	}
}

// Run implements task.Func.
func (p *Postman) Run(meta *task.Metadata) (rterr.Kind, error) {
	p.pendingWake = p.pendingWake[:0]
	for i := range p.outbound {
		p.drainQueue(meta, p.outbound[i])
	}

	// Wake-up requests are enqueued after all message deliveries for this
	// run, and never for TaskManager or the interrupt demux themselves
	// (§4.D).
	for _, id := range p.pendingWake {
		if id == p.taskManagerID || id == p.irqDemuxID {
			continue
		}
		_ = meta.Send(meta.HostID, p.taskManagerID, message.TypeSetTaskSleep, uint32(id), 0)
	}

	_ = meta.RequestSetTaskSleep(meta.TaskID, true)
	return rterr.Ok, nil
}

func (p *Postman) drainQueue(meta *task.Metadata, q *ringbuf.Ring[message.Message]) {
	for i := 0; i < p.drainCap; i++ {
		msg, ok := q.Peek()
		if !ok {
			return
		}
		q.Pop()

		if msg.RecipientTask == message.TaskUnspecified || !p.registry.IsValid(msg.RecipientTask) {
			_ = eventlog.Log(meta, p.eventLogID, message.TypeLogError,
				"postman: dropped message type %d, invalid recipient task %d", msg.Type, msg.RecipientTask)
			continue
		}
		recipient := p.registry.Task(msg.RecipientTask)
		if err := recipient.Mailbox.Write(msg); err != nil {
			_ = eventlog.Log(meta, p.eventLogID, message.TypeLogError,
				"postman: mailbox full for task %d, dropped message type %d", msg.RecipientTask, msg.Type)
			continue
		}
		p.pendingWake = append(p.pendingWake, msg.RecipientTask)
	}
}
