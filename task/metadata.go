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

package task

import (
	"github.com/cloudwego/rtcore/message"
	"github.com/cloudwego/rtcore/ringbuf"
	"github.com/cloudwego/rtcore/rterr"
)

// Metadata is the small, interior-mutability-free view handed to a Func on
// every invocation (Design Notes §9: "mutating one's own state happens by
// enqueueing a TaskManager request"). A task reads its own inbox through
// Inbox and writes outgoing messages through Send/RequestX; it never
// touches another task's fields directly.
type Metadata struct {
	TaskID     ID
	HostID     uint8
	Priority   uint32
	DebugLevel int32
	Now        int64
	Inbox      *ringbuf.Ring[message.Message]

	outbound      *ringbuf.Ring[message.Message]
	registry      *Registry
	taskManagerID ID
	selfIsSystem  bool
}

// NewMetadata snapshots self's identity and binds the outbound queue the
// scheduler has pointed self at for this invocation. Called by the
// scheduler immediately before each Func call.
func NewMetadata(self *Task, hostID uint8, now int64, registry *Registry, taskManagerID ID) *Metadata {
	return &Metadata{
		TaskID:        self.ID,
		HostID:        hostID,
		Priority:      self.Priority,
		DebugLevel:    self.DebugLevel(),
		Now:           now,
		Inbox:         self.Mailbox,
		outbound:      self.Outbound(),
		registry:      registry,
		taskManagerID: taskManagerID,
		selfIsSystem:  self.IsSystemTask(),
	}
}

// Send enqueues a message to this core's outbound queue, stamping sender
// fields and the invocation timestamp. Returns rterr.MailboxFull if the
// outbound queue itself is saturated.
func (m *Metadata) Send(recipientHost, recipientTask uint8, typ message.Type, primary, secondary uint32) error {
	if m.outbound == nil {
		return rterr.New(rterr.InvalidOperation, "no outbound queue bound for this invocation")
	}
	msg := message.Message{
		SenderHost:    m.HostID,
		SenderTask:    m.TaskID,
		RecipientHost: recipientHost,
		RecipientTask: recipientTask,
		Type:          typ,
		Primary:       primary,
		Secondary:     secondary,
		Timestamp:     uint64(m.Now),
	}
	if err := m.outbound.Write(msg); err != nil {
		return rterr.New(rterr.MailboxFull, err.Error())
	}
	return nil
}

// checkConditional implements §4.E's "conditional" permission rule for
// SetTaskPriority/SetTaskSleep/SetTaskWakeUp: a non-system task may not aim
// one of these at a system task. The check happens here, synchronously,
// before anything reaches TaskManager's mailbox.
func (m *Metadata) checkConditional(target ID) error {
	if m.registry != nil && m.registry.IsSystemTask(target) && !m.selfIsSystem {
		return rterr.Newf(rterr.InvalidOperation, "task %d may not target system task %d", m.TaskID, target)
	}
	return nil
}

func (m *Metadata) sendToTaskManager(typ message.Type, primary, secondary uint32) error {
	return m.Send(m.HostID, m.taskManagerID, typ, primary, secondary)
}

// RequestSetSystemState asks TaskManager to assign the global state. Any
// task may call this.
func (m *Metadata) RequestSetSystemState(s State) error {
	return m.sendToTaskManager(message.TypeSetSystemState, uint32(s), 0)
}

// RequestSetTaskState asks TaskManager to assign id's state. Any task may
// call this.
func (m *Metadata) RequestSetTaskState(id ID, s State) error {
	return m.sendToTaskManager(message.TypeSetTaskState, uint32(id), uint32(s))
}

// RequestSetTaskPriority asks TaskManager to reassign id's priority.
// Conditional: rejected without reaching TaskManager if id is a system
// task and the caller is not.
func (m *Metadata) RequestSetTaskPriority(id ID, priority uint32) error {
	if err := m.checkConditional(id); err != nil {
		return err
	}
	return m.sendToTaskManager(message.TypeSetTaskPriority, uint32(id), priority)
}

// RequestSetTaskSleep asks TaskManager to set id's sleeping flag.
// Conditional, same rule as RequestSetTaskPriority.
func (m *Metadata) RequestSetTaskSleep(id ID, asleep bool) error {
	if err := m.checkConditional(id); err != nil {
		return err
	}
	var b uint32
	if asleep {
		b = 1
	}
	return m.sendToTaskManager(message.TypeSetTaskSleep, uint32(id), b)
}

// RequestSetTaskWakeUp asks TaskManager to set id's wake-up deadline to
// now + usec. Conditional, same rule as RequestSetTaskPriority.
func (m *Metadata) RequestSetTaskWakeUp(id ID, usec uint32) error {
	if err := m.checkConditional(id); err != nil {
		return err
	}
	return m.sendToTaskManager(message.TypeSetTaskWakeUp, uint32(id), usec)
}

// RequestSetTaskDebug asks TaskManager to set id's debug verbosity. Any
// task may call this.
func (m *Metadata) RequestSetTaskDebug(id ID, level int32) error {
	return m.sendToTaskManager(message.TypeSetTaskDebug, uint32(id), uint32(level))
}

// RequestWakeAll asks TaskManager to wake every sleeping task. Any task may
// call this.
func (m *Metadata) RequestWakeAll() error {
	return m.sendToTaskManager(message.TypeWakeAll, 0, 0)
}

// RequestDedicateTo asks TaskManager to put every non-system, non-target
// task to sleep. Any task may call this; TaskManager itself rejects a
// system-task target and a sleeping target (§4.E).
func (m *Metadata) RequestDedicateTo(id ID) error {
	return m.sendToTaskManager(message.TypeDedicateToTask, uint32(id), 0)
}
