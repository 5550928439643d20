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
	"github.com/cloudwego/rtcore/rterr"
	"github.com/cloudwego/rtcore/task"
)

// taskManagerDrainCap bounds how many requests TaskManager applies per
// invocation.
const taskManagerDrainCap = 64

// TaskManager is the sole mutator of task and system state (§5). It is a
// pre-registered system task ("$taskmanager") invoked only via the
// scheduler's bypass path; every other component reaches it by enqueueing a
// request through task.Metadata's RequestX helpers.
type TaskManager struct {
	registry       *task.Registry
	eventLogID     task.ID
	setGlobalState func(SystemState)
}

// NewTaskManager constructs a TaskManager. setGlobalState is called for
// SetSystemState requests; it is bound to the owning System's own state
// setter so TaskManager does not need a full System reference.
func NewTaskManager(registry *task.Registry, eventLogID task.ID, setGlobalState func(SystemState)) *TaskManager {
	return &TaskManager{registry: registry, eventLogID: eventLogID, setGlobalState: setGlobalState}
}

// Run implements task.Func.
func (tm *TaskManager) Run(meta *task.Metadata) (rterr.Kind, error) {
	for i := 0; i < taskManagerDrainCap; i++ {
		msg, ok := meta.Inbox.Peek()
		if !ok {
			break
		}
		meta.Inbox.Pop()
		if task.HandlePing(meta, msg) {
			continue
		}
		tm.apply(meta, msg)
	}
	return rterr.Ok, nil
}

func (tm *TaskManager) apply(meta *task.Metadata, msg message.Message) {
	switch msg.Type {
	case message.TypeSetSystemState:
		if tm.setGlobalState != nil {
			tm.setGlobalState(SystemState(msg.Primary))
		}
	case message.TypeSetTaskState:
		if t := tm.registry.Task(task.ID(msg.Primary)); t != nil {
			t.SetState(task.State(msg.Secondary))
		}
	case message.TypeSetTaskPriority:
		if t := tm.registry.Task(task.ID(msg.Primary)); t != nil {
			t.Priority = msg.Secondary
		}
	case message.TypeSetTaskSleep:
		tm.setSleep(meta, task.ID(msg.Primary), msg.Secondary == 1)
	case message.TypeSetTaskWakeUp:
		if t := tm.registry.Task(task.ID(msg.Primary)); t != nil {
			t.SetWakeUpAt(meta.Now + int64(msg.Secondary))
		}
	case message.TypeSetTaskDebug:
		if t := tm.registry.Task(task.ID(msg.Primary)); t != nil {
			t.SetDebugLevel(int32(msg.Secondary))
		}
	case message.TypeWakeAll:
		tm.wakeAll(meta)
	case message.TypeDedicateToTask:
		tm.dedicateTo(meta, task.ID(msg.Primary))
	}
}

func (tm *TaskManager) setSleep(meta *task.Metadata, id task.ID, asleep bool) {
	t := tm.registry.Task(id)
	if t == nil {
		return
	}
	t.SetSleeping(asleep)
	if !asleep {
		t.SetWakeUpAt(meta.Now)
	}
}

func (tm *TaskManager) wakeAll(meta *task.Metadata) {
	for _, t := range tm.registry.All() {
		if t.ID == task.SchedulerID || !t.Sleeping() {
			continue
		}
		t.SetSleeping(false)
		t.SetWakeUpAt(meta.Now)
	}
}

// dedicateTo puts every non-system task other than target to sleep, so
// target (and the system tasks, which keep running regardless) monopolizes
// the scheduler. Rejected, with a report to the event log, if target is
// invalid, a system task, or already asleep (§4.E).
func (tm *TaskManager) dedicateTo(meta *task.Metadata, target task.ID) {
	t := tm.registry.Task(target)
	if t == nil || t.IsSystemTask() {
		_ = eventlog.Log(meta, tm.eventLogID, message.TypeLogError, "dedicate-to: invalid target %d", target)
		return
	}
	if t.Sleeping() {
		_ = eventlog.Log(meta, tm.eventLogID, message.TypeLogError, "dedicate-to: target %d is already asleep", target)
		return
	}
	for _, other := range tm.registry.All() {
		if other.ID == target || other.ID == task.SchedulerID || other.IsSystemTask() {
			continue
		}
		other.SetSleeping(true)
	}
}
