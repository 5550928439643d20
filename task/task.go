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

// Package task holds the Task record, its lifecycle State, the Registry
// that owns the dense task table, and the Metadata view handed to a
// running task's Func on every invocation.
package task

import (
	"strings"
	"sync/atomic"

	"github.com/cloudwego/rtcore/internal/atomicx"
	"github.com/cloudwego/rtcore/message"
	"github.com/cloudwego/rtcore/ringbuf"
	"github.com/cloudwego/rtcore/rterr"
)

// ID identifies a registered task. Dense starting at 0; 0 is reserved for
// "the scheduler itself" and is never invoked.
type ID = uint8

// SchedulerID is the reserved identifier for id 0 (no function, never
// scheduled).
const SchedulerID ID = 0

// SystemTaskPrefix marks a task name as belonging to the runtime rather
// than to user code; is_system_task checks this prefix.
const SystemTaskPrefix = "$"

// State is a task's lifecycle state. Values below StateUserBase are
// predefined; a task may assign additional application-defined values
// starting at StateUserBase without colliding with the runtime's own.
type State int32

const (
	StateInit State = iota
	StateRun
	StateStop
	StateDown

	StateUserBase State = 16
)

// Func is the single capability every task exposes: step once with a
// snapshot of its metadata, return a status code plus optional detail. Any
// Kind other than rterr.Ok is fatal to the whole system during the Run
// phase (§4.C execution step); a Func must never panic for an ordinary
// failure, only return a Kind describing it.
type Func func(meta *Metadata) (rterr.Kind, error)

// Task is one entry in the Registry's dense table.
//
// Per the Design Notes, the three fields read by the scheduler's
// per-iteration filter without locking — sleeping, wakeUpAt, runningCore —
// are atomic; every other field is mutated exclusively by TaskManager (or,
// during bring-up/shutdown, by the scheduler itself, which at those points
// is the only core doing any mutation).
type Task struct {
	ID       ID
	Name     string
	Fn       Func
	Priority uint32 // microseconds: minimum gap between successive runs

	Mailbox *ringbuf.Ring[message.Message]

	state      atomic.Int32
	debugLevel atomic.Int32

	sleeping    atomicx.Flag
	wakeUpAt    atomicx.Clock
	runningCore atomicx.Core

	outbound *ringbuf.Ring[message.Message]
}

// New constructs a Task in StateInit, asleep, with no wake-up deadline and
// no assigned core. mailboxCapacity is passed straight to ringbuf.New.
func New(id ID, name string, fn Func, priority uint32, mailboxCapacity int) *Task {
	t := &Task{
		ID:       id,
		Name:     name,
		Fn:       fn,
		Priority: priority,
		Mailbox:  ringbuf.New[message.Message](mailboxCapacity),
	}
	t.state.Store(int32(StateInit))
	t.sleeping.Store(true)
	t.runningCore.Store(-1)
	return t
}

// IsSystemTask reports whether this task's name begins with the reserved
// prefix used for every runtime-owned task ("$postman", "$taskmanager",
// "$timer", "$watchdog", "$eventlog", "$irqdemux", "$scheduler").
func (t *Task) IsSystemTask() bool {
	return strings.HasPrefix(t.Name, SystemTaskPrefix)
}

// State returns the task's current lifecycle state.
func (t *Task) State() State { return State(t.state.Load()) }

// SetState assigns the task's lifecycle state. Only TaskManager and the
// scheduler's bring-up/shutdown passes call this.
func (t *Task) SetState(s State) { t.state.Store(int32(s)) }

// DebugLevel returns the task's current verbosity.
func (t *Task) DebugLevel() int32 { return t.debugLevel.Load() }

// SetDebugLevel assigns verbosity; TaskManager's SetTaskDebug operation.
func (t *Task) SetDebugLevel(level int32) { t.debugLevel.Store(level) }

// Sleeping reports the task's sleeping flag, read lock-free by the
// scheduler's per-iteration filter.
func (t *Task) Sleeping() bool { return t.sleeping.Load() }

// SetSleeping assigns the sleeping flag. TaskManager's SetTaskSleep.
func (t *Task) SetSleeping(asleep bool) { t.sleeping.Store(asleep) }

// WakeUpAt returns the task's wake-up deadline in clock.Clock microseconds.
func (t *Task) WakeUpAt() int64 { return t.wakeUpAt.Load() }

// SetWakeUpAt assigns the wake-up deadline.
func (t *Task) SetWakeUpAt(usec int64) { t.wakeUpAt.Store(usec) }

// AdvanceWakeUpAt implements the execution step's missed-slot catch-up: add
// priority to the deadline, repeatedly, until it is strictly greater than
// now. If the task moved its own deadline into the future during its run,
// this is a no-op by construction (Design Notes §9, second bullet).
func (t *Task) AdvanceWakeUpAt(now int64) {
	deadline := t.wakeUpAt.Load()
	for deadline <= now {
		deadline += int64(t.Priority)
	}
	t.wakeUpAt.Store(deadline)
}

// RunningCore returns the id of the core currently executing this task, or
// -1 if none.
func (t *Task) RunningCore() int32 { return t.runningCore.Load() }

// SetRunningCore assigns the running-core field; set by the scheduler
// immediately before invocation and cleared immediately after.
func (t *Task) SetRunningCore(core int32) { t.runningCore.Store(core) }

// SetOutbound points the task at the outbound queue owned by the core about
// to run it. Called by the scheduler immediately before each invocation.
func (t *Task) SetOutbound(q *ringbuf.Ring[message.Message]) { t.outbound = q }

// Outbound returns the queue set by the most recent SetOutbound call.
func (t *Task) Outbound() *ringbuf.Ring[message.Message] { return t.outbound }
