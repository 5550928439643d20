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

import "github.com/cloudwego/rtcore/rterr"

// DefaultMaxTasks is the default table capacity; configurable up to 250
// (§6's MaxTasks configuration key).
const DefaultMaxTasks = 64

// Registry is the fixed, dense table of tasks. Capacity is bounded at
// construction; registration is only legal while the system is in
// task.StateInit. Id 0 is reserved and pre-filled with a no-op sentinel
// task named "$scheduler" so is_valid(0) and is_system_task(0) both behave
// sensibly without special-casing every call site — the table is a plain
// []*Task slice rather than container/strmap's byte-arena because at this
// size (≤250 short names) a linear scan beats the bookkeeping of an arena
// (see DESIGN.md).
type Registry struct {
	maxTasks int
	tasks    []*Task
	frozen   bool
}

// NewRegistry constructs a Registry with the given capacity (values below 1
// become DefaultMaxTasks, values above 250 become 250) and pre-registers the
// id-0 scheduler sentinel, which counts towards that capacity.
func NewRegistry(maxTasks int) *Registry {
	if maxTasks < 1 {
		maxTasks = DefaultMaxTasks
	}
	if maxTasks > 250 {
		maxTasks = 250
	}
	r := &Registry{maxTasks: maxTasks}
	sentinel := New(SchedulerID, "$scheduler", nil, 0, 2)
	r.tasks = append(r.tasks, sentinel)
	return r
}

// Register appends a new task, assigning it the next dense id. Returns
// rterr.TooManyTasks once the table is at capacity, and rterr.Initializing
// if the registry has already been frozen (the system has left StateInit).
func (r *Registry) Register(name string, fn Func, priority uint32, mailboxCapacity int) (ID, error) {
	if r.frozen {
		return 0, rterr.New(rterr.Initializing, "registration only permitted before Run")
	}
	if len(r.tasks) >= r.maxTasks {
		return 0, rterr.Newf(rterr.TooManyTasks, "registry at capacity %d", r.maxTasks)
	}
	id := ID(len(r.tasks))
	r.tasks = append(r.tasks, New(id, name, fn, priority, mailboxCapacity))
	return id, nil
}

// Freeze locks the registry against further registration; called once the
// system leaves StateInit for StateRun.
func (r *Registry) Freeze() { r.frozen = true }

// Len returns the number of registered tasks, including id 0.
func (r *Registry) Len() int { return len(r.tasks) }

// IsValid reports whether id names a registered task.
func (r *Registry) IsValid(id ID) bool {
	return int(id) < len(r.tasks)
}

// Task returns the task at id, or nil if id is out of range.
func (r *Registry) Task(id ID) *Task {
	if !r.IsValid(id) {
		return nil
	}
	return r.tasks[id]
}

// All returns the dense backing slice; callers must not mutate it.
func (r *Registry) All() []*Task { return r.tasks }

// LookupByName performs a linear scan for a task with the given name.
func (r *Registry) LookupByName(name string) (ID, bool) {
	for _, t := range r.tasks {
		if t.Name == name {
			return t.ID, true
		}
	}
	return 0, false
}

// IsAwake reports whether id names a valid, non-sleeping task.
func (r *Registry) IsAwake(id ID) bool {
	t := r.Task(id)
	return t != nil && !t.Sleeping()
}

// IsSystemTask reports whether id names a valid task whose name carries the
// reserved system-task prefix.
func (r *Registry) IsSystemTask(id ID) bool {
	t := r.Task(id)
	return t != nil && t.IsSystemTask()
}
