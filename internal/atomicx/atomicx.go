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

// Package atomicx holds the small set of lock-free fields shared between a
// core's scheduler loop and the privileged system tasks (Postman,
// TaskManager) acting on a task from the other core. Every field a second
// core may touch without going through TaskManager's serialized mailbox
// lives here, mirroring concurrency/gopool's use of plain sync/atomic
// counters for cross-goroutine worker bookkeeping.
package atomicx

import "sync/atomic"

// Flag is a data-race-free boolean, used for a task's sleeping flag: the
// scheduler reads it every traversal step, TaskManager is the only writer.
type Flag struct {
	v atomic.Bool
}

func (f *Flag) Load() bool         { return f.v.Load() }
func (f *Flag) Store(val bool)     { f.v.Store(val) }
func (f *Flag) Swap(val bool) bool { return f.v.Swap(val) }

// Clock wraps atomic.Int64 for a task's wake-up deadline (microseconds,
// clock.Clock-relative). Zero is an ordinary deadline, already due at any
// non-negative clock reading.
type Clock struct {
	v atomic.Int64
}

func (c *Clock) Load() int64     { return c.v.Load() }
func (c *Clock) Store(val int64) { c.v.Store(val) }

// CompareAndSwap reports whether the swap happened, same contract as
// atomic.Int64.CompareAndSwap.
func (c *Clock) CompareAndSwap(old, new int64) bool {
	return c.v.CompareAndSwap(old, new)
}

// Core wraps atomic.Int32, used for the id of the core currently running a
// task (-1 when none). The collision check uses the per-core run pointers,
// not this field.
type Core struct {
	v atomic.Int32
}

func (c *Core) Load() int32     { return c.v.Load() }
func (c *Core) Store(val int32) { c.v.Store(val) }
