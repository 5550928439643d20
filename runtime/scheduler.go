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
	"fmt"
	"math"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/cloudwego/rtcore/rterr"
	"github.com/cloudwego/rtcore/task"
)

// ceilingCycle is the three-step priority ceiling that tags each complete
// traversal pass (§4.C): high, normal, low, then back to high. A task whose
// own priority value is <= the pass's ceiling is "considered" on that pass;
// since High < Normal < Low, a high-priority task is considered on every
// pass and a low-priority task only on the low pass — exactly the 3:2:1
// ratio per full three-pass cycle.
type ceilingCycle struct {
	step int
}

func (c *ceilingCycle) value(cfg *Config) uint32 {
	if cfg.DisablePriorities {
		return math.MaxUint32
	}
	switch c.step % 3 {
	case 0:
		return cfg.PriorityHigh
	case 1:
		return cfg.PriorityNormal
	default:
		return cfg.PriorityLow
	}
}

func (c *ceilingCycle) advance() { c.step++ }

// coreLoop is one core's half of the scheduler: its own traversal
// direction, its own run pointer (published so the other core can perform
// the collision check), and its own priority ceiling cycle.
type coreLoop struct {
	id      CoreID
	ascend  bool // core 0 walks bottom-up; core 1 walks top-down
	sys     *System
	ceiling ceilingCycle

	// runPointer is read by the other core's goroutine on every collision
	// check, so it is atomic rather than a plain field.
	runPointer atomic.Int32 // task.ID of the task currently claimed, or -1
}

func newCoreLoop(id CoreID, ascend bool, sys *System) *coreLoop {
	c := &coreLoop{id: id, ascend: ascend, sys: sys}
	c.runPointer.Store(-1)
	return c
}

// order returns every non-scheduler task id in this core's traversal
// direction for a single pass.
func (c *coreLoop) order() []task.ID {
	n := c.sys.registry.Len()
	if n <= 1 {
		return nil
	}
	ids := make([]task.ID, 0, n-1)
	if c.ascend {
		for id := 1; id < n; id++ {
			ids = append(ids, task.ID(id))
		}
	} else {
		for id := n - 1; id >= 1; id-- {
			ids = append(ids, task.ID(id))
		}
	}
	return ids
}

// runPass walks every task once at the current ceiling, then advances the
// ceiling for the next pass.
func (c *coreLoop) runPass() {
	for _, id := range c.order() {
		if c.sys.State() != SystemRun {
			return
		}
		c.considerAndDrain(id)
	}
	c.ceiling.advance()
}

// considerAndDrain applies the §4.C per-iteration filter to id, executing it
// if eligible, then performs the drainage bypass checks that run on every
// iteration regardless of whether id itself ran.
func (c *coreLoop) considerAndDrain(id task.ID) {
	if !c.claim(id) {
		c.drain()
		return
	}
	defer c.runPointer.Store(-1)

	t := c.sys.registry.Task(id)
	if t == nil || c.sys.isBypassOnly(id) {
		c.drain()
		return
	}

	ceiling := c.ceiling.value(&c.sys.cfg)
	now := c.sys.clk.NowMicros()

	if t.Priority <= ceiling && !t.Sleeping() && t.WakeUpAt() <= now && t.State() == task.StateRun {
		c.execute(t, now)
	}
	c.drain()
}

// claim performs the collision check: it publishes id as this core's run
// pointer and, if the other core has published the same id, backs off for a
// short randomized, core-biased interval before re-checking once. If the
// collision persists, this core yields the iteration, so the two cores never
// both run id. When both cores still see the collision after their back-off,
// both yield and neither runs id on this iteration (§4.C, collision
// resolution).
func (c *coreLoop) claim(id task.ID) bool {
	c.runPointer.Store(int32(id))
	other := c.sys.otherCoreLoop(c.id)
	if other.runPointer.Load() != int32(id) {
		return true
	}
	base := c.sys.cfg.CollisionBackoffBaseNs
	if base <= 0 {
		base = 2000
	}
	if c.id == Core1 {
		base *= 2 // break symmetry: core 1 always backs off longer
	}
	jitter := time.Duration(base + rand.Int63n(base))
	time.Sleep(jitter)
	if other.runPointer.Load() == int32(id) {
		c.runPointer.Store(-1)
		return false
	}
	return true
}

// execute runs one task, then performs the execution step's bookkeeping:
// bind it to this core and this core's outbound queue for the duration of
// the call, recover from a panic as a fatal Kind, and advance its wake-up
// deadline afterward if it hasn't already moved it into the future.
func (c *coreLoop) execute(t *task.Task, now int64) {
	t.SetRunningCore(int32(c.id))
	t.SetOutbound(c.sys.outbound[c.id])
	meta := task.NewMetadata(t, hostID, now, c.sys.registry, c.sys.taskManagerID)

	kind, err := c.safeCall(t, meta)
	t.SetRunningCore(-1)

	if kind != rterr.Ok || err != nil {
		c.sys.fail(fmt.Errorf("task %q (%d): %w", t.Name, t.ID, firstNonNil(err, kind)))
		return
	}
	if c.sys.State() == SystemRun && t.WakeUpAt() <= now {
		t.AdvanceWakeUpAt(now)
	}
}

func firstNonNil(err error, kind rterr.Kind) error {
	if err != nil {
		return err
	}
	return rterr.Newf(kind, "non-ok status")
}

// safeCall invokes t.Fn, converting a panic into a fatal Kind/error pair
// rather than letting it unwind into the scheduler goroutine.
func (c *coreLoop) safeCall(t *task.Task, meta *task.Metadata) (kind rterr.Kind, err error) {
	if t.Fn == nil {
		return rterr.Ok, nil
	}
	defer func() {
		if r := recover(); r != nil {
			kind = rterr.RunningTask
			err = fmt.Errorf("task %q panicked: %v", t.Name, r)
		}
	}()
	return t.Fn(meta)
}

// drain implements §4.C's drainage rule: if the shared interrupt queue is
// non-empty, bypass into the demux, then Postman, then TaskManager; else if
// this core's outbound queue is non-empty, bypass into Postman then
// TaskManager. Either way the previously claimed run pointer is restored
// once the bypass calls return.
func (c *coreLoop) drain() {
	saved := c.runPointer.Load()
	defer c.runPointer.Store(saved)

	if c.sys.demux != nil && c.sys.demux.Pending() > 0 {
		c.invokeBypass(c.sys.irqDemuxID, &c.sys.irqMu)
		c.invokeBypass(c.sys.postmanID, &c.sys.postmanMu)
		c.invokeBypass(c.sys.taskManagerID, &c.sys.taskManagerMu)
		return
	}
	if c.sys.outbound[c.id].MessagesWaiting() > 0 {
		c.invokeBypass(c.sys.postmanID, &c.sys.postmanMu)
		c.invokeBypass(c.sys.taskManagerID, &c.sys.taskManagerMu)
	}
}

// invokeBypass calls id's Func directly, skipping every filter. mu
// serializes concurrent bypass calls targeting the same single-instance
// system task from both cores.
func (c *coreLoop) invokeBypass(id task.ID, mu lockable) {
	t := c.sys.registry.Task(id)
	if t == nil {
		return
	}
	mu.Lock()
	defer mu.Unlock()

	c.runPointer.Store(int32(id))
	t.SetRunningCore(int32(c.id))
	t.SetOutbound(c.sys.outbound[c.id])
	now := c.sys.clk.NowMicros()
	meta := task.NewMetadata(t, hostID, now, c.sys.registry, c.sys.taskManagerID)

	kind, err := c.safeCall(t, meta)
	t.SetRunningCore(-1)
	if kind != rterr.Ok || err != nil {
		c.sys.fail(fmt.Errorf("bypass task %q (%d): %w", t.Name, t.ID, firstNonNil(err, kind)))
	}
}
