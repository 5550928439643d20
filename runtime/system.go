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

// Package runtime wires the task registry and the six privileged system
// tasks (Postman, TaskManager, the interrupt demultiplexer, the software
// timer, the watchdog, and the event log) into a running dual-core
// cooperative scheduler.
package runtime

import (
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cloudwego/rtcore/clock"
	"github.com/cloudwego/rtcore/eventlog"
	"github.com/cloudwego/rtcore/irq"
	"github.com/cloudwego/rtcore/message"
	"github.com/cloudwego/rtcore/ringbuf"
	"github.com/cloudwego/rtcore/rterr"
	"github.com/cloudwego/rtcore/task"
	"github.com/cloudwego/rtcore/timer"
	"github.com/cloudwego/rtcore/watchdog"
)

// CoreID names one of the two cooperating cores.
type CoreID int32

const (
	Core0    CoreID = 0
	Core1    CoreID = 1
	numCores        = 2
)

// hostID is this single-host build's address; multi-host addressing is out
// of scope (SPEC_FULL.md Non-goals).
const hostID uint8 = 0

// SystemState is the global lifecycle state driving both cores'
// bring-up/run/shutdown behavior (§4.C).
type SystemState int32

const (
	SystemInit SystemState = iota
	SystemRun
	SystemStop
	SystemDown
)

// lockable is satisfied by *sync.Mutex; named so scheduler.go's bypass
// helper doesn't need to import sync directly.
type lockable interface {
	Lock()
	Unlock()
}

// ReadySignal models the external "system ready" digital output: raised
// once bring-up completes, lowered the moment shutdown begins.
type ReadySignal interface {
	SetReady(bool)
	Ready() bool
}

type atomicReady struct {
	v atomic.Bool
}

func (r *atomicReady) SetReady(v bool) { r.v.Store(v) }
func (r *atomicReady) Ready() bool     { return r.v.Load() }

// System owns the task registry, the per-core outbound queues, the shared
// interrupt queue, the six system tasks, and the two coreLoops that drive
// them.
type System struct {
	cfg      Config
	clk      clock.Clock
	registry *task.Registry
	ready    *atomicReady

	state atomic.Int32

	outbound [numCores]*ringbuf.Ring[message.Message]

	demux    *irq.Demux
	timerSvc *timer.Service
	wd       *watchdog.Watchdog
	logger   *eventlog.EventLog
	postman  *Postman
	taskMgr  *TaskManager

	postmanID     task.ID
	taskManagerID task.ID
	irqDemuxID    task.ID
	timerID       task.ID
	watchdogID    task.ID
	eventLogID    task.ID

	postmanMu     sync.Mutex
	taskManagerMu sync.Mutex
	irqMu         sync.Mutex
	eventLogMu    sync.Mutex

	cores [numCores]*coreLoop

	fatalMu  sync.Mutex
	fatalErr error

	wg sync.WaitGroup
}

// NewSystem validates cfg, allocates the shared queues and the six system
// tasks, and registers them under their reserved "$"-prefixed names. clk is
// typically clock.System() in production and a *clock.Fake in tests.
func NewSystem(cfg Config, clk clock.Clock) (*System, error) {
	return newSystemWithSinks(cfg, clk, os.Stdout, os.Stderr)
}

// newSystemWithSinks is NewSystem with explicit event-log sinks, split out
// so tests can capture log output instead of writing to the real stdio.
func newSystemWithSinks(cfg Config, clk clock.Clock, normal, errSink io.Writer) (*System, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &System{
		cfg:      cfg,
		clk:      clk,
		registry: task.NewRegistry(cfg.MaxTasks),
		ready:    &atomicReady{},
	}
	s.state.Store(int32(SystemInit))

	for i := range s.outbound {
		s.outbound[i] = ringbuf.New[message.Message](cfg.OutboundQueueCapacity)
	}

	var err error
	s.postmanID, err = s.registry.Register("$postman", nil, cfg.PriorityHigh, cfg.MailboxCapacity)
	if err != nil {
		return nil, err
	}
	s.taskManagerID, err = s.registry.Register("$taskmanager", nil, cfg.PriorityHigh, cfg.MailboxCapacity)
	if err != nil {
		return nil, err
	}
	s.irqDemuxID, err = s.registry.Register("$irqdemux", nil, cfg.PriorityHigh, cfg.MailboxCapacity)
	if err != nil {
		return nil, err
	}
	s.timerID, err = s.registry.Register("$timer", nil, cfg.PriorityNormal, cfg.MailboxCapacity)
	if err != nil {
		return nil, err
	}
	s.eventLogID, err = s.registry.Register("$eventlog", nil, cfg.PriorityNormal, cfg.EventLogCapacity)
	if err != nil {
		return nil, err
	}
	if !cfg.DisableWatchdog {
		s.watchdogID, err = s.registry.Register("$watchdog", nil, cfg.PriorityLow, cfg.MailboxCapacity)
		if err != nil {
			return nil, err
		}
	}

	s.demux = irq.NewDemux(cfg.InterruptQueueCapacity)
	s.timerSvc = timer.NewService()
	s.logger = eventlog.New(eventlog.NewSink(normal), eventlog.NewSink(errSink))
	s.postman = NewPostman(s.outbound, s.registry, s.taskManagerID, s.irqDemuxID, s.eventLogID, cfg.OutboundQueueCapacity)
	s.taskMgr = NewTaskManager(s.registry, s.eventLogID, s.setState)
	if !cfg.DisableWatchdog {
		s.wd = watchdog.New(s.registry, s.eventLogID, int64(cfg.WatchdogCheckIntervalUs), int64(cfg.WatchdogTimeoutUs))
	}

	s.registry.Task(s.postmanID).Fn = s.postman.Run
	s.registry.Task(s.taskManagerID).Fn = s.taskMgr.Run
	s.registry.Task(s.irqDemuxID).Fn = s.demux.Run
	s.registry.Task(s.timerID).Fn = s.timerSvc.Run
	s.registry.Task(s.eventLogID).Fn = s.logger.Run
	if !cfg.DisableWatchdog {
		s.registry.Task(s.watchdogID).Fn = s.wd.Run
	}

	s.cores[Core0] = newCoreLoop(Core0, true, s)
	s.cores[Core1] = newCoreLoop(Core1, false, s)

	return s, nil
}

// RegisterTask adds a user task. Legal only before Run is called.
func (s *System) RegisterTask(name string, fn task.Func, priority uint32) (task.ID, error) {
	return s.registry.Register(name, fn, priority, s.cfg.MailboxCapacity)
}

// isBypassOnly reports whether id names one of the three system tasks
// invoked exclusively through the scheduler's bypass path (Postman,
// TaskManager, the interrupt demux). Ordinary traversal never executes
// them directly; they stay asleep forever since nothing ever needs to
// route a wake-up request at them.
func (s *System) isBypassOnly(id task.ID) bool {
	return id == s.postmanID || id == s.taskManagerID || id == s.irqDemuxID
}

// Registry exposes the task table for callers that need to inspect or
// message a task directly outside the scheduler (chiefly tests).
func (s *System) Registry() *task.Registry { return s.registry }

// Ready reports the external system-ready signal's current level.
func (s *System) Ready() bool { return s.ready.Ready() }

// State returns the current global lifecycle state.
func (s *System) State() SystemState { return SystemState(s.state.Load()) }

func (s *System) setState(v SystemState) { s.state.Store(int32(v)) }

// FatalErr returns the first error that caused the system to stop, or nil
// if it hasn't stopped or stopped cleanly via a SetSystemState request.
func (s *System) FatalErr() error {
	s.fatalMu.Lock()
	defer s.fatalMu.Unlock()
	return s.fatalErr
}

func (s *System) fail(err error) {
	s.fatalMu.Lock()
	if s.fatalErr == nil {
		s.fatalErr = err
	}
	s.fatalMu.Unlock()
	s.setState(SystemStop)
}

func (s *System) otherCoreLoop(id CoreID) *coreLoop {
	if id == Core0 {
		return s.cores[Core1]
	}
	return s.cores[Core0]
}

// Run starts both cores' goroutines and returns immediately; call Wait to
// block until the system reaches SystemDown.
func (s *System) Run() {
	if s.cfg.StartupDelayMs > 0 {
		time.Sleep(time.Duration(s.cfg.StartupDelayMs) * time.Millisecond)
	}
	s.wg.Add(numCores)
	go func() {
		defer s.wg.Done()
		s.runCore0()
	}()
	go func() {
		defer s.wg.Done()
		s.runCore1()
	}()
}

// Wait blocks until both core goroutines have returned (SystemDown).
func (s *System) Wait() { s.wg.Wait() }

func (s *System) runCore0() {
	if !s.bringUp() {
		return
	}
	for s.State() == SystemRun {
		if s.cfg.DisableScheduler {
			s.runEachOnce(Core0)
			continue
		}
		s.cores[Core0].runPass()
	}
	s.shutdown()
}

func (s *System) runCore1() {
	for s.State() == SystemInit {
		runtimeYield()
	}
	if s.cfg.DisableSecondCore {
		for s.State() != SystemDown {
			runtimeYield()
		}
		return
	}
	for s.State() == SystemRun {
		if s.cfg.DisableScheduler {
			runtimeYield()
			continue
		}
		s.cores[Core1].runPass()
	}
	for s.State() != SystemDown {
		runtimeYield()
	}
}

func runtimeYield() { time.Sleep(time.Millisecond) }

// runEachOnce implements the DisableScheduler diagnostic mode: every task
// runs once per loop with no priority, collision, or wake-up deadline
// filtering at all (§6). The software timer is disabled in this mode and
// is never run.
func (s *System) runEachOnce(core CoreID) {
	c := s.cores[core]
	for _, id := range c.order() {
		if s.State() != SystemRun {
			return
		}
		t := s.registry.Task(id)
		if t == nil || s.isBypassOnly(id) || id == s.timerID || t.State() != task.StateRun {
			continue
		}
		now := s.clk.NowMicros()
		c.execute(t, now)
		c.drain()
	}
}

// bringUp runs every registered task's Func once in ascending id order
// while the system is in SystemInit, transitioning each to StateRun on
// success. A non-Ok return or panic aborts bring-up and moves the system
// straight to SystemStop. Once every task has initialized, the startup
// stagger is computed, the registry is frozen against further
// registration, the system moves to SystemRun, and the ready signal is
// raised.
func (s *System) bringUp() bool {
	now := s.clk.NowMicros()
	c := s.cores[Core0]
	for _, t := range s.registry.All() {
		if t.ID == task.SchedulerID {
			continue
		}
		t.SetOutbound(s.outbound[Core0])
		kind, err := c.safeCall(t, task.NewMetadata(t, hostID, now, s.registry, s.taskManagerID))
		if kind != rterr.Ok || err != nil {
			s.fail(firstNonNil(err, kind))
			return false
		}
		t.SetState(task.StateRun)
	}

	s.computeStagger(now)
	s.registry.Freeze()
	s.setState(SystemRun)
	s.ready.SetReady(true)
	return true
}

// computeStagger assigns each task's first wake-up deadline so tasks in the
// same priority bucket don't all wake on the same tick: offset = bucket's
// canonical priority / count of tasks in that bucket, with half of the
// preceding bucket's offset inserted as a gap between buckets (no gap
// follows an empty bucket) (§4.C startup staggering).
func (s *System) computeStagger(start int64) {
	var high, normal, low []task.ID
	for _, t := range s.registry.All() {
		if t.ID == task.SchedulerID || s.isBypassOnly(t.ID) {
			continue
		}
		switch {
		case t.Priority <= s.cfg.PriorityHigh:
			high = append(high, t.ID)
		case t.Priority <= s.cfg.PriorityNormal:
			normal = append(normal, t.ID)
		default:
			low = append(low, t.ID)
		}
	}
	next := s.staggerBucket(high, s.cfg.PriorityHigh, start)
	if len(high) > 0 {
		next += int64(s.cfg.PriorityHigh) / int64(len(high)) / 2
	}
	next = s.staggerBucket(normal, s.cfg.PriorityNormal, next)
	if len(normal) > 0 {
		next += int64(s.cfg.PriorityNormal) / int64(len(normal)) / 2
	}
	s.staggerBucket(low, s.cfg.PriorityLow, next)
}

func (s *System) staggerBucket(ids []task.ID, priority uint32, start int64) int64 {
	if len(ids) == 0 {
		return start
	}
	offset := int64(priority) / int64(len(ids))
	for k, id := range ids {
		t := s.registry.Task(id)
		t.SetWakeUpAt(start + int64(k)*offset)
		t.SetSleeping(false)
	}
	return start + int64(len(ids))*offset
}

// orderedIDsDescending lists every non-scheduler task id from highest to
// lowest, the traversal order the shutdown sequence uses regardless of
// which direction core 0 normally walks.
func (s *System) orderedIDsDescending() []task.ID {
	n := s.registry.Len()
	if n <= 1 {
		return nil
	}
	ids := make([]task.ID, 0, n-1)
	for id := n - 1; id >= 1; id-- {
		ids = append(ids, task.ID(id))
	}
	return ids
}

// shutdown implements §4.C's Stop/Down sequence: lower the ready signal,
// drive every task to StateStop with one final invocation each
// (highest id to lowest), run Postman and the event log twice more each to
// flush anything that final round produced, then move to SystemDown.
func (s *System) shutdown() {
	s.ready.SetReady(false)
	c := s.cores[Core0]

	for _, id := range s.orderedIDsDescending() {
		t := s.registry.Task(id)
		if t == nil {
			continue
		}
		t.SetState(task.StateStop)
		t.SetOutbound(s.outbound[Core0])
		now := s.clk.NowMicros()
		_, _ = c.safeCall(t, task.NewMetadata(t, hostID, now, s.registry, s.taskManagerID))
	}

	for i := 0; i < 2; i++ {
		c.invokeBypass(s.postmanID, &s.postmanMu)
		c.invokeBypass(s.eventLogID, &s.eventLogMu)
	}

	for _, t := range s.registry.All() {
		t.SetState(task.StateDown)
	}
	s.setState(SystemDown)
}
