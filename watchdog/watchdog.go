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

// Package watchdog periodically pings every non-sleeping task and reports
// (but never acts on) late or missing echoes.
package watchdog

import (
	"github.com/cloudwego/rtcore/eventlog"
	"github.com/cloudwego/rtcore/message"
	"github.com/cloudwego/rtcore/rterr"
	"github.com/cloudwego/rtcore/task"
)

// DefaultCheckIntervalUs and DefaultTimeoutUs are the spec's named
// defaults: 30s and 5s.
const (
	DefaultCheckIntervalUs int64 = 30_000_000
	DefaultTimeoutUs       int64 = 5_000_000
)

type outstanding struct {
	task    task.ID
	sentAt  int64
	warned  bool
}

// Watchdog is the system task's state.
type Watchdog struct {
	registry      *task.Registry
	eventLogID    task.ID
	checkInterval int64
	timeout       int64

	counter   uint32
	lastCheck int64
	started   bool
	pending   map[uint32]*outstanding
}

// New constructs a Watchdog that pings every task known to registry
// (excluding itself) every checkInterval microseconds, reporting to
// eventLogID when an echo is late by more than timeout.
func New(registry *task.Registry, eventLogID task.ID, checkInterval, timeout int64) *Watchdog {
	if checkInterval <= 0 {
		checkInterval = DefaultCheckIntervalUs
	}
	if timeout <= 0 {
		timeout = DefaultTimeoutUs
	}
	return &Watchdog{
		registry:      registry,
		eventLogID:    eventLogID,
		checkInterval: checkInterval,
		timeout:       timeout,
		pending:       make(map[uint32]*outstanding),
	}
}

// Run drains echoes, reports any overdue ones, and — once per
// checkInterval — pings every non-sleeping, non-self task. Every run ends
// by asking TaskManager to set its own wake-up checkInterval ahead.
func (w *Watchdog) Run(meta *task.Metadata) (rterr.Kind, error) {
	w.drainEchoes(meta)
	w.reportOverdue(meta)

	if !w.started || meta.Now-w.lastCheck >= w.checkInterval {
		w.started = true
		w.lastCheck = meta.Now
		w.pingAll(meta)
	}
	_ = meta.RequestSetTaskWakeUp(meta.TaskID, uint32(w.checkInterval))
	return rterr.Ok, nil
}

func (w *Watchdog) drainEchoes(meta *task.Metadata) {
	for {
		msg, ok := meta.Inbox.Peek()
		if !ok {
			return
		}
		meta.Inbox.Pop()
		if msg.Type != message.TypeEcho {
			continue
		}
		o, found := w.pending[msg.Primary]
		if !found {
			continue
		}
		delete(w.pending, msg.Primary)
		if meta.Now-o.sentAt > w.timeout {
			w.logf(meta, message.TypeLogError, "task %d echo arrived %dus late", o.task, meta.Now-o.sentAt-w.timeout)
		}
	}
}

func (w *Watchdog) reportOverdue(meta *task.Metadata) {
	for payload, o := range w.pending {
		if o.warned {
			continue
		}
		if meta.Now-o.sentAt > w.timeout {
			w.logf(meta, message.TypeLogError, "task %d missed echo for ping %d", o.task, payload)
			o.warned = true
		}
	}
}

func (w *Watchdog) pingAll(meta *task.Metadata) {
	for _, t := range w.registry.All() {
		if t.ID == meta.TaskID || t.Sleeping() {
			continue
		}
		w.counter++
		_ = meta.Send(meta.HostID, t.ID, message.TypePing, w.counter, 0)
		w.pending[w.counter] = &outstanding{task: t.ID, sentAt: meta.Now}
	}
}

func (w *Watchdog) logf(meta *task.Metadata, level message.Type, format string, args ...interface{}) {
	_ = eventlog.Log(meta, w.eventLogID, level, format, args...)
}
