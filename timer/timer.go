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

// Package timer implements the software-timer engine: one-shot and
// repeating notifications delivered as messages to the owning task.
//
// Per the Design Notes ("replace hand-managed pointer lists with flat
// growable containers indexed by ordinal; deletions are by swap-remove"),
// entries live in a flat slice rather than a linked list — the service is
// single-consumer (only the Timer task itself ever touches the slice), so
// no locking is needed.
package timer

import (
	"github.com/cloudwego/rtcore/message"
	"github.com/cloudwego/rtcore/rterr"
	"github.com/cloudwego/rtcore/task"
)

type entry struct {
	Task      task.ID
	TimerID   uint8
	Repeating bool
	IntervalUs int64
	Next      int64
	Sequence  uint32
}

// Service is the Timer system task's state.
type Service struct {
	entries  []entry
	nextSeq  uint32
}

// NewService constructs an empty timer service.
func NewService() *Service {
	return &Service{}
}

// Set registers a new timer for task t, returning its sequence number.
// intervalMs is converted to microseconds internally; nextFire is
// start = now + intervalMs*1000.
func (s *Service) Set(now int64, t task.ID, timerID uint8, repeating bool, intervalMs uint32) uint32 {
	s.nextSeq++
	seq := s.nextSeq
	intervalUs := int64(intervalMs) * 1000
	s.entries = append(s.entries, entry{
		Task:       t,
		TimerID:    timerID,
		Repeating:  repeating,
		IntervalUs: intervalUs,
		Next:       now + intervalUs,
		Sequence:   seq,
	})
	return seq
}

// CancelBy removes the entry matching (task, timerID), swap-remove style.
// Reports whether an entry was found.
func (s *Service) CancelBy(t task.ID, timerID uint8) bool {
	for i := range s.entries {
		if s.entries[i].Task == t && s.entries[i].TimerID == timerID {
			s.swapRemove(i)
			return true
		}
	}
	return false
}

// CancelBySequence removes the entry with the given sequence number.
func (s *Service) CancelBySequence(seq uint32) bool {
	for i := range s.entries {
		if s.entries[i].Sequence == seq {
			s.swapRemove(i)
			return true
		}
	}
	return false
}

func (s *Service) swapRemove(i int) {
	last := len(s.entries) - 1
	s.entries[i] = s.entries[last]
	s.entries = s.entries[:last]
}

// Len reports the number of live entries, exposed for tests.
func (s *Service) Len() int { return len(s.entries) }

// VirtualSet is the purely local helper that computes a deadline without
// touching the service at all: now + usec.
func VirtualSet(now int64, usec int64) int64 { return now + usec }

// VirtualExpired is the purely local helper checking a deadline against
// now.
func VirtualExpired(now, deadline int64) bool { return now >= deadline }

// Run scans every entry against meta.Now, emits a notification for each
// expired one (message-type = the entry's timer id, primary = sequence
// number), reschedules repeating entries or swap-removes one-shot ones,
// and at the end parks itself by requesting a wake-up at the nearest
// remaining deadline. It also drains its own mailbox for SetTimer /
// CancelTimer / CancelTimerBySequence requests before scanning.
func (s *Service) Run(meta *task.Metadata) (rterr.Kind, error) {
	s.drainRequests(meta)
	s.scanAndFire(meta)

	if len(s.entries) == 0 {
		return rterr.Ok, nil
	}
	nearest := s.entries[0].Next
	for _, e := range s.entries[1:] {
		if e.Next < nearest {
			nearest = e.Next
		}
	}
	if nearest > meta.Now {
		_ = meta.RequestSetTaskWakeUp(meta.TaskID, uint32(nearest-meta.Now))
	}
	return rterr.Ok, nil
}

func (s *Service) drainRequests(meta *task.Metadata) {
	for {
		msg, ok := meta.Inbox.Peek()
		if !ok {
			return
		}
		meta.Inbox.Pop()
		if task.HandlePing(meta, msg) {
			continue
		}
		switch msg.Type {
		case message.TypeSetTimer:
			repeating := msg.Secondary&1 == 1
			intervalMs := msg.Secondary >> 1
			seq := s.Set(meta.Now, msg.SenderTask, uint8(msg.Primary), repeating, intervalMs)
			_ = meta.Send(meta.HostID, msg.SenderTask, message.TypeSetTimer, seq, 0)
		case message.TypeCancelTimer:
			s.CancelBy(msg.SenderTask, uint8(msg.Primary))
		case message.TypeCancelTimerBySequence:
			s.CancelBySequence(msg.Primary)
		}
	}
}

func (s *Service) scanAndFire(meta *task.Metadata) {
	for i := 0; i < len(s.entries); i++ {
		e := &s.entries[i]
		if e.Next > meta.Now {
			continue
		}
		_ = meta.Send(meta.HostID, e.Task, message.Type(e.TimerID), e.Sequence, 0)
		if e.Repeating {
			e.Next += e.IntervalUs
		} else {
			s.swapRemove(i)
			i--
		}
	}
}
