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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudwego/rtcore/message"
	"github.com/cloudwego/rtcore/ringbuf"
	"github.com/cloudwego/rtcore/rterr"
)

func newTestMetadata(t *testing.T, self *Task, registry *Registry) *Metadata {
	t.Helper()
	self.SetOutbound(ringbuf.New[message.Message](8))
	tm, ok := registry.LookupByName("$taskmanager")
	require.True(t, ok)
	return NewMetadata(self, 0, 1000, registry, tm)
}

func TestRequestSetTaskPriorityRejectsNonSystemTargetingSystem(t *testing.T) {
	r := NewRegistry(8)
	r.Register("$taskmanager", noop, 1000, 8)
	sysID, _ := r.Register("$irqdemux", noop, 1000, 8)
	usrID, _ := r.Register("blinker", noop, 5000, 8)

	meta := newTestMetadata(t, r.Task(usrID), r)
	err := meta.RequestSetTaskPriority(sysID, 2500)
	require.Error(t, err)
	assert.Equal(t, rterr.InvalidOperation, rterr.KindOf(err))
	assert.Zero(t, r.Task(sysID).Mailbox.MessagesWaiting())
}

func TestRequestSetTaskPriorityAllowsSystemTargetingSystem(t *testing.T) {
	r := NewRegistry(8)
	tmID, _ := r.Register("$taskmanager", noop, 1000, 8)
	sysID, _ := r.Register("$irqdemux", noop, 1000, 8)

	meta := newTestMetadata(t, r.Task(tmID), r)
	err := meta.RequestSetTaskPriority(sysID, 2500)
	require.NoError(t, err)
}

func TestRequestSetTaskDebugIsUnconditional(t *testing.T) {
	r := NewRegistry(8)
	r.Register("$taskmanager", noop, 1000, 8)
	sysID, _ := r.Register("$irqdemux", noop, 1000, 8)
	usrID, _ := r.Register("blinker", noop, 5000, 8)

	meta := newTestMetadata(t, r.Task(usrID), r)
	err := meta.RequestSetTaskDebug(sysID, 3)
	require.NoError(t, err)
}

func TestSendStampsSenderAndTimestamp(t *testing.T) {
	r := NewRegistry(8)
	usrID, _ := r.Register("blinker", noop, 5000, 8)
	r.Register("$taskmanager", noop, 1000, 8)

	self := r.Task(usrID)
	self.SetOutbound(ringbuf.New[message.Message](8))
	meta := NewMetadata(self, 0, 42, r, 0)

	err := meta.Send(0, 9, message.TypePing, 7, 0)
	require.NoError(t, err)

	got, ok := self.Outbound().Peek()
	require.True(t, ok)
	assert.Equal(t, usrID, got.SenderTask)
	assert.Equal(t, uint64(42), got.Timestamp)
}
