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

package timer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudwego/rtcore/message"
	"github.com/cloudwego/rtcore/ringbuf"
	"github.com/cloudwego/rtcore/task"
)

func newMeta(self *task.Task, registry *task.Registry, now int64) *task.Metadata {
	self.SetOutbound(ringbuf.New[message.Message](32))
	return task.NewMetadata(self, 0, now, registry, 0)
}

func TestRepeatingTimerFiresOnSchedule(t *testing.T) {
	r := task.NewRegistry(8)
	timerID, _ := r.Register("$timer", nil, 2500, 8)
	ownerID, _ := r.Register("blinker", nil, 5000, 8)

	s := NewService()
	seq := s.Set(0, ownerID, 7, true, 100)

	for i, now := range []int64{100_000, 200_000, 300_000} {
		meta := newMeta(r.Task(timerID), r, now)
		_, err := s.Run(meta)
		require.NoError(t, err)
		got, ok := r.Task(timerID).Outbound().Peek()
		require.True(t, ok, "iteration %d", i)
		assert.Equal(t, message.Type(7), got.Type)
		assert.Equal(t, seq, got.Primary)
	}
	assert.Equal(t, 1, s.Len())
}

func TestNonRepeatingTimerFiresOnceThenRemoved(t *testing.T) {
	r := task.NewRegistry(8)
	timerID, _ := r.Register("$timer", nil, 2500, 8)
	ownerID, _ := r.Register("blinker", nil, 5000, 8)

	s := NewService()
	s.Set(0, ownerID, 3, false, 50)

	meta := newMeta(r.Task(timerID), r, 50_000)
	_, err := s.Run(meta)
	require.NoError(t, err)
	assert.Equal(t, 0, s.Len())
}

func TestCancelBySequenceRemovesEntry(t *testing.T) {
	s := NewService()
	seq := s.Set(0, 2, 1, true, 100)
	assert.Equal(t, 1, s.Len())
	assert.True(t, s.CancelBySequence(seq))
	assert.Equal(t, 0, s.Len())
}

func TestCancelByRemovesEntry(t *testing.T) {
	s := NewService()
	s.Set(0, 2, 9, true, 100)
	assert.True(t, s.CancelBy(2, 9))
	assert.False(t, s.CancelBy(2, 9))
}

func TestVirtualHelpersDoNotTouchService(t *testing.T) {
	s := NewService()
	deadline := VirtualSet(1000, 500)
	assert.Equal(t, int64(1500), deadline)
	assert.False(t, VirtualExpired(1400, deadline))
	assert.True(t, VirtualExpired(1500, deadline))
	assert.Equal(t, 0, s.Len())
}
