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

package irq

import (
	"sync"

	"github.com/cloudwego/rtcore/message"
	"github.com/cloudwego/rtcore/ringbuf"
	"github.com/cloudwego/rtcore/rterr"
	"github.com/cloudwego/rtcore/task"
)

// DrainCap bounds the number of queued hardware events and subscription
// requests processed in a single Run, keeping each invocation short the
// way every other task's run is expected to be.
const DrainCap = 64

// Demux is the system task draining the dedicated interrupt ring buffer
// and fanning captured edges out to subscribers.
type Demux struct {
	queue *ringbuf.Ring[Event]
	subs  [MaxGPIO][]subscription

	// captureMu serializes Capture callers; the ring accepts one producer.
	captureMu sync.Mutex
}

// NewDemux allocates the dedicated interrupt inbound queue with the given
// capacity (multi-producer: hardware callback contexts; single-consumer:
// this Demux).
func NewDemux(queueCapacity int) *Demux {
	return &Demux{queue: ringbuf.New[Event](queueCapacity)}
}

// Capture is the edgeSource default implementation: an allocation-free
// write that never waits for the consumer (a full queue returns
// ringbuf.ErrFull). Concurrent callers are serialized by a mutex held only
// for the write, so any goroutine may call it.
func (d *Demux) Capture(gpio, mask uint8) error {
	d.captureMu.Lock()
	defer d.captureMu.Unlock()
	return d.queue.Write(Event{GPIO: gpio, Mask: mask})
}

var _ edgeSource = (*Demux)(nil)

// Pending reports how many captured hardware events are waiting to be
// dispatched. The scheduler consults this on every iteration to decide
// whether to bypass into the demux (§4.C drainage rule).
func (d *Demux) Pending() int {
	return d.queue.MessagesWaiting()
}

// Run drains pending subscription requests from its own mailbox, then
// drains captured hardware events and dispatches them to subscribers whose
// mask matches and whose anti-bounce window has elapsed. Registered as a
// task.Func; invoked by the scheduler's bypass path only when the shared
// interrupt queue is non-empty (§4.C drainage rule).
func (d *Demux) Run(meta *task.Metadata) (rterr.Kind, error) {
	d.drainSubscriptions(meta)
	d.dispatch(meta)
	return rterr.Ok, nil
}

func (d *Demux) drainSubscriptions(meta *task.Metadata) {
	for i := 0; i < DrainCap; i++ {
		msg, ok := meta.Inbox.Peek()
		if !ok {
			return
		}
		meta.Inbox.Pop()
		if task.HandlePing(meta, msg) {
			continue
		}
		gpio := uint8(msg.Type)
		if int(gpio) >= MaxGPIO {
			continue
		}
		if msg.Primary == 0 {
			d.unsubscribe(gpio, msg.SenderTask)
			continue
		}
		pullDown, antiBounce := unpackSecondary(msg.Secondary)
		d.subscribe(gpio, msg.SenderTask, uint8(msg.Primary), pullDown, antiBounce)
	}
}

func (d *Demux) subscribe(gpio uint8, subscriber task.ID, mask uint8, pullDown bool, antiBounceUs uint32) {
	list := d.subs[gpio]
	for i := range list {
		if list[i].Task == subscriber {
			// Idempotent: update mask in place, leave the count unchanged.
			list[i].Mask = mask
			list[i].PullDown = pullDown
			list[i].AntiBounceUs = antiBounceUs
			return
		}
	}
	// First subscription for this GPIO: pin direction/pull is implicitly
	// "initialized" from here on by virtue of the list being non-empty.
	d.subs[gpio] = append(list, subscription{
		Task:         subscriber,
		Mask:         mask,
		PullDown:     pullDown,
		AntiBounceUs: antiBounceUs,
	})
}

func (d *Demux) unsubscribe(gpio uint8, subscriber task.ID) {
	list := d.subs[gpio]
	for i := range list {
		if list[i].Task == subscriber {
			// Pin is left configured but no longer wired into dispatch once
			// the list empties; no separate "deinit" step is needed since
			// dispatch only walks a non-empty list.
			d.subs[gpio] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

func (d *Demux) dispatch(meta *task.Metadata) {
	for i := 0; i < DrainCap; i++ {
		ev, ok := d.queue.Peek()
		if !ok {
			return
		}
		d.queue.Pop()
		if int(ev.GPIO) >= MaxGPIO {
			continue
		}
		list := d.subs[ev.GPIO]
		for j := range list {
			sub := &list[j]
			if sub.Mask&ev.Mask == 0 {
				continue
			}
			// Elapsed time is compared as now-last rather than now >= last+window,
			// which stays correct across a wrap of the int64 clock.
			if meta.Now-sub.LastForwarded < int64(sub.AntiBounceUs) {
				continue
			}
			secondary := packSecondary(sub.PullDown, sub.AntiBounceUs)
			_ = meta.Send(meta.HostID, sub.Task, message.Type(ev.GPIO), uint32(ev.Mask), secondary)
			sub.LastForwarded = meta.Now
		}
	}
}
