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

// Package irq demultiplexes hardware GPIO edges into subscriber messages.
// The hardware callback boundary is modeled as an edgeSource interface,
// grounded on connstate/poll.go's poller interface: just as connstate
// abstracts "the OS gives me fd-readiness edges" behind wait/control/close,
// irq abstracts "hardware gives me GPIO edges" behind Capture, with the
// default implementation being a mutex-serialized ring-buffer write safe to
// call from any goroutine.
package irq

// MaxGPIO bounds the pin table; tags 0-28 double as GPIO numbers in the
// message-type catalogue (§6), so 29 pins are addressable this way.
const MaxGPIO = 29

// Event is one captured (gpio, event_mask) pair, produced by the hardware
// callback and consumed by the Demux task.
type Event struct {
	GPIO uint8
	Mask uint8
}

// Event-mask bits (§6).
const (
	MaskLevelLow uint8 = 1 << iota
	MaskLevelHigh
	MaskEdgeFall
	MaskEdgeRise
)

// edgeSource is the hardware callback boundary: Capture must be fast and
// allocation-free, callable from any context (§4.F).
type edgeSource interface {
	Capture(gpio, mask uint8) error
}
