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

import "github.com/cloudwego/rtcore/task"

// AntiBounceMax caps the anti-bounce window at ~16s, per §6.
const AntiBounceMax = 0x00FF_FFFF

// subscription is one entry in a GPIO's subscriber list.
type subscription struct {
	Task          task.ID
	Mask          uint8
	PullDown      bool
	AntiBounceUs  uint32
	LastForwarded int64
}

// packSecondary implements §6's wire packing for the secondary payload
// word sent both from demux to subscriber and from subscriber to demux:
// bit 24 is the pull-direction flag, the low 24 bits are the anti-bounce
// window in microseconds.
func packSecondary(pullDown bool, antiBounceUs uint32) uint32 {
	if antiBounceUs > AntiBounceMax {
		antiBounceUs = AntiBounceMax
	}
	var p uint32
	if pullDown {
		p = 1
	}
	return (p << 24) | (antiBounceUs & AntiBounceMax)
}

// unpackSecondary reverses packSecondary.
func unpackSecondary(secondary uint32) (pullDown bool, antiBounceUs uint32) {
	pullDown = (secondary>>24)&1 == 1
	antiBounceUs = secondary & AntiBounceMax
	return
}
