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

import "github.com/cloudwego/rtcore/message"

// HandlePing answers the watchdog's liveness probe: any task receiving a
// Ping echoes the same payload back to the sender. The mailbox-drain loops
// of TaskManager, Timer, the interrupt demux and the Event Log call this
// first; Postman has no mailbox-drain loop and does not. User tasks may call
// it the same way. Returns true if msg was a Ping (and has been handled),
// false otherwise.
func HandlePing(meta *Metadata, msg message.Message) bool {
	if msg.Type != message.TypePing {
		return false
	}
	_ = meta.Send(msg.SenderHost, msg.SenderTask, message.TypeEcho, msg.Primary, 0)
	return true
}
