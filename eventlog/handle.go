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

package eventlog

import "sync"

// handleTable boxes a pooled []byte behind a small integer so it can cross
// a message.Message's two uint32 payload words (handle, length) without
// smuggling a raw Go pointer through a uintptr — which would leave the GC
// unable to see the reference while the message sits in a queue. This is
// the Go-safe reading of §3's "payload words may carry ... an opaque
// pointer; the owner is the sender until the recipient deletes the
// message": the handle *is* the opaque pointer, ownership transfers the
// same way, but the backing memory stays pinned by this table instead of
// a raw address.
type handleTable struct {
	mu    sync.Mutex
	slots []([]byte)
	free  []uint32
}

func newHandleTable() *handleTable {
	return &handleTable{}
}

// Store takes ownership of buf and returns a handle for it.
func (h *handleTable) Store(buf []byte) uint32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if n := len(h.free); n > 0 {
		id := h.free[n-1]
		h.free = h.free[:n-1]
		h.slots[id] = buf
		return id
	}
	id := uint32(len(h.slots))
	h.slots = append(h.slots, buf)
	return id
}

// Load returns the buffer for handle without releasing it.
func (h *handleTable) Load(handle uint32) ([]byte, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if int(handle) >= len(h.slots) {
		return nil, false
	}
	buf := h.slots[handle]
	return buf, buf != nil
}

// Release relinquishes ownership of handle's buffer, returning it so the
// caller can return it to a byte pool. Reports false if handle was already
// released or never allocated.
func (h *handleTable) Release(handle uint32) ([]byte, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if int(handle) >= len(h.slots) || h.slots[handle] == nil {
		return nil, false
	}
	buf := h.slots[handle]
	h.slots[handle] = nil
	h.free = append(h.free, handle)
	return buf, true
}
