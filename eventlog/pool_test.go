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

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMallocReturnsRequestedLength(t *testing.T) {
	p := newBytePool()
	buf := p.Malloc(10)
	assert.Len(t, buf, 10)
	assert.GreaterOrEqual(t, cap(buf), 10)
}

func TestMallocFreeReuse(t *testing.T) {
	p := newBytePool()
	buf := p.Malloc(100)
	p.Free(buf)
	buf2 := p.Malloc(100)
	assert.GreaterOrEqual(t, cap(buf2), 100)
}

func TestHandleTableStoreLoadRelease(t *testing.T) {
	h := newHandleTable()
	id := h.Store([]byte("hello"))
	got, ok := h.Load(id)
	assert.True(t, ok)
	assert.Equal(t, "hello", string(got))

	released, ok := h.Release(id)
	assert.True(t, ok)
	assert.Equal(t, "hello", string(released))

	_, ok = h.Release(id)
	assert.False(t, ok, "double release must fail")
}

func TestHandleTableReusesFreedSlots(t *testing.T) {
	h := newHandleTable()
	id1 := h.Store([]byte("a"))
	h.Release(id1)
	id2 := h.Store([]byte("b"))
	assert.Equal(t, id1, id2)
}
