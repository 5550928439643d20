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

import "github.com/bytedance/gopkg/lang/mcache"

// bytePool hands out formatted-record buffers from bytedance/gopkg's
// size-classed mcache instead of a hand-rolled sync.Pool. Malloc/Free
// ownership is exclusive: once a caller frees a buffer it must not touch
// it again (§4.I).
type bytePool struct{}

func newBytePool() *bytePool { return &bytePool{} }

// Malloc returns a buffer with len == n drawn from mcache's pool.
func (p *bytePool) Malloc(n int) []byte {
	return mcache.Malloc(n)
}

// Free returns buf to mcache. Callers must not use buf afterward.
func (p *bytePool) Free(buf []byte) {
	mcache.Free(buf)
}
