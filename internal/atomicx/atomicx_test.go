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

package atomicx

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFlag(t *testing.T) {
	var f Flag
	assert.False(t, f.Load())
	f.Store(true)
	assert.True(t, f.Load())
	assert.True(t, f.Swap(false))
	assert.False(t, f.Load())
}

func TestClockCompareAndSwap(t *testing.T) {
	var c Clock
	c.Store(10)
	assert.False(t, c.CompareAndSwap(5, 20))
	assert.Equal(t, int64(10), c.Load())
	assert.True(t, c.CompareAndSwap(10, 20))
	assert.Equal(t, int64(20), c.Load())
}

func TestCoreConcurrentAccess(t *testing.T) {
	var core Core
	var wg sync.WaitGroup
	for n := int32(0); n < 100; n++ {
		wg.Add(1)
		go func(v int32) {
			defer wg.Done()
			core.Store(v)
		}(n)
	}
	wg.Wait()
	assert.Less(t, core.Load(), int32(100))
}
