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

// Package clock supplies the single time source the runtime's components
// measure deadlines against. Everything in this module works in
// microseconds since an arbitrary epoch (boot time in real deployments);
// nothing calls time.Now directly outside of this package so tests can
// inject a fake clock instead of sleeping on the wall clock.
package clock

import "time"

// Clock returns monotonically non-decreasing microseconds since some fixed
// point. Implementations must be safe to call from any goroutine.
type Clock interface {
	NowMicros() int64
}

// System returns a Clock backed by the monotonic reading of time.Now,
// anchored at the moment it's constructed.
func System() Clock {
	return &systemClock{start: time.Now()}
}

type systemClock struct {
	start time.Time
}

func (c *systemClock) NowMicros() int64 {
	return time.Since(c.start).Microseconds()
}

// Fake is a manually-advanced Clock for deterministic tests.
type Fake struct {
	micros int64
}

// NewFake returns a Fake clock starting at the given instant.
func NewFake(startMicros int64) *Fake {
	return &Fake{micros: startMicros}
}

func (c *Fake) NowMicros() int64 {
	return c.micros
}

// Advance moves the fake clock forward by d, returning the new reading.
func (c *Fake) Advance(d time.Duration) int64 {
	c.micros += d.Microseconds()
	return c.micros
}

// Set pins the fake clock to an absolute microsecond value.
func (c *Fake) Set(micros int64) {
	c.micros = micros
}
