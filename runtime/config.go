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

package runtime

import "github.com/cloudwego/rtcore/rterr"

// Config collects every §6 configuration key as a single struct,
// constructed via DefaultConfig and validated once at System construction
// rather than at first use.
type Config struct {
	MaxTasks        int
	MaxTaskNameLen  int
	MailboxCapacity int

	PriorityHigh   uint32 // microseconds
	PriorityNormal uint32
	PriorityLow    uint32

	StartupDelayMs int

	InterruptQueueCapacity int
	OutboundQueueCapacity  int

	EventLogCapacity     int
	EventLogEntryMaxBytes int

	WatchdogCheckIntervalUs uint64
	WatchdogTimeoutUs       uint64

	DebugLevel int32

	// Feature toggles (§6).
	DisablePriorities bool
	DisableScheduler  bool
	DisableSecondCore bool
	DisableWatchdog   bool

	// CollisionBackoffBaseNs is the base sleep duration for collision
	// back-off, in nanoseconds, biased by core id.
	CollisionBackoffBaseNs int64
}

// DefaultConfig returns the canonical defaults named throughout the spec:
// priorities 2500/5000/10000us, watchdog 30s/5s, 250-task ceiling.
func DefaultConfig() Config {
	return Config{
		MaxTasks:        64,
		MaxTaskNameLen:  32,
		MailboxCapacity: 32,

		PriorityHigh:   2500,
		PriorityNormal: 5000,
		PriorityLow:    10000,

		StartupDelayMs: 0,

		InterruptQueueCapacity: 64,
		OutboundQueueCapacity:  128,

		EventLogCapacity:      128,
		EventLogEntryMaxBytes: 256,

		WatchdogCheckIntervalUs: 30_000_000,
		WatchdogTimeoutUs:       5_000_000,

		DebugLevel: 0,

		CollisionBackoffBaseNs: 2000,
	}
}

// Validate rejects out-of-range values immediately rather than letting
// them surface as a confusing failure deep inside Run.
func (c Config) Validate() error {
	if c.MaxTasks < 1 || c.MaxTasks > 250 {
		return rterr.Newf(rterr.InvalidOperation, "MaxTasks must be in [1,250], got %d", c.MaxTasks)
	}
	if c.MailboxCapacity < 2 {
		return rterr.Newf(rterr.InvalidOperation, "MailboxCapacity must be >= 2, got %d", c.MailboxCapacity)
	}
	if c.InterruptQueueCapacity < 2 {
		return rterr.Newf(rterr.InvalidOperation, "InterruptQueueCapacity must be >= 2, got %d", c.InterruptQueueCapacity)
	}
	if c.OutboundQueueCapacity < 2 {
		return rterr.Newf(rterr.InvalidOperation, "OutboundQueueCapacity must be >= 2, got %d", c.OutboundQueueCapacity)
	}
	if c.EventLogCapacity < 2 {
		return rterr.Newf(rterr.InvalidOperation, "EventLogCapacity must be >= 2, got %d", c.EventLogCapacity)
	}
	if c.PriorityHigh == 0 || c.PriorityNormal == 0 || c.PriorityLow == 0 {
		return rterr.New(rterr.InvalidOperation, "priorities must be positive")
	}
	if c.PriorityHigh >= c.PriorityNormal || c.PriorityNormal >= c.PriorityLow {
		return rterr.New(rterr.InvalidOperation, "priorities must satisfy High < Normal < Low")
	}
	return nil
}
