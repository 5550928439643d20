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

// Package message defines the record type that flows between tasks: task
// mailboxes and per-core outbound queues hold message.Message values. The
// interrupt inbound queue holds irq.Event values instead.
//
//	+--1 Byte--+--1 Byte--+--1 Byte--+--1 Byte--+--1 Byte--+
//	| SNDR HOST| SNDR TASK| RCPT HOST| RCPT TASK|   TYPE   |
//	+----------+----------+----------+----------+----------+
//	|                 PRIMARY (uint32, BE)                 |
//	+--------------------------------------------------------+
//	|                SECONDARY (uint32, BE)                 |
//	+--------------------------------------------------------+
//	|              TIMESTAMP (uint64, BE, usec)             |
//	+--------------------------------------------------------+
//
// Message-type values are partitioned: user tags 0-49, system tags 50-99;
// tags 0-28 are reused to mean "GPIO number" when the recipient is the
// interrupt demultiplexer (see package irq).
package message

// HostAll and TaskUnspecified are the two reserved addressing values; no
// other value carries special meaning.
const (
	HostAll         uint8 = 255
	TaskUnspecified uint8 = 255
)

// Type is the one-byte semantic tag of a Message.
type Type uint8

const (
	UserTagMin   Type = 0
	UserTagMax   Type = 49
	SystemTagMin Type = 50
	SystemTagMax Type = 99
)

// System message types (§6 catalogue). Values 0-28 are left to the caller
// for GPIO-addressed traffic to the interrupt demultiplexer; those
// messages never use these constants as their Type.
const (
	TypeTest Type = SystemTagMin + iota
	TypePing
	TypeEcho
	TypeLogNotify
	TypeLogError
	TypeSetSystemState
	TypeSetTaskState
	TypeSetTaskPriority
	TypeSetTaskSleep
	TypeSetTaskWakeUp
	TypeSetTaskDebug
	TypeWakeAll
	TypeDedicateToTask
	TypeSetTimer
	TypeCancelTimer
	TypeCancelTimerBySequence
)

// Message is the record type carried by every task mailbox and per-core
// outbound queue.
type Message struct {
	SenderHost    uint8
	SenderTask    uint8
	RecipientHost uint8
	RecipientTask uint8
	Type          Type
	Primary       uint32
	Secondary     uint32
	Timestamp     uint64
}
