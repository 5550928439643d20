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

// Package rterr is the runtime's error taxonomy: one Kind enum plus one
// error type, rather than a sentinel var per failure mode.
package rterr

import "fmt"

// Kind enumerates the runtime's error taxonomy.
type Kind int32

const (
	Ok Kind = iota
	TooManyTasks
	Initializing
	MailboxFull
	RecipientInvalid
	TaskNotFound
	TaskSleeping
	RunningTask
	InvalidOperation
)

func (k Kind) String() string {
	switch k {
	case Ok:
		return "Ok"
	case TooManyTasks:
		return "TooManyTasks"
	case Initializing:
		return "Initializing"
	case MailboxFull:
		return "MailboxFull"
	case RecipientInvalid:
		return "RecipientInvalid"
	case TaskNotFound:
		return "TaskNotFound"
	case TaskSleeping:
		return "TaskSleeping"
	case RunningTask:
		return "RunningTask"
	case InvalidOperation:
		return "InvalidOperation"
	default:
		return fmt.Sprintf("Kind(%d)", int32(k))
	}
}

// RuntimeError pairs a Kind with a human-readable detail.
type RuntimeError struct {
	kind Kind
	msg  string
}

// New creates a RuntimeError of the given Kind.
func New(kind Kind, msg string) *RuntimeError {
	return &RuntimeError{kind: kind, msg: msg}
}

// Newf is New with fmt.Sprintf-style formatting.
func Newf(kind Kind, format string, args ...interface{}) *RuntimeError {
	return &RuntimeError{kind: kind, msg: fmt.Sprintf(format, args...)}
}

// Kind returns the error's Kind.
func (e *RuntimeError) Kind() Kind { return e.kind }

// Msg returns the error's detail string.
func (e *RuntimeError) Msg() string { return e.msg }

func (e *RuntimeError) Error() string {
	if e.msg == "" {
		return e.kind.String()
	}
	return fmt.Sprintf("%s: %s", e.kind, e.msg)
}

// Is reports whether err is a *RuntimeError of the given Kind.
func Is(err error, kind Kind) bool {
	re, ok := err.(*RuntimeError)
	return ok && re.kind == kind
}

// KindOf extracts the Kind from err, returning Ok if err is nil and
// RunningTask if err is a non-RuntimeError (an unexpected failure is
// always treated as fatal rather than silently classified as success).
func KindOf(err error) Kind {
	if err == nil {
		return Ok
	}
	if re, ok := err.(*RuntimeError); ok {
		return re.kind
	}
	return RunningTask
}
