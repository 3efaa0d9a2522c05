// Tencent is pleased to support the open source community by making unet available.
// Copyright (C) 2023 THL A29 Limited, a Tencent company. All rights reserved.
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that unet source code is licensed under the Apache 2.0 License,
// A copy of the Apache 2.0 License can be found in the LICENSE file.

// Package poller provides event driven polling system to monitor file description events.
package poller

import (
	"fmt"

	"trpc.group/trpc-go/unet/internal/locker"
)

// GoschedAfterEvent yields the processor after each event callback,
// allowing other goroutines to run in between busy descriptors.
var GoschedAfterEvent bool

// Event defines the operation of poll.Control.
type Event int

// String implements fmt.Stringer.
func (e Event) String() string {
	switch e {
	case Readable:
		return "Readable"
	case ModReadable:
		return "ModReadable"
	case Writable:
		return "Writeable"
	case ModWritable:
		return "ModWriteable"
	case ReadWriteable:
		return "ReadWriteable"
	case ModReadWriteable:
		return "ModReadWriteable"
	case Detach:
		return "Detach"
	default:
		return fmt.Sprintf("Event(%d)", e)
	}
}

// Job function is defined for jobs.
type Job func() error

// Constants for PollEvents.
const (
	Readable Event = iota
	ModReadable
	Writable
	ModWritable
	ReadWriteable
	ModReadWriteable
	Detach
)

// Poller monitors file descriptor, calls Desc callbacks according to specific events.
type Poller interface {
	// Wait will poll all the registered Desc, and trigger the event callback
	// specified by the Desc
	Wait() error

	// Close stops Wait(). The goroutine blocked in Wait consumes the
	// final wakeup, drains the queued jobs and releases the poll
	// descriptors before returning.
	Close() error

	// Trigger wakes the poller up from Wait(). Each Poller maintains a job
	// queue, and does all the queued jobs right after it wakes up.
	Trigger(Job) error

	// Control registers an event of Desc, which is defined by Event.
	Control(*Desc, Event) error
}

// New creates a poller. With ignoreTaskError set, an error returned by an
// event callback does not detach the descriptor.
func New(ignoreTaskError bool) (Poller, error) {
	return newPoller(ignoreTaskError)
}

// jobQueue keeps the jobs submitted by Trigger until the poller wakes up.
// Jobs run on the poller goroutine in submission order.
type jobQueue struct {
	l    locker.Locker
	jobs []Job
}

func (q *jobQueue) push(job Job) {
	if job == nil {
		return
	}
	q.l.Lock()
	q.jobs = append(q.jobs, job)
	q.l.Unlock()
}

func (q *jobQueue) drain() []Job {
	q.l.Lock()
	jobs := q.jobs
	q.jobs = nil
	q.l.Unlock()
	return jobs
}
