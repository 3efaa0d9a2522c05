//
//
// Tencent is pleased to support the open source community by making tRPC available.
//
// Copyright (C) 2023 THL A29 Limited, a Tencent company.
// All rights reserved.
//
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that tRPC source code is licensed under the  Apache 2.0 License,
// A copy of the Apache 2.0 License is included in this file.
//
//

package unet

import (
	"go.uber.org/atomic"
)

// Future is the single-assignment result of an asynchronous channel operation.
// The first Succeed or Fail settles it; later settles are ignored and
// report false. Waiters observe completion through Done.
type Future struct {
	done    chan struct{}
	err     error
	settled atomic.Bool
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// succeededFuture returns an already completed future.
func succeededFuture() *Future {
	f := newFuture()
	f.Succeed()
	return f
}

// Succeed settles the future with a nil error. It reports whether this
// call was the one that settled it.
func (f *Future) Succeed() bool {
	return f.settle(nil)
}

// Fail settles the future with err. It reports whether this call was
// the one that settled it.
func (f *Future) Fail(err error) bool {
	return f.settle(err)
}

func (f *Future) settle(err error) bool {
	if !f.settled.CAS(false, true) {
		return false
	}
	f.err = err
	close(f.done)
	return true
}

// Done returns a channel that is closed when the future settles.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// IsDone reports whether the future has settled.
func (f *Future) IsDone() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Err returns the error the future settled with. It returns nil while
// the future is still pending, so callers usually wait on Done first.
func (f *Future) Err() error {
	select {
	case <-f.done:
		return f.err
	default:
		return nil
	}
}
