//
//
// Tencent is pleased to support the open source community by making unet available.
//
// Copyright (C) 2023 THL A29 Limited, a Tencent company.
// All rights reserved.
//
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that unet source code is licensed under the  Apache 2.0 License,
// A copy of the Apache 2.0 License is included in this file.
//
//

// Package timer provides functions of timer.
package timer

import (
	"sync"
	"time"
)

// Timer fires a callback once a grace period elapses without the timer
// being stopped. Start after Stop re-arms the countdown from scratch.
type Timer struct {
	mu    sync.Mutex
	grace time.Duration
	f     func()
	timer *time.Timer
}

// New creates a timer which calls f after the grace period.
// Make sure to call Start() to begin the countdown.
func New(grace time.Duration, f func()) *Timer {
	return &Timer{
		grace: grace,
		f:     f,
	}
}

// Start begins or restarts the countdown.
func (t *Timer) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer == nil {
		t.timer = time.AfterFunc(t.grace, t.f)
		return
	}
	t.timer.Stop()
	t.timer.Reset(t.grace)
}

// Stop cancels a pending countdown. It does not wait for an already
// fired callback to complete, callers recheck their own state.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer == nil {
		return
	}
	t.timer.Stop()
}

// Grace returns the configured grace period.
func (t *Timer) Grace() time.Duration {
	return t.grace
}
