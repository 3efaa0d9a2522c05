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

//go:build linux
// +build linux

package poller_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
	"trpc.group/trpc-go/unet/internal/poller"
)

func startPoller(t *testing.T) poller.Poller {
	p, err := poller.New(false)
	require.Nil(t, err)
	go p.Wait()
	t.Cleanup(func() { p.Close() })
	return p
}

func TestPollDesc(t *testing.T) {
	p := startPoller(t)
	eventFD, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	require.Nil(t, err)
	defer unix.Close(eventFD)
	desc := poller.NewDesc()
	desc.FD = eventFD
	assert.Nil(t, desc.Bind(p))
	assert.Nil(t, desc.Control(poller.Readable))
	assert.Nil(t, desc.Control(poller.ModWritable))
	assert.Nil(t, desc.Close())
	// Desc has already been bound to the poller.
	assert.NotNil(t, desc.Bind(p))

	desc = poller.NewDesc()
	// Poller is nil.
	assert.NotNil(t, desc.Bind(nil))
}

func TestNormal(t *testing.T) {
	p := startPoller(t)
	eventFD, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	require.Nil(t, err)
	defer unix.Close(eventFD)
	var onRead, onHup int
	pollDesc := poller.NewDesc()
	pollDesc.FD = eventFD
	pollDesc.Data = 1
	ch := make(chan struct{}, 1)
	pollDesc.OnRead = func(_ interface{}) error {
		onRead++
		ch <- struct{}{}
		buf := make([]byte, 8)
		unix.Read(eventFD, buf)
		return nil
	}
	hup := make(chan struct{}, 1)
	pollDesc.OnHup = func(_ interface{}) {
		onHup = 1
		hup <- struct{}{}
	}

	require.Nil(t, pollDesc.Bind(p))
	require.Nil(t, pollDesc.Control(poller.Readable))
	buf := []byte{1, 0, 0, 0, 0, 0, 0, 0}
	n, err := unix.Write(eventFD, buf)
	assert.Nil(t, err)
	assert.Equal(t, n, len(buf))
	<-ch
	assert.Equal(t, onRead, 1)
	pollDesc.OnRead = func(_ interface{}) error {
		return errors.New("fake fails")
	}
	_, err = unix.Write(eventFD, buf)
	assert.Nil(t, err)
	<-hup
	assert.Equal(t, onHup, 1)
}

func TestTrigger(t *testing.T) {
	p := startPoller(t)
	var mu sync.Mutex
	var order []int
	done := make(chan struct{})
	for i := 0; i < 3; i++ {
		i := i
		require.Nil(t, p.Trigger(func() error {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			if i == 2 {
				close(done)
			}
			return nil
		}))
	}
	<-done
	mu.Lock()
	assert.Equal(t, []int{0, 1, 2}, order)
	mu.Unlock()
}

func TestTriggerJobError(t *testing.T) {
	p := startPoller(t)
	assert.Nil(t, p.Trigger(nil))
	require.Nil(t, p.Trigger(func() error { return errors.New("fake fails") }))
	done := make(chan struct{})
	require.Nil(t, p.Trigger(func() error {
		close(done)
		return nil
	}))
	// A failing job does not stop the queue.
	<-done
}

// Close must wake the goroutine blocked in Wait and let it return, even
// though closing an epoll fd on its own never interrupts epoll_pwait.
func TestCloseStopsWait(t *testing.T) {
	p, err := poller.New(false)
	require.Nil(t, err)
	done := make(chan error, 1)
	go func() { done <- p.Wait() }()

	ran := make(chan struct{})
	require.Nil(t, p.Trigger(func() error {
		close(ran)
		return nil
	}))
	<-ran

	require.Nil(t, p.Close())
	select {
	case err := <-done:
		assert.Nil(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Wait did not return after Close")
	}
	assert.Nil(t, p.Close(), "close is idempotent")
	assert.NotNil(t, p.Trigger(func() error { return nil }), "trigger after close must fail")
}

func TestClientClose(t *testing.T) {
	p := startPoller(t)
	eventFD, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	require.Nil(t, err)
	pollDesc := poller.NewDesc()
	pollDesc.FD = eventFD
	require.Nil(t, pollDesc.Bind(p))
	unix.Close(eventFD)
	require.NotNil(t, pollDesc.Close())
}

func TestPollDescEvent(t *testing.T) {
	p := startPoller(t)
	t.Run("Readable", func(t *testing.T) {
		eventFD, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
		require.Nil(t, err)
		defer unix.Close(eventFD)
		desc := poller.NewDesc()
		desc.FD = eventFD
		assert.Nil(t, desc.Bind(p))
		assert.Nil(t, desc.Control(poller.Readable))
		assert.Nil(t, desc.Close())
	})
	t.Run("Writable", func(t *testing.T) {
		eventFD, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
		require.Nil(t, err)
		defer unix.Close(eventFD)
		desc := poller.NewDesc()
		desc.FD = eventFD
		assert.Nil(t, desc.Bind(p))
		assert.Nil(t, desc.Control(poller.Writable))
		assert.Nil(t, desc.Close())
	})
	t.Run("ReadWriteable", func(t *testing.T) {
		eventFD, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
		require.Nil(t, err)
		defer unix.Close(eventFD)
		desc := poller.NewDesc()
		desc.FD = eventFD
		assert.Nil(t, desc.Bind(p))
		assert.Nil(t, desc.Control(poller.ReadWriteable))
		assert.Nil(t, desc.Close())
	})
	t.Run("ModReadable", func(t *testing.T) {
		eventFD, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
		require.Nil(t, err)
		defer unix.Close(eventFD)
		desc := poller.NewDesc()
		desc.FD = eventFD
		assert.Nil(t, desc.Bind(p))
		assert.Nil(t, desc.Control(poller.Readable))
		assert.Nil(t, desc.Control(poller.ModReadable))
		assert.Nil(t, desc.Close())
	})
	t.Run("ModWritable", func(t *testing.T) {
		eventFD, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
		require.Nil(t, err)
		defer unix.Close(eventFD)
		desc := poller.NewDesc()
		desc.FD = eventFD
		assert.Nil(t, desc.Bind(p))
		assert.Nil(t, desc.Control(poller.Writable))
		assert.Nil(t, desc.Control(poller.ModWritable))
		assert.Nil(t, desc.Close())
	})
	t.Run("ModReadWriteable", func(t *testing.T) {
		eventFD, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
		require.Nil(t, err)
		defer unix.Close(eventFD)
		desc := poller.NewDesc()
		desc.FD = eventFD
		assert.Nil(t, desc.Bind(p))
		assert.Nil(t, desc.Control(poller.Writable))
		assert.Nil(t, desc.Control(poller.ModReadWriteable))
		assert.Nil(t, desc.Close())
	})
	t.Run("Detach", func(t *testing.T) {
		eventFD, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
		require.Nil(t, err)
		defer unix.Close(eventFD)
		desc := poller.NewDesc()
		desc.FD = eventFD
		assert.Nil(t, desc.Bind(p))
		assert.Nil(t, desc.Control(poller.Writable))
		assert.Nil(t, desc.Control(poller.Detach))
	})
}
