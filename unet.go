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

// Package unet provides a readiness-polling event loop for UDP datagram
// channels. A Worker runs one poll loop on a dedicated goroutine and
// multiplexes the channels registered with it; the Pipeline carries the
// channel events to the user.
package unet

import (
	"net"

	"trpc.group/trpc-go/unet/internal/poller"
)

// Ops is the bitmask of readiness events a channel asks its worker to
// monitor.
type Ops int

// Interest ops flags.
const (
	OpRead Ops = 1 << iota
	OpWrite
)

// Has reports whether flag is set in o.
func (o Ops) Has(flag Ops) bool {
	return o&flag != 0
}

// String implements fmt.Stringer.
func (o Ops) String() string {
	switch {
	case o.Has(OpRead) && o.Has(OpWrite):
		return "read|write"
	case o.Has(OpRead):
		return "read"
	case o.Has(OpWrite):
		return "write"
	default:
		return "none"
	}
}

// Pipeline receives the events of one channel. All loop-originated events
// (received datagrams, errors discovered by the loop) fire on the worker
// loop goroutine, so implementations must not block; hand heavy work to
// Submit. Disconnected and Closed fire on the loop goroutine as well when
// the triggering call was made there, otherwise they are forwarded to it.
type Pipeline interface {
	// OnOpened fires once when the channel is created, before any
	// registration, on the creating goroutine.
	OnOpened(c *Channel)

	// OnReceived fires for every non-empty datagram received. The buffer
	// is freshly allocated per receive and owned by the callee.
	OnReceived(c *Channel, buf *Buffer, from net.Addr)

	// OnDisconnected fires after a disconnect dissolved an existing peer
	// association.
	OnDisconnected(c *Channel)

	// OnClosed fires once when the channel is closed.
	OnClosed(c *Channel)

	// OnError fires for receive and disconnect errors. The channel may be
	// closed right after, see the close future.
	OnError(c *Channel, err error)
}

// WritablePipeline is optionally implemented by pipelines that want
// OpWrite readiness callbacks.
type WritablePipeline interface {
	// OnWritable fires when the socket becomes writable while OpWrite is
	// part of the channel's interest ops.
	OnWritable(c *Channel)
}

// PipelineFuncs adapts plain functions to the Pipeline interface. Nil
// members are skipped.
type PipelineFuncs struct {
	Opened       func(c *Channel)
	Received     func(c *Channel, buf *Buffer, from net.Addr)
	Disconnected func(c *Channel)
	Closed       func(c *Channel)
	Error        func(c *Channel, err error)
	Writable     func(c *Channel)
}

// PipelineFuncs must implement Pipeline and WritablePipeline.
var (
	_ Pipeline         = (*PipelineFuncs)(nil)
	_ WritablePipeline = (*PipelineFuncs)(nil)
)

// OnOpened implements Pipeline.
func (p *PipelineFuncs) OnOpened(c *Channel) {
	if p.Opened != nil {
		p.Opened(c)
	}
}

// OnReceived implements Pipeline.
func (p *PipelineFuncs) OnReceived(c *Channel, buf *Buffer, from net.Addr) {
	if p.Received != nil {
		p.Received(c, buf, from)
	}
}

// OnDisconnected implements Pipeline.
func (p *PipelineFuncs) OnDisconnected(c *Channel) {
	if p.Disconnected != nil {
		p.Disconnected(c)
	}
}

// OnClosed implements Pipeline.
func (p *PipelineFuncs) OnClosed(c *Channel) {
	if p.Closed != nil {
		p.Closed(c)
	}
}

// OnError implements Pipeline.
func (p *PipelineFuncs) OnError(c *Channel, err error) {
	if p.Error != nil {
		p.Error(c, err)
	}
}

// OnWritable implements WritablePipeline.
func (p *PipelineFuncs) OnWritable(c *Channel) {
	if p.Writable != nil {
		p.Writable(c)
	}
}

// EnablePollerGoschedAfterEvent enables calling runtime.Gosched() after processing of each event
// during epoll wait handling.
// This function can only be called inside func init().
func EnablePollerGoschedAfterEvent() {
	poller.GoschedAfterEvent = true
}
