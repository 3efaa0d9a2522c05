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
	"errors"
	"net"
	"sync"

	"go.uber.org/atomic"
	"golang.org/x/sys/unix"
	"trpc.group/trpc-go/unet/internal/poller"
	"trpc.group/trpc-go/unet/metrics"
)

// Registration states of a channel. Transitions are monotonic:
// unregistered -> registered -> closing -> closed. A failed registration
// short-circuits straight to closed.
const (
	regUnregistered int32 = iota
	regRegistered
	regClosing
	regClosed
)

// Config carries the per-channel receive configuration: the size
// predictor sizing the next receive buffer and the factory wrapping
// received bytes. Both are confined to the worker loop goroutine.
type Config struct {
	predictor ReceiveSizePredictor
	factory   BufferFactory
}

// Predictor returns the channel's receive-size predictor.
func (cfg *Config) Predictor() ReceiveSizePredictor {
	return cfg.predictor
}

// BufferFactory returns the channel's buffer factory.
func (cfg *Config) BufferFactory() BufferFactory {
	return cfg.factory
}

// Channel is one UDP endpoint multiplexed by a Worker. It is created
// through Worker.Listen, Worker.Dial or Worker.Open, registered with
// Worker.Register, and handed back to the user through Pipeline events.
type Channel struct {
	nfd      sockFD
	worker   *Worker
	pipeline Pipeline
	config   Config
	closeFut *Future

	// mu guards the (handle, interestOps, regState) triple as one region:
	// the loop can never observe a half-updated interest mask while
	// attaching, and an external goroutine can never mutate the mask
	// concurrently with an in-flight attach.
	mu          sync.Mutex
	interestOps Ops
	regState    atomic.Int32

	closer
}

// Worker returns the worker that owns the channel.
func (c *Channel) Worker() *Worker {
	return c.worker
}

// Config returns the channel's receive configuration.
func (c *Channel) Config() *Config {
	return &c.config
}

// LocalAddr returns the local address, or nil if the socket is unbound.
func (c *Channel) LocalAddr() net.Addr {
	return c.nfd.laddr
}

// RemoteAddr returns the fixed peer address, or nil if the socket has no
// peer association.
func (c *Channel) RemoteAddr() net.Addr {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nfd.raddr
}

func (c *Channel) clearRemoteAddr() {
	c.mu.Lock()
	c.nfd.raddr = nil
	c.mu.Unlock()
}

// IsOpen reports whether the underlying socket is open.
func (c *Channel) IsOpen() bool {
	return !c.nfd.closed.Load()
}

// IsBound reports whether the socket is open and bound to a local address.
func (c *Channel) IsBound() bool {
	return c.IsOpen() && c.nfd.laddr != nil
}

// IsConnected reports whether the socket has a fixed peer. A channel may
// be connected and still receive nothing, UDP fixes an address, not a
// session.
func (c *Channel) IsConnected() bool {
	return c.IsOpen() && c.RemoteAddr() != nil
}

// IsRegistered reports whether the channel is currently attached to its
// worker's poller.
func (c *Channel) IsRegistered() bool {
	return c.regState.Load() == regRegistered
}

// InterestOps returns the current interest ops mask.
func (c *Channel) InterestOps() Ops {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.interestOps
}

// SetInterestOps changes the readiness events the channel asks its worker
// to monitor. While the channel is registered the poller is re-armed
// immediately; before registration the mask is stored for the upcoming
// attach. The mask must name at least one event.
func (c *Channel) SetInterestOps(ops Ops) error {
	if ops&(OpRead|OpWrite) == 0 {
		return errors.New("interest ops must contain at least one event")
	}
	if !c.beginJobSafely(apiCtrl) {
		return ErrChannelClosed
	}
	defer c.endJobSafely(apiCtrl)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.interestOps = ops
	if c.regState.Load() != regRegistered {
		return nil
	}
	return c.nfd.control(rearmEvent(ops))
}

func attachEvent(ops Ops) poller.Event {
	switch {
	case ops.Has(OpRead) && ops.Has(OpWrite):
		return poller.ReadWriteable
	case ops.Has(OpWrite):
		return poller.Writable
	default:
		return poller.Readable
	}
}

func rearmEvent(ops Ops) poller.Event {
	switch {
	case ops.Has(OpRead) && ops.Has(OpWrite):
		return poller.ModReadWriteable
	case ops.Has(OpWrite):
		return poller.ModWritable
	default:
		return poller.ModReadable
	}
}

// Write sends one datagram with payload p. A nil target, or a target
// equal to the channel's fixed peer, routes through the connected-path
// send; any other target is sent ad hoc with sendto. Writing with a nil
// target on an unconnected channel fails. A would-block condition is
// surfaced as EAGAIN, datagrams are never buffered.
func (c *Channel) Write(p []byte, to net.Addr) (int, error) {
	if !c.beginJobSafely(apiWrite) {
		return 0, ErrChannelClosed
	}
	defer c.endJobSafely(apiWrite)
	remote := c.RemoteAddr()
	if to == nil || addrEqual(to, remote) {
		if remote == nil {
			return 0, errors.New("miss remote address")
		}
		n, err := c.nfd.write(p)
		return n, mapSyscallError(err)
	}
	n, err := c.nfd.writeTo(p, to)
	return n, mapSyscallError(err)
}

func addrEqual(a, b net.Addr) bool {
	if a == nil || b == nil {
		return false
	}
	return a.String() == b.String()
}

func mapSyscallError(err error) error {
	if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
		return EAGAIN
	}
	return err
}

// JoinGroup always fails: multicast membership is not provided by this
// transport. It never mutates channel state.
func (c *Channel) JoinGroup(group *net.UDPAddr, ifi *net.Interface) error {
	return ErrUnsupportedOperation
}

// LeaveGroup always fails: multicast membership is not provided by this
// transport. It never mutates channel state.
func (c *Channel) LeaveGroup(group *net.UDPAddr, ifi *net.Interface) error {
	return ErrUnsupportedOperation
}

// CloseFuture returns the future that settles when the channel closes.
// It always settles with success, closing a channel cannot fail.
func (c *Channel) CloseFuture() *Future {
	return c.closeFut
}

// Close closes the channel: detaches it from the poller, closes the
// socket, settles the close future and fires OnClosed. It is idempotent,
// later calls are no-ops.
func (c *Channel) Close() error {
	if !c.beginJobSafely(closeAll) {
		return nil
	}
	defer c.endJobSafely(closeAll)
	c.closeAllJobs()

	c.mu.Lock()
	wasRegistered := c.regState.Load() == regRegistered
	c.regState.Store(regClosing)
	c.mu.Unlock()

	c.nfd.close()
	c.regState.Store(regClosed)
	metrics.Add(metrics.ChannelsClosed, 1)
	if c.worker != nil {
		c.worker.forgetChannel(c, wasRegistered)
	}
	c.closeFut.Succeed()
	c.fireClosed()
	return nil
}

func (c *Channel) fireClosed() {
	if c.worker == nil {
		c.pipeline.OnClosed(c)
		return
	}
	c.worker.deliver(c.worker.onLoop(), func() {
		c.pipeline.OnClosed(c)
	})
}

// channelOnRead is the poller read-readiness callback. Returning an error
// detaches the descriptor, the hup callback then closes the channel.
func channelOnRead(data interface{}) error {
	c, ok := data.(*Channel)
	if !ok {
		return errors.New("data is not a channel")
	}
	return c.worker.read(c)
}

// channelOnWrite is the poller write-readiness callback.
func channelOnWrite(data interface{}) error {
	c, ok := data.(*Channel)
	if !ok {
		return errors.New("data is not a channel")
	}
	return c.worker.writable(c)
}

// channelOnHup runs after the poller detached the descriptor because of a
// read failure or a hang-up. The close future settles with success, the
// failure itself was already classified by the read path.
func channelOnHup(data interface{}) {
	if c, ok := data.(*Channel); ok {
		c.Close()
	}
}
