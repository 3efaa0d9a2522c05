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
	"fmt"
	"net"
	"runtime"
	"sync"
	"time"

	goreuseport "github.com/kavu/go_reuseport"
	"github.com/petermattis/goid"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"trpc.group/trpc-go/unet/internal/netutil"
	"trpc.group/trpc-go/unet/internal/poller"
	"trpc.group/trpc-go/unet/internal/timer"
	"trpc.group/trpc-go/unet/log"
	"trpc.group/trpc-go/unet/metrics"
)

// Worker runs one readiness-poll loop on a dedicated, OS-thread-locked
// goroutine and multiplexes the UDP channels registered with it. A
// process may run several workers, each owning a disjoint channel set;
// exactly one worker ever owns a given channel.
//
// The worker terminates itself once no channels have been registered for
// the configured idle grace period, or on an explicit Close. It never
// restarts.
type Worker struct {
	poller   poller.Poller
	idle     *timer.Timer
	done     chan struct{}
	loopGoid atomic.Int64
	closed   atomic.Bool
	opts     workerOptions

	mu       sync.Mutex
	channels map[*Channel]struct{}
}

// NewWorker creates a worker and starts its poll loop.
func NewWorker(opt ...WorkerOption) (*Worker, error) {
	var opts workerOptions
	opts.setDefault()
	for _, o := range opt {
		o.f(&opts)
	}
	p, err := poller.New(false)
	if err != nil {
		return nil, errors.Wrap(err, "create poller")
	}
	w := &Worker{
		poller:   p,
		done:     make(chan struct{}),
		opts:     opts,
		channels: make(map[*Channel]struct{}),
	}
	if opts.idleTimeout > 0 {
		w.idle = timer.New(opts.idleTimeout, w.idleStop)
		w.idle.Start()
	}
	go w.loop()
	return w, nil
}

func (w *Worker) loop() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	w.loopGoid.Store(goid.Get())
	log.Infof("unet worker started, idle timeout: %v\n", w.opts.idleTimeout)
	if err := w.poller.Wait(); err != nil && !w.closed.Load() {
		// Failure of the poll primitive itself, nothing to recover.
		log.Errorf("unet worker poll failed: %v\n", err)
	}
	log.Infof("unet worker stopped\n")
	close(w.done)
}

// onLoop reports whether the caller runs on the worker loop goroutine.
func (w *Worker) onLoop() bool {
	return goid.Get() == w.loopGoid.Load()
}

// Wait blocks until the worker loop has exited.
func (w *Worker) Wait() {
	<-w.done
}

// Close terminates the worker: it closes every channel still registered
// and stops the poll loop. Close is idempotent and terminal, the worker
// never restarts.
func (w *Worker) Close() error {
	if !w.closed.CAS(false, true) {
		return nil
	}
	if w.idle != nil {
		w.idle.Stop()
	}
	w.mu.Lock()
	chs := make([]*Channel, 0, len(w.channels))
	for c := range w.channels {
		chs = append(chs, c)
	}
	w.mu.Unlock()
	for _, c := range chs {
		c.Close()
	}
	// The loop consumes the final wakeup, drains the pending jobs and
	// releases the poll descriptors before Wait returns.
	return w.poller.Close()
}

func (w *Worker) idleStop() {
	w.mu.Lock()
	idle := len(w.channels) == 0
	w.mu.Unlock()
	if !idle || w.closed.Load() {
		return
	}
	metrics.Add(metrics.WorkerIdleStops, 1)
	log.Infof("unet worker idle for %v, stopping\n", w.opts.idleTimeout)
	w.Close()
}

func (w *Worker) noteRegistered(c *Channel) {
	w.mu.Lock()
	w.channels[c] = struct{}{}
	w.mu.Unlock()
	if w.idle != nil {
		w.idle.Stop()
	}
}

func (w *Worker) forgetChannel(c *Channel, wasRegistered bool) {
	if !wasRegistered {
		return
	}
	w.mu.Lock()
	delete(w.channels, c)
	empty := len(w.channels) == 0
	w.mu.Unlock()
	if empty && w.idle != nil && !w.closed.Load() {
		w.idle.Start()
	}
}

// deliver runs fire on the loop goroutine: immediately when the caller
// already is the loop, queued through the poller job queue otherwise, so
// pipeline events of one channel keep a single total order. When the
// loop is gone the event is delivered inline rather than lost.
func (w *Worker) deliver(onLoop bool, fire func()) {
	if onLoop {
		fire()
		return
	}
	if err := w.poller.Trigger(func() error {
		fire()
		return nil
	}); err != nil {
		fire()
	}
}

// Register attaches the channel to the worker's poller. The returned
// future settles once the registration ran on the loop goroutine:
// success when the channel is attached with its current interest ops,
// failure when the channel has no resolvable local address or the
// handle is closed, in which case the channel is closed as well. A
// second registration fails with ErrChannelRegistered and leaves the
// first one intact.
func (w *Worker) Register(c *Channel) *Future {
	fut := newFuture()
	if c == nil {
		fut.Fail(errors.New("channel is nil"))
		return fut
	}
	if c.Worker() != w {
		fut.Fail(errors.New("channel is owned by another worker"))
		return fut
	}
	if w.closed.Load() {
		fut.Fail(ErrWorkerClosed)
		return fut
	}
	if w.onLoop() {
		if err := w.registerTask(c, fut); err != nil {
			log.Debugf("register channel err: %v\n", err)
		}
		return fut
	}
	if err := w.poller.Trigger(func() error {
		return w.registerTask(c, fut)
	}); err != nil {
		fut.Fail(ErrWorkerClosed)
	}
	return fut
}

// registerTask runs on the loop goroutine. It is the one operation that
// both fails its future and returns an error: a poller attach failure is
// raised to the job runner after the cleanup (future failed, channel
// closed) has completed.
func (w *Worker) registerTask(c *Channel, fut *Future) error {
	if c.LocalAddr() == nil {
		// Unresolvable local address: the poller is never consulted.
		metrics.Add(metrics.ChannelRegisterFails, 1)
		fut.Fail(ErrChannelClosed)
		c.Close()
		return nil
	}
	c.mu.Lock()
	if c.closed() {
		c.mu.Unlock()
		fut.Fail(ErrChannelClosed)
		return nil
	}
	if c.regState.Load() != regUnregistered {
		c.mu.Unlock()
		fut.Fail(ErrChannelRegistered)
		return nil
	}
	err := c.nfd.schedule(w.poller, channelOnRead, channelOnWrite, channelOnHup, c, attachEvent(c.interestOps))
	if err == nil {
		c.regState.Store(regRegistered)
	}
	c.mu.Unlock()
	if err != nil {
		metrics.Add(metrics.ChannelRegisterFails, 1)
		fut.Fail(err)
		c.Close()
		return errors.Wrap(err, "register channel")
	}
	w.noteRegistered(c)
	metrics.Add(metrics.ChannelsRegistered, 1)
	fut.Succeed()
	return nil
}

// read is the loop-side read-readiness handler: one fresh buffer sized by
// the predictor, exactly one non-blocking receive. Returning an error
// detaches the channel from the poller, the subsequent hup callback
// closes it with a succeeded close future.
func (w *Worker) read(c *Channel) error {
	if !c.beginJobSafely(sysRead) {
		return ErrChannelClosed
	}
	defer c.endJobSafely(sysRead)
	buf := make([]byte, c.config.predictor.NextSize())
	res := c.nfd.recvFrom(buf)
	switch res.kind {
	case recvAgain:
		return nil
	case recvClosed:
		// Closed mid-receive, benign: no pipeline notification.
		return ErrChannelClosed
	case recvError:
		c.pipeline.OnError(c, res.err)
		return res.err
	}
	if res.n == 0 {
		// Valid empty datagram: no event, no predictor update.
		metrics.Add(metrics.UDPRecvfromEmpty, 1)
		return nil
	}
	// Record only actual receives. A datagram larger than the predicted
	// size arrives truncated to the buffer, the predictor then grows
	// toward the sender's sizes.
	c.config.predictor.Record(res.n)
	metrics.Add(metrics.UDPRecvfromPackets, 1)
	c.pipeline.OnReceived(c, c.config.factory.Wrap(buf[:res.n]), netutil.SockaddrToUDPAddr(res.from))
	return nil
}

// writable is the loop-side write-readiness handler.
func (w *Worker) writable(c *Channel) error {
	if c.closed() {
		return ErrChannelClosed
	}
	if wp, ok := c.pipeline.(WritablePipeline); ok {
		wp.OnWritable(c)
	}
	return nil
}

// Disconnect dissolves the channel's peer association. It may be called
// from any goroutine; the socket stays open, bound and registered. The
// returned future settles with the outcome, and when the channel was
// connected before the call exactly one OnDisconnected event fires,
// immediately on the loop goroutine or forwarded to it.
func (w *Worker) Disconnect(c *Channel) *Future {
	fut := newFuture()
	if c == nil {
		fut.Fail(errors.New("channel is nil"))
		return fut
	}
	if c.Worker() != w {
		fut.Fail(errors.New("channel is owned by another worker"))
		return fut
	}
	w.disconnect(c, fut)
	return fut
}

func (w *Worker) disconnect(c *Channel, fut *Future) {
	if !c.beginJobSafely(apiCtrl) {
		fut.Fail(ErrChannelClosed)
		return
	}
	defer c.endJobSafely(apiCtrl)
	// Snapshot before mutating anything, the rules below key off the
	// pre-disconnect state.
	wasConnected := c.IsConnected()
	onLoop := w.onLoop()
	if err := c.nfd.disconnect(); err != nil {
		fut.Fail(err)
		w.deliver(onLoop, func() {
			c.pipeline.OnError(c, err)
		})
		return
	}
	c.clearRemoteAddr()
	metrics.Add(metrics.ChannelsDisconnected, 1)
	fut.Succeed()
	if wasConnected {
		w.deliver(onLoop, func() {
			c.pipeline.OnDisconnected(c)
		})
	}
}

// Listen creates a channel bound to the given address. Valid networks
// are "udp", "udp4" and "udp6". With WithReusePort several workers can
// bind channels to one address and let the kernel shard the load. The
// channel is not registered yet, call Register.
func (w *Worker) Listen(network, address string, pl Pipeline, opt ...Option) (*Channel, error) {
	if err := validateNetwork("Listen", network); err != nil {
		return nil, err
	}
	opts, err := w.buildOptions(pl, opt...)
	if err != nil {
		return nil, err
	}
	listenPacket := net.ListenPacket
	if opts.reusePort {
		listenPacket = goreuseport.ListenPacket
	}
	rawConn, err := listenPacket(network, address)
	if err != nil {
		return nil, fmt.Errorf("udp listen error: %w", err)
	}
	if err := netutil.ValidateUDP(rawConn); err != nil {
		rawConn.Close()
		return nil, fmt.Errorf("validate listener fail: %w", err)
	}
	return w.adoptConn(rawConn, rawConn.LocalAddr(), nil, network, pl, opts)
}

// Dial creates a channel with a fixed peer address. laddr may be empty
// to let the kernel pick the local address. The channel is not
// registered yet, call Register.
func (w *Worker) Dial(network, laddr, raddr string, timeout time.Duration, pl Pipeline, opt ...Option) (*Channel, error) {
	if err := validateNetwork("Dial", network); err != nil {
		return nil, err
	}
	opts, err := w.buildOptions(pl, opt...)
	if err != nil {
		return nil, err
	}
	d := net.Dialer{Timeout: timeout}
	if laddr != "" {
		a, err := net.ResolveUDPAddr(network, laddr)
		if err != nil {
			return nil, fmt.Errorf("resolve local address %s: %w", laddr, err)
		}
		d.LocalAddr = a
	}
	conn, err := d.Dial(network, raddr)
	if err != nil {
		return nil, fmt.Errorf("dial network %s, address %s with timeout %v error: %w", network, raddr, timeout, err)
	}
	return w.adoptConn(conn, conn.LocalAddr(), conn.RemoteAddr(), network, pl, opts)
}

// Open creates an unbound channel: the socket is open and non-blocking
// but has no local address yet. Registering an unbound channel fails and
// closes it.
func (w *Worker) Open(network string, pl Pipeline, opt ...Option) (*Channel, error) {
	if err := validateNetwork("Open", network); err != nil {
		return nil, err
	}
	opts, err := w.buildOptions(pl, opt...)
	if err != nil {
		return nil, err
	}
	family, err := udpFamily(network, nil, nil)
	if err != nil {
		return nil, err
	}
	fd, err := openSocket(family)
	if err != nil {
		return nil, err
	}
	return w.newChannel(nil, fd, nil, nil, network, pl, opts), nil
}

func (w *Worker) buildOptions(pl Pipeline, opt ...Option) (*options, error) {
	if w.closed.Load() {
		return nil, ErrWorkerClosed
	}
	if pl == nil {
		return nil, errors.New("pipeline can't be nil")
	}
	var opts options
	opts.setDefault()
	for _, o := range opt {
		o.f(&opts)
	}
	if opts.predictor == nil {
		opts.predictor = NewDefaultSizePredictor()
	}
	return &opts, nil
}

func (w *Worker) adoptConn(sock goSockCloser, laddr, raddr net.Addr, network string,
	pl Pipeline, opts *options) (*Channel, error) {
	fd, err := netutil.GetFD(sock)
	if err != nil {
		sock.Close()
		return nil, fmt.Errorf("get fd of %s socket: %w", network, err)
	}
	return w.newChannel(sock, fd, laddr, raddr, network, pl, opts), nil
}

// newChannel never returns a partially-open channel: by the time it runs
// the socket is open and non-blocking. OnOpened fires synchronously on
// the constructing goroutine, before any registration.
func (w *Worker) newChannel(sock goSockCloser, fd int, laddr, raddr net.Addr, network string,
	pl Pipeline, opts *options) *Channel {
	c := &Channel{
		worker:   w,
		pipeline: pl,
		closeFut: newFuture(),
		config: Config{
			predictor: opts.predictor,
			factory:   opts.bufferFactory,
		},
		interestOps: opts.interestOps,
	}
	c.nfd = sockFD{
		fd:      fd,
		sock:    sock,
		laddr:   laddr,
		raddr:   raddr,
		network: network,
	}
	pl.OnOpened(c)
	return c
}

func validateNetwork(op, network string) error {
	switch network {
	case "udp", "udp4", "udp6":
		return nil
	default:
		return fmt.Errorf("%s: unknown network %s", op, network)
	}
}
