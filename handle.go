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
	"fmt"
	"net"
	"os"
	"sync"

	"go.uber.org/atomic"
	"golang.org/x/sys/unix"
	"trpc.group/trpc-go/unet/internal/netutil"
	"trpc.group/trpc-go/unet/internal/poller"
	"trpc.group/trpc-go/unet/metrics"
)

// goSockCloser is used to store go net library conn and listener.
type goSockCloser interface {
	Close() error
}

const defaultUDPBufferSize = 65535

// sockFD owns one non-blocking UDP socket: the raw descriptor, the poller
// Desc once the channel is registered, and the addresses the socket is
// bound or connected to.
type sockFD struct {
	desc    *poller.Desc
	sock    goSockCloser
	laddr   net.Addr
	raddr   net.Addr
	network string

	fd     int
	closed atomic.Bool

	// The intention of locker is to ensure close() concurrent safe.
	// sockFD can only be closed once, and no control() can be called thereafter.
	locker sync.Mutex
}

// FD returns the sockFD's file descriptor.
func (nfd *sockFD) FD() int {
	return nfd.fd
}

// close is safe for concurrent call.
func (nfd *sockFD) close() {
	nfd.locker.Lock()
	defer nfd.locker.Unlock()
	if !nfd.closed.CAS(false, true) {
		return
	}
	if nfd.desc != nil {
		nfd.desc.Close()
		poller.FreeDesc(nfd.desc)
		nfd.desc = nil
	}
	if nfd.sock != nil {
		nfd.sock.Close()
	} else {
		unix.Close(nfd.fd)
	}
}

// schedule adds the sockFD to the given poller and monitors the initial
// event. The channel goes into Desc.Data so the event callbacks can find
// it again.
func (nfd *sockFD) schedule(
	p poller.Poller,
	onRead func(data interface{}) error,
	onWrite func(data interface{}) error,
	onHup func(data interface{}),
	data interface{},
	event poller.Event,
) error {
	if nfd.desc != nil {
		return errors.New("already in poller system")
	}
	desc := poller.NewDesc()
	desc.Lock()
	desc.FD = nfd.FD()
	desc.Data = data
	desc.OnRead, desc.OnWrite, desc.OnHup = onRead, onWrite, onHup
	desc.Unlock()
	if err := desc.Bind(p); err != nil {
		poller.FreeDesc(desc)
		return err
	}
	nfd.locker.Lock()
	nfd.desc = desc
	nfd.locker.Unlock()
	return nfd.control(event)
}

// control registers an interest event to the poller system.
func (nfd *sockFD) control(event poller.Event) error {
	nfd.locker.Lock()
	defer nfd.locker.Unlock()
	if nfd.closed.Load() {
		return ErrChannelClosed
	}
	if nfd.desc == nil {
		return fmt.Errorf("sockFD %d is not add to poller", nfd.FD())
	}
	return nfd.desc.Control(event)
}

// Receive outcome kinds. The tagged result replaces sentinel nil
// checking: data, would-block, closed handle and real errors are
// distinct cases, never inferred from a missing address.
type recvKind int

const (
	recvData recvKind = iota
	recvAgain
	recvClosed
	recvError
)

type receiveResult struct {
	from unix.Sockaddr
	err  error
	n    int
	kind recvKind
}

// recvFrom performs exactly one non-blocking receive into buf and
// classifies the outcome.
func (nfd *sockFD) recvFrom(buf []byte) receiveResult {
	n, sa, err := unix.Recvfrom(nfd.fd, buf, 0)
	metrics.Add(metrics.UDPRecvfromCalls, 1)
	switch {
	case err == nil && sa == nil:
		return receiveResult{kind: recvAgain}
	case err == nil:
		return receiveResult{kind: recvData, n: n, from: sa}
	case err == unix.EAGAIN || err == unix.EWOULDBLOCK:
		return receiveResult{kind: recvAgain}
	case err == unix.EBADF || nfd.closed.Load():
		metrics.Add(metrics.UDPRecvfromFails, 1)
		return receiveResult{kind: recvClosed}
	default:
		metrics.Add(metrics.UDPRecvfromFails, 1)
		return receiveResult{kind: recvError, err: os.NewSyscallError("recvfrom", err)}
	}
}

// writeTo sends a packet with payload data to addr.
func (nfd *sockFD) writeTo(data []byte, addr net.Addr) (int, error) {
	if len(data) == 0 {
		return 0, nil
	}
	if addr == nil {
		return 0, errors.New("address can't be nil")
	}
	if len(data) > defaultUDPBufferSize {
		return 0, fmt.Errorf("data length %d is too long, the max udp buffer size is %d", len(data), defaultUDPBufferSize)
	}
	sa, err := netutil.AddrToSockAddr(nfd.laddr, addr)
	if err != nil {
		return 0, err
	}
	metrics.Add(metrics.UDPWriteToCalls, 1)
	if err := unix.Sendto(nfd.FD(), data, 0, sa); err != nil {
		metrics.Add(metrics.UDPWriteToFails, 1)
		return 0, err
	}
	return len(data), nil
}

// write sends a packet to the connected peer.
func (nfd *sockFD) write(data []byte) (int, error) {
	if len(data) > defaultUDPBufferSize {
		return 0, fmt.Errorf("data length %d is too long, the max udp buffer size is %d", len(data), defaultUDPBufferSize)
	}
	metrics.Add(metrics.UDPWriteToCalls, 1)
	n, err := unix.Write(nfd.fd, data)
	if err != nil {
		metrics.Add(metrics.UDPWriteToFails, 1)
	}
	return n, err
}

// disconnect dissolves the peer association of a connected UDP socket.
// The socket stays open and bound.
func (nfd *sockFD) disconnect() error {
	return disconnectSocket(nfd.fd)
}

func udpFamily(network string, laddr, raddr *net.UDPAddr) (int, error) {
	switch network {
	case "udp", "udp4":
	case "udp6":
		return unix.AF_INET6, nil
	default:
		return 0, fmt.Errorf("unknown network %s", network)
	}
	if network == "udp" {
		if laddr != nil && laddr.IP.To4() == nil && len(laddr.IP) != 0 {
			return unix.AF_INET6, nil
		}
		if raddr != nil && raddr.IP.To4() == nil && len(raddr.IP) != 0 {
			return unix.AF_INET6, nil
		}
	}
	return unix.AF_INET, nil
}
