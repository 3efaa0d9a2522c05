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

	"golang.org/x/sys/unix"
)

var (
	// ErrChannelClosed indicates that the channel has been closed already.
	ErrChannelClosed = netError{error: errors.New("channel is closed")}

	// ErrWorkerClosed indicates that the worker loop has terminated.
	ErrWorkerClosed = netError{error: errors.New("worker is closed")}

	// ErrChannelRegistered indicates a registration of a channel that is
	// already attached to a worker.
	ErrChannelRegistered = netError{error: errors.New("channel is already registered")}

	// EAGAIN indicates that the socket is not ready, operations should be retried.
	EAGAIN = netError{error: errors.New("socket would block, try it again")}

	// ErrUnsupportedOperation indicates an operation the transport never provides,
	// such as multicast group membership.
	ErrUnsupportedOperation = errors.New("operation not supported")
)

type netError struct {
	error
	isTimeout bool
}

// Timeout implements net.Error interface.
func (e netError) Timeout() bool {
	return e.isTimeout
}

// Temporary implements net.Error interface.
func (e netError) Temporary() bool {
	switch e.error {
	case unix.EAGAIN, unix.ECONNRESET, unix.ECONNABORTED:
		return true
	default:
		return false
	}
}
