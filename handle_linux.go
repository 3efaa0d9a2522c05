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

package unet

import (
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// openSocket opens a non-blocking close-on-exec UDP socket.
func openSocket(family int) (int, error) {
	fd, err := unix.Socket(family, unix.SOCK_DGRAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, os.NewSyscallError("socket", err)
	}
	return fd, nil
}

// disconnectSocket connects the socket to the unspecified address family,
// which dissolves an existing peer association. The socket stays bound.
func disconnectSocket(fd int) error {
	var sa unix.RawSockaddrAny
	sa.Addr.Family = unix.AF_UNSPEC
	_, _, errno := unix.Syscall(unix.SYS_CONNECT, uintptr(fd), uintptr(unsafe.Pointer(&sa)), uintptr(unix.SizeofSockaddrAny))
	if errno != 0 {
		return os.NewSyscallError("connect", errno)
	}
	return nil
}
