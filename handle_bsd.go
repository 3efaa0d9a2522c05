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

//go:build freebsd || dragonfly || darwin
// +build freebsd dragonfly darwin

package unet

import (
	"os"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"
)

// openSocket opens a non-blocking close-on-exec UDP socket.
func openSocket(family int) (int, error) {
	fd, err := unix.Socket(family, unix.SOCK_DGRAM, 0)
	if err != nil {
		return -1, os.NewSyscallError("socket", err)
	}
	unix.CloseOnExec(fd)
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, os.NewSyscallError("setnonblock", err)
	}
	return fd, nil
}

// disconnectSocket connects the socket to the unspecified address family,
// which dissolves an existing peer association. BSD kernels may report
// EAFNOSUPPORT or EADDRNOTAVAIL even though the association was removed.
func disconnectSocket(fd int) error {
	var sa syscall.RawSockaddrAny
	sa.Addr.Len = byte(unsafe.Sizeof(sa.Addr))
	sa.Addr.Family = syscall.AF_UNSPEC
	_, _, errno := syscall.Syscall(syscall.SYS_CONNECT, uintptr(fd), uintptr(unsafe.Pointer(&sa)), uintptr(syscall.SizeofSockaddrAny))
	switch errno {
	case 0, syscall.EAFNOSUPPORT, syscall.EADDRNOTAVAIL:
		return nil
	default:
		return os.NewSyscallError("connect", errno)
	}
}
