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
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestUDPFamily(t *testing.T) {
	tests := []struct {
		name    string
		network string
		laddr   *net.UDPAddr
		raddr   *net.UDPAddr
		want    int
		wantErr bool
	}{
		{name: "udp4", network: "udp4", want: unix.AF_INET},
		{name: "udp6", network: "udp6", want: unix.AF_INET6},
		{name: "udp default", network: "udp", want: unix.AF_INET},
		{name: "udp with v6 local", network: "udp", laddr: &net.UDPAddr{IP: net.ParseIP("::1")}, want: unix.AF_INET6},
		{name: "udp with v6 remote", network: "udp", raddr: &net.UDPAddr{IP: net.ParseIP("fe80::1")}, want: unix.AF_INET6},
		{name: "udp with v4 local", network: "udp", laddr: &net.UDPAddr{IP: net.ParseIP("127.0.0.1")}, want: unix.AF_INET},
		{name: "tcp", network: "tcp", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := udpFamily(tt.network, tt.laddr, tt.raddr)
			if tt.wantErr {
				assert.NotNil(t, err)
				return
			}
			require.Nil(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOpenSocket(t *testing.T) {
	fd, err := openSocket(unix.AF_INET)
	require.Nil(t, err)
	defer unix.Close(fd)
	assert.Greater(t, fd, 0)
	// The socket must already be non-blocking: receive on an unbound
	// socket returns EAGAIN instead of stalling.
	_, _, err = unix.Recvfrom(fd, make([]byte, 1), 0)
	assert.Equal(t, unix.EAGAIN, err)
}

func TestSockFDWriteToValidation(t *testing.T) {
	nfd := &sockFD{fd: -1, laddr: &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 1234}}
	n, err := nfd.writeTo(nil, &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 4321})
	require.Nil(t, err)
	assert.Equal(t, 0, n)

	_, err = nfd.writeTo([]byte("x"), nil)
	assert.NotNil(t, err)

	_, err = nfd.writeTo(make([]byte, defaultUDPBufferSize+1), &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 4321})
	assert.NotNil(t, err)
}
