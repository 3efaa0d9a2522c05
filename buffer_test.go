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

package unet_test

import (
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"trpc.group/trpc-go/unet"
)

func TestBufferFactoryWrapNoCopy(t *testing.T) {
	f := unet.NewBufferFactory(binary.BigEndian)
	assert.Equal(t, binary.BigEndian, f.Order())
	raw := []byte{1, 2, 3}
	b := f.Wrap(raw)
	raw[0] = 9
	assert.Equal(t, []byte{9, 2, 3}, b.Bytes())
	assert.Equal(t, 3, b.Len())
	assert.Equal(t, binary.BigEndian, b.Order())
}

func TestBufferIntegerReads(t *testing.T) {
	raw := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f}
	t.Run("big endian", func(t *testing.T) {
		b := unet.NewBufferFactory(binary.BigEndian).Wrap(raw)
		c, err := b.ReadByte()
		require.Nil(t, err)
		assert.Equal(t, byte(0x01), c)
		v16, err := b.ReadUint16()
		require.Nil(t, err)
		assert.Equal(t, uint16(0x0203), v16)
		v32, err := b.ReadUint32()
		require.Nil(t, err)
		assert.Equal(t, uint32(0x04050607), v32)
		v64, err := b.ReadUint64()
		require.Nil(t, err)
		assert.Equal(t, uint64(0x08090a0b0c0d0e0f), v64)
		assert.Equal(t, 0, b.Len())
	})
	t.Run("little endian", func(t *testing.T) {
		b := unet.NewBufferFactory(binary.LittleEndian).Wrap(raw)
		v16, err := b.ReadUint16()
		require.Nil(t, err)
		assert.Equal(t, uint16(0x0201), v16)
	})
}

func TestBufferShortReads(t *testing.T) {
	b := unet.NewBufferFactory(binary.BigEndian).Wrap([]byte{1})
	_, err := b.ReadUint16()
	assert.Equal(t, io.ErrUnexpectedEOF, err)
	_, err = b.ReadByte()
	require.Nil(t, err)
	_, err = b.ReadByte()
	assert.Equal(t, io.EOF, err)
	_, err = b.ReadUint32()
	assert.Equal(t, io.EOF, err)
}

func TestBufferRead(t *testing.T) {
	b := unet.NewBufferFactory(binary.BigEndian).Wrap([]byte("hello"))
	p := make([]byte, 3)
	n, err := b.Read(p)
	require.Nil(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, "hel", string(p))
	assert.Equal(t, "lo", string(b.Bytes()))
	n, err = b.Read(p)
	require.Nil(t, err)
	assert.Equal(t, 2, n)
	_, err = b.Read(p)
	assert.Equal(t, io.EOF, err)
}
