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
	"encoding/binary"
	"io"
)

// Buffer wraps the bytes of one received datagram together with the byte
// order the channel's buffer factory prescribes. The integer readers
// consume from the front; Bytes returns what is left.
type Buffer struct {
	b     []byte
	off   int
	order binary.ByteOrder
}

// Bytes returns the unread remainder of the datagram.
func (b *Buffer) Bytes() []byte {
	return b.b[b.off:]
}

// Len returns the number of unread bytes.
func (b *Buffer) Len() int {
	return len(b.b) - b.off
}

// Order returns the byte order used by the integer readers.
func (b *Buffer) Order() binary.ByteOrder {
	return b.order
}

// Read implements io.Reader.
func (b *Buffer) Read(p []byte) (int, error) {
	if b.Len() == 0 {
		if len(p) == 0 {
			return 0, nil
		}
		return 0, io.EOF
	}
	n := copy(p, b.b[b.off:])
	b.off += n
	return n, nil
}

// ReadByte reads and returns the next byte.
func (b *Buffer) ReadByte() (byte, error) {
	if b.Len() == 0 {
		return 0, io.EOF
	}
	c := b.b[b.off]
	b.off++
	return c, nil
}

// ReadUint16 reads the next two bytes in the buffer's byte order.
func (b *Buffer) ReadUint16() (uint16, error) {
	if err := b.check(2); err != nil {
		return 0, err
	}
	v := b.order.Uint16(b.b[b.off:])
	b.off += 2
	return v, nil
}

// ReadUint32 reads the next four bytes in the buffer's byte order.
func (b *Buffer) ReadUint32() (uint32, error) {
	if err := b.check(4); err != nil {
		return 0, err
	}
	v := b.order.Uint32(b.b[b.off:])
	b.off += 4
	return v, nil
}

// ReadUint64 reads the next eight bytes in the buffer's byte order.
func (b *Buffer) ReadUint64() (uint64, error) {
	if err := b.check(8); err != nil {
		return 0, err
	}
	v := b.order.Uint64(b.b[b.off:])
	b.off += 8
	return v, nil
}

func (b *Buffer) check(n int) error {
	if b.Len() == 0 {
		return io.EOF
	}
	if b.Len() < n {
		return io.ErrUnexpectedEOF
	}
	return nil
}

// BufferFactory wraps received datagram bytes into Buffers carrying the
// factory's byte order.
type BufferFactory interface {
	// Wrap wraps p without copying.
	Wrap(p []byte) *Buffer

	// Order returns the byte order of the buffers the factory produces.
	Order() binary.ByteOrder
}

type bufferFactory struct {
	order binary.ByteOrder
}

// NewBufferFactory creates a BufferFactory with the given byte order.
func NewBufferFactory(order binary.ByteOrder) BufferFactory {
	return &bufferFactory{order: order}
}

// Wrap implements BufferFactory.
func (f *bufferFactory) Wrap(p []byte) *Buffer {
	return &Buffer{b: p, order: f.order}
}

// Order implements BufferFactory.
func (f *bufferFactory) Order() binary.ByteOrder {
	return f.order
}
