//
//
// Tencent is pleased to support the open source community by making tRPC available.
//
// Copyright (C) 2023 Tencent.
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
	"time"
)

// Option configures one channel at construction time.
type Option struct {
	f func(*options)
}

type options struct {
	predictor     ReceiveSizePredictor
	bufferFactory BufferFactory
	interestOps   Ops
	reusePort     bool
}

func (o *options) setDefault() {
	o.bufferFactory = NewBufferFactory(binary.BigEndian)
	o.interestOps = OpRead
}

// WithReceiveSizePredictor sets the channel's receive-size predictor.
// Predictors carry per-channel history, do not share one instance
// between channels. The default is NewDefaultSizePredictor().
func WithReceiveSizePredictor(p ReceiveSizePredictor) Option {
	return Option{func(op *options) {
		op.predictor = p
	}}
}

// WithBufferFactory sets the factory that wraps received datagram bytes.
// The default factory produces big-endian buffers.
func WithBufferFactory(f BufferFactory) Option {
	return Option{func(op *options) {
		op.bufferFactory = f
	}}
}

// WithInterestOps sets the initial interest ops mask, OpRead in default.
// Note that OpWrite readiness is level triggered: a writable UDP socket
// fires OnWritable on every poll round until the mask drops OpWrite.
func WithInterestOps(ops Ops) Option {
	return Option{func(op *options) {
		op.interestOps = ops
	}}
}

// WithReusePort makes Listen bind with SO_REUSEPORT, so channels of
// several workers can share one address and let the kernel shard the
// incoming datagrams.
func WithReusePort(reuse bool) Option {
	return Option{func(op *options) {
		op.reusePort = reuse
	}}
}

// WorkerOption configures a worker at creation time.
type WorkerOption struct {
	f func(*workerOptions)
}

type workerOptions struct {
	idleTimeout time.Duration
}

const defaultWorkerIdleTimeout = time.Minute

func (o *workerOptions) setDefault() {
	o.idleTimeout = defaultWorkerIdleTimeout
}

// WithIdleTimeout sets the grace period after which a worker with no
// registered channels stops itself. Zero disables the idle stop, the
// worker then runs until Close. The default is one minute.
func WithIdleTimeout(d time.Duration) WorkerOption {
	return WorkerOption{func(op *workerOptions) {
		op.idleTimeout = d
	}}
}
