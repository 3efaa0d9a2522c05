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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOptionsDefault(t *testing.T) {
	var opts options
	opts.setDefault()
	assert.Nil(t, opts.predictor)
	assert.Equal(t, binary.BigEndian, opts.bufferFactory.Order())
	assert.Equal(t, OpRead, opts.interestOps)
	assert.False(t, opts.reusePort)
}

func TestOptions(t *testing.T) {
	var opts options
	opts.setDefault()
	p := NewFixedSizePredictor(512)
	f := NewBufferFactory(binary.LittleEndian)
	for _, o := range []Option{
		WithReceiveSizePredictor(p),
		WithBufferFactory(f),
		WithInterestOps(OpRead | OpWrite),
		WithReusePort(true),
	} {
		o.f(&opts)
	}
	assert.Equal(t, p, opts.predictor)
	assert.Equal(t, f, opts.bufferFactory)
	assert.Equal(t, OpRead|OpWrite, opts.interestOps)
	assert.True(t, opts.reusePort)
}

func TestWorkerOptionsDefault(t *testing.T) {
	var opts workerOptions
	opts.setDefault()
	assert.Equal(t, defaultWorkerIdleTimeout, opts.idleTimeout)

	WithIdleTimeout(time.Second).f(&opts)
	assert.Equal(t, time.Second, opts.idleTimeout)
	WithIdleTimeout(0).f(&opts)
	assert.Equal(t, time.Duration(0), opts.idleTimeout)
}

func TestOpsString(t *testing.T) {
	assert.Equal(t, "read", OpRead.String())
	assert.Equal(t, "write", OpWrite.String())
	assert.Equal(t, "read|write", (OpRead | OpWrite).String())
	assert.Equal(t, "none", Ops(0).String())
	assert.True(t, (OpRead | OpWrite).Has(OpWrite))
	assert.False(t, OpRead.Has(OpWrite))
}
