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
	"sort"
)

// ReceiveSizePredictor predicts the buffer size for the next receive on a
// channel. NextSize is always positive. Record feeds back the actual number
// of bytes a receive produced; it is only called with positive values.
//
// Predictors are confined to the worker loop goroutine and need no locking.
type ReceiveSizePredictor interface {
	// NextSize returns the buffer size to allocate for the next receive.
	NextSize() int

	// Record reports the actual size of the last received datagram.
	Record(actual int)
}

const (
	defaultMinReceiveSize     = 64
	defaultInitialReceiveSize = 1024
	defaultMaxReceiveSize     = 65536

	indexIncrement = 4
	indexDecrement = 1
)

// sizeTable holds buffer sizes in increasing order: multiples of 16 up
// to 496, then doublings of 512.
var sizeTable = buildSizeTable()

func buildSizeTable() []int {
	var table []int
	for i := 16; i < 512; i += 16 {
		table = append(table, i)
	}
	for i := 512; i > 0 && i <= 1<<30; i <<= 1 {
		table = append(table, i)
	}
	return table
}

// sizeTableIndex returns the index of the smallest table entry that is
// not less than size.
func sizeTableIndex(size int) int {
	return sort.SearchInts(sizeTable, size)
}

type fixedSizePredictor struct {
	size int
}

// NewFixedSizePredictor returns a predictor that always predicts the same
// buffer size. It panics if size is not positive.
func NewFixedSizePredictor(size int) ReceiveSizePredictor {
	if size <= 0 {
		panic(fmt.Sprintf("fixed predictor size must be positive: %d", size))
	}
	return &fixedSizePredictor{size: size}
}

// NextSize returns the fixed buffer size.
func (p *fixedSizePredictor) NextSize() int {
	return p.size
}

// Record is a no-op for the fixed predictor.
func (p *fixedSizePredictor) Record(int) {}

// adaptiveSizePredictor ramps the predicted size up quickly when the
// incoming datagrams fill the buffer and shrinks it slowly, after two
// consecutive small receives, when they do not.
type adaptiveSizePredictor struct {
	minIndex    int
	maxIndex    int
	index       int
	nextSize    int
	decreaseNow bool
}

// NewAdaptiveSizePredictor returns a predictor that adapts the predicted
// size to the sizes actually received, within [min, max] starting at
// initial. It panics if the bounds are not 0 < min <= initial <= max.
func NewAdaptiveSizePredictor(min, initial, max int) ReceiveSizePredictor {
	if min <= 0 || initial < min || max < initial {
		panic(fmt.Sprintf("adaptive predictor bounds are invalid: min %d, initial %d, max %d", min, initial, max))
	}
	minIndex := sizeTableIndex(min)
	maxIndex := sizeTableIndex(max)
	if maxIndex == len(sizeTable) || sizeTable[maxIndex] > max {
		maxIndex--
	}
	p := &adaptiveSizePredictor{
		minIndex: minIndex,
		maxIndex: maxIndex,
	}
	p.index = sizeTableIndex(initial)
	if p.index > maxIndex {
		p.index = maxIndex
	}
	if p.index < minIndex {
		p.index = minIndex
	}
	p.nextSize = sizeTable[p.index]
	return p
}

// NewDefaultSizePredictor returns an adaptive predictor with the default
// bounds 64 / 1024 / 65536.
func NewDefaultSizePredictor() ReceiveSizePredictor {
	return NewAdaptiveSizePredictor(defaultMinReceiveSize, defaultInitialReceiveSize, defaultMaxReceiveSize)
}

// NextSize returns the current predicted buffer size.
func (p *adaptiveSizePredictor) NextSize() int {
	return p.nextSize
}

// Record moves the prediction toward actual. Growth jumps several table
// entries at once, shrinking takes one entry and only after two
// consecutive receives below the next smaller entry.
func (p *adaptiveSizePredictor) Record(actual int) {
	shrinkIdx := p.index - indexDecrement
	if shrinkIdx < 0 {
		shrinkIdx = 0
	}
	if actual <= sizeTable[shrinkIdx] {
		if p.decreaseNow {
			p.index = p.index - indexDecrement
			if p.index < p.minIndex {
				p.index = p.minIndex
			}
			p.nextSize = sizeTable[p.index]
			p.decreaseNow = false
		} else {
			p.decreaseNow = true
		}
		return
	}
	if actual >= p.nextSize {
		p.index = p.index + indexIncrement
		if p.index > p.maxIndex {
			p.index = p.maxIndex
		}
		p.nextSize = sizeTable[p.index]
		p.decreaseNow = false
	}
}
