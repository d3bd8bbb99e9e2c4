// Copyright 2025 The GridMap Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn

import (
	"errors"

	"github.com/gridmap-ml/gridmap/ops"
	"github.com/gridmap-ml/gridmap/tensor"
)

// ErrBackwardBeforeForward is returned when a layer's Backward is called
// without a preceding Forward on this layer instance.
var ErrBackwardBeforeForward = errors.New("nn: Backward called before Forward")

// MappedMaxPool pools feature grids through a fixed sample map, taking the
// maximum over each output cell's interpolated taps.
//
// The layer retains the winner-index mask and input grid size from the
// most recent Forward; Backward consumes them. A layer instance is not
// safe for concurrent Forward/Backward pairs.
type MappedMaxPool struct {
	sampleMap  *tensor.RawTensor
	kernelSize int
	interp     ops.Interpolation

	idxMask *tensor.RawTensor
	inputH  int
	inputW  int
}

// NewMappedMaxPool creates a pooling layer over sampleMap (Ho, Wo, K, 2).
func NewMappedMaxPool(sampleMap *tensor.RawTensor, kernelSize int, interp ops.Interpolation) *MappedMaxPool {
	return &MappedMaxPool{
		sampleMap:  sampleMap,
		kernelSize: kernelSize,
		interp:     interp,
	}
}

// Forward pools input (B, C, H, W) and retains the winner mask.
func (m *MappedMaxPool) Forward(input *tensor.RawTensor) (*tensor.RawTensor, error) {
	output, idxMask, err := ops.MappedMaxPool(input, m.sampleMap, m.kernelSize, m.interp)
	if err != nil {
		return nil, err
	}
	m.idxMask = idxMask
	m.inputH = input.Shape()[2]
	m.inputW = input.Shape()[3]
	return output, nil
}

// Backward routes gradOutput back through the winners recorded by the most
// recent Forward.
func (m *MappedMaxPool) Backward(gradOutput *tensor.RawTensor) (*tensor.RawTensor, error) {
	if m.idxMask == nil {
		return nil, ErrBackwardBeforeForward
	}
	return ops.MappedMaxUnpool(gradOutput, m.idxMask, m.sampleMap,
		m.inputH, m.inputW, m.kernelSize, m.interp)
}

// IdxMask returns the winner mask recorded by the most recent Forward, or
// nil before the first Forward.
func (m *MappedMaxPool) IdxMask() *tensor.RawTensor {
	return m.idxMask
}

// WeightedMappedMaxPool is MappedMaxPool with externally weighted
// interpolation points per tap: sampleMap (Ho, Wo, K, P, 2) and
// interpWeights (Ho, Wo, K, P).
type WeightedMappedMaxPool struct {
	sampleMap     *tensor.RawTensor
	interpWeights *tensor.RawTensor
	kernelSize    int
	interp        ops.Interpolation

	idxMask *tensor.RawTensor
	inputH  int
	inputW  int
}

// NewWeightedMappedMaxPool creates a weighted pooling layer.
func NewWeightedMappedMaxPool(sampleMap, interpWeights *tensor.RawTensor, kernelSize int, interp ops.Interpolation) *WeightedMappedMaxPool {
	return &WeightedMappedMaxPool{
		sampleMap:     sampleMap,
		interpWeights: interpWeights,
		kernelSize:    kernelSize,
		interp:        interp,
	}
}

// Forward pools input (B, C, H, W) and retains the winner mask.
func (m *WeightedMappedMaxPool) Forward(input *tensor.RawTensor) (*tensor.RawTensor, error) {
	output, idxMask, err := ops.WeightedMappedMaxPool(input, m.sampleMap, m.interpWeights,
		m.kernelSize, m.interp)
	if err != nil {
		return nil, err
	}
	m.idxMask = idxMask
	m.inputH = input.Shape()[2]
	m.inputW = input.Shape()[3]
	return output, nil
}

// Backward routes gradOutput back through the winners recorded by the most
// recent Forward.
func (m *WeightedMappedMaxPool) Backward(gradOutput *tensor.RawTensor) (*tensor.RawTensor, error) {
	if m.idxMask == nil {
		return nil, ErrBackwardBeforeForward
	}
	return ops.WeightedMappedMaxUnpool(gradOutput, m.idxMask, m.sampleMap, m.interpWeights,
		m.inputH, m.inputW, m.kernelSize, m.interp)
}

// IdxMask returns the winner mask recorded by the most recent Forward, or
// nil before the first Forward.
func (m *WeightedMappedMaxPool) IdxMask() *tensor.RawTensor {
	return m.idxMask
}
