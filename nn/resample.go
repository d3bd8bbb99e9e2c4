// Copyright 2025 The GridMap Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn

import (
	"github.com/gridmap-ml/gridmap/ops"
	"github.com/gridmap-ml/gridmap/tensor"
)

// Resample gathers feature grids through a fixed sample map. Backward is
// the exact linear adjoint of Forward.
type Resample struct {
	sampleMap *tensor.RawTensor
	interp    ops.Interpolation

	inputH int
	inputW int
}

// NewResample creates a resampling layer over sampleMap (Ho, Wo, 2).
func NewResample(sampleMap *tensor.RawTensor, interp ops.Interpolation) *Resample {
	return &Resample{sampleMap: sampleMap, interp: interp}
}

// Forward resamples input (B, C, H, W) onto the map's grid.
func (r *Resample) Forward(input *tensor.RawTensor) (*tensor.RawTensor, error) {
	ms := r.sampleMap.Shape()
	output, err := ops.ResampleToMap(input, r.sampleMap, ms[0], ms[1], r.interp)
	if err != nil {
		return nil, err
	}
	r.inputH = input.Shape()[2]
	r.inputW = input.Shape()[3]
	return output, nil
}

// Backward scatters gradOutput back onto the input grid of the most recent
// Forward.
func (r *Resample) Backward(gradOutput *tensor.RawTensor) (*tensor.RawTensor, error) {
	if r.inputH == 0 {
		return nil, ErrBackwardBeforeForward
	}
	return ops.ResampleFromMap(gradOutput, r.sampleMap, r.inputH, r.inputW, r.interp)
}

// WeightedResample blends externally weighted interpolation points per
// output cell: sampleMap (Ho, Wo, P, 2) and interpWeights (Ho, Wo, P).
type WeightedResample struct {
	sampleMap     *tensor.RawTensor
	interpWeights *tensor.RawTensor
	interp        ops.Interpolation

	inputH int
	inputW int
}

// NewWeightedResample creates a weighted resampling layer.
func NewWeightedResample(sampleMap, interpWeights *tensor.RawTensor, interp ops.Interpolation) *WeightedResample {
	return &WeightedResample{
		sampleMap:     sampleMap,
		interpWeights: interpWeights,
		interp:        interp,
	}
}

// Forward resamples input (B, C, H, W) onto the map's grid.
func (r *WeightedResample) Forward(input *tensor.RawTensor) (*tensor.RawTensor, error) {
	ms := r.sampleMap.Shape()
	output, err := ops.WeightedResampleToMap(input, r.sampleMap, r.interpWeights,
		ms[0], ms[1], r.interp)
	if err != nil {
		return nil, err
	}
	r.inputH = input.Shape()[2]
	r.inputW = input.Shape()[3]
	return output, nil
}

// Backward scatters gradOutput back onto the input grid of the most recent
// Forward.
func (r *WeightedResample) Backward(gradOutput *tensor.RawTensor) (*tensor.RawTensor, error) {
	if r.inputH == 0 {
		return nil, ErrBackwardBeforeForward
	}
	return ops.WeightedResampleFromMap(gradOutput, r.sampleMap, r.interpWeights,
		r.inputH, r.inputW, r.interp)
}
