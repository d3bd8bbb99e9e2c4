// Copyright 2025 The GridMap Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package ops exposes the GridMap sampling and pooling operators.
//
// Every operation is pure: inputs are never mutated and results are fresh
// tensors. Calls are validated up front (contiguity, device agreement,
// shape and dtype consistency) and then routed to the engine registered for
// the operands' device. The CPU engine is always available; call
// EnableWebGPU to register the accelerator engine.
//
// A sample map assigns each output location one or more fractional (x, y)
// coordinates into the input grid. Maps are shared across the batch and
// channel dimensions and are resolved through an interpolation policy; see
// the Interpolation constants.
package ops

import (
	"fmt"

	"github.com/gridmap-ml/gridmap/internal/backend/cpu"
	"github.com/gridmap-ml/gridmap/internal/backend/webgpu"
	"github.com/gridmap-ml/gridmap/internal/engine"
	"github.com/gridmap-ml/gridmap/internal/interp"
	"github.com/gridmap-ml/gridmap/internal/tensor"
)

// Interpolation selects how fractional map coordinates are resolved
// against the input grid.
type Interpolation = interp.Interpolation

// Interpolation policies. BiSpherical behaves like Bilinear with the x
// axis wrapped modulo the grid width, for equirectangular grids whose left
// and right edges meet.
const (
	Nearest     = interp.Nearest
	Bilinear    = interp.Bilinear
	BiSpherical = interp.BiSpherical
)

func init() {
	engine.Register(cpu.New())
}

// EnableWebGPU initializes the WebGPU engine and registers it for
// tensor.WebGPU operands. Safe to call more than once; each call replaces
// the previous engine.
func EnableWebGPU() error {
	e, err := webgpu.New()
	if err != nil {
		return err
	}
	engine.Register(e)
	return nil
}

func engineFor(op string, device tensor.Device) (engine.Engine, error) {
	e, ok := engine.For(device)
	if !ok {
		return nil, fmt.Errorf("%s: no engine registered for device %s: %w",
			op, device, ErrDeviceMismatch)
	}
	return e, nil
}

// MappedMaxPool pools input (B, C, H, W) through sampleMap
// (Ho, Wo, K, 2): each output cell takes the maximum over its K
// interpolated taps. Returns the pooled grid (B, C, Ho, Wo) and an Int64
// mask of the same shape recording each cell's winning tap ordinal, as
// consumed by MappedMaxUnpool. Ties break to the earliest ordinal; a cell
// whose taps all fall outside the grid yields 0 with winner 0.
func MappedMaxPool(input, sampleMap *tensor.RawTensor, kernelSize int, ip Interpolation) (*tensor.RawTensor, *tensor.RawTensor, error) {
	const op = "MappedMaxPool"
	err := checkCommon(op, ip,
		named{"input", input}, named{"sampleMap", sampleMap})
	if err != nil {
		return nil, nil, err
	}
	if err := checkGrid4D(op, "input", input); err != nil {
		return nil, nil, err
	}
	if err := checkMapShape(op, "sampleMap", sampleMap, -1, 2); err != nil {
		return nil, nil, err
	}
	if err := checkKernelSize(op, kernelSize, sampleMap.Shape()[2]); err != nil {
		return nil, nil, err
	}
	if err := checkGridDTypes(op, named{"input", input}, named{"sampleMap", sampleMap}); err != nil {
		return nil, nil, err
	}
	e, err := engineFor(op, input.Device())
	if err != nil {
		return nil, nil, err
	}
	return e.MappedMaxPool(input, sampleMap, kernelSize, ip)
}

// MappedMaxUnpool routes gradOutput (B, C, Ho, Wo) back through the
// winning taps recorded in idxMask, producing the gradient with respect to
// an inputH x inputW feature grid. Contributions from cells sharing a
// source pixel accumulate.
func MappedMaxUnpool(gradOutput, idxMask, sampleMap *tensor.RawTensor, inputH, inputW, kernelSize int, ip Interpolation) (*tensor.RawTensor, error) {
	const op = "MappedMaxUnpool"
	err := checkCommon(op, ip,
		named{"gradOutput", gradOutput}, named{"idxMask", idxMask}, named{"sampleMap", sampleMap})
	if err != nil {
		return nil, err
	}
	if err := checkGrid4D(op, "gradOutput", gradOutput); err != nil {
		return nil, err
	}
	if err := checkMapShape(op, "sampleMap", sampleMap, -1, 2); err != nil {
		return nil, err
	}
	if err := checkKernelSize(op, kernelSize, sampleMap.Shape()[2]); err != nil {
		return nil, err
	}
	if err := checkTargetSize(op, inputH, inputW); err != nil {
		return nil, err
	}
	if err := checkOutputGrid(op, gradOutput, sampleMap); err != nil {
		return nil, err
	}
	if err := checkMask(op, idxMask, gradOutput); err != nil {
		return nil, err
	}
	if err := checkGridDTypes(op, named{"gradOutput", gradOutput}, named{"sampleMap", sampleMap}); err != nil {
		return nil, err
	}
	e, err := engineFor(op, gradOutput.Device())
	if err != nil {
		return nil, err
	}
	return e.MappedMaxUnpool(gradOutput, idxMask, sampleMap, inputH, inputW, kernelSize, ip)
}

// WeightedMappedMaxPool is MappedMaxPool with externally weighted
// interpolation points: sampleMap (Ho, Wo, K, P, 2) carries P coordinates
// per tap and interpWeights (Ho, Wo, K, P) their weights. Each tap's value
// is the weight-scaled sum of its P interpolated points.
func WeightedMappedMaxPool(input, sampleMap, interpWeights *tensor.RawTensor, kernelSize int, ip Interpolation) (*tensor.RawTensor, *tensor.RawTensor, error) {
	const op = "WeightedMappedMaxPool"
	err := checkCommon(op, ip,
		named{"input", input}, named{"sampleMap", sampleMap}, named{"interpWeights", interpWeights})
	if err != nil {
		return nil, nil, err
	}
	if err := checkGrid4D(op, "input", input); err != nil {
		return nil, nil, err
	}
	if err := checkMapShape(op, "sampleMap", sampleMap, -1, -1, 2); err != nil {
		return nil, nil, err
	}
	if err := checkKernelSize(op, kernelSize, sampleMap.Shape()[2]); err != nil {
		return nil, nil, err
	}
	if err := checkWeights(op, interpWeights, sampleMap); err != nil {
		return nil, nil, err
	}
	if err := checkGridDTypes(op, named{"input", input}, named{"sampleMap", sampleMap},
		named{"interpWeights", interpWeights}); err != nil {
		return nil, nil, err
	}
	e, err := engineFor(op, input.Device())
	if err != nil {
		return nil, nil, err
	}
	return e.WeightedMappedMaxPool(input, sampleMap, interpWeights, kernelSize, ip)
}

// WeightedMappedMaxUnpool is the adjoint of WeightedMappedMaxPool:
// gradient flows through every interpolation point of each cell's winning
// tap, scaled by the external weight times the policy weight.
func WeightedMappedMaxUnpool(gradOutput, idxMask, sampleMap, interpWeights *tensor.RawTensor, inputH, inputW, kernelSize int, ip Interpolation) (*tensor.RawTensor, error) {
	const op = "WeightedMappedMaxUnpool"
	err := checkCommon(op, ip,
		named{"gradOutput", gradOutput}, named{"idxMask", idxMask},
		named{"sampleMap", sampleMap}, named{"interpWeights", interpWeights})
	if err != nil {
		return nil, err
	}
	if err := checkGrid4D(op, "gradOutput", gradOutput); err != nil {
		return nil, err
	}
	if err := checkMapShape(op, "sampleMap", sampleMap, -1, -1, 2); err != nil {
		return nil, err
	}
	if err := checkKernelSize(op, kernelSize, sampleMap.Shape()[2]); err != nil {
		return nil, err
	}
	if err := checkTargetSize(op, inputH, inputW); err != nil {
		return nil, err
	}
	if err := checkOutputGrid(op, gradOutput, sampleMap); err != nil {
		return nil, err
	}
	if err := checkMask(op, idxMask, gradOutput); err != nil {
		return nil, err
	}
	if err := checkWeights(op, interpWeights, sampleMap); err != nil {
		return nil, err
	}
	if err := checkGridDTypes(op, named{"gradOutput", gradOutput}, named{"sampleMap", sampleMap},
		named{"interpWeights", interpWeights}); err != nil {
		return nil, err
	}
	e, err := engineFor(op, gradOutput.Device())
	if err != nil {
		return nil, err
	}
	return e.WeightedMappedMaxUnpool(gradOutput, idxMask, sampleMap, interpWeights, inputH, inputW, kernelSize, ip)
}

// ResampleToMap gathers one interpolated sample per output location:
// input (B, C, H, W) through sampleMap (outH, outW, 2) yields
// (B, C, outH, outW). Samples falling outside the grid contribute 0
// without renormalizing surviving quad weights.
func ResampleToMap(input, sampleMap *tensor.RawTensor, outH, outW int, ip Interpolation) (*tensor.RawTensor, error) {
	const op = "ResampleToMap"
	err := checkCommon(op, ip,
		named{"input", input}, named{"sampleMap", sampleMap})
	if err != nil {
		return nil, err
	}
	if err := checkGrid4D(op, "input", input); err != nil {
		return nil, err
	}
	if err := checkMapShape(op, "sampleMap", sampleMap, 2); err != nil {
		return nil, err
	}
	if err := checkTargetSize(op, outH, outW); err != nil {
		return nil, err
	}
	if ms := sampleMap.Shape(); ms[0] != outH || ms[1] != outW {
		return nil, fmt.Errorf("%s: sample map rows %dx%d do not match output %dx%d: %w",
			op, ms[0], ms[1], outH, outW, ErrShapeMismatch)
	}
	if err := checkGridDTypes(op, named{"input", input}, named{"sampleMap", sampleMap}); err != nil {
		return nil, err
	}
	e, err := engineFor(op, input.Device())
	if err != nil {
		return nil, err
	}
	return e.ResampleToMap(input, sampleMap, outH, outW, ip)
}

// ResampleFromMap is the exact linear adjoint of ResampleToMap: gradOutput
// (B, C, Ho, Wo) is scattered back through sampleMap (Ho, Wo, 2) into an
// inputH x inputW grid. For fixed map and policy,
// <ResampleToMap(x), y> == <x, ResampleFromMap(y)>.
func ResampleFromMap(gradOutput, sampleMap *tensor.RawTensor, inputH, inputW int, ip Interpolation) (*tensor.RawTensor, error) {
	const op = "ResampleFromMap"
	err := checkCommon(op, ip,
		named{"gradOutput", gradOutput}, named{"sampleMap", sampleMap})
	if err != nil {
		return nil, err
	}
	if err := checkGrid4D(op, "gradOutput", gradOutput); err != nil {
		return nil, err
	}
	if err := checkMapShape(op, "sampleMap", sampleMap, 2); err != nil {
		return nil, err
	}
	if err := checkTargetSize(op, inputH, inputW); err != nil {
		return nil, err
	}
	if err := checkOutputGrid(op, gradOutput, sampleMap); err != nil {
		return nil, err
	}
	if err := checkGridDTypes(op, named{"gradOutput", gradOutput}, named{"sampleMap", sampleMap}); err != nil {
		return nil, err
	}
	e, err := engineFor(op, gradOutput.Device())
	if err != nil {
		return nil, err
	}
	return e.ResampleFromMap(gradOutput, sampleMap, inputH, inputW, ip)
}

// WeightedResampleToMap blends P externally weighted interpolation points
// per output location: sampleMap (outH, outW, P, 2), interpWeights
// (outH, outW, P).
func WeightedResampleToMap(input, sampleMap, interpWeights *tensor.RawTensor, outH, outW int, ip Interpolation) (*tensor.RawTensor, error) {
	const op = "WeightedResampleToMap"
	err := checkCommon(op, ip,
		named{"input", input}, named{"sampleMap", sampleMap}, named{"interpWeights", interpWeights})
	if err != nil {
		return nil, err
	}
	if err := checkGrid4D(op, "input", input); err != nil {
		return nil, err
	}
	if err := checkMapShape(op, "sampleMap", sampleMap, -1, 2); err != nil {
		return nil, err
	}
	if err := checkTargetSize(op, outH, outW); err != nil {
		return nil, err
	}
	if ms := sampleMap.Shape(); ms[0] != outH || ms[1] != outW {
		return nil, fmt.Errorf("%s: sample map rows %dx%d do not match output %dx%d: %w",
			op, ms[0], ms[1], outH, outW, ErrShapeMismatch)
	}
	if err := checkWeights(op, interpWeights, sampleMap); err != nil {
		return nil, err
	}
	if err := checkGridDTypes(op, named{"input", input}, named{"sampleMap", sampleMap},
		named{"interpWeights", interpWeights}); err != nil {
		return nil, err
	}
	e, err := engineFor(op, input.Device())
	if err != nil {
		return nil, err
	}
	return e.WeightedResampleToMap(input, sampleMap, interpWeights, outH, outW, ip)
}

// WeightedResampleFromMap is the adjoint of WeightedResampleToMap.
func WeightedResampleFromMap(gradOutput, sampleMap, interpWeights *tensor.RawTensor, inputH, inputW int, ip Interpolation) (*tensor.RawTensor, error) {
	const op = "WeightedResampleFromMap"
	err := checkCommon(op, ip,
		named{"gradOutput", gradOutput}, named{"sampleMap", sampleMap}, named{"interpWeights", interpWeights})
	if err != nil {
		return nil, err
	}
	if err := checkGrid4D(op, "gradOutput", gradOutput); err != nil {
		return nil, err
	}
	if err := checkMapShape(op, "sampleMap", sampleMap, -1, 2); err != nil {
		return nil, err
	}
	if err := checkTargetSize(op, inputH, inputW); err != nil {
		return nil, err
	}
	if err := checkOutputGrid(op, gradOutput, sampleMap); err != nil {
		return nil, err
	}
	if err := checkWeights(op, interpWeights, sampleMap); err != nil {
		return nil, err
	}
	if err := checkGridDTypes(op, named{"gradOutput", gradOutput}, named{"sampleMap", sampleMap},
		named{"interpWeights", interpWeights}); err != nil {
		return nil, err
	}
	e, err := engineFor(op, gradOutput.Device())
	if err != nil {
		return nil, err
	}
	return e.WeightedResampleFromMap(gradOutput, sampleMap, interpWeights, inputH, inputW, ip)
}
