// Package engine defines the interface implemented by every execution
// strategy for the GridMap operators, and the registry the dispatch layer
// uses to route calls to the engine owning a device.
package engine

import (
	"sync"

	"github.com/gridmap-ml/gridmap/internal/interp"
	"github.com/gridmap-ml/gridmap/internal/tensor"
)

// Engine is one execution strategy for the mapped sampling kernels.
//
// All implementations realize the same numeric algorithm: per output
// location, gather the mapped source coordinates, resolve them through the
// interpolation policy, optionally reduce by max, and write out. Given
// identical floating-point semantics, every engine must produce identical
// results; they differ only in how the work is partitioned.
//
// Inputs are assumed validated (contiguous, consistent device, consistent
// shapes); the dispatch layer in the ops package guarantees this.
type Engine interface {
	// MappedMaxPool gathers kernelSize taps per output location from the
	// sample map (Ho, Wo, K, 2), reduces by max, and returns the pooled grid
	// (B, C, Ho, Wo) plus the Int64 winner-ordinal mask of the same shape.
	MappedMaxPool(input, sampleMap *tensor.RawTensor, kernelSize int,
		ip interp.Interpolation) (*tensor.RawTensor, *tensor.RawTensor, error)

	// MappedMaxUnpool routes gradOutput back through the winning taps
	// recorded in idxMask, producing the gradient w.r.t. an (inputH, inputW)
	// feature grid.
	MappedMaxUnpool(gradOutput, idxMask, sampleMap *tensor.RawTensor,
		inputH, inputW, kernelSize int, ip interp.Interpolation) (*tensor.RawTensor, error)

	// WeightedMappedMaxPool is MappedMaxPool with externally supplied
	// per-point weights: sample map (Ho, Wo, K, P, 2), weights (Ho, Wo, K, P).
	WeightedMappedMaxPool(input, sampleMap, interpWeights *tensor.RawTensor,
		kernelSize int, ip interp.Interpolation) (*tensor.RawTensor, *tensor.RawTensor, error)

	// WeightedMappedMaxUnpool is the adjoint of WeightedMappedMaxPool.
	WeightedMappedMaxUnpool(gradOutput, idxMask, sampleMap, interpWeights *tensor.RawTensor,
		inputH, inputW, kernelSize int, ip interp.Interpolation) (*tensor.RawTensor, error)

	// ResampleToMap gathers one interpolated sample per output location from
	// the sample map (Ho, Wo, 2). No reduction.
	ResampleToMap(input, sampleMap *tensor.RawTensor, outH, outW int,
		ip interp.Interpolation) (*tensor.RawTensor, error)

	// ResampleFromMap is the exact linear adjoint of ResampleToMap:
	// scatter-add of gradOutput into an (inputH, inputW) grid.
	ResampleFromMap(gradOutput, sampleMap *tensor.RawTensor, inputH, inputW int,
		ip interp.Interpolation) (*tensor.RawTensor, error)

	// WeightedResampleToMap blends P externally weighted interpolation points
	// per output location: sample map (Ho, Wo, P, 2), weights (Ho, Wo, P).
	WeightedResampleToMap(input, sampleMap, interpWeights *tensor.RawTensor,
		outH, outW int, ip interp.Interpolation) (*tensor.RawTensor, error)

	// WeightedResampleFromMap is the adjoint of WeightedResampleToMap.
	WeightedResampleFromMap(gradOutput, sampleMap, interpWeights *tensor.RawTensor,
		inputH, inputW int, ip interp.Interpolation) (*tensor.RawTensor, error)

	// Name returns the engine name.
	Name() string

	// Device returns the device this engine executes on.
	Device() tensor.Device
}

var (
	mu      sync.RWMutex
	engines = make(map[tensor.Device]Engine)
)

// Register installs the engine for its device, replacing any previous one.
func Register(e Engine) {
	mu.Lock()
	defer mu.Unlock()
	engines[e.Device()] = e
}

// For returns the engine registered for the device.
func For(d tensor.Device) (Engine, bool) {
	mu.RLock()
	defer mu.RUnlock()
	e, ok := engines[d]
	return e, ok
}
