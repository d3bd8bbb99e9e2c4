// Package cpu implements the CPU engine for the GridMap operators.
//
// Gather-type kernels (pooling forward, resample forward) write each output
// cell exactly once and parallelize freely over (batch, channel) planes.
// Scatter-type kernels (unpool, unresample) accumulate into input pixels; a
// goroutine owns one full (batch, channel) gradient plane, so accumulation
// within a plane is serialized and no atomics are needed.
package cpu

import (
	"fmt"

	"github.com/gridmap-ml/gridmap/internal/parallel"
	"github.com/gridmap-ml/gridmap/internal/tensor"
)

// Engine executes the mapped sampling kernels on the host CPU.
type Engine struct {
	device tensor.Device
	cfg    parallel.Config
}

// New creates a CPU engine with default parallelism.
func New() *Engine {
	return &Engine{
		device: tensor.CPU,
		cfg:    parallel.DefaultConfig(),
	}
}

// NewWithConfig creates a CPU engine with explicit parallelism settings.
// Tests use this to compare serial and parallel execution.
func NewWithConfig(cfg parallel.Config) *Engine {
	return &Engine{
		device: tensor.CPU,
		cfg:    cfg,
	}
}

// Name returns the engine name.
func (e *Engine) Name() string {
	return "CPU"
}

// Device returns the compute device.
func (e *Engine) Device() tensor.Device {
	return e.device
}

// gridDims extracts (B, C, H, W) from a 4D feature grid.
func gridDims(t *tensor.RawTensor) (b, c, h, w int) {
	shape := t.Shape()
	if len(shape) != 4 {
		panic(fmt.Sprintf("cpu: expected 4D grid [B,C,H,W], got %dD", len(shape)))
	}
	return shape[0], shape[1], shape[2], shape[3]
}
