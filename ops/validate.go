// Copyright 2025 The GridMap Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package ops

import (
	"fmt"

	"github.com/gridmap-ml/gridmap/internal/interp"
	"github.com/gridmap-ml/gridmap/internal/tensor"
)

// named pairs a tensor with its operand name for error reporting.
type named struct {
	name string
	t    *tensor.RawTensor
}

// checkCommon validates the preconditions shared by every operation: a
// known policy, contiguity of every operand, and a single common device.
func checkCommon(op string, ip interp.Interpolation, operands ...named) error {
	if !ip.Valid() {
		return fmt.Errorf("%s: invalid interpolation policy %d", op, int(ip))
	}
	for _, o := range operands {
		if o.t == nil {
			return fmt.Errorf("%s: %s is nil", op, o.name)
		}
		if !o.t.IsContiguous() {
			return fmt.Errorf("%s: %s: %w", op, o.name, ErrNotContiguous)
		}
	}
	device := operands[0].t.Device()
	for _, o := range operands[1:] {
		if o.t.Device() != device {
			return fmt.Errorf("%s: %s is on %s, %s is on %s: %w",
				op, operands[0].name, device, o.name, o.t.Device(), ErrDeviceMismatch)
		}
	}
	return nil
}

// checkGridDTypes validates that the floating operands all share one float
// data type. The first operand anchors the expectation.
func checkGridDTypes(op string, operands ...named) error {
	dt := operands[0].t.DType()
	if !dt.IsFloat() {
		return fmt.Errorf("%s: %s has dtype %s, want Float32 or Float64: %w",
			op, operands[0].name, dt, ErrDType)
	}
	for _, o := range operands[1:] {
		if o.t.DType() != dt {
			return fmt.Errorf("%s: %s has dtype %s, %s has dtype %s: %w",
				op, operands[0].name, dt, o.name, o.t.DType(), ErrDType)
		}
	}
	return nil
}

// checkGrid4D validates a (B, C, H, W) feature grid.
func checkGrid4D(op, name string, t *tensor.RawTensor) error {
	if len(t.Shape()) != 4 {
		return fmt.Errorf("%s: %s must be 4D (batch, channels, height, width), got %v: %w",
			op, name, t.Shape(), ErrShapeMismatch)
	}
	return nil
}

// checkMapShape validates a sample map against the dimension layout the
// operation expects. want holds the trailing dimensions after (Ho, Wo);
// a -1 entry is read from the map rather than enforced.
func checkMapShape(op, name string, t *tensor.RawTensor, want ...int) error {
	s := t.Shape()
	if len(s) != 2+len(want) {
		return fmt.Errorf("%s: %s must be %dD, got %v: %w",
			op, name, 2+len(want), s, ErrShapeMismatch)
	}
	for i, d := range want {
		if d >= 0 && s[2+i] != d {
			return fmt.Errorf("%s: %s dimension %d is %d, want %d: %w",
				op, name, 2+i, s[2+i], d, ErrShapeMismatch)
		}
	}
	return nil
}

// checkMask validates the winner-index mask recorded by a pooling forward.
func checkMask(op string, mask, gradOutput *tensor.RawTensor) error {
	if mask.DType() != tensor.Int64 {
		return fmt.Errorf("%s: idxMask has dtype %s, want Int64: %w",
			op, mask.DType(), ErrDType)
	}
	if !mask.Shape().Equal(gradOutput.Shape()) {
		return fmt.Errorf("%s: idxMask shape %v does not match gradOutput shape %v: %w",
			op, mask.Shape(), gradOutput.Shape(), ErrShapeMismatch)
	}
	return nil
}

// checkWeights validates that the weight tensor mirrors the sample map's
// leading dimensions (the map additionally carries a trailing coordinate
// pair).
func checkWeights(op string, weights, sampleMap *tensor.RawTensor) error {
	ws, ms := weights.Shape(), sampleMap.Shape()
	if len(ws) != len(ms)-1 {
		return fmt.Errorf("%s: interpWeights must be %dD, got %v: %w",
			op, len(ms)-1, ws, ErrShapeMismatch)
	}
	for i, d := range ws {
		if ms[i] != d {
			return fmt.Errorf("%s: interpWeights shape %v does not match sample map %v: %w",
				op, ws, ms, ErrShapeMismatch)
		}
	}
	return nil
}

// checkOutputGrid validates that the map's leading (Ho, Wo) agree with the
// trailing dimensions of a 4D output-side grid.
func checkOutputGrid(op string, grid, sampleMap *tensor.RawTensor) error {
	gs, ms := grid.Shape(), sampleMap.Shape()
	if gs[2] != ms[0] || gs[3] != ms[1] {
		return fmt.Errorf("%s: output grid %v does not match sample map rows %dx%d: %w",
			op, gs, ms[0], ms[1], ErrShapeMismatch)
	}
	return nil
}

func checkKernelSize(op string, kernelSize, mapK int) error {
	if kernelSize < 1 {
		return fmt.Errorf("%s: kernel size must be >= 1, got %d", op, kernelSize)
	}
	if mapK != kernelSize {
		return fmt.Errorf("%s: sample map carries %d taps, kernel size is %d: %w",
			op, mapK, kernelSize, ErrShapeMismatch)
	}
	return nil
}

func checkTargetSize(op string, h, w int) error {
	if h < 1 || w < 1 {
		return fmt.Errorf("%s: target grid %dx%d must be positive", op, h, w)
	}
	return nil
}
