// Copyright 2025 The GridMap Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor exposes the dense-array types consumed by the GridMap
// operators.
//
// A RawTensor is a contiguous row-major buffer plus shape, dtype, and
// device metadata. Feature grids are 4D (batch, channels, height, width);
// sample maps and weights carry their own layouts, documented on the ops
// package.
//
//	input, _ := tensor.FromSlice(tensor.Shape{1, 3, 64, 64}, data, tensor.CPU)
//	pixels := input.AsFloat32()
package tensor

import (
	"github.com/gridmap-ml/gridmap/internal/tensor"
)

// RawTensor is the low-level tensor representation.
//
// RawTensor provides shape and type information via Shape(), DType(),
// Device(), and type-safe data access via AsFloat32(), AsFloat64(),
// AsInt64().
type RawTensor = tensor.RawTensor

// Shape represents tensor dimensions, outermost first.
type Shape = tensor.Shape

// DataType identifies a tensor element type.
type DataType = tensor.DataType

// Supported element types. Float32 and Float64 carry feature grids, sample
// maps, and weights; Int64 carries pooling winner masks.
const (
	Float32 = tensor.Float32
	Float64 = tensor.Float64
	Int64   = tensor.Int64
)

// Device identifies where tensor operations execute.
type Device = tensor.Device

// Supported devices.
const (
	CPU    = tensor.CPU
	WebGPU = tensor.WebGPU
)

// DType constrains the element types accepted by the generic constructors.
type DType = tensor.DType

// NewRaw creates a zero-initialized tensor.
func NewRaw(shape Shape, dtype DataType, device Device) (*RawTensor, error) {
	return tensor.NewRaw(shape, dtype, device)
}

// FromSlice creates a tensor holding a copy of data. The slice length must
// equal the shape's element count.
func FromSlice[T DType](shape Shape, data []T, device Device) (*RawTensor, error) {
	return tensor.FromSlice(shape, data, device)
}
