// Copyright 2025 The GridMap Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package ops

import "errors"

// Sentinel errors reported by the precondition checks. Wrap-aware callers
// can classify failures with errors.Is.
var (
	// ErrNotContiguous means a tensor is not laid out in dense row-major
	// order. The kernels index flat buffers and never consult strides.
	ErrNotContiguous = errors.New("tensor is not contiguous")

	// ErrDeviceMismatch means the operands of one call live on different
	// devices.
	ErrDeviceMismatch = errors.New("tensors are on different devices")

	// ErrShapeMismatch means an operand's shape is inconsistent with the
	// operation or with its peers.
	ErrShapeMismatch = errors.New("tensor shapes are inconsistent")

	// ErrDType means an operand has a data type the operation does not
	// accept.
	ErrDType = errors.New("unsupported data type")
)
