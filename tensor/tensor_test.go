// Copyright 2025 The GridMap Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridmap-ml/gridmap/tensor"
)

func TestFromSlice(t *testing.T) {
	raw, err := tensor.FromSlice(tensor.Shape{2, 2}, []float32{1, 2, 3, 4}, tensor.CPU)
	require.NoError(t, err)

	assert.Equal(t, tensor.Float32, raw.DType())
	assert.Equal(t, tensor.CPU, raw.Device())
	assert.Equal(t, []float32{1, 2, 3, 4}, raw.AsFloat32())
	assert.True(t, raw.IsContiguous())
}

func TestFromSliceLengthMismatch(t *testing.T) {
	_, err := tensor.FromSlice(tensor.Shape{2, 2}, []float64{1, 2, 3}, tensor.CPU)
	assert.Error(t, err)
}

func TestNewRawZeroed(t *testing.T) {
	raw, err := tensor.NewRaw(tensor.Shape{3}, tensor.Int64, tensor.CPU)
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 0, 0}, raw.AsInt64())
}
