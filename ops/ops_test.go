// Copyright 2025 The GridMap Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package ops_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"

	"github.com/gridmap-ml/gridmap/internal/tensor"
	"github.com/gridmap-ml/gridmap/ops"
)

func ramp(t *testing.T, shape tensor.Shape) *tensor.RawTensor {
	t.Helper()
	data := make([]float32, shape.NumElements())
	for i := range data {
		data[i] = float32(i)
	}
	raw, err := tensor.FromSlice(shape, data, tensor.CPU)
	require.NoError(t, err)
	return raw
}

// TestMappedMaxPool_PoolAndUnpool drives a full forward and backward pass
// through the public dispatch layer.
func TestMappedMaxPool_PoolAndUnpool(t *testing.T) {
	input := ramp(t, tensor.Shape{1, 1, 4, 4})

	// Each output cell samples one corner of the 4x4 ramp.
	smap, err := tensor.FromSlice(tensor.Shape{2, 2, 1, 2}, []float32{
		0, 0,
		3, 0,
		0, 3,
		3, 3,
	}, tensor.CPU)
	require.NoError(t, err)

	output, idxMask, err := ops.MappedMaxPool(input, smap, 1, ops.Nearest)
	require.NoError(t, err)
	require.True(t, output.Shape().Equal(tensor.Shape{1, 1, 2, 2}))
	require.True(t, idxMask.Shape().Equal(output.Shape()))
	assert.Equal(t, []float32{0, 3, 12, 15}, output.AsFloat32())

	gradOut, err := tensor.FromSlice(tensor.Shape{1, 1, 2, 2}, []float32{1, 1, 1, 1}, tensor.CPU)
	require.NoError(t, err)

	gradIn, err := ops.MappedMaxUnpool(gradOut, idxMask, smap, 4, 4, 1, ops.Nearest)
	require.NoError(t, err)
	require.True(t, gradIn.Shape().Equal(input.Shape()))

	for i, g := range gradIn.AsFloat32() {
		if i == 0 || i == 3 || i == 12 || i == 15 {
			assert.Equal(t, float32(1), g, "corner %d", i)
		} else {
			assert.Equal(t, float32(0), g, "pixel %d", i)
		}
	}
}

// TestResample_AdjointIdentity checks <Ax, y> == <x, A^T y> through the
// public API on random data, for every interpolation policy.
func TestResample_AdjointIdentity(t *testing.T) {
	const b, c, h, w, ho, wo = 2, 2, 6, 6, 4, 4
	rng := rand.New(rand.NewSource(7))

	xData := make([]float64, b*c*h*w)
	for i := range xData {
		xData[i] = rng.Float64()
	}
	yData := make([]float64, b*c*ho*wo)
	for i := range yData {
		yData[i] = rng.Float64()
	}
	mapData := make([]float64, ho*wo*2)
	for i := range mapData {
		mapData[i] = rng.Float64()*7 - 0.5
	}

	x, err := tensor.FromSlice(tensor.Shape{b, c, h, w}, xData, tensor.CPU)
	require.NoError(t, err)
	y, err := tensor.FromSlice(tensor.Shape{b, c, ho, wo}, yData, tensor.CPU)
	require.NoError(t, err)
	smap, err := tensor.FromSlice(tensor.Shape{ho, wo, 2}, mapData, tensor.CPU)
	require.NoError(t, err)

	for _, ip := range []ops.Interpolation{ops.Nearest, ops.Bilinear, ops.BiSpherical} {
		ax, err := ops.ResampleToMap(x, smap, ho, wo, ip)
		require.NoError(t, err, "%s forward", ip)
		aty, err := ops.ResampleFromMap(y, smap, h, w, ip)
		require.NoError(t, err, "%s adjoint", ip)

		lhs := floats.Dot(ax.AsFloat64(), yData)
		rhs := floats.Dot(aty.AsFloat64(), xData)
		assert.InDelta(t, lhs, rhs, 1e-10, "%s: adjoint identity", ip)
	}
}

// TestWeightedResample_Blend verifies the weighted gather through the
// public API.
func TestWeightedResample_Blend(t *testing.T) {
	input := ramp(t, tensor.Shape{1, 1, 4, 4})

	smap, err := tensor.FromSlice(tensor.Shape{1, 1, 3, 2}, []float32{
		0, 0,
		3, 0,
		3, 3,
	}, tensor.CPU)
	require.NoError(t, err)
	wts, err := tensor.FromSlice(tensor.Shape{1, 1, 3}, []float32{0.5, 0.25, 0.25}, tensor.CPU)
	require.NoError(t, err)

	output, err := ops.WeightedResampleToMap(input, smap, wts, 1, 1, ops.Nearest)
	require.NoError(t, err)
	assert.Equal(t, float32(4.5), output.AsFloat32()[0])
}

// TestValidation_ErrorClasses exercises the precondition checks and their
// sentinel classification.
func TestValidation_ErrorClasses(t *testing.T) {
	input := ramp(t, tensor.Shape{1, 1, 4, 4})

	t.Run("map last dimension must be 2", func(t *testing.T) {
		bad, err := tensor.FromSlice(tensor.Shape{1, 1, 1, 3}, []float32{0, 0, 0}, tensor.CPU)
		require.NoError(t, err)
		_, _, err = ops.MappedMaxPool(input, bad, 1, ops.Nearest)
		assert.ErrorIs(t, err, ops.ErrShapeMismatch)
	})

	t.Run("kernel size must match map taps", func(t *testing.T) {
		smap, err := tensor.FromSlice(tensor.Shape{1, 1, 2, 2}, []float32{0, 0, 1, 1}, tensor.CPU)
		require.NoError(t, err)
		_, _, err = ops.MappedMaxPool(input, smap, 3, ops.Nearest)
		assert.ErrorIs(t, err, ops.ErrShapeMismatch)
	})

	t.Run("map dtype must match grid dtype", func(t *testing.T) {
		smap, err := tensor.FromSlice(tensor.Shape{1, 1, 1, 2}, []float64{0, 0}, tensor.CPU)
		require.NoError(t, err)
		_, _, err = ops.MappedMaxPool(input, smap, 1, ops.Nearest)
		assert.ErrorIs(t, err, ops.ErrDType)
	})

	t.Run("int grids are rejected", func(t *testing.T) {
		intGrid, err := tensor.FromSlice(tensor.Shape{1, 1, 1, 1}, []int64{1}, tensor.CPU)
		require.NoError(t, err)
		smap, err := tensor.FromSlice(tensor.Shape{1, 1, 2}, []int64{0, 0}, tensor.CPU)
		require.NoError(t, err)
		_, err = ops.ResampleToMap(intGrid, smap, 1, 1, ops.Nearest)
		assert.ErrorIs(t, err, ops.ErrDType)
	})

	t.Run("operands must share a device", func(t *testing.T) {
		smap, err := tensor.FromSlice(tensor.Shape{1, 1, 1, 2}, []float32{0, 0}, tensor.WebGPU)
		require.NoError(t, err)
		_, _, err = ops.MappedMaxPool(input, smap, 1, ops.Nearest)
		assert.ErrorIs(t, err, ops.ErrDeviceMismatch)
	})

	t.Run("mask must be Int64", func(t *testing.T) {
		smap, err := tensor.FromSlice(tensor.Shape{1, 1, 1, 2}, []float32{0, 0}, tensor.CPU)
		require.NoError(t, err)
		gradOut, err := tensor.FromSlice(tensor.Shape{1, 1, 1, 1}, []float32{1}, tensor.CPU)
		require.NoError(t, err)
		_, err = ops.MappedMaxUnpool(gradOut, gradOut, smap, 4, 4, 1, ops.Nearest)
		assert.ErrorIs(t, err, ops.ErrDType)
	})

	t.Run("weights must mirror the map", func(t *testing.T) {
		smap, err := tensor.FromSlice(tensor.Shape{1, 1, 2, 2}, []float32{0, 0, 1, 1}, tensor.CPU)
		require.NoError(t, err)
		wts, err := tensor.FromSlice(tensor.Shape{1, 1, 3}, []float32{1, 1, 1}, tensor.CPU)
		require.NoError(t, err)
		_, err = ops.WeightedResampleToMap(input, smap, wts, 1, 1, ops.Nearest)
		assert.ErrorIs(t, err, ops.ErrShapeMismatch)
	})

	t.Run("invalid policy", func(t *testing.T) {
		smap, err := tensor.FromSlice(tensor.Shape{1, 1, 1, 2}, []float32{0, 0}, tensor.CPU)
		require.NoError(t, err)
		_, _, err = ops.MappedMaxPool(input, smap, 1, ops.Interpolation(99))
		assert.Error(t, err)
	})

	t.Run("no engine without EnableWebGPU", func(t *testing.T) {
		gpuIn, err := tensor.FromSlice(tensor.Shape{1, 1, 1, 1}, []float32{1}, tensor.WebGPU)
		require.NoError(t, err)
		gpuMap, err := tensor.FromSlice(tensor.Shape{1, 1, 2}, []float32{0, 0}, tensor.WebGPU)
		require.NoError(t, err)
		_, err = ops.ResampleToMap(gpuIn, gpuMap, 1, 1, ops.Nearest)
		assert.ErrorIs(t, err, ops.ErrDeviceMismatch)
	})
}

// TestMappedMaxPool_InputsUntouched verifies purity: operands keep their
// contents across a call.
func TestMappedMaxPool_InputsUntouched(t *testing.T) {
	input := ramp(t, tensor.Shape{1, 1, 4, 4})
	smap, err := tensor.FromSlice(tensor.Shape{1, 1, 1, 2}, []float32{1.5, 1.5}, tensor.CPU)
	require.NoError(t, err)

	before := append([]float32(nil), input.AsFloat32()...)
	mapBefore := append([]float32(nil), smap.AsFloat32()...)

	_, _, err = ops.MappedMaxPool(input, smap, 1, ops.Bilinear)
	require.NoError(t, err)

	assert.Equal(t, before, input.AsFloat32())
	assert.Equal(t, mapBefore, smap.AsFloat32())
}
