// Copyright 2025 The GridMap Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridmap-ml/gridmap/nn"
	"github.com/gridmap-ml/gridmap/ops"
	"github.com/gridmap-ml/gridmap/tensor"
)

func cornerMap(t *testing.T) *tensor.RawTensor {
	t.Helper()
	smap, err := tensor.FromSlice(tensor.Shape{2, 2, 1, 2}, []float32{
		0, 0,
		3, 0,
		0, 3,
		3, 3,
	}, tensor.CPU)
	require.NoError(t, err)
	return smap
}

func TestMappedMaxPoolLayer(t *testing.T) {
	data := make([]float32, 16)
	for i := range data {
		data[i] = float32(i)
	}
	input, err := tensor.FromSlice(tensor.Shape{1, 1, 4, 4}, data, tensor.CPU)
	require.NoError(t, err)

	pool := nn.NewMappedMaxPool(cornerMap(t), 1, ops.Nearest)
	require.Nil(t, pool.IdxMask())

	output, err := pool.Forward(input)
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 3, 12, 15}, output.AsFloat32())
	require.NotNil(t, pool.IdxMask())

	gradOut, err := tensor.FromSlice(tensor.Shape{1, 1, 2, 2}, []float32{1, 2, 3, 4}, tensor.CPU)
	require.NoError(t, err)

	gradIn, err := pool.Backward(gradOut)
	require.NoError(t, err)
	require.True(t, gradIn.Shape().Equal(input.Shape()))
	assert.Equal(t, float32(1), gradIn.AsFloat32()[0])
	assert.Equal(t, float32(2), gradIn.AsFloat32()[3])
	assert.Equal(t, float32(3), gradIn.AsFloat32()[12])
	assert.Equal(t, float32(4), gradIn.AsFloat32()[15])
}

func TestMappedMaxPoolLayer_BackwardBeforeForward(t *testing.T) {
	pool := nn.NewMappedMaxPool(cornerMap(t), 1, ops.Nearest)

	gradOut, err := tensor.FromSlice(tensor.Shape{1, 1, 2, 2}, []float32{1, 1, 1, 1}, tensor.CPU)
	require.NoError(t, err)

	_, err = pool.Backward(gradOut)
	assert.ErrorIs(t, err, nn.ErrBackwardBeforeForward)
}

func TestResampleLayer_RoundTrip(t *testing.T) {
	input, err := tensor.FromSlice(tensor.Shape{1, 1, 2, 2}, []float32{1, 2, 3, 4}, tensor.CPU)
	require.NoError(t, err)

	// Identity map over the 2x2 grid.
	smap, err := tensor.FromSlice(tensor.Shape{2, 2, 2}, []float32{
		0, 0,
		1, 0,
		0, 1,
		1, 1,
	}, tensor.CPU)
	require.NoError(t, err)

	layer := nn.NewResample(smap, ops.Bilinear)

	output, err := layer.Forward(input)
	require.NoError(t, err)
	assert.Equal(t, input.AsFloat32(), output.AsFloat32())

	gradIn, err := layer.Backward(output)
	require.NoError(t, err)
	assert.Equal(t, input.AsFloat32(), gradIn.AsFloat32())
}

func TestWeightedLayers(t *testing.T) {
	data := make([]float32, 16)
	for i := range data {
		data[i] = float32(i)
	}
	input, err := tensor.FromSlice(tensor.Shape{1, 1, 4, 4}, data, tensor.CPU)
	require.NoError(t, err)

	// One output cell blending pixels 0 and 15 equally.
	smap, err := tensor.FromSlice(tensor.Shape{1, 1, 2, 2}, []float32{
		0, 0,
		3, 3,
	}, tensor.CPU)
	require.NoError(t, err)
	wts, err := tensor.FromSlice(tensor.Shape{1, 1, 2}, []float32{0.5, 0.5}, tensor.CPU)
	require.NoError(t, err)

	resample := nn.NewWeightedResample(smap, wts, ops.Nearest)
	output, err := resample.Forward(input)
	require.NoError(t, err)
	assert.Equal(t, float32(7.5), output.AsFloat32()[0])

	// Pooling variant: two taps with one point each, outer weights flipped.
	poolMap, err := tensor.FromSlice(tensor.Shape{1, 1, 2, 1, 2}, []float32{
		3, 3,
		1, 1,
	}, tensor.CPU)
	require.NoError(t, err)
	poolWts, err := tensor.FromSlice(tensor.Shape{1, 1, 2, 1}, []float32{0.1, 2.0}, tensor.CPU)
	require.NoError(t, err)

	pool := nn.NewWeightedMappedMaxPool(poolMap, poolWts, 2, ops.Nearest)
	pooled, err := pool.Forward(input)
	require.NoError(t, err)
	assert.Equal(t, float32(10), pooled.AsFloat32()[0])
	assert.Equal(t, int64(1), pool.IdxMask().AsInt64()[0])

	gradOut, err := tensor.FromSlice(tensor.Shape{1, 1, 1, 1}, []float32{3}, tensor.CPU)
	require.NoError(t, err)
	gradIn, err := pool.Backward(gradOut)
	require.NoError(t, err)
	assert.Equal(t, float32(6), gradIn.AsFloat32()[5])
}
