// Copyright 2025 The GridMap Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package nn wraps the GridMap operators in stateful layers.
//
// A layer owns its sample map, weights, and interpolation policy, and
// threads the bookkeeping the raw operators leave to the caller: pooling
// layers retain the winner-index mask and the input grid size between
// Forward and Backward, so the unpool call is always paired with the
// forward pass that produced its mask.
//
//	pool := nn.NewMappedMaxPool(sampleMap, 4, ops.Bilinear)
//	out, err := pool.Forward(input)
//	...
//	gradIn, err := pool.Backward(gradOut)
package nn
