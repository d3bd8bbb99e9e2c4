// Copyright 2025 The GridMap Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package webgpu exposes the WebGPU execution engine.
//
// Most callers should use ops.EnableWebGPU, which creates and registers an
// engine in one step. This package exists for callers that manage the
// engine lifetime themselves.
package webgpu

import (
	internalwebgpu "github.com/gridmap-ml/gridmap/internal/backend/webgpu"
)

// Engine executes the sampling and pooling kernels on a WebGPU device.
// Only Float32 grids are supported.
type Engine = internalwebgpu.Engine

// New creates a WebGPU engine. Returns an error if no adapter or device is
// available; callers can fall back to the CPU engine.
func New() (*Engine, error) {
	return internalwebgpu.New()
}
