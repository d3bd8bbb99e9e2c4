// Copyright 2025 The GridMap Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu exposes the CPU execution engine.
//
// The CPU engine is registered automatically when the ops package is
// imported; this package exists for callers that want to hold an engine
// directly, for example to run kernels with a custom parallelism setting.
package cpu

import (
	internalcpu "github.com/gridmap-ml/gridmap/internal/backend/cpu"
)

// Engine executes the sampling and pooling kernels in pure Go, fanning
// (batch, channel) planes out over a worker pool.
type Engine = internalcpu.Engine

// New creates a CPU engine with the default parallelism configuration.
func New() *Engine {
	return internalcpu.New()
}
