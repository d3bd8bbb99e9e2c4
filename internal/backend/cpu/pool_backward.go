package cpu

import (
	"fmt"

	"github.com/gridmap-ml/gridmap/internal/interp"
	"github.com/gridmap-ml/gridmap/internal/parallel"
	"github.com/gridmap-ml/gridmap/internal/tensor"
)

// MappedMaxUnpool computes the gradient w.r.t. the input grid for
// MappedMaxPool.
//
// Gradient flows only through the tap that won the forward max: for each
// output cell the recorded winner ordinal selects one map coordinate, that
// coordinate is resolved exactly as in the forward pass, and
// gradOutput * weight is accumulated into each contributing input pixel.
// Accumulation, not overwrite: overlapping sample maps may route several
// output cells to the same input pixel and their contributions must sum.
//
// The caller must pass the idxMask produced by the matching forward call
// together with the same map, kernel size, and policy.
func (e *Engine) MappedMaxUnpool(gradOutput, idxMask, sampleMap *tensor.RawTensor,
	inputH, inputW, kernelSize int, ip interp.Interpolation) (*tensor.RawTensor, error) {
	b, c, ho, wo := gridDims(gradOutput)

	gradInput, err := tensor.NewRaw(tensor.Shape{b, c, inputH, inputW}, gradOutput.DType(), e.device)
	if err != nil {
		return nil, fmt.Errorf("mapped max unpool: %w", err)
	}

	switch gradOutput.DType() {
	case tensor.Float32:
		mappedMaxUnpool(gradInput.AsFloat32(), gradOutput.AsFloat32(),
			idxMask.AsInt64(), sampleMap.AsFloat32(),
			b, c, inputH, inputW, ho, wo, kernelSize, ip, e.cfg)
	case tensor.Float64:
		mappedMaxUnpool(gradInput.AsFloat64(), gradOutput.AsFloat64(),
			idxMask.AsInt64(), sampleMap.AsFloat64(),
			b, c, inputH, inputW, ho, wo, kernelSize, ip, e.cfg)
	default:
		return nil, fmt.Errorf("mapped max unpool: unsupported dtype %s", gradOutput.DType())
	}

	return gradInput, nil
}

// mappedMaxUnpool is the dtype-generic unpooling core. gradIn arrives
// zero-initialized; each goroutine owns one (b, c) plane so the scatter-adds
// within it are serialized.
func mappedMaxUnpool[T interp.Float](gradIn, gradOut []T, mask []int64, smap []T,
	b, c, h, w, ho, wo, k int, ip interp.Interpolation, cfg parallel.Config) {
	inPlane := h * w
	outPlane := ho * wo

	parallel.ForBatch(b, c, func(bi, ci int) {
		plane := gradIn[(bi*c+ci)*inPlane : (bi*c+ci)*inPlane+inPlane]
		outBase := (bi*c + ci) * outPlane

		var taps [interp.MaxTaps]interp.Tap[T]
		for oy := 0; oy < ho; oy++ {
			for ox := 0; ox < wo; ox++ {
				outIdx := outBase + oy*wo + ox
				winner := int(mask[outIdx])
				g := gradOut[outIdx]

				mapBase := ((oy*wo+ox)*k + winner) * 2
				x := smap[mapBase]
				y := smap[mapBase+1]

				n := interp.Resolve(x, y, h, w, ip, &taps)
				for t := 0; t < n; t++ {
					plane[taps[t].Y*w+taps[t].X] += g * taps[t].Weight
				}
			}
		}
	}, cfg)
}
