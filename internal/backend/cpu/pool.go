package cpu

import (
	"fmt"
	"math"

	"github.com/gridmap-ml/gridmap/internal/interp"
	"github.com/gridmap-ml/gridmap/internal/parallel"
	"github.com/gridmap-ml/gridmap/internal/tensor"
)

// MappedMaxPool performs max pooling over mapped taps.
//
// For every (batch, channel, output row, output column) the sample map
// supplies kernelSize fractional coordinates into the input grid. Each tap is
// interpolated under the policy, the maximum of the kernelSize values is
// written to the output, and the winning tap ordinal is recorded in the
// Int64 index mask.
//
// Input shape:  [B, C, H, W]
// Map shape:    [Ho, Wo, K, 2], entries (x, y)
// Output shape: [B, C, Ho, Wo], mask same shape
//
// Ties break to the earliest ordinal. A tap whose support lies entirely
// outside the grid evaluates to 0; if every tap of a cell is degenerate the
// output is 0 with winner 0. Neither case is an error.
func (e *Engine) MappedMaxPool(input, sampleMap *tensor.RawTensor, kernelSize int,
	ip interp.Interpolation) (*tensor.RawTensor, *tensor.RawTensor, error) {
	b, c, h, w := gridDims(input)
	mapShape := sampleMap.Shape()
	ho, wo := mapShape[0], mapShape[1]

	output, err := tensor.NewRaw(tensor.Shape{b, c, ho, wo}, input.DType(), e.device)
	if err != nil {
		return nil, nil, fmt.Errorf("mapped max pool: %w", err)
	}
	idxMask, err := tensor.NewRaw(tensor.Shape{b, c, ho, wo}, tensor.Int64, e.device)
	if err != nil {
		return nil, nil, fmt.Errorf("mapped max pool: %w", err)
	}

	switch input.DType() {
	case tensor.Float32:
		mappedMaxPool(output.AsFloat32(), idxMask.AsInt64(),
			input.AsFloat32(), sampleMap.AsFloat32(),
			b, c, h, w, ho, wo, kernelSize, ip, e.cfg)
	case tensor.Float64:
		mappedMaxPool(output.AsFloat64(), idxMask.AsInt64(),
			input.AsFloat64(), sampleMap.AsFloat64(),
			b, c, h, w, ho, wo, kernelSize, ip, e.cfg)
	default:
		return nil, nil, fmt.Errorf("mapped max pool: unsupported dtype %s", input.DType())
	}

	return output, idxMask, nil
}

// mappedMaxPool is the dtype-generic pooling core.
func mappedMaxPool[T interp.Float](out []T, mask []int64, in, smap []T,
	b, c, h, w, ho, wo, k int, ip interp.Interpolation, cfg parallel.Config) {
	inPlane := h * w
	outPlane := ho * wo
	negInf := T(math.Inf(-1))

	parallel.ForBatch(b, c, func(bi, ci int) {
		// Pre-slice the channel plane: one bounds check per plane.
		channel := in[(bi*c+ci)*inPlane : (bi*c+ci)*inPlane+inPlane]
		outBase := (bi*c + ci) * outPlane

		var taps [interp.MaxTaps]interp.Tap[T]
		for oy := 0; oy < ho; oy++ {
			for ox := 0; ox < wo; ox++ {
				mapBase := (oy*wo + ox) * k * 2

				maxVal := negInf
				winner := 0
				for ki := 0; ki < k; ki++ {
					x := smap[mapBase+2*ki]
					y := smap[mapBase+2*ki+1]

					var val T
					n := interp.Resolve(x, y, h, w, ip, &taps)
					for t := 0; t < n; t++ {
						val += taps[t].Weight * channel[taps[t].Y*w+taps[t].X]
					}

					// Strict > keeps the earliest maximal tap. The -Inf seed
					// guarantees tap 0 wins when every tap evaluates to 0.
					if val > maxVal {
						maxVal = val
						winner = ki
					}
				}

				outIdx := outBase + oy*wo + ox
				out[outIdx] = maxVal
				mask[outIdx] = int64(winner)
			}
		}
	}, cfg)
}
