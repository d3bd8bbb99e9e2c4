package cpu

import (
	"fmt"

	"github.com/gridmap-ml/gridmap/internal/interp"
	"github.com/gridmap-ml/gridmap/internal/parallel"
	"github.com/gridmap-ml/gridmap/internal/tensor"
)

// ResampleToMap gathers one interpolated sample per output location.
//
// output[b,c,oy,ox] = sum over the resolved pixels of map[oy,ox] of
// input[b,c,py,px] * weight. No reduction is involved; this is a plain
// gather with interpolation onto a different grid layout.
//
// Input shape:  [B, C, H, W]
// Map shape:    [Ho, Wo, 2], entries (x, y)
// Output shape: [B, C, Ho, Wo]
func (e *Engine) ResampleToMap(input, sampleMap *tensor.RawTensor, outH, outW int,
	ip interp.Interpolation) (*tensor.RawTensor, error) {
	b, c, h, w := gridDims(input)

	output, err := tensor.NewRaw(tensor.Shape{b, c, outH, outW}, input.DType(), e.device)
	if err != nil {
		return nil, fmt.Errorf("resample to map: %w", err)
	}

	switch input.DType() {
	case tensor.Float32:
		resampleToMap(output.AsFloat32(), input.AsFloat32(), sampleMap.AsFloat32(),
			b, c, h, w, outH, outW, ip, e.cfg)
	case tensor.Float64:
		resampleToMap(output.AsFloat64(), input.AsFloat64(), sampleMap.AsFloat64(),
			b, c, h, w, outH, outW, ip, e.cfg)
	default:
		return nil, fmt.Errorf("resample to map: unsupported dtype %s", input.DType())
	}

	return output, nil
}

func resampleToMap[T interp.Float](out, in, smap []T,
	b, c, h, w, ho, wo int, ip interp.Interpolation, cfg parallel.Config) {
	inPlane := h * w
	outPlane := ho * wo

	parallel.ForBatch(b, c, func(bi, ci int) {
		channel := in[(bi*c+ci)*inPlane : (bi*c+ci)*inPlane+inPlane]
		outBase := (bi*c + ci) * outPlane

		var taps [interp.MaxTaps]interp.Tap[T]
		for oy := 0; oy < ho; oy++ {
			for ox := 0; ox < wo; ox++ {
				mapBase := (oy*wo + ox) * 2
				x := smap[mapBase]
				y := smap[mapBase+1]

				var val T
				n := interp.Resolve(x, y, h, w, ip, &taps)
				for t := 0; t < n; t++ {
					val += taps[t].Weight * channel[taps[t].Y*w+taps[t].X]
				}
				out[outBase+oy*wo+ox] = val
			}
		}
	}, cfg)
}
