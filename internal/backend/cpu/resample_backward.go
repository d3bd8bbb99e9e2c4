package cpu

import (
	"fmt"

	"github.com/gridmap-ml/gridmap/internal/interp"
	"github.com/gridmap-ml/gridmap/internal/parallel"
	"github.com/gridmap-ml/gridmap/internal/tensor"
)

// ResampleFromMap is the exact linear adjoint of ResampleToMap.
//
// Every output location scatters gradOutput[b,c,oy,ox] * weight back into
// each input pixel its coordinate resolved to, with the same weights the
// forward gather used. Contributions accumulate, never overwrite, so the
// result is exact regardless of map overlap or duplication.
func (e *Engine) ResampleFromMap(gradOutput, sampleMap *tensor.RawTensor,
	inputH, inputW int, ip interp.Interpolation) (*tensor.RawTensor, error) {
	b, c, ho, wo := gridDims(gradOutput)

	gradInput, err := tensor.NewRaw(tensor.Shape{b, c, inputH, inputW}, gradOutput.DType(), e.device)
	if err != nil {
		return nil, fmt.Errorf("resample from map: %w", err)
	}

	switch gradOutput.DType() {
	case tensor.Float32:
		resampleFromMap(gradInput.AsFloat32(), gradOutput.AsFloat32(), sampleMap.AsFloat32(),
			b, c, inputH, inputW, ho, wo, ip, e.cfg)
	case tensor.Float64:
		resampleFromMap(gradInput.AsFloat64(), gradOutput.AsFloat64(), sampleMap.AsFloat64(),
			b, c, inputH, inputW, ho, wo, ip, e.cfg)
	default:
		return nil, fmt.Errorf("resample from map: unsupported dtype %s", gradOutput.DType())
	}

	return gradInput, nil
}

func resampleFromMap[T interp.Float](gradIn, gradOut, smap []T,
	b, c, h, w, ho, wo int, ip interp.Interpolation, cfg parallel.Config) {
	inPlane := h * w
	outPlane := ho * wo

	parallel.ForBatch(b, c, func(bi, ci int) {
		plane := gradIn[(bi*c+ci)*inPlane : (bi*c+ci)*inPlane+inPlane]
		outBase := (bi*c + ci) * outPlane

		var taps [interp.MaxTaps]interp.Tap[T]
		for oy := 0; oy < ho; oy++ {
			for ox := 0; ox < wo; ox++ {
				mapBase := (oy*wo + ox) * 2
				x := smap[mapBase]
				y := smap[mapBase+1]
				g := gradOut[outBase+oy*wo+ox]

				n := interp.Resolve(x, y, h, w, ip, &taps)
				for t := 0; t < n; t++ {
					plane[taps[t].Y*w+taps[t].X] += g * taps[t].Weight
				}
			}
		}
	}, cfg)
}
