package cpu

import (
	"fmt"

	"github.com/gridmap-ml/gridmap/internal/interp"
	"github.com/gridmap-ml/gridmap/internal/parallel"
	"github.com/gridmap-ml/gridmap/internal/tensor"
)

// WeightedResampleToMap blends P externally weighted interpolation points
// per output location.
//
// Map shape [Ho, Wo, P, 2], weights [Ho, Wo, P]:
//
//	output[b,c,oy,ox] = sum_p weights[oy,ox,p] * interp(input, map[oy,ox,p])
//
// The supplied weights ride on top of the policy weights; they are not a
// replacement for coordinate resolution.
func (e *Engine) WeightedResampleToMap(input, sampleMap, interpWeights *tensor.RawTensor,
	outH, outW int, ip interp.Interpolation) (*tensor.RawTensor, error) {
	b, c, h, w := gridDims(input)
	p := sampleMap.Shape()[2]

	output, err := tensor.NewRaw(tensor.Shape{b, c, outH, outW}, input.DType(), e.device)
	if err != nil {
		return nil, fmt.Errorf("weighted resample to map: %w", err)
	}

	switch input.DType() {
	case tensor.Float32:
		weightedResampleToMap(output.AsFloat32(), input.AsFloat32(),
			sampleMap.AsFloat32(), interpWeights.AsFloat32(),
			b, c, h, w, outH, outW, p, ip, e.cfg)
	case tensor.Float64:
		weightedResampleToMap(output.AsFloat64(), input.AsFloat64(),
			sampleMap.AsFloat64(), interpWeights.AsFloat64(),
			b, c, h, w, outH, outW, p, ip, e.cfg)
	default:
		return nil, fmt.Errorf("weighted resample to map: unsupported dtype %s", input.DType())
	}

	return output, nil
}

func weightedResampleToMap[T interp.Float](out, in, smap, wts []T,
	b, c, h, w, ho, wo, p int, ip interp.Interpolation, cfg parallel.Config) {
	inPlane := h * w
	outPlane := ho * wo

	parallel.ForBatch(b, c, func(bi, ci int) {
		channel := in[(bi*c+ci)*inPlane : (bi*c+ci)*inPlane+inPlane]
		outBase := (bi*c + ci) * outPlane

		var taps [interp.MaxTaps]interp.Tap[T]
		for oy := 0; oy < ho; oy++ {
			for ox := 0; ox < wo; ox++ {
				cellMap := (oy*wo + ox) * p * 2
				cellWts := (oy*wo + ox) * p

				var val T
				for pi := 0; pi < p; pi++ {
					x := smap[cellMap+2*pi]
					y := smap[cellMap+2*pi+1]

					var pointVal T
					n := interp.Resolve(x, y, h, w, ip, &taps)
					for t := 0; t < n; t++ {
						pointVal += taps[t].Weight * channel[taps[t].Y*w+taps[t].X]
					}
					val += wts[cellWts+pi] * pointVal
				}
				out[outBase+oy*wo+ox] = val
			}
		}
	}, cfg)
}

// WeightedResampleFromMap is the adjoint of WeightedResampleToMap: the same
// coordinate set and combined weights, applied as a scatter-add.
func (e *Engine) WeightedResampleFromMap(gradOutput, sampleMap, interpWeights *tensor.RawTensor,
	inputH, inputW int, ip interp.Interpolation) (*tensor.RawTensor, error) {
	b, c, ho, wo := gridDims(gradOutput)
	p := sampleMap.Shape()[2]

	gradInput, err := tensor.NewRaw(tensor.Shape{b, c, inputH, inputW}, gradOutput.DType(), e.device)
	if err != nil {
		return nil, fmt.Errorf("weighted resample from map: %w", err)
	}

	switch gradOutput.DType() {
	case tensor.Float32:
		weightedResampleFromMap(gradInput.AsFloat32(), gradOutput.AsFloat32(),
			sampleMap.AsFloat32(), interpWeights.AsFloat32(),
			b, c, inputH, inputW, ho, wo, p, ip, e.cfg)
	case tensor.Float64:
		weightedResampleFromMap(gradInput.AsFloat64(), gradOutput.AsFloat64(),
			sampleMap.AsFloat64(), interpWeights.AsFloat64(),
			b, c, inputH, inputW, ho, wo, p, ip, e.cfg)
	default:
		return nil, fmt.Errorf("weighted resample from map: unsupported dtype %s", gradOutput.DType())
	}

	return gradInput, nil
}

func weightedResampleFromMap[T interp.Float](gradIn, gradOut, smap, wts []T,
	b, c, h, w, ho, wo, p int, ip interp.Interpolation, cfg parallel.Config) {
	inPlane := h * w
	outPlane := ho * wo

	parallel.ForBatch(b, c, func(bi, ci int) {
		plane := gradIn[(bi*c+ci)*inPlane : (bi*c+ci)*inPlane+inPlane]
		outBase := (bi*c + ci) * outPlane

		var taps [interp.MaxTaps]interp.Tap[T]
		for oy := 0; oy < ho; oy++ {
			for ox := 0; ox < wo; ox++ {
				cellMap := (oy*wo + ox) * p * 2
				cellWts := (oy*wo + ox) * p
				g := gradOut[outBase+oy*wo+ox]

				for pi := 0; pi < p; pi++ {
					x := smap[cellMap+2*pi]
					y := smap[cellMap+2*pi+1]
					pw := wts[cellWts+pi]

					n := interp.Resolve(x, y, h, w, ip, &taps)
					for t := 0; t < n; t++ {
						plane[taps[t].Y*w+taps[t].X] += g * pw * taps[t].Weight
					}
				}
			}
		}
	}, cfg)
}
