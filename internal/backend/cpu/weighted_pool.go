package cpu

import (
	"fmt"
	"math"

	"github.com/gridmap-ml/gridmap/internal/interp"
	"github.com/gridmap-ml/gridmap/internal/parallel"
	"github.com/gridmap-ml/gridmap/internal/tensor"
)

// WeightedMappedMaxPool is MappedMaxPool with externally supplied weights.
//
// Each tap is defined by P interpolation points instead of one coordinate:
// the sample map has shape [Ho, Wo, K, P, 2] and the weight bundle
// [Ho, Wo, K, P]. A tap's value is the weight-scaled sum of its P
// policy-interpolated points (weights typically encode solid-angle or
// distance terms precomputed upstream). Reduction and winner recording are
// identical to the unweighted variant.
func (e *Engine) WeightedMappedMaxPool(input, sampleMap, interpWeights *tensor.RawTensor,
	kernelSize int, ip interp.Interpolation) (*tensor.RawTensor, *tensor.RawTensor, error) {
	b, c, h, w := gridDims(input)
	mapShape := sampleMap.Shape()
	ho, wo, p := mapShape[0], mapShape[1], mapShape[3]

	output, err := tensor.NewRaw(tensor.Shape{b, c, ho, wo}, input.DType(), e.device)
	if err != nil {
		return nil, nil, fmt.Errorf("weighted mapped max pool: %w", err)
	}
	idxMask, err := tensor.NewRaw(tensor.Shape{b, c, ho, wo}, tensor.Int64, e.device)
	if err != nil {
		return nil, nil, fmt.Errorf("weighted mapped max pool: %w", err)
	}

	switch input.DType() {
	case tensor.Float32:
		weightedMappedMaxPool(output.AsFloat32(), idxMask.AsInt64(),
			input.AsFloat32(), sampleMap.AsFloat32(), interpWeights.AsFloat32(),
			b, c, h, w, ho, wo, kernelSize, p, ip, e.cfg)
	case tensor.Float64:
		weightedMappedMaxPool(output.AsFloat64(), idxMask.AsInt64(),
			input.AsFloat64(), sampleMap.AsFloat64(), interpWeights.AsFloat64(),
			b, c, h, w, ho, wo, kernelSize, p, ip, e.cfg)
	default:
		return nil, nil, fmt.Errorf("weighted mapped max pool: unsupported dtype %s", input.DType())
	}

	return output, idxMask, nil
}

func weightedMappedMaxPool[T interp.Float](out []T, mask []int64, in, smap, wts []T,
	b, c, h, w, ho, wo, k, p int, ip interp.Interpolation, cfg parallel.Config) {
	inPlane := h * w
	outPlane := ho * wo
	negInf := T(math.Inf(-1))

	parallel.ForBatch(b, c, func(bi, ci int) {
		channel := in[(bi*c+ci)*inPlane : (bi*c+ci)*inPlane+inPlane]
		outBase := (bi*c + ci) * outPlane

		var taps [interp.MaxTaps]interp.Tap[T]
		for oy := 0; oy < ho; oy++ {
			for ox := 0; ox < wo; ox++ {
				cellMap := (oy*wo + ox) * k * p * 2
				cellWts := (oy*wo + ox) * k * p

				maxVal := negInf
				winner := 0
				for ki := 0; ki < k; ki++ {
					var val T
					for pi := 0; pi < p; pi++ {
						x := smap[cellMap+(ki*p+pi)*2]
						y := smap[cellMap+(ki*p+pi)*2+1]
						pw := wts[cellWts+ki*p+pi]

						var pointVal T
						n := interp.Resolve(x, y, h, w, ip, &taps)
						for t := 0; t < n; t++ {
							pointVal += taps[t].Weight * channel[taps[t].Y*w+taps[t].X]
						}
						val += pw * pointVal
					}

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

// WeightedMappedMaxUnpool routes gradOutput through the winning tap recorded
// by WeightedMappedMaxPool, scaling by both the supplied point weights and
// the policy interpolation weights, exactly as the forward pass combined
// them.
func (e *Engine) WeightedMappedMaxUnpool(gradOutput, idxMask, sampleMap, interpWeights *tensor.RawTensor,
	inputH, inputW, kernelSize int, ip interp.Interpolation) (*tensor.RawTensor, error) {
	b, c, ho, wo := gridDims(gradOutput)
	p := sampleMap.Shape()[3]

	gradInput, err := tensor.NewRaw(tensor.Shape{b, c, inputH, inputW}, gradOutput.DType(), e.device)
	if err != nil {
		return nil, fmt.Errorf("weighted mapped max unpool: %w", err)
	}

	switch gradOutput.DType() {
	case tensor.Float32:
		weightedMappedMaxUnpool(gradInput.AsFloat32(), gradOutput.AsFloat32(),
			idxMask.AsInt64(), sampleMap.AsFloat32(), interpWeights.AsFloat32(),
			b, c, inputH, inputW, ho, wo, kernelSize, p, ip, e.cfg)
	case tensor.Float64:
		weightedMappedMaxUnpool(gradInput.AsFloat64(), gradOutput.AsFloat64(),
			idxMask.AsInt64(), sampleMap.AsFloat64(), interpWeights.AsFloat64(),
			b, c, inputH, inputW, ho, wo, kernelSize, p, ip, e.cfg)
	default:
		return nil, fmt.Errorf("weighted mapped max unpool: unsupported dtype %s", gradOutput.DType())
	}

	return gradInput, nil
}

func weightedMappedMaxUnpool[T interp.Float](gradIn, gradOut []T, mask []int64, smap, wts []T,
	b, c, h, w, ho, wo, k, p int, ip interp.Interpolation, cfg parallel.Config) {
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

				cellMap := (oy*wo + ox) * k * p * 2
				cellWts := (oy*wo + ox) * k * p

				for pi := 0; pi < p; pi++ {
					x := smap[cellMap+(winner*p+pi)*2]
					y := smap[cellMap+(winner*p+pi)*2+1]
					pw := wts[cellWts+winner*p+pi]

					n := interp.Resolve(x, y, h, w, ip, &taps)
					for t := 0; t < n; t++ {
						plane[taps[t].Y*w+taps[t].X] += g * pw * taps[t].Weight
					}
				}
			}
		}
	}, cfg)
}
