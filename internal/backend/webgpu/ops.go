package webgpu

import (
	"encoding/binary"
	"fmt"

	"github.com/go-webgpu/webgpu/wgpu"

	"github.com/gridmap-ml/gridmap/internal/interp"
	"github.com/gridmap-ml/gridmap/internal/tensor"
)

// scatterWorkgroupSize is the thread count of the per-plane scatter kernels.
const scatterWorkgroupSize = 64

// paramsSize is the byte size of the shared Params uniform (8 x u32).
const paramsSize = 32

// packParams serializes the shared uniform block.
// total counts output elements for gather kernels and (batch*channel)
// planes for scatter kernels.
func packParams(total, h, w, ho, wo, k, p int, ip interp.Interpolation) []byte {
	buf := make([]byte, paramsSize)
	for i, v := range [8]int{total, h, w, ho, wo, k, p, int(ip)} {
		//nolint:gosec // G115: dimensions are validated non-negative
		binary.LittleEndian.PutUint32(buf[i*4:], uint32(v))
	}
	return buf
}

func gatherWorkgroups(total int) uint32 {
	//nolint:gosec // G115: element counts fit in uint32
	return uint32((total + workgroupSize - 1) / workgroupSize)
}

func scatterWorkgroups(planes int) uint32 {
	//nolint:gosec // G115: plane counts fit in uint32
	return uint32((planes + scatterWorkgroupSize - 1) / scatterWorkgroupSize)
}

// widenMask converts the shader's i32 winner indices to the Int64 mask.
func widenMask(src []byte, dst []int64) {
	for i := range dst {
		dst[i] = int64(int32(binary.LittleEndian.Uint32(src[i*4:])))
	}
}

// narrowMask converts an Int64 winner mask to i32 bytes for upload.
// Winner indices never exceed the tap count, so the narrowing is lossless.
func narrowMask(src []int64) []byte {
	out := make([]byte, len(src)*4)
	for i, v := range src {
		//nolint:gosec // G115: winner indices are small non-negative ints
		binary.LittleEndian.PutUint32(out[i*4:], uint32(int32(v)))
	}
	return out
}

func checkFloat32(tensors ...*tensor.RawTensor) error {
	for _, t := range tensors {
		if t.DType() != tensor.Float32 {
			return fmt.Errorf("webgpu: only Float32 grids are supported, got %s", t.DType())
		}
	}
	return nil
}

// MappedMaxPool computes a max over kernelSize interpolated taps per output
// cell, one invocation per output element across the folded batch.
func (e *Engine) MappedMaxPool(input, sampleMap *tensor.RawTensor, kernelSize int, ip interp.Interpolation) (*tensor.RawTensor, *tensor.RawTensor, error) {
	if err := checkFloat32(input, sampleMap); err != nil {
		return nil, nil, err
	}
	s := input.Shape()
	b, c, h, w := s[0], s[1], s[2], s[3]
	ms := sampleMap.Shape()
	ho, wo := ms[0], ms[1]
	total := b * c * ho * wo

	output, err := tensor.NewRaw(tensor.Shape{b, c, ho, wo}, tensor.Float32, tensor.WebGPU)
	if err != nil {
		return nil, nil, err
	}
	idxMask, err := tensor.NewRaw(tensor.Shape{b, c, ho, wo}, tensor.Int64, tensor.WebGPU)
	if err != nil {
		return nil, nil, err
	}

	inBuf := e.createBuffer(input.Data(), wgpu.BufferUsageStorage)
	defer inBuf.Release()
	mapBuf := e.createBuffer(sampleMap.Data(), wgpu.BufferUsageStorage)
	defer mapBuf.Release()
	outBuf := e.createOutputBuffer(uint64(total) * 4)
	defer outBuf.Release()
	maskBuf := e.createOutputBuffer(uint64(total) * 4)
	defer maskBuf.Release()
	paramsBuf := e.createUniformBuffer(packParams(total, h, w, ho, wo, kernelSize, 1, ip))
	defer paramsBuf.Release()

	err = e.dispatch("mappedMaxPool", mappedPoolShader, []wgpu.BindGroupEntry{
		wgpu.BufferBindingEntry(0, inBuf, 0, uint64(len(input.Data()))),
		wgpu.BufferBindingEntry(1, mapBuf, 0, uint64(len(sampleMap.Data()))),
		wgpu.BufferBindingEntry(2, outBuf, 0, uint64(total)*4),
		wgpu.BufferBindingEntry(3, maskBuf, 0, uint64(total)*4),
		wgpu.BufferBindingEntry(4, paramsBuf, 0, paramsSize),
	}, gatherWorkgroups(total))
	if err != nil {
		return nil, nil, err
	}

	outBytes, err := e.readBuffer(outBuf, uint64(total)*4)
	if err != nil {
		return nil, nil, err
	}
	copy(output.Data(), outBytes)

	maskBytes, err := e.readBuffer(maskBuf, uint64(total)*4)
	if err != nil {
		return nil, nil, err
	}
	widenMask(maskBytes, idxMask.AsInt64())

	return output, idxMask, nil
}

// MappedMaxUnpool scatters gradient through each cell's recorded winner tap,
// one invocation per (batch, channel) plane.
func (e *Engine) MappedMaxUnpool(gradOutput, idxMask, sampleMap *tensor.RawTensor, inputH, inputW, kernelSize int, ip interp.Interpolation) (*tensor.RawTensor, error) {
	if err := checkFloat32(gradOutput, sampleMap); err != nil {
		return nil, err
	}
	s := gradOutput.Shape()
	b, c, ho, wo := s[0], s[1], s[2], s[3]
	planes := b * c
	gradSize := uint64(planes*inputH*inputW) * 4

	gradIn, err := tensor.NewRaw(tensor.Shape{b, c, inputH, inputW}, tensor.Float32, tensor.WebGPU)
	if err != nil {
		return nil, err
	}

	gradOutBuf := e.createBuffer(gradOutput.Data(), wgpu.BufferUsageStorage)
	defer gradOutBuf.Release()
	maskBytes := narrowMask(idxMask.AsInt64())
	maskBuf := e.createBuffer(maskBytes, wgpu.BufferUsageStorage)
	defer maskBuf.Release()
	mapBuf := e.createBuffer(sampleMap.Data(), wgpu.BufferUsageStorage)
	defer mapBuf.Release()
	gradInBuf := e.createOutputBuffer(gradSize)
	defer gradInBuf.Release()
	paramsBuf := e.createUniformBuffer(packParams(planes, inputH, inputW, ho, wo, kernelSize, 1, ip))
	defer paramsBuf.Release()

	err = e.dispatch("mappedMaxUnpool", mappedUnpoolShader, []wgpu.BindGroupEntry{
		wgpu.BufferBindingEntry(0, gradOutBuf, 0, uint64(len(gradOutput.Data()))),
		wgpu.BufferBindingEntry(1, maskBuf, 0, uint64(len(maskBytes))),
		wgpu.BufferBindingEntry(2, mapBuf, 0, uint64(len(sampleMap.Data()))),
		wgpu.BufferBindingEntry(3, gradInBuf, 0, gradSize),
		wgpu.BufferBindingEntry(4, paramsBuf, 0, paramsSize),
	}, scatterWorkgroups(planes))
	if err != nil {
		return nil, err
	}

	gradBytes, err := e.readBuffer(gradInBuf, gradSize)
	if err != nil {
		return nil, err
	}
	copy(gradIn.Data(), gradBytes)

	return gradIn, nil
}

// WeightedMappedMaxPool is MappedMaxPool with each tap blended from
// externally weighted interpolation points.
func (e *Engine) WeightedMappedMaxPool(input, sampleMap, interpWeights *tensor.RawTensor, kernelSize int, ip interp.Interpolation) (*tensor.RawTensor, *tensor.RawTensor, error) {
	if err := checkFloat32(input, sampleMap, interpWeights); err != nil {
		return nil, nil, err
	}
	s := input.Shape()
	b, c, h, w := s[0], s[1], s[2], s[3]
	ms := sampleMap.Shape()
	ho, wo, p := ms[0], ms[1], ms[3]
	total := b * c * ho * wo

	output, err := tensor.NewRaw(tensor.Shape{b, c, ho, wo}, tensor.Float32, tensor.WebGPU)
	if err != nil {
		return nil, nil, err
	}
	idxMask, err := tensor.NewRaw(tensor.Shape{b, c, ho, wo}, tensor.Int64, tensor.WebGPU)
	if err != nil {
		return nil, nil, err
	}

	inBuf := e.createBuffer(input.Data(), wgpu.BufferUsageStorage)
	defer inBuf.Release()
	mapBuf := e.createBuffer(sampleMap.Data(), wgpu.BufferUsageStorage)
	defer mapBuf.Release()
	wtsBuf := e.createBuffer(interpWeights.Data(), wgpu.BufferUsageStorage)
	defer wtsBuf.Release()
	outBuf := e.createOutputBuffer(uint64(total) * 4)
	defer outBuf.Release()
	maskBuf := e.createOutputBuffer(uint64(total) * 4)
	defer maskBuf.Release()
	paramsBuf := e.createUniformBuffer(packParams(total, h, w, ho, wo, kernelSize, p, ip))
	defer paramsBuf.Release()

	err = e.dispatch("weightedMappedMaxPool", weightedPoolShader, []wgpu.BindGroupEntry{
		wgpu.BufferBindingEntry(0, inBuf, 0, uint64(len(input.Data()))),
		wgpu.BufferBindingEntry(1, mapBuf, 0, uint64(len(sampleMap.Data()))),
		wgpu.BufferBindingEntry(2, wtsBuf, 0, uint64(len(interpWeights.Data()))),
		wgpu.BufferBindingEntry(3, outBuf, 0, uint64(total)*4),
		wgpu.BufferBindingEntry(4, maskBuf, 0, uint64(total)*4),
		wgpu.BufferBindingEntry(5, paramsBuf, 0, paramsSize),
	}, gatherWorkgroups(total))
	if err != nil {
		return nil, nil, err
	}

	outBytes, err := e.readBuffer(outBuf, uint64(total)*4)
	if err != nil {
		return nil, nil, err
	}
	copy(output.Data(), outBytes)

	maskBytes, err := e.readBuffer(maskBuf, uint64(total)*4)
	if err != nil {
		return nil, nil, err
	}
	widenMask(maskBytes, idxMask.AsInt64())

	return output, idxMask, nil
}

// WeightedMappedMaxUnpool is the adjoint of WeightedMappedMaxPool.
func (e *Engine) WeightedMappedMaxUnpool(gradOutput, idxMask, sampleMap, interpWeights *tensor.RawTensor, inputH, inputW, kernelSize int, ip interp.Interpolation) (*tensor.RawTensor, error) {
	if err := checkFloat32(gradOutput, sampleMap, interpWeights); err != nil {
		return nil, err
	}
	s := gradOutput.Shape()
	b, c, ho, wo := s[0], s[1], s[2], s[3]
	p := sampleMap.Shape()[3]
	planes := b * c
	gradSize := uint64(planes*inputH*inputW) * 4

	gradIn, err := tensor.NewRaw(tensor.Shape{b, c, inputH, inputW}, tensor.Float32, tensor.WebGPU)
	if err != nil {
		return nil, err
	}

	gradOutBuf := e.createBuffer(gradOutput.Data(), wgpu.BufferUsageStorage)
	defer gradOutBuf.Release()
	maskBytes := narrowMask(idxMask.AsInt64())
	maskBuf := e.createBuffer(maskBytes, wgpu.BufferUsageStorage)
	defer maskBuf.Release()
	mapBuf := e.createBuffer(sampleMap.Data(), wgpu.BufferUsageStorage)
	defer mapBuf.Release()
	wtsBuf := e.createBuffer(interpWeights.Data(), wgpu.BufferUsageStorage)
	defer wtsBuf.Release()
	gradInBuf := e.createOutputBuffer(gradSize)
	defer gradInBuf.Release()
	paramsBuf := e.createUniformBuffer(packParams(planes, inputH, inputW, ho, wo, kernelSize, p, ip))
	defer paramsBuf.Release()

	err = e.dispatch("weightedMappedMaxUnpool", weightedUnpoolShader, []wgpu.BindGroupEntry{
		wgpu.BufferBindingEntry(0, gradOutBuf, 0, uint64(len(gradOutput.Data()))),
		wgpu.BufferBindingEntry(1, maskBuf, 0, uint64(len(maskBytes))),
		wgpu.BufferBindingEntry(2, mapBuf, 0, uint64(len(sampleMap.Data()))),
		wgpu.BufferBindingEntry(3, wtsBuf, 0, uint64(len(interpWeights.Data()))),
		wgpu.BufferBindingEntry(4, gradInBuf, 0, gradSize),
		wgpu.BufferBindingEntry(5, paramsBuf, 0, paramsSize),
	}, scatterWorkgroups(planes))
	if err != nil {
		return nil, err
	}

	gradBytes, err := e.readBuffer(gradInBuf, gradSize)
	if err != nil {
		return nil, err
	}
	copy(gradIn.Data(), gradBytes)

	return gradIn, nil
}

// ResampleToMap gathers one interpolated sample per output cell.
func (e *Engine) ResampleToMap(input, sampleMap *tensor.RawTensor, outH, outW int, ip interp.Interpolation) (*tensor.RawTensor, error) {
	if err := checkFloat32(input, sampleMap); err != nil {
		return nil, err
	}
	s := input.Shape()
	b, c, h, w := s[0], s[1], s[2], s[3]
	total := b * c * outH * outW

	output, err := tensor.NewRaw(tensor.Shape{b, c, outH, outW}, tensor.Float32, tensor.WebGPU)
	if err != nil {
		return nil, err
	}

	inBuf := e.createBuffer(input.Data(), wgpu.BufferUsageStorage)
	defer inBuf.Release()
	mapBuf := e.createBuffer(sampleMap.Data(), wgpu.BufferUsageStorage)
	defer mapBuf.Release()
	outBuf := e.createOutputBuffer(uint64(total) * 4)
	defer outBuf.Release()
	paramsBuf := e.createUniformBuffer(packParams(total, h, w, outH, outW, 1, 1, ip))
	defer paramsBuf.Release()

	err = e.dispatch("resampleToMap", resampleShader, []wgpu.BindGroupEntry{
		wgpu.BufferBindingEntry(0, inBuf, 0, uint64(len(input.Data()))),
		wgpu.BufferBindingEntry(1, mapBuf, 0, uint64(len(sampleMap.Data()))),
		wgpu.BufferBindingEntry(2, outBuf, 0, uint64(total)*4),
		wgpu.BufferBindingEntry(3, paramsBuf, 0, paramsSize),
	}, gatherWorkgroups(total))
	if err != nil {
		return nil, err
	}

	outBytes, err := e.readBuffer(outBuf, uint64(total)*4)
	if err != nil {
		return nil, err
	}
	copy(output.Data(), outBytes)

	return output, nil
}

// ResampleFromMap scatters gradient back through the map, one invocation per
// (batch, channel) plane.
func (e *Engine) ResampleFromMap(gradOutput, sampleMap *tensor.RawTensor, inputH, inputW int, ip interp.Interpolation) (*tensor.RawTensor, error) {
	if err := checkFloat32(gradOutput, sampleMap); err != nil {
		return nil, err
	}
	s := gradOutput.Shape()
	b, c, ho, wo := s[0], s[1], s[2], s[3]
	planes := b * c
	gradSize := uint64(planes*inputH*inputW) * 4

	gradIn, err := tensor.NewRaw(tensor.Shape{b, c, inputH, inputW}, tensor.Float32, tensor.WebGPU)
	if err != nil {
		return nil, err
	}

	gradOutBuf := e.createBuffer(gradOutput.Data(), wgpu.BufferUsageStorage)
	defer gradOutBuf.Release()
	mapBuf := e.createBuffer(sampleMap.Data(), wgpu.BufferUsageStorage)
	defer mapBuf.Release()
	gradInBuf := e.createOutputBuffer(gradSize)
	defer gradInBuf.Release()
	paramsBuf := e.createUniformBuffer(packParams(planes, inputH, inputW, ho, wo, 1, 1, ip))
	defer paramsBuf.Release()

	err = e.dispatch("resampleFromMap", unresampleShader, []wgpu.BindGroupEntry{
		wgpu.BufferBindingEntry(0, gradOutBuf, 0, uint64(len(gradOutput.Data()))),
		wgpu.BufferBindingEntry(1, mapBuf, 0, uint64(len(sampleMap.Data()))),
		wgpu.BufferBindingEntry(2, gradInBuf, 0, gradSize),
		wgpu.BufferBindingEntry(3, paramsBuf, 0, paramsSize),
	}, scatterWorkgroups(planes))
	if err != nil {
		return nil, err
	}

	gradBytes, err := e.readBuffer(gradInBuf, gradSize)
	if err != nil {
		return nil, err
	}
	copy(gradIn.Data(), gradBytes)

	return gradIn, nil
}

// WeightedResampleToMap gathers a weighted blend of p interpolation points
// per output cell.
func (e *Engine) WeightedResampleToMap(input, sampleMap, interpWeights *tensor.RawTensor, outH, outW int, ip interp.Interpolation) (*tensor.RawTensor, error) {
	if err := checkFloat32(input, sampleMap, interpWeights); err != nil {
		return nil, err
	}
	s := input.Shape()
	b, c, h, w := s[0], s[1], s[2], s[3]
	p := sampleMap.Shape()[2]
	total := b * c * outH * outW

	output, err := tensor.NewRaw(tensor.Shape{b, c, outH, outW}, tensor.Float32, tensor.WebGPU)
	if err != nil {
		return nil, err
	}

	inBuf := e.createBuffer(input.Data(), wgpu.BufferUsageStorage)
	defer inBuf.Release()
	mapBuf := e.createBuffer(sampleMap.Data(), wgpu.BufferUsageStorage)
	defer mapBuf.Release()
	wtsBuf := e.createBuffer(interpWeights.Data(), wgpu.BufferUsageStorage)
	defer wtsBuf.Release()
	outBuf := e.createOutputBuffer(uint64(total) * 4)
	defer outBuf.Release()
	paramsBuf := e.createUniformBuffer(packParams(total, h, w, outH, outW, 1, p, ip))
	defer paramsBuf.Release()

	err = e.dispatch("weightedResampleToMap", weightedResampleShader, []wgpu.BindGroupEntry{
		wgpu.BufferBindingEntry(0, inBuf, 0, uint64(len(input.Data()))),
		wgpu.BufferBindingEntry(1, mapBuf, 0, uint64(len(sampleMap.Data()))),
		wgpu.BufferBindingEntry(2, wtsBuf, 0, uint64(len(interpWeights.Data()))),
		wgpu.BufferBindingEntry(3, outBuf, 0, uint64(total)*4),
		wgpu.BufferBindingEntry(4, paramsBuf, 0, paramsSize),
	}, gatherWorkgroups(total))
	if err != nil {
		return nil, err
	}

	outBytes, err := e.readBuffer(outBuf, uint64(total)*4)
	if err != nil {
		return nil, err
	}
	copy(output.Data(), outBytes)

	return output, nil
}

// WeightedResampleFromMap is the adjoint of WeightedResampleToMap.
func (e *Engine) WeightedResampleFromMap(gradOutput, sampleMap, interpWeights *tensor.RawTensor, inputH, inputW int, ip interp.Interpolation) (*tensor.RawTensor, error) {
	if err := checkFloat32(gradOutput, sampleMap, interpWeights); err != nil {
		return nil, err
	}
	s := gradOutput.Shape()
	b, c, ho, wo := s[0], s[1], s[2], s[3]
	p := sampleMap.Shape()[2]
	planes := b * c
	gradSize := uint64(planes*inputH*inputW) * 4

	gradIn, err := tensor.NewRaw(tensor.Shape{b, c, inputH, inputW}, tensor.Float32, tensor.WebGPU)
	if err != nil {
		return nil, err
	}

	gradOutBuf := e.createBuffer(gradOutput.Data(), wgpu.BufferUsageStorage)
	defer gradOutBuf.Release()
	mapBuf := e.createBuffer(sampleMap.Data(), wgpu.BufferUsageStorage)
	defer mapBuf.Release()
	wtsBuf := e.createBuffer(interpWeights.Data(), wgpu.BufferUsageStorage)
	defer wtsBuf.Release()
	gradInBuf := e.createOutputBuffer(gradSize)
	defer gradInBuf.Release()
	paramsBuf := e.createUniformBuffer(packParams(planes, inputH, inputW, ho, wo, 1, p, ip))
	defer paramsBuf.Release()

	err = e.dispatch("weightedResampleFromMap", weightedUnresampleShader, []wgpu.BindGroupEntry{
		wgpu.BufferBindingEntry(0, gradOutBuf, 0, uint64(len(gradOutput.Data()))),
		wgpu.BufferBindingEntry(1, mapBuf, 0, uint64(len(sampleMap.Data()))),
		wgpu.BufferBindingEntry(2, wtsBuf, 0, uint64(len(interpWeights.Data()))),
		wgpu.BufferBindingEntry(3, gradInBuf, 0, gradSize),
		wgpu.BufferBindingEntry(4, paramsBuf, 0, paramsSize),
	}, scatterWorkgroups(planes))
	if err != nil {
		return nil, err
	}

	gradBytes, err := e.readBuffer(gradInBuf, gradSize)
	if err != nil {
		return nil, err
	}
	copy(gradIn.Data(), gradBytes)

	return gradIn, nil
}
