package tensor

import "fmt"

// FromSlice creates a RawTensor on the given device from a Go slice.
// The slice length must match the shape's element count; data is copied.
func FromSlice[T DType](shape Shape, data []T, device Device) (*RawTensor, error) {
	if len(data) != shape.NumElements() {
		return nil, fmt.Errorf("data length %d does not match shape %v (%d elements)",
			len(data), shape, shape.NumElements())
	}

	var zero T
	raw, err := NewRaw(shape, inferDataType(zero), device)
	if err != nil {
		return nil, err
	}

	switch src := any(data).(type) {
	case []float32:
		copy(raw.AsFloat32(), src)
	case []float64:
		copy(raw.AsFloat64(), src)
	case []int64:
		copy(raw.AsInt64(), src)
	}
	return raw, nil
}

// inferDataType infers DataType from a generic type T.
func inferDataType[T DType](dummy T) DataType {
	switch any(dummy).(type) {
	case float32:
		return Float32
	case float64:
		return Float64
	case int64:
		return Int64
	default:
		panic("unsupported type")
	}
}
