package tensor

import "testing"

// TestNewRaw_Basic verifies allocation, shape, and zero initialization.
func TestNewRaw_Basic(t *testing.T) {
	raw, err := NewRaw(Shape{2, 3, 4, 5}, Float32, CPU)
	if err != nil {
		t.Fatalf("NewRaw failed: %v", err)
	}

	if !raw.Shape().Equal(Shape{2, 3, 4, 5}) {
		t.Errorf("Shape: expected [2 3 4 5], got %v", raw.Shape())
	}
	if raw.NumElements() != 120 {
		t.Errorf("NumElements: expected 120, got %d", raw.NumElements())
	}
	if raw.ByteSize() != 480 {
		t.Errorf("ByteSize: expected 480, got %d", raw.ByteSize())
	}
	if raw.Device() != CPU {
		t.Errorf("Device: expected CPU, got %v", raw.Device())
	}

	// Fresh tensors must be zero-initialized (gradient grids rely on this).
	for i, v := range raw.AsFloat32() {
		if v != 0 {
			t.Fatalf("element %d not zero-initialized: %f", i, v)
		}
	}
}

// TestNewRaw_InvalidShape verifies shape validation.
func TestNewRaw_InvalidShape(t *testing.T) {
	if _, err := NewRaw(Shape{2, 0, 4}, Float32, CPU); err == nil {
		t.Error("expected error for zero dimension")
	}
	if _, err := NewRaw(Shape{-1, 4}, Float32, CPU); err == nil {
		t.Error("expected error for negative dimension")
	}
}

// TestRawTensor_TypedAccess verifies typed views share storage.
func TestRawTensor_TypedAccess(t *testing.T) {
	raw, _ := NewRaw(Shape{2, 2}, Float64, CPU)
	data := raw.AsFloat64()
	data[3] = 2.5

	if raw.AsFloat64()[3] != 2.5 {
		t.Error("typed view does not share storage")
	}

	defer func() {
		if recover() == nil {
			t.Error("expected panic for wrong dtype access")
		}
	}()
	raw.AsFloat32()
}

// TestRawTensor_Int64Mask verifies the index-mask dtype round trip.
func TestRawTensor_Int64Mask(t *testing.T) {
	mask, _ := NewRaw(Shape{1, 1, 2, 2}, Int64, CPU)
	m := mask.AsInt64()
	m[0], m[1], m[2], m[3] = 3, 0, 1, 2

	got := mask.AsInt64()
	for i, want := range []int64{3, 0, 1, 2} {
		if got[i] != want {
			t.Errorf("mask[%d]: expected %d, got %d", i, want, got[i])
		}
	}
}

// TestRawTensor_IsContiguous verifies freshly allocated tensors are contiguous.
func TestRawTensor_IsContiguous(t *testing.T) {
	raw, _ := NewRaw(Shape{4, 4}, Float32, CPU)
	if !raw.IsContiguous() {
		t.Error("fresh tensor should be contiguous")
	}

	// Corrupt strides to simulate a transposed view.
	raw.stride[0], raw.stride[1] = raw.stride[1], raw.stride[0]
	if raw.IsContiguous() {
		t.Error("transposed strides should not be contiguous")
	}
}

// TestFromSlice verifies slice round trip and length validation.
func TestFromSlice(t *testing.T) {
	raw, err := FromSlice(Shape{2, 2}, []float32{1, 2, 3, 4}, CPU)
	if err != nil {
		t.Fatalf("FromSlice failed: %v", err)
	}
	if raw.DType() != Float32 {
		t.Errorf("DType: expected float32, got %v", raw.DType())
	}
	if raw.AsFloat32()[2] != 3 {
		t.Errorf("expected 3, got %f", raw.AsFloat32()[2])
	}

	if _, err := FromSlice(Shape{2, 2}, []float32{1, 2}, CPU); err == nil {
		t.Error("expected error for length mismatch")
	}
}

// TestShape_ComputeStrides verifies row-major stride computation.
func TestShape_ComputeStrides(t *testing.T) {
	strides := Shape{2, 3, 4}.ComputeStrides()
	expected := []int{12, 4, 1}
	for i := range expected {
		if strides[i] != expected[i] {
			t.Errorf("strides[%d]: expected %d, got %d", i, expected[i], strides[i])
		}
	}
}
