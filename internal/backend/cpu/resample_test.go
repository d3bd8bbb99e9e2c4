package cpu

import (
	"math"
	"testing"

	"github.com/gridmap-ml/gridmap/internal/interp"
	"github.com/gridmap-ml/gridmap/internal/parallel"
	"github.com/gridmap-ml/gridmap/internal/tensor"
)

// TestResampleToMap_Nearest verifies a plain gather onto a smaller grid.
func TestResampleToMap_Nearest(t *testing.T) {
	e := New()
	input := ramp4x4(t)

	smap, _ := tensor.FromSlice(tensor.Shape{2, 2, 2}, []float32{
		0, 0,
		3, 0,
		0, 3,
		3, 3,
	}, tensor.CPU)

	output, err := e.ResampleToMap(input, smap, 2, 2, interp.Nearest)
	if err != nil {
		t.Fatalf("ResampleToMap: %v", err)
	}

	expected := []float32{0, 3, 12, 15}
	for i, want := range expected {
		if got := output.AsFloat32()[i]; got != want {
			t.Errorf("output[%d]: expected %.0f, got %.0f", i, want, got)
		}
	}
}

// TestResampleToMap_BilinearBoundary verifies the drop-without-renormalize
// policy attenuates samples hanging past the edge.
func TestResampleToMap_BilinearBoundary(t *testing.T) {
	e := New()
	data := []float32{2, 2, 2, 2}
	input, _ := tensor.FromSlice(tensor.Shape{1, 1, 2, 2}, data, tensor.CPU)

	// x = -0.5 drops the left half of the quad: only weight 0.5 survives.
	smap, _ := tensor.FromSlice(tensor.Shape{1, 1, 2}, []float32{-0.5, 0}, tensor.CPU)

	output, err := e.ResampleToMap(input, smap, 1, 1, interp.Bilinear)
	if err != nil {
		t.Fatalf("ResampleToMap: %v", err)
	}
	if got := output.AsFloat32()[0]; got != 1 {
		t.Errorf("expected attenuated value 1 (2 * 0.5), got %f", got)
	}
}

// TestResampleFromMap_ScatterAccumulates verifies the adjoint accumulates
// where map entries collide.
func TestResampleFromMap_ScatterAccumulates(t *testing.T) {
	e := New()

	// Three output cells, two of them hitting pixel (0, 1).
	smap, _ := tensor.FromSlice(tensor.Shape{1, 3, 2}, []float32{
		1, 0,
		1, 0,
		0, 1,
	}, tensor.CPU)
	gradOut, _ := tensor.FromSlice(tensor.Shape{1, 1, 1, 3}, []float32{1, 2, 4}, tensor.CPU)

	gradIn, err := e.ResampleFromMap(gradOut, smap, 2, 2, interp.Nearest)
	if err != nil {
		t.Fatalf("ResampleFromMap: %v", err)
	}

	expected := []float32{0, 3, 4, 0}
	for i, want := range expected {
		if got := gradIn.AsFloat32()[i]; got != want {
			t.Errorf("gradIn[%d]: expected %.0f, got %.0f", i, want, got)
		}
	}
}

// TestResample_AdjointIdentity verifies <Ax, y> == <x, A^T y> for random
// data under bilinear interpolation.
func TestResample_AdjointIdentity(t *testing.T) {
	e := New()

	const b, c, h, w, ho, wo = 1, 2, 6, 6, 4, 4
	xData := make([]float64, b*c*h*w)
	yData := make([]float64, b*c*ho*wo)
	state := uint64(1)
	next := func() float64 {
		state = state*6364136223846793005 + 1442695040888963407
		return float64(state>>11) / float64(1<<53)
	}
	for i := range xData {
		xData[i] = next()
	}
	for i := range yData {
		yData[i] = next()
	}
	mapData := make([]float64, ho*wo*2)
	for i := range mapData {
		mapData[i] = next()*7 - 0.5 // Some samples intentionally out of bounds.
	}

	x, _ := tensor.FromSlice(tensor.Shape{b, c, h, w}, xData, tensor.CPU)
	y, _ := tensor.FromSlice(tensor.Shape{b, c, ho, wo}, yData, tensor.CPU)
	smap, _ := tensor.FromSlice(tensor.Shape{ho, wo, 2}, mapData, tensor.CPU)

	ax, err := e.ResampleToMap(x, smap, ho, wo, interp.Bilinear)
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	aty, err := e.ResampleFromMap(y, smap, h, w, interp.Bilinear)
	if err != nil {
		t.Fatalf("adjoint: %v", err)
	}

	var lhs, rhs float64
	for i, v := range ax.AsFloat64() {
		lhs += v * y.AsFloat64()[i]
	}
	for i, v := range aty.AsFloat64() {
		rhs += v * x.AsFloat64()[i]
	}

	if math.Abs(lhs-rhs) > 1e-10*math.Max(1, math.Abs(lhs)) {
		t.Errorf("adjoint identity violated: <Ax,y>=%.15f, <x,Aty>=%.15f", lhs, rhs)
	}
}

// TestResampleFromMap_SerialParallelIdentical verifies scatter results are
// invariant to the execution strategy.
func TestResampleFromMap_SerialParallelIdentical(t *testing.T) {
	serial := NewWithConfig(parallel.Serial())
	par := NewWithConfig(parallel.Config{Enabled: true, NumWorkers: 8, MinChunkSize: 1})

	const b, c, h, w, ho, wo = 3, 4, 7, 7, 9, 9
	gData := make([]float32, b*c*ho*wo)
	for i := range gData {
		gData[i] = float32(i%17) * 0.25
	}
	mapData := make([]float32, ho*wo*2)
	for i := range mapData {
		mapData[i] = float32((i*31)%(w*2)) / 2.0
	}
	gradOut, _ := tensor.FromSlice(tensor.Shape{b, c, ho, wo}, gData, tensor.CPU)
	smap, _ := tensor.FromSlice(tensor.Shape{ho, wo, 2}, mapData, tensor.CPU)

	gs, err := serial.ResampleFromMap(gradOut, smap, h, w, interp.Bilinear)
	if err != nil {
		t.Fatalf("serial: %v", err)
	}
	gp, err := par.ResampleFromMap(gradOut, smap, h, w, interp.Bilinear)
	if err != nil {
		t.Fatalf("parallel: %v", err)
	}

	for i := range gs.AsFloat32() {
		if gs.AsFloat32()[i] != gp.AsFloat32()[i] {
			t.Fatalf("gradIn[%d] differs: serial %f, parallel %f",
				i, gs.AsFloat32()[i], gp.AsFloat32()[i])
		}
	}
}

// TestResampleToMap_BiSpherical verifies seam wrapping on an
// equirectangular-style grid.
func TestResampleToMap_BiSpherical(t *testing.T) {
	e := New()

	// 2x4 grid, top row 0..3.
	data := []float32{0, 1, 2, 3, 0, 0, 0, 0}
	input, _ := tensor.FromSlice(tensor.Shape{1, 1, 2, 4}, data, tensor.CPU)

	// x = 3.5 straddles the seam between columns 3 and 0.
	smap, _ := tensor.FromSlice(tensor.Shape{1, 1, 2}, []float32{3.5, 0}, tensor.CPU)

	output, err := e.ResampleToMap(input, smap, 1, 1, interp.BiSpherical)
	if err != nil {
		t.Fatalf("ResampleToMap: %v", err)
	}
	// 0.5*3 + 0.5*0 = 1.5 across the wrap.
	if got := output.AsFloat32()[0]; got != 1.5 {
		t.Errorf("expected 1.5 across the seam, got %f", got)
	}
}
