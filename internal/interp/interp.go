// Package interp resolves fractional sample coordinates into integer source
// pixels and blending weights.
//
// A sample map addresses the input grid in fractional (x, y) units, x along
// the width axis. Each interpolation policy turns one fractional coordinate
// into an ordered set of at most MaxTaps (pixel, weight) pairs whose weights
// sum to 1 while all contributing pixels are in bounds. Contributing pixels
// that fall outside the grid are dropped and the remaining weights are NOT
// renormalized: points sampling past the boundary simply contribute less,
// down to nothing. The forward and adjoint kernels both resolve through this
// package, so the boundary behavior matches in the two directions exactly.
package interp

import (
	"fmt"
	"math"
)

// Float constrains the floating-point element types the engines operate on.
type Float interface {
	~float32 | ~float64
}

// Interpolation selects the rule converting a fractional coordinate into
// weighted integer source pixels.
type Interpolation int

// Supported interpolation policies.
const (
	// Nearest rounds each axis half-up to a single pixel with weight 1.
	Nearest Interpolation = iota
	// Bilinear blends the surrounding pixel quad with area weights.
	Bilinear
	// BiSpherical is Bilinear with the x axis wrapped modulo the grid width,
	// for equirectangular grids where the left and right edges meet at the
	// longitude seam. The y axis keeps the drop policy.
	BiSpherical
)

// String returns a human-readable policy name.
func (ip Interpolation) String() string {
	switch ip {
	case Nearest:
		return "nearest"
	case Bilinear:
		return "bilinear"
	case BiSpherical:
		return "bispherical"
	default:
		return fmt.Sprintf("interpolation(%d)", int(ip))
	}
}

// Valid reports whether ip is a known policy.
func (ip Interpolation) Valid() bool {
	return ip >= Nearest && ip <= BiSpherical
}

// MaxTaps is the largest number of source pixels any policy resolves to
// (the bilinear quad). Resolve buffers are sized to this.
const MaxTaps = 4

// Tap is one resolved source pixel and its blending weight.
type Tap[T Float] struct {
	Y, X   int
	Weight T
}

// Resolve converts the fractional coordinate (x, y) on an h-by-w grid into
// in-bounds taps under the given policy, writing them into buf and returning
// the count. It is pure and allocation-free. A count of 0 means the
// coordinate lies entirely outside the grid and contributes nothing.
func Resolve[T Float](x, y T, h, w int, ip Interpolation, buf *[MaxTaps]Tap[T]) int {
	switch ip {
	case Nearest:
		px := int(math.Floor(float64(x) + 0.5))
		py := int(math.Floor(float64(y) + 0.5))
		if px < 0 || px >= w || py < 0 || py >= h {
			return 0
		}
		buf[0] = Tap[T]{Y: py, X: px, Weight: 1}
		return 1

	case Bilinear, BiSpherical:
		x0 := math.Floor(float64(x))
		y0 := math.Floor(float64(y))
		dx := float64(x) - x0
		dy := float64(y) - y0
		ix := int(x0)
		iy := int(y0)

		// Quad order: top-left, top-right, bottom-left, bottom-right.
		corners := [MaxTaps]struct {
			y, x int
			w    float64
		}{
			{iy, ix, (1 - dx) * (1 - dy)},
			{iy, ix + 1, dx * (1 - dy)},
			{iy + 1, ix, (1 - dx) * dy},
			{iy + 1, ix + 1, dx * dy},
		}

		n := 0
		for _, c := range corners {
			px := c.x
			if ip == BiSpherical {
				px = ((px % w) + w) % w
			}
			if px < 0 || px >= w || c.y < 0 || c.y >= h {
				continue
			}
			buf[n] = Tap[T]{Y: c.y, X: px, Weight: T(c.w)}
			n++
		}
		return n

	default:
		panic(fmt.Sprintf("interp: unknown policy %d", int(ip)))
	}
}
