// Package tensor provides a small dense float64 tensor used for images,
// feature maps and noise buffers throughout the projector.
package tensor

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// Tensor is a dense row-major tensor. Images are stored as [C, H, W].
type Tensor struct {
	Shape []int
	Data  []float64
}

// BackwardFunc maps the gradient of a function's output to the gradient of
// its input.
type BackwardFunc func(grad *Tensor) *Tensor

// New creates a zero-initialized tensor with the given shape.
func New(shape ...int) *Tensor {
	n := 1
	for _, d := range shape {
		n *= d
	}
	s := make([]int, len(shape))
	copy(s, shape)
	return &Tensor{Shape: s, Data: make([]float64, n)}
}

// FromData wraps data in a tensor of the given shape.
func FromData(data []float64, shape ...int) (*Tensor, error) {
	n := 1
	for _, d := range shape {
		n *= d
	}
	if n != len(data) {
		return nil, fmt.Errorf("shape %v needs %d values, got %d", shape, n, len(data))
	}
	s := make([]int, len(shape))
	copy(s, shape)
	return &Tensor{Shape: s, Data: data}, nil
}

// Len returns the number of elements.
func (t *Tensor) Len() int {
	return len(t.Data)
}

// Dims returns the channel, height and width of a [C, H, W] tensor.
func (t *Tensor) Dims() (c, h, w int) {
	switch len(t.Shape) {
	case 2:
		return 1, t.Shape[0], t.Shape[1]
	case 3:
		return t.Shape[0], t.Shape[1], t.Shape[2]
	}
	return 0, 0, 0
}

// Index converts [c, y, x] indices into a flat offset.
func (t *Tensor) Index(c, y, x int) int {
	_, h, w := t.Dims()
	return (c*h+y)*w + x
}

// At returns the value at [c, y, x].
func (t *Tensor) At(c, y, x int) float64 {
	return t.Data[t.Index(c, y, x)]
}

// Set stores v at [c, y, x].
func (t *Tensor) Set(c, y, x int, v float64) {
	t.Data[t.Index(c, y, x)] = v
}

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	out := New(t.Shape...)
	copy(out.Data, t.Data)
	return out
}

// ZerosLike returns a zero tensor with the same shape.
func (t *Tensor) ZerosLike() *Tensor {
	return New(t.Shape...)
}

// ShapeEqual compares two shapes.
func ShapeEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Mean returns the mean of all elements.
func (t *Tensor) Mean() float64 {
	if len(t.Data) == 0 {
		return 0
	}
	return floats.Sum(t.Data) / float64(len(t.Data))
}

// MeanSquare returns the mean of squared elements.
func (t *Tensor) MeanSquare() float64 {
	if len(t.Data) == 0 {
		return 0
	}
	return floats.Dot(t.Data, t.Data) / float64(len(t.Data))
}

// Scale multiplies every element in place.
func (t *Tensor) Scale(s float64) *Tensor {
	floats.Scale(s, t.Data)
	return t
}

// AddScaled adds s*o in place.
func (t *Tensor) AddScaled(s float64, o *Tensor) *Tensor {
	floats.AddScaled(t.Data, s, o.Data)
	return t
}

// Add adds o in place. A nil o is treated as zero.
func (t *Tensor) Add(o *Tensor) *Tensor {
	if o == nil {
		return t
	}
	floats.Add(t.Data, o.Data)
	return t
}

// SquaredDistance returns sum((a-b)^2) and the gradient of that sum with
// respect to b.
func SquaredDistance(a, b *Tensor) (float64, *Tensor) {
	diff := make([]float64, len(b.Data))
	floats.SubTo(diff, b.Data, a.Data)
	sum := floats.Dot(diff, diff)
	floats.Scale(2, diff)
	return sum, &Tensor{Shape: append([]int(nil), b.Shape...), Data: diff}
}

// MeanSquaredError returns mean((a-b)^2) and its gradient with respect to b.
func MeanSquaredError(a, b *Tensor) (float64, *Tensor) {
	sum, grad := SquaredDistance(a, b)
	n := float64(len(b.Data))
	grad.Scale(1 / n)
	return sum / n, grad
}

// Roll circularly shifts a [C, H, W] tensor by shift pixels along the given
// spatial axis (1 = rows, 2 = columns), so out[..., i] = in[..., i-shift].
func Roll(t *Tensor, axis, shift int) *Tensor {
	c, h, w := t.Dims()
	out := t.ZerosLike()
	for ch := 0; ch < c; ch++ {
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				sy, sx := y, x
				if axis == 1 {
					sy = ((y-shift)%h + h) % h
				} else {
					sx = ((x-shift)%w + w) % w
				}
				out.Data[(ch*h+y)*w+x] = t.Data[(ch*h+sy)*w+sx]
			}
		}
	}
	return out
}
