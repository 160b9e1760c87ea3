package noise

import (
	"math/rand"
	"testing"

	"pose-projector/pkg/tensor"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func checkerboard(side int) *tensor.Tensor {
	t := tensor.New(side, side)
	for y := 0; y < side; y++ {
		for x := 0; x < side; x++ {
			if (x+y)%2 == 0 {
				t.Data[y*side+x] = 1
			} else {
				t.Data[y*side+x] = -1
			}
		}
	}
	return t
}

func TestRegularizeCheckerboard(t *testing.T) {
	// A 4x4 checkerboard anti-correlates with both shifts: each mean is -1.
	total, grads := Regularize(map[string]*tensor.Tensor{"b4": checkerboard(4)})
	assert.InDelta(t, 2.0, total, 1e-12)
	require.Contains(t, grads, "b4")
	assert.Equal(t, []int{4, 4}, grads["b4"].Shape)
}

func TestRegularizeZeros(t *testing.T) {
	total, grads := Regularize(map[string]*tensor.Tensor{
		"b4":  tensor.New(4, 4),
		"b32": tensor.New(32, 32),
	})
	assert.Equal(t, 0.0, total)
	for _, g := range grads {
		for _, v := range g.Data {
			assert.Equal(t, 0.0, v)
		}
	}
}

// blocks returns a side x side map of +-1 squares of the given size, signed
// like a checkerboard. Average pooling keeps it a block pattern until the
// blocks shrink to single pixels.
func blocks(side, block int) *tensor.Tensor {
	t := tensor.New(side, side)
	for y := 0; y < side; y++ {
		for x := 0; x < side; x++ {
			if (x/block+y/block)%2 == 0 {
				t.Data[y*side+x] = 1
			} else {
				t.Data[y*side+x] = -1
			}
		}
	}
	return t
}

func TestRegularizePyramidIncludesMinSide(t *testing.T) {
	// 16x16 blocks: each shift mean is (side-4)/side at scales 32, 16 and 8,
	// giving 2*0.875^2 + 2*0.75^2 + 2*0.5^2. Scale 4 would add zero.
	total, _ := Regularize(map[string]*tensor.Tensor{"b32": blocks(32, 16)})
	assert.InDelta(t, 1.53125+1.125+0.5, total, 1e-12)
}

func TestRegularizePyramidStopsAtMinSide(t *testing.T) {
	// 8x8 blocks: scales 32, 16 and 8 give 1.125, 0.5 and 0. A 4x4 scale
	// would be a pixel checkerboard and add 2.
	total, _ := Regularize(map[string]*tensor.Tensor{"b32": blocks(32, 8)})
	assert.InDelta(t, 1.125+0.5, total, 1e-12)

	// A buffer already at the minimum side is scored once.
	small, _ := Regularize(map[string]*tensor.Tensor{"b8": blocks(8, 2)})
	assert.InDelta(t, 0.0, small, 1e-12)
}

func TestRegularizeGradientMatchesFiniteDifference(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	buf := tensor.New(16, 16)
	for i := range buf.Data {
		buf.Data[i] = rng.NormFloat64()
	}
	_, grads := Regularize(map[string]*tensor.Tensor{"b16": buf})

	const h = 1e-6
	for _, i := range []int{0, 17, 100, 255} {
		orig := buf.Data[i]
		buf.Data[i] = orig + h
		up, _ := Regularize(map[string]*tensor.Tensor{"b16": buf})
		buf.Data[i] = orig - h
		down, _ := Regularize(map[string]*tensor.Tensor{"b16": buf})
		buf.Data[i] = orig
		assert.InDelta(t, (up-down)/(2*h), grads["b16"].Data[i], 1e-6, "index %d", i)
	}
}

func TestNormalize(t *testing.T) {
	buf, _ := tensor.FromData([]float64{1, 2, 3, 4, 5, 6, 7, 8, 9}, 3, 3)
	Normalize(buf)
	assert.InDelta(t, 0.0, buf.Mean(), 1e-12)
	assert.InDelta(t, 1.0, buf.MeanSquare(), 1e-12)

	flat, _ := tensor.FromData([]float64{2, 2, 2, 2}, 2, 2)
	Normalize(flat)
	assert.Equal(t, []float64{0, 0, 0, 0}, flat.Data)
}
