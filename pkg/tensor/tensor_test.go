package tensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromDataShapeMismatch(t *testing.T) {
	_, err := FromData([]float64{1, 2, 3}, 2, 2)
	assert.Error(t, err)

	x, err := FromData([]float64{1, 2, 3, 4}, 1, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, 4.0, x.At(0, 1, 1))
}

func TestSquaredDistanceGradient(t *testing.T) {
	a, _ := FromData([]float64{1, 2, 3}, 3)
	b, _ := FromData([]float64{2, 2, 5}, 3)

	d, g := SquaredDistance(a, b)
	assert.Equal(t, 5.0, d)
	assert.Equal(t, []float64{2, 0, 4}, g.Data)

	m, gm := MeanSquaredError(a, b)
	assert.InDelta(t, 5.0/3, m, 1e-12)
	assert.InDeltaSlice(t, []float64{2.0 / 3, 0, 4.0 / 3}, gm.Data, 1e-12)
}

func TestRoll(t *testing.T) {
	x, _ := FromData([]float64{
		1, 2, 3,
		4, 5, 6,
	}, 1, 2, 3)

	cols := Roll(x, 2, 1)
	assert.Equal(t, []float64{3, 1, 2, 6, 4, 5}, cols.Data)

	back := Roll(x, 2, -1)
	assert.Equal(t, []float64{2, 3, 1, 5, 6, 4}, back.Data)

	rows := Roll(x, 1, 1)
	assert.Equal(t, []float64{4, 5, 6, 1, 2, 3}, rows.Data)

	flat, _ := FromData([]float64{1, 2, 3, 4}, 2, 2)
	assert.Equal(t, []int{2, 2}, Roll(flat, 1, 1).Shape)
	assert.Equal(t, []float64{3, 4, 1, 2}, Roll(flat, 1, 1).Data)
}

func TestHalfPoolOddSide(t *testing.T) {
	// 9x9 ramp: fixed 2x2 windows, the ninth row and column are dropped.
	ramp := New(9, 9)
	for i := range ramp.Data {
		ramp.Data[i] = float64(i)
	}
	pooled, back := HalfPool(ramp)
	assert.Equal(t, []int{4, 4}, pooled.Shape)
	assert.Equal(t, 5.0, pooled.Data[0])
	assert.Equal(t, 11.0, pooled.Data[3])

	g := New(4, 4)
	for i := range g.Data {
		g.Data[i] = 4
	}
	in := back(g)
	assert.Equal(t, 1.0, in.Data[0])
	assert.Equal(t, 0.0, in.Data[8])
	assert.Equal(t, 0.0, in.Data[8*9])
}

func TestAreaResizeAverages(t *testing.T) {
	x, _ := FromData([]float64{
		1, 3, 5, 7,
		1, 3, 5, 7,
	}, 1, 2, 4)

	y, back := AreaResize(x, 1, 2)
	assert.Equal(t, []int{1, 1, 2}, y.Shape)
	assert.Equal(t, []float64{2, 6}, y.Data)

	g, _ := FromData([]float64{4, 8}, 1, 1, 2)
	assert.Equal(t, []float64{1, 1, 2, 2, 1, 1, 2, 2}, back(g).Data)
}

func TestFitWithin(t *testing.T) {
	small := New(3, 8, 8)
	out, back := FitWithin(small, 8)
	assert.Same(t, small, out)
	g := New(3, 8, 8)
	assert.Same(t, g, back(g))

	big := New(3, 16, 8)
	out, _ = FitWithin(big, 8)
	assert.Equal(t, []int{3, 8, 4}, out.Shape)
}

func TestAddNil(t *testing.T) {
	x, _ := FromData([]float64{1, 2}, 2)
	x.Add(nil).Scale(2)
	assert.Equal(t, []float64{2, 4}, x.Data)
}
