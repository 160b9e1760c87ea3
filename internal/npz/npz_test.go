package npz

import (
	"path/filepath"
	"testing"

	npyz "github.com/sbinet/npyio/npz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "w.npz")
	in := map[string]Array{
		"w":    {Shape: []int{1, 2, 3}, Data: []float64{0.5, -1, 2, 3.25, 0, 1e-3}},
		"bias": {Shape: []int{2}, Data: []float64{1, 2}},
	}
	require.NoError(t, Write(path, in))

	out, err := Read(path)
	require.NoError(t, err)
	require.Contains(t, out, "w")
	assert.Equal(t, []int{1, 2, 3}, out["w"].Shape)
	assert.InDeltaSlice(t, in["w"].Data, out["w"].Data, 1e-7)
	assert.Equal(t, []int{2}, out["bias"].Shape)
	assert.Equal(t, []float64{1, 2}, out["bias"].Data)
}

func TestWriteKeepsRowMajorOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "codes.npz")
	data := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
	require.NoError(t, Write(path, map[string]Array{"w": {Shape: []int{2, 3, 2}, Data: data}}))

	out, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3, 2}, out["w"].Shape)
	assert.Equal(t, data, out["w"].Data)
}

func TestWriteShapeMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.npz")
	err := Write(path, map[string]Array{"w": {Shape: []int{2, 2}, Data: []float64{1}}})
	assert.Error(t, err)
	assert.NoFileExists(t, path)
}

func TestReadFloat64(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f8.npz")
	zw, err := npyz.Create(path)
	require.NoError(t, err)
	require.NoError(t, zw.Write("a", []float64{1.5, -2}))
	require.NoError(t, zw.Close())

	out, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, []int{2}, out["a"].Shape)
	assert.Equal(t, []float64{1.5, -2}, out["a"].Data)
}

func TestReadRejectsIntegerArrays(t *testing.T) {
	path := filepath.Join(t.TempDir(), "i4.npz")
	zw, err := npyz.Create(path)
	require.NoError(t, err)
	require.NoError(t, zw.Write("ids", []int32{1, 2, 3}))
	require.NoError(t, zw.Close())

	_, err = Read(path)
	assert.Error(t, err)
}
