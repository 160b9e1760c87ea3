package latent

import (
	"math"
	"path/filepath"
	"testing"

	"pose-projector/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromSamples(t *testing.T) {
	st, err := FromSamples([][]float64{{1, 0}, {3, 0}, {2, 3}})
	require.NoError(t, err)

	assert.InDeltaSlice(t, []float64{2, 1}, st.Mean, 1e-12)
	// Squared distances from (2, 1): 2, 2, 4.
	assert.InDelta(t, math.Sqrt(8.0/3), st.Std, 1e-12)
	assert.Equal(t, 3, st.Samples)
}

func TestFromSamplesErrors(t *testing.T) {
	_, err := FromSamples(nil)
	assert.Error(t, err)
	_, err = FromSamples([][]float64{{1, 2}, {1}})
	assert.Error(t, err)
}

func TestEstimateIsSeeded(t *testing.T) {
	gen := model.NewAffine(model.Info{ZDim: 6, WDim: 4, NumWs: 3, ImgChannels: 1, ImgResolution: 4}, 1)

	a, codes, err := Estimate(gen, 50, DefaultSeed)
	require.NoError(t, err)
	require.Len(t, codes, 50)
	assert.Len(t, codes[0], 4)

	b, _, err := Estimate(gen, 50, DefaultSeed)
	require.NoError(t, err)
	assert.Equal(t, a.Mean, b.Mean)
	assert.Equal(t, a.Std, b.Std)

	c, _, err := Estimate(gen, 50, DefaultSeed+1)
	require.NoError(t, err)
	assert.NotEqual(t, a.Mean, c.Mean)
}

func TestSampleRejectsZero(t *testing.T) {
	gen := model.NewAffine(model.Info{ZDim: 2, WDim: 2, NumWs: 1, ImgChannels: 1, ImgResolution: 4}, 1)
	_, err := Sample(gen, 0, 1)
	assert.Error(t, err)
}

func TestCheckpointRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "w_avg.npz")
	codes := [][]float64{{0.25, -1}, {2, 0.5}, {1, 1}}
	require.NoError(t, SaveCheckpoint(path, codes))

	loaded, err := LoadCheckpoint(path)
	require.NoError(t, err)
	require.Len(t, loaded, 3)
	for i := range codes {
		assert.InDeltaSlice(t, codes[i], loaded[i], 1e-7)
	}

	want, err := FromSamples(codes)
	require.NoError(t, err)
	got, err := FromSamples(loaded)
	require.NoError(t, err)
	assert.InDelta(t, want.Std, got.Std, 1e-6)
}
