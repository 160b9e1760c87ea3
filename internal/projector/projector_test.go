package projector

import (
	"math"
	"testing"

	"pose-projector/internal/features"
	"pose-projector/internal/latent"
	"pose-projector/internal/model"
	"pose-projector/pkg/tensor"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testInfo = model.Info{ZDim: 4, WDim: 3, NumWs: 2, ImgChannels: 3, ImgResolution: 8}

type fixture struct {
	gen    *model.Affine
	ext    *features.Extractor
	target *tensor.Tensor
	stats  latent.Stats
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	gen := model.NewAffine(testInfo, 11)
	stats, _, err := latent.Estimate(gen, 64, latent.DefaultSeed)
	require.NoError(t, err)

	syn, err := gen.Synthesize(model.SynthesisInput{
		Ws:   model.Broadcast([]float64{0.8, -0.4, 0.6}, testInfo.NumWs),
		Mode: model.NoiseNone,
	})
	require.NoError(t, err)
	target := syn.Image.Clone()
	for i, v := range target.Data {
		target.Data[i] = (v + 1) * 127.5
	}

	return fixture{
		gen:    gen,
		ext:    features.New(model.NewConvNet(3, 1)),
		target: target,
		stats:  stats,
	}
}

func TestProjectSingleStep(t *testing.T) {
	f := newFixture(t)
	res, err := Project(f.gen, f.ext, f.target, nil, f.stats, DefaultConfig().WithSteps(1))
	require.NoError(t, err)

	require.Equal(t, 1, res.Trajectory.Len())
	last := res.Trajectory.Last()
	require.Len(t, last, testInfo.NumWs)
	assert.Len(t, last[0], testInfo.WDim)
	assert.Equal(t, last[0], last[1])
	// The learning rate of step 0 is zero, so w has not moved.
	assert.InDeltaSlice(t, f.stats.Mean, last[0], 1e-12)
	assert.Equal(t, 0.0, res.Final().LR)
}

func TestProjectIsDeterministic(t *testing.T) {
	f := newFixture(t)
	cfg := DefaultConfig().WithSteps(12)

	a, err := Project(f.gen, f.ext, f.target, nil, f.stats, cfg)
	require.NoError(t, err)
	b, err := Project(f.gen, f.ext, f.target, nil, f.stats, cfg)
	require.NoError(t, err)
	assert.Equal(t, a.Trajectory.Steps, b.Trajectory.Steps)
	assert.Equal(t, a.Losses, b.Losses)

	c, err := Project(f.gen, f.ext, f.target, nil, f.stats, cfg.WithSeed(cfg.Seed+1))
	require.NoError(t, err)
	assert.NotEqual(t, a.Trajectory.Steps, c.Trajectory.Steps)
}

func TestProjectRenormalizesNoiseEveryStep(t *testing.T) {
	f := newFixture(t)
	for steps := 1; steps <= 3; steps++ {
		res, err := Project(f.gen, f.ext, f.target, nil, f.stats, DefaultConfig().WithSteps(steps))
		require.NoError(t, err)

		require.Len(t, res.Noise, len(f.gen.NoiseBuffers()))
		for name, buf := range res.Noise {
			assert.InDelta(t, 0.0, buf.Mean(), 1e-9, "%s after %d steps", name, steps)
			assert.InDelta(t, 1.0, buf.MeanSquare(), 1e-9, "%s after %d steps", name, steps)
		}
	}
}

func TestProjectLeavesGeneratorUntouched(t *testing.T) {
	f := newFixture(t)
	before := append([]float64(nil), f.gen.NoiseConst[model.NoiseName(8)]...)
	_, err := Project(f.gen, f.ext, f.target, nil, f.stats, DefaultConfig().WithSteps(3))
	require.NoError(t, err)
	assert.Equal(t, before, f.gen.NoiseConst[model.NoiseName(8)])
}

func TestProjectRejectsWrongTarget(t *testing.T) {
	f := newFixture(t)
	_, err := Project(f.gen, f.ext, tensor.New(3, 16, 16), nil, f.stats, DefaultConfig().WithSteps(1))
	assert.ErrorIs(t, err, ErrTargetShape)

	_, err = Project(f.gen, f.ext, tensor.New(1, 8, 8), nil, f.stats, DefaultConfig().WithSteps(1))
	assert.ErrorIs(t, err, ErrTargetShape)
}

func TestProjectWithPoseAndFeatureLoss(t *testing.T) {
	f := newFixture(t)
	pose := tensor.New(17, 64, 64)
	pose.Set(0, 32, 32, 0.1)

	cfg := DefaultConfig().WithSteps(4).WithFeatureLoss(true)
	res, err := Project(f.gen, f.ext, f.target, pose, f.stats, cfg)
	require.NoError(t, err)
	require.Len(t, res.Losses, 4)
	for _, l := range res.Losses {
		assert.False(t, math.IsNaN(l.Loss))
		assert.GreaterOrEqual(t, l.Loss, l.Dist)
	}

	cfg.LegacyFeatureLoss = true
	legacy, err := Project(f.gen, f.ext, f.target, pose, f.stats, cfg)
	require.NoError(t, err)
	require.Len(t, legacy.Losses, 4)
}

func TestProjectFeatureLayersUnreachable(t *testing.T) {
	f := newFixture(t)
	cfg := DefaultConfig().WithSteps(1).WithFeatureLoss(true)
	cfg.FeatureLayers = []string{"conv1", "conv42"}
	_, err := Project(f.gen, f.ext, f.target, nil, f.stats, cfg)
	assert.Error(t, err)
}

func TestProjectReducesDistance(t *testing.T) {
	f := newFixture(t)
	res, err := Project(f.gen, f.ext, f.target, nil, f.stats, DefaultConfig().WithSteps(150))
	require.NoError(t, err)
	assert.Less(t, res.Final().Dist, res.Losses[0].Dist)
}
