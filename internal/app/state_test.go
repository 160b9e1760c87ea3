package app

import (
	"context"
	goimage "image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"pose-projector/internal/config"
	"pose-projector/internal/model"
	"pose-projector/internal/npz"
	"pose-projector/internal/project"
	"pose-projector/internal/runlog"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testInfo = model.Info{ZDim: 4, WDim: 3, NumWs: 2, ImgChannels: 3, ImgResolution: 8}

func writeTarget(t *testing.T, dir string) string {
	t.Helper()
	img := goimage.NewRGBA(goimage.Rect(0, 0, 20, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 20; x++ {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x * 12), G: uint8(y * 15), B: 90, A: 255})
		}
	}
	path := filepath.Join(dir, "person.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
	return path
}

func testOptions(t *testing.T) config.Options {
	t.Helper()
	dir := t.TempDir()
	opts := config.DefaultOptions()
	opts.Target = writeTarget(t, dir)
	opts.OutDir = filepath.Join(dir, "out")
	opts.SaveVideo = false
	opts.Projector = opts.Projector.WithSteps(3)
	opts.Projector.WAvgSamples = 20
	return opts
}

func newTestState(opts config.Options) *State {
	s := NewState(opts, runlog.NewID())
	s.UseModels(model.NewAffine(testInfo, 3), model.NewConvNet(3, 1))
	return s
}

func TestRunWritesOutputs(t *testing.T) {
	opts := testOptions(t)
	s := newTestState(opts)

	var written []string
	s.On(EventOutputWritten, func(data interface{}) {
		written = append(written, data.(string))
	})

	store := runlog.NewMemoryStore()
	require.NoError(t, store.Init(context.Background()))
	require.NoError(t, s.Run(context.Background(), store))

	for _, name := range []string{"target.png", "proj.png", "projected_w.npz", project.ManifestName} {
		assert.FileExists(t, filepath.Join(opts.OutDir, name))
	}
	assert.NoFileExists(t, filepath.Join(opts.OutDir, "proj.mp4"))
	assert.Len(t, written, 4)

	arrays, err := npz.Read(filepath.Join(opts.OutDir, "projected_w.npz"))
	require.NoError(t, err)
	assert.Equal(t, []int{1, testInfo.NumWs, testInfo.WDim}, arrays["w"].Shape)

	m, err := project.Load(filepath.Join(opts.OutDir, project.ManifestName))
	require.NoError(t, err)
	assert.Equal(t, s.RunID, m.RunID)
	assert.Equal(t, 20, m.StatsSamples)
	assert.Equal(t, "proj.png", m.Outputs[OutputImage])

	runs, err := store.ListRuns(context.Background())
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, s.RunID, runs[0].ID)
	assert.Equal(t, 3, runs[0].Steps)
}

func TestRunWithOutputNameAndKeypoints(t *testing.T) {
	opts := testOptions(t)
	opts.OutputName = "person_fit"
	opts.Keypoints = strings.Repeat("4:4:0.9:", 16) + "4:4:0.9"
	s := newTestState(opts)

	require.NoError(t, s.Run(context.Background(), nil))
	require.NotNil(t, s.Pose)
	assert.Equal(t, []int{17, 64, 64}, s.Pose.Shape)
	assert.FileExists(t, filepath.Join(opts.OutDir, "person_fit.png"))
	assert.FileExists(t, filepath.Join(opts.OutDir, "person_fit_w.npz"))
}

func TestRunWithPoseTableMissingRow(t *testing.T) {
	opts := testOptions(t)
	table := filepath.Join(t.TempDir(), "poses.csv")
	require.NoError(t, os.WriteFile(table, []byte("name,keypoints\nsomeone_else.png,1:1:1\n"), 0644))
	opts.PoseFile = table
	s := newTestState(opts)

	require.NoError(t, s.LoadPose())
	require.NotNil(t, s.Pose)
	for _, v := range s.Pose.Data {
		require.Equal(t, 0.0, v)
	}
}

func TestLatentCheckpointReuse(t *testing.T) {
	opts := testOptions(t)
	ckpt := filepath.Join(t.TempDir(), "w_samples.npz")
	opts.SaveCheckpointW = ckpt
	s := newTestState(opts)
	require.NoError(t, s.ComputeStats())
	assert.FileExists(t, ckpt)

	reuse := testOptions(t)
	reuse.CheckpointW = ckpt
	r := newTestState(reuse)
	require.NoError(t, r.ComputeStats())
	assert.InDeltaSlice(t, s.Stats.Mean, r.Stats.Mean, 1e-6)
	assert.InDelta(t, s.Stats.Std, r.Stats.Std, 1e-6)
}

func TestStagesNeedModels(t *testing.T) {
	s := NewState(testOptions(t), "x")
	assert.Error(t, s.LoadTarget())
	assert.Error(t, s.ComputeStats())
	assert.Error(t, s.Project())
	assert.Error(t, s.WriteOutputs())
	assert.Error(t, s.LoadModels())
}

func TestOutputNames(t *testing.T) {
	img, w := OutputNames("")
	assert.Equal(t, "proj.png", img)
	assert.Equal(t, "projected_w.npz", w)
	img, w = OutputNames("run7")
	assert.Equal(t, "run7.png", img)
	assert.Equal(t, "run7_w.npz", w)
}
