package config

import (
	"os"
	"path/filepath"
	"testing"

	"pose-projector/internal/projector"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	v, err := New("")
	require.NoError(t, err)
	o, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, DefaultOptions().Projector, o.Projector)
	assert.Equal(t, projector.DefaultConfig().NumSteps, o.Projector.NumSteps)
	assert.True(t, o.Projector.Verbose)
	assert.Equal(t, "out", o.OutDir)
	assert.True(t, o.SaveVideo)
}

func TestConfigFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "projector.yaml")
	yaml := "num_steps: 250\nseed: 7\nfeature_loss: true\nfeature_layers: [conv1, conv2]\ntarget: photo.png\n"
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0644))
	t.Setenv("PROJECTOR_SEED", "11")

	v, err := New(path)
	require.NoError(t, err)
	o, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, 250, o.Projector.NumSteps)
	assert.Equal(t, int64(11), o.Projector.Seed)
	assert.True(t, o.Projector.FeatureLoss)
	assert.Equal(t, []string{"conv1", "conv2"}, o.Projector.FeatureLayers)
	assert.Equal(t, "photo.png", o.Target)
}

func TestInvalidSettings(t *testing.T) {
	v, err := New("")
	require.NoError(t, err)
	v.Set("num_steps", 0)
	_, err = Load(v)
	assert.Error(t, err)

	_, err = New(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "save_checkpoint_w", Key("save-checkpoint-w"))
}
