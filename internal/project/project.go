// Package project provides the per-run manifest written next to the
// projection outputs.
package project

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"pose-projector/internal/projector"
)

// ManifestName is the manifest file name inside an output directory.
const ManifestName = "run.json"

// File describes one projection run (run.json).
type File struct {
	Version  int       `json:"version"`
	RunID    string    `json:"run_id"`
	Created  time.Time `json:"created"`
	Modified time.Time `json:"modified"`

	// Input paths (relative to the manifest when possible)
	TargetPath     string `json:"target"`
	PosePath       string `json:"pose_table,omitempty"`
	Keypoints      string `json:"keypoints,omitempty"`
	GeneratorPath  string `json:"generator"`
	FeatureNetPath string `json:"feature_net"`
	CheckpointPath string `json:"checkpoint_w,omitempty"`

	Config projector.Config `json:"config"`

	// Latent statistics
	StatsSamples int     `json:"stats_samples"`
	LatentStd    float64 `json:"latent_std"`

	// Result
	ElapsedSeconds float64            `json:"elapsed_seconds"`
	Final          projector.StepLoss `json:"final"`
	Outputs        map[string]string  `json:"outputs,omitempty"`
}

// New creates a manifest for a run.
func New(runID string, cfg projector.Config) *File {
	now := time.Now()
	return &File{
		Version:  1,
		RunID:    runID,
		Created:  now,
		Modified: now,
		Config:   cfg,
		Outputs:  make(map[string]string),
	}
}

// Load loads a manifest from path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var m File
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	return &m, nil
}

// Save saves the manifest to a file.
func (p *File) Save(path string) error {
	p.Modified = time.Now()

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// SetTarget records the target image path relative to the manifest.
func (p *File) SetTarget(manifestPath, imagePath string) {
	p.TargetPath = relativeTo(manifestPath, imagePath)
}

// GetTargetPath returns the absolute path to the target image.
func (p *File) GetTargetPath(manifestPath string) string {
	return resolve(manifestPath, p.TargetPath)
}

// AddOutput records an output file under a role such as "video" or
// "latent".
func (p *File) AddOutput(manifestPath, role, path string) {
	if p.Outputs == nil {
		p.Outputs = make(map[string]string)
	}
	p.Outputs[role] = relativeTo(manifestPath, path)
}

// GetOutputPath returns the absolute path of the output stored under role,
// or "" when there is none.
func (p *File) GetOutputPath(manifestPath, role string) string {
	return resolve(manifestPath, p.Outputs[role])
}

// OutputRoles returns the recorded output roles in sorted order.
func (p *File) OutputRoles() []string {
	roles := make([]string, 0, len(p.Outputs))
	for r := range p.Outputs {
		roles = append(roles, r)
	}
	sort.Strings(roles)
	return roles
}

func relativeTo(manifestPath, path string) string {
	rel, err := filepath.Rel(filepath.Dir(manifestPath), path)
	if err != nil {
		return path
	}
	return rel
}

func resolve(manifestPath, path string) string {
	if path == "" {
		return ""
	}
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(filepath.Dir(manifestPath), path)
}
