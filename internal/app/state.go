// Package app provides the lifecycle of one projection run: loading models
// and inputs, optimizing, and writing outputs, with events for progress.
package app

import (
	"fmt"
	"log"
	"sync"
	"time"

	"pose-projector/internal/config"
	"pose-projector/internal/features"
	"pose-projector/internal/image"
	"pose-projector/internal/latent"
	"pose-projector/internal/model"
	"pose-projector/internal/pose"
	"pose-projector/internal/projector"
	"pose-projector/pkg/tensor"
)

// State holds everything one run loads and produces.
type State struct {
	mu sync.RWMutex

	Options config.Options
	RunID   string

	// Models
	Generator model.Generator
	Extractor *features.Extractor

	// Inputs
	Target       *image.Target
	TargetTensor *tensor.Tensor // [C, R, R], 0-255
	Pose         *tensor.Tensor // nil for unconditioned synthesis

	// Latent statistics
	Stats latent.Stats

	// Result
	Result  *projector.Result
	Elapsed time.Duration
	Outputs map[string]string // role -> path

	// Event listeners
	listeners map[EventType][]EventListener
}

// EventType identifies different run events.
type EventType int

const (
	EventModelsLoaded EventType = iota
	EventTargetLoaded
	EventPoseLoaded
	EventStatsReady
	EventProjectionDone
	EventFrameWritten
	EventOutputWritten
)

// EventListener is called when an event occurs.
type EventListener func(data interface{})

// NewState creates a run state for opts.
func NewState(opts config.Options, runID string) *State {
	return &State{
		Options:   opts,
		RunID:     runID,
		Outputs:   make(map[string]string),
		listeners: make(map[EventType][]EventListener),
	}
}

// On registers an event listener for the specified event type.
func (s *State) On(event EventType, listener EventListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners[event] = append(s.listeners[event], listener)
}

// Emit triggers all listeners for the specified event type.
func (s *State) Emit(event EventType, data interface{}) {
	s.mu.RLock()
	listeners := s.listeners[event]
	s.mu.RUnlock()

	for _, listener := range listeners {
		listener(data)
	}
}

// UseModels installs already-loaded networks.
func (s *State) UseModels(gen model.Generator, net model.FeatureNet) {
	s.mu.Lock()
	s.Generator = gen
	s.Extractor = features.New(net)
	s.mu.Unlock()
	s.Emit(EventModelsLoaded, gen.Info())
}

// LoadModels reads the generator and perceptual network from disk.
func (s *State) LoadModels() error {
	if s.Options.Generator == "" || s.Options.FeatureNet == "" {
		return fmt.Errorf("generator and feature network paths are required")
	}
	log.Printf("Loading networks from %q and %q...", s.Options.Generator, s.Options.FeatureNet)
	gen, err := model.LoadAffine(s.Options.Generator)
	if err != nil {
		return err
	}
	net, err := model.LoadConvNet(s.Options.FeatureNet)
	if err != nil {
		return err
	}
	s.UseModels(gen, net)
	return nil
}

// LoadTarget decodes, crops and resizes the target to the generator
// resolution.
func (s *State) LoadTarget() error {
	if s.Generator == nil {
		return fmt.Errorf("models not loaded")
	}
	info := s.Generator.Info()
	target, err := image.LoadTarget(s.Options.Target, info.ImgResolution)
	if err != nil {
		return err
	}
	t, err := image.ToTensor(target.Square, info.ImgChannels)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.Target = target
	s.TargetTensor = t
	s.mu.Unlock()
	s.Emit(EventTargetLoaded, target)
	return nil
}

// LoadPose builds the pose conditioning from inline keypoints or the pose
// table. Without either the run is unconditioned.
func (s *State) LoadPose() error {
	if s.Generator == nil {
		return fmt.Errorf("models not loaded")
	}
	res := s.Generator.Info().ImgResolution

	var (
		maps *tensor.Tensor
		err  error
	)
	switch {
	case s.Options.Keypoints != "":
		maps, err = pose.FromKeypointString(s.Options.Keypoints, res)
	case s.Options.PoseFile != "":
		var tbl *pose.Table
		tbl, err = pose.LoadTable(s.Options.PoseFile)
		if err == nil {
			maps, err = tbl.Heatmap(s.Options.Target, res)
		}
	default:
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to build pose heatmap: %w", err)
	}

	s.mu.Lock()
	s.Pose = maps
	s.mu.Unlock()
	s.Emit(EventPoseLoaded, maps)
	return nil
}

// ComputeStats estimates the latent statistics, or derives them from a
// checkpoint of previously sampled codes. Fresh samples are checkpointed
// when SaveCheckpointW is set.
func (s *State) ComputeStats() error {
	if s.Generator == nil {
		return fmt.Errorf("models not loaded")
	}
	cfg := s.Options.Projector

	var codes [][]float64
	var err error
	if s.Options.CheckpointW != "" {
		codes, err = latent.LoadCheckpoint(s.Options.CheckpointW)
		if err != nil {
			return fmt.Errorf("failed to load latent checkpoint: %w", err)
		}
	} else {
		_, codes, err = latent.Estimate(s.Generator, cfg.WAvgSamples, cfg.StatsSeed)
		if err != nil {
			return fmt.Errorf("failed to estimate latent statistics: %w", err)
		}
		if s.Options.SaveCheckpointW != "" {
			if err := latent.SaveCheckpoint(s.Options.SaveCheckpointW, codes); err != nil {
				return fmt.Errorf("failed to save latent checkpoint: %w", err)
			}
			log.Printf("Saved latent checkpoint %s", s.Options.SaveCheckpointW)
		}
	}

	stats, err := latent.FromSamples(codes)
	if err != nil {
		return err
	}
	if len(stats.Mean) != s.Generator.Info().WDim {
		return fmt.Errorf("latent checkpoint has %d values per code, generator expects %d", len(stats.Mean), s.Generator.Info().WDim)
	}

	s.mu.Lock()
	s.Stats = stats
	s.mu.Unlock()
	s.Emit(EventStatsReady, stats)
	return nil
}

// Project runs the optimization and records the elapsed time.
func (s *State) Project() error {
	if s.TargetTensor == nil {
		return fmt.Errorf("target not loaded")
	}
	start := time.Now()
	res, err := projector.Project(s.Generator, s.Extractor, s.TargetTensor, s.Pose, s.Stats, s.Options.Projector)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)
	fmt.Printf("Elapsed: %.1f s\n", elapsed.Seconds())

	s.mu.Lock()
	s.Result = res
	s.Elapsed = elapsed
	s.mu.Unlock()
	s.Emit(EventProjectionDone, res)
	return nil
}
