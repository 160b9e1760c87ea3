package app

import (
	"context"
	"fmt"
	goimage "image"
	"os"
	"path/filepath"
	"time"

	"pose-projector/internal/image"
	"pose-projector/internal/model"
	"pose-projector/internal/project"
	"pose-projector/internal/render"
	"pose-projector/internal/runlog"
)

// Output roles recorded in the manifest.
const (
	OutputTarget = "target"
	OutputVideo  = "video"
	OutputImage  = "image"
	OutputLatent = "latent"
)

// OutputNames returns the final image and latent file names. An empty
// name selects proj.png and projected_w.npz.
func OutputNames(name string) (imageName, latentName string) {
	if name == "" {
		return "proj.png", "projected_w.npz"
	}
	return name + ".png", name + "_w.npz"
}

// renderCode synthesizes ws with the generator's own constant noise.
func (s *State) renderCode(ws [][]float64) (*goimage.RGBA, error) {
	syn, err := s.Generator.Synthesize(model.SynthesisInput{
		Ws:   ws,
		Pose: s.Pose,
		Mode: model.NoiseConst,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render latent code: %w", err)
	}
	return image.FromSigned(syn.Image), nil
}

// WriteOutputs writes the target, the optional progress video, the final
// reconstruction and the final latent code into the output directory.
func (s *State) WriteOutputs() error {
	if s.Result == nil {
		return fmt.Errorf("no projection result")
	}
	outdir := s.Options.OutDir
	if err := os.MkdirAll(outdir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	targetImg := image.FromTensor(s.TargetTensor)
	traj := s.Result.Trajectory

	if s.Options.SaveVideo {
		path := filepath.Join(outdir, "proj.mp4")
		fmt.Printf("Saving optimization progress video %q\n", path)
		if err := s.writeVideo(path, targetImg); err != nil {
			return err
		}
		s.addOutput(OutputVideo, path)
	}

	targetPath := filepath.Join(outdir, "target.png")
	if err := render.SavePNG(targetPath, targetImg); err != nil {
		return err
	}
	s.addOutput(OutputTarget, targetPath)

	imageName, latentName := OutputNames(s.Options.OutputName)
	final := traj.Last()
	img, err := s.renderCode(final)
	if err != nil {
		return err
	}
	imagePath := filepath.Join(outdir, imageName)
	if err := render.SavePNG(imagePath, img); err != nil {
		return err
	}
	s.addOutput(OutputImage, imagePath)

	latentPath := filepath.Join(outdir, latentName)
	if err := render.SaveLatent(latentPath, final); err != nil {
		return fmt.Errorf("failed to save latent code: %w", err)
	}
	s.addOutput(OutputLatent, latentPath)
	return nil
}

func (s *State) writeVideo(path string, targetImg *goimage.RGBA) error {
	b := targetImg.Bounds()
	video, err := render.NewVideo(path, 2*b.Dx(), b.Dy())
	if err != nil {
		return err
	}
	traj := s.Result.Trajectory
	for i := 0; i < traj.Len(); i++ {
		img, err := s.renderCode(traj.At(i))
		if err != nil {
			video.Close()
			return err
		}
		if err := video.Write(image.SideBySide(targetImg, img)); err != nil {
			video.Close()
			return err
		}
		s.Emit(EventFrameWritten, i)
	}
	return video.Close()
}

func (s *State) addOutput(role, path string) {
	s.mu.Lock()
	s.Outputs[role] = path
	s.mu.Unlock()
	s.Emit(EventOutputWritten, path)
}

// WriteManifest saves run.json into the output directory.
func (s *State) WriteManifest() (string, error) {
	path := filepath.Join(s.Options.OutDir, project.ManifestName)
	m := project.New(s.RunID, s.Options.Projector)
	m.SetTarget(path, s.Options.Target)
	m.PosePath = s.Options.PoseFile
	m.Keypoints = s.Options.Keypoints
	m.GeneratorPath = s.Options.Generator
	m.FeatureNetPath = s.Options.FeatureNet
	m.CheckpointPath = s.Options.CheckpointW
	m.StatsSamples = s.Stats.Samples
	m.LatentStd = s.Stats.Std
	m.ElapsedSeconds = s.Elapsed.Seconds()
	if s.Result != nil {
		m.Final = s.Result.Final()
	}
	for role, p := range s.Outputs {
		m.AddOutput(path, role, p)
	}
	if err := m.Save(path); err != nil {
		return "", fmt.Errorf("failed to save manifest: %w", err)
	}
	return path, nil
}

// Record returns the ledger entry for the finished run.
func (s *State) Record(started time.Time) runlog.Record {
	rec := runlog.Record{
		ID:        s.RunID,
		StartedAt: started,
		Elapsed:   s.Elapsed,
		Target:    s.Options.Target,
		OutDir:    s.Options.OutDir,
		Steps:     s.Options.Projector.NumSteps,
		Seed:      s.Options.Projector.Seed,
	}
	if s.Result != nil {
		final := s.Result.Final()
		rec.FinalDist = final.Dist
		rec.FinalLoss = final.Loss
	}
	for _, role := range []string{OutputTarget, OutputVideo, OutputImage, OutputLatent} {
		if p, ok := s.Outputs[role]; ok {
			rec.Outputs = append(rec.Outputs, p)
		}
	}
	return rec
}

// Run executes every stage after the models are available and records the
// run in store when it is non-nil.
func (s *State) Run(ctx context.Context, store runlog.Store) error {
	started := time.Now()
	stages := []struct {
		name string
		fn   func() error
	}{
		{"load target", s.LoadTarget},
		{"load pose", s.LoadPose},
		{"compute latent statistics", s.ComputeStats},
		{"project", s.Project},
		{"write outputs", s.WriteOutputs},
	}
	for _, st := range stages {
		if err := st.fn(); err != nil {
			return fmt.Errorf("%s: %w", st.name, err)
		}
	}

	path, err := s.WriteManifest()
	if err != nil {
		return err
	}
	s.addOutput("manifest", path)

	if store != nil {
		if err := store.SaveRun(ctx, s.Record(started)); err != nil {
			return fmt.Errorf("failed to record run: %w", err)
		}
	}
	return nil
}
