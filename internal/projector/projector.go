// Package projector searches a generator's latent space for the code whose
// synthesized image best matches a target under a perceptual metric.
package projector

import (
	"errors"
	"fmt"
	"log"
	"math/rand"

	"pose-projector/internal/features"
	"pose-projector/internal/latent"
	"pose-projector/internal/model"
	"pose-projector/internal/noise"
	"pose-projector/internal/optim"
	"pose-projector/pkg/colorutil"
	"pose-projector/pkg/tensor"
)

// ErrTargetShape is returned when the target does not match the generator's
// output channels and resolution.
var ErrTargetShape = errors.New("target shape does not match generator output")

// StepLoss records the loss terms of one optimization step.
type StepLoss struct {
	Dist       float64 `json:"dist"`
	Reg        float64 `json:"reg"`
	Loss       float64 `json:"loss"`
	LR         float64 `json:"lr"`
	NoiseScale float64 `json:"noise_scale"`
}

// Result is the outcome of one projection run.
type Result struct {
	Trajectory *Trajectory
	Losses     []StepLoss
	// Noise holds the optimized noise buffers after the final step.
	Noise map[string]*tensor.Tensor
}

// Final returns the loss terms of the last step.
func (r *Result) Final() StepLoss {
	if len(r.Losses) == 0 {
		return StepLoss{}
	}
	return r.Losses[len(r.Losses)-1]
}

// Project runs cfg.NumSteps optimization steps starting from stats.Mean and
// returns the latent code recorded after every step.
//
// target is a [C, R, R] image in the 0-255 range. pose, when non-nil, is
// passed to the generator as conditioning on every synthesis call.
func Project(gen model.Generator, ext *features.Extractor, target, pose *tensor.Tensor, stats latent.Stats, cfg Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	info := gen.Info()
	want := []int{info.ImgChannels, info.ImgResolution, info.ImgResolution}
	if !tensor.ShapeEqual(target.Shape, want) {
		return nil, fmt.Errorf("%w: got %v, want %v", ErrTargetShape, target.Shape, want)
	}
	if len(stats.Mean) != info.WDim {
		return nil, fmt.Errorf("latent mean has %d values, want %d", len(stats.Mean), info.WDim)
	}

	logf := func(format string, args ...interface{}) {
		if cfg.Verbose {
			log.Printf(format, args...)
		}
	}

	// Target features.
	scoredTarget, _ := features.PrepareForScoring(target)
	targetEmb, _, err := ext.Embed(scoredTarget)
	if err != nil {
		return nil, fmt.Errorf("failed to embed target: %w", err)
	}
	var targetConvs *features.Capture
	if cfg.FeatureLoss {
		targetConvs, err = ext.MultiLayer(scoredTarget, cfg.FeatureLayers)
		if err != nil {
			return nil, fmt.Errorf("failed to extract target features: %w", err)
		}
		if missing := targetConvs.Missing(); len(missing) > 0 {
			return nil, fmt.Errorf("feature layers %v not reached (traversal stopped at %q)", missing, targetConvs.StoppedAt)
		}
	}

	// Trainable state: w followed by the noise buffers, in generator order.
	rng := rand.New(rand.NewSource(cfg.Seed))
	w := append([]float64(nil), stats.Mean...)
	specs := gen.NoiseBuffers()
	bufs := make(map[string]*tensor.Tensor, len(specs))
	params := []optim.Param{{Name: "w", Value: w}}
	for _, s := range specs {
		buf := tensor.New(s.Shape...)
		for i := range buf.Data {
			buf.Data[i] = rng.NormFloat64()
		}
		bufs[s.Name] = buf
		params = append(params, optim.Param{Name: s.Name, Value: buf.Data})
	}
	opt := optim.NewAdam(params, cfg.Beta1, cfg.Beta2)

	traj := &Trajectory{NumWs: info.NumWs, Steps: make([][]float64, cfg.NumSteps)}
	losses := make([]StepLoss, cfg.NumSteps)
	perturbed := make([]float64, len(w))

	for step := 0; step < cfg.NumSteps; step++ {
		noiseScale := NoiseScale(step, cfg.NumSteps, stats.Std, cfg)
		lr := LearningRate(step, cfg.NumSteps, cfg)

		// Synthesize from a perturbed copy of w.
		for i := range w {
			perturbed[i] = w[i] + rng.NormFloat64()*noiseScale
		}
		syn, err := gen.Synthesize(model.SynthesisInput{
			Ws:    model.Broadcast(perturbed, info.NumWs),
			Pose:  pose,
			Mode:  model.NoiseConst,
			Noise: bufs,
		})
		if err != nil {
			return nil, fmt.Errorf("step %d: synthesis failed: %w", step, err)
		}

		synth := syn.Image.Clone()
		for i, v := range synth.Data {
			synth.Data[i] = colorutil.SignedToByteRange(v)
		}
		scored, scoredBack := features.PrepareForScoring(synth)

		emb, embBack, err := ext.Embed(scored)
		if err != nil {
			return nil, fmt.Errorf("step %d: failed to embed candidate: %w", step, err)
		}
		dist, gEmb := tensor.SquaredDistance(targetEmb, emb)
		gScored := embBack(gEmb)

		reg, regGrads := noise.Regularize(bufs)

		var gPixel *tensor.Tensor
		if cfg.FeatureLoss {
			d, g, err := featureTerms(ext, targetConvs, scoredTarget, scored, cfg)
			if err != nil {
				return nil, fmt.Errorf("step %d: %w", step, err)
			}
			dist += d
			gScored.Add(g)

			mse, gm := tensor.MeanSquaredError(target, synth)
			dist += mse
			gPixel = gm
		}

		loss := dist + reg*cfg.RegularizeNoiseWeight

		// Backward: scoring image -> byte range image -> generator output.
		gSynth := scoredBack(gScored).Add(gPixel)
		gSynth.Scale(colorutil.ByteRangeGain)
		sg := syn.Backward(gSynth)

		grads := make([][]float64, len(params))
		gw := make([]float64, len(w))
		for _, lw := range sg.Ws {
			for i, v := range lw {
				gw[i] += v
			}
		}
		grads[0] = gw
		for i, s := range specs {
			g := regGrads[s.Name].Clone().Scale(cfg.RegularizeNoiseWeight)
			if ng, ok := sg.Noise[s.Name]; ok {
				g.Add(ng)
			}
			grads[i+1] = g.Data
		}
		if err := opt.Step(lr, grads); err != nil {
			return nil, fmt.Errorf("step %d: %w", step, err)
		}

		losses[step] = StepLoss{Dist: dist, Reg: reg, Loss: loss, LR: lr, NoiseScale: noiseScale}
		logf("step %4d/%d: dist %-4.2f loss %-5.2f", step+1, cfg.NumSteps, dist, loss)

		traj.Steps[step] = append([]float64(nil), w...)

		for _, s := range specs {
			noise.Normalize(bufs[s.Name])
		}
	}

	return &Result{Trajectory: traj, Losses: losses, Noise: bufs}, nil
}

// featureTerms compares target and candidate activations at the configured
// layers and returns the summed squared differences with their gradient
// with respect to the candidate scoring image.
func featureTerms(ext *features.Extractor, targetConvs *features.Capture, scoredTarget, scored *tensor.Tensor, cfg Config) (float64, *tensor.Tensor, error) {
	input := scored
	if cfg.LegacyFeatureLoss {
		input = scoredTarget
	}
	synthConvs, err := ext.MultiLayer(input, cfg.FeatureLayers)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to extract candidate features: %w", err)
	}

	var total float64
	layerGrads := make(map[string]*tensor.Tensor, len(cfg.FeatureLayers))
	for _, name := range cfg.FeatureLayers {
		tc, sc := targetConvs.Outputs[name], synthConvs.Outputs[name]
		if tc == nil || sc == nil {
			return 0, nil, fmt.Errorf("feature layer %s not captured", name)
		}
		d, g := tensor.SquaredDistance(tc, sc)
		total += d
		layerGrads[name] = g
	}
	if cfg.LegacyFeatureLoss {
		return total, scored.ZerosLike(), nil
	}
	return total, synthConvs.Backward(layerGrads), nil
}
