// Package model defines the generator and perceptual-network contracts the
// projector optimizes against, plus small pure-Go reference networks that
// satisfy them.
package model

import (
	"errors"
	"fmt"

	"pose-projector/pkg/tensor"
)

// ErrIncompatibleShape is returned by a layer that cannot be applied to its
// input, e.g. pooling a 1x1 map. Feature traversal treats it as the end of
// the network rather than a failure.
var ErrIncompatibleShape = errors.New("incompatible input shape")

// NoiseMode selects how the synthesis network sources per-layer noise.
type NoiseMode int

const (
	NoiseConst  NoiseMode = iota // Use the constant noise buffers (or overrides)
	NoiseRandom                  // Draw fresh noise
	NoiseNone                    // Disable noise inputs
)

func (m NoiseMode) String() string {
	switch m {
	case NoiseConst:
		return "const"
	case NoiseRandom:
		return "random"
	case NoiseNone:
		return "none"
	default:
		return "unknown"
	}
}

// ParseNoiseMode converts a string into a NoiseMode.
func ParseNoiseMode(s string) (NoiseMode, error) {
	switch s {
	case "const", "":
		return NoiseConst, nil
	case "random":
		return NoiseRandom, nil
	case "none":
		return NoiseNone, nil
	}
	return NoiseConst, fmt.Errorf("unknown noise mode %q", s)
}

// Info holds the fixed scalar attributes of a generator.
type Info struct {
	ZDim          int `json:"z_dim"`
	WDim          int `json:"w_dim"`
	NumWs         int `json:"num_ws"`
	ImgChannels   int `json:"img_channels"`
	ImgResolution int `json:"img_resolution"`
}

// NoiseSpec names a constant-noise buffer and its spatial shape.
type NoiseSpec struct {
	Name  string
	Shape []int
}

// SynthesisInput is the argument to Generator.Synthesize.
type SynthesisInput struct {
	Ws   [][]float64    // [NumWs][WDim]
	Pose *tensor.Tensor // Optional [K, 64, 64] heatmap conditioning
	Mode NoiseMode

	// Noise overrides the generator's constant buffers by name when Mode is
	// NoiseConst. Missing names fall back to the generator's own buffers.
	Noise map[string]*tensor.Tensor
}

// SynthesisGrad holds gradients of a scalar loss with respect to the
// synthesis inputs.
type SynthesisGrad struct {
	Ws    [][]float64
	Noise map[string]*tensor.Tensor
}

// Synthesis is a synthesized image together with its backward pass.
type Synthesis struct {
	Image    *tensor.Tensor // [C, H, W], roughly in [-1, 1]
	Backward func(grad *tensor.Tensor) SynthesisGrad
}

// Generator is a frozen mapping + synthesis network. Implementations must
// not mutate their own state from Synthesize.
type Generator interface {
	Info() Info
	// Map converts an input noise vector into per-layer latent codes.
	Map(z []float64) ([][]float64, error)
	NoiseBuffers() []NoiseSpec
	Synthesize(in SynthesisInput) (*Synthesis, error)
}

// Layer is one step of a perceptual network's forward traversal.
type Layer interface {
	Forward(x *tensor.Tensor) (*tensor.Tensor, tensor.BackwardFunc, error)
}

// NamedLayer pairs a layer with its submodule name.
type NamedLayer struct {
	Name  string
	Layer Layer
}

// FeatureNet is a frozen perceptual network.
type FeatureNet interface {
	// Embed returns the perceptual embedding compared with a squared
	// distance, plus its backward pass.
	Embed(img *tensor.Tensor) (*tensor.Tensor, tensor.BackwardFunc, error)
	// Layers returns the submodules in execution order.
	Layers() []NamedLayer
}

// Broadcast replicates one latent code across n synthesis layers.
func Broadcast(w []float64, n int) [][]float64 {
	ws := make([][]float64, n)
	for i := range ws {
		ws[i] = append([]float64(nil), w...)
	}
	return ws
}
