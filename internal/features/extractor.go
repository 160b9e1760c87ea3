// Package features adapts a frozen perceptual network into the two views the
// projector scores with: a whole-network embedding and named intermediate
// activations captured in a single ordered traversal.
package features

import (
	"errors"
	"fmt"

	"pose-projector/internal/model"
	"pose-projector/pkg/tensor"
)

// MaxScoringSide is the largest spatial side the perceptual network is fed.
const MaxScoringSide = 256

// ErrImageTooLarge is returned by Embed for images that were not prepared
// with PrepareForScoring.
var ErrImageTooLarge = errors.New("image exceeds perceptual scoring size")

// Extractor wraps a perceptual network.
type Extractor struct {
	net model.FeatureNet
}

// New creates an Extractor for net.
func New(net model.FeatureNet) *Extractor {
	return &Extractor{net: net}
}

// PrepareForScoring area-downsamples img so that its larger side is at most
// MaxScoringSide.
func PrepareForScoring(img *tensor.Tensor) (*tensor.Tensor, tensor.BackwardFunc) {
	return tensor.FitWithin(img, MaxScoringSide)
}

// Embed returns the network's perceptual embedding for img.
func (e *Extractor) Embed(img *tensor.Tensor) (*tensor.Tensor, tensor.BackwardFunc, error) {
	_, h, w := img.Dims()
	if h > MaxScoringSide || w > MaxScoringSide {
		return nil, nil, fmt.Errorf("%dx%d: %w", w, h, ErrImageTooLarge)
	}
	return e.net.Embed(img)
}

// Capture holds the activations recorded by MultiLayer.
type Capture struct {
	Outputs map[string]*tensor.Tensor

	// Truncated is set when the traversal stopped at a layer that could not
	// be applied to its input.
	Truncated bool
	// StoppedAt names the layer that ended a truncated traversal.
	StoppedAt string

	requested []string
	names     []string
	backs     []tensor.BackwardFunc
	input     *tensor.Tensor
}

// Missing returns requested layer names that were not reached.
func (c *Capture) Missing() []string {
	var missing []string
	for _, n := range c.requested {
		if _, ok := c.Outputs[n]; !ok {
			missing = append(missing, n)
		}
	}
	return missing
}

// Backward propagates gradients given for captured layers back to the
// traversal input. Names without a gradient contribute nothing.
func (c *Capture) Backward(grads map[string]*tensor.Tensor) *tensor.Tensor {
	var g *tensor.Tensor
	for i := len(c.backs) - 1; i >= 0; i-- {
		if lg, ok := grads[c.names[i]]; ok && lg != nil {
			if g == nil {
				g = lg.Clone()
			} else {
				g.Add(lg)
			}
		}
		if g != nil {
			g = c.backs[i](g)
		}
	}
	if g == nil {
		return c.input.ZerosLike()
	}
	return g
}

// MultiLayer runs one forward traversal over the network's layers in
// execution order, recording the output of every requested name. The
// traversal ends early, without error, at the first layer that reports
// model.ErrIncompatibleShape; it also ends once every requested name has
// been captured. Any other layer error is returned.
func (e *Extractor) MultiLayer(img *tensor.Tensor, names []string) (*Capture, error) {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	c := &Capture{
		Outputs:   make(map[string]*tensor.Tensor, len(names)),
		requested: append([]string(nil), names...),
		input:     img,
	}

	x := img
	for _, nl := range e.net.Layers() {
		if len(c.Outputs) == len(want) {
			break
		}
		y, back, err := nl.Layer.Forward(x)
		if err != nil {
			if errors.Is(err, model.ErrIncompatibleShape) {
				c.Truncated = true
				c.StoppedAt = nl.Name
				break
			}
			return nil, fmt.Errorf("layer %s: %w", nl.Name, err)
		}
		c.names = append(c.names, nl.Name)
		c.backs = append(c.backs, back)
		x = y
		if want[nl.Name] {
			c.Outputs[nl.Name] = y
		}
	}
	return c, nil
}
