package model

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"os"

	"pose-projector/pkg/tensor"
)

// Layer kinds understood by ConvNet.
const (
	KindConv = "conv"
	KindReLU = "relu"
	KindPool = "pool"
)

const embedEpsilon = 1e-10

// LayerSpec is the serialized form of one ConvNet layer.
type LayerSpec struct {
	Name   string    `json:"name"`
	Kind   string    `json:"kind"`
	In     int       `json:"in,omitempty"`
	Out    int       `json:"out,omitempty"`
	Weight []float64 `json:"weight,omitempty"` // [Out][In][3][3]
	Bias   []float64 `json:"bias,omitempty"`   // [Out]
}

// ConvNet is a reference perceptual network: a VGG-style stack of 3x3
// convolutions, ReLUs and 2x2 average pools. Its embedding concatenates the
// channel-normalized activations at the tap layers, scaled so each tap
// contributes a spatial average.
type ConvNet struct {
	Specs []LayerSpec `json:"layers"`
	Taps  []string    `json:"taps"`

	layers []NamedLayer
}

// NewConvNet builds the default reference architecture with seeded
// He-initialized weights.
func NewConvNet(inChannels int, seed int64) *ConvNet {
	rng := rand.New(rand.NewSource(seed))
	stages := [][]int{{8, 8}, {16, 16}, {16, 16, 16}, {32, 32, 32}}

	n := &ConvNet{}
	in := inChannels
	conv := 0
	for s, widths := range stages {
		for _, out := range widths {
			conv++
			std := math.Sqrt(2 / float64(9*in))
			n.Specs = append(n.Specs,
				LayerSpec{
					Name:   fmt.Sprintf("conv%d", conv),
					Kind:   KindConv,
					In:     in,
					Out:    out,
					Weight: randomSlice(rng, out*in*9, std),
					Bias:   make([]float64, out),
				},
				LayerSpec{Name: fmt.Sprintf("relu%d", conv), Kind: KindReLU},
			)
			in = out
		}
		n.Taps = append(n.Taps, fmt.Sprintf("relu%d", conv))
		n.Specs = append(n.Specs, LayerSpec{Name: fmt.Sprintf("pool%d", s+1), Kind: KindPool})
	}
	if err := n.build(); err != nil {
		panic(err)
	}
	return n
}

// LoadConvNet reads a network saved with Save.
func LoadConvNet(path string) (*ConvNet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read feature network: %w", err)
	}
	var n ConvNet
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, fmt.Errorf("failed to parse feature network: %w", err)
	}
	if err := n.build(); err != nil {
		return nil, err
	}
	return &n, nil
}

// Save writes the network as JSON.
func (n *ConvNet) Save(path string) error {
	data, err := json.MarshalIndent(n, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (n *ConvNet) build() error {
	n.layers = n.layers[:0]
	seen := make(map[string]bool)
	for _, s := range n.Specs {
		if seen[s.Name] {
			return fmt.Errorf("duplicate layer name %q", s.Name)
		}
		seen[s.Name] = true

		var l Layer
		switch s.Kind {
		case KindConv:
			if s.In <= 0 || s.Out <= 0 || len(s.Weight) != s.Out*s.In*9 || len(s.Bias) != s.Out {
				return fmt.Errorf("layer %s: malformed conv weights", s.Name)
			}
			l = &conv3x3{in: s.In, out: s.Out, weight: s.Weight, bias: s.Bias}
		case KindReLU:
			l = relu{}
		case KindPool:
			l = avgPool2{}
		default:
			return fmt.Errorf("layer %s: unknown kind %q", s.Name, s.Kind)
		}
		n.layers = append(n.layers, NamedLayer{Name: s.Name, Layer: l})
	}
	for _, t := range n.Taps {
		if !seen[t] {
			return fmt.Errorf("tap %q is not a layer", t)
		}
	}
	return nil
}

// Layers implements FeatureNet.
func (n *ConvNet) Layers() []NamedLayer {
	return n.layers
}

// Embed implements FeatureNet. Every tap must be reached; the traversal
// stops after the last one.
func (n *ConvNet) Embed(img *tensor.Tensor) (*tensor.Tensor, tensor.BackwardFunc, error) {
	if len(n.Taps) == 0 {
		return nil, nil, fmt.Errorf("feature network has no embedding taps")
	}
	isTap := make(map[string]int, len(n.Taps))
	for i, t := range n.Taps {
		isTap[t] = i
	}

	type tapOut struct {
		offset, size int
		back         tensor.BackwardFunc
	}
	taps := make(map[int]tapOut)
	var backs []tensor.BackwardFunc
	var parts []*tensor.Tensor
	size := 0

	x := img
	for i, nl := range n.layers {
		if len(taps) == len(n.Taps) {
			break
		}
		y, back, err := nl.Layer.Forward(x)
		if err != nil {
			return nil, nil, fmt.Errorf("layer %s: %w", nl.Name, err)
		}
		backs = append(backs, back)
		x = y
		if _, ok := isTap[nl.Name]; ok {
			e, eb := normalizeChannels(y)
			taps[i] = tapOut{offset: size, size: e.Len(), back: eb}
			parts = append(parts, e)
			size += e.Len()
		}
	}
	if len(taps) != len(n.Taps) {
		return nil, nil, fmt.Errorf("embedding taps not reached: %w", ErrIncompatibleShape)
	}

	emb := tensor.New(size)
	off := 0
	for _, p := range parts {
		copy(emb.Data[off:], p.Data)
		off += p.Len()
	}

	backward := func(grad *tensor.Tensor) *tensor.Tensor {
		var g *tensor.Tensor
		for i := len(backs) - 1; i >= 0; i-- {
			if t, ok := taps[i]; ok {
				seg := &tensor.Tensor{Shape: []int{t.size}, Data: grad.Data[t.offset : t.offset+t.size]}
				tg := t.back(seg)
				if g == nil {
					g = tg
				} else {
					g.Add(tg)
				}
			}
			if g != nil {
				g = backs[i](g)
			}
		}
		if g == nil {
			return img.ZerosLike()
		}
		return g
	}
	return emb, backward, nil
}

// normalizeChannels unit-normalizes the channel vector at every spatial
// location and scales by 1/sqrt(H*W). The result is flattened.
func normalizeChannels(x *tensor.Tensor) (*tensor.Tensor, tensor.BackwardFunc) {
	c, h, w := x.Dims()
	hw := h * w
	scale := 1 / math.Sqrt(float64(hw))
	out := tensor.New(x.Len())
	norms := make([]float64, hw)
	for p := 0; p < hw; p++ {
		var ss float64
		for ch := 0; ch < c; ch++ {
			v := x.Data[ch*hw+p]
			ss += v * v
		}
		norms[p] = math.Sqrt(ss + embedEpsilon)
		for ch := 0; ch < c; ch++ {
			out.Data[ch*hw+p] = x.Data[ch*hw+p] / norms[p] * scale
		}
	}
	shape := append([]int(nil), x.Shape...)
	backward := func(grad *tensor.Tensor) *tensor.Tensor {
		in := tensor.New(shape...)
		for p := 0; p < hw; p++ {
			// y = x/n; dx = (g - y (y.g)) / n
			var dot float64
			for ch := 0; ch < c; ch++ {
				y := x.Data[ch*hw+p] / norms[p]
				dot += y * grad.Data[ch*hw+p] * scale
			}
			for ch := 0; ch < c; ch++ {
				y := x.Data[ch*hw+p] / norms[p]
				in.Data[ch*hw+p] = (grad.Data[ch*hw+p]*scale - y*dot) / norms[p]
			}
		}
		return in
	}
	return out, backward
}

type conv3x3 struct {
	in, out int
	weight  []float64
	bias    []float64
}

func (l *conv3x3) Forward(x *tensor.Tensor) (*tensor.Tensor, tensor.BackwardFunc, error) {
	c, h, w := x.Dims()
	if len(x.Shape) != 3 || c != l.in {
		return nil, nil, fmt.Errorf("conv expects %d channels, got shape %v: %w", l.in, x.Shape, ErrIncompatibleShape)
	}
	out := tensor.New(l.out, h, w)
	for o := 0; o < l.out; o++ {
		for y := 0; y < h; y++ {
			for xx := 0; xx < w; xx++ {
				sum := l.bias[o]
				for i := 0; i < l.in; i++ {
					kbase := (o*l.in + i) * 9
					for ky := 0; ky < 3; ky++ {
						sy := y + ky - 1
						if sy < 0 || sy >= h {
							continue
						}
						for kx := 0; kx < 3; kx++ {
							sx := xx + kx - 1
							if sx < 0 || sx >= w {
								continue
							}
							sum += l.weight[kbase+ky*3+kx] * x.Data[(i*h+sy)*w+sx]
						}
					}
				}
				out.Data[(o*h+y)*w+xx] = sum
			}
		}
	}
	backward := func(grad *tensor.Tensor) *tensor.Tensor {
		gin := tensor.New(l.in, h, w)
		for o := 0; o < l.out; o++ {
			for y := 0; y < h; y++ {
				for xx := 0; xx < w; xx++ {
					g := grad.Data[(o*h+y)*w+xx]
					if g == 0 {
						continue
					}
					for i := 0; i < l.in; i++ {
						kbase := (o*l.in + i) * 9
						for ky := 0; ky < 3; ky++ {
							sy := y + ky - 1
							if sy < 0 || sy >= h {
								continue
							}
							for kx := 0; kx < 3; kx++ {
								sx := xx + kx - 1
								if sx < 0 || sx >= w {
									continue
								}
								gin.Data[(i*h+sy)*w+sx] += l.weight[kbase+ky*3+kx] * g
							}
						}
					}
				}
			}
		}
		return gin
	}
	return out, backward, nil
}

type relu struct{}

func (relu) Forward(x *tensor.Tensor) (*tensor.Tensor, tensor.BackwardFunc, error) {
	out := x.Clone()
	for i, v := range out.Data {
		if v < 0 {
			out.Data[i] = 0
		}
	}
	backward := func(grad *tensor.Tensor) *tensor.Tensor {
		gin := grad.Clone()
		for i, v := range x.Data {
			if v <= 0 {
				gin.Data[i] = 0
			}
		}
		return gin
	}
	return out, backward, nil
}

type avgPool2 struct{}

func (avgPool2) Forward(x *tensor.Tensor) (*tensor.Tensor, tensor.BackwardFunc, error) {
	_, h, w := x.Dims()
	if len(x.Shape) != 3 || h < 2 || w < 2 {
		return nil, nil, fmt.Errorf("pool on shape %v: %w", x.Shape, ErrIncompatibleShape)
	}
	out, back := tensor.AreaResize(x, h/2, w/2)
	return out, back, nil
}
