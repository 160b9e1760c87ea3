package model

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"os"

	"pose-projector/pkg/tensor"

	"gonum.org/v1/gonum/floats"
)

const mappingSlope = 0.2

// Affine is a reference generator: a single leaky-ReLU mapping layer and a
// tanh pixel synthesis layer driven by the layer-averaged latent code, with
// additive per-resolution constant noise and optional pose conditioning.
// It is small enough to test against and exercises every part of the
// Generator contract.
type Affine struct {
	Meta Info `json:"info"`

	MapWeight []float64 `json:"map_weight"` // [WDim][ZDim]
	MapBias   []float64 `json:"map_bias"`   // [WDim]

	SynthWeight []float64 `json:"synth_weight"` // [C*R*R][WDim]
	SynthBias   []float64 `json:"synth_bias"`   // [C*R*R]
	LayerWeight []float64 `json:"layer_weight"` // [NumWs]

	NoiseResolutions []int                `json:"noise_resolutions"`
	NoiseStrength    []float64            `json:"noise_strength"`
	NoiseConst       map[string][]float64 `json:"noise_const"`

	PoseWeight []float64 `json:"pose_weight,omitempty"` // [C]
}

// NoiseName returns the buffer name used for a noise resolution.
func NoiseName(res int) string {
	return fmt.Sprintf("b%d.noise_const", res)
}

// NewAffine creates a reference generator with seeded random weights.
func NewAffine(info Info, seed int64) *Affine {
	rng := rand.New(rand.NewSource(seed))
	pixels := info.ImgChannels * info.ImgResolution * info.ImgResolution

	g := &Affine{
		Meta:        info,
		MapWeight:   randomSlice(rng, info.WDim*info.ZDim, 1/math.Sqrt(float64(info.ZDim))),
		MapBias:     make([]float64, info.WDim),
		SynthWeight: randomSlice(rng, pixels*info.WDim, 0.5/math.Sqrt(float64(info.WDim))),
		SynthBias:   randomSlice(rng, pixels, 0.1),
		LayerWeight: make([]float64, info.NumWs),
		NoiseConst:  make(map[string][]float64),
		PoseWeight:  make([]float64, info.ImgChannels),
	}
	for i := range g.LayerWeight {
		g.LayerWeight[i] = 1 / float64(info.NumWs)
	}
	for i := range g.PoseWeight {
		g.PoseWeight[i] = 0.5
	}

	res := 4
	if info.ImgResolution < res {
		res = info.ImgResolution
	}
	for ; res <= info.ImgResolution; res *= 2 {
		g.NoiseResolutions = append(g.NoiseResolutions, res)
		g.NoiseStrength = append(g.NoiseStrength, 0.1)
		g.NoiseConst[NoiseName(res)] = randomSlice(rng, res*res, 1)
	}
	return g
}

func randomSlice(rng *rand.Rand, n int, scale float64) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = rng.NormFloat64() * scale
	}
	return s
}

// LoadAffine reads a generator saved with Save.
func LoadAffine(path string) (*Affine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read generator: %w", err)
	}
	var g Affine
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("failed to parse generator: %w", err)
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return &g, nil
}

// Save writes the generator as JSON.
func (g *Affine) Save(path string) error {
	data, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks that all weight slices match the declared dimensions.
func (g *Affine) Validate() error {
	m := g.Meta
	if m.ZDim <= 0 || m.WDim <= 0 || m.NumWs <= 0 || m.ImgChannels <= 0 || m.ImgResolution <= 0 {
		return fmt.Errorf("invalid generator info %+v", m)
	}
	pixels := m.ImgChannels * m.ImgResolution * m.ImgResolution
	checks := []struct {
		name      string
		got, want int
	}{
		{"map_weight", len(g.MapWeight), m.WDim * m.ZDim},
		{"map_bias", len(g.MapBias), m.WDim},
		{"synth_weight", len(g.SynthWeight), pixels * m.WDim},
		{"synth_bias", len(g.SynthBias), pixels},
		{"layer_weight", len(g.LayerWeight), m.NumWs},
		{"noise_strength", len(g.NoiseStrength), len(g.NoiseResolutions)},
	}
	for _, c := range checks {
		if c.got != c.want {
			return fmt.Errorf("generator %s has %d values, want %d", c.name, c.got, c.want)
		}
	}
	if len(g.PoseWeight) != 0 && len(g.PoseWeight) != m.ImgChannels {
		return fmt.Errorf("generator pose_weight has %d values, want %d", len(g.PoseWeight), m.ImgChannels)
	}
	for _, res := range g.NoiseResolutions {
		if res <= 0 || res > m.ImgResolution {
			return fmt.Errorf("noise resolution %d outside 1..%d", res, m.ImgResolution)
		}
		if buf := g.NoiseConst[NoiseName(res)]; len(buf) != res*res {
			return fmt.Errorf("noise buffer %s has %d values, want %d", NoiseName(res), len(buf), res*res)
		}
	}
	return nil
}

// Info implements Generator.
func (g *Affine) Info() Info {
	return g.Meta
}

// NoiseBuffers implements Generator.
func (g *Affine) NoiseBuffers() []NoiseSpec {
	specs := make([]NoiseSpec, len(g.NoiseResolutions))
	for i, res := range g.NoiseResolutions {
		specs[i] = NoiseSpec{Name: NoiseName(res), Shape: []int{res, res}}
	}
	return specs
}

// Map implements Generator. The input is normalized to unit second moment
// before the mapping layer.
func (g *Affine) Map(z []float64) ([][]float64, error) {
	m := g.Meta
	if len(z) != m.ZDim {
		return nil, fmt.Errorf("z has %d values, want %d", len(z), m.ZDim)
	}
	norm := math.Sqrt(floats.Dot(z, z)/float64(len(z)) + 1e-8)
	w := make([]float64, m.WDim)
	for j := range w {
		row := g.MapWeight[j*m.ZDim : (j+1)*m.ZDim]
		h := floats.Dot(row, z)/norm + g.MapBias[j]
		if h < 0 {
			h *= mappingSlope
		}
		w[j] = h
	}
	return Broadcast(w, m.NumWs), nil
}

// Synthesize implements Generator.
func (g *Affine) Synthesize(in SynthesisInput) (*Synthesis, error) {
	m := g.Meta
	if len(in.Ws) != m.NumWs {
		return nil, fmt.Errorf("got %d latent layers, want %d", len(in.Ws), m.NumWs)
	}
	wbar := make([]float64, m.WDim)
	for l, w := range in.Ws {
		if len(w) != m.WDim {
			return nil, fmt.Errorf("latent layer %d has %d values, want %d", l, len(w), m.WDim)
		}
		floats.AddScaled(wbar, g.LayerWeight[l], w)
	}

	noise, err := g.resolveNoise(in)
	if err != nil {
		return nil, err
	}

	res := m.ImgResolution
	img := tensor.New(m.ImgChannels, res, res)
	spatial := make([]float64, res*res)
	for k, r := range g.NoiseResolutions {
		buf := noise[k]
		if buf == nil {
			continue
		}
		for y := 0; y < res; y++ {
			for x := 0; x < res; x++ {
				spatial[y*res+x] += g.NoiseStrength[k] * buf.Data[(y*r/res)*r+x*r/res]
			}
		}
	}

	var poseSum []float64
	if in.Pose != nil && len(g.PoseWeight) > 0 {
		poseSum = g.poseField(in.Pose)
	}

	for c := 0; c < m.ImgChannels; c++ {
		for p := 0; p < res*res; p++ {
			idx := c*res*res + p
			row := g.SynthWeight[idx*m.WDim : (idx+1)*m.WDim]
			pre := g.SynthBias[idx] + floats.Dot(row, wbar) + spatial[p]
			if poseSum != nil {
				pre += g.PoseWeight[c] * poseSum[p]
			}
			img.Data[idx] = math.Tanh(pre)
		}
	}

	backward := func(grad *tensor.Tensor) SynthesisGrad {
		dpre := make([]float64, len(img.Data))
		for i, v := range img.Data {
			dpre[i] = grad.Data[i] * (1 - v*v)
		}
		dwbar := make([]float64, m.WDim)
		for idx, d := range dpre {
			if d == 0 {
				continue
			}
			floats.AddScaled(dwbar, d, g.SynthWeight[idx*m.WDim:(idx+1)*m.WDim])
		}
		out := SynthesisGrad{Ws: make([][]float64, m.NumWs)}
		for l := range out.Ws {
			out.Ws[l] = make([]float64, m.WDim)
			floats.AddScaled(out.Ws[l], g.LayerWeight[l], dwbar)
		}
		if in.Mode != NoiseConst {
			return out
		}
		dspatial := make([]float64, res*res)
		for c := 0; c < m.ImgChannels; c++ {
			floats.Add(dspatial, dpre[c*res*res:(c+1)*res*res])
		}
		out.Noise = make(map[string]*tensor.Tensor, len(g.NoiseResolutions))
		for k, r := range g.NoiseResolutions {
			gb := tensor.New(r, r)
			for y := 0; y < res; y++ {
				for x := 0; x < res; x++ {
					gb.Data[(y*r/res)*r+x*r/res] += g.NoiseStrength[k] * dspatial[y*res+x]
				}
			}
			out.Noise[NoiseName(r)] = gb
		}
		return out
	}
	return &Synthesis{Image: img, Backward: backward}, nil
}

// resolveNoise returns one buffer per noise resolution for the requested
// mode; entries are nil when noise is disabled.
func (g *Affine) resolveNoise(in SynthesisInput) ([]*tensor.Tensor, error) {
	out := make([]*tensor.Tensor, len(g.NoiseResolutions))
	for k, r := range g.NoiseResolutions {
		name := NoiseName(r)
		switch in.Mode {
		case NoiseNone:
		case NoiseRandom:
			buf := tensor.New(r, r)
			for i := range buf.Data {
				buf.Data[i] = rand.NormFloat64()
			}
			out[k] = buf
		case NoiseConst:
			if o, ok := in.Noise[name]; ok {
				if !tensor.ShapeEqual(o.Shape, []int{r, r}) {
					return nil, fmt.Errorf("noise override %s has shape %v, want [%d %d]", name, o.Shape, r, r)
				}
				out[k] = o
				continue
			}
			out[k] = &tensor.Tensor{Shape: []int{r, r}, Data: g.NoiseConst[name]}
		default:
			return nil, fmt.Errorf("unsupported noise mode %v", in.Mode)
		}
	}
	return out, nil
}

// poseField sums the heatmap channels and samples the result onto the
// output grid with nearest-neighbour lookup.
func (g *Affine) poseField(pose *tensor.Tensor) []float64 {
	k, ph, pw := pose.Dims()
	res := g.Meta.ImgResolution
	field := make([]float64, res*res)
	for y := 0; y < res; y++ {
		sy := y * ph / res
		for x := 0; x < res; x++ {
			sx := x * pw / res
			var s float64
			for c := 0; c < k; c++ {
				s += pose.Data[(c*ph+sy)*pw+sx]
			}
			field[y*res+x] = s
		}
	}
	return field
}
