// Package latent estimates the statistics of the generator's intermediate
// latent space that seed and scale the projection search.
package latent

import (
	"fmt"
	"log"
	"math"
	"math/rand"

	"pose-projector/internal/model"
	"pose-projector/internal/npz"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// DefaultSamples is the number of mapped codes averaged by default.
const DefaultSamples = 10000

// DefaultSeed seeds latent sampling when the caller has no preference.
const DefaultSeed = 123

// Stats are the centre and spread of the latent distribution.
type Stats struct {
	Mean    []float64 // [WDim]
	Std     float64
	Samples int
}

// FromSamples computes the element-wise mean of the codes and the
// population root-mean-square L2 distance of each code from that mean.
func FromSamples(codes [][]float64) (Stats, error) {
	if len(codes) == 0 {
		return Stats{}, fmt.Errorf("no latent samples")
	}
	dim := len(codes[0])
	column := make([]float64, len(codes))
	mean := make([]float64, dim)
	for j := 0; j < dim; j++ {
		for i, c := range codes {
			if len(c) != dim {
				return Stats{}, fmt.Errorf("sample %d has %d values, want %d", i, len(c), dim)
			}
			column[i] = c[j]
		}
		mean[j] = stat.Mean(column, nil)
	}

	var ss float64
	diff := make([]float64, dim)
	for _, c := range codes {
		floats.SubTo(diff, c, mean)
		ss += floats.Dot(diff, diff)
	}
	return Stats{
		Mean:    mean,
		Std:     math.Sqrt(ss / float64(len(codes))),
		Samples: len(codes),
	}, nil
}

// Sample draws n standard-normal inputs from a generator-independent
// stream seeded with seed and maps each one, keeping the first-layer code.
func Sample(gen model.Generator, n int, seed int64) ([][]float64, error) {
	if n <= 0 {
		return nil, fmt.Errorf("sample count must be positive, got %d", n)
	}
	info := gen.Info()
	rng := rand.New(rand.NewSource(seed))
	codes := make([][]float64, n)
	z := make([]float64, info.ZDim)
	for i := range codes {
		for j := range z {
			z[j] = rng.NormFloat64()
		}
		ws, err := gen.Map(z)
		if err != nil {
			return nil, fmt.Errorf("failed to map sample %d: %w", i, err)
		}
		if len(ws) == 0 {
			return nil, fmt.Errorf("mapping returned no latent layers")
		}
		codes[i] = append([]float64(nil), ws[0]...)
	}
	return codes, nil
}

// Estimate samples the generator and returns the statistics together with
// the sampled codes, so callers can checkpoint them.
func Estimate(gen model.Generator, n int, seed int64) (Stats, [][]float64, error) {
	log.Printf("Computing W midpoint and stddev using %d samples...", n)
	codes, err := Sample(gen, n, seed)
	if err != nil {
		return Stats{}, nil, err
	}
	st, err := FromSamples(codes)
	return st, codes, err
}

// LoadCheckpoint reads previously sampled codes from the "w" array of an
// .npz file shaped [N, L, C] or [N, C]; only the first layer is kept.
func LoadCheckpoint(path string) ([][]float64, error) {
	arrays, err := npz.Read(path)
	if err != nil {
		return nil, err
	}
	w, ok := arrays["w"]
	if !ok {
		return nil, fmt.Errorf("checkpoint %s has no w array", path)
	}

	var n, layers, dim int
	switch len(w.Shape) {
	case 2:
		n, layers, dim = w.Shape[0], 1, w.Shape[1]
	case 3:
		n, layers, dim = w.Shape[0], w.Shape[1], w.Shape[2]
	default:
		return nil, fmt.Errorf("checkpoint w has shape %v, want [N, L, C] or [N, C]", w.Shape)
	}
	if n == 0 || layers == 0 || dim == 0 {
		return nil, fmt.Errorf("checkpoint w is empty (shape %v)", w.Shape)
	}
	codes := make([][]float64, n)
	for i := range codes {
		off := i * layers * dim
		codes[i] = append([]float64(nil), w.Data[off:off+dim]...)
	}
	log.Printf("Using latent checkpoint %s (%d samples)", path, n)
	return codes, nil
}

// SaveCheckpoint writes codes as a [N, 1, C] "w" array.
func SaveCheckpoint(path string, codes [][]float64) error {
	if len(codes) == 0 {
		return fmt.Errorf("no latent samples to save")
	}
	dim := len(codes[0])
	data := make([]float64, 0, len(codes)*dim)
	for _, c := range codes {
		data = append(data, c...)
	}
	return npz.Write(path, map[string]npz.Array{
		"w": {Shape: []int{len(codes), 1, dim}, Data: data},
	})
}
