// Package pose converts body keypoints into the stacked gaussian heatmaps
// the generator takes as pose conditioning.
package pose

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"strconv"
	"strings"

	"pose-projector/pkg/geometry"
	"pose-projector/pkg/tensor"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
)

const (
	// MapSize is the side length of every heatmap channel.
	MapSize = 64
	// NumKeypoints is the keypoint count of the pose tables (17 COCO joints).
	NumKeypoints = 17
	// MinConfidence is the confidence below which a keypoint's map is zeroed.
	MinConfidence = 0.4
	// Spread is the per-axis variance as a fraction of MapSize.
	Spread = 0.02
)

// ErrMalformedKeypoints is returned for keypoint lists that are not
// (x, y, confidence) triples.
var ErrMalformedKeypoints = errors.New("malformed keypoints")

// Keypoint is one body joint in image pixel coordinates.
type Keypoint struct {
	Pos        geometry.Point2D
	Confidence float64
}

// Visible reports whether the keypoint is confident enough to be drawn.
func (k Keypoint) Visible() bool {
	return k.Confidence >= MinConfidence
}

// Triples groups a flat (x, y, confidence) list into keypoints.
func Triples(points []float64) ([]Keypoint, error) {
	if len(points) == 0 || len(points)%3 != 0 {
		return nil, fmt.Errorf("%d values is not a list of triples: %w", len(points), ErrMalformedKeypoints)
	}
	kps := make([]Keypoint, len(points)/3)
	for i := range kps {
		kps[i] = Keypoint{
			Pos:        geometry.NewPoint2D(points[3*i], points[3*i+1]),
			Confidence: points[3*i+2],
		}
	}
	return kps, nil
}

// VisiblePositions returns the positions of the visible keypoints.
func VisiblePositions(kps []Keypoint) []geometry.Point2D {
	var out []geometry.Point2D
	for _, k := range kps {
		if k.Visible() {
			out = append(out, k.Pos)
		}
	}
	return out
}

// Encode builds a [K, 64, 64] heatmap from a flat list of K (x, y,
// confidence) triples given in pixel coordinates of an image with side
// resolution. Channel k holds an isotropic gaussian density centred at the
// rescaled keypoint, with rows indexed by y and columns by x; channels of
// keypoints with confidence below MinConfidence are zero.
func Encode(points []float64, resolution int) (*tensor.Tensor, error) {
	kps, err := Triples(points)
	if err != nil {
		return nil, err
	}
	if resolution <= 0 {
		return nil, fmt.Errorf("invalid image resolution %d", resolution)
	}

	k := len(kps)
	ratio := float64(MapSize) / float64(resolution)
	v := MapSize * Spread
	cov := mat.NewSymDense(2, []float64{v, 0, 0, v})

	maps := tensor.New(k, MapSize, MapSize)
	pos := make([]float64, 2)
	for i, kp := range kps {
		if !kp.Visible() {
			continue
		}
		centre := kp.Pos.Scale(ratio)
		dist, ok := distmv.NewNormal([]float64{centre.X, centre.Y}, cov, nil)
		if !ok {
			return nil, fmt.Errorf("keypoint %d: covariance not positive definite", i)
		}
		for r := 0; r < MapSize; r++ {
			for col := 0; col < MapSize; col++ {
				pos[0], pos[1] = float64(col), float64(r)
				maps.Data[(i*MapSize+r)*MapSize+col] = dist.Prob(pos)
			}
		}
	}
	return maps, nil
}

// Zero returns the all-zero heatmap used when no pose is known.
func Zero() *tensor.Tensor {
	return tensor.New(NumKeypoints, MapSize, MapSize)
}

// ParseKeypoints parses a colon-separated list of floats.
func ParseKeypoints(s string) ([]float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty keypoint string: %w", ErrMalformedKeypoints)
	}
	parts := strings.Split(s, ":")
	out := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("keypoint value %d (%q): %w", i, p, ErrMalformedKeypoints)
		}
		out[i] = v
	}
	return out, nil
}

// FromKeypointString parses and encodes an inline keypoint string.
func FromKeypointString(s string, resolution int) (*tensor.Tensor, error) {
	pts, err := ParseKeypoints(s)
	if err != nil {
		return nil, err
	}
	return Encode(pts, resolution)
}

// ToImage renders the per-pixel maximum over channels as a grayscale
// image, normalized to the global peak.
func ToImage(maps *tensor.Tensor) *image.Gray {
	k, h, w := maps.Dims()
	field := make([]float64, h*w)
	var peak float64
	for c := 0; c < k; c++ {
		for p := 0; p < h*w; p++ {
			if v := maps.Data[c*h*w+p]; v > field[p] {
				field[p] = v
			}
		}
	}
	for _, v := range field {
		if v > peak {
			peak = v
		}
	}
	img := image.NewGray(image.Rect(0, 0, w, h))
	if peak == 0 {
		return img
	}
	for p, v := range field {
		img.SetGray(p%w, p/w, color.Gray{Y: uint8(v / peak * 255)})
	}
	return img
}
