// Package image provides target loading, tensor conversion, and frame
// compositing.
package image

import (
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	"pose-projector/pkg/colorutil"
	"pose-projector/pkg/geometry"
	"pose-projector/pkg/tensor"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Target is a decoded target photograph and its square, generator-sized
// version.
type Target struct {
	Path     string      // Original file path
	Original image.Image // Decoded image data
	Square   *image.NRGBA
}

// Width returns the original image width in pixels.
func (t *Target) Width() int {
	if t.Original == nil {
		return 0
	}
	return t.Original.Bounds().Dx()
}

// Height returns the original image height in pixels.
func (t *Target) Height() int {
	if t.Original == nil {
		return 0
	}
	return t.Original.Bounds().Dy()
}

// Decode loads an image from the specified path.
func Decode(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// LoadTarget decodes the image at path, crops the largest centred square
// and resizes it to resolution with a Lanczos filter.
func LoadTarget(path string, resolution int) (*Target, error) {
	if !IsSupportedFormat(path) {
		return nil, fmt.Errorf("unsupported image format: %s", filepath.Ext(path))
	}
	img, err := Decode(path)
	if err != nil {
		return nil, err
	}
	return &Target{
		Path:     path,
		Original: img,
		Square:   Fit(img, resolution),
	}, nil
}

// Fit centre-crops img to a square and resizes it to side x side.
func Fit(img image.Image, side int) *image.NRGBA {
	b := img.Bounds()
	crop := geometry.CenterSquare(b.Dx(), b.Dy()).Add(b.Min)
	cropped := imaging.Crop(img, crop)
	return imaging.Resize(cropped, side, side, imaging.Lanczos)
}

// ToTensor converts img to a [channels, H, W] tensor in the 0-255 range.
// One channel yields luminance; three yield RGB.
func ToTensor(img image.Image, channels int) (*tensor.Tensor, error) {
	if channels != 1 && channels != 3 {
		return nil, fmt.Errorf("unsupported channel count %d", channels)
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	t := tensor.New(channels, h, w)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			if channels == 1 {
				g := color.GrayModel.Convert(c).(color.Gray)
				t.Set(0, y, x, float64(g.Y))
				continue
			}
			t.Set(0, y, x, float64(c.R))
			t.Set(1, y, x, float64(c.G))
			t.Set(2, y, x, float64(c.B))
		}
	}
	return t, nil
}

// FromTensor converts a [C, H, W] tensor in the 0-255 range to an RGBA
// image, clamping and truncating each value. Single-channel tensors are
// rendered as gray.
func FromTensor(t *tensor.Tensor) *image.RGBA {
	return fromTensor(t, colorutil.ToByte)
}

// FromSigned converts a generator output in [-1, 1] to an RGBA image.
func FromSigned(t *tensor.Tensor) *image.RGBA {
	return fromTensor(t, colorutil.SignedToByte)
}

func fromTensor(t *tensor.Tensor, conv func(float64) uint8) *image.RGBA {
	c, h, w := t.Dims()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var px color.RGBA
			px.A = 255
			if c < 3 {
				v := conv(t.At(0, y, x))
				px.R, px.G, px.B = v, v, v
			} else {
				px.R = conv(t.At(0, y, x))
				px.G = conv(t.At(1, y, x))
				px.B = conv(t.At(2, y, x))
			}
			img.SetRGBA(x, y, px)
		}
	}
	return img
}

// SupportedFormats returns the list of supported image formats.
func SupportedFormats() []string {
	return []string{".tiff", ".tif", ".png", ".jpg", ".jpeg", ".webp"}
}

// IsSupportedFormat checks if the given path has a supported image format.
func IsSupportedFormat(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, format := range SupportedFormats() {
		if ext == format {
			return true
		}
	}
	return false
}
