package image

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"pose-projector/pkg/tensor"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePNG(t *testing.T, img image.Image) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "target.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
	return path
}

func TestLoadTargetCropsCentre(t *testing.T) {
	// 30x10 image: red left third, green centre, blue right third.
	src := image.NewRGBA(image.Rect(0, 0, 30, 10))
	for y := 0; y < 10; y++ {
		for x := 0; x < 30; x++ {
			c := color.RGBA{A: 255}
			switch {
			case x < 10:
				c.R = 255
			case x < 20:
				c.G = 255
			default:
				c.B = 255
			}
			src.SetRGBA(x, y, c)
		}
	}

	target, err := LoadTarget(writePNG(t, src), 4)
	require.NoError(t, err)
	assert.Equal(t, 30, target.Width())
	assert.Equal(t, 10, target.Height())
	assert.Equal(t, image.Rect(0, 0, 4, 4), target.Square.Bounds())

	px := target.Square.NRGBAAt(2, 2)
	assert.Equal(t, uint8(0), px.R)
	assert.Equal(t, uint8(255), px.G)
}

func TestLoadTargetRejectsUnknownFormat(t *testing.T) {
	_, err := LoadTarget("photo.bmp", 8)
	assert.Error(t, err)
}

func TestTensorConversion(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 2, 1))
	src.SetRGBA(0, 0, color.RGBA{R: 10, G: 20, B: 30, A: 255})
	src.SetRGBA(1, 0, color.RGBA{R: 255, G: 0, B: 128, A: 255})

	tt, err := ToTensor(src, 3)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 1, 2}, tt.Shape)
	assert.Equal(t, 20.0, tt.At(1, 0, 0))
	assert.Equal(t, 128.0, tt.At(2, 0, 1))

	back := FromTensor(tt)
	assert.Equal(t, src.RGBAAt(1, 0), back.RGBAAt(1, 0))

	_, err = ToTensor(src, 2)
	assert.Error(t, err)
}

func TestFromSignedClamps(t *testing.T) {
	s, _ := tensor.FromData([]float64{-2, 0, 1.5}, 1, 1, 3)
	img := FromSigned(s)
	assert.Equal(t, uint8(0), img.RGBAAt(0, 0).R)
	assert.Equal(t, uint8(127), img.RGBAAt(1, 0).G)
	assert.Equal(t, uint8(255), img.RGBAAt(2, 0).B)
}

func TestSideBySide(t *testing.T) {
	left := image.NewRGBA(image.Rect(0, 0, 3, 3))
	right := image.NewRGBA(image.Rect(0, 0, 3, 3))
	for y := 0; y < 3; y++ {
		for x := 0; x < 3; x++ {
			left.SetRGBA(x, y, color.RGBA{R: 200, A: 255})
			right.SetRGBA(x, y, color.RGBA{B: 200, A: 255})
		}
	}
	frame := SideBySide(left, right)
	assert.Equal(t, image.Rect(0, 0, 6, 3), frame.Bounds())
	assert.Equal(t, uint8(200), frame.RGBAAt(1, 1).R)
	assert.Equal(t, uint8(200), frame.RGBAAt(4, 1).B)
}

func TestIsSupportedFormat(t *testing.T) {
	assert.True(t, IsSupportedFormat("a/b/photo.JPG"))
	assert.True(t, IsSupportedFormat("x.webp"))
	assert.False(t, IsSupportedFormat("notes.txt"))
}
